package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"metasearch/internal/domain"
	"metasearch/internal/usecase/processor"
)

func TestParseRawQuery(t *testing.T) {
	e := newEnv()
	o := NewOrchestrator([]processor.Processor{
		e.engine(t, &domain.Engine{Name: "web", Shortcut: "w", Categories: []string{"general", "news"}}),
		e.engine(t, &domain.Engine{Name: "images", Shortcut: "im", Categories: []string{"images"}}),
		e.engine(t, &domain.Engine{Name: "off", Shortcut: "of", Disabled: true}),
	}, discardLogger())
	o.SetBangs(mapBangs{"g": "https://g.test/?q="})

	tests := []struct {
		raw  string
		want RawQuery
	}{
		{"golang generics", RawQuery{Query: "golang generics"}},
		{"!!g golang", RawQuery{Query: "golang", ExternalBang: "g"}},
		{"!!zz golang", RawQuery{Query: "!!zz golang"}},
		{"!w golang", RawQuery{Query: "golang", Specific: true, EngineRefs: []domain.EngineRef{{Name: "web", Category: "general"}}}},
		{"?images cats", RawQuery{Query: "cats", EngineRefs: []domain.EngineRef{{Name: "images", Category: "images"}}}},
		{"cats !news", RawQuery{Query: "cats", Specific: true, EngineRefs: []domain.EngineRef{{Name: "web", Category: "news"}}}},
		{"!of !nope x", RawQuery{Query: "!of !nope x"}},
		{"<3 :de berlin", RawQuery{Query: "berlin", TimeoutLimit: 3 * time.Second, Languages: []string{"de"}}},
		{"<850 berlin", RawQuery{Query: "berlin", TimeoutLimit: 850 * time.Millisecond}},
		{":all <x : ! berlin", RawQuery{Query: "<x : ! berlin", Languages: []string{"all"}}},
		{":en-US :123 x", RawQuery{Query: ":123 x", Languages: []string{"en-US"}}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, o.ParseRawQuery(tt.raw))
		})
	}
}

func TestParseRawQueryWithoutBangs(t *testing.T) {
	o := NewOrchestrator(nil, discardLogger())
	assert.Equal(t, RawQuery{Query: "!!g x"}, o.ParseRawQuery("!!g x"))
}
