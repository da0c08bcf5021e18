package answerer

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metasearch/internal/domain"
)

func q(s string) domain.SearchQuery { return domain.SearchQuery{Query: s} }

func TestRandom(t *testing.T) {
	a := NewRandom(rand.NewPCG(1, 2))

	tests := []struct {
		query string
		check func(t *testing.T, v string)
	}{
		{"random string", func(t *testing.T, v string) {
			assert.Regexp(t, regexp.MustCompile(`^[a-zA-Z0-9]{8,32}$`), v)
		}},
		{"random int", func(t *testing.T, v string) {
			n, err := strconv.ParseInt(v, 10, 64)
			require.NoError(t, err)
			assert.LessOrEqual(t, n, int64(1<<31-1))
			assert.GreaterOrEqual(t, n, -int64(1<<31-1))
		}},
		{"random float", func(t *testing.T, v string) {
			f, err := strconv.ParseFloat(v, 64)
			require.NoError(t, err)
			assert.True(t, f >= 0 && f < 1)
		}},
		{"random sha256", func(t *testing.T, v string) {
			assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), v)
		}},
		{"random uuid", func(t *testing.T, v string) {
			id, err := uuid.Parse(v)
			require.NoError(t, err)
			assert.Equal(t, uuid.Version(4), id.Version())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := a.Answer(q(tt.query))
			require.Len(t, got, 1)
			tt.check(t, got[0].Answer)
		})
	}
}

func TestRandomIgnoresOtherQueries(t *testing.T) {
	a := NewRandom(nil)
	assert.Empty(t, a.Answer(q("random")))
	assert.Empty(t, a.Answer(q("random color")))
	assert.Empty(t, a.Answer(q("random int please")))
}

func TestRandomInfo(t *testing.T) {
	info := NewRandom(nil).Info()
	assert.Equal(t, "Random value generator", info.Name)
	assert.Equal(t, []string{"random float", "random int", "random sha256", "random string", "random uuid"}, info.Examples)
}

func TestStatistics(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"min 4 2.5 9", "2.5"},
		{"max 4 2.5 9", "9"},
		{"avg 1 2 3 4", "2.5"},
		{"sum 1 2 3.5", "6.5"},
		{"prod 2 3 -4", "-24"},
		{"sum 7", "7"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := Statistics{}.Answer(q(tt.query))
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Answer)
		})
	}

	assert.Empty(t, Statistics{}.Answer(q("sum")))
	assert.Empty(t, Statistics{}.Answer(q("sum 1 two")))
	assert.Empty(t, Statistics{}.Answer(q("median 1 2")))
}

func TestRegistryAsk(t *testing.T) {
	r := Default()

	got := r.Ask(q("max 1 5 3"))
	require.Len(t, got, 1)
	assert.Equal(t, "5", got[0].Answer)

	assert.Len(t, r.Ask(q("random int")), 1)
	assert.Empty(t, r.Ask(q("")))
	assert.Empty(t, r.Ask(q("golang max 1 2")), "keyword must be the first word")

	infos := r.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, "Statistics functions", infos[1].Name)
}
