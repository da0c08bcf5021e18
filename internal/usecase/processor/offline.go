package processor

import (
	"context"

	"metasearch/internal/domain"
)

// Offline runs engines that answer from local data.
type Offline struct {
	base
}

// NewOffline creates an offline processor.
func NewOffline(engine *domain.Engine, deps Deps) *Offline {
	return &Offline{base: newBase(engine, deps)}
}

func (p *Offline) Kind() domain.ProcessorKind { return domain.ProcessorOffline }

func (p *Offline) Search(ctx context.Context, call Call, c Container) {
	p.run(ctx, call, c, func(ctx context.Context, call Call) ([]domain.Result, error) {
		return p.engine.Offline.Search(ctx, call.Query, call.Params)
	})
}
