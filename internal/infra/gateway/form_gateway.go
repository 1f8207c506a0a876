package gateway

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/usecase"
)

// FormGateway caches question lists in process. Forms change rarely and are read on every request.
type FormGateway struct {
	origin usecase.FormRepository
	cache  *cache.Cache
}

var _ usecase.FormRepository = (*FormGateway)(nil)

func NewFormGateway(origin usecase.FormRepository) *FormGateway {
	return &FormGateway{
		origin: origin,
		cache:  cache.New(10*time.Minute, 15*time.Minute),
	}
}

func (g *FormGateway) GetForm(ctx context.Context, id string) (domain.Form, error) {
	if cached, found := g.cache.Get(id); found {
		return cached.(domain.Form), nil
	}
	form, err := g.origin.GetForm(ctx, id)
	if err != nil {
		return domain.Form{}, err
	}
	g.cache.Set(id, form, cache.DefaultExpiration)
	return form, nil
}
