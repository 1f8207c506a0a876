package linkedfield

import (
	"context"

	"github.com/totegamma/restoration-forms/internal/domain"
)

// Collector reads answers for the questions registered with it.
type Collector interface {
	register(field domain.LinkedFieldConfig, kind domain.OwnerKind, questionID string) error
	// Collect returns answers for exactly the registered question ids.
	Collect(ctx context.Context, store Store, models domain.FormModels) (domain.Answers, error)
}

// FieldSyncer writes a property or file answer back.
type FieldSyncer interface {
	SyncField(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any, hidden bool) ([]domain.Warning, error)
}

// RelationSyncer reconciles a submitted list of embedded records with persisted rows.
type RelationSyncer interface {
	SyncRelation(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any, hidden bool) ([]domain.Warning, error)
	ClearRelations(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig) error
}

// relationCollector is implemented by every collector of ResourceRelation fields.
type relationCollector interface {
	Collector
	RelationSyncer
}

type fieldCollectorKind interface {
	Collector
	FieldSyncer
}

// ownerSet keeps owners in first-seen order without duplicates.
type ownerSet struct {
	seen   map[domain.OwnerReference]struct{}
	owners []domain.OwnerReference
}

func (s *ownerSet) add(owner domain.OwnerReference) {
	if s.seen == nil {
		s.seen = make(map[domain.OwnerReference]struct{})
	}
	if _, ok := s.seen[owner]; ok {
		return
	}
	s.seen[owner] = struct{}{}
	s.owners = append(s.owners, owner)
}

type stringSet struct {
	seen   map[string]struct{}
	values []string
}

func (s *stringSet) add(values ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.values = append(s.values, v)
	}
}
