package usecase

import (
	"context"

	"github.com/totegamma/restoration-forms/internal/domain"
)

// FormRepository loads forms with their ordered question lists.
type FormRepository interface {
	GetForm(ctx context.Context, id string) (domain.Form, error)
}

// EntityRepository loads the parent records a form is answered for.
type EntityRepository interface {
	GetByUUID(ctx context.Context, kind domain.OwnerKind, id string) (*domain.FormModel, error)
}

// AnswerCache stores encoded answer snapshots. A nil snapshot from Get is a miss; the version it
// returns alongside is where Set stores the snapshot collected after that miss.
type AnswerCache interface {
	Get(ctx context.Context, form string, entities []string) (snapshot []byte, version string, err error)
	Set(ctx context.Context, version string, snapshot []byte) error
	Invalidate(ctx context.Context, entities []string) error
}

// SignalPublisher announces reconciled submissions.
type SignalPublisher interface {
	Publish(ctx context.Context, event domain.FormSynced) error
}
