package repository

import (
	"context"
	"errors"
	"maps"

	"gorm.io/gorm"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/infra/database/models"
)

type EntityRepository struct {
	db *gorm.DB
}

func NewEntityRepository(db *gorm.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

func (r *EntityRepository) GetByUUID(ctx context.Context, kind domain.OwnerKind, id string) (*domain.FormModel, error) {
	var entity models.FormEntity
	err := r.db.WithContext(ctx).
		Where("model_type = ? AND uuid = ?", kind.ModelType(), id).
		Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFoundError{Resource: kind.ModelType()}
	}
	if err != nil {
		return nil, err
	}

	properties := make(map[string]any, len(entity.Properties))
	maps.Copy(properties, entity.Properties)
	return &domain.FormModel{
		Kind:           kind,
		ID:             entity.ID,
		UUID:           entity.UUID,
		OrganisationID: entity.OrganisationID,
		Properties:     properties,
	}, nil
}

type FormRepository struct {
	db *gorm.DB
}

func NewFormRepository(db *gorm.DB) *FormRepository {
	return &FormRepository{db: db}
}

// GetForm loads a form with its questions in display order.
func (r *FormRepository) GetForm(ctx context.Context, id string) (domain.Form, error) {
	var form models.Form
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order(`"order" ASC`) }).
		Where("uuid = ?", id).
		Take(&form).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Form{}, domain.NotFoundError{Resource: "form"}
	}
	if err != nil {
		return domain.Form{}, err
	}

	questions := make([]domain.Question, 0, len(form.Questions))
	for _, q := range form.Questions {
		questions = append(questions, domain.Question{ID: q.UUID, LinkedFieldKey: q.LinkedFieldKey, Order: q.Order})
	}
	return domain.Form{UUID: form.UUID, Title: form.Title, Questions: questions}, nil
}
