package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/infra/database/models"
	"github.com/totegamma/restoration-forms/internal/linkedfield"
)

// Store is the postgres implementation of linkedfield.Store.
type Store struct {
	db *gorm.DB
}

var _ linkedfield.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Atomic runs fn inside a database transaction. Nested calls become savepoints.
func (s *Store) Atomic(ctx context.Context, fn func(tx linkedfield.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// owners expands owner references into (owner_type, owner_id) tuples.
func owners(refs []domain.OwnerReference) [][]any {
	tuples := make([][]any, 0, len(refs))
	for _, ref := range refs {
		tuples = append(tuples, []any{ref.Kind.Tag(), ref.ID})
	}
	return tuples
}

func ownerOf(tag string, id int64) (domain.OwnerReference, error) {
	kind, err := domain.ParseOwnerTag(tag)
	if err != nil {
		return domain.OwnerReference{}, err
	}
	return domain.OwnerReference{Kind: kind, ID: id}, nil
}

func deletedAt(d gorm.DeletedAt) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

func (s *Store) UUIDInUse(ctx context.Context, resource domain.RelationResource, id string) (bool, error) {
	query := s.db.WithContext(ctx).Unscoped()
	switch resource {
	case domain.ResourceDemographics:
		query = query.Model(&models.Demographic{}).Where("uuid = ?", id)
	case domain.ResourceFundingTypes:
		query = query.Model(&models.FundingType{}).Where("uuid = ?", id)
	case domain.ResourceFinancialIndicators:
		query = query.Model(&models.FinancialIndicator{}).Where("uuid = ?", id)
	case domain.ResourceDisturbances:
		query = query.Model(&models.DisturbanceEntry{}).Where("uuid = ?", id)
	default:
		query = query.Model(&models.PolymorphicRow{}).Where("resource = ? AND uuid = ?", string(resource), id)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListPolymorphic(ctx context.Context, resource domain.RelationResource, refs []domain.OwnerReference, collections []string) ([]domain.PolymorphicRow, error) {
	if len(refs) == 0 || len(collections) == 0 {
		return nil, nil
	}
	var rows []models.PolymorphicRow
	err := s.db.WithContext(ctx).
		Where("resource = ?", string(resource)).
		Where("(owner_type, owner_id) IN ?", owners(refs)).
		Where("collection IN ?", collections).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.PolymorphicRow, 0, len(rows))
	for _, row := range rows {
		owner, err := ownerOf(row.OwnerType, row.OwnerID)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.PolymorphicRow{
			ID:         row.ID,
			UUID:       row.UUID,
			Resource:   domain.RelationResource(row.Resource),
			Owner:      owner,
			Collection: row.Collection,
			Attributes: map[string]any(row.Attributes),
			CreatedAt:  row.CDate,
			DeletedAt:  deletedAt(row.DeletedAt),
		})
	}
	return result, nil
}

func (s *Store) CreatePolymorphic(ctx context.Context, row *domain.PolymorphicRow) error {
	attrs := row.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	model := models.PolymorphicRow{
		UUID:       row.UUID,
		Resource:   string(row.Resource),
		OwnerType:  row.Owner.Kind.Tag(),
		OwnerID:    row.Owner.ID,
		Collection: row.Collection,
		Attributes: datatypes.JSONMap(attrs),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	row.ID = model.ID
	row.CreatedAt = model.CDate
	return nil
}

func (s *Store) UpdatePolymorphic(ctx context.Context, row *domain.PolymorphicRow) error {
	return s.db.WithContext(ctx).
		Model(&models.PolymorphicRow{}).
		Where("id = ?", row.ID).
		Update("attributes", datatypes.JSONMap(row.Attributes)).Error
}

func (s *Store) SoftDeletePolymorphic(ctx context.Context, resource domain.RelationResource, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("resource = ? AND id IN ?", string(resource), ids).
		Delete(&models.PolymorphicRow{}).Error
}

func (s *Store) UpdateProperties(ctx context.Context, owner domain.OwnerReference, properties map[string]any) error {
	patch, err := json.Marshal(properties)
	if err != nil {
		return errors.Wrap(err, "encode properties")
	}
	result := s.db.WithContext(ctx).
		Model(&models.FormEntity{}).
		Where("model_type = ? AND id = ?", owner.Kind.ModelType(), owner.ID).
		Update("properties", gorm.Expr("properties || ?::jsonb", string(patch)))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: owner.Kind.ModelType()}
	}
	return nil
}
