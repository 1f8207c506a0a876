package linkedfield

import (
	"context"

	"github.com/totegamma/restoration-forms/internal/domain"
)

// FinanceScope selects funding types or financial indicators owned by an organisation
// (FinancialReportID nil) or by one financial report.
type FinanceScope struct {
	OrganisationID    *int64
	FinancialReportID *int64
}

type PolymorphicStore interface {
	// ListPolymorphic returns live rows for any of owners in any of collections, oldest first.
	ListPolymorphic(ctx context.Context, resource domain.RelationResource, owners []domain.OwnerReference, collections []string) ([]domain.PolymorphicRow, error)
	CreatePolymorphic(ctx context.Context, row *domain.PolymorphicRow) error
	UpdatePolymorphic(ctx context.Context, row *domain.PolymorphicRow) error
	SoftDeletePolymorphic(ctx context.Context, resource domain.RelationResource, ids []int64) error
}

type DemographicStore interface {
	// ListDemographics returns live parents with their entries, oldest first.
	ListDemographics(ctx context.Context, owners []domain.OwnerReference, types []string) ([]domain.Demographic, error)
	CreateDemographic(ctx context.Context, demographic *domain.Demographic) error
	UpdateDemographic(ctx context.Context, demographic *domain.Demographic) error
	SoftDeleteDemographics(ctx context.Context, ids []int64) error
	CreateDemographicEntry(ctx context.Context, entry *domain.DemographicEntry) error
	UpdateDemographicEntry(ctx context.Context, entry *domain.DemographicEntry) error
	DeleteDemographicEntries(ctx context.Context, ids []int64) error
}

type FinanceStore interface {
	ListFundingTypes(ctx context.Context, scope FinanceScope) ([]domain.FundingType, error)
	CreateFundingType(ctx context.Context, row *domain.FundingType) error
	UpdateFundingType(ctx context.Context, row *domain.FundingType) error
	SoftDeleteFundingTypes(ctx context.Context, ids []int64) error
	PurgeFundingTypes(ctx context.Context, scope FinanceScope) error

	ListFinancialIndicators(ctx context.Context, scope FinanceScope, collections []string) ([]domain.FinancialIndicator, error)
	CreateFinancialIndicator(ctx context.Context, row *domain.FinancialIndicator) error
	UpdateFinancialIndicator(ctx context.Context, row *domain.FinancialIndicator) error
	SoftDeleteFinancialIndicators(ctx context.Context, ids []int64) error
	PurgeFinancialIndicators(ctx context.Context, scope FinanceScope, collection string) error
}

type DisturbanceStore interface {
	ListDisturbanceEntries(ctx context.Context, reportIDs []int64) ([]domain.DisturbanceEntry, error)
	CreateDisturbanceEntry(ctx context.Context, row *domain.DisturbanceEntry) error
	UpdateDisturbanceEntry(ctx context.Context, row *domain.DisturbanceEntry) error
	SoftDeleteDisturbanceEntries(ctx context.Context, ids []int64) error
}

type MediaStore interface {
	// ListMedia returns media ordered by order column, then creation.
	ListMedia(ctx context.Context, owners []domain.OwnerReference, collections []string) ([]domain.Media, error)
}

type PolygonStore interface {
	// ListPolygons returns live polygons for owners, newest first.
	ListPolygons(ctx context.Context, owners []domain.OwnerReference) ([]domain.Polygon, error)
}

type PropertyStore interface {
	UpdateProperties(ctx context.Context, owner domain.OwnerReference, properties map[string]any) error
}

// Store is the persistence collaborator of the engine.
type Store interface {
	PolymorphicStore
	DemographicStore
	FinanceStore
	DisturbanceStore
	MediaStore
	PolygonStore
	PropertyStore

	// UUIDInUse reports whether any row of resource, soft-deleted ones included, carries uuid.
	UUIDInUse(ctx context.Context, resource domain.RelationResource, uuid string) (bool, error)

	// Atomic runs fn in a unit of work; fn's error rolls every write back.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
