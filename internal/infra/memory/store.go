// Package memory is an in-process implementation of linkedfield.Store.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/linkedfield"
)

type state struct {
	nextID              int64
	entities            []*domain.FormModel
	forms               map[string]domain.Form
	polymorphic         []domain.PolymorphicRow
	demographics        []domain.Demographic
	demographicEntries  []domain.DemographicEntry
	fundingTypes        []domain.FundingType
	financialIndicators []domain.FinancialIndicator
	disturbanceEntries  []domain.DisturbanceEntry
	media               []domain.Media
	polygons            []domain.Polygon
}

// Store keeps every table in memory. Reads may run concurrently; Atomic calls are serialized.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	s    state
	now  func() time.Time
}

var _ linkedfield.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		s:   state{forms: make(map[string]domain.Form)},
		now: time.Now,
	}
}

// SetClock replaces the clock stamping created and deleted rows.
func (m *Store) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Store) id() int64 {
	m.s.nextID++
	return m.s.nextID
}

func cloneAttributes(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	return maps.Clone(attrs)
}

func (s state) clone() state {
	out := s
	out.entities = make([]*domain.FormModel, len(s.entities))
	for i, e := range s.entities {
		copied := *e
		copied.Properties = cloneAttributes(e.Properties)
		out.entities[i] = &copied
	}
	out.forms = maps.Clone(s.forms)
	out.polymorphic = make([]domain.PolymorphicRow, len(s.polymorphic))
	for i, row := range s.polymorphic {
		row.Attributes = cloneAttributes(row.Attributes)
		out.polymorphic[i] = row
	}
	out.demographics = slices.Clone(s.demographics)
	out.demographicEntries = slices.Clone(s.demographicEntries)
	out.fundingTypes = slices.Clone(s.fundingTypes)
	out.financialIndicators = slices.Clone(s.financialIndicators)
	out.disturbanceEntries = slices.Clone(s.disturbanceEntries)
	out.media = slices.Clone(s.media)
	out.polygons = slices.Clone(s.polygons)
	return out
}

// Atomic snapshots the tables and restores them when fn fails or ctx ends before fn returns.
func (m *Store) Atomic(ctx context.Context, fn func(tx linkedfield.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	snapshot := m.s.clone()
	m.mu.RUnlock()

	err := fn(m)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.mu.Lock()
		m.s = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func hasOwner(owners []domain.OwnerReference, owner domain.OwnerReference) bool {
	return slices.Contains(owners, owner)
}

func (m *Store) UUIDInUse(ctx context.Context, resource domain.RelationResource, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch resource {
	case domain.ResourceDemographics:
		return slices.ContainsFunc(m.s.demographics, func(d domain.Demographic) bool { return d.UUID == id }), nil
	case domain.ResourceFundingTypes:
		return slices.ContainsFunc(m.s.fundingTypes, func(f domain.FundingType) bool { return f.UUID == id }), nil
	case domain.ResourceFinancialIndicators:
		return slices.ContainsFunc(m.s.financialIndicators, func(f domain.FinancialIndicator) bool { return f.UUID == id }), nil
	case domain.ResourceDisturbances:
		return slices.ContainsFunc(m.s.disturbanceEntries, func(d domain.DisturbanceEntry) bool { return d.UUID == id }), nil
	}
	return slices.ContainsFunc(m.s.polymorphic, func(r domain.PolymorphicRow) bool {
		return r.Resource == resource && r.UUID == id
	}), nil
}

// polymorphic

func (m *Store) ListPolymorphic(ctx context.Context, resource domain.RelationResource, owners []domain.OwnerReference, collections []string) ([]domain.PolymorphicRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []domain.PolymorphicRow
	for _, row := range m.s.polymorphic {
		if row.DeletedAt != nil || row.Resource != resource {
			continue
		}
		if !hasOwner(owners, row.Owner) || !slices.Contains(collections, row.Collection) {
			continue
		}
		row.Attributes = cloneAttributes(row.Attributes)
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *Store) CreatePolymorphic(ctx context.Context, row *domain.PolymorphicRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row.ID = m.id()
	if row.UUID == "" {
		row.UUID = uuid.NewString()
	}
	row.CreatedAt = m.now()
	stored := *row
	stored.Attributes = cloneAttributes(row.Attributes)
	m.s.polymorphic = append(m.s.polymorphic, stored)
	return nil
}

func (m *Store) UpdatePolymorphic(ctx context.Context, row *domain.PolymorphicRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.s.polymorphic {
		if m.s.polymorphic[i].ID == row.ID {
			m.s.polymorphic[i].Attributes = cloneAttributes(row.Attributes)
			return nil
		}
	}
	return domain.NotFoundError{Resource: string(row.Resource)}
}

func (m *Store) SoftDeletePolymorphic(ctx context.Context, resource domain.RelationResource, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for i := range m.s.polymorphic {
		row := &m.s.polymorphic[i]
		if row.Resource == resource && row.DeletedAt == nil && slices.Contains(ids, row.ID) {
			row.DeletedAt = &now
		}
	}
	return nil
}

// demographics

func (m *Store) ListDemographics(ctx context.Context, owners []domain.OwnerReference, types []string) ([]domain.Demographic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Demographic
	for _, d := range m.s.demographics {
		if d.DeletedAt != nil || !hasOwner(owners, d.Owner) || !slices.Contains(types, d.Type) {
			continue
		}
		d.Entries = nil
		for _, entry := range m.s.demographicEntries {
			if entry.DemographicID == d.ID {
				d.Entries = append(d.Entries, entry)
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *Store) CreateDemographic(ctx context.Context, demographic *domain.Demographic) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	demographic.ID = m.id()
	if demographic.UUID == "" {
		demographic.UUID = uuid.NewString()
	}
	demographic.CreatedAt = m.now()
	stored := *demographic
	stored.Entries = nil
	m.s.demographics = append(m.s.demographics, stored)
	return nil
}

func (m *Store) UpdateDemographic(ctx context.Context, demographic *domain.Demographic) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.s.demographics {
		d := &m.s.demographics[i]
		if d.ID == demographic.ID {
			d.Hidden = demographic.Hidden
			d.Description = demographic.Description
			return nil
		}
	}
	return domain.NotFoundError{Resource: "demographic"}
}

// SoftDeleteDemographics marks parents deleted; their entries stay attached.
func (m *Store) SoftDeleteDemographics(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for i := range m.s.demographics {
		d := &m.s.demographics[i]
		if d.DeletedAt == nil && slices.Contains(ids, d.ID) {
			d.DeletedAt = &now
		}
	}
	return nil
}

func (m *Store) CreateDemographicEntry(ctx context.Context, entry *domain.DemographicEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = m.id()
	m.s.demographicEntries = append(m.s.demographicEntries, *entry)
	return nil
}

func (m *Store) UpdateDemographicEntry(ctx context.Context, entry *domain.DemographicEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.s.demographicEntries {
		if m.s.demographicEntries[i].ID == entry.ID {
			m.s.demographicEntries[i].Amount = entry.Amount
			return nil
		}
	}
	return domain.NotFoundError{Resource: "demographic entry"}
}

func (m *Store) DeleteDemographicEntries(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.demographicEntries = slices.DeleteFunc(m.s.demographicEntries, func(e domain.DemographicEntry) bool {
		return slices.Contains(ids, e.ID)
	})
	return nil
}

// DemographicEntries lists the entries stored for the demographic with the given uuid, deleted or not.
func (m *Store) DemographicEntries(id string) []domain.DemographicEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.DemographicEntry
	for _, d := range m.s.demographics {
		if d.UUID != id {
			continue
		}
		for _, entry := range m.s.demographicEntries {
			if entry.DemographicID == d.ID {
				out = append(out, entry)
			}
		}
	}
	return out
}

// finance

func sameInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func inScope(scope linkedfield.FinanceScope, organisationID, reportID *int64) bool {
	return sameInt64(scope.OrganisationID, organisationID) && sameInt64(scope.FinancialReportID, reportID)
}

func (m *Store) ListFundingTypes(ctx context.Context, scope linkedfield.FinanceScope) ([]domain.FundingType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.FundingType
	for _, row := range m.s.fundingTypes {
		if row.DeletedAt == nil && inScope(scope, row.OrganisationID, row.FinancialReportID) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *Store) CreateFundingType(ctx context.Context, row *domain.FundingType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row.ID = m.id()
	if row.UUID == "" {
		row.UUID = uuid.NewString()
	}
	row.CreatedAt = m.now()
	m.s.fundingTypes = append(m.s.fundingTypes, *row)
	return nil
}

func (m *Store) UpdateFundingType(ctx context.Context, row *domain.FundingType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.s.fundingTypes {
		if m.s.fundingTypes[i].ID == row.ID {
			created, deleted := m.s.fundingTypes[i].CreatedAt, m.s.fundingTypes[i].DeletedAt
			m.s.fundingTypes[i] = *row
			m.s.fundingTypes[i].CreatedAt, m.s.fundingTypes[i].DeletedAt = created, deleted
			return nil
		}
	}
	return domain.NotFoundError{Resource: "funding type"}
}

func (m *Store) SoftDeleteFundingTypes(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for i := range m.s.fundingTypes {
		row := &m.s.fundingTypes[i]
		if row.DeletedAt == nil && slices.Contains(ids, row.ID) {
			row.DeletedAt = &now
		}
	}
	return nil
}

func (m *Store) PurgeFundingTypes(ctx context.Context, scope linkedfield.FinanceScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.fundingTypes = slices.DeleteFunc(m.s.fundingTypes, func(row domain.FundingType) bool {
		return inScope(scope, row.OrganisationID, row.FinancialReportID)
	})
	return nil
}

func (m *Store) ListFinancialIndicators(ctx context.Context, scope linkedfield.FinanceScope, collections []string) ([]domain.FinancialIndicator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.FinancialIndicator
	for _, row := range m.s.financialIndicators {
		if row.DeletedAt != nil || !inScope(scope, row.OrganisationID, row.FinancialReportID) {
			continue
		}
		if slices.Contains(collections, row.Collection) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *Store) CreateFinancialIndicator(ctx context.Context, row *domain.FinancialIndicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row.ID = m.id()
	if row.UUID == "" {
		row.UUID = uuid.NewString()
	}
	row.CreatedAt = m.now()
	m.s.financialIndicators = append(m.s.financialIndicators, *row)
	return nil
}

func (m *Store) UpdateFinancialIndicator(ctx context.Context, row *domain.FinancialIndicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.s.financialIndicators {
		if m.s.financialIndicators[i].ID == row.ID {
			created, deleted := m.s.financialIndicators[i].CreatedAt, m.s.financialIndicators[i].DeletedAt
			m.s.financialIndicators[i] = *row
			m.s.financialIndicators[i].CreatedAt, m.s.financialIndicators[i].DeletedAt = created, deleted
			return nil
		}
	}
	return domain.NotFoundError{Resource: "financial indicator"}
}

func (m *Store) SoftDeleteFinancialIndicators(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for i := range m.s.financialIndicators {
		row := &m.s.financialIndicators[i]
		if row.DeletedAt == nil && slices.Contains(ids, row.ID) {
			row.DeletedAt = &now
		}
	}
	return nil
}

func (m *Store) PurgeFinancialIndicators(ctx context.Context, scope linkedfield.FinanceScope, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.financialIndicators = slices.DeleteFunc(m.s.financialIndicators, func(row domain.FinancialIndicator) bool {
		return row.Collection == collection && inScope(scope, row.OrganisationID, row.FinancialReportID)
	})
	return nil
}

// disturbances

func (m *Store) ListDisturbanceEntries(ctx context.Context, reportIDs []int64) ([]domain.DisturbanceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.DisturbanceEntry
	for _, row := range m.s.disturbanceEntries {
		if row.DeletedAt == nil && slices.Contains(reportIDs, row.DisturbanceReportID) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *Store) CreateDisturbanceEntry(ctx context.Context, row *domain.DisturbanceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row.ID = m.id()
	if row.UUID == "" {
		row.UUID = uuid.NewString()
	}
	row.CreatedAt = m.now()
	m.s.disturbanceEntries = append(m.s.disturbanceEntries, *row)
	return nil
}

func (m *Store) UpdateDisturbanceEntry(ctx context.Context, row *domain.DisturbanceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.s.disturbanceEntries {
		if m.s.disturbanceEntries[i].ID == row.ID {
			created, deleted := m.s.disturbanceEntries[i].CreatedAt, m.s.disturbanceEntries[i].DeletedAt
			m.s.disturbanceEntries[i] = *row
			m.s.disturbanceEntries[i].CreatedAt, m.s.disturbanceEntries[i].DeletedAt = created, deleted
			return nil
		}
	}
	return domain.NotFoundError{Resource: "disturbance entry"}
}

func (m *Store) SoftDeleteDisturbanceEntries(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for i := range m.s.disturbanceEntries {
		row := &m.s.disturbanceEntries[i]
		if row.DeletedAt == nil && slices.Contains(ids, row.ID) {
			row.DeletedAt = &now
		}
	}
	return nil
}

// media and polygons

func (m *Store) ListMedia(ctx context.Context, owners []domain.OwnerReference, collections []string) ([]domain.Media, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Media
	for _, media := range m.s.media {
		if hasOwner(owners, media.Owner) && slices.Contains(collections, media.CollectionName) {
			out = append(out, media)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].OrderColumn, out[j].OrderColumn
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Store) ListPolygons(ctx context.Context, owners []domain.OwnerReference) ([]domain.Polygon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Polygon
	for i := len(m.s.polygons) - 1; i >= 0; i-- {
		if hasOwner(owners, m.s.polygons[i].Owner) {
			out = append(out, m.s.polygons[i])
		}
	}
	return out, nil
}

// AddMedia stores an uploaded file record. Uploads are handled outside the engine.
func (m *Store) AddMedia(media domain.Media) domain.Media {
	m.mu.Lock()
	defer m.mu.Unlock()

	media.ID = m.id()
	if media.UUID == "" {
		media.UUID = uuid.NewString()
	}
	if media.CreatedAt.IsZero() {
		media.CreatedAt = m.now()
	}
	m.s.media = append(m.s.media, media)
	return media
}

func (m *Store) AddPolygon(owner domain.OwnerReference) domain.Polygon {
	m.mu.Lock()
	defer m.mu.Unlock()

	polygon := domain.Polygon{ID: m.id(), UUID: uuid.NewString(), Owner: owner, CreatedAt: m.now()}
	m.s.polygons = append(m.s.polygons, polygon)
	return polygon
}
