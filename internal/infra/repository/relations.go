package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/infra/database/models"
	"github.com/totegamma/restoration-forms/internal/linkedfield"
)

func (s *Store) ListDemographics(ctx context.Context, refs []domain.OwnerReference, types []string) ([]domain.Demographic, error) {
	if len(refs) == 0 || len(types) == 0 {
		return nil, nil
	}
	var rows []models.Demographic
	err := s.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("(owner_type, owner_id) IN ?", owners(refs)).
		Where("type IN ?", types).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.Demographic, 0, len(rows))
	for _, row := range rows {
		owner, err := ownerOf(row.OwnerType, row.OwnerID)
		if err != nil {
			return nil, err
		}
		entries := make([]domain.DemographicEntry, 0, len(row.Entries))
		for _, e := range row.Entries {
			entries = append(entries, domain.DemographicEntry{
				ID:            e.ID,
				DemographicID: e.DemographicID,
				Type:          e.Type,
				Subtype:       e.Subtype,
				Name:          e.Name,
				Amount:        e.Amount,
			})
		}
		result = append(result, domain.Demographic{
			ID:          row.ID,
			UUID:        row.UUID,
			Owner:       owner,
			Domain:      row.Domain,
			Type:        row.Type,
			Collection:  row.Collection,
			Description: row.Description,
			Hidden:      row.Hidden,
			Entries:     entries,
			CreatedAt:   row.CDate,
			DeletedAt:   deletedAt(row.DeletedAt),
		})
	}
	return result, nil
}

func (s *Store) CreateDemographic(ctx context.Context, demographic *domain.Demographic) error {
	model := models.Demographic{
		UUID:        demographic.UUID,
		OwnerType:   demographic.Owner.Kind.Tag(),
		OwnerID:     demographic.Owner.ID,
		Domain:      demographic.Domain,
		Type:        demographic.Type,
		Collection:  demographic.Collection,
		Description: demographic.Description,
		Hidden:      demographic.Hidden,
	}
	if err := s.db.WithContext(ctx).Omit("Entries").Create(&model).Error; err != nil {
		return err
	}
	demographic.ID = model.ID
	demographic.CreatedAt = model.CDate
	return nil
}

func (s *Store) UpdateDemographic(ctx context.Context, demographic *domain.Demographic) error {
	return s.db.WithContext(ctx).
		Model(&models.Demographic{}).
		Where("id = ?", demographic.ID).
		Updates(map[string]any{
			"hidden":      demographic.Hidden,
			"description": demographic.Description,
		}).Error
}

func (s *Store) SoftDeleteDemographics(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Demographic{}).Error
}

func (s *Store) CreateDemographicEntry(ctx context.Context, entry *domain.DemographicEntry) error {
	model := models.DemographicEntry{
		DemographicID: entry.DemographicID,
		Type:          entry.Type,
		Subtype:       entry.Subtype,
		Name:          entry.Name,
		Amount:        entry.Amount,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	entry.ID = model.ID
	return nil
}

func (s *Store) UpdateDemographicEntry(ctx context.Context, entry *domain.DemographicEntry) error {
	return s.db.WithContext(ctx).
		Model(&models.DemographicEntry{}).
		Where("id = ?", entry.ID).
		Update("amount", entry.Amount).Error
}

func (s *Store) DeleteDemographicEntries(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.DemographicEntry{}).Error
}

// financeScope restricts a query to one organisation or one of its financial reports.
func financeScope(scope linkedfield.FinanceScope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if scope.OrganisationID == nil {
			db = db.Where("organisation_id IS NULL")
		} else {
			db = db.Where("organisation_id = ?", *scope.OrganisationID)
		}
		if scope.FinancialReportID == nil {
			return db.Where("financial_report_id IS NULL")
		}
		return db.Where("financial_report_id = ?", *scope.FinancialReportID)
	}
}

func (s *Store) ListFundingTypes(ctx context.Context, scope linkedfield.FinanceScope) ([]domain.FundingType, error) {
	var rows []models.FundingType
	err := s.db.WithContext(ctx).Scopes(financeScope(scope)).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]domain.FundingType, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.FundingType{
			ID:                row.ID,
			UUID:              row.UUID,
			OrganisationID:    row.OrganisationID,
			FinancialReportID: row.FinancialReportID,
			Source:            row.Source,
			Amount:            row.Amount,
			Year:              row.Year,
			Type:              row.Type,
			CreatedAt:         row.CDate,
			DeletedAt:         deletedAt(row.DeletedAt),
		})
	}
	return result, nil
}

func (s *Store) CreateFundingType(ctx context.Context, row *domain.FundingType) error {
	model := models.FundingType{
		UUID:              row.UUID,
		OrganisationID:    row.OrganisationID,
		FinancialReportID: row.FinancialReportID,
		Source:            row.Source,
		Amount:            row.Amount,
		Year:              row.Year,
		Type:              row.Type,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	row.ID = model.ID
	row.CreatedAt = model.CDate
	return nil
}

func (s *Store) UpdateFundingType(ctx context.Context, row *domain.FundingType) error {
	return s.db.WithContext(ctx).
		Model(&models.FundingType{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"source": row.Source,
			"amount": row.Amount,
			"year":   row.Year,
			"type":   row.Type,
		}).Error
}

func (s *Store) SoftDeleteFundingTypes(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.FundingType{}).Error
}

func (s *Store) PurgeFundingTypes(ctx context.Context, scope linkedfield.FinanceScope) error {
	return s.db.WithContext(ctx).Unscoped().Scopes(financeScope(scope)).Delete(&models.FundingType{}).Error
}

func (s *Store) ListFinancialIndicators(ctx context.Context, scope linkedfield.FinanceScope, collections []string) ([]domain.FinancialIndicator, error) {
	if len(collections) == 0 {
		return nil, nil
	}
	var rows []models.FinancialIndicator
	err := s.db.WithContext(ctx).
		Scopes(financeScope(scope)).
		Where("collection IN ?", collections).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]domain.FinancialIndicator, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.FinancialIndicator{
			ID:                row.ID,
			UUID:              row.UUID,
			OrganisationID:    row.OrganisationID,
			FinancialReportID: row.FinancialReportID,
			Collection:        row.Collection,
			Amount:            row.Amount,
			Year:              row.Year,
			Description:       row.Description,
			CreatedAt:         row.CDate,
			DeletedAt:         deletedAt(row.DeletedAt),
		})
	}
	return result, nil
}

func (s *Store) CreateFinancialIndicator(ctx context.Context, row *domain.FinancialIndicator) error {
	model := models.FinancialIndicator{
		UUID:              row.UUID,
		OrganisationID:    row.OrganisationID,
		FinancialReportID: row.FinancialReportID,
		Collection:        row.Collection,
		Amount:            row.Amount,
		Year:              row.Year,
		Description:       row.Description,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	row.ID = model.ID
	row.CreatedAt = model.CDate
	return nil
}

func (s *Store) UpdateFinancialIndicator(ctx context.Context, row *domain.FinancialIndicator) error {
	return s.db.WithContext(ctx).
		Model(&models.FinancialIndicator{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"amount":      row.Amount,
			"year":        row.Year,
			"description": row.Description,
		}).Error
}

func (s *Store) SoftDeleteFinancialIndicators(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.FinancialIndicator{}).Error
}

func (s *Store) PurgeFinancialIndicators(ctx context.Context, scope linkedfield.FinanceScope, collection string) error {
	return s.db.WithContext(ctx).
		Unscoped().
		Scopes(financeScope(scope)).
		Where("collection = ?", collection).
		Delete(&models.FinancialIndicator{}).Error
}

func (s *Store) ListDisturbanceEntries(ctx context.Context, reportIDs []int64) ([]domain.DisturbanceEntry, error) {
	if len(reportIDs) == 0 {
		return nil, nil
	}
	var rows []models.DisturbanceEntry
	err := s.db.WithContext(ctx).
		Where("disturbance_report_id IN ?", reportIDs).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]domain.DisturbanceEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.DisturbanceEntry{
			ID:                  row.ID,
			UUID:                row.UUID,
			DisturbanceReportID: row.DisturbanceReportID,
			Name:                row.Name,
			InputType:           row.InputType,
			Title:               row.Title,
			Subtitle:            row.Subtitle,
			Value:               row.Value,
			CreatedAt:           row.CDate,
			DeletedAt:           deletedAt(row.DeletedAt),
		})
	}
	return result, nil
}

func (s *Store) CreateDisturbanceEntry(ctx context.Context, row *domain.DisturbanceEntry) error {
	model := models.DisturbanceEntry{
		UUID:                row.UUID,
		DisturbanceReportID: row.DisturbanceReportID,
		Name:                row.Name,
		InputType:           row.InputType,
		Title:               row.Title,
		Subtitle:            row.Subtitle,
		Value:               row.Value,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	row.ID = model.ID
	row.CreatedAt = model.CDate
	return nil
}

func (s *Store) UpdateDisturbanceEntry(ctx context.Context, row *domain.DisturbanceEntry) error {
	return s.db.WithContext(ctx).
		Model(&models.DisturbanceEntry{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"input_type": row.InputType,
			"title":      row.Title,
			"subtitle":   row.Subtitle,
			"value":      row.Value,
		}).Error
}

func (s *Store) SoftDeleteDisturbanceEntries(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.DisturbanceEntry{}).Error
}

func (s *Store) ListMedia(ctx context.Context, refs []domain.OwnerReference, collections []string) ([]domain.Media, error) {
	if len(refs) == 0 || len(collections) == 0 {
		return nil, nil
	}
	var rows []models.Media
	err := s.db.WithContext(ctx).
		Where("(owner_type, owner_id) IN ?", owners(refs)).
		Where("collection_name IN ?", collections).
		Order("order_column ASC NULLS LAST").
		Order("cdate ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]domain.Media, 0, len(rows))
	for _, row := range rows {
		owner, err := ownerOf(row.OwnerType, row.OwnerID)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.Media{
			ID:             row.ID,
			UUID:           row.UUID,
			Owner:          owner,
			CollectionName: row.CollectionName,
			Name:           row.Name,
			FileName:       row.FileName,
			MimeType:       row.MimeType,
			Size:           row.Size,
			URL:            row.URL,
			IsPublic:       row.IsPublic,
			Lat:            row.Lat,
			Lng:            row.Lng,
			OrderColumn:    row.OrderColumn,
			CreatedAt:      row.CDate,
		})
	}
	return result, nil
}

func (s *Store) ListPolygons(ctx context.Context, refs []domain.OwnerReference) ([]domain.Polygon, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	var rows []models.Polygon
	err := s.db.WithContext(ctx).
		Where("(owner_type, owner_id) IN ?", owners(refs)).
		Order("cdate DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]domain.Polygon, 0, len(rows))
	for _, row := range rows {
		owner, err := ownerOf(row.OwnerType, row.OwnerID)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.Polygon{ID: row.ID, UUID: row.UUID, Owner: owner, CreatedAt: row.CDate})
	}
	return result, nil
}
