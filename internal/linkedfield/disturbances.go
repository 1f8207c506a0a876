package linkedfield

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/totegamma/restoration-forms/internal/domain"
)

// disturbanceCollector syncs the named entries of a disturbance report.
type disturbanceCollector struct {
	questions []string
}

func newDisturbanceCollector() *disturbanceCollector {
	return &disturbanceCollector{}
}

func (c *disturbanceCollector) register(field domain.LinkedFieldConfig, kind domain.OwnerKind, questionID string) error {
	if kind != domain.OwnerDisturbanceReport {
		return &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("disturbance entries cannot be owned by %s", kind)}
	}
	c.questions = append(c.questions, questionID)
	return nil
}

func (c *disturbanceCollector) Collect(ctx context.Context, store Store, models domain.FormModels) (domain.Answers, error) {
	report, err := models.Require(domain.OwnerDisturbanceReport)
	if err != nil {
		return nil, err
	}
	rows, err := store.ListDisturbanceEntries(ctx, []int64{report.ID})
	if err != nil {
		return nil, errors.Wrap(err, "list disturbance entries")
	}
	records := make([]domain.DisturbanceEntryRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.DisturbanceEntryRecord{
			UUID:      row.UUID,
			Name:      row.Name,
			InputType: row.InputType,
			Title:     row.Title,
			Subtitle:  row.Subtitle,
			Value:     row.Value,
		})
	}
	answers := make(domain.Answers, len(c.questions))
	for _, question := range c.questions {
		answers[question] = records
	}
	return answers, nil
}

func (c *disturbanceCollector) SyncRelation(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any, hidden bool) ([]domain.Warning, error) {
	if model.Kind != domain.OwnerDisturbanceReport {
		return nil, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("disturbance entries cannot be owned by %s", model.Kind)}
	}
	submitted, err := decodeList[domain.DisturbanceEntryRecord](field.Key, value)
	if err != nil {
		return nil, err
	}
	existing, err := tx.ListDisturbanceEntries(ctx, []int64{model.ID})
	if err != nil {
		return nil, errors.Wrap(err, "list disturbance entries")
	}

	var warnings []domain.Warning
	records := submitted[:0:0]
	for _, record := range submitted {
		if record.Name == "" {
			warnings = append(warnings, warnf(domain.ResourceDisturbances, "skipping disturbance entry %q without name", record.UUID))
			continue
		}
		records = append(records, record)
	}

	pairs := matchRows(records, existing,
		func(r domain.DisturbanceEntryRecord) string { return r.UUID },
		func(row domain.DisturbanceEntry) string { return row.UUID },
		func(r domain.DisturbanceEntryRecord, row domain.DisturbanceEntry) bool { return r.Name == row.Name },
	)
	for i, record := range records {
		if j := pairs[i]; j >= 0 {
			row := existing[j]
			row.InputType = record.InputType
			row.Title = record.Title
			row.Subtitle = record.Subtitle
			row.Value = record.Value
			if err := tx.UpdateDisturbanceEntry(ctx, &row); err != nil {
				return warnings, errors.Wrap(err, "update disturbance entry")
			}
			continue
		}
		id, err := freshUUID(ctx, tx, domain.ResourceDisturbances, record.UUID)
		if err != nil {
			return warnings, err
		}
		row := domain.DisturbanceEntry{
			UUID:                id,
			DisturbanceReportID: model.ID,
			Name:                record.Name,
			InputType:           record.InputType,
			Title:               record.Title,
			Subtitle:            record.Subtitle,
			Value:               record.Value,
		}
		if err := tx.CreateDisturbanceEntry(ctx, &row); err != nil {
			return warnings, errors.Wrap(err, "create disturbance entry")
		}
	}

	var stale []int64
	for _, j := range unclaimed(pairs, len(existing)) {
		stale = append(stale, existing[j].ID)
	}
	if len(stale) > 0 {
		if err := tx.SoftDeleteDisturbanceEntries(ctx, stale); err != nil {
			return warnings, errors.Wrap(err, "delete disturbance entries")
		}
	}
	return warnings, nil
}

func (c *disturbanceCollector) ClearRelations(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig) error {
	_, err := c.SyncRelation(ctx, tx, model, field, nil, false)
	return err
}
