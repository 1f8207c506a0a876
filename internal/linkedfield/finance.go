package linkedfield

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/totegamma/restoration-forms/internal/domain"
)

// financeScopeFor resolves the owner of finance rows: the organisation itself, or a financial
// report of that organisation. Other owner kinds are a configuration error.
func financeScopeFor(field domain.LinkedFieldConfig, model *domain.FormModel) (FinanceScope, error) {
	switch model.Kind {
	case domain.OwnerOrganisation:
		id := model.ID
		return FinanceScope{OrganisationID: &id}, nil
	case domain.OwnerFinancialReport:
		id := model.ID
		return FinanceScope{OrganisationID: model.OrganisationID, FinancialReportID: &id}, nil
	}
	return FinanceScope{}, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("%s cannot be owned by %s", field.Resource, model.Kind)}
}

func supportsFinance(kind domain.OwnerKind) bool {
	return kind == domain.OwnerOrganisation || kind == domain.OwnerFinancialReport
}

// financeOwners tracks the owner kinds registered with a finance collector; a form may
// address the organisation or one of its reports, never both.
type financeOwners struct {
	resource  domain.RelationResource
	questions map[domain.OwnerKind][]string
	order     []domain.OwnerKind
}

func (o *financeOwners) register(field domain.LinkedFieldConfig, kind domain.OwnerKind, questionID string) error {
	if !supportsFinance(kind) {
		return &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("%s cannot be owned by %s", o.resource, kind)}
	}
	if o.questions == nil {
		o.questions = make(map[domain.OwnerKind][]string)
	}
	if _, ok := o.questions[kind]; !ok {
		o.order = append(o.order, kind)
	}
	o.questions[kind] = append(o.questions[kind], questionID)
	return nil
}

// model returns the single registered owner, rejecting organisation and report together.
func (o *financeOwners) model(models domain.FormModels) (*domain.FormModel, error) {
	if len(o.order) > 1 {
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("%s registered for both organisation and financial report", o.resource)}
	}
	return models.Require(o.order[0])
}

type fundingTypeCollector struct {
	owners financeOwners
}

func newFundingTypeCollector() *fundingTypeCollector {
	return &fundingTypeCollector{owners: financeOwners{resource: domain.ResourceFundingTypes}}
}

func (c *fundingTypeCollector) register(field domain.LinkedFieldConfig, kind domain.OwnerKind, questionID string) error {
	return c.owners.register(field, kind, questionID)
}

func (c *fundingTypeCollector) Collect(ctx context.Context, store Store, models domain.FormModels) (domain.Answers, error) {
	model, err := c.owners.model(models)
	if err != nil {
		return nil, err
	}
	scope, err := financeScopeFor(domain.LinkedFieldConfig{Resource: domain.ResourceFundingTypes}, model)
	if err != nil {
		return nil, err
	}
	rows, err := store.ListFundingTypes(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "list funding types")
	}

	records := make([]domain.FundingTypeRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toFundingTypeRecord(row))
	}
	answers := make(domain.Answers)
	for _, question := range c.owners.questions[model.Kind] {
		answers[question] = records
	}
	return answers, nil
}

func toFundingTypeRecord(row domain.FundingType) domain.FundingTypeRecord {
	amount, year := row.Amount, row.Year
	record := domain.FundingTypeRecord{
		UUID:   row.UUID,
		Amount: &amount,
		Year:   &year,
		Type:   stringPtr(row.Type),
	}
	if row.Source != "" {
		record.Source = stringPtr(row.Source)
	}
	return record
}

func sameFundingIdentity(record domain.FundingTypeRecord, row domain.FundingType) bool {
	return *record.Year == row.Year &&
		*record.Type == row.Type &&
		optionalString(record.Source) == row.Source
}

func (c *fundingTypeCollector) SyncRelation(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any, hidden bool) ([]domain.Warning, error) {
	scope, err := financeScopeFor(field, model)
	if err != nil {
		return nil, err
	}
	submitted, err := decodeList[domain.FundingTypeRecord](field.Key, value)
	if err != nil {
		return nil, err
	}
	existing, err := tx.ListFundingTypes(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "list funding types")
	}

	var warnings []domain.Warning
	records := submitted[:0:0]
	for _, record := range submitted {
		if record.Amount == nil || record.Year == nil || record.Type == nil || *record.Type == "" {
			warnings = append(warnings, warnf(domain.ResourceFundingTypes, "skipping funding type %q missing amount, year or type", record.UUID))
			continue
		}
		records = append(records, record)
	}

	if len(submitted) == 0 {
		return warnings, softDeleteFundingTypes(ctx, tx, existing, nil)
	}

	pairs := matchRows(records, existing,
		func(r domain.FundingTypeRecord) string { return r.UUID },
		func(row domain.FundingType) string { return row.UUID },
		sameFundingIdentity,
	)
	for i, record := range records {
		if j := pairs[i]; j >= 0 {
			row := existing[j]
			row.Amount = *record.Amount
			row.Year = *record.Year
			row.Type = *record.Type
			row.Source = optionalString(record.Source)
			if err := tx.UpdateFundingType(ctx, &row); err != nil {
				return warnings, errors.Wrap(err, "update funding type")
			}
			continue
		}
		id, err := freshUUID(ctx, tx, domain.ResourceFundingTypes, record.UUID)
		if err != nil {
			return warnings, err
		}
		row := domain.FundingType{
			UUID:              id,
			OrganisationID:    scope.OrganisationID,
			FinancialReportID: scope.FinancialReportID,
			Source:            optionalString(record.Source),
			Amount:            *record.Amount,
			Year:              *record.Year,
			Type:              *record.Type,
		}
		if err := tx.CreateFundingType(ctx, &row); err != nil {
			return warnings, errors.Wrap(err, "create funding type")
		}
	}
	return warnings, softDeleteFundingTypes(ctx, tx, existing, unclaimed(pairs, len(existing)))
}

func softDeleteFundingTypes(ctx context.Context, tx Store, existing []domain.FundingType, indexes []int) error {
	var ids []int64
	if indexes == nil {
		for _, row := range existing {
			ids = append(ids, row.ID)
		}
	} else {
		for _, j := range indexes {
			ids = append(ids, existing[j].ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return errors.Wrap(tx.SoftDeleteFundingTypes(ctx, ids), "delete funding types")
}

func (c *fundingTypeCollector) ClearRelations(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig) error {
	scope, err := financeScopeFor(field, model)
	if err != nil {
		return err
	}
	return errors.Wrap(tx.PurgeFundingTypes(ctx, scope), "purge funding types")
}

// financialIndicatorCollector syncs yearly indicators and carries the owner's currency and
// financial year start month along with them.
type financialIndicatorCollector struct {
	owners      financeOwners
	collections map[domain.OwnerKind]map[string][]string
}

func newFinancialIndicatorCollector() *financialIndicatorCollector {
	return &financialIndicatorCollector{
		owners:      financeOwners{resource: domain.ResourceFinancialIndicators},
		collections: make(map[domain.OwnerKind]map[string][]string),
	}
}

func (c *financialIndicatorCollector) register(field domain.LinkedFieldConfig, kind domain.OwnerKind, questionID string) error {
	if err := c.owners.register(field, kind, questionID); err != nil {
		return err
	}
	if c.collections[kind] == nil {
		c.collections[kind] = make(map[string][]string)
	}
	c.collections[kind][field.Collection] = append(c.collections[kind][field.Collection], questionID)
	return nil
}

const (
	propertyCurrency      = "currency"
	propertyFinStartMonth = "finStartMonth"
)

func (c *financialIndicatorCollector) Collect(ctx context.Context, store Store, models domain.FormModels) (domain.Answers, error) {
	model, err := c.owners.model(models)
	if err != nil {
		return nil, err
	}
	scope, err := financeScopeFor(domain.LinkedFieldConfig{Resource: domain.ResourceFinancialIndicators}, model)
	if err != nil {
		return nil, err
	}

	var collections stringSet
	for collection := range c.collections[model.Kind] {
		collections.add(collection)
	}
	rows, err := store.ListFinancialIndicators(ctx, scope, collections.values)
	if err != nil {
		return nil, errors.Wrap(err, "list financial indicators")
	}

	currency, _ := model.Property(propertyCurrency).(string)
	startMonth, hasStartMonth := toInteger(model.Property(propertyFinStartMonth))

	grouped := make(map[string][]domain.FinancialIndicatorRecord)
	for _, row := range rows {
		year := row.Year
		record := domain.FinancialIndicatorRecord{
			UUID:        row.UUID,
			Collection:  row.Collection,
			Amount:      row.Amount,
			Year:        &year,
			Description: row.Description,
		}
		if currency != "" {
			record.Currency = stringPtr(currency)
		}
		if hasStartMonth {
			month := startMonth
			record.StartMonth = &month
		}
		grouped[row.Collection] = append(grouped[row.Collection], record)
	}

	answers := make(domain.Answers)
	for collection, questions := range c.collections[model.Kind] {
		records := grouped[collection]
		if records == nil {
			records = []domain.FinancialIndicatorRecord{}
		}
		for _, question := range questions {
			answers[question] = records
		}
	}
	return answers, nil
}

func (c *financialIndicatorCollector) SyncRelation(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any, hidden bool) ([]domain.Warning, error) {
	scope, err := financeScopeFor(field, model)
	if err != nil {
		return nil, err
	}
	submitted, err := decodeList[domain.FinancialIndicatorRecord](field.Key, value)
	if err != nil {
		return nil, err
	}
	existing, err := tx.ListFinancialIndicators(ctx, scope, []string{field.Collection})
	if err != nil {
		return nil, errors.Wrap(err, "list financial indicators")
	}

	var warnings []domain.Warning
	records := submitted[:0:0]
	for _, record := range submitted {
		if record.Collection == "" {
			record.Collection = field.Collection
		}
		if record.Collection != field.Collection {
			warnings = append(warnings, warnf(domain.ResourceFinancialIndicators, "skipping indicator for collection %q while syncing %q", record.Collection, field.Collection))
			continue
		}
		if record.Year == nil {
			warnings = append(warnings, warnf(domain.ResourceFinancialIndicators, "skipping indicator %q without year", record.UUID))
			continue
		}
		records = append(records, record)
	}

	if err := propagateFinanceSettings(ctx, tx, model, field.Key, submitted); err != nil {
		return warnings, err
	}

	pairs := matchRows(records, existing,
		func(r domain.FinancialIndicatorRecord) string { return r.UUID },
		func(row domain.FinancialIndicator) string { return row.UUID },
		func(r domain.FinancialIndicatorRecord, row domain.FinancialIndicator) bool {
			return *r.Year == row.Year && r.Collection == row.Collection
		},
	)
	for i, record := range records {
		if j := pairs[i]; j >= 0 {
			row := existing[j]
			row.Amount = record.Amount
			row.Year = *record.Year
			row.Description = record.Description
			if err := tx.UpdateFinancialIndicator(ctx, &row); err != nil {
				return warnings, errors.Wrap(err, "update financial indicator")
			}
			continue
		}
		id, err := freshUUID(ctx, tx, domain.ResourceFinancialIndicators, record.UUID)
		if err != nil {
			return warnings, err
		}
		row := domain.FinancialIndicator{
			UUID:              id,
			OrganisationID:    scope.OrganisationID,
			FinancialReportID: scope.FinancialReportID,
			Collection:        record.Collection,
			Amount:            record.Amount,
			Year:              *record.Year,
			Description:       record.Description,
		}
		if err := tx.CreateFinancialIndicator(ctx, &row); err != nil {
			return warnings, errors.Wrap(err, "create financial indicator")
		}
	}

	var stale []int64
	for _, j := range unclaimed(pairs, len(existing)) {
		stale = append(stale, existing[j].ID)
	}
	if len(stale) > 0 {
		if err := tx.SoftDeleteFinancialIndicators(ctx, stale); err != nil {
			return warnings, errors.Wrap(err, "delete financial indicators")
		}
	}
	return warnings, nil
}

// propagateFinanceSettings copies the first submitted currency and start month onto the owner.
func propagateFinanceSettings(ctx context.Context, tx Store, model *domain.FormModel, question string, records []domain.FinancialIndicatorRecord) error {
	updates := make(map[string]any)
	for _, record := range records {
		if _, done := updates[propertyCurrency]; !done && record.Currency != nil {
			updates[propertyCurrency] = *record.Currency
		}
		if _, done := updates[propertyFinStartMonth]; !done && record.StartMonth != nil {
			if *record.StartMonth < 1 || *record.StartMonth > 12 {
				return &domain.ValidationError{Question: question, Reason: fmt.Sprintf("start month %d out of range", *record.StartMonth)}
			}
			updates[propertyFinStartMonth] = *record.StartMonth
		}
	}
	if len(updates) == 0 {
		return nil
	}
	for name, value := range updates {
		model.SetProperty(name, value)
	}
	return errors.Wrap(tx.UpdateProperties(ctx, model.Owner(), updates), "update finance settings")
}

func (c *financialIndicatorCollector) ClearRelations(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig) error {
	scope, err := financeScopeFor(field, model)
	if err != nil {
		return err
	}
	return errors.Wrap(tx.PurgeFinancialIndicators(ctx, scope, field.Collection), "purge financial indicators")
}
