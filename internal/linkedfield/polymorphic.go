package linkedfield

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/totegamma/restoration-forms/internal/domain"
)

// polymorphicResource describes a simple relation table owned through an (owner type, owner id) pair.
type polymorphicResource struct {
	name domain.RelationResource
	// matchOn are the attributes identifying a row when the client did not send a known uuid.
	matchOn    []string
	attributes []string
	owners     []domain.OwnerKind
}

var polymorphicResources = map[domain.RelationResource]polymorphicResource{
	domain.ResourceTreeSpecies: {
		name:       domain.ResourceTreeSpecies,
		matchOn:    []string{"name"},
		attributes: []string{"name", "amount", "taxonId"},
		owners: []domain.OwnerKind{
			domain.OwnerProjectPitch, domain.OwnerProject, domain.OwnerSite, domain.OwnerNursery,
			domain.OwnerProjectReport, domain.OwnerSiteReport, domain.OwnerNurseryReport,
		},
	},
	domain.ResourceSeedings: {
		name:       domain.ResourceSeedings,
		matchOn:    []string{"name"},
		attributes: []string{"name", "amount", "weightOfSample", "seedsInSample", "taxonId"},
		owners:     []domain.OwnerKind{domain.OwnerProject, domain.OwnerSite, domain.OwnerSiteReport},
	},
	domain.ResourceInvasives: {
		name:       domain.ResourceInvasives,
		matchOn:    []string{"name"},
		attributes: []string{"name", "type"},
		owners:     []domain.OwnerKind{domain.OwnerSite, domain.OwnerSiteReport},
	},
	domain.ResourceStratas: {
		name:       domain.ResourceStratas,
		matchOn:    []string{"description"},
		attributes: []string{"description", "extent"},
		owners:     []domain.OwnerKind{domain.OwnerSite},
	},
	domain.ResourceOwnershipStakes: {
		name:       domain.ResourceOwnershipStakes,
		matchOn:    []string{"firstName", "lastName"},
		attributes: []string{"firstName", "lastName", "title", "gender", "percentOwnership", "yearOfBirth"},
		owners:     []domain.OwnerKind{domain.OwnerOrganisation},
	},
}

func (r polymorphicResource) supports(kind domain.OwnerKind) bool {
	for _, k := range r.owners {
		if k == kind {
			return true
		}
	}
	return false
}

func (r polymorphicResource) toRecord(row domain.PolymorphicRow) domain.EmbeddedRecord {
	record := domain.EmbeddedRecord{
		"uuid":       row.UUID,
		"collection": row.Collection,
	}
	for _, attr := range r.attributes {
		record[attr] = row.Attributes[attr]
	}
	return record
}

// businessAttributes copies the resource's attributes present in the submitted record.
func (r polymorphicResource) businessAttributes(record domain.EmbeddedRecord) map[string]any {
	attrs := make(map[string]any, len(r.attributes))
	for _, attr := range r.attributes {
		if v, ok := record[attr]; ok {
			attrs[attr] = v
		}
	}
	return attrs
}

func (r polymorphicResource) sameIdentity(record domain.EmbeddedRecord, row domain.PolymorphicRow) bool {
	if len(r.matchOn) == 0 {
		return false
	}
	for _, attr := range r.matchOn {
		submitted, stored := record[attr], row.Attributes[attr]
		if submitted == nil || stored == nil {
			return false
		}
		if !reflect.DeepEqual(normalizeScalar(submitted), normalizeScalar(stored)) {
			return false
		}
	}
	return true
}

// normalizeScalar folds numeric types so that JSON decoded values compare equal to stored ones.
func normalizeScalar(v any) any {
	if i, ok := toInteger(v); ok {
		return float64(i)
	}
	if f, ok := v.(float64); ok {
		return f
	}
	return v
}

type polymorphicScope struct {
	kind       domain.OwnerKind
	collection string
}

// polymorphicCollector serves one resource table for every owner kind and collection registered.
type polymorphicCollector struct {
	resource  polymorphicResource
	questions map[polymorphicScope][]string
	order     []polymorphicScope
}

func newPolymorphicCollector(resource polymorphicResource) *polymorphicCollector {
	return &polymorphicCollector{
		resource:  resource,
		questions: make(map[polymorphicScope][]string),
	}
}

func (c *polymorphicCollector) register(field domain.LinkedFieldConfig, kind domain.OwnerKind, questionID string) error {
	if !c.resource.supports(kind) {
		return &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("%s cannot be owned by %s", c.resource.name, kind)}
	}
	scope := polymorphicScope{kind: kind, collection: field.Collection}
	if _, ok := c.questions[scope]; !ok {
		c.order = append(c.order, scope)
	}
	c.questions[scope] = append(c.questions[scope], questionID)
	return nil
}

func (c *polymorphicCollector) Collect(ctx context.Context, store Store, models domain.FormModels) (domain.Answers, error) {
	var owners ownerSet
	var collections stringSet
	scopeOwner := make(map[polymorphicScope]domain.OwnerReference, len(c.order))
	for _, scope := range c.order {
		model, err := models.Require(scope.kind)
		if err != nil {
			return nil, err
		}
		owners.add(model.Owner())
		collections.add(scope.collection)
		scopeOwner[scope] = model.Owner()
	}

	rows, err := store.ListPolymorphic(ctx, c.resource.name, owners.owners, collections.values)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", c.resource.name)
	}

	type rowKey struct {
		owner      domain.OwnerReference
		collection string
	}
	grouped := make(map[rowKey][]domain.EmbeddedRecord)
	for _, row := range rows {
		key := rowKey{owner: row.Owner, collection: row.Collection}
		grouped[key] = append(grouped[key], c.resource.toRecord(row))
	}

	answers := make(domain.Answers)
	for _, scope := range c.order {
		records := grouped[rowKey{owner: scopeOwner[scope], collection: scope.collection}]
		if records == nil {
			records = []domain.EmbeddedRecord{}
		}
		for _, question := range c.questions[scope] {
			answers[question] = records
		}
	}
	return answers, nil
}

func (c *polymorphicCollector) SyncRelation(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any, hidden bool) ([]domain.Warning, error) {
	if !c.resource.supports(model.Kind) {
		return nil, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("%s cannot be owned by %s", c.resource.name, model.Kind)}
	}
	records, err := decodeEmbedded(field.Key, value)
	if err != nil {
		return nil, err
	}

	existing, err := tx.ListPolymorphic(ctx, c.resource.name, []domain.OwnerReference{model.Owner()}, []string{field.Collection})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", c.resource.name)
	}

	if len(records) == 0 {
		return nil, c.softDelete(ctx, tx, existing, nil)
	}

	var warnings []domain.Warning
	accepted := records[:0:0]
	for _, record := range records {
		if col := record.Collection(); col != "" && col != field.Collection {
			warnings = append(warnings, warnf(c.resource.name, "skipping row for collection %q while syncing %q", col, field.Collection))
			continue
		}
		accepted = append(accepted, record)
	}

	pairs := matchRows(accepted, existing,
		domain.EmbeddedRecord.UUID,
		func(row domain.PolymorphicRow) string { return row.UUID },
		c.resource.sameIdentity,
	)

	for i, record := range accepted {
		attrs := c.resource.businessAttributes(record)
		if j := pairs[i]; j >= 0 {
			row := existing[j]
			merged := make(map[string]any, len(row.Attributes)+len(attrs))
			for k, v := range row.Attributes {
				merged[k] = v
			}
			for k, v := range attrs {
				merged[k] = v
			}
			row.Attributes = merged
			if err := tx.UpdatePolymorphic(ctx, &row); err != nil {
				return warnings, errors.Wrapf(err, "update %s %s", c.resource.name, row.UUID)
			}
			continue
		}

		id, err := freshUUID(ctx, tx, c.resource.name, record.UUID())
		if err != nil {
			return warnings, err
		}
		row := domain.PolymorphicRow{
			UUID:       id,
			Resource:   c.resource.name,
			Owner:      model.Owner(),
			Collection: field.Collection,
			Attributes: attrs,
		}
		if err := tx.CreatePolymorphic(ctx, &row); err != nil {
			return warnings, errors.Wrapf(err, "create %s", c.resource.name)
		}
	}

	return warnings, c.softDelete(ctx, tx, existing, unclaimed(pairs, len(existing)))
}

// softDelete removes existing[indexes], or every existing row when indexes is nil.
func (c *polymorphicCollector) softDelete(ctx context.Context, tx Store, existing []domain.PolymorphicRow, indexes []int) error {
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
	return errors.Wrapf(tx.SoftDeletePolymorphic(ctx, c.resource.name, ids), "delete %s", c.resource.name)
}

func (c *polymorphicCollector) ClearRelations(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig) error {
	existing, err := tx.ListPolymorphic(ctx, c.resource.name, []domain.OwnerReference{model.Owner()}, []string{field.Collection})
	if err != nil {
		return errors.Wrapf(err, "list %s", c.resource.name)
	}
	return c.softDelete(ctx, tx, existing, nil)
}

// freshUUID keeps a client supplied identifier unless any row of resource already carries it.
func freshUUID(ctx context.Context, tx Store, resource domain.RelationResource, submitted string) (string, error) {
	if submitted != "" {
		if _, err := uuid.Parse(submitted); err == nil {
			inUse, err := tx.UUIDInUse(ctx, resource, submitted)
			if err != nil {
				return "", errors.Wrapf(err, "check %s uuid", resource)
			}
			if !inUse {
				return submitted, nil
			}
		}
	}
	return uuid.NewString(), nil
}
