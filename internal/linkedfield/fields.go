package linkedfield

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/totegamma/restoration-forms/internal/domain"
)

const (
	entryTypeGender = "gender"
	entryTypeAge    = "age"
	subtypeUnknown  = "unknown"
)

type propertyQuestion struct {
	kind     domain.OwnerKind
	property string
	question string
}

type virtualQuestion struct {
	kind     domain.OwnerKind
	virtual  domain.VirtualField
	question string
}

// fieldCollector passes scalar properties through and computes virtual fields.
type fieldCollector struct {
	properties []propertyQuestion
	virtuals   []virtualQuestion
}

func newFieldCollector() *fieldCollector {
	return &fieldCollector{}
}

func (c *fieldCollector) register(field domain.LinkedFieldConfig, kind domain.OwnerKind, questionID string) error {
	if field.Virtual == nil {
		if field.Property == "" {
			return &domain.ConfigurationError{Field: field.Key, Reason: "property field without property name"}
		}
		c.properties = append(c.properties, propertyQuestion{kind: kind, property: field.Property, question: questionID})
		return nil
	}

	virtual := *field.Virtual
	switch virtual.Kind {
	case domain.VirtualDemographicsAggregate:
		if virtual.Collection == "" || virtual.DemographicsType == "" {
			return &domain.ConfigurationError{Field: field.Key, Reason: "demographics aggregate without type or collection"}
		}
	case domain.VirtualDemographicsDescription:
		if len(virtual.Collections) == 0 || virtual.DemographicsType == "" {
			return &domain.ConfigurationError{Field: field.Key, Reason: "demographics description without type or collections"}
		}
	case domain.VirtualProjectBoundary:
	default:
		return &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("unknown virtual field %q", virtual.Kind)}
	}
	if virtual.Kind != domain.VirtualProjectBoundary && !supportsDemographics(kind) {
		return &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("demographics cannot be owned by %s", kind)}
	}
	c.virtuals = append(c.virtuals, virtualQuestion{kind: kind, virtual: virtual, question: questionID})
	return nil
}

func (c *fieldCollector) Collect(ctx context.Context, store Store, models domain.FormModels) (domain.Answers, error) {
	answers := make(domain.Answers)
	for _, p := range c.properties {
		model, err := models.Require(p.kind)
		if err != nil {
			return nil, err
		}
		answers[p.question] = model.Property(p.property)
	}
	if len(c.virtuals) == 0 {
		return answers, nil
	}

	var demographicOwners, polygonOwners ownerSet
	var types stringSet
	for _, v := range c.virtuals {
		model, err := models.Require(v.kind)
		if err != nil {
			return nil, err
		}
		if v.virtual.Kind == domain.VirtualProjectBoundary {
			polygonOwners.add(model.Owner())
			continue
		}
		demographicOwners.add(model.Owner())
		types.add(v.virtual.DemographicsType)
	}

	var parents []domain.Demographic
	if len(demographicOwners.owners) > 0 {
		var err error
		parents, err = store.ListDemographics(ctx, demographicOwners.owners, types.values)
		if err != nil {
			return nil, errors.Wrap(err, "list demographics")
		}
	}
	latestPolygon := make(map[domain.OwnerReference]string)
	if len(polygonOwners.owners) > 0 {
		polygons, err := store.ListPolygons(ctx, polygonOwners.owners)
		if err != nil {
			return nil, errors.Wrap(err, "list polygons")
		}
		for _, polygon := range polygons {
			if _, seen := latestPolygon[polygon.Owner]; !seen {
				latestPolygon[polygon.Owner] = polygon.UUID
			}
		}
	}

	for _, v := range c.virtuals {
		owner := models[v.kind].Owner()
		switch v.virtual.Kind {
		case domain.VirtualDemographicsAggregate:
			answers[v.question] = aggregateOf(parents, owner, v.virtual)
		case domain.VirtualDemographicsDescription:
			answers[v.question] = descriptionOf(parents, owner, v.virtual)
		case domain.VirtualProjectBoundary:
			if id, ok := latestPolygon[owner]; ok {
				answers[v.question] = id
			} else {
				answers[v.question] = nil
			}
		}
	}
	return answers, nil
}

func virtualScope(kind domain.OwnerKind, virtual domain.VirtualField, collection string) demographicScope {
	return demographicScope{kind: kind, domain: demographicsDomain, typ: virtual.DemographicsType, collection: collection}
}

// aggregateOf sums the gender entries of the first visible parent.
func aggregateOf(parents []domain.Demographic, owner domain.OwnerReference, virtual domain.VirtualField) int {
	scope := virtualScope(owner.Kind, virtual, virtual.Collection)
	for _, parent := range parents {
		if !scope.matches(owner, parent) || parent.Hidden {
			continue
		}
		total := 0
		for _, entry := range parent.Entries {
			if entry.Type == entryTypeGender {
				total += entry.Amount
			}
		}
		return total
	}
	return 0
}

func descriptionOf(parents []domain.Demographic, owner domain.OwnerReference, virtual domain.VirtualField) any {
	for _, collection := range virtual.Collections {
		scope := virtualScope(owner.Kind, virtual, collection)
		for _, parent := range parents {
			if scope.matches(owner, parent) && parent.Description != nil {
				return *parent.Description
			}
		}
	}
	return nil
}

func (c *fieldCollector) SyncField(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any, hidden bool) ([]domain.Warning, error) {
	if field.Virtual == nil {
		if field.Property == "" {
			return nil, &domain.ConfigurationError{Field: field.Key, Reason: "property field without property name"}
		}
		model.SetProperty(field.Property, value)
		err := tx.UpdateProperties(ctx, model.Owner(), map[string]any{field.Property: value})
		return nil, errors.Wrapf(err, "update %s.%s", model.Kind, field.Property)
	}

	if field.Virtual.Kind != domain.VirtualProjectBoundary && !supportsDemographics(model.Kind) {
		return nil, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("demographics cannot be owned by %s", model.Kind)}
	}
	switch field.Virtual.Kind {
	case domain.VirtualDemographicsAggregate:
		return nil, syncAggregate(ctx, tx, model, field, value)
	case domain.VirtualDemographicsDescription:
		return nil, syncDescription(ctx, tx, model, field, value)
	case domain.VirtualProjectBoundary:
		// written by the polygon collaborator
		return nil, nil
	}
	return nil, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("unknown virtual field %q", field.Virtual.Kind)}
}

func isAggregateShape(entries []domain.DemographicEntry) bool {
	if len(entries) != 2 {
		return false
	}
	var gender, age bool
	for _, e := range entries {
		if optionalString(e.Subtype) != subtypeUnknown || optionalString(e.Name) != "" {
			return false
		}
		switch e.Type {
		case entryTypeGender:
			gender = true
		case entryTypeAge:
			age = true
		}
	}
	return gender && age
}

// syncAggregate stores a single number as an unknown gender and unknown age entry pair.
func syncAggregate(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any) error {
	virtual := *field.Virtual
	scope := virtualScope(model.Kind, virtual, virtual.Collection)
	parent, err := loadDemographic(ctx, tx, model.Owner(), scope)
	if err != nil {
		return err
	}

	if value == nil {
		if parent == nil {
			return nil
		}
		return removeDemographic(ctx, tx, parent)
	}

	amount, ok := toInteger(value)
	if !ok {
		return &domain.ValidationError{Question: field.Key, Reason: "aggregate must be an integer"}
	}
	if amount < 0 {
		return &domain.ValidationError{Question: field.Key, Reason: "aggregate must not be negative"}
	}
	if parent != nil && len(parent.Entries) > 0 && !isAggregateShape(parent.Entries) {
		return &domain.ValidationError{Question: field.Key, Reason: "existing demographic breakdown cannot be replaced by an aggregate"}
	}

	parent, err = ensureDemographic(ctx, tx, model.Owner(), scope, parent, false)
	if err != nil {
		return err
	}
	return syncEntries(ctx, tx, parent, []domain.Entry{
		{Type: entryTypeGender, Subtype: stringPtr(subtypeUnknown), Amount: amount},
		{Type: entryTypeAge, Subtype: stringPtr(subtypeUnknown), Amount: amount},
	})
}

// syncDescription writes the same description onto every sibling collection.
func syncDescription(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any) error {
	var description *string
	switch v := value.(type) {
	case nil:
	case string:
		if v != "" {
			description = &v
		}
	default:
		return &domain.ValidationError{Question: field.Key, Reason: "description must be a string"}
	}

	virtual := *field.Virtual
	parents, err := tx.ListDemographics(ctx, []domain.OwnerReference{model.Owner()}, []string{virtual.DemographicsType})
	if err != nil {
		return errors.Wrap(err, "list demographics")
	}
	for _, collection := range virtual.Collections {
		scope := virtualScope(model.Kind, virtual, collection)
		parent := findDemographic(parents, model.Owner(), scope)
		if parent == nil {
			if description == nil {
				continue
			}
			if parent, err = ensureDemographic(ctx, tx, model.Owner(), scope, nil, false); err != nil {
				return err
			}
		}
		if sameOptional(parent.Description, description) {
			continue
		}
		parent.Description = description
		if err := tx.UpdateDemographic(ctx, parent); err != nil {
			return errors.Wrap(err, "update demographic description")
		}
	}
	return nil
}
