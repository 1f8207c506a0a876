package linkedfield

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/totegamma/restoration-forms/internal/domain"
)

var tracer = otel.Tracer("linkedfield")

// relationResources fixes the order collectors are created in.
var relationResources = []domain.RelationResource{
	domain.ResourceTreeSpecies,
	domain.ResourceSeedings,
	domain.ResourceInvasives,
	domain.ResourceStratas,
	domain.ResourceOwnershipStakes,
	domain.ResourceDemographics,
	domain.ResourceFundingTypes,
	domain.ResourceFinancialIndicators,
	domain.ResourceDisturbances,
}

// Option configures a Registry.
type Option func(*Registry)

// WithConcurrency bounds the number of collectors reading at once. Zero or less means unbounded.
func WithConcurrency(n int) Option {
	return func(r *Registry) {
		r.concurrency = n
	}
}

// Registry dispatches linked fields of one form to the collectors serving them.
type Registry struct {
	store       Store
	concurrency int

	fields    *fieldCollector
	files     *fileCollector
	relations map[domain.RelationResource]relationCollector

	participating []Collector
	registered    map[Collector]struct{}
}

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:      store,
		fields:     newFieldCollector(),
		files:      newFileCollector(),
		relations:  make(map[domain.RelationResource]relationCollector, len(relationResources)),
		registered: make(map[Collector]struct{}),
	}
	for _, resource := range relationResources {
		switch resource {
		case domain.ResourceDemographics:
			r.relations[resource] = newDemographicsCollector()
		case domain.ResourceFundingTypes:
			r.relations[resource] = newFundingTypeCollector()
		case domain.ResourceFinancialIndicators:
			r.relations[resource] = newFinancialIndicatorCollector()
		case domain.ResourceDisturbances:
			r.relations[resource] = newDisturbanceCollector()
		default:
			r.relations[resource] = newPolymorphicCollector(polymorphicResources[resource])
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// needsCollection reports whether rows of the resource are partitioned by collection name.
func needsCollection(resource domain.RelationResource) bool {
	switch resource {
	case domain.ResourceFundingTypes, domain.ResourceDisturbances:
		return false
	}
	return true
}

func (r *Registry) relationFor(field domain.LinkedFieldConfig) (relationCollector, error) {
	if field.Resource == "" {
		return nil, &domain.ConfigurationError{Field: field.Key, Reason: "relation field without resource"}
	}
	collector, ok := r.relations[field.Resource]
	if !ok {
		return nil, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("unknown relation resource %q", field.Resource)}
	}
	return collector, nil
}

func (r *Registry) collectorFor(field domain.LinkedFieldConfig) (Collector, error) {
	switch field.ResourceKind {
	case domain.ResourceProperty:
		return r.fields, nil
	case domain.ResourceFile:
		return r.files, nil
	case domain.ResourceRelation:
		collector, err := r.relationFor(field)
		if err != nil {
			return nil, err
		}
		if needsCollection(field.Resource) && field.Collection == "" {
			return nil, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("%s relation without collection", field.Resource)}
		}
		return collector, nil
	}
	return nil, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("unknown resource kind %q", field.ResourceKind)}
}

// AddField records that questionID is answered through field for the given model type.
// An empty modelType falls back to the model type of the field.
func (r *Registry) AddField(field domain.LinkedFieldConfig, modelType, questionID string) error {
	if modelType == "" {
		modelType = field.ModelType
	}
	kind, err := domain.ParseModelType(modelType)
	if err != nil {
		return &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("unknown model type %q", modelType)}
	}

	collector, err := r.collectorFor(field)
	if err != nil {
		return err
	}
	if err := collector.register(field, kind, questionID); err != nil {
		return err
	}
	if _, ok := r.registered[collector]; !ok {
		r.registered[collector] = struct{}{}
		r.participating = append(r.participating, collector)
	}
	return nil
}

// Collect fills answers for every registered question. Collectors read concurrently; each one
// returns its own partition and the partitions are merged once all of them finished.
func (r *Registry) Collect(ctx context.Context, answers domain.Answers, models domain.FormModels) error {
	ctx, span := tracer.Start(ctx, "LinkedField.Registry.Collect")
	defer span.End()
	span.SetAttributes(attribute.Int("collectors", len(r.participating)))

	partitions := make([]domain.Answers, len(r.participating))
	group, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		group.SetLimit(r.concurrency)
	}
	for i, collector := range r.participating {
		group.Go(func() error {
			partition, err := collector.Collect(gctx, r.store, models)
			if err != nil {
				return err
			}
			partitions[i] = partition
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		return err
	}

	for _, partition := range partitions {
		for question, value := range partition {
			answers[question] = value
		}
	}
	return nil
}

func checkOwner(model *domain.FormModel, field domain.LinkedFieldConfig) error {
	if model == nil {
		return &domain.ConfigurationError{Field: field.Key, Reason: "no model to sync into"}
	}
	kind, err := field.OwnerKind()
	if err != nil {
		return err
	}
	if model.Kind != kind {
		return &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("field belongs to %s, got %s", kind, model.Kind)}
	}
	return nil
}

// tagError points a validation error raised while decoding a field at the question being synced.
func tagError(err error, field domain.LinkedFieldConfig, question string) error {
	var invalid *domain.ValidationError
	if errors.As(err, &invalid) && (invalid.Question == "" || invalid.Question == field.Key) {
		invalid.Question = question
	}
	return err
}

func tagWarnings(warnings []domain.Warning, question string) []domain.Warning {
	for i := range warnings {
		if warnings[i].Question == "" {
			warnings[i].Question = question
		}
	}
	return warnings
}

// SyncField writes a property or file answer inside one unit of work.
func (r *Registry) SyncField(ctx context.Context, model *domain.FormModel, field domain.LinkedFieldConfig, question string, value any, hidden bool) ([]domain.Warning, error) {
	ctx, span := tracer.Start(ctx, "LinkedField.Registry.SyncField")
	defer span.End()
	span.SetAttributes(attribute.String("field", field.Key))

	var syncer FieldSyncer
	switch field.ResourceKind {
	case domain.ResourceProperty:
		syncer = r.fields
	case domain.ResourceFile:
		syncer = r.files
	default:
		return nil, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("%s field cannot be synced as a field", field.ResourceKind)}
	}
	if err := checkOwner(model, field); err != nil {
		return nil, err
	}

	var warnings []domain.Warning
	err := r.store.Atomic(ctx, func(tx Store) error {
		var err error
		warnings, err = syncer.SyncField(ctx, tx, model, field, value, hidden)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, tagError(err, field, question)
	}
	return tagWarnings(warnings, question), nil
}

// SyncRelation reconciles a submitted record list with the persisted rows inside one unit of work.
func (r *Registry) SyncRelation(ctx context.Context, model *domain.FormModel, field domain.LinkedFieldConfig, question string, value any, hidden bool) ([]domain.Warning, error) {
	ctx, span := tracer.Start(ctx, "LinkedField.Registry.SyncRelation")
	defer span.End()
	span.SetAttributes(attribute.String("field", field.Key), attribute.String("resource", string(field.Resource)))

	syncer, err := r.syncerFor(model, field)
	if err != nil {
		return nil, err
	}

	var warnings []domain.Warning
	err = r.store.Atomic(ctx, func(tx Store) error {
		var err error
		warnings, err = syncer.SyncRelation(ctx, tx, model, field, value, hidden)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, tagError(err, field, question)
	}
	return tagWarnings(warnings, question), nil
}

// ClearRelations removes every row of the field's relation for the model, bypassing reconciliation.
func (r *Registry) ClearRelations(ctx context.Context, model *domain.FormModel, field domain.LinkedFieldConfig) error {
	ctx, span := tracer.Start(ctx, "LinkedField.Registry.ClearRelations")
	defer span.End()

	syncer, err := r.syncerFor(model, field)
	if err != nil {
		return err
	}
	err = r.store.Atomic(ctx, func(tx Store) error {
		return syncer.ClearRelations(ctx, tx, model, field)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *Registry) syncerFor(model *domain.FormModel, field domain.LinkedFieldConfig) (RelationSyncer, error) {
	if field.ResourceKind != domain.ResourceRelation {
		return nil, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("%s field is not a relation", field.ResourceKind)}
	}
	syncer, err := r.relationFor(field)
	if err != nil {
		return nil, err
	}
	if needsCollection(field.Resource) && field.Collection == "" {
		return nil, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("%s relation without collection", field.Resource)}
	}
	if err := checkOwner(model, field); err != nil {
		return nil, err
	}
	return syncer, nil
}
