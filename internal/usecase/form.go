package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/linkedfield"
	"github.com/totegamma/restoration-forms/internal/utils"
)

var tracer = otel.Tracer("usecase")

// ModelRefs maps model types such as "sites" to the uuid of the entity a form is answered for.
type ModelRefs map[string]string

type SyncInput struct {
	Models  ModelRefs       `json:"models"`
	Answers map[string]any  `json:"answers"`
	Hidden  map[string]bool `json:"hidden"`
}

type SyncResult struct {
	Questions []string         `json:"questions"`
	Warnings  []domain.Warning `json:"warnings"`
}

type Option func(*FormUsecase)

func WithAnswerCache(cache AnswerCache) Option {
	return func(uc *FormUsecase) {
		uc.cache = cache
	}
}

func WithSignal(signal SignalPublisher) Option {
	return func(uc *FormUsecase) {
		uc.signal = signal
	}
}

// WithConcurrency bounds the collectors reading at once during Collect.
func WithConcurrency(n int) Option {
	return func(uc *FormUsecase) {
		uc.concurrency = n
	}
}

type FormUsecase struct {
	store    linkedfield.Store
	forms    FormRepository
	entities EntityRepository
	table    *domain.LinkedFieldTable

	concurrency int
	cache       AnswerCache
	signal      SignalPublisher
}

func NewFormUsecase(store linkedfield.Store, forms FormRepository, entities EntityRepository, table *domain.LinkedFieldTable, opts ...Option) *FormUsecase {
	uc := &FormUsecase{
		store:    store,
		forms:    forms,
		entities: entities,
		table:    table,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type linkedQuestion struct {
	question domain.Question
	field    domain.LinkedFieldConfig
	kind     domain.OwnerKind
}

// linkedQuestions resolves the questions of form that carry a linked field key, in form order.
func (uc *FormUsecase) linkedQuestions(form domain.Form) ([]linkedQuestion, error) {
	questions := slices.Clone(form.Questions)
	slices.SortStableFunc(questions, func(a, b domain.Question) int {
		return a.Order - b.Order
	})

	linked := make([]linkedQuestion, 0, len(questions))
	for _, question := range questions {
		if question.LinkedFieldKey == nil || *question.LinkedFieldKey == "" {
			continue
		}
		field, err := uc.table.MustGet(*question.LinkedFieldKey)
		if err != nil {
			return nil, err
		}
		kind, err := field.OwnerKind()
		if err != nil {
			return nil, err
		}
		linked = append(linked, linkedQuestion{question: question, field: field, kind: kind})
	}
	return linked, nil
}

type loadedModels struct {
	models   domain.FormModels
	entities []string
	refs     map[string]string
}

// loadModels loads one entity per model type the linked questions need. Refs the client
// omitted or could not name are validation errors; a stale uuid is a not found error.
func (uc *FormUsecase) loadModels(ctx context.Context, linked []linkedQuestion, refs ModelRefs) (loadedModels, error) {
	for _, modelType := range slices.Sorted(maps.Keys(refs)) {
		if _, err := domain.ParseModelType(modelType); err != nil {
			return loadedModels{}, &domain.ValidationError{Reason: fmt.Sprintf("unknown model type %q", modelType)}
		}
	}

	loaded := loadedModels{
		models: make(domain.FormModels),
		refs:   make(map[string]string),
	}
	for _, lq := range linked {
		if _, ok := loaded.models[lq.kind]; ok {
			continue
		}
		modelType := lq.kind.ModelType()
		id := refs[modelType]
		if id == "" {
			return loadedModels{}, &domain.ValidationError{Question: lq.question.ID, Reason: "form needs a " + modelType + " model"}
		}
		model, err := uc.entities.GetByUUID(ctx, lq.kind, id)
		if err != nil {
			return loadedModels{}, err
		}
		loaded.models[lq.kind] = model
		loaded.refs[modelType] = model.UUID
		loaded.entities = append(loaded.entities, modelType+":"+model.UUID)
	}
	return loaded, nil
}

func (uc *FormUsecase) prepare(ctx context.Context, formID string, refs ModelRefs) (domain.Form, []linkedQuestion, loadedModels, error) {
	form, err := uc.forms.GetForm(ctx, formID)
	if err != nil {
		return domain.Form{}, nil, loadedModels{}, err
	}
	linked, err := uc.linkedQuestions(form)
	if err != nil {
		return domain.Form{}, nil, loadedModels{}, err
	}
	loaded, err := uc.loadModels(ctx, linked, refs)
	if err != nil {
		return domain.Form{}, nil, loadedModels{}, err
	}
	return form, linked, loaded, nil
}

// Collect reads the current answers of every linked question of the form, keyed by question id
// and ordered like the form.
func (uc *FormUsecase) Collect(ctx context.Context, formID string, refs ModelRefs) (utils.OrderedKVMap[any], error) {
	ctx, span := tracer.Start(ctx, "Form.Usecase.Collect")
	defer span.End()
	span.SetAttributes(attribute.String("form", formID))

	form, linked, loaded, err := uc.prepare(ctx, formID, refs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	cached, version, ok := uc.cached(ctx, form.UUID, loaded.entities)
	if ok {
		span.SetAttributes(attribute.Bool("cached", true))
		return cached, nil
	}

	registry := linkedfield.NewRegistry(uc.store, linkedfield.WithConcurrency(uc.concurrency))
	for _, lq := range linked {
		if err := registry.AddField(lq.field, "", lq.question.ID); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	answers := make(domain.Answers)
	if err := registry.Collect(ctx, answers, loaded.models); err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := make(utils.OrderedKVMap[any], len(answers))
	for i, lq := range linked {
		if value, ok := answers[lq.question.ID]; ok {
			result[lq.question.ID] = utils.OrderedKV[any]{Value: value, Order: int64(i)}
		}
	}
	uc.remember(ctx, version, result)
	return result, nil
}

// cached looks the snapshot up before anything is read from the store, so the returned version
// predates the read and a sync committing meanwhile leaves it behind.
func (uc *FormUsecase) cached(ctx context.Context, form string, entities []string) (utils.OrderedKVMap[any], string, bool) {
	if uc.cache == nil {
		return nil, "", false
	}
	snapshot, version, err := uc.cache.Get(ctx, form, entities)
	if err != nil {
		slog.WarnContext(ctx, "answer cache read failed", slog.String("error", err.Error()), slog.String("module", "usecase"))
		return nil, "", false
	}
	if snapshot == nil {
		return nil, version, false
	}
	var answers utils.OrderedKVMap[any]
	if err := json.Unmarshal(snapshot, &answers); err != nil {
		slog.WarnContext(ctx, "answer cache holds an unreadable snapshot", slog.String("error", err.Error()), slog.String("module", "usecase"))
		return nil, version, false
	}
	return answers, version, true
}

func (uc *FormUsecase) remember(ctx context.Context, version string, answers utils.OrderedKVMap[any]) {
	if uc.cache == nil || version == "" {
		return
	}
	snapshot, err := json.Marshal(answers)
	if err == nil {
		err = uc.cache.Set(ctx, version, snapshot)
	}
	if err != nil {
		slog.WarnContext(ctx, "answer cache write failed", slog.String("error", err.Error()), slog.String("module", "usecase"))
	}
}

// Sync writes every submitted linked answer back, question by question in form order. Questions
// absent from the submission are left untouched; each question is its own unit of work, so a
// failure keeps the questions synced before it.
func (uc *FormUsecase) Sync(ctx context.Context, formID string, input SyncInput) (SyncResult, error) {
	ctx, span := tracer.Start(ctx, "Form.Usecase.Sync")
	defer span.End()
	span.SetAttributes(attribute.String("form", formID))

	form, linked, loaded, err := uc.prepare(ctx, formID, input.Models)
	if err != nil {
		span.RecordError(err)
		return SyncResult{}, err
	}

	registry := linkedfield.NewRegistry(uc.store)
	result := SyncResult{Questions: []string{}, Warnings: []domain.Warning{}}
	defer func() {
		if len(result.Questions) > 0 {
			uc.announce(ctx, form, loaded, result)
		}
	}()

	for _, lq := range linked {
		value, ok := input.Answers[lq.question.ID]
		if !ok {
			continue
		}
		model, err := loaded.models.Require(lq.kind)
		if err != nil {
			return result, err
		}
		hidden := input.Hidden[lq.question.ID]

		var warnings []domain.Warning
		if lq.field.ResourceKind == domain.ResourceRelation {
			warnings, err = registry.SyncRelation(ctx, model, lq.field, lq.question.ID, value, hidden)
		} else {
			warnings, err = registry.SyncField(ctx, model, lq.field, lq.question.ID, value, hidden)
		}
		if err != nil {
			span.RecordError(err)
			return result, err
		}
		result.Questions = append(result.Questions, lq.question.ID)
		result.Warnings = append(result.Warnings, warnings...)
	}

	for _, warning := range result.Warnings {
		slog.WarnContext(
			ctx, warning.Message,
			slog.String("question", warning.Question),
			slog.String("resource", warning.Resource),
			slog.String("module", "usecase"),
		)
	}
	return result, nil
}

// ClearRelations removes every row behind a relation question for the given models.
func (uc *FormUsecase) ClearRelations(ctx context.Context, formID, questionID string, refs ModelRefs) error {
	ctx, span := tracer.Start(ctx, "Form.Usecase.ClearRelations")
	defer span.End()

	form, linked, loaded, err := uc.prepare(ctx, formID, refs)
	if err != nil {
		span.RecordError(err)
		return err
	}
	idx := slices.IndexFunc(linked, func(lq linkedQuestion) bool { return lq.question.ID == questionID })
	if idx < 0 {
		return domain.NotFoundError{Resource: "question"}
	}
	lq := linked[idx]
	if lq.field.ResourceKind != domain.ResourceRelation {
		return &domain.ValidationError{Question: questionID, Reason: "question is not linked to a relation"}
	}
	model, err := loaded.models.Require(lq.kind)
	if err != nil {
		return err
	}

	registry := linkedfield.NewRegistry(uc.store)
	if err := registry.ClearRelations(ctx, model, lq.field); err != nil {
		span.RecordError(err)
		return err
	}
	uc.announce(ctx, form, loaded, SyncResult{Questions: []string{questionID}})
	return nil
}

// announce drops cached snapshots of the touched entities and publishes the sync.
func (uc *FormUsecase) announce(ctx context.Context, form domain.Form, loaded loadedModels, result SyncResult) {
	if uc.cache != nil {
		if err := uc.cache.Invalidate(ctx, loaded.entities); err != nil {
			slog.ErrorContext(ctx, "answer cache invalidation failed", slog.String("error", err.Error()), slog.String("module", "usecase"))
		}
	}
	if uc.signal != nil {
		event := domain.FormSynced{
			Form:      form.UUID,
			Models:    loaded.refs,
			Questions: result.Questions,
			Warnings:  result.Warnings,
		}
		if err := uc.signal.Publish(ctx, event); err != nil {
			slog.WarnContext(ctx, "failed to publish form sync", slog.String("error", err.Error()), slog.String("module", "usecase"))
		}
	}
}
