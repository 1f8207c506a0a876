package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/infra/memory"
)

type mockAnswerCache struct {
	snapshots   map[string][]byte
	generation  int
	invalidated []string
	beforeSet   func()
}

func (m *mockAnswerCache) version(form string, entities []string) string {
	return fmt.Sprintf("%s|%s@%d", form, strings.Join(entities, ","), m.generation)
}

func (m *mockAnswerCache) Get(ctx context.Context, form string, entities []string) ([]byte, string, error) {
	version := m.version(form, entities)
	return m.snapshots[version], version, nil
}

func (m *mockAnswerCache) Set(ctx context.Context, version string, snapshot []byte) error {
	if hook := m.beforeSet; hook != nil {
		m.beforeSet = nil
		hook()
	}
	if m.snapshots == nil {
		m.snapshots = make(map[string][]byte)
	}
	m.snapshots[version] = snapshot
	return nil
}

func (m *mockAnswerCache) Invalidate(ctx context.Context, entities []string) error {
	m.invalidated = append(m.invalidated, entities...)
	m.generation++
	return nil
}

type mockSignal struct {
	events []domain.FormSynced
}

func (m *mockSignal) Publish(ctx context.Context, event domain.FormSynced) error {
	m.events = append(m.events, event)
	return nil
}

func key(s string) *string {
	return &s
}

type formFixture struct {
	store *memory.Store
	site  *domain.FormModel
	uc    *FormUsecase
	cache *mockAnswerCache
	sig   *mockSignal
}

func newFormFixture(t *testing.T) *formFixture {
	t.Helper()
	table, err := domain.DefaultLinkedFields()
	if err != nil {
		t.Fatalf("load linked fields: %v", err)
	}
	store := memory.NewStore()
	org := store.PutEntity(domain.FormModel{Kind: domain.OwnerOrganisation})
	orgID := org.ID
	site := store.PutEntity(domain.FormModel{Kind: domain.OwnerSite, OrganisationID: &orgID})
	store.PutForm(domain.Form{
		UUID:  "form-1",
		Title: "Site establishment",
		Questions: []domain.Question{
			{ID: "q-trees", LinkedFieldKey: key("site-rel-tree-species"), Order: 2},
			{ID: "q-name", LinkedFieldKey: key("site-name"), Order: 1},
			{ID: "q-free-text", Order: 3},
		},
	})

	cache := &mockAnswerCache{}
	sig := &mockSignal{}
	uc := NewFormUsecase(store, store, store, table, WithAnswerCache(cache), WithSignal(sig), WithConcurrency(2))
	return &formFixture{store: store, site: site, uc: uc, cache: cache, sig: sig}
}

func (f *formFixture) refs() ModelRefs {
	return ModelRefs{"sites": f.site.UUID}
}

func decodeRecords(t *testing.T, value any) []map[string]any {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal answer: %v", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatalf("answer is not a record list: %s", raw)
	}
	return records
}

func TestFormUsecaseSyncThenCollect(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()

	result, err := f.uc.Sync(ctx, "form-1", SyncInput{
		Models: f.refs(),
		Answers: map[string]any{
			"q-name":  "North ridge",
			"q-trees": []any{map[string]any{"name": "oak", "amount": 3.0}},
		},
	})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if diff := cmp.Diff([]string{"q-name", "q-trees"}, result.Questions); diff != "" {
		t.Fatalf("synced questions mismatch (-want +got):\n%s", diff)
	}

	answers, err := f.uc.Collect(ctx, "form-1", f.refs())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if diff := cmp.Diff([]string{"q-name", "q-trees"}, answers.Keys()); diff != "" {
		t.Fatalf("answer order mismatch (-want +got):\n%s", diff)
	}
	if answers["q-name"].Value != "North ridge" {
		t.Fatalf("expected name to round trip, got %v", answers["q-name"].Value)
	}
	trees := decodeRecords(t, answers["q-trees"].Value)
	if len(trees) != 1 || trees[0]["name"] != "oak" || trees[0]["amount"] != 3.0 {
		t.Fatalf("unexpected trees %v", trees)
	}
	if trees[0]["uuid"] == "" || trees[0]["uuid"] == nil {
		t.Fatalf("expected collected tree to carry a uuid")
	}
}

func TestFormUsecaseLeavesAbsentQuestionsUntouched(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()

	_, err := f.uc.Sync(ctx, "form-1", SyncInput{
		Models:  f.refs(),
		Answers: map[string]any{"q-trees": []any{map[string]any{"name": "oak", "amount": 1.0}}},
	})
	if err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	_, err = f.uc.Sync(ctx, "form-1", SyncInput{Models: f.refs(), Answers: map[string]any{"q-name": "Only name"}})
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	answers, err := f.uc.Collect(ctx, "form-1", f.refs())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if trees := decodeRecords(t, answers["q-trees"].Value); len(trees) != 1 {
		t.Fatalf("expected trees to survive a submission without them, got %v", trees)
	}
}

func TestFormUsecaseSyncAnnounces(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()

	if _, err := f.uc.Collect(ctx, "form-1", f.refs()); err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(f.cache.snapshots) != 1 {
		t.Fatalf("expected collect to store a snapshot, got %d", len(f.cache.snapshots))
	}

	_, err := f.uc.Sync(ctx, "form-1", SyncInput{Models: f.refs(), Answers: map[string]any{"q-name": "Renamed"}})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if diff := cmp.Diff([]string{"sites:" + f.site.UUID}, f.cache.invalidated); diff != "" {
		t.Fatalf("invalidated entities mismatch (-want +got):\n%s", diff)
	}
	if len(f.sig.events) != 1 {
		t.Fatalf("expected one event, got %d", len(f.sig.events))
	}
	event := f.sig.events[0]
	if event.Form != "form-1" || event.Models["sites"] != f.site.UUID {
		t.Fatalf("unexpected event %+v", event)
	}
	if diff := cmp.Diff([]string{"q-name"}, event.Questions); diff != "" {
		t.Fatalf("event questions mismatch (-want +got):\n%s", diff)
	}
}

func TestFormUsecaseServesCachedSnapshot(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()

	version := f.cache.version("form-1", []string{"sites:" + f.site.UUID})
	if err := f.cache.Set(ctx, version, []byte(`{"q-name":"cached"}`)); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	answers, err := f.uc.Collect(ctx, "form-1", f.refs())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if answers["q-name"].Value != "cached" {
		t.Fatalf("expected cached snapshot, got %v", answers["q-name"].Value)
	}
}

func TestFormUsecaseSnapshotRacingSyncIsNotServed(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()

	f.cache.beforeSet = func() {
		_, err := f.uc.Sync(ctx, "form-1", SyncInput{Models: f.refs(), Answers: map[string]any{"q-name": "Renamed"}})
		if err != nil {
			t.Fatalf("sync failed: %v", err)
		}
	}
	stale, err := f.uc.Collect(ctx, "form-1", f.refs())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if stale["q-name"].Value == "Renamed" {
		t.Fatalf("expected the first collect to read before the sync")
	}

	fresh, err := f.uc.Collect(ctx, "form-1", f.refs())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if fresh["q-name"].Value != "Renamed" {
		t.Fatalf("expected the synced answer, got %v", fresh["q-name"].Value)
	}
}

func TestFormUsecaseModelErrors(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		refs ModelRefs
		want error
	}{
		{name: "missing model", refs: ModelRefs{}, want: domain.ErrValidation},
		{name: "unknown model type", refs: ModelRefs{"sites": f.site.UUID, "gardens": "x"}, want: domain.ErrValidation},
		{name: "stale uuid", refs: ModelRefs{"sites": "no-such-site"}, want: domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.Collect(ctx, "form-1", tt.refs)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := f.uc.Collect(ctx, "no-such-form", f.refs()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown form, got %v", err)
	}
}

func TestFormUsecaseUnknownLinkedFieldIsConfiguration(t *testing.T) {
	f := newFormFixture(t)
	f.store.PutForm(domain.Form{
		UUID:      "form-broken",
		Questions: []domain.Question{{ID: "q", LinkedFieldKey: key("no-such-field")}},
	})
	_, err := f.uc.Collect(context.Background(), "form-broken", f.refs())
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestFormUsecaseClearRelations(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()

	_, err := f.uc.Sync(ctx, "form-1", SyncInput{
		Models:  f.refs(),
		Answers: map[string]any{"q-trees": []any{map[string]any{"name": "oak", "amount": 1.0}}},
	})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if err := f.uc.ClearRelations(ctx, "form-1", "q-name", f.refs()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for a property question, got %v", err)
	}
	if err := f.uc.ClearRelations(ctx, "form-1", "q-missing", f.refs()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown question, got %v", err)
	}
	if err := f.uc.ClearRelations(ctx, "form-1", "q-trees", f.refs()); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	answers, err := f.uc.Collect(ctx, "form-1", f.refs())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if trees := decodeRecords(t, answers["q-trees"].Value); len(trees) != 0 {
		t.Fatalf("expected no trees after clearing, got %v", trees)
	}
}
