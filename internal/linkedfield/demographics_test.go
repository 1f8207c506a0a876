package linkedfield_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/linkedfield"
)

func ptr[T any](v T) *T {
	return &v
}

func demographic(t *testing.T, answers domain.Answers, question string) domain.DemographicRecord {
	t.Helper()
	records, ok := answers[question].([]domain.DemographicRecord)
	if !ok || len(records) != 1 {
		t.Fatalf("expected a single demographic record for %s, got %#v", question, answers[question])
	}
	return records[0]
}

func TestDemographicsRoundTripWithDedup(t *testing.T) {
	f := newFixture(t, domain.OwnerProjectReport)
	f.mustSync("pro-rep-rel-paid-project-management", []any{
		map[string]any{
			"collection": "paid-project-management",
			"entries": []any{
				map[string]any{"type": "gender", "subtype": "female", "amount": 3},
				map[string]any{"type": "age", "subtype": "youth", "amount": 8},
				map[string]any{"type": "gender", "subtype": "female", "amount": 5},
			},
		},
	})

	record := demographic(t, f.mustCollect(map[string]string{"q1": "pro-rep-rel-paid-project-management"}), "q1")
	want := []domain.Entry{
		{Type: "gender", Subtype: ptr("female"), Amount: 5},
		{Type: "age", Subtype: ptr("youth"), Amount: 8},
	}
	if diff := cmp.Diff(want, record.Entries); diff != "" {
		t.Fatalf("unexpected entries (-want +got):\n%s", diff)
	}
	if record.UUID == "" || record.Collection != "paid-project-management" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestDemographicsEntriesMatchSubmission(t *testing.T) {
	f := newFixture(t, domain.OwnerSiteReport)
	key := "site-rep-rel-paid-site-establishment"
	f.mustSync(key, []any{map[string]any{"entries": []any{
		map[string]any{"type": "gender", "subtype": "male", "amount": 2},
		map[string]any{"type": "caste", "subtype": "marginalized", "amount": 1},
	}}})
	before := demographic(t, f.mustCollect(map[string]string{"q1": key}), "q1")

	f.mustSync(key, []any{map[string]any{"entries": []any{
		map[string]any{"type": "gender", "subtype": "male", "amount": 4},
		map[string]any{"type": "age", "subtype": "elder", "amount": 1},
	}}})
	after := demographic(t, f.mustCollect(map[string]string{"q1": key}), "q1")

	if after.UUID != before.UUID {
		t.Fatalf("expected the parent to be reused, got %s and %s", before.UUID, after.UUID)
	}
	want := []domain.Entry{
		{Type: "gender", Subtype: ptr("male"), Amount: 4},
		{Type: "age", Subtype: ptr("elder"), Amount: 1},
	}
	if diff := cmp.Diff(want, after.Entries); diff != "" {
		t.Fatalf("persisted entries do not match submission (-want +got):\n%s", diff)
	}
}

func TestDemographicsEmptySubmissionRemovesParent(t *testing.T) {
	f := newFixture(t, domain.OwnerProjectReport)
	key := "pro-rep-rel-all-beneficiaries"
	f.mustSync(key, []any{map[string]any{"entries": []any{map[string]any{"type": "gender", "subtype": "female", "amount": 1}}}})
	first := demographic(t, f.mustCollect(map[string]string{"q1": key}), "q1")

	f.mustSync(key, []any{})
	answers := f.mustCollect(map[string]string{"q1": key})
	if _, present := answers["q1"]; present {
		t.Fatalf("expected no answer after clearing, got %#v", answers["q1"])
	}
	if leftover := f.store.DemographicEntries(first.UUID); len(leftover) != 0 {
		t.Fatalf("expected entries to go with their parent, got %+v", leftover)
	}

	f.mustSync(key, []any{map[string]any{"entries": []any{}}})
	again := demographic(t, f.mustCollect(map[string]string{"q1": key}), "q1")
	if again.UUID == first.UUID {
		t.Fatalf("expected a new parent after the old one was deleted")
	}
	if len(again.Entries) != 0 {
		t.Fatalf("expected the new parent to start empty, got %+v", again.Entries)
	}
}

func TestDemographicsRejectsMultipleRecords(t *testing.T) {
	f := newFixture(t, domain.OwnerProjectReport)
	_, err := f.sync("pro-rep-rel-all-beneficiaries", []any{
		map[string]any{"entries": []any{}},
		map[string]any{"entries": []any{}},
	}, false)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDemographicsRejectsNegativeAmount(t *testing.T) {
	f := newFixture(t, domain.OwnerProjectReport)
	key := "pro-rep-rel-all-beneficiaries"
	_, err := f.sync(key, []any{map[string]any{"entries": []any{
		map[string]any{"type": "gender", "subtype": "female", "amount": -2},
	}}}, false)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	answers := f.mustCollect(map[string]string{"q1": key})
	if _, present := answers["q1"]; present {
		t.Fatalf("expected nothing to be written, got %#v", answers["q1"])
	}
}

func TestAggregateRoundTrip(t *testing.T) {
	f := newFixture(t, domain.OwnerProjectReport)
	questions := map[string]string{
		"agg": "pro-rep-workdays-paid-aggregate",
		"rel": "pro-rep-rel-paid-project-management",
	}
	f.mustSync("pro-rep-workdays-paid-aggregate", float64(12))

	answers := f.mustCollect(questions)
	if answers["agg"] != 12 {
		t.Fatalf("expected aggregate 12, got %v", answers["agg"])
	}
	want := []domain.Entry{
		{Type: "gender", Subtype: ptr("unknown"), Amount: 12},
		{Type: "age", Subtype: ptr("unknown"), Amount: 12},
	}
	if diff := cmp.Diff(want, demographic(t, answers, "rel").Entries); diff != "" {
		t.Fatalf("unexpected aggregate entries (-want +got):\n%s", diff)
	}

	f.mustSync("pro-rep-workdays-paid-aggregate", 7)
	if got := f.mustCollect(questions)["agg"]; got != 7 {
		t.Fatalf("expected aggregate 7, got %v", got)
	}

	parent := demographic(t, f.mustCollect(questions), "rel").UUID
	f.mustSync("pro-rep-workdays-paid-aggregate", nil)
	if leftover := f.store.DemographicEntries(parent); len(leftover) != 0 {
		t.Fatalf("expected aggregate entries to be removed, got %+v", leftover)
	}
	answers = f.mustCollect(questions)
	if answers["agg"] != 0 {
		t.Fatalf("expected aggregate 0 after clearing, got %v", answers["agg"])
	}
	if _, present := answers["rel"]; present {
		t.Fatalf("expected demographic to be removed, got %#v", answers["rel"])
	}
}

func TestAggregateDoesNotOverwriteBreakdown(t *testing.T) {
	f := newFixture(t, domain.OwnerProjectReport)
	f.mustSync("pro-rep-rel-paid-project-management", []any{map[string]any{"entries": []any{
		map[string]any{"type": "gender", "subtype": "female", "amount": 3},
		map[string]any{"type": "gender", "subtype": "male", "amount": 2},
		map[string]any{"type": "age", "subtype": "youth", "amount": 5},
	}}})

	_, err := f.sync("pro-rep-workdays-paid-aggregate", 10, false)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := f.mustCollect(map[string]string{"agg": "pro-rep-workdays-paid-aggregate"})["agg"]; got != 5 {
		t.Fatalf("expected breakdown total 5 to survive, got %v", got)
	}
}

func TestAggregateRejectsInvalidValues(t *testing.T) {
	f := newFixture(t, domain.OwnerProjectReport)
	for _, value := range []any{-1, 2.5, "ten"} {
		if _, err := f.sync("pro-rep-workdays-paid-aggregate", value, false); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error for %v, got %v", value, err)
		}
	}
}

func TestAggregateIgnoresHiddenParent(t *testing.T) {
	f := newFixture(t, domain.OwnerProjectReport)
	_, err := f.sync("pro-rep-rel-paid-project-management", []any{map[string]any{"entries": []any{
		map[string]any{"type": "gender", "subtype": "female", "amount": 4},
	}}}, true)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if got := f.mustCollect(map[string]string{"agg": "pro-rep-workdays-paid-aggregate"})["agg"]; got != 0 {
		t.Fatalf("expected hidden demographic to be ignored, got %v", got)
	}
}

func TestDescriptionIsSharedAcrossCollections(t *testing.T) {
	f := newFixture(t, domain.OwnerProjectReport)
	questions := map[string]string{
		"both": "pro-rep-other-workdays-description",
		"paid": "pro-rep-paid-other-activities-description",
	}
	answers := f.mustCollect(questions)
	if answers["both"] != nil || answers["paid"] != nil {
		t.Fatalf("expected no description yet, got %v", answers)
	}

	f.mustSync("pro-rep-other-workdays-description", "tree nursery upkeep")
	answers = f.mustCollect(questions)
	if answers["both"] != "tree nursery upkeep" || answers["paid"] != "tree nursery upkeep" {
		t.Fatalf("expected description on every sibling, got %v", answers)
	}

	if _, err := f.sync("pro-rep-other-workdays-description", 3, false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	f.mustSync("pro-rep-other-workdays-description", "")
	if got := f.mustCollect(questions)["both"]; got != nil {
		t.Fatalf("expected description to be cleared, got %v", got)
	}
}

func TestVirtualDemographicFieldsNeedDemographicOwner(t *testing.T) {
	f := newFixture(t, domain.OwnerDisturbanceReport)
	model := f.models[domain.OwnerDisturbanceReport]
	registry := linkedfield.NewRegistry(f.store)

	for _, key := range []string{"pro-rep-workdays-paid-aggregate", "pro-rep-other-workdays-description"} {
		field := f.field(key)
		field.ModelType = domain.OwnerDisturbanceReport.ModelType()

		_, err := registry.SyncField(context.Background(), model, field, "q1", 3, false)
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", key, err)
		}
	}
}
