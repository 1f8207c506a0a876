package repository

import (
	"context"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/linkedfield"
)

// recorder collects the statements a dry run session builds.
type recorder struct {
	mu  sync.Mutex
	sql []string
}

func (r *recorder) capture(db *gorm.DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sql = append(r.sql, db.Dialector.Explain(db.Statement.SQL.String(), db.Statement.Vars...))
}

func (r *recorder) find(t *testing.T, table string) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sql := range r.sql {
		if strings.Contains(sql, `"`+table+`"`) {
			return sql
		}
	}
	t.Fatalf("no statement on %s in %v", table, r.sql)
	return ""
}

func newDryRunStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=formsync dbname=formsync sslmode=disable"}), &gorm.Config{
		DryRun:                 true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		t.Fatalf("open dry run session: %v", err)
	}
	rec := &recorder{}
	if err := db.Callback().Query().After("gorm:query").Register("formsync:capture", rec.capture); err != nil {
		t.Fatalf("register query capture: %v", err)
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("formsync:capture", rec.capture); err != nil {
		t.Fatalf("register delete capture: %v", err)
	}
	return NewStore(db), rec
}

func TestOwnersBuildsTuples(t *testing.T) {
	store, rec := newDryRunStore(t)
	refs := []domain.OwnerReference{
		{Kind: domain.OwnerSite, ID: 3},
		{Kind: domain.OwnerProjectReport, ID: 4},
	}

	if _, err := store.ListPolymorphic(context.Background(), domain.ResourceTreeSpecies, refs, []string{"tree-planted"}); err != nil {
		t.Fatalf("list polymorphic: %v", err)
	}
	sql := rec.find(t, "polymorphic_rows")
	for _, want := range []string{
		`resource = 'treeSpecies'`,
		`(owner_type, owner_id) IN (('site',3),('project-report',4))`,
		`collection IN ('tree-planted')`,
		`"polymorphic_rows"."deleted_at" IS NULL`,
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected %q in %s", want, sql)
		}
	}
}

func TestListDemographicsScopesOwnersAndTypes(t *testing.T) {
	store, rec := newDryRunStore(t)
	refs := []domain.OwnerReference{{Kind: domain.OwnerOrganisation, ID: 1}}

	if _, err := store.ListDemographics(context.Background(), refs, []string{"workdays", "restoration-partners"}); err != nil {
		t.Fatalf("list demographics: %v", err)
	}
	sql := rec.find(t, "demographics")
	for _, want := range []string{
		`(owner_type, owner_id) IN (('organisation',1))`,
		`type IN ('workdays','restoration-partners')`,
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected %q in %s", want, sql)
		}
	}
}

func TestFinanceScope(t *testing.T) {
	organisation, report := int64(7), int64(9)
	tests := []struct {
		name    string
		scope   linkedfield.FinanceScope
		want    []string
		notWant string
	}{
		{
			name:    "organisation",
			scope:   linkedfield.FinanceScope{OrganisationID: &organisation},
			want:    []string{"organisation_id = 7", "financial_report_id IS NULL"},
			notWant: "organisation_id IS NULL",
		},
		{
			name:    "financial report",
			scope:   linkedfield.FinanceScope{OrganisationID: &organisation, FinancialReportID: &report},
			want:    []string{"organisation_id = 7", "financial_report_id = 9"},
			notWant: "financial_report_id IS NULL",
		},
		{
			name:    "unowned",
			scope:   linkedfield.FinanceScope{},
			want:    []string{"organisation_id IS NULL", "financial_report_id IS NULL"},
			notWant: "organisation_id = ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, rec := newDryRunStore(t)
			if _, err := store.ListFundingTypes(context.Background(), tt.scope); err != nil {
				t.Fatalf("list funding types: %v", err)
			}
			sql := rec.find(t, "funding_types")
			for _, want := range tt.want {
				if !strings.Contains(sql, want) {
					t.Fatalf("expected %q in %s", want, sql)
				}
			}
			if strings.Contains(sql, tt.notWant) {
				t.Fatalf("unexpected %q in %s", tt.notWant, sql)
			}
		})
	}
}

func TestSoftDeleteDemographicsMarksRows(t *testing.T) {
	store, rec := newDryRunStore(t)
	if err := store.SoftDeleteDemographics(context.Background(), []int64{5, 6}); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	sql := rec.find(t, "demographics")
	if !strings.HasPrefix(sql, `UPDATE "demographics" SET "deleted_at"=`) || !strings.Contains(sql, "id IN (5,6)") {
		t.Fatalf("expected a soft delete of ids 5 and 6, got %s", sql)
	}
}
