package linkedfield

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/totegamma/restoration-forms/internal/domain"
)

const demographicsDomain = "demographics"

const (
	DemographicsWorkdays              = "workdays"
	DemographicsRestorationPartners   = "restorationPartners"
	DemographicsJobs                  = "jobs"
	DemographicsVolunteers            = "volunteers"
	DemographicsAllBeneficiaries      = "allBeneficiaries"
	DemographicsTrainingBeneficiaries = "trainingBeneficiaries"
)

// demographicCollections maps each collection to the demographics type it belongs to.
var demographicCollections = map[string]string{
	"paid-project-management":      DemographicsWorkdays,
	"volunteer-project-management": DemographicsWorkdays,
	"paid-nursery-operations":      DemographicsWorkdays,
	"volunteer-nursery-operations": DemographicsWorkdays,
	"paid-other-activities":        DemographicsWorkdays,
	"volunteer-other-activities":   DemographicsWorkdays,
	"paid-site-establishment":      DemographicsWorkdays,
	"volunteer-site-establishment": DemographicsWorkdays,
	"paid-site-maintenance":        DemographicsWorkdays,
	"volunteer-site-maintenance":   DemographicsWorkdays,
	"paid-site-monitoring":         DemographicsWorkdays,
	"volunteer-site-monitoring":    DemographicsWorkdays,
	"paid-seed-collection":         DemographicsWorkdays,
	"volunteer-seed-collection":    DemographicsWorkdays,
	"direct-income":                DemographicsRestorationPartners,
	"indirect-income":              DemographicsRestorationPartners,
	"direct-benefits":              DemographicsRestorationPartners,
	"indirect-benefits":            DemographicsRestorationPartners,
	"direct-conservation-payments": DemographicsRestorationPartners,
	"full-time":                    DemographicsJobs,
	"part-time":                    DemographicsJobs,
	"volunteer":                    DemographicsVolunteers,
	"all":                          DemographicsAllBeneficiaries,
	"training":                     DemographicsTrainingBeneficiaries,
}

var demographicOwners = []domain.OwnerKind{
	domain.OwnerOrganisation, domain.OwnerProjectPitch, domain.OwnerProject, domain.OwnerSite,
	domain.OwnerProjectReport, domain.OwnerSiteReport,
}

func supportsDemographics(kind domain.OwnerKind) bool {
	for _, k := range demographicOwners {
		if k == kind {
			return true
		}
	}
	return false
}

// demographicScope identifies the single live parent a question reads and writes.
type demographicScope struct {
	kind       domain.OwnerKind
	domain     string
	typ        string
	collection string
}

func demographicScopeFor(field domain.LinkedFieldConfig, kind domain.OwnerKind) (demographicScope, error) {
	typ, ok := demographicCollections[field.Collection]
	if !ok {
		return demographicScope{}, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("unknown demographics collection %q", field.Collection)}
	}
	if !supportsDemographics(kind) {
		return demographicScope{}, &domain.ConfigurationError{Field: field.Key, Reason: fmt.Sprintf("demographics cannot be owned by %s", kind)}
	}
	return demographicScope{kind: kind, domain: demographicsDomain, typ: typ, collection: field.Collection}, nil
}

func (s demographicScope) matches(owner domain.OwnerReference, d domain.Demographic) bool {
	return d.Owner == owner && d.Domain == s.domain && d.Type == s.typ && d.Collection == s.collection
}

func findDemographic(all []domain.Demographic, owner domain.OwnerReference, scope demographicScope) *domain.Demographic {
	for i := range all {
		if scope.matches(owner, all[i]) {
			return &all[i]
		}
	}
	return nil
}

type demographicsCollector struct {
	questions map[demographicScope][]string
	order     []demographicScope
}

func newDemographicsCollector() *demographicsCollector {
	return &demographicsCollector{questions: make(map[demographicScope][]string)}
}

func (c *demographicsCollector) register(field domain.LinkedFieldConfig, kind domain.OwnerKind, questionID string) error {
	scope, err := demographicScopeFor(field, kind)
	if err != nil {
		return err
	}
	if _, ok := c.questions[scope]; !ok {
		c.order = append(c.order, scope)
	}
	c.questions[scope] = append(c.questions[scope], questionID)
	return nil
}

func (c *demographicsCollector) Collect(ctx context.Context, store Store, models domain.FormModels) (domain.Answers, error) {
	var owners ownerSet
	var types stringSet
	for _, scope := range c.order {
		model, err := models.Require(scope.kind)
		if err != nil {
			return nil, err
		}
		owners.add(model.Owner())
		types.add(scope.typ)
	}

	parents, err := store.ListDemographics(ctx, owners.owners, types.values)
	if err != nil {
		return nil, errors.Wrap(err, "list demographics")
	}

	answers := make(domain.Answers)
	for _, scope := range c.order {
		owner := models[scope.kind].Owner()
		parent := findDemographic(parents, owner, scope)
		if parent == nil {
			// absent rather than an empty list: nothing was ever entered
			continue
		}
		record := []domain.DemographicRecord{toDemographicRecord(*parent)}
		for _, question := range c.questions[scope] {
			answers[question] = record
		}
	}
	return answers, nil
}

func toDemographicRecord(d domain.Demographic) domain.DemographicRecord {
	entries := make([]domain.Entry, 0, len(d.Entries))
	for _, e := range d.Entries {
		entries = append(entries, domain.Entry{Type: e.Type, Subtype: e.Subtype, Name: e.Name, Amount: e.Amount})
	}
	return domain.DemographicRecord{UUID: d.UUID, Collection: d.Collection, Entries: entries}
}

func (c *demographicsCollector) SyncRelation(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig, value any, hidden bool) ([]domain.Warning, error) {
	scope, err := demographicScopeFor(field, model.Kind)
	if err != nil {
		return nil, err
	}
	records, err := decodeList[domain.DemographicRecord](field.Key, value)
	if err != nil {
		return nil, err
	}
	if len(records) > 1 {
		return nil, &domain.ValidationError{Question: field.Key, Reason: "demographics accept a single record"}
	}

	parent, err := loadDemographic(ctx, tx, model.Owner(), scope)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		if parent == nil {
			return nil, nil
		}
		return nil, removeDemographic(ctx, tx, parent)
	}

	record := records[0]
	if record.Collection != "" && record.Collection != scope.collection {
		return []domain.Warning{warnf(domain.ResourceDemographics, "skipping record for collection %q while syncing %q", record.Collection, scope.collection)}, nil
	}

	entries, err := dedupEntries(field.Key, record.Entries)
	if err != nil {
		return nil, err
	}

	parent, err = ensureDemographic(ctx, tx, model.Owner(), scope, parent, hidden)
	if err != nil {
		return nil, err
	}
	return nil, syncEntries(ctx, tx, parent, entries)
}

func (c *demographicsCollector) ClearRelations(ctx context.Context, tx Store, model *domain.FormModel, field domain.LinkedFieldConfig) error {
	_, err := c.SyncRelation(ctx, tx, model, field, nil, false)
	return err
}

// removeDemographic drops the entries of parent and soft-deletes it.
func removeDemographic(ctx context.Context, tx Store, parent *domain.Demographic) error {
	ids := make([]int64, 0, len(parent.Entries))
	for _, e := range parent.Entries {
		ids = append(ids, e.ID)
	}
	if err := tx.DeleteDemographicEntries(ctx, ids); err != nil {
		return errors.Wrap(err, "delete demographic entries")
	}
	return errors.Wrap(tx.SoftDeleteDemographics(ctx, []int64{parent.ID}), "delete demographic")
}

func loadDemographic(ctx context.Context, tx Store, owner domain.OwnerReference, scope demographicScope) (*domain.Demographic, error) {
	parents, err := tx.ListDemographics(ctx, []domain.OwnerReference{owner}, []string{scope.typ})
	if err != nil {
		return nil, errors.Wrap(err, "list demographics")
	}
	return findDemographic(parents, owner, scope), nil
}

// ensureDemographic creates the scope's parent when missing, otherwise applies the hidden flag.
func ensureDemographic(ctx context.Context, tx Store, owner domain.OwnerReference, scope demographicScope, parent *domain.Demographic, hidden bool) (*domain.Demographic, error) {
	if parent == nil {
		id, err := freshUUID(ctx, tx, domain.ResourceDemographics, "")
		if err != nil {
			return nil, err
		}
		parent = &domain.Demographic{
			UUID:       id,
			Owner:      owner,
			Domain:     scope.domain,
			Type:       scope.typ,
			Collection: scope.collection,
			Hidden:     hidden,
		}
		return parent, errors.Wrap(tx.CreateDemographic(ctx, parent), "create demographic")
	}
	if parent.Hidden != hidden {
		parent.Hidden = hidden
		if err := tx.UpdateDemographic(ctx, parent); err != nil {
			return nil, errors.Wrap(err, "update demographic")
		}
	}
	return parent, nil
}

// dedupEntries folds entries sharing an identity triple into the earliest one; the latest amount wins.
func dedupEntries(question string, entries []domain.Entry) ([]domain.Entry, error) {
	out := make([]domain.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == "" {
			return nil, &domain.ValidationError{Question: question, Reason: "demographic entry without type"}
		}
		if entry.Amount < 0 {
			return nil, &domain.ValidationError{Question: question, Reason: "demographic entry amount must not be negative"}
		}
		merged := false
		for i := range out {
			if out[i].SameIdentity(entry) {
				out[i].Amount = entry.Amount
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, entry)
		}
	}
	return out, nil
}

// syncEntries makes the parent's entries correspond 1:1 with entries.
func syncEntries(ctx context.Context, tx Store, parent *domain.Demographic, entries []domain.Entry) error {
	existing := parent.Entries
	pairs := matchRows(entries, existing, nil, nil, func(e domain.Entry, row domain.DemographicEntry) bool {
		return e.SameIdentity(domain.Entry{Type: row.Type, Subtype: row.Subtype, Name: row.Name})
	})

	var kept []domain.DemographicEntry
	for i, entry := range entries {
		if j := pairs[i]; j >= 0 {
			row := existing[j]
			if row.Amount != entry.Amount {
				row.Amount = entry.Amount
				if err := tx.UpdateDemographicEntry(ctx, &row); err != nil {
					return errors.Wrap(err, "update demographic entry")
				}
			}
			kept = append(kept, row)
			continue
		}
		row := domain.DemographicEntry{
			DemographicID: parent.ID,
			Type:          entry.Type,
			Subtype:       entry.Subtype,
			Name:          entry.Name,
			Amount:        entry.Amount,
		}
		if err := tx.CreateDemographicEntry(ctx, &row); err != nil {
			return errors.Wrap(err, "create demographic entry")
		}
		kept = append(kept, row)
	}

	var stale []int64
	for _, j := range unclaimed(pairs, len(existing)) {
		stale = append(stale, existing[j].ID)
	}
	if len(stale) > 0 {
		if err := tx.DeleteDemographicEntries(ctx, stale); err != nil {
			return errors.Wrap(err, "delete demographic entries")
		}
	}
	parent.Entries = kept
	return nil
}
