package domain

import "fmt"

// OwnerKind identifies an entity class that can own relation rows.
type OwnerKind int

const (
	OwnerUnknown OwnerKind = iota
	OwnerOrganisation
	OwnerProjectPitch
	OwnerProject
	OwnerSite
	OwnerNursery
	OwnerProjectReport
	OwnerSiteReport
	OwnerNurseryReport
	OwnerFinancialReport
	OwnerDisturbanceReport
)

type ownerKindInfo struct {
	modelType string
	tag       string
	media     bool
}

// ownerKinds is the closed tag table. Tags are persisted in owner_type columns and must never change.
var ownerKinds = map[OwnerKind]ownerKindInfo{
	OwnerOrganisation:      {modelType: "organisations", tag: "organisation", media: true},
	OwnerProjectPitch:      {modelType: "projectPitches", tag: "project-pitch", media: true},
	OwnerProject:           {modelType: "projects", tag: "project", media: true},
	OwnerSite:              {modelType: "sites", tag: "site", media: true},
	OwnerNursery:           {modelType: "nurseries", tag: "nursery", media: true},
	OwnerProjectReport:     {modelType: "projectReports", tag: "project-report", media: true},
	OwnerSiteReport:        {modelType: "siteReports", tag: "site-report", media: true},
	OwnerNurseryReport:     {modelType: "nurseryReports", tag: "nursery-report", media: true},
	OwnerFinancialReport:   {modelType: "financialReports", tag: "financial-report"},
	OwnerDisturbanceReport: {modelType: "disturbanceReports", tag: "disturbance-report", media: true},
}

func (k OwnerKind) ModelType() string {
	return ownerKinds[k].modelType
}

// Tag returns the polymorphic type tag stored alongside owner ids.
func (k OwnerKind) Tag() string {
	return ownerKinds[k].tag
}

func (k OwnerKind) SupportsMedia() bool {
	return ownerKinds[k].media
}

func (k OwnerKind) String() string {
	if info, ok := ownerKinds[k]; ok {
		return info.modelType
	}
	return fmt.Sprintf("OwnerKind(%d)", int(k))
}

// ParseModelType resolves a model type key such as "siteReports".
func ParseModelType(modelType string) (OwnerKind, error) {
	for kind, info := range ownerKinds {
		if info.modelType == modelType {
			return kind, nil
		}
	}
	return OwnerUnknown, &ConfigurationError{Reason: fmt.Sprintf("unknown model type %q", modelType)}
}

// ParseOwnerTag resolves a persisted polymorphic tag.
func ParseOwnerTag(tag string) (OwnerKind, error) {
	for kind, info := range ownerKinds {
		if info.tag == tag {
			return kind, nil
		}
	}
	return OwnerUnknown, &ConfigurationError{Reason: fmt.Sprintf("unknown owner tag %q", tag)}
}

// OwnerReference points at the entity that owns a relation row.
type OwnerReference struct {
	Kind OwnerKind
	ID   int64
}

func (o OwnerReference) Tag() string {
	return o.Kind.Tag()
}

func (o OwnerReference) String() string {
	return fmt.Sprintf("%s#%d", o.Kind.Tag(), o.ID)
}
