package domain

import "time"

// PolymorphicRow is a persisted row of a simple multi-row relation.
type PolymorphicRow struct {
	ID         int64
	UUID       string
	Resource   RelationResource
	Owner      OwnerReference
	Collection string
	Attributes map[string]any
	CreatedAt  time.Time
	DeletedAt  *time.Time
}

// Demographic is the parent row of a two-level demographics resource.
type Demographic struct {
	ID          int64
	UUID        string
	Owner       OwnerReference
	Domain      string
	Type        string
	Collection  string
	Description *string
	Hidden      bool
	Entries     []DemographicEntry
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// DemographicEntry is a leaf row below a Demographic.
type DemographicEntry struct {
	ID            int64
	DemographicID int64
	Type          string
	Subtype       *string
	Name          *string
	Amount        int
}

type FundingType struct {
	ID                int64
	UUID              string
	OrganisationID    *int64
	FinancialReportID *int64
	Source            string
	Amount            float64
	Year              int
	Type              string
	CreatedAt         time.Time
	DeletedAt         *time.Time
}

type FinancialIndicator struct {
	ID                int64
	UUID              string
	OrganisationID    *int64
	FinancialReportID *int64
	Collection        string
	Amount            *float64
	Year              int
	Description       *string
	CreatedAt         time.Time
	DeletedAt         *time.Time
}

type DisturbanceEntry struct {
	ID                  int64
	UUID                string
	DisturbanceReportID int64
	Name                string
	InputType           string
	Title               *string
	Subtitle            *string
	Value               *string
	CreatedAt           time.Time
	DeletedAt           *time.Time
}

type Media struct {
	ID             int64
	UUID           string
	Owner          OwnerReference
	CollectionName string
	Name           string
	FileName       string
	MimeType       string
	Size           int64
	URL            string
	IsPublic       bool
	Lat            *float64
	Lng            *float64
	OrderColumn    *int
	CreatedAt      time.Time
}

type Polygon struct {
	ID        int64
	UUID      string
	Owner     OwnerReference
	CreatedAt time.Time
}
