package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PolymorphicRow stores every simple relation; Resource selects which one.
type PolymorphicRow struct {
	ID         int64             `gorm:"primaryKey;autoIncrement"`
	UUID       string            `gorm:"type:text;uniqueIndex:uniq_polymorphic_uuid"`
	Resource   string            `gorm:"type:text;uniqueIndex:uniq_polymorphic_uuid;index:idx_polymorphic_owner"`
	OwnerType  string            `gorm:"type:text;index:idx_polymorphic_owner"`
	OwnerID    int64             `gorm:"index:idx_polymorphic_owner"`
	Collection string            `gorm:"type:text;index:idx_polymorphic_owner"`
	Attributes datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CDate      time.Time         `gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	DeletedAt  gorm.DeletedAt    `gorm:"index"`
}

type Demographic struct {
	ID          int64              `gorm:"primaryKey;autoIncrement"`
	UUID        string             `gorm:"type:text;uniqueIndex"`
	OwnerType   string             `gorm:"type:text;index:idx_demographic_owner"`
	OwnerID     int64              `gorm:"index:idx_demographic_owner"`
	Domain      string             `gorm:"type:text"`
	Type        string             `gorm:"type:text;index:idx_demographic_owner"`
	Collection  string             `gorm:"type:text"`
	Description *string            `gorm:"type:text"`
	Hidden      bool               `gorm:"type:boolean;not null;default:false"`
	Entries     []DemographicEntry `gorm:"foreignKey:DemographicID;references:ID;constraint:OnDelete:CASCADE;"`
	CDate       time.Time          `gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	DeletedAt   gorm.DeletedAt     `gorm:"index"`
}

// DemographicEntry rows are hard-deleted.
type DemographicEntry struct {
	ID            int64   `gorm:"primaryKey;autoIncrement"`
	DemographicID int64   `gorm:"index"`
	Type          string  `gorm:"type:text"`
	Subtype       *string `gorm:"type:text"`
	Name          *string `gorm:"type:text"`
	Amount        int     `gorm:"not null;default:0"`
}

type FundingType struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	UUID              string `gorm:"type:text;uniqueIndex"`
	OrganisationID    *int64 `gorm:"index"`
	FinancialReportID *int64 `gorm:"index"`
	Source            string `gorm:"type:text"`
	Amount            float64
	Year              int
	Type              string         `gorm:"type:text"`
	CDate             time.Time      `gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

type FinancialIndicator struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	UUID              string `gorm:"type:text;uniqueIndex"`
	OrganisationID    *int64 `gorm:"index"`
	FinancialReportID *int64 `gorm:"index"`
	Collection        string `gorm:"type:text"`
	Amount            *float64
	Year              int
	Description       *string        `gorm:"type:text"`
	CDate             time.Time      `gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

type DisturbanceEntry struct {
	ID                  int64          `gorm:"primaryKey;autoIncrement"`
	UUID                string         `gorm:"type:text;uniqueIndex"`
	DisturbanceReportID int64          `gorm:"index"`
	Name                string         `gorm:"type:text"`
	InputType           string         `gorm:"type:text"`
	Title               *string        `gorm:"type:text"`
	Subtitle            *string        `gorm:"type:text"`
	Value               *string        `gorm:"type:text"`
	CDate               time.Time      `gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	DeletedAt           gorm.DeletedAt `gorm:"index"`
}

type Media struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	UUID           string `gorm:"type:text;uniqueIndex"`
	OwnerType      string `gorm:"type:text;index:idx_media_owner"`
	OwnerID        int64  `gorm:"index:idx_media_owner"`
	CollectionName string `gorm:"type:text;index:idx_media_owner"`
	Name           string `gorm:"type:text"`
	FileName       string `gorm:"type:text"`
	MimeType       string `gorm:"type:text"`
	Size           int64
	URL            string `gorm:"type:text"`
	IsPublic       bool   `gorm:"type:boolean;not null;default:true"`
	Lat            *float64
	Lng            *float64
	OrderColumn    *int
	CDate          time.Time `gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Polygon struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	UUID      string         `gorm:"type:text;uniqueIndex"`
	OwnerType string         `gorm:"type:text;index:idx_polygon_owner"`
	OwnerID   int64          `gorm:"index:idx_polygon_owner"`
	CDate     time.Time      `gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}
