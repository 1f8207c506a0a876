package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FormEntity is any parent record a form can be filled for (organisations, projects, sites, reports).
type FormEntity struct {
	ID             int64             `gorm:"primaryKey;autoIncrement"`
	UUID           string            `gorm:"type:text;uniqueIndex:uniq_form_entity_uuid"`
	ModelType      string            `gorm:"type:text;index;uniqueIndex:uniq_form_entity_uuid"`
	OrganisationID *int64            `gorm:"index"`
	Properties     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CDate          time.Time         `gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate          time.Time         `gorm:"autoUpdateTime"`
	DeletedAt      gorm.DeletedAt    `gorm:"index"`
}

type Form struct {
	UUID      string         `gorm:"primaryKey;type:text"`
	Title     string         `gorm:"type:text"`
	Questions []FormQuestion `gorm:"foreignKey:FormUUID;references:UUID;constraint:OnDelete:CASCADE;"`
	CDate     time.Time      `gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type FormQuestion struct {
	UUID           string  `gorm:"primaryKey;type:text"`
	FormUUID       string  `gorm:"type:text;index"`
	LinkedFieldKey *string `gorm:"type:text"`
	Order          int     `gorm:"not null;default:0"`
}
