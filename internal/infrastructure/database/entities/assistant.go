// Package entities holds the database schema for the assistant domain.
package entities

import (
	"time"

	"gorm.io/datatypes"
)

// Assistant represents the database schema for assistants.
type Assistant struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID     string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	Object       string         `gorm:"type:varchar(50);not null;default:'assistant'"`
	Model        string         `gorm:"type:varchar(100);not null"`
	Name         *string        `gorm:"type:varchar(256)"`
	Description  *string        `gorm:"type:text"`
	Instructions string         `gorm:"type:text"`
	Tools        datatypes.JSON `gorm:"type:jsonb"`
	FileIDs      datatypes.JSON `gorm:"type:jsonb"`
	Temperature  *float64
	TopP         *float64
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
}

// TableName specifies the table name for Assistant.
func (Assistant) TableName() string {
	return "assistants"
}
