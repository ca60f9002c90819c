package entities

import (
	"time"

	"gorm.io/datatypes"
)

// Thread represents the database schema for threads.
type Thread struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	Object   string         `gorm:"type:varchar(50);not null;default:'thread'"`
	Metadata datatypes.JSON `gorm:"type:jsonb"`
}

// TableName specifies the table name for Thread.
func (Thread) TableName() string {
	return "threads"
}
