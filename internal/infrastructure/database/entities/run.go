package entities

import (
	"time"

	"gorm.io/datatypes"
)

// Run represents the database schema for runs. Status is the column the
// guarded updates condition on.
type Run struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID       string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	Object         string         `gorm:"type:varchar(50);not null;default:'thread.run'"`
	ThreadID       string         `gorm:"type:varchar(50);index:idx_run_thread;not null"`
	AssistantID    string         `gorm:"type:varchar(50);index:idx_run_assistant;not null"`
	Model          string         `gorm:"type:varchar(100);not null"`
	Instructions   string         `gorm:"type:text"`
	Tools          datatypes.JSON `gorm:"type:jsonb"`
	Status         string         `gorm:"type:varchar(20);index:idx_run_status;not null"`
	RequiredAction datatypes.JSON `gorm:"type:jsonb"`
	LastError      datatypes.JSON `gorm:"type:jsonb"`
	Temperature    *float64
	TopP           *float64
	Metadata       datatypes.JSON `gorm:"type:jsonb"`

	StartedAt   *time.Time
	ExpiresAt   *time.Time `gorm:"index:idx_run_expires_at"`
	CompletedAt *time.Time
	CancelledAt *time.Time
	FailedAt    *time.Time
	ExpiredAt   *time.Time
}

// TableName specifies the table name for Run.
func (Run) TableName() string {
	return "runs"
}
