package entities

import (
	"time"

	"gorm.io/datatypes"
)

// RunStep represents the database schema for run steps.
type RunStep struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID    string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	Object      string         `gorm:"type:varchar(50);not null;default:'thread.run.step'"`
	RunID       string         `gorm:"type:varchar(50);index:idx_run_step_run;not null"`
	ThreadID    string         `gorm:"type:varchar(50);index:idx_run_step_thread;not null"`
	AssistantID string         `gorm:"type:varchar(50);not null"`
	Type        string         `gorm:"type:varchar(30);not null"`
	Status      string         `gorm:"type:varchar(20);not null"`
	StepDetails datatypes.JSON `gorm:"type:jsonb;not null"`
	LastError   datatypes.JSON `gorm:"type:jsonb"`

	CompletedAt *time.Time
	FailedAt    *time.Time
	CancelledAt *time.Time
	ExpiredAt   *time.Time
}

// TableName specifies the table name for RunStep.
func (RunStep) TableName() string {
	return "run_steps"
}
