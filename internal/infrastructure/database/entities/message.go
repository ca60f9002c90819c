package entities

import (
	"time"

	"gorm.io/datatypes"
)

// Message represents the database schema for thread messages.
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID    string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	Object      string         `gorm:"type:varchar(50);not null;default:'thread.message'"`
	ThreadID    string         `gorm:"type:varchar(50);index:idx_message_thread;not null"`
	Role        string         `gorm:"type:varchar(20);not null"`
	Content     datatypes.JSON `gorm:"type:jsonb;not null"`
	AssistantID *string        `gorm:"type:varchar(50)"`
	RunID       *string        `gorm:"type:varchar(50);index:idx_message_run"`
	Metadata    datatypes.JSON `gorm:"type:jsonb"`
}

// TableName specifies the table name for Message.
func (Message) TableName() string {
	return "messages"
}
