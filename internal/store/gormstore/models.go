package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Attempt mirrors the attempts table: one row per reservation attempt holding
// its latest known step.
type Attempt struct {
	AttemptID string    `gorm:"primaryKey;size:64"`
	Account   string    `gorm:"not null;index:idx_attempts_account_created,priority:1"`
	OfferID   int64     `gorm:"not null"`
	PriceWei  string    `gorm:"not null;default:'0'"`
	Step      string    `gorm:"not null"`
	Status    string    `gorm:"not null"`
	Category  string    `gorm:"not null;default:''"`
	Message   string    `gorm:"not null;default:''"`
	CallHash  string    `gorm:"not null;default:''"`
	CreatedAt time.Time `gorm:"not null;index:idx_attempts_account_created,priority:2"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Attempt) TableName() string { return "attempts" }

// AttemptEvent mirrors the attempt_events table: one row per logged transition.
type AttemptEvent struct {
	EventID   string         `gorm:"type:uuid;primaryKey"`
	AttemptID string         `gorm:"not null;index:uniq_attempt_event_sequence,unique,priority:1"`
	Sequence  int64          `gorm:"not null;index:uniq_attempt_event_sequence,unique,priority:2"`
	Operation string         `gorm:"not null"`
	Step      string         `gorm:"not null;default:''"`
	Outcome   string         `gorm:"not null"`
	CallHash  string         `gorm:"not null;default:''"`
	Category  string         `gorm:"not null;default:''"`
	Message   string         `gorm:"not null;default:''"`
	Metadata  datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (AttemptEvent) TableName() string { return "attempt_events" }

func (event *AttemptEvent) BeforeCreate(tx *gorm.DB) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	return nil
}

// Migrate creates or updates the journal tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Attempt{}, &AttemptEvent{})
}
