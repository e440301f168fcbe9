package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AnalysisStatus string

const (
	AnalysisStatusProcessing AnalysisStatus = "processing"
	AnalysisStatusCompleted  AnalysisStatus = "completed"
	AnalysisStatusFailed     AnalysisStatus = "failed"
)

// FoodAnalysis is the model-derived nutrition record, one per FoodScan.
// RawResponse keeps the unmodified model output (or the error text on
// failure) for engineering diagnostics; it is never shown to end users.
type FoodAnalysis struct {
	ID     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ScanID uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null" json:"scan_id"`
	Status AnalysisStatus `gorm:"type:varchar(16);not null" json:"status"`

	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`

	Ingredients []Ingredient   `gorm:"serializer:json" json:"ingredients,omitempty"`
	Confidence  float64        `json:"confidence"`
	RawResponse map[string]any `gorm:"serializer:json" json:"raw_response,omitempty"`

	// Run lock: RunID names the attempt holding the lock, LockedAt is set
	// while it is in flight and cleared by the terminal write.
	RunID    string     `json:"run_id,omitempty"`
	LockedAt *time.Time `json:"locked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *FoodAnalysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
