package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ScanStatus string

const (
	ScanStatusUploading  ScanStatus = "uploading"
	ScanStatusProcessing ScanStatus = "processing"
	ScanStatusCompleted  ScanStatus = "completed"
	ScanStatusFailed     ScanStatus = "failed"
)

// IsTerminal reports whether the scan can no longer change status.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

type ScanSource string

const (
	ScanSourceCamera  ScanSource = "camera"
	ScanSourceGallery ScanSource = "gallery"
)

func (s ScanSource) Valid() bool {
	return s == ScanSourceCamera || s == ScanSourceGallery
}

type MealType string

const (
	MealTypeBreakfast MealType = "breakfast"
	MealTypeLunch     MealType = "lunch"
	MealTypeDinner    MealType = "dinner"
	MealTypeSnack     MealType = "snack"
)

func (m MealType) Valid() bool {
	switch m {
	case MealTypeBreakfast, MealTypeLunch, MealTypeDinner, MealTypeSnack:
		return true
	}
	return false
}

// MacroSummary is the per-scan nutrition rollup shown on the timeline.
type MacroSummary struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

func (m MacroSummary) Add(o MacroSummary) MacroSummary {
	return MacroSummary{
		Calories: m.Calories + o.Calories,
		Protein:  m.Protein + o.Protein,
		Carbs:    m.Carbs + o.Carbs,
		Fat:      m.Fat + o.Fat,
	}
}

// Units accepted for ingredient quantities.
var IngredientUnits = map[string]bool{
	"g": true, "kg": true, "oz": true, "lb": true,
	"ml": true, "l": true, "cup": true, "tbsp": true, "tsp": true,
	"whole": true, "serving": true,
}

// Ingredient stores one detected food component with its nutrition snapshot.
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

func (i Ingredient) Macros() MacroSummary {
	return MacroSummary{Calories: i.Calories, Protein: i.Protein, Carbs: i.Carbs, Fat: i.Fat}
}

// FoodScan is one captured meal event. Display fields are denormalized
// copies of the paired FoodAnalysis so the timeline reads without a join.
type FoodScan struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uint       `gorm:"index;not null" json:"user_id"`
	Status ScanStatus `gorm:"type:varchar(16);not null" json:"status"`
	Source ScanSource `gorm:"type:varchar(16);not null" json:"source"`

	ImageURL   string `json:"image_url,omitempty"`
	StorageKey string `json:"storage_key,omitempty"`

	Title       *string       `json:"title,omitempty"`
	MealType    *MealType     `gorm:"type:varchar(16)" json:"meal_type,omitempty"`
	Summary     *MacroSummary `gorm:"serializer:json" json:"summary,omitempty"`
	Ingredients []Ingredient  `gorm:"serializer:json" json:"ingredients,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	LastAnalyzedAt *time.Time `json:"last_analyzed_at,omitempty"`
}

func (s *FoodScan) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
