package services

import (
	"math"

	"mealscan-backend/models"
)

// Below this confidence the model must not assert a specific meal identity,
// so title and meal type are suppressed.
const minIdentityConfidence = 0.4

// AnalysisPayload is the structured output of the vision model for one meal
// image, before and after normalization.
type AnalysisPayload struct {
	Title       *string             `json:"title"`
	MealType    *models.MealType    `json:"meal_type"`
	Summary     models.MacroSummary `json:"summary"`
	Ingredients []models.Ingredient `json:"ingredients"`
	Confidence  float64             `json:"confidence"`
}

// NormalizeAnalysis makes untrusted model output safe to persist and display:
// every numeric field is clamped, the summary is recomputed from the
// ingredient list, and low-confidence results lose their identity fields.
// It is pure and total, and a fixed point: normalizing already-normalized
// output returns it unchanged.
func NormalizeAnalysis(in AnalysisPayload) AnalysisPayload {
	out := AnalysisPayload{
		Title:      in.Title,
		MealType:   in.MealType,
		Confidence: clamp(in.Confidence, 0, 1),
	}

	out.Ingredients = make([]models.Ingredient, len(in.Ingredients))
	for i, ing := range in.Ingredients {
		ing.Quantity = clamp(ing.Quantity, 0, math.Inf(1))
		ing.Calories = clamp(ing.Calories, 0, math.Inf(1))
		ing.Protein = clamp(ing.Protein, 0, math.Inf(1))
		ing.Carbs = clamp(ing.Carbs, 0, math.Inf(1))
		ing.Fat = clamp(ing.Fat, 0, math.Inf(1))
		out.Ingredients[i] = ing
	}

	// The model's own summary is discarded: deriving it from the clamped
	// ingredients is the only way to keep the two consistent.
	for _, ing := range out.Ingredients {
		out.Summary = out.Summary.Add(ing.Macros())
	}

	if out.Confidence < minIdentityConfidence {
		out.Title = nil
		out.MealType = nil
	}

	return out
}

// clamp bounds v to [lo, hi], mapping NaN and infinities to 0 first.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
