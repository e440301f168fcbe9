package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"mealscan-backend/models"
)

// fakeVision lets tests script the inference model.
type fakeVision struct {
	payload *AnalysisPayload
	raw     string
	err     error
	calls   int
}

func (f *fakeVision) AnalyzeMealImage(ctx context.Context, imageURL, mimeType string) (*AnalysisPayload, string, error) {
	f.calls++
	return f.payload, f.raw, f.err
}

func TestWorkflowRunSuccessNormalizesOutput(t *testing.T) {
	vision := &fakeVision{
		payload: &AnalysisPayload{
			Title:    strPtr("Oatmeal"),
			MealType: mealTypePtr(models.MealTypeBreakfast),
			Summary:  models.MacroSummary{Calories: 1}, // wrong on purpose
			Ingredients: []models.Ingredient{
				{Name: "Oats", Quantity: 50, Unit: "g", Calories: 180, Protein: 6, Carbs: 30, Fat: 3},
			},
			Confidence: 0.9,
		},
		raw: `{"title":"Oatmeal"}`,
	}
	w := NewAnalysisWorkflow(vision)

	res := w.Run(context.Background(), NewRunID(uuid.New()), WorkflowInput{ImageURL: "https://x/img.jpg"})

	if res.Status != models.AnalysisStatusCompleted {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if res.Analysis == nil {
		t.Fatal("expected analysis on success")
	}
	want := models.MacroSummary{Calories: 180, Protein: 6, Carbs: 30, Fat: 3}
	if res.Analysis.Summary != want {
		t.Errorf("summary = %+v, want %+v (normalizer must run in validate)", res.Analysis.Summary, want)
	}
	if res.RawResponse != `{"title":"Oatmeal"}` {
		t.Errorf("raw response not carried through: %q", res.RawResponse)
	}
	if vision.calls != 1 {
		t.Errorf("vision called %d times, want 1", vision.calls)
	}
}

func TestWorkflowRunFailsOnModelError(t *testing.T) {
	vision := &fakeVision{err: errors.New("upstream timeout")}
	w := NewAnalysisWorkflow(vision)

	res := w.Run(context.Background(), "run-1", WorkflowInput{ImageURL: "https://x/img.jpg"})

	if res.Status != models.AnalysisStatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "upstream timeout") {
		t.Errorf("error should preserve the model failure, got %v", res.Err)
	}
	if res.Analysis != nil {
		t.Error("failed run must not carry an analysis")
	}
}

func TestWorkflowRunFailsOnSchemaMismatch(t *testing.T) {
	vision := &fakeVision{err: ErrSchemaMismatch, raw: "not json"}
	w := NewAnalysisWorkflow(vision)

	res := w.Run(context.Background(), "run-2", WorkflowInput{ImageURL: "https://x/img.jpg"})

	if res.Status != models.AnalysisStatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !errors.Is(res.Err, ErrSchemaMismatch) {
		t.Errorf("error should wrap ErrSchemaMismatch, got %v", res.Err)
	}
	if res.RawResponse != "not json" {
		t.Errorf("raw response should be kept for diagnostics, got %q", res.RawResponse)
	}
}

func TestWorkflowRunRejectsEmptyImageURL(t *testing.T) {
	vision := &fakeVision{}
	w := NewAnalysisWorkflow(vision)

	res := w.Run(context.Background(), "run-3", WorkflowInput{})

	if res.Status != models.AnalysisStatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if vision.calls != 0 {
		t.Errorf("vision must not be called without an image, got %d calls", vision.calls)
	}
}

func TestNewRunIDUniquePerCall(t *testing.T) {
	id := uuid.New()
	a, b := NewRunID(id), NewRunID(id)
	if !strings.HasPrefix(a, id.String()) {
		t.Errorf("run id %q should embed the scan id", a)
	}
	if a == b {
		t.Errorf("two runs on one scan got the same id %q", a)
	}
}
