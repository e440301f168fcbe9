package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"mealscan-backend/models"
)

type fakeResolver struct {
	url   string
	err   error
	calls int
}

func (f *fakeResolver) ResolveImageURL(ctx context.Context, key string) (string, error) {
	f.calls++
	return f.url, f.err
}

func oatmealPayload(confidence float64) *AnalysisPayload {
	return &AnalysisPayload{
		Title:    strPtr("Oatmeal"),
		MealType: mealTypePtr(models.MealTypeBreakfast),
		Ingredients: []models.Ingredient{
			{Name: "Oats", Quantity: 50, Unit: "g", Calories: 180, Protein: 6, Carbs: 30, Fat: 3},
		},
		Confidence: confidence,
	}
}

func newOrchestrator(t *testing.T, vision VisionModel, resolver ImageResolver) (*ScanOrchestrator, *ScanService) {
	t.Helper()
	db := newTestDB(t)
	scans := NewScanService(db)
	orch := NewScanOrchestrator(scans, NewAnalysisWorkflow(vision), resolver, nil)
	return orch, scans
}

// Scenario: camera scan with a direct URL, confident model answer.
func TestRunAnalysisCompletesScan(t *testing.T) {
	vision := &fakeVision{payload: oatmealPayload(0.9), raw: `{"title":"Oatmeal"}`}
	orch, scans := newOrchestrator(t, vision, nil)
	ctx := context.Background()

	scan := mustCreateScan(t, scans, 1, CreateScanInput{Source: models.ScanSourceCamera, ImageURL: "https://x/img.jpg"})
	if scan.Status != models.ScanStatusProcessing {
		t.Fatalf("fresh scan status = %s", scan.Status)
	}

	outcome, err := orch.RunAnalysis(ctx, 1, scan.ID)
	if err != nil {
		t.Fatalf("run analysis: %v", err)
	}
	if outcome.Status != models.ScanStatusCompleted {
		t.Fatalf("outcome = %+v", outcome)
	}

	got, _ := scans.GetByID(ctx, 1, scan.ID)
	if got.Status != models.ScanStatusCompleted {
		t.Errorf("scan status = %s", got.Status)
	}
	if got.Title == nil || *got.Title != "Oatmeal" {
		t.Errorf("title = %v", got.Title)
	}
	want := models.MacroSummary{Calories: 180, Protein: 6, Carbs: 30, Fat: 3}
	if got.Summary == nil || *got.Summary != want {
		t.Errorf("summary = %v, want %+v", got.Summary, want)
	}

	rec, _ := scans.GetAnalysis(ctx, 1, scan.ID)
	if rec.Status != models.AnalysisStatusCompleted {
		t.Errorf("analysis status = %s", rec.Status)
	}
	if rec.RawResponse["model_output"] == nil {
		t.Error("raw model output should be stored for diagnostics")
	}
}

// Scenario: low confidence suppresses identity but keeps the derived summary.
func TestRunAnalysisLowConfidenceSuppressesIdentity(t *testing.T) {
	vision := &fakeVision{payload: oatmealPayload(0.2), raw: "{}"}
	orch, scans := newOrchestrator(t, vision, nil)
	ctx := context.Background()

	scan := mustCreateScan(t, scans, 1, CreateScanInput{Source: models.ScanSourceCamera, ImageURL: "https://x/img.jpg"})

	outcome, err := orch.RunAnalysis(ctx, 1, scan.ID)
	if err != nil || outcome.Status != models.ScanStatusCompleted {
		t.Fatalf("outcome = %+v, err = %v", outcome, err)
	}

	got, _ := scans.GetByID(ctx, 1, scan.ID)
	if got.Title != nil {
		t.Errorf("low-confidence title should be nil, got %q", *got.Title)
	}
	if got.MealType != nil {
		t.Errorf("low-confidence meal type should be nil, got %q", *got.MealType)
	}
	want := models.MacroSummary{Calories: 180, Protein: 6, Carbs: 30, Fat: 3}
	if got.Summary == nil || *got.Summary != want {
		t.Errorf("summary must still be derived from ingredients, got %v", got.Summary)
	}
}

// Scenario: no image URL and no storage key — fail without calling the model.
func TestRunAnalysisMissingImageShortCircuits(t *testing.T) {
	vision := &fakeVision{payload: oatmealPayload(0.9)}
	orch, scans := newOrchestrator(t, vision, nil)
	ctx := context.Background()

	scan := mustCreateScan(t, scans, 1, CreateScanInput{Source: models.ScanSourceGallery})

	outcome, err := orch.RunAnalysis(ctx, 1, scan.ID)
	if err != nil {
		t.Fatalf("run analysis: %v", err)
	}
	if outcome.Status != models.ScanStatusFailed {
		t.Fatalf("outcome = %+v", outcome)
	}
	if vision.calls != 0 {
		t.Errorf("inference model was invoked %d times without an image", vision.calls)
	}

	got, _ := scans.GetByID(ctx, 1, scan.ID)
	if got.Status != models.ScanStatusFailed {
		t.Errorf("scan status = %s", got.Status)
	}
	rec, _ := scans.GetAnalysis(ctx, 1, scan.ID)
	if rec.Status != models.AnalysisStatusFailed {
		t.Errorf("analysis status = %s", rec.Status)
	}
	if msg, _ := rec.RawResponse["error"].(string); msg != "Missing image URL for analysis." {
		t.Errorf("diagnostic message = %q", msg)
	}
}

// Scenario: inference call fails — failure recorded, never raised.
func TestRunAnalysisModelErrorRecordedNotRaised(t *testing.T) {
	vision := &fakeVision{err: errors.New("connection reset by peer")}
	orch, scans := newOrchestrator(t, vision, nil)
	ctx := context.Background()

	scan := mustCreateScan(t, scans, 1, CreateScanInput{Source: models.ScanSourceCamera, ImageURL: "https://x/img.jpg"})

	outcome, err := orch.RunAnalysis(ctx, 1, scan.ID)
	if err != nil {
		t.Fatalf("analysis failures must not surface as errors, got %v", err)
	}
	if outcome.Status != models.ScanStatusFailed {
		t.Fatalf("outcome = %+v", outcome)
	}

	rec, _ := scans.GetAnalysis(ctx, 1, scan.ID)
	msg, _ := rec.RawResponse["error"].(string)
	if !strings.Contains(msg, "connection reset by peer") {
		t.Errorf("diagnostic payload should carry the model error, got %q", msg)
	}
	got, _ := scans.GetByID(ctx, 1, scan.ID)
	if got.Status != models.ScanStatusFailed {
		t.Errorf("scan status = %s", got.Status)
	}
}

func TestRunAnalysisUnknownScan(t *testing.T) {
	orch, _ := newOrchestrator(t, &fakeVision{}, nil)

	_, err := orch.RunAnalysis(context.Background(), 1, uuid.New())
	if !errors.Is(err, ErrScanNotFound) {
		t.Errorf("got %v, want ErrScanNotFound", err)
	}
}

func TestRunAnalysisForeignScanReadsAsNotFound(t *testing.T) {
	vision := &fakeVision{payload: oatmealPayload(0.9)}
	orch, scans := newOrchestrator(t, vision, nil)

	scan := mustCreateScan(t, scans, 1, CreateScanInput{Source: models.ScanSourceCamera, ImageURL: "https://x/img.jpg"})

	_, err := orch.RunAnalysis(context.Background(), 2, scan.ID)
	if !errors.Is(err, ErrScanNotFound) {
		t.Errorf("got %v, want ErrScanNotFound", err)
	}
	if vision.calls != 0 {
		t.Error("model must not run for a scan the caller does not own")
	}
}

func TestRunAnalysisResolvesStorageKey(t *testing.T) {
	vision := &fakeVision{payload: oatmealPayload(0.9), raw: "{}"}
	resolver := &fakeResolver{url: "https://cdn.example.com/meal-photos/1.jpg"}
	orch, scans := newOrchestrator(t, vision, resolver)
	ctx := context.Background()

	scan := mustCreateScan(t, scans, 1, CreateScanInput{Source: models.ScanSourceGallery, StorageKey: "meal-photos/1.jpg"})

	outcome, err := orch.RunAnalysis(ctx, 1, scan.ID)
	if err != nil || outcome.Status != models.ScanStatusCompleted {
		t.Fatalf("outcome = %+v, err = %v", outcome, err)
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1", resolver.calls)
	}
}

func TestRunAnalysisRejectsConcurrentDuplicate(t *testing.T) {
	vision := &fakeVision{payload: oatmealPayload(0.9), raw: "{}"}
	orch, scans := newOrchestrator(t, vision, nil)
	ctx := context.Background()

	scan := mustCreateScan(t, scans, 1, CreateScanInput{Source: models.ScanSourceCamera, ImageURL: "https://x/img.jpg"})

	// simulate an in-flight run holding the lock
	if err := scans.AcquireRun(ctx, 1, scan.ID, "in-flight"); err != nil {
		t.Fatal(err)
	}

	outcome, err := orch.RunAnalysis(ctx, 1, scan.ID)
	if err != nil {
		t.Fatalf("run analysis: %v", err)
	}
	if outcome.Status != models.ScanStatusFailed || !strings.Contains(outcome.Error, "in progress") {
		t.Errorf("duplicate run should be rejected, got %+v", outcome)
	}
	if vision.calls != 0 {
		t.Errorf("model invoked %d times by a rejected duplicate", vision.calls)
	}

	// the scan is untouched, still processing under the original run
	got, _ := scans.GetByID(ctx, 1, scan.ID)
	if got.Status != models.ScanStatusProcessing {
		t.Errorf("scan status = %s, want processing", got.Status)
	}
}

func TestRunAnalysisDoesNotOverwriteTerminalScan(t *testing.T) {
	vision := &fakeVision{payload: oatmealPayload(0.9), raw: "{}"}
	orch, scans := newOrchestrator(t, vision, nil)
	ctx := context.Background()

	scan := mustCreateScan(t, scans, 1, CreateScanInput{Source: models.ScanSourceCamera, ImageURL: "https://x/img.jpg"})

	if err := scans.ApplyOutcome(ctx, 1, scan.ID, OutcomeInput{
		Status:      models.ScanStatusFailed,
		RawResponse: map[string]any{"error": "earlier run failed"},
	}); err != nil {
		t.Fatal(err)
	}

	outcome, err := orch.RunAnalysis(ctx, 1, scan.ID)
	if err != nil {
		t.Fatalf("run analysis: %v", err)
	}
	if outcome.Status != models.ScanStatusFailed {
		t.Errorf("duplicate run should report failed, got %+v", outcome)
	}

	got, _ := scans.GetByID(ctx, 1, scan.ID)
	if got.Status != models.ScanStatusFailed {
		t.Errorf("terminal state was overwritten: %s", got.Status)
	}
}
