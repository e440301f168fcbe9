package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mealscan-backend/models"
	"mealscan-backend/utils"
)

// Workflow stages, in order. The run is linear: each stage consumes the
// previous stage's output and any failure aborts the run.
const (
	stageIngest   = "ingest"
	stageAnalyze  = "analyze"
	stageValidate = "validate"
)

// WorkflowInput is the declared entry contract of a run.
type WorkflowInput struct {
	ImageURL string
	MimeType string
}

type WorkflowResult struct {
	RunID       string
	Status      models.AnalysisStatus // completed or failed
	Analysis    *AnalysisPayload      // set when Status == completed
	RawResponse string                // model's unparsed answer, when one was received
	Err         error                 // set when Status == failed
}

type AnalysisWorkflow struct {
	vision VisionModel
	log    *logrus.Logger
}

func NewAnalysisWorkflow(vision VisionModel) *AnalysisWorkflow {
	return &AnalysisWorkflow{vision: vision, log: utils.Logger()}
}

// NewRunID builds the traceability identifier for one analysis attempt.
// It is unique per scan+timestamp but carries no locking semantics.
func NewRunID(scanID uuid.UUID) string {
	return fmt.Sprintf("%s-%d", scanID, time.Now().UnixNano())
}

// Run executes ingest → analyze → validate for one image.
func (w *AnalysisWorkflow) Run(ctx context.Context, runID string, in WorkflowInput) WorkflowResult {
	res := WorkflowResult{RunID: runID}

	// ingest: the input passes through unchanged; the stage exists as the
	// run's entry contract.
	w.logStage(runID, stageIngest)
	if in.ImageURL == "" {
		res.Status = models.AnalysisStatusFailed
		res.Err = fmt.Errorf("ingest: empty image URL")
		return res
	}

	w.logStage(runID, stageAnalyze)
	analysis, raw, err := w.vision.AnalyzeMealImage(ctx, in.ImageURL, in.MimeType)
	res.RawResponse = raw
	if err != nil {
		res.Status = models.AnalysisStatusFailed
		res.Err = fmt.Errorf("analyze: %w", err)
		return res
	}

	w.logStage(runID, stageValidate)
	normalized := NormalizeAnalysis(*analysis)

	res.Status = models.AnalysisStatusCompleted
	res.Analysis = &normalized
	return res
}

func (w *AnalysisWorkflow) logStage(runID, stage string) {
	w.log.WithFields(logrus.Fields{"run_id": runID, "stage": stage}).Debug("workflow stage")
}
