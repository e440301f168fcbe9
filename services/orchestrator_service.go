package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mealscan-backend/models"
	"mealscan-backend/utils"
)

const missingImageMessage = "Missing image URL for analysis."

// AnalysisOutcome is what RunAnalysis reports back. Failures inside the
// attempt are encoded here, never raised.
type AnalysisOutcome struct {
	Status   models.ScanStatus `json:"status"` // completed or failed
	Analysis *AnalysisPayload  `json:"analysis,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ScanOrchestrator is the only component that runs a complete analysis
// attempt end-to-end: load scan, resolve image, run the workflow, persist
// the outcome on both records.
type ScanOrchestrator struct {
	scans    *ScanService
	workflow *AnalysisWorkflow
	storage  ImageResolver
	hub      *RealtimeHub
	log      *logrus.Logger
}

func NewScanOrchestrator(scans *ScanService, workflow *AnalysisWorkflow, storage ImageResolver, hub *RealtimeHub) *ScanOrchestrator {
	return &ScanOrchestrator{
		scans:    scans,
		workflow: workflow,
		storage:  storage,
		hub:      hub,
		log:      utils.Logger(),
	}
}

// RunAnalysis drives one attempt for the given scan. The returned error is
// non-nil only when the scan does not exist for this user; every failure
// after that point is recorded as a failed outcome instead, because the
// caller typically fired this detached and nothing is waiting to catch a
// raised error.
func (o *ScanOrchestrator) RunAnalysis(ctx context.Context, userID uint, scanID uuid.UUID) (*AnalysisOutcome, error) {
	scan, err := o.scans.GetByID(ctx, userID, scanID)
	if err != nil {
		return nil, err
	}
	if scan.Status.IsTerminal() {
		// First write won; re-invocation reports the recorded state.
		o.log.WithFields(logrus.Fields{"scan_id": scanID, "status": scan.Status}).
			Info("scan already finalized, skipping analysis")
		return &AnalysisOutcome{Status: scan.Status, Error: ErrScanFinalized.Error()}, nil
	}

	runID := NewRunID(scanID)
	if err := o.scans.AcquireRun(ctx, userID, scanID, runID); err != nil {
		if errors.Is(err, ErrAnalysisLocked) {
			o.log.WithFields(logrus.Fields{"scan_id": scanID}).Warn("rejecting duplicate analysis run")
			return &AnalysisOutcome{Status: models.ScanStatusFailed, Error: err.Error()}, nil
		}
		return nil, err
	}
	o.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"scan_id": scanID,
		"user_id": userID,
	}).Info("starting food scan analysis")

	imageURL, err := o.resolveImage(ctx, scan)
	if err != nil {
		// Short-circuit: the workflow is never invoked without an image.
		return o.finishFailed(ctx, userID, scanID, missingImageMessage), nil
	}

	result := o.workflow.Run(ctx, runID, WorkflowInput{ImageURL: imageURL})
	if result.Status != models.AnalysisStatusCompleted {
		msg := "analysis failed"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		return o.finishFailed(ctx, userID, scanID, msg), nil
	}

	outcome := &AnalysisOutcome{Status: models.ScanStatusCompleted, Analysis: result.Analysis}
	err = o.scans.ApplyOutcome(ctx, userID, scanID, OutcomeInput{
		Status:      models.ScanStatusCompleted,
		Analysis:    result.Analysis,
		RawResponse: map[string]any{"model_output": result.RawResponse},
	})
	if err != nil {
		// The inference already ran and cannot be compensated; all we can
		// do is record the persistence failure as the outcome.
		return o.recordWriteFailure(ctx, userID, scanID, runID, err), nil
	}

	o.broadcast(ctx, userID, scanID)
	o.log.WithFields(logrus.Fields{"run_id": runID, "scan_id": scanID}).Info("food scan analysis completed")
	return outcome, nil
}

func (o *ScanOrchestrator) resolveImage(ctx context.Context, scan *models.FoodScan) (string, error) {
	if scan.ImageURL != "" {
		return scan.ImageURL, nil
	}
	if scan.StorageKey != "" && o.storage != nil {
		return o.storage.ResolveImageURL(ctx, scan.StorageKey)
	}
	return "", errors.New(missingImageMessage)
}

func (o *ScanOrchestrator) finishFailed(ctx context.Context, userID uint, scanID uuid.UUID, msg string) *AnalysisOutcome {
	err := o.scans.ApplyOutcome(ctx, userID, scanID, OutcomeInput{
		Status:      models.ScanStatusFailed,
		RawResponse: map[string]any{"error": msg},
	})
	if err != nil && !errors.Is(err, ErrScanFinalized) {
		o.log.WithFields(logrus.Fields{"scan_id": scanID}).
			WithError(err).Error("failed to persist failed scan outcome")
	}
	o.broadcast(ctx, userID, scanID)
	o.log.WithFields(logrus.Fields{"scan_id": scanID, "reason": msg}).Warn("food scan analysis failed")
	return &AnalysisOutcome{Status: models.ScanStatusFailed, Error: msg}
}

func (o *ScanOrchestrator) recordWriteFailure(ctx context.Context, userID uint, scanID uuid.UUID, runID string, err error) *AnalysisOutcome {
	if errors.Is(err, ErrScanFinalized) {
		// A concurrent attempt finished first; its outcome stands.
		o.log.WithFields(logrus.Fields{"run_id": runID, "scan_id": scanID}).
			Warn("scan already finalized by another run")
		return &AnalysisOutcome{Status: models.ScanStatusFailed, Error: err.Error()}
	}
	msg := fmt.Sprintf("failed to persist analysis outcome: %v", err)
	return o.finishFailed(ctx, userID, scanID, msg)
}

func (o *ScanOrchestrator) broadcast(ctx context.Context, userID uint, scanID uuid.UUID) {
	if o.hub == nil {
		return
	}
	if scan, err := o.scans.GetByID(ctx, userID, scanID); err == nil {
		o.hub.BroadcastScanUpdate(scan)
	}
}
