package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mealscan-backend/models"
)

var (
	ErrUnauthorized = errors.New("authenticated user required")
	ErrScanNotFound = errors.New("scan not found")
	// ErrScanFinalized guards terminal states: a late or duplicate analysis
	// result must not overwrite a scan that already completed or failed.
	ErrScanFinalized = errors.New("scan already in a terminal state")
	// ErrAnalysisLocked means another analysis run is in flight for the scan.
	ErrAnalysisLocked = errors.New("analysis already in progress")
)

// Locks older than this are treated as abandoned (crashed run) and may be
// taken over by a new attempt.
const runLockTTL = 10 * time.Minute

type ScanService struct {
	db *gorm.DB
}

func NewScanService(db *gorm.DB) *ScanService {
	return &ScanService{db: db}
}

type CreateScanInput struct {
	Source     models.ScanSource
	ImageURL   string
	StorageKey string
}

// Create inserts a FoodScan and its paired FoodAnalysis, both in
// "processing", in one transaction. The scan is analyzable as soon as
// Create returns, which is why the client awaits it before firing analyze.
func (s *ScanService) Create(ctx context.Context, userID uint, in CreateScanInput) (*models.FoodScan, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if !in.Source.Valid() {
		return nil, fmt.Errorf("invalid scan source %q", in.Source)
	}

	scan := &models.FoodScan{
		UserID:     userID,
		Status:     models.ScanStatusProcessing,
		Source:     in.Source,
		ImageURL:   in.ImageURL,
		StorageKey: in.StorageKey,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(scan).Error; err != nil {
			return err
		}
		analysis := &models.FoodAnalysis{
			ScanID: scan.ID,
			Status: models.AnalysisStatusProcessing,
		}
		return tx.Create(analysis).Error
	})
	if err != nil {
		return nil, err
	}
	return scan, nil
}

// GetByID returns the scan only when it belongs to userID. A foreign scan
// reads as not-found so callers cannot probe for existence.
func (s *ScanService) GetByID(ctx context.Context, userID uint, scanID uuid.UUID) (*models.FoodScan, error) {
	var scan models.FoodScan
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", scanID, userID).
		First(&scan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

func (s *ScanService) ListForUser(ctx context.Context, userID uint) ([]models.FoodScan, error) {
	var scans []models.FoodScan
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&scans).Error
	return scans, err
}

func (s *ScanService) GetAnalysis(ctx context.Context, userID uint, scanID uuid.UUID) (*models.FoodAnalysis, error) {
	if _, err := s.GetByID(ctx, userID, scanID); err != nil {
		return nil, err
	}
	var analysis models.FoodAnalysis
	err := s.db.WithContext(ctx).
		Where("scan_id = ?", scanID).
		First(&analysis).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// Delete removes the analysis row(s) for the scan, then the scan itself.
func (s *ScanService) Delete(ctx context.Context, userID uint, scanID uuid.UUID) error {
	if _, err := s.GetByID(ctx, userID, scanID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scan_id = ?", scanID).Delete(&models.FoodAnalysis{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", scanID, userID).Delete(&models.FoodScan{}).Error
	})
}

// AcquireRun claims the per-scan analysis lock for runID. At most one run
// can hold it; a second caller gets ErrAnalysisLocked until the first run's
// terminal write releases it, or the lock goes stale.
func (s *ScanService) AcquireRun(ctx context.Context, userID uint, scanID uuid.UUID, runID string) error {
	if _, err := s.GetByID(ctx, userID, scanID); err != nil {
		return err
	}
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.FoodAnalysis{}).
		Where("scan_id = ? AND (locked_at IS NULL OR locked_at < ?)", scanID, now.Add(-runLockTTL)).
		Updates(map[string]any{"run_id": runID, "locked_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAnalysisLocked
	}
	return nil
}

type OutcomeInput struct {
	Status      models.ScanStatus // completed or failed
	Analysis    *AnalysisPayload  // normalized; required when Status == completed
	RawResponse map[string]any
}

// ApplyOutcome is the single writer for the dual-record projection: it
// patches the FoodAnalysis and mirrors the display fields onto the FoodScan
// in one transaction, so the two copies cannot drift. First write wins —
// a scan already in a terminal state is never re-patched.
func (s *ScanService) ApplyOutcome(ctx context.Context, userID uint, scanID uuid.UUID, in OutcomeInput) error {
	if in.Status != models.ScanStatusCompleted && in.Status != models.ScanStatusFailed {
		return fmt.Errorf("invalid outcome status %q", in.Status)
	}
	if in.Status == models.ScanStatusCompleted && in.Analysis == nil {
		return fmt.Errorf("completed outcome requires an analysis")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var scan models.FoodScan
		err := tx.Where("id = ? AND user_id = ?", scanID, userID).First(&scan).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrScanNotFound
		}
		if err != nil {
			return err
		}
		if scan.Status.IsTerminal() {
			return ErrScanFinalized
		}

		var analysis models.FoodAnalysis
		err = tx.Where("scan_id = ?", scanID).First(&analysis).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrScanNotFound
		}
		if err != nil {
			return err
		}

		now := time.Now()
		scan.Status = in.Status
		analysis.RawResponse = in.RawResponse
		analysis.LockedAt = nil // terminal write releases the run lock

		switch in.Status {
		case models.ScanStatusCompleted:
			a := in.Analysis
			analysis.Status = models.AnalysisStatusCompleted
			analysis.Calories = a.Summary.Calories
			analysis.Protein = a.Summary.Protein
			analysis.Carbs = a.Summary.Carbs
			analysis.Fat = a.Summary.Fat
			analysis.Ingredients = a.Ingredients
			analysis.Confidence = a.Confidence

			summary := a.Summary
			scan.Title = a.Title
			scan.MealType = a.MealType
			scan.Summary = &summary
			scan.Ingredients = a.Ingredients
			scan.LastAnalyzedAt = &now
		case models.ScanStatusFailed:
			analysis.Status = models.AnalysisStatusFailed
		}

		if err := tx.Save(&analysis).Error; err != nil {
			return err
		}
		return tx.Save(&scan).Error
	})
}
