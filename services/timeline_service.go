package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"mealscan-backend/models"
)

// TimelineService builds the denormalized read model the client timeline
// renders: per-day macro totals over completed scans. It reads only the
// FoodScan projection, never the analysis rows.
type TimelineService struct {
	db *gorm.DB
}

func NewTimelineService(db *gorm.DB) *TimelineService {
	return &TimelineService{db: db}
}

type TimelineDay struct {
	Date      string              `json:"date"` // yyyy-mm-dd
	Summary   models.MacroSummary `json:"summary"`
	ScanCount int                 `json:"scan_count"`
}

// Timeline returns one entry per day that has at least one completed scan,
// most recent day first.
func (s *TimelineService) Timeline(ctx context.Context, userID uint, from, to time.Time) ([]TimelineDay, error) {
	var scans []models.FoodScan
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND created_at >= ? AND created_at < ?",
			userID, models.ScanStatusCompleted, from, to).
		Order("created_at DESC").
		Find(&scans).Error
	if err != nil {
		return nil, err
	}

	idx := map[string]int{}
	var days []TimelineDay
	for _, scan := range scans {
		key := scan.CreatedAt.Format("2006-01-02")
		i, ok := idx[key]
		if !ok {
			i = len(days)
			idx[key] = i
			days = append(days, TimelineDay{Date: key})
		}
		if scan.Summary != nil {
			days[i].Summary = days[i].Summary.Add(*scan.Summary)
		}
		days[i].ScanCount++
	}
	return days, nil
}
