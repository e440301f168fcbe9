package controllers

import (
	"net/http"
	"time"

	"mealscan-backend/services"

	"github.com/gin-gonic/gin"
)

type TimelineController struct {
	timeline *services.TimelineService
}

func NewTimelineController(timeline *services.TimelineService) *TimelineController {
	return &TimelineController{timeline: timeline}
}

// GET /timeline?from=2026-08-25&to=2026-09-01 — defaults to the last 7 days.
func (tc *TimelineController) GetTimeline(c *gin.Context) {
	now := time.Now()
	from := now.AddDate(0, 0, -7)
	to := now

	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
		// inclusive end date
		to = t.AddDate(0, 0, 1)
	}

	days, err := tc.timeline.Timeline(c.Request.Context(), c.GetUint("userID"), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, days)
}
