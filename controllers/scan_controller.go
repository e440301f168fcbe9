package controllers

import (
	"errors"
	"net/http"

	"mealscan-backend/models"
	"mealscan-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ScanController struct {
	scans *services.ScanService
	orch  *services.ScanOrchestrator
}

func NewScanController(scans *services.ScanService, orch *services.ScanOrchestrator) *ScanController {
	return &ScanController{scans: scans, orch: orch}
}

type CreateScanRequest struct {
	Source     string `json:"source" binding:"required"`
	ImageURL   string `json:"image_url"`
	StorageKey string `json:"storage_key"`
}

// POST /scans — creates the scan+analysis pair in "processing". The client
// is expected to fire POST /scans/:id/analyze right after this returns.
func (sc *ScanController) CreateScan(c *gin.Context) {
	var req CreateScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scan, err := sc.scans.Create(c.Request.Context(), c.GetUint("userID"), services.CreateScanInput{
		Source:     models.ScanSource(req.Source),
		ImageURL:   req.ImageURL,
		StorageKey: req.StorageKey,
	})
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"scan_id": scan.ID, "status": scan.Status})
}

// GET /scans
func (sc *ScanController) ListScans(c *gin.Context) {
	scans, err := sc.scans.ListForUser(c.Request.Context(), c.GetUint("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, scans)
}

// GET /scans/:id
func (sc *ScanController) GetScan(c *gin.Context) {
	scanID, ok := sc.scanID(c)
	if !ok {
		return
	}
	scan, err := sc.scans.GetByID(c.Request.Context(), c.GetUint("userID"), scanID)
	if err != nil {
		sc.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, scan)
}

// GET /scans/:id/analysis
func (sc *ScanController) GetScanAnalysis(c *gin.Context) {
	scanID, ok := sc.scanID(c)
	if !ok {
		return
	}
	analysis, err := sc.scans.GetAnalysis(c.Request.Context(), c.GetUint("userID"), scanID)
	if err != nil {
		sc.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// DELETE /scans/:id
func (sc *ScanController) DeleteScan(c *gin.Context) {
	scanID, ok := sc.scanID(c)
	if !ok {
		return
	}
	if err := sc.scans.Delete(c.Request.Context(), c.GetUint("userID"), scanID); err != nil {
		sc.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /scans/:id/analyze — runs the full analysis attempt and reports the
// outcome. Outcome "failed" is still HTTP 200: the failure is recorded
// state, not a request error.
func (sc *ScanController) AnalyzeScan(c *gin.Context) {
	scanID, ok := sc.scanID(c)
	if !ok {
		return
	}
	outcome, err := sc.orch.RunAnalysis(c.Request.Context(), c.GetUint("userID"), scanID)
	if err != nil {
		sc.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (sc *ScanController) scanID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan id"})
		return uuid.Nil, false
	}
	return id, true
}

func (sc *ScanController) renderError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrScanNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
