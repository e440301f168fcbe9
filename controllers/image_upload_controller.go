package controllers

import (
	"net/http"

	"mealscan-backend/services"

	"github.com/gin-gonic/gin"
)

type UploadController struct {
	storage *services.StorageService
}

func NewUploadController(storage *services.StorageService) *UploadController {
	return &UploadController{storage: storage}
}

type UploadImageRequest struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
}

// POST /uploads/image — stores a base64 meal photo and returns both the
// resolvable URL and the storage key; either can seed a scan.
func (uc *UploadController) UploadMealImage(c *gin.Context) {
	var req UploadImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	url, key, err := uc.storage.UploadBase64Image(c.Request.Context(), req.ImageBase64)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "storage_key": key})
}
