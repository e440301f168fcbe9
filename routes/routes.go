package routes

import (
	"mealscan-backend/controllers"
	"mealscan-backend/middlewares"

	"github.com/gin-gonic/gin"
)

type Controllers struct {
	Auth     *controllers.AuthController
	Scans    *controllers.ScanController
	Timeline *controllers.TimelineController
	Uploads  *controllers.UploadController
	Realtime *controllers.RealtimeController
}

func SetupRouter(ctrl Controllers) *gin.Engine {
	r := gin.Default()

	// Public auth routes
	auth := r.Group("/auth")
	{
		auth.POST("/register", ctrl.Auth.Register)
		auth.POST("/login", ctrl.Auth.Login)
	}

	// Protected routes
	api := r.Group("/")
	api.Use(middlewares.AuthMiddleware())
	{
		api.POST("/scans", ctrl.Scans.CreateScan)
		api.GET("/scans", ctrl.Scans.ListScans)
		api.GET("/scans/:id", ctrl.Scans.GetScan)
		api.GET("/scans/:id/analysis", ctrl.Scans.GetScanAnalysis)
		api.DELETE("/scans/:id", ctrl.Scans.DeleteScan)
		api.POST("/scans/:id/analyze", ctrl.Scans.AnalyzeScan)

		api.GET("/timeline", ctrl.Timeline.GetTimeline)
		api.POST("/uploads/image", ctrl.Uploads.UploadMealImage)
		api.GET("/ws/scans", ctrl.Realtime.ScansWS)
	}

	return r
}
