package main

import (
	"context"
	"log"

	"mealscan-backend/config"
	"mealscan-backend/controllers"
	"mealscan-backend/routes"
	"mealscan-backend/services"
)

func main() {
	config.InitDB()

	storage, err := services.NewStorageService(context.Background())
	if err != nil {
		log.Fatalf("failed to initialize storage: %v", err)
	}

	hub := services.NewRealtimeHub()
	scans := services.NewScanService(config.DB)
	workflow := services.NewAnalysisWorkflow(services.NewVisionService())
	orch := services.NewScanOrchestrator(scans, workflow, storage, hub)

	r := routes.SetupRouter(routes.Controllers{
		Auth:     controllers.NewAuthController(services.NewAuthService(config.DB)),
		Scans:    controllers.NewScanController(scans, orch),
		Timeline: controllers.NewTimelineController(services.NewTimelineService(config.DB)),
		Uploads:  controllers.NewUploadController(storage),
		Realtime: controllers.NewRealtimeController(hub),
	})
	r.Run(":8080")
}
