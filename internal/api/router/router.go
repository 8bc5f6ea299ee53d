package router

import (
	"github.com/cuongbtq/docking-be/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	handler.RegisterValidation()

	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	dockingHandler := handler.NewDockingHandler(deps)

	// Health check endpoint
	r.GET("/health", dockingHandler.Health)

	docking := r.Group("/api/docking")
	{
		// POST /api/docking/submit - Queue a docking job
		docking.POST("/submit", dockingHandler.SubmitJob)

		// GET /api/docking/status/:job_id - Job status and progress
		docking.GET("/status/:job_id", dockingHandler.GetStatus)

		jobs := docking.Group("/jobs")
		{
			// GET /api/docking/jobs - Job history with filtering and pagination
			jobs.GET("", dockingHandler.ListJobs)

			// GET /api/docking/jobs/:job_id/results - Poses and analysis
			jobs.GET("/:job_id/results", dockingHandler.GetResults)

			// GET /api/docking/jobs/:job_id/score - Composite score view
			jobs.GET("/:job_id/score", dockingHandler.GetScore)

			// POST /api/docking/jobs/:job_id/rerun - Resubmit a failed job
			jobs.POST("/:job_id/rerun", dockingHandler.RerunJob)

			// DELETE /api/docking/jobs/:job_id - Cancel a queued or running job
			jobs.DELETE("/:job_id", dockingHandler.CancelJob)
		}
	}

	return r
}
