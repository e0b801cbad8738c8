package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/trackr/internal/api/handler"
	"github.com/timmy/trackr/internal/api/middleware"
	"github.com/timmy/trackr/internal/config"
	"github.com/timmy/trackr/internal/logger"
	"github.com/timmy/trackr/internal/service"
)

// Services bundles what the HTTP layer serves.
type Services struct {
	Campaigns *service.CampaignService
	Registry  *service.PostRegistry
	Jobs      *service.JobCoordinator
	Reports   *service.ReportService
	Tracker   *service.LiveTracker
	// Checks are reported by /health, keyed by dependency name.
	Checks map[string]handler.Check
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc *Services, cfg *config.ServerConfig, log *logger.Logger) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(svc.Checks)
	campaignHandler := handler.NewCampaignHandler(svc.Campaigns, svc.Reports)
	postHandler := handler.NewPostHandler(svc.Registry)
	jobHandler := handler.NewJobHandler(svc.Jobs)
	trackerHandler := handler.NewTrackerHandler(svc.Tracker)
	publicHandler := handler.NewPublicHandler(svc.Campaigns)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Campaigns
		v1.GET("/campaigns", campaignHandler.ListCampaigns)
		v1.POST("/campaigns", campaignHandler.CreateCampaign)
		v1.GET("/campaigns/:id", campaignHandler.GetCampaign)
		v1.PATCH("/campaigns/:id", campaignHandler.UpdateCampaign)
		v1.DELETE("/campaigns/:id", campaignHandler.DeleteCampaign)
		v1.PUT("/campaigns/:id/sharing", campaignHandler.UpdateSharing)

		// History and reports
		v1.GET("/campaigns/:id/history", campaignHandler.History)
		v1.GET("/campaigns/:id/windows", campaignHandler.Windows)
		v1.GET("/campaigns/:id/report", campaignHandler.Report)
		v1.POST("/campaigns/:id/export", campaignHandler.Export)
		v1.GET("/campaigns/:id/exports/:name", campaignHandler.DownloadExport)

		// Posts
		v1.GET("/campaigns/:id/posts", postHandler.ListPosts)
		v1.POST("/campaigns/:id/posts", postHandler.AddPost)
		v1.POST("/campaigns/:id/posts/import", postHandler.ImportPosts)
		v1.POST("/campaigns/:id/placeholders", postHandler.AddPlaceholder)
		v1.GET("/posts/:id", postHandler.GetPost)
		v1.PATCH("/posts/:id", postHandler.UpdatePost)
		v1.DELETE("/posts/:id", postHandler.DeletePost)

		// Scraping
		v1.POST("/campaigns/:id/rescrape", jobHandler.RescrapeCampaign)
		v1.GET("/campaigns/:id/jobs/active", jobHandler.GetActiveJob)
		v1.POST("/posts/:id/rescrape", jobHandler.RescrapePost)
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.GET("/jobs/:id/tasks", jobHandler.GetTasks)

		// Tracker
		v1.GET("/tracker", trackerHandler.Status)
		v1.POST("/tracker/start", trackerHandler.Start)
		v1.POST("/tracker/stop", trackerHandler.Stop)
		v1.POST("/tracker/run", trackerHandler.RunNow)

		// Public share links
		public := v1.Group("/public/:slug")
		public.GET("", publicHandler.GetCampaign)
		public.GET("/posts", publicHandler.ListPosts)
		public.GET("/history", publicHandler.History)
		public.GET("/windows", publicHandler.Windows)
	}

	return r
}
