package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rutinasds/routines-app/internal/feed"
	"rutinasds/routines-app/internal/metrics"
	"rutinasds/routines-app/internal/service"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Identity     service.IdentityService
	Sync         service.SyncService
	Catalog      service.CatalogService
	Assignments  service.AssignmentService
	Plans        service.PlanService
	Executions   service.ExecutionService
	Measurements service.MeasurementService
	Audit        service.AuditService

	FeedSource feed.Source                     // Optional
	Metrics    *metrics.Metrics                // Optional, serves /metrics
	Ready      func(ctx context.Context) error // Optional readiness probe, e.g. a DB ping
}

func SetupRoutes(router *gin.Engine, svc Services) {
	authHandler := NewAuthHandler(svc.Identity)
	clientHandler := NewClientHandler(svc.Identity, svc.Plans, svc.Assignments, svc.Measurements)
	catalogHandler := NewCatalogHandler(svc.Catalog, svc.Sync, svc.FeedSource)
	planHandler := NewPlanHandler(svc.Assignments, svc.Executions)
	auditHandler := NewAuditHandler(svc.Audit)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if svc.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := svc.Ready(ctx); err != nil {
				_ = c.Error(err)
				abortWithError(c, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if svc.Metrics != nil {
		router.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))
	}

	apiV1 := router.Group("/api/v1")
	apiV1.POST("/auth/login", authHandler.Login)

	protected := apiV1.Group("")
	protected.Use(AuthMiddleware(svc.Identity))
	{
		protected.GET("/me", authHandler.Me)
		protected.POST("/staff", authHandler.CreateStaff)
		protected.POST("/users/:userId/deactivate", authHandler.Deactivate)

		catalog := protected.Group("/catalog")
		{
			catalog.GET("/routines", catalogHandler.ListRoutines)
			catalog.GET("/routines/:ref", catalogHandler.GetRoutine)
			catalog.GET("/routines/:ref/versions", catalogHandler.ListVersions)
			catalog.GET("/exercises", catalogHandler.ListExercises)
			catalog.PATCH("/items/:itemId", catalogHandler.EditItem)
			catalog.POST("/sync", catalogHandler.Sync)
			catalog.POST("/sync/source", catalogHandler.SyncFromSource)
			catalog.GET("/syncs/:syncId/feed", catalogHandler.ArchivedFeed)
		}

		clients := protected.Group("/clients")
		{
			clients.POST("", clientHandler.CreateClient)
			clients.GET("", clientHandler.ListClients)
			clients.GET("/:clientId", clientHandler.GetClient)
			clients.PUT("/:clientId/trainer", clientHandler.AssignTrainer)
			clients.POST("/:clientId/assignments", clientHandler.AssignRoutine)
			clients.GET("/:clientId/plan", clientHandler.GetActivePlan)
			clients.GET("/:clientId/plans", clientHandler.ListPlans)
			clients.POST("/:clientId/plans", clientHandler.Activate)
			clients.GET("/:clientId/snapshots", clientHandler.ListSnapshots)
			clients.GET("/:clientId/measurements", clientHandler.ListMeasurements)
			clients.PUT("/:clientId/measurements/:date", clientHandler.UpsertMeasurement)
		}

		protected.PATCH("/snapshot-items/:itemId", planHandler.EditSnapshotItem)

		plans := protected.Group("/plans/:planId")
		{
			plans.POST("/executions", planHandler.MarkExecuted)
			plans.GET("/executions", planHandler.ListExecutions)
			plans.GET("/progress", planHandler.Progress)
			plans.GET("/today", planHandler.Today)
		}

		protected.GET("/audit", auditHandler.List)
	}
}

// NewRouter builds a gin engine with recovery, request logging and every route.
func NewRouter(svc Services, mode string, middleware ...gin.HandlerFunc) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware...)
	SetupRoutes(router, svc)
	return router
}
