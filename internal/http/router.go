package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/civicdesk/backend/internal/config"
	"github.com/civicdesk/backend/internal/http/handlers"
	"github.com/civicdesk/backend/internal/http/middleware"
	"github.com/civicdesk/backend/internal/ratelimit"
	"github.com/civicdesk/backend/internal/service"

	_ "github.com/civicdesk/backend/docs"
)

type Deps struct {
	Store      handlers.Pinger
	Complaints *service.ComplaintService
	Registry   *service.Registry
	Metrics    *service.Metrics
	Limiter    ratelimit.Limiter
	Logger     zerolog.Logger
}

func Router(cfg config.Config, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.AdminKeyHeader, middleware.ActorRoleHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = splitOrigins(cfg.CORSAllowed)
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:      deps.Store,
		Complaints: deps.Complaints,
		Registry:   deps.Registry,
		Metrics:    deps.Metrics,
		Validator:  handlers.NewValidator(),
		Logger:     deps.Logger,
	}
	submitLimit := middleware.RateLimit(deps.Limiter, "submit", deps.Logger)
	upvoteLimit := middleware.RateLimit(deps.Limiter, "upvote", deps.Logger)

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.Use(middleware.Actor(cfg.AdminKey))
	{
		api.POST("/complaints", submitLimit, h.CreateComplaint)
		api.GET("/complaints", h.ListComplaints)
		api.GET("/complaints/unassigned", h.UnassignedComplaints)
		api.GET("/complaints/nearby", h.NearbyComplaints)
		api.GET("/complaints/:id", h.GetComplaint)
		api.GET("/complaints/:id/history", h.ComplaintHistory)
		api.GET("/complaints/:id/suggestion", h.ComplaintSuggestion)
		api.POST("/complaints/:id/upvote", upvoteLimit, h.UpvoteComplaint)
		api.POST("/complaints/:id/status", h.ChangeStatus)
		api.PUT("/complaints/:id/estimate", h.SetEstimate)

		api.GET("/departments", h.ListDepartments)
		api.GET("/departments/:id", h.GetDepartment)
		api.GET("/departments/:id/stats", h.DepartmentStats)
		api.GET("/departments/:id/overview", h.DepartmentOverview)

		api.GET("/metrics/overview", h.MetricsOverview)
		api.GET("/metrics/categories", h.MetricsCategories)
		api.GET("/metrics/departments", h.MetricsDepartments)
		api.GET("/metrics/overdue", h.MetricsOverdue)
		api.GET("/metrics/recent", h.MetricsRecent)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/complaints/:id/assign", h.AssignComplaint)
		admin.DELETE("/complaints/:id/assign", h.UnassignComplaint)
		admin.PATCH("/complaints/:id", h.UpdateComplaint)
		admin.POST("/departments/import", h.ImportDepartments)
		admin.PUT("/departments/:id", h.PutDepartment)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

func splitOrigins(raw string) []string {
	out := []string{}
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
