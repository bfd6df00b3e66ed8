package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-noc-api/internal/handler"
	"github.com/noah-isme/hostel-noc-api/internal/middleware"
	"github.com/noah-isme/hostel-noc-api/internal/models"
	"github.com/noah-isme/hostel-noc-api/internal/service"
	"github.com/noah-isme/hostel-noc-api/pkg/config"
	"github.com/noah-isme/hostel-noc-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/hostel-noc-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/hostel-noc-api/pkg/middleware/requestid"
)

type routerDeps struct {
	tokens        middleware.TokenValidator
	metrics       *service.MetricsService
	audit         middleware.AuditSink
	noc           *handler.NOCHandler
	checklist     *handler.ChecklistHandler
	notifications *handler.NotificationHandler
	observability *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, d routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics, "/metrics", "/health", "/ready"))

	r.GET("/health", d.observability.Health)
	r.GET("/ready", d.observability.Ready)
	r.GET("/metrics", d.observability.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := models.RoleAdmin
	warden := models.RoleWarden
	student := models.RoleStudent

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(d.tokens), middleware.WithResponseMeta())

	noc := api.Group("/noc-requests")
	noc.POST("", middleware.RequireRoles(student, warden), d.noc.Create)
	noc.GET("", d.noc.List)
	noc.GET("/export", middleware.RequireRoles(admin), middleware.Audit(d.audit, logr, models.AuditActionNOCExport, "noc_request"), d.noc.Export)
	noc.GET("/eligible-students", middleware.RequireRoles(warden), d.noc.EligibleStudents)
	noc.GET("/:id", d.noc.Get)
	noc.GET("/:id/history", d.noc.History)
	noc.GET("/:id/certificate", middleware.Audit(d.audit, logr, models.AuditActionCertificateDownload, "noc_request"), d.noc.Certificate)
	noc.DELETE("/:id", middleware.RequireRoles(student), d.noc.Delete)
	noc.POST("/:id/verify", middleware.RequireRoles(warden), d.noc.Verify)
	noc.POST("/:id/reverify", middleware.RequireRoles(warden), d.noc.Reverify)
	noc.POST("/:id/reject", middleware.RequireRoles(warden, admin), d.noc.Reject)
	noc.POST("/:id/approve", middleware.RequireRoles(admin), d.noc.Approve)
	noc.POST("/:id/correction", middleware.RequireRoles(admin), d.noc.SendForCorrection)

	api.GET("/students/:studentId/noc-requests", middleware.RBAC(string(admin), string(warden), "SELF"), d.noc.ListByStudent)

	checklist := api.Group("/noc-checklist")
	checklist.GET("", d.checklist.List)
	checklist.POST("", middleware.RequireRoles(admin), d.checklist.Create)
	checklist.PUT("/reorder", middleware.RequireRoles(admin), d.checklist.Reorder)
	checklist.GET("/:id", d.checklist.Get)
	checklist.PUT("/:id", middleware.RequireRoles(admin), d.checklist.Update)
	checklist.DELETE("/:id", middleware.RequireRoles(admin), d.checklist.Delete)

	api.GET("/notifications", d.notifications.List)

	return r
}
