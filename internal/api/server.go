// Package api exposes the HTTP interface: image upload ingestion, record
// CRUD, notifications, daily reports and Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/datastore"
	"github.com/classcount/classcount-go/internal/ingest"
	"github.com/classcount/classcount-go/internal/logging"
	"github.com/classcount/classcount-go/internal/observability"
	"github.com/classcount/classcount-go/internal/report"
)

// Server wires the HTTP layer to the core services.
type Server struct {
	Echo *echo.Echo

	settings *conf.Settings
	store    datastore.Interface
	pipeline *ingest.Pipeline
	reports  *report.Service
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewServer creates the echo server with middleware and routes configured.
func NewServer(settings *conf.Settings, store datastore.Interface, pipeline *ingest.Pipeline, reports *report.Service, metrics *observability.Metrics) *Server {
	s := &Server{
		Echo:     echo.New(),
		settings: settings,
		store:    store,
		pipeline: pipeline,
		reports:  reports,
		metrics:  metrics,
		logger:   logging.ForService("api"),
	}

	s.Echo.HideBanner = true
	s.Echo.Use(middleware.Recover())
	if settings.WebServer.RateLimit > 0 {
		s.Echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:  rate.Limit(settings.WebServer.RateLimit),
				Burst: settings.WebServer.RateBurst,
			}),
		}))
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.Echo.Group("/api/v1")

	v1.POST("/auth/register", s.handleRegister)
	v1.POST("/auth/login", s.handleLogin)

	v1.GET("/schools", s.handleListSchools)
	v1.POST("/schools", s.handleCreateSchool)
	v1.GET("/schools/:id", s.handleGetSchool)
	v1.PUT("/schools/:id", s.handleUpdateSchool)
	v1.DELETE("/schools/:id", s.handleDeleteSchool)

	v1.GET("/users", s.handleListUsers)
	v1.GET("/users/:id", s.handleGetUser)

	v1.GET("/images", s.handleListImages)
	v1.POST("/images", s.handleUploadImage)
	v1.GET("/images/recent", s.handleRecentImages)
	v1.GET("/images/:id", s.handleGetImage)
	v1.DELETE("/images/:id", s.handleDeleteImage)

	v1.GET("/notifications", s.handleListNotifications)
	v1.GET("/notifications/:id", s.handleGetNotification)
	v1.POST("/notifications/:id/sent", s.handleMarkNotificationSent)
	v1.DELETE("/notifications/:id", s.handleDeleteNotification)

	v1.GET("/reports", s.handleListReports)
	v1.POST("/reports", s.handleGenerateReport)
	v1.GET("/reports/summary", s.handleDailySummary)
	v1.GET("/reports/:id", s.handleGetReport)
	v1.DELETE("/reports/:id", s.handleDeleteReport)

	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}

	s.Echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Start runs the HTTP server on the configured port. Blocks until shutdown.
func (s *Server) Start() error {
	addr := ":" + s.settings.WebServer.Port
	s.logger.Info("starting web server", "addr", addr)
	return s.Echo.Start(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}
