// Package api exposes the wizard over HTTP. Each session is a server-side
// wizard; every action answers with the resulting state snapshot.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-wizard/internal/catalog"
	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/events"
	"github.com/pharmaguard-wizard/internal/history"
	"github.com/pharmaguard-wizard/internal/middleware"
	"github.com/pharmaguard-wizard/internal/session"
	"github.com/pharmaguard-wizard/pkg/backend"
)

// Version is reported by the liveness endpoint
const Version = "1.0.0"

// uploadOverhead is the multipart framing allowed on top of the file itself
const uploadOverhead = 1 << 20

// Backend is the part of the analysis backend the API talks to directly
type Backend interface {
	InspectVCF(ctx context.Context, fileName string, content []byte) (*backend.VCFInspection, error)
	Health(ctx context.Context) (map[string]interface{}, error)
	BaseURL() string
}

// Dependencies are the collaborators a Server routes requests to
type Dependencies struct {
	Sessions *session.Manager
	Catalog  *catalog.Catalog
	Backend  Backend
	History  history.Store // nil disables the report endpoints
	Hub      *events.Hub
	Logger   *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	router        *gin.Engine
	server        *http.Server

	sessions *session.Manager
	catalog  *catalog.Catalog
	backend  Backend
	history  history.Store
	events   *events.Handler
	logger   *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	if gin.Mode() != gin.TestMode {
		if cfg.Logging.Level == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cat := deps.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	hub := deps.Hub
	if hub == nil {
		hub = events.NewHub(logger)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes + uploadOverhead
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestTimeout(cfg.Server.WriteTimeout))

	s := &Server{
		configManager: configManager,
		router:        router,
		sessions:      deps.Sessions,
		catalog:       cat,
		backend:       deps.Backend,
		history:       deps.History,
		events:        events.NewHandler(hub, cfg.Server.AllowedOrigins, logger),
		logger:        logger,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/drugs", s.handleListDrugs)
		v1.POST("/inspect", s.handleInspect)
		v1.GET("/backend/health", s.handleBackendHealth)

		sessions := v1.Group("/sessions")
		sessions.POST("", s.handleCreateSession)

		one := sessions.Group("/:id", s.loadSession)
		{
			one.GET("", s.handleGetSession)
			one.DELETE("", s.handleDeleteSession)
			one.GET("/events", s.handleSessionEvents)

			one.PUT("/mode", s.handleSetMode)
			one.POST("/file", s.handleSelectFile)
			one.DELETE("/file", s.handleClearFile)
			one.POST("/variants", s.handleAddVariantRow)
			one.PATCH("/variants/:row", s.handleUpdateVariantRow)
			one.DELETE("/variants/:row", s.handleRemoveVariantRow)
			one.PUT("/patient", s.handleSetPatient)
			one.POST("/submit", s.handleSubmit)
			one.POST("/transition-complete", s.handleFinishTransition)

			one.PUT("/drugs", s.handleSetDrugs)
			one.POST("/drugs/:drug/toggle", s.handleToggleDrug)
			one.POST("/change-file", s.handleChangeFile)
			one.POST("/analyze", s.handleAnalyze)

			one.POST("/change-drugs", s.handleChangeDrugs)
			one.POST("/restart", s.handleRestart)
		}

		reports := v1.Group("/reports", s.requireHistory)
		{
			reports.GET("", s.handleListReports)
			reports.GET("/export", s.handleExportReports)
			reports.GET("/:id", s.handleGetReport)
			reports.DELETE("/:id", s.handleDeleteReport)
		}
	}
}

// handleHealth handles liveness requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"sessions":  s.sessions.Len(),
	})
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", middleware.CorrelationHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.CorrelationHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range allowedOrigins {
		if o == "*" {
			config.AllowAllOrigins = true
			config.AllowCredentials = false
			return cors.New(config)
		}
	}
	config.AllowOrigins = allowedOrigins
	if len(config.AllowOrigins) == 0 {
		config.AllowAllOrigins = true
		config.AllowCredentials = false
	}
	return cors.New(config)
}
