// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/config"
	"github.com/campaign-insights/backend/internal/session"
	"github.com/campaign-insights/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    storage.Store
	Sessions *session.Manager
	Uploads  BatchProcessor
	Router   QueryRouter
	MaxFiles int
	Version  string
	Logger   *zap.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Upload  UploadHandler
	Query   QueryHandler
	Dataset DatasetHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Sessions),
		Upload:  NewUploadHandler(deps.Store, deps.Uploads, deps.MaxFiles, logger),
		Query:   NewQueryHandler(deps.Sessions, deps.Router, logger),
		Dataset: NewDatasetHandler(deps.Sessions),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// The interactive client posts to the slash-terminated paths.
	e.POST("/upload/", handlers.Upload.HandleUpload)
	e.POST("/upload", handlers.Upload.HandleUpload)
	e.POST("/query/", handlers.Query.HandleQuery)
	e.POST("/query", handlers.Query.HandleQuery)

	apiGroup := e.Group("/api")
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	datasetGroup := apiGroup.Group("/dataset")
	datasetGroup.GET("/summary", handlers.Dataset.HandleSummary)
	datasetGroup.GET("/rows", handlers.Dataset.HandleRows)
	datasetGroup.GET("/rows/msgpack", handlers.Dataset.HandleRowsMsgpack)

	uploadGroup := apiGroup.Group("/uploads")
	uploadGroup.GET("", handlers.Upload.HandleListBatches)
	uploadGroup.GET("/:batchId", handlers.Upload.HandleGetBatch)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg config.ServerConfig, logger *zap.Logger) {
	e.HTTPErrorHandler = NewErrorHandler(logger)

	if cfg.EnableRequestLogging {
		e.Use(RequestLogger(logger))
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered", zap.String("path", c.Path()), zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.EnableCORS {
		origins := strings.Split(cfg.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
}

// RequestLogger logs one line per request through zap. Health checks are
// skipped.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	logger = logger.Named("http")
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/api/health"
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency.Round(time.Microsecond)),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}
