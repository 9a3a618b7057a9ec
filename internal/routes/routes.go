// internal/routes/routes.go
package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"shutter-service/internal/config"
	"shutter-service/internal/database"
	"shutter-service/internal/handler"
	"shutter-service/internal/middleware"
	"shutter-service/internal/monitor"
	"shutter-service/internal/service"
	"shutter-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config             *config.Config
	logger             *zap.Logger
	db                 *database.DB
	session            *service.SessionController
	cameraService      *service.CameraService
	measurementService *service.MeasurementService
	discoveryService   *service.DiscoveryService
	preferences        handler.Preferences
	metrics            *monitor.Metrics

	eventBus  *handler.EventBus
	wsHandler *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db is nil when the service runs
// without a database.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	session *service.SessionController,
	cameraService *service.CameraService,
	measurementService *service.MeasurementService,
	discoveryService *service.DiscoveryService,
	preferences handler.Preferences,
	metrics *monitor.Metrics,
) *Router {
	eventBus := handler.NewEventBus(logger)

	return &Router{
		config:             config,
		logger:             logger,
		db:                 db,
		session:            session,
		cameraService:      cameraService,
		measurementService: measurementService,
		discoveryService:   discoveryService,
		preferences:        preferences,
		metrics:            metrics,
		eventBus:           eventBus,
		wsHandler:          handler.NewWebSocketHandler(session, eventBus, logger),
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsDebugEnabled() && !r.config.IsProduction() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// StartStreaming feeds session state changes to WebSocket clients until ctx is done
func (r *Router) StartStreaming(ctx context.Context) {
	r.wsHandler.Start(ctx)
	go r.eventBus.Follow(ctx, r.session, r.preferences)
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RequestIDMiddleware())

	// logging wraps recovery so that recovered panics are counted as 500s
	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger, r.metrics))
	router.Use(middleware.RecoveryMiddleware(r.logger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.session, r.config, r.logger)
	deviceHandler := handler.NewDeviceHandler(r.session, r.logger)
	settingsHandler := handler.NewSettingsHandler(r.preferences, r.logger)
	cameraHandler := handler.NewCameraHandler(r.cameraService, r.measurementService, r.preferences, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.discoveryService, r.logger)

	// Health check and metrics routes
	healthHandler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(r.metrics.Handler()))

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	deviceHandler.RegisterRoutes(apiV1)
	settingsHandler.RegisterRoutes(apiV1)
	cameraHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)

	// WebSocket routes
	r.wsHandler.RegisterRoutes(router)

	// Documentation routes
	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
