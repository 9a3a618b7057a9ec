// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "shutter-service/docs"
	"shutter-service/internal/config"
	"shutter-service/internal/database"
	"shutter-service/internal/discovery"
	serialscan "shutter-service/internal/discovery/serial"
	usbscan "shutter-service/internal/discovery/usb"
	"shutter-service/internal/monitor"
	"shutter-service/internal/protocol"
	"shutter-service/internal/publisher"
	"shutter-service/internal/repository"
	"shutter-service/internal/routes"
	"shutter-service/internal/service"
	"shutter-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB
	router   *routes.Router

	ctx    context.Context
	cancel context.CancelFunc

	// Settings and infrastructure
	preferences *config.Preferences
	transport   protocol.Transport
	publisher   publisher.Publisher
	metrics     *monitor.Metrics

	// Repositories
	cameraRepo      repository.CameraRepository
	measurementRepo repository.MeasurementRepository

	// Services
	session            *service.SessionController
	cameraService      *service.CameraService
	measurementService *service.MeasurementService
	discoveryService   *service.DiscoveryService
}

// @title Shutter Service API
// @version 1.0.0
// @description Shutter timing measurement service for USB and serial measuring boards

// @contact.name Shutter Service API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8084
// @BasePath /api/v1
func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	app, err := NewApplication(*configFile)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configFile string) (*Application, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "shutter-service")
	serviceLogger.LogServiceStart(cfg.App.Version,
		zap.String("environment", cfg.App.Environment),
		zap.String("config_file", cfg.ConfigFileUsed()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"database", app.initializeDatabase},
		{"repositories", app.initializeRepositories},
		{"preferences", app.initializePreferences},
		{"transport", app.initializeTransport},
		{"publisher", app.initializePublisher},
		{"services", app.initializeServices},
		{"server", app.initializeServer},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	return app, nil
}

// initializeDatabase sets up database connection and runs migrations
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, measurements are kept in memory")
		return nil
	}

	db, err := database.NewConnection(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() error {
	if app.database == nil {
		store := repository.NewMemoryStore(app.logger)
		app.cameraRepo = store.Cameras()
		app.measurementRepo = store.Measurements()
	} else {
		app.cameraRepo = repository.NewCameraRepository(app.database, app.logger)
		app.measurementRepo = repository.NewMeasurementRepository(app.database, app.logger)
	}

	app.logger.Info("Repositories initialized successfully", zap.Bool("persistent", app.database != nil))
	return nil
}

// initializePreferences loads the selectable settings and follows config file edits
func (app *Application) initializePreferences() error {
	app.preferences = config.NewPreferences(app.config, app.logger)
	app.preferences.Watch()

	app.logger.Info("Preferences initialized",
		zap.Stringer("device", app.preferences.DeviceIdentity()),
		zap.Float64("warning_threshold", app.preferences.Thresholds().Warning),
		zap.Float64("error_threshold", app.preferences.Thresholds().Error),
	)
	return nil
}

// initializeTransport creates the USB or serial transport
func (app *Application) initializeTransport() error {
	transport, err := protocol.CreateTransport(app.config.TransportConfig(), app.logger)
	if err != nil {
		return err
	}
	app.transport = transport

	app.logger.Info("Transport initialized", zap.String("backend", transport.Backend()))
	return nil
}

// initializePublisher connects the event publisher and the metrics registry
func (app *Application) initializePublisher() error {
	app.metrics = monitor.NewMetrics()

	pub, err := publisher.New(app.config.Publisher, app.logger)
	if err != nil {
		return err
	}
	app.publisher = pub

	app.logger.Info("Event publisher initialized", zap.String("publisher", pub.Name()))
	return nil
}

// initializeServices creates service instances
func (app *Application) initializeServices() error {
	app.session = service.NewSessionController(
		app.transport,
		app.preferences,
		app.cameraRepo,
		app.measurementRepo,
		app.publisher,
		app.metrics,
		service.SessionOptions{
			Timing:     app.config.ProtocolTiming(),
			ResetDelay: app.config.Measurement.ResetDelay,
		},
		app.logger,
	)

	app.cameraService = service.NewCameraService(app.cameraRepo, app.logger)
	app.measurementService = service.NewMeasurementService(app.cameraRepo, app.measurementRepo, app.logger)

	scannerManager := discovery.NewScannerManager(app.logger)
	scannerManager.RegisterScanner(usbscan.NewScanner(app.logger))
	scannerManager.RegisterScanner(serialscan.NewScanner(app.logger))
	app.discoveryService = service.NewDiscoveryService(scannerManager, app.preferences, app.logger)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	app.router = routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.session,
		app.cameraService,
		app.measurementService,
		app.discoveryService,
		app.preferences,
		app.metrics,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
	return nil
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices() {
	app.router.StartStreaming(app.ctx)

	devices, cancelDevices := app.preferences.SubscribeDevice()
	go func() {
		defer cancelDevices()
		app.session.WatchDevice(app.ctx, devices)
	}()

	if app.config.Measurement.AutoConnect {
		go app.autoConnect()
	}

	app.logger.Info("Background services started")
}

// autoConnect opens the session once at startup
func (app *Application) autoConnect() {
	ctx, cancel := context.WithTimeout(app.ctx, 30*time.Second)
	defer cancel()

	if err := app.session.Connect(ctx); err != nil {
		app.logger.Warn("Auto-connect failed", zap.Error(err))
		return
	}
	app.logger.Info("Auto-connect succeeded", zap.Stringer("device", app.preferences.DeviceIdentity()))
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "shutter-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// stops background streaming and device watching
	app.cancel()

	app.session.Close()
	app.logger.Info("Device session closed")

	if err := app.publisher.Close(); err != nil {
		app.logger.Error("Event publisher close error", zap.Error(err))
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start runs the HTTP server and blocks until shutdown
func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()

	app.waitForShutdown()

	return nil
}
