package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetcast/internal/core/services"
	httphandlers "fleetcast/internal/handlers/http"
	backupinfra "fleetcast/internal/infrastructure/backup"
	"fleetcast/internal/infrastructure/livekit"
	"fleetcast/internal/infrastructure/middleware"
	"fleetcast/internal/infrastructure/monitoring"
	"fleetcast/internal/infrastructure/reliability"
	repositories "fleetcast/internal/infrastructure/repositories"
	wsignal "fleetcast/internal/infrastructure/signal"
	"fleetcast/pkg/backup"
	"fleetcast/pkg/circuitbreaker"
	"fleetcast/pkg/config"
	"fleetcast/pkg/logger"
	"fleetcast/pkg/retry"
	"fleetcast/pkg/tracing"
	"fleetcast/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/fleetcast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "fleetcast",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	// Initialize repositories and coordination primitives
	deviceRepo := repoFactory.CreateDeviceRepository()
	roomRepo := repoFactory.CreateRoomRepository()
	lockManager := repoFactory.CreateLockManager(15 * time.Second)
	eventBus := repoFactory.CreateEventBus()

	idSpec := validation.DeviceIDSpec{
		Prefix: cfg.Registry.IDPrefix,
		Min:    cfg.Registry.MinID,
		Max:    cfg.Registry.MaxID,
	}

	// Media bridge with retry and circuit breaker
	bridge := livekit.NewBridge(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, log)
	wrappedBridge := reliability.NewMediaBridgeWrapper(
		bridge,
		retry.DefaultConfig(),
		circuitbreaker.DefaultConfig(),
		log,
	)

	// Initialize services
	tokenService := services.NewTokenService(
		cfg.LiveKit.APIKey,
		cfg.LiveKit.APISecret,
		cfg.LiveKit.WSURL,
		cfg.LiveKit.TokenTTL,
	)
	ingressService := services.NewIngressService(deviceRepo, wrappedBridge, lockManager, eventBus, log)
	registryService := services.NewRegistryService(deviceRepo, roomRepo, ingressService, tokenService, lockManager, eventBus, idSpec, log)
	roomService := services.NewRoomService(roomRepo, deviceRepo, lockManager, eventBus, log)
	presenceTracker := services.NewPresenceTracker(
		deviceRepo,
		eventBus,
		cfg.Presence.HeartbeatTimeout,
		cfg.Presence.SweepInterval,
		log,
	)
	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	// Background loops
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go presenceTracker.Run(runCtx)

	// Initialize monitoring
	prometheusCollector := monitoring.NewPrometheusCollector()
	go func() {
		if err := prometheusCollector.Consume(runCtx, eventBus, log); err != nil {
			log.Warnw("metrics event consumer stopped", "error", err)
		}
	}()

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddDeviceStoreProbe(deviceRepo, 30*time.Second, 5*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		healthChecker.AddRedisProbe(client, 30*time.Second, 5*time.Second)
	}
	healthChecker.StartBackgroundChecks(runCtx)

	// Presence WebSocket server
	wsServer := wsignal.NewWebSocketServer(presenceTracker, registryService, idSpec)
	wsServer.SetPingInterval(cfg.Presence.PingInterval)
	wsServer.SetPongTimeout(cfg.Presence.HeartbeatTimeout)

	// Backup scheduler
	var backupScheduler *backupinfra.Scheduler
	if cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Directory)
		if err != nil {
			log.Fatalw("failed to create backup storage", "error", err)
		}
		backupService := backup.NewBackupService(storage, "1.0.0")
		backupScheduler = backupinfra.NewScheduler(
			backupService,
			deviceRepo,
			roomRepo,
			backupinfra.Config{
				Interval:      cfg.Backup.Interval,
				RetentionDays: cfg.Backup.Retention,
			},
			log,
		)
		go backupScheduler.Start(runCtx)
	}

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService)
	deviceHandler := httphandlers.NewDeviceHandler(registryService, roomService, presenceTracker, wsServer)
	roomHandler := httphandlers.NewRoomHandler(roomService)
	tokenHandler := httphandlers.NewTokenHandler(tokenService)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLoggerMiddleware(zapLogger))
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	// Global HTTP rate limiting (if enabled)
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	// Setup routes
	authMiddleware := middleware.AuthMiddleware(authService)
	registerLimiter := middleware.NewRegisterRateLimitMiddleware(cfg)

	authHandler.SetupRoutes(router)
	deviceHandler.SetupRoutes(router, authMiddleware, registerLimiter)
	roomHandler.SetupRoutes(router, authMiddleware)
	tokenHandler.SetupRoutes(router, authMiddleware)

	// Device presence endpoint
	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	// Health endpoint answers from the cached background probes.
	router.GET("/health", func(c *gin.Context) {
		status := healthChecker.Snapshot()
		code := 200
		if status.Status != "healthy" {
			code = 503
		}
		c.JSON(code, status)
	})

	// Readiness probes the dependencies right now.
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := healthChecker.CheckAll(ctx)
		code := 200
		if status.Status != "healthy" {
			code = 503
		}
		c.JSON(code, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting Fleetcast server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down Fleetcast server...")

	// Stop background loops first so presence marks tracked devices offline
	runCancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		// Force close if graceful shutdown fails
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Error shutting down tracer", "error", err)
		}
	}

	// Close repository factory
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("Fleetcast server stopped")
}
