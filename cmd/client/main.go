package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"porter/internal/api"
	"porter/internal/app"
	"porter/internal/config"
	"porter/internal/handler"
	"porter/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST so storage and backend calls are instrumented.
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s", cfg.NewRelic.AppName)
		}
	}

	storage, err := app.NewStorage(ctx, cfg, nrApp)
	if err != nil {
		log.Fatalf("failed to initialize credential storage: %v", err)
	}
	defer storage.Close()

	server, sessions := wireServer(storage, nrApp, cfg)

	// Restore the previous session in the background; protected views wait
	// for the outcome.
	sessions.Initialize(ctx)

	// Start server in goroutine.
	go func() {
		log.Printf("Porter client listening on http://%s (backend %s)", cfg.Server.Addr, cfg.API.BaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down client...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Println("Client exited")
}

// wireServer wires all dependencies and returns the view server together with
// the session manager it serves.
func wireServer(storage *app.Storage, nrApp *newrelic.Application, cfg *config.Config) (*http.Server, *service.SessionManager) {
	backend := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, nrApp)

	// Initialize services.
	sessions := service.NewSessionManager(storage.Credentials, backend, cfg.Session.VerifyTimeout)
	notificationService := service.NewNotificationService()
	rideStore := service.NewRideStore(sessions, backend, notificationService)

	// Initialize handlers.
	authHandler := handler.NewAuthHandler(sessions)
	rideHandler := handler.NewRideHandler(sessions, rideStore, notificationService)

	router := app.NewRouter(app.RouterDeps{
		AuthHandler: authHandler,
		RideHandler: rideHandler,
		Sessions:    sessions,
		GateWait:    cfg.Session.GateWait,
		RedisClient: storage.Redis,
		NewRelicApp: nrApp,
	})

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, sessions
}
