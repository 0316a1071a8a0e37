package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chatdesk/agent-core/environments"
	"github.com/chatdesk/agent-core/handlers"
	"github.com/chatdesk/agent-core/internal/session"
	"github.com/chatdesk/agent-core/internal/triage"
	"github.com/chatdesk/agent-core/pkg/apiclient"
	"github.com/chatdesk/agent-core/pkg/cache"
	"github.com/chatdesk/agent-core/pkg/logger"
	"github.com/chatdesk/agent-core/pkg/push"
	"github.com/chatdesk/agent-core/pkg/validator"
	"github.com/chatdesk/agent-core/routes"

	_ "github.com/chatdesk/agent-core/docs" // swagger docs
)

// @title Chatdesk Agent Core API
// @version 1.0
// @description Conversation timeline sync, session-window and triage core for the agent console

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	logger.Init()

	// Load config
	cfg := environments.Load()

	// Hard-fail if required secrets are missing
	if cfg.Upstream.AuthKey == "" {
		logger.Fatalf("UPSTREAM_AUTH_KEY is required but not set")
	}
	if cfg.Auth.ConsoleAPIKey == "" {
		logger.Fatalf("CONSOLE_API_KEY is required but not set")
	}

	logger.Infof("Starting Chatdesk Agent Core...")

	// Upstream REST client
	apiClient := apiclient.NewClient(cfg.Upstream)

	// Push channel; connection is established lazily on first conversation open
	pushConn := push.NewConn(cfg.Push)

	// Summary cache is optional
	var cacheClient *cache.Client
	cacheClient, err := cache.NewClient(cfg.Cache)
	if err != nil {
		logger.Warnf("Summary cache not available, inbox caching disabled: %v", err)
		cacheClient = nil
	}

	// Session manager owns the single live conversation
	manager := session.NewManager(apiClient, pushConn, cfg.Window)

	aggregator := triage.NewAggregator(cfg.Window.Duration)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(pushConn, cacheClient)
	// A typed nil *cache.Client must not reach the handler's interface field.
	inboxHandler := handlers.NewInboxHandler(apiClient, nil, aggregator)
	if cacheClient != nil {
		inboxHandler = handlers.NewInboxHandler(apiClient, cacheClient, aggregator)
	}
	conversationHandler := handlers.NewConversationHandler(manager, apiClient)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"x-console-auth-key",
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, inboxHandler, conversationHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Leave the active conversation room first so the transport sees a
	// clean exit
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	manager.Close(closeCtx)
	closeCancel()

	// Disconnect the push channel
	if err := pushConn.Disconnect(); err != nil {
		logger.Errorf("Error disconnecting push channel: %v", err)
	}

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close cache connection
	if cacheClient != nil {
		logger.Infof("Closing cache connection...")
		if err := cacheClient.Close(); err != nil {
			logger.Errorf("Error closing cache: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
