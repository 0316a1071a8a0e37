package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/chatdesk/agent-core/environments"
	"github.com/chatdesk/agent-core/handlers"
	"github.com/chatdesk/agent-core/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	inboxHandler *handlers.InboxHandler,
	conversationHandler *handlers.ConversationHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 base group, guarded by the console API key
	v1 := e.Group("/api/v1", middlewares.APIKeyAuth(cfg.Auth.ConsoleAPIKey))

	v1.GET("/inbox", inboxHandler.GetInbox)

	conversations := v1.Group("/conversations")

	conversations.POST("/:id/open", conversationHandler.Open)
	conversations.GET("/:id/messages", conversationHandler.GetMessages)
	conversations.POST("/:id/messages", conversationHandler.SendMessage)
	conversations.GET("/:id/window", conversationHandler.GetWindow)
	conversations.POST("/:id/transfer", conversationHandler.Transfer)
}
