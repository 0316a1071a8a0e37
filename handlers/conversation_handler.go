package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/internal/send"
	"github.com/chatdesk/agent-core/internal/session"
	"github.com/chatdesk/agent-core/pkg/apiclient"
	"github.com/chatdesk/agent-core/pkg/response"
	"github.com/chatdesk/agent-core/pkg/validator"
)

type transferClient interface {
	Transfer(ctx context.Context, conversationID string, req apiclient.TransferRequest) error
}

type ConversationHandler struct {
	manager *session.Manager
	api     transferClient
}

func NewConversationHandler(manager *session.Manager, api transferClient) *ConversationHandler {
	return &ConversationHandler{manager: manager, api: api}
}

type OpenConversationRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4096"`
	Type    string `json:"type"`
}

type TransferRequest struct {
	AssignedTo     string `json:"assigned_to" validate:"required"`
	NotifyCustomer bool   `json:"notify_customer"`
}

// Open godoc
// @Summary Open a conversation
// @Description Makes the conversation the active one: hydrates its timeline and joins its push room
// @Tags conversations
// @Accept json
// @Produce json
// @Param x-console-auth-key header string true "Console API key"
// @Param id path string true "Conversation id"
// @Param body body OpenConversationRequest true "Conversation contact"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/v1/conversations/{id}/open [post]
func (h *ConversationHandler) Open(c echo.Context) error {
	var req OpenConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	conversationID := c.Param("id")
	sess, err := h.manager.Open(c.Request().Context(), conversationID, req.PhoneNumber)
	if err != nil {
		return response.BadGateway(c, err)
	}

	return response.Ok(c, map[string]any{
		"conversationId": sess.ConversationID,
		"messageCount":   sess.Store.Len(),
		"window":         sess.Watcher.Current(),
	})
}

// GetMessages godoc
// @Summary Get the active conversation timeline
// @Description Returns the ordered message timeline of the active conversation
// @Tags conversations
// @Accept json
// @Produce json
// @Param x-console-auth-key header string true "Console API key"
// @Param id path string true "Conversation id"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/conversations/{id}/messages [get]
func (h *ConversationHandler) GetMessages(c echo.Context) error {
	sess, ok := h.manager.ActiveFor(c.Param("id"))
	if !ok {
		return response.NotFound(c, "conversation is not open")
	}

	return response.Ok(c, map[string]any{
		"messages":       sess.Store.All(),
		"droppedUpdates": sess.Store.DroppedUpdates(),
	})
}

// GetWindow godoc
// @Summary Get the session window state
// @Description Returns outbound eligibility and minutes remaining for the active conversation
// @Tags conversations
// @Accept json
// @Produce json
// @Param x-console-auth-key header string true "Console API key"
// @Param id path string true "Conversation id"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/conversations/{id}/window [get]
func (h *ConversationHandler) GetWindow(c echo.Context) error {
	sess, ok := h.manager.ActiveFor(c.Param("id"))
	if !ok {
		return response.NotFound(c, "conversation is not open")
	}

	return response.Ok(c, sess.Watcher.Current())
}

// SendMessage godoc
// @Summary Send a message
// @Description Sends a free-form message in the active conversation, subject to the session window
// @Tags conversations
// @Accept json
// @Produce json
// @Param x-console-auth-key header string true "Console API key"
// @Param id path string true "Conversation id"
// @Param body body SendMessageRequest true "Message draft"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/v1/conversations/{id}/messages [post]
func (h *ConversationHandler) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	sess, ok := h.manager.ActiveFor(c.Param("id"))
	if !ok {
		return response.NotFound(c, "conversation is not open")
	}

	saved, err := sess.Sender.Send(c.Request().Context(), domain.Draft{Content: req.Content, Type: req.Type})
	if err != nil {
		return sendErrorResponse(c, err)
	}

	return response.Created(c, "Message sent", saved)
}

func sendErrorResponse(c echo.Context, err error) error {
	if errors.Is(err, send.ErrWindowClosed) || errors.Is(err, send.ErrEmptyContent) {
		return response.UnprocessableEntity(c, err)
	}

	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Kind == apiclient.KindValidation {
		return response.BadRequest(c, err)
	}
	return response.BadGateway(c, err)
}

// Transfer godoc
// @Summary Transfer a conversation
// @Description Reassigns the conversation to another agent
// @Tags conversations
// @Accept json
// @Produce json
// @Param x-console-auth-key header string true "Console API key"
// @Param id path string true "Conversation id"
// @Param body body TransferRequest true "Transfer target"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/v1/conversations/{id}/transfer [post]
func (h *ConversationHandler) Transfer(c echo.Context) error {
	var req TransferRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	conversationID := c.Param("id")
	err := h.api.Transfer(c.Request().Context(), conversationID, apiclient.TransferRequest{
		AssignedTo:     req.AssignedTo,
		NotifyCustomer: req.NotifyCustomer,
	})
	if err != nil {
		return response.BadGateway(c, err)
	}

	return response.OkWithMessage(c, fmt.Sprintf("Conversation transferred to %s", req.AssignedTo), nil)
}
