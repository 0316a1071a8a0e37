package handlers

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/internal/triage"
	"github.com/chatdesk/agent-core/pkg/logger"
	"github.com/chatdesk/agent-core/pkg/response"
)

// Small internal interfaces so we can test without touching the real
// upstream API or cache.
type summaryFetcher interface {
	FetchConversations(ctx context.Context) ([]domain.Conversation, error)
}

type summaryCache interface {
	GetConversations(ctx context.Context) ([]domain.Conversation, error)
	CacheConversations(ctx context.Context, conversations []domain.Conversation) error
}

type InboxHandler struct {
	api   summaryFetcher
	cache summaryCache
	agg   triage.Aggregator
}

// NewInboxHandler builds the inbox handler. cache may be nil; the handler
// then always reads through to the upstream API.
func NewInboxHandler(api summaryFetcher, cache summaryCache, agg triage.Aggregator) *InboxHandler {
	return &InboxHandler{api: api, cache: cache, agg: agg}
}

// GetInbox godoc
// @Summary Get the conversation inbox
// @Description Returns filtered, triage-annotated conversation summaries
// @Tags inbox
// @Accept json
// @Produce json
// @Param x-console-auth-key header string true "Console API key"
// @Param query query string false "Substring match on phone number or contact name"
// @Param tab query string false "Tab filter: all, unread or groups"
// @Success 200 {object} response.SuccessResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/v1/inbox [get]
func (h *InboxHandler) GetInbox(c echo.Context) error {
	ctx := c.Request().Context()

	conversations, err := h.loadSummaries(ctx)
	if err != nil {
		return response.BadGateway(c, err)
	}

	q := triage.Query{
		Text: c.QueryParam("query"),
		Tab:  triage.Tab(c.QueryParam("tab")),
	}
	now := time.Now()

	return response.Ok(c, map[string]any{
		"conversations": h.agg.Annotate(h.agg.Filter(conversations, q), now),
		"pendingCount":  h.agg.PendingCount(conversations),
	})
}

func (h *InboxHandler) loadSummaries(ctx context.Context) ([]domain.Conversation, error) {
	if h.cache != nil {
		cached, err := h.cache.GetConversations(ctx)
		if err != nil {
			logger.Warnf("Summary cache read failed, falling back to upstream: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	conversations, err := h.api.FetchConversations(ctx)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.CacheConversations(ctx, conversations); err != nil {
			logger.Warnf("Failed to cache conversation summaries: %v", err)
		}
	}
	return conversations, nil
}
