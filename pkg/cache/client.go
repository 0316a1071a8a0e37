package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/chatdesk/agent-core/environments"
	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/pkg/logger"
)

// Client is a short-TTL cache in front of the upstream conversation list.
// The summaries stay owned by the upstream API; this only absorbs repeated
// inbox reads between refreshes.
type Client struct {
	client valkey.Client
	ttl    time.Duration
}

const conversationsKey = "inbox:conversations"

func NewClient(cfg environments.CacheConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}

	logger.Infof("Connected to summary cache (via Valkey client)")

	return &Client{client: client, ttl: cfg.SummaryTTL}, nil
}

// CacheConversations stores the latest summary snapshot with the configured
// TTL.
func (c *Client) CacheConversations(ctx context.Context, conversations []domain.Conversation) error {
	data, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation summaries: %w", err)
	}

	err = c.client.Do(ctx, c.client.B().Set().Key(conversationsKey).Value(string(data)).Ex(c.ttl).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache conversation summaries: %w", err)
	}

	logger.Debugf("Cached %d conversation summaries", len(conversations))

	return nil
}

// GetConversations returns the cached snapshot, or (nil, nil) on a miss.
func (c *Client) GetConversations(ctx context.Context) ([]domain.Conversation, error) {
	result := c.client.Do(ctx, c.client.B().Get().Key(conversationsKey).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached summaries: %w", result.Error())
	}

	data, err := result.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached summaries: %w", err)
	}

	var conversations []domain.Conversation
	if err := json.Unmarshal([]byte(data), &conversations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached summaries: %w", err)
	}

	return conversations, nil
}

// Invalidate drops the snapshot so the next inbox read refetches.
func (c *Client) Invalidate(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Del().Key(conversationsKey).Build()).Error()
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
