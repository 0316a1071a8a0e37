package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/chatdesk/agent-core/environments"
	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/pkg/logger"
)

// ErrorKind classifies upstream failures: no response at all, a 5xx, a 4xx
// rejection, or an expired credential.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindServer     ErrorKind = "server"
	KindValidation ErrorKind = "validation"
	KindAuth       ErrorKind = "auth"
)

// Error is a classified upstream API failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

const historyPageSize = 50

// Client consumes the messaging provider's REST API. Requests are never
// retried here: replaying a failed send is an explicit caller action.
type Client struct {
	httpClient *resty.Client
}

func NewClient(cfg environments.UpstreamConfig) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-cd-auth-key", cfg.AuthKey)

	return &Client{httpClient: client}
}

type messagesEnvelope struct {
	Data []json.RawMessage `json:"data"`
}

type savedMessageEnvelope struct {
	Data struct {
		SavedMessage json.RawMessage `json:"saved_message"`
	} `json:"data"`
}

type conversationsEnvelope struct {
	Data []domain.Conversation `json:"data"`
}

// SendMessageRequest is the POST /messages body, field names per the
// provider contract.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	PhoneNumber    string `json:"phone_number"`
	Content        string `json:"content"`
	Type           string `json:"type"`
}

// TransferRequest is the POST /conversations/{id}/transfer body.
type TransferRequest struct {
	AssignedTo     string `json:"assigned_to"`
	NotifyCustomer bool   `json:"notify_customer"`
}

// FetchMessages pages through a conversation's history until a short page
// and returns the decoded messages. Individual records that fail to decode
// are logged and skipped; they never fail the whole fetch.
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var all []domain.Message
	offset := 0

	for {
		var envelope messagesEnvelope

		start := time.Now()
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetResult(&envelope).
			SetQueryParam("limit", fmt.Sprintf("%d", historyPageSize)).
			SetQueryParam("offset", fmt.Sprintf("%d", offset)).
			Get(fmt.Sprintf("/conversations/%s/messages", conversationID))

		if apiErr := classify(resp, err); apiErr != nil {
			return nil, apiErr
		}

		logger.Debugf("Fetched %d messages for %s (offset %d) in %v",
			len(envelope.Data), conversationID, offset, time.Since(start))

		for _, raw := range envelope.Data {
			msg, decodeErr := domain.DecodeMessage(raw)
			if decodeErr != nil {
				logger.Warnf("Skipping undecodable history record for %s: %v", conversationID, decodeErr)
				continue
			}
			all = append(all, msg)
		}

		if len(envelope.Data) < historyPageSize {
			return all, nil
		}
		offset += len(envelope.Data)
	}
}

// PostMessage submits an outbound message and returns the server-confirmed
// record.
func (c *Client) PostMessage(ctx context.Context, req SendMessageRequest) (domain.Message, error) {
	var envelope savedMessageEnvelope

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&envelope).
		Post("/messages")

	if apiErr := classify(resp, err); apiErr != nil {
		return domain.Message{}, apiErr
	}

	if len(envelope.Data.SavedMessage) == 0 {
		return domain.Message{}, &Error{
			Kind: KindServer,
			Err:  fmt.Errorf("send response has no saved_message"),
		}
	}

	saved, decodeErr := domain.DecodeMessage(envelope.Data.SavedMessage)
	if decodeErr != nil {
		return domain.Message{}, &Error{
			Kind: KindServer,
			Err:  fmt.Errorf("failed to decode saved message: %w", decodeErr),
		}
	}
	return saved, nil
}

// Transfer reassigns a conversation to another agent.
func (c *Client) Transfer(ctx context.Context, conversationID string, req TransferRequest) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		Post(fmt.Sprintf("/conversations/%s/transfer", conversationID))

	if apiErr := classify(resp, err); apiErr != nil {
		return apiErr
	}
	return nil
}

// FetchConversations returns the inbox summaries.
func (c *Client) FetchConversations(ctx context.Context) ([]domain.Conversation, error) {
	var envelope conversationsEnvelope

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get("/conversations")

	if apiErr := classify(resp, err); apiErr != nil {
		return nil, apiErr
	}
	return envelope.Data, nil
}

func classify(resp *resty.Response, err error) *Error {
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}

	code := resp.StatusCode()
	switch {
	case code < http.StatusBadRequest:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &Error{Kind: KindAuth, StatusCode: code, Err: fmt.Errorf("%s", resp.String())}
	case code < http.StatusInternalServerError:
		return &Error{Kind: KindValidation, StatusCode: code, Err: fmt.Errorf("%s", resp.String())}
	default:
		return &Error{Kind: KindServer, StatusCode: code, Err: fmt.Errorf("%s", resp.String())}
	}
}
