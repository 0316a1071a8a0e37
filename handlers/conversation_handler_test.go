package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chatdesk/agent-core/environments"
	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/internal/session"
	"github.com/chatdesk/agent-core/pkg/apiclient"
	"github.com/chatdesk/agent-core/pkg/push"
	"github.com/chatdesk/agent-core/pkg/response"
	validatorpkg "github.com/chatdesk/agent-core/pkg/validator"
)

//
// Test fakes – only for this file.
//

type fakeUpstream struct {
	history       map[string][]domain.Message
	saved         domain.Message
	postErr       error
	transferCalls []string
	transferErr   error
}

func (f *fakeUpstream) FetchMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	return f.history[conversationID], nil
}

func (f *fakeUpstream) PostMessage(ctx context.Context, req apiclient.SendMessageRequest) (domain.Message, error) {
	if f.postErr != nil {
		return domain.Message{}, f.postErr
	}
	return f.saved, nil
}

func (f *fakeUpstream) Transfer(ctx context.Context, conversationID string, req apiclient.TransferRequest) error {
	f.transferCalls = append(f.transferCalls, conversationID+"->"+req.AssignedTo)
	return f.transferErr
}

type nopChannel struct{}

func (nopChannel) Subscribe(event string, handler push.Handler) func() { return func() {} }

func (nopChannel) Emit(ctx context.Context, event string, payload any) error { return nil }

func newTestManager(api *fakeUpstream) *session.Manager {
	return session.NewManager(api, nopChannel{}, environments.WindowConfig{
		Duration:     24 * time.Hour,
		TickInterval: time.Minute,
	})
}

func doJSON(t *testing.T, handler func(echo.Context) error, method, target, body string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Validator = validatorpkg.New()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestOpen_BadJSON(t *testing.T) {
	h := NewConversationHandler(newTestManager(&fakeUpstream{}), &fakeUpstream{})

	rec := doJSON(t, h.Open, http.MethodPost, "/api/v1/conversations/conv-1/open",
		`{"phone_number":`, map[string]string{"id": "conv-1"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestOpen_MissingPhoneNumberFailsValidation(t *testing.T) {
	h := NewConversationHandler(newTestManager(&fakeUpstream{}), &fakeUpstream{})

	rec := doJSON(t, h.Open, http.MethodPost, "/api/v1/conversations/conv-1/open",
		`{}`, map[string]string{"id": "conv-1"})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestOpen_HydratesAndReportsWindow(t *testing.T) {
	api := &fakeUpstream{history: map[string][]domain.Message{
		"conv-1": {{ID: "m-1", Direction: domain.DirectionInbound, CreatedAt: time.Now()}},
	}}
	h := NewConversationHandler(newTestManager(api), api)

	rec := doJSON(t, h.Open, http.MethodPost, "/api/v1/conversations/conv-1/open",
		`{"phone_number": "+905551234567"}`, map[string]string{"id": "conv-1"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var body response.SuccessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	data := body.Data.(map[string]any)
	if data["messageCount"].(float64) != 1 {
		t.Errorf("expected messageCount=1, got %v", data["messageCount"])
	}
	window := data["window"].(map[string]any)
	if window["isOpen"] != true {
		t.Errorf("expected open window, got %v", window)
	}
}

func TestGetMessages_NotOpenReturns404(t *testing.T) {
	h := NewConversationHandler(newTestManager(&fakeUpstream{}), &fakeUpstream{})

	rec := doJSON(t, h.GetMessages, http.MethodGet, "/api/v1/conversations/conv-1/messages",
		"", map[string]string{"id": "conv-1"})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestSendMessage_EmptyContentFailsValidation(t *testing.T) {
	h := NewConversationHandler(newTestManager(&fakeUpstream{}), &fakeUpstream{})

	rec := doJSON(t, h.SendMessage, http.MethodPost, "/api/v1/conversations/conv-1/messages",
		`{"content": ""}`, map[string]string{"id": "conv-1"})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestSendMessage_FullFlow(t *testing.T) {
	api := &fakeUpstream{
		history: map[string][]domain.Message{
			"conv-1": {{ID: "m-1", Direction: domain.DirectionInbound, CreatedAt: time.Now()}},
		},
		saved: domain.Message{ID: "42", Status: domain.StatusSent, Content: "hi"},
	}
	manager := newTestManager(api)
	h := NewConversationHandler(manager, api)

	if _, err := manager.Open(context.Background(), "conv-1", "+905551234567"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer manager.Close(context.Background())

	rec := doJSON(t, h.SendMessage, http.MethodPost, "/api/v1/conversations/conv-1/messages",
		`{"content": "hi"}`, map[string]string{"id": "conv-1"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	sess, _ := manager.ActiveFor("conv-1")
	if sess.Store.Len() != 2 {
		t.Errorf("expected history + confirmed message, got %d", sess.Store.Len())
	}
}

func TestSendMessage_WindowClosedIs422(t *testing.T) {
	api := &fakeUpstream{
		history: map[string][]domain.Message{
			"conv-1": {{
				ID:        "m-old",
				Direction: domain.DirectionInbound,
				CreatedAt: time.Now().Add(-25 * time.Hour),
			}},
		},
	}
	manager := newTestManager(api)
	h := NewConversationHandler(manager, api)

	if _, err := manager.Open(context.Background(), "conv-1", "+905551234567"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer manager.Close(context.Background())

	rec := doJSON(t, h.SendMessage, http.MethodPost, "/api/v1/conversations/conv-1/messages",
		`{"content": "hi"}`, map[string]string{"id": "conv-1"})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for closed window, got %d (%s)", rec.Code, rec.Body.String())
	}

	// No optimistic record may remain for a pre-network rejection.
	sess, _ := manager.ActiveFor("conv-1")
	if sess.Store.Len() != 1 {
		t.Errorf("expected store unchanged, got %d messages", sess.Store.Len())
	}
}

func TestTransfer_MissingAssigneeFailsValidation(t *testing.T) {
	h := NewConversationHandler(newTestManager(&fakeUpstream{}), &fakeUpstream{})

	rec := doJSON(t, h.Transfer, http.MethodPost, "/api/v1/conversations/conv-1/transfer",
		`{"notify_customer": true}`, map[string]string{"id": "conv-1"})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestTransfer_CallsUpstream(t *testing.T) {
	api := &fakeUpstream{}
	h := NewConversationHandler(newTestManager(api), api)

	rec := doJSON(t, h.Transfer, http.MethodPost, "/api/v1/conversations/conv-1/transfer",
		`{"assigned_to": "agent-7", "notify_customer": true}`, map[string]string{"id": "conv-1"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(api.transferCalls) != 1 || api.transferCalls[0] != "conv-1->agent-7" {
		t.Errorf("unexpected transfer calls: %v", api.transferCalls)
	}
}
