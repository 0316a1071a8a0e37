package domain

// Draft is the agent-entered content of an outbound message before it has
// any identity.
type Draft struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type SendState string

const (
	SendPending   SendState = "pending"
	SendConfirmed SendState = "confirmed"
	SendFailed    SendState = "failed"
)

// SendAttempt tracks one optimistic send from draft to server confirmation.
// It lives only until the draft is matched to a confirmed message or marked
// failed; it is never persisted.
type SendAttempt struct {
	TempID   string    `json:"tempId"`
	Draft    Draft     `json:"draft"`
	State    SendState `json:"state"`
	ServerID string    `json:"serverId,omitempty"`
}
