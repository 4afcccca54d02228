package types

// NotifyEvent names the kind of notification frame pushed to listeners.
type NotifyEvent string

const (
	EventBatchProgress NotifyEvent = "batch_progress"
	EventBatchSettled  NotifyEvent = "batch_settled"
)

// Notification is the frame broadcast over the notify websocket and, for
// settle events, the unix notify socket.
type Notification struct {
	Event     NotifyEvent    `json:"event"`
	SessionID string         `json:"sessionId"`
	Progress  *BatchProgress `json:"progress,omitempty"`
	URLs      []string       `json:"urls,omitempty"` // uploaded locations in selection order, settle events only
}
