package websocket

import "time"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is the only message a feed client sends.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventReady    Event = "ready"
	EventResponse Event = "response"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// ReadyMessage is sent once after the feed is attached.
type ReadyMessage struct {
	Event         Event  `json:"event"`
	FormID        string `json:"formId"`
	ResponseCount int64  `json:"responseCount"`
}

// ResponseMessage announces a new submission. It is built by the feed
// worker and relayed to clients unchanged.
type ResponseMessage struct {
	Event         Event     `json:"event"`
	FormID        string    `json:"formId"`
	ResponseID    string    `json:"responseId"`
	ResponseCount int64     `json:"responseCount"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
