package models

import "time"

// Push channel event types (server -> client).
const (
	EventMessageAppended = "message.appended"
	EventStatusChanged   = "message.status_changed"
	EventTypingChanged   = "typing.changed"
	EventPresenceChanged = "presence.changed"
	EventReadReset       = "read.reset"
	EventCallCreated     = "call.created"
	EventCallOffer       = "call.offer"
	EventCallAnswer      = "call.answer"
	EventCallICE         = "call.ice"
	EventCallHangup      = "call.hangup"
	EventCallMissed      = "call.missed"
	EventCallDeclined    = "call.declined"
)

// Event is the envelope pushed over websocket connections. Fields are
// populated per event type, everything else stays omitted.
type Event struct {
	Type        string         `json:"type"`
	ChatID      int            `json:"chat_id,omitempty"`
	Message     *Message       `json:"message,omitempty"`
	Statuses    []StatusChange `json:"statuses,omitempty"`
	UserID      int            `json:"user_id,omitempty"`
	IsTyping    bool           `json:"is_typing,omitempty"`
	Online      bool           `json:"online,omitempty"`
	LastSeen    *time.Time     `json:"last_seen,omitempty"`
	UnreadCount *int           `json:"unread_count,omitempty"`
	Call        *CallPayload   `json:"call,omitempty"`
	Error       string         `json:"error,omitempty"`
}
