package models

import (
	"encoding/json"
	"time"
)

// CallType is the requested media kind. The relay never inspects media.
type CallType string

const (
	CallVoice CallType = "voice"
	CallVideo CallType = "video"
)

// CallState is the signaling state machine position.
// Ended, Missed and Declined are terminal.
type CallState string

const (
	CallRinging  CallState = "ringing"
	CallOngoing  CallState = "ongoing"
	CallEnded    CallState = "ended"
	CallMissed   CallState = "missed"
	CallDeclined CallState = "declined"
)

// Call is the persisted record of a call, written on terminal transition.
type Call struct {
	ID        string     `db:"id" json:"id"`
	Type      CallType   `db:"type" json:"type"`
	CallerID  int        `db:"caller_id" json:"caller_id"`
	Status    CallState  `db:"status" json:"status"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   *time.Time `db:"ended_at" json:"ended_at,omitempty"`

	ParticipantIDs []int `db:"-" json:"participant_ids,omitempty"`
}

// CallPayload carries signaling data over the push channel. Payload is the
// offer/answer/candidate blob forwarded verbatim between peers.
type CallPayload struct {
	CallID    string          `json:"call_id"`
	CallType  CallType        `json:"call_type,omitempty"`
	CallerID  int             `json:"caller_id,omitempty"`
	CalleeIDs []int           `json:"callee_ids,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
