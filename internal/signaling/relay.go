package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/push"
	"messaging-service/internal/repositories"
)

var (
	ErrUnknownCall      = errors.New("unknown call")
	ErrInvalidCallState = errors.New("invalid call state")
	ErrNotInCall        = errors.New("not a call participant")
)

// DefaultRingTimeout moves an unanswered call to missed.
const DefaultRingTimeout = 45 * time.Second

const persistTimeout = 5 * time.Second

type call struct {
	id        string
	callType  models.CallType
	callerID  int
	calleeIDs []int
	state     models.CallState
	startedAt time.Time
	ringTimer *time.Timer
}

func (c *call) participantIDs() []int {
	return append([]int{c.callerID}, c.calleeIDs...)
}

func (c *call) hasParticipant(userID int) bool {
	if c.callerID == userID {
		return true
	}
	for _, id := range c.calleeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *call) othersThan(userID int) []int {
	var others []int
	for _, id := range c.participantIDs() {
		if id != userID {
			others = append(others, id)
		}
	}
	return others
}

// Relay forwards call signaling between participants without interpreting
// media. It keeps one state machine per active call and persists the record
// once the call reaches a terminal state.
type Relay struct {
	pusher      *push.Pusher
	calls       repositories.CallRepository
	ringTimeout time.Duration

	mu     sync.Mutex
	active map[string]*call
}

// NewRelay constructs a Relay. A non-positive ring timeout falls back to the
// default.
func NewRelay(pusher *push.Pusher, calls repositories.CallRepository, ringTimeout time.Duration) *Relay {
	if ringTimeout <= 0 {
		ringTimeout = DefaultRingTimeout
	}
	return &Relay{
		pusher:      pusher,
		calls:       calls,
		ringTimeout: ringTimeout,
		active:      make(map[string]*call),
	}
}

// Offer creates a ringing call and forwards the offer payload verbatim to
// every callee. Returns the call id for the caller's client.
func (r *Relay) Offer(callerID int, callType models.CallType, calleeIDs []int, payload json.RawMessage) (string, error) {
	if len(calleeIDs) == 0 {
		return "", ErrInvalidCallState
	}
	for _, id := range calleeIDs {
		if id == callerID {
			return "", ErrInvalidCallState
		}
	}

	c := &call{
		id:        uuid.NewString(),
		callType:  callType,
		callerID:  callerID,
		calleeIDs: calleeIDs,
		state:     models.CallRinging,
		startedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.active[c.id] = c
	c.ringTimer = time.AfterFunc(r.ringTimeout, func() {
		r.expire(c.id)
	})
	r.mu.Unlock()

	r.pusher.SendToAll(calleeIDs, models.Event{
		Type: models.EventCallOffer,
		Call: &models.CallPayload{
			CallID:   c.id,
			CallType: callType,
			CallerID: callerID,
			Payload:  payload,
		},
	})
	return c.id, nil
}

// Answer moves a ringing call to ongoing and forwards the answer payload to
// the other participants.
func (r *Relay) Answer(callID string, userID int, payload json.RawMessage) error {
	r.mu.Lock()
	c, ok := r.active[callID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownCall
	}
	if !c.hasParticipant(userID) || userID == c.callerID {
		r.mu.Unlock()
		return ErrNotInCall
	}
	if c.state != models.CallRinging {
		r.mu.Unlock()
		return ErrInvalidCallState
	}
	c.state = models.CallOngoing
	c.ringTimer.Stop()
	others := c.othersThan(userID)
	r.mu.Unlock()

	r.pusher.SendToAll(others, models.Event{
		Type: models.EventCallAnswer,
		Call: &models.CallPayload{CallID: callID, CallerID: c.callerID, Payload: payload},
	})
	return nil
}

// Candidate forwards an ICE candidate to the other participants. Valid while
// the call is ringing or ongoing.
func (r *Relay) Candidate(callID string, userID int, payload json.RawMessage) error {
	r.mu.Lock()
	c, ok := r.active[callID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownCall
	}
	if !c.hasParticipant(userID) {
		r.mu.Unlock()
		return ErrNotInCall
	}
	if c.state != models.CallRinging && c.state != models.CallOngoing {
		r.mu.Unlock()
		return ErrInvalidCallState
	}
	others := c.othersThan(userID)
	r.mu.Unlock()

	r.pusher.SendToAll(others, models.Event{
		Type: models.EventCallICE,
		Call: &models.CallPayload{CallID: callID, Payload: payload},
	})
	return nil
}

// Hangup terminates a call: the caller abandoning a ringing call marks it
// missed, anything else ends it.
func (r *Relay) Hangup(callID string, userID int) error {
	r.mu.Lock()
	c, ok := r.active[callID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownCall
	}
	if !c.hasParticipant(userID) {
		r.mu.Unlock()
		return ErrNotInCall
	}

	finalState := models.CallEnded
	eventType := models.EventCallHangup
	if c.state == models.CallRinging && userID == c.callerID {
		finalState = models.CallMissed
		eventType = models.EventCallMissed
	}
	r.finishLocked(c, finalState)
	others := c.othersThan(userID)
	r.mu.Unlock()

	r.pusher.SendToAll(others, models.Event{
		Type: eventType,
		Call: &models.CallPayload{CallID: callID},
	})
	return nil
}

// Decline rejects a ringing call on behalf of a callee.
func (r *Relay) Decline(callID string, userID int) error {
	r.mu.Lock()
	c, ok := r.active[callID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownCall
	}
	if !c.hasParticipant(userID) || userID == c.callerID {
		r.mu.Unlock()
		return ErrNotInCall
	}
	if c.state != models.CallRinging {
		r.mu.Unlock()
		return ErrInvalidCallState
	}
	r.finishLocked(c, models.CallDeclined)
	others := c.othersThan(userID)
	r.mu.Unlock()

	r.pusher.SendToAll(others, models.Event{
		Type: models.EventCallDeclined,
		Call: &models.CallPayload{CallID: callID},
	})
	return nil
}

// expire fires at ring timeout. Removing the call from the active map under
// the lock guarantees the missed notification goes out exactly once.
func (r *Relay) expire(callID string) {
	r.mu.Lock()
	c, ok := r.active[callID]
	if !ok || c.state != models.CallRinging {
		r.mu.Unlock()
		return
	}
	r.finishLocked(c, models.CallMissed)
	participants := c.participantIDs()
	r.mu.Unlock()

	r.pusher.SendToAll(participants, models.Event{
		Type: models.EventCallMissed,
		Call: &models.CallPayload{CallID: callID},
	})
}

// finishLocked records the terminal state, stops timers, drops the call from
// the active set and persists the record. Caller holds the relay lock.
func (r *Relay) finishLocked(c *call, state models.CallState) {
	c.state = state
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	delete(r.active, c.id)
	observability.IncCallFinished(string(state))

	endedAt := time.Now().UTC()
	record := models.Call{
		ID:             c.id,
		Type:           c.callType,
		CallerID:       c.callerID,
		Status:         state,
		StartedAt:      c.startedAt,
		EndedAt:        &endedAt,
		ParticipantIDs: c.participantIDs(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.calls.SaveCall(ctx, record); err != nil {
			log.Printf("call record persist failed call_id=%s: %v", record.ID, err)
		}
	}()
}

// State reports the current state of an active call, for diagnostics.
func (r *Relay) State(callID string) (models.CallState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.active[callID]
	if !ok {
		return "", false
	}
	return c.state, true
}
