package push

import (
	"encoding/json"
	"log"

	"messaging-service/internal/models"
	"messaging-service/internal/session"
)

// ConnSource resolves a user's live connections; satisfied by the session
// registry.
type ConnSource interface {
	ConnectionsFor(userID int) []session.Conn
}

// Pusher serializes events once and fans them out to every live connection
// of the target users. Offline users are silently skipped; durable delivery
// is the delivery engine's job, not the push channel's.
type Pusher struct {
	source ConnSource
}

// NewPusher constructs a Pusher.
func NewPusher(source ConnSource) *Pusher {
	return &Pusher{source: source}
}

// Send pushes an event to all connections of one user.
func (p *Pusher) Send(userID int, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("push marshal failed type=%s: %v", event.Type, err)
		return
	}
	p.sendPayload(userID, event.Type, payload)
}

// SendToAll pushes an event to every listed user.
func (p *Pusher) SendToAll(userIDs []int, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("push marshal failed type=%s: %v", event.Type, err)
		return
	}
	for _, id := range userIDs {
		p.sendPayload(id, event.Type, payload)
	}
}

func (p *Pusher) sendPayload(userID int, eventType string, payload []byte) {
	for _, conn := range p.source.ConnectionsFor(userID) {
		if err := conn.Send(payload); err != nil {
			log.Printf("push send failed user_id=%d type=%s: %v", userID, eventType, err)
			conn.Close()
		}
	}
}
