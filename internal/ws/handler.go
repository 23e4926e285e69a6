package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/delivery"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/session"
	"messaging-service/internal/signaling"
)

// Frame is what clients send over the socket. One struct covers every
// frame type; fields not relevant to a type are ignored.
type Frame struct {
	Type      string          `json:"type"`
	ChatID    int             `json:"chat_id,omitempty"`
	UptoSeq   int             `json:"upto_seq,omitempty"`
	IsTyping  bool            `json:"is_typing,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	CallType  models.CallType `json:"call_type,omitempty"`
	CalleeIDs []int           `json:"callee_ids,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Handler upgrades websocket connections and dispatches client frames.
type Handler struct {
	registry *session.Registry
	engine   *delivery.Engine
	presence *presence.Broadcaster
	relay    *signaling.Relay
	verifier *middleware.TokenVerifier
}

// NewHandler constructs a Handler.
func NewHandler(registry *session.Registry, engine *delivery.Engine, broadcaster *presence.Broadcaster, relay *signaling.Relay, verifier *middleware.TokenVerifier) *Handler {
	return &Handler{
		registry: registry,
		engine:   engine,
		presence: broadcaster,
		relay:    relay,
		verifier: verifier,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers the session and runs the read
// loop until the client disconnects.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	userID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	client := newClient(conn, info, func() { h.presence.Heartbeat(userID) })
	sessionID, err := h.registry.Register(c.Request.Context(), userID, client)
	if err != nil {
		reason := "registration failed"
		if errors.Is(err, session.ErrUnknownUser) {
			reason = "unknown user"
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")

	go client.writePump()
	go h.readPump(client, sessionID)
}

func (h *Handler) readPump(client *Client, sessionID string) {
	userID := client.info.UserID
	defer func() {
		h.registry.Remove(sessionID)
		client.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		if client.onPong != nil {
			client.onPong()
		}
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendError(client, "malformed frame")
			continue
		}

		observability.IncWSEvent(frame.Type)
		if err := h.dispatch(client, userID, frame); err != nil {
			h.sendError(client, err.Error())
		}
	}
}

func (h *Handler) dispatch(client *Client, userID int, frame Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch frame.Type {
	case "ack":
		return h.engine.Acknowledge(ctx, frame.ChatID, userID, frame.UptoSeq)
	case "typing":
		h.presence.SetTyping(frame.ChatID, userID, frame.IsTyping)
		return nil
	case "call.offer":
		callID, err := h.relay.Offer(userID, frame.CallType, frame.CalleeIDs, frame.Payload)
		if err != nil {
			return err
		}
		payload, _ := json.Marshal(models.Event{
			Type: models.EventCallCreated,
			Call: &models.CallPayload{CallID: callID, CallerID: userID, CallType: frame.CallType},
		})
		return client.Send(payload)
	case "call.answer":
		return h.relay.Answer(frame.CallID, userID, frame.Payload)
	case "call.ice":
		return h.relay.Candidate(frame.CallID, userID, frame.Payload)
	case "call.hangup":
		return h.relay.Hangup(frame.CallID, userID)
	case "call.decline":
		return h.relay.Decline(frame.CallID, userID)
	default:
		return errors.New("unknown frame type")
	}
}

func (h *Handler) sendError(client *Client, reason string) {
	payload, _ := json.Marshal(models.Event{Type: "error", Error: reason})
	if err := client.Send(payload); err != nil {
		client.Close()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.Split(header, " ")
		if len(parts) == 2 {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
