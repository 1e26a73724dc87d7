package bus

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// ClientMessage is an inbound control frame.
type ClientMessage struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
}

// notice is an outbound control frame, sent when a request is refused.
type notice struct {
	Type   string   `json:"type"`
	Error  string   `json:"error"`
	Topics []string `json:"topics,omitempty"`
}

// TopicAuthorizer decides whether the caller behind c may follow topic.
type TopicAuthorizer func(c *gin.Context, topic string) bool

// WebSocketHandler streams hub events to websocket clients.
type WebSocketHandler struct {
	hub      *Hub
	allow    TopicAuthorizer
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler binds a handler to hub. Origin checks are left to the
// CORS layer in front of it.
func NewWebSocketHandler(hub *Hub, allow TopicAuthorizer, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   hub,
		allow: allow,
		log:   log.With().Str("component", "websocket").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnect upgrades the request and subscribes the client to every
// ?topic= given. A topic the caller may not follow fails the handshake with 403.
func (h *WebSocketHandler) HandleConnect(c *gin.Context) {
	topics := c.QueryArray("topic")
	for _, t := range topics {
		if _, _, ok := SplitTopic(t); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid topic", "topic": t})
			return
		}
		if !h.allow(c, t) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden topic", "topic": t})
			return
		}
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	clientID := uuid.NewString()
	sub := h.hub.Subscribe(topics...)
	notices := make(chan notice, 8)
	log := h.log.With().Str("client_id", clientID).Logger()
	log.Debug().Strs("topics", topics).Msg("websocket client connected")

	go h.writePump(ws, sub, notices, log)
	h.readPump(c, ws, sub, notices, log)
}

// readPump owns the connection's read side and closes the subscription when
// the client goes away, which in turn stops writePump.
func (h *WebSocketHandler) readPump(c *gin.Context, ws *websocket.Conn, sub *Subscription, notices chan<- notice, log zerolog.Logger) {
	defer func() {
		sub.Close()
		log.Debug().Msg("websocket client disconnected")
	}()

	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendNotice(notices, notice{Type: "error", Error: "malformed message"})
			continue
		}

		switch msg.Action {
		case "subscribe":
			var granted, refused []string
			for _, t := range msg.Topics {
				if _, _, ok := SplitTopic(t); ok && h.allow(c, t) {
					granted = append(granted, t)
				} else {
					refused = append(refused, t)
				}
			}
			sub.Add(granted...)
			if len(refused) > 0 {
				sendNotice(notices, notice{Type: "error", Error: "forbidden topic", Topics: refused})
			}
		case "unsubscribe":
			sub.Remove(msg.Topics...)
		default:
			sendNotice(notices, notice{Type: "error", Error: "unknown action"})
		}
	}
}

func sendNotice(notices chan<- notice, n notice) {
	select {
	case notices <- n:
	default:
	}
}

// writePump is the connection's only writer.
func (h *WebSocketHandler) writePump(ws *websocket.Conn, sub *Subscription, notices <-chan notice, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case n := <-notices:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
