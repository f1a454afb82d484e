package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait drive the websocket heartbeat.
	PingInterval = 25 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Subscriber yields a user's notifications.
type Subscriber interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Notification, func(), error)
}

// TokenValidator resolves a bearer token to a user id.
type TokenValidator func(token string) (uuid.UUID, error)

// ServeWs upgrades GET /ws/notifications?token=... and forwards the user's
// notifications until either side closes.
func ServeWs(sub Subscriber, validate TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "token required"})
			return
		}
		userID, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		notes, unsubscribe, err := sub.Subscribe(ctx, userID)
		if err != nil {
			cancel()
			logger.Error("notification subscribe failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "notifications unavailable"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			unsubscribe()
			cancel()
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		logger.Debug("notification stream opened", zap.String("user_id", userID.String()))

		go writePump(conn, notes, cancel)
		readPump(conn)
		unsubscribe()
		cancel()
	}
}

// readPump discards client frames and keeps the read deadline fresh on pong.
func readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(PongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, notes <-chan Notification, done func()) {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		done()
	}()
	for {
		select {
		case note, ok := <-notes:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(note); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
