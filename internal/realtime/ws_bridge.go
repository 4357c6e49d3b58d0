package realtime

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"bazaarchat/internal/events"
	bazaar_errors "bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

// subscribeFrame is the control message the realtime endpoint expects.
type subscribeFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// WSBridge subscribes to the platform's websocket realtime feed. Each
// subscription holds its own connection: the chat screen opens one
// conversation at a time, so pooling buys nothing.
type WSBridge struct {
	url   string
	token string
	log   *logger.Logger
}

func NewWSBridge(url, token string, log *logger.Logger) *WSBridge {
	return &WSBridge{url: url, token: token, log: log}
}

func (b *WSBridge) Subscribe(conversationID int64, h Handlers) (*Subscription, error) {
	header := http.Header{}
	if b.token != "" {
		header.Set("Authorization", "Bearer "+b.token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(b.url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bazaar_errors.ErrSubscriptionDropped, err)
	}

	channel := events.ConversationChannel(conversationID)
	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	if err := writeJSON(subscribeFrame{Action: "subscribe", Channel: channel}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", bazaar_errors.ErrSubscriptionDropped, err)
	}

	done := make(chan struct{})
	closed := make(chan struct{})

	// Read pump: every frame is an event envelope.
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-closed:
					// Deliberate Close; not a gap.
				default:
					b.log.Logger.Warn("websocket feed dropped",
						zap.Int64("conversation_id", conversationID), zap.Error(err))
					if h.OnDrop != nil {
						h.OnDrop(fmt.Errorf("%w: %v", bazaar_errors.ErrSubscriptionDropped, err))
					}
				}
				return
			}
			dispatch(payload, h)
		}
	}()

	// Ping pump keeps intermediaries from reaping the idle connection.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-closed:
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
			}
		}
	}()

	return NewSubscription(func() {
		close(closed)
		_ = writeJSON(subscribeFrame{Action: "unsubscribe", Channel: channel})
		_ = conn.Close()
	}), nil
}
