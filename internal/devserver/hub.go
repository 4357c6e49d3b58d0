// Package devserver is a local stand-in for the hosted chat platform: the
// same REST surface and websocket realtime feed the mobile client talks
// to, backed by the module's own store and event bus. It exists so the
// client packages can be exercised end to end without the real backend.
package devserver

import (
	"context"

	"bazaarchat/internal/events"
	"bazaarchat/pkg/logger"

	"go.uber.org/zap"
)

// frame is a subscription change request from a client's read pump.
type frame struct {
	client      *Client
	channel     string
	unsubscribe bool
}

// delivery is one event fanned out from the backing bus.
type delivery struct {
	channel string
	payload []byte
}

// feed is one live bus subscription, shared by every websocket client
// watching that channel.
type feed struct {
	cancel  context.CancelFunc
	clients map[*Client]bool
}

// Hub routes bus events to websocket clients. Feeds are opened lazily on
// the first subscriber of a channel and torn down with the last one.
type Hub struct {
	subscriber events.Subscriber
	log        *logger.Logger

	register   chan *Client
	unregister chan *Client
	frames     chan frame
	deliveries chan delivery
	stop       chan struct{}

	clients map[*Client]map[string]bool
	feeds   map[string]*feed
}

func NewHub(subscriber events.Subscriber, log *logger.Logger) *Hub {
	return &Hub{
		subscriber: subscriber,
		log:        log,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		frames:     make(chan frame, 256),
		deliveries: make(chan delivery, 256),
		stop:       make(chan struct{}),
		clients:    make(map[*Client]map[string]bool),
		feeds:      make(map[string]*feed),
	}
}

// Run owns all hub state. Everything funnels through this loop, so no
// locks are needed.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = make(map[string]bool)
			h.log.Logger.Info("realtime client connected", zap.Int64("user_id", client.userID))
			go client.writePump()
			go client.readPump()

		case client := <-h.unregister:
			h.dropClient(client)

		case f := <-h.frames:
			if f.unsubscribe {
				h.leaveChannel(f.client, f.channel)
			} else {
				h.joinChannel(f.client, f.channel)
			}

		case d := <-h.deliveries:
			h.fanOut(d)

		case <-h.stop:
			for client := range h.clients {
				h.dropClient(client)
			}
			return
		}
	}
}

// Stop shuts the hub down and closes every client connection.
func (h *Hub) Stop() {
	close(h.stop)
}

func (h *Hub) joinChannel(client *Client, channel string) {
	channels, ok := h.clients[client]
	if !ok || channels[channel] {
		return
	}
	channels[channel] = true

	f := h.feeds[channel]
	if f == nil {
		ctx, cancel := context.WithCancel(context.Background())
		f = &feed{cancel: cancel, clients: make(map[*Client]bool)}
		h.feeds[channel] = f
		go h.pump(ctx, channel)
	}
	f.clients[client] = true
}

func (h *Hub) leaveChannel(client *Client, channel string) {
	channels, ok := h.clients[client]
	if !ok || !channels[channel] {
		return
	}
	delete(channels, channel)

	if f := h.feeds[channel]; f != nil {
		delete(f.clients, client)
		if len(f.clients) == 0 {
			f.cancel()
			delete(h.feeds, channel)
		}
	}
}

func (h *Hub) dropClient(client *Client) {
	channels, ok := h.clients[client]
	if !ok {
		return
	}
	for channel := range channels {
		h.leaveChannel(client, channel)
	}
	delete(h.clients, client)
	close(client.send)
	client.conn.Close()
	h.log.Logger.Info("realtime client disconnected", zap.Int64("user_id", client.userID))
}

func (h *Hub) fanOut(d delivery) {
	f := h.feeds[d.channel]
	if f == nil {
		return
	}
	for client := range f.clients {
		select {
		case client.send <- d.payload:
		default:
			h.log.Logger.Warn("client send buffer full, dropping",
				zap.Int64("user_id", client.userID), zap.String("channel", d.channel))
		}
	}
}

// pump forwards one channel's bus events into the hub loop until the feed
// is cancelled.
func (h *Hub) pump(ctx context.Context, channel string) {
	err := h.subscriber.Subscribe(ctx, []string{channel}, func(ch string, payload []byte) {
		select {
		case h.deliveries <- delivery{channel: ch, payload: payload}:
		case <-ctx.Done():
		}
	})
	if err != nil && ctx.Err() == nil {
		h.log.Logger.Error("feed subscription lost",
			zap.String("channel", channel), zap.Error(err))
	}
}
