package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cansat-altimeter/internal/telemetry"
)

// Hub fans readings out to stream subscribers. It keeps the most recent
// reading so a new subscriber gets an immediate sample. Slow subscribers
// miss readings rather than stall the publisher.
type Hub struct {
	mu       sync.RWMutex
	subs     map[int]chan telemetry.Reading
	nextID   int
	last     telemetry.Reading
	haveLast bool

	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: make(map[int]chan telemetry.Reading), log: log}
}

func (h *Hub) Subscribe(buffer int) (int, <-chan telemetry.Reading) {
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan telemetry.Reading, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	// Queue the last reading before Emit can see ch.
	if h.haveLast {
		ch <- h.last
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Last() (telemetry.Reading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.haveLast
}

func (h *Hub) Name() string { return "stream" }

// Emit publishes r to every subscriber.
func (h *Hub) Emit(r telemetry.Reading) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = r
	h.haveLast = true
	for _, ch := range h.subs {
		select {
		case ch <- r:
		default:
		}
	}
	return nil
}

var upgrader = websocket.Upgrader{
	// The ground station UI may be served from another host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	streamWriteWait  = 5 * time.Second
	streamPingPeriod = 20 * time.Second
)

// Handler streams readings as JSON text frames until the client goes away.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Debug("stream upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		id, ch := h.Subscribe(8)
		defer h.Unsubscribe(id)

		// Drain client frames so close and pong control messages are seen.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						h.log.Debug("stream client error", zap.Error(err))
					}
					return
				}
			}
		}()

		ping := time.NewTicker(streamPingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-gone:
				return
			case <-r.Context().Done():
				return
			case rd, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(rd); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					return
				}
			}
		}
	})
}
