package httphandler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/qrsignin/internal/application"
	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

const (
	writeWait     = 5 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	clientBufSize = 16
)

// OutcomeHub fans scan outcomes and ready events out to websocket clients.
// It subscribes to the event bus once; clients register with the hub, not
// with the bus.
type OutcomeHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[chan StreamMessage]struct{}
}

// NewOutcomeHub creates a hub. The default upgrader origin check only admits
// same-host pages.
func NewOutcomeHub(logger *slog.Logger) *OutcomeHub {
	return &OutcomeHub{
		logger:  logger,
		clients: make(map[chan StreamMessage]struct{}),
	}
}

// Subscribe attaches the hub to the scan topics of bus.
func (h *OutcomeHub) Subscribe(bus EventBus.BusSubscriber) error {
	if err := bus.Subscribe(application.TopicOutcome, h.publishOutcome); err != nil {
		return err
	}
	return bus.Subscribe(application.TopicReady, h.publishReady)
}

func (h *OutcomeHub) publishOutcome(out model.AuthOutcome) {
	resp := toOutcomeResponse(out)
	h.broadcast(StreamMessage{Type: "outcome", Outcome: &resp})
}

func (h *OutcomeHub) publishReady(st model.ScannerStatus) {
	resp := toScannerResponse(st)
	h.broadcast(StreamMessage{Type: "ready", Scanner: &resp})
}

// broadcast never blocks the publisher: a client whose buffer is full misses
// the message.
func (h *OutcomeHub) broadcast(msg StreamMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("outcome stream client too slow, message dropped", "type", msg.Type)
		}
	}
}

// Clients returns the number of connected clients.
func (h *OutcomeHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *OutcomeHub) register() chan StreamMessage {
	ch := make(chan StreamMessage, clientBufSize)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *OutcomeHub) unregister(ch chan StreamMessage) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams messages until the client goes away.
func (h *OutcomeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := h.register()
	defer h.unregister(ch)

	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case msg := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
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

// readLoop drains client frames so pongs and close frames are processed.
func (h *OutcomeHub) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
