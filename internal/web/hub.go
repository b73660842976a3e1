// Package web exposes the push channel and HTTP endpoints: a websocket
// hub broadcasting live sensor data and seismic events to dashboards,
// plus health, metrics, and status routes.
//
// Broadcast pacing is adaptive on two axes. Globally, the base interval
// stretches when many clients are connected or the sampler signals
// back-pressure. Per client, a preferred rate (default 10 Hz, floor 2,
// ceiling 15) is decremented after each failed send and recovers one step
// on each good-performance adaptation tick.
package web

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"seismod/internal/metrics"
)

// Per-client rate bounds in Hz.
const (
	DefaultClientRateHz = 10
	MinClientRateHz     = 2
	MaxClientRateHz     = 15
)

// Base broadcast intervals.
const (
	baseInterval      = 100 * time.Millisecond
	crowdedInterval   = 150 * time.Millisecond
	pressuredInterval = 200 * time.Millisecond

	// crowdedClientCount switches to the crowded interval.
	crowdedClientCount = 3
)

// sendBuffer is the per-client outbound queue; overflow counts as a
// failed send.
const sendBuffer = 16

// StatusFunc supplies the get_status document.
type StatusFunc func() any

// client is one connected dashboard.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu        sync.Mutex
	rateHz    int
	preferred int
	failures  int
	lastSend  time.Time
	streaming bool
}

// minInterval returns the client's current minimum send spacing.
func (c *client) minInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Second / time.Duration(c.rateHz)
}

// Hub manages the connected clients.
type Hub struct {
	log    *slog.Logger
	m      *metrics.SeismodMetrics
	status StatusFunc

	mu        sync.Mutex
	clients   map[*client]struct{}
	pressured bool

	defaultRate int
}

// NewHub creates a Hub. defaultRate zero selects DefaultClientRateHz.
func NewHub(defaultRate int, status StatusFunc, m *metrics.SeismodMetrics, log *slog.Logger) *Hub {
	if defaultRate <= 0 {
		defaultRate = DefaultClientRateHz
	}
	if defaultRate < MinClientRateHz {
		defaultRate = MinClientRateHz
	}
	if defaultRate > MaxClientRateHz {
		defaultRate = MaxClientRateHz
	}
	return &Hub{
		log:         log,
		m:           m,
		status:      status,
		clients:     make(map[*client]struct{}),
		defaultRate: defaultRate,
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// SetBackpressure raises or clears the sampler back-pressure signal,
// stretching the broadcast interval while set.
func (h *Hub) SetBackpressure(on bool) {
	h.mu.Lock()
	h.pressured = on
	h.mu.Unlock()
}

// BroadcastInterval returns the current base interval from client count
// and back-pressure state.
func (h *Hub) BroadcastInterval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pressured {
		return pressuredInterval
	}
	if len(h.clients) > crowdedClientCount {
		return crowdedInterval
	}
	return baseInterval
}

// BroadcastSensor pushes a sensor_data message to every streaming client
// whose per-client interval has elapsed.
func (h *Hub) BroadcastSensor(msg SensorBroadcast) {
	msg.Type = "sensor_data"
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	now := time.Now()
	for _, c := range h.snapshot() {
		c.mu.Lock()
		due := c.streaming && now.Sub(c.lastSend) >= time.Second/time.Duration(c.rateHz)
		if due {
			c.lastSend = now
		}
		c.mu.Unlock()
		if due {
			h.push(c, data)
		}
	}
}

// BroadcastEvent pushes a seismic_event message to every client,
// bypassing rate limits: events are rare and must arrive.
func (h *Hub) BroadcastEvent(msg EventBroadcast) {
	msg.Type = "seismic_event"
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, c := range h.snapshot() {
		h.push(c, data)
	}
}

// AdaptTick is the global good-performance tick: every client's rate
// recovers one step toward its preferred rate. Called by telemetry when
// the queues are healthy.
func (h *Hub) AdaptTick() {
	for _, c := range h.snapshot() {
		c.mu.Lock()
		if c.rateHz < c.preferred {
			c.rateHz++
		}
		c.failures = 0
		c.mu.Unlock()
	}
}

func (h *Hub) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// push enqueues data for one client. A full queue counts as a failed
// send and decrements the client's rate toward the floor.
func (h *Hub) push(c *client, data []byte) {
	select {
	case c.send <- data:
		h.m.BroadcastsSent.Inc()
	default:
		h.m.BroadcastFailures.Inc()
		c.mu.Lock()
		c.failures++
		if c.rateHz > MinClientRateHz {
			c.rateHz--
		}
		c.mu.Unlock()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.m.ClientsConnected.Set(int64(n))
	h.log.Info("dashboard connected", "client", c.id, "clients", n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		close(c.send)
		h.m.ClientsConnected.Set(int64(n))
		h.log.Info("dashboard disconnected", "client", c.id, "clients", n)
	}
}

// handleCommand answers one inbound command frame.
func (h *Hub) handleCommand(c *client, raw []byte) []byte {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return marshalResponse(response{Type: "error", Message: "malformed command"})
	}

	switch cmd.Command {
	case "start_streaming":
		c.mu.Lock()
		c.streaming = true
		c.mu.Unlock()
		return marshalResponse(response{Type: "response", Command: cmd.Command, Message: "streaming started"})
	case "stop_streaming":
		c.mu.Lock()
		c.streaming = false
		c.mu.Unlock()
		return marshalResponse(response{Type: "response", Command: cmd.Command, Message: "streaming stopped"})
	case "get_status":
		var status any
		if h.status != nil {
			status = h.status()
		}
		return marshalResponse(response{Type: "response", Command: cmd.Command, Status: status})
	default:
		return marshalResponse(response{Type: "error", Command: cmd.Command, Message: "unknown command"})
	}
}

func marshalResponse(r response) []byte {
	data, _ := json.Marshal(r)
	return data
}

// newClient builds the client state for a fresh connection.
func (h *Hub) newClient(conn *websocket.Conn) *client {
	return &client{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		rateHz:    h.defaultRate,
		preferred: h.defaultRate,
		streaming: true,
	}
}
