// Package broker publishes telemetry and events to an MQTT broker and
// dispatches operator commands received on the command topic.
//
// Topic layout, rooted at the station name:
//
//	tele/<station>/data     periodic sensor summary
//	tele/<station>/event    per seismic event, retained
//	tele/<station>/status   periodic status, retained
//	cmnd/<station>/<verb>   inbound commands: restart, calibrate, debug, status
//
// Publishes while disconnected are dropped; events are retained at the
// broker so the latest one survives reconnects. Reconnection attempts are
// spaced at least ReconnectMin apart.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"seismod/internal/metrics"
)

// Command verbs accepted on cmnd/<station>/<verb>.
const (
	VerbRestart   = "restart"
	VerbCalibrate = "calibrate"
	VerbDebug     = "debug"
	VerbStatus    = "status"
)

// CommandHandler receives inbound commands. Implementations must not
// block; long work goes through their own channels.
type CommandHandler interface {
	HandleCommand(verb string, payload []byte)
}

// Config parameterizes the broker client.
type Config struct {
	// Server is the broker URL, e.g. "mqtt://host:1883".
	Server string

	// Station roots the topic tree and prefixes the client ID.
	Station string

	Username string
	Password string

	// ReconnectMin spaces reconnection attempts; minimum 5s.
	ReconnectMin time.Duration

	// ConnectTimeout bounds each dial + CONNECT exchange.
	ConnectTimeout time.Duration
}

// Client is the broker adapter.
type Client struct {
	cfg     Config
	handler CommandHandler
	log     *slog.Logger
	m       *metrics.SeismodMetrics

	conn atomic.Pointer[paho.Client]

	// lost is signaled by the connection callbacks.
	lost chan struct{}
}

// New creates a Client.
func New(cfg Config, handler CommandHandler, m *metrics.SeismodMetrics, log *slog.Logger) *Client {
	if cfg.ReconnectMin < 5*time.Second {
		cfg.ReconnectMin = 5 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		log:     log,
		m:       m,
		lost:    make(chan struct{}, 1),
	}
}

// Topic helpers.

func (c *Client) topicData() string   { return "tele/" + c.cfg.Station + "/data" }
func (c *Client) topicEvent() string  { return "tele/" + c.cfg.Station + "/event" }
func (c *Client) topicStatus() string { return "tele/" + c.cfg.Station + "/status" }
func (c *Client) topicCmnd() string   { return "cmnd/" + c.cfg.Station + "/+" }

// Connected reports whether a live session exists.
func (c *Client) Connected() bool {
	return c.conn.Load() != nil
}

// Run maintains the connection until ctx ends.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.connectOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("mqtt connect failed", "server", c.cfg.Server, "error", err)
		} else {
			// Connected: wait for loss or shutdown.
			select {
			case <-ctx.Done():
				c.disconnect()
				return
			case <-c.lost:
				c.conn.Store(nil)
				c.log.Warn("mqtt connection lost")
			}
		}

		c.m.BrokerReconnects.Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectMin):
		}
	}
}

// connectOnce dials, connects with the offline will, subscribes to the
// command topic, and announces presence.
func (c *Client) connectOnce(ctx context.Context) error {
	host, err := serverHost(c.cfg.Server)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	netConn, err := d.DialContext(dialCtx, "tcp", host)
	if err != nil {
		return fmt.Errorf("dial %s: %w", host, err)
	}

	client := paho.NewClient(paho.ClientConfig{
		Conn: netConn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				c.dispatch(pr.Packet.Topic, pr.Packet.Payload)
				return true, nil
			},
		},
		OnClientError:      func(error) { c.signalLost() },
		OnServerDisconnect: func(*paho.Disconnect) { c.signalLost() },
	})

	clientID := fmt.Sprintf("%s_%s", c.cfg.Station, uuid.NewString()[:8])
	connect := &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  30,
		CleanStart: true,
		WillMessage: &paho.WillMessage{
			Topic:   c.topicStatus(),
			Payload: []byte(`{"status":"offline"}`),
			Retain:  true,
			QoS:     0,
		},
	}
	if c.cfg.Username != "" {
		connect.UsernameFlag = true
		connect.Username = c.cfg.Username
	}
	if c.cfg.Password != "" {
		connect.PasswordFlag = true
		connect.Password = []byte(c.cfg.Password)
	}

	ack, err := client.Connect(dialCtx, connect)
	if err != nil {
		netConn.Close()
		return fmt.Errorf("connect: %w", err)
	}
	if ack.ReasonCode != 0 {
		netConn.Close()
		return fmt.Errorf("connect refused: reason %d", ack.ReasonCode)
	}

	if _, err := client.Subscribe(dialCtx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: c.topicCmnd(), QoS: 0}},
	}); err != nil {
		client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("subscribe %s: %w", c.topicCmnd(), err)
	}

	c.conn.Store(client)
	c.log.Info("mqtt connected", "server", c.cfg.Server, "client_id", clientID)
	c.PublishStatus([]byte(`{"status":"online"}`))
	return nil
}

func (c *Client) disconnect() {
	if client := c.conn.Swap(nil); client != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
}

func (c *Client) signalLost() {
	select {
	case c.lost <- struct{}{}:
	default:
	}
}

// dispatch routes an inbound command to the handler.
func (c *Client) dispatch(topic string, payload []byte) {
	prefix := "cmnd/" + c.cfg.Station + "/"
	if !strings.HasPrefix(topic, prefix) {
		return
	}
	verb := strings.TrimPrefix(topic, prefix)
	switch verb {
	case VerbRestart, VerbCalibrate, VerbDebug, VerbStatus:
		c.log.Info("mqtt command received", "verb", verb)
		if c.handler != nil {
			c.handler.HandleCommand(verb, payload)
		}
	default:
		c.log.Warn("unknown mqtt command", "topic", topic)
	}
}

// publish sends one message; drops silently when disconnected.
func (c *Client) publish(topic string, payload []byte, retain bool) bool {
	client := c.conn.Load()
	if client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     0,
		Retain:  retain,
		Payload: payload,
	})
	if err != nil {
		c.log.Warn("mqtt publish failed", "topic", topic, "error", err)
		c.signalLost()
		return false
	}
	c.m.BrokerPublishes.Inc()
	return true
}

// PublishData publishes a periodic data summary.
func (c *Client) PublishData(payload []byte) bool {
	return c.publish(c.topicData(), payload, false)
}

// PublishEvent publishes a seismic event, retained.
func (c *Client) PublishEvent(payload []byte) bool {
	return c.publish(c.topicEvent(), payload, true)
}

// PublishStatus publishes a status document, retained.
func (c *Client) PublishStatus(payload []byte) bool {
	return c.publish(c.topicStatus(), payload, true)
}

// serverHost extracts host:port from an mqtt:// or tcp:// URL, defaulting
// the port to 1883.
func serverHost(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "mqtt://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("broker url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "1883")
	}
	return host, nil
}
