package broker

import (
	"log/slog"
	"testing"
	"time"

	"seismod/internal/metrics"
)

type recordedCommand struct {
	verb    string
	payload string
}

type fakeHandler struct {
	commands []recordedCommand
}

func (f *fakeHandler) HandleCommand(verb string, payload []byte) {
	f.commands = append(f.commands, recordedCommand{verb, string(payload)})
}

func newTestClient(h CommandHandler) *Client {
	m := metrics.NewSeismodMetrics(metrics.NewRegistry("test"))
	return New(Config{
		Server:  "mqtt://broker.local:1883",
		Station: "seismograph",
	}, h, m, slog.New(slog.DiscardHandler))
}

func TestTopicLayout(t *testing.T) {
	c := newTestClient(nil)
	if got := c.topicData(); got != "tele/seismograph/data" {
		t.Errorf("data topic = %q", got)
	}
	if got := c.topicEvent(); got != "tele/seismograph/event" {
		t.Errorf("event topic = %q", got)
	}
	if got := c.topicStatus(); got != "tele/seismograph/status" {
		t.Errorf("status topic = %q", got)
	}
	if got := c.topicCmnd(); got != "cmnd/seismograph/+" {
		t.Errorf("command topic = %q", got)
	}
}

func TestDispatchKnownVerbs(t *testing.T) {
	h := &fakeHandler{}
	c := newTestClient(h)

	for _, verb := range []string{VerbRestart, VerbCalibrate, VerbDebug, VerbStatus} {
		c.dispatch("cmnd/seismograph/"+verb, []byte("1"))
	}
	if len(h.commands) != 4 {
		t.Fatalf("dispatched %d commands, want 4", len(h.commands))
	}
	if h.commands[1].verb != VerbCalibrate {
		t.Errorf("second verb = %q", h.commands[1].verb)
	}
}

func TestDispatchIgnoresForeignTopics(t *testing.T) {
	h := &fakeHandler{}
	c := newTestClient(h)

	c.dispatch("cmnd/otherstation/restart", nil)
	c.dispatch("tele/seismograph/data", nil)
	c.dispatch("cmnd/seismograph/selfdestruct", nil)

	if len(h.commands) != 0 {
		t.Errorf("foreign/unknown topics dispatched: %v", h.commands)
	}
}

func TestPublishDroppedWhileDisconnected(t *testing.T) {
	c := newTestClient(nil)
	if c.Connected() {
		t.Fatal("fresh client should be disconnected")
	}
	if c.PublishEvent([]byte("{}")) {
		t.Error("publish should report dropped while disconnected")
	}
	if c.m.BrokerPublishes.Value() != 0 {
		t.Error("dropped publish counted as success")
	}
}

func TestReconnectMinFloor(t *testing.T) {
	m := metrics.NewSeismodMetrics(metrics.NewRegistry("test"))
	c := New(Config{Server: "x", Station: "s", ReconnectMin: time.Second}, nil, m, slog.New(slog.DiscardHandler))
	if c.cfg.ReconnectMin < 5*time.Second {
		t.Errorf("reconnect spacing = %v, want >= 5s", c.cfg.ReconnectMin)
	}
}

func TestServerHost(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"mqtt://broker.local:1884", "broker.local:1884"},
		{"mqtt://broker.local", "broker.local:1883"},
		{"broker.local", "broker.local:1883"},
		{"tcp://10.0.0.5:1883", "10.0.0.5:1883"},
	}
	for _, tc := range cases {
		got, err := serverHost(tc.in)
		if err != nil {
			t.Errorf("serverHost(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("serverHost(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
