package clock

import (
	"context"
	"log/slog"
	"time"

	"github.com/beevik/ntp"
)

// QueryFunc performs a single NTP query against one server. It is a
// variable-shaped dependency so tests can substitute a fake.
type QueryFunc func(server string, timeout time.Duration) error

func defaultQuery(server string, timeout time.Duration) error {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return err
	}
	return resp.Validate()
}

// Syncer periodically validates the wall clock against a pool of NTP
// servers and marks the System clock trusted on success. Servers are tried
// in order; the first validated response wins the cycle.
type Syncer struct {
	clk      *System
	servers  []string
	interval time.Duration
	timeout  time.Duration
	query    QueryFunc
	log      *slog.Logger
}

// NewSyncer creates a Syncer. A nil query selects the real NTP client.
func NewSyncer(clk *System, servers []string, interval, timeout time.Duration, log *slog.Logger, query QueryFunc) *Syncer {
	if query == nil {
		query = defaultQuery
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Syncer{
		clk:      clk,
		servers:  servers,
		interval: interval,
		timeout:  timeout,
		query:    query,
		log:      log,
	}
}

// SyncOnce cycles through the configured servers and reports whether any
// responded with a validated time.
func (s *Syncer) SyncOnce() bool {
	for _, server := range s.servers {
		if err := s.query(server, s.timeout); err != nil {
			s.log.Warn("ntp query failed", "server", server, "error", err)
			continue
		}
		s.clk.MarkSynced()
		s.log.Info("ntp sync ok", "server", server, "wall", FormatISO(s.clk.NowWall()))
		return true
	}
	s.log.Warn("ntp sync failed on all servers", "servers", len(s.servers))
	return false
}

// Run syncs immediately and then on every interval tick until ctx ends.
func (s *Syncer) Run(ctx context.Context) {
	s.SyncOnce()

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SyncOnce()
		}
	}
}
