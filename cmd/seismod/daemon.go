package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"seismod/internal/broker"
	"seismod/internal/calib"
	"seismod/internal/clock"
	"seismod/internal/config"
	"seismod/internal/detect"
	"seismod/internal/event"
	"seismod/internal/health"
	"seismod/internal/logging"
	"seismod/internal/metrics"
	"seismod/internal/pipeline"
	"seismod/internal/sampler"
	"seismod/internal/sensor"
	"seismod/internal/sink"
	"seismod/internal/store"
	"seismod/internal/telemetry"
	"seismod/internal/web"
)

// debugModeTimeout bounds the runtime debug mode toggled over MQTT.
const debugModeTimeout = time.Hour

// buildLogger constructs the daemon logger from the configuration.
func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

// buildDriver selects the configured sensor driver.
func buildDriver(cfg *config.Config) (sensor.Driver, error) {
	switch cfg.Sensor.Driver {
	case "noise":
		return sensor.NewNoiseDriver(cfg.Sensor.NoiseSigma, time.Now().UnixNano()), nil
	default:
		return sensor.OpenHardware(cfg.Sensor.I2CDevice, cfg.Sensor.I2CAddress)
	}
}

// runDaemon wires and runs the full pipeline until a signal arrives.
func runDaemon(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Logger

	reg := metrics.NewRegistry("seismod")
	m := metrics.NewSeismodMetrics(reg)
	checker := health.NewChecker()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Clock and NTP trust.
	clk := clock.NewSystem(cfg.NTPSyncInterval())
	syncer := clock.NewSyncer(clk, cfg.NTP.Servers, cfg.NTPSyncInterval(),
		time.Duration(cfg.NTP.TimeoutSec)*time.Second, logger.Component("ntp"), nil)

	// Storage.
	st, err := store.Open(cfg.Storage.Dir, cfg.Storage.IndexPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if usage, err := st.Usage(); err == nil {
		log.Info("storage ready", "dir", cfg.Storage.Dir, "used_bytes", usage)
	}
	checker.RegisterFunc("store", true, health.CustomCheck(st.Index().Ping))

	// Sensor: a hard failure here refuses to start detection.
	drv, err := buildDriver(cfg)
	if err != nil {
		return fmt.Errorf("sensor driver: %w", err)
	}
	if err := drv.Begin(); err != nil {
		return fmt.Errorf("sensor probe: %w", err)
	}

	// Detection chain.
	engine := calib.NewEngine(drv, clk, logger.Component("calib"))
	drift := calib.NewMonitor(engine,
		cfg.Calibration.WarnDriftPercent,
		cfg.Calibration.CritDriftPercent,
		cfg.DriftCheckInterval().Milliseconds())
	det := detect.NewSTALTA(detect.Config{
		STAWindow:       cfg.Detection.STAWindow,
		LTAWindow:       cfg.Detection.LTAWindow,
		TriggerRatio:    cfg.Detection.TriggerRatio,
		ThresholdMicro:  cfg.Detection.ThresholdMicro,
		ThresholdLight:  cfg.Detection.ThresholdLight,
		ThresholdStrong: cfg.Detection.ThresholdStrong,
		Adaptive:        cfg.Detection.AdaptiveThresholds,
	})
	asm := event.New(event.Config{
		MinEventDurationMs: int64(cfg.Detection.MinEventDurationMs),
		SampleRateHz:       cfg.Sampling.RateHz,
		Source:             cfg.Station.Source,
	}, clk, logger.Component("event"), m.EventsDetected, m.EventsRejectedNoTime)

	sampleQ := pipeline.NewQueue[pipeline.SamplePacket](cfg.Sampling.SampleQueueSize, m.SampleQueueDrops)
	eventQ := pipeline.NewQueue[pipeline.EventPacket](cfg.Sampling.EventQueueSize, m.EventQueueDrops)

	// Boot calibration: failure is non-fatal, detection proceeds with
	// zero offsets and degraded record quality.
	if _, err := engine.Calibrate(); err != nil {
		log.Warn("boot calibration failed, continuing uncalibrated", "error", err)
		if err := st.AppendSystem(store.SystemEvent{
			Timestamp: clk.NowMono(), Type: "CALIBRATION_FAILED",
			Description: err.Error(), NTPValid: false,
		}, clk.NowMono()/86400000); err != nil {
			log.Warn("system event write failed", "error", err)
		}
	} else {
		m.CalibrationValid.Set(1)
	}

	// Web hub and telemetry are cross-wired through interfaces.
	var hub *web.Hub
	var collector *telemetry.Collector

	statusFn := func() any {
		if collector == nil {
			return nil
		}
		return collector.Status()
	}
	if cfg.Web.Enabled {
		hub = web.NewHub(cfg.Web.DefaultClientRateHz, statusFn, m, logger.Component("web"))
	}

	loop := sampler.New(sampler.Config{RateHz: cfg.Sampling.RateHz}, sampler.Deps{
		Driver:    sampler.NewDriverState(drv),
		Clock:     clk,
		Calib:     engine,
		Drift:     drift,
		Spike:     detect.NewSpikeFilter(),
		Detector:  det,
		Assembler: asm,
		SampleQ:   sampleQ,
		EventQ:    eventQ,
		Metrics:   m,
		Log:       logger.Component("sampler"),
		OnBackpressure: func() {
			if hub != nil {
				hub.SetBackpressure(true)
			}
		},
	})

	// Broker with its command handler.
	var brk *broker.Client
	if cfg.MQTT.Enabled {
		handler := &commandHandler{
			logger: logger,
			loop:   loop,
			stop:   stop,
			status: func() {
				if collector != nil {
					collector.PublishStatusNow()
				}
			},
			log: logger.Component("cmnd"),
		}
		brk = broker.New(broker.Config{
			Server:       cfg.MQTT.Server,
			Station:      cfg.Station.Name,
			Username:     cfg.MQTT.Username,
			Password:     cfg.MQTT.Password,
			ReconnectMin: time.Duration(cfg.MQTT.ReconnectMinSec) * time.Second,
		}, handler, m, logger.Component("mqtt"))
	}

	// Typed-nil guards: a nil *broker.Client must become a nil interface.
	var telePub telemetry.Publisher
	var sinkPub sink.EventPublisher
	if brk != nil {
		telePub, sinkPub = brk, brk
	}
	var hubCtl telemetry.HubControl
	var hubCast sink.Broadcaster
	if hub != nil {
		hubCtl, hubCast = hub, hub
	}

	collector = telemetry.New(telemetry.Config{
		Station:           cfg.Station.Name,
		SnapshotInterval:  time.Duration(cfg.Telemetry.SnapshotIntervalSec) * time.Second,
		DataInterval:      time.Duration(cfg.MQTT.DataIntervalSec) * time.Second,
		StatusInterval:    time.Duration(cfg.MQTT.StatusIntervalSec) * time.Second,
		HeartbeatInterval: time.Duration(cfg.MQTT.HeartbeatIntervalSec) * time.Second,
		SampleQueueCap:    cfg.Sampling.SampleQueueSize,
	}, clk, m, telePub, hubCtl, logger.Component("telemetry"))

	consumer := sink.New(sink.Config{
		SummaryInterval: time.Duration(cfg.Storage.SummaryIntervalSec) * time.Second,
	}, sampleQ, eventQ, st, sinkPub, hubCast, clk, m, logger.Component("sink"))

	checker.RegisterFunc("sampler", true, health.CustomCheck(func() error {
		last := loop.LastProgressMono()
		if last == 0 {
			return nil
		}
		if age := clk.NowMono() - last; age > 5000 {
			return fmt.Errorf("no sampler progress for %d ms", age)
		}
		return nil
	}))

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			log.Debug("component exited", "component", name)
		}()
	}

	run("ntp", syncer.Run)
	run("sampler", loop.Run)
	run("sink", consumer.Run)
	run("telemetry", collector.Run)
	if brk != nil {
		run("mqtt", brk.Run)
	}
	if hub != nil {
		srv := web.NewServer(cfg.Web.Listen, hub, checker, reg, logger.Component("web"))
		run("web", func(ctx context.Context) {
			if err := srv.Run(ctx); err != nil {
				log.Error("web server failed", "error", err)
			}
		})
	}

	// Config hot-reload for runtime-safe detection keys.
	watcher := config.NewWatcher(configPath, func(next *config.Config) {
		det.SetBaseThresholds(
			next.Detection.ThresholdMicro,
			next.Detection.ThresholdLight,
			next.Detection.ThresholdStrong)
		log.Info("detection thresholds reloaded")
	}, logger.Component("config"))
	run("config-watch", func(ctx context.Context) {
		if err := watcher.Run(ctx); err != nil {
			log.Warn("config watcher stopped", "error", err)
		}
	})

	// Retention sweep, daily.
	run("retention", func(ctx context.Context) {
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if !clk.Trusted() {
					continue
				}
				removed, err := st.Cleanup(store.DayIndex(clk.NowWall()), cfg.Storage.RetentionDays)
				if err != nil {
					log.Warn("retention sweep failed", "error", err)
				} else if removed > 0 {
					log.Info("retention sweep", "files_removed", removed)
				}
			}
		}
	})

	// Watchdog: no sampler progress for the timeout is fatal.
	watchdogErr := make(chan error, 1)
	run("watchdog", func(ctx context.Context) {
		timeout := int64(cfg.Sampling.WatchdogTimeoutSec) * 1000
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				last := loop.LastProgressMono()
				if last == 0 {
					continue
				}
				if age := clk.NowMono() - last; age > timeout {
					watchdogErr <- fmt.Errorf("sampler made no progress for %d ms", age)
					stop()
					return
				}
			}
		}
	})

	checker.SetReady(true)
	log.Info("seismod running",
		"station", cfg.Station.Name,
		"rate_hz", cfg.Sampling.RateHz,
		"mqtt", cfg.MQTT.Enabled,
		"web", cfg.Web.Enabled)

	<-ctx.Done()
	checker.SetReady(false)
	log.Info("shutting down")
	wg.Wait()

	select {
	case err := <-watchdogErr:
		return err
	default:
		return nil
	}
}

// commandHandler services cmnd/<station>/<verb> messages.
type commandHandler struct {
	logger *logging.Logger
	loop   *sampler.Loop
	stop   func()
	status func()
	log    *slog.Logger

	debugOff *time.Timer
}

// HandleCommand runs in the broker's receive path and must not block.
func (h *commandHandler) HandleCommand(verb string, payload []byte) {
	switch verb {
	case broker.VerbRestart:
		h.log.Warn("restart requested over mqtt")
		h.stop()
	case broker.VerbCalibrate:
		go func() {
			if err := <-h.loop.RequestCalibration(); err != nil {
				h.log.Warn("requested calibration failed", "error", err)
			}
		}()
	case broker.VerbDebug:
		on := strings.TrimSpace(string(payload)) != "0"
		h.logger.SetDebug(on)
		h.log.Info("debug mode toggled", "on", on)
		if h.debugOff != nil {
			h.debugOff.Stop()
			h.debugOff = nil
		}
		if on {
			h.debugOff = time.AfterFunc(debugModeTimeout, func() {
				h.logger.SetDebug(false)
			})
		}
	case broker.VerbStatus:
		h.status()
	}
}

// runCalibrate runs a one-shot calibration against the configured driver.
func runCalibrate(_ context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Output: "stderr"})
	if err != nil {
		return err
	}
	defer logger.Close()

	drv, err := buildDriver(cfg)
	if err != nil {
		return err
	}
	if err := drv.Begin(); err != nil {
		return err
	}

	clk := clock.NewSystem(cfg.NTPSyncInterval())
	engine := calib.NewEngine(drv, clk, logger.Component("calib"))
	cal, err := engine.Calibrate()
	if err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"off_x":        cal.OffX,
		"off_y":        cal.OffY,
		"off_z":        cal.OffZ,
		"baseline_lta": cal.BaselineLTA,
		"valid":        cal.Valid,
	})
}

// runSimulate synthesizes one event and persists it like a detected one.
func runSimulate(_ context.Context, configPath string, richter float64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: "warn", Output: "stderr"})
	if err != nil {
		return err
	}
	defer logger.Close()
	m := metrics.NewSeismodMetrics(metrics.NewRegistry("seismod"))

	clk := clock.NewSystem(cfg.NTPSyncInterval())
	syncer := clock.NewSyncer(clk, cfg.NTP.Servers, cfg.NTPSyncInterval(),
		time.Duration(cfg.NTP.TimeoutSec)*time.Second, logger.Component("ntp"), nil)
	if !syncer.SyncOnce() {
		return fmt.Errorf("wall clock not synchronized, refusing to fabricate a record")
	}

	asm := event.New(event.Config{
		MinEventDurationMs: int64(cfg.Detection.MinEventDurationMs),
		SampleRateHz:       cfg.Sampling.RateHz,
		Source:             cfg.Station.Source,
	}, clk, logger.Component("event"), m.EventsDetected, m.EventsRejectedNoTime)

	rec, err := asm.Simulate(richter, event.DetectorState{
		STAWindow: cfg.Detection.STAWindow,
		LTAWindow: cfg.Detection.LTAWindow,
	}, event.CalibrationState{Valid: false, AgeHours: -1})
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record dropped")
	}

	st, err := store.Open(cfg.Storage.Dir, cfg.Storage.IndexPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.AppendSeismic(rec); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// runStatus queries a running daemon's status endpoint.
func runStatus(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	addr := cfg.Web.Listen
	if strings.HasPrefix(addr, ":") {
		addr = net.JoinHostPort("127.0.0.1", addr[1:])
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/status")
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}
