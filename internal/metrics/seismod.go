package metrics

// SeismodMetrics holds the daemon's metric set. The sampler domain is the
// single writer for the detection counters; the sink and web domains own
// theirs. Readers (telemetry, /metrics) only load.
type SeismodMetrics struct {
	registry *Registry

	// Sampler domain.
	TotalSamples         *Counter
	EventsDetected       *Counter
	SpikesFiltered       *Counter
	EventsRejectedNoTime *Counter
	SensorReadErrors     *Counter
	SampleQueueDrops     *Counter
	EventQueueDrops      *Counter

	// Sink / transport domain.
	RecordsPersisted  *Counter
	RecordsInvalid    *Counter
	BrokerPublishes   *Counter
	BrokerReconnects  *Counter
	BroadcastsSent    *Counter
	BroadcastFailures *Counter

	// Gauges.
	SampleQueueDepth *Gauge
	EventQueueDepth  *Gauge
	ClientsConnected *Gauge
	ClockTrusted     *Gauge
	CalibrationValid *Gauge

	LastMagnitude   *FloatGauge
	BackgroundNoise *FloatGauge
	TriggerRatio    *FloatGauge
}

// NewSeismodMetrics creates and registers the full metric set.
func NewSeismodMetrics(registry *Registry) *SeismodMetrics {
	if registry == nil {
		registry = NewRegistry("seismod")
	}

	return &SeismodMetrics{
		registry: registry,

		TotalSamples: registry.RegisterCounter(
			"samples_total", "Total sensor samples processed", nil),
		EventsDetected: registry.RegisterCounter(
			"events_detected_total", "Total seismic events detected", nil),
		SpikesFiltered: registry.RegisterCounter(
			"spikes_filtered_total", "Total isolated spikes rejected", nil),
		EventsRejectedNoTime: registry.RegisterCounter(
			"events_rejected_no_time_total", "Events dropped because the wall clock was untrusted", nil),
		SensorReadErrors: registry.RegisterCounter(
			"sensor_read_errors_total", "Transient sensor read failures", nil),
		SampleQueueDrops: registry.RegisterCounter(
			"sample_queue_drops_total", "Samples dropped on full sample queue", nil),
		EventQueueDrops: registry.RegisterCounter(
			"event_queue_drops_total", "Events dropped on full event queue", nil),

		RecordsPersisted: registry.RegisterCounter(
			"records_persisted_total", "Seismic records appended to storage", nil),
		RecordsInvalid: registry.RegisterCounter(
			"records_invalid_total", "Records failing schema validation at the sink", nil),
		BrokerPublishes: registry.RegisterCounter(
			"broker_publishes_total", "Successful MQTT publishes", nil),
		BrokerReconnects: registry.RegisterCounter(
			"broker_reconnects_total", "MQTT reconnection attempts", nil),
		BroadcastsSent: registry.RegisterCounter(
			"broadcasts_sent_total", "Websocket messages delivered", nil),
		BroadcastFailures: registry.RegisterCounter(
			"broadcast_failures_total", "Websocket sends dropped or failed", nil),

		SampleQueueDepth: registry.RegisterGauge(
			"sample_queue_depth", "Samples waiting in the sample queue", nil),
		EventQueueDepth: registry.RegisterGauge(
			"event_queue_depth", "Events waiting in the event queue", nil),
		ClientsConnected: registry.RegisterGauge(
			"clients_connected", "Connected websocket clients", nil),
		ClockTrusted: registry.RegisterGauge(
			"clock_trusted", "1 when the wall clock is NTP-trusted", nil),
		CalibrationValid: registry.RegisterGauge(
			"calibration_valid", "1 when the current calibration is valid", nil),

		LastMagnitude: registry.RegisterFloatGauge(
			"last_magnitude_g", "Most recent calibrated sample magnitude", nil),
		BackgroundNoise: registry.RegisterFloatGauge(
			"background_noise_g", "Current background noise estimate (LTA)", nil),
		TriggerRatio: registry.RegisterFloatGauge(
			"trigger_ratio", "Most recent STA/LTA trigger ratio", nil),
	}
}

// Registry returns the underlying registry.
func (m *SeismodMetrics) Registry() *Registry {
	return m.registry
}
