package web

// SensorBroadcast is the periodic sensor_data push message. Values are
// the sliding-buffer aggregate, not a single raw sample.
type SensorBroadcast struct {
	Type            string  `json:"type"`
	Timestamp       int64   `json:"timestamp"`
	AccelX          float64 `json:"accel_x"`
	AccelY          float64 `json:"accel_y"`
	AccelZ          float64 `json:"accel_z"`
	Magnitude       float64 `json:"magnitude"`
	MaxMagnitude    float64 `json:"max_magnitude"`
	SensorTimestamp int64   `json:"sensor_timestamp"`
	SamplesAveraged int     `json:"samples_averaged"`
	Calibrated      bool    `json:"calibrated"`
	EventsDetected  uint64  `json:"events_detected"`
}

// EventBroadcast is the seismic_event push message.
type EventBroadcast struct {
	Type         string  `json:"type"`
	EventType    string  `json:"event_type"`
	Magnitude    float64 `json:"magnitude"`
	Level        int     `json:"level"`
	Timestamp    int64   `json:"timestamp"`
	NTPTimestamp int64   `json:"ntp_timestamp,omitempty"`
}

// command is an inbound client message.
type command struct {
	Command string `json:"command"`
}

// response is the reply envelope for the command protocol.
type response struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Message string `json:"message,omitempty"`
	Status  any    `json:"status,omitempty"`
}
