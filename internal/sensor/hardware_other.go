//go:build !linux

package sensor

import "errors"

// OpenHardware is unavailable without an i2c-dev binding.
func OpenHardware(string, int) (Driver, error) {
	return nil, errors.New("sensor: hardware driver requires linux i2c-dev")
}
