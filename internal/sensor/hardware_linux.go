//go:build linux

package sensor

// OpenHardware opens the MPU6050 on the given I2C bus.
func OpenHardware(device string, addr int) (Driver, error) {
	bus, err := OpenI2C(device, addr)
	if err != nil {
		return nil, err
	}
	return NewMPU6050(bus), nil
}
