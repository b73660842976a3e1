//go:build linux

package sensor

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// I2C_SLAVE ioctl request selecting the target address on the bus.
const i2cSlave = 0x0703

// MPU6050 registers.
const (
	regPwrMgmt1   = 0x6B
	regWhoAmI     = 0x75
	regAccelXoutH = 0x3B

	whoAmIValue = 0x68
)

// I2CBus is the Linux i2c-dev MotionReader for the MPU6050.
type I2CBus struct {
	f    *os.File
	addr int
}

// OpenI2C opens the bus device and selects the device address.
func OpenI2C(device string, addr int) (*I2CBus, error) {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("sensor: open %s: %w", device, err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, addr); err != nil {
		f.Close()
		return nil, fmt.Errorf("sensor: select address %#x: %w", addr, err)
	}
	return &I2CBus{f: f, addr: addr}, nil
}

// Close releases the bus device.
func (b *I2CBus) Close() error { return b.f.Close() }

// Probe verifies WHO_AM_I and wakes the device out of sleep.
func (b *I2CBus) Probe() error {
	id, err := b.readReg(regWhoAmI, 1)
	if err != nil {
		return err
	}
	if id[0] != whoAmIValue {
		return fmt.Errorf("sensor: unexpected WHO_AM_I %#x", id[0])
	}
	// Clear the sleep bit; the device boots asleep.
	if _, err := b.f.Write([]byte{regPwrMgmt1, 0x00}); err != nil {
		return fmt.Errorf("sensor: wake device: %w", err)
	}
	return nil
}

// Motion reads the six accelerometer output registers in one burst.
func (b *I2CBus) Motion() (ax, ay, az int16, err error) {
	buf, err := b.readReg(regAccelXoutH, 6)
	if err != nil {
		return 0, 0, 0, err
	}
	ax = int16(uint16(buf[0])<<8 | uint16(buf[1]))
	ay = int16(uint16(buf[2])<<8 | uint16(buf[3]))
	az = int16(uint16(buf[4])<<8 | uint16(buf[5]))
	return ax, ay, az, nil
}

// readReg writes the register address then reads n bytes back.
func (b *I2CBus) readReg(reg byte, n int) ([]byte, error) {
	if _, err := b.f.Write([]byte{reg}); err != nil {
		return nil, fmt.Errorf("sensor: select register %#x: %w", reg, err)
	}
	buf := make([]byte, n)
	if _, err := b.f.Read(buf); err != nil {
		return nil, fmt.Errorf("sensor: read register %#x: %w", reg, err)
	}
	return buf, nil
}
