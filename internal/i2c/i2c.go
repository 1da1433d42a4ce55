// Package i2c gives sensor drivers register access to devices on a Linux
// I2C adapter.
package i2c

import (
	"errors"
	"fmt"
)

// ErrNoAck reports that nothing acknowledged the address, which is how an
// unplugged sensor shows up.
var ErrNoAck = errors.New("i2c: no acknowledge")

// RegIO is the register-level access sensor drivers need. *Dev implements it;
// tests substitute register models.
type RegIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

// BusPath returns the character device path for adapter n.
func BusPath(n int) string {
	return fmt.Sprintf("/dev/i2c-%d", n)
}

// OpenBus opens /dev/i2c-n.
func OpenBus(n int) (*Bus, error) {
	if n < 0 {
		return nil, fmt.Errorf("i2c: invalid bus %d", n)
	}
	return Open(BusPath(n))
}

func validAddr(addr uint16) error {
	if addr == 0 || addr > 0x7F {
		return fmt.Errorf("i2c: invalid addr 0x%X", addr)
	}
	return nil
}
