//go:build !linux

package i2c

import "errors"

var errNoAdapter = errors.New("i2c: adapters are only available on linux")

// Bus never opens off linux; drivers then see a nil Dev and report the
// sensor as not found.
type Bus struct{}

type Dev struct{}

func Open(string) (*Bus, error) { return nil, errNoAdapter }

func (*Bus) Close() error    { return nil }
func (*Bus) Dev(uint16) *Dev { return nil }

func (*Dev) ReadReg(byte, []byte) error   { return errNoAdapter }
func (*Dev) ReadRegU8(byte) (byte, error) { return 0, errNoAdapter }
func (*Dev) WriteReg(byte, byte) error    { return errNoAdapter }
