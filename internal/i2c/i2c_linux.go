//go:build linux

package i2c

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl numbers and flags from <linux/i2c-dev.h>.
const (
	ioctlRdwr = 0x0707
	flagRead  = 0x0001
)

// segment is struct i2c_msg.
type segment struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

// rdwrIoctl is struct i2c_rdwr_ioctl_data.
type rdwrIoctl struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is an open adapter shared by the barometer and the IMU. Transfers are
// serialized.
type Bus struct {
	mu sync.Mutex
	f  *os.File
}

func Open(path string) (*Bus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &Bus{f: f}, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

// Dev addresses one 7-bit device on the bus. A nil bus yields a nil Dev.
func (b *Bus) Dev(addr uint16) *Dev {
	if b == nil {
		return nil
	}
	return &Dev{bus: b, addr: addr}
}

// Dev is a device at a 7-bit address on a Bus.
type Dev struct {
	bus  *Bus
	addr uint16
}

// ReadReg writes the register pointer and reads len(dst) bytes behind a
// repeated start.
func (d *Dev) ReadReg(reg byte, dst []byte) error {
	return d.transfer([]byte{reg}, dst)
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var v [1]byte
	err := d.ReadReg(reg, v[:])
	return v[0], err
}

func (d *Dev) WriteReg(reg, value byte) error {
	return d.transfer([]byte{reg, value}, nil)
}

func (d *Dev) transfer(w, r []byte) error {
	if d == nil || d.bus == nil {
		return errors.New("i2c: device is nil")
	}
	if err := validAddr(d.addr); err != nil {
		return err
	}

	var segs [2]segment
	n := 0
	if len(w) > 0 {
		segs[n] = segment{addr: d.addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))}
		n++
	}
	if len(r) > 0 {
		segs[n] = segment{addr: d.addr, flags: flagRead, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))}
		n++
	}
	if n == 0 {
		return nil
	}

	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if d.bus.f == nil {
		return errors.New("i2c: bus is closed")
	}
	req := rdwrIoctl{msgs: uintptr(unsafe.Pointer(&segs[0])), nmsgs: uint32(n)}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), ioctlRdwr, uintptr(unsafe.Pointer(&req)))
	switch errno {
	case 0:
		return nil
	case unix.EREMOTEIO, unix.ENXIO:
		return fmt.Errorf("%w at 0x%02X: %v", ErrNoAck, d.addr, errno)
	default:
		return fmt.Errorf("i2c: addr 0x%02X: %w", d.addr, errno)
	}
}
