//go:build linux

package i2c

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

var _ RegIO = (*Dev)(nil)

func openNullBus(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return &Bus{f: f}
}

func TestTransfer_RejectsInvalidAddr(t *testing.T) {
	b := openNullBus(t)
	for _, addr := range []uint16{0, 0x80} {
		err := b.Dev(addr).WriteReg(0x6B, 0x00)
		require.ErrorContains(t, err, "invalid addr", "addr=0x%X", addr)
	}
}

func TestTransfer_EmptyIsNoop(t *testing.T) {
	require.NoError(t, openNullBus(t).Dev(0x68).transfer(nil, nil))
}

func TestTransfer_ClosedBus(t *testing.T) {
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	require.NoError(t, err)
	b := &Bus{f: f}
	d := b.Dev(0x77)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = d.ReadRegU8(0xD0)
	require.ErrorContains(t, err, "bus is closed")
}

func TestNilBusAndDev(t *testing.T) {
	var b *Bus
	require.Nil(t, b.Dev(0x77))
	require.NoError(t, b.Close())

	var d *Dev
	require.ErrorContains(t, d.WriteReg(0xF4, 0x2E), "device is nil")
}

func TestOpenBus(t *testing.T) {
	require.Equal(t, "/dev/i2c-1", BusPath(1))
	_, err := OpenBus(-1)
	require.Error(t, err)
	_, err = Open("/dev/i2c-does-not-exist")
	require.Error(t, err)
}
