package monitor

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cansat-altimeter/internal/replay"
	"cansat-altimeter/internal/telemetry"
)

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineSink) add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
}

func (l *lineSink) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

type fakePort struct {
	io.Reader
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestScanLines_SkipsBlankAndInvalidUTF8(t *testing.T) {
	var sink lineSink
	in := "Pressure: 1.00 Pa\r\n\n  \nMPU Temp: \xff30.00 C\n"
	require.NoError(t, scanLines(context.Background(), strings.NewReader(in), sink.add))
	assert.Equal(t, []string{"Pressure: 1.00 Pa", "MPU Temp: 30.00 C"}, sink.get())
}

func TestSerialSource_ReadsLines(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("Raw altitude: 5.00 m\nFiltered altitude: 4.00 m\n")}
	var got serial.OpenOptions
	old := openPort
	openPort = func(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
		got = opts
		return port, nil
	}
	t.Cleanup(func() { openPort = old })

	var sink lineSink
	src := &SerialSource{Port: "/dev/ttyACM3", Baud: 9600}
	require.NoError(t, src.Run(context.Background(), sink.add))

	assert.Equal(t, "/dev/ttyACM3", got.PortName)
	assert.Equal(t, uint(9600), got.BaudRate)
	assert.Equal(t, uint(8), got.DataBits)
	assert.Equal(t, []string{"Raw altitude: 5.00 m", "Filtered altitude: 4.00 m"}, sink.get())
	assert.True(t, port.closed)
	assert.Equal(t, "serial:/dev/ttyACM3", src.Name())
}

func TestSerialSource_OpenErrorListsCandidates(t *testing.T) {
	boom := errors.New("no such file or directory")
	oldOpen, oldGlob := openPort, globPorts
	openPort = func(serial.OpenOptions) (io.ReadWriteCloser, error) { return nil, boom }
	globPorts = func(pattern string) ([]string, error) {
		switch pattern {
		case "/dev/ttyACM*":
			return []string{"/dev/ttyACM0"}, nil
		case "/dev/ttyUSB*":
			return []string{"/dev/ttyUSB1"}, nil
		}
		return nil, nil
	}
	t.Cleanup(func() { openPort, globPorts = oldOpen, oldGlob })

	err := (&SerialSource{Port: "/dev/ttyACM3", Baud: 9600}).Run(context.Background(), func(string) {})
	var oe *OpenError
	require.ErrorAs(t, err, &oe)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyUSB1"}, oe.Candidates)
	assert.Contains(t, err.Error(), "available: /dev/ttyACM0, /dev/ttyUSB1")

	globPorts = func(string) ([]string, error) { return nil, nil }
	err = (&SerialSource{Port: "/dev/ttyACM3"}).Run(context.Background(), func(string) {})
	assert.Contains(t, err.Error(), "no serial ports found")
}

func TestTCPSource_ReadsAndReconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for i := 0; i < 2; i++ {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = io.WriteString(c, "Pressure: 100.00 Pa\n")
			_ = c.Close()
		}
	}()

	var sink lineSink
	src := &TCPSource{Addr: ln.Addr().String(), ReconnectDelay: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, sink.add) }()

	require.Eventually(t, func() bool { return len(sink.get()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	snap := src.Snapshot()
	assert.Equal(t, "stopped", snap.State)
	assert.GreaterOrEqual(t, snap.Connects, uint64(2))
}

func TestTCPSource_RequiresAddr(t *testing.T) {
	assert.Error(t, (&TCPSource{}).Run(context.Background(), func(string) {}))
}

type noSleep struct{ slept []time.Duration }

func (n *noSleep) Sleep(d time.Duration) { n.slept = append(n.slept, d) }

func TestReplaySource_PlaysRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.log")
	w, err := replay.CreateWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Emit(telemetry.Reading{Time: t0, PressurePa: 100000, FilteredAltitudeM: 1}))
	require.NoError(t, w.Emit(telemetry.Reading{Time: t0.Add(time.Second), PressurePa: 99990, FilteredAltitudeM: 2}))
	require.NoError(t, w.Close())

	var sink lineSink
	sl := &noSleep{}
	src := &ReplaySource{Path: path, Speed: 2, Sleeper: sl}
	require.NoError(t, src.Run(context.Background(), sink.add))

	lines := sink.get()
	require.Len(t, lines, 8)
	assert.Equal(t, "Pressure: 100000.00 Pa", lines[0])
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sl.slept)
}

func TestReplaySource_MissingFile(t *testing.T) {
	src := &ReplaySource{Path: filepath.Join(t.TempDir(), "missing.log")}
	err := src.Run(context.Background(), func(string) {})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReplaySource_CancelIsClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.log")
	require.NoError(t, os.WriteFile(path, []byte("START\n0.000 \"x\"\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &ReplaySource{Path: path, Loop: true}
	assert.NoError(t, src.Run(ctx, func(string) {}))
}
