// Package udp sends each telemetry reading as one JSON datagram, for ground
// stations listening on the local network.
package udp

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"cansat-altimeter/internal/telemetry"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

type Broadcaster struct {
	dest string

	mu   sync.Mutex
	conn udpConn
	sent uint64
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", dest, err)
	}
	// A nil laddr lets the kernel pick the outgoing interface.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", dest, err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Name() string { return "udp" }

func (b *Broadcaster) Dest() string { return b.dest }

// Sent returns the number of datagrams written.
func (b *Broadcaster) Sent() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}

// Emit sends r as JSON.
func (b *Broadcaster) Emit(r telemetry.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("udp: marshal: %w", err)
	}
	return b.Send(payload)
}

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("udp: closed")
	}
	if _, err := b.conn.Write(payload); err != nil {
		return fmt.Errorf("udp: write %s: %w", b.dest, err)
	}
	b.sent++
	return nil
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
