// Package udp sends telemetry datagrams to a unicast or broadcast address.
package udp

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
)

type Broadcaster struct {
	dest string
	conn net.Conn

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewBroadcaster dials dest ("host:port"). Broadcast destinations such as
// 255.255.255.255 or a subnet broadcast address are allowed.
func NewBroadcaster(dest string) (*Broadcaster, error) {
	if _, err := net.ResolveUDPAddr("udp4", dest); err != nil {
		return nil, fmt.Errorf("udp: resolve dest: %w", err)
	}

	d := net.Dialer{Control: allowBroadcast}
	conn, err := d.DialContext(context.Background(), "udp4", dest)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", dest, err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Dest() string { return b.dest }

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if _, err := b.conn.Write(payload); err != nil {
		b.failed.Add(1)
		return err
	}
	b.sent.Add(1)
	return nil
}

// Counts returns the number of datagrams sent and failed.
func (b *Broadcaster) Counts() (sent, failed uint64) {
	return b.sent.Load(), b.failed.Load()
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
