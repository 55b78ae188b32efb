package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"

	"avc-ng/internal/avc"
	"avc-ng/internal/replay"
	"avc-ng/internal/udp"
)

// Recorder writes frames to a replay log. The overlay is written as a
// comment block whenever the mode changes.
type Recorder struct {
	w        *replay.Writer
	lastMode avc.Mode
	wrote    bool
}

func NewRecorder(path string) (*Recorder, error) {
	w, err := replay.CreateWriter(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create recording %s: %w", path, err)
	}
	return &Recorder{w: w}, nil
}

func (r *Recorder) Name() string { return "record" }

func (r *Recorder) Publish(_ context.Context, f Frame) error {
	if !r.wrote || f.State.Mode != r.lastMode {
		if err := r.w.WriteComment(strings.Join(f.Overlay, "\n")); err != nil {
			return err
		}
	}
	r.wrote = true
	r.lastMode = f.State.Mode
	if err := r.w.WriteState(f.Time, f.State); err != nil {
		return err
	}
	if f.State.Mode.Terminal() {
		return r.w.Flush()
	}
	return nil
}

func (r *Recorder) Close() error { return r.w.Close() }

// UDP sends every frame as one JSON datagram.
type UDP struct {
	b *udp.Broadcaster
}

func NewUDP(dest string) (*UDP, error) {
	b, err := udp.NewBroadcaster(dest)
	if err != nil {
		return nil, err
	}
	return &UDP{b: b}, nil
}

func (u *UDP) Name() string { return "udp" }

func (u *UDP) Publish(_ context.Context, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return u.b.Send(b)
}

func (u *UDP) Close() error { return u.b.Close() }

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes frames on a subject. The connection reconnects forever;
// publishes while disconnected are buffered by the client.
type NATS struct {
	conn    natsConn
	subject string
}

// Test seam.
var natsConnect = func(url string, opts ...nats.Option) (natsConn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return nc, nil
}

func NewNATS(url, subject string) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("avc-ng-telemetry"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("telemetry nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("telemetry nats reconnected url=%s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("telemetry nats closed")
		}),
	}
	conn, err := natsConnect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: nats connect %s: %w", url, err)
	}
	log.Printf("telemetry nats connected url=%s subject=%s", url, subject)
	return &NATS{conn: conn, subject: subject}, nil
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Publish(_ context.Context, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, b)
}

// Close drains pending publishes before closing the connection.
func (n *NATS) Close() error { return n.conn.Drain() }

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Redis keeps the latest state under Key and optionally announces each
// frame on Channel.
type Redis struct {
	client  redisClient
	key     string
	channel string
}

// Test seam.
var redisDial = func(addr string) redisClient {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func NewRedis(addr, key, channel string) *Redis {
	return &Redis{client: redisDial(addr), key: key, channel: channel}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Publish(ctx context.Context, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, b, 0).Err(); err != nil {
		return fmt.Errorf("telemetry: redis set %s: %w", r.key, err)
	}
	if r.channel == "" {
		return nil
	}
	if err := r.client.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("telemetry: redis publish %s: %w", r.channel, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
