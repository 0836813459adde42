// Package natsbus implements bus.Bus on core NATS publish/subscribe.
//
// Bus channels use ':' separators ("logs:<projectId>"), NATS subjects use
// '.', so "logs:brave-lion-42" travels as subject "logs.brave-lion-42" and
// the pattern "logs:*" subscribes to "logs.*". Delivery is at most once with
// no persistence, which is all live log streaming needs.
package natsbus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/previewer/internal/bus"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/logfields"
)

// Bus is a NATS backed bus.Bus.
type Bus struct {
	conn   *nats.Conn
	buffer int
}

// Option customizes Connect.
type Option func(*options)

type options struct {
	name    string
	timeout time.Duration
	buffer  int
}

// WithName sets the client name reported to the server.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithTimeout bounds the initial connection attempt.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithBuffer sets the size of subscription channels.
func WithBuffer(n int) Option { return func(o *options) { o.buffer = n } }

// Connect dials the NATS server at url.
func Connect(url string, opts ...Option) (*Bus, error) {
	if err := CheckURL(url); err != nil {
		return nil, err
	}
	o := options{name: "previewer", timeout: 5 * time.Second, buffer: 256}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := nats.Connect(url,
		nats.Name(o.name),
		nats.Timeout(o.timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS connection lost", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS connection restored", logfields.URL(c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryBus, "failed to connect to message bus").
			WithContext("url", redact(url)).Build()
	}
	return &Bus{conn: conn, buffer: o.buffer}, nil
}

// CheckURL rejects server URLs whose scheme the NATS client cannot dial,
// such as a redis:// URL left over from another deployment. URLs without a
// scheme are host:port pairs and pass.
func CheckURL(url string) error {
	for _, server := range strings.Split(url, ",") {
		scheme, _, ok := strings.Cut(strings.TrimSpace(server), "://")
		if !ok {
			continue
		}
		switch strings.ToLower(scheme) {
		case "nats", "tls", "ws", "wss":
		default:
			return ferrors.ConfigError("message bus URL scheme "+scheme+" is not supported, expected nats").
				WithContext("url", redact(server)).Build()
		}
	}
	return nil
}

// Subject converts a bus channel or pattern into a NATS subject.
func Subject(channel string) string {
	return strings.ReplaceAll(channel, ":", ".")
}

// Channel converts a NATS subject back into a bus channel.
func Channel(subject string) string {
	return strings.ReplaceAll(subject, ".", ":")
}

// Publish implements bus.Publisher. ctx bounds nothing on the fast path since
// core NATS publishes are buffered client side; Close flushes them.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryBus, "publish canceled").
			WithContext("channel", channel).Build()
	}
	if err := b.conn.Publish(Subject(channel), payload); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryBus, "failed to publish").
			WithContext("channel", channel).Build()
	}
	return nil
}

// PSubscribe implements bus.PatternSubscriber.
func (b *Bus) PSubscribe(ctx context.Context, pattern string) (<-chan bus.Message, func(), error) {
	out := make(chan bus.Message, b.buffer)
	msgs := make(chan *nats.Msg, b.buffer)

	sub, err := b.conn.ChanSubscribe(Subject(pattern), msgs)
	if err != nil {
		return nil, nil, ferrors.WrapError(err, ferrors.CategoryBus, "failed to subscribe").
			WithContext("pattern", pattern).Build()
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			close(done)
		})
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case m := <-msgs:
				select {
				case out <- bus.Message{Channel: Channel(m.Subject), Payload: m.Data}:
				case <-ctx.Done():
					cancel()
					return
				case <-done:
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Close flushes buffered publishes and closes the connection.
func (b *Bus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := b.conn.FlushWithContext(ctx)
	b.conn.Close()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryBus, "failed to flush message bus").Build()
	}
	return nil
}

// redact drops credentials from a nats:// URL before it is logged.
func redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if _, host, found := strings.Cut(rest, "@"); found {
		return scheme + "://***@" + host
	}
	return url
}
