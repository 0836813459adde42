package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/bus"
	"git.home.luguber.info/inful/previewer/internal/config"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/logfields"
	"git.home.luguber.info/inful/previewer/internal/metrics"
)

// Client is one live connection as seen by the hub. Transports read
// Messages until Done is closed.
type Client struct {
	id        string
	send      chan string
	done      chan struct{}
	closeOnce sync.Once
}

// ID identifies the connection in logs.
func (c *Client) ID() string { return c.id }

// Messages yields outbound text in delivery order.
func (c *Client) Messages() <-chan string { return c.send }

// Done is closed once the hub has dropped the client.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub is the single-writer subscription registry.
type Hub struct {
	ops       chan func()
	stopped   chan struct{}
	running   atomic.Bool
	queueSize int
	recorder  metrics.Recorder
	nextID    atomic.Uint64

	// Owned by the Run goroutine.
	clients map[*Client]map[string]struct{}
	groups  map[string]map[*Client]struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithRecorder reports connection and delivery counts.
func WithRecorder(r metrics.Recorder) Option {
	return func(h *Hub) {
		if r != nil {
			h.recorder = r
		}
	}
}

// WithQueueSize bounds each connection's outbound queue.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// NewHub returns a hub that does nothing until Run is called.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		ops:       make(chan func()),
		stopped:   make(chan struct{}),
		queueSize: config.DefaultRelayQueueSize,
		recorder:  metrics.NoopRecorder{},
		clients:   make(map[*Client]map[string]struct{}),
		groups:    make(map[string]map[*Client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run owns the registry until ctx ends. When sub is non-nil it subscribes
// once to every log channel and forwards what arrives; a nil sub serves
// subscriptions without any deliveries. All clients are disconnected on
// return.
func (h *Hub) Run(ctx context.Context, sub bus.PatternSubscriber) error {
	if !h.running.CompareAndSwap(false, true) {
		return ferrors.InternalError("relay hub already running").Build()
	}
	defer close(h.stopped)
	defer h.disconnectAll()

	var msgs <-chan bus.Message
	if sub != nil {
		ch, cancel, err := sub.PSubscribe(ctx, build.ChannelPattern)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryBus, "subscribe to log channels").
				WithContext("pattern", build.ChannelPattern).Build()
		}
		defer cancel()
		msgs = ch
		slog.Info("Relay listening for log events", logfields.Channel(build.ChannelPattern))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-h.ops:
			op()
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("Bus subscription closed; no further log events will be relayed")
				msgs = nil
				continue
			}
			h.deliver(msg)
		}
	}
}

// do runs op on the registry goroutine and waits for it. It reports false
// when the hub has stopped.
func (h *Hub) do(op func()) bool {
	finished := make(chan struct{})
	select {
	case h.ops <- func() { op(); close(finished) }:
	case <-h.stopped:
		return false
	}
	<-finished
	return true
}

// Connect registers a new client. The returned client is already closed
// when the hub is not running anymore.
func (h *Hub) Connect() *Client {
	c := &Client{
		id:   "conn-" + strconv.FormatUint(h.nextID.Add(1), 10),
		send: make(chan string, h.queueSize),
		done: make(chan struct{}),
	}
	ok := h.do(func() {
		h.clients[c] = make(map[string]struct{})
		h.recorder.SetRelayConnections(len(h.clients))
	})
	if !ok {
		c.close()
	}
	return c
}

// Subscribe adds c to the channel group and acknowledges with
// "Joined <channel>" to c alone. Subscribing twice is harmless.
func (h *Hub) Subscribe(c *Client, channel string) {
	h.do(func() {
		subs, ok := h.clients[c]
		if !ok {
			return
		}
		subs[channel] = struct{}{}
		group := h.groups[channel]
		if group == nil {
			group = make(map[*Client]struct{})
			h.groups[channel] = group
		}
		group[c] = struct{}{}
		slog.Debug("Relay subscription", logfields.ConnID(c.id), logfields.Channel(channel))
		h.enqueue(c, "Joined "+channel)
	})
}

// Disconnect removes c from every group. Safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	if !h.do(func() { h.remove(c) }) {
		c.close()
	}
}

// Subscribers returns the size of a channel group.
func (h *Hub) Subscribers(channel string) int {
	n := 0
	h.do(func() { n = len(h.groups[channel]) })
	return n
}

func (h *Hub) remove(c *Client) {
	subs, ok := h.clients[c]
	if !ok {
		return
	}
	for channel := range subs {
		if group := h.groups[channel]; group != nil {
			delete(group, c)
			if len(group) == 0 {
				delete(h.groups, channel)
			}
		}
	}
	delete(h.clients, c)
	c.close()
	h.recorder.SetRelayConnections(len(h.clients))
}

func (h *Hub) disconnectAll() {
	for c := range h.clients {
		h.remove(c)
	}
}

// enqueue hands text to c without blocking. A full queue means the client
// is not keeping up, and it is dropped.
func (h *Hub) enqueue(c *Client, text string) {
	select {
	case c.send <- text:
		h.recorder.IncRelayDelivered()
	default:
		slog.Warn("Dropping slow relay subscriber", logfields.ConnID(c.id))
		h.recorder.IncRelayDropped()
		h.remove(c)
	}
}

func (h *Hub) deliver(msg bus.Message) {
	channel, ok := strings.CutPrefix(msg.Channel, build.ChannelPrefix)
	if !ok || channel == "" {
		slog.Debug("Ignoring message outside log channels", logfields.Channel(msg.Channel))
		return
	}
	group := h.groups[channel]
	if len(group) == 0 {
		return
	}
	text := normalizePayload(msg.Payload)
	for c := range group {
		h.enqueue(c, text)
	}
}

// normalizePayload returns the payload as compact JSON. Anything that is not
// valid JSON is wrapped as {"log": <text>}.
func normalizePayload(payload []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err == nil {
		return buf.String()
	}
	wrapped, err := json.Marshal(struct {
		Log string `json:"log"`
	}{Log: string(payload)})
	if err != nil {
		return `{"log":""}`
	}
	return string(wrapped)
}
