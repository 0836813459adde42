// Package bus defines the publish/subscribe capability the worker and the
// log relay talk through. Channels are colon separated names such as
// "logs:brave-lion-42"; subscription patterns may end in "*" to match every
// channel with that prefix.
package bus

import (
	"context"
	"strings"
)

// Message is one payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Publisher publishes payloads to channels.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// PatternSubscriber delivers every message whose channel matches pattern
// until the returned cancel func is called or ctx ends. The message
// channel is closed afterwards.
type PatternSubscriber interface {
	PSubscribe(ctx context.Context, pattern string) (<-chan Message, func(), error)
}

// Bus is both sides of the capability.
type Bus interface {
	Publisher
	PatternSubscriber
}

// Match reports whether channel matches pattern. A trailing "*" matches any
// non-empty remainder; otherwise the match is exact.
func Match(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix) && len(channel) > len(prefix)
	}
	return pattern == channel
}
