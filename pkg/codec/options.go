package codec

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/logger"
	"github.com/ZentaChain/zentalk-client/pkg/metrics"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

type options struct {
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	local   protocol.Identity
}

// Option configures a decoder
type Option func(*options)

// WithClock replaces the wall clock, for tests
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records decode outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLocalIdentity sets the identity reflected messages must come from
func WithLocalIdentity(id protocol.Identity) Option {
	return func(o *options) { o.local = id }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logger.OrDefault(o.logger)
	return o
}

// messageTime returns the sender date of a box, or now when unset
func (o *options) messageTime(meta protocol.Meta) time.Time {
	if meta.Date == 0 {
		return o.clock.Now()
	}
	return time.UnixMilli(int64(meta.Date))
}

// checkScope verifies that a message's scope matches the conversation
// it was delivered to
func checkScope(scope protocol.Scope, conv *entity.Conversation) error {
	if conv == nil {
		return ErrUnknownConversation
	}
	if scope.IsGroup() {
		if !conv.IsGroup() || *conv.Group != scope.Group {
			return ErrUnknownConversation
		}
		return nil
	}
	if conv.IsGroup() {
		return ErrUnknownConversation
	}
	return nil
}
