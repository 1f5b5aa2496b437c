package msgport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mithrel/msgport/internal/ipc"
	"github.com/mithrel/msgport/internal/ipc/transport"
	"github.com/mithrel/msgport/pkg/api"
)

// Timeouts used by Send when the caller passes a non-positive value.
const (
	DefaultSendTimeout = time.Second
	DefaultRecvTimeout = time.Second
)

// Option configures Open and NewRemote.
type Option func(*options)

type options struct {
	facility     api.Facility
	logger       *slog.Logger
	info         any
	release      func(any)
	onInvalidate func(*LocalEndpoint)
	limit        int
}

// WithFacility routes the endpoint through f instead of the default
// Unix-socket facility.
func WithFacility(f api.Facility) Option {
	return func(o *options) { o.facility = f }
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInfo attaches v to a local endpoint. Every callback receives v.
// release, if non-nil, is called with v exactly once after the endpoint is
// invalidated and no callback is running. If Open fails, release is never
// called and v stays with the caller.
func WithInfo(v any, release func(any)) Option {
	return func(o *options) {
		o.info = v
		o.release = release
	}
}

// WithInvalidationHandler registers fn to run once when the endpoint
// becomes invalid, whether by Invalidate or because the facility lost the
// registration.
func WithInvalidationHandler(fn func(*LocalEndpoint)) Option {
	return func(o *options) { o.onInvalidate = fn }
}

// WithDeliveryLimit caps how many messages a local endpoint hands to its
// callback. Deliveries past n are rejected, so their senders see
// BecameInvalid instead of success. n <= 0 means no limit.
func WithDeliveryLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func (o options) resolveFacility() (api.Facility, error) {
	if o.facility != nil {
		return o.facility, nil
	}
	return DefaultFacility()
}

var (
	defaultOnce     sync.Once
	defaultFacility api.Facility
	defaultErr      error
)

// DefaultFacility returns the process-wide Unix-socket facility rooted at
// the user's runtime directory.
func DefaultFacility() (api.Facility, error) {
	defaultOnce.Do(func() {
		dir, err := ipc.RuntimeDir("")
		if err != nil {
			defaultErr = fmt.Errorf("resolving runtime dir: %w", err)
			return
		}
		defaultFacility = transport.NewUnixFacility(dir, nil)
	})
	return defaultFacility, defaultErr
}
