package msgport

import (
	"errors"
	"time"

	"github.com/mithrel/msgport/pkg/api"
)

// Remote is the sending side of a named port. It holds only the name; the
// port is resolved again on every Send because the receiver may come and
// go between calls.
type Remote struct {
	name string
	opts options
}

// NewRemote returns a Remote for name.
func NewRemote(name string, opts ...Option) *Remote {
	return &Remote{name: name, opts: buildOptions(opts)}
}

// Name returns the target port name.
func (r *Remote) Name() string { return r.name }

// Send delivers payload under message id to the endpoint registered as
// name, using the default facility.
func Send(name string, id int32, payload []byte, sendTimeout, recvTimeout time.Duration) (int, error) {
	return NewRemote(name).Send(id, payload, sendTimeout, recvTimeout)
}

// Send delivers payload under message id and blocks until the receiver's
// callback has run, or until sendTimeout (handing the message over) or
// recvTimeout (waiting for the receiver) expires. Non-positive timeouts use
// DefaultSendTimeout and DefaultRecvTimeout. On success it returns
// len(payload). Send never retries.
func (r *Remote) Send(id int32, payload []byte, sendTimeout, recvTimeout time.Duration) (int, error) {
	if len(payload) == 0 {
		return 0, r.fail(KindEmptyPayload, nil)
	}
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	if recvTimeout <= 0 {
		recvTimeout = DefaultRecvTimeout
	}

	f, err := r.opts.resolveFacility()
	if err != nil {
		return 0, r.fail(KindTransportError, err)
	}

	h, err := f.CreateRemote(r.name, sendTimeout)
	if err != nil {
		return 0, r.fail(resolveFailureKind(err), err)
	}
	defer f.Invalidate(h)

	// Never act on a handle that went stale after resolution.
	if !f.IsValid(h) {
		return 0, r.fail(KindInvalid, nil)
	}

	out := f.Send(h, id, payload, sendTimeout, recvTimeout)
	if kind, ok := classify(out); !ok {
		r.opts.logger.Debug("send failed", "port", r.name, "id", id, "outcome", out.String())
		return 0, r.fail(kind, nil)
	}
	return len(payload), nil
}

// resolveFailureKind maps a resolution error. Only a name nobody holds is
// Invalid; a live port that could not be reached is a send-side failure.
func resolveFailureKind(err error) ErrorKind {
	switch {
	case errors.Is(err, api.ErrNoSuchPort):
		return KindInvalid
	case errors.Is(err, api.ErrResolveTimeout):
		return KindTimeoutSend
	default:
		return KindTransportError
	}
}

func (r *Remote) fail(kind ErrorKind, cause error) error {
	return &Error{Op: "send", Name: r.name, Kind: kind, Err: cause}
}
