package msgport

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/mithrel/msgport/pkg/api"
)

// Callback handles one inbound message. info is the value given to
// WithInfo, or nil.
type Callback func(id int32, payload []byte, info any)

type endpointState int

const (
	stateValid endpointState = iota
	stateInvalidated
)

// LocalEndpoint is the receiving side of a named port.
type LocalEndpoint struct {
	name         string
	callback     Callback
	info         any
	release      func(any)
	onInvalidate func(*LocalEndpoint)
	facility     api.Facility
	logger       *slog.Logger
	handle       api.Handle
	limit        int

	mu           sync.Mutex
	state        endpointState
	unregistered bool
	lane         Lane
	pending      []api.Inbound
	inflight     int
	admitted     int
	released     bool
	done         chan struct{}
}

// Open registers a local endpoint under name. It fails with KindNameInUse
// when another registration holds name and KindRegistrationFailed for any
// other reason.
func Open(name string, callback Callback, opts ...Option) (*LocalEndpoint, error) {
	o := buildOptions(opts)
	if name == "" {
		return nil, &Error{Op: "open", Kind: KindRegistrationFailed, Err: errors.New("empty port name")}
	}
	if callback == nil {
		return nil, &Error{Op: "open", Name: name, Kind: KindRegistrationFailed, Err: errors.New("nil callback")}
	}
	f, err := o.resolveFacility()
	if err != nil {
		return nil, &Error{Op: "open", Name: name, Kind: KindRegistrationFailed, Err: err}
	}

	ep := &LocalEndpoint{
		name:         name,
		callback:     callback,
		info:         o.info,
		release:      o.release,
		onInvalidate: o.onInvalidate,
		facility:     f,
		limit:        o.limit,
		logger:       o.logger.With("port", name),
		done:         make(chan struct{}),
	}

	h, err := f.CreateLocal(name, ep.receive, ep.info)
	if err != nil {
		kind := KindRegistrationFailed
		if errors.Is(err, api.ErrNameInUse) {
			kind = KindNameInUse
		}
		return nil, &Error{Op: "open", Name: name, Kind: kind, Err: err}
	}
	ep.handle = h
	f.OnInvalidate(h, func(api.Handle) { ep.teardown() })

	ep.logger.Debug("port opened")
	return ep, nil
}

// Name returns the name the endpoint is registered under.
func (ep *LocalEndpoint) Name() string { return ep.name }

// IsValid reports whether the endpoint is registered and not invalidated.
func (ep *LocalEndpoint) IsValid() bool {
	if ep == nil {
		return false
	}
	ep.mu.Lock()
	valid := ep.state == stateValid
	ep.mu.Unlock()
	return valid && ep.facility.IsValid(ep.handle)
}

// Listen binds delivery of inbound messages to s. Messages that arrived
// before Listen are handed to s in arrival order. A second call has no
// effect. Listen returns false if the endpoint is no longer valid.
func (ep *LocalEndpoint) Listen(s Scheduler) bool {
	if ep == nil || s == nil {
		return false
	}
	if !ep.facility.IsValid(ep.handle) {
		ep.teardown()
		return false
	}

	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.state != stateValid {
		return false
	}
	if ep.lane != nil {
		return true
	}
	ep.lane = s.Bind(ep.name)
	pending := ep.pending
	ep.pending = nil
	for _, in := range pending {
		ep.submitLocked(in)
	}
	ep.logger.Debug("port listening", "pending", len(pending))
	return true
}

// Invalidate unregisters the endpoint. The info value is released once no
// callback is running, which may be before Invalidate returns or when the
// last in-flight callback finishes. Later calls are no-ops.
func (ep *LocalEndpoint) Invalidate() {
	if ep == nil {
		return
	}
	ep.teardown()
}

// Done is closed once the endpoint has been invalidated and its info
// released.
func (ep *LocalEndpoint) Done() <-chan struct{} { return ep.done }

// receive is the facility's Receiver for this endpoint.
func (ep *LocalEndpoint) receive(in api.Inbound) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	switch {
	case ep.state != stateValid:
		in.Ack(false)
	case ep.lane == nil:
		ep.pending = append(ep.pending, in)
	default:
		ep.submitLocked(in)
	}
}

func (ep *LocalEndpoint) submitLocked(in api.Inbound) {
	if !ep.lane.Submit(func() { ep.deliver(in) }) {
		in.Ack(false)
	}
}

// deliver runs on the bound scheduler.
func (ep *LocalEndpoint) deliver(in api.Inbound) {
	ep.mu.Lock()
	if ep.state != stateValid || (ep.limit > 0 && ep.admitted >= ep.limit) {
		ep.mu.Unlock()
		in.Ack(false)
		return
	}
	ep.admitted++
	ep.inflight++
	ep.mu.Unlock()

	ep.callback(in.ID, in.Payload, ep.info)

	ep.mu.Lock()
	ep.inflight--
	release := ep.releasableLocked()
	ep.mu.Unlock()

	in.Ack(true)
	if release {
		ep.releaseInfo()
	}
}

// teardown is the single invalidation path: unregister, stop the lane,
// reject what never started, then release once nothing is in flight.
func (ep *LocalEndpoint) teardown() {
	ep.mu.Lock()
	if ep.state != stateValid {
		ep.mu.Unlock()
		return
	}
	ep.state = stateInvalidated
	pending := ep.pending
	ep.pending = nil
	lane := ep.lane
	ep.mu.Unlock()

	ep.facility.Invalidate(ep.handle)
	if lane != nil {
		lane.Close()
	}
	for _, in := range pending {
		in.Ack(false)
	}

	ep.mu.Lock()
	ep.unregistered = true
	release := ep.releasableLocked()
	inflight := ep.inflight
	ep.mu.Unlock()

	if release {
		ep.releaseInfo()
	}
	ep.logger.Debug("port invalidated", "inflight", inflight)
	if ep.onInvalidate != nil {
		ep.onInvalidate(ep)
	}
}

// releasableLocked reports whether the info must be released now and
// marks it released. Callers hold ep.mu.
func (ep *LocalEndpoint) releasableLocked() bool {
	if ep.state != stateInvalidated || !ep.unregistered || ep.inflight > 0 || ep.released {
		return false
	}
	ep.released = true
	return true
}

func (ep *LocalEndpoint) releaseInfo() {
	if ep.release != nil {
		ep.release(ep.info)
	}
	close(ep.done)
}
