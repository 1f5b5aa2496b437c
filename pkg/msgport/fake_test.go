package msgport

import (
	"errors"
	"sync"
	"time"

	"github.com/mithrel/msgport/pkg/api"
)

// fakeFacility is an in-memory api.Facility with call counters.
type fakeFacility struct {
	mu    sync.Mutex
	ports map[string]*fakeLocal

	createLocalErr  error
	createRemoteErr error
	forceOutcome    *api.Outcome

	createLocalCalls  int
	createRemoteCalls int
	sendCalls         int
	invalidateRemotes int
	lastSendTimeout   time.Duration
	lastRecvTimeout   time.Duration
	lastDialTimeout   time.Duration
}

func newFakeFacility() *fakeFacility {
	return &fakeFacility{ports: make(map[string]*fakeLocal)}
}

type fakeLocal struct {
	name      string
	recv      api.Receiver
	info      any
	valid     bool
	observers []func(api.Handle)
}

func (p *fakeLocal) Name() string { return p.name }
func (p *fakeLocal) Local() bool  { return true }

type fakeRemote struct {
	name   string
	target *fakeLocal
	valid  bool
}

func (p *fakeRemote) Name() string { return p.name }
func (p *fakeRemote) Local() bool  { return false }

func (f *fakeFacility) CreateLocal(name string, recv api.Receiver, info any) (api.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createLocalCalls++
	if f.createLocalErr != nil {
		return nil, f.createLocalErr
	}
	if p, ok := f.ports[name]; ok && p.valid {
		return nil, api.ErrNameInUse
	}
	p := &fakeLocal{name: name, recv: recv, info: info, valid: true}
	f.ports[name] = p
	return p, nil
}

func (f *fakeFacility) CreateRemote(name string, timeout time.Duration) (api.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createRemoteCalls++
	f.lastDialTimeout = timeout
	if f.createRemoteErr != nil {
		return nil, f.createRemoteErr
	}
	p, ok := f.ports[name]
	if !ok || !p.valid {
		return nil, api.ErrNoSuchPort
	}
	return &fakeRemote{name: name, target: p, valid: true}, nil
}

func (f *fakeFacility) IsValid(h api.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch p := h.(type) {
	case *fakeLocal:
		return p.valid
	case *fakeRemote:
		return p.valid
	}
	return false
}

func (f *fakeFacility) Invalidate(h api.Handle) {
	f.mu.Lock()
	switch p := h.(type) {
	case *fakeRemote:
		if p.valid {
			p.valid = false
			f.invalidateRemotes++
		}
		f.mu.Unlock()
	case *fakeLocal:
		if !p.valid {
			f.mu.Unlock()
			return
		}
		p.valid = false
		observers := p.observers
		p.observers = nil
		f.mu.Unlock()
		for _, fn := range observers {
			fn(p)
		}
	default:
		f.mu.Unlock()
	}
}

func (f *fakeFacility) OnInvalidate(h api.Handle, fn func(api.Handle)) {
	f.mu.Lock()
	p, ok := h.(*fakeLocal)
	if ok && p.valid {
		p.observers = append(p.observers, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	if ok {
		fn(p)
	}
}

func (f *fakeFacility) Send(h api.Handle, id int32, data []byte, sendTimeout, recvTimeout time.Duration) api.Outcome {
	f.mu.Lock()
	f.sendCalls++
	f.lastSendTimeout = sendTimeout
	f.lastRecvTimeout = recvTimeout
	if f.forceOutcome != nil {
		out := *f.forceOutcome
		f.mu.Unlock()
		return out
	}
	r, ok := h.(*fakeRemote)
	if !ok || !r.valid {
		f.mu.Unlock()
		return api.OutcomeInvalid
	}
	target := r.target
	if !target.valid {
		f.mu.Unlock()
		return api.OutcomeBecameInvalid
	}
	f.mu.Unlock()

	acked := make(chan bool, 1)
	var once sync.Once
	target.recv(api.Inbound{
		ID:      id,
		Payload: append([]byte(nil), data...),
		Info:    target.info,
		Ack:     func(ok bool) { once.Do(func() { acked <- ok }) },
	})
	select {
	case ok := <-acked:
		if !ok {
			return api.OutcomeBecameInvalid
		}
		return api.OutcomeSuccess
	case <-time.After(recvTimeout):
		return api.OutcomeReceiveTimeout
	}
}

// kill simulates the facility losing a registration on its own.
func (f *fakeFacility) kill(name string) {
	f.mu.Lock()
	p := f.ports[name]
	f.mu.Unlock()
	if p != nil {
		f.Invalidate(p)
	}
}

func (f *fakeFacility) counts() (createRemote, send, invalidateRemotes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createRemoteCalls, f.sendCalls, f.invalidateRemotes
}

var errFakeBroken = errors.New("fake facility broken")
