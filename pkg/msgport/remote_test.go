package msgport

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mithrel/msgport/pkg/api"
)

func TestSendEmptyPayloadNeverTouchesFacility(t *testing.T) {
	f := newFakeFacility()
	ep, err := Open("svc.echo", noopCallback, WithFacility(f))
	require.NoError(t, err)
	defer ep.Invalidate()

	for _, payload := range [][]byte{nil, {}} {
		n, err := NewRemote("svc.echo", WithFacility(f)).Send(1, payload, time.Second, time.Second)
		assert.Zero(t, n)
		assert.ErrorIs(t, err, ErrEmptyPayload)
	}
	createRemote, send, _ := f.counts()
	assert.Zero(t, createRemote)
	assert.Zero(t, send)
}

func TestSendMissingIsPromptlyInvalid(t *testing.T) {
	f := newFakeFacility()
	start := time.Now()
	n, err := NewRemote("svc.missing", WithFacility(f)).Send(1, []byte("x"), time.Second, time.Second)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	_, send, _ := f.counts()
	assert.Zero(t, send)
}

func TestSendMapsEveryOutcomeAndReleasesHandle(t *testing.T) {
	cases := []struct {
		outcome api.Outcome
		want    error
	}{
		{api.OutcomeSendTimeout, ErrTimeoutSend},
		{api.OutcomeReceiveTimeout, ErrTimeoutReceive},
		{api.OutcomeInvalid, ErrInvalid},
		{api.OutcomeTransportError, ErrTransportError},
		{api.OutcomeBecameInvalid, ErrBecameInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.outcome.String(), func(t *testing.T) {
			f := newFakeFacility()
			ep, err := Open("svc.forced", noopCallback, WithFacility(f))
			require.NoError(t, err)
			defer ep.Invalidate()

			out := tc.outcome
			f.forceOutcome = &out
			n, err := NewRemote("svc.forced", WithFacility(f)).Send(9, []byte("x"), time.Second, time.Second)
			assert.Zero(t, n)
			assert.ErrorIs(t, err, tc.want)

			createRemote, send, released := f.counts()
			assert.Equal(t, 1, createRemote)
			assert.Equal(t, 1, send)
			assert.Equal(t, 1, released, "transient handle must be released")
		})
	}
}

func TestSendUndefinedOutcomePanicsAfterRelease(t *testing.T) {
	f := newFakeFacility()
	ep, err := Open("svc.broken", noopCallback, WithFacility(f))
	require.NoError(t, err)
	defer ep.Invalidate()

	out := api.Outcome(7)
	f.forceOutcome = &out
	assert.Panics(t, func() {
		_, _ = NewRemote("svc.broken", WithFacility(f)).Send(1, []byte("x"), time.Second, time.Second)
	})
	_, _, released := f.counts()
	assert.Equal(t, 1, released)
}

func TestSendSuccessReturnsByteCount(t *testing.T) {
	f := newFakeFacility()
	ep, err := Open("svc.count", noopCallback, WithFacility(f))
	require.NoError(t, err)
	defer ep.Invalidate()
	require.True(t, ep.Listen(NewWorkQueue()))

	r := NewRemote("svc.count", WithFacility(f))
	assert.Equal(t, "svc.count", r.Name())
	n, err := r.Send(1, []byte("hello"), time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, _, released := f.counts()
	assert.Equal(t, 1, released)
}

func TestSendDefaultTimeouts(t *testing.T) {
	f := newFakeFacility()
	ep, err := Open("svc.defaults", noopCallback, WithFacility(f))
	require.NoError(t, err)
	defer ep.Invalidate()
	require.True(t, ep.Listen(NewWorkQueue()))

	_, err = NewRemote("svc.defaults", WithFacility(f)).Send(1, []byte("x"), 0, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, DefaultSendTimeout, f.lastSendTimeout)
	assert.Equal(t, DefaultRecvTimeout, f.lastRecvTimeout)
}

func TestSendResolutionFailureKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"missing", fmt.Errorf("%w: %q", api.ErrNoSuchPort, "svc.x"), ErrInvalid},
		{"timeout", fmt.Errorf("%w: %q", api.ErrResolveTimeout, "svc.x"), ErrTimeoutSend},
		{"backlog full", fmt.Errorf("resolving %q: %w", "svc.x", errors.New("resource temporarily unavailable")), ErrTransportError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeFacility()
			f.createRemoteErr = tc.err
			n, err := NewRemote("svc.x", WithFacility(f)).Send(1, []byte("x"), 250*time.Millisecond, time.Second)
			assert.Zero(t, n)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 250*time.Millisecond, f.lastDialTimeout, "resolution spends the send timeout")

			_, send, _ := f.counts()
			assert.Zero(t, send)
		})
	}
}
