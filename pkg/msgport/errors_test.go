package msgport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mithrel/msgport/pkg/api"
)

func TestClassifyClosedSet(t *testing.T) {
	cases := []struct {
		outcome api.Outcome
		want    error
	}{
		{api.OutcomeSuccess, nil},
		{api.OutcomeSendTimeout, ErrTimeoutSend},
		{api.OutcomeReceiveTimeout, ErrTimeoutReceive},
		{api.OutcomeInvalid, ErrInvalid},
		{api.OutcomeTransportError, ErrTransportError},
		{api.OutcomeBecameInvalid, ErrBecameInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.outcome.String(), func(t *testing.T) {
			for i := 0; i < 3; i++ {
				got := Classify(tc.outcome)
				if tc.want == nil {
					assert.NoError(t, got)
					continue
				}
				assert.ErrorIs(t, got, tc.want)
				assert.Equal(t, KindOf(tc.want), KindOf(got))
			}
		})
	}
}

func TestClassifyUndefinedOutcomePanics(t *testing.T) {
	for _, code := range []api.Outcome{1, -6, 100, -1 << 31} {
		assert.Panics(t, func() { _ = Classify(code) }, "code %d", code)
	}
}

func TestErrorMatchingByKind(t *testing.T) {
	err := &Error{Op: "send", Name: "svc.echo", Kind: KindInvalid, Err: api.ErrNoSuchPort}

	assert.ErrorIs(t, err, ErrInvalid)
	assert.NotErrorIs(t, err, ErrBecameInvalid)
	assert.ErrorIs(t, err, api.ErrNoSuchPort)
	assert.Equal(t, KindInvalid, KindOf(err))

	wrapped := fmt.Errorf("notify peer: %w", err)
	assert.ErrorIs(t, wrapped, ErrInvalid)
	assert.Equal(t, KindInvalid, KindOf(wrapped))

	assert.Equal(t, ErrorKind(0), KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(0), KindOf(nil))
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Op: "open", Name: "svc.dup", Kind: KindNameInUse, Err: api.ErrNameInUse}
	assert.Equal(t, `open "svc.dup": name in use: port name in use`, err.Error())

	assert.Equal(t, "send: empty payload", (&Error{Op: "send", Kind: KindEmptyPayload}).Error())
	assert.Equal(t, "transport error", ErrTransportError.Error())
	assert.Equal(t, "ErrorKind(99)", ErrorKind(99).String())
}
