package msgport

import (
	"errors"
	"fmt"

	"github.com/mithrel/msgport/pkg/api"
)

// ErrorKind classifies a port failure.
type ErrorKind int

const (
	// KindEmptyPayload: Send was given no bytes; nothing reached the facility.
	KindEmptyPayload ErrorKind = iota + 1
	// KindNameInUse: another registration holds the name.
	KindNameInUse
	// KindRegistrationFailed: Open failed for any other reason.
	KindRegistrationFailed
	// KindInvalid: the target does not exist or the handle is already invalid.
	KindInvalid
	// KindTimeoutSend: the message could not be handed over in time.
	KindTimeoutSend
	// KindTimeoutReceive: the receiver did not acknowledge in time.
	KindTimeoutReceive
	// KindTransportError: the facility failed to move the message.
	KindTransportError
	// KindBecameInvalid: the target existed, then died mid-operation.
	KindBecameInvalid
)

var kindNames = map[ErrorKind]string{
	KindEmptyPayload:       "empty payload",
	KindNameInUse:          "name in use",
	KindRegistrationFailed: "registration failed",
	KindInvalid:            "invalid port",
	KindTimeoutSend:        "send timed out",
	KindTimeoutReceive:     "receive timed out",
	KindTransportError:     "transport error",
	KindBecameInvalid:      "port became invalid",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the error type returned by every operation in this package.
type Error struct {
	Op   string // "open", "listen" or "send"
	Name string // port name, if known
	Kind ErrorKind
	Err  error // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	switch {
	case e.Op != "" && e.Name != "":
		msg = fmt.Sprintf("%s %q: %s", e.Op, e.Name, msg)
	case e.Op != "":
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrInvalid)
// holds regardless of Op, Name or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrEmptyPayload       = &Error{Kind: KindEmptyPayload}
	ErrNameInUse          = &Error{Kind: KindNameInUse}
	ErrRegistrationFailed = &Error{Kind: KindRegistrationFailed}
	ErrInvalid            = &Error{Kind: KindInvalid}
	ErrTimeoutSend        = &Error{Kind: KindTimeoutSend}
	ErrTimeoutReceive     = &Error{Kind: KindTimeoutReceive}
	ErrTransportError     = &Error{Kind: KindTransportError}
	ErrBecameInvalid      = &Error{Kind: KindBecameInvalid}
)

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Classify maps a facility outcome to nil (success) or an *Error. The
// outcome set is closed; any other code means the facility broke its
// contract and Classify panics.
func Classify(o api.Outcome) error {
	kind, ok := classify(o)
	if ok {
		return nil
	}
	return &Error{Op: "send", Kind: kind}
}

func classify(o api.Outcome) (ErrorKind, bool) {
	switch o {
	case api.OutcomeSuccess:
		return 0, true
	case api.OutcomeSendTimeout:
		return KindTimeoutSend, false
	case api.OutcomeReceiveTimeout:
		return KindTimeoutReceive, false
	case api.OutcomeInvalid:
		return KindInvalid, false
	case api.OutcomeTransportError:
		return KindTransportError, false
	case api.OutcomeBecameInvalid:
		return KindBecameInvalid, false
	default:
		panic(fmt.Sprintf("msgport: facility returned undefined outcome code %d", int32(o)))
	}
}
