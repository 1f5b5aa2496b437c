package api

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the status code a Facility reports for a send. The set is
// closed; the numeric values match the CoreFoundation message-port codes.
type Outcome int32

const (
	OutcomeSuccess        Outcome = 0
	OutcomeSendTimeout    Outcome = -1
	OutcomeReceiveTimeout Outcome = -2
	OutcomeInvalid        Outcome = -3
	OutcomeTransportError Outcome = -4
	OutcomeBecameInvalid  Outcome = -5
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:        "success",
	OutcomeSendTimeout:    "send_timeout",
	OutcomeReceiveTimeout: "receive_timeout",
	OutcomeInvalid:        "invalid",
	OutcomeTransportError: "transport_error",
	OutcomeBecameInvalid:  "became_invalid",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int32(o))
}

// ErrNameInUse is returned by CreateLocal when another registration holds
// the name.
var ErrNameInUse = errors.New("port name in use")

// ErrNoSuchPort is returned by CreateRemote when nothing is registered
// under the name.
var ErrNoSuchPort = errors.New("no such port")

// ErrResolveTimeout is returned by CreateRemote when the name exists but
// could not be reached within the timeout.
var ErrResolveTimeout = errors.New("resolving port timed out")

// Handle is an opaque reference to a registered or resolved port.
type Handle interface {
	Name() string
	Local() bool
}

// Inbound is one message handed to a local port's Receiver.
type Inbound struct {
	ID      int32
	Payload []byte
	Info    any

	// Ack reports whether the message was delivered. It must be called
	// exactly once; the sender is blocked until it is.
	Ack func(accepted bool)
}

// Receiver is invoked by the facility for every inbound message on a
// local port, in intake order. It must not block.
type Receiver func(in Inbound)

// Facility is the host-wide named-port transport.
type Facility interface {
	CreateLocal(name string, recv Receiver, info any) (Handle, error)
	// CreateRemote resolves name, spending at most timeout; a non-positive
	// timeout uses the facility's default.
	CreateRemote(name string, timeout time.Duration) (Handle, error)
	IsValid(h Handle) bool
	Invalidate(h Handle)
	Send(h Handle, id int32, data []byte, sendTimeout, recvTimeout time.Duration) Outcome

	// OnInvalidate registers fn to be called once when h becomes invalid,
	// whether by Invalidate or because the facility lost the registration.
	OnInvalidate(h Handle, fn func(Handle))
}

// Owner describes the process currently holding a port name.
type Owner struct {
	Name    string    `json:"name"`
	PID     int       `json:"pid"`
	Created time.Time `json:"created"`
}
