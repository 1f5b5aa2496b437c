package present

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mithrel/msgport/internal/present/format"
	"github.com/mithrel/msgport/pkg/api"
)

type Mode int

const (
	ModePlain Mode = iota
	ModePretty
	ModeJSON
	ModeNDJSON
)

type Options struct {
	Mode       Mode
	JSONIndent bool
	Headers    bool
}

type (
	Delivery   = format.Delivery
	SendResult = format.SendResult
)

// DeliveryWriter streams deliveries in one output mode.
type DeliveryWriter interface {
	WriteDelivery(Delivery) error
	Close() error
}

// ParseMode parses a string like "plain", "pretty", "json", "ndjson".
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain":
		return ModePlain, true
	case "pretty":
		return ModePretty, true
	case "json":
		return ModeJSON, true
	case "ndjson":
		return ModeNDJSON, true
	default:
		return ModePlain, false
	}
}

// ForWriter downgrades pretty output to plain when w is not a terminal, so
// escape codes never reach pipes or files.
func ForWriter(m Mode, w io.Writer) Mode {
	if m == ModePretty && !isTerminal(w) {
		return ModePlain
	}
	return m
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func termWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// NewDeliveryWriter returns the streaming writer for opts.Mode.
func NewDeliveryWriter(w io.Writer, opts Options) DeliveryWriter {
	switch opts.Mode {
	case ModeJSON:
		return format.NewJSONStreamWriter(w, opts.JSONIndent)
	case ModeNDJSON:
		return format.NewNDJSONStreamWriter(w)
	case ModePretty:
		return format.NewPrettyStreamWriter(w)
	default:
		return format.NewPlainStreamWriter(w, opts.Headers)
	}
}

// RenderSendResult renders the result of a successful send.
func RenderSendResult(w io.Writer, r SendResult, opts Options) error {
	switch opts.Mode {
	case ModeJSON:
		return format.WriteJSON(w, r, opts.JSONIndent)
	case ModeNDJSON:
		return format.WriteJSON(w, r, false)
	case ModePretty:
		return format.WritePrettySendResult(w, r)
	default:
		return format.WritePlainSendResult(w, r)
	}
}

// RenderOwner renders the owner record of a registered port.
func RenderOwner(w io.Writer, o api.Owner, opts Options) error {
	switch opts.Mode {
	case ModeJSON:
		return format.WriteJSON(w, o, opts.JSONIndent)
	case ModeNDJSON:
		return format.WriteJSON(w, o, false)
	case ModePretty:
		return format.WritePrettyOwner(w, o, termWidth(w))
	default:
		return format.WritePlainOwner(w, o)
	}
}
