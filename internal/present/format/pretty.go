package format

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/mithrel/msgport/pkg/api"
)

var (
	portStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	metaStyle    = lipgloss.NewStyle().Faint(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// PrettyStreamWriter writes deliveries as styled terminal lines.
type PrettyStreamWriter struct {
	w io.Writer
}

// NewPrettyStreamWriter creates a streaming pretty writer.
func NewPrettyStreamWriter(w io.Writer) *PrettyStreamWriter {
	return &PrettyStreamWriter{w: w}
}

// WriteDelivery writes one delivery.
func (pw *PrettyStreamWriter) WriteDelivery(d Delivery) error {
	_, err := fmt.Fprintf(pw.w, "%s %s %s %s\n",
		metaStyle.Render(d.Received.Local().Format("15:04:05.000")),
		portStyle.Render(d.Port),
		idStyle.Render(fmt.Sprintf("#%d", d.ID)),
		d.Payload)
	return err
}

// Close is a no-op for pretty output.
func (pw *PrettyStreamWriter) Close() error { return nil }

// WritePrettySendResult writes a styled summary of a successful send.
func WritePrettySendResult(w io.Writer, r SendResult) error {
	_, err := fmt.Fprintf(w, "%s %s %s %s\n",
		successStyle.Render("✓"),
		portStyle.Render(r.Port),
		idStyle.Render(fmt.Sprintf("#%d", r.ID)),
		metaStyle.Render(fmt.Sprintf("%d bytes", r.Bytes)))
	return err
}

// WritePrettyOwner renders a port's owner record with markdown formatting
// using glamour, wrapped to width columns.
func WritePrettyOwner(w io.Writer, o api.Owner, width int) error {
	md := fmt.Sprintf(`# %s

> **PID:** %d | **Registered:** %s (%s ago)
`, o.Name, o.PID, o.Created.Local().Format(time.RFC3339), time.Since(o.Created).Round(time.Second))

	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dracula"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
