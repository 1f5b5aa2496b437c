package format

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/mithrel/msgport/pkg/api"
)

// PlainStreamWriter incrementally writes deliveries as TSV.
type PlainStreamWriter struct {
	tw          *tabwriter.Writer
	headers     bool
	wroteHeader bool
}

// NewPlainStreamWriter creates a streaming plain writer.
func NewPlainStreamWriter(w io.Writer, headers bool) *PlainStreamWriter {
	return &PlainStreamWriter{
		tw:      tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		headers: headers,
	}
}

// WriteDelivery writes one delivery and flushes, so a listener's output
// appears as messages arrive.
func (pw *PlainStreamWriter) WriteDelivery(d Delivery) error {
	if pw.headers && !pw.wroteHeader {
		_, _ = io.WriteString(pw.tw, headerLine)
		pw.wroteHeader = true
	}
	ms := d.Received.UnixNano() / int64(time.Millisecond)
	line := esc(d.Port) + "\t" + strconv.Itoa(int(d.ID)) + "\t" + strconv.Itoa(d.Size) + "\t" + strconv.FormatInt(ms, 10) + "\t" + esc(d.Payload) + "\n"
	_, _ = io.WriteString(pw.tw, line)
	return pw.tw.Flush()
}

// Close flushes remaining buffered output.
func (pw *PlainStreamWriter) Close() error {
	return pw.tw.Flush()
}

// WritePlainSendResult writes a one-line summary of a successful send.
func WritePlainSendResult(w io.Writer, r SendResult) error {
	_, err := fmt.Fprintf(w, "sent %d bytes to %s (id %d)\n", r.Bytes, r.Port, r.ID)
	return err
}

// WritePlainOwner writes a port's owner record as key/value lines.
func WritePlainOwner(w io.Writer, o api.Owner) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "name\t%s\n", esc(o.Name))
	fmt.Fprintf(tw, "pid\t%d\n", o.PID)
	fmt.Fprintf(tw, "created\t%s\n", o.Created.Local().Format(time.RFC3339))
	return tw.Flush()
}
