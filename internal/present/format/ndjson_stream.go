package format

import (
	"encoding/json"
	"io"
)

// NDJSONStreamWriter incrementally writes deliveries as NDJSON.
type NDJSONStreamWriter struct {
	enc *json.Encoder
}

// NewNDJSONStreamWriter creates a streaming NDJSON writer.
func NewNDJSONStreamWriter(w io.Writer) *NDJSONStreamWriter {
	return &NDJSONStreamWriter{enc: json.NewEncoder(w)}
}

// WriteDelivery writes one delivery as one JSON line.
func (nw *NDJSONStreamWriter) WriteDelivery(d Delivery) error {
	return nw.enc.Encode(d)
}

// Close is a no-op for NDJSON output.
func (nw *NDJSONStreamWriter) Close() error { return nil }
