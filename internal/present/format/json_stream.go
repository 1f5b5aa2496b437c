package format

import (
	"encoding/json"
	"io"
)

// JSONStreamWriter incrementally writes deliveries as a JSON array.
type JSONStreamWriter struct {
	w        io.Writer
	indent   bool
	wroteAny bool
}

// NewJSONStreamWriter creates a streaming JSON writer.
func NewJSONStreamWriter(w io.Writer, indent bool) *JSONStreamWriter {
	return &JSONStreamWriter{w: w, indent: indent}
}

// WriteDelivery appends one delivery to the array.
func (jw *JSONStreamWriter) WriteDelivery(d Delivery) error {
	var (
		b   []byte
		err error
	)
	if jw.indent {
		b, err = json.MarshalIndent(d, "  ", "  ")
	} else {
		b, err = json.Marshal(d)
	}
	if err != nil {
		return err
	}
	sep := "["
	switch {
	case jw.wroteAny && jw.indent:
		sep = ",\n  "
	case jw.wroteAny:
		sep = ","
	case jw.indent:
		sep = "[\n  "
	}
	if _, err := io.WriteString(jw.w, sep); err != nil {
		return err
	}
	if _, err := jw.w.Write(b); err != nil {
		return err
	}
	jw.wroteAny = true
	return nil
}

// Close finishes the JSON array.
func (jw *JSONStreamWriter) Close() error {
	if !jw.wroteAny {
		_, err := io.WriteString(jw.w, "[]\n")
		return err
	}
	if jw.indent {
		_, err := io.WriteString(jw.w, "\n]\n")
		return err
	}
	_, err := io.WriteString(jw.w, "]\n")
	return err
}

// WriteJSON writes v as a single JSON document.
func WriteJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
