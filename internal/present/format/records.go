package format

import (
	"strings"
	"time"
)

// Delivery is one message a listening port received.
type Delivery struct {
	Port     string    `json:"port"`
	ID       int32     `json:"id"`
	Size     int       `json:"size"`
	Payload  string    `json:"payload"`
	Received time.Time `json:"received"`
}

// SendResult is the outcome of one send as reported to the user.
type SendResult struct {
	Port  string `json:"port"`
	ID    int32  `json:"id"`
	Bytes int    `json:"bytes"`
}

// TSV columns for deliveries: port, id, size, received_unix_ms, payload
var headerLine = "port\tid\tsize\treceived_unix_ms\tpayload\n"

func esc(field string) string {
	field = strings.ReplaceAll(field, "\t", "\\t")
	field = strings.ReplaceAll(field, "\n", "\\n")
	return field
}
