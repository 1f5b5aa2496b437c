package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mithrel/msgport/pkg/api"
)

// maxFrameSize bounds a single encoded message.
const maxFrameSize = 16 << 20 // 16MB safety

// Frame fields. A frame body is a protobuf message
//
//	message Frame { int32 id = 1; bytes payload = 2; }
//
// encoded by hand so no generated code is needed.
const (
	fieldID      protowire.Number = 1
	fieldPayload protowire.Number = 2
)

// Ack status bytes written by the receiving side.
const (
	ackAccepted byte = 0
	ackRejected byte = 1
)

var errFrameTooLarge = errors.New("frame too large")

func encodeFrame(id int32, payload []byte) []byte {
	b := make([]byte, 0, len(payload)+16)
	b = protowire.AppendTag(b, fieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(id)))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, payload)
	return b
}

func decodeFrame(b []byte) (int32, []byte, error) {
	var (
		id      int32
		payload []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, protowire.ParseError(n)
			}
			id = int32(v)
			b = b[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, nil, protowire.ParseError(n)
			}
			payload = v
			b = b[n:]
		default:
			// Unknown fields are skipped for forward compatibility.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return id, payload, nil
}

// writeFrame writes a length-prefixed frame to w in a single Write.
func writeFrame(w io.Writer, id int32, payload []byte) error {
	body := encodeFrame(id, payload)
	if len(body) > maxFrameSize {
		return fmt.Errorf("%w: %d", errFrameTooLarge, len(body))
	}
	buf := make([]byte, 0, binary.MaxVarintLen64+len(body))
	buf = binary.AppendUvarint(buf, uint64(len(body)))
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// readFrame reads a single length-prefixed frame from r.
func readFrame(r io.Reader) (int32, []byte, error) {
	br := bufio.NewReader(r)
	ln, err := binary.ReadUvarint(br)
	if err != nil {
		return 0, nil, err
	}
	if ln > maxFrameSize {
		return 0, nil, fmt.Errorf("%w: %d", errFrameTooLarge, ln)
	}
	buf := make([]byte, ln)
	if _, err := io.ReadFull(br, buf); err != nil {
		return 0, nil, err
	}
	return decodeFrame(buf)
}

func writeAck(w io.Writer, accepted bool) error {
	status := ackRejected
	if accepted {
		status = ackAccepted
	}
	_, err := w.Write([]byte{status})
	return err
}

func readAck(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] == ackAccepted, nil
}

// ownerEnc uses Core Deterministic Encoding so identical owners always
// produce identical bytes.
var ownerEnc cbor.EncMode

func init() {
	var err error
	ownerEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("transport: CBOR encoder initialization failed: " + err.Error())
	}
}

func marshalOwner(o api.Owner) ([]byte, error) {
	return ownerEnc.Marshal(o)
}

func unmarshalOwner(data []byte) (api.Owner, error) {
	var o api.Owner
	if err := cbor.Unmarshal(data, &o); err != nil {
		return api.Owner{}, err
	}
	return o, nil
}
