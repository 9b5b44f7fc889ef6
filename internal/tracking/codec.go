package tracking

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxMessageSize bounds one framed message read from a detector.
const maxMessageSize = 16 << 20

// errMalformedMessage marks a well-framed message that failed to decode;
// the stream itself is still usable.
var errMalformedMessage = errors.New("malformed message")

// writeMessage writes v as msgpack preceded by its 4-byte big-endian length.
func writeMessage(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling msgpack message: %w", err)
	}
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(data)))
	if _, err := w.Write(prefix); err != nil {
		return fmt.Errorf("writing length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing msgpack data: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed msgpack message into v.
func readMessage(r io.Reader, v any) error {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(prefix)
	if n > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("reading msgpack data: %w", err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedMessage, err)
	}
	return nil
}

// DecodeResult decodes a landmark result pushed by a client, as JSON text
// or as a msgpack binary message.
func DecodeResult(data []byte, binaryMsg bool) (Result, error) {
	var r Result
	if binaryMsg {
		if err := msgpack.Unmarshal(data, &r); err != nil {
			return Result{}, fmt.Errorf("decoding msgpack result: %w", err)
		}
		return r, nil
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("decoding json result: %w", err)
	}
	return r, nil
}

// EncodeResult is the msgpack form accepted by DecodeResult.
func EncodeResult(r Result) ([]byte, error) {
	return msgpack.Marshal(r)
}
