package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nStangl/minivault-go/util"
)

// chunkSize bounds a single body read.
const chunkSize = 8 << 10

// EncodeRequest frames one request as
// [op:u8][keyLen:u16-LE][key], plus [valueLen:u32-LE][flags:u8][value]
// for set. The flags byte is reserved for compression and always zero.
// Only set carries a value; passing one for any other op, or a nil
// value for set, is a caller error, not a wire error.
func EncodeRequest(op Op, key string, value []byte) ([]byte, error) {
	switch op {
	case OpGet, OpDelete, OpHealth, OpAuth:
		if value != nil {
			return nil, fmt.Errorf("%w: %s carries no value", ErrInvalidOperation, op)
		}
	case OpSet:
		if value == nil {
			return nil, fmt.Errorf("%w: set requires a value", ErrInvalidOperation)
		}
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidOperation, byte(op))
	}

	if len(key) > MaxKeySize {
		return nil, fmt.Errorf("%w: key is %d bytes", ErrFrameTooLarge, len(key))
	}

	n := 1 + 2 + len(key)

	if op == OpSet {
		if uint64(len(value)) > MaxValueSize {
			return nil, fmt.Errorf("%w: value is %d bytes", ErrFrameTooLarge, len(value))
		}

		n += 4 + 1 + len(value)
	}

	b := make([]byte, n)
	b[0] = byte(op)
	binary.LittleEndian.PutUint16(b[1:3], uint16(len(key)))
	copy(b[3:], key)

	if op == OpSet {
		p := 3 + len(key)
		binary.LittleEndian.PutUint32(b[p:], uint32(len(value)))
		b[p+4] = 0
		copy(b[p+5:], value)
	}

	return b, nil
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(b []byte) (Op, string, []byte, error) {
	if len(b) < 3 {
		return 0, "", nil, fmt.Errorf("%w: request header truncated", ErrInvalidOperation)
	}

	op := Op(b[0])
	keyLen := int(binary.LittleEndian.Uint16(b[1:3]))

	if len(b) < 3+keyLen {
		return 0, "", nil, fmt.Errorf("%w: key truncated", ErrInvalidOperation)
	}

	key := string(b[3 : 3+keyLen])

	switch op {
	case OpGet, OpDelete, OpHealth, OpAuth:
		return op, key, nil, nil
	case OpSet:
	default:
		return 0, "", nil, fmt.Errorf("%w: 0x%02x", ErrInvalidOperation, b[0])
	}

	rest := b[3+keyLen:]
	if len(rest) < 5 {
		return 0, "", nil, fmt.Errorf("%w: value header truncated", ErrInvalidOperation)
	}

	valLen := int(binary.LittleEndian.Uint32(rest[:4]))
	if len(rest) < 5+valLen {
		return 0, "", nil, fmt.Errorf("%w: value truncated", ErrInvalidOperation)
	}

	return op, key, rest[5 : 5+valLen], nil
}

// DecodeHeader parses the 5-byte response prefix.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d of %d bytes", ErrIncompleteHeader, len(b), HeaderSize)
	}

	return Header{Status: b[0], BodyLen: binary.LittleEndian.Uint32(b[1:HeaderSize])}, nil
}

// ReadBody consumes the body declared by h. A non-success status fails
// before touching the reader; whatever trails an error header is not
// structured data on this protocol. On success exactly BodyLen bytes
// are accumulated across bounded reads, and a stream that dries up
// early is a hard failure, never a silent truncation.
func ReadBody(r io.Reader, h Header) ([]byte, error) {
	if h.Status != StatusSuccess {
		return nil, ServerError{Status: h.Status}
	}

	body := make([]byte, 0, h.BodyLen)
	chunk := make([]byte, chunkSize)

	for remaining := int(h.BodyLen); remaining > 0; {
		n, err := r.Read(chunk[:util.Min(remaining, chunkSize)])

		body = append(body, chunk[:n]...)
		remaining -= n

		if remaining == 0 {
			break
		}

		if err != nil || n == 0 {
			return nil, fmt.Errorf("%w: %d body bytes missing", ErrConnClosed, remaining)
		}
	}

	return body, nil
}
