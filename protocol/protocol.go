// Package protocol implements the MiniVault binary wire format: the
// frame codec and the single-use transport session it runs over.
package protocol

import (
	"errors"
	"fmt"
)

type (
	// Op is a request operation code on the binary wire.
	Op byte

	// Header is the fixed prefix of every response:
	// [status:u8][bodyLen:u32-LE].
	Header struct {
		Status  byte
		BodyLen uint32
	}

	// ServerError carries the raw status byte of a non-success
	// response. The protocol has no structured error payloads; the
	// status byte is all the server says.
	ServerError struct {
		Status byte
	}
)

const (
	OpGet    Op = 0x01
	OpSet    Op = 0x02
	OpDelete Op = 0x03
	OpHealth Op = 0x05
	OpAuth   Op = 0x06
)

const (
	StatusSuccess byte = 0x00
	StatusError   byte = 0xFF
)

const (
	// HeaderSize is the length of a response header on the wire.
	HeaderSize = 5

	// MaxKeySize and MaxValueSize are the widths of the wire length
	// fields; frames beyond them cannot be encoded.
	MaxKeySize   = 1<<16 - 1
	MaxValueSize = 1<<32 - 1
)

var (
	ErrConnectFailed    = errors.New("connect_failed")
	ErrWriteFailed      = errors.New("write_failed")
	ErrIncompleteHeader = errors.New("incomplete_header")
	ErrConnClosed       = errors.New("conn_closed")
	ErrAuthFailed       = errors.New("auth_failed")
	ErrFrameTooLarge    = errors.New("frame_too_large")
	ErrInvalidOperation = errors.New("invalid_operation")
)

// 0x04 is a server-internal sync opcode clients never send.
var opKeys = [...]string{"get", "set", "delete", "", "health", "auth"}

func (o Op) String() string {
	if o < OpGet || o > OpAuth || opKeys[o-1] == "" {
		return fmt.Sprintf("op(0x%02x)", byte(o))
	}

	return opKeys[o-1]
}

func (e ServerError) Error() string {
	return fmt.Sprintf("server_error: status=0x%02x", e.Status)
}
