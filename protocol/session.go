package protocol

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"
)

// Session lifecycle states. A session is single use: one optional
// authentication handshake, exactly one operation, then close.
const (
	StateClosed        = "closed"
	StateConnected     = "connected"
	StateAuthenticated = "authenticated"
	StateOperating     = "operating"
)

const (
	eventAuthenticate = "authenticate"
	eventOperate      = "operate"
	eventClose        = "close"
)

var sessionTransitions = fsm.Events{
	{Name: eventAuthenticate, Src: []string{StateConnected}, Dst: StateAuthenticated},
	{Name: eventOperate, Src: []string{StateConnected, StateAuthenticated}, Dst: StateOperating},
	{Name: eventClose, Src: []string{StateConnected, StateAuthenticated, StateOperating}, Dst: StateClosed},
}

// Session owns one connection for the duration of one logical call.
// It is not safe for concurrent use; callers open a fresh session per
// call instead of sharing one.
type Session struct {
	id      uuid.UUID
	conn    net.Conn
	timeout time.Duration
	machine *fsm.FSM
}

// Open dials address (host:port) and returns a connected session.
// The timeout governs the dial and every later read and write on the
// session.
func Open(address string, timeout time.Duration) (*Session, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, address, err)
	}

	s := &Session{
		id:      uuid.New(),
		conn:    conn,
		timeout: timeout,
		machine: fsm.NewFSM(StateConnected, sessionTransitions, nil),
	}

	log.WithFields(log.Fields{"session": s.id, "address": address}).Debug("session opened")

	return s, nil
}

// ID tags diagnostics for this session.
func (s *Session) ID() uuid.UUID { return s.id }

// State reports the current lifecycle state.
func (s *Session) State() string { return s.machine.Current() }

// Authenticate performs the AUTH handshake, carrying the credential in
// the key field of the frame. An empty credential is a no-op. When
// performed it must precede the session's operation.
func (s *Session) Authenticate(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return nil
	}

	if err := s.machine.Event(ctx, eventAuthenticate); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	frame, err := EncodeRequest(OpAuth, apiKey, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	if _, err := s.exchange(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	log.WithField("session", s.id).Debug("session authenticated")

	return nil
}

// RoundTrip writes one encoded request and returns the response body.
// A session performs exactly one round trip; further attempts fail
// with a lifecycle error.
func (s *Session) RoundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	if err := s.machine.Event(ctx, eventOperate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	return s.exchange(frame)
}

func (s *Session) exchange(frame []byte) ([]byte, error) {
	if err := s.conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	if n, err := s.conn.Write(frame); err != nil || n < len(frame) {
		return nil, fmt.Errorf("%w: wrote %d of %d bytes: %v", ErrWriteFailed, n, len(frame), err)
	}

	hdr := make([]byte, HeaderSize)
	if n, err := io.ReadFull(s.conn, hdr); err != nil {
		return nil, fmt.Errorf("%w: got %d of %d bytes: %v", ErrIncompleteHeader, n, HeaderSize, err)
	}

	h, err := DecodeHeader(hdr)
	if err != nil {
		return nil, err
	}

	return ReadBody(s.conn, h)
}

// Close releases the connection. It runs on every termination path of
// a call and releases exactly once; later calls are no-ops.
func (s *Session) Close() error {
	if err := s.machine.Event(context.Background(), eventClose); err != nil {
		return nil
	}

	log.WithField("session", s.id).Debug("session closed")

	return s.conn.Close()
}
