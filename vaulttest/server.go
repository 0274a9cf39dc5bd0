// Package vaulttest provides an in-process MiniVault binary server
// for tests and benchmarks, in the spirit of net/http/httptest. It
// keeps values in a map, enforces an optional API key and can inject
// protocol-level faults per key to exercise client failure paths.
package vaulttest

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nStangl/minivault-go/protocol"
)

type (
	// Server accepts binary-protocol connections on a loopback
	// listener until closed.
	Server struct {
		ln      net.Listener
		apiKey  string
		started time.Time

		mu     sync.Mutex
		data   map[string][]byte
		faults map[string]Fault

		wg   sync.WaitGroup
		quit chan struct{}
		once sync.Once
	}

	// Fault shapes the server's answer for requests naming a key.
	Fault uint8

	// Option configures a Server at construction.
	Option func(*Server)
)

const (
	// FaultNone serves normally.
	FaultNone Fault = iota
	// FaultErrorStatus answers with the canonical error status.
	FaultErrorStatus
	// FaultTruncatedHeader closes the connection mid-header.
	FaultTruncatedHeader
	// FaultTruncatedBody declares a body and closes before sending it.
	FaultTruncatedBody
	// FaultHang never answers; the client has to time out.
	FaultHang
)

// WithAPIKey makes the server demand an AUTH handshake carrying key
// before any operation other than health.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// New starts a server on an ephemeral loopback port.
func New(opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		ln:      ln,
		started: time.Now(),
		data:    make(map[string][]byte),
		faults:  make(map[string]Fault),
		quit:    make(chan struct{}),
	}

	for _, o := range opts {
		o(s)
	}

	s.wg.Add(1)
	go s.serve()

	return s, nil
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close stops accepting, tears down the listener and waits for
// in-flight connections. Safe to call more than once.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.quit)
		_ = s.ln.Close()
		s.wg.Wait()
	})
}

// Put seeds a value without going over the wire.
func (s *Server) Put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
}

// Value reads a stored value without going over the wire.
func (s *Server) Value(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]

	return v, ok
}

// Inject arms fault f for every request naming key.
func (s *Server) Inject(key string, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[key] = f
}

func (s *Server) fault(key string) Fault {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.faults[key]
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				continue
			}
		}

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			defer conn.Close()

			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	authenticated := s.apiKey == ""

	for {
		op, key, value, err := readRequest(conn)
		if err != nil {
			return
		}

		switch s.fault(key) {
		case FaultErrorStatus:
			if writeResponse(conn, protocol.StatusError, nil) != nil {
				return
			}
			continue
		case FaultTruncatedHeader:
			_, _ = conn.Write([]byte{protocol.StatusSuccess, 9, 0})
			return
		case FaultTruncatedBody:
			hdr := make([]byte, protocol.HeaderSize)
			hdr[0] = protocol.StatusSuccess
			binary.LittleEndian.PutUint32(hdr[1:], 64)
			_, _ = conn.Write(hdr)
			_, _ = conn.Write([]byte("par"))
			return
		case FaultHang:
			<-s.quit
			return
		}

		if !authenticated && op != protocol.OpAuth && op != protocol.OpHealth {
			_ = writeResponse(conn, protocol.StatusError, nil)
			return
		}

		switch op {
		case protocol.OpAuth:
			if s.apiKey != "" && key == s.apiKey {
				authenticated = true
				err = writeResponse(conn, protocol.StatusSuccess, nil)
			} else {
				err = writeResponse(conn, protocol.StatusError, nil)
			}

		case protocol.OpGet:
			s.mu.Lock()
			v, ok := s.data[key]
			s.mu.Unlock()

			if ok {
				err = writeResponse(conn, protocol.StatusSuccess, v)
			} else {
				err = writeResponse(conn, protocol.StatusError, nil)
			}

		case protocol.OpSet:
			s.mu.Lock()
			s.data[key] = value
			s.mu.Unlock()

			err = writeResponse(conn, protocol.StatusSuccess, nil)

		case protocol.OpDelete:
			s.mu.Lock()
			delete(s.data, key)
			s.mu.Unlock()

			err = writeResponse(conn, protocol.StatusSuccess, nil)

		case protocol.OpHealth:
			err = writeResponse(conn, protocol.StatusSuccess, s.healthBody())

		default:
			err = writeResponse(conn, protocol.StatusError, nil)
		}

		if err != nil {
			return
		}
	}
}

func (s *Server) healthBody() []byte {
	s.mu.Lock()
	items := len(s.data)
	s.mu.Unlock()

	body, _ := json.Marshal(map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"cache_items":    items,
	})

	return body
}

func readRequest(conn net.Conn) (protocol.Op, string, []byte, error) {
	hdr := make([]byte, 3)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return 0, "", nil, err
	}

	op := protocol.Op(hdr[0])

	key := make([]byte, binary.LittleEndian.Uint16(hdr[1:3]))
	if _, err := io.ReadFull(conn, key); err != nil {
		return 0, "", nil, err
	}

	if op != protocol.OpSet {
		return op, string(key), nil, nil
	}

	vh := make([]byte, 5)
	if _, err := io.ReadFull(conn, vh); err != nil {
		return 0, "", nil, err
	}

	// vh[4] is the compression flag; this client never compresses.
	value := make([]byte, binary.LittleEndian.Uint32(vh[:4]))
	if _, err := io.ReadFull(conn, value); err != nil {
		return 0, "", nil, err
	}

	return op, string(key), value, nil
}

func writeResponse(conn net.Conn, status byte, body []byte) error {
	hdr := make([]byte, protocol.HeaderSize)
	hdr[0] = status
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(body)))

	if _, err := conn.Write(hdr); err != nil {
		return err
	}

	if len(body) > 0 {
		if _, err := conn.Write(body); err != nil {
			return err
		}
	}

	return nil
}
