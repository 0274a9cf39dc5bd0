package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nStangl/minivault-go/protocol"
)

// BinaryClient speaks the length-prefixed binary protocol. Every call
// opens a fresh connection, authenticates when an API key is
// configured, performs one operation and closes the connection; there
// is no pooling or reconnection.
type BinaryClient struct {
	address string
	cfg     config
}

var _ Client = (*BinaryClient)(nil)

// NewBinary returns a client for the binary listener at address
// (host:port).
func NewBinary(address string, opts ...Option) *BinaryClient {
	return &BinaryClient{address: address, cfg: newConfig(opts...)}
}

func (c *BinaryClient) execute(op protocol.Op, key string, value []byte) ([]byte, error) {
	frame, err := protocol.EncodeRequest(op, key, value)
	if err != nil {
		return nil, err
	}

	s, err := protocol.Open(c.address, c.cfg.timeout)
	if err != nil {
		return nil, err
	}

	defer s.Close()

	ctx := context.Background()

	if err := s.Authenticate(ctx, c.cfg.apiKey); err != nil {
		return nil, err
	}

	return s.RoundTrip(ctx, frame)
}

func (c *BinaryClient) fail(op protocol.Op, key string, err error) {
	c.cfg.logger.WithError(err).WithField("key", key).Warnf("%s failed", op)
}

// Get returns the stored bytes for key, or nil when the key is absent
// or the call fails. A success response with an empty body means
// absent on this wire, so a legitimately empty stored value is
// indistinguishable from a missing key.
func (c *BinaryClient) Get(key string) []byte {
	body, err := c.execute(protocol.OpGet, key, nil)
	if err != nil {
		c.fail(protocol.OpGet, key, err)
		return nil
	}

	if len(body) == 0 {
		return nil
	}

	return body
}

// Set stores value under key.
func (c *BinaryClient) Set(key string, value []byte) bool {
	if value == nil {
		value = []byte{}
	}

	if _, err := c.execute(protocol.OpSet, key, value); err != nil {
		c.fail(protocol.OpSet, key, err)
		return false
	}

	return true
}

// Delete removes key.
func (c *BinaryClient) Delete(key string) bool {
	if _, err := c.execute(protocol.OpDelete, key, nil); err != nil {
		c.fail(protocol.OpDelete, key, err)
		return false
	}

	return true
}

// Exists reports whether Get would find key.
func (c *BinaryClient) Exists(key string) bool {
	return c.Get(key) != nil
}

// Health fetches and decodes the server's health report.
func (c *BinaryClient) Health() *Health {
	body, err := c.execute(protocol.OpHealth, HealthKey, nil)
	if err != nil {
		c.fail(protocol.OpHealth, HealthKey, err)
		return nil
	}

	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		c.fail(protocol.OpHealth, HealthKey, fmt.Errorf("%w: %v", ErrDecodeFailed, err))
		return nil
	}

	return &h
}

// GetJSON fetches key and unmarshals it into into.
func (c *BinaryClient) GetJSON(key string, into any) bool {
	return getJSON(c, key, into, c.cfg.logger)
}

// SetJSON marshals value and stores it under key.
func (c *BinaryClient) SetJSON(key string, value any) bool {
	return setJSON(c, key, value, c.cfg.logger)
}
