package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPClient speaks the JSON/HTTP surface: GET answers the raw stored
// body (404 means absent), mutations are acknowledged with a
// {success, error} envelope, and the credential travels in the
// X-API-Key header. It offers the same façade as the binary client so
// callers are transport-agnostic.
type HTTPClient struct {
	baseURL string
	cfg     config
	httpc   *http.Client
}

var _ Client = (*HTTPClient)(nil)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// NewHTTP returns a client for the HTTP listener at baseURL.
func NewHTTP(baseURL string, opts ...Option) *HTTPClient {
	cfg := newConfig(opts...)

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.timeout},
	}
}

func (c *HTTPClient) do(method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+"/"+path, body)
	if err != nil {
		return nil, err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if c.cfg.apiKey != "" {
		req.Header.Set("X-API-Key", c.cfg.apiKey)
	}

	return c.httpc.Do(req)
}

// mutate runs a write request and interprets the acknowledgement
// envelope.
func (c *HTTPClient) mutate(method, key, contentType string, body io.Reader) error {
	resp, err := c.do(method, key, contentType, body)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, key, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	if !env.Success {
		return fmt.Errorf("%s %s: %s", method, key, env.Error)
	}

	return nil
}

func (c *HTTPClient) fail(what, key string, err error) {
	c.cfg.logger.WithError(err).WithField("key", key).Warnf("%s failed", what)
}

// Get returns the stored bytes for key, nil when absent or failed.
func (c *HTTPClient) Get(key string) []byte {
	resp, err := c.do(http.MethodGet, key, "", nil)
	if err != nil {
		c.fail("get", key, err)
		return nil
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		c.fail("get", key, fmt.Errorf("status %d", resp.StatusCode))
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.fail("get", key, err)
		return nil
	}

	if len(body) == 0 {
		return nil
	}

	return body
}

// Set stores value under key.
func (c *HTTPClient) Set(key string, value []byte) bool {
	err := c.mutate(http.MethodPut, key, "application/octet-stream", bytes.NewReader(value))
	if err != nil {
		c.fail("set", key, err)
		return false
	}

	return true
}

// Delete removes key.
func (c *HTTPClient) Delete(key string) bool {
	if err := c.mutate(http.MethodDelete, key, "", nil); err != nil {
		c.fail("delete", key, err)
		return false
	}

	return true
}

// Exists reports whether Get would find key.
func (c *HTTPClient) Exists(key string) bool {
	return c.Get(key) != nil
}

// Health fetches and decodes the server's health report.
func (c *HTTPClient) Health() *Health {
	resp, err := c.do(http.MethodGet, "health", "", nil)
	if err != nil {
		c.fail("health", HealthKey, err)
		return nil
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.fail("health", HealthKey, fmt.Errorf("status %d", resp.StatusCode))
		return nil
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		c.fail("health", HealthKey, fmt.Errorf("%w: %v", ErrDecodeFailed, err))
		return nil
	}

	return &h
}

// GetJSON fetches key and unmarshals it into into.
func (c *HTTPClient) GetJSON(key string, into any) bool {
	return getJSON(c, key, into, c.cfg.logger)
}

// SetJSON marshals value and stores it under key.
func (c *HTTPClient) SetJSON(key string, value any) bool {
	return setJSON(c, key, value, c.cfg.logger)
}
