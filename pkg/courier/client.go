// Package courier posts notification messages to an HTTP delivery relay.
package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/gather-app/gather/internal/config"
)

var ErrCircuitOpen = errors.New("courier circuit open")

// Client wraps the relay HTTP API and adds retries, timeout, and circuit breaker.
type Client struct {
	cfg    config.CourierConfig
	client *http.Client

	// simple circuit breaker state
	failures  int32
	openUntil int64 // unix nano
	closed    int32 // atomic flag for Close()
}

// Message is the delivery request sent to the relay.
type Message struct {
	FromName string `json:"from_name,omitempty"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// Receipt identifies an accepted delivery on the relay side.
type Receipt struct {
	ID string `json:"id"`
}

// NewClient creates a new courier client.
func NewClient(cfg config.CourierConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		client: httpClient,
	}
	logger.Info("courier: client created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return c, nil
}

func NewDefaultClient(cfg config.CourierConfig) (*Client, error) {
	defaultClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return NewClient(cfg, defaultClient)
}

// package-level logger for pkg/courier; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/courier. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.failures) < int32(c.cfg.CircuitFailureThreshold) {
		return false
	}

	if time.Now().UnixNano() < atomic.LoadInt64(&c.openUntil) {
		return true
	}

	// attempt half-open: reset failures and allow a request
	atomic.StoreInt32(&c.failures, 0)
	return false
}

func (c *Client) recordFailure() {
	v := atomic.AddInt32(&c.failures, 1)
	if v >= int32(c.cfg.CircuitFailureThreshold) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.cfg.CircuitReset).UnixNano())
	}
}

// Send posts one message to the relay. It retries transient failures with
// linear backoff and honors the circuit breaker. The receipt carries the
// relay-side delivery id when the relay returns one.
func (c *Client) Send(ctx context.Context, m Message) (Receipt, error) {
	var empty Receipt
	if m.To == "" {
		return empty, fmt.Errorf("message has no recipient")
	}
	if c.isCircuitOpen() {
		return empty, ErrCircuitOpen
	}

	if m.FromName == "" {
		m.FromName = c.cfg.FromName
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return empty, fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		rec, err := c.post(ctx, payload)
		if err == nil {
			atomic.StoreInt32(&c.failures, 0)
			return rec, nil
		}

		lastErr = err
		c.recordFailure()

		if attempt < c.cfg.Retries {
			time.Sleep(c.cfg.Backoff * time.Duration(attempt+1))
		}
		if c.isCircuitOpen() {
			return empty, ErrCircuitOpen
		}
	}

	return empty, fmt.Errorf("send failed after retries: %w", lastErr)
}

func (c *Client) post(ctx context.Context, payload []byte) (Receipt, error) {
	var empty Receipt
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return empty, err
	}
	u := base.ResolveReference(&url.URL{Path: "/v1/messages"})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return empty, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return empty, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return empty, fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	// a 2xx means the relay accepted the message; the ack body is optional
	var rec Receipt
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&rec); err != nil {
		return empty, nil
	}
	return rec, nil
}

// Health pings the relay health endpoint.
func (c *Client) Health(ctx context.Context) error {
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return err
	}
	u := base.ResolveReference(&url.URL{Path: "/v1/health"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		c.recordFailure()
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordFailure()
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	atomic.StoreInt32(&c.failures, 0)
	return nil
}

// Close releases any resources held by the client. Currently this closes
// idle connections on the underlying HTTP transport when supported. Close
// is idempotent and safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	// ensure we only run close once
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.client != nil && c.client.Transport != nil {
		if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
			logger.Info("courier: client closed, idle connections released")
		}
	}
	return nil
}
