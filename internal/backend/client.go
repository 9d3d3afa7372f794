package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/config"
)

const (
	defaultTimeout = 15 * time.Second

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 8 << 20

	// maxErrorBodyBytes bounds how much of an error body is kept for the message.
	maxErrorBodyBytes = 4 << 10

	requestIDHeader = "X-Request-ID"
)

// TokenSource supplies the bearer token. session.Guard satisfies it.
type TokenSource interface {
	Token() (string, bool)
}

// Logger is the logging surface the client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client talks to the backend REST API.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	commands   *rate.Limiter
	logger     Logger
}

// New creates a client for cfg.BaseURL. Device commands are throttled per cmds;
// a zero rate disables throttling.
func New(cfg config.BackendConfig, cmds config.CommandsConfig, tokens TokenSource) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("backend: invalid base URL %q: %w", cfg.BaseURL, err)
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := rate.Inf
	if cmds.RatePerSecond > 0 {
		limit = rate.Limit(cmds.RatePerSecond)
	}
	burst := cmds.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		commands:   rate.NewLimiter(limit, burst),
		logger:     noopLogger{},
	}, nil
}

// SetLogger replaces the client's logger. Call before first use.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

type requestIDKey struct{}

// WithRequestID attaches an inbound request ID so the outbound call carries the same one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// call describes one request.
type call struct {
	method string
	path   string
	query  url.Values
	body   any
	// anonymous calls (login, signup, password reset) carry no bearer token.
	anonymous bool
}

// do executes c and decodes a JSON response into out (which may be nil).
func (c *Client) do(ctx context.Context, rc call, out any) error {
	var token string
	if !rc.anonymous {
		t, ok := c.tokens.Token()
		if !ok {
			return ErrAuth
		}
		token = t
	}

	target := c.baseURL + rc.path
	if len(rc.query) > 0 {
		target += "?" + rc.query.Encode()
	}

	var body io.Reader
	if rc.body != nil {
		data, err := json.Marshal(rc.body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", rc.method, rc.path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, rc.method, target, body)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID(ctx))
	if rc.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrNetwork, rc.method, rc.path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"method", rc.method,
		"path", rc.path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", req.Header.Get(requestIDHeader),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %w", ErrNetwork, rc.method, rc.path, err)
	}
	return nil
}

// statusError builds a StatusError, pulling a message out of common error body shapes.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Message != "":
			msg = body.Message
		case body.Detail != "":
			msg = body.Detail
		case body.Error != "":
			msg = body.Error
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return &StatusError{Status: resp.StatusCode, Message: msg}
}
