// Package rtdb talks to the realtime database that holds the wearable's live
// snapshot and the persisted reading history, using its REST interface.
package rtdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	currentPath = "health.json"
	historyPath = "healthHistory.json"

	// DefaultTimeout bounds every store call when Options.Timeout is zero.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 512
)

type Options struct {
	// BaseURL is the database root, e.g. https://project-default-rtdb.firebaseio.com.
	BaseURL string
	// Secret, when set, is sent as the auth query parameter.
	Secret     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	base       *url.URL
	secret     string
	timeout    time.Duration
	httpClient *http.Client
	log        *slog.Logger
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("rtdb: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("rtdb: invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("rtdb: base URL %q must be absolute", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:       base,
		secret:     opts.Secret,
		timeout:    timeout,
		httpClient: hc,
		log:        logger.With("component", "rtdb"),
	}, nil
}

// endpoint returns the full request URL and a redacted form safe for logs and errors.
func (c *Client) endpoint(path string) (string, string) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	redacted := u.String()
	if c.secret != "" {
		q := u.Query()
		q.Set("auth", c.secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), redacted
}

// do performs one request bounded by the client timeout and returns the body
// of a successful response. Nothing is retried.
func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	full, redacted := c.endpoint(path)

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: redacted, Err: stripURL(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{
			Op:         op,
			URL:        redacted,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, URL: redacted, Err: err}
	}

	c.log.Debug("store request", "op", op, "method", method, "status", resp.StatusCode,
		"bytes", len(data), "elapsed", time.Since(start))
	return data, nil
}

// stripURL drops the request URL from a *url.Error so a configured secret never
// ends up in an error message.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

func isNull(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

func validationFromJSON(op string, err error) error {
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		reason := fmt.Sprintf("expected %s, got %s", ute.Type, ute.Value)
		if ute.Field == "" {
			return &ValidationError{Op: op, Reason: reason, Err: err}
		}
		return &ValidationError{Op: op, Field: ute.Field, Reason: reason, Err: err}
	}
	return &ValidationError{Op: op, Reason: "malformed JSON", Err: err}
}
