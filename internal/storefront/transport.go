package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the ceiling on a single catalog request, body included.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 4 << 20

var (
	// ErrTransport matches every failed catalog request: timeouts, network
	// errors, non-2xx statuses and undecodable bodies alike.
	ErrTransport = errors.New("catalog request failed")

	// ErrUnavailable matches failures where no response arrived at all.
	ErrUnavailable = errors.New("catalog unavailable")
)

// RequestError is the single error kind Transport returns. Message is meant
// for people: it carries the server's detail when there is one.
type RequestError struct {
	Method  string
	Path    string
	Status  int // 0 when no response arrived
	Message string
	Err     error
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrUnavailable:
		return e.Status == 0
	}
	return false
}

type TransportConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Client defaults to a plain http.Client; the timeout is enforced through
	// the request context either way.
	Client *http.Client
}

// Transport speaks JSON to the catalog service.
type Transport struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

func NewTransport(cfg TransportConfig) *Transport {
	t := &Transport{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		timeout: cfg.Timeout,
		client:  cfg.Client,
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}
	if t.client == nil {
		t.client = &http.Client{}
	}
	return t
}

func (t *Transport) BaseURL() string { return t.baseURL }

// Do sends one request. body, when non-nil, is encoded as JSON; out, when
// non-nil, receives the decoded response. A 204 or an empty body leaves out
// untouched and counts as success. Values in header override the defaults.
func (t *Transport) Do(ctx context.Context, method, path string, body any, header http.Header, out any) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Method: method, Path: path, Message: "encode request: " + err.Error(), Err: err}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.endpoint(path), reader)
	if err != nil {
		return &RequestError{Method: method, Path: path, Message: err.Error(), Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.apiKey != "" {
		req.Header.Set("x-api-key", t.apiKey)
	}
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return t.networkError(ctx, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return t.networkError(ctx, method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, raw),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RequestError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: "invalid JSON response: " + err.Error(),
			Err:     err,
		}
	}
	return nil
}

func (t *Transport) endpoint(path string) string {
	if strings.HasPrefix(path, "/") {
		return t.baseURL + path
	}
	return t.baseURL + "/" + path
}

func (t *Transport) networkError(ctx context.Context, method, path string, err error) error {
	msg := "network request failed: " + err.Error()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = fmt.Sprintf("request timed out after %s", t.timeout)
	}
	return &RequestError{Method: method, Path: path, Message: msg, Err: err}
}

// errorMessage prefers the body's "detail", then "message", then the status
// line.
func errorMessage(status int, raw []byte) string {
	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message json.RawMessage `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		for _, field := range []json.RawMessage{body.Detail, body.Message} {
			if msg := rawText(field); msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}

func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
