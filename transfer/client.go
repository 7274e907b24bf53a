package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

var (
	// ErrTransport means the request never produced a response.
	ErrTransport = errors.New("transport failure")
	// ErrStatus means the server answered with a non-2xx status.
	ErrStatus = errors.New("unexpected status")
	// ErrMalformedResponse means a 2xx body could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRejected means the server parsed the request and answered success:false.
	ErrRejected = errors.New("rejected by server")
	// ErrNotConfigured means no endpoint URL could be built.
	ErrNotConfigured = errors.New("endpoint not configured")
)

// Error carries a human-readable message plus the failure kind for errors.Is.
type Error struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Client talks to the submission server endpoints.
type Client struct {
	cfg    types.ClientConfig
	http   *http.Client
	upload *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces both the short-request and the upload HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
		cl.upload = c
	}
}

// NewClient creates a client for the configured endpoints.
func NewClient(cfg types.ClientConfig, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		http:   tool.GetHttpClient(),
		upload: tool.GetUploadHttpClient(),
		token:  cfg.CSRFToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the client configuration.
func (c *Client) Config() types.ClientConfig {
	return c.cfg
}

// SetCSRFToken sets the security token sent with every POST.
func (c *Client) SetCSRFToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// CSRFToken returns the current security token.
func (c *Client) CSRFToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) decorate(req *http.Request) {
	if token := c.CSRFToken(); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}
	if c.cfg.User != "" {
		req.Header.Set("Dh-User", c.cfg.User)
	}
}

// exchange sends req and returns the status and body. Only transport failures are errors.
func (c *Client) exchange(client *http.Client, req *http.Request, action string) (int, []byte, error) {
	c.decorate(req)
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			err = ctxErr
		}
		return 0, nil, &Error{
			Kind:    ErrTransport,
			Message: fmt.Sprintf("%s failed: network error: %v", action, err),
			Err:     err,
		}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &Error{
			Kind:    ErrTransport,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("%s failed: could not read response: %v", action, err),
			Err:     err,
		}
	}
	if len(body) > 0 {
		tool.DefaultLogger.Debugf("[Transfer] %s response (%d): %s", action, resp.StatusCode, string(body))
	}
	return resp.StatusCode, body, nil
}

// statusError builds the failure of a non-2xx answer, preferring the server's own error text.
func statusError(action string, status int, body []byte) error {
	msg := fmt.Sprintf("%s failed (HTTP %d)", action, status)
	var payload struct {
		Error string `json:"error"`
	}
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &payload); err == nil && payload.Error != "" {
			msg = payload.Error
		}
	}
	return &Error{Kind: ErrStatus, Status: status, Message: msg}
}

func malformed(action string, status int, err error) error {
	return &Error{
		Kind:    ErrMalformedResponse,
		Status:  status,
		Message: fmt.Sprintf("%s failed: invalid server response", action),
		Err:     err,
	}
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func checkContext(ctx context.Context, action string) error {
	select {
	case <-ctx.Done():
		return &Error{Kind: ErrTransport, Message: fmt.Sprintf("%s cancelled", action), Err: ctx.Err()}
	default:
		return nil
	}
}
