package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 10 * time.Second

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithRoundTripper sets the transport used by the client; pass the session
// RoundTripper to get bearer attachment and refresh-retry.
func WithRoundTripper(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = transport
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithClientLogger attaches a diagnostic logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDefaultHeader adds a header to every outgoing request.
func WithDefaultHeader(name, value string) ClientOption {
	return func(c *Client) {
		c.header.Set(name, value)
	}
}

// CallOption customises a single call.
type CallOption func(*callOptions)

type callOptions struct {
	query  url.Values
	header http.Header
}

// WithQuery adds a query parameter.
func WithQuery(name, value string) CallOption {
	return func(o *callOptions) {
		o.query.Add(name, value)
	}
}

// WithHeader overrides a header for this call only.
func WithHeader(name, value string) CallOption {
	return func(o *callOptions) {
		o.header.Set(name, value)
	}
}

// Client is a JSON-over-HTTP convenience wrapper around a base URL; paths are
// resolved relative to it and responses decoded into caller-supplied values.
type Client struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
	logger     *slog.Logger
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, options ...ClientOption) *Client {
	ret := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		header:     http.Header{},
		logger:     slog.New(slog.DiscardHandler),
	}
	ret.header.Set("Content-Type", "application/json")
	ret.header.Set("Accept", "application/json")
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Get issues a GET request and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}, options ...CallOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, options...)
}

// Post issues a POST request with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}, options ...CallOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, options...)
}

// Put issues a PUT request with a JSON body and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out interface{}, options ...CallOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, options...)
}

// Patch issues a PATCH request with a JSON body and decodes the response into out.
func (c *Client) Patch(ctx context.Context, path string, body, out interface{}, options ...CallOption) error {
	return c.Do(ctx, http.MethodPatch, path, body, out, options...)
}

// Delete issues a DELETE request and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out interface{}, options ...CallOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, options...)
}

// Do issues a request with a JSON body and decodes a 2xx response into out.
// Failures map to the error taxonomy: *NetworkError when no response was
// received, *HTTPError for failure statuses, refresh sentinels passed through
// unwrapped.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}, options ...CallOption) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, reader, "", out, options...)
}

// Upload issues a multipart/form-data POST carrying content as a single file
// part named field and decodes the response into out.
func (c *Client) Upload(ctx context.Context, path, field, filename string, content io.Reader, out interface{}, options ...CallOption) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("failed to copy upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalise multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body, writer.FormDataContentType(), out, options...)
}

func (c *Client) do(ctx context.Context, method, path string, reader io.Reader, contentType string, out interface{}, options ...CallOption) error {
	opts := &callOptions{query: url.Values{}, header: http.Header{}}
	for _, opt := range options {
		opt(opts)
	}
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if encoded := opts.query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for name, values := range c.header {
		req.Header[name] = append([]string{}, values...)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for name, values := range opts.header {
		req.Header[name] = append([]string{}, values...)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	c.logger.Debug("request", "id", requestID, "method", method, "url", target)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = classify(err)
		c.logger.Debug("request failed", "id", requestID, "error", err)
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Err: err}
	}
	c.logger.Debug("response", "id", requestID, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// classify maps an http.Client error onto the transport error taxonomy,
// unwrapping the url.Error envelope first.
func classify(err error) error {
	var wrapped *url.Error
	if errors.As(err, &wrapped) {
		err = wrapped.Err
	}
	if errors.Is(err, ErrMissingRefreshToken) || errors.Is(err, ErrRefreshFailed) {
		return err
	}
	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return networkErr
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return &NetworkError{Err: err}
}
