// Package dispatchtest provides typed test helpers for applications built
// on the dispatch framework.
package dispatchtest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hylo-dev/dispatch"
)

// Client wraps an httptest.Server for convenient dispatch testing.
type Client struct {
	Server *httptest.Server
}

// NewClient starts a test server for the application.
func NewClient(t testing.TB, app *dispatch.Application) *Client {
	t.Helper()
	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)
	return &Client{Server: srv}
}

// Option mutates an outgoing test request.
type Option func(*http.Request)

// WithAccept sets the Accept header.
func WithAccept(mt string) Option {
	return func(r *http.Request) { r.Header.Set("Accept", mt) }
}

// WithContentType sets the Content-Type header.
func WithContentType(ct string) Option {
	return func(r *http.Request) { r.Header.Set("Content-Type", ct) }
}

// WithBearer sets an Authorization Bearer token.
func WithBearer(token string) Option {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

// WithCookie attaches a cookie.
func WithCookie(name, value string) Option {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

// WithHeader sets an arbitrary header.
func WithHeader(name, value string) Option {
	return func(r *http.Request) { r.Header.Set(name, value) }
}

// Result holds a decoded response.
type Result[T any] struct {
	Status  int
	Headers http.Header
	Body    *T
	Raw     []byte
}

// Get sends a GET request and decodes the JSON response body.
func Get[Resp any](t testing.TB, c *Client, path string, opts ...Option) *Result[Resp] {
	t.Helper()
	return do[Resp](t, c, http.MethodGet, path, nil, opts...)
}

// Post sends a POST request with a JSON body and decodes the response.
func Post[Req, Resp any](t testing.TB, c *Client, path string, body *Req, opts ...Option) *Result[Resp] {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("dispatchtest: marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(b)
	}
	opts = append([]Option{WithContentType("application/json")}, opts...)
	return do[Resp](t, c, http.MethodPost, path, reqBody, opts...)
}

// Delete sends a DELETE request.
func Delete[Resp any](t testing.TB, c *Client, path string, opts ...Option) *Result[Resp] {
	t.Helper()
	return do[Resp](t, c, http.MethodDelete, path, nil, opts...)
}

func do[Resp any](t testing.TB, c *Client, method, path string, body io.Reader, opts ...Option) *Result[Resp] {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, c.Server.URL+path, body)
	if err != nil {
		t.Fatalf("dispatchtest: build request: %v", err)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("dispatchtest: %s %s: %v", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Fatalf("dispatchtest: close body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("dispatchtest: read body: %v", err)
	}

	res := &Result[Resp]{Status: resp.StatusCode, Headers: resp.Header, Raw: raw}
	if len(raw) > 0 {
		var decoded Resp
		if err := json.Unmarshal(raw, &decoded); err == nil {
			res.Body = &decoded
		}
	}
	return res
}
