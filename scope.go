package dispatch

import (
	"bytes"
	"io"
	"net/http"
	"reflect"
)

// Response is the mutable response under construction for one dispatch.
// Filters and context-injected parameters may adjust the status, headers,
// and body before it is flushed to the transport.
type Response struct {
	status int
	header http.Header
	body   bytes.Buffer
}

// NewResponse returns an empty response with default status 200.
func NewResponse() *Response {
	return &Response{status: http.StatusOK, header: make(http.Header)}
}

// Status reports the current status code.
func (r *Response) Status() int { return r.status }

// SetStatus overrides the status code.
func (r *Response) SetStatus(code int) { r.status = code }

// Header returns the mutable response headers.
func (r *Response) Header() http.Header { return r.header }

// ContentType reports the current Content-Type header.
func (r *Response) ContentType() string { return r.header.Get("Content-Type") }

// SetContentType sets the Content-Type header.
func (r *Response) SetContentType(ct string) {
	r.header.Set("Content-Type", ct)
}

// setDefaultContentType records the negotiated media type, but only while
// no filter or handler has chosen a Content-Type yet. The check reads the
// header itself, so direct Header().Set calls count as an explicit choice.
func (r *Response) setDefaultContentType(ct string) {
	if r.header.Get("Content-Type") == "" {
		r.header.Set("Content-Type", ct)
	}
}

// Write appends bytes to the response body.
func (r *Response) Write(p []byte) (int, error) { return r.body.Write(p) }

// WriteString appends a string to the response body.
func (r *Response) WriteString(s string) (int, error) { return r.body.WriteString(s) }

// Body returns the bytes buffered so far.
func (r *Response) Body() []byte { return r.body.Bytes() }

// Reset clears the body and headers, keeping the response reusable by
// filters that replace an error payload.
func (r *Response) Reset() {
	r.status = http.StatusOK
	r.header = make(http.Header)
	r.body.Reset()
}

// flush writes the buffered response to the transport writer.
func (r *Response) flush(w http.ResponseWriter) error {
	for k, vs := range r.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.status)
	_, err := w.Write(r.body.Bytes())
	return err
}

// Releaser is implemented by values holding resources that must be given
// back when the dispatch that produced them ends.
type Releaser interface {
	Release()
}

// RequestScope carries everything one dispatch touches: the request, the
// response being built, the resolved method, the auth context, the bound
// arguments, and the selected writer. Nothing in it outlives the dispatch
// or is shared across requests.
type RequestScope struct {
	Request   *http.Request
	Response  *Response
	Resource  *ResourceDescriptor
	Method    *MethodDescriptor
	Auth      *AuthContext
	Args      []any
	Writer    *CodecInfo
	MediaType string

	// Err is the dispatch failure observed so far, visible to response
	// filters after a failed invocation.
	Err error

	id      string
	body    []byte
	hasBody bool
	tracked []any
}

func newRequestScope(id string, r *http.Request, res *ResourceDescriptor, m *MethodDescriptor) *RequestScope {
	return &RequestScope{
		Request:  r,
		Response: NewResponse(),
		Resource: res,
		Method:   m,
		id:       id,
	}
}

// ID returns the correlation ID assigned to this dispatch.
func (s *RequestScope) ID() string { return s.id }

// rawBody reads and caches the full request content. The transport owns
// the underlying stream; the cached bytes belong to the scope.
func (s *RequestScope) rawBody() ([]byte, error) {
	if s.hasBody {
		return s.body, nil
	}
	if s.Request.Body == nil {
		s.hasBody = true
		return nil, nil
	}
	b, err := io.ReadAll(s.Request.Body)
	if err != nil {
		return nil, err
	}
	s.body = b
	s.hasBody = true
	return b, nil
}

// Track registers a value for end-of-dispatch reclamation.
func (s *RequestScope) Track(v any) {
	if v == nil {
		return
	}
	s.tracked = append(s.tracked, v)
}

// reclaim releases every tracked value. The original request body stream is
// owned by the transport and never released here; results of singleton
// methods are tracked by the caller only when reclaimable.
func (s *RequestScope) reclaim() {
	for _, v := range s.tracked {
		s.release(v)
	}
	s.tracked = nil
}

func (s *RequestScope) release(v any) {
	if v == nil {
		return
	}
	if s.Request != nil && s.Request.Body != nil && v == any(s.Request.Body) {
		return
	}
	if rel, ok := v.(Releaser); ok {
		rel.Release()
		return
	}
	// Walk slices and arrays element-wise so collection results release
	// their members.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := range rv.Len() {
			ev := rv.Index(i)
			if !ev.CanInterface() {
				continue
			}
			s.release(ev.Interface())
		}
	}
}
