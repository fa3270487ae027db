package dispatch

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type releasable struct {
	released int
}

func (r *releasable) Release() { r.released++ }

// releasableBody doubles as a request body stream and a Releaser, to prove
// the transport-owned stream is exempt from reclamation.
type releasableBody struct {
	releasable
	io.Reader
}

func (*releasableBody) Close() error { return nil }

func reclaimScope(r *http.Request) *RequestScope {
	return newRequestScope("test", r, nil, nil)
}

func TestReclaim_releases_tracked_values(t *testing.T) {
	t.Parallel()

	scope := reclaimScope(httptest.NewRequest(http.MethodGet, "/", nil))
	v := &releasable{}
	scope.Track(v)
	scope.reclaim()
	assert.Equal(t, 1, v.released)
}

func TestReclaim_never_releases_request_body_stream(t *testing.T) {
	t.Parallel()

	body := &releasableBody{Reader: strings.NewReader("payload")}
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Body = body

	scope := reclaimScope(r)
	scope.Track(r.Body)
	other := &releasable{}
	scope.Track(other)

	scope.reclaim()
	assert.Equal(t, 0, body.released, "transport owns the body stream")
	assert.Equal(t, 1, other.released)
}

func TestReclaim_walks_slices_recursively(t *testing.T) {
	t.Parallel()

	scope := reclaimScope(httptest.NewRequest(http.MethodGet, "/", nil))
	a, b := &releasable{}, &releasable{}
	scope.Track([]*releasable{a, b})
	scope.reclaim()
	assert.Equal(t, 1, a.released)
	assert.Equal(t, 1, b.released)
}

func TestReclaim_each_value_released_once(t *testing.T) {
	t.Parallel()

	scope := reclaimScope(httptest.NewRequest(http.MethodGet, "/", nil))
	v := &releasable{}
	scope.Track(v)
	scope.reclaim()
	scope.reclaim()
	assert.Equal(t, 1, v.released, "reclaim clears the tracked list")
}

func TestResponse_content_type_only_defaulted_when_unset(t *testing.T) {
	t.Parallel()

	resp := NewResponse()
	resp.setDefaultContentType(MediaJSON)
	assert.Equal(t, MediaJSON, resp.ContentType())

	resp = NewResponse()
	resp.SetContentType("application/vnd.custom")
	resp.setDefaultContentType(MediaJSON)
	assert.Equal(t, "application/vnd.custom", resp.ContentType())

	// A direct header write counts as an explicit choice too.
	resp = NewResponse()
	resp.Header().Set("Content-Type", "application/vnd.other")
	resp.setDefaultContentType(MediaJSON)
	assert.Equal(t, "application/vnd.other", resp.ContentType())
}

func TestResponse_flush_writes_status_headers_body(t *testing.T) {
	t.Parallel()

	resp := NewResponse()
	resp.SetStatus(http.StatusCreated)
	resp.Header().Set("X-Thing", "1")
	_, err := resp.WriteString("hello")
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	assert.NoError(t, resp.flush(rec))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Thing"))
	assert.Equal(t, "hello", rec.Body.String())
}
