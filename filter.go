package dispatch

import (
	"net/http"
	"slices"
)

// FilterPhase selects when a registered filter runs.
type FilterPhase int

// Filter phases.
const (
	PhaseRequest FilterPhase = iota
	PhaseResponse
)

// Filter is a dispatch interceptor. A fresh instance is constructed per
// request from the registered factory and invoked with the filter context.
type Filter interface {
	Filter(fc *FilterContext)
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(fc *FilterContext)

// Filter invokes the function.
func (f FilterFunc) Filter(fc *FilterContext) { f(fc) }

// FilterInfo registers a filter factory under a marker tag. The filter runs
// for every method that declares the marker.
type FilterInfo struct {
	Phase  FilterPhase
	Marker string
	New    func() Filter
}

// FilterContext is the mutable view a filter gets of the in-flight
// dispatch.
type FilterContext struct {
	scope   *RequestScope
	aborted bool
}

// Request returns the inbound request.
func (fc *FilterContext) Request() *http.Request { return fc.scope.Request }

// SetRequest replaces the scope's request, for filters that attach context
// values with SetValue.
func (fc *FilterContext) SetRequest(r *http.Request) { fc.scope.Request = r }

// Response returns the response being built.
func (fc *FilterContext) Response() *Response { return fc.scope.Response }

// Auth returns the caller's auth context.
func (fc *FilterContext) Auth() *AuthContext { return fc.scope.Auth }

// Method returns the resolved target method.
func (fc *FilterContext) Method() *MethodDescriptor { return fc.scope.Method }

// Resource returns the resolved target resource.
func (fc *FilterContext) Resource() *ResourceDescriptor { return fc.scope.Resource }

// Err returns the dispatch error observed so far. Only response filters see
// a non-nil value.
func (fc *FilterContext) Err() error { return fc.scope.Err }

// Abort marks the dispatch as aborted. Remaining request filters still run;
// resource invocation is skipped, response filters are not.
func (fc *FilterContext) Abort() { fc.aborted = true }

// Aborted reports whether this filter instance called Abort.
func (fc *FilterContext) Aborted() bool { return fc.aborted }

// applyRequestFilters runs every request-phase filter whose marker appears
// on the target method. All matching filters run regardless of earlier
// aborts; the pass result is the OR of every filter's abort flag. A no-op
// when the route resolved to no method.
func (app *Application) applyRequestFilters(scope *RequestScope) bool {
	if scope.Method == nil {
		return false
	}
	aborted := false
	for _, fi := range app.filters {
		if fi.Phase != PhaseRequest || !slices.Contains(scope.Method.Markers, fi.Marker) {
			continue
		}
		fc := &FilterContext{scope: scope}
		fi.New().Filter(fc)
		aborted = aborted || fc.aborted
	}
	return aborted
}

// applyResponseFilters runs every response-phase filter whose marker
// appears on the target method. It runs after success, after an aborted
// request pass, and after a failed invocation alike.
func (app *Application) applyResponseFilters(scope *RequestScope) {
	if scope.Method == nil {
		return
	}
	for _, fi := range app.filters {
		if fi.Phase != PhaseResponse || !slices.Contains(scope.Method.Markers, fi.Marker) {
			continue
		}
		fi.New().Filter(&FilterContext{scope: scope})
	}
}
