package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// dispatch runs the full per-request pipeline for one resolved method:
// auth context, request filters, authorization, writer negotiation,
// parameter binding, invocation, serialization, response filters, and
// reclamation. It is installed on the mux once per registered method.
func (app *Application) dispatch(w http.ResponseWriter, r *http.Request, res *ResourceDescriptor, m *MethodDescriptor) {
	start := time.Now()
	scope := newRequestScope(uuid.NewString(), r, res, m)

	auth, authErr := buildAuthContext(r, app)
	scope.Auth = auth
	if authErr != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "token rejected",
			slog.String("request_id", scope.ID()),
			slog.String("error", authErr.Error()),
		)
	}

	aborted := app.applyRequestFilters(scope)

	if !aborted {
		if err := app.run(scope); err != nil {
			scope.Err = err
			app.writeError(scope, err)
		}
	}

	// Response filters observe every outcome: success, abort, or error.
	app.applyResponseFilters(scope)
	scope.reclaim()

	if err := scope.Response.flush(w); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "response write failed",
			slog.String("request_id", scope.ID()),
			slog.String("error", err.Error()),
		)
	}

	attrs := []slog.Attr{
		slog.String("request_id", scope.ID()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", scope.Response.Status()),
		slog.Duration("latency", time.Since(start)),
	}
	if scope.MediaType != "" {
		attrs = append(attrs, slog.String("media_type", scope.MediaType))
	}
	if auth.Authenticated {
		attrs = append(attrs, slog.String("subject", auth.Subject))
	}
	if aborted {
		attrs = append(attrs, slog.Bool("aborted", true))
	}
	app.logger.LogAttrs(r.Context(), slog.LevelInfo, "dispatch", attrs...)
}

// run performs the post-filter stages. The writer is negotiated before
// invocation so an unsatisfiable Accept fails fast without running the
// method.
func (app *Application) run(scope *RequestScope) error {
	m := scope.Method

	if err := authorize(m, scope.Auth); err != nil {
		return err
	}

	if ct := scope.Request.Header.Get("Content-Type"); !contentTypeAllowed(m.Consumes, ct) {
		return &UnsupportedMediaTypeError{MediaTypes: m.Consumes}
	}

	accept := scope.Request.Header.Get("Accept")
	if m.returnType != nil {
		wtr, mt, ok := app.codecs.findWriter(m.returnType, m.Produces, accept)
		if !ok {
			return &UnsupportedMediaTypeError{
				MediaTypes: candidateMediaTypes(m.Produces, parseAccept(accept)),
			}
		}
		scope.Writer = wtr
		scope.MediaType = mt
	}

	args, err := app.bind(scope)
	if err != nil {
		return err
	}
	scope.Args = args

	result, err := app.invoke(scope, args)
	if err != nil {
		return err
	}

	return app.writeResult(scope, result)
}

// invoke calls the resource method with the bound argument array. Panics
// surface as ServerError; application errors that already carry a status
// pass through unchanged.
func (app *Application) invoke(scope *RequestScope, args []any) (result any, err error) {
	m := scope.Method
	defer func() {
		if rec := recover(); rec != nil {
			app.logger.LogAttrs(scope.Request.Context(), slog.LevelError, "panic recovered",
				slog.String("request_id", scope.ID()),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			result = nil
			err = app.serverErr(scope, fmt.Errorf("panic: %v", rec))
		}
	}()

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if a == nil {
			in[i] = reflect.Zero(m.fn.Type().In(i))
			continue
		}
		in[i] = reflect.ValueOf(a)
	}
	out := m.fn.Call(in)

	if m.returnsErr {
		last := out[len(out)-1]
		if e, ok := last.Interface().(error); ok && e != nil {
			return nil, app.appError(scope, e)
		}
	}
	if m.returnType != nil {
		return out[0].Interface(), nil
	}
	return nil, nil
}

// appError maps an application error at the dispatcher boundary: errors
// that already carry a status code surface as-is, everything else becomes
// a ServerError annotated with the failing method.
func (app *Application) appError(scope *RequestScope, err error) error {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return err
	}
	return app.serverErr(scope, err)
}

// writeResult serializes the invocation result into the response. A result
// that is already a fully-formed Response replaces the scope's response and
// skips serialization.
func (app *Application) writeResult(scope *RequestScope, result any) error {
	m := scope.Method
	resp := scope.Response

	if m.returnType == nil {
		if resp.Status() == http.StatusOK && len(resp.Body()) == 0 {
			resp.SetStatus(http.StatusNoContent)
		}
		return nil
	}

	if r2, ok := result.(*Response); ok && r2 != nil {
		scope.Response = r2
		return nil
	}

	if !m.Singleton {
		scope.Track(result)
	}

	if scope.Writer == nil {
		return &UnsupportedResultError{Type: fmt.Sprintf("%T", result)}
	}
	// Negotiation ran against the declared return type; an interface-typed
	// method can still produce a concrete value the writer cannot handle.
	if rt := reflect.TypeOf(result); rt != nil && rt != m.returnType && !scope.Writer.applicable(rt, scope.MediaType) {
		return &UnsupportedResultError{Type: fmt.Sprintf("%T", result)}
	}
	if err := scope.Writer.Writer.Write(resp, result); err != nil {
		return app.serverErr(scope, fmt.Errorf("serialize result: %w", err))
	}
	resp.setDefaultContentType(scope.MediaType)
	return nil
}

// writeError replaces the response with a problem body for the failure.
// 401 responses carry the application's auth challenge.
func (app *Application) writeError(scope *RequestScope, err error) {
	status := ErrorStatus(err)
	resp := scope.Response
	resp.Reset()
	resp.SetStatus(status)

	if status == http.StatusUnauthorized {
		resp.Header().Set("WWW-Authenticate", app.challengeHeader())
	}

	resp.SetContentType("application/problem+json")
	problem := Problem{
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
	}
	//nolint:errcheck,errchkjson // writing to an in-memory buffer
	json.NewEncoder(resp).Encode(problem)
}
