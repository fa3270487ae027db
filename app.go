package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
)

// SpanStarter is a tracing hook interface for creating spans per request.
// Implement this with your preferred tracing backend (e.g., OpenTelemetry).
type SpanStarter interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func())
}

// Application holds the immutable per-application state: identity, auth
// configuration, and the resource, filter, and codec registries. It is
// built once at startup; after registration finishes its registries are
// read-only, so concurrent dispatches need no synchronization.
type Application struct {
	name        string
	basePath    string
	secret      []byte
	realm       string
	challenge   string
	tokenLoc    TokenLocation
	tokenHeader string
	logger      *slog.Logger
	tracer      SpanStarter

	codecs        *codecRegistry
	noDefaults    bool
	filters       []FilterInfo
	resources     map[string]*ResourceDescriptor
	mux           *http.ServeMux

	// guards registration only; dispatch never takes it
	mu sync.Mutex
}

// Option configures an Application.
type Option func(*Application)

// WithName sets the application name.
func WithName(name string) Option {
	return func(a *Application) { a.name = name }
}

// WithBasePath sets the path prefix all resources are mounted under.
func WithBasePath(p string) Option {
	return func(a *Application) { a.basePath = p }
}

// WithSecret sets the HMAC secret tokens are verified against.
func WithSecret(secret []byte) Option {
	return func(a *Application) { a.secret = secret }
}

// WithRealm sets the realm reported in auth challenges.
func WithRealm(realm string) Option {
	return func(a *Application) { a.realm = realm }
}

// WithChallenge sets the auth-challenge scheme (default "Bearer").
func WithChallenge(kind string) Option {
	return func(a *Application) { a.challenge = kind }
}

// WithTokenLocation selects where tokens are extracted from.
func WithTokenLocation(loc TokenLocation) Option {
	return func(a *Application) { a.tokenLoc = loc }
}

// WithTokenHeader sets the header name used with TokenHeader extraction.
func WithTokenHeader(name string) Option {
	return func(a *Application) { a.tokenHeader = name }
}

// WithLogger sets the structured logger used for dispatch logging.
func WithLogger(l *slog.Logger) Option {
	return func(a *Application) { a.logger = l }
}

// WithTracer sets a tracing hook for the application.
func WithTracer(s SpanStarter) Option {
	return func(a *Application) { a.tracer = s }
}

// WithoutDefaultCodecs skips registration of the built-in JSON, XML, and
// text codecs, for applications that bring a fully custom codec stack.
func WithoutDefaultCodecs() Option {
	return func(a *Application) { a.noDefaults = true }
}

// NewApplication creates an Application with the built-in JSON, XML, and
// text codecs and scalar parsers registered.
func NewApplication(opts ...Option) *Application {
	app := &Application{
		challenge: "Bearer",
		realm:     "dispatch",
		logger:    slog.Default(),
		codecs:    newCodecRegistry(),
		resources: make(map[string]*ResourceDescriptor),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(app)
	}
	if !app.noDefaults {
		app.codecs.registerDefaults()
	}
	return app
}

// Name returns the application name.
func (app *Application) Name() string { return app.name }

// Validate checks the assembled application before it starts serving. A
// method with a return type needs at least one registered writer; catching
// the empty registry here keeps it a startup failure instead of a 415 on
// every request.
func (app *Application) Validate() error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if len(app.codecs.writers) > 0 {
		return nil
	}
	for _, res := range app.resources {
		for i := range res.Methods {
			if m := &res.Methods[i]; m.returnType != nil {
				return Configf("%s.%s returns %s but no writer is registered",
					res.Name, m.Name, m.returnType)
			}
		}
	}
	return nil
}

// RegisterWriter adds a writer to the codec registry. Writers registered
// earlier win affinity ties.
func (app *Application) RegisterWriter(ci CodecInfo) error {
	if ci.Writer == nil {
		return Configf("RegisterWriter: codec %q has no Writer", ci.Name)
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.codecs.register(ci)
}

// RegisterReader adds a reader to the codec registry.
func (app *Application) RegisterReader(ci CodecInfo) error {
	if ci.Reader == nil {
		return Configf("RegisterReader: codec %q has no Reader", ci.Name)
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.codecs.register(ci)
}

// RegisterParser adds a string constructor for a target type, used as the
// coercion fallback when no reader applies.
func (app *Application) RegisterParser(t reflect.Type, fn ParseFunc) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.codecs.registerParser(t, fn)
}

// RegisterFilter adds a filter binding. Filters run in registration order
// within their phase.
func (app *Application) RegisterFilter(fi FilterInfo) error {
	if fi.Marker == "" {
		return Configf("RegisterFilter: empty marker")
	}
	if fi.New == nil {
		return Configf("RegisterFilter: marker %q has no factory", fi.Marker)
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	app.filters = append(app.filters, fi)
	return nil
}

// RegisterResource validates and installs a resource descriptor. Every
// configuration problem (duplicate path, missing binding source, func
// shape mismatch) is reported here, before any request is dispatched.
func (app *Application) RegisterResource(rd ResourceDescriptor) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if rd.Path == "" {
		return Configf("resource %q: empty path", rd.Name)
	}
	if _, dup := app.resources[rd.Path]; dup {
		return Configf("resource path %q already registered", rd.Path)
	}

	res := &ResourceDescriptor{Name: rd.Name, Path: rd.Path, Methods: rd.Methods}
	for i := range res.Methods {
		m := &res.Methods[i]
		if err := m.compile(res.Name); err != nil {
			return err
		}
		pattern := m.Verb + " " + app.routePattern(res.Path, m.Path)
		app.mux.Handle(pattern, app.methodHandler(res, m))
	}

	app.resources[rd.Path] = res
	return nil
}

func (app *Application) methodHandler(res *ResourceDescriptor, m *MethodDescriptor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.dispatch(w, r, res, m)
	})
}

// routePattern joins base path, resource path, and method path template
// into a ServeMux pattern.
func (app *Application) routePattern(resPath, methodPath string) string {
	var b strings.Builder
	if p := strings.Trim(app.basePath, "/"); p != "" {
		b.WriteString("/")
		b.WriteString(p)
	}
	b.WriteString("/")
	b.WriteString(strings.Trim(resPath, "/"))
	if p := strings.Trim(methodPath, "/"); p != "" {
		b.WriteString("/")
		b.WriteString(p)
	}
	return b.String()
}

// ServeHTTP resolves the route and dispatches. An unmatched path or verb
// yields a 404 problem response; filters do not run when no method
// resolved.
func (app *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if app.tracer != nil {
		ctx, end := app.tracer.StartSpan(r.Context(), "dispatch", map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		defer end()
		r = r.WithContext(ctx)
	}

	// Handler only probes the match; serving through the mux again is what
	// populates r.PathValue for path-bound parameters.
	if _, pattern := app.mux.Handler(r); pattern == "" {
		app.notFound(w, r)
		return
	}
	app.mux.ServeHTTP(w, r)
}

func (app *Application) notFound(w http.ResponseWriter, r *http.Request) {
	err := &NotFoundError{Path: r.Method + " " + r.URL.Path}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusNotFound)
	//nolint:errcheck,errchkjson // best-effort after WriteHeader
	json.NewEncoder(w).Encode(Problem{
		Title:  http.StatusText(http.StatusNotFound),
		Status: http.StatusNotFound,
		Detail: err.Error(),
	})

	app.logger.LogAttrs(r.Context(), slog.LevelInfo, "dispatch",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", http.StatusNotFound),
	)
}

// challengeHeader builds the WWW-Authenticate value for 401 responses.
func (app *Application) challengeHeader() string {
	return fmt.Sprintf("%s realm=%q", app.challenge, app.realm)
}
