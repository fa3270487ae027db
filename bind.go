package dispatch

import (
	"fmt"
	"reflect"
	"strconv"
)

// bind resolves the method's argument array from the request, one parameter
// at a time in declaration order: default resolution, raw extraction, raw
// constraints, coercion, typed constraints. Bound values are tracked on the
// scope for end-of-dispatch reclamation; injected framework values are not.
func (app *Application) bind(scope *RequestScope) ([]any, error) {
	m := scope.Method
	args := make([]any, len(m.Params))
	for i := range m.Params {
		p := &m.Params[i]
		v, err := app.bindParam(scope, p)
		if err != nil {
			return nil, err
		}
		args[i] = v
		if p.Source != SourceContext {
			scope.Track(v)
		}
	}
	return args, nil
}

func (app *Application) bindParam(scope *RequestScope, p *ParameterDescriptor) (any, error) {
	if p.Source == SourceContext {
		return app.inject(scope, p)
	}

	raw, err := app.extract(scope, p)
	if err != nil {
		return nil, app.serverErr(scope, fmt.Errorf("extract %q: %w", p.Name, err))
	}
	if raw == "" {
		raw = p.Default
	}

	for _, c := range p.Constraints {
		if c.Raw != nil && !c.Raw(raw) {
			return nil, c.violation(p.Name, raw)
		}
	}

	v, err := app.coerce(scope, p, raw)
	if err != nil {
		return nil, app.serverErr(scope, fmt.Errorf("parameter %q: %w", p.Name, err))
	}

	for _, c := range p.Constraints {
		if c.Typed != nil && !c.Typed(v) {
			return nil, c.violation(p.Name, v)
		}
	}
	return v, nil
}

func (app *Application) serverErr(scope *RequestScope, err error) error {
	return &ServerError{Issuer: scope.Resource.Name, Method: scope.Method.Name, Err: err}
}

// inject resolves a context-sourced parameter by declared type, bypassing
// textual extraction entirely.
func (app *Application) inject(scope *RequestScope, p *ParameterDescriptor) (any, error) {
	switch p.Type {
	case ctxType:
		return scope.Request.Context(), nil
	case requestType:
		return scope.Request, nil
	case responseType:
		return scope.Response, nil
	case authCtxType:
		return scope.Auth, nil
	case scopeType:
		return scope, nil
	}
	return nil, app.serverErr(scope, fmt.Errorf("parameter %q: no injection for %s", p.Name, p.Type))
}

// extract pulls the raw string for a parameter from its binding source.
func (app *Application) extract(scope *RequestScope, p *ParameterDescriptor) (string, error) {
	r := scope.Request
	switch p.Source {
	case SourcePath:
		return r.PathValue(p.Name), nil
	case SourceQuery:
		return r.URL.Query().Get(p.Name), nil
	case SourceForm:
		if err := r.ParseForm(); err != nil {
			return "", err
		}
		return r.PostForm.Get(p.Name), nil
	case SourceCookie:
		c, err := r.Cookie(p.Name)
		if err != nil {
			return "", nil
		}
		return c.Value, nil
	case SourceHeader:
		return r.Header.Get(p.Name), nil
	case SourceBody:
		b, err := scope.rawBody()
		return string(b), err
	}
	return "", fmt.Errorf("unbindable source %s", p.Source)
}

// coerce turns the raw string into the declared type. Scalar types go
// through the parser registry with a by-kind fallback for named scalar
// types; object types prefer a reader applicable to the request's content
// media type, then a registered string constructor.
func (app *Application) coerce(scope *RequestScope, p *ParameterDescriptor, raw string) (any, error) {
	t := p.Type

	if isScalarKind(t.Kind()) {
		if fn, ok := app.codecs.parserFor(t); ok {
			return fn(raw)
		}
		return coerceKind(t, raw)
	}

	if rd := app.codecs.findReader(t, scope.Request.Header.Get("Content-Type")); rd != nil {
		return rd.Reader.Read([]byte(raw), t)
	}
	if fn, ok := app.codecs.parserFor(t); ok {
		return fn(raw)
	}
	return nil, fmt.Errorf("no reader or string constructor for %s", t)
}

func isScalarKind(k reflect.Kind) bool {
	//exhaustive:ignore
	switch k {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// coerceKind parses a scalar by reflect kind, covering named scalar types
// that have no exact parser registration.
func coerceKind(t reflect.Type, raw string) (any, error) {
	v := reflect.New(t).Elem()
	//exhaustive:ignore
	switch t.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, t.Bits())
		if err != nil {
			return nil, err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, t.Bits())
		if err != nil {
			return nil, err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, t.Bits())
		if err != nil {
			return nil, err
		}
		v.SetFloat(f)
	default:
		return nil, fmt.Errorf("unsupported scalar type %s", t)
	}
	return v.Interface(), nil
}
