package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
)

// Source identifies where a parameter's raw value is extracted from.
type Source int

// Binding sources. SourceUnset is invalid and rejected at registration.
const (
	SourceUnset Source = iota
	SourcePath
	SourceQuery
	SourceForm
	SourceCookie
	SourceHeader
	SourceBody
	SourceContext
)

var sourceNames = map[Source]string{
	SourceUnset:   "unset",
	SourcePath:    "path",
	SourceQuery:   "query",
	SourceForm:    "form",
	SourceCookie:  "cookie",
	SourceHeader:  "header",
	SourceBody:    "body",
	SourceContext: "context",
}

func (s Source) String() string {
	if n, ok := sourceNames[s]; ok {
		return n
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// AuthMode selects how a method's auth requirement is evaluated.
type AuthMode int

// Auth modes. AuthNone skips authorization entirely.
const (
	AuthNone AuthMode = iota
	AuthPermitAll
	AuthDenyAll
	AuthRoles
)

// AuthRequirement is a method's declarative access rule. With AuthRoles the
// caller must hold at least one of the listed roles; role names are compared
// case-insensitively.
type AuthRequirement struct {
	Mode  AuthMode
	Roles []string
}

// Constraint is a pluggable parameter predicate. Exactly one of Raw or Typed
// is set: Raw runs against the extracted string before coercion, Typed runs
// against the coerced value afterwards. A failing constraint surfaces as a
// ValidationError with Message, or a generated message if Message is empty.
type Constraint struct {
	Name    string
	Message string
	Raw     func(string) bool
	Typed   func(any) bool
}

func (c Constraint) violation(param string, value any) *ValidationError {
	msg := c.Message
	if msg == "" {
		msg = fmt.Sprintf("Constraint [%s] not enforced", c.Name)
	}
	return &ValidationError{Param: param, Message: msg, Value: value}
}

// ParameterDescriptor declares one method parameter: its binding source,
// declared Go type, optional default, and constraint bindings.
type ParameterDescriptor struct {
	Name        string
	Source      Source
	Type        reflect.Type
	Default     string
	Constraints []Constraint
}

// MethodDescriptor declares one invokable resource method. Func must be a
// func whose parameters match Params positionally and whose results are one
// of: none, error, T, or (T, error).
type MethodDescriptor struct {
	Name     string
	Verb     string
	Path     string
	Produces []string
	Consumes []string
	Auth     AuthRequirement
	Markers  []string
	Params   []ParameterDescriptor
	Func     any

	// Singleton marks the method result as long-lived: it is exempt from
	// end-of-dispatch reclamation.
	Singleton bool

	fn         reflect.Value
	returnType reflect.Type
	returnsErr bool
	roles      map[string]struct{}
}

// ReturnType reports the method's declared result type, nil when void.
func (m *MethodDescriptor) ReturnType() reflect.Type { return m.returnType }

// ResourceDescriptor groups the methods reachable under one path segment.
type ResourceDescriptor struct {
	Name    string
	Path    string
	Methods []MethodDescriptor
}

var (
	errType      = reflect.TypeFor[error]()
	ctxType      = reflect.TypeFor[context.Context]()
	requestType  = reflect.TypeFor[*http.Request]()
	responseType = reflect.TypeFor[*Response]()
	authCtxType  = reflect.TypeFor[*AuthContext]()
	scopeType    = reflect.TypeFor[*RequestScope]()
)

// injectable reports whether a context-sourced parameter type can be
// resolved by the dispatcher.
func injectable(t reflect.Type) bool {
	switch t {
	case ctxType, requestType, responseType, authCtxType, scopeType:
		return true
	}
	return false
}

// compile validates the descriptor and fills in invocation metadata.
// Everything checked here is configuration: a method that compiles is
// bindable and invokable for any request.
func (m *MethodDescriptor) compile(resource string) error {
	if m.Name == "" {
		return Configf("resource %q: method with empty name", resource)
	}
	if m.Verb == "" {
		return Configf("%s.%s: missing HTTP verb", resource, m.Name)
	}
	if m.Func == nil {
		return Configf("%s.%s: missing Func", resource, m.Name)
	}

	fn := reflect.ValueOf(m.Func)
	if fn.Kind() != reflect.Func {
		return Configf("%s.%s: Func is %T, not a func", resource, m.Name, m.Func)
	}
	ft := fn.Type()
	if ft.NumIn() != len(m.Params) {
		return Configf("%s.%s: func takes %d arguments, %d parameters declared",
			resource, m.Name, ft.NumIn(), len(m.Params))
	}

	for i := range m.Params {
		p := &m.Params[i]
		if p.Source == SourceUnset {
			return Configf("%s.%s: parameter %q has no binding source", resource, m.Name, p.Name)
		}
		if p.Type == nil {
			p.Type = ft.In(i)
		}
		if p.Type != ft.In(i) {
			return Configf("%s.%s: parameter %q declared as %s, func takes %s",
				resource, m.Name, p.Name, p.Type, ft.In(i))
		}
		if p.Source == SourceContext && !injectable(p.Type) {
			return Configf("%s.%s: parameter %q: %s is not injectable",
				resource, m.Name, p.Name, p.Type)
		}
		for _, c := range p.Constraints {
			if (c.Raw == nil) == (c.Typed == nil) {
				return Configf("%s.%s: parameter %q: constraint %q must set exactly one of Raw or Typed",
					resource, m.Name, p.Name, c.Name)
			}
		}
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errType {
			m.returnsErr = true
		} else {
			m.returnType = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errType {
			return Configf("%s.%s: second result must be error, got %s", resource, m.Name, ft.Out(1))
		}
		m.returnType = ft.Out(0)
		m.returnsErr = true
	default:
		return Configf("%s.%s: func returns %d values, at most 2 supported", resource, m.Name, ft.NumOut())
	}
	m.fn = fn

	if m.Auth.Mode == AuthRoles {
		if len(m.Auth.Roles) == 0 {
			return Configf("%s.%s: roles requirement with no roles", resource, m.Name)
		}
		// Required roles are deduplicated and lower-cased once here; the
		// per-request check lower-cases subject roles to match.
		m.roles = make(map[string]struct{}, len(m.Auth.Roles))
		for _, r := range m.Auth.Roles {
			m.roles[strings.ToLower(r)] = struct{}{}
		}
	}

	return nil
}
