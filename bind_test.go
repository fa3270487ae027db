package dispatch

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Title string `json:"title"`
}

// bindApp registers a single-method resource and returns the app plus the
// compiled descriptor pair, ready for direct binder calls.
func bindApp(t *testing.T, m MethodDescriptor) (*Application, *ResourceDescriptor, *MethodDescriptor) {
	t.Helper()
	app := NewApplication()
	require.NoError(t, app.RegisterResource(ResourceDescriptor{
		Name:    "notes",
		Path:    "notes",
		Methods: []MethodDescriptor{m},
	}))
	res := app.resources["notes"]
	return app, res, &res.Methods[0]
}

func bindScope(r *http.Request, res *ResourceDescriptor, m *MethodDescriptor) *RequestScope {
	scope := newRequestScope("test", r, res, m)
	scope.Auth = Anonymous()
	return scope
}

func TestBind_path_parameter_coerces_to_int(t *testing.T) {
	t.Parallel()

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "Get",
		Verb: http.MethodGet,
		Path: "/{id}",
		Params: []ParameterDescriptor{
			{Name: "id", Source: SourcePath, Type: reflect.TypeFor[int]()},
		},
		Func: func(id int) {},
	})

	r := httptest.NewRequest(http.MethodGet, "/notes/42", nil)
	r.SetPathValue("id", "42")

	args, err := app.bind(bindScope(r, res, m))
	require.NoError(t, err)
	assert.Equal(t, []any{42}, args)
}

func TestBind_query_default_substituted_when_absent(t *testing.T) {
	t.Parallel()

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "List",
		Verb: http.MethodGet,
		Params: []ParameterDescriptor{
			{Name: "limit", Source: SourceQuery, Type: reflect.TypeFor[int](), Default: "25"},
		},
		Func: func(limit int) {},
	})

	r := httptest.NewRequest(http.MethodGet, "/notes", nil)
	args, err := app.bind(bindScope(r, res, m))
	require.NoError(t, err)
	assert.Equal(t, []any{25}, args)

	r = httptest.NewRequest(http.MethodGet, "/notes?limit=5", nil)
	args, err = app.bind(bindScope(r, res, m))
	require.NoError(t, err)
	assert.Equal(t, []any{5}, args)
}

func TestBind_header_and_cookie_sources(t *testing.T) {
	t.Parallel()

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "Trace",
		Verb: http.MethodGet,
		Params: []ParameterDescriptor{
			{Name: "X-Trace", Source: SourceHeader, Type: reflect.TypeFor[string]()},
			{Name: "session", Source: SourceCookie, Type: reflect.TypeFor[string]()},
		},
		Func: func(trace, session string) {},
	})

	r := httptest.NewRequest(http.MethodGet, "/notes", nil)
	r.Header.Set("X-Trace", "abc")
	r.AddCookie(&http.Cookie{Name: "session", Value: "s1"})

	args, err := app.bind(bindScope(r, res, m))
	require.NoError(t, err)
	assert.Equal(t, []any{"abc", "s1"}, args)
}

func TestBind_form_source(t *testing.T) {
	t.Parallel()

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "Create",
		Verb: http.MethodPost,
		Params: []ParameterDescriptor{
			{Name: "title", Source: SourceForm, Type: reflect.TypeFor[string]()},
		},
		Func: func(title string) {},
	})

	r := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("title=hello"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	args, err := app.bind(bindScope(r, res, m))
	require.NoError(t, err)
	assert.Equal(t, []any{"hello"}, args)
}

func TestBind_body_decoded_through_reader(t *testing.T) {
	t.Parallel()

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "Create",
		Verb: http.MethodPost,
		Params: []ParameterDescriptor{
			{Name: "note", Source: SourceBody, Type: reflect.TypeFor[note]()},
		},
		Func: func(n note) {},
	})

	r := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(`{"title":"hi"}`))
	r.Header.Set("Content-Type", "application/json")

	args, err := app.bind(bindScope(r, res, m))
	require.NoError(t, err)
	assert.Equal(t, []any{note{Title: "hi"}}, args)
}

func TestBind_context_source_bypasses_extraction(t *testing.T) {
	t.Parallel()

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "Get",
		Verb: http.MethodGet,
		Params: []ParameterDescriptor{
			{Name: "req", Source: SourceContext, Type: reflect.TypeFor[*http.Request]()},
			{Name: "auth", Source: SourceContext, Type: reflect.TypeFor[*AuthContext]()},
		},
		Func: func(r *http.Request, ac *AuthContext) {},
	})

	r := httptest.NewRequest(http.MethodGet, "/notes", nil)
	scope := bindScope(r, res, m)

	args, err := app.bind(scope)
	require.NoError(t, err)
	assert.Same(t, r, args[0])
	assert.Same(t, scope.Auth, args[1])
}

func TestBind_raw_constraint_runs_before_coercion(t *testing.T) {
	t.Parallel()

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "Get",
		Verb: http.MethodGet,
		Path: "/{id}",
		Params: []ParameterDescriptor{
			{
				Name:        "id",
				Source:      SourcePath,
				Type:        reflect.TypeFor[int](),
				Constraints: []Constraint{Pattern(`^\d+$`)},
			},
		},
		Func: func(id int) {},
	})

	r := httptest.NewRequest(http.MethodGet, "/notes/abc", nil)
	r.SetPathValue("id", "abc")

	_, err := app.bind(bindScope(r, res, m))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Param)
}

func TestBind_typed_constraint_runs_after_coercion(t *testing.T) {
	t.Parallel()

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "Get",
		Verb: http.MethodGet,
		Path: "/{id}",
		Params: []ParameterDescriptor{
			{
				Name:        "id",
				Source:      SourcePath,
				Type:        reflect.TypeFor[int](),
				Constraints: []Constraint{Minimum(1)},
			},
		},
		Func: func(id int) {},
	})

	r := httptest.NewRequest(http.MethodGet, "/notes/0", nil)
	r.SetPathValue("id", "0")

	_, err := app.bind(bindScope(r, res, m))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "at least")
}

func TestBind_constraint_without_message_generates_one(t *testing.T) {
	t.Parallel()

	c := Constraint{Name: "evenLength", Raw: func(s string) bool { return len(s)%2 == 0 }}
	verr := c.violation("code", "abc")
	assert.Equal(t, "Constraint [evenLength] not enforced", verr.Message)
}

func TestBind_coercion_failure_is_server_error_naming_parameter(t *testing.T) {
	t.Parallel()

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "Get",
		Verb: http.MethodGet,
		Path: "/{id}",
		Params: []ParameterDescriptor{
			{Name: "id", Source: SourcePath, Type: reflect.TypeFor[int]()},
		},
		Func: func(id int) {},
	})

	r := httptest.NewRequest(http.MethodGet, "/notes/oops", nil)
	r.SetPathValue("id", "oops")

	_, err := app.bind(bindScope(r, res, m))
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "notes", serr.Issuer)
	assert.Equal(t, "Get", serr.Method)
	assert.Contains(t, serr.Error(), `"id"`)
}

func TestBind_named_scalar_type_coerces_by_kind(t *testing.T) {
	t.Parallel()

	type pageSize int

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "List",
		Verb: http.MethodGet,
		Params: []ParameterDescriptor{
			{Name: "size", Source: SourceQuery, Type: reflect.TypeFor[pageSize]()},
		},
		Func: func(size pageSize) {},
	})

	r := httptest.NewRequest(http.MethodGet, "/notes?size=7", nil)
	args, err := app.bind(bindScope(r, res, m))
	require.NoError(t, err)
	assert.Equal(t, pageSize(7), args[0])
}

func TestBind_out_of_range_value_fails_coercion(t *testing.T) {
	t.Parallel()

	_, err := coerceKind(reflect.TypeFor[int8](), "300")
	require.Error(t, err, "300 does not fit in int8")

	_, err = coerceKind(reflect.TypeFor[uint8](), "500")
	require.Error(t, err, "500 does not fit in uint8")

	_, err = coerceKind(reflect.TypeFor[float32](), "3.5e50")
	require.Error(t, err, "3.5e50 does not fit in float32")

	v, err := coerceKind(reflect.TypeFor[int8](), "127")
	require.NoError(t, err)
	assert.Equal(t, int8(127), v)
}

func TestBind_small_int_overflow_is_server_error(t *testing.T) {
	t.Parallel()

	app, res, m := bindApp(t, MethodDescriptor{
		Name: "Get",
		Verb: http.MethodGet,
		Path: "/{id}",
		Params: []ParameterDescriptor{
			{Name: "id", Source: SourcePath, Type: reflect.TypeFor[int8]()},
		},
		Func: func(id int8) {},
	})

	r := httptest.NewRequest(http.MethodGet, "/notes/300", nil)
	r.SetPathValue("id", "300")

	_, err := app.bind(bindScope(r, res, m))
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Error(), `"id"`)
}

func TestRegister_missing_binding_source_is_configuration_error(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	err := app.RegisterResource(ResourceDescriptor{
		Name: "notes",
		Path: "notes",
		Methods: []MethodDescriptor{{
			Name: "Get",
			Verb: http.MethodGet,
			Params: []ParameterDescriptor{
				{Name: "id", Type: reflect.TypeFor[int]()},
			},
			Func: func(id int) {},
		}},
	})

	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Detail, "no binding source")
}

func TestRegister_duplicate_resource_path_rejected(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	rd := ResourceDescriptor{
		Name: "notes",
		Path: "notes",
		Methods: []MethodDescriptor{{
			Name: "List",
			Verb: http.MethodGet,
			Func: func() {},
		}},
	}
	require.NoError(t, app.RegisterResource(rd))

	var cerr *ConfigurationError
	require.ErrorAs(t, app.RegisterResource(rd), &cerr)
}

func TestRegister_arity_mismatch_rejected(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	err := app.RegisterResource(ResourceDescriptor{
		Name: "notes",
		Path: "notes",
		Methods: []MethodDescriptor{{
			Name: "Get",
			Verb: http.MethodGet,
			Params: []ParameterDescriptor{
				{Name: "id", Source: SourcePath, Type: reflect.TypeFor[int]()},
			},
			Func: func() {},
		}},
	})

	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
}
