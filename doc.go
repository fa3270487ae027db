// Package dispatch routes inbound HTTP requests to declaratively described
// resource methods. Resources are registered as static descriptor tables
// (verb, path template, produces/consumes lists, auth requirement, parameter
// descriptors) and the dispatcher runs the full per-request pipeline over
// them: token authentication, request/response filter chains, content
// negotiation with affinity-scored codecs, parameter binding with constraint
// validation, method invocation, and result serialization.
//
// An Application is built once at startup and is read-only afterwards:
//
//	app := dispatch.NewApplication(
//	    dispatch.WithName("demo"),
//	    dispatch.WithBasePath("/api"),
//	    dispatch.WithSecret([]byte("s3cret")),
//	)
//	err := app.RegisterResource(dispatch.ResourceDescriptor{
//	    Name: "users",
//	    Path: "users",
//	    Methods: []dispatch.MethodDescriptor{{
//	        Name:     "Get",
//	        Verb:     http.MethodGet,
//	        Path:     "/{id}",
//	        Produces: []string{"application/json"},
//	        Params: []dispatch.ParameterDescriptor{
//	            {Name: "id", Source: dispatch.SourcePath, Type: reflect.TypeFor[int]()},
//	        },
//	        Func: func(id int) (*User, error) { ... },
//	    }},
//	})
//
// Application implements http.Handler; the surrounding HTTP server, TLS,
// and listener lifecycle belong to the caller.
package dispatch
