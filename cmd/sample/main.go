// Command sample demonstrates the dispatch framework with a small users
// API covering negotiation, parameter binding, auth, and filters.
//
// Run:
//
//	go run ./cmd/sample
//	go run ./cmd/sample -config app.yaml
//
// Mint a token for the protected endpoints:
//
//	go run ./cmd/sample -mint-token admin
//
// Then explore:
//
//	GET    http://localhost:8080/v1/users          list users
//	POST   http://localhost:8080/v1/users          create user
//	GET    http://localhost:8080/v1/users/{id}     get user (JSON or XML via Accept)
//	DELETE http://localhost:8080/v1/users/{id}     delete user (admin role)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"time"

	"github.com/hylo-dev/dispatch"
)

var secret = []byte("sample-secret-keep-out-of-prod")

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	configPath := flag.String("config", "", "YAML config file")
	mintRole := flag.String("mint-token", "", "print a token holding the given role and exit")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	if *mintRole != "" {
		tok, err := dispatch.SignToken(secret, "sample-user", []string{*mintRole}, time.Hour)
		if err != nil {
			slog.Error("mint token", "err", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	app, err := newApplication(*configPath)
	if err != nil {
		slog.Error("application setup failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server", "addr", *addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}

	slog.Info("server stopped")
}

func newApplication(configPath string) (*dispatch.Application, error) {
	opts := []dispatch.Option{
		dispatch.WithName("sample"),
		dispatch.WithBasePath("/v1"),
		dispatch.WithSecret(secret),
		dispatch.WithRealm("sample"),
	}
	if configPath != "" {
		cfg, err := dispatch.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		opts = cfg.Options()
	}

	app := dispatch.NewApplication(opts...)

	if err := app.RegisterFilter(dispatch.FilterInfo{
		Phase:  dispatch.PhaseRequest,
		Marker: "audited",
		New:    func() dispatch.Filter { return &auditFilter{} },
	}); err != nil {
		return nil, err
	}

	store := newUserStore()
	if err := app.RegisterResource(store.resource()); err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return app, nil
}

// auditFilter logs every access to methods marked "audited".
type auditFilter struct{}

func (auditFilter) Filter(fc *dispatch.FilterContext) {
	slog.Info("audit",
		"method", fc.Method().Name,
		"subject", fc.Auth().Subject,
		"path", fc.Request().URL.Path,
	)
}

// User is the sample resource entity.
type User struct {
	ID   int    `json:"id" xml:"id"`
	Name string `json:"name" xml:"name"`
	Role string `json:"role" xml:"role"`
}

type userStore struct {
	mu    sync.Mutex
	next  int
	users map[int]User
}

func newUserStore() *userStore {
	return &userStore{
		next: 3,
		users: map[int]User{
			1: {ID: 1, Name: "ada", Role: "admin"},
			2: {ID: 2, Name: "grace", Role: "user"},
		},
	}
}

func (s *userStore) resource() dispatch.ResourceDescriptor {
	return dispatch.ResourceDescriptor{
		Name: "users",
		Path: "users",
		Methods: []dispatch.MethodDescriptor{
			{
				Name:     "List",
				Verb:     http.MethodGet,
				Produces: []string{dispatch.MediaJSON, dispatch.MediaXML},
				Params: []dispatch.ParameterDescriptor{
					{Name: "role", Source: dispatch.SourceQuery, Type: reflect.TypeFor[string]()},
				},
				Func: s.list,
			},
			{
				Name:     "Get",
				Verb:     http.MethodGet,
				Path:     "/{id}",
				Produces: []string{dispatch.MediaJSON, dispatch.MediaXML},
				Params: []dispatch.ParameterDescriptor{
					{
						Name:        "id",
						Source:      dispatch.SourcePath,
						Type:        reflect.TypeFor[int](),
						Constraints: []dispatch.Constraint{dispatch.Minimum(1)},
					},
				},
				Func: s.get,
			},
			{
				Name:     "Create",
				Verb:     http.MethodPost,
				Produces: []string{dispatch.MediaJSON},
				Consumes: []string{dispatch.MediaJSON},
				Markers:  []string{"audited"},
				Params: []dispatch.ParameterDescriptor{
					{Name: "user", Source: dispatch.SourceBody, Type: reflect.TypeFor[User]()},
					{Name: "resp", Source: dispatch.SourceContext, Type: reflect.TypeFor[*dispatch.Response]()},
				},
				Func: s.create,
			},
			{
				Name:    "Delete",
				Verb:    http.MethodDelete,
				Path:    "/{id}",
				Auth:    dispatch.AuthRequirement{Mode: dispatch.AuthRoles, Roles: []string{"admin"}},
				Markers: []string{"audited"},
				Params: []dispatch.ParameterDescriptor{
					{Name: "id", Source: dispatch.SourcePath, Type: reflect.TypeFor[int]()},
				},
				Func: s.remove,
			},
		},
	}
}

func (s *userStore) list(role string) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *userStore) get(id int) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, &dispatch.NotFoundError{Path: fmt.Sprintf("users/%d", id)}
	}
	return &u, nil
}

func (s *userStore) create(u User, resp *dispatch.Response) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.next
	s.next++
	s.users[u.ID] = u
	resp.SetStatus(http.StatusCreated)
	return &u, nil
}

func (s *userStore) remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return &dispatch.NotFoundError{Path: fmt.Sprintf("users/%d", id)}
	}
	delete(s.users, id)
	return nil
}
