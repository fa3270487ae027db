package dispatch

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenLocation selects where the application looks for the caller's token.
// This is a per-application configuration choice, not negotiated per request.
type TokenLocation int

// Token locations.
const (
	TokenBearer TokenLocation = iota // Authorization: Bearer <token>
	TokenCookie                      // cookie named "token"
	TokenHeader                      // configurable custom header
)

const tokenCookieName = "token"

// Signing algorithms accepted for application tokens. Tokens are signed
// with the application secret, so only HMAC methods are valid.
var allowedSigningMethods = []string{"HS256", "HS384", "HS512"}

// AuthContext is the per-request authenticated subject: its claims, role
// set, and validity. A missing token yields an anonymous context, which is
// not an error by itself.
type AuthContext struct {
	Subject       string
	Claims        map[string]any
	Roles         []string
	Authenticated bool

	roles map[string]struct{}
}

// Anonymous returns an unauthenticated AuthContext.
func Anonymous() *AuthContext {
	return &AuthContext{}
}

// HasRole reports whether the subject holds the role. Role names are
// compared case-insensitively.
func (a *AuthContext) HasRole(role string) bool {
	if a == nil {
		return false
	}
	_, ok := a.roles[strings.ToLower(role)]
	return ok
}

// HasAnyRole reports whether the subject holds at least one of the roles.
func (a *AuthContext) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}

// extractToken pulls the raw token string from the request according to the
// configured location. The Bearer scheme match is case-insensitive.
func extractToken(r *http.Request, loc TokenLocation, headerName string) string {
	switch loc {
	case TokenBearer:
		scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(tok)
	case TokenCookie:
		c, err := r.Cookie(tokenCookieName)
		if err != nil {
			return ""
		}
		return c.Value
	case TokenHeader:
		return r.Header.Get(headerName)
	}
	return ""
}

// buildAuthContext authenticates the request. Absence of a token yields an
// anonymous context and no error. A present but unverifiable token (bad
// signature, expired) also yields an anonymous context; the verification
// error is returned for logging, and the caller fails later at the
// authorization check if the method requires roles.
func buildAuthContext(r *http.Request, app *Application) (*AuthContext, error) {
	raw := extractToken(r, app.tokenLoc, app.tokenHeader)
	if raw == "" {
		return Anonymous(), nil
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return app.secret, nil
	}, jwt.WithValidMethods(allowedSigningMethods), jwt.WithExpirationRequired())
	if err != nil {
		return Anonymous(), err
	}

	ac := &AuthContext{
		Claims:        map[string]any(claims),
		Authenticated: true,
		roles:         make(map[string]struct{}),
	}
	if sub, err := claims.GetSubject(); err == nil {
		ac.Subject = sub
	}
	if rs, ok := claims["roles"].([]any); ok {
		for _, r := range rs {
			if s, ok := r.(string); ok {
				ac.Roles = append(ac.Roles, s)
				ac.roles[strings.ToLower(s)] = struct{}{}
			}
		}
	}
	return ac, nil
}

// authorize evaluates the method's auth requirement against the caller.
// permitAll always passes, denyAll always fails, and a roles requirement is
// satisfied by holding at least one required role.
func authorize(m *MethodDescriptor, ac *AuthContext) error {
	switch m.Auth.Mode {
	case AuthNone, AuthPermitAll:
		return nil
	case AuthDenyAll:
		return &NotAuthorizedError{Authenticated: ac.Authenticated, Reason: "access denied"}
	case AuthRoles:
		if !ac.Authenticated {
			return &NotAuthorizedError{Reason: "authentication required"}
		}
		for role := range m.roles {
			if ac.HasRole(role) {
				return nil
			}
		}
		return &NotAuthorizedError{Authenticated: true, Reason: "missing required role"}
	}
	return nil
}

// SignToken mints an HMAC-signed token carrying the subject and roles.
// Applications issue tokens elsewhere; this helper exists for tests and
// tooling that need a token verifiable against the same secret.
func SignToken(secret []byte, subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
