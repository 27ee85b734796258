package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultHeader is the request header carrying the session token.
const DefaultHeader = "AUTH"

// DefaultExemptPrefixes bypass authentication entirely.
var DefaultExemptPrefixes = []string{"/api/auth", "/api/public"}

// State is the gateway's decision for one request.
type State int

const (
	StateRequired State = iota
	StateExempt
)

func (s State) String() string {
	if s == StateExempt {
		return "exempt"
	}
	return "required"
}

// Exemptions is the immutable set of path prefixes that skip authentication.
// Prefixes match on segment boundaries: /api/auth covers /api/auth/login but
// not /api/authority.
type Exemptions struct {
	prefixes []string // longest first
}

func NewExemptions(prefixes ...string) Exemptions {
	seen := make(map[string]struct{}, len(prefixes))
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = "/" + strings.Trim(path.Clean("/"+p), "/")
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return Exemptions{prefixes: out}
}

// Prefixes returns a copy of the configured prefixes, longest first.
func (e Exemptions) Prefixes() []string {
	return append([]string(nil), e.prefixes...)
}

// Match returns the longest prefix covering p. p is cleaned first so dot
// segments cannot climb out of an exempt prefix.
func (e Exemptions) Match(p string) (string, bool) {
	p = path.Clean("/" + p)
	for _, prefix := range e.prefixes {
		if prefix == "/" || p == prefix || strings.HasPrefix(p, prefix+"/") {
			return prefix, true
		}
	}
	return "", false
}

// State decides whether a request to p must authenticate.
func (e Exemptions) State(p string) State {
	if _, ok := e.Match(p); ok {
		return StateExempt
	}
	return StateRequired
}

// TokenAuthenticator verifies a token and resolves its principal.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// Decision is the outcome of the gateway step for one request: either a
// principal, an exemption, or a typed failure. It never panics or aborts.
type Decision struct {
	State     State
	Principal *Principal
	Err       error
}

// Gateway is the authentication stage of the request pipeline.
type Gateway struct {
	authn      TokenAuthenticator
	exemptions Exemptions
	header     string
	logger     *zap.SugaredLogger
}

func NewGateway(authn TokenAuthenticator, exemptions Exemptions, header string, logger *zap.SugaredLogger) *Gateway {
	if header == "" {
		header = DefaultHeader
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gateway{authn: authn, exemptions: exemptions, header: header, logger: logger}
}

// Decide runs the gateway state machine for r without writing a response.
func (g *Gateway) Decide(r *http.Request) Decision {
	if g.exemptions.State(r.URL.Path) == StateExempt {
		return Decision{State: StateExempt}
	}
	token, err := g.extractToken(r)
	if err != nil {
		return Decision{State: StateRequired, Err: err}
	}
	p, err := g.authn.Authenticate(r.Context(), token)
	if err != nil {
		return Decision{State: StateRequired, Err: err}
	}
	return Decision{State: StateRequired, Principal: p}
}

// extractToken reads the fixed header slot, falling back to a standard
// Authorization: Bearer header.
func (g *Gateway) extractToken(r *http.Request) (string, error) {
	if v := strings.TrimSpace(r.Header.Get(g.header)); v != "" {
		return v, nil
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMalformedToken
	}
	return strings.TrimSpace(token), nil
}

// Middleware wraps next with the gateway. It runs once per request: a request
// that already passed through it is handed on untouched.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Value(gatewayKey{}) != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), gatewayKey{}, struct{}{})
		r = r.WithContext(ctx)

		d := g.Decide(r)
		switch {
		case d.Err != nil:
			g.logger.Debugw("authentication rejected",
				"path", r.URL.Path,
				"code", FailureCode(d.Err),
				"err", d.Err,
			)
			writeUnauthorized(w, d.Err)
			return
		case d.Principal != nil:
			r = r.WithContext(WithPrincipal(ctx, d.Principal))
		}
		next.ServeHTTP(w, r)
	})
}

// failureBody is the JSON payload of every 401 and 403.
type failureBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	writeJSON(w, http.StatusUnauthorized, failureBody{Error: FailureCode(err), Reason: failureReason(err)})
}

// RequireAuthority rejects requests whose principal lacks authority with 403.
// Requests without a principal get 401.
func RequireAuthority(authority string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeUnauthorized(w, ErrMissingToken)
				return
			}
			if !p.HasAuthority(authority) {
				writeJSON(w, http.StatusForbidden, failureBody{Error: "forbidden", Reason: "missing authority " + authority})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireMFA rejects principals whose token does not have the mfa flag set.
func RequireMFA(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeUnauthorized(w, ErrMissingToken)
			return
		}
		if !p.MFASatisfied() {
			writeJSON(w, http.StatusForbidden, failureBody{Error: "mfa_required", Reason: "second factor not satisfied"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
