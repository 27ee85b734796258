package auth

import (
	"context"
	"slices"

	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user/entity"
)

// Principal is the authenticated identity of one request.
type Principal struct {
	User        *entity.User
	Authorities []string
	// Claims are the decoded token claims, e.g. for the mfa flag.
	Claims *Claims
}

// HasAuthority reports whether the principal was granted authority.
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	_, found := slices.BinarySearch(p.Authorities, authority)
	return found
}

// MFASatisfied reports the token's mfa claim.
func (p *Principal) MFASatisfied() bool {
	return p != nil && p.Claims != nil && p.Claims.MFA
}

// authorities derives the granted authorities from roles: sorted, unique,
// blanks dropped. An empty result is valid.
func authorities(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

type principalKey struct{}

// gatewayKey marks a request the gateway has already handled.
type gatewayKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached by the gateway, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
