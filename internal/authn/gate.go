package authn

import (
	"context"
	"net/http"
	"strings"
)

// Principal identifies the authenticated caller of a request, regardless
// of whether it came from an API key or a session token.
type Principal struct {
	UserID   string
	Email    string
	APIKeyID string // empty when authenticated via session token
}

type ctxKey struct{}

// WithPrincipal stores p on ctx for downstream handlers.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom retrieves the Principal stored by the bearer gate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// KeyVerifier resolves a bearer API-key plaintext to a Principal, or
// reports that none matched.
type KeyVerifier interface {
	VerifyAPIKey(ctx context.Context, plaintext string) (Principal, string, bool, error)
}

// Gate implements the unified bearer gate from spec §4.6: it accepts
// "Authorization: Bearer <tok>", routes rmp_-prefixed tokens to API-key
// verification and everything else to session-token verification, and
// exposes a small public-path allowlist.
type Gate struct {
	sessions *SessionSigner
	keys     KeyVerifier
	public   map[string]struct{}
}

func NewGate(sessions *SessionSigner, keys KeyVerifier, publicPaths []string) *Gate {
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}
	return &Gate{sessions: sessions, keys: keys, public: public}
}

func (g *Gate) isPublic(path string) bool {
	if _, ok := g.public[path]; ok {
		return true
	}
	return false
}

// Authenticate extracts and validates the bearer token for r, returning
// the resolved Principal. The boolean public=true signals the caller may
// skip authentication entirely (path is on the allowlist).
func (g *Gate) Authenticate(r *http.Request) (principal Principal, public bool, err error) {
	if g.isPublic(r.URL.Path) {
		return Principal{}, true, nil
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return Principal{}, false, ErrMalformedBearer
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Principal{}, false, ErrMalformedBearer
	}

	tok := strings.TrimSpace(parts[1])
	if len(tok) < 10 {
		return Principal{}, false, ErrMalformedBearer
	}
	if !LooksLikeAPIKey(tok) && !strings.Contains(tok, ".") {
		return Principal{}, false, ErrMalformedBearer
	}

	if LooksLikeAPIKey(tok) {
		p, keyID, ok, verr := g.keys.VerifyAPIKey(r.Context(), tok)
		if verr != nil || !ok {
			return Principal{}, false, ErrMalformedBearer
		}
		p.APIKeyID = keyID
		return p, false, nil
	}

	claims, verr := g.sessions.Verify(tok)
	if verr != nil {
		return Principal{}, false, ErrMalformedBearer
	}
	return Principal{UserID: claims.Subject, Email: claims.Email}, false, nil
}
