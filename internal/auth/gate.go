package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// TokenCookie is the cookie carrying the login token.
const TokenCookie = "token"

type contextKey string

// UserClaimsKey is the context key for user claims.
const UserClaimsKey = contextKey("userClaims")

// ClaimsFromContext returns the claims stored by Gate, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*Claims)
	return claims, ok
}

// PathRules selects the request paths that require a logged-in user.
// Patterns use "/" separated segments where "**" matches any remainder,
// "*" matches one segment and "{name:regex}" matches one segment against regex.
type PathRules struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewPathRules compiles include and exclude patterns.
func NewPathRules(include, exclude []string) (*PathRules, error) {
	r := &PathRules{}
	for _, p := range include {
		re, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		r.include = append(r.include, re)
	}
	for _, p := range exclude {
		re, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		r.exclude = append(r.exclude, re)
	}
	return r, nil
}

// DefaultRules protects the board, user and reply resources while leaving
// board detail pages public.
func DefaultRules() *PathRules {
	r, err := NewPathRules(
		[]string{"/board/**", "/user/**", "/reply/**"},
		[]string{`/board/{id:\d+}`},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Protected reports whether path requires authentication.
func (r *PathRules) Protected(path string) bool {
	for _, re := range r.exclude {
		if re.MatchString(path) {
			return false
		}
	}
	for _, re := range r.include {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, seg := range strings.Split(strings.Trim(pattern, "/"), "/") {
		switch {
		case seg == "**":
			b.WriteString("(?:/.*)?")
		case seg == "*":
			b.WriteString("/[^/]+")
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			inner := seg[1 : len(seg)-1]
			if i := strings.Index(inner, ":"); i >= 0 {
				b.WriteString("/(?:" + inner[i+1:] + ")")
			} else {
				b.WriteString("/[^/]+")
			}
		default:
			b.WriteString("/" + regexp.QuoteMeta(seg))
		}
	}
	b.WriteString("/?$")
	return regexp.Compile(b.String())
}

// Gate creates a middleware that rejects unauthenticated requests to
// protected paths and passes the token claims down via the context.
func Gate(tokens *TokenManager, rules *PathRules) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rules.Protected(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr := tokenFromRequest(r)
			if tokenStr == "" {
				unauthorized(w, "login required")
				return
			}

			claims, err := tokens.ValidateJWT(tokenStr)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected auth token")
				unauthorized(w, "invalid auth token")
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tokenFromRequest reads the Authorization bearer token, falling back to the cookie.
func tokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if tok, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
