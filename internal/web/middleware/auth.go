package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/geoatlas/internal/config"
	"github.com/JonMunkholm/geoatlas/internal/core"
	"github.com/JonMunkholm/geoatlas/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token payload. The subject names the principal.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

var (
	errMissingToken = errors.New("missing bearer token")
	errNoPrincipal  = errors.New("token names no principal")
)

type principalKey struct{}

// PrincipalFrom returns the principal authenticated for the request.
func PrincipalFrom(ctx context.Context) (core.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(core.Principal)
	return p, ok
}

// WithPrincipal attaches p to ctx for handlers and request logging.
func WithPrincipal(ctx context.Context, p core.Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, p)
	return logging.ContextWithPrincipal(ctx, p.Name, p.Role)
}

// JWTAuth returns middleware that validates HS256 bearer tokens and records
// the caller principal in the request context.
//
// A request without a token passes through anonymously unless RequireAuth
// is set; core operations then reject writes for a missing principal.
// A token that is present but invalid is always rejected.
func JWTAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authenticate(r, cfg)
			switch {
			case errors.Is(err, errMissingToken) && !cfg.RequireAuth:
				next.ServeHTTP(w, r)
				return
			case errors.Is(err, errMissingToken):
				slog.Warn("auth: missing bearer token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				http.Error(w, `{"error":"missing bearer token","code":"AUTH001"}`, http.StatusUnauthorized)
				return
			case err != nil:
				slog.Warn("auth: invalid bearer token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				http.Error(w, `{"error":"invalid bearer token","code":"AUTH001"}`, http.StatusUnauthorized)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			publishContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg *config.SecurityConfig) (core.Principal, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return core.Principal{}, errMissingToken
	}
	if cfg.JWTSecret == "" {
		return core.Principal{}, errors.New("token verification is not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return core.Principal{}, err
	}

	name := claims.Subject
	if name == "" {
		name = claims.Name
	}
	if name == "" {
		return core.Principal{}, errNoPrincipal
	}
	return core.Principal{Name: name, Role: claims.Role}, nil
}

// SignToken issues an HS256 token for p. Used by atlasctl and tests.
func SignToken(secret, issuer string, p core.Principal) (string, error) {
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: p.Name,
			Issuer:  issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
