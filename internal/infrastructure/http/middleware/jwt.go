package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"3tcapital/otrs_connector/internal/infrastructure/config"
	httperrors "3tcapital/otrs_connector/internal/infrastructure/http"
)

// ContextKeyToken exposes the verified JWT token via request context.
type ContextKeyToken struct{}

var allowedSigningMethods = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodRS384.Alg(),
	jwt.SigningMethodRS512.Alg(),
	jwt.SigningMethodPS256.Alg(),
	jwt.SigningMethodES256.Alg(),
}

// JWTAuthenticator validates Authorization headers against a remote JWKS.
type JWTAuthenticator struct {
	cfg        config.AuthSettings
	log        *slog.Logger
	jwks       keyfunc.Keyfunc
	cancel     context.CancelFunc
	bypassPath map[string]struct{}
}

func NewJWTAuthenticator(cfg config.AuthSettings, log *slog.Logger) (*JWTAuthenticator, error) {
	if !cfg.Enabled {
		return newAuthenticator(cfg, log, nil), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	override := keyfunc.Override{
		RefreshInterval: 6 * time.Hour,
		RefreshErrorHandlerFunc: func(url string) func(context.Context, error) {
			return func(c context.Context, err error) {
				log.Error("failed to refresh JWKS", "url", url, "error", err)
			}
		},
		HTTPTimeout: 10 * time.Second,
	}

	jwks, err := keyfunc.NewDefaultOverrideCtx(ctx, []string{cfg.JWKSetURI}, override)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("unable to load JWKS: %w", err)
	}

	auth := newAuthenticator(cfg, log, jwks)
	auth.cancel = cancel
	return auth, nil
}

func newAuthenticator(cfg config.AuthSettings, log *slog.Logger, jwks keyfunc.Keyfunc) *JWTAuthenticator {
	auth := &JWTAuthenticator{
		cfg:        cfg,
		log:        log,
		jwks:       jwks,
		bypassPath: make(map[string]struct{}),
	}
	for _, path := range cfg.BypassPaths {
		if path != "" {
			auth.bypassPath[path] = struct{}{}
		}
	}
	return auth
}

// Middleware enforces JWT validation on inbound requests.
func (a *JWTAuthenticator) Middleware(next http.Handler) http.Handler {
	if !a.cfg.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.shouldBypass(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := extractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			httperrors.WriteError(w, http.StatusUnauthorized, "Error de Autenticación", []string{"Credenciales de acceso no válidas"}, a.log)
			return
		}

		token, err := jwt.Parse(tokenString, a.jwks.Keyfunc,
			jwt.WithIssuer(a.cfg.IssuerURI),
			jwt.WithLeeway(a.cfg.ClockSkew),
			jwt.WithValidMethods(allowedSigningMethods),
		)
		if err != nil || !token.Valid {
			a.log.Warn("token validation failed", "error", err, "path", r.URL.Path)
			httperrors.WriteError(w, http.StatusUnauthorized, "Error de Autenticación", []string{"Token inválido o expirado"}, a.log)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyToken{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Subject returns the "sub" claim of the verified token in ctx, or "".
func Subject(ctx context.Context) string {
	token, ok := ctx.Value(ContextKeyToken{}).(*jwt.Token)
	if !ok || token == nil {
		return ""
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// Close stops background JWKS refreshers.
func (a *JWTAuthenticator) Close() {
	if a.cancel != nil {
		a.cancel()
	}
}

// shouldBypass matches configured paths exactly, or as a prefix when they end in "/".
func (a *JWTAuthenticator) shouldBypass(path string) bool {
	if _, ok := a.bypassPath[path]; ok {
		return true
	}
	for p := range a.bypassPath {
		if strings.HasSuffix(p, "/") && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid Authorization header format")
	}
	return parts[1], nil
}
