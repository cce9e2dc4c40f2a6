package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"runclub/observability/logging"
)

// ScopeKmWrite allows crediting KM tokens.
const ScopeKmWrite = "km:write"

const defaultTokenLeeway = 2 * time.Minute

// AuthConfig configures bearer token checks for oracle-only routes.
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

// OracleClaims are the claims carried by a distance oracle token. Scope is a
// space separated list.
type OracleClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Scopes splits the scope claim.
func (c *OracleClaims) Scopes() []string { return strings.Fields(c.Scope) }

type subjectKey struct{}

// Authenticator validates HMAC-signed JWTs issued to the distance oracle.
type Authenticator struct {
	enabled bool
	secret  []byte
	parser  *jwt.Parser
	logger  *slog.Logger
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	leeway := cfg.ClockSkew
	if leeway <= 0 {
		leeway = defaultTokenLeeway
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(leeway),
	}
	if iss := strings.TrimSpace(cfg.Issuer); iss != "" {
		opts = append(opts, jwt.WithIssuer(iss))
	}
	if aud := strings.TrimSpace(cfg.Audience); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	return &Authenticator{
		enabled: cfg.Enabled,
		secret:  []byte(strings.TrimSpace(cfg.HMACSecret)),
		parser:  jwt.NewParser(opts...),
		logger:  logger,
	}
}

// Middleware rejects requests without a valid bearer token carrying every
// required scope. A disabled authenticator lets everything through.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.enabled {
				next.ServeHTTP(w, r)
				return
			}
			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := a.verify(raw)
			if err != nil {
				a.logger.Warn("oracle token rejected",
					logging.MaskAuthorization(r.Header.Get("Authorization")),
					slog.String("error", err.Error()))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if !containsAll(claims.Scopes(), requiredScopes) {
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the oracle subject of an authenticated request.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey{}).(string)
	return subject
}

func (a *Authenticator) verify(raw string) (*OracleClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("oracle secret not configured")
	}
	claims := &OracleClaims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
