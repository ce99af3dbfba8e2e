package server

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"teamboard/internal/domain"
)

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	Logger    *logrus.Logger
}

func (c AuthConfig) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

type identityKey struct{}

func withIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

func callerFromContext(ctx context.Context) (domain.Identity, error) {
	if id, ok := identityFromContext(ctx); ok && id.ID != "" {
		return id, nil
	}
	return domain.Identity{}, newAPIError(http.StatusUnauthorized, "authentication required")
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// MintToken issues a signed bearer token for a user.
func MintToken(cfg AuthConfig, u domain.User) (string, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: u.Username,
		Email:    u.Email,
		Role:     string(u.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func authenticateJWT(token, secret string) (domain.Identity, error) {
	if strings.TrimSpace(secret) == "" {
		return domain.Identity{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return domain.Identity{}, err
	}
	if !parsed.Valid {
		return domain.Identity{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return domain.Identity{}, errors.New("subject claim required")
	}
	role := domain.Role(claims.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.Identity{
		ID:       claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     role,
	}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves the caller before any handler runs. A
// missing credential is 401; a credential that fails to parse or
// verify is 400. Health and the register/login endpoints stay open.
func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "users/register"): true,
		path.Join(basePath, "users/login"):    true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			header := strings.TrimSpace(req.Header.Get("Authorization"))
			if header == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "authentication required"))
				return
			}
			token, ok := bearerToken(header)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusBadRequest, "malformed authorization header"))
				return
			}
			id, err := authenticateJWT(token, cfg.JWTSecret)
			if err != nil {
				cfg.logger().WithError(err).Debug("token rejected")
				respondStatusError(w, newAPIError(http.StatusBadRequest, "invalid token"))
				return
			}
			next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), id)))
		})
	}
}
