// Package auth resolves request credentials into an Actor and guards routes
// by role. The workflow core treats actor identities as opaque tokens; this
// package is where they stop being opaque.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Roles recognized by route guards.
const (
	RoleAdmin     = "admin"
	RoleLabStaff  = "lab_staff"
	RolePhysician = "physician"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	ID    uuid.UUID
	Name  string
	Roles []string
}

// HasRole reports whether the actor carries any of the given roles. Admin
// passes every check.
func (a Actor) HasRole(roles ...string) bool {
	for _, have := range a.Roles {
		if have == RoleAdmin {
			return true
		}
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

type actorKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext retrieves the request actor; ok is false on
// unauthenticated contexts.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Claims are the JWT claims issued for pipeline users.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// JWTConfig configures bearer-token validation.
type JWTConfig struct {
	Issuer     string
	SigningKey []byte
}

// JWTMiddleware validates HMAC-signed bearer tokens and stores the resolved
// Actor on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			id, err := uuid.Parse(claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
			}

			actor := Actor{ID: id, Name: claims.Name, Roles: claims.Roles}
			c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), actor)))
			return next(c)
		}
	}
}

// DevAuthMiddleware grants unauthenticated requests a fixed admin actor.
// Development only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	devActor := Actor{
		ID:    uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		Name:  "dev-admin",
		Roles: []string{RoleAdmin},
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := ActorFromContext(c.Request().Context()); !ok {
				c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), devActor)))
			}
			return next(c)
		}
	}
}

// RequireRole returns middleware that rejects actors lacking all of the
// given roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			if !actor.HasRole(roles...) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}

// Identity is what the actor directory knows about a principal, used for
// audit entries.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Roles []string  `json:"roles"`
}

// ErrUnknownIdentity is returned by a directory that has no record of the
// given identifier.
var ErrUnknownIdentity = errors.New("identity not known to directory")

// ActorDirectory resolves opaque actor and doctor identifiers to identities.
type ActorDirectory interface {
	Resolve(ctx context.Context, id uuid.UUID) (*Identity, error)
}
