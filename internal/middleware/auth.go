package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/pkg/auth"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
	"github.com/jwalitptl/telemed-api/pkg/httputil"
)

const ContextActor = "actor"

var (
	errMissingAuthorization   = errors.New("missing authorization header")
	errMalformedAuthorization = errors.New("invalid authorization format")
)

// Authenticate verifies the bearer token and stores the caller as a model.Actor.
func Authenticate(jwtSvc auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.AbortWithError(c, apperrors.Unauthenticated(errMissingAuthorization))
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			httputil.AbortWithError(c, apperrors.Unauthenticated(errMalformedAuthorization))
			return
		}

		claims, err := jwtSvc.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			httputil.AbortWithError(c, apperrors.Unauthenticated(err))
			return
		}
		actor, err := claims.Actor()
		if err != nil {
			httputil.AbortWithError(c, apperrors.Unauthenticated(err))
			return
		}

		c.Set(ContextActor, actor)
		logger := zerolog.Ctx(c.Request.Context()).With().
			Str("actor_id", actor.ID.String()).
			Str("actor_role", string(actor.Role)).
			Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

// ActorFrom returns the authenticated caller. Handlers mounted behind Authenticate always have one.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			httputil.AbortWithError(c, apperrors.Unauthenticated(errMissingAuthorization))
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		httputil.AbortWithError(c, apperrors.Unauthorized("role %s may not access this resource", actor.Role))
	}
}
