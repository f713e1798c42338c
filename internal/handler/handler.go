package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/middleware"
	"github.com/jwalitptl/telemed-api/internal/model"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

var errNoActor = errors.New("no authenticated actor")

// Actor returns the authenticated caller or an Unauthenticated error.
func Actor(c *gin.Context) (model.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return model.Actor{}, apperrors.Unauthenticated(errNoActor)
	}
	return actor, nil
}

// UUIDParam parses a path parameter as a UUID.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid %s", name)
	}
	return id, nil
}

// UUIDQuery parses a required query parameter as a UUID.
func UUIDQuery(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return uuid.Nil, apperrors.Validation("%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid %s", name)
	}
	return id, nil
}

// OptionalUUIDQuery parses a query parameter that may be absent.
func OptionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, error) {
	if c.Query(name) == "" {
		return nil, nil
	}
	id, err := UUIDQuery(c, name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// BindJSON decodes the body into obj. An empty body is accepted when optional is set,
// leaving obj at its zero value.
func BindJSON(c *gin.Context, obj interface{}, optional bool) error {
	if optional && c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return bindError(err)
	}
	return nil
}

// BindQuery decodes query parameters into obj.
func BindQuery(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindQuery(obj); err != nil {
		return bindError(err)
	}
	return nil
}

func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.TooLarge(tooLarge.Limit)
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return apperrors.Validation("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return apperrors.Validation("%s failed %s", fe.Field(), fe.Tag())
	}
	return apperrors.Validation("malformed request body")
}
