package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Page describes the window of a list response.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// ListResponse wraps list data
type ListResponse struct {
	Items interface{} `json:"items"`
	Page  Page        `json:"page"`
}

// RespondWithSuccess sends a 200 success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Status: StatusSuccess, Data: data})
}

// RespondWithCreated sends a 201 success response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Status: StatusSuccess, Data: data})
}

// RespondWithList sends a list with its paging window
func RespondWithList(c *gin.Context, items interface{}, count, limit, offset int) {
	RespondWithSuccess(c, ListResponse{
		Items: items,
		Page:  Page{Limit: limit, Offset: offset, Count: count},
	})
}

// RespondWithError maps err to its status and code. Errors outside the taxonomy are
// logged and reported as INTERNAL without detail.
func RespondWithError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	c.JSON(status, body)
}

// AbortWithError is RespondWithError for middleware.
func AbortWithError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}

func errorBody(c *gin.Context, err error) (int, Response) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("request failed")
	}

	return status, Response{
		Status:  StatusError,
		Code:    appErr.Slug(),
		Message: appErr.Message,
	}
}
