package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tempohq/tempo"
)

// statusFor maps tempo sentinel errors to HTTP status codes. A cancel of a
// job that is no longer pending reads as not found.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tempo.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, tempo.ErrJobNotFound), errors.Is(err, tempo.ErrInvalidState):
		return http.StatusNotFound
	case errors.Is(err, tempo.ErrStoreUnavailable), errors.Is(err, tempo.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}
