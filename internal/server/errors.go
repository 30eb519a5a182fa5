package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/qkrun/internal/observability"
	"github.com/vyrodovalexey/qkrun/internal/rules"
	"github.com/vyrodovalexey/qkrun/internal/store"
)

// statusForError maps an error to the HTTP status it is answered with.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, rules.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError answers with the status for err. notFound is the message
// used for 404s; server-side failures get a generic message and an error log.
func (s *Server) abortWithError(c *gin.Context, err error, notFound string) {
	status := statusForError(err)
	_ = c.Error(err)

	message := notFound
	switch {
	case status == http.StatusServiceUnavailable:
		message = "Configuration store is unavailable"
	case status >= http.StatusInternalServerError:
		message = "An unexpected error occurred"
	case status == http.StatusBadRequest:
		message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithContext(c.Request.Context()).Error("request failed",
			observability.String("path", c.FullPath()),
			observability.Int("status", status),
			observability.Error(err),
		)
	}

	abortWithStatus(c, status, message)
}

func abortWithStatus(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   http.StatusText(status),
		"message": message,
	})
}
