package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/history"
	"github.com/pharmaguard-wizard/internal/session"
	"github.com/pharmaguard-wizard/internal/wizard"
	"github.com/pharmaguard-wizard/pkg/backend"
)

// classify maps an error onto an HTTP status and error code
func classify(err error) (int, string) {
	var verr *domain.ValidationError
	var statusErr *backend.StatusError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, domain.ErrValidation
	case errors.Is(err, wizard.ErrInvalidTransition):
		return http.StatusConflict, domain.ErrInvalidTransition
	case errors.Is(err, wizard.ErrAnalysisInProgress):
		return http.StatusConflict, domain.ErrAnalysisInProgress
	case errors.Is(err, wizard.ErrRowNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound, domain.ErrNotFound
	case errors.Is(err, backend.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, domain.ErrBackend
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, domain.ErrBackend
	default:
		return http.StatusInternalServerError, domain.ErrInternalServer
	}
}

func (s *Server) apiError(c *gin.Context, code, message, details string) *domain.APIError {
	return domain.NewAPIError(code, message, details, c.GetString("correlation_id"))
}

// abortWithError writes a bare error response
func (s *Server) abortWithError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": s.apiError(c, code, messageFor(err), "")})
}

// respondError classifies err and writes a bare error response
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.WithError(err).WithField("correlation_id", c.GetString("correlation_id")).Error("Request failed")
	}
	s.abortWithError(c, status, code, err)
}

// messageFor prefers the user-facing message of a validation error
func messageFor(err error) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return err.Error()
}
