package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/history"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 100
)

func (s *Server) requireHistory(c *gin.Context) {
	if s.history == nil {
		s.abortWithError(c, http.StatusServiceUnavailable, domain.ErrStorage, errors.New("report history is disabled"))
		return
	}
	c.Next()
}

func (s *Server) handleListReports(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultReportLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if limit <= 0 || limit > maxReportLimit {
		limit = defaultReportLimit
	}
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	reports, err := s.history.List(ctx, limit, offset)
	if err != nil {
		s.abortWithError(c, http.StatusInternalServerError, domain.ErrStorage, err)
		return
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		s.abortWithError(c, http.StatusInternalServerError, domain.ErrStorage, err)
		return
	}

	if reports == nil {
		reports = []*history.Report{}
	}
	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) handleExportReports(c *gin.Context) {
	filename := fmt.Sprintf("pharmaguard-reports-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := s.history.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		// Headers are gone; the truncated body is all we can signal
		s.logger.WithError(err).Error("failed to export reports")
	}
}

func (s *Server) handleGetReport(c *gin.Context) {
	report, err := s.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleDeleteReport(c *gin.Context) {
	if err := s.history.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(key, key+" must be an integer", raw)
	}
	return n, nil
}
