package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"

	"github.com/pharmaguard-wizard/internal/catalog"
	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/upload"
	"github.com/pharmaguard-wizard/pkg/backend"
)

// DrugView is a catalog entry as served to clients
type DrugView struct {
	catalog.Entry
	Gene string `json:"gene"`
}

func (s *Server) handleListDrugs(c *gin.Context) {
	entries := s.catalog.Entries()
	out := make([]DrugView, 0, len(entries))
	for _, e := range entries {
		out = append(out, DrugView{Entry: e, Gene: e.Gene()})
	}
	c.JSON(http.StatusOK, gin.H{"drugs": out})
}

// handleInspect forwards a file to the backend's diagnostic parser without
// touching any session
func (s *Server) handleInspect(c *gin.Context) {
	if s.backend == nil {
		s.abortWithError(c, http.StatusServiceUnavailable, domain.ErrBackend, errors.New("backend is not configured"))
		return
	}
	maxBody := s.configManager.GetServerConfig().MaxUploadBytes + uploadOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)

	header, err := c.FormFile("file")
	if err != nil {
		s.respondError(c, upload.ErrFileRequired)
		return
	}
	file, err := upload.FromMultipart(header)
	if err != nil {
		s.respondError(c, err)
		return
	}

	inspection, err := s.backend.InspectVCF(c.Request.Context(), file.Name, file.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inspection)
}

func (s *Server) handleBackendHealth(c *gin.Context) {
	if s.backend == nil {
		s.abortWithError(c, http.StatusServiceUnavailable, domain.ErrBackend, errors.New("backend is not configured"))
		return
	}

	payload, err := s.backend.Health(c.Request.Context())
	resp := gin.H{"base_url": s.backend.BaseURL()}
	if breaker, ok := s.backend.(interface{ BreakerState() gobreaker.State }); ok {
		resp["breaker"] = breaker.BreakerState().String()
	}
	if err != nil {
		resp["status"] = "unavailable"
		resp["error"] = s.apiError(c, domain.ErrBackend, err.Error(), "")
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp["status"] = "available"
	resp["backend"] = payload
	c.JSON(http.StatusOK, resp)
}

var _ Backend = (*backend.Client)(nil)
