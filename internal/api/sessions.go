package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/events"
	"github.com/pharmaguard-wizard/internal/session"
	"github.com/pharmaguard-wizard/internal/upload"
	"github.com/pharmaguard-wizard/internal/wizard"
)

const sessionKey = "session"

// SessionResponse wraps a wizard snapshot. Error is set when the action failed.
type SessionResponse struct {
	SessionID string             `json:"session_id"`
	State     wizard.State       `json:"state"`
	Row       *wizard.VariantRow `json:"row,omitempty"`
	Error     *domain.APIError   `json:"error,omitempty"`
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type drugsRequest struct {
	Drugs []string `json:"drugs"`
}

type patientRequest struct {
	PatientID string `json:"patient_id"`
}

// loadSession resolves :id and aborts with 404 for unknown sessions
func (s *Server) loadSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

// respondState answers with the session snapshot, adding the classified
// error when err is non-nil
func (s *Server) respondState(c *gin.Context, err error) {
	s.respondStateWithRow(c, nil, err)
}

func (s *Server) respondStateWithRow(c *gin.Context, row *wizard.VariantRow, err error) {
	sess := currentSession(c)
	resp := SessionResponse{SessionID: sess.ID, State: sess.Controller.Snapshot(), Row: row}
	if err == nil {
		c.JSON(http.StatusOK, resp)
		return
	}
	status, code := classify(err)
	resp.Error = s.apiError(c, code, messageFor(err), "")
	c.JSON(status, resp)
}

func (s *Server) handleCreateSession(c *gin.Context) {
	sess := s.sessions.Create()
	c.Set(sessionKey, sess)
	resp := SessionResponse{SessionID: sess.ID, State: sess.Controller.Snapshot()}
	c.Header("Location", "/api/v1/sessions/"+sess.ID)
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleGetSession(c *gin.Context) {
	s.respondState(c, nil)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.sessions.Delete(currentSession(c).ID); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSessionEvents(c *gin.Context) {
	sess := currentSession(c)
	st := sess.Controller.Snapshot()
	initial, err := events.NewEvent(events.TypeState, sess.ID, st.Version, st)
	if err != nil {
		s.respondError(c, err)
		return
	}
	// The upgrader has already written an error response on failure
	if err := s.events.Serve(c.Writer, c.Request, sess.ID, &initial); err != nil {
		s.logger.WithError(err).Debug("websocket upgrade failed")
	}
}

// Input step

func (s *Server) handleSetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, http.StatusBadRequest, domain.ErrInvalidInput, err)
		return
	}
	mode, err := domain.ParseInputMode(req.Mode)
	if err != nil {
		s.respondState(c, err)
		return
	}
	s.respondState(c, currentSession(c).Controller.SetMode(mode))
}

func (s *Server) handleSelectFile(c *gin.Context) {
	ctrl := currentSession(c).Controller
	maxBody := s.configManager.GetServerConfig().MaxUploadBytes + uploadOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondState(c, upload.ErrFileTooLarge)
			return
		}
		s.respondState(c, ctrl.SelectFile(nil))
		return
	}

	file, err := upload.FromMultipart(header)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			// Let the wizard record the rejection the same way as a local pick
			s.respondState(c, ctrl.SelectFile(&domain.VariantFile{Name: header.Filename, Size: header.Size}))
			return
		}
		s.respondState(c, err)
		return
	}
	s.respondState(c, ctrl.SelectFile(file))
}

func (s *Server) handleClearFile(c *gin.Context) {
	s.respondState(c, currentSession(c).Controller.ClearFile())
}

func (s *Server) handleAddVariantRow(c *gin.Context) {
	row, err := currentSession(c).Controller.AddVariantRow()
	if err != nil {
		s.respondState(c, err)
		return
	}
	s.respondStateWithRow(c, &row, nil)
}

func (s *Server) handleUpdateVariantRow(c *gin.Context) {
	id, ok := s.rowID(c)
	if !ok {
		return
	}
	var in wizard.VariantRowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.abortWithError(c, http.StatusBadRequest, domain.ErrInvalidInput, err)
		return
	}
	s.respondState(c, currentSession(c).Controller.UpdateVariantRow(id, in))
}

func (s *Server) handleRemoveVariantRow(c *gin.Context) {
	id, ok := s.rowID(c)
	if !ok {
		return
	}
	s.respondState(c, currentSession(c).Controller.RemoveVariantRow(id))
}

func (s *Server) rowID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("row"))
	if err != nil {
		s.abortWithError(c, http.StatusBadRequest, domain.ErrInvalidInput,
			domain.NewValidationError("row", "row must be an integer", c.Param("row")))
		return 0, false
	}
	return id, true
}

func (s *Server) handleSetPatient(c *gin.Context) {
	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, http.StatusBadRequest, domain.ErrInvalidInput, err)
		return
	}
	s.respondState(c, currentSession(c).Controller.SetPatientID(req.PatientID))
}

func (s *Server) handleSubmit(c *gin.Context) {
	s.respondState(c, currentSession(c).Controller.Submit())
}

func (s *Server) handleFinishTransition(c *gin.Context) {
	s.respondState(c, currentSession(c).Controller.FinishTransition())
}

// Drug selection step

func (s *Server) handleSetDrugs(c *gin.Context) {
	var req drugsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, http.StatusBadRequest, domain.ErrInvalidInput, err)
		return
	}
	drugs := make([]domain.Drug, 0, len(req.Drugs))
	for _, name := range req.Drugs {
		d, err := domain.ParseDrug(name)
		if err != nil {
			s.respondState(c, err)
			return
		}
		drugs = append(drugs, d)
	}
	s.respondState(c, currentSession(c).Controller.SetDrugs(drugs))
}

func (s *Server) handleToggleDrug(c *gin.Context) {
	d, err := domain.ParseDrug(c.Param("drug"))
	if err != nil {
		s.respondState(c, err)
		return
	}
	s.respondState(c, currentSession(c).Controller.ToggleDrug(d))
}

func (s *Server) handleChangeFile(c *gin.Context) {
	s.respondState(c, currentSession(c).Controller.ChangeFile())
}

// handleAnalyze runs the batch. A backend failure is reported as 422 with
// the wizard's own error message; the session stays usable.
func (s *Server) handleAnalyze(c *gin.Context) {
	err := currentSession(c).Controller.Analyze(c.Request.Context())
	if err == nil {
		s.respondState(c, nil)
		return
	}
	if status, _ := classify(err); status == http.StatusBadRequest || status == http.StatusConflict {
		s.respondState(c, err)
		return
	}

	sess := currentSession(c)
	st := sess.Controller.Snapshot()
	c.JSON(http.StatusUnprocessableEntity, SessionResponse{
		SessionID: sess.ID,
		State:     st,
		Error:     s.apiError(c, domain.ErrAnalysisFailed, st.Error, err.Error()),
	})
}

// Results step

func (s *Server) handleChangeDrugs(c *gin.Context) {
	s.respondState(c, currentSession(c).Controller.ChangeDrugSelection())
}

func (s *Server) handleRestart(c *gin.Context) {
	s.respondState(c, currentSession(c).Controller.StartNewAnalysis())
}
