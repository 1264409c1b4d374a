package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-wizard/internal/analysis"
	"github.com/pharmaguard-wizard/internal/catalog"
	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/events"
	"github.com/pharmaguard-wizard/internal/history"
	"github.com/pharmaguard-wizard/internal/session"
	"github.com/pharmaguard-wizard/internal/wizard"
	"github.com/pharmaguard-wizard/pkg/backend"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// staticConfig is a fixed ConfigManager
type staticConfig struct {
	config domain.Config
}

func (s *staticConfig) GetConfig() *domain.Config { return &s.config }
func (s *staticConfig) GetServerConfig() *domain.ServerConfig { return &s.config.Server }
func (s *staticConfig) GetBackendConfig() *domain.BackendConfig { return &s.config.Backend }
func (s *staticConfig) GetSessionConfig() *domain.SessionConfig { return &s.config.Session }
func (s *staticConfig) GetHistoryConfig() *domain.HistoryConfig { return &s.config.History }
func (s *staticConfig) Reload() error { return nil }
func (s *staticConfig) Validate() error { return nil }
func (s *staticConfig) IsProduction() bool { return false }
func (s *staticConfig) IsDevelopment() bool { return true }

// fakeBackend mimics the analysis service
type fakeBackend struct {
	failDrug atomic.Value // string
	down     atomic.Bool
}

func (f *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case "/test-vcf":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"detected_rsids": []map[string]interface{}{{"rsid": "rs4244285", "genotype": "0/1", "dp": 30}},
			})
		case "/analyze":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			drug := r.FormValue("drug")
			if fail, _ := f.failDrug.Load().(string); fail == drug {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"detail": "No pharmacogenomic variants found"})
				return
			}
			label := "Safe"
			if drug == "CODEINE" {
				label = "Toxic"
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"patient_id":      r.FormValue("patient_id"),
				"drug":            drug,
				"risk_assessment": map[string]interface{}{"risk_label": label, "confidence_score": 0.92},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

type testEnv struct {
	server  *Server
	backend *fakeBackend
	history history.Store
	hub     *events.Hub
}

func newTestEnv(t *testing.T, withHistory bool) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fb := &fakeBackend{}
	fb.failDrug.Store("")
	backendServer := httptest.NewServer(fb.handler())
	t.Cleanup(backendServer.Close)

	cfg := &staticConfig{config: domain.Config{
		Server: domain.ServerConfig{
			MaxUploadBytes: 50 * 1024 * 1024,
			WriteTimeout:   10 * time.Second,
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Backend: domain.BackendConfig{BaseURL: backendServer.URL, Timeout: 5 * time.Second},
		Logging: domain.LoggingConfig{Level: "info"},
	}}

	client := backend.NewClient(cfg.config.Backend, backend.WithLogger(logger))
	cat := catalog.Default()
	gateway := analysis.NewGatewayFromConfig(client, cat, cfg.config.Backend, logger)
	hub := events.NewHub(logger)

	var store history.Store
	opts := []session.Option{session.WithHub(hub), session.WithLogger(logger)}
	if withHistory {
		sqlite, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { sqlite.Close() })
		store = sqlite
		opts = append(opts, session.WithHistory(store))
	}

	sessions := session.NewManager(gateway, cat, domain.SessionConfig{}, opts...)
	srv := NewServer(cfg, Dependencies{
		Sessions: sessions,
		Catalog:  cat,
		Backend:  client,
		History:  store,
		Hub:      hub,
		Logger:   logger,
	})
	return &testEnv{server: srv, backend: fb, history: store, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, path, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	return decodeSession(t, w).SessionID
}

// toDrugSelection walks a session through the input step with a valid file
func (e *testEnv) toDrugSelection(t *testing.T, id string) {
	t.Helper()
	base := "/api/v1/sessions/" + id
	require.Equal(t, http.StatusOK, e.upload(t, base+"/file", "sample.vcf", []byte("##fileformat=VCFv4.2\n")).Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, base+"/submit", nil).Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, base+"/transition-complete", nil).Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestListDrugs(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/v1/drugs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Drugs []DrugView `json:"drugs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Drugs, 6)
	assert.Equal(t, domain.CODEINE, body.Drugs[0].Drug)
	assert.Equal(t, "CYP2D6", body.Drugs[0].Gene)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, true)
	id := env.createSession(t)
	base := "/api/v1/sessions/" + id

	w := env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeSession(t, w).State
	assert.Equal(t, wizard.StepInput, st.Step)
	assert.False(t, st.Step1Done)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, base+"/patient", map[string]string{"patient_id": "PATIENT_007"}).Code)
	env.toDrugSelection(t, id)

	w = env.do(t, http.MethodPut, base+"/drugs", map[string][]string{"drugs": {"warfarin", "CODEINE"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []domain.Drug{domain.WARFARIN, domain.CODEINE}, decodeSession(t, w).State.SelectedDrugs)

	w = env.do(t, http.MethodPost, base+"/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st = decodeSession(t, w).State
	assert.Equal(t, wizard.StepResults, st.Step)
	require.Len(t, st.Results, 2)
	assert.Equal(t, domain.WARFARIN, st.Results[0].Drug)
	assert.Equal(t, domain.SAFE, st.Results[0].RiskCategory)
	assert.Equal(t, domain.CODEINE, st.Results[1].Drug)
	assert.Equal(t, domain.TOXIC, st.Results[1].RiskCategory)
	assert.InDelta(t, 0.92, st.Results[0].Confidence, 1e-9)

	// the completed analysis is in the report history
	w = env.do(t, http.MethodGet, "/api/v1/reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Reports []history.Report `json:"reports"`
		Total   int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Reports, 1)
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, "PATIENT_007", list.Reports[0].PatientID)

	reportID := list.Reports[0].ReportID
	w = env.do(t, http.MethodGet, "/api/v1/reports/"+reportID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"highest":"toxic"`)

	w = env.do(t, http.MethodGet, "/api/v1/reports/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), reportID)

	// back to drug selection keeps the selection
	w = env.do(t, http.MethodPost, base+"/change-drugs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st = decodeSession(t, w).State
	assert.Equal(t, wizard.StepDrugSelection, st.Step)
	assert.Empty(t, st.Results)
	assert.Len(t, st.SelectedDrugs, 2)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/analyze", nil).Code)
	w = env.do(t, http.MethodPost, base+"/restart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st = decodeSession(t, w).State
	assert.Equal(t, wizard.StepInput, st.Step)
	assert.Empty(t, st.SelectedDrugs)
	assert.Nil(t, st.File)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/reports/"+reportID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/reports/"+reportID, nil).Code)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base, nil).Code)
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/does-not-exist/submit", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrNotFound)
}

func TestRejectedFile(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createSession(t)

	w := env.upload(t, "/api/v1/sessions/"+id+"/file", "notes.txt", []byte("hello"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeSession(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.ErrValidation, resp.Error.Code)
	assert.Equal(t, "Invalid file type. Please upload a .vcf or .vcf.gz file.", resp.State.Error)
	assert.Nil(t, resp.State.File)
}

func TestSubmitWithoutInput(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submit", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, wizard.MsgNeedInput, decodeSession(t, w).State.Error)
}

func TestInvalidTransition(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/analyze", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decodeSession(t, w)
	assert.Equal(t, domain.ErrInvalidTransition, resp.Error.Code)
	assert.Equal(t, wizard.StepInput, resp.State.Step)
}

func TestManualRows(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createSession(t)
	base := "/api/v1/sessions/" + id

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, base+"/mode", map[string]string{"mode": "manual"}).Code)

	w := env.do(t, http.MethodPost, base+"/variants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeSession(t, w)
	require.NotNil(t, resp.Row)
	assert.Equal(t, 2, resp.Row.ID)
	assert.Len(t, resp.State.ManualVariants, 2)

	w = env.do(t, http.MethodPatch, base+"/variants/1", wizard.VariantRowInput{ChromosomeOrGene: "CYP2C19", PositionOrDiplotype: "*2/*2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeSession(t, w).State.Step1Done)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, base+"/variants/99", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, base+"/variants/abc", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, base+"/variants/2", nil).Code)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, base+"/mode", map[string]string{"mode": "telepathy"}).Code)

	// manual input passes the gate but cannot be analysed
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/submit", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/transition-complete", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/drugs/clopidogrel/toggle", nil).Code)

	w = env.do(t, http.MethodPost, base+"/analyze", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, wizard.MsgManualNeedsVCF, decodeSession(t, w).State.Error)
}

func TestAnalyzeWithoutDrugs(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createSession(t)
	env.toDrugSelection(t, id)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/analyze", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, wizard.MsgSelectDrug, decodeSession(t, w).State.Error)
}

func TestUnsupportedDrug(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createSession(t)
	env.toDrugSelection(t, id)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/drugs/aspirin/toggle", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/drugs", map[string][]string{"drugs": {"WARFARIN", "ASPIRIN"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, decodeSession(t, w).State.SelectedDrugs)
}

func TestAnalysisFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.backend.failDrug.Store("CODEINE")
	id := env.createSession(t)
	base := "/api/v1/sessions/" + id
	env.toDrugSelection(t, id)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, base+"/drugs", map[string][]string{"drugs": {"WARFARIN", "CODEINE"}}).Code)

	w := env.do(t, http.MethodPost, base+"/analyze", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeSession(t, w)
	assert.Equal(t, domain.ErrAnalysisFailed, resp.Error.Code)
	assert.Equal(t, "Analysis failed: Failed to analyze VCF: No pharmacogenomic variants found", resp.State.Error)
	assert.Equal(t, wizard.StepDrugSelection, resp.State.Step)
	assert.Empty(t, resp.State.Results)
	assert.False(t, resp.State.Loading)

	// retry succeeds once the backend recovers
	env.backend.failDrug.Store("")
	w = env.do(t, http.MethodPost, base+"/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeSession(t, w).State.Error)
}

func TestChangeFileKeepsDrugs(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createSession(t)
	base := "/api/v1/sessions/" + id
	env.toDrugSelection(t, id)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/drugs/WARFARIN/toggle", nil).Code)
	w := env.do(t, http.MethodPost, base+"/change-file", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeSession(t, w).State
	assert.Equal(t, wizard.StepInput, st.Step)
	assert.Nil(t, st.File)
	assert.Equal(t, []domain.Drug{domain.WARFARIN}, st.SelectedDrugs)
}

func TestReportsDisabled(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/v1/reports", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrStorage)
}

func TestListReportsBadQuery(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/api/v1/reports?limit=lots", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/reports?limit=1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"limit":20`)
	assert.Contains(t, w.Body.String(), `"reports":[]`)
}

func TestInspect(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.upload(t, "/api/v1/inspect", "sample.vcf", []byte("##fileformat=VCFv4.2\n"))
	require.Equal(t, http.StatusOK, w.Code)

	var inspection backend.VCFInspection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inspection))
	require.Len(t, inspection.DetectedVariants, 1)
	assert.Equal(t, "rs4244285", inspection.DetectedVariants[0].RSID)
	assert.Equal(t, 30, inspection.DetectedVariants[0].Depth)

	w = env.upload(t, "/api/v1/inspect", "sample.bam", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBackendHealth(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/v1/backend/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"available"`)
	assert.Contains(t, w.Body.String(), `"breaker":"closed"`)

	env.backend.down.Store(true)
	w = env.do(t, http.MethodGet, "/api/v1/backend/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Backend is not available at")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSessionEventsStream(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createSession(t)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + id + "/events"
	conn, _, err := dialWS(url)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var initial events.Event
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, events.TypeState, initial.Type)

	require.Eventually(t, func() bool { return env.hub.TopicCount(id) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/sessions/%s/mode", id), map[string]string{"mode": "manual"}).Code)

	var next events.Event
	require.NoError(t, conn.ReadJSON(&next))
	var st wizard.State
	require.NoError(t, json.Unmarshal(next.Data, &st))
	assert.Equal(t, domain.MANUAL_ENTRY, st.Mode)
	assert.Greater(t, next.Version, initial.Version)
}

func dialWS(url string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(url, nil)
}
