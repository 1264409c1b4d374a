// Package session keeps the live wizards served over HTTP. Sessions are
// bounded in number and expire after a period of inactivity.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-wizard/internal/catalog"
	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/events"
	"github.com/pharmaguard-wizard/internal/history"
	"github.com/pharmaguard-wizard/internal/wizard"
)

// ErrNotFound is returned for unknown or expired session ids
var ErrNotFound = errors.New("session not found")

const (
	DefaultMaxSessions = 1000
	DefaultTTL         = time.Hour
)

// Session is one wizard instance
type Session struct {
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"created_at"`
	Controller *wizard.Controller `json:"-"`
}

// Manager creates and tracks sessions
type Manager struct {
	cache    *expirable.LRU[string, *Session]
	analyzer domain.Analyzer
	catalog  *catalog.Catalog
	hub      *events.Hub
	store    history.Store
	logger   logrus.FieldLogger
}

// Option configures a Manager
type Option func(*Manager)

// WithHub publishes every state change of every session to hub
func WithHub(hub *events.Hub) Option {
	return func(m *Manager) {
		m.hub = hub
	}
}

// WithHistory saves every completed analysis to store
func WithHistory(store history.Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithLogger sets the manager logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager. Zero limits fall back to the defaults.
func NewManager(analyzer domain.Analyzer, cat *catalog.Catalog, config domain.SessionConfig, opts ...Option) *Manager {
	if cat == nil {
		cat = catalog.Default()
	}
	m := &Manager{
		analyzer: analyzer,
		catalog:  cat,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	size := config.MaxSessions
	if size <= 0 {
		size = DefaultMaxSessions
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.cache = expirable.NewLRU[string, *Session](size, m.onEvict, ttl)
	return m
}

func (m *Manager) onEvict(id string, _ *Session) {
	m.logger.WithField("session_id", id).Debug("Session closed")
	if m.hub != nil {
		m.hub.CloseTopic(id)
	}
}

// Create starts a new wizard session
func (m *Manager) Create() *Session {
	id := uuid.New().String()
	log := m.logger.WithField("session_id", id)

	opts := []wizard.Option{wizard.WithLogger(log)}
	if m.hub != nil {
		opts = append(opts, wizard.WithChangeListener(m.publisher(id)))
	}
	if m.store != nil {
		opts = append(opts, wizard.WithCompletionHook(m.recorder(log)))
	}

	s := &Session{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		Controller: wizard.NewController(m.analyzer, m.catalog, opts...),
	}
	m.cache.Add(id, s)
	log.Info("Session created")
	return s
}

// Get returns a live session and refreshes its expiry
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	m.cache.Add(id, s)
	return s, nil
}

// Delete ends a session and disconnects its event subscribers
func (m *Manager) Delete(id string) error {
	if !m.cache.Remove(id) {
		return ErrNotFound
	}
	return nil
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	return m.cache.Len()
}

// Purge ends every session
func (m *Manager) Purge() {
	m.cache.Purge()
}

func (m *Manager) publisher(id string) wizard.ChangeFunc {
	return func(st wizard.State) {
		ev, err := events.NewEvent(events.TypeState, id, st.Version, st)
		if err != nil {
			m.logger.WithError(err).Error("failed to encode state event")
			return
		}
		m.hub.Broadcast(id, ev)
	}
}

func (m *Manager) recorder(log logrus.FieldLogger) wizard.CompleteFunc {
	return func(ctx context.Context, c wizard.Completion) {
		report := history.NewReport(c.PatientID, c.FileName, c.Drugs, c.Results)
		// The request that ran the analysis may already be finished
		if err := m.store.Save(context.WithoutCancel(ctx), report); err != nil {
			log.WithError(err).Error("failed to save report")
			return
		}
		log.WithField("report_id", report.ReportID).Info("Report saved")
	}
}
