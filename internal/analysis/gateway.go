// Package analysis submits variant files to the backend and turns the answers
// into risk results.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pharmaguard-wizard/internal/catalog"
	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/pkg/backend"
)

// DefaultTimeout bounds a whole batch when none is configured
const DefaultTimeout = 120 * time.Second

var (
	ErrFileRequired  = domain.NewValidationError("file", "File is required", nil)
	ErrDrugsRequired = domain.NewValidationError("drugs", "At least one drug is required", nil)
)

// Backend is the part of the backend client the gateway needs
type Backend interface {
	Analyze(ctx context.Context, req backend.AnalyzeRequest) (*domain.AnalysisResponse, error)
}

// BatchError is the single error reported when any request in a batch fails
type BatchError struct {
	Drug domain.Drug
	Err  error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("Failed to analyze VCF: %s", e.Err.Error())
}

func (e *BatchError) Unwrap() error { return e.Err }

// Gateway fans a file out to one backend request per drug. It keeps no state
// between calls.
type Gateway struct {
	backend          Backend
	catalog          *catalog.Catalog
	timeout          time.Duration
	maxConcurrency   int
	defaultPatientID string
	logger           *logrus.Logger
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithTimeout sets the deadline applied to a whole batch
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxConcurrency caps in-flight requests. Zero means one per drug.
func WithMaxConcurrency(n int) GatewayOption {
	return func(g *Gateway) {
		g.maxConcurrency = n
	}
}

// WithDefaultPatientID sets the id sent when the caller has none
func WithDefaultPatientID(id string) GatewayOption {
	return func(g *Gateway) {
		if id != "" {
			g.defaultPatientID = id
		}
	}
}

// WithLogger sets the gateway logger
func WithLogger(logger *logrus.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// NewGateway creates a gateway over the given backend and catalog
func NewGateway(b Backend, cat *catalog.Catalog, opts ...GatewayOption) *Gateway {
	if cat == nil {
		cat = catalog.Default()
	}
	g := &Gateway{
		backend:          b,
		catalog:          cat,
		timeout:          DefaultTimeout,
		defaultPatientID: backend.DefaultPatientID,
		logger:           logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGatewayFromConfig wires a gateway from backend configuration
func NewGatewayFromConfig(b Backend, cat *catalog.Catalog, config domain.BackendConfig, logger *logrus.Logger) *Gateway {
	return NewGateway(b, cat,
		WithTimeout(config.Timeout),
		WithMaxConcurrency(config.MaxConcurrency),
		WithDefaultPatientID(config.DefaultPatientID),
		WithLogger(logger),
	)
}

// Analyze submits file once per drug and returns the normalized results in
// the order of drugs. If any request fails the whole batch fails and no
// results are returned.
func (g *Gateway) Analyze(ctx context.Context, file *domain.VariantFile, drugs []domain.Drug, patientID string) ([]domain.RiskResult, error) {
	if file == nil {
		return nil, ErrFileRequired
	}
	if len(drugs) == 0 {
		return nil, ErrDrugsRequired
	}
	for _, d := range drugs {
		if !g.catalog.Contains(d) {
			return nil, domain.NewValidationError("drugs", fmt.Sprintf("unsupported drug %q", d), d)
		}
	}
	if patientID == "" {
		patientID = g.defaultPatientID
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	results := make([]domain.RiskResult, len(drugs))

	eg, gctx := errgroup.WithContext(ctx)
	if g.maxConcurrency > 0 {
		eg.SetLimit(g.maxConcurrency)
	}

	for i := range drugs {
		drug := drugs[i]
		eg.Go(func() error {
			if gctx.Err() != nil {
				return &BatchError{Drug: drug, Err: gctx.Err()}
			}
			resp, err := g.backend.Analyze(gctx, backend.AnalyzeRequest{
				FileName:  file.Name,
				Content:   file.Content,
				Drug:      drug,
				PatientID: patientID,
			})
			if err != nil {
				return &BatchError{Drug: drug, Err: err}
			}
			results[i] = Normalize(drug, resp, g.catalog)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		g.logger.WithFields(logrus.Fields{
			"file":     file.Name,
			"drugs":    len(drugs),
			"duration": time.Since(start).String(),
		}).WithError(err).Warn("Analysis batch failed")
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"file":     file.Name,
		"drugs":    len(drugs),
		"duration": time.Since(start).String(),
	}).Info("Analysis batch completed")
	return results, nil
}
