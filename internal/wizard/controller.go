// Package wizard implements the step-by-step flow from variant input through
// drug selection to the risk report.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-wizard/internal/catalog"
	"github.com/pharmaguard-wizard/internal/domain"
	"github.com/pharmaguard-wizard/internal/upload"
)

var (
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrAnalysisInProgress = errors.New("analysis in progress")
	ErrRowNotFound        = errors.New("variant row not found")
)

// ChangeFunc observes every state change
type ChangeFunc func(State)

// CompleteFunc observes successful analyses
type CompleteFunc func(ctx context.Context, c Completion)

// Controller owns one wizard's state. All mutations are serialized; the
// backend call runs without holding the lock so observers can see loading.
type Controller struct {
	mu        sync.Mutex
	state     state
	nextRowID int
	version   uint64

	analyzer   domain.Analyzer
	catalog    *catalog.Catalog
	logger     logrus.FieldLogger
	onChange   []ChangeFunc
	onComplete []CompleteFunc
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithChangeListener registers fn for every state change
func WithChangeListener(fn ChangeFunc) Option {
	return func(c *Controller) {
		c.onChange = append(c.onChange, fn)
	}
}

// WithCompletionHook registers fn for every successful analysis
func WithCompletionHook(fn CompleteFunc) Option {
	return func(c *Controller) {
		c.onComplete = append(c.onComplete, fn)
	}
}

// NewController creates a wizard in its initial state
func NewController(analyzer domain.Analyzer, cat *catalog.Catalog, opts ...Option) *Controller {
	if cat == nil {
		cat = catalog.Default()
	}
	c := &Controller{
		state:     freshState(),
		nextRowID: 2,
		analyzer:  analyzer,
		catalog:   cat,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog returns the drug catalog the wizard offers
func (c *Controller) Catalog() *catalog.Catalog {
	return c.catalog
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.snapshot(c.version)
}

// Step1Done reports whether the input step has enough to continue
func (c *Controller) Step1Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.step1Done()
}

// CanAnalyze reports whether at least one drug is selected
func (c *Controller) CanAnalyze() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.canAnalyze()
}

// mutate runs fn under the lock and notifies observers when fn changed state.
// Any mutation is refused while an analysis is in flight.
func (c *Controller) mutate(action string, fn func(s *state) (changed bool, err error)) error {
	c.mu.Lock()
	if c.state.loading {
		c.mu.Unlock()
		return ErrAnalysisInProgress
	}
	changed, err := fn(&c.state)
	var snap State
	if changed {
		c.version++
		snap = c.state.snapshot(c.version)
	}
	c.mu.Unlock()

	if changed {
		c.logger.WithFields(logrus.Fields{"action": action, "step": snap.Step}).Debug("Wizard state changed")
		c.notify(snap)
	}
	return err
}

func (c *Controller) notify(snap State) {
	for _, fn := range c.onChange {
		fn(snap)
	}
}

func requireStep(s *state, action string, steps ...Step) error {
	for _, st := range steps {
		if s.step == st {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s during %s", ErrInvalidTransition, action, s.step)
}

// Input step

// SetMode switches between file upload and manual entry
func (c *Controller) SetMode(mode domain.InputMode) error {
	if mode != domain.UPLOAD_FILE && mode != domain.MANUAL_ENTRY {
		return domain.NewValidationError("mode", "mode must be 'upload' or 'manual'", mode)
	}
	return c.mutate("set_mode", func(s *state) (bool, error) {
		if err := requireStep(s, "change input mode", StepInput); err != nil {
			return false, err
		}
		s.mode = mode
		return true, nil
	})
}

// SelectFile validates and stores the variant file. A rejected file clears
// any previous selection and sets the rejection message as the error.
func (c *Controller) SelectFile(file *domain.VariantFile) error {
	return c.mutate("select_file", func(s *state) (bool, error) {
		if err := requireStep(s, "select a file", StepInput); err != nil {
			return false, err
		}
		if file == nil {
			s.file = nil
			return true, upload.ErrFileRequired
		}
		if err := upload.Validate(file.Name, file.Size); err != nil {
			s.file = nil
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				s.err = verr.Message
			}
			return true, err
		}
		s.file = file
		s.err = ""
		return true, nil
	})
}

// ClearFile removes the selected file
func (c *Controller) ClearFile() error {
	return c.mutate("clear_file", func(s *state) (bool, error) {
		if err := requireStep(s, "remove the file", StepInput); err != nil {
			return false, err
		}
		s.file = nil
		return true, nil
	})
}

// AddVariantRow appends a blank manual row and returns it
func (c *Controller) AddVariantRow() (VariantRow, error) {
	var row VariantRow
	err := c.mutate("add_row", func(s *state) (bool, error) {
		if err := requireStep(s, "add a variant row", StepInput); err != nil {
			return false, err
		}
		row = VariantRow{ID: c.nextRowID}
		c.nextRowID++
		s.manualVariants = append(s.manualVariants, row)
		return true, nil
	})
	return row, err
}

// UpdateVariantRow replaces the editable fields of row id
func (c *Controller) UpdateVariantRow(id int, in VariantRowInput) error {
	return c.mutate("update_row", func(s *state) (bool, error) {
		if err := requireStep(s, "edit a variant row", StepInput); err != nil {
			return false, err
		}
		for i := range s.manualVariants {
			if s.manualVariants[i].ID == id {
				s.manualVariants[i] = VariantRow{
					ID:                  id,
					ChromosomeOrGene:    in.ChromosomeOrGene,
					PositionOrDiplotype: in.PositionOrDiplotype,
					RefAllele:           in.RefAllele,
					AltAllele:           in.AltAllele,
				}
				return true, nil
			}
		}
		return false, fmt.Errorf("%w: %d", ErrRowNotFound, id)
	})
}

// RemoveVariantRow deletes row id. Removing the only row does nothing.
func (c *Controller) RemoveVariantRow(id int) error {
	return c.mutate("remove_row", func(s *state) (bool, error) {
		if err := requireStep(s, "remove a variant row", StepInput); err != nil {
			return false, err
		}
		for i := range s.manualVariants {
			if s.manualVariants[i].ID != id {
				continue
			}
			if len(s.manualVariants) == 1 {
				return false, nil
			}
			s.manualVariants = append(s.manualVariants[:i:i], s.manualVariants[i+1:]...)
			return true, nil
		}
		return false, fmt.Errorf("%w: %d", ErrRowNotFound, id)
	})
}

// SetPatientID sets the identifier sent with the analysis
func (c *Controller) SetPatientID(id string) error {
	return c.mutate("set_patient", func(s *state) (bool, error) {
		if err := requireStep(s, "set the patient id", StepInput, StepDrugSelection); err != nil {
			return false, err
		}
		s.patientID = id
		return true, nil
	})
}

// Submit leaves the input step. It is refused until the input is complete.
func (c *Controller) Submit() error {
	return c.mutate("submit", func(s *state) (bool, error) {
		if err := requireStep(s, "submit input", StepInput); err != nil {
			return false, err
		}
		if !s.step1Done() {
			s.err = MsgNeedInput
			return true, domain.NewValidationError("input", MsgNeedInput, s.mode)
		}
		s.step = StepTransitioning
		s.err = ""
		return true, nil
	})
}

// FinishTransition moves from the transition screen to drug selection
func (c *Controller) FinishTransition() error {
	return c.mutate("finish_transition", func(s *state) (bool, error) {
		if err := requireStep(s, "finish the transition", StepTransitioning); err != nil {
			return false, err
		}
		s.step = StepDrugSelection
		return true, nil
	})
}

// Drug selection step

// ToggleDrug adds drug to the selection, or removes it if already selected
func (c *Controller) ToggleDrug(drug domain.Drug) error {
	if !c.catalog.Contains(drug) {
		return domain.NewValidationError("drug", fmt.Sprintf("unsupported drug %q", drug), drug)
	}
	return c.mutate("toggle_drug", func(s *state) (bool, error) {
		if err := requireStep(s, "change the drug selection", StepDrugSelection); err != nil {
			return false, err
		}
		for i, d := range s.selectedDrugs {
			if d == drug {
				s.selectedDrugs = append(s.selectedDrugs[:i:i], s.selectedDrugs[i+1:]...)
				return true, nil
			}
		}
		s.selectedDrugs = append(s.selectedDrugs, drug)
		return true, nil
	})
}

// SetDrugs replaces the selection. Duplicates are dropped, first occurrence wins.
func (c *Controller) SetDrugs(drugs []domain.Drug) error {
	selection := make([]domain.Drug, 0, len(drugs))
	seen := make(map[domain.Drug]bool, len(drugs))
	for _, d := range drugs {
		if !c.catalog.Contains(d) {
			return domain.NewValidationError("drugs", fmt.Sprintf("unsupported drug %q", d), d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		selection = append(selection, d)
	}
	return c.mutate("set_drugs", func(s *state) (bool, error) {
		if err := requireStep(s, "change the drug selection", StepDrugSelection); err != nil {
			return false, err
		}
		s.selectedDrugs = selection
		return true, nil
	})
}

// ChangeFile returns to the input step, discarding the input but keeping the
// drug selection
func (c *Controller) ChangeFile() error {
	return c.mutate("change_file", func(s *state) (bool, error) {
		if err := requireStep(s, "change the file", StepDrugSelection); err != nil {
			return false, err
		}
		s.file = nil
		s.manualVariants = []VariantRow{{ID: 1}}
		c.nextRowID = 2
		s.err = ""
		s.step = StepInput
		return true, nil
	})
}

// Analyze submits the file for every selected drug. Local problems set the
// error without contacting the backend. On success the wizard moves to the
// results; on failure it stays on drug selection with the error set.
func (c *Controller) Analyze(ctx context.Context) error {
	c.mu.Lock()
	if c.state.loading {
		c.mu.Unlock()
		return ErrAnalysisInProgress
	}
	if err := requireStep(&c.state, "analyze", StepDrugSelection); err != nil {
		c.mu.Unlock()
		return err
	}

	s := &c.state
	s.err = ""
	var verr *domain.ValidationError
	switch {
	case !s.canAnalyze():
		verr = domain.NewValidationError("drugs", MsgSelectDrug, nil)
	case s.mode == domain.MANUAL_ENTRY:
		verr = domain.NewValidationError("mode", MsgManualNeedsVCF, s.mode)
	case s.file == nil:
		verr = domain.NewValidationError("file", MsgNeedInput, nil)
	}
	if verr != nil {
		s.err = verr.Message
		c.version++
		snap := s.snapshot(c.version)
		c.mu.Unlock()
		c.notify(snap)
		return verr
	}

	s.loading = true
	s.results = nil
	file := s.file
	drugs := append([]domain.Drug(nil), s.selectedDrugs...)
	patientID := s.patientID
	c.version++
	snap := s.snapshot(c.version)
	c.mu.Unlock()
	c.notify(snap)

	log := c.logger.WithFields(logrus.Fields{"file": file.Name, "drugs": len(drugs)})
	log.Info("Starting analysis")

	results, err := c.analyzer.Analyze(ctx, file, drugs, patientID)

	c.mu.Lock()
	s.loading = false
	if err != nil {
		s.err = msgAnalysisFailed + err.Error()
	} else {
		s.results = results
		s.step = StepResults
	}
	c.version++
	snap = s.snapshot(c.version)
	c.mu.Unlock()
	c.notify(snap)

	if err != nil {
		log.WithError(err).Warn("Analysis failed")
		return err
	}

	log.Info("Analysis completed")
	completion := Completion{
		PatientID: patientID,
		FileName:  file.Name,
		Drugs:     drugs,
		Results:   append([]domain.RiskResult(nil), results...),
		Summary:   domain.Summarize(results),
	}
	for _, fn := range c.onComplete {
		fn(ctx, completion)
	}
	return nil
}

// Results step

// ChangeDrugSelection goes back to drug selection, dropping the results
func (c *Controller) ChangeDrugSelection() error {
	return c.mutate("change_drugs", func(s *state) (bool, error) {
		if err := requireStep(s, "change the drug selection", StepResults); err != nil {
			return false, err
		}
		s.results = nil
		s.step = StepDrugSelection
		return true, nil
	})
}

// StartNewAnalysis resets the wizard to its initial state
func (c *Controller) StartNewAnalysis() error {
	return c.mutate("start_new", func(s *state) (bool, error) {
		if err := requireStep(s, "start a new analysis", StepResults); err != nil {
			return false, err
		}
		*s = freshState()
		c.nextRowID = 2
		return true, nil
	})
}
