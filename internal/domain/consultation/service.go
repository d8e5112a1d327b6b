package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/clinic/internal/domain/diagnosis"
	"github.com/ehr/clinic/internal/domain/terminology"
	"github.com/ehr/clinic/internal/platform/telemetry"
	"github.com/ehr/clinic/pkg/pagination"
)

// Catalog resolves code descriptions and clinical constants.
type Catalog interface {
	Lookup(ctx context.Context, code string) (*terminology.DiagnosisCode, error)
	Constants(ctx context.Context) (map[string]*terminology.ClinicalConstant, error)
}

// Service provides consultation business logic.
type Service struct {
	repo    Repository
	catalog Catalog
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates a consultation service. metrics may be nil.
func NewService(repo Repository, catalog Catalog, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		metrics: metrics,
		logger:  logger.With().Str("component", "consultation").Logger(),
		now:     time.Now,
	}
}

func (s *Service) CurrentStatuses(ctx context.Context, patientID uuid.UUID) (diagnosis.Snapshot, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	return s.repo.CurrentStatuses(ctx, patientID)
}

// selection builds the selection for codes against snap. Repeated codes are
// dropped and reported as warnings.
func (s *Service) selection(ctx context.Context, snap diagnosis.Snapshot, codes []SelectedCode) (*diagnosis.Selection, []string, error) {
	sel := diagnosis.NewSelection()
	var warnings []string
	for _, in := range codes {
		code := strings.TrimSpace(in.Code)
		desc, err := s.describe(ctx, code, in.Description)
		if err != nil {
			return nil, nil, err
		}
		if err := sel.Add(code, desc, snap.Lookup(code)); err != nil {
			if errors.Is(err, diagnosis.ErrDuplicateCode) {
				warnings = append(warnings, err.Error())
				continue
			}
			return nil, nil, err
		}
		if in.KeepActive != nil {
			if err := sel.SetKeepActive(code, *in.KeepActive); err != nil {
				return nil, nil, err
			}
		}
	}
	return sel, warnings, nil
}

func (s *Service) describe(ctx context.Context, code, given string) (string, error) {
	if given = strings.TrimSpace(given); given != "" || code == "" || s.catalog == nil {
		return given, nil
	}
	d, err := s.catalog.Lookup(ctx, code)
	if err != nil {
		if errors.Is(err, terminology.ErrCodeNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("lookup %s: %w", code, err)
	}
	return d.Description, nil
}

// Preview resolves codes against the patient's current statuses without
// saving anything.
func (s *Service) Preview(ctx context.Context, patientID uuid.UUID, codes []SelectedCode) (*Preview, error) {
	snap, err := s.CurrentStatuses(ctx, patientID)
	if err != nil {
		return nil, err
	}
	sel, warnings, err := s.selection(ctx, snap, codes)
	if err != nil {
		return nil, err
	}

	p := &Preview{Warnings: warnings, Fallback: sel.Len() == 0}
	if p.Fallback {
		p.Items = []PreviewItem{{
			Code:        diagnosis.GeneralConsultationCode,
			Description: diagnosis.GeneralConsultationDescription,
			Outcome:     diagnosis.Resolve(diagnosis.StatusInactive, false),
		}}
		return p, nil
	}
	for _, it := range sel.Items() {
		p.Items = append(p.Items, PreviewItem{
			Code:        it.Code,
			Description: it.Description,
			Outcome:     it.Outcome(),
		})
	}
	return p, nil
}

// Create saves a consultation with one entry per selected code, or the
// general consultation entry when none was selected.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.PractitionerID) == "" {
		return nil, fmt.Errorf("%w: practitioner_id is required", ErrInvalidInput)
	}

	snap, err := s.repo.CurrentStatuses(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	sel, warnings, err := s.selection(ctx, snap, in.Diagnoses)
	if err != nil {
		return nil, err
	}
	plan := sel.Plan()
	fallback := sel.Len() == 0
	notes := in.Notes.withDefaults()

	c := &Consultation{
		ID:             uuid.New(),
		PatientID:      in.PatientID,
		PractitionerID: in.PractitionerID,
		Status:         StatusDraft,
		ScheduledAt:    s.now().UTC(),
	}
	if in.ScheduledAt != nil && !in.ScheduledAt.IsZero() {
		c.ScheduledAt = in.ScheduledAt.UTC()
	}

	statuses := make([]string, 0, len(plan))
	for _, p := range plan {
		c.Entries = append(c.Entries, DiagnosisEntry{
			ID:                uuid.New(),
			Code:              p.Code,
			Description:       p.Description,
			Reason:            notes.Reason,
			Findings:          notes.Findings,
			TreatmentPlan:     notes.TreatmentPlan,
			WorkingImpression: notes.WorkingImpression,
			Status:            p.Status,
			Label:             p.Label,
		})
		statuses = append(statuses, p.Status.String())
	}

	c.Vitals, err = s.vitals(ctx, c.Entries[0].ID, in.Vitals)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("save consultation: %w", err)
	}

	s.metrics.ConsultationCreated(fallback, statuses)
	s.logger.Info().
		Str("consultation_id", c.ID.String()).
		Str("patient_id", c.PatientID.String()).
		Int("diagnoses", len(c.Entries)).
		Int("vitals", len(c.Vitals)).
		Bool("fallback", fallback).
		Msg("consultation created")

	return &CreateResult{Consultation: c, Warnings: warnings}, nil
}

// vitals maps measured values to clinical constants. Values whose constant
// is missing from the catalog are skipped.
func (s *Service) vitals(ctx context.Context, entryID uuid.UUID, v VitalSigns) ([]Vital, error) {
	measured := v.Measurements()
	if len(measured) == 0 || s.catalog == nil {
		return nil, nil
	}
	constants, err := s.catalog.Constants(ctx)
	if err != nil {
		return nil, fmt.Errorf("load clinical constants: %w", err)
	}
	var out []Vital
	for _, m := range measured {
		k, ok := constants[m.Code]
		if !ok {
			s.logger.Warn().Str("constant", m.Code).Msg("clinical constant not in catalog, value skipped")
			continue
		}
		out = append(out, Vital{
			ID:         uuid.New(),
			EntryID:    entryID,
			ConstantID: k.ID,
			Code:       k.Code,
			Value:      m.Value,
			Unit:       k.Unit,
		})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*Consultation, int, error) {
	if patientID == uuid.Nil {
		return nil, 0, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	return s.repo.ListByPatient(ctx, patientID, p.Limit, p.Offset)
}

// History returns the patient's diagnoses grouped by code, filtered by term.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, term string) ([]diagnosis.Group, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	entries, err := s.repo.Entries(ctx, patientID)
	if err != nil {
		return nil, err
	}
	history := make([]diagnosis.Entry, 0, len(entries))
	for _, e := range entries {
		history = append(history, e.HistoryEntry())
	}
	return diagnosis.FilterGroups(diagnosis.GroupHistory(history), term), nil
}

// OverrideStatus sets status on every entry of code for the patient. The
// status is validated before anything is written.
func (s *Service) OverrideStatus(ctx context.Context, patientID uuid.UUID, code, status string) (*OverrideResult, error) {
	st, err := diagnosis.ParseOverrideStatus(status)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, diagnosis.ErrEmptyCode
	}
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}

	n, err := s.repo.OverrideStatus(ctx, patientID, code, st)
	if err != nil {
		return nil, err
	}

	s.metrics.StatusOverridden(st.String(), n)
	s.logger.Info().
		Str("patient_id", patientID.String()).
		Str("diagnosis_code", code).
		Str("status", st.String()).
		Int64("updated", n).
		Msg("diagnosis status overridden")

	return &OverrideResult{Code: code, Status: st, Updated: n}, nil
}

// Transition moves a consultation one step along draft, signed, closed.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, status string) (*Consultation, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, c.Status, to)
	}
	ok, err := s.repo.UpdateStatus(ctx, id, c.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: consultation changed concurrently", ErrInvalidTransition)
	}
	c.Status = to
	c.UpdatedAt = s.now().UTC()
	return c, nil
}
