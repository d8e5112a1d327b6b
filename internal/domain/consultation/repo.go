package consultation

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/clinic/internal/domain/diagnosis"
)

// Repository persists consultations and their diagnosis entries.
type Repository interface {
	// CurrentStatuses returns the latest status per code for a patient.
	CurrentStatuses(ctx context.Context, patientID uuid.UUID) (diagnosis.Snapshot, error)
	// Create writes the consultation, its entries and its vitals in one
	// transaction and fills in generated ids and timestamps.
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error)
	// Entries returns every diagnosis entry of a patient, oldest first.
	Entries(ctx context.Context, patientID uuid.UUID) ([]DiagnosisEntry, error)
	// OverrideStatus rewrites the status of every entry of code for the
	// patient and returns how many were changed.
	OverrideStatus(ctx context.Context, patientID uuid.UUID, code string, status diagnosis.Status) (int64, error)
	// UpdateStatus moves a consultation from one status to another and
	// reports false when it was not in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
}
