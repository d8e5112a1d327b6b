// Package consultation persists clinical consultations and reconciles the
// diagnosis codes they carry against the patient's history.
package consultation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinic/internal/domain/diagnosis"
)

var (
	ErrNotFound          = errors.New("consultation not found")
	ErrInvalidTransition = errors.New("invalid consultation status transition")
	ErrInvalidStatus     = errors.New("invalid consultation status")
	ErrInvalidInput      = errors.New("invalid input")
)

// Defaults written to every entry when the clinician leaves the note empty.
const (
	DefaultReason   = "General consultation"
	DefaultFindings = "No detailed findings"
)

// Status is the lifecycle flag of a consultation.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusSigned Status = "signed"
	StatusClosed Status = "closed"
)

var transitions = map[Status]Status{
	StatusDraft:  StatusSigned,
	StatusSigned: StatusClosed,
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	switch s {
	case StatusDraft, StatusSigned, StatusClosed:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
}

// CanTransition reports whether a consultation in from may move to to.
func CanTransition(from, to Status) bool {
	return transitions[from] == to
}

// Consultation is one encounter with a patient. It is append-only apart from
// its Status.
type Consultation struct {
	ID             uuid.UUID        `json:"id"`
	PatientID      uuid.UUID        `json:"patient_id"`
	PractitionerID string           `json:"practitioner_id"`
	Status         Status           `json:"status"`
	ScheduledAt    time.Time        `json:"scheduled_at"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Entries        []DiagnosisEntry `json:"diagnoses"`
	Vitals         []Vital          `json:"vitals,omitempty"`
}

// DiagnosisEntry is the status a diagnosis code received in one
// consultation, together with the clinical notes.
type DiagnosisEntry struct {
	ID                uuid.UUID        `json:"id"`
	ConsultationID    uuid.UUID        `json:"consultation_id"`
	PatientID         uuid.UUID        `json:"patient_id"`
	Code              string           `json:"diagnosis_code"`
	Description       string           `json:"description,omitempty"`
	Reason            string           `json:"reason"`
	Findings          string           `json:"findings"`
	TreatmentPlan     string           `json:"treatment_plan,omitempty"`
	WorkingImpression string           `json:"working_impression,omitempty"`
	Status            diagnosis.Status `json:"status"`
	Label             string           `json:"label,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	Seq               int64            `json:"-"`
}

// HistoryEntry converts e for the history projections.
func (e DiagnosisEntry) HistoryEntry() diagnosis.Entry {
	return diagnosis.Entry{
		ID:             e.ID,
		ConsultationID: e.ConsultationID,
		Code:           e.Code,
		Description:    e.Description,
		Reason:         e.Reason,
		Status:         e.Status,
		CreatedAt:      e.CreatedAt,
		Seq:            e.Seq,
	}
}

// Vital is one measured clinical constant, attached to the consultation's
// primary diagnosis entry.
type Vital struct {
	ID         uuid.UUID `json:"id"`
	EntryID    uuid.UUID `json:"consultation_diagnosis_id"`
	ConstantID uuid.UUID `json:"constant_id"`
	Code       string    `json:"code"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
}

// Clinical constant codes the vital sign form maps to.
const (
	ConstantWeight           = "WEIGHT"
	ConstantHeight           = "HEIGHT"
	ConstantSystolic         = "BP_SYS"
	ConstantDiastolic        = "BP_DIA"
	ConstantHeartRate        = "HEART_RATE"
	ConstantTemperature      = "TEMP"
	ConstantOxygenSaturation = "SATO2"
)

// VitalSigns is the vital sign form. Nil fields were not measured.
type VitalSigns struct {
	Weight           *float64 `json:"weight,omitempty"`
	Height           *float64 `json:"height,omitempty"`
	Systolic         *float64 `json:"systolic,omitempty"`
	Diastolic        *float64 `json:"diastolic,omitempty"`
	HeartRate        *float64 `json:"heart_rate,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	OxygenSaturation *float64 `json:"oxygen_saturation,omitempty"`
}

// Measurement is one measured value keyed by its clinical constant code.
type Measurement struct {
	Code  string
	Value float64
}

// Measurements returns the measured values in form order.
func (v VitalSigns) Measurements() []Measurement {
	fields := []struct {
		code  string
		value *float64
	}{
		{ConstantWeight, v.Weight},
		{ConstantHeight, v.Height},
		{ConstantSystolic, v.Systolic},
		{ConstantDiastolic, v.Diastolic},
		{ConstantHeartRate, v.HeartRate},
		{ConstantTemperature, v.Temperature},
		{ConstantOxygenSaturation, v.OxygenSaturation},
	}
	var out []Measurement
	for _, f := range fields {
		if f.value != nil {
			out = append(out, Measurement{Code: f.code, Value: *f.value})
		}
	}
	return out
}

// Notes are the free-text fields copied onto every entry of a consultation.
type Notes struct {
	Reason            string `json:"reason"`
	Findings          string `json:"findings"`
	TreatmentPlan     string `json:"treatment_plan"`
	WorkingImpression string `json:"working_impression"`
}

// withDefaults fills empty reason and findings.
func (n Notes) withDefaults() Notes {
	n.Reason = strings.TrimSpace(n.Reason)
	n.Findings = strings.TrimSpace(n.Findings)
	n.TreatmentPlan = strings.TrimSpace(n.TreatmentPlan)
	n.WorkingImpression = strings.TrimSpace(n.WorkingImpression)
	if n.Reason == "" {
		n.Reason = DefaultReason
	}
	if n.Findings == "" {
		n.Findings = DefaultFindings
	}
	return n
}

// SelectedCode is one code the clinician attached. A nil KeepActive uses the
// default toggle for the code's current status.
type SelectedCode struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	KeepActive  *bool  `json:"keep_active,omitempty"`
}

// CreateInput is a consultation submission.
type CreateInput struct {
	PatientID      uuid.UUID      `json:"-"`
	PractitionerID string         `json:"-"`
	ScheduledAt    *time.Time     `json:"scheduled_at,omitempty"`
	Diagnoses      []SelectedCode `json:"diagnoses"`
	Notes          Notes          `json:"notes"`
	Vitals         VitalSigns     `json:"vitals"`
}

// PreviewItem is the resolved outcome of one selected code.
type PreviewItem struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	diagnosis.Outcome
}

// Preview is what saving a selection would write.
type Preview struct {
	Items    []PreviewItem `json:"items"`
	Fallback bool          `json:"fallback"`
	Warnings []string      `json:"warnings,omitempty"`
}

// CreateResult is a saved consultation and any dropped duplicate codes.
type CreateResult struct {
	Consultation *Consultation `json:"consultation"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// OverrideResult reports a bulk status override.
type OverrideResult struct {
	Code    string           `json:"diagnosis_code"`
	Status  diagnosis.Status `json:"status"`
	Updated int64            `json:"updated"`
}
