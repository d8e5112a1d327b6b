//go:build integration

package integration

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/clinic/internal/domain/consultation"
	"github.com/ehr/clinic/internal/domain/diagnosis"
	"github.com/ehr/clinic/internal/domain/terminology"
)

var sampleCatalog = &terminology.Catalog{
	DiagnosisCodes: []terminology.DiagnosisCode{
		{Code: "J45", Description: "Asma", Chapter: "X"},
		{Code: "E11", Description: "Diabetes mellitus tipo 2", Chapter: "IV"},
		{Code: "I10", Description: "Hipertensión esencial", Chapter: "IX"},
	},
}

func (c *clinic) create(t *testing.T, patientID uuid.UUID, codes ...consultation.SelectedCode) *consultation.Consultation {
	t.Helper()
	res, err := c.consultations.Create(c.ctx, consultation.CreateInput{
		PatientID:      patientID,
		PractitionerID: "dr-1",
		Diagnoses:      codes,
	})
	require.NoError(t, err)
	return res.Consultation
}

func TestConsultation_LatestEntryWins(t *testing.T) {
	c := newClinic(t)
	c.importCatalog(t, sampleCatalog)
	patient := uuid.New()

	first := c.create(t, patient, consultation.SelectedCode{Code: "J45"})
	require.Len(t, first.Entries, 1)
	assert.Equal(t, diagnosis.StatusConfirmed, first.Entries[0].Status)

	// Already active, toggled off: resolves.
	second := c.create(t, patient, consultation.SelectedCode{Code: "J45", KeepActive: boolPtr(false)})
	assert.Equal(t, diagnosis.StatusUnconfirmed, second.Entries[0].Status)
	assert.Equal(t, diagnosis.LabelWillResolve, second.Entries[0].Label)

	snap, err := c.consultations.CurrentStatuses(c.ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, diagnosis.StatusUnconfirmed, snap.Lookup("J45"))

	groups, err := c.consultations.History(c.ctx, patient, "")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "J45", groups[0].Code)
	assert.Equal(t, "Asma", groups[0].Description)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, diagnosis.StatusUnconfirmed, groups[0].Status)

	// Toggled back on: reactivates.
	third := c.create(t, patient, consultation.SelectedCode{Code: "J45", KeepActive: boolPtr(true)})
	assert.Equal(t, diagnosis.StatusConfirmed, third.Entries[0].Status)
	assert.Equal(t, diagnosis.LabelWillReactivate, third.Entries[0].Label)
}

func TestConsultation_OverrideRewritesEveryEntry(t *testing.T) {
	c := newClinic(t)
	c.importCatalog(t, sampleCatalog)
	patient := uuid.New()
	other := uuid.New()

	for i := 0; i < 3; i++ {
		c.create(t, patient, consultation.SelectedCode{Code: "E11"})
	}
	c.create(t, other, consultation.SelectedCode{Code: "E11"})

	res, err := c.consultations.OverrideStatus(c.ctx, patient, "E11", "pending")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Updated)

	snap, err := c.consultations.CurrentStatuses(c.ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, diagnosis.StatusPending, snap.Lookup("E11"))

	otherSnap, err := c.consultations.CurrentStatuses(c.ctx, other)
	require.NoError(t, err)
	assert.Equal(t, diagnosis.StatusConfirmed, otherSnap.Lookup("E11"))

	res, err = c.consultations.OverrideStatus(c.ctx, patient, "I10", "unconfirmed")
	require.NoError(t, err)
	assert.Zero(t, res.Updated)
}

func TestConsultation_OverrideInvalidStatusWritesNothing(t *testing.T) {
	c := newClinic(t)
	patient := uuid.New()
	c.create(t, patient, consultation.SelectedCode{Code: "E11", Description: "Diabetes"})

	_, err := c.consultations.OverrideStatus(c.ctx, patient, "E11", "resolved")
	require.Error(t, err)
	assert.True(t, errors.Is(err, diagnosis.ErrInvalidStatus))

	snap, err := c.consultations.CurrentStatuses(c.ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, diagnosis.StatusConfirmed, snap.Lookup("E11"))
}

func TestConsultation_CreateIsAtomic(t *testing.T) {
	c := newClinic(t)
	patient := uuid.New()
	entryID := uuid.New()

	err := c.repo.Create(c.ctx, &consultation.Consultation{
		ID:             uuid.New(),
		PatientID:      patient,
		PractitionerID: "dr-1",
		Status:         consultation.StatusDraft,
		Entries: []consultation.DiagnosisEntry{{
			ID:       entryID,
			Code:     "J45",
			Reason:   consultation.DefaultReason,
			Findings: consultation.DefaultFindings,
			Status:   diagnosis.StatusConfirmed,
		}},
		// No such clinical constant: the vital insert fails.
		Vitals: []consultation.Vital{{ID: uuid.New(), EntryID: entryID, ConstantID: uuid.New(), Value: 70}},
	})
	require.Error(t, err)

	assert.Zero(t, c.count(t, "consultation", patient))
	assert.Zero(t, c.count(t, "consultation_diagnosis", patient))
	assert.Zero(t, c.count(t, "consultation_vital", patient))
}

func TestConsultation_EmptySelectionFallsBack(t *testing.T) {
	c := newClinic(t)
	patient := uuid.New()

	preview, err := c.consultations.Preview(c.ctx, patient, nil)
	require.NoError(t, err)
	assert.True(t, preview.Fallback)
	require.Len(t, preview.Items, 1)
	assert.Equal(t, diagnosis.GeneralConsultationCode, preview.Items[0].Code)

	created := c.create(t, patient)
	require.Len(t, created.Entries, 1)
	assert.Equal(t, diagnosis.GeneralConsultationCode, created.Entries[0].Code)
	assert.Equal(t, diagnosis.StatusConfirmed, created.Entries[0].Status)
	assert.Equal(t, consultation.DefaultReason, created.Entries[0].Reason)
	assert.Equal(t, consultation.DefaultFindings, created.Entries[0].Findings)

	groups, err := c.consultations.History(c.ctx, patient, "")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, diagnosis.GeneralConsultationDescription, groups[0].Description)
}

func TestConsultation_VitalsAndLifecycle(t *testing.T) {
	c := newClinic(t)
	patient := uuid.New()

	res, err := c.consultations.Create(c.ctx, consultation.CreateInput{
		PatientID:      patient,
		PractitionerID: "dr-1",
		Diagnoses:      []consultation.SelectedCode{{Code: "I10", Description: "Hypertension"}},
		Vitals: consultation.VitalSigns{
			Weight:    floatPtr(72.5),
			Systolic:  floatPtr(135),
			Diastolic: floatPtr(85),
		},
	})
	require.NoError(t, err)

	got, err := c.consultations.Get(c.ctx, res.Consultation.ID)
	require.NoError(t, err)
	require.Len(t, got.Vitals, 3)
	byCode := map[string]consultation.Vital{}
	for _, v := range got.Vitals {
		byCode[v.Code] = v
	}
	assert.Equal(t, 72.5, byCode[consultation.ConstantWeight].Value)
	assert.Equal(t, "kg", byCode[consultation.ConstantWeight].Unit)
	assert.Equal(t, got.Entries[0].ID, byCode[consultation.ConstantSystolic].EntryID)

	signed, err := c.consultations.Transition(c.ctx, got.ID, "signed")
	require.NoError(t, err)
	assert.Equal(t, consultation.StatusSigned, signed.Status)

	_, err = c.consultations.Transition(c.ctx, got.ID, "draft")
	assert.True(t, errors.Is(err, consultation.ErrInvalidTransition))

	_, err = c.consultations.Get(c.ctx, uuid.New())
	assert.True(t, errors.Is(err, consultation.ErrNotFound))
}

func TestConsultation_ListByPatient(t *testing.T) {
	c := newClinic(t)
	patient := uuid.New()
	for i := 0; i < 3; i++ {
		c.create(t, patient, consultation.SelectedCode{Code: "R51", Description: "Headache"})
	}

	list, total, err := c.repo.ListByPatient(c.ctx, patient, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.False(t, list[0].ScheduledAt.Before(list[1].ScheduledAt))
	require.Len(t, list[0].Entries, 1)
	assert.Equal(t, "R51", list[0].Entries[0].Code)
}
