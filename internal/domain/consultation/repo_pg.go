package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinic/internal/domain/diagnosis"
	"github.com/ehr/clinic/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consultationColumns = `id, patient_id, practitioner_id, status, scheduled_at, created_at, updated_at`

const entryColumns = `e.id, e.consultation_id, e.patient_id, e.diagnosis_code,
	COALESCE(e.description, d.description, ''), e.reason, e.findings,
	COALESCE(e.treatment_plan,''), COALESCE(e.working_impression,''),
	e.status, e.created_at, e.seq`

const entryFrom = `FROM consultation_diagnosis e LEFT JOIN diagnosis_code d ON d.code = e.diagnosis_code`

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	var status string
	if err := row.Scan(&c.ID, &c.PatientID, &c.PractitionerID, &status,
		&c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = Status(status)
	return &c, nil
}

func scanEntry(row pgx.Row) (DiagnosisEntry, error) {
	var e DiagnosisEntry
	var status string
	err := row.Scan(&e.ID, &e.ConsultationID, &e.PatientID, &e.Code,
		&e.Description, &e.Reason, &e.Findings, &e.TreatmentPlan, &e.WorkingImpression,
		&status, &e.CreatedAt, &e.Seq)
	e.Status = diagnosis.Status(status)
	return e, err
}

func (r *repoPG) CurrentStatuses(ctx context.Context, patientID uuid.UUID) (diagnosis.Snapshot, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT diagnosis_code, status FROM patient_diagnosis WHERE patient_id = $1`, patientID)
	if err != nil {
		return nil, fmt.Errorf("current statuses: %w", err)
	}
	defer rows.Close()
	snap := diagnosis.Snapshot{}
	for rows.Next() {
		var code, status string
		if err := rows.Scan(&code, &status); err != nil {
			return nil, err
		}
		snap[code] = diagnosis.Status(status)
	}
	return snap, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, c *Consultation) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)

		err := tx.QueryRow(ctx,
			`INSERT INTO consultation (id, patient_id, practitioner_id, status, scheduled_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at, updated_at`,
			c.ID, c.PatientID, c.PractitionerID, string(c.Status), c.ScheduledAt).
			Scan(&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert consultation: %w", err)
		}

		for i := range c.Entries {
			e := &c.Entries[i]
			e.ConsultationID = c.ID
			e.PatientID = c.PatientID
			err := tx.QueryRow(ctx,
				`INSERT INTO consultation_diagnosis
				   (id, consultation_id, patient_id, diagnosis_code, description,
				    reason, findings, treatment_plan, working_impression, status)
				 VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7, NULLIF($8,''), NULLIF($9,''), $10)
				 RETURNING seq, created_at`,
				e.ID, e.ConsultationID, e.PatientID, e.Code, e.Description,
				e.Reason, e.Findings, e.TreatmentPlan, e.WorkingImpression, string(e.Status)).
				Scan(&e.Seq, &e.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert diagnosis %s: %w", e.Code, err)
			}
		}

		if len(c.Vitals) == 0 {
			return nil
		}
		rows := make([][]interface{}, 0, len(c.Vitals))
		for _, v := range c.Vitals {
			rows = append(rows, []interface{}{v.ID, c.ID, v.EntryID, c.PatientID, v.ConstantID, v.Value})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"consultation_vital"},
			[]string{"id", "consultation_id", "consultation_diagnosis_id", "patient_id", "clinical_constant_id", "value"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("insert vitals: %w", err)
		}
		return nil
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	q := r.conn(ctx)
	c, err := scanConsultation(q.QueryRow(ctx,
		`SELECT `+consultationColumns+` FROM consultation WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get consultation: %w", err)
	}

	entries, err := r.entriesFor(ctx, []string{id.String()})
	if err != nil {
		return nil, err
	}
	c.Entries = entries[c.ID]

	rows, err := q.Query(ctx,
		`SELECT v.id, v.consultation_diagnosis_id, v.clinical_constant_id, k.code, v.value, COALESCE(k.unit,'')
		 FROM consultation_vital v JOIN clinical_constant k ON k.id = v.clinical_constant_id
		 WHERE v.consultation_id = $1
		 ORDER BY k.code`, id)
	if err != nil {
		return nil, fmt.Errorf("get vitals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v Vital
		if err := rows.Scan(&v.ID, &v.EntryID, &v.ConstantID, &v.Code, &v.Value, &v.Unit); err != nil {
			return nil, err
		}
		c.Vitals = append(c.Vitals, v)
	}
	return c, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	q := r.conn(ctx)
	var total int
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM consultation WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count consultations: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+consultationColumns+` FROM consultation
		 WHERE patient_id = $1
		 ORDER BY scheduled_at DESC, created_at DESC
		 LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list consultations: %w", err)
	}
	defer rows.Close()
	var (
		list []*Consultation
		ids  []string
	)
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, c)
		ids = append(ids, c.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(list) == 0 {
		return list, total, nil
	}

	entries, err := r.entriesFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range list {
		c.Entries = entries[c.ID]
	}
	return list, total, nil
}

func (r *repoPG) entriesFor(ctx context.Context, consultationIDs []string) (map[uuid.UUID][]DiagnosisEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryColumns+` `+entryFrom+`
		 WHERE e.consultation_id = ANY($1::uuid[])
		 ORDER BY e.seq`, consultationIDs)
	if err != nil {
		return nil, fmt.Errorf("list diagnoses: %w", err)
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]DiagnosisEntry)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out[e.ConsultationID] = append(out[e.ConsultationID], e)
	}
	return out, rows.Err()
}

func (r *repoPG) Entries(ctx context.Context, patientID uuid.UUID) ([]DiagnosisEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryColumns+` `+entryFrom+`
		 WHERE e.patient_id = $1
		 ORDER BY e.created_at, e.seq`, patientID)
	if err != nil {
		return nil, fmt.Errorf("patient diagnoses: %w", err)
	}
	defer rows.Close()
	var out []DiagnosisEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repoPG) OverrideStatus(ctx context.Context, patientID uuid.UUID, code string, status diagnosis.Status) (int64, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT update_diagnosis_status_by_code($1, $2, $3)`,
		patientID, code, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("override diagnosis status: %w", err)
	}
	return n, nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE consultation SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update consultation status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
