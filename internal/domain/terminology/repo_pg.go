package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinic/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Diagnosis Code Repository ===========

type codeRepoPG struct{ pool *pgxpool.Pool }

func NewCodeRepoPG(pool *pgxpool.Pool) CodeRepository { return &codeRepoPG{pool: pool} }

func (r *codeRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const codeColumns = `code, description, COALESCE(chapter,''), active, updated_at`

func scanCode(row pgx.Row) (*DiagnosisCode, error) {
	var d DiagnosisCode
	if err := row.Scan(&d.Code, &d.Description, &d.Chapter, &d.Active, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *codeRepoPG) Search(ctx context.Context, pattern, foldedPattern string, limit int) ([]*DiagnosisCode, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+codeColumns+`
		 FROM diagnosis_code
		 WHERE active AND (code ILIKE $1 OR description ILIKE $1 OR search_text LIKE $2)
		 ORDER BY code LIMIT $3`, pattern, foldedPattern, limit)
	if err != nil {
		return nil, fmt.Errorf("diagnosis code search: %w", err)
	}
	defer rows.Close()
	var results []*DiagnosisCode
	for rows.Next() {
		d, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (r *codeRepoPG) GetByCode(ctx context.Context, code string) (*DiagnosisCode, error) {
	d, err := scanCode(r.conn(ctx).QueryRow(ctx,
		`SELECT `+codeColumns+` FROM diagnosis_code WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("diagnosis code get: %w", err)
	}
	return d, nil
}

func (r *codeRepoPG) Upsert(ctx context.Context, codes []DiagnosisCode) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, d := range codes {
		batch.Queue(
			`INSERT INTO diagnosis_code (code, description, chapter, search_text, active, updated_at)
			 VALUES ($1, $2, NULLIF($3,''), $4, TRUE, now())
			 ON CONFLICT (code) DO UPDATE
			 SET description = EXCLUDED.description, chapter = EXCLUDED.chapter,
			     search_text = EXCLUDED.search_text, active = TRUE, updated_at = now()`,
			d.Code, d.Description, d.Chapter, d.SearchText())
	}
	return execBatch(ctx, r.conn(ctx), batch, "diagnosis code upsert")
}

// =========== Clinical Constant Repository ===========

type constantRepoPG struct{ pool *pgxpool.Pool }

func NewConstantRepoPG(pool *pgxpool.Pool) ConstantRepository {
	return &constantRepoPG{pool: pool}
}

func (r *constantRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

func (r *constantRepoPG) List(ctx context.Context) ([]*ClinicalConstant, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, code, name, COALESCE(unit,'') FROM clinical_constant ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("clinical constant list: %w", err)
	}
	defer rows.Close()
	var results []*ClinicalConstant
	for rows.Next() {
		var k ClinicalConstant
		if err := rows.Scan(&k.ID, &k.Code, &k.Name, &k.Unit); err != nil {
			return nil, err
		}
		results = append(results, &k)
	}
	return results, rows.Err()
}

func (r *constantRepoPG) Upsert(ctx context.Context, constants []ClinicalConstant) (int, error) {
	if len(constants) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, k := range constants {
		batch.Queue(
			`INSERT INTO clinical_constant (code, name, unit)
			 VALUES ($1, $2, NULLIF($3,''))
			 ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, unit = EXCLUDED.unit`,
			k.Code, k.Name, k.Unit)
	}
	return execBatch(ctx, r.conn(ctx), batch, "clinical constant upsert")
}

func execBatch(ctx context.Context, q queryable, batch *pgx.Batch, op string) (int, error) {
	br := q.SendBatch(ctx, batch)
	defer br.Close()
	n := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			return n, fmt.Errorf("%s: %w", op, err)
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}
