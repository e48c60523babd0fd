package auditsink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/boardcheck/internal/domain/audit"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Postgres stores each record as canonical JSON plus its flattened per-model
// rows for analytics queries (accuracy, FAR/FRR, ambiguous-case rate).
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps db. Call Migrate once before use.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	if db == nil {
		return nil, ErrNilDependency
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the audit tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_audit (
			record_id           TEXT PRIMARY KEY,
			event_id            TEXT        NOT NULL DEFAULT '',
			decided_at          TIMESTAMPTZ NOT NULL,
			config_version      INTEGER     NOT NULL,
			verification_status TEXT        NOT NULL,
			confidence_level    TEXT        NOT NULL,
			combined_score      DOUBLE PRECISION NOT NULL,
			body                JSONB       NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS decision_audit_event_idx ON decision_audit (event_id)`,
		`CREATE TABLE IF NOT EXISTS decision_audit_models (
			record_id            TEXT    NOT NULL REFERENCES decision_audit (record_id),
			position             INTEGER NOT NULL,
			model_name           TEXT    NOT NULL,
			predicted_student_id TEXT    NOT NULL DEFAULT '',
			raw_score            DOUBLE PRECISION NOT NULL,
			calibrated_score     DOUBLE PRECISION NOT NULL,
			weight               DOUBLE PRECISION NOT NULL,
			votes_match          BOOLEAN NOT NULL,
			counted              BOOLEAN NOT NULL,
			top_k_gap            DOUBLE PRECISION,
			PRIMARY KEY (record_id, position)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate audit tables: %w", err)
		}
	}
	return nil
}

// Write inserts rec and its rows in one transaction. Rewriting an existing
// record id with identical content is a no-op; different content is
// ErrConflict and the stored record is left untouched.
func (p *Postgres) Write(ctx context.Context, rec audit.Record) (err error) {
	if rec.RecordID == "" {
		return ErrMissingID
	}
	body, err := audit.Marshal(rec)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit write: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO decision_audit
		(record_id, event_id, decided_at, config_version, verification_status, confidence_level, combined_score, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (record_id) DO NOTHING`,
		rec.RecordID, rec.EventID, rec.DecidedAt, rec.ConfigVersion,
		string(rec.VerificationStatus), string(rec.ConfidenceLevel), rec.CombinedScore, body)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	if n == 0 {
		var same bool
		if err = tx.QueryRowContext(ctx,
			`SELECT body = $2::jsonb FROM decision_audit WHERE record_id = $1`,
			rec.RecordID, body).Scan(&same); err != nil {
			return fmt.Errorf("compare audit record: %w", err)
		}
		if !same {
			err = fmt.Errorf("%w: %s", ErrConflict, rec.RecordID)
			return err
		}
		return tx.Commit()
	}

	for i, row := range audit.Rows(rec) {
		var gap sql.NullFloat64
		if row.TopKGap != nil {
			gap = sql.NullFloat64{Float64: *row.TopKGap, Valid: true}
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO decision_audit_models
			(record_id, position, model_name, predicted_student_id, raw_score, calibrated_score, weight, votes_match, counted, top_k_gap)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			row.RecordID, i, row.ModelName, row.PredictedStudentID, row.RawScore,
			row.CalibratedScore, row.Weight, row.VotesMatch, row.Counted, gap); err != nil {
			return fmt.Errorf("insert audit row %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit audit write: %w", err)
	}
	return nil
}

// Get reads one record back from its canonical JSON.
func (p *Postgres) Get(ctx context.Context, recordID string) (audit.Record, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT body FROM decision_audit WHERE record_id = $1`, recordID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Record{}, fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	if err != nil {
		return audit.Record{}, fmt.Errorf("read audit record: %w", err)
	}
	return audit.Unmarshal(body)
}
