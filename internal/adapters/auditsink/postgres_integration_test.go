//go:build integration

package auditsink_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/okian/boardcheck/internal/adapters/auditsink"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func TestPostgres_WriteOnce(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	sink, err := auditsink.NewPostgres(db)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM decision_audit_models WHERE record_id = 'it-r1'`)
		_, _ = db.Exec(`DELETE FROM decision_audit WHERE record_id = 'it-r1'`)
	})

	rec := record("it-r1")
	if err := sink.Write(ctx, rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := sink.Write(ctx, rec); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	altered := rec
	altered.CombinedScore = 0.12
	if err := sink.Write(ctx, altered); !errors.Is(err, auditsink.ErrConflict) {
		t.Fatalf("Write(reused id, other content) error = %v, want ErrConflict", err)
	}

	got, err := sink.Get(ctx, "it-r1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.CombinedScore != rec.CombinedScore || len(got.PerModelResults) != 2 {
		t.Errorf("Get() = %+v, want %+v", got, rec)
	}

	var rows int
	if err := db.QueryRow(`SELECT count(*) FROM decision_audit_models WHERE record_id = 'it-r1'`).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 2 {
		t.Errorf("model rows = %d, want 2", rows)
	}

	if _, err := sink.Get(ctx, "missing"); !errors.Is(err, auditsink.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}
