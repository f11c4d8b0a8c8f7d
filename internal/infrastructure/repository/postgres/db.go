package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/draftwell/docassist/internal/core/domain"
)

const schemaLockKey = 2026083101

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the sources and document_chunks tables. The embedding
// column is vector(dim) when the pgvector extension is installable, else a
// plain real[]; DetectCapability reports which one the live database ended
// up with.
func EnsureSchema(ctx context.Context, db *sql.DB, targetDim int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(schemaLockKey)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	// The extension probe is fenced by a savepoint: when pgvector is not
	// installed the CREATE EXTENSION error would otherwise abort the whole
	// transaction and the DDL below could never run.
	embeddingType := "real[]"
	if _, err := tx.ExecContext(ctx, `SAVEPOINT vector_probe`); err != nil {
		return fmt.Errorf("create probe savepoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err == nil {
		embeddingType = fmt.Sprintf("vector(%d)", targetDim)
	} else {
		slog.Warn("pgvector_unavailable_using_array_column", "error", err)
		if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT vector_probe`); err != nil {
			return fmt.Errorf("recover from extension probe: %w", err)
		}
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sources_chat ON sources(tenant_id, user_id, chat_id, created_at DESC);

CREATE TABLE IF NOT EXISTS document_chunks (
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	source_id TEXT NOT NULL,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	embedding %s,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, user_id, chat_id, source_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON document_chunks(tenant_id, user_id, chat_id, source_id);
`, embeddingType)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}

	enableRowSecurity(ctx, db)
	return nil
}

// enableRowSecurity installs tenant/user row policies keyed on the
// app.tenant_id / app.user_id session settings. Application queries always
// filter by scope themselves; the policies reject a row when that filter is
// accidentally omitted. Requires table ownership, so failure is logged, not
// fatal.
func enableRowSecurity(ctx context.Context, db *sql.DB) {
	statements := []string{
		`ALTER TABLE document_chunks ENABLE ROW LEVEL SECURITY`,
		`CREATE POLICY chunks_scope_isolation ON document_chunks
			USING (tenant_id = current_setting('app.tenant_id', true)
			   AND user_id = current_setting('app.user_id', true))`,
		`ALTER TABLE sources ENABLE ROW LEVEL SECURITY`,
		`CREATE POLICY sources_scope_isolation ON sources
			USING (tenant_id = current_setting('app.tenant_id', true)
			   AND user_id = current_setting('app.user_id', true))`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			slog.Warn("row_level_security_setup_skipped", "error", err)
			return
		}
	}
}

// DetectCapability probes the live embedding column type once at startup.
func DetectCapability(ctx context.Context, db *sql.DB) (domain.VectorCapability, error) {
	var udtName string
	err := db.QueryRowContext(ctx, `
SELECT udt_name FROM information_schema.columns
WHERE table_name = 'document_chunks' AND column_name = 'embedding'
`).Scan(&udtName)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.CapabilityNone, nil
		}
		return domain.CapabilityNone, fmt.Errorf("probe embedding column: %w", err)
	}

	switch udtName {
	case "vector":
		return domain.CapabilityNative, nil
	case "_float4", "_float8":
		return domain.CapabilityArray, nil
	default:
		return domain.CapabilityNone, nil
	}
}

// withScope runs fn inside a transaction whose session settings carry the
// caller's tenant and user, so row-level-security policies apply to every
// statement in it.
func withScope(ctx context.Context, db *sql.DB, scope domain.Scope, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scoped tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`SELECT set_config('app.tenant_id', $1, true), set_config('app.user_id', $2, true)`,
		scope.TenantID, scope.UserID,
	); err != nil {
		return fmt.Errorf("set scope settings: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scoped tx: %w", err)
	}
	return nil
}
