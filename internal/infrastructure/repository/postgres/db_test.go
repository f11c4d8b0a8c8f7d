package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/draftwell/docassist/internal/core/domain"
)

func TestEnsureSchemaUsesVectorColumnWhenExtensionInstalls(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT vector_probe").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`embedding vector\(4\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db, 4); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaFallsBackToArrayColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	// Without pgvector the CREATE EXTENSION statement fails; the savepoint
	// rollback must keep the transaction usable so the real[] DDL still runs.
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT vector_probe").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").
		WillReturnError(errors.New(`could not open extension control file "vector.control"`))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT vector_probe").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`embedding real\[\]`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db, 4); err != nil {
		t.Fatalf("EnsureSchema() should survive a missing extension, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDetectCapability(t *testing.T) {
	cases := []struct {
		name    string
		udtName string
		want    domain.VectorCapability
	}{
		{"pgvector column", "vector", domain.CapabilityNative},
		{"float4 array column", "_float4", domain.CapabilityArray},
		{"unexpected column type", "text", domain.CapabilityNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New() error = %v", err)
			}
			defer db.Close()

			mock.ExpectQuery("SELECT udt_name FROM information_schema").
				WillReturnRows(sqlmock.NewRows([]string{"udt_name"}).AddRow(tc.udtName))

			got, err := DetectCapability(context.Background(), db)
			if err != nil {
				t.Fatalf("DetectCapability() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("capability = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDetectCapabilityMissingColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT udt_name FROM information_schema").
		WillReturnError(sql.ErrNoRows)

	got, err := DetectCapability(context.Background(), db)
	if err != nil {
		t.Fatalf("DetectCapability() error = %v", err)
	}
	if got != domain.CapabilityNone {
		t.Fatalf("capability = %v, want none", got)
	}
}
