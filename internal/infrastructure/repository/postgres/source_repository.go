package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/draftwell/docassist/internal/core/domain"
)

type SourceRepository struct {
	db *sql.DB
}

func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) Create(ctx context.Context, src *domain.Source) error {
	scope := domain.Scope{TenantID: src.TenantID, UserID: src.UserID}
	return withScope(ctx, r.db, scope, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO sources (id, tenant_id, user_id, chat_id, name, mime_type, storage_path, size_bytes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
			src.ID, src.TenantID, src.UserID, src.ChatID, src.Name,
			src.MimeType, src.StoragePath, src.SizeBytes, src.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert source: %w", err)
		}
		return nil
	})
}

func (r *SourceRepository) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Source, error) {
	var src domain.Source
	err := withScope(ctx, r.db, scope, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
SELECT id, tenant_id, user_id, chat_id, name, mime_type, storage_path, size_bytes, created_at
FROM sources
WHERE tenant_id = $1 AND user_id = $2 AND id = $3
`, scope.TenantID, scope.UserID, id)

		err := row.Scan(
			&src.ID, &src.TenantID, &src.UserID, &src.ChatID, &src.Name,
			&src.MimeType, &src.StoragePath, &src.SizeBytes, &src.CreatedAt,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.WrapError(domain.ErrSourceNotFound, "get source", err)
			}
			return fmt.Errorf("scan source: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (r *SourceRepository) ListByChat(ctx context.Context, scope domain.Scope, chatID string) ([]domain.Source, error) {
	var out []domain.Source
	err := withScope(ctx, r.db, scope, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
SELECT id, tenant_id, user_id, chat_id, name, mime_type, storage_path, size_bytes, created_at
FROM sources
WHERE tenant_id = $1 AND user_id = $2 AND chat_id = $3
ORDER BY created_at DESC
`, scope.TenantID, scope.UserID, chatID)
		if err != nil {
			return fmt.Errorf("query chat sources: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var src domain.Source
			if err := rows.Scan(
				&src.ID, &src.TenantID, &src.UserID, &src.ChatID, &src.Name,
				&src.MimeType, &src.StoragePath, &src.SizeBytes, &src.CreatedAt,
			); err != nil {
				return fmt.Errorf("scan source row: %w", err)
			}
			out = append(out, src)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SourceRepository) Delete(ctx context.Context, scope domain.Scope, id string) error {
	return withScope(ctx, r.db, scope, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
DELETE FROM sources WHERE tenant_id = $1 AND user_id = $2 AND id = $3
`, scope.TenantID, scope.UserID, id)
		if err != nil {
			return fmt.Errorf("delete source: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete source rows affected: %w", err)
		}
		if affected == 0 {
			return domain.WrapError(domain.ErrSourceNotFound, "delete source", sql.ErrNoRows)
		}
		return nil
	})
}
