package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MishC/NotatApp/core"
)

// Save writes the subject's refresh session over any previous one
func (s *Storage) Save(ctx context.Context, subjectID, token string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET refresh_token = ?, refresh_token_expires_at = ? WHERE id = ?`,
		token, toMillis(expiresAt), subjectID)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return requireRow(res)
}

// FindBySessionToken returns nil when no credential holds the token
func (s *Storage) FindBySessionToken(ctx context.Context, token string) (*core.Session, error) {
	var (
		subjectID string
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, refresh_token_expires_at FROM credentials WHERE refresh_token = ?`, token).
		Scan(&subjectID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !expiresAt.Valid {
		return nil, nil
	}
	return &core.Session{SubjectID: subjectID, Token: token, ExpiresAt: fromMillis(expiresAt.Int64)}, nil
}

// Clear drops the session columns; unknown subjects are not an error
func (s *Storage) Clear(ctx context.Context, subjectID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET refresh_token = NULL, refresh_token_expires_at = NULL WHERE id = ?`, subjectID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
