package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MishC/NotatApp/core"
)

const credentialColumns = `id, email, phone, password_hash, failed_attempts, lockout_until, created_at`

// Create inserts a new credential with a hashed password
func (s *Storage) Create(ctx context.Context, in core.NewCredential) (*core.Credential, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	cred := &core.Credential{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        in.Phone,
		PasswordHash: hash,
		CreatedAt:    s.nowFn().UTC().Truncate(time.Millisecond),
	}

	// ON CONFLICT DO NOTHING lets the unique index decide races between registrations
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, email, phone, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING
	`, cred.ID, cred.Email, cred.Phone, cred.PasswordHash, toMillis(cred.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	if n == 0 {
		return nil, core.ErrDuplicateAccount
	}

	return cred, nil
}

// FindByEmail looks a credential up by its normalized email
func (s *Storage) FindByEmail(ctx context.Context, email string) (*core.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanCredential(row)
}

// FindByID looks a credential up by subject id
func (s *Storage) FindByID(ctx context.Context, id string) (*core.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = ?`, id)
	return scanCredential(row)
}

func (s *Storage) VerifyPassword(ctx context.Context, id, plaintext string) (bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM credentials WHERE id = ?`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, core.ErrNotFound
		}
		return false, fmt.Errorf("failed to load password hash: %w", err)
	}
	return s.hasher.Matches(hash, plaintext)
}

func (s *Storage) IsLockedOut(ctx context.Context, id string) (bool, error) {
	var until sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT lockout_until FROM credentials WHERE id = ?`, id).Scan(&until)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, core.ErrNotFound
		}
		return false, fmt.Errorf("failed to load lockout: %w", err)
	}
	return until.Valid && until.Int64 > toMillis(s.nowFn()), nil
}

// RecordFailedAttempt increments the counter and sets the lockout in one statement.
// Tripping the lockout starts the counter over.
func (s *Storage) RecordFailedAttempt(ctx context.Context, id string) error {
	lockUntil := toMillis(s.nowFn().Add(s.policy.Duration))
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET failed_attempts = CASE WHEN failed_attempts + 1 >= ? THEN 0 ELSE failed_attempts + 1 END,
		    lockout_until = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE lockout_until END
		WHERE id = ?
	`, s.policy.Threshold, s.policy.Threshold, lockUntil, id)
	if err != nil {
		return fmt.Errorf("failed to record failed attempt: %w", err)
	}
	return requireRow(res)
}

func (s *Storage) ResetFailedAttempts(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET failed_attempts = 0, lockout_until = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to reset failed attempts: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func scanCredential(row *sql.Row) (*core.Credential, error) {
	var (
		cred      core.Credential
		lockout   sql.NullInt64
		createdAt int64
	)
	err := row.Scan(&cred.ID, &cred.Email, &cred.Phone, &cred.PasswordHash, &cred.FailedAttempts, &lockout, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}
	if lockout.Valid {
		until := fromMillis(lockout.Int64)
		cred.LockoutUntil = &until
	}
	cred.CreatedAt = fromMillis(createdAt)
	return &cred, nil
}
