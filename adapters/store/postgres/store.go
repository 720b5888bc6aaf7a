package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MishC/NotatApp/adapters/store"
	"github.com/MishC/NotatApp/core"
)

type credentialModel struct {
	ID                    uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email                 string     `gorm:"column:email"`
	Phone                 string     `gorm:"column:phone"`
	PasswordHash          string     `gorm:"column:password_hash"`
	FailedAttempts        int        `gorm:"column:failed_attempts"`
	LockoutUntil          *time.Time `gorm:"column:lockout_until"`
	RefreshToken          *string    `gorm:"column:refresh_token"`
	RefreshTokenExpiresAt *time.Time `gorm:"column:refresh_token_expires_at"`
	CreatedAt             time.Time  `gorm:"column:created_at"`
}

func (credentialModel) TableName() string { return "credentials" }

func (m credentialModel) toCore() *core.Credential {
	cred := &core.Credential{
		ID:             m.ID.String(),
		Email:          m.Email,
		Phone:          m.Phone,
		PasswordHash:   m.PasswordHash,
		FailedAttempts: m.FailedAttempts,
		CreatedAt:      m.CreatedAt.UTC(),
	}
	if m.LockoutUntil != nil {
		until := m.LockoutUntil.UTC()
		cred.LockoutUntil = &until
	}
	return cred
}

// Store keeps credentials and their refresh session in Postgres.
// It implements both ports.CredentialStore and ports.SessionStore.
type Store struct {
	db     *gorm.DB
	hasher *store.BcryptHasher
	policy store.LockoutPolicy
	nowFn  func() time.Time
}

// NewStore wraps an already migrated connection
func NewStore(db *gorm.DB, hasher *store.BcryptHasher, policy store.LockoutPolicy) *Store {
	return &Store{db: db, hasher: hasher, policy: policy.WithDefaults(), nowFn: time.Now}
}

// SetClock overrides the time source used for lockout decisions
func (s *Store) SetClock(nowFn func() time.Time) {
	s.nowFn = nowFn
}

func (s *Store) Create(ctx context.Context, in core.NewCredential) (*core.Credential, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	rec := credentialModel{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        in.Phone,
		PasswordHash: hash,
		CreatedAt:    s.nowFn().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, core.ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create credential: %w", err)
	}
	return rec.toCore(), nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*core.Credential, error) {
	return s.take(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) FindByID(ctx context.Context, id string) (*core.Credential, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, core.ErrNotFound
	}
	return s.take(ctx, "id = ?", uid)
}

func (s *Store) take(ctx context.Context, query string, arg any) (*core.Credential, error) {
	var rec credentialModel
	if err := s.db.WithContext(ctx).Where(query, arg).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return rec.toCore(), nil
}

func (s *Store) VerifyPassword(ctx context.Context, id, plaintext string) (bool, error) {
	cred, err := s.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return s.hasher.Matches(cred.PasswordHash, plaintext)
}

func (s *Store) IsLockedOut(ctx context.Context, id string) (bool, error) {
	cred, err := s.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return cred.LockoutUntil != nil && cred.LockoutUntil.After(s.nowFn()), nil
}

// RecordFailedAttempt increments the counter and sets the lockout in one statement.
// Tripping the lockout starts the counter over.
func (s *Store) RecordFailedAttempt(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return core.ErrNotFound
	}
	lockUntil := s.nowFn().Add(s.policy.Duration).UTC()
	res := s.db.WithContext(ctx).
		Model(&credentialModel{}).
		Where("id = ?", uid).
		Updates(map[string]any{
			"failed_attempts": gorm.Expr("CASE WHEN failed_attempts + 1 >= ? THEN 0 ELSE failed_attempts + 1 END", s.policy.Threshold),
			"lockout_until":   gorm.Expr("CASE WHEN failed_attempts + 1 >= ? THEN ?::timestamptz ELSE lockout_until END", s.policy.Threshold, lockUntil),
		})
	if res.Error != nil {
		return fmt.Errorf("record failed attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) ResetFailedAttempts(ctx context.Context, id string) error {
	return s.updateByID(ctx, id, map[string]any{
		"failed_attempts": 0,
		"lockout_until":   nil,
	}, true)
}

// Save writes the subject's refresh session over any previous one
func (s *Store) Save(ctx context.Context, subjectID, token string, expiresAt time.Time) error {
	return s.updateByID(ctx, subjectID, map[string]any{
		"refresh_token":            token,
		"refresh_token_expires_at": expiresAt.UTC(),
	}, true)
}

// FindBySessionToken returns nil when no credential holds the token
func (s *Store) FindBySessionToken(ctx context.Context, token string) (*core.Session, error) {
	var rec credentialModel
	err := s.db.WithContext(ctx).
		Where("refresh_token = ?", token).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if rec.RefreshTokenExpiresAt == nil {
		return nil, nil
	}
	return &core.Session{SubjectID: rec.ID.String(), Token: token, ExpiresAt: rec.RefreshTokenExpiresAt.UTC()}, nil
}

// Clear drops the session columns; unknown subjects are not an error
func (s *Store) Clear(ctx context.Context, subjectID string) error {
	return s.updateByID(ctx, subjectID, map[string]any{
		"refresh_token":            nil,
		"refresh_token_expires_at": nil,
	}, false)
}

func (s *Store) updateByID(ctx context.Context, id string, values map[string]any, mustExist bool) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		if mustExist {
			return core.ErrNotFound
		}
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&credentialModel{}).
		Where("id = ?", uid).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update credential: %w", res.Error)
	}
	if mustExist && res.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}
