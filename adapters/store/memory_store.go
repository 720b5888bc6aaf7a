package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MishC/NotatApp/core"
)

// MemoryCredentialStore is an in-memory implementation of the CredentialStore interface.
// It is used by tests and by the memory storage driver.
type MemoryCredentialStore struct {
	byID    map[string]*core.Credential
	byEmail map[string]string
	mu      sync.RWMutex

	hasher *BcryptHasher
	policy LockoutPolicy
	nowFn  func() time.Time
}

// NewMemoryCredentialStore creates a new in-memory credential store
func NewMemoryCredentialStore(hasher *BcryptHasher, policy LockoutPolicy) *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:    make(map[string]*core.Credential),
		byEmail: make(map[string]string),
		hasher:  hasher,
		policy:  policy.WithDefaults(),
		nowFn:   time.Now,
	}
}

// SetClock overrides the time source used for lockout decisions
func (s *MemoryCredentialStore) SetClock(nowFn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = nowFn
}

func (s *MemoryCredentialStore) Create(ctx context.Context, in core.NewCredential) (*core.Credential, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, core.ErrDuplicateAccount
	}
	cred := &core.Credential{
		ID:           uuid.NewString(),
		Email:        email,
		Phone:        in.Phone,
		PasswordHash: hash,
		CreatedAt:    s.nowFn().UTC(),
	}
	s.byID[cred.ID] = cred
	s.byEmail[email] = cred.ID

	out := *cred
	return &out, nil
}

func (s *MemoryCredentialStore) FindByEmail(ctx context.Context, email string) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *MemoryCredentialStore) FindByID(ctx context.Context, id string) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *cred
	return &out, nil
}

func (s *MemoryCredentialStore) VerifyPassword(ctx context.Context, id, plaintext string) (bool, error) {
	s.mu.RLock()
	cred, ok := s.byID[id]
	var hash string
	if ok {
		hash = cred.PasswordHash
	}
	s.mu.RUnlock()

	if !ok {
		return false, core.ErrNotFound
	}
	return s.hasher.Matches(hash, plaintext)
}

func (s *MemoryCredentialStore) IsLockedOut(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[id]
	if !ok {
		return false, core.ErrNotFound
	}
	return cred.LockoutUntil != nil && cred.LockoutUntil.After(s.nowFn()), nil
}

func (s *MemoryCredentialStore) RecordFailedAttempt(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return core.ErrNotFound
	}
	cred.FailedAttempts++
	if cred.FailedAttempts >= s.policy.Threshold {
		until := s.nowFn().Add(s.policy.Duration).UTC()
		cred.LockoutUntil = &until
		cred.FailedAttempts = 0
	}
	return nil
}

func (s *MemoryCredentialStore) ResetFailedAttempts(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return core.ErrNotFound
	}
	cred.FailedAttempts = 0
	cred.LockoutUntil = nil
	return nil
}

// MemorySessionStore is an in-memory implementation of the SessionStore interface
type MemorySessionStore struct {
	bySubject map[string]core.Session
	byToken   map[string]string
	mu        sync.RWMutex
}

// NewMemorySessionStore creates a new in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		bySubject: make(map[string]core.Session),
		byToken:   make(map[string]string),
	}
}

func (s *MemorySessionStore) Save(ctx context.Context, subjectID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.bySubject[subjectID]; ok {
		delete(s.byToken, prev.Token)
	}
	s.bySubject[subjectID] = core.Session{SubjectID: subjectID, Token: token, ExpiresAt: expiresAt}
	s.byToken[token] = subjectID
	return nil
}

func (s *MemorySessionStore) FindBySessionToken(ctx context.Context, token string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subjectID, ok := s.byToken[token]
	if !ok {
		return nil, nil
	}
	session := s.bySubject[subjectID]
	return &session, nil
}

func (s *MemorySessionStore) Clear(ctx context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.bySubject[subjectID]; ok {
		delete(s.byToken, prev.Token)
		delete(s.bySubject, subjectID)
	}
	return nil
}

// MemoryChallengeStore is an in-memory implementation of the ChallengeStore interface
type MemoryChallengeStore struct {
	challenges map[string]core.Challenge
	mu         sync.Mutex
	nowFn      func() time.Time
}

// NewMemoryChallengeStore creates a new in-memory challenge store
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]core.Challenge),
		nowFn:      time.Now,
	}
}

// SetClock overrides the time source used to drop expired challenges
func (s *MemoryChallengeStore) SetClock(nowFn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = nowFn
}

func challengeKey(subjectID string, channel core.Channel) string {
	return subjectID + "|" + string(channel)
}

func (s *MemoryChallengeStore) Put(ctx context.Context, challenge core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challengeKey(challenge.SubjectID, challenge.Channel)] = challenge
	return nil
}

func (s *MemoryChallengeStore) Get(ctx context.Context, subjectID string, channel core.Channel) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey(subjectID, channel)
	challenge, ok := s.challenges[key]
	if !ok {
		return nil, nil
	}
	if challenge.Expired(s.nowFn()) {
		delete(s.challenges, key)
		return nil, nil
	}
	return &challenge, nil
}

func (s *MemoryChallengeStore) Consume(ctx context.Context, challenge core.Challenge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey(challenge.SubjectID, challenge.Channel)
	stored, ok := s.challenges[key]
	if !ok || stored.Code != challenge.Code || !stored.IssuedAt.Equal(challenge.IssuedAt) {
		return false, nil
	}
	delete(s.challenges, key)
	return true, nil
}
