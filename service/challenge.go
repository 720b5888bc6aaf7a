package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/MishC/NotatApp/core"
	"github.com/MishC/NotatApp/ports"
)

const codeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// dummyCode keeps the comparison shape identical when no challenge exists
const dummyCode = "000000"

// ChallengeIssuer creates time-boxed one-time codes
type ChallengeIssuer struct {
	store     ports.ChallengeStore
	ttl       time.Duration
	fixedCode string
	nowFn     func() time.Time
}

// NewChallengeIssuer creates an issuer; a non-empty fixedCode replaces random codes
func NewChallengeIssuer(store ports.ChallengeStore, ttl time.Duration, fixedCode string) *ChallengeIssuer {
	return &ChallengeIssuer{store: store, ttl: ttl, fixedCode: fixedCode, nowFn: time.Now}
}

// Issue binds a fresh code to the credential and channel.
// A credential without a destination for the channel is a validation error.
func (i *ChallengeIssuer) Issue(ctx context.Context, cred *core.Credential, channel core.Channel) (core.Challenge, error) {
	if _, err := cred.Destination(channel); err != nil {
		return core.Challenge{}, err
	}

	code := i.fixedCode
	if code == "" {
		var err error
		if code, err = generateCode(); err != nil {
			return core.Challenge{}, err
		}
	}

	now := i.nowFn().UTC()
	challenge := core.Challenge{
		SubjectID: cred.ID,
		Channel:   channel,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}
	if err := i.store.Put(ctx, challenge); err != nil {
		return core.Challenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return challenge, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// ChallengeVerifier checks presented codes and consumes them on success
type ChallengeVerifier struct {
	store ports.ChallengeStore
	nowFn func() time.Time
}

func NewChallengeVerifier(store ports.ChallengeStore) *ChallengeVerifier {
	return &ChallengeVerifier{store: store, nowFn: time.Now}
}

// Verify reports whether code matches the live challenge for subject and channel.
// Only the first successful verification of a challenge returns true, and a
// challenge replaced by a newer login after it was read is not consumed.
func (v *ChallengeVerifier) Verify(ctx context.Context, subjectID string, channel core.Channel, code string) (bool, error) {
	challenge, err := v.store.Get(ctx, subjectID, channel)
	if err != nil {
		return false, fmt.Errorf("load challenge: %w", err)
	}

	expected := dummyCode
	live := challenge != nil && !challenge.Expired(v.nowFn())
	if live {
		expected = challenge.Code
	}
	match := subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1
	if !live || !match {
		return false, nil
	}

	consumed, err := v.store.Consume(ctx, *challenge)
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	return consumed, nil
}
