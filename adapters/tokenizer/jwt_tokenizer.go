package tokenizer

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MishC/NotatApp/core"
)

const (
	// DefaultAccessTTL is the lifetime of an access token
	DefaultAccessTTL = 15 * time.Minute

	refreshTokenBytes = 32
	minSigningKeyLen  = 32
)

// Config holds the signing material and the claims checked by resource servers
type Config struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
}

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	cfg   Config
	nowFn func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(cfg Config) (*JWTTokenizer, error) {
	if len(cfg.SigningKey) < minSigningKeyLen {
		return nil, fmt.Errorf("signing key must be at least %d bytes", minSigningKeyLen)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	return &JWTTokenizer{cfg: cfg, nowFn: time.Now}, nil
}

// IssueAccessToken mints a signed access token for the subject
func (j *JWTTokenizer) IssueAccessToken(subjectID, email string) (string, time.Time, error) {
	if subjectID == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", core.ErrInternal)
	}

	now := j.nowFn().UTC()
	expiresAt := now.Add(j.cfg.AccessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    j.cfg.Issuer,
			Audience:  jwt.ClaimStrings{j.cfg.Audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(j.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: sign access token: %v", core.ErrInternal, err)
	}

	return signedToken, expiresAt, nil
}

// ParseAccessToken verifies signature, issuer, audience and expiry
func (j *JWTTokenizer) ParseAccessToken(tokenStr string) (core.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.cfg.Issuer),
		jwt.WithAudience(j.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.nowFn),
	)
	if err != nil {
		return core.AccessClaims{}, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}

	// Validate token
	if !token.Valid {
		return core.AccessClaims{}, core.ErrUnauthenticated
	}

	// Extract claims
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || claims.Subject == "" {
		return core.AccessClaims{}, fmt.Errorf("%w: invalid claims", core.ErrUnauthenticated)
	}

	out := core.AccessClaims{
		ID:        claims.ID,
		SubjectID: claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// IssueRefreshToken returns 256 bits of randomness encoded for cookies
func (j *JWTTokenizer) IssueRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: generate refresh token: %v", core.ErrInternal, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
