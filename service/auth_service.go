package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MishC/NotatApp/core"
	"github.com/MishC/NotatApp/ports"
)

// Dependencies are the collaborators of the auth flow.
// Events and Logger are optional.
type Dependencies struct {
	Credentials ports.CredentialStore
	Sessions    ports.SessionStore
	Challenges  ports.ChallengeStore
	Tokenizer   ports.Tokenizer
	Throttle    ports.Throttle

	EmailNotifier ports.Notifier
	SMSNotifier   ports.Notifier

	Events ports.EventPublisher
	Logger *slog.Logger
}

// AuthService handles authentication business logic
type AuthService struct {
	credentials ports.CredentialStore
	sessions    ports.SessionStore
	tokenizer   ports.Tokenizer
	throttle    ports.Throttle
	notifiers   map[core.Channel]ports.Notifier
	eventPub    ports.EventPublisher
	logger      *slog.Logger

	issuer   *ChallengeIssuer
	verifier *ChallengeVerifier

	cfg   Config
	nowFn func() time.Time
}

// RegisterRequest is the input of Register
type RegisterRequest struct {
	Email    string
	Password string
	Phone    string
}

// LoginRequest is the input of Login. ClientIP keys the throttle in client scope.
type LoginRequest struct {
	Email    string
	Password string
	Channel  string
	ClientIP string
}

// LoginResult identifies the pending second-factor flow
type LoginResult struct {
	FlowID  string
	Channel core.Channel
	Code    string // Only set when the config exposes codes
}

// VerifyRequest is the input of VerifyFactor
type VerifyRequest struct {
	FlowID  string
	Code    string
	Channel string
}

// TokenPair is handed to the client after verification or refresh
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	SessionExpiresAt time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(deps Dependencies, cfg Config) (*AuthService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	if deps.Credentials == nil || deps.Sessions == nil || deps.Challenges == nil ||
		deps.Tokenizer == nil || deps.Throttle == nil {
		return nil, errors.New("auth service: missing dependency")
	}
	if deps.EmailNotifier == nil || deps.SMSNotifier == nil {
		return nil, errors.New("auth service: both notifiers are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var eventPub ports.EventPublisher = nopEvents{}
	if deps.Events != nil {
		eventPub = deps.Events
	}

	fixedCode := ""
	if !cfg.EnforceSecondFactor {
		fixedCode = cfg.FixedDevCode
	}

	return &AuthService{
		credentials: deps.Credentials,
		sessions:    deps.Sessions,
		tokenizer:   deps.Tokenizer,
		throttle:    deps.Throttle,
		notifiers: map[core.Channel]ports.Notifier{
			core.ChannelEmail: deps.EmailNotifier,
			core.ChannelSMS:   deps.SMSNotifier,
		},
		eventPub: eventPub,
		logger:   logger.With("component", "auth"),
		issuer:   NewChallengeIssuer(deps.Challenges, cfg.ChallengeTTL, fixedCode),
		verifier: NewChallengeVerifier(deps.Challenges),
		cfg:      cfg,
		nowFn:    time.Now,
	}, nil
}

// SetClock overrides the time source of the flow and its challenges
func (s *AuthService) SetClock(nowFn func() time.Time) {
	s.nowFn = nowFn
	s.issuer.nowFn = nowFn
	s.verifier.nowFn = nowFn
}

// Register creates an account. It never logs the caller in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*core.Credential, error) {
	email, err := core.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := core.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	phone, err := core.NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	cred, err := s.credentials.Create(ctx, core.NewCredential{Email: email, Password: req.Password, Phone: phone})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateAccount) {
			return nil, err
		}
		return nil, s.internal(ctx, "register", err)
	}

	s.logger.InfoContext(ctx, "account registered", "operation", "register", "outcome", "success", "subject_id", cred.ID)
	s.publish(ctx, ports.AuthEvent{Type: ports.EventRegistered, SubjectID: cred.ID})
	return cred, nil
}

// Login checks the password and sends a second-factor code through the requested channel
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	allowed, err := s.throttle.Allow(ctx, s.cfg.throttleKey(req.ClientIP))
	if err != nil {
		return nil, s.internal(ctx, "login", fmt.Errorf("throttle: %w", err))
	}
	if !allowed {
		s.logger.WarnContext(ctx, "login throttled", "operation", "login", "outcome", "rate_limited")
		return nil, core.ErrRateLimited
	}

	channel, err := core.ParseChannel(req.Channel)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", core.ErrValidation)
	}

	cred, err := s.credentials.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrInvalidCredentials
		}
		return nil, s.internal(ctx, "login", err)
	}

	locked, err := s.credentials.IsLockedOut(ctx, cred.ID)
	if err != nil {
		return nil, s.internal(ctx, "login", err)
	}
	if locked {
		return nil, core.ErrAccountLocked
	}

	ok, err := s.credentials.VerifyPassword(ctx, cred.ID, req.Password)
	if err != nil {
		return nil, s.internal(ctx, "login", err)
	}
	if !ok {
		return nil, s.failedPassword(ctx, cred.ID)
	}

	if err := s.credentials.ResetFailedAttempts(ctx, cred.ID); err != nil {
		return nil, s.internal(ctx, "login", err)
	}

	challenge, err := s.issuer.Issue(ctx, cred, channel)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			return nil, err
		}
		return nil, s.internal(ctx, "login", err)
	}

	if err := s.deliver(ctx, cred, challenge); err != nil {
		s.logger.ErrorContext(ctx, "code delivery failed",
			"operation", "login",
			"outcome", "delivery_failure",
			"subject_id", cred.ID,
			"channel", string(channel),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", core.ErrDeliveryFailure, err)
	}

	s.logger.InfoContext(ctx, "second factor issued", "operation", "login", "outcome", "challenge_issued", "subject_id", cred.ID, "channel", string(channel))
	s.publish(ctx, ports.AuthEvent{Type: ports.EventChallengeIssued, SubjectID: cred.ID, Channel: string(channel)})

	result := &LoginResult{FlowID: cred.ID, Channel: channel}
	if s.cfg.ExposeCode {
		result.Code = challenge.Code
	}
	return result, nil
}

// failedPassword records the failure and reports whether it tripped the lockout
func (s *AuthService) failedPassword(ctx context.Context, subjectID string) error {
	if err := s.credentials.RecordFailedAttempt(ctx, subjectID); err != nil {
		return s.internal(ctx, "login", err)
	}
	locked, err := s.credentials.IsLockedOut(ctx, subjectID)
	if err != nil {
		return s.internal(ctx, "login", err)
	}
	if locked {
		s.logger.WarnContext(ctx, "account locked", "operation", "login", "outcome", "locked", "subject_id", subjectID)
		return core.ErrAccountLocked
	}
	return core.ErrInvalidCredentials
}

func (s *AuthService) deliver(ctx context.Context, cred *core.Credential, challenge core.Challenge) error {
	destination, err := cred.Destination(challenge.Channel)
	if err != nil {
		return err
	}
	notifier := s.notifiers[challenge.Channel]
	switch challenge.Channel {
	case core.ChannelSMS:
		return notifier.Send(ctx, destination, "", "Your NotatApp login code: "+challenge.Code)
	default:
		return notifier.Send(ctx, destination, "Your login code", "Your code: "+challenge.Code)
	}
}

// VerifyFactor completes a login with the code delivered out of band
func (s *AuthService) VerifyFactor(ctx context.Context, req VerifyRequest) (*TokenPair, error) {
	channel, err := core.ParseChannel(req.Channel)
	if err != nil {
		return nil, err
	}
	if req.FlowID == "" || req.Code == "" {
		return nil, fmt.Errorf("%w: flow id and code are required", core.ErrValidation)
	}

	cred, err := s.credentials.FindByID(ctx, req.FlowID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrInvalidOrExpiredCode
		}
		return nil, s.internal(ctx, "verify", err)
	}

	ok, err := s.verifier.Verify(ctx, cred.ID, channel, req.Code)
	if err != nil {
		return nil, s.internal(ctx, "verify", err)
	}
	if !ok {
		s.logger.InfoContext(ctx, "second factor rejected", "operation", "verify", "outcome", "invalid_code", "subject_id", cred.ID)
		return nil, core.ErrInvalidOrExpiredCode
	}

	accessToken, accessExp, err := s.tokenizer.IssueAccessToken(cred.ID, cred.Email)
	if err != nil {
		return nil, s.internal(ctx, "verify", err)
	}
	refreshToken, err := s.tokenizer.IssueRefreshToken()
	if err != nil {
		return nil, s.internal(ctx, "verify", err)
	}

	sessionExp := s.nowFn().Add(s.cfg.SessionTTL).UTC()
	if err := s.sessions.Save(ctx, cred.ID, refreshToken, sessionExp); err != nil {
		return nil, s.internal(ctx, "verify", err)
	}

	s.logger.InfoContext(ctx, "authenticated", "operation", "verify", "outcome", "success", "subject_id", cred.ID)
	s.publish(ctx, ports.AuthEvent{Type: ports.EventAuthenticated, SubjectID: cred.ID, Channel: string(channel)})

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		SessionExpiresAt: sessionExp,
	}, nil
}

// Refresh exchanges a live session token for a new access token.
// The session expiry is never extended; its value changes only with RotateOnRefresh.
func (s *AuthService) Refresh(ctx context.Context, sessionToken string) (*TokenPair, error) {
	if sessionToken == "" {
		return nil, core.ErrUnauthenticated
	}

	session, err := s.sessions.FindBySessionToken(ctx, sessionToken)
	if err != nil {
		return nil, s.internal(ctx, "refresh", err)
	}
	if session == nil || session.Expired(s.nowFn()) {
		return nil, core.ErrUnauthenticated
	}

	cred, err := s.credentials.FindByID(ctx, session.SubjectID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrUnauthenticated
		}
		return nil, s.internal(ctx, "refresh", err)
	}

	accessToken, accessExp, err := s.tokenizer.IssueAccessToken(cred.ID, cred.Email)
	if err != nil {
		return nil, s.internal(ctx, "refresh", err)
	}

	pair := &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     session.Token,
		SessionExpiresAt: session.ExpiresAt,
	}

	if s.cfg.RotateOnRefresh {
		rotated, err := s.tokenizer.IssueRefreshToken()
		if err != nil {
			return nil, s.internal(ctx, "refresh", err)
		}
		if err := s.sessions.Save(ctx, cred.ID, rotated, session.ExpiresAt); err != nil {
			return nil, s.internal(ctx, "refresh", err)
		}
		pair.RefreshToken = rotated
	}

	return pair, nil
}

// Logout clears the subject's session. Clearing an absent session is not an error.
func (s *AuthService) Logout(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return nil
	}
	if err := s.sessions.Clear(ctx, subjectID); err != nil {
		return s.internal(ctx, "logout", err)
	}
	s.logger.InfoContext(ctx, "logged out", "operation", "logout", "outcome", "success", "subject_id", subjectID)
	s.publish(ctx, ports.AuthEvent{Type: ports.EventLogout, SubjectID: subjectID})
	return nil
}

// LogoutSession clears the session holding token, if any
func (s *AuthService) LogoutSession(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	session, err := s.sessions.FindBySessionToken(ctx, sessionToken)
	if err != nil {
		return s.internal(ctx, "logout", err)
	}
	if session == nil {
		return nil
	}
	return s.Logout(ctx, session.SubjectID)
}

// Authenticate verifies an access token. It touches no shared state.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (core.AccessClaims, error) {
	if accessToken == "" {
		return core.AccessClaims{}, core.ErrUnauthenticated
	}
	claims, err := s.tokenizer.ParseAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, core.ErrUnauthenticated) {
			return core.AccessClaims{}, err
		}
		return core.AccessClaims{}, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	return claims, nil
}

func (s *AuthService) publish(ctx context.Context, event ports.AuthEvent) {
	if err := s.eventPub.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish auth event", "event", event.Type, "subject_id", event.SubjectID, "error", err)
	}
}

// internal logs an unexpected fault and hides it behind ErrInternal
func (s *AuthService) internal(ctx context.Context, operation string, err error) error {
	s.logger.ErrorContext(ctx, "auth operation failed", "operation", operation, "outcome", "failure", "error", err)
	return fmt.Errorf("%w: %s", core.ErrInternal, operation)
}

type nopEvents struct{}

func (nopEvents) Publish(context.Context, ports.AuthEvent) error { return nil }
