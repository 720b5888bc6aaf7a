package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MishC/NotatApp/adapters/store"
	"github.com/MishC/NotatApp/adapters/throttle"
	"github.com/MishC/NotatApp/adapters/tokenizer"
	"github.com/MishC/NotatApp/core"
	"github.com/MishC/NotatApp/ports"
)

type sentMessage struct {
	Destination string
	Subject     string
	Body        string
}

// captureNotifier records messages instead of delivering them
type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *captureNotifier) Send(ctx context.Context, destination, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{Destination: destination, Subject: subject, Body: body})
	return nil
}

func (n *captureNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no message was sent")
	body := n.sent[len(n.sent)-1].Body
	require.GreaterOrEqual(t, len(body), codeDigits)
	return body[len(body)-codeDigits:]
}

type recordingEvents struct {
	mu     sync.Mutex
	events []ports.AuthEvent
	err    error
}

func (r *recordingEvents) Publish(ctx context.Context, event ports.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	svc         *AuthService
	credentials *store.MemoryCredentialStore
	sessions    *store.MemorySessionStore
	challenges  *store.MemoryChallengeStore
	throttle    *throttle.MemoryThrottle
	email       *captureNotifier
	sms         *captureNotifier
	events      *recordingEvents
	now         time.Time
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		credentials: store.NewMemoryCredentialStore(store.NewBcryptHasher(4), store.LockoutPolicy{}),
		sessions:    store.NewMemorySessionStore(),
		challenges:  store.NewMemoryChallengeStore(),
		throttle:    throttle.NewMemoryThrottle(throttle.Config{}),
		email:       &captureNotifier{},
		sms:         &captureNotifier{},
		events:      &recordingEvents{},
		now:         time.Now(),
	}

	tok, err := tokenizer.NewJWTTokenizer(tokenizer.Config{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "notatapp-test",
		Audience:   "notatapp-test-clients",
		AccessTTL:  cfg.AccessTTL,
	})
	require.NoError(t, err)

	svc, err := NewAuthService(Dependencies{
		Credentials:   h.credentials,
		Sessions:      h.sessions,
		Challenges:    h.challenges,
		Tokenizer:     tok,
		Throttle:      h.throttle,
		EmailNotifier: h.email,
		SMSNotifier:   h.sms,
		Events:        h.events,
	}, cfg)
	require.NoError(t, err)

	clock := func() time.Time { return h.now }
	svc.SetClock(clock)
	h.credentials.SetClock(clock)
	h.challenges.SetClock(clock)
	h.throttle.SetClock(clock)
	h.svc = svc
	return h
}

func (h *harness) register(t *testing.T, email, phone string) *core.Credential {
	t.Helper()
	cred, err := h.svc.Register(context.Background(), RegisterRequest{Email: email, Password: "Passw0rd!", Phone: phone})
	require.NoError(t, err)
	return cred
}

func TestAuthService_AliceScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	login, err := h.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "Passw0rd!", Channel: "email", ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, login.FlowID)
	assert.Equal(t, core.ChannelEmail, login.Channel)
	assert.Empty(t, login.Code, "codes are not exposed by default")

	require.Len(t, h.email.sent, 1)
	assert.Equal(t, "alice@example.com", h.email.sent[0].Destination)
	assert.Equal(t, "Your login code", h.email.sent[0].Subject)

	pair, err := h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: h.email.lastCode(t), Channel: "email"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.WithinDuration(t, h.now.Add(7*24*time.Hour), pair.SessionExpiresAt, time.Second)

	h.now = h.now.Add(time.Hour)
	refreshed, err := h.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, pair.RefreshToken, refreshed.RefreshToken, "fixed session keeps its value")
	assert.True(t, pair.SessionExpiresAt.Equal(refreshed.SessionExpiresAt), "fixed session keeps its expiry")
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), refreshed.AccessExpiresAt, 5*time.Second)

	claims, err := h.svc.Authenticate(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.SubjectID)
	assert.Equal(t, "alice@example.com", claims.Email)

	require.NoError(t, h.svc.Logout(ctx, alice.ID))
	_, err = h.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)

	require.NoError(t, h.svc.Logout(ctx, alice.ID), "logout is idempotent")

	assert.Equal(t, []string{
		ports.EventRegistered,
		ports.EventChallengeIssued,
		ports.EventAuthenticated,
		ports.EventLogout,
		ports.EventLogout,
	}, h.events.types())
}

func TestAuthService_UnregisteredEmail(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "Passw0rd!", Channel: "email"})
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
	assert.NotErrorIs(t, err, core.ErrDuplicateAccount)
}

func TestAuthService_WrongCodeIssuesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!", Channel: "email"})
	require.NoError(t, err)
	code := h.email.lastCode(t)

	wrong := "999999"
	if code == wrong {
		wrong = "888888"
	}
	pair, err := h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: wrong, Channel: "email"})
	assert.ErrorIs(t, err, core.ErrInvalidOrExpiredCode)
	assert.Nil(t, pair)

	// still awaiting the factor: the right code works until expiry
	pair, err = h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: code, Channel: "email"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestAuthService_CodeBoundToChannel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "+421900111222")

	login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!", Channel: "sms"})
	require.NoError(t, err)
	assert.Equal(t, core.ChannelSMS, login.Channel)
	require.Len(t, h.sms.sent, 1)
	assert.Equal(t, "+421900111222", h.sms.sent[0].Destination)
	assert.Empty(t, h.email.sent)

	code := h.sms.lastCode(t)
	_, err = h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: code, Channel: "email"})
	assert.ErrorIs(t, err, core.ErrInvalidOrExpiredCode)

	_, err = h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: code, Channel: "sms"})
	assert.NoError(t, err)
}

func TestAuthService_CodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!"})
	require.NoError(t, err)
	code := h.email.lastCode(t)

	_, err = h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: code})
	require.NoError(t, err)
	_, err = h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: code})
	assert.ErrorIs(t, err, core.ErrInvalidOrExpiredCode)
}

func TestAuthService_ConcurrentVerifyOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!"})
	require.NoError(t, err)
	code := h.email.lastCode(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: code}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestAuthService_CodeExpires(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!"})
	require.NoError(t, err)
	code := h.email.lastCode(t)

	h.now = h.now.Add(DefaultChallengeTTL)
	_, err = h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: code})
	assert.ErrorIs(t, err, core.ErrInvalidOrExpiredCode)
}

func TestAuthService_UnknownFlow(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.VerifyFactor(context.Background(), VerifyRequest{FlowID: "missing", Code: "123456"})
	assert.ErrorIs(t, err, core.ErrInvalidOrExpiredCode)
}

func TestAuthService_ThrottleRejectsBeforeCredentialCheck(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	for i := 0; i < throttle.DefaultLimit; i++ {
		_, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "wrong", ClientIP: "10.0.0.1"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, core.ErrRateLimited)
	}

	_, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "wrong", ClientIP: "10.0.0.1"})
	assert.ErrorIs(t, err, core.ErrRateLimited)

	got, err := h.credentials.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, throttle.DefaultLimit, got.FailedAttempts, "throttled call never reached the credential store")

	_, err = h.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "x", ClientIP: "10.0.0.2"})
	assert.ErrorIs(t, err, core.ErrInvalidCredentials, "other clients have their own window")

	h.now = h.now.Add(throttle.DefaultWindow)
	_, err = h.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "x", ClientIP: "10.0.0.1"})
	assert.ErrorIs(t, err, core.ErrInvalidCredentials, "window rolled over")
}

func TestAuthService_GlobalThrottleScope(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *Config) { c.ThrottleScope = ThrottleGlobal })

	for i := 0; i < throttle.DefaultLimit; i++ {
		_, err := h.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "x", ClientIP: "10.0.0.1"})
		require.ErrorIs(t, err, core.ErrInvalidCredentials)
	}
	_, err := h.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "x", ClientIP: "10.0.0.99"})
	assert.ErrorIs(t, err, core.ErrRateLimited)
}

func TestAuthService_Lockout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	var err error
	for i := 0; i < store.DefaultLockoutThreshold; i++ {
		// distinct clients keep the throttle out of the way
		_, err = h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "wrong", ClientIP: "10.0.1." + string(rune('a'+i))})
	}
	assert.ErrorIs(t, err, core.ErrAccountLocked, "the failure that trips the lock reports it")

	_, err = h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!", ClientIP: "10.0.2.1"})
	assert.ErrorIs(t, err, core.ErrAccountLocked, "correct password is refused while locked")
	assert.Empty(t, h.email.sent)

	h.now = h.now.Add(store.DefaultLockoutDuration + time.Second)
	_, err = h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "wrong", ClientIP: "10.0.3.1"})
	assert.ErrorIs(t, err, core.ErrInvalidCredentials, "one failure after expiry does not lock again")

	_, err = h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!", ClientIP: "10.0.2.1"})
	assert.NoError(t, err)
}

func TestAuthService_SuccessfulPasswordResetsCounter(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	for i := 0; i < 2; i++ {
		_, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "wrong"})
		require.ErrorIs(t, err, core.ErrInvalidCredentials)
	}

	login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!"})
	require.NoError(t, err)
	_, err = h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: "not-it"})
	require.ErrorIs(t, err, core.ErrInvalidOrExpiredCode)

	got, err := h.credentials.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedAttempts)
}

func TestAuthService_RefreshExpiredSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!"})
	require.NoError(t, err)
	pair, err := h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: h.email.lastCode(t)})
	require.NoError(t, err)

	h.now = h.now.Add(DefaultSessionTTL)
	_, err = h.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrUnauthenticated, "row still exists but is expired")

	_, err = h.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	_, err = h.svc.Refresh(ctx, "unknown")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestAuthService_NewLoginReplacesSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	verify := func() *TokenPair {
		login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!"})
		require.NoError(t, err)
		pair, err := h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: h.email.lastCode(t)})
		require.NoError(t, err)
		return pair
	}

	first := verify()
	second := verify()
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err := h.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	_, err = h.svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_RotateOnRefresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *Config) { c.RotateOnRefresh = true })
	alice := h.register(t, "alice@example.com", "")

	login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!"})
	require.NoError(t, err)
	pair, err := h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: h.email.lastCode(t)})
	require.NoError(t, err)

	h.now = h.now.Add(24 * time.Hour)
	rotated, err := h.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.True(t, pair.SessionExpiresAt.Equal(rotated.SessionExpiresAt), "rotation never extends the session")

	_, err = h.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	_, err = h.svc.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_DevBypass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *Config) {
		c.EnforceSecondFactor = false
		c.ExposeCode = true
	})
	alice := h.register(t, "alice@example.com", "")

	login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!"})
	require.NoError(t, err)
	assert.Equal(t, DefaultFixedDevCode, login.Code)

	_, err = h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: DefaultFixedDevCode})
	assert.NoError(t, err)
}

func TestAuthService_SMSWithoutPhone(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	_, err := h.svc.Login(context.Background(), LoginRequest{Email: alice.Email, Password: "Passw0rd!", Channel: "sms"})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, h.sms.sent)
	assert.Empty(t, h.email.sent, "never degraded to another channel")
}

func TestAuthService_DeliveryFailure(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")
	h.email.err = errors.New("provider down")

	_, err := h.svc.Login(context.Background(), LoginRequest{Email: alice.Email, Password: "Passw0rd!"})
	assert.ErrorIs(t, err, core.ErrDeliveryFailure)
	assert.NotErrorIs(t, err, core.ErrInvalidOrExpiredCode)
}

func TestAuthService_EventFailureIsBestEffort(t *testing.T) {
	h := newHarness(t, nil)
	h.events.err = errors.New("broker down")

	_, err := h.svc.Register(context.Background(), RegisterRequest{Email: "alice@example.com", Password: "Passw0rd!"})
	assert.NoError(t, err)
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr error
	}{
		{name: "valid", req: RegisterRequest{Email: "Bob@Example.com", Password: "Passw0rd!", Phone: "+421 900 111 222"}},
		{name: "duplicate", req: RegisterRequest{Email: "bob@example.com", Password: "Passw0rd!"}, wantErr: core.ErrDuplicateAccount},
		{name: "weak password", req: RegisterRequest{Email: "carol@example.com", Password: "password"}, wantErr: core.ErrValidation},
		{name: "bad email", req: RegisterRequest{Email: "not-an-email", Password: "Passw0rd!"}, wantErr: core.ErrValidation},
		{name: "bad phone", req: RegisterRequest{Email: "dave@example.com", Password: "Passw0rd!", Phone: "call me"}, wantErr: core.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := h.svc.Register(ctx, tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "bob@example.com", cred.Email)
			assert.Equal(t, "+421900111222", cred.Phone)
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	_, err = h.svc.Authenticate(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestAuthService_LogoutSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com", "")

	login, err := h.svc.Login(ctx, LoginRequest{Email: alice.Email, Password: "Passw0rd!"})
	require.NoError(t, err)
	pair, err := h.svc.VerifyFactor(ctx, VerifyRequest{FlowID: login.FlowID, Code: h.email.lastCode(t)})
	require.NoError(t, err)

	require.NoError(t, h.svc.LogoutSession(ctx, pair.RefreshToken))
	require.NoError(t, h.svc.LogoutSession(ctx, pair.RefreshToken))
	_, err = h.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.AccessTTL = cfg.SessionTTL
	assert.Error(t, cfg.Validate(), "access tokens must be shorter lived than sessions")

	cfg = DefaultConfig()
	cfg.EnforceSecondFactor = false
	cfg.FixedDevCode = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ThrottleScope = "per-planet"
	assert.Error(t, cfg.Validate())
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Len(t, code, codeDigits)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9')
		}
	}
}

// interleavingChallenges runs afterGet once, between the verifier's read and its consume
type interleavingChallenges struct {
	*store.MemoryChallengeStore
	afterGet func()
}

func (s *interleavingChallenges) Get(ctx context.Context, subjectID string, channel core.Channel) (*core.Challenge, error) {
	c, err := s.MemoryChallengeStore.Get(ctx, subjectID, channel)
	if s.afterGet != nil {
		hook := s.afterGet
		s.afterGet = nil
		hook()
	}
	return c, err
}

func TestChallengeVerifier_ReissueBetweenReadAndConsume(t *testing.T) {
	ctx := context.Background()
	challenges := &interleavingChallenges{MemoryChallengeStore: store.NewMemoryChallengeStore()}
	issuer := NewChallengeIssuer(challenges, time.Minute, "")
	verifier := NewChallengeVerifier(challenges)
	cred := &core.Credential{ID: "u1", Email: "alice@example.com"}

	first, err := issuer.Issue(ctx, cred, core.ChannelEmail)
	require.NoError(t, err)

	var second core.Challenge
	challenges.afterGet = func() {
		issuer.nowFn = func() time.Time { return first.IssuedAt.Add(time.Second) }
		second, err = issuer.Issue(ctx, cred, core.ChannelEmail)
		require.NoError(t, err)
	}

	ok, err := verifier.Verify(ctx, "u1", core.ChannelEmail, first.Code)
	require.NoError(t, err)
	assert.False(t, ok, "a replaced challenge cannot be consumed")

	ok, err = verifier.Verify(ctx, "u1", core.ChannelEmail, second.Code)
	require.NoError(t, err)
	assert.True(t, ok, "the newer challenge is still live")
}
