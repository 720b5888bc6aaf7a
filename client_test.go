package notatapp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MishC/NotatApp/adapters/store"
	"github.com/MishC/NotatApp/adapters/throttle"
	"github.com/MishC/NotatApp/adapters/tokenizer"
	"github.com/MishC/NotatApp/core"
	"github.com/MishC/NotatApp/service"
	transport "github.com/MishC/NotatApp/transport/http"
)

type inbox struct {
	mu   sync.Mutex
	last string
}

func (i *inbox) Send(_ context.Context, _, _, body string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.last = body[strings.LastIndex(body, " ")+1:]
	return nil
}

func (i *inbox) code() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.last
}

func newTestServer(t *testing.T, mutate func(*service.Config)) (*httptest.Server, *inbox) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tok, err := tokenizer.NewJWTTokenizer(tokenizer.Config{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "notatapp-test",
		Audience:   "notatapp-test-clients",
	})
	require.NoError(t, err)

	box := &inbox{}
	cfg := service.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := service.NewAuthService(service.Dependencies{
		Credentials:   store.NewMemoryCredentialStore(store.NewBcryptHasher(4), store.LockoutPolicy{}),
		Sessions:      store.NewMemorySessionStore(),
		Challenges:    store.NewMemoryChallengeStore(),
		Tokenizer:     tok,
		Throttle:      throttle.NewMemoryThrottle(throttle.Config{Limit: 20, Window: time.Minute}),
		EmailNotifier: box,
		SMSNotifier:   box,
	}, cfg)
	require.NoError(t, err)

	router, err := transport.SetupRouter(svc, transport.RouterOptions{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	srv := httptest.NewTLSServer(router)
	t.Cleanup(srv.Close)
	return srv, box
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	return c
}

func TestClient_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	srv, box := newTestServer(t, nil)
	c := newTestClient(t, srv)

	require.NoError(t, c.Register(ctx, "alice@example.com", "Passw0rd!", "+15550100"))

	flow, err := c.Login(ctx, "alice@example.com", "Passw0rd!", ChannelEmail)
	require.NoError(t, err)
	assert.NotEmpty(t, flow.FlowID)
	assert.Equal(t, ChannelEmail, flow.Channel)
	assert.Empty(t, flow.Code)
	assert.False(t, c.HasSession())

	access, err := c.Verify(ctx, flow, box.code())
	require.NoError(t, err)
	assert.Equal(t, "Bearer", access.TokenType)
	assert.False(t, access.Expired(time.Now()))
	assert.True(t, c.HasSession())

	me, err := c.Me(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", me.Email)

	refreshed, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Token)

	require.NoError(t, c.Logout(ctx, refreshed))
	assert.False(t, c.HasSession())

	_, err = c.Refresh(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestClient_ErrorsMatchCoreSentinels(t *testing.T) {
	ctx := context.Background()
	srv, box := newTestServer(t, nil)
	c := newTestClient(t, srv)

	require.NoError(t, c.Register(ctx, "bob@example.com", "Passw0rd!", ""))

	err := c.Register(ctx, "bob@example.com", "Passw0rd!", "")
	assert.ErrorIs(t, err, core.ErrDuplicateAccount)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.Status)

	_, err = c.Login(ctx, "nobody@example.com", "Passw0rd!", ChannelEmail)
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)

	flow, err := c.Login(ctx, "bob@example.com", "Passw0rd!", ChannelEmail)
	require.NoError(t, err)
	wrong := "000000"
	if box.code() == wrong {
		wrong = "111111"
	}
	_, err = c.Verify(ctx, flow, wrong)
	assert.ErrorIs(t, err, core.ErrInvalidOrExpiredCode)

	_, err = c.Me(ctx, &AccessToken{Token: "garbage"})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestClient_DevBypassExposesCode(t *testing.T) {
	ctx := context.Background()
	srv, _ := newTestServer(t, func(cfg *service.Config) {
		cfg.EnforceSecondFactor = false
		cfg.ExposeCode = true
	})
	c := newTestClient(t, srv)

	require.NoError(t, c.Register(ctx, "dev@example.com", "Passw0rd!", ""))
	flow, err := c.Login(ctx, "dev@example.com", "Passw0rd!", "")
	require.NoError(t, err)
	assert.Equal(t, service.DefaultFixedDevCode, flow.Code)

	_, err = c.Verify(ctx, flow, flow.Code)
	require.NoError(t, err)
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewClient("/auth", nil)
	assert.Error(t, err)

	c, err := NewClient("https://auth.example.com/", nil)
	require.NoError(t, err)
	assert.NotNil(t, c.httpClient.Jar)
	assert.False(t, c.HasSession())
}

func TestAPIError_UnknownCodeIsInternal(t *testing.T) {
	err := &APIError{Status: 500, Message: "boom"}
	assert.ErrorIs(t, err, core.ErrInternal)
	assert.Contains(t, err.Error(), "500")
}
