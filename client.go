package notatapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const refreshCookieName = "refreshToken"

// Client talks to the auth service over HTTP and keeps the refresh cookie in its jar
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	nowFn      func() time.Time
}

var _ Auth = (*Client)(nil)

// NewClient builds a client for baseURL. When httpClient is nil a default one is used;
// a client without a cookie jar gets one.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		cp := *httpClient
		cp.Jar = jar
		httpClient = &cp
	}

	return &Client{httpClient: httpClient, baseURL: u, nowFn: time.Now}, nil
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

func (c *Client) toAccessToken(resp tokenResponse) *AccessToken {
	return &AccessToken{
		Token:     resp.AccessToken,
		TokenType: resp.TokenType,
		ExpiresAt: c.nowFn().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
}

func (c *Client) Register(ctx context.Context, email, password, phone string) error {
	body := map[string]string{"email": email, "password": password}
	if phone != "" {
		body["phone"] = phone
	}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/register", body, nil, nil); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string, channel Channel) (*LoginFlow, error) {
	body := map[string]string{"email": email, "password": password}
	if channel != "" {
		body["channel"] = string(channel)
	}
	var flow LoginFlow
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", body, nil, &flow); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &flow, nil
}

func (c *Client) Verify(ctx context.Context, flow *LoginFlow, code string) (*AccessToken, error) {
	if flow == nil {
		return nil, errors.New("verify: nil login flow")
	}
	body := map[string]string{"flowId": flow.FlowID, "code": code, "channel": string(flow.Channel)}
	var resp tokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/verify", body, nil, &resp); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	return c.toAccessToken(resp), nil
}

func (c *Client) Refresh(ctx context.Context) (*AccessToken, error) {
	if !c.HasSession() {
		return nil, ErrNoSession
	}
	var resp tokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/refresh", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return c.toAccessToken(resp), nil
}

// Logout ends the session named by access, or by the stored refresh cookie when access is nil
func (c *Client) Logout(ctx context.Context, access *AccessToken) error {
	if err := c.doRequest(ctx, http.MethodPost, "/auth/logout", nil, access, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *Client) Me(ctx context.Context, access *AccessToken) (*Identity, error) {
	if access == nil {
		return nil, fmt.Errorf("me: %w", ErrNoSession)
	}
	var id Identity
	if err := c.doRequest(ctx, http.MethodGet, "/api/me", nil, access, &id); err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	return &id, nil
}

// HasSession reports whether the jar currently holds a refresh cookie
func (c *Client) HasSession() bool {
	for _, ck := range c.httpClient.Jar.Cookies(c.endpoint("/auth/refresh")) {
		if ck.Name == refreshCookieName && ck.Value != "" {
			return true
		}
	}
	return false
}

func (c *Client) endpoint(path string) *url.URL {
	return c.baseURL.JoinPath(path)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, access *AccessToken, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path).String(), bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != nil && access.Token != "" {
		req.Header.Set("Authorization", "Bearer "+access.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
