// Package client implements the remote service calls on top of the dispatcher.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/harrylevesque/firenet/internal/dispatch"
	"github.com/harrylevesque/firenet/internal/models"
	"github.com/harrylevesque/firenet/internal/utils"
)

// DefaultPlatform is reported when the caller gives none.
const DefaultPlatform = "android"

var (
	// ErrMissingToken is returned when a successful login reply carries no token.
	ErrMissingToken = errors.New("missing token")
	// ErrMalformedResponse is returned when a successful reply cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// Credentials is the login request body.
type Credentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id"`
	AppVersion string `json:"app_version"`
}

// Client issues one request per server action.
type Client struct {
	doer   dispatch.Doer
	logger *slog.Logger
}

// New returns a client sending through doer.
func New(doer dispatch.Doer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{doer: doer, logger: logger}
}

func headers(token, contentType string) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return h
}

// call sends req and returns the body of a 2xx reply. Any other status
// becomes a *utils.StatusError; dispatcher errors pass through unchanged.
func (c *Client) call(ctx context.Context, req dispatch.Request) (string, error) {
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("non-2xx reply", "path", req.Path, "domain", resp.Domain, "code", resp.StatusCode)
		return "", utils.NewStatusError(resp.StatusCode, errorMessage(resp.Body))
	}
	return resp.Body, nil
}

// errorMessage picks "message", then "error", from a JSON error body.
func errorMessage(body string) string {
	var j struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return ""
	}
	if s := stringValue(j.Message); s != nil && *s != "" {
		return *s
	}
	if s := stringValue(j.Error); s != nil {
		return *s
	}
	return ""
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	text, err := c.call(ctx, dispatch.Request{
		Method: http.MethodPost,
		Path:   "/api/login",
		Header: headers("", "application/json"),
		Body:   body,
	})
	if err != nil {
		return "", err
	}

	var reply struct {
		Token json.RawMessage `json:"token"`
	}
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return "", fmt.Errorf("%w: login: %v", ErrMalformedResponse, err)
	}
	token := stringValue(reply.Token)
	if token == nil || strings.TrimSpace(*token) == "" {
		return "", ErrMissingToken
	}
	return *token, nil
}

// Status fetches the account status.
func (c *Client) Status(ctx context.Context, token string) (*models.AccountStatus, error) {
	text, err := c.call(ctx, dispatch.Request{
		Method: http.MethodGet,
		Path:   "/api/status",
		Header: headers(token, ""),
	})
	if err != nil {
		return nil, err
	}
	status, err := ParseStatus([]byte(text))
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) post(ctx context.Context, path, token string) error {
	_, err := c.call(ctx, dispatch.Request{
		Method: http.MethodPost,
		Path:   path,
		Header: headers(token, ""),
	})
	return err
}

// KeepAlive tells the service the session is still in use.
func (c *Client) KeepAlive(ctx context.Context, token string) error {
	return c.post(ctx, "/api/keep-alive", token)
}

// Logout revokes the session on the service.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.post(ctx, "/api/logout", token)
}

// UpdatePromptSeen acknowledges that the update prompt was shown.
func (c *Client) UpdatePromptSeen(ctx context.Context, token string) error {
	return c.post(ctx, "/api/update-prompt-seen", token)
}

// RegisterDeviceToken registers the push token for this session.
func (c *Client) RegisterDeviceToken(ctx context.Context, token, pushToken string) error {
	body, err := json.Marshal(map[string]string{"fcm_token": pushToken})
	if err != nil {
		return err
	}
	_, err = c.call(ctx, dispatch.Request{
		Method: http.MethodPost,
		Path:   "/api/update-fcm-token",
		Header: headers(token, "application/json"),
		Body:   body,
	})
	return err
}

// ReportUpdate reports the installed app version. An empty platform means DefaultPlatform.
func (c *Client) ReportUpdate(ctx context.Context, token, platform, version string) error {
	if platform == "" {
		platform = DefaultPlatform
	}
	form := url.Values{}
	form.Set("platform", platform)
	form.Set("version", version)
	_, err := c.call(ctx, dispatch.Request{
		Method: http.MethodPost,
		Path:   "/api/report-update",
		Header: headers(token, "application/x-www-form-urlencoded"),
		Body:   []byte(form.Encode()),
	})
	return err
}
