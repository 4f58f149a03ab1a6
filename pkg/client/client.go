// Package client provides the authenticated HTTP client for the
// NapCat-QCE API, typed wrappers over its resource endpoints, and the
// task-completion waiter.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shuakami/napcat-qce-go/internal/common/errors"
	"github.com/shuakami/napcat-qce-go/internal/common/logger"
)

const (
	// DefaultHost is the address the service binds to by default.
	DefaultHost = "localhost"
	// DefaultPort is the HTTP/WebSocket port of the service.
	DefaultPort = 40653

	defaultRequestTimeout = 30 * time.Second
)

// Config holds connection settings for the client.
type Config struct {
	Host    string
	Port    int
	Token   string
	Timeout time.Duration
}

// Client is the NapCat-QCE API client. The credential is immutable for
// the client's lifetime once set.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *logger.Logger

	// Resource APIs
	Groups      *GroupsAPI
	Friends     *FriendsAPI
	Users       *UsersAPI
	Messages    *MessagesAPI
	Tasks       *TasksAPI
	ExportFiles *ExportFilesAPI
	System      *SystemAPI
}

// New creates a new API client.
func New(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	c := &Client{
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger.Default().WithFields(zap.String("component", "qce-client")),
	}

	c.Groups = &GroupsAPI{c}
	c.Friends = &FriendsAPI{c}
	c.Users = &UsersAPI{c}
	c.Messages = &MessagesAPI{c}
	c.Tasks = &TasksAPI{c}
	c.ExportFiles = &ExportFilesAPI{c}
	c.System = &SystemAPI{c}
	return c
}

// BaseURL returns the HTTP address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope is the response wrapper every API endpoint uses.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Context apiErrorContext `json:"context"`
}

type apiErrorContext struct {
	Code   string `json:"code"`
	TaskID string `json:"taskId"`
}

// Call sends a request to the API and returns the decoded data payload.
// Query parameters and body are both optional.
func (c *Client) Call(ctx context.Context, method, path string, params url.Values, body any) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Validation("body", err.Error())
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, errors.Validation("request", err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Network(fmt.Sprintf("request to %s failed", u), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, errors.Auth("authentication failed, check the access token")
	case http.StatusForbidden:
		return nil, errors.Auth("access denied, token invalid or expired")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Network("failed to read response body", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return nil, errors.API("", fmt.Sprintf("server returned status %d", resp.StatusCode))
		}
		return nil, nil
	}

	if env.Success != nil && !*env.Success {
		return nil, mapAPIError(env.Error)
	}

	if len(env.Data) > 0 {
		return env.Data, nil
	}
	return raw, nil
}

// mapAPIError translates the service's error object into the SDK taxonomy.
func mapAPIError(e *apiError) error {
	if e == nil {
		return errors.API("", "unknown error")
	}
	code := e.Context.Code
	if code == "" {
		code = e.Type
	}
	switch {
	case e.Type == "AUTH_ERROR":
		return errors.Auth(e.Message)
	case e.Type == "VALIDATION_ERROR":
		return errors.Validation("request", e.Message)
	case code == errors.ErrCodeTaskNotFound:
		taskID := e.Context.TaskID
		if taskID == "" {
			taskID = "unknown"
		}
		return errors.TaskNotFound(taskID)
	default:
		return errors.API(code, e.Message)
	}
}

// get performs a GET request and unmarshals the payload into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	data, err := c.Call(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	return decode(data, out)
}

// post performs a POST request and unmarshals the payload into out (when non-nil).
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := c.Call(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(data, out)
}

func decode(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Network("failed to decode response", err)
	}
	return nil
}

// Authenticate verifies a token against the service and, on success,
// adopts it for subsequent requests.
func (c *Client) Authenticate(ctx context.Context, token string) (bool, error) {
	data, err := c.Call(ctx, http.MethodPost, "/auth", nil, map[string]string{"token": token})
	if err != nil {
		return false, err
	}
	var result struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := decode(data, &result); err != nil {
		return false, err
	}
	if result.Authenticated {
		c.token = token
	}
	return result.Authenticated, nil
}

// IsConnected reports whether the service answers its health endpoint.
func (c *Client) IsConnected(ctx context.Context) bool {
	_, err := c.Call(ctx, http.MethodGet, "/health", nil, nil)
	return err == nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// boolParam renders a boolean the way the API expects query flags.
func boolParam(v bool) string {
	return strings.ToLower(fmt.Sprintf("%t", v))
}
