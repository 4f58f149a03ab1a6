package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/shuakami/napcat-qce-go/internal/common/errors"
)

// newTestClient starts an httptest server and returns a client pointed at it.
func newTestClient(t *testing.T, handler http.Handler, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)

	return New(Config{Host: host, Port: port, Token: token})
}

// ok writes a success envelope with the given data payload.
func ok(w http.ResponseWriter, data any) {
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

// fail writes a failure envelope.
func fail(w http.ResponseWriter, errType, message, code string) {
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error": map[string]any{
			"type":    errType,
			"message": message,
			"context": map[string]any{"code": code},
		},
	})
}

func TestCallSendsBearerToken(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		ok(w, map[string]any{})
	}), "secret-token")

	if _, err := c.Call(context.Background(), http.MethodGet, "/api/system/info", nil, nil); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("expected Bearer header, got %q", gotAuth)
	}
}

func TestCallDecodesEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]string{"version": "1.2.3"})
	}), "")

	data, err := c.Call(context.Background(), http.MethodGet, "/api/system/info", nil, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	var payload struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", payload.Version)
	}
}

func TestCallMapsAuthError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fail(w, "AUTH_ERROR", "token rejected", "")
	}), "")

	_, err := c.Call(context.Background(), http.MethodGet, "/api/groups", nil, nil)
	if errors.Code(err) != errors.ErrCodeAuth {
		t.Errorf("expected AUTH_ERROR, got %v", err)
	}
}

func TestCallMapsValidationError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fail(w, "VALIDATION_ERROR", "peer is required", "")
	}), "")

	_, err := c.Call(context.Background(), http.MethodPost, "/api/messages/export", nil, map[string]string{})
	if errors.Code(err) != errors.ErrCodeValidation {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCallMapsTaskNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fail(w, "NOT_FOUND", "no such task", "TASK_NOT_FOUND")
	}), "")

	_, err := c.Call(context.Background(), http.MethodGet, "/api/tasks/nope", nil, nil)
	if errors.Code(err) != errors.ErrCodeTaskNotFound {
		t.Errorf("expected TASK_NOT_FOUND, got %v", err)
	}
}

func TestCallUnauthorizedStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), "")

	_, err := c.Call(context.Background(), http.MethodGet, "/api/groups", nil, nil)
	if errors.Code(err) != errors.ErrCodeAuth {
		t.Errorf("expected AUTH_ERROR for 401, got %v", err)
	}
}

func TestCallTransportError(t *testing.T) {
	// Point at a port nothing listens on.
	c := New(Config{Host: "127.0.0.1", Port: 1})

	_, err := c.Call(context.Background(), http.MethodGet, "/health", nil, nil)
	if errors.Code(err) != errors.ErrCodeNetwork {
		t.Errorf("expected NETWORK_ERROR, got %v", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("transport errors should be retryable")
	}
}

func TestAuthenticateAdoptsToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			ok(w, map[string]bool{"authenticated": true})
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			fail(w, "AUTH_ERROR", "missing token", "")
			return
		}
		ok(w, map[string]any{})
	}), "")

	authed, err := c.Authenticate(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !authed {
		t.Fatal("expected authenticated = true")
	}
	if _, err := c.Call(context.Background(), http.MethodGet, "/api/groups", nil, nil); err != nil {
		t.Errorf("adopted token not used on later requests: %v", err)
	}
}

func TestIsConnected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]string{"status": "ok"})
	}), "")

	if !c.IsConnected(context.Background()) {
		t.Error("expected IsConnected = true against a live server")
	}

	dead := New(Config{Host: "127.0.0.1", Port: 1})
	if dead.IsConnected(context.Background()) {
		t.Error("expected IsConnected = false against a dead port")
	}
}
