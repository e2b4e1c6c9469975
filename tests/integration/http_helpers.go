package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/craftloom/backend/internal/auth"
	"github.com/craftloom/backend/internal/database"
	"github.com/craftloom/backend/internal/handlers"
	"github.com/craftloom/backend/internal/repositories"
	"github.com/craftloom/backend/internal/routes"
	"github.com/craftloom/backend/internal/services"
	pkghttp "github.com/craftloom/backend/pkg/http"
	pkglogger "github.com/craftloom/backend/pkg/logger"
)

// LockoutAlert is a captured lockout notification
type LockoutAlert struct {
	Email       string
	LockedUntil time.Time
}

// MockAlertSender records lockout alerts instead of sending email
type MockAlertSender struct {
	mu     sync.Mutex
	alerts []LockoutAlert
}

func (m *MockAlertSender) SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, LockoutAlert{Email: email, LockedUntil: lockedUntil})
	return nil
}

// Alerts returns a copy of the captured alerts
func (m *MockAlertSender) Alerts() []LockoutAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LockoutAlert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// DefaultTestPolicy mirrors the production defaults: 3 account failures lock
// for 5 minutes, 10 address failures lock for 15 minutes.
func DefaultTestPolicy() services.LockoutPolicy {
	return services.LockoutPolicy{
		EmailThreshold: 3,
		EmailDuration:  5 * time.Minute,
		IPThreshold:    10,
		IPDuration:     15 * time.Minute,
		Retention:      24 * time.Hour,
	}
}

// TestServer wraps httptest.Server with the full auth stack on a real database
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	Alerts       *MockAlertSender
	TokenManager *auth.TokenManager
	Lockouts     *services.LockoutService
}

// NewTestServer assembles the API against db with the given lockout policy
func NewTestServer(db *database.DB, policy services.LockoutPolicy) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	userRepo := repositories.NewUserRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)

	lockoutService := services.NewLockoutService(lockoutRepo, policy, logger)

	tokenManager := auth.NewTokenManager(
		"test-secret-32-characters-long-for-testing",
		15*time.Minute,
		7*24*time.Hour,
	)

	// Near-zero delay keeps the failure paths fast in tests
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 1})

	alerts := &MockAlertSender{}
	auditLogger := pkglogger.NewAuditLogger(logger)

	authService := services.NewAuthService(
		userRepo,
		revokeRepo,
		lockoutService,
		tokenManager,
		timingDelay,
		alerts,
		logger,
		auditLogger,
	)

	authHandler := handlers.NewAuthHandler(authService, &pkghttp.IPConfig{})

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		routes.RegisterRoutes(r, authHandler, tokenManager, revokeRepo)
	})

	return &TestServer{
		Server:       httptest.NewServer(router),
		DB:           db,
		Alerts:       alerts,
		TokenManager: tokenManager,
		Lockouts:     lockoutService,
	}
}

// Close shuts down the HTTP server
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// PostJSON sends a JSON POST to path and returns the response
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	resp, err := http.Post(ts.Server.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

// PostJSONWithHeaders sends a JSON POST with additional request headers
func (ts *TestServer) PostJSONWithHeaders(t *testing.T, path string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

// GetJSON sends a GET to path and returns the response
func (ts *TestServer) GetJSON(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := http.Get(ts.Server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

// DecodeJSON reads and decodes a response body into target, then closes it
func DecodeJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to decode response %q: %v", string(data), err)
	}
}
