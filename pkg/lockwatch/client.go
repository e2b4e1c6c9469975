package lockwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// LoginOutcome tags the result of a login attempt
type LoginOutcome int

const (
	// OutcomeSuccess means credentials were accepted
	OutcomeSuccess LoginOutcome = iota
	// OutcomeAttemptsRemaining means credentials were rejected with budget left
	OutcomeAttemptsRemaining
	// OutcomeLocked means the attempt was rejected by an active lock
	OutcomeLocked
	// OutcomeDenied means authentication failed with no attempt information
	OutcomeDenied
)

// LoginResult carries exactly one of the three user-visible login responses:
// a token, an attempts-remaining count, or a lock descriptor.
type LoginResult struct {
	Outcome           LoginOutcome
	Token             string
	RemainingAttempts int
	LockedUntil       time.Time
	RemainingTime     int
}

// Deadline computes the lock expiry from the server's remaining-seconds
// figure against the local clock. Preferring the relative value over the
// absolute timestamp keeps the countdown correct under clock skew.
func (r *LoginResult) Deadline(now time.Time) time.Time {
	if r.RemainingTime > 0 {
		return now.Add(time.Duration(r.RemainingTime) * time.Second)
	}
	return r.LockedUntil
}

// LockState is the advisory result of the lock-status probe
type LockState struct {
	Locked        bool
	LockedUntil   time.Time
	RemainingTime int
}

// Deadline computes the lock expiry against the local clock, see LoginResult.Deadline
func (s *LockState) Deadline(now time.Time) time.Time {
	if s.RemainingTime > 0 {
		return now.Add(time.Duration(s.RemainingTime) * time.Second)
	}
	return s.LockedUntil
}

// Client talks to the authentication endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the given API base URL (e.g. "https://api.example.com/api/v1")
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponseBody struct {
	Success           bool   `json:"success"`
	Token             string `json:"token"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remainingAttempts"`
	Locked            bool   `json:"locked"`
	LockUntil         string `json:"lockUntil"`
	RemainingTime     int    `json:"remainingTime"`
}

// Login submits credentials and maps the response to a tagged result
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body, err := json.Marshal(loginPayload{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload loginResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &LoginResult{Outcome: OutcomeSuccess, Token: payload.Token}, nil

	case http.StatusUnauthorized:
		if payload.RemainingAttempts != nil {
			return &LoginResult{
				Outcome:           OutcomeAttemptsRemaining,
				RemainingAttempts: *payload.RemainingAttempts,
			}, nil
		}
		return &LoginResult{Outcome: OutcomeDenied}, nil

	case http.StatusTooManyRequests:
		result := &LoginResult{
			Outcome:       OutcomeLocked,
			RemainingTime: payload.RemainingTime,
		}
		if until, err := time.Parse(time.RFC3339, payload.LockUntil); err == nil {
			result.LockedUntil = until
		}
		return result, nil

	default:
		return nil, fmt.Errorf("login failed with status %d", resp.StatusCode)
	}
}

type ipLockResponseBody struct {
	Success       bool   `json:"success"`
	Locked        bool   `json:"locked"`
	LockUntil     string `json:"lockUntil"`
	RemainingTime int    `json:"remainingTime"`
}

// CheckIPLock asks the server whether the caller's address is locked out.
// Errors here are advisory: callers should keep the form usable and let the
// server enforce the lock on the next login attempt.
func (c *Client) CheckIPLock(ctx context.Context) (*LockState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/check-ip-lock", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lock-status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lock-status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lock-status check failed with status %d", resp.StatusCode)
	}

	var payload ipLockResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode lock-status response: %w", err)
	}

	state := &LockState{
		Locked:        payload.Locked,
		RemainingTime: payload.RemainingTime,
	}
	if payload.Locked {
		if until, err := time.Parse(time.RFC3339, payload.LockUntil); err == nil {
			state.LockedUntil = until
		}
	}
	return state, nil
}
