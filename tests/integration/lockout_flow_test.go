package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/craftloom/backend/internal/handlers"
	"github.com/craftloom/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDB   *TestDB
	setupErr error
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	testDB, setupErr = SetupTestDatabase(ctx)
	if setupErr != nil {
		fmt.Fprintf(os.Stderr, "integration setup failed, tests will be skipped: %v\n", setupErr)
	}

	code := m.Run()

	if testDB != nil {
		testDB.Teardown(ctx)
	}
	os.Exit(code)
}

func newServer(t *testing.T, policy services.LockoutPolicy) *TestServer {
	t.Helper()

	if testDB == nil {
		t.Skipf("test database unavailable: %v", setupErr)
	}

	require.NoError(t, testDB.CleanupTables(context.Background()))

	srv := NewTestServer(testDB.DB, policy)
	t.Cleanup(srv.Close)
	return srv
}

func loginBody(email, password string) map[string]string {
	return map[string]string{"email": email, "password": password}
}

func TestLoginLockoutFlow(t *testing.T) {
	srv := newServer(t, DefaultTestPolicy())
	ctx := context.Background()

	email, password := TestUser("lockout")
	_, err := SeedUser(ctx, srv.DB, email, password)
	require.NoError(t, err)

	// Two failures consume the attempt budget one at a time
	for i, wantRemaining := range []int{2, 1} {
		resp := srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, "wrong-password"))
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i+1)

		var failed handlers.LoginFailedResponse
		DecodeJSON(t, resp, &failed)
		assert.Equal(t, wantRemaining, failed.RemainingAttempts)
	}

	// Third failure crosses the threshold and locks the account
	resp := srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, "wrong-password"))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var locked handlers.LockedResponse
	DecodeJSON(t, resp, &locked)
	assert.True(t, locked.Locked)
	assert.Greater(t, locked.RemainingTime, 290)
	assert.LessOrEqual(t, locked.RemainingTime, 300)

	lockUntil, err := time.Parse(time.RFC3339, locked.LockUntil)
	require.NoError(t, err)
	assert.True(t, lockUntil.After(time.Now()))

	// Even the correct password is rejected while the lock is live
	resp = srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, password))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var stillLocked handlers.LockedResponse
	DecodeJSON(t, resp, &stillLocked)
	assert.True(t, stillLocked.Locked)

	// The deadline does not move while locked
	stillUntil, err := time.Parse(time.RFC3339, stillLocked.LockUntil)
	require.NoError(t, err)
	assert.True(t, stillUntil.Equal(lockUntil))

	// Lockout alert went to the account owner
	deadline := time.After(2 * time.Second)
	for len(srv.Alerts.Alerts()) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected a lockout alert")
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.Equal(t, email, srv.Alerts.Alerts()[0].Email)
}

func TestSuccessfulLoginClearsAttempts(t *testing.T) {
	srv := newServer(t, DefaultTestPolicy())
	ctx := context.Background()

	email, password := TestUser("clear")
	_, err := SeedUser(ctx, srv.DB, email, password)
	require.NoError(t, err)

	resp := srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, "wrong-password"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, password))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ok handlers.LoginResponse
	DecodeJSON(t, resp, &ok)
	assert.True(t, ok.Success)
	assert.NotEmpty(t, ok.Token)
	require.NotNil(t, ok.User)
	assert.Equal(t, email, ok.User.Email)

	// Budget is back to full after the success
	resp = srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, "wrong-password"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var failed handlers.LoginFailedResponse
	DecodeJSON(t, resp, &failed)
	assert.Equal(t, 2, failed.RemainingAttempts)
}

func TestUnknownEmailConsumesAttempts(t *testing.T) {
	srv := newServer(t, DefaultTestPolicy())

	email, _ := TestUser("ghost")

	resp := srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, "anything"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var failed handlers.LoginFailedResponse
	DecodeJSON(t, resp, &failed)
	assert.Equal(t, 2, failed.RemainingAttempts)

	// Probing a nonexistent account locks its key like any other
	for i := 0; i < 2; i++ {
		resp = srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, "anything"))
		resp.Body.Close()
	}

	resp = srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, "anything"))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()
}

func TestIPLockBlocksAllAccounts(t *testing.T) {
	policy := DefaultTestPolicy()
	policy.IPThreshold = 3
	policy.IPDuration = 10 * time.Minute
	srv := newServer(t, policy)
	ctx := context.Background()

	victimEmail, victimPassword := TestUser("victim")
	_, err := SeedUser(ctx, srv.DB, victimEmail, victimPassword)
	require.NoError(t, err)

	// Three failures against unrelated accounts trip the address lock
	for i := 0; i < 3; i++ {
		email, _ := TestUser(fmt.Sprintf("probe-%d", i))
		resp := srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, "anything"))
		resp.Body.Close()
	}

	// A correct login from the same address is now rejected
	resp := srv.PostJSON(t, "/api/v1/auth/login", loginBody(victimEmail, victimPassword))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var locked handlers.LockedResponse
	DecodeJSON(t, resp, &locked)
	assert.True(t, locked.Locked)
	assert.Greater(t, locked.RemainingTime, 0)

	// The status probe reports the address lock
	resp = srv.GetJSON(t, "/api/v1/auth/check-ip-lock")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status handlers.IPLockResponse
	DecodeJSON(t, resp, &status)
	assert.True(t, status.Success)
	assert.True(t, status.Locked)
	assert.Greater(t, status.RemainingTime, 0)
	assert.LessOrEqual(t, status.RemainingTime, 600)
	assert.NotEmpty(t, status.LockUntil)
}

func TestSpoofedForwardingHeadersDoNotEvadeIPLock(t *testing.T) {
	policy := DefaultTestPolicy()
	policy.IPThreshold = 3
	srv := newServer(t, policy)
	ctx := context.Background()

	victimEmail, victimPassword := TestUser("spoof-victim")
	_, err := SeedUser(ctx, srv.DB, victimEmail, victimPassword)
	require.NoError(t, err)

	// Rotating forwarding headers must not give each probe a fresh address
	// key; without a trusted proxy the ledger keys on the transport address
	for i := 0; i < 3; i++ {
		email, _ := TestUser(fmt.Sprintf("spoof-probe-%d", i))
		resp := srv.PostJSONWithHeaders(t, "/api/v1/auth/login", loginBody(email, "anything"), map[string]string{
			"X-Real-IP":       fmt.Sprintf("203.0.113.%d", i+1),
			"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1),
		})
		resp.Body.Close()
	}

	// All failures accumulated on the one real address, which is now locked
	resp := srv.PostJSON(t, "/api/v1/auth/login", loginBody(victimEmail, victimPassword))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()
}

func TestCheckIPLock_UnlockedByDefault(t *testing.T) {
	srv := newServer(t, DefaultTestPolicy())

	resp := srv.GetJSON(t, "/api/v1/auth/check-ip-lock")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status handlers.IPLockResponse
	DecodeJSON(t, resp, &status)
	assert.True(t, status.Success)
	assert.False(t, status.Locked)
	assert.Empty(t, status.LockUntil)
}

func TestLockExpiryAllowsRetry(t *testing.T) {
	policy := DefaultTestPolicy()
	policy.EmailThreshold = 2
	policy.EmailDuration = 2 * time.Second
	srv := newServer(t, policy)
	ctx := context.Background()

	email, password := TestUser("expiry")
	_, err := SeedUser(ctx, srv.DB, email, password)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp := srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, "wrong-password"))
		resp.Body.Close()
	}

	resp := srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, password))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	time.Sleep(2500 * time.Millisecond)

	// Lock expired lazily; the next correct attempt succeeds
	resp = srv.PostJSON(t, "/api/v1/auth/login", loginBody(email, password))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ok handlers.LoginResponse
	DecodeJSON(t, resp, &ok)
	assert.True(t, ok.Success)
}

func TestRegisterAndRefreshFlow(t *testing.T) {
	srv := newServer(t, DefaultTestPolicy())

	email, password := TestUser("register")

	resp := srv.PostJSON(t, "/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     "New Artisan",
		"role":     "artisan",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created handlers.LoginResponse
	DecodeJSON(t, resp, &created)
	assert.True(t, created.Success)
	assert.NotEmpty(t, created.Token)
	assert.NotEmpty(t, created.RefreshToken)
	assert.Equal(t, "artisan", created.User.Role)

	resp = srv.PostJSON(t, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": created.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var refreshed handlers.LoginResponse
	DecodeJSON(t, resp, &refreshed)
	assert.NotEmpty(t, refreshed.Token)
	assert.NotEqual(t, created.Token, refreshed.Token)
}
