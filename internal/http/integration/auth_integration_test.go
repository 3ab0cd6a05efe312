package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/networth/tracker/internal/auth"
	"github.com/networth/tracker/internal/cache"
	"github.com/networth/tracker/internal/config"
	apphttp "github.com/networth/tracker/internal/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// These tests need a real postgres; redis is served by miniredis.
// Run with TEST_DB_DSN pointing at a disposable database.

func testConfig() config.Config {
	return config.Config{
		Env:                    "test",
		Port:                   0,
		JWTSecret:              "test-secret-key",
		TokenTTLMinutes:        60,
		CacheTTLMinutes:        60,
		RateLimitMax:           100,
		RateLimitWindowSeconds: 60,
	}
}

func setupTestRouter(t *testing.T) (*gin.Engine, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")

	if dsn == "" {
		t.Skip("TEST_DB_DSN not set; skipping integration test")
	}

	gin.SetMode(gin.TestMode)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)

	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name          TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`)

	if err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}

	mr, err := miniredis.Run()

	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cch := cache.NewWithClient(rdb, time.Hour)

	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
		pool.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	promReg := prometheus.NewRegistry()

	router := apphttp.NewRouter(logger, pool, cch, testConfig(), nil, promReg)

	return router, pool
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `TRUNCATE users`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// function that runs a request and returns a recorder

func doRequest(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func TestAuthIntegration_Register_Login_Validate(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetDB(t, pool)

	defer resetDB(t, pool)

	// register

	registerBody := `{"name":"Ada","email":"ada@x.com","password":"longpassword1"}`

	w := doRequest(router, http.MethodPost, "/v1/users/register", registerBody, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("register got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var registered struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
		Token string `json:"token"`
	}

	mustReadJSON(t, w, &registered)

	if registered.User.Email != "ada@x.com" {
		t.Fatalf("register user.email = %q, want ada@x.com", registered.User.Email)
	}

	if strings.TrimSpace(registered.Token) == "" {
		t.Fatalf("register expected token, got empty")
	}

	if strings.Contains(w.Body.String(), "longpassword1") {
		t.Fatalf("plaintext password leaked into register response")
	}

	// the register token is immediately valid

	w = doRequest(router, http.MethodGet, "/v1/users/validate-token", "", map[string]string{
		"Authorization": "Bearer " + registered.Token,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("validate got status %d, want 200, body=%s", w.Code, w.Body.String())
	}

	// duplicate register

	w = doRequest(router, http.MethodPost, "/v1/users/register", registerBody, nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register got status %d, want 400, body=%s", w.Code, w.Body.String())
	}

	// login happy path

	w = doRequest(router, http.MethodPost, "/v1/users/login", `{"email":"ada@x.com","password":"longpassword1"}`, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("login got status %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var loggedIn struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}

	mustReadJSON(t, w, &loggedIn)

	if strings.TrimSpace(loggedIn.Token) == "" {
		t.Fatalf("login expected token, got empty")
	}

	// wrong password

	w = doRequest(router, http.MethodPost, "/v1/users/login", `{"email":"ada@x.com","password":"wrongpass1"}`, nil)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login got status %d, want 401, body=%s", w.Code, w.Body.String())
	}

	// unknown email gets the same status

	w = doRequest(router, http.MethodPost, "/v1/users/login", `{"email":"nobody@x.com","password":"longpassword1"}`, nil)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown login got status %d, want 401, body=%s", w.Code, w.Body.String())
	}

	// profile with the login token

	w = doRequest(router, http.MethodGet, "/v1/users/me", "", map[string]string{
		"Authorization": "Bearer " + loggedIn.Token,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("me got status %d, want 200, body=%s", w.Code, w.Body.String())
	}

	if strings.Contains(w.Body.String(), "passwordHash") {
		t.Fatalf("password hash leaked into profile response")
	}
}

func TestAuthIntegration_ForeignTokenRejected(t *testing.T) {
	router, pool := setupTestRouter(t)
	resetDB(t, pool)

	defer resetDB(t, pool)

	// correctly signed by someone else's key, never issued here

	foreign := auth.NewManager("some-other-secret", time.Hour)
	token, err := foreign.IssueToken("user-9", "eve@x.com")

	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	w := doRequest(router, http.MethodGet, "/v1/users/validate-token", "", map[string]string{
		"Authorization": "Bearer " + token,
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token got status %d, want 401, body=%s", w.Code, w.Body.String())
	}
}
