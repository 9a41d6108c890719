package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/studysocial/studysocial-core/internal/audit"
	"github.com/studysocial/studysocial-core/internal/auth"
	"github.com/studysocial/studysocial-core/internal/infrastructure/config"
	"github.com/studysocial/studysocial-core/internal/infrastructure/logging"
	"github.com/studysocial/studysocial-core/internal/social"
)

const (
	testSecret   = "test-secret-key-at-least-32-characters-long"
	testPassword = "correct-horse-battery"
)

// testServer creates a Server backed by an in-memory SQLite database with
// the full schema applied.
func testServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()

	db := setupTestDB(t)
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	userRepo := auth.NewUserRepository(db)
	authSvc := auth.NewService(userRepo, auth.Config{
		Secret:            testSecret,
		AccessTokenTTL:    15,
		PasswordMinLength: 8,
	}, log.Logger)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:      log,
		AuthService: authSvc,
		Users:       userRepo,
		Posts:       social.NewPostRepository(db),
		Rooms:       social.NewRoomRepository(db),
		Messages:    social.NewMessageRepository(db),
		Friends:     social.NewFriendRepository(db),
		AuditRepo:   audit.NewSQLiteRepository(db),
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(context.Background())

	return srv, db
}

// setupTestDB creates an in-memory SQLite database with the platform schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// In-memory SQLite is per connection; a second pool connection would
	// see an empty database.
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL COLLATE NOCASE UNIQUE,
			email TEXT NOT NULL COLLATE NOCASE UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			is_active INTEGER NOT NULL DEFAULT 1,
			profile_image TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			author_id INTEGER NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			likes INTEGER NOT NULL DEFAULT 0,
			comments INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (author_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE study_rooms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			current_members INTEGER NOT NULL DEFAULT 0,
			max_members INTEGER NOT NULL DEFAULT 20,
			is_public INTEGER NOT NULL DEFAULT 1,
			created_by INTEGER,
			created_at TEXT NOT NULL,
			FOREIGN KEY (created_by) REFERENCES users(id) ON DELETE SET NULL
		) STRICT;

		CREATE TABLE study_room_members (
			room_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			joined_at TEXT NOT NULL,
			PRIMARY KEY (room_id, user_id),
			FOREIGN KEY (room_id) REFERENCES study_rooms(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender_id INTEGER NOT NULL,
			receiver_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			message_type TEXT NOT NULL DEFAULT 'text',
			is_read INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (receiver_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE friend_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_user_id INTEGER NOT NULL,
			to_user_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			UNIQUE (from_user_id, to_user_id),
			FOREIGN KEY (from_user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (to_user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			user_id TEXT,
			source TEXT NOT NULL DEFAULT 'api',
			details TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// seedAccount inserts an account with the given role and testPassword.
func seedAccount(t *testing.T, db *sql.DB, username string, role auth.Role) int64 {
	t.Helper()

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := db.Exec(
		`INSERT INTO users (username, email, display_name, password_hash, role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		username, username+"@example.com", username, hash, string(role), now, now,
	)
	if err != nil {
		t.Fatalf("seeding account %s: %v", username, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("reading seeded account id: %v", err)
	}
	return id
}

// login authenticates against the router and returns a bearer token.
func login(t *testing.T, router http.Handler, username, password string) string {
	t.Helper()

	body := `{"username": "` + username + `", "password": "` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	return resp.AccessToken
}

// doJSON performs a request with an optional bearer token and JSON body.
func doJSON(t *testing.T, router http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ─── Health and Middleware Tests ───────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doJSON(t, router, http.MethodGet, "/api/v1/health", "", "")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestMetrics(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)

	w := doJSON(t, router, http.MethodGet, "/api/v1/metrics", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}

	var metrics SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if metrics.Version != "test" {
		t.Errorf("version = %q, want test", metrics.Version)
	}
	if metrics.Users.Total != 1 {
		t.Errorf("users total = %d, want 1", metrics.Users.Total)
	}
	if metrics.Runtime.Goroutines == 0 {
		t.Error("expected goroutine count to be reported")
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doJSON(t, router, http.MethodGet, "/api/v1/health", "", "")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

// ─── Registration Tests ────────────────────────────────────────────

func TestRegister_Success(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"username": "alice", "email": "alice@example.com", "password": "` + testPassword + `"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", body)

	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["username"] != "alice" {
		t.Errorf("username = %v, want alice", resp["username"])
	}
	if resp["role"] != "user" {
		t.Errorf("role = %v, want user", resp["role"])
	}
	if _, leaked := resp["password_hash"]; leaked {
		t.Error("response must not contain the password hash")
	}
}

func TestRegister_Validation(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", "not json"},
		{"missing username", `{"email": "a@example.com", "password": "` + testPassword + `"}`},
		{"invalid email", `{"username": "alice", "email": "not-an-email", "password": "` + testPassword + `"}`},
		{"short password", `{"username": "alice", "email": "a@example.com", "password": "short"}`},
		{"username with spaces", `{"username": "not valid", "email": "a@example.com", "password": "` + testPassword + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)

	// Same username under different casing
	body := `{"username": "Alice", "email": "other@example.com", "password": "` + testPassword + `"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate username status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	// Same email, different username
	body = `{"username": "bob", "email": "alice@example.com", "password": "` + testPassword + `"}`
	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate email status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Login Tests ───────────────────────────────────────────────────

func TestLogin_Success(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)

	body := `{"username": "alice", "password": "` + testPassword + `"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", body)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		AccessToken string         `json:"access_token"`
		TokenType   string         `json:"token_type"`
		ExpiresIn   int            `json:"expires_in"`
		User        map[string]any `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.AccessToken == "" {
		t.Error("expected access_token to be non-empty")
	}
	if resp.TokenType != "bearer" {
		t.Errorf("token_type = %q, want bearer", resp.TokenType)
	}
	if resp.ExpiresIn != 15*60 {
		t.Errorf("expires_in = %d, want %d", resp.ExpiresIn, 15*60)
	}
	if resp.User["username"] != "alice" {
		t.Errorf("user.username = %v, want alice", resp.User["username"])
	}
}

func TestLogin_FailuresAreOpaque(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	alice := seedAccount(t, db, "alice", auth.RoleUser)
	seedAccount(t, db, "carla", auth.RoleUser)
	if _, err := db.Exec("UPDATE users SET is_active = 0 WHERE id = ?", alice); err != nil {
		t.Fatalf("deactivating account: %v", err)
	}

	// Wrong password, unknown username, and a deactivated account must be
	// indistinguishable from the response alone.
	bodies := []string{
		`{"username": "carla", "password": "wrong-password"}`,
		`{"username": "nobody", "password": "` + testPassword + `"}`,
		`{"username": "alice", "password": "` + testPassword + `"}`,
	}

	var first *httptest.ResponseRecorder
	for i, body := range bodies {
		w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", body)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("case %d status = %d, want %d", i, w.Code, http.StatusUnauthorized)
		}
		if first == nil {
			first = w
			continue
		}
		if w.Body.String() != first.Body.String() {
			t.Errorf("case %d body = %q, differs from first failure %q", i, w.Body.String(), first.Body.String())
		}
	}
}

// ─── Protected Route Tests ─────────────────────────────────────────

func TestProtectedRoutes_RequireToken(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	// No token and garbage token must return the same 401 body.
	missing := doJSON(t, router, http.MethodGet, "/api/v1/users/me", "", "")
	garbage := doJSON(t, router, http.MethodGet, "/api/v1/users/me", "not-a-token", "")

	if missing.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want %d", missing.Code, http.StatusUnauthorized)
	}
	if garbage.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want %d", garbage.Code, http.StatusUnauthorized)
	}
	if missing.Body.String() != garbage.Body.String() {
		t.Errorf("401 bodies differ: %q vs %q", missing.Body.String(), garbage.Body.String())
	}
}

func TestMe(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	token := login(t, router, "alice", testPassword)

	w := doJSON(t, router, http.MethodGet, "/api/v1/users/me", token, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["username"] != "alice" {
		t.Errorf("username = %v, want alice", resp["username"])
	}
}

func TestListUsers_Search(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	seedAccount(t, db, "bob", auth.RoleUser)
	token := login(t, router, "alice", testPassword)

	w := doJSON(t, router, http.MethodGet, "/api/v1/users?search=ali", token, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("count = %v, want 1", resp["count"])
	}
}

// ─── Admin Surface Tests ───────────────────────────────────────────

func TestAdmin_ForbiddenForUserRole(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	token := login(t, router, "alice", testPassword)

	w := doJSON(t, router, http.MethodGet, "/api/v1/admin/users", token, "")

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAdmin_ListUsers(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	seedAccount(t, db, "mod", auth.RoleAdmin)
	token := login(t, router, "mod", testPassword)

	w := doJSON(t, router, http.MethodGet, "/api/v1/admin/users", token, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

func TestAdmin_RoleChangeRequiresSuperAdmin(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	alice := seedAccount(t, db, "alice", auth.RoleUser)
	seedAccount(t, db, "mod", auth.RoleAdmin)
	seedAccount(t, db, "root", auth.RoleSuperAdmin)

	target := "/api/v1/admin/users/" + strconv.FormatInt(alice, 10)
	body := `{"role": "admin"}`

	modToken := login(t, router, "mod", testPassword)
	w := doJSON(t, router, http.MethodPatch, target, modToken, body)
	if w.Code != http.StatusForbidden {
		t.Errorf("admin role change status = %d, want %d", w.Code, http.StatusForbidden)
	}

	rootToken := login(t, router, "root", testPassword)
	w = doJSON(t, router, http.MethodPatch, target, rootToken, body)
	if w.Code != http.StatusOK {
		t.Fatalf("super admin role change status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["role"] != "admin" {
		t.Errorf("role after change = %v, want admin", resp["role"])
	}
}

func TestAdmin_CannotChangeOwnRole(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	root := seedAccount(t, db, "root", auth.RoleSuperAdmin)
	token := login(t, router, "root", testPassword)

	target := "/api/v1/admin/users/" + strconv.FormatInt(root, 10)
	w := doJSON(t, router, http.MethodPatch, target, token, `{"role": "user"}`)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAdmin_DeactivationRevokesAccess(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	alice := seedAccount(t, db, "alice", auth.RoleUser)
	seedAccount(t, db, "root", auth.RoleSuperAdmin)

	aliceToken := login(t, router, "alice", testPassword)
	rootToken := login(t, router, "root", testPassword)

	target := "/api/v1/admin/users/" + strconv.FormatInt(alice, 10)
	w := doJSON(t, router, http.MethodPatch, target, rootToken, `{"is_active": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// The previously issued token stops resolving.
	w = doJSON(t, router, http.MethodGet, "/api/v1/users/me", aliceToken, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("deactivated account token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// Fresh logins fail with the opaque credentials error.
	body := `{"username": "alice", "password": "` + testPassword + `"}`
	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", body)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("deactivated account login status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAdmin_CannotDeleteSelf(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	root := seedAccount(t, db, "root", auth.RoleSuperAdmin)
	token := login(t, router, "root", testPassword)

	target := "/api/v1/admin/users/" + strconv.FormatInt(root, 10)
	w := doJSON(t, router, http.MethodDelete, target, token, "")

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAdmin_DeleteUser(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	alice := seedAccount(t, db, "alice", auth.RoleUser)
	seedAccount(t, db, "root", auth.RoleSuperAdmin)
	token := login(t, router, "root", testPassword)

	target := "/api/v1/admin/users/" + strconv.FormatInt(alice, 10)
	w := doJSON(t, router, http.MethodDelete, target, token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	w = doJSON(t, router, http.MethodDelete, target, token, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("delete again status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAdmin_AuditLog(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "mod", auth.RoleAdmin)
	token := login(t, router, "mod", testPassword)

	if err := srv.auditRepo.Create(context.Background(), &audit.AuditLog{
		Action:     audit.ActionLogin,
		EntityType: "user",
		EntityID:   "1",
		UserID:     "mod",
		Source:     "api",
	}); err != nil {
		t.Fatalf("seeding audit entry: %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/admin/audit?action="+audit.ActionLogin, token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Logs  []audit.AuditLog `json:"logs"`
		Total int              `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}

// ─── WebSocket Ticket Tests ────────────────────────────────────────

func TestWSTicket_SingleUse(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	alice := seedAccount(t, db, "alice", auth.RoleUser)
	token := login(t, router, "alice", testPassword)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/ws-ticket", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ticket, ok := resp["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	entry, valid := srv.validateTicket(ticket)
	if !valid {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.userID != alice || entry.username != "alice" {
		t.Errorf("ticket identity = %d/%q, want %d/alice", entry.userID, entry.username, alice)
	}

	if _, valid := srv.validateTicket(ticket); valid {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	srv, _ := testServer(t)

	ticket := generateTicket()
	srv.wsTickets.mu.Lock()
	srv.wsTickets.tickets[ticket] = ticketEntry{
		userID:    1,
		expiresAt: time.Now().Add(-1 * time.Second),
	}
	srv.wsTickets.mu.Unlock()

	if _, valid := srv.validateTicket(ticket); valid {
		t.Error("expired ticket should not be valid")
	}
}

func TestWSTicket_RequiresAuth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/ws-ticket", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── Post Endpoint Tests ───────────────────────────────────────────

func TestPosts_CreateListLike(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	token := login(t, router, "alice", testPassword)

	body := `{"title": "Pomodoro study log", "content": "Four sessions before lunch.", "category": "study-tips", "tags": ["focus"]}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/posts", token, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created social.Post
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected post ID to be assigned")
	}
	if created.Author.Username != "alice" {
		t.Errorf("author = %q, want alice", created.Author.Username)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/posts?category=study-tips", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", w.Code, http.StatusOK)
	}
	var list map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if int(list["count"].(float64)) != 1 {
		t.Errorf("count = %v, want 1", list["count"])
	}

	postPath := "/api/v1/posts/" + strconv.FormatInt(created.ID, 10)
	w = doJSON(t, router, http.MethodPost, postPath+"/like", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("like status = %d, want %d", w.Code, http.StatusOK)
	}

	w = doJSON(t, router, http.MethodGet, postPath, token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", w.Code, http.StatusOK)
	}
	var got social.Post
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal got: %v", err)
	}
	if got.Likes != 1 {
		t.Errorf("likes = %d, want 1", got.Likes)
	}
}

func TestPosts_CreateValidation(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	token := login(t, router, "alice", testPassword)

	w := doJSON(t, router, http.MethodPost, "/api/v1/posts", token, `{"title": "", "content": ""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPosts_DeleteRequiresAuthorOrModerator(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	seedAccount(t, db, "bob", auth.RoleUser)
	seedAccount(t, db, "mod", auth.RoleAdmin)

	aliceToken := login(t, router, "alice", testPassword)
	body := `{"title": "t", "content": "c"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/posts", aliceToken, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	var post social.Post
	if err := json.Unmarshal(w.Body.Bytes(), &post); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	postPath := "/api/v1/posts/" + strconv.FormatInt(post.ID, 10)

	// Another regular user may not delete it.
	bobToken := login(t, router, "bob", testPassword)
	w = doJSON(t, router, http.MethodDelete, postPath, bobToken, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("non-author delete status = %d, want %d", w.Code, http.StatusForbidden)
	}

	// A moderator may.
	modToken := login(t, router, "mod", testPassword)
	w = doJSON(t, router, http.MethodDelete, postPath, modToken, "")
	if w.Code != http.StatusOK {
		t.Errorf("moderator delete status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

// ─── Study Room Endpoint Tests ─────────────────────────────────────

func TestRooms_CreateJoinLeave(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	seedAccount(t, db, "bob", auth.RoleUser)

	aliceToken := login(t, router, "alice", testPassword)
	body := `{"name": "Organic Chemistry", "subject": "chemistry", "max_members": 2}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/study-rooms", aliceToken, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var room social.StudyRoom
	if err := json.Unmarshal(w.Body.Bytes(), &room); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// The creator joins automatically.
	if room.CurrentMembers != 1 {
		t.Errorf("current members = %d, want 1", room.CurrentMembers)
	}

	roomPath := "/api/v1/study-rooms/" + strconv.FormatInt(room.ID, 10)

	bobToken := login(t, router, "bob", testPassword)
	w = doJSON(t, router, http.MethodPost, roomPath+"/join", bobToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("join status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// Joining again conflicts.
	w = doJSON(t, router, http.MethodPost, roomPath+"/join", bobToken, "")
	if w.Code != http.StatusConflict {
		t.Errorf("double join status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = doJSON(t, router, http.MethodGet, roomPath+"/members", bobToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("members status = %d, want %d", w.Code, http.StatusOK)
	}
	var members map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &members); err != nil {
		t.Fatalf("unmarshal members: %v", err)
	}
	if int(members["count"].(float64)) != 2 {
		t.Errorf("member count = %v, want 2", members["count"])
	}

	w = doJSON(t, router, http.MethodPost, roomPath+"/leave", bobToken, "")
	if w.Code != http.StatusOK {
		t.Errorf("leave status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRooms_JoinFullRoom(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	seedAccount(t, db, "bob", auth.RoleUser)

	aliceToken := login(t, router, "alice", testPassword)
	body := `{"name": "Tiny room", "max_members": 1}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/study-rooms", aliceToken, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", w.Code, w.Body.String())
	}
	var room social.StudyRoom
	if err := json.Unmarshal(w.Body.Bytes(), &room); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	bobToken := login(t, router, "bob", testPassword)
	w = doJSON(t, router, http.MethodPost, "/api/v1/study-rooms/"+strconv.FormatInt(room.ID, 10)+"/join", bobToken, "")
	if w.Code != http.StatusConflict {
		t.Errorf("join full room status = %d, want %d", w.Code, http.StatusConflict)
	}
}

// ─── Message Endpoint Tests ────────────────────────────────────────

func TestMessages_SendAndConversation(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	bob := seedAccount(t, db, "bob", auth.RoleUser)

	aliceToken := login(t, router, "alice", testPassword)
	body := `{"receiver_id": ` + strconv.FormatInt(bob, 10) + `, "content": "want to revise together?"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/messages", aliceToken, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("send status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var msg social.Message
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.MessageType != social.MessageTypeText {
		t.Errorf("message type = %q, want text", msg.MessageType)
	}

	// Both parties see the conversation.
	bobToken := login(t, router, "bob", testPassword)
	w = doJSON(t, router, http.MethodGet, "/api/v1/messages?with="+strconv.FormatInt(msg.SenderID, 10), bobToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("conversation status = %d, want %d", w.Code, http.StatusOK)
	}
	var conv map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &conv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(conv["count"].(float64)) != 1 {
		t.Errorf("count = %v, want 1", conv["count"])
	}

	// Only the receiver may mark it read.
	msgPath := "/api/v1/messages/" + strconv.FormatInt(msg.ID, 10) + "/read"
	w = doJSON(t, router, http.MethodPost, msgPath, aliceToken, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("sender mark read status = %d, want %d", w.Code, http.StatusNotFound)
	}
	w = doJSON(t, router, http.MethodPost, msgPath, bobToken, "")
	if w.Code != http.StatusOK {
		t.Errorf("receiver mark read status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMessages_UnknownReceiver(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	token := login(t, router, "alice", testPassword)

	w := doJSON(t, router, http.MethodPost, "/api/v1/messages", token, `{"receiver_id": 9999, "content": "hello?"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMessages_SelfMessage(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	alice := seedAccount(t, db, "alice", auth.RoleUser)
	token := login(t, router, "alice", testPassword)

	body := `{"receiver_id": ` + strconv.FormatInt(alice, 10) + `, "content": "note to self"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/messages", token, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Friend Request Endpoint Tests ─────────────────────────────────

func TestFriendRequests_Flow(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	bob := seedAccount(t, db, "bob", auth.RoleUser)
	seedAccount(t, db, "carla", auth.RoleUser)

	aliceToken := login(t, router, "alice", testPassword)
	body := `{"to_user_id": ` + strconv.FormatInt(bob, 10) + `}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/friends/requests", aliceToken, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var fr social.FriendRequest
	if err := json.Unmarshal(w.Body.Bytes(), &fr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fr.Status != social.FriendRequestPending {
		t.Errorf("status = %q, want pending", fr.Status)
	}

	// A duplicate conflicts.
	w = doJSON(t, router, http.MethodPost, "/api/v1/friends/requests", aliceToken, body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want %d", w.Code, http.StatusConflict)
	}

	acceptPath := "/api/v1/friends/requests/" + strconv.FormatInt(fr.ID, 10) + "/accept"

	// Only the addressee may resolve it.
	carlaToken := login(t, router, "carla", testPassword)
	w = doJSON(t, router, http.MethodPost, acceptPath, carlaToken, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("non-addressee accept status = %d, want %d", w.Code, http.StatusForbidden)
	}

	bobToken := login(t, router, "bob", testPassword)
	w = doJSON(t, router, http.MethodPost, acceptPath, bobToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("accept status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// A resolved request stays resolved.
	declinePath := "/api/v1/friends/requests/" + strconv.FormatInt(fr.ID, 10) + "/decline"
	w = doJSON(t, router, http.MethodPost, declinePath, bobToken, "")
	if w.Code != http.StatusConflict {
		t.Errorf("resolve again status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestFriendRequests_SelfRequest(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	alice := seedAccount(t, db, "alice", auth.RoleUser)
	token := login(t, router, "alice", testPassword)

	body := `{"to_user_id": ` + strconv.FormatInt(alice, 10) + `}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/friends/requests", token, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestFriendRequests_UnknownTarget(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	seedAccount(t, db, "alice", auth.RoleUser)
	token := login(t, router, "alice", testPassword)

	w := doJSON(t, router, http.MethodPost, "/api/v1/friends/requests", token, `{"to_user_id": 9999}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func TestHub_AutoSubscribesOwnChannel(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		userID:        42,
	}
	hub.Register(client)

	hub.Broadcast(userChannel(42), map[string]any{"event": "friend_request"})

	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.EventType != "user.42" {
			t.Errorf("event_type = %q, want user.42", msg.EventType)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for direct event")
	}
}

func TestHub_NoCrossUserDelivery(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		userID:        1,
	}
	hub.Register(client)

	hub.Broadcast(userChannel(2), map[string]any{"secret": true})

	select {
	case <-client.send:
		t.Error("client should not receive another user's direct events")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWSClient_MaySubscribe(t *testing.T) {
	client := &WSClient{userID: 7}

	tests := []struct {
		channel string
		want    bool
	}{
		{"user.7", true},
		{"user.8", false},
		{"user.77", false},
		{"room.3", true},
		{"post.created", true},
	}

	for _, tt := range tests {
		if got := client.maySubscribe(tt.channel); got != tt.want {
			t.Errorf("maySubscribe(%q) = %v, want %v", tt.channel, got, tt.want)
		}
	}
}

func TestHub_ClientCount(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}
