package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/parkspot/internal/auth"
	"github.com/hitoshi/parkspot/internal/middleware"
	"github.com/hitoshi/parkspot/internal/model"
)

// routerSessionStore はRouter統合テスト用のSessionStoreモック。
type routerSessionStore struct {
	mu       sync.Mutex
	sessions map[string]bool
	created  int
}

func (m *routerSessionStore) FindSession(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] {
		return &model.Session{ID: id, ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	return nil, nil
}

func (m *routerSessionStore) CreateSession(ctx context.Context) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	id := "new-session"
	m.sessions[id] = true
	return &model.Session{ID: id, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *routerSessionStore) DestroySession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// routerSnapshotSource はセッションIDごとに固定の認証状態を返すSnapshotSourceモック。
type routerSnapshotSource struct {
	snapshots map[string]auth.Snapshot
}

func (m *routerSnapshotSource) Resolve(ctx context.Context, sessionID string) (auth.Snapshot, error) {
	return m.snapshots[sessionID], nil
}

type failingPinger struct{}

func (failingPinger) PingContext(ctx context.Context) error { return errors.New("connection refused") }

type testRouter struct {
	handler http.Handler
	store   *routerSessionStore
	session *mockAuthSession
}

func newTestRouter(t *testing.T, rl middleware.RateLimiterConfig) *testRouter {
	t.Helper()
	store := &routerSessionStore{sessions: map[string]bool{
		"anon-session":  true,
		"user-session":  true,
		"owner-session": true,
	}}
	source := &routerSnapshotSource{snapshots: map[string]auth.Snapshot{
		"user-session":  signedIn("user-1", model.RoleUser),
		"owner-session": signedIn("owner-1", model.RoleOwner),
	}}
	limiter := middleware.NewRateLimiter(rl)
	t.Cleanup(limiter.Stop)

	session := &mockAuthSession{}
	deps := &RouterDeps{
		MetricsHandler:    http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
		SessionStore:      store,
		SnapshotSource:    source,
		SessionCookie:     middleware.SessionCookieConfig{MaxAge: 3600},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       limiter,
		AuthSessions:      &mockAuthProvider{session: session},
		SessionDestroyer:  store,
		SpotService:       &mockSpotService{},
		DashboardService:  &mockDashboardService{},
		MaxImageSize:      testMaxImageSize,
	}
	return &testRouter{handler: NewRouter(deps), store: store, session: session}
}

func (tr *testRouter) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)
	return w
}

// browserRequest はセッションCookieとCSRFトークンを付与したリクエストを生成する。
func browserRequest(method, path, sessionID, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	}
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "csrf-ok"})
	req.Header.Set(middleware.CSRFHeaderName, "csrf-ok")
	return req
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestNewRouter_Health(t *testing.T) {
	tr := newTestRouter(t, middleware.DefaultRateLimiterConfig())

	w := tr.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if sessionCookie(w) != nil || tr.store.created != 0 {
		t.Error("/health should not issue a browser session")
	}
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(failingPinger{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestNewRouter_MetricsAndCSRFToken(t *testing.T) {
	tr := newTestRouter(t, middleware.DefaultRateLimiterConfig())

	if w := tr.do(httptest.NewRequest(http.MethodGet, "/metrics", nil)); w.Body.String() != "# metrics" {
		t.Errorf("/metrics body = %q", w.Body.String())
	}

	w := tr.do(httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("csrf-token status = %d", w.Code)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Token == "" {
		t.Errorf("token = %q, err = %v", body.Token, err)
	}
}

func TestNewRouter_AnonymousBrowsingIssuesSession(t *testing.T) {
	tr := newTestRouter(t, middleware.DefaultRateLimiterConfig())

	w := tr.do(httptest.NewRequest(http.MethodGet, "/api/spots", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	c := sessionCookie(w)
	if c == nil || c.Value != "new-session" || !c.HttpOnly {
		t.Errorf("session cookie = %+v", c)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be applied")
	}
}

func TestNewRouter_CSRFRequiredForStateChanges(t *testing.T) {
	tr := newTestRouter(t, middleware.DefaultRateLimiterConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(`{"email":"a@example.com","password":"x"}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "anon-session"})
	w := tr.do(req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}

	w = tr.do(browserRequest(http.MethodPost, "/auth/signin", "anon-session", `{"email":"a@example.com","password":"x"}`))
	if w.Code != http.StatusOK {
		t.Errorf("status with token = %d, want 200, body = %s", w.Code, w.Body.String())
	}
}

func TestNewRouter_AdminRoutesRequireOwnerOrAdmin(t *testing.T) {
	tr := newTestRouter(t, middleware.DefaultRateLimiterConfig())

	tests := []struct {
		name       string
		sessionID  string
		wantStatus int
	}{
		{"未ログイン", "anon-session", http.StatusUnauthorized},
		{"一般利用者", "user-session", http.StatusForbidden},
		{"オーナー", "owner-session", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tr.do(browserRequest(http.MethodGet, "/api/admin/dashboard", tt.sessionID, ""))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_ProfileRequiresAuth(t *testing.T) {
	tr := newTestRouter(t, middleware.DefaultRateLimiterConfig())

	w := tr.do(browserRequest(http.MethodPatch, "/api/profile", "anon-session", `{"name":"x"}`))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", w.Code)
	}

	tr.session.snapshot = signedIn("user-1", model.RoleUser)
	w = tr.do(browserRequest(http.MethodPatch, "/api/profile", "user-session", `{"name":"x"}`))
	if w.Code != http.StatusOK {
		t.Errorf("signed-in status = %d, want 200", w.Code)
	}
}

func TestNewRouter_AuthRateLimit(t *testing.T) {
	tr := newTestRouter(t, middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		AuthRate:        0.01,
		AuthBurst:       2,
		CleanupInterval: time.Hour,
	})

	for i := range 2 {
		if w := tr.do(browserRequest(http.MethodGet, "/auth/me", "anon-session", "")); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	if w := tr.do(browserRequest(http.MethodGet, "/auth/me", "anon-session", "")); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}

	// API全般は別枠
	if w := tr.do(browserRequest(http.MethodGet, "/api/spots", "anon-session", "")); w.Code != http.StatusOK {
		t.Errorf("api status = %d, want 200", w.Code)
	}
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	tr := newTestRouter(t, middleware.DefaultRateLimiterConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/admin/entry/validate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := tr.do(req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if tr.store.created != 0 {
		t.Error("preflight should not issue a session")
	}
}

func TestNewRouter_ForgetBrowserIssuesNewSession(t *testing.T) {
	tr := newTestRouter(t, middleware.DefaultRateLimiterConfig())

	w := tr.do(browserRequest(http.MethodDelete, "/auth/session", "user-session", ""))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	w = tr.do(browserRequest(http.MethodGet, "/auth/me", "user-session", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if tr.store.created != 1 {
		t.Errorf("created sessions = %d, want 1", tr.store.created)
	}
}
