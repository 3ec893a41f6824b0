package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/parkspot/internal/auth"
	"github.com/hitoshi/parkspot/internal/model"
)

// newChainRouter は本番と同じ順序のミドルウェアチェーンを持つルーターを返す。
// Session -> Identity -> CSRF -> (RequireRole)
func newChainRouter(t *testing.T, snapshots map[string]auth.Snapshot) (*chi.Mux, *mockSessionStore) {
	t.Helper()
	store := &mockSessionStore{
		findFn: func(_ context.Context, id string) (*model.Session, error) {
			if _, ok := snapshots[id]; ok {
				return &model.Session{ID: id, ExpiresAt: time.Now().Add(time.Hour)}, nil
			}
			return nil, nil
		},
	}
	source := &mockSnapshotSource{snapshots: snapshots}
	csrfConfig := CSRFConfig{}

	r := chi.NewRouter()
	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(store, SessionCookieConfig{MaxAge: 3600}))
		r.Use(NewIdentityMiddleware(source))
		r.Use(NewCSRFMiddleware(csrfConfig))

		r.Get("/api/spots", func(w http.ResponseWriter, r *http.Request) {
			sessionID, _ := SessionIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"session_id": sessionID})
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(model.RoleOwner, model.RoleAdmin))
			r.Post("/api/admin/spots/{id}/toggle", func(w http.ResponseWriter, r *http.Request) {
				userID, _ := UserIDFromContext(r.Context())
				json.NewEncoder(w).Encode(map[string]string{"user_id": userID, "spot_id": chi.URLParam(r, "id")})
			})
		})
	})
	return r, store
}

func TestRouterIntegration_MiddlewareChain(t *testing.T) {
	r, store := newChainRouter(t, map[string]auth.Snapshot{
		"owner-session": signedIn("owner-1", model.RoleOwner),
		"user-session":  signedIn("user-1", model.RoleUser),
	})

	t.Run("匿名の閲覧でセッションが発行される", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/spots", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var body map[string]string
		json.NewDecoder(w.Body).Decode(&body)
		if body["session_id"] != "new-session-id" {
			t.Errorf("session_id = %q", body["session_id"])
		}
		if store.created != 1 {
			t.Errorf("created = %d, want 1", store.created)
		}
	})

	t.Run("オーナーはCSRFトークン付きで操作できる", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/spots/spot-9/toggle", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "owner-session"})
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf"})
		req.Header.Set(CSRFHeaderName, "csrf")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var body map[string]string
		json.NewDecoder(w.Body).Decode(&body)
		if body["user_id"] != "owner-1" || body["spot_id"] != "spot-9" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("CSRFトークンなしは403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/spots/spot-9/toggle", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "owner-session"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("一般利用者は403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/spots/spot-9/toggle", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "user-session"})
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf"})
		req.Header.Set(CSRFHeaderName, "csrf")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		var body ErrorResponseBody
		json.NewDecoder(w.Body).Decode(&body)
		if w.Code != http.StatusForbidden || body.Code != model.ErrCodeForbidden {
			t.Errorf("status = %d, code = %q", w.Code, body.Code)
		}
	})

	t.Run("未ログインは401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/spots/spot-9/toggle", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "csrf"})
		req.Header.Set(CSRFHeaderName, "csrf")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("CSRFトークン取得はセッション不要", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}
