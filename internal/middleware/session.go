// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/parkspot/internal/auth"
	"github.com/hitoshi/parkspot/internal/model"
)

// SessionCookieName はブラウザセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// sessionIDContextKey はリクエストコンテキストにブラウザセッションIDを格納するためのキー。
	sessionIDContextKey = contextKey("session_id")
	// snapshotContextKey はリクエストコンテキストに認証状態を格納するためのキー。
	snapshotContextKey = contextKey("auth_snapshot")
)

// SessionStore はブラウザセッションの検索・発行に必要なインターフェース。
// auth.Serviceが実装する。
type SessionStore interface {
	FindSession(ctx context.Context, sessionID string) (*model.Session, error)
	CreateSession(ctx context.Context) (*model.Session, error)
}

// SnapshotSource はブラウザセッションの認証状態を解決するインターフェース。
// auth.Managerが実装する。
type SnapshotSource interface {
	Resolve(ctx context.Context, sessionID string) (auth.Snapshot, error)
}

// SessionCookieConfig はセッションCookieの設定。
type SessionCookieConfig struct {
	MaxAge       int // Cookieの有効期間（秒）
	Secure       bool
	CookieDomain string
}

// NewSessionMiddleware はHTTP Only CookieからブラウザセッションIDを読み取るミドルウェアを返す。
// 有効なセッションがない場合は匿名セッションを発行してCookieに設定する。
// セッションIDはリクエストコンテキストに注入する。
func NewSessionMiddleware(store SessionStore, config SessionCookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得し、有効性を検証
			var sessionID string
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				session, err := store.FindSession(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("failed to find session",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				if session != nil {
					sessionID = session.ID
				}
			}

			// 2. 有効なセッションがなければ新規発行
			if sessionID == "" {
				session, err := store.CreateSession(r.Context())
				if err != nil {
					slog.Error("failed to create session",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				sessionID = session.ID
				SetSessionCookie(w, sessionID, config)
			}

			// 3. セッションIDをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithSessionID(r.Context(), sessionID)))
		})
	}
}

// NewIdentityMiddleware はブラウザセッションの認証状態を解決し、コンテキストに注入するミドルウェアを返す。
// SessionMiddlewareの後に配置する。解決が終わるまでリクエストを待たせる。
func NewIdentityMiddleware(source SnapshotSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, err := SessionIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			snapshot, err := source.Resolve(r.Context(), sessionID)
			if err != nil {
				slog.Warn("failed to resolve auth state",
					slog.String("session_id", auth.ShortSessionID(sessionID)),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewUpstreamUnavailableError())
				return
			}

			if userID := snapshot.UserID(); userID != "" {
				noteUserID(r.Context(), userID)
			}
			ctx := context.WithValue(r.Context(), snapshotContextKey, snapshot)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetSessionCookie はブラウザセッションIDのCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, sessionID string, config SessionCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.MaxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はブラウザセッションIDのCookieを失効させる。
func ClearSessionCookie(w http.ResponseWriter, config SessionCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionIDFromContext はリクエストコンテキストからブラウザセッションIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionIDFromContext(ctx context.Context) (string, error) {
	sessionID, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return sessionID, nil
}

// ContextWithSessionID はコンテキストにブラウザセッションIDを注入する。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}

// SnapshotFromContext はリクエストコンテキストから認証状態を取得する。
// IdentityMiddlewareを通過していない場合はfalseを返す。
func SnapshotFromContext(ctx context.Context) (auth.Snapshot, bool) {
	snapshot, ok := ctx.Value(snapshotContextKey).(auth.Snapshot)
	return snapshot, ok
}

// ContextWithSnapshot はコンテキストに認証状態を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSnapshot(ctx context.Context, snapshot auth.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotContextKey, snapshot)
}

// UserIDFromContext はリクエストコンテキストからログイン中のユーザーIDを取得する。
// 未ログインの場合はエラーを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	snapshot, ok := SnapshotFromContext(ctx)
	if !ok || snapshot.UserID() == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return snapshot.UserID(), nil
}

// RequireAuth はログインしていないリクエストに401を返すミドルウェアを返す。
func RequireAuth() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := UserIDFromContext(r.Context()); err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole は指定ロールのいずれかを持たないリクエストを拒否するミドルウェアを返す。
// 未ログインは401、ロール不足は403を返す。
func RequireRole(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snapshot, _ := SnapshotFromContext(r.Context())
			if snapshot.UserID() == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			for _, role := range roles {
				if snapshot.Role() == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			slog.Warn("insufficient role",
				slog.String("user_id", snapshot.UserID()),
				slog.String("role", string(snapshot.Role())),
				slog.String("path", r.URL.Path),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		})
	}
}
