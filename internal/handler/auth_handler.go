// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/parkspot/internal/auth"
	"github.com/hitoshi/parkspot/internal/middleware"
	"github.com/hitoshi/parkspot/internal/model"
)

// AuthSession はブラウザセッション1つ分の認証操作。auth.Reconcilerが実装する。
type AuthSession interface {
	Snapshot() auth.Snapshot
	SignIn(ctx context.Context, email, password string) error
	RememberCredentials(ctx context.Context, email string, remember bool) error
	RememberedEmail(ctx context.Context) (string, error)
	SignUp(ctx context.Context, email, password string, data auth.SignUpData) (*auth.SignUpResult, error)
	SignOut(ctx context.Context)
	UpdateProfile(ctx context.Context, update model.ProfileUpdate) error
	ResendConfirmation(ctx context.Context, email string) error
}

// AuthSessionProvider はブラウザセッションIDに対応するAuthSessionを返す。
type AuthSessionProvider interface {
	Session(ctx context.Context, sessionID string) AuthSession
	// Release はブラウザセッションIDに対応するAuthSessionを破棄する。
	Release(sessionID string)
}

// BrowserSessionDestroyer はブラウザセッションを破棄するインターフェース。
// auth.Serviceが実装する。
type BrowserSessionDestroyer interface {
	DestroySession(ctx context.Context, sessionID string) error
}

// AuthHandler はサインイン・サインアップなど認証関連のHTTPハンドラー。
type AuthHandler struct {
	sessions  AuthSessionProvider
	destroyer BrowserSessionDestroyer
	cookie    middleware.SessionCookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions AuthSessionProvider, destroyer BrowserSessionDestroyer, cookie middleware.SessionCookieConfig) *AuthHandler {
	return &AuthHandler{sessions: sessions, destroyer: destroyer, cookie: cookie}
}

// signInRequest はサインインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// signUpRequest はサインアップリクエストのボディ。
type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	auth.SignUpData
}

// resendRequest は確認メール再送リクエストのボディ。
type resendRequest struct {
	Email string `json:"email"`
}

// meResponse は現在の認証状態のAPIレスポンス。
type meResponse struct {
	Authenticated   bool           `json:"authenticated"`
	UserID          string         `json:"user_id,omitempty"`
	Email           string         `json:"email,omitempty"`
	Profile         *model.Profile `json:"profile"`
	RememberedEmail string         `json:"remembered_email,omitempty"`
	CanManageSpots  bool           `json:"can_manage_spots"` // ダッシュボードへの導線を表示するか
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewSignInFailedError("メールアドレスとパスワードを入力してください"))
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}

	// 1. サインイン（プロフィールの解決まで完了する）
	if err := session.SignIn(r.Context(), req.Email, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	// 2. 「ログイン情報を記憶する」を保存（失敗してもサインインは成功とする）
	if err := session.RememberCredentials(r.Context(), req.Email, req.Remember); err != nil {
		slog.Warn("failed to store remember-me preference", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, h.me(r.Context(), session))
}

// SignUp はユーザーを登録する。メール確認が必要な場合はconfirmation_requiredがtrueになる。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !model.ValidEmail(req.Email) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewSignUpFailedError("メールアドレスの形式が正しくありません"))
		return
	}
	if req.Password == "" || strings.TrimSpace(req.Name) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewSignUpFailedError("氏名とパスワードを入力してください"))
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}

	result, err := session.SignUp(r.Context(), req.Email, req.Password, req.SignUpData)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// SignOut はサインアウトする。ブラウザセッション自体は匿名として継続する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.SignOut(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ForgetBrowser はサインアウトしたうえでブラウザセッションそのものを破棄する。
// 「ログイン情報を記憶する」値もセッションと一緒に消える。次のリクエストでは新しい匿名セッションが発行される。
// DELETE /auth/session
func (h *AuthHandler) ForgetBrowser(w http.ResponseWriter, r *http.Request) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	// 1. 認証サービス側のセッションを破棄
	h.sessions.Session(r.Context(), sessionID).SignOut(r.Context())

	// 2. 保持中のReconcilerを解放
	h.sessions.Release(sessionID)

	// 3. ブラウザセッションを削除してCookieを失効させる
	if err := h.destroyer.DestroySession(r.Context(), sessionID); err != nil {
		slog.Error("failed to destroy browser session",
			slog.String("session_id", auth.ShortSessionID(sessionID)),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	middleware.ClearSessionCookie(w, h.cookie)

	w.WriteHeader(http.StatusNoContent)
}

// ResendConfirmation は登録確認メールを再送信する。
// POST /auth/resend
func (h *AuthHandler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !model.ValidEmail(req.Email) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewSignUpFailedError("メールアドレスの形式が正しくありません"))
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.ResendConfirmation(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在の認証状態を返す。未ログインの場合もauthenticated=falseで200を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.me(r.Context(), session))
}

// UpdateProfile はログイン中の利用者のプロフィールを部分更新し、更新後のプロフィールを返す。
// PATCH /api/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update model.ProfileUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.UpdateProfile(r.Context(), update); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session.Snapshot().Profile)
}

// session はリクエストのブラウザセッションに対応するAuthSessionを返す。
func (h *AuthHandler) session(w http.ResponseWriter, r *http.Request) (AuthSession, bool) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	return h.sessions.Session(r.Context(), sessionID), true
}

func (h *AuthHandler) me(ctx context.Context, session AuthSession) meResponse {
	snapshot := session.Snapshot()
	resp := meResponse{
		Authenticated: snapshot.UserID() != "",
		UserID:        snapshot.UserID(),
		Profile:       snapshot.Profile,
	}
	if snapshot.Profile != nil {
		resp.CanManageSpots = snapshot.Profile.Role.CanManageSpots()
	}
	if snapshot.Session != nil && snapshot.Session.User != nil {
		resp.Email = snapshot.Session.User.Email
	}

	email, err := session.RememberedEmail(ctx)
	if err != nil {
		slog.Warn("failed to read remembered email", slog.String("error", err.Error()))
	}
	resp.RememberedEmail = email
	return resp
}
