package handler

import (
	"context"

	"github.com/hitoshi/parkspot/internal/auth"
)

// AuthSessionAdapter は auth.Manager を AuthSessionProvider に適合させるアダプタ。
type AuthSessionAdapter struct {
	manager *auth.Manager
}

// NewAuthSessionAdapter はAuthSessionAdapterを生成する。
func NewAuthSessionAdapter(manager *auth.Manager) *AuthSessionAdapter {
	return &AuthSessionAdapter{manager: manager}
}

// Session はブラウザセッションに対応するReconcilerを返す。
func (a *AuthSessionAdapter) Session(ctx context.Context, sessionID string) AuthSession {
	return a.manager.Get(ctx, sessionID)
}

// Release はブラウザセッションに対応するReconcilerを破棄する。
func (a *AuthSessionAdapter) Release(sessionID string) {
	a.manager.Release(sessionID)
}

// コンパイル時にインターフェースの実装を検証する
var (
	_ AuthSession             = (*auth.Reconciler)(nil)
	_ AuthSessionProvider     = (*AuthSessionAdapter)(nil)
	_ BrowserSessionDestroyer = (*auth.Service)(nil)
)
