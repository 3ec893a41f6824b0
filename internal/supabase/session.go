package supabase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// AuthEvent は認証状態の変化を表すイベント名。
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

const (
	// defaultRefreshMargin は有効期限の何秒前にトークンを更新するか。
	defaultRefreshMargin = 60 * time.Second

	// refreshTimeout はタイマー起点のトークン更新のタイムアウト。
	refreshTimeout = 10 * time.Second
)

// SessionStorage はセッションの保存先のインターフェース。
// ブラウザのlocalStorageに相当し、サーバー側セッションのdataカラムで実装される。
type SessionStorage interface {
	// LoadSession は保存済みのセッションを取得する。存在しない場合はnilを返す。
	LoadSession(ctx context.Context) (*Session, error)
	SaveSession(ctx context.Context, session *Session) error
	ClearSession(ctx context.Context) error
}

// AuthListener は認証状態の変化を受け取るコールバック。
// 通知ごとに別goroutineで呼び出される。
type AuthListener func(event AuthEvent, session *Session)

// AuthSession は1つのブラウザセッションに対応する認証状態を保持する。
// セッションの永続化、有効期限前のトークン更新、認証状態変化の通知を行う。
type AuthSession struct {
	client        *Client
	storage       SessionStorage
	logger        *slog.Logger
	refreshMargin time.Duration
	now           func() time.Time

	loadMu sync.Mutex
	loaded bool

	mu        sync.Mutex
	session   *Session
	listeners map[int]AuthListener
	nextID    int
	timer     *time.Timer
	closed    bool

	wg sync.WaitGroup
}

// NewAuthSession はAuthSessionを生成する。
// 保存済みセッションは最初のGetSession呼び出し時に読み込まれる。
func NewAuthSession(client *Client, storage SessionStorage, logger *slog.Logger) *AuthSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthSession{
		client:        client,
		storage:       storage,
		logger:        logger,
		refreshMargin: defaultRefreshMargin,
		now:           time.Now,
		listeners:     make(map[int]AuthListener),
	}
}

// GetSession は現在のセッションを返す。セッションがない場合はnilを返す。
// アクセストークンの有効期限が近い場合は更新してから返す。
func (a *AuthSession) GetSession(ctx context.Context) (*Session, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	s := a.session
	a.mu.Unlock()
	if s == nil {
		return nil, nil
	}

	exp := s.Expiry()
	if exp.IsZero() || a.now().Add(a.refreshMargin).Before(exp) {
		return s, nil
	}

	// 有効期限切れ間近のため更新する
	refreshed, err := a.refresh(ctx, s)
	if err != nil {
		if IsClientError(err) {
			// リフレッシュトークンが無効な場合はサインアウト扱い
			a.logger.Warn("refresh token rejected, clearing session", slog.String("error", err.Error()))
			a.clear(ctx)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return refreshed, nil
}

// AccessToken は現在のアクセストークンを返す。セッションがない場合は空文字を返す。
func (a *AuthSession) AccessToken(ctx context.Context) string {
	s, err := a.GetSession(ctx)
	if err != nil || s == nil {
		return ""
	}
	return s.AccessToken
}

// SignInWithPassword はサインインし、セッションを保存してSIGNED_INを通知する。
func (a *AuthSession) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	s, err := a.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.set(ctx, s, EventSignedIn)
	return s, nil
}

// SignUp はユーザーを登録する。メール確認が不要でセッションが発行された場合はSIGNED_INを通知する。
func (a *AuthSession) SignUp(ctx context.Context, email, password string, data map[string]any) (*User, *Session, error) {
	user, s, err := a.client.SignUp(ctx, email, password, data)
	if err != nil {
		return nil, nil, err
	}
	if s != nil {
		a.set(ctx, s, EventSignedIn)
	}
	return user, s, nil
}

// GetUser は現在のセッションのユーザーを認証サービスから取得する。
// セッションがない場合はnilを返す。
func (a *AuthSession) GetUser(ctx context.Context) (*User, error) {
	s, err := a.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	return a.client.GetUser(ctx, s.AccessToken)
}

// SignOut はリモートでトークンを失効させ、ローカルのセッションを破棄する。
// リモートの失効に失敗した場合もローカルのセッションは破棄し、エラーを返す。
func (a *AuthSession) SignOut(ctx context.Context) error {
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()

	var remoteErr error
	if s != nil {
		remoteErr = a.client.SignOut(ctx, s.AccessToken)
	}
	a.clear(ctx)
	return remoteErr
}

// Resend は登録確認メールを再送信する。
func (a *AuthSession) Resend(ctx context.Context, email string) error {
	return a.client.Resend(ctx, email)
}

// OnAuthStateChange は認証状態変化のリスナーを登録し、登録解除関数を返す。
func (a *AuthSession) OnAuthStateChange(fn AuthListener) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

// Close は更新タイマーを停止し、実行中のリスナーの終了を待つ。
// 複数回呼び出しても安全。
func (a *AuthSession) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.listeners = make(map[int]AuthListener)
	a.mu.Unlock()

	a.wg.Wait()
}

// ensureLoaded は保存済みセッションを一度だけ読み込む。
// 読み込みに失敗した場合は次回の呼び出しで再試行する。
func (a *AuthSession) ensureLoaded(ctx context.Context) error {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()
	if a.loaded {
		return nil
	}

	s, err := a.storage.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored session: %w", err)
	}

	a.mu.Lock()
	// 読み込み中に別の操作でセッションが設定された場合はそちらを優先する
	if a.session == nil && s != nil && s.AccessToken != "" {
		a.session = s
		a.scheduleRefreshLocked(s)
	}
	a.mu.Unlock()
	a.loaded = true
	return nil
}

// refresh はリフレッシュトークンでセッションを更新し、TOKEN_REFRESHEDを通知する。
func (a *AuthSession) refresh(ctx context.Context, current *Session) (*Session, error) {
	s, err := a.client.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	if s.User == nil {
		s.User = current.User
	}
	a.set(ctx, s, EventTokenRefreshed)
	return s, nil
}

// refreshFromTimer は更新タイマーから呼び出される。
func (a *AuthSession) refreshFromTimer() {
	a.mu.Lock()
	if a.closed || a.session == nil {
		a.mu.Unlock()
		return
	}
	current := a.session
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if _, err := a.refresh(ctx, current); err != nil {
		if IsClientError(err) {
			a.logger.Warn("scheduled token refresh rejected", slog.String("error", err.Error()))
			a.clear(ctx)
			return
		}
		a.logger.Error("scheduled token refresh failed", slog.String("error", err.Error()))
	}
}

// set はセッションを置き換えて保存し、イベントを通知する。
func (a *AuthSession) set(ctx context.Context, s *Session, event AuthEvent) {
	a.loadMu.Lock()
	a.loaded = true
	a.loadMu.Unlock()

	a.mu.Lock()
	a.session = s
	a.scheduleRefreshLocked(s)
	a.mu.Unlock()

	if err := a.storage.SaveSession(ctx, s); err != nil {
		a.logger.Error("failed to save auth session", slog.String("error", err.Error()))
	}
	a.emit(event, s)
}

// clear はセッションを破棄し、SIGNED_OUTを通知する。
func (a *AuthSession) clear(ctx context.Context) {
	a.mu.Lock()
	a.session = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	if err := a.storage.ClearSession(ctx); err != nil {
		a.logger.Error("failed to clear auth session", slog.String("error", err.Error()))
	}
	a.emit(EventSignedOut, nil)
}

// scheduleRefreshLocked は有効期限のrefreshMargin前に更新するタイマーを設定する。
// a.muを保持した状態で呼び出すこと。
func (a *AuthSession) scheduleRefreshLocked(s *Session) {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.closed || s.RefreshToken == "" {
		return
	}
	exp := s.Expiry()
	if exp.IsZero() {
		return
	}
	d := exp.Sub(a.now()) - a.refreshMargin
	if d <= 0 {
		// 期限切れ間近のセッションは次のGetSessionで更新する
		return
	}
	a.timer = time.AfterFunc(d, a.refreshFromTimer)
}

// emit は登録済みの全リスナーにイベントを非同期で通知する。
func (a *AuthSession) emit(event AuthEvent, s *Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, fn := range a.listeners {
		a.wg.Add(1)
		go func(fn AuthListener) {
			defer a.wg.Done()
			fn(event, s)
		}(fn)
	}
}
