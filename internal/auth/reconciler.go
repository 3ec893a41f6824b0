package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/repository"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// DefaultProfileTimeout はプロフィールの取得・作成を待つ既定の時間。
const DefaultProfileTimeout = 5 * time.Second

// ブラウザに「ログイン情報を記憶する」ために保存するキー。
const (
	RememberMeKey      = "rememberMe"
	RememberedEmailKey = "rememberedEmail"
)

// 整合結果の種別。メトリクスとログに使用する。
const (
	OutcomeAnonymous    = "anonymous"
	OutcomeLoaded       = "loaded"
	OutcomePersisted    = "synthesized_persisted"
	OutcomeInMemory     = "synthesized_in_memory"
	OutcomeNoUser       = "no_user"
	OutcomeSignedOut    = "signed_out"
	OutcomeSessionError = "session_error"
)

// ErrNoSession はセッションがない状態でプロフィールを更新しようとした場合のエラー。
var ErrNoSession = model.NewNoActiveSessionError()

// AuthBackend はReconcilerが依存する認証サービスのインターフェース。
// supabase.AuthSessionが実装する。
type AuthBackend interface {
	GetSession(ctx context.Context) (*supabase.Session, error)
	GetUser(ctx context.Context) (*supabase.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	SignUp(ctx context.Context, email, password string, data map[string]any) (*supabase.User, *supabase.Session, error)
	SignOut(ctx context.Context) error
	Resend(ctx context.Context, email string) error
	OnAuthStateChange(fn supabase.AuthListener) (unsubscribe func())
}

// CredentialStore は「ログイン情報を記憶する」値の保存先。
// repository.SessionDataStoreが実装する。
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}

// Recorder は整合結果を記録するインターフェース。
// metrics.Collectorが実装する。
type Recorder interface {
	RecordReconcile(outcome string)
	RecordStaleDiscard()
}

// Config はReconcilerの設定。
type Config struct {
	ProfileLoadTimeout   time.Duration // プロフィール取得のタイムアウト
	ProfileCreateTimeout time.Duration // プロフィール作成のタイムアウト
}

// Deps はReconcilerの依存。
type Deps struct {
	Backend     AuthBackend
	Profiles    repository.ProfileRepository
	Credentials CredentialStore
	Recorder    Recorder // nilの場合は記録しない
}

// Snapshot はある時点の認証状態。
type Snapshot struct {
	Session *supabase.Session
	Profile *model.Profile
	Loading bool // セッション・プロフィールの解決中かどうか
}

// UserID はログイン中のユーザーIDを返す。未ログインの場合は空文字を返す。
func (s Snapshot) UserID() string {
	return s.Session.UserID()
}

// Role はプロフィールのロールを返す。プロフィールがない場合は空文字を返す。
func (s Snapshot) Role() model.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

// Reconciler は1つのブラウザセッションについて「誰がログインしていて、そのプロフィールは何か」を保持する。
// 認証サービスのセッションとprofilesテーブルの不整合（行がない、取得が遅い、トークン失効）を吸収し、
// 画面側には常に確定した状態を返す。
//
// 状態の更新は世代番号で保護される。解決を開始するたびに世代を進め、
// 完了時に世代が変わっていればその結果は破棄する。
//
// SignIn・SignOutは自身で解決するため、それらが引き起こしたSIGNED_IN/SIGNED_OUTの通知では解決し直さない。
type Reconciler struct {
	backend     AuthBackend
	profiles    repository.ProfileRepository
	credentials CredentialStore
	recorder    Recorder
	config      Config
	logger      *slog.Logger
	now         func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	mu          sync.Mutex
	gen         uint64
	state       Snapshot
	target      string // 最新の解決が対象とするセッションのアクセストークン（未ログインは空文字）
	commands    int    // 実行中のサインイン・サインアウトの数
	ready       chan struct{} // Loadingがfalseになった時点でcloseされる
	unsubscribe func()
	closed      bool
	closeOnce   sync.Once
}

// NewReconciler はReconcilerを生成する。Startを呼び出すまで状態はLoadingのまま。
func NewReconciler(deps Deps, config Config, logger *slog.Logger) *Reconciler {
	if config.ProfileLoadTimeout <= 0 {
		config.ProfileLoadTimeout = DefaultProfileTimeout
	}
	if config.ProfileCreateTimeout <= 0 {
		config.ProfileCreateTimeout = DefaultProfileTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		backend:     deps.Backend,
		profiles:    deps.Profiles,
		credentials: deps.Credentials,
		recorder:    deps.Recorder,
		config:      config,
		logger:      logger,
		now:         time.Now,
		baseCtx:     baseCtx,
		cancel:      cancel,
		state:       Snapshot{Loading: true},
		ready:       make(chan struct{}),
	}
}

// Start は認証状態変化の購読を開始し、現在のセッションを解決する。
// 購読はCloseで必ず解除される。2回目以降の呼び出しは何もしない。
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.closed || r.unsubscribe != nil {
		r.mu.Unlock()
		return
	}
	r.unsubscribe = r.backend.OnAuthStateChange(r.onAuthStateChange)
	r.mu.Unlock()

	r.refresh(ctx)
}

// Close は購読を解除し、認証バックエンドを解放する。複数回呼び出しても安全。
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		unsubscribe := r.unsubscribe
		r.unsubscribe = nil
		r.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		r.cancel()
		if c, ok := r.backend.(interface{ Close() }); ok {
			c.Close()
		}
	})
}

// Snapshot は現在の認証状態を返す。
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// WaitReady は解決中の処理が完了するまで待ち、その時点の状態を返す。
func (r *Reconciler) WaitReady(ctx context.Context) (Snapshot, error) {
	for {
		r.mu.Lock()
		if !r.state.Loading {
			s := r.state
			r.mu.Unlock()
			return s, nil
		}
		ready := r.ready
		r.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return r.Snapshot(), ctx.Err()
		}
	}
}

// SignIn はメールアドレスとパスワードでサインインし、プロフィールを解決する。
// メール未確認の場合はEMAIL_NOT_CONFIRMED、認証情報の誤りはSIGN_IN_FAILEDのAPIErrorを返す。
// 戻った時点のSnapshotは新しいセッションとそのプロフィールを保持している。
func (r *Reconciler) SignIn(ctx context.Context, email, password string) error {
	done := r.beginCommand()
	defer done()
	gen := r.begin()

	session, err := r.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		r.abort(gen)
		if supabase.IsEmailNotConfirmed(err) {
			return model.NewEmailNotConfirmedError()
		}
		var apiErr *supabase.Error
		if errors.As(err, &apiErr) && supabase.IsClientError(err) {
			return model.NewSignInFailedError(apiErr.Message)
		}
		return fmt.Errorf("failed to sign in: %w", err)
	}

	r.logger.Info("user signed in", slog.String("user_id", session.UserID()))

	// プロフィールの解決が終わるまでLoadingのまま
	r.resolve(context.WithoutCancel(ctx), gen, session)
	return nil
}

// RememberCredentials はサインイン時の「ログイン情報を記憶する」設定を保存する。
// rememberがfalseの場合は保存済みの値を削除する。
func (r *Reconciler) RememberCredentials(ctx context.Context, email string, remember bool) error {
	if !remember {
		return r.credentials.Remove(ctx, RememberMeKey, RememberedEmailKey)
	}
	if err := r.credentials.Set(ctx, RememberMeKey, "true"); err != nil {
		return fmt.Errorf("failed to remember credentials: %w", err)
	}
	if err := r.credentials.Set(ctx, RememberedEmailKey, email); err != nil {
		return fmt.Errorf("failed to remember credentials: %w", err)
	}
	return nil
}

// RememberedEmail は「ログイン情報を記憶する」で保存されたメールアドレスを返す。
// 記憶していない場合は空文字を返す。
func (r *Reconciler) RememberedEmail(ctx context.Context) (string, error) {
	remember, ok, err := r.credentials.Get(ctx, RememberMeKey)
	if err != nil {
		return "", fmt.Errorf("failed to read remembered credentials: %w", err)
	}
	if !ok || remember != "true" {
		return "", nil
	}
	email, _, err := r.credentials.Get(ctx, RememberedEmailKey)
	if err != nil {
		return "", fmt.Errorf("failed to read remembered credentials: %w", err)
	}
	return email, nil
}

// SignUpData はサインアップ時にuser_metadataとして送る初期プロフィール。
type SignUpData struct {
	Name            string `json:"name"`
	Role            string `json:"role"`
	Phone           string `json:"phone"`
	BusinessName    string `json:"businessName"`
	BusinessAddress string `json:"businessAddress"`
}

// SignUpResult はサインアップの結果。
type SignUpResult struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	ConfirmationRequired bool   `json:"confirmation_required"`
}

// SignUp はユーザーを登録する。初期プロフィールはuser_metadataとして送信する。
// メール確認が必要な場合があるため、このメソッド自体はセッションとプロフィールを変更しない。
func (r *Reconciler) SignUp(ctx context.Context, email, password string, data SignUpData) (*SignUpResult, error) {
	role := model.Role(data.Role)
	if data.Role == "" {
		role = model.RoleUser
	}
	// 管理者ロールは登録時に選択できない
	if role != model.RoleUser && role != model.RoleOwner {
		return nil, model.NewSignUpFailedError(fmt.Sprintf("invalid role: %s", data.Role))
	}

	metadata := map[string]any{
		"name":             data.Name,
		"role":             string(role),
		"phone":            data.Phone,
		"business_name":    data.BusinessName,
		"business_address": data.BusinessAddress,
	}

	user, session, err := r.backend.SignUp(ctx, email, password, metadata)
	if err != nil {
		var apiErr *supabase.Error
		if errors.As(err, &apiErr) && supabase.IsClientError(err) {
			return nil, model.NewSignUpFailedError(apiErr.Message)
		}
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	result := &SignUpResult{Email: email, ConfirmationRequired: session == nil}
	if user != nil {
		result.UserID = user.ID
		result.Email = user.Email
	}
	r.logger.Info("user signed up",
		slog.String("user_id", result.UserID),
		slog.String("email", maskEmail(result.Email)),
		slog.Bool("confirmation_required", result.ConfirmationRequired),
	)
	return result, nil
}

// SignOut はリモートでセッションを失効させ、ローカルの状態と記憶したログイン情報を消去する。
// リモートの失効に失敗してもローカルの状態は必ず消去し、エラーはログに記録するのみとする。
func (r *Reconciler) SignOut(ctx context.Context) {
	done := r.beginCommand()
	defer done()
	userID := r.Snapshot().UserID()

	if err := r.backend.SignOut(ctx); err != nil {
		r.logger.Warn("remote sign out failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	if err := r.credentials.Remove(ctx, RememberMeKey, RememberedEmailKey); err != nil {
		r.logger.Warn("failed to remove remembered credentials",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	r.clear()
	r.recordOutcome(OutcomeSignedOut)
	r.logger.Info("user signed out", slog.String("user_id", userID))
}

// UpdateProfile はプロフィールを部分更新し、更新後のプロフィールを解決し直す。
// セッションがない場合はErrNoSessionを返す。
func (r *Reconciler) UpdateProfile(ctx context.Context, update model.ProfileUpdate) error {
	session := r.Snapshot().Session
	if session == nil || session.User == nil {
		return ErrNoSession
	}
	if err := update.Validate(); err != nil {
		return err
	}

	authCtx := supabase.ContextWithAccessToken(ctx, session.AccessToken)
	if err := r.profiles.Update(authCtx, session.User.ID, update); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	gen := r.begin()
	r.resolve(context.WithoutCancel(ctx), gen, session)
	return nil
}

// ResendConfirmation は登録確認メールを再送信する。
func (r *Reconciler) ResendConfirmation(ctx context.Context, email string) error {
	if err := r.backend.Resend(ctx, email); err != nil {
		var apiErr *supabase.Error
		if errors.As(err, &apiErr) && supabase.IsClientError(err) {
			return model.NewSignUpFailedError(apiErr.Message)
		}
		return fmt.Errorf("failed to resend confirmation: %w", err)
	}
	r.logger.Info("confirmation email resent", slog.String("email", maskEmail(email)))
	return nil
}

// onAuthStateChange は認証状態の変化を受けて解決し直す。
// 通知の順序は保証されないため、通知に含まれるセッションではなく最新のセッションを取得し直す。
func (r *Reconciler) onAuthStateChange(event supabase.AuthEvent, session *supabase.Session) {
	if r.handledByCommand(event, session) {
		r.logger.Debug("auth state change already reconciled", slog.String("event", string(event)))
		return
	}
	r.logger.Info("auth state changed", slog.String("event", string(event)))
	r.refresh(r.baseCtx)
}

// handledByCommand は通知がReconciler自身の操作によるもので、解決し直す必要がないかを判定する。
// SIGNED_IN/SIGNED_OUTのみが対象。操作の実行中、または通知のセッションが解決済みのものと同じ場合にtrueを返す。
func (r *Reconciler) handledByCommand(event supabase.AuthEvent, session *supabase.Session) bool {
	if event != supabase.EventSignedIn && event != supabase.EventSignedOut {
		return false
	}
	token := ""
	if session != nil {
		token = session.AccessToken
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commands > 0 || token == r.target
}

// beginCommand はサインイン・サインアウトの開始を記録し、終了時に呼び出す関数を返す。
func (r *Reconciler) beginCommand() func() {
	r.mu.Lock()
	r.commands++
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.commands--
		r.mu.Unlock()
	}
}

// refresh は現在のセッションを取得して解決する。
func (r *Reconciler) refresh(ctx context.Context) {
	gen := r.begin()

	session, err := r.backend.GetSession(ctx)
	if err != nil {
		r.logger.Error("failed to get current session", slog.String("error", err.Error()))
		r.track(gen, nil)
		r.commit(gen, nil, nil, OutcomeSessionError)
		return
	}
	r.resolve(ctx, gen, session)
}

// resolve はセッションに対応するプロフィールを解決し、世代が一致すれば状態に反映する。
func (r *Reconciler) resolve(ctx context.Context, gen uint64, session *supabase.Session) {
	if session == nil || session.User == nil {
		r.track(gen, nil)
		r.commit(gen, nil, nil, OutcomeAnonymous)
		return
	}
	r.track(gen, session)

	profile, outcome := r.resolveProfile(ctx, session)
	if outcome == OutcomeSignedOut {
		r.track(gen, nil)
		r.commit(gen, nil, nil, outcome)
		return
	}
	r.commit(gen, session, profile, outcome)
}

// resolveProfile はprofilesテーブルからプロフィールを取得する。
// 取得できない場合は補完し、トークン失効を検知した場合はサインアウトする。
func (r *Reconciler) resolveProfile(ctx context.Context, session *supabase.Session) (*model.Profile, string) {
	userID := session.User.ID
	ctx = supabase.ContextWithAccessToken(ctx, session.AccessToken)

	// 1. プロフィール取得（タイムアウトと競争）
	profile, err := raceTimeout(ctx, r.config.ProfileLoadTimeout, func(ctx context.Context) (*model.Profile, error) {
		return r.profiles.FindByID(ctx, userID)
	})

	switch {
	case err == nil && profile != nil:
		return profile, OutcomeLoaded
	case err != nil && supabase.IsAuthInvalid(err):
		// 2a. トークン失効はセッションにとって致命的
		r.forceSignOut(ctx, userID, err)
		return nil, OutcomeSignedOut
	case errors.Is(err, errTimedOut):
		r.logger.Warn("profile lookup timed out, synthesizing profile",
			slog.String("user_id", userID),
			slog.Duration("timeout", r.config.ProfileLoadTimeout),
		)
	case err != nil:
		r.logger.Warn("profile lookup failed, synthesizing profile",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	default:
		r.logger.Info("profile not found, synthesizing profile", slog.String("user_id", userID))
	}

	// 2b. それ以外の失敗はプロフィールを補完する
	return r.synthesize(ctx, userID)
}

// synthesize はユーザー情報からプロフィールを組み立て、保存を試みる。
// 保存に失敗またはタイムアウトした場合は、保存されていない同等のプロフィールを返す。
func (r *Reconciler) synthesize(ctx context.Context, userID string) (*model.Profile, string) {
	// 1. 最新のユーザー情報を取得
	user, err := r.backend.GetUser(ctx)
	if err != nil {
		if supabase.IsAuthInvalid(err) {
			r.forceSignOut(ctx, userID, err)
			return nil, OutcomeSignedOut
		}
		r.logger.Warn("failed to get current user for profile synthesis",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, OutcomeNoUser
	}
	if user == nil {
		r.logger.Warn("no current user for profile synthesis", slog.String("user_id", userID))
		return nil, OutcomeNoUser
	}

	// 2. プロフィールを組み立てる
	candidate := SynthesizeProfile(userID, user, r.now())

	// 3. 保存（タイムアウトと競争）
	created, err := raceTimeout(ctx, r.config.ProfileCreateTimeout, func(ctx context.Context) (*model.Profile, error) {
		return r.profiles.Insert(ctx, candidate)
	})
	if err != nil || created == nil {
		reason := "empty response"
		if err != nil {
			reason = err.Error()
		}
		r.logger.Warn("failed to persist synthesized profile, using in-memory profile",
			slog.String("user_id", userID),
			slog.String("error", reason),
		)
		return candidate, OutcomeInMemory
	}

	r.logger.Info("synthesized profile persisted", slog.String("user_id", userID))
	return created, OutcomePersisted
}

// forceSignOut はトークン失効を検知した場合にリモートのセッションを失効させる。
func (r *Reconciler) forceSignOut(ctx context.Context, userID string, cause error) {
	r.logger.Warn("auth token rejected, signing out",
		slog.String("user_id", userID),
		slog.String("error", cause.Error()),
	)
	// このサインアウトによるSIGNED_OUTで解決し直さない
	r.untrack(supabase.AccessTokenFromContext(ctx))
	if err := r.backend.SignOut(ctx); err != nil {
		r.logger.Warn("remote sign out failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// begin は新しい解決を開始し、その世代番号を返す。
func (r *Reconciler) begin() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if !r.state.Loading {
		r.state.Loading = true
		r.ready = make(chan struct{})
	}
	return r.gen
}

// track は世代が最新であれば、解決対象のセッションを記録する。
func (r *Reconciler) track(gen uint64, session *supabase.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return
	}
	r.target = ""
	if session != nil {
		r.target = session.AccessToken
	}
}

// untrack は解決対象がtokenのセッションであれば、その記録を消去する。
func (r *Reconciler) untrack(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target == token {
		r.target = ""
	}
}

// commit は世代が最新であれば解決結果を状態に反映する。古い世代の結果は破棄してfalseを返す。
func (r *Reconciler) commit(gen uint64, session *supabase.Session, profile *model.Profile, outcome string) bool {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		r.logger.Debug("discarding stale resolution", slog.String("outcome", outcome))
		if r.recorder != nil {
			r.recorder.RecordStaleDiscard()
		}
		return false
	}
	wasLoading := r.state.Loading
	r.state = Snapshot{Session: session, Profile: profile, Loading: false}
	if wasLoading {
		close(r.ready)
	}
	r.mu.Unlock()

	r.recordOutcome(outcome)
	r.logger.Info("session reconciled",
		slog.String("user_id", session.UserID()),
		slog.String("outcome", outcome),
	)
	return true
}

// abort は解決を開始したものの完了させずに終える（サインイン失敗時）。
// 状態は変更せず、世代が最新であればLoadingのみ解除する。
func (r *Reconciler) abort(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || !r.state.Loading {
		return
	}
	r.state.Loading = false
	close(r.ready)
}

// clear は進行中の解決を無効化し、セッションとプロフィールを無条件に消去する。
func (r *Reconciler) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.target = ""
	wasLoading := r.state.Loading
	r.state = Snapshot{}
	if wasLoading {
		close(r.ready)
	}
}

func (r *Reconciler) recordOutcome(outcome string) {
	if r.recorder != nil {
		r.recorder.RecordReconcile(outcome)
	}
}

// maskEmail はログ出力用にメールアドレスのローカル部を伏せる。
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
