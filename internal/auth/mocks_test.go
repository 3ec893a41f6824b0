package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/parkspot/internal/model"
	"github.com/hitoshi/parkspot/internal/repository"
	"github.com/hitoshi/parkspot/internal/supabase"
)

// --- モック定義 ---

type mockBackend struct {
	mu sync.Mutex

	session *supabase.Session
	user    *supabase.User

	getSessionFn func(ctx context.Context) (*supabase.Session, error)
	getUserFn    func(ctx context.Context) (*supabase.User, error)
	signInFn     func(ctx context.Context, email, password string) (*supabase.Session, error)
	signUpFn     func(ctx context.Context, email, password string, data map[string]any) (*supabase.User, *supabase.Session, error)
	signOutFn    func(ctx context.Context) error
	resendFn     func(ctx context.Context, email string) error

	listener         supabase.AuthListener
	listeners        sync.WaitGroup
	subscribeCount   int
	unsubscribeCount int
	signOutCount     int
	closeCount       int
}

func (m *mockBackend) GetSession(ctx context.Context) (*supabase.Session, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, nil
}

func (m *mockBackend) GetUser(ctx context.Context) (*supabase.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	if m.user != nil {
		return m.user, nil
	}
	return m.session.User, nil
}

func (m *mockBackend) SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error) {
	if m.signInFn != nil {
		s, err := m.signInFn(ctx, email, password)
		if err == nil {
			m.setSession(s)
			m.emitAsync(supabase.EventSignedIn)
		}
		return s, err
	}
	s := newTestSession("user-1", email, nil)
	m.setSession(s)
	m.emitAsync(supabase.EventSignedIn)
	return s, nil
}

func (m *mockBackend) SignUp(ctx context.Context, email, password string, data map[string]any) (*supabase.User, *supabase.Session, error) {
	if m.signUpFn != nil {
		user, s, err := m.signUpFn(ctx, email, password, data)
		if err == nil && s != nil {
			// メール確認が不要な場合はサインイン済みになる
			m.setSession(s)
			m.emitAsync(supabase.EventSignedIn)
		}
		return user, s, err
	}
	return &supabase.User{ID: "new-user", Email: email, UserMetadata: data}, nil, nil
}

func (m *mockBackend) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.signOutCount++
	m.session = nil
	m.mu.Unlock()
	m.emitAsync(supabase.EventSignedOut)
	if m.signOutFn != nil {
		return m.signOutFn(ctx)
	}
	return nil
}

func (m *mockBackend) Resend(ctx context.Context, email string) error {
	if m.resendFn != nil {
		return m.resendFn(ctx, email)
	}
	return nil
}

func (m *mockBackend) OnAuthStateChange(fn supabase.AuthListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
	m.subscribeCount++
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listener = nil
		m.unsubscribeCount++
	}
}

func (m *mockBackend) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
}

func (m *mockBackend) setSession(s *supabase.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

// emit は登録されたリスナーを同期的に呼び出す。
func (m *mockBackend) emit(event supabase.AuthEvent) {
	m.mu.Lock()
	fn := m.listener
	s := m.session
	m.mu.Unlock()
	if fn != nil {
		fn(event, s)
	}
}

// emitAsync はsupabase.AuthSessionと同様に、登録されたリスナーを別goroutineで呼び出す。
func (m *mockBackend) emitAsync(event supabase.AuthEvent) {
	m.mu.Lock()
	fn := m.listener
	s := m.session
	if fn != nil {
		m.listeners.Add(1)
	}
	m.mu.Unlock()
	if fn == nil {
		return
	}
	go func() {
		defer m.listeners.Done()
		fn(event, s)
	}()
}

// waitListeners はemitAsyncで起動したリスナーの完了を待つ。
func (m *mockBackend) waitListeners() {
	m.listeners.Wait()
}

func (m *mockBackend) counts() (signOut, unsubscribe, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signOutCount, m.unsubscribeCount, m.closeCount
}

// mockProfileRepo はインメモリのprofilesテーブル。関数フィールドで各操作を差し替えられる。
type mockProfileRepo struct {
	mu       sync.Mutex
	rows     map[string]*model.Profile
	inserted []*model.Profile
	updates  []model.ProfileUpdate
	tokens   []string

	findByIDFn func(ctx context.Context, id string) (*model.Profile, error)
	insertFn   func(ctx context.Context, profile *model.Profile) (*model.Profile, error)
	updateFn   func(ctx context.Context, id string, update model.ProfileUpdate) error
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{rows: make(map[string]*model.Profile)}
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	m.tokens = append(m.tokens, supabase.AccessTokenFromContext(ctx))
	m.mu.Unlock()
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepo) Insert(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	m.mu.Lock()
	cp := *profile
	m.inserted = append(m.inserted, &cp)
	m.mu.Unlock()
	if m.insertFn != nil {
		return m.insertFn(ctx, profile)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *profile
	m.rows[profile.ID] = &stored
	out := stored
	return &out, nil
}

func (m *mockProfileRepo) Update(ctx context.Context, id string, update model.ProfileUpdate) error {
	m.mu.Lock()
	m.updates = append(m.updates, update)
	m.mu.Unlock()
	if m.updateFn != nil {
		return m.updateFn(ctx, id, update)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[id]; ok && update.Name != nil {
		p.Name = *update.Name
	}
	return nil
}

func (m *mockProfileRepo) put(p *model.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ID] = p
}

func (m *mockProfileRepo) findCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

func (m *mockProfileRepo) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

// mockCredentials はブラウザの記憶領域を模したCredentialStore。
type mockCredentials struct {
	mu     sync.Mutex
	values map[string]string
}

func newMockCredentials() *mockCredentials {
	return &mockCredentials{values: make(map[string]string)}
}

func (m *mockCredentials) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockCredentials) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockCredentials) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *mockCredentials) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes []string
	stale    int
}

func (m *mockRecorder) RecordReconcile(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockRecorder) RecordStaleDiscard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale++
}

func (m *mockRecorder) staleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

// --- compile-time interface checks ---
var _ AuthBackend = (*mockBackend)(nil)
var _ repository.ProfileRepository = (*mockProfileRepo)(nil)
var _ CredentialStore = (*mockCredentials)(nil)
var _ Recorder = (*mockRecorder)(nil)

// --- ヘルパー ---

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestSession(userID, email string, metadata map[string]any) *supabase.Session {
	return &supabase.Session{
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		ExpiresAt:    fixedNow.Add(time.Hour).Unix(),
		User:         &supabase.User{ID: userID, Email: email, UserMetadata: metadata},
	}
}

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testDeps struct {
	backend     *mockBackend
	profiles    *mockProfileRepo
	credentials *mockCredentials
	recorder    *mockRecorder
}

func newTestDeps() *testDeps {
	return &testDeps{
		backend:     &mockBackend{},
		profiles:    newMockProfileRepo(),
		credentials: newMockCredentials(),
		recorder:    &mockRecorder{},
	}
}

// newTestReconciler はタイムアウトを短縮したReconcilerを生成する。Startは呼び出さない。
func newTestReconciler(t *testing.T, d *testDeps) *Reconciler {
	t.Helper()
	r := NewReconciler(Deps{
		Backend:     d.backend,
		Profiles:    d.profiles,
		Credentials: d.credentials,
		Recorder:    d.recorder,
	}, Config{
		ProfileLoadTimeout:   50 * time.Millisecond,
		ProfileCreateTimeout: 50 * time.Millisecond,
	}, newTestLogger(io.Discard))
	r.now = func() time.Time { return fixedNow }
	// Closeでリスナー内の解決が打ち切られてから完了を待つ
	t.Cleanup(d.backend.waitListeners)
	t.Cleanup(r.Close)
	return r
}

// neverResolves はテスト終了までブロックするチャネルを返す。
func neverResolves(t *testing.T) <-chan struct{} {
	t.Helper()
	ch := make(chan struct{})
	t.Cleanup(func() { close(ch) })
	return ch
}

func strPtr(s string) *string { return &s }
