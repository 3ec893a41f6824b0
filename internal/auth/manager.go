package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Factory はブラウザセッションIDに対応するReconcilerを生成する。
type Factory func(sessionID string) *Reconciler

// ManagerConfig はManagerの設定。
type ManagerConfig struct {
	IdleTTL         time.Duration // 最後の利用からこの時間が経過したReconcilerを破棄する
	CleanupInterval time.Duration // 破棄対象を確認する間隔
}

// ActiveRecorder は保持中のReconciler数を記録するインターフェース。
type ActiveRecorder interface {
	SetActiveReconcilers(n int)
}

// managedEntry はManagerが保持する1セッション分のReconciler。
type managedEntry struct {
	once     sync.Once
	r        *Reconciler
	lastSeen time.Time
}

// Manager はブラウザセッションごとにReconcilerを1つ保持する。
// Reconcilerは初回利用時に生成・初期化され、一定時間利用されなければ破棄される。
type Manager struct {
	factory  Factory
	config   ManagerConfig
	logger   *slog.Logger
	recorder ActiveRecorder
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*managedEntry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager はManagerを生成し、破棄ループを開始する。
// 使用後はStopを呼び出すこと。
func NewManager(factory Factory, config ManagerConfig, logger *slog.Logger, recorder ActiveRecorder) *Manager {
	if config.IdleTTL <= 0 {
		config.IdleTTL = 30 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		factory:  factory,
		config:   config,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
		entries:  make(map[string]*managedEntry),
		stopCh:   make(chan struct{}),
	}
	m.wg.Add(1)
	go m.cleanupLoop()
	return m
}

// Get はブラウザセッションIDに対応するReconcilerを返す。
// 初回は生成してStartし、初期解決が終わるまで待つ。同じIDの同時呼び出しは同じReconcilerを受け取る。
func (m *Manager) Get(ctx context.Context, sessionID string) *Reconciler {
	for {
		e := m.entry(sessionID)
		e.once.Do(func() {
			e.r = m.factory(sessionID)
			e.r.Start(context.WithoutCancel(ctx))
		})
		if e.r != nil {
			return e.r
		}
		// 初期化前に破棄されたエントリのため取り直す
	}
}

// Resolve はブラウザセッションの認証状態を返す。解決中の場合は完了まで待つ。
func (m *Manager) Resolve(ctx context.Context, sessionID string) (Snapshot, error) {
	return m.Get(ctx, sessionID).WaitReady(ctx)
}

// Release はブラウザセッションIDに対応するReconcilerを破棄する。
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if ok {
		delete(m.entries, sessionID)
	}
	n := len(m.entries)
	m.mu.Unlock()

	if ok {
		closeEntry(e)
	}
	m.recordActive(n)
}

// Count は保持中のReconciler数を返す。
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stop は破棄ループを停止し、保持中の全Reconcilerを破棄する。
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()

		m.mu.Lock()
		entries := m.entries
		m.entries = make(map[string]*managedEntry)
		m.mu.Unlock()

		for _, e := range entries {
			closeEntry(e)
		}
		m.recordActive(0)
	})
}

// entry は最終利用時刻を更新してエントリを返す。存在しない場合は作成する。
func (m *Manager) entry(sessionID string) *managedEntry {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if !ok {
		e = &managedEntry{}
		m.entries[sessionID] = e
	}
	e.lastSeen = m.now()
	n := len(m.entries)
	m.mu.Unlock()

	if !ok {
		m.recordActive(n)
	}
	return e
}

// cleanupLoop は一定間隔でアイドル状態のReconcilerを破棄する。
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.stopCh:
			return
		}
	}
}

// evictIdle はIdleTTLを超えて利用されていないReconcilerを破棄する。
func (m *Manager) evictIdle() {
	cutoff := m.now().Add(-m.config.IdleTTL)

	m.mu.Lock()
	var evicted []*managedEntry
	for id, e := range m.entries {
		if e.lastSeen.Before(cutoff) {
			evicted = append(evicted, e)
			delete(m.entries, id)
		}
	}
	n := len(m.entries)
	m.mu.Unlock()

	for _, e := range evicted {
		closeEntry(e)
	}
	if len(evicted) > 0 {
		m.logger.Info("idle reconcilers evicted", slog.Int("count", len(evicted)), slog.Int("remaining", n))
		m.recordActive(n)
	}
}

func (m *Manager) recordActive(n int) {
	if m.recorder != nil {
		m.recorder.SetActiveReconcilers(n)
	}
}

// closeEntry はエントリのReconcilerを閉じる。初期化中であれば完了を待つ。
func closeEntry(e *managedEntry) {
	e.once.Do(func() {})
	if e.r != nil {
		e.r.Close()
	}
}
