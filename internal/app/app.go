package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/parkspot/internal/auth"
	"github.com/hitoshi/parkspot/internal/config"
	"github.com/hitoshi/parkspot/internal/dashboard"
	"github.com/hitoshi/parkspot/internal/database"
	"github.com/hitoshi/parkspot/internal/handler"
	"github.com/hitoshi/parkspot/internal/logger"
	"github.com/hitoshi/parkspot/internal/metrics"
	"github.com/hitoshi/parkspot/internal/middleware"
	"github.com/hitoshi/parkspot/internal/repository"
	"github.com/hitoshi/parkspot/internal/security"
	"github.com/hitoshi/parkspot/internal/spot"
	"github.com/hitoshi/parkspot/internal/supabase"
	"github.com/hitoshi/parkspot/internal/worker/cleanup"
)

// dotEnvFile は起動時に読み込む環境変数ファイル。存在しない場合は無視する。
const dotEnvFile = ".env"

// Init はアプリケーションの初期化を行う。
// .envを読み込んだうえで環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既存の環境変数は上書きしない）
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", dotEnvFile, err)
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, known := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if !known {
		slog.Warn("unknown command, starting API server",
			slog.String("command", args[0]),
		)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// ReconcilerDeps はブラウザセッションごとのReconcilerの生成に必要な依存。
type ReconcilerDeps struct {
	Client   *supabase.Client
	Sessions repository.SessionDataRepository
	Recorder auth.Recorder
	Config   auth.Config
	Logger   *slog.Logger
}

// NewReconcilerFactory はブラウザセッションIDからReconcilerを組み立てるFactoryを返す。
// トークンと「ログイン情報を記憶する」値はsessionsテーブルのdataに保存する。
func NewReconcilerFactory(deps ReconcilerDeps) auth.Factory {
	profiles := repository.NewRestProfileRepo(deps.Client)
	return func(sessionID string) *auth.Reconciler {
		store := repository.NewSessionDataStore(deps.Sessions, sessionID)
		sessionLogger := deps.Logger.With(slog.String("session_id", auth.ShortSessionID(sessionID)))
		backend := supabase.NewAuthSession(deps.Client, store, sessionLogger)
		return auth.NewReconciler(auth.Deps{
			Backend:     backend,
			Profiles:    profiles,
			Credentials: store,
			Recorder:    deps.Recorder,
		}, deps.Config, sessionLogger)
	}
}

// rateLimiterConfig は設定値（req/min）からレート制限の設定を組み立てる。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitAuth > 0 {
		rl.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60)
		rl.AuthBurst = cfg.RateLimitAuth
	}
	return rl
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクスとSupabaseクライアント
	reg, collector := newRegistry()
	client := supabase.NewClient(supabase.Config{
		URL:     cfg.SupabaseURL,
		AnonKey: cfg.SupabaseAnonKey,
		Timeout: cfg.SupabaseTimeout,
	})
	client.SetObserver(collector)

	// 3. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	spotRepo := repository.NewRestSpotRepo(client)
	bookingRepo := repository.NewRestBookingRepo(client)
	reviewRepo := repository.NewRestReviewRepo(client)
	paymentRepo := repository.NewRestPaymentMethodRepo(client)

	// 4. セキュリティサービスの初期化
	sanitizer := security.NewContentSanitizer()
	imageFetcher := security.NewImageFetcher(security.NewSSRFGuard(), cfg.QRImportTimeout, cfg.QRImportMaxSize)

	// 5. 認証（ブラウザセッションとReconciler）
	authService := auth.NewService(sessionRepo, auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})
	manager := auth.NewManager(
		NewReconcilerFactory(ReconcilerDeps{
			Client:   client,
			Sessions: sessionRepo,
			Recorder: collector,
			Config: auth.Config{
				ProfileLoadTimeout:   cfg.ProfileLoadTimeout,
				ProfileCreateTimeout: cfg.ProfileCreateTimeout,
			},
			Logger: slog.Default(),
		}),
		auth.ManagerConfig{IdleTTL: cfg.ReconcilerIdleTTL},
		slog.Default(),
		collector,
	)
	defer manager.Stop()

	// 6. ドメインサービスの初期化
	spotService := spot.NewService(spotRepo, reviewRepo, sanitizer)
	dashboardService := dashboard.NewService(dashboard.Deps{
		Spots:          spotRepo,
		Bookings:       bookingRepo,
		Reviews:        reviewRepo,
		PaymentMethods: paymentRepo,
		Storage:        client,
		Fetcher:        imageFetcher,
		Sanitizer:      sanitizer,
		Recorder:       collector,
	}, dashboard.Config{
		StorageBucket:    cfg.StorageBucket,
		MaxImageSize:     cfg.QRImportMaxSize,
		EntryEarlyWindow: cfg.EntryEarlyWindow,
		Location:         cfg.Location(),
	})

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		StatusRecorder: collector,
		SessionStore:   authService,
		SnapshotSource: manager,
		SessionCookie: middleware.SessionCookieConfig{
			MaxAge:       cfg.SessionMaxAge,
			Secure:       cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AuthSessions:      handler.NewAuthSessionAdapter(manager),
		SessionDestroyer:  authService,
		SpotService:       spotService,
		DashboardService:  dashboardService,
		MaxImageSize:      cfg.QRImportMaxSize,
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	_, collector := newRegistry()
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
