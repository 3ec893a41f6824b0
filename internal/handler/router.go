package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/parkspot/internal/middleware"
	"github.com/hitoshi/parkspot/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	HealthChecker     HealthChecker
	MetricsHandler    http.Handler
	StatusRecorder    middleware.StatusRecorder
	SessionStore      middleware.SessionStore
	SnapshotSource    middleware.SnapshotSource
	SessionCookie     middleware.SessionCookieConfig
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthSessions     AuthSessionProvider
	SessionDestroyer BrowserSessionDestroyer

	// 駐車場
	SpotService SpotServiceInterface

	// ダッシュボード
	DashboardService DashboardServiceInterface
	MaxImageSize     int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Metrics
//	  → Session → Identity → RateLimit → CSRF → RequireRole
//
// /health と /metrics はセッションを発行しないようチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}

	authHandler := NewAuthHandler(deps.AuthSessions, deps.SessionDestroyer, deps.SessionCookie)
	spotHandler := NewSpotHandler(deps.SpotService)
	dashboardHandler := NewDashboardHandler(deps.DashboardService, deps.MaxImageSize)

	// --- セッション不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// --- ブラウザセッションが必要なルート ---
	// ミドルウェアスタック: Session → Identity → RateLimit → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionStore, deps.SessionCookie))
		r.Use(middleware.NewIdentityMiddleware(deps.SnapshotSource))

		// 認証（認証専用の厳しいレート制限）
		r.Route("/auth", func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

			r.Post("/signin", authHandler.SignIn)
			r.Post("/signup", authHandler.SignUp)
			r.Post("/signout", authHandler.SignOut)
			r.Delete("/session", authHandler.ForgetBrowser)
			r.Post("/resend", authHandler.ResendConfirmation)
			r.Get("/me", authHandler.Me)
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

			// プロフィール
			r.With(middleware.RequireAuth()).Patch("/profile", authHandler.UpdateProfile)

			// 駐車場（未ログインでも閲覧可能）
			r.Get("/spots", spotHandler.ListSpots)
			r.Get("/spots/{id}", spotHandler.GetSpot)

			// オーナー/管理者ダッシュボード
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(model.RoleOwner, model.RoleAdmin))

				r.Get("/dashboard", dashboardHandler.Overview)

				r.Get("/spots", dashboardHandler.Spots)
				r.Post("/spots/{id}/toggle", dashboardHandler.ToggleSpot)

				r.Get("/bookings", dashboardHandler.Bookings)
				r.Get("/reviews", dashboardHandler.Reviews)

				r.Get("/reports", dashboardHandler.Report)
				r.Get("/reports.pdf", dashboardHandler.ReportPDF)

				r.Get("/payment-methods", dashboardHandler.PaymentMethods)
				r.Put("/payment-methods", dashboardHandler.SavePaymentMethod)
				r.Post("/payment-methods/qr", dashboardHandler.UploadQR)

				r.Post("/entry/validate", dashboardHandler.ValidateEntry)
			})
		})
	})

	return r
}
