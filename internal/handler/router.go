package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/servicedesk/internal/middleware"
	"github.com/hitoshi/servicedesk/internal/model"
)

// MetricsRecorder はルーターが利用するメトリクスの記録先。
type MetricsRecorder interface {
	middleware.StatusRecorder
	middleware.DecisionRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	Gate              middleware.GateResolver
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Metrics           MetricsRecorder
	Logger            *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 業務
	CustomerService     CustomerServiceInterface
	ServiceOrderService ServiceOrderServiceInterface
	BadgeService        BadgeServiceInterface
	SettingsService     SettingsServiceInterface
	UserService         UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → CORS → RealIP → Session
//	/api 配下: RateLimit(General) → CSRF → RequireRoles（グループごと）
//
// セッションミドルウェアは拒否しないため、/auth/* でも認証状態を参照できる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(chimw.RealIP)
	r.Use(middleware.NewSessionMiddleware(deps.Authenticator, deps.Gate))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	gateHandler := NewGateHandler(deps.Metrics)
	customerHandler := NewCustomerHandler(deps.CustomerService)
	orderHandler := NewServiceOrderHandler(deps.ServiceOrderService)
	badgeHandler := NewBadgeHandler(deps.BadgeService)
	settingsHandler := NewSettingsHandler(deps.SettingsService)
	userHandler := NewUserHandler(deps.UserService)

	requireRoles := func(roles ...model.Role) func(http.Handler) http.Handler {
		return middleware.RequireRoles(deps.Metrics, roles...)
	}

	// --- 運用ルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証ルート ---
	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.SignInMiddleware()).Post("/login", authHandler.Login)
		r.With(middleware.NewCSRFMiddleware(deps.CSRFConfig)).Post("/logout", authHandler.Logout)
		r.Post("/refresh", authHandler.Refresh)
		r.Get("/me", authHandler.Me)
	})

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/gate", gateHandler.Check)

		// 受付業務
		r.Group(func(r chi.Router) {
			r.Use(requireRoles(model.RoleAdmin, model.RoleReceptionist))

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", customerHandler.List)
				r.Post("/", customerHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", customerHandler.Get)
					r.Put("/", customerHandler.Update)
					r.Get("/service-orders", customerHandler.History)
				})
			})
			r.Post("/service-orders", orderHandler.Create)
		})

		// 技術者業務
		r.Group(func(r chi.Router) {
			r.Use(requireRoles(model.RoleTechnician, model.RoleAdmin))

			r.Get("/technician/orders", orderHandler.TechnicianQueue)
			r.Patch("/service-orders/{id}/status", orderHandler.UpdateStatus)
		})

		// ロールを問わずログイン済み
		r.Group(func(r chi.Router) {
			r.Use(requireRoles())

			r.Get("/badges/new-orders", badgeHandler.NewOrders)
			r.Get("/badges/stream", badgeHandler.Stream)
			r.Get("/settings/navigation", settingsHandler.GetNavigation)
			r.Put("/settings/navigation", settingsHandler.PutNavigation)
			r.Post("/settings/navigation/{group}/toggle", settingsHandler.ToggleNavigation)
		})

		// 管理者
		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(requireRoles(model.RoleAdmin))
				r.Get("/users", userHandler.List)
				r.Post("/users", userHandler.Create)
			})
			// 権限判定はサービス側で行う
			r.Post("/delete-user", userHandler.Delete)
		})
	})

	return r
}
