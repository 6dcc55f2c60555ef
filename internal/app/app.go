package app

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/servicedesk/internal/auth"
	"github.com/hitoshi/servicedesk/internal/authgate"
	"github.com/hitoshi/servicedesk/internal/config"
	"github.com/hitoshi/servicedesk/internal/customer"
	"github.com/hitoshi/servicedesk/internal/database"
	"github.com/hitoshi/servicedesk/internal/handler"
	"github.com/hitoshi/servicedesk/internal/logger"
	"github.com/hitoshi/servicedesk/internal/metrics"
	"github.com/hitoshi/servicedesk/internal/middleware"
	"github.com/hitoshi/servicedesk/internal/realtime"
	"github.com/hitoshi/servicedesk/internal/repository"
	"github.com/hitoshi/servicedesk/internal/security"
	"github.com/hitoshi/servicedesk/internal/serviceorder"
	"github.com/hitoshi/servicedesk/internal/settings"
	"github.com/hitoshi/servicedesk/internal/user"
	"github.com/hitoshi/servicedesk/internal/worker/cleanup"
)

// cleanupInterval はセッションクリーンアップジョブの実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCreateAdmin:
		return runCreateAdmin(cfg, args[1:])
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

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	customerRepo := repository.NewPostgresCustomerRepo(db)
	orderRepo := repository.NewPostgresServiceOrderRepo(db)
	settingsRepo := repository.NewPostgresSettingsRepo(db)

	// 4. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	authService := auth.NewService(
		userRepo, sessionRepo, hasher,
		auth.NewTokenIssuer(cfg.SessionSecret, cfg.AccessTokenTTL),
		collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	gate := authgate.NewRegistry(authService, collector, cfg.ProfileCacheTTL)
	gate.Start()
	defer gate.Stop()

	customerService := customer.NewService(customerRepo, orderRepo, settingsRepo, sanitizer, collector)
	orderService := serviceorder.NewService(orderRepo, customerRepo, userRepo, sanitizer)
	settingsService := settings.NewService(settingsRepo)
	userService := user.NewService(userRepo, sessionRepo, hasher)

	// 5. リアルタイム通知
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	badge := realtime.NewBadge(orderService, collector, cfg.RealtimeCoalesce)
	defer badge.Stop()
	if err := badge.Refresh(ctx); err != nil {
		slog.Warn("initial new-order count failed", slog.String("error", err.Error()))
	}

	listener := realtime.NewListener(cfg.DatabaseURL, cfg.RealtimeChannel, cfg.RealtimeEvents, badge, collector)
	go func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("realtime listener stopped", slog.String("error", err.Error()))
		}
	}()

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSignIn))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Authenticator:     authService,
		Gate:              gate,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Metrics:     collector,
		Logger:      slog.Default(),

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: handler.NewAuthServiceAdapter(authService, gate),
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		CustomerService:     customerService,
		ServiceOrderService: orderService,
		BadgeService:        handler.NewBadgeAdapter(badge),
		SettingsService:     settingsService,
		UserService:         userService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// SSEの長時間接続はハンドラー側で書き込み期限を解除する。
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		// シャットダウン時にSSEなどの長時間リクエストも終了させる
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを起動直後と日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	sessionRepo := repository.NewPostgresSessionRepo(db)
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default(), cfg.SessionRetentionDays)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cleanupInterval),
		slog.Int("session_retention_days", cfg.SessionRetentionDays),
	)

	cleanupJob.RunDaily(ctx, cleanupInterval)

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

// adminOptions はcreateadminサブコマンドの引数。
type adminOptions struct {
	Email    string
	FullName string
	Password string
}

// parseAdminOptions はcreateadminの引数を解析する。
// パスワードはプロセス一覧に残らないよう環境変数ADMIN_PASSWORDから読む。
func parseAdminOptions(args []string) (adminOptions, error) {
	fs := flag.NewFlagSet("createadmin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts adminOptions
	fs.StringVar(&opts.Email, "email", os.Getenv("ADMIN_EMAIL"), "管理者のメールアドレス")
	fs.StringVar(&opts.FullName, "name", "Administrator", "管理者の氏名")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("invalid createadmin arguments: %w", err)
	}
	opts.Password = os.Getenv("ADMIN_PASSWORD")

	if opts.Email == "" {
		return opts, errors.New("createadmin requires -email or ADMIN_EMAIL")
	}
	if opts.Password == "" {
		return opts, errors.New("createadmin requires ADMIN_PASSWORD")
	}
	return opts, nil
}

// runCreateAdmin は最初の管理者アカウントを作成する。
// 同じメールアドレスのユーザーが既に存在する場合は何もしない。
func runCreateAdmin(cfg *config.Config, args []string) error {
	opts, err := parseAdminOptions(args)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	userService := user.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		auth.NewPasswordHasher(cfg.BcryptCost),
	)

	u, created, err := userService.BootstrapAdmin(context.Background(), opts.Email, opts.FullName, opts.Password)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	if !created {
		slog.Info("admin account already exists", slog.String("user_id", u.ID))
		return nil
	}

	slog.Info("admin account created", slog.String("user_id", u.ID))
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
