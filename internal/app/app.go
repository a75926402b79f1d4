package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/config"
	"github.com/hitoshi/learnhub/internal/course"
	"github.com/hitoshi/learnhub/internal/database"
	"github.com/hitoshi/learnhub/internal/employee"
	"github.com/hitoshi/learnhub/internal/enrollment"
	"github.com/hitoshi/learnhub/internal/handler"
	"github.com/hitoshi/learnhub/internal/logger"
	"github.com/hitoshi/learnhub/internal/metrics"
	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/repository"
	"github.com/hitoshi/learnhub/internal/security"
	"github.com/hitoshi/learnhub/internal/worker/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

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

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8000"
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
		slog.String("env", cfg.Env),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandReconcile:
		return runReconcile(cfg)
	default:
		return runServe(cfg)
	}
}

// services はリクエスト処理とバッチで共有するドメインサービス一式。
type services struct {
	auth       *auth.Service
	courses    *course.Service
	employees  *employee.Service
	enrollment *enrollment.Engine
}

func newServices(cfg *config.Config, store *repository.Store) *services {
	sanitizer := security.NewSanitizer()
	passwords := auth.NewPasswordHasher(0)
	tokens := auth.NewTokenService(cfg.JWTSecret)

	engine := enrollment.NewEngine(store.Employees, store.Courses, store.Enrollments, enrollment.Config{
		DueDays: cfg.MandatoryDueDays,
	})
	employeeService := employee.NewService(store.Employees, store.Enrollments, store.Courses, engine, passwords, sanitizer)

	return &services{
		auth: auth.NewService(store.Employees, employeeService, tokens, passwords, auth.ServiceConfig{
			TokenTTL:      cfg.TokenTTL,
			AdminEmail:    cfg.AdminEmail,
			AdminPassword: cfg.AdminPassword,
		}),
		courses:    course.NewService(store.Courses, sanitizer),
		employees:  employeeService,
		enrollment: engine,
	}
}

// openStore はDATABASE_URLのスキームに応じたデータストアへ接続する。
// PostgreSQLでは未適用のマイグレーションを、MongoDBではインデックス作成を接続時に行う。
func openStore(ctx context.Context, cfg *config.Config) (*repository.Store, error) {
	backend, err := database.DetectBackend(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	rc := database.DefaultRetryConfig(cfg.DBConnectRetries, cfg.DBConnectTimeout)

	switch backend {
	case database.BackendPostgres:
		db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL, rc)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return repository.NewPostgresStore(db), nil

	case database.BackendMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.DatabaseURL, cfg.DatabaseName, rc)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return repository.NewMongoStore(client, db), nil

	default:
		slog.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryBackedStore(), nil
	}
}

func closeStore(store *repository.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		slog.Error("failed to close store", slog.String("error", err.Error()))
	}
}

// runServe はAPIサーバーモードで起動する。
// データストアへ接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. データストア接続
	store, err := openStore(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closeStore(store)

	slog.Info("database connection established")

	// 2. ドメインサービスの初期化
	svc := newServices(cfg, store)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. ルーターの構築
	loginLimiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitLogin))
	defer loginLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		Metrics:        collector,
		Gatherer:       registry,
		AllowedOrigins: cfg.AllowedOrigins,
		Production:     cfg.IsProduction(),
		TrustProxy:     cfg.TrustProxy,
		RateLimiter:    loginLimiter,

		AuthService: svc.auth,
		Cookies:     handler.NewCookieConfig(cfg.IsProduction(), cfg.TokenTTL),

		CourseService:     svc.courses,
		EmployeeService:   svc.employees,
		EnrollmentService: svc.enrollment,

		Health: store.Health,
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQLでは未適用のマイグレーションを順番に適用し、MongoDBではインデックスを作成する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	backend, err := database.DetectBackend(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	switch backend {
	case database.BackendPostgres:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case database.BackendMongo:
		ctx := context.Background()
		rc := database.DefaultRetryConfig(cfg.DBConnectRetries, cfg.DBConnectTimeout)
		client, db, err := database.ConnectMongo(ctx, cfg.DatabaseURL, cfg.DatabaseName, rc)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	default:
		slog.Info("in-memory store has no schema; nothing to migrate")
		return nil
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runReconcile は全従業員を未登録の必須コースへ登録する。
// SIGINTまたはSIGTERMを受信すると処理中の従業員で打ち切る。
func runReconcile(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closeStore(store)

	svc := newServices(cfg, store)
	job := reconcile.NewJob(store.Employees, svc.enrollment, slog.Default())

	summary, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("reconcile failed for %d employees", summary.Failed)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
