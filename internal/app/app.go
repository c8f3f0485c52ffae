package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/myftc/internal/auth"
	"github.com/hitoshi/myftc/internal/config"
	"github.com/hitoshi/myftc/internal/database"
	"github.com/hitoshi/myftc/internal/handler"
	"github.com/hitoshi/myftc/internal/logger"
	"github.com/hitoshi/myftc/internal/metrics"
	"github.com/hitoshi/myftc/internal/middleware"
	"github.com/hitoshi/myftc/internal/paywall"
	"github.com/hitoshi/myftc/internal/reader"
	"github.com/hitoshi/myftc/internal/repository"
	"github.com/hitoshi/myftc/internal/session"
	"github.com/hitoshi/myftc/internal/view"
	"github.com/hitoshi/myftc/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("env", cfg.AppEnv),
		slog.String("session_backend", cfg.SessionBackend),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	skip, err := cmd.checkBackend(cfg.SessionBackend)
	if err != nil {
		return err
	}
	if skip {
		slog.Info("nothing to do for session backend",
			slog.String("command", string(cmd)),
			slog.String("session_backend", cfg.SessionBackend),
		)
		return nil
	}

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// sessionBackend は設定で選択されたセッションストアとその後始末をまとめる。
type sessionBackend struct {
	repo    repository.SessionRepository
	checker handler.HealthChecker
	close   func() error
	// embedded はプロセス内にしか存在しないストアであることを示す。
	// workerプロセスからは削除できないため、serveが自らクリーンアップする。
	embedded bool
}

// openSessionBackend はSESSION_BACKENDに応じたセッションストアを開く。
func openSessionBackend(cfg *config.Config) (*sessionBackend, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return &sessionBackend{
			repo:    repository.NewPostgresSessionRepo(db),
			checker: db,
			close:   db.Close,
		}, nil

	case config.SessionBackendBadger:
		db, err := repository.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		slog.Info("badger session store opened", slog.String("path", cfg.BadgerPath))
		repo := repository.NewBadgerSessionRepo(db)
		return &sessionBackend{repo: repo, checker: repo, close: db.Close, embedded: true}, nil

	case config.SessionBackendMemory:
		slog.Warn("using in-memory session store; sessions are lost on restart")
		return &sessionBackend{
			repo:     repository.NewMemorySessionRepo(),
			close:    func() error { return nil },
			embedded: true,
		}, nil

	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

// server はHTTPハンドラーと付随する資源をまとめる。
type server struct {
	handler   http.Handler
	collector *metrics.Collector
	stop      func()
}

// buildServer は全依存関係をワイヤリングし、HTTPハンドラーを構築する。
func buildServer(cfg *config.Config, backend *sessionBackend, log *slog.Logger) (*server, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 2. 表示
	renderer, err := view.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	messages, err := view.LoadMessages()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	presenter := handler.NewPresenter(renderer, messages)

	// 3. 上流APIクライアント
	client := reader.NewClient(reader.Config{
		BaseURL: cfg.APIBaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.UpstreamTimeout,
	}, collector, log)
	paywallCache := paywall.NewCache(client, cfg.PaywallTTL)

	// 4. セッションとWechatハンドシェイク
	sessions := session.NewManager(backend.repo, session.Options{
		MaxAge:       time.Duration(cfg.SessionMaxAge) * time.Second,
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
	})
	tracker := auth.NewTracker(auth.WechatConfig{
		AppID:       cfg.WechatAppID,
		RedirectURL: cfg.WechatRedirectURL,
	})

	// 5. レート制限（設定はreq/min単位なのでreq/secに変換する）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
	rateLimiterCfg.AuthBurst = cfg.RateLimitAuth
	rateLimiterCfg.ErrorWriter = presenter.WriteError
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		Presenter:   presenter,
		Logger:      log,
		Sessions:    sessions,
		RateLimiter: rateLimiter,
		TrustProxy:  cfg.TrustProxy,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		HealthChecker:  backend.checker,
		MetricsHandler: metrics.Handler(registry),
		Collector:      collector,

		AuthService: client,
		Handshaker:  tracker,
		AuthConfig: handler.AuthHandlerConfig{
			ClientVersion: cfg.ClientVersion,
			// 開発環境ではコールバックの再読み込みを許可する
			KeepHandshake: !cfg.IsProduction(),
		},

		AccountService: client,
		LinkService:    client,

		Paywall:        paywallCache,
		PaymentService: client,

		OAuthService: client,
	}

	return &server{
		handler:   handler.NewRouter(deps),
		collector: collector,
		stop:      rateLimiter.Stop,
	}, nil
}

// runServe はWebサーバーモードで起動する。
// セッションストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	backend, err := openSessionBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.close()

	srv, err := buildServer(cfg, backend, slog.Default())
	if err != nil {
		return err
	}
	defer srv.stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if backend.embedded {
		job := cleanup.NewCleanupJob(backend.repo, srv.collector, slog.Default())
		go job.Start(ctx, cleanup.DefaultInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down web server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// PostgreSQLの期限切れセッションを定期的に削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	backend, err := openSessionBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.close()

	job := cleanup.NewCleanupJob(backend.repo, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// ブロッキング
	job.Start(ctx, cleanup.DefaultInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はsessionsテーブルの未適用マイグレーションを順番に適用する。
// PostgreSQL以外のセッションストアではRunの時点でスキップされる。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
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
