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

	"github.com/hitoshi/vocalearn/internal/audio"
	"github.com/hitoshi/vocalearn/internal/blob"
	"github.com/hitoshi/vocalearn/internal/collection"
	"github.com/hitoshi/vocalearn/internal/config"
	"github.com/hitoshi/vocalearn/internal/database"
	"github.com/hitoshi/vocalearn/internal/handler"
	"github.com/hitoshi/vocalearn/internal/ingest"
	"github.com/hitoshi/vocalearn/internal/item"
	"github.com/hitoshi/vocalearn/internal/logger"
	"github.com/hitoshi/vocalearn/internal/metrics"
	"github.com/hitoshi/vocalearn/internal/middleware"
	"github.com/hitoshi/vocalearn/internal/quota"
	"github.com/hitoshi/vocalearn/internal/repository"
	"github.com/hitoshi/vocalearn/internal/security"
	"github.com/hitoshi/vocalearn/internal/speech"
	"github.com/hitoshi/vocalearn/internal/srs"
	"github.com/hitoshi/vocalearn/internal/translate"
	"github.com/hitoshi/vocalearn/internal/user"
	"github.com/hitoshi/vocalearn/internal/worker/cleanup"
)

// 外部サービス呼び出しのレスポンスサイズ上限。
const maxUpstreamResponseSize = 4 << 20

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// LOG_LEVELが.envで与えられた場合に備えて再設定する
	logger.SetupDefault(w, cfg.LogLevel)

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
		slog.String("blob_backend", cfg.BlobBackend),
	)

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

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	tx := repository.NewPostgresTxRunner(db)
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)
	collectionRepo := repository.NewPostgresCollectionRepo(db)
	reviewRepo := repository.NewPostgresReviewRepo(db)
	studySessionRepo := repository.NewPostgresStudySessionRepo(db)
	quotaRepo := repository.NewPostgresQuotaRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. 外部サービスとストレージ
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	speechClient, translator, err := newUpstreamClients(cfg)
	if err != nil {
		return err
	}

	// 5. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()
	ledger := quota.NewLedger(quotaRepo, quota.Config{
		DefaultQuotaBytes: cfg.QuotaDefaultBytes,
		DefaultMaxFiles:   cfg.QuotaDefaultMaxFiles,
	})
	itemStore := item.NewStore(tx, itemRepo, collectionRepo, ledger, blobs)
	collectionService := collection.NewService(tx, collectionRepo, itemRepo, sanitizer)
	scheduler := srs.NewScheduler(tx, itemRepo, reviewRepo, studySessionRepo, srs.Config{
		CorrectThreshold: cfg.SRSCorrectThreshold,
		Metrics:          collector,
	})
	userService := user.NewService(tx, userRepo, sessionRepo, itemRepo, blobs)

	pipeline := ingest.NewPipeline(ingest.Config{
		RecognitionMaxWait:  cfg.RecognitionMaxWait,
		UploadFailurePolicy: cfg.UploadFailurePolicy,
		TempDir:             cfg.AudioTempDir,
	}, ingest.Deps{
		Normalizer: audio.NewNormalizer(audio.NormalizerConfig{FFmpegPath: cfg.FFmpegPath}),
		Recognizer: speechClient,
		Assessor:   speechClient,
		Translator: translator,
		Blobs:      blobs,
		Ledger:     ledger,
		Items:      itemStore,
		Sanitizer:  sanitizer,
		Metrics:    collector,
	})

	// 6. ルーターの構築
	// configのレート制限はreq/min単位
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitIngest),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig:        middleware.CSRFConfig{CookieSecure: cfg.CookieSecure},
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		MetricsHandler:    metrics.Handler(registry),

		IngestService:  pipeline,
		MaxUploadBytes: cfg.AudioMaxUploadSize,

		ItemService: itemStore,
		QuotaReader: ledger,

		ReviewService:     scheduler,
		CollectionService: collectionService,
		UserService:       userService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// 認識の待ち時間を含むため書き込みタイムアウトは認識上限より長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RecognitionMaxWait + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newBlobStore はBLOB_BACKENDに応じた音声の保存先を返す。
func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "s3":
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
		}
		return store, nil
	case "local", "":
		store, err := blob.NewLocalStore(cfg.BlobLocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported blob backend: %q", cfg.BlobBackend)
	}
}

// newUpstreamClients はAzure Speech・Azure Translatorのクライアントを生成する。
// エンドポイントは起動時に検証し、通信にはSSRF防止付きのHTTPクライアントを使う。
func newUpstreamClients(cfg *config.Config) (*speech.AzureClient, *translate.Client, error) {
	guard := security.NewSSRFGuard()
	for _, endpoint := range []string{cfg.AzureSpeechEndpoint, cfg.AzureTranslatorEndpoint} {
		if err := guard.ValidateURL(endpoint); err != nil {
			return nil, nil, fmt.Errorf("invalid upstream endpoint %q: %w", endpoint, err)
		}
	}

	speechClient := speech.NewAzureClient(
		guard.NewSafeClient(cfg.RecognitionMaxWait, maxUpstreamResponseSize),
		speech.AzureConfig{
			Endpoint:        cfg.AzureSpeechEndpoint,
			SubscriptionKey: cfg.AzureSpeechKey,
		},
	)
	translator := translate.NewClient(
		guard.NewSafeClient(15*time.Second, maxUpstreamResponseSize),
		slog.Default(),
		translate.Config{
			Endpoint:        cfg.AzureTranslatorEndpoint,
			SubscriptionKey: cfg.AzureTranslatorKey,
			Region:          cfg.AzureTranslatorRegion,
		},
	)
	return speechClient, translator, nil
}

// runWorker はワーカーモードで起動する。
// 放置された学習セッションの終了と、音声作業ディレクトリの掃除を定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. ジョブの初期化
	studySessionRepo := repository.NewPostgresStudySessionRepo(db)

	staleJob := cleanup.NewStaleSessionJob(studySessionRepo, slog.Default(), nil)
	staleJob.After = cfg.StaleSessionAfter

	sweepJob := cleanup.NewTempSweepJob(cfg.AudioTempDir, slog.Default(), nil)
	sweepJob.MaxAge = cfg.TempMaxAge

	slog.Info("worker starting",
		slog.Duration("temp_sweep_interval", cfg.TempSweepInterval),
		slog.Duration("temp_max_age", cfg.TempMaxAge),
		slog.Duration("stale_session_after", cfg.StaleSessionAfter),
	)

	// 3. 放置セッションの終了は1時間ごと、一時ディレクトリの掃除は設定間隔で実行する
	done := make(chan struct{})
	go func() {
		defer close(done)
		cleanup.RunPeriodically(ctx, slog.Default(), time.Hour, staleJob)
	}()
	cleanup.RunPeriodically(ctx, slog.Default(), cfg.TempSweepInterval, sweepJob)
	<-done

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
