package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vocalearn/internal/middleware"
)

// HealthChecker はヘルスチェックで疎通を確認する依存先。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder

	// メトリクス公開。nilの場合は /metrics を登録しない。
	MetricsHandler http.Handler

	// 取り込み
	IngestService  IngestServiceInterface
	MaxUploadBytes int64

	// 保存項目
	ItemService ItemServiceInterface
	QuotaReader QuotaReaderInterface

	// 復習・学習セッション
	ReviewService ReviewServiceInterface

	// コレクション
	CollectionService CollectionServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS
//	  取り込み: OptionalSession → RateLimit(Ingest) → CSRF
//	  その他:   Session → RateLimit(General) → CSRF
//
// /health と /metrics はセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	ingestHandler := NewIngestHandler(deps.IngestService, deps.MaxUploadBytes)
	itemHandler := NewItemHandler(deps.ItemService, deps.QuotaReader)
	reviewHandler := NewReviewHandler(deps.ReviewService)
	collectionHandler := NewCollectionHandler(deps.CollectionService)
	userHandler := NewUserHandler(deps.UserService, deps.QuotaReader)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 匿名でも利用できる取り込みルート ---
	// 認証済みの場合のみ結果を保存する。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.IngestMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Post("/api/translate", ingestHandler.Translate)
		r.Post("/api/speech-to-text", ingestHandler.SpeechToText)
		r.Post("/api/pronunciation-assessment", ingestHandler.PronunciationAssessment)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// 保存項目
		r.Route("/api/items", func(r chi.Router) {
			r.Get("/", itemHandler.SearchItems)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", itemHandler.GetItem)
				r.Delete("/", itemHandler.DeleteItem)
				r.Get("/audio", itemHandler.GetAudio)
				r.Get("/subtitles", itemHandler.GetSubtitles)

				r.Post("/reviews", reviewHandler.RecordReview)
				r.Get("/reviews", reviewHandler.ListReviews)
				r.Put("/schedule", reviewHandler.ScheduleItem)
			})
		})

		r.Get("/api/reviews/due", reviewHandler.DueItems)

		// 学習セッション
		r.Route("/api/study-sessions", func(r chi.Router) {
			r.Get("/", reviewHandler.ListSessions)
			r.Post("/", reviewHandler.StartSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", reviewHandler.GetSession)
				r.Delete("/", reviewHandler.DeleteSession)
				r.Post("/end", reviewHandler.EndSession)
			})
		})

		// コレクション
		r.Route("/api/collections", func(r chi.Router) {
			r.Get("/", collectionHandler.ListCollections)
			r.Post("/", collectionHandler.CreateCollection)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", collectionHandler.GetCollection)
				r.Patch("/", collectionHandler.UpdateCollection)
				r.Delete("/", collectionHandler.DeleteCollection)

				r.Get("/items", collectionHandler.ListCollectionItems)
				r.Post("/items", collectionHandler.AddCollectionItem)
				r.Delete("/items/{itemId}", collectionHandler.RemoveCollectionItem)
			})
		})

		r.Get("/api/quota", userHandler.GetQuota)

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
