package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/idmirror/internal/auth"
	"github.com/hitoshi/idmirror/internal/metrics"
	"github.com/hitoshi/idmirror/internal/middleware"
	"github.com/hitoshi/idmirror/internal/repository"
)

// HealthChecker はヘルスチェックに必要なDB疎通確認のインターフェース。
// *sql.DBが実装している。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker      HealthChecker
	CredentialVerifier auth.CredentialVerifier
	Provisioner        middleware.MirrorEnsurer
	CORSAllowedOrigin  string
	RateLimiter        *middleware.RateLimiter
	Logger             *slog.Logger

	// ストア
	MirrorRepo repository.MirrorRepository

	// Webhook
	EventVerifier  EventVerifier
	EventProcessor EventApplier

	// メトリクス
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer

	// 管理者向け一覧の1ページあたり上限
	AdminPageLimit int
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → (認証グループ) Identity → RateLimit
//
// Webhookルートと/health、/metricsは認証チェーンの外に配置する。
// Webhookの真正性は署名で担保されるため、ベアラー認証は適用しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	webhookHandler := NewWebhookHandler(deps.EventVerifier, deps.EventProcessor, deps.Metrics)
	mirrorHandler := NewMirrorHandler(deps.MirrorRepo, deps.AdminPageLimit)

	// --- 認証不要のルート ---

	// Webhook受信（署名検証がハンドラー内で行われる）
	r.Post("/webhooks/identity", webhookHandler.HandleEvent)

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheusスクレイプ
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.CredentialVerifier, deps.MirrorRepo, deps.Provisioner))
		r.Use(deps.RateLimiter.Middleware())

		r.Get("/api/me", mirrorHandler.Me)

		r.Route("/api/admin", func(r chi.Router) {
			r.Get("/mirrors", mirrorHandler.ListMirrors)
		})
	})

	return r
}
