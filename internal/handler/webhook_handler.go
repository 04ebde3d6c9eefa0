// Package handler はHTTP APIハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/idmirror/internal/metrics"
	"github.com/hitoshi/idmirror/internal/model"
	"github.com/hitoshi/idmirror/internal/webhook"
)

// maxWebhookBodyBytes はWebhookボディの上限サイズ（1MiB）。
const maxWebhookBodyBytes = 1 << 20

// EventVerifier はWebhookハンドラーが必要とする検証インターフェース。
type EventVerifier interface {
	Verify(rawBody []byte, header http.Header) (*model.VerifiedEvent, error)
}

// EventApplier はWebhookハンドラーが必要とするイベント適用インターフェース。
type EventApplier interface {
	Apply(ctx context.Context, event *model.VerifiedEvent) (model.ApplyResult, error)
}

// WebhookHandler はIdPからのWebhookイベントを受け付けるHTTPハンドラー。
type WebhookHandler struct {
	verifier  EventVerifier
	processor EventApplier
	metrics   metrics.MetricsCollector // nil可
}

// NewWebhookHandler はWebhookHandlerを生成する。collectorはnilを許容する。
func NewWebhookHandler(verifier EventVerifier, processor EventApplier, collector metrics.MetricsCollector) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		processor: processor,
		metrics:   collector,
	}
}

// webhookResponse はWebhook処理結果のレスポンスボディ。
type webhookResponse struct {
	Result string `json:"result"`
}

// HandleEvent はWebhookイベントを検証して適用する。
// POST /webhooks/identity
//
// 検証失敗は終端的（401/400）であり、プロバイダーは再配送しない。
// ストレージ障害のみ500を返し、プロバイダーの再配送に委ねる。
// 古いイベント（stale）は成功として2xxを返す。
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	// 署名は生ボディに対して検証するため、パース前に全体を読む
	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge,
			model.NewVerificationFailedError("request body too large"))
		return
	}

	event, err := h.verifier.Verify(rawBody, r.Header)
	if err != nil {
		var verr *webhook.VerificationError
		if errors.As(err, &verr) {
			slog.Warn("webhook verification failed",
				slog.String("reason", verr.Reason),
			)
			if h.metrics != nil {
				h.metrics.RecordVerificationFailure(verr.Reason)
			}
			status := http.StatusUnauthorized
			if verr.Malformed {
				status = http.StatusBadRequest
			}
			writeAPIErrorResponse(w, status, model.NewVerificationFailedError(verr.Reason))
			return
		}
		slog.Error("webhook verification error", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	start := time.Now()
	result, err := h.processor.Apply(r.Context(), event)
	if err != nil {
		// ストレージ障害のみ5xx。プロバイダーが再配送する
		slog.Error("failed to apply webhook event",
			slog.String("external_id", event.ExternalID),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}
	if h.metrics != nil {
		h.metrics.RecordApplyLatency(time.Since(start))
		h.metrics.RecordWebhookEvent(string(result))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(webhookResponse{Result: string(result)})
}
