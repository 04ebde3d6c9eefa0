package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/idmirror/internal/middleware"
	"github.com/hitoshi/idmirror/internal/model"
)

// MirrorReader はミラーハンドラーが必要とするストア参照インターフェース。
type MirrorReader interface {
	FindByExternalID(ctx context.Context, externalID string) (*model.Mirror, error)
	List(ctx context.Context, limit, offset int) ([]*model.Mirror, error)
}

// MirrorHandler はミラー参照系のHTTPハンドラー。
type MirrorHandler struct {
	reader       MirrorReader
	maxPageLimit int
}

// NewMirrorHandler はMirrorHandlerを生成する。
func NewMirrorHandler(reader MirrorReader, maxPageLimit int) *MirrorHandler {
	return &MirrorHandler{
		reader:       reader,
		maxPageLimit: maxPageLimit,
	}
}

// mirrorResponse はミラーのAPI表現。
// プロバイダー形式ではなくローカルの形で返す。
type mirrorResponse struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	AvatarURL  string    `json:"avatar_url"`
	IsAdmin    bool      `json:"is_admin"`
	Revision   int64     `json:"revision"`
	Status     string    `json:"status"`
	CreatedVia string    `json:"created_via"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toMirrorResponse(m *model.Mirror) mirrorResponse {
	return mirrorResponse{
		ID:         m.ID,
		ExternalID: m.ExternalID,
		Email:      m.Email,
		Name:       m.Name,
		AvatarURL:  m.AvatarURL,
		IsAdmin:    m.IsAdmin,
		Revision:   m.Revision,
		Status:     string(m.Status),
		CreatedVia: string(m.CreatedVia),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// Me は呼び出し元自身のミラーを返す。
// GET /api/me
func (h *MirrorHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewCredentialInvalidError())
		return
	}

	mirror, err := h.reader.FindByExternalID(r.Context(), identity.ExternalID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if mirror == nil {
		// ミドルウェアを通過した直後に消えることは通常ないが、防御的に404
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewMirrorNotFoundError(identity.ExternalID))
		return
	}

	writeJSONResponse(w, http.StatusOK, toMirrorResponse(mirror))
}

// mirrorListResponse は管理者向けミラー一覧のレスポンスボディ。
type mirrorListResponse struct {
	Mirrors []mirrorResponse `json:"mirrors"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListMirrors は管理者向けにミラー一覧を返す。
// GET /api/admin/mirrors?limit=&offset=
//
// created_viaとstatusを含むため、オンデマンド行の滞留（Webhookの
// 取りこぼし兆候）を運用者が観測できる。
func (h *MirrorHandler) ListMirrors(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewCredentialInvalidError())
		return
	}
	if !identity.IsAdmin {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewPermissionDeniedError())
		return
	}

	limit := h.maxPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_PARAMETER",
				Message:  "limitは1以上の整数で指定してください。",
				Category: "validation",
				Action:   "クエリパラメータを確認してください。",
			})
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_PARAMETER",
				Message:  "offsetは0以上の整数で指定してください。",
				Category: "validation",
				Action:   "クエリパラメータを確認してください。",
			})
			return
		}
		offset = parsed
	}

	mirrors, err := h.reader.List(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]mirrorResponse, len(mirrors))
	for i, m := range mirrors {
		responses[i] = toMirrorResponse(m)
	}

	writeJSONResponse(w, http.StatusOK, mirrorListResponse{
		Mirrors: responses,
		Limit:   limit,
		Offset:  offset,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
