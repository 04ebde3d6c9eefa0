// Package provision はリクエスト時のオンデマンドミラー作成を提供する。
package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hitoshi/idmirror/internal/auth"
	"github.com/hitoshi/idmirror/internal/model"
	"github.com/hitoshi/idmirror/internal/repository"
	"github.com/hitoshi/idmirror/internal/security"
)

// ProvisionRecorder はプロビジョニング実績のメトリクス記録インターフェース。
type ProvisionRecorder interface {
	RecordProvisioned()
}

// Provisioner は検証済み認証情報が未知のexternal_idを参照している場合に、
// クレームのみから最小ミラーを同期的に作成する。
//
// Webhookイベントの到着を待たずにリクエストを通すためのフォールバック
// であり、プロバイダーへの追加往復は行わない（リクエストパスに
// プロバイダーのレイテンシを持ち込まない）。作成される行はrevision 0
// なので、後から届くWebhookイベント（常にrevision >= 1）が必ず
// 権威ある属性で上書きできる。
type Provisioner struct {
	mirrorRepo repository.MirrorRepository
	sanitizer  security.ProfileSanitizerService
	recorder   ProvisionRecorder
}

// NewProvisioner はProvisionerを生成する。recorderはnilを許容する。
func NewProvisioner(
	mirrorRepo repository.MirrorRepository,
	sanitizer security.ProfileSanitizerService,
	recorder ProvisionRecorder,
) *Provisioner {
	return &Provisioner{
		mirrorRepo: mirrorRepo,
		sanitizer:  sanitizer,
		recorder:   recorder,
	}
}

// Ensure はexternal_idに対応するミラーを返し、存在しない場合は
// クレームから最小ミラーを作成する。
//
// insert-if-absentセマンティクスのため、同一external_idへの並行
// 初回リクエストは1行に収束する。既にWebhookで作成済みの行や
// トゥームストーンが存在する場合はそれをそのまま返す（リクエスト時
// プロビジョニングがより権威ある行を上書きすることはない）。
func (p *Provisioner) Ensure(ctx context.Context, claims *auth.Claims) (*model.Mirror, error) {
	mirror, inserted, err := p.mirrorRepo.InsertIfAbsent(ctx, repository.UpsertParams{
		ID:         uuid.New().String(),
		ExternalID: claims.ExternalID,
		Email:      claims.Email,
		Name:       p.sanitizer.Sanitize(claims.Name),
		AvatarURL:  claims.AvatarURL,
		IsAdmin:    claims.IsAdmin(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to provision mirror: %w", err)
	}

	if inserted {
		if p.recorder != nil {
			p.recorder.RecordProvisioned()
		}
		slog.Info("mirror provisioned on demand",
			slog.String("external_id", claims.ExternalID),
		)
	}

	return mirror, nil
}
