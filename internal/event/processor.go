// Package event は検証済みアイデンティティイベントのストアへの適用を提供する。
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hitoshi/idmirror/internal/model"
	"github.com/hitoshi/idmirror/internal/repository"
	"github.com/hitoshi/idmirror/internal/security"
)

// Processor は検証済みイベントをIdentity Mirrorストアへ冪等に適用する。
//
// 順序保証はストレージ層のrevision compare-and-swapに委ねるため、
// プロセッサー自体はロックを持たず、同一イベントの再適用・順序逆転・
// 重複配送のいずれに対しても安全である。ストレージ書き込みの失敗は
// エラーとして返し、再試行はWebhookトランスポート層（プロバイダーの
// 再配送ポリシー）に任せる。
type Processor struct {
	mirrorRepo repository.MirrorRepository
	sanitizer  security.ProfileSanitizerService
}

// NewProcessor はProcessorを生成する。
func NewProcessor(
	mirrorRepo repository.MirrorRepository,
	sanitizer security.ProfileSanitizerService,
) *Processor {
	return &Processor{
		mirrorRepo: mirrorRepo,
		sanitizer:  sanitizer,
	}
}

// Apply は検証済みイベントを適用する。
//
// created/updatedはrevisionが前進する場合のみ属性を反映するアップサート、
// deletedは同じrevision条件でのトゥームストーン化。revisionが前進しない
// イベントは黙ってApplyResultStaleを返す（エラーではない）。
// オンデマンド作成済みの行に後からWebhookイベントが届いた場合は、
// イベントの属性とrevisionで上書きされるがcreated_viaは保持される
// （初出経路の来歴を残すマージ規則）。
func (p *Processor) Apply(ctx context.Context, ev *model.VerifiedEvent) (model.ApplyResult, error) {
	switch ev.Type {
	case model.EventTypeCreated, model.EventTypeUpdated:
		return p.applyUpsert(ctx, ev)
	case model.EventTypeDeleted:
		return p.applyTombstone(ctx, ev)
	default:
		// 処理対象外の種別。2xxを返して再配送を止めるため成功扱い。
		return model.ApplyResultIgnored, nil
	}
}

// applyUpsert はcreated/updatedイベントを適用する。
func (p *Processor) applyUpsert(ctx context.Context, ev *model.VerifiedEvent) (model.ApplyResult, error) {
	params := repository.UpsertParams{
		ID:         uuid.New().String(),
		ExternalID: ev.ExternalID,
		Email:      ev.Attributes.Email,
		Name:       p.sanitizer.Sanitize(ev.Attributes.Name),
		AvatarURL:  ev.Attributes.AvatarURL,
		IsAdmin:    ev.Attributes.IsAdmin(),
		Revision:   ev.Revision,
		CreatedVia: model.CreatedViaWebhook,
	}

	applied, err := p.mirrorRepo.UpsertIfNewer(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to apply %s event: %w", ev.Type, err)
	}

	if !applied {
		slog.Info("stale event skipped",
			slog.String("type", string(ev.Type)),
			slog.String("external_id", ev.ExternalID),
			slog.Int64("revision", ev.Revision),
		)
		return model.ApplyResultStale, nil
	}

	slog.Info("event applied",
		slog.String("type", string(ev.Type)),
		slog.String("external_id", ev.ExternalID),
		slog.Int64("revision", ev.Revision),
	)
	return model.ApplyResultApplied, nil
}

// applyTombstone はdeletedイベントを適用する。
// 行は物理削除せず、他サブシステムからの参照整合性のために
// トゥームストーンとして保持する。
func (p *Processor) applyTombstone(ctx context.Context, ev *model.VerifiedEvent) (model.ApplyResult, error) {
	applied, err := p.mirrorRepo.TombstoneIfNewer(ctx, uuid.New().String(), ev.ExternalID, ev.Revision)
	if err != nil {
		return "", fmt.Errorf("failed to apply deleted event: %w", err)
	}

	if !applied {
		slog.Info("stale deletion skipped",
			slog.String("external_id", ev.ExternalID),
			slog.Int64("revision", ev.Revision),
		)
		return model.ApplyResultStale, nil
	}

	slog.Info("mirror tombstoned",
		slog.String("external_id", ev.ExternalID),
		slog.Int64("revision", ev.Revision),
	)
	return model.ApplyResultApplied, nil
}
