// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/idmirror/internal/model"
)

// UpsertParams はUpsertIfNewerに渡す書き込みパラメータ。
type UpsertParams struct {
	ID         string // 新規挿入時に採用されるローカルUUID
	ExternalID string
	Email      string
	Name       string
	AvatarURL  string
	IsAdmin    bool
	Revision   int64
	CreatedVia model.CreatedVia // 新規挿入時のみ記録される。既存行の値は変更しない。
}

// MirrorRepository はIdentity Mirrorの永続化インターフェース。
// すべての書き込み操作は同一external_idへの並行呼び出しに対して
// アトミックであること（revisionを条件とするcompare-and-swap）。
// 水平スケール環境でWebhook配送とリクエスト時プロビジョニングが
// 別プロセスから同時に書き込むため、順序保証はストレージ層で行う。
type MirrorRepository interface {
	// FindByExternalID は指定external_idのミラーを取得する。
	// 見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.Mirror, error)

	// UpsertIfNewer はrevisionが前進する場合のみ属性を反映しstatusをactiveにする。
	// 行が存在しない場合は新規挿入する。revisionが前進しない場合は何もせず
	// falseを返す（冪等なno-op）。既存行のcreated_viaは保持される。
	UpsertIfNewer(ctx context.Context, p UpsertParams) (applied bool, err error)

	// TombstoneIfNewer はrevisionが前進する場合のみミラーをトゥームストーン化し、
	// ミラー済み属性を消去する。行が存在しない場合はトゥームストーン行を
	// 新規挿入する（遅延した古い作成イベントによる復活を防ぐため）。
	TombstoneIfNewer(ctx context.Context, id, externalID string, revision int64) (applied bool, err error)

	// InsertIfAbsent はrevision 0・created_via on-demandの最小ミラーを
	// 挿入し、external_idに対応する現在の行を返す。既に行が存在する場合は
	// 挿入せず既存行を返す（insert-if-absentセマンティクス）。
	// 同一external_idへの並行初回リクエストは1行に収束する。
	InsertIfAbsent(ctx context.Context, p UpsertParams) (mirror *model.Mirror, inserted bool, err error)

	// List はミラー一覧をcreated_at降順で返す。管理者向けの可観測性用途。
	List(ctx context.Context, limit, offset int) ([]*model.Mirror, error)
}
