// Package model はドメインモデルを定義する。
package model

import "time"

// MirrorStatus はIdentity Mirrorの状態を表す。
type MirrorStatus string

const (
	// MirrorStatusActive は有効なミラーを示す。
	MirrorStatusActive MirrorStatus = "active"
	// MirrorStatusDeleted は削除済み（トゥームストーン）のミラーを示す。
	// 行は物理削除せず、参照整合性のために保持する。
	MirrorStatusDeleted MirrorStatus = "deleted"
)

// CreatedVia はミラーが最初に作成された経路を表す。
type CreatedVia string

const (
	// CreatedViaWebhook はプロバイダーのWebhookイベントにより作成されたことを示す。
	CreatedViaWebhook CreatedVia = "webhook"
	// CreatedViaOnDemand はリクエスト時のオンデマンドプロビジョニングにより
	// 作成されたことを示す。
	CreatedViaOnDemand CreatedVia = "on-demand"
)

// Mirror は外部IdPが管理するアイデンティティのローカルミラーを表す。
// external_idごとに最大1行のみ存在し、revisionは前進のみする。
type Mirror struct {
	ID         string // ローカルUUID。他サブシステムからの安定参照用。
	ExternalID string // プロバイダー発行のユーザーID。不変。
	Email      string
	Name       string
	AvatarURL  string
	IsAdmin    bool
	Revision   int64 // プロバイダー発行の前進専用マーカー。オンデマンド行は0。
	Status     MirrorStatus
	CreatedVia CreatedVia
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsDeleted はミラーがトゥームストーンかどうかを返す。
func (m *Mirror) IsDeleted() bool {
	return m.Status == MirrorStatusDeleted
}
