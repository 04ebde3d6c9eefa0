// Package model はドメインモデルを定義する。
package model

// EventType は検証済みWebhookイベントの種別を表す。
type EventType string

const (
	// EventTypeCreated はアイデンティティ作成イベント。
	EventTypeCreated EventType = "created"
	// EventTypeUpdated はアイデンティティ属性更新イベント。
	EventTypeUpdated EventType = "updated"
	// EventTypeDeleted はアイデンティティ削除イベント。
	EventTypeDeleted EventType = "deleted"
	// EventTypeUnknown はこのシステムが処理しないイベント種別。
	// 検証自体は成功しており、プロセッサーは黙って無視する
	// （2xxを返しプロバイダーの再配送を止めるため）。
	EventTypeUnknown EventType = "unknown"
)

// EventAttributes はイベントに含まれるプロバイダー由来の属性を表す。
// 値は欠落し得る。
type EventAttributes struct {
	Email     string
	Name      string
	AvatarURL string
	Role      string
}

// IsAdmin はプロバイダーのrole属性が管理者を示すかどうかを返す。
func (a EventAttributes) IsAdmin() bool {
	return a.Role == "admin"
}

// VerifiedEvent は署名検証を通過した型付きイベントを表す。
// Event Verifierのみが生成でき、未検証の入力がEvent Processorに
// 到達することはない。
type VerifiedEvent struct {
	Type       EventType
	ExternalID string
	Attributes EventAttributes
	Revision   int64 // Webhookイベントは常に1以上。
}

// ApplyResult はイベント適用の結果を表す。
type ApplyResult string

const (
	// ApplyResultApplied はイベントがストアに反映されたことを示す。
	ApplyResultApplied ApplyResult = "applied"
	// ApplyResultStale はrevisionが前進しないため意図的に無視されたことを示す。
	// エラーではなく冪等なno-op。
	ApplyResultStale ApplyResult = "stale"
	// ApplyResultIgnored は処理対象外のイベント種別だったことを示す。
	ApplyResultIgnored ApplyResult = "ignored"
)
