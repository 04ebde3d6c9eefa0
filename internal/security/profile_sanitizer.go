// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizerService はプロバイダー由来のプロフィール属性
// （表示名など）をサニタイズし、後段の表示レイヤーをXSSから保護する。
// Webhookイベントの属性もリクエスト時の認証情報クレームも、いずれも
// 外部入力であり保存前に必ず通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizerService はプロフィール属性のサニタイズ機能のインターフェースを定義する。
type ProfileSanitizerService interface {
	// Sanitize は属性値からすべてのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白もトリムする。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// profileSanitizer はProfileSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerServiceの新しいインスタンスを生成する。
// 表示名にHTMLを許可する理由はないため、タグを一切許可しない
// StrictPolicyを使用する。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は属性値からHTMLタグを除去する。
func (s *profileSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// compile-time interface check
var _ ProfileSanitizerService = (*profileSanitizer)(nil)
