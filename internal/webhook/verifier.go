// Package webhook はIdPからのWebhookイベントの署名検証とパースを提供する。
//
// 検証は必ず未パースの生ボディに対して行う。パース後の再シリアライズは
// バイト列が変わり署名が一致しなくなるため、トランスポート層は
// io.ReadAllしたボディをそのまま渡すこと。
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/idmirror/internal/model"
)

// プロバイダーが付与する署名関連ヘッダー。
const (
	HeaderID        = "Webhook-Id"
	HeaderTimestamp = "Webhook-Timestamp"
	HeaderSignature = "Webhook-Signature"
)

// secretPrefix はプロバイダーのダッシュボードが表示するシークレットの接頭辞。
const secretPrefix = "whsec_"

// VerificationError は署名検証の失敗を表す。
// 常に終端的であり、再試行されることはない。
// Malformedは署名は正しいがペイロードの形が不正な場合にtrueになる
// （トランスポート層が401ではなく400を返すための区別）。
type VerificationError struct {
	Reason    string
	Malformed bool
}

// Error はerrorインターフェースを実装する。
func (e *VerificationError) Error() string {
	return fmt.Sprintf("webhook verification failed: %s", e.Reason)
}

// Verifier はWebhookイベントの署名検証と型付きパースを行う。
// 副作用を持たない純粋な検証器であり、永続化は呼び出し側の責務。
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time // テストで差し替えるための時刻取得関数
}

// NewVerifier はVerifierを生成する。
// secretは"whsec_"接頭辞付きのbase64、または生の文字列を受け付ける。
// toleranceはタイムスタンプの許容スキュー（リプレイ攻撃対策）。
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}

	key := []byte(secret)
	if trimmed, ok := strings.CutPrefix(secret, secretPrefix); ok {
		decoded, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("failed to decode webhook secret: %w", err)
		}
		key = decoded
	}

	return &Verifier{
		secret:    key,
		tolerance: tolerance,
		now:       time.Now,
	}, nil
}

// eventEnvelope はプロバイダーのイベントペイロード。
type eventEnvelope struct {
	Type string    `json:"type"`
	Data eventData `json:"data"`
}

// eventData はイベントに含まれるアイデンティティ属性。
type eventData struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Role      string `json:"role"`
	Revision  int64  `json:"revision"`
}

// Verify は生ボディと署名ヘッダーを検証し、型付きイベントを返す。
// 署名不一致、許容スキュー外のタイムスタンプ、ヘッダー欠落、
// ペイロード不正のいずれもVerificationErrorを返す。
// このシステムが処理しないイベント種別はEventTypeUnknownとして
// 検証成功で返す（トランスポート層が2xxを返し再配送を止めるため）。
func (v *Verifier) Verify(rawBody []byte, header http.Header) (*model.VerifiedEvent, error) {
	msgID := header.Get(HeaderID)
	timestamp := header.Get(HeaderTimestamp)
	signature := header.Get(HeaderSignature)
	if msgID == "" || timestamp == "" || signature == "" {
		return nil, &VerificationError{Reason: "missing signature headers"}
	}

	// 1. タイムスタンプの許容スキュー確認（リプレイ対策）
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, &VerificationError{Reason: "invalid timestamp header"}
	}
	sent := time.Unix(ts, 0)
	if diff := v.now().Sub(sent); diff > v.tolerance || diff < -v.tolerance {
		return nil, &VerificationError{Reason: "timestamp outside tolerance"}
	}

	// 2. 生ボディに対する署名の検証
	expected := v.sign(msgID, timestamp, rawBody)
	if !matchSignature(signature, expected) {
		return nil, &VerificationError{Reason: "signature mismatch"}
	}

	// 3. 検証済みボディの型付きパース
	var envelope eventEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, &VerificationError{Reason: "malformed payload", Malformed: true}
	}
	if envelope.Type == "" {
		return nil, &VerificationError{Reason: "missing event type", Malformed: true}
	}

	eventType := parseEventType(envelope.Type)
	if eventType == model.EventTypeUnknown {
		return &model.VerifiedEvent{Type: model.EventTypeUnknown}, nil
	}

	if envelope.Data.ID == "" {
		return nil, &VerificationError{Reason: "missing identity id", Malformed: true}
	}
	if envelope.Data.Revision < 1 {
		return nil, &VerificationError{Reason: "missing or invalid revision", Malformed: true}
	}

	return &model.VerifiedEvent{
		Type:       eventType,
		ExternalID: envelope.Data.ID,
		Revision:   envelope.Data.Revision,
		Attributes: model.EventAttributes{
			Email:     envelope.Data.Email,
			Name:      envelope.Data.Name,
			AvatarURL: envelope.Data.AvatarURL,
			Role:      envelope.Data.Role,
		},
	}, nil
}

// sign は署名対象 "{id}.{timestamp}.{body}" のHMAC-SHA256を計算する。
func (v *Verifier) sign(msgID, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(body)
	return mac.Sum(nil)
}

// matchSignature は署名ヘッダーの各エントリと期待値を定数時間比較する。
// ヘッダーは鍵ローテーション期間中に "v1,<base64> v1,<base64>" の形で
// 複数署名を持ち得るため、いずれか1つが一致すれば検証成功とする。
func matchSignature(header string, expected []byte) bool {
	for _, entry := range strings.Fields(header) {
		value, ok := strings.CutPrefix(entry, "v1,")
		if !ok {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}

// parseEventType はプロバイダーのイベント種別文字列を内部表現に変換する。
func parseEventType(raw string) model.EventType {
	switch raw {
	case "user.created":
		return model.EventTypeCreated
	case "user.updated":
		return model.EventTypeUpdated
	case "user.deleted":
		return model.EventTypeDeleted
	default:
		return model.EventTypeUnknown
	}
}
