// Package auth はリクエスト認証情報（IdP発行のベアラートークン）の検証を提供する。
//
// ここで検証するのはリクエストパスの認証情報であり、Webhook署名の検証
// （internal/webhook）とは別物。検証鍵はgo-oidcがプロバイダーの公開鍵
// （JWKS）として取得・キャッシュする。
package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Claims は検証済み認証情報から抽出したアイデンティティ情報を表す。
// オンデマンドプロビジョニングはこのクレームのみから最小ミラーを構築する
// （追加のプロバイダー往復は行わない）。
type Claims struct {
	ExternalID string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	AvatarURL  string `json:"picture"`
	Role       string `json:"role"`
}

// IsAdmin はプロバイダーのrole属性が管理者を示すかどうかを返す。
func (c *Claims) IsAdmin() bool {
	return c.Role == "admin"
}

// CredentialVerifier はベアラートークンの検証インターフェース。
// 署名・有効期限・audienceの確認に失敗した場合はエラーを返す。
type CredentialVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// OIDCVerifier はgo-oidcによるCredentialVerifierの実装。
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier はissuerのディスカバリーを行いOIDCVerifierを生成する。
// ディスカバリーはネットワークアクセスを伴うため起動時に1回だけ呼ぶこと。
func NewOIDCVerifier(ctx context.Context, issuerURL, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: audience}),
	}, nil
}

// Verify はトークンの署名・有効期限・audienceを検証しクレームを返す。
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify credential: %w", err)
	}

	claims := &Claims{}
	if err := token.Claims(claims); err != nil {
		return nil, fmt.Errorf("failed to extract claims: %w", err)
	}
	if claims.ExternalID == "" {
		return nil, fmt.Errorf("credential has no subject")
	}

	return claims, nil
}

// compile-time interface check
var _ CredentialVerifier = (*OIDCVerifier)(nil)
