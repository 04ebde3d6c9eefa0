// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/idmirror/internal/auth"
	"github.com/hitoshi/idmirror/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストにローカルアイデンティティを
// 格納するためのキー。
var identityContextKey = contextKey("identity")

// Identity は認証済みリクエストに付与されるローカルアイデンティティコンテキスト。
// 後段のハンドラーはプロバイダー固有のリクエスト形式を一切見ない。
type Identity struct {
	LocalID    string
	ExternalID string
	Email      string
	Name       string
	IsAdmin    bool
}

// MirrorResolver はexternal_idからミラーを解決するインターフェース。
// repository.MirrorRepositoryの部分集合として定義する。
type MirrorResolver interface {
	FindByExternalID(ctx context.Context, externalID string) (*model.Mirror, error)
}

// MirrorEnsurer はミラー未存在時のオンデマンドプロビジョニングインターフェース。
// provision.Provisionerが実装する。
type MirrorEnsurer interface {
	Ensure(ctx context.Context, claims *auth.Claims) (*model.Mirror, error)
}

// NewIdentityMiddleware はリクエストの認証情報を検証し、ローカルミラーを
// 解決（未存在ならプロビジョニング）してアイデンティティコンテキストを
// 注入するミドルウェアを返す。
//
// 認証情報の欠落・不正・期限切れには401を返し、ストアへのアクセスは
// 一切行わない（fail fast）。ミラーがトゥームストーンの場合は403を返す。
// 「未認証」と「認証済みだがアイデンティティ削除済み」は区別される。
func NewIdentityMiddleware(
	verifier auth.CredentialVerifier,
	resolver MirrorResolver,
	ensurer MirrorEnsurer,
) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. ベアラートークンの取得
			rawToken, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewCredentialInvalidError())
				return
			}

			// 2. 認証情報の検証（ストアアクセス前に失敗させる）
			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				slog.Warn("credential verification failed",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewCredentialInvalidError())
				return
			}

			// 3. ミラーの解決（未存在ならオンデマンドプロビジョニング）
			mirror, err := resolver.FindByExternalID(r.Context(), claims.ExternalID)
			if err != nil {
				slog.Error("failed to resolve mirror",
					slog.String("external_id", claims.ExternalID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if mirror == nil {
				mirror, err = ensurer.Ensure(r.Context(), claims)
				if err != nil {
					slog.Error("failed to provision mirror",
						slog.String("external_id", claims.ExternalID),
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
			}

			// 4. トゥームストーンの拒否（認証失敗とは別のエラー）
			if mirror.IsDeleted() {
				WriteErrorResponse(w, http.StatusForbidden, model.NewIdentityDeletedError())
				return
			}

			// 5. ローカルアイデンティティをコンテキストに注入
			identity := &Identity{
				LocalID:    mirror.ID,
				ExternalID: mirror.ExternalID,
				Email:      mirror.Email,
				Name:       mirror.Name,
				IsAdmin:    mirror.IsAdmin,
			}
			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// IdentityFromContext はリクエストコンテキストからローカルアイデンティティを取得する。
// アイデンティティミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストにローカルアイデンティティを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
