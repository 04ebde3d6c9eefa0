package repository

import (
	"testing"

	"github.com/hitoshi/idmirror/internal/model"
)

// PostgresMirrorRepoはMirrorRepositoryインターフェースを満たすことを検証
func TestPostgresMirrorRepo_ImplementsInterface(t *testing.T) {
	var _ MirrorRepository = (*PostgresMirrorRepo)(nil)
}

// NewPostgresMirrorRepoが正しく初期化されることを検証
func TestNewPostgresMirrorRepo_Initializes(t *testing.T) {
	repo := NewPostgresMirrorRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// UpsertParamsの構築: Webhook経由のパラメータが揃っていることを検証
// （DB接続なしでロジックのみ検証）
func TestUpsertParams_WebhookShape(t *testing.T) {
	p := UpsertParams{
		ID:         "3f1c2a9e-0000-0000-0000-000000000001",
		ExternalID: "ext_1",
		Email:      "a@x.com",
		Revision:   1,
		CreatedVia: model.CreatedViaWebhook,
	}

	if p.Revision < 1 {
		t.Error("webhook upserts should carry revision >= 1")
	}
	if p.CreatedVia != model.CreatedViaWebhook {
		t.Errorf("CreatedVia = %q, want %q", p.CreatedVia, model.CreatedViaWebhook)
	}
}

// オンデマンド行はrevision 0で作成されるというコンセプトの検証。
// revision >= 1 のWebhookイベントが常に上書きできることが前提となる。
func TestInsertIfAbsent_RevisionZero_Concept(t *testing.T) {
	onDemandRevision := int64(0)
	webhookMinRevision := int64(1)

	if onDemandRevision >= webhookMinRevision {
		t.Error("on-demand rows must start below any webhook revision")
	}
}
