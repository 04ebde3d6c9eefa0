package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/idmirror/internal/model"
)

// PostgresMirrorRepo はPostgreSQLを使用したミラーリポジトリ。
// 書き込みはすべて単一ステートメントのINSERT ... ON CONFLICTで行い、
// revisionの前進条件を行レベルで保証する。アプリケーション側のロックや
// トランザクションに依存しないため、複数プロセスからの並行書き込みでも
// 順序保証が成立する。
type PostgresMirrorRepo struct {
	db *sql.DB
}

// NewPostgresMirrorRepo はPostgresMirrorRepoを生成する。
func NewPostgresMirrorRepo(db *sql.DB) *PostgresMirrorRepo {
	return &PostgresMirrorRepo{db: db}
}

const mirrorColumns = `id, external_id, email, name, avatar_url, is_admin, revision, status, created_via, created_at, updated_at`

// scanMirror は1行をmodel.Mirrorに読み取る。
func scanMirror(row interface{ Scan(...any) error }) (*model.Mirror, error) {
	m := &model.Mirror{}
	err := row.Scan(
		&m.ID, &m.ExternalID, &m.Email, &m.Name, &m.AvatarURL,
		&m.IsAdmin, &m.Revision, &m.Status, &m.CreatedVia,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FindByExternalID は指定external_idのミラーを取得する。見つからない場合はnilを返す。
func (r *PostgresMirrorRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Mirror, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+mirrorColumns+` FROM mirrors WHERE external_id = $1`,
		externalID,
	)

	m, err := scanMirror(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find mirror by external ID: %w", err)
	}

	return m, nil
}

// UpsertIfNewer はrevisionが前進する場合のみ属性を反映する。
// UPDATE側がcreated_viaに触れないことで、オンデマンド作成行に後から
// Webhookイベントがマージされても初出経路の来歴が保持される。
func (r *PostgresMirrorRepo) UpsertIfNewer(ctx context.Context, p UpsertParams) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO mirrors (id, external_id, email, name, avatar_url, is_admin, revision, status, created_via)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', $8)
		 ON CONFLICT (external_id) DO UPDATE SET
		     email      = EXCLUDED.email,
		     name       = EXCLUDED.name,
		     avatar_url = EXCLUDED.avatar_url,
		     is_admin   = EXCLUDED.is_admin,
		     revision   = EXCLUDED.revision,
		     status     = 'active',
		     updated_at = now()
		 WHERE mirrors.revision < EXCLUDED.revision`,
		p.ID, p.ExternalID, p.Email, p.Name, p.AvatarURL, p.IsAdmin, p.Revision, p.CreatedVia,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert mirror: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// TombstoneIfNewer はrevisionが前進する場合のみトゥームストーン化する。
// 未知のexternal_idに対する削除イベントではトゥームストーン行を挿入し、
// 後から届く古い作成イベントが復活させられないようにする。
// ミラー済み属性は削除時に消去する（削除済みアイデンティティの
// 個人情報を保持しない。これにより配送順に依存せず同一の最終状態に収束する）。
func (r *PostgresMirrorRepo) TombstoneIfNewer(ctx context.Context, id, externalID string, revision int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO mirrors (id, external_id, revision, status, created_via)
		 VALUES ($1, $2, $3, 'deleted', 'webhook')
		 ON CONFLICT (external_id) DO UPDATE SET
		     email      = '',
		     name       = '',
		     avatar_url = '',
		     is_admin   = FALSE,
		     revision   = EXCLUDED.revision,
		     status     = 'deleted',
		     updated_at = now()
		 WHERE mirrors.revision < EXCLUDED.revision`,
		id, externalID, revision,
	)
	if err != nil {
		return false, fmt.Errorf("failed to tombstone mirror: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// InsertIfAbsent はオンデマンドの最小ミラーを挿入し、現在の行を返す。
// ON CONFLICT DO NOTHINGにより並行初回リクエストは1行に収束し、
// 先にWebhookで作成された行やトゥームストーンを上書きすることはない。
func (r *PostgresMirrorRepo) InsertIfAbsent(ctx context.Context, p UpsertParams) (*model.Mirror, bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO mirrors (id, external_id, email, name, avatar_url, is_admin, revision, status, created_via)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, 'active', 'on-demand')
		 ON CONFLICT (external_id) DO NOTHING`,
		p.ID, p.ExternalID, p.Email, p.Name, p.AvatarURL, p.IsAdmin,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert mirror: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	// 挿入の成否に関わらず、現在の勝者行を読み直して返す
	mirror, err := r.FindByExternalID(ctx, p.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if mirror == nil {
		return nil, false, fmt.Errorf("mirror disappeared after insert: %s", p.ExternalID)
	}

	return mirror, affected > 0, nil
}

// List はミラー一覧をcreated_at降順で返す。
func (r *PostgresMirrorRepo) List(ctx context.Context, limit, offset int) ([]*model.Mirror, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+mirrorColumns+` FROM mirrors
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirrors: %w", err)
	}
	defer rows.Close()

	var mirrors []*model.Mirror
	for rows.Next() {
		m, err := scanMirror(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mirror: %w", err)
		}
		mirrors = append(mirrors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mirrors: %w", err)
	}

	return mirrors, nil
}

// compile-time interface check
var _ MirrorRepository = (*PostgresMirrorRepo)(nil)
