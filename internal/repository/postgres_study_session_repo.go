package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/vocalearn/internal/model"
)

// PostgresStudySessionRepo はPostgreSQLを使用した学習セッションリポジトリ。
type PostgresStudySessionRepo struct {
	db *sql.DB
}

// NewPostgresStudySessionRepo はPostgresStudySessionRepoを生成する。
func NewPostgresStudySessionRepo(db *sql.DB) *PostgresStudySessionRepo {
	return &PostgresStudySessionRepo{db: db}
}

const studySessionColumns = `id, user_id, kind, started_at, ended_at, items_reviewed`

func scanStudySession(s rowScanner) (*model.StudySession, error) {
	ss := &model.StudySession{}
	var kind string
	var endedAt sql.NullTime
	if err := s.Scan(&ss.ID, &ss.UserID, &kind, &ss.StartedAt, &endedAt, &ss.ItemsReviewed); err != nil {
		return nil, err
	}
	ss.Kind = model.StudySessionKind(kind)
	if endedAt.Valid {
		ss.EndedAt = &endedAt.Time
	}
	return ss, nil
}

// Create は学習セッションを作成する。
func (r *PostgresStudySessionRepo) Create(ctx context.Context, session *model.StudySession) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO study_sessions (id, user_id, kind, started_at, ended_at, items_reviewed)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.UserID, string(session.Kind), session.StartedAt, session.EndedAt, session.ItemsReviewed,
	)
	if err != nil {
		return fmt.Errorf("学習セッションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの学習セッションを取得する。見つからない場合はnilを返す。
func (r *PostgresStudySessionRepo) FindByID(ctx context.Context, id string) (*model.StudySession, error) {
	return r.findOne(ctx, `SELECT `+studySessionColumns+` FROM study_sessions WHERE id = $1`, id)
}

// FindByIDForUpdate は指定IDの学習セッションを行ロック付きで取得する。
func (r *PostgresStudySessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.StudySession, error) {
	return r.findOne(ctx, `SELECT `+studySessionColumns+` FROM study_sessions WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresStudySessionRepo) findOne(ctx context.Context, query, id string) (*model.StudySession, error) {
	ss, err := scanStudySession(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("学習セッションの取得に失敗しました: %w", err)
	}
	return ss, nil
}

// ListByUser はユーザーの学習セッションをstarted_at降順で返す。
func (r *PostgresStudySessionRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.StudySession, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+studySessionColumns+` FROM study_sessions
		 WHERE user_id = $1
		 ORDER BY started_at DESC, id
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("学習セッション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sessions []*model.StudySession
	for rows.Next() {
		ss, err := scanStudySession(rows)
		if err != nil {
			return nil, fmt.Errorf("学習セッションのスキャンに失敗しました: %w", err)
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// IncrementItemsReviewed はitems_reviewedを1増やす。
func (r *PostgresStudySessionRepo) IncrementItemsReviewed(ctx context.Context, id string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE study_sessions SET items_reviewed = items_reviewed + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("復習数の更新に失敗しました: %w", err)
	}
	return nil
}

// End はended_atを設定する。既に終了している場合は変更しない。
func (r *PostgresStudySessionRepo) End(ctx context.Context, id string, endedAt time.Time) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE study_sessions SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`,
		id, endedAt,
	)
	if err != nil {
		return fmt.Errorf("学習セッションの終了に失敗しました: %w", err)
	}
	return nil
}

// Delete は学習セッションを削除する。
func (r *PostgresStudySessionRepo) Delete(ctx context.Context, id string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM study_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("学習セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// EndStaleBefore はstarted_atがbefore以前で未終了のセッションを終了し、件数を返す。
func (r *PostgresStudySessionRepo) EndStaleBefore(ctx context.Context, before, endedAt time.Time) (int64, error) {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE study_sessions SET ended_at = $2 WHERE ended_at IS NULL AND started_at <= $1`,
		before, endedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("放置された学習セッションの終了に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ StudySessionRepository = (*PostgresStudySessionRepo)(nil)
