package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
)

// 各PostgreSQLリポジトリがインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
	var _ ItemRepository = (*PostgresItemRepo)(nil)
	var _ ReviewRepository = (*PostgresReviewRepo)(nil)
	var _ StudySessionRepository = (*PostgresStudySessionRepo)(nil)
	var _ CollectionRepository = (*PostgresCollectionRepo)(nil)
	var _ QuotaRepository = (*PostgresQuotaRepo)(nil)
	var _ TxRunner = (*PostgresTxRunner)(nil)
}

// NewPostgres*Repoが正しく初期化されることを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	repos := map[string]any{
		"user":          NewPostgresUserRepo(nil),
		"session":       NewPostgresSessionRepo(nil),
		"item":          NewPostgresItemRepo(nil),
		"review":        NewPostgresReviewRepo(nil),
		"study_session": NewPostgresStudySessionRepo(nil),
		"collection":    NewPostgresCollectionRepo(nil),
		"quota":         NewPostgresQuotaRepo(nil),
	}
	for name, repo := range repos {
		if repo == nil {
			t.Errorf("%s: expected non-nil repo", name)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"100%", `100\%`},
		{"snake_case", `snake\_case`},
		{`back\slash`, `back\\slash`},
		{`%_\`, `\%\_\\`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDateParam(t *testing.T) {
	if got := dateParam(nil); got != nil {
		t.Errorf("dateParam(nil) = %v, want nil", got)
	}

	// UTCに変換してから日付部分だけを使う
	jst := time.FixedZone("JST", 9*60*60)
	d := time.Date(2024, 3, 1, 8, 0, 0, 0, jst)
	if got := dateParam(&d); got != "2024-02-29" {
		t.Errorf("dateParam = %v, want 2024-02-29", got)
	}
}

func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("empty string should be NULL")
	}
	ns := nullString("ja")
	if !ns.Valid || ns.String != "ja" {
		t.Errorf("nullString(ja) = %+v", ns)
	}
	if got := nullStringValue(sql.NullString{}); got != "" {
		t.Errorf("nullStringValue(NULL) = %q, want empty", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505"}
	if !isUniqueViolation(dup) {
		t.Error("23505 should be a unique violation")
	}
	if !isUniqueViolation(fmt.Errorf("wrapped: %w", dup)) {
		t.Error("wrapped 23505 should be a unique violation")
	}
	if isUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("foreign key violation should not be a unique violation")
	}
	if isUniqueViolation(errors.New("other")) {
		t.Error("plain error should not be a unique violation")
	}
}

type stubBeginner struct {
	calls int
	err   error
}

func (s *stubBeginner) BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error) {
	s.calls++
	return nil, s.err
}

func TestRunInTx_BeginError(t *testing.T) {
	beginErr := errors.New("connection refused")
	runner := NewPostgresTxRunner(&stubBeginner{err: beginErr})

	called := false
	err := runner.RunInTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, beginErr) {
		t.Fatalf("err = %v, want wrapped begin error", err)
	}
	if called {
		t.Error("fn should not run when BeginTx fails")
	}
}

func TestRunInTx_ReusesExistingTransaction(t *testing.T) {
	beginner := &stubBeginner{}
	runner := NewPostgresTxRunner(beginner)

	ctx := context.WithValue(context.Background(), txContextKey{}, (*sql.Tx)(nil))
	var inner context.Context
	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		inner = ctx
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if beginner.calls != 0 {
		t.Errorf("BeginTx calls = %d, want 0 for nested RunInTx", beginner.calls)
	}
	if inner != ctx {
		t.Error("nested RunInTx should pass the outer context through")
	}
}
