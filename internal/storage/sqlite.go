package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "karmabot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("activity journal opened", logx.String("path", path), logx.String("driver", "sqlite"))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendActivity(ctx context.Context, r ActivityRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity(id, at, at_ms, kind, status, reason, community, target, post_id, result_id, detail, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.At.Format(time.RFC3339Nano), r.At.UnixMilli(), nullStr(r.Kind), r.Status, nullStr(r.Reason),
		nullStr(r.Community), nullStr(r.Target), nullStr(r.PostID), nullStr(r.ResultID), nullStr(r.Detail), nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) RecentActivity(ctx context.Context, since time.Time, limit int) ([]ActivityRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT id, at, kind, status, reason, community, target, post_id, result_id, detail, err
	      FROM activity WHERE at_ms >= ? ORDER BY at_ms DESC, rowid DESC`
	args := []any{since.UnixMilli()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActivityRecord
	for rows.Next() {
		var (
			r                                                     ActivityRecord
			at                                                    string
			kind, reason, community, target, post, result, detail sql.NullString
			errStr                                                sql.NullString
		)
		if err := rows.Scan(&r.ID, &at, &kind, &r.Status, &reason, &community, &target, &post, &result, &detail, &errStr); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		r.Kind, r.Reason, r.Community = kind.String, reason.String, community.String
		r.Target, r.PostID, r.ResultID = target.String, post.String, result.String
		r.Detail, r.Error = detail.String, errStr.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
