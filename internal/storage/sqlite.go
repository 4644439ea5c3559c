package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "localnotify/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
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

func (s *sqliteStore) PutPending(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("record id is required")
	}
	info, err := encodeJSON(r.UserInfo)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending(id, seq, title, body, category, user_info, fire_at, scheduled_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   seq=excluded.seq, title=excluded.title, body=excluded.body, category=excluded.category,
		   user_info=excluded.user_info, fire_at=excluded.fire_at, scheduled_at=excluded.scheduled_at`,
		r.ID, r.Seq, r.Title, r.Body, nullStr(r.Category), info, toMillis(r.FireAt), toMillis(r.ScheduledAt),
	)
	return err
}

func (s *sqliteStore) DeletePending(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) ListPending(ctx context.Context) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, title, body, category, user_info, fire_at, scheduled_at
		 FROM pending ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			category sql.NullString
			info     sql.NullString
			fireAt   int64
			schedAt  int64
		)
		if err := rows.Scan(&r.ID, &r.Seq, &r.Title, &r.Body, &category, &info, &fireAt, &schedAt); err != nil {
			return nil, err
		}
		r.Category = category.String
		r.FireAt = fromMillis(fireAt)
		r.ScheduledAt = fromMillis(schedAt)
		if err := decodeJSON(info, &r.UserInfo); err != nil {
			s.log.Warn("pending user_info unreadable", logx.String("id", r.ID), logx.Err(err))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkDelivered(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("record id is required")
	}
	info, err := encodeJSON(r.UserInfo)
	if err != nil {
		return err
	}
	handles, err := encodeJSON(r.Handles)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending WHERE id = ?`, r.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO delivered(id, seq, title, body, category, user_info, fire_at, scheduled_at, delivered_at, handles)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   delivered_at=excluded.delivered_at, handles=excluded.handles`,
		r.ID, r.Seq, r.Title, r.Body, nullStr(r.Category), info,
		toMillis(r.FireAt), toMillis(r.ScheduledAt), toMillis(r.DeliveredAt), handles,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) DeleteDelivered(ctx context.Context, ids ...string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM delivered WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListDelivered(ctx context.Context) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, title, body, category, user_info, fire_at, scheduled_at, delivered_at, handles
		 FROM delivered ORDER BY delivered_at, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r           Record
			category    sql.NullString
			info        sql.NullString
			handles     sql.NullString
			fireAt      int64
			schedAt     int64
			deliveredAt int64
		)
		if err := rows.Scan(&r.ID, &r.Seq, &r.Title, &r.Body, &category, &info, &fireAt, &schedAt, &deliveredAt, &handles); err != nil {
			return nil, err
		}
		r.Category = category.String
		r.FireAt = fromMillis(fireAt)
		r.ScheduledAt = fromMillis(schedAt)
		r.DeliveredAt = fromMillis(deliveredAt)
		if err := decodeJSON(info, &r.UserInfo); err != nil {
			s.log.Warn("delivered user_info unreadable", logx.String("id", r.ID), logx.Err(err))
		}
		if err := decodeJSON(handles, &r.Handles); err != nil {
			s.log.Warn("delivered handles unreadable", logx.String("id", r.ID), logx.Err(err))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func encodeJSON[T any](v map[string]T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeJSON[T any](v sql.NullString, dst *map[string]T) error {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(v.String), dst)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
