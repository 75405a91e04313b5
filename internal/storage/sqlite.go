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

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	logx "moviebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for the sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	s := &sqliteStore{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
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

func (s *sqliteStore) CreateGroup(ctx context.Context, g *Group) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups(group_id, group_name, owner_chat_id, created_at) VALUES(?,?,?,?)`,
		g.ID, g.Name, g.OwnerChatID, g.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	for _, uid := range g.Members {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members(group_id, user_id, joined_at) VALUES(?,?,?)`,
			g.ID, uid, g.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GroupByID(ctx context.Context, id string) (*Group, error) {
	g := &Group{}
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT group_id, group_name, owner_chat_id, created_at FROM groups WHERE group_id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.OwnerChatID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if g.Members, err = s.members(ctx, g.ID); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *sqliteStore) GroupsForUser(ctx context.Context, userID int64) ([]*Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.group_id, g.group_name, g.owner_chat_id, g.created_at
		 FROM groups g
		 JOIN group_members m ON m.group_id = g.group_id
		 WHERE m.user_id = ?
		 ORDER BY g.group_id ASC`, userID)
	if err != nil {
		return nil, err
	}
	return s.collectGroups(ctx, rows)
}

func (s *sqliteStore) AllGroups(ctx context.Context) ([]*Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, group_name, owner_chat_id, created_at FROM groups ORDER BY group_id ASC`)
	if err != nil {
		return nil, err
	}
	return s.collectGroups(ctx, rows)
}

func (s *sqliteStore) collectGroups(ctx context.Context, rows *sql.Rows) ([]*Group, error) {
	defer rows.Close()
	var out []*Group
	for rows.Next() {
		g := &Group{}
		var created string
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerChatID, &created); err != nil {
			return nil, err
		}
		g.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, g := range out {
		var err error
		if g.Members, err = s.members(ctx, g.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *sqliteStore) members(ctx context.Context, groupID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY joined_at ASC, rowid ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendMember(ctx context.Context, groupID string, userID int64) error {
	// Single statement: the INSERT only happens when the group row exists,
	// and the composite primary key rejects a second join by the same user.
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members(group_id, user_id, joined_at)
		 SELECT group_id, ?, ? FROM groups WHERE group_id = ?`,
		userID, time.Now().Format(time.RFC3339Nano), groupID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM groups WHERE group_id = ?`, groupID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrAlreadyMember
}

func (s *sqliteStore) AddMovie(ctx context.Context, m *Movie) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.AddedAt.IsZero() {
		m.AddedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO movies(id, group_id, link, added_by, added_at) VALUES(?,?,?,?,?)`,
		m.ID, m.GroupID, m.Link, m.AddedBy, m.AddedAt.Format(time.RFC3339Nano))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *sqliteStore) MoviesByGroup(ctx context.Context, groupID string) ([]*Movie, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, link, added_by, added_at FROM movies WHERE group_id = ? ORDER BY added_at ASC, rowid ASC`,
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Movie
	for rows.Next() {
		m := &Movie{}
		var added string
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Link, &m.AddedBy, &added); err != nil {
			return nil, err
		}
		m.AddedAt, _ = time.Parse(time.RFC3339Nano, added)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MovieByLink(ctx context.Context, groupID, link string) (*Movie, error) {
	m := &Movie{}
	var added string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, link, added_by, added_at FROM movies WHERE group_id = ? AND link = ?`,
		groupID, link,
	).Scan(&m.ID, &m.GroupID, &m.Link, &m.AddedBy, &added)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.AddedAt, _ = time.Parse(time.RFC3339Nano, added)
	return m, nil
}

func (s *sqliteStore) DeleteMovie(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) TouchUser(ctx context.Context, userID int64, username string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, username, first_seen) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET username = excluded.username`,
		userID, nullStr(username), time.Now().Format(time.RFC3339Nano))
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
