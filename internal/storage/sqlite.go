package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteRegistry 用自增 seq 记录插入顺序，link 唯一
type SQLiteRegistry struct {
	db  *sql.DB
	max int
}

func NewSQLiteRegistry(path string, max int) (*SQLiteRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS posted_links (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			link       TEXT NOT NULL UNIQUE,
			posted_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteRegistry{db: db, max: capacity(max)}, nil
}

func (r *SQLiteRegistry) IsPosted(ctx context.Context, link string) bool {
	link = normalizeLink(link)
	if link == "" {
		return false
	}
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM posted_links WHERE link = ?`, link).Scan(&n)
	if err != nil {
		log.Warn().Err(err).Str("link", link).Msg("sqlite lookup failed, treating as not posted")
		return false
	}
	return n > 0
}

func (r *SQLiteRegistry) MarkPosted(ctx context.Context, link string) {
	link = normalizeLink(link)
	if link == "" {
		return
	}
	if err := r.insert(ctx, link); err != nil {
		log.Error().Err(err).Str("link", link).Msg("could not save posted link")
	}
}

func (r *SQLiteRegistry) insert(ctx context.Context, link string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO posted_links (link) VALUES (?) ON CONFLICT(link) DO NOTHING`, link)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM posted_links
		WHERE seq NOT IN (SELECT seq FROM posted_links ORDER BY seq DESC LIMIT ?)`, r.max)
	if err != nil {
		return fmt.Errorf("evict: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRegistry) Links(ctx context.Context) []string {
	rows, err := r.db.QueryContext(ctx, `SELECT link FROM posted_links ORDER BY seq ASC`)
	if err != nil {
		log.Warn().Err(err).Msg("sqlite list failed")
		return nil
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			log.Warn().Err(err).Msg("sqlite scan failed")
			return out
		}
		out = append(out, link)
	}
	return out
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}
