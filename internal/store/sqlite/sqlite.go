// Package sqlite 持久化 tick 审计日志与历史经验。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bearhedge/APEYOLO-sub001/internal/models"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tick_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT NOT NULL,
	decision    TEXT NOT NULL,
	reasoning   TEXT NOT NULL DEFAULT '',
	model_tier  TEXT NOT NULL DEFAULT '',
	model_used  TEXT NOT NULL DEFAULT '',
	proposal_id TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tick_records_ts ON tick_records(ts DESC);

CREATE TABLE IF NOT EXISTS lessons (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	vix_bucket  TEXT NOT NULL,
	time_bucket TEXT NOT NULL,
	summary     TEXT NOT NULL,
	outcome     TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lessons_bucket ON lessons(vix_bucket, time_bucket);
`

// Store 审计库
type Store struct {
	db *sql.DB
}

// Open 打开数据库并建表
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendTick 追加一条 tick 记录
func (s *Store) AppendTick(ctx context.Context, rec *models.TickRecord) error {
	if rec == nil {
		return errors.New("tick record cannot be nil")
	}
	if rec.Decision == "" {
		return errors.New("tick record needs a decision")
	}
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO tick_records (ts, decision, reasoning, model_tier, model_used, proposal_id, duration_ms, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		string(rec.Decision),
		rec.Reasoning,
		string(rec.ModelTier),
		rec.ModelUsed,
		rec.ProposalID,
		rec.Duration.Milliseconds(),
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("append tick: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// RecentTicks 按时间倒序返回最近的记录
func (s *Store) RecentTicks(ctx context.Context, limit int) ([]models.TickRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, ts, decision, reasoning, model_tier, model_used, proposal_id, duration_ms, error
	FROM tick_records ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []models.TickRecord
	for rows.Next() {
		var (
			rec      models.TickRecord
			ts       string
			decision string
			tier     string
			ms       int64
		)
		if err := rows.Scan(&rec.ID, &ts, &decision, &rec.Reasoning, &tier, &rec.ModelUsed, &rec.ProposalID, &ms, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		rec.Decision = models.Decision(decision)
		rec.ModelTier = models.Tier(tier)
		rec.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AddLesson 记录一条经验
func (s *Store) AddLesson(ctx context.Context, l *models.Lesson) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO lessons (vix_bucket, time_bucket, summary, outcome, created_at)
	VALUES (?, ?, ?, ?, ?)`,
		l.VIXBucket, l.TimeBucket, l.Summary, l.Outcome, l.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add lesson: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		l.ID = id
	}
	return nil
}

// Lessons 返回与当前波动率和时段相关的经验，精确匹配优先
func (s *Store) Lessons(ctx context.Context, vixBucket, timeBucket string, limit int) ([]models.Lesson, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, vix_bucket, time_bucket, summary, outcome, created_at
	FROM lessons
	WHERE vix_bucket = ? OR time_bucket = ?
	ORDER BY (vix_bucket = ? AND time_bucket = ?) DESC, id DESC
	LIMIT ?`, vixBucket, timeBucket, vixBucket, timeBucket, limit)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	var out []models.Lesson
	for rows.Next() {
		var l models.Lesson
		var created string
		if err := rows.Scan(&l.ID, &l.VIXBucket, &l.TimeBucket, &l.Summary, &l.Outcome, &created); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, l)
	}
	return out, rows.Err()
}
