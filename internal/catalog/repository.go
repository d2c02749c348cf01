package catalog

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	UpsertVideo(ctx context.Context, v *Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	ListVideos(ctx context.Context, limit int) ([]*Video, error)
	DeleteVideo(ctx context.Context, id string) error

	UpsertExplanation(ctx context.Context, e *Explanation) error
	ListExplanations(ctx context.Context, videoID string) ([]*Explanation, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error
	ListConfigKeys(ctx context.Context, prefix string) ([]string, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const videoColumns = `id, title, author, duration, views, source, status, error, transcript, chunk_count, fetched_at, updated_at`

func (r *SQLiteRepository) UpsertVideo(ctx context.Context, v *Video) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			duration = excluded.duration,
			views = excluded.views,
			source = excluded.source,
			status = excluded.status,
			error = excluded.error,
			transcript = COALESCE(excluded.transcript, videos.transcript),
			chunk_count = excluded.chunk_count,
			fetched_at = excluded.fetched_at,
			updated_at = excluded.updated_at
	`, v.ID, v.Title, v.Author, v.Duration, v.Views, v.Source, v.Status, nullString(v.Error),
		nullBytes(v.Transcript), v.ChunkCount,
		v.FetchedAt.UTC().Format(time.RFC3339), v.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *SQLiteRepository) ListVideos(ctx context.Context, limit int) ([]*Video, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+videoColumns+` FROM videos ORDER BY fetched_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		v.Transcript = nil
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(s scanner) (*Video, error) {
	var v Video
	var errMsg sql.NullString
	var transcript []byte
	var fetchedAt, updatedAt string

	err := s.Scan(&v.ID, &v.Title, &v.Author, &v.Duration, &v.Views, &v.Source, &v.Status,
		&errMsg, &transcript, &v.ChunkCount, &fetchedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	v.Error = errMsg.String
	v.Transcript = transcript
	v.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt)
	v.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &v, nil
}

func (r *SQLiteRepository) DeleteVideo(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpsertExplanation(ctx context.Context, e *Explanation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO explanations (video_id, chunk_id, start_ms, end_ms, chunk_text, explanation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id, chunk_id) DO UPDATE SET
			start_ms = excluded.start_ms,
			end_ms = excluded.end_ms,
			chunk_text = excluded.chunk_text,
			explanation = excluded.explanation,
			created_at = excluded.created_at
	`, e.VideoID, e.ChunkID, e.StartMs, e.EndMs, e.ChunkText, e.Explanation, e.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) ListExplanations(ctx context.Context, videoID string) ([]*Explanation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT video_id, chunk_id, start_ms, end_ms, chunk_text, explanation, created_at
		FROM explanations WHERE video_id = ? ORDER BY chunk_id
	`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Explanation
	for rows.Next() {
		var e Explanation
		var createdAt string
		if err := rows.Scan(&e.VideoID, &e.ChunkID, &e.StartMs, &e.EndMs, &e.ChunkText, &e.Explanation, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (r *SQLiteRepository) DeleteConfig(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM config WHERE key = ?", key)
	return err
}

func (r *SQLiteRepository) ListConfigKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key FROM config WHERE substr(key, 1, ?) = ? ORDER BY key
	`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
