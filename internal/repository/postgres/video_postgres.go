package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"streamify/internal/model"
	"streamify/internal/repository"
)

// VideoPostgres is a PostgreSQL implementation of repository.VideoRepository.
type VideoPostgres struct {
	db *sql.DB
}

// NewVideoPostgres creates a new VideoPostgres repository.
func NewVideoPostgres(db *sql.DB) *VideoPostgres {
	return &VideoPostgres{db: db}
}

var _ repository.VideoRepository = (*VideoPostgres)(nil)

const videoColumns = `id, filename, original_name, title, description, content_type, size,
		duration_ms, width, height, uploader_id, is_public, views, likes_count, created_at`

// visibleWhere takes the viewer as $1 and the uploader filter as $2.
const visibleWhere = `(is_public OR uploader_id = $1) AND ($2 = '' OR uploader_id = $2)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(s rowScanner) (*model.Video, error) {
	var (
		v             model.Video
		duration      sql.NullInt64
		width, height sql.NullInt32
	)
	if err := s.Scan(
		&v.ID,
		&v.Filename,
		&v.OriginalName,
		&v.Title,
		&v.Description,
		&v.ContentType,
		&v.Size,
		&duration,
		&width,
		&height,
		&v.UploaderID,
		&v.IsPublic,
		&v.Views,
		&v.LikesCount,
		&v.CreatedAt,
	); err != nil {
		return nil, err
	}
	if duration.Valid {
		d := duration.Int64
		v.DurationMs = &d
	}
	if width.Valid && height.Valid {
		w, h := int(width.Int32), int(height.Int32)
		v.Width, v.Height = &w, &h
	}
	return &v, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullInt32(p *int) sql.NullInt32 {
	if p == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*p), Valid: true}
}

// Create inserts a new video row and returns the stored record.
func (r *VideoPostgres) Create(ctx context.Context, v *model.Video) (*model.Video, error) {
	q := `
		INSERT INTO videos (id, filename, original_name, title, description, content_type, size,
			duration_ms, width, height, uploader_id, is_public, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + videoColumns
	row := r.db.QueryRowContext(ctx, q,
		v.ID,
		v.Filename,
		v.OriginalName,
		v.Title,
		v.Description,
		v.ContentType,
		v.Size,
		nullInt64(v.DurationMs),
		nullInt32(v.Width),
		nullInt32(v.Height),
		v.UploaderID,
		v.IsPublic,
		v.CreatedAt,
	)
	return scanVideo(row)
}

func (r *VideoPostgres) FindByID(ctx context.Context, id string) (*model.Video, error) {
	return r.findOne(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
}

func (r *VideoPostgres) FindByFilename(ctx context.Context, filename string) (*model.Video, error) {
	return r.findOne(ctx, `SELECT `+videoColumns+` FROM videos WHERE filename = $1`, filename)
}

func (r *VideoPostgres) findOne(ctx context.Context, q string, arg any) (*model.Video, error) {
	v, err := scanVideo(r.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// List returns visible videos using LIMIT/OFFSET pagination and a total count.
func (r *VideoPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Video], error) {
	qCount := `SELECT COUNT(*) FROM videos WHERE ` + visibleWhere
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, pq.ViewerID, pq.UploaderID).Scan(&total); err != nil {
		return nil, err
	}

	qList := `
		SELECT ` + videoColumns + `
		FROM videos
		WHERE ` + visibleWhere + `
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.ViewerID, pq.UploaderID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Video, 0)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Video]{
		Items: items,
		Total: total,
	}, nil
}

func (r *VideoPostgres) IncrementViews(ctx context.Context, id string) error {
	const q = `UPDATE videos SET views = views + 1 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ToggleLike locks the video row so concurrent toggles on the same video serialize.
func (r *VideoPostgres) ToggleLike(ctx context.Context, videoID, userID string) (*model.LikeResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM videos WHERE id = $1 FOR UPDATE`, videoID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM video_likes WHERE video_id = $1 AND user_id = $2`, videoID, userID)
	if err != nil {
		return nil, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	out := &model.LikeResult{Liked: removed == 0}
	delta := -1
	if out.Liked {
		if _, err := tx.ExecContext(ctx, `INSERT INTO video_likes (video_id, user_id) VALUES ($1, $2)`, videoID, userID); err != nil {
			return nil, err
		}
		delta = 1
	}

	const qCount = `UPDATE videos SET likes_count = GREATEST(likes_count + $2, 0) WHERE id = $1 RETURNING likes_count`
	if err := tx.QueryRowContext(ctx, qCount, videoID, delta).Scan(&out.Likes); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// Delete removes a video by ID. Its likes go with it through the foreign key cascade.
func (r *VideoPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM videos WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
