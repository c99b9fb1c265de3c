package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cafeworks/postbot/internal/domain/model"
)

// PostRepo provides database operations for managed posts.
type PostRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewPostRepo creates a new PostRepo with the real time provider.
func NewPostRepo(db *sql.DB) *PostRepo {
	return &PostRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewPostRepoWithTimeProvider creates a PostRepo with a custom time provider.
func NewPostRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *PostRepo {
	return &PostRepo{DB: db, timeProvider: tp}
}

const postColumns = `
  id,
  cafe_id,
  board_id,
  article_id,
  url,
  title,
  status,
  user_id,
  last_synced_at,
  created_at,
  updated_at
`

// Upsert inserts or refreshes a managed post keyed by (cafe_id, article_id).
func (r *PostRepo) Upsert(ctx context.Context, params model.UpsertPostParams) (*model.ManagedPost, error) {
	if params.CafeID == "" || params.ArticleID == "" {
		return nil, errors.New("cafe_id and article_id are required")
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO managed_posts(cafe_id, board_id, article_id, url, title, status, user_id, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cafe_id, article_id) DO UPDATE
		SET board_id = EXCLUDED.board_id,
		    url = EXCLUDED.url,
		    title = EXCLUDED.title,
		    status = EXCLUDED.status,
		    last_synced_at = EXCLUDED.last_synced_at,
		    updated_at = EXCLUDED.last_synced_at
		RETURNING `+postColumns,
		params.CafeID, params.BoardID, params.ArticleID, params.URL,
		params.Title, params.Status, params.UserID, now,
	)

	post, err := scanPost(row)
	if err != nil {
		return nil, fmt.Errorf("upsert managed post: %w", err)
	}
	return post, nil
}

// ListByCafe returns all managed posts for one cafe, most recently synced first.
func (r *PostRepo) ListByCafe(ctx context.Context, cafeID string) ([]*model.ManagedPost, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM managed_posts
		WHERE cafe_id = $1
		ORDER BY last_synced_at DESC NULLS LAST
	`, cafeID)
	if err != nil {
		return nil, fmt.Errorf("list managed posts: %w", err)
	}
	defer rows.Close()

	var posts []*model.ManagedPost
	for rows.Next() {
		post, scanErr := scanPost(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan managed post: %w", scanErr)
		}
		posts = append(posts, post)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return posts, nil
}

func scanPost(scanner jobRowScanner) (*model.ManagedPost, error) {
	post := &model.ManagedPost{}
	var lastSyncedAt sql.NullTime
	if err := scanner.Scan(
		&post.ID,
		&post.CafeID,
		&post.BoardID,
		&post.ArticleID,
		&post.URL,
		&post.Title,
		&post.Status,
		&post.UserID,
		&lastSyncedAt,
		&post.CreatedAt,
		&post.UpdatedAt,
	); err != nil {
		return nil, err
	}
	post.LastSyncedAt = cloneNullableTime(lastSyncedAt)
	return post, nil
}
