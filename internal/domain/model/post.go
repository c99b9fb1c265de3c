package model

import "time"

// ManagedPost mirrors an article published on the cafe. Unique on
// (cafe_id, article_id); upserted best-effort and never required for job success.
type ManagedPost struct {
	ID           string     `json:"id"                      db:"id"`
	CafeID       string     `json:"cafe_id"                 db:"cafe_id"`
	BoardID      string     `json:"board_id"                db:"board_id"`
	ArticleID    string     `json:"article_id"              db:"article_id"`
	URL          string     `json:"url"                     db:"url"`
	Title        string     `json:"title"                   db:"title"`
	Status       string     `json:"status"                  db:"status"`
	UserID       string     `json:"user_id"                 db:"user_id"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty" db:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at"              db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"              db:"updated_at"`
}

// UpsertPostParams carries the fields matched and written by a ManagedPost upsert.
type UpsertPostParams struct {
	CafeID    string
	BoardID   string
	ArticleID string
	URL       string
	Title     string
	Status    string
	UserID    string
}

// RemoteArticle is one row scraped from the cafe's authored-articles listing.
type RemoteArticle struct {
	ArticleID string
	Title     string
	URL       string
	Status    string
}

// PublishedArticle is the result of a successful publish action.
type PublishedArticle struct {
	ArticleID string
	URL       string
}
