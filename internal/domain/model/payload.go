package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Payload is the tagged union over job kinds. Each job type carries its own
// strongly-typed payload; DecodePayload dispatches exhaustively on JobType.
type Payload interface {
	isPayload()
	Validate() error
}

// InitSessionPayload drives an init_session job.
type InitSessionPayload struct {
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
	ProfileID string `json:"profile_id"`
}

// VerifySessionPayload drives a verify_session job.
type VerifySessionPayload struct {
	SessionID string `json:"session_id"`
}

// TradeMeta is the structured trade metadata attached to market-board posts.
type TradeMeta struct {
	Price       int    `json:"price"`
	ProductName string `json:"product_name"`
	Condition   string `json:"condition,omitempty"`
	Region      string `json:"region,omitempty"`
}

// BoardRef identifies one cafe board.
type BoardRef struct {
	CafeID  string `json:"cafe_id"`
	BoardID string `json:"board_id"`
}

// CreatePostPayload drives a create_post job.
type CreatePostPayload struct {
	Boards     []BoardRef `json:"boards"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	ImagePaths []string   `json:"image_paths,omitempty"`
	Trade      *TradeMeta `json:"trade,omitempty"`
	AccountID  string     `json:"account_id,omitempty"`
}

// SyncPostsPayload drives a sync_posts job.
type SyncPostsPayload struct {
	CafeID    string `json:"cafe_id"`
	BoardID   string `json:"board_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

// DeletePostPayload is accepted but not acted upon; deletion is external.
type DeletePostPayload struct {
	CafeID    string `json:"cafe_id"`
	ArticleID string `json:"article_id"`
}

func (InitSessionPayload) isPayload()   {}
func (VerifySessionPayload) isPayload() {}
func (CreatePostPayload) isPayload()    {}
func (SyncPostsPayload) isPayload()     {}
func (DeletePostPayload) isPayload()    {}

// Validate checks required fields of an InitSessionPayload.
func (p InitSessionPayload) Validate() error {
	if p.AccountID == "" {
		return errors.New("account_id is required")
	}
	if p.SessionID == "" {
		return errors.New("session_id is required")
	}
	if p.ProfileID == "" {
		return errors.New("profile_id is required")
	}
	return nil
}

// Validate checks required fields of a VerifySessionPayload.
func (p VerifySessionPayload) Validate() error {
	if p.SessionID == "" {
		return errors.New("session_id is required")
	}
	return nil
}

// Validate checks required fields of a CreatePostPayload.
func (p CreatePostPayload) Validate() error {
	if len(p.Boards) == 0 {
		return errors.New("at least one board is required")
	}
	for i, b := range p.Boards {
		if b.CafeID == "" || b.BoardID == "" {
			return fmt.Errorf("boards[%d]: cafe_id and board_id are required", i)
		}
	}
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(p.Body) == "" {
		return errors.New("body is required")
	}
	return nil
}

// Validate checks required fields of a SyncPostsPayload.
func (p SyncPostsPayload) Validate() error {
	if p.CafeID == "" {
		return errors.New("cafe_id is required")
	}
	return nil
}

// Validate checks required fields of a DeletePostPayload.
func (p DeletePostPayload) Validate() error {
	if p.CafeID == "" || p.ArticleID == "" {
		return errors.New("cafe_id and article_id are required")
	}
	return nil
}

// DecodePayload decodes raw job payload bytes into the typed variant for the
// given job type. Unknown types are a programming error, not data corruption.
func DecodePayload(t JobType, raw json.RawMessage) (Payload, error) {
	decode := func(into Payload) (Payload, error) {
		if err := json.Unmarshal(raw, into); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return into, nil
	}

	switch t {
	case JobTypeInitSession:
		return decode(&InitSessionPayload{})
	case JobTypeVerifySession:
		return decode(&VerifySessionPayload{})
	case JobTypeCreatePost:
		return decode(&CreatePostPayload{})
	case JobTypeSyncPosts:
		return decode(&SyncPostsPayload{})
	case JobTypeDeletePost:
		return decode(&DeletePostPayload{})
	default:
		return nil, fmt.Errorf("no payload decoder for job type %q", t)
	}
}
