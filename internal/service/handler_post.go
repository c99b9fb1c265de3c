package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cafeworks/postbot/internal/core"
	"github.com/cafeworks/postbot/internal/data"
	"github.com/cafeworks/postbot/internal/domain/model"
)

// handleCreatePost publishes the payload's content to each target board on an
// active session. The first failed publish stops the loop after capturing a
// screenshot; boards already published stay published.
func (p *Processor) handleCreatePost(ctx context.Context, job *model.Job, payload *model.CreatePostPayload) error {
	sess, err := p.resolveActiveSession(ctx, job.UserID, payload.AccountID)
	if err != nil {
		return err
	}

	client, release, err := p.pool.Acquire(ctx, sess.ProfileID)
	if err != nil {
		return fmt.Errorf("acquire browser profile %s: %w", sess.ProfileID, err)
	}
	defer release()

	if err := p.ensureAuthenticated(ctx, job, sess, client); err != nil {
		return err
	}

	req := core.PublishRequest{
		Title:      payload.Title,
		Body:       payload.Body,
		ImagePaths: payload.ImagePaths,
		Trade:      payload.Trade,
	}
	for _, board := range payload.Boards {
		published, pubErr := client.PublishPost(ctx, board, req)
		if pubErr != nil {
			p.bestEffort(ctx, job.ID, "failure screenshot", func() error {
				_, shotErr := p.pool.Screenshot(ctx, sess.ProfileID, "publish_failed")
				return shotErr
			})
			return fmt.Errorf("publish to cafe %s board %s: %w", board.CafeID, board.BoardID, pubErr)
		}

		p.appendLog(ctx, job.ID, "info",
			fmt.Sprintf("published article %s on cafe %s board %s", published.ArticleID, board.CafeID, board.BoardID))
		p.bestEffort(ctx, job.ID, "record managed post", func() error {
			_, upErr := p.posts.Upsert(ctx, model.UpsertPostParams{
				CafeID:    board.CafeID,
				BoardID:   board.BoardID,
				ArticleID: published.ArticleID,
				URL:       published.URL,
				Title:     payload.Title,
				Status:    "published",
				UserID:    job.UserID,
			})
			return upErr
		})
	}

	p.bestEffort(ctx, job.ID, "save profile", func() error {
		return p.pool.SaveProfile(ctx, sess.ProfileID)
	})
	return nil
}

// handleSyncPosts scrapes the authored-articles listing and mirrors every row
// into the managed posts table. Unlike the create-post mirror, upserts here
// are the point of the job and a failed one fails it.
func (p *Processor) handleSyncPosts(ctx context.Context, job *model.Job, payload *model.SyncPostsPayload) error {
	sess, err := p.resolveActiveSession(ctx, job.UserID, payload.AccountID)
	if err != nil {
		return err
	}

	client, release, err := p.pool.Acquire(ctx, sess.ProfileID)
	if err != nil {
		return fmt.Errorf("acquire browser profile %s: %w", sess.ProfileID, err)
	}
	defer release()

	if err := p.ensureAuthenticated(ctx, job, sess, client); err != nil {
		return err
	}

	articles, err := client.ListAuthoredArticles(ctx, payload.CafeID, payload.BoardID)
	if err != nil {
		p.bestEffort(ctx, job.ID, "failure screenshot", func() error {
			_, shotErr := p.pool.Screenshot(ctx, sess.ProfileID, "sync_failed")
			return shotErr
		})
		return fmt.Errorf("list authored articles for cafe %s: %w", payload.CafeID, err)
	}

	for _, art := range articles {
		status := art.Status
		if status == "" {
			status = "published"
		}
		if _, upErr := p.posts.Upsert(ctx, model.UpsertPostParams{
			CafeID:    payload.CafeID,
			BoardID:   payload.BoardID,
			ArticleID: art.ArticleID,
			URL:       art.URL,
			Title:     art.Title,
			Status:    status,
			UserID:    job.UserID,
		}); upErr != nil {
			return fmt.Errorf("upsert article %s: %w", art.ArticleID, upErr)
		}
	}
	p.appendLog(ctx, job.ID, "info", fmt.Sprintf("synced %d articles from cafe %s", len(articles), payload.CafeID))
	return nil
}

// handleDeletePost acknowledges the job without touching the cafe; remote
// deletion is performed outside the automation layer.
func (p *Processor) handleDeletePost(ctx context.Context, job *model.Job, payload *model.DeletePostPayload) error {
	p.appendLog(ctx, job.ID, "info",
		fmt.Sprintf("delete acknowledged for cafe %s article %s; remote deletion is external", payload.CafeID, payload.ArticleID))
	return nil
}

// resolveActiveSession finds the ACTIVE session for the job's user, scoped to
// the payload's account when present. A missing session needs an operator to
// run session init, so the failure is terminal.
func (p *Processor) resolveActiveSession(ctx context.Context, userID, accountID string) (*model.RemoteSession, error) {
	sess, err := p.sessions.FindActive(ctx, userID, accountID)
	if err != nil {
		if errors.Is(err, data.ErrNoActiveSession) {
			return nil, terminal(fmt.Errorf("no active session for user %s: %w", userID, err))
		}
		return nil, fmt.Errorf("resolve active session for user %s: %w", userID, err)
	}
	return sess, nil
}
