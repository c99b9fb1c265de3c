package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/cafeworks/postbot/internal/core"
	"github.com/cafeworks/postbot/internal/domain/model"
)

type clientOptions struct {
	tabCtx          context.Context
	profileID       string
	baseURL         string
	navTimeout      time.Duration
	selectorTimeout time.Duration
	logger          *slog.Logger
}

// Client drives the cafe UI inside one acquired tab. It implements
// core.AutomationClient; all waits are bounded and all element lookups go
// through the selector registry.
type Client struct {
	opts clientOptions
	res  *resolver
}

func newClient(opts clientOptions) *Client {
	return &Client{
		opts: opts,
		res: &resolver{
			tabCtx: opts.tabCtx,
			logger: opts.logger.With("profile_id", opts.profileID),
		},
	}
}

func (c *Client) navigate(path string) error {
	ctx, cancel := context.WithTimeout(c.opts.tabCtx, c.opts.navTimeout)
	defer cancel()
	if err := chromedp.Run(ctx,
		chromedp.Navigate(c.opts.baseURL+path),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", path, err)
	}
	return nil
}

// Login runs the automated credential flow. A detected human-verification
// step yields model.ErrLoginChallenge; a rejected id/password pair yields
// model.ErrBadCredentials with the on-page reason attached.
func (c *Client) Login(ctx context.Context, creds model.Credentials) error {
	if err := c.navigate("/login"); err != nil {
		return err
	}

	idQuery, err := c.res.waitForAny(TargetLoginIDField, c.opts.selectorTimeout)
	if err != nil {
		return fmt.Errorf("locate login form: %w", err)
	}
	pwQuery, err := c.res.findElement(TargetLoginPWField, c.opts.selectorTimeout)
	if err != nil {
		return fmt.Errorf("locate password field: %w", err)
	}
	submitQuery, err := c.res.findElement(TargetLoginSubmit, c.opts.selectorTimeout)
	if err != nil {
		return fmt.Errorf("locate login submit: %w", err)
	}

	typeCtx, cancel := context.WithTimeout(c.opts.tabCtx, c.opts.navTimeout)
	defer cancel()
	if err := chromedp.Run(typeCtx,
		chromedp.Clear(idQuery, chromedp.ByQuery),
		chromedp.SendKeys(idQuery, creds.LoginID, chromedp.ByQuery),
		chromedp.Clear(pwQuery, chromedp.ByQuery),
		chromedp.SendKeys(pwQuery, creds.Password, chromedp.ByQuery),
		chromedp.Click(submitQuery, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	return c.awaitLoginOutcome(ctx)
}

// awaitLoginOutcome polls for whichever of success, challenge, or rejection
// shows up first after submitting the form.
func (c *Client) awaitLoginOutcome(ctx context.Context) error {
	deadline := time.Now().Add(c.opts.navTimeout)
	for {
		if _, ok, _ := c.res.probeOnce(TargetProfileMenu); ok {
			return nil
		}
		if _, ok, _ := c.res.probeOnce(TargetLoginChallenge); ok {
			return model.ErrLoginChallenge
		}
		if query, ok, _ := c.res.probeOnce(TargetLoginError); ok {
			reason := c.textOf(query)
			if reason == "" {
				reason = "login rejected"
			}
			return fmt.Errorf("%w: %s", model.ErrBadCredentials, reason)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("login outcome not determined within %s", c.opts.navTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// IsAuthenticated runs the lightweight verification probe: the cafe home page
// renders the profile menu only for a logged-in session.
func (c *Client) IsAuthenticated(ctx context.Context) (bool, error) {
	if err := c.navigate("/"); err != nil {
		return false, err
	}
	_, err := c.res.findElement(TargetProfileMenu, c.opts.selectorTimeout)
	if errors.Is(err, ErrTargetNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FetchNickname reads the display name from the profile menu.
func (c *Client) FetchNickname(ctx context.Context) (string, error) {
	query, err := c.res.findElement(TargetProfileNick, c.opts.selectorTimeout)
	if err != nil {
		return "", fmt.Errorf("locate nickname: %w", err)
	}
	nick := c.textOf(query)
	if nick == "" {
		return "", errors.New("nickname element is empty")
	}
	return nick, nil
}

// PublishPost fills and submits the board's write form.
func (c *Client) PublishPost(ctx context.Context, board model.BoardRef, post core.PublishRequest) (model.PublishedArticle, error) {
	none := model.PublishedArticle{}

	writePath := fmt.Sprintf("/cafes/%s/boards/%s/articles/write", board.CafeID, board.BoardID)
	if err := c.navigate(writePath); err != nil {
		return none, err
	}

	titleQuery, err := c.res.waitForAny(TargetTitleField, c.opts.selectorTimeout)
	if err != nil {
		return none, fmt.Errorf("locate title field: %w", err)
	}
	formCtx, cancel := context.WithTimeout(c.opts.tabCtx, c.opts.navTimeout)
	defer cancel()
	if err := chromedp.Run(formCtx,
		chromedp.Clear(titleQuery, chromedp.ByQuery),
		chromedp.SendKeys(titleQuery, post.Title, chromedp.ByQuery),
	); err != nil {
		return none, fmt.Errorf("fill title: %w", err)
	}

	if err := c.fillBody(formCtx, post.Body); err != nil {
		return none, err
	}
	if len(post.ImagePaths) > 0 {
		if err := c.attachImages(formCtx, post.ImagePaths); err != nil {
			return none, err
		}
	}
	if post.Trade != nil {
		if err := c.fillTradeMeta(formCtx, post.Trade); err != nil {
			return none, err
		}
	}

	submitQuery, err := c.res.findElement(TargetPostSubmit, c.opts.selectorTimeout)
	if err != nil {
		return none, fmt.Errorf("locate submit button: %w", err)
	}
	if err := chromedp.Run(formCtx, chromedp.Click(submitQuery, chromedp.ByQuery)); err != nil {
		return none, fmt.Errorf("submit post: %w", err)
	}

	linkQuery, err := c.res.waitForAny(TargetPostedLink, c.opts.navTimeout)
	if err != nil {
		return none, fmt.Errorf("confirm publish: %w", err)
	}

	var href string
	var ok bool
	if err := chromedp.Run(formCtx,
		chromedp.AttributeValue(linkQuery, "href", &href, &ok, chromedp.ByQuery),
	); err != nil || !ok {
		return none, fmt.Errorf("read published article link: %w", err)
	}

	return model.PublishedArticle{
		ArticleID: articleIDFromURL(href),
		URL:       href,
	}, nil
}

// fillBody writes the post body into the rich-text editor. The editor lives
// inside an iframe on most board skins, so resolution is frame-scoped first
// and falls back to a top-level editor.
func (c *Client) fillBody(ctx context.Context, body string) error {
	frameNode, editorQuery, err := c.res.findInFrame(FrameEditor, TargetBodyEditor, c.opts.selectorTimeout)
	if err == nil {
		if runErr := chromedp.Run(ctx,
			chromedp.Click(editorQuery, chromedp.ByQuery, chromedp.FromNode(frameNode)),
			chromedp.SendKeys(editorQuery, body, chromedp.ByQuery, chromedp.FromNode(frameNode)),
		); runErr != nil {
			return fmt.Errorf("fill body in frame: %w", runErr)
		}
		return nil
	}

	editorQuery, err = c.res.findElement(TargetBodyEditor, c.opts.selectorTimeout)
	if err != nil {
		return fmt.Errorf("locate body editor: %w", err)
	}
	if runErr := chromedp.Run(ctx,
		chromedp.Click(editorQuery, chromedp.ByQuery),
		chromedp.SendKeys(editorQuery, body, chromedp.ByQuery),
	); runErr != nil {
		return fmt.Errorf("fill body: %w", runErr)
	}
	return nil
}

func (c *Client) attachImages(ctx context.Context, paths []string) error {
	query, err := c.res.findElement(TargetImageAttach, c.opts.selectorTimeout)
	if err != nil {
		return fmt.Errorf("locate image attach control: %w", err)
	}
	if err := chromedp.Run(ctx, chromedp.SetUploadFiles(query, paths, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("attach images: %w", err)
	}
	return nil
}

func (c *Client) fillTradeMeta(ctx context.Context, trade *model.TradeMeta) error {
	priceQuery, err := c.res.findElement(TargetTradePrice, c.opts.selectorTimeout)
	if err != nil {
		return fmt.Errorf("locate trade price field: %w", err)
	}
	productQuery, err := c.res.findElement(TargetTradeProduct, c.opts.selectorTimeout)
	if err != nil {
		return fmt.Errorf("locate trade product field: %w", err)
	}
	if err := chromedp.Run(ctx,
		chromedp.SendKeys(priceQuery, fmt.Sprintf("%d", trade.Price), chromedp.ByQuery),
		chromedp.SendKeys(productQuery, trade.ProductName, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill trade metadata: %w", err)
	}
	return nil
}

// ListAuthoredArticles scrapes the authored-articles listing of a cafe.
func (c *Client) ListAuthoredArticles(ctx context.Context, cafeID, boardID string) ([]model.RemoteArticle, error) {
	listPath := fmt.Sprintf("/cafes/%s/my-articles", cafeID)
	if boardID != "" {
		listPath += "?boardId=" + url.QueryEscape(boardID)
	}
	if err := c.navigate(listPath); err != nil {
		return nil, err
	}

	if _, err := c.res.waitForAny(TargetArticleRows, c.opts.selectorTimeout); err != nil {
		if errors.Is(err, ErrTargetNotFound) {
			// An empty listing renders no rows at all.
			return nil, nil
		}
		return nil, err
	}

	evalCtx, cancel := context.WithTimeout(c.opts.tabCtx, c.opts.navTimeout)
	defer cancel()

	var rows []model.RemoteArticle
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(extractArticlesJS, &rows)); err != nil {
		return nil, fmt.Errorf("extract article rows: %w", err)
	}
	for i := range rows {
		if rows[i].ArticleID == "" {
			rows[i].ArticleID = articleIDFromURL(rows[i].URL)
		}
	}
	return rows, nil
}

// extractArticlesJS pulls (link, title) pairs out of whichever listing skin
// rendered; article IDs are derived from the link on the Go side.
const extractArticlesJS = `
(() => {
  const anchors = document.querySelectorAll(
    'div.article-board td.td_article a.article,' +
    'ul.article-movie-sub li a.tit,' +
    'div.ArticleList div.inner_list a.article'
  );
  return Array.from(anchors).map(a => ({
    ArticleID: '',
    Title: (a.textContent || '').trim(),
    URL: a.href,
    Status: 'published'
  }));
})()
`

func (c *Client) textOf(query string) string {
	ctx, cancel := context.WithTimeout(c.opts.tabCtx, c.opts.selectorTimeout)
	defer cancel()
	var text string
	if err := chromedp.Run(ctx, chromedp.Text(query, &text, chromedp.ByQuery)); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// articleIDFromURL extracts the trailing article identifier from a cafe
// article URL, tolerating query strings and fragments.
func articleIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	path := strings.TrimSuffix(u.Path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
