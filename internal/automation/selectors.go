package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Target names one logical UI element of the cafe. Every target maps to an
// ordered candidate list in the registry below; the cafe's markup drifts, so
// flows never hardcode a query inline.
type Target string

const (
	TargetLoginIDField   Target = "login_id_field"
	TargetLoginPWField   Target = "login_pw_field"
	TargetLoginSubmit    Target = "login_submit"
	TargetLoginChallenge Target = "login_challenge"
	TargetLoginError     Target = "login_error"
	TargetProfileMenu    Target = "profile_menu"
	TargetProfileNick    Target = "profile_nickname"
	TargetWriteButton    Target = "write_button"
	TargetTitleField     Target = "title_field"
	TargetBodyEditor     Target = "body_editor"
	TargetImageAttach    Target = "image_attach"
	TargetTradePrice     Target = "trade_price"
	TargetTradeProduct   Target = "trade_product"
	TargetPostSubmit     Target = "post_submit"
	TargetPostedLink     Target = "posted_link"
	TargetArticleRows    Target = "article_rows"

	// FrameEditor is the candidate list for the rich-text editor iframe.
	FrameEditor Target = "frame_editor"
)

// registry is the ordered candidate table per target, highest priority first.
// Candidates are structural CSS queries; the first that matches wins.
var registry = map[Target][]string{
	TargetLoginIDField: {
		`input#id`,
		`input[name="id"]`,
		`form#frmNIDLogin input[type="text"]`,
	},
	TargetLoginPWField: {
		`input#pw`,
		`input[name="pw"]`,
		`form#frmNIDLogin input[type="password"]`,
	},
	TargetLoginSubmit: {
		`button#log\.login`,
		`button[type="submit"].btn_login`,
		`form#frmNIDLogin button[type="submit"]`,
	},
	TargetLoginChallenge: {
		`img#captchaimg`,
		`div#captcha_wrap`,
		`div.device_verification`,
		`input[name="otp"]`,
	},
	TargetLoginError: {
		`div.error_message`,
		`div#err_common`,
	},
	TargetProfileMenu: {
		`div#gnb_my_layer`,
		`a.gnb_my`,
		`button[data-clk="gnb.my"]`,
	},
	TargetProfileNick: {
		`div#gnb_my_layer span.nickname`,
		`div.profile_area strong.nick`,
		`span.gnb_nick`,
	},
	TargetWriteButton: {
		`a.cafe-write-btn`,
		`a[href*="articles/write"]`,
		`button.BaseButton--skinGreen[data-action="write"]`,
	},
	TargetTitleField: {
		`textarea.textarea_input`,
		`input.article_input[name="subject"]`,
		`div.WritingHeader textarea`,
	},
	TargetBodyEditor: {
		`div.article_viewer[contenteditable="true"]`,
		`div.se-content`,
		`body#smartEditor`,
	},
	TargetImageAttach: {
		`input[type="file"][accept*="image"]`,
		`button.se-image-toolbar-button`,
		`a.attach_photo`,
	},
	TargetTradePrice: {
		`input[name="price"]`,
		`input.TradePrice__input`,
	},
	TargetTradeProduct: {
		`input[name="productName"]`,
		`input.TradeName__input`,
	},
	TargetPostSubmit: {
		`a.BaseButton--skinGreen[data-action="submit"]`,
		`button.btn_register`,
		`a.btn_write_complete`,
	},
	TargetPostedLink: {
		`a.link_article_url`,
		`div.ArticleTitle a[href*="articles/"]`,
	},
	TargetArticleRows: {
		`div.article-board tr[align="center"]`,
		`ul.article-movie-sub li`,
		`div.ArticleList div.inner_list`,
	},
	FrameEditor: {
		`iframe#cafe_main`,
		`iframe.se-editor-frame`,
		`iframe[name="mainFrame"]`,
	},
}

// ErrTargetNotFound is returned when no candidate matched within the timeout.
var ErrTargetNotFound = errors.New("no selector candidate matched")

// Candidates returns the ordered candidate list of a target.
func Candidates(target Target) []string {
	return registry[target]
}

// combinedQuery joins all candidates into one CSS OR-group so a single wait
// can cover the whole list.
func combinedQuery(target Target) string {
	return strings.Join(registry[target], ", ")
}

// firstMatch walks the candidate list in priority order and returns the first
// query the probe reports present. Split out from the polling loop so the
// priority rule is testable without a browser.
func firstMatch(candidates []string, present func(query string) (bool, error)) (string, bool, error) {
	for _, query := range candidates {
		ok, err := present(query)
		if err != nil {
			return "", false, err
		}
		if ok {
			return query, true, nil
		}
	}
	return "", false, nil
}

const pollInterval = 250 * time.Millisecond

// resolver runs selector resolution against one tab context.
type resolver struct {
	tabCtx context.Context
	logger *slog.Logger

	// probe and frameNodes override the live DOM calls in tests;
	// nil means chromedp.
	probe      func(ctx context.Context, query string, root *cdp.Node) (bool, error)
	frameNodes func(ctx context.Context, query string) ([]*cdp.Node, error)
}

// present checks whether a query currently matches, scoped to root when non-nil.
func (r *resolver) present(ctx context.Context, query string, root *cdp.Node) (bool, error) {
	if r.probe != nil {
		return r.probe(ctx, query, root)
	}
	var nodes []*cdp.Node
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if root != nil {
		opts = append(opts, chromedp.FromNode(root))
	}
	if err := chromedp.Run(ctx, chromedp.Nodes(query, &nodes, opts...)); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// findElement polls until the timeout elapses, trying every candidate in
// priority order each pass, and returns the first matching query.
func (r *resolver) findElement(target Target, timeout time.Duration) (string, error) {
	return r.findElementIn(target, timeout, nil)
}

func (r *resolver) findElementIn(target Target, timeout time.Duration, root *cdp.Node) (string, error) {
	candidates := registry[target]
	if len(candidates) == 0 {
		return "", fmt.Errorf("no candidates registered for target %q", target)
	}

	ctx, cancel := context.WithTimeout(r.tabCtx, timeout)
	defer cancel()

	for {
		query, ok, err := firstMatch(candidates, func(q string) (bool, error) {
			return r.present(ctx, q, root)
		})
		if ok {
			return query, nil
		}
		if err != nil && ctx.Err() == nil {
			return "", fmt.Errorf("probe target %q: %w", target, err)
		}

		select {
		case <-ctx.Done():
			r.logger.WarnContext(r.tabCtx, "selector target not found",
				"target", target, "timeout", timeout, "candidates", candidates)
			return "", fmt.Errorf("%w: target %q", ErrTargetNotFound, target)
		case <-time.After(pollInterval):
		}
	}
}

// probeOnce runs one non-blocking pass over the candidates, without the
// not-found logging of findElement. Used by outcome-polling loops.
func (r *resolver) probeOnce(target Target) (string, bool, error) {
	ctx, cancel := context.WithTimeout(r.tabCtx, 2*time.Second)
	defer cancel()
	return firstMatch(registry[target], func(q string) (bool, error) {
		return r.present(ctx, q, nil)
	})
}

// waitForAny blocks on the logical OR of all candidates with a single
// combined wait, then resolves the specific match. Used where the UI is
// expected to be slow and busy-polling would waste the window.
func (r *resolver) waitForAny(target Target, timeout time.Duration) (string, error) {
	candidates := registry[target]
	if len(candidates) == 0 {
		return "", fmt.Errorf("no candidates registered for target %q", target)
	}

	ctx, cancel := context.WithTimeout(r.tabCtx, timeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.WaitReady(combinedQuery(target), chromedp.ByQuery)); err != nil {
		r.logger.WarnContext(r.tabCtx, "selector target not found",
			"target", target, "timeout", timeout, "candidates", candidates)
		return "", fmt.Errorf("%w: target %q", ErrTargetNotFound, target)
	}

	// The combined wait fired; one non-blocking pass picks the priority match.
	query, ok, err := firstMatch(candidates, func(q string) (bool, error) {
		return r.present(ctx, q, nil)
	})
	if err != nil {
		return "", fmt.Errorf("resolve target %q after wait: %w", target, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: target %q", ErrTargetNotFound, target)
	}
	return query, nil
}

func (r *resolver) resolveNodes(ctx context.Context, query string) ([]*cdp.Node, error) {
	if r.frameNodes != nil {
		return r.frameNodes(ctx, query)
	}
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(query, &nodes, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return nodes, nil
}

// findInFrame resolves a candidate frame first, then content selectors inside
// it. Both lookups share one time budget; the content lookup only gets what
// the frame lookup left over, so the caller never waits two full windows.
func (r *resolver) findInFrame(frame, target Target, timeout time.Duration) (*cdp.Node, string, error) {
	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(r.tabCtx, deadline)
	defer cancel()

	frameQuery, err := r.findElement(frame, timeout)
	if err != nil {
		return nil, "", err
	}

	frames, err := r.resolveNodes(ctx, frameQuery)
	if err != nil {
		return nil, "", fmt.Errorf("resolve frame %q: %w", frame, err)
	}
	if len(frames) == 0 {
		return nil, "", fmt.Errorf("%w: frame %q", ErrTargetNotFound, frame)
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, "", fmt.Errorf("%w: target %q", ErrTargetNotFound, target)
	}
	query, err := r.findElementIn(target, remaining, frames[0])
	if err != nil {
		return nil, "", err
	}
	return frames[0], query, nil
}
