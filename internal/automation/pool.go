// Package automation is the browser access layer: a pool of persistent
// chromedp profiles plus the resilient selector resolution and the
// cafe-specific flows built on top of them.
package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/cafeworks/postbot/internal/core"
)

// PoolOptions configures the profile pool.
type PoolOptions struct {
	// ProfilesDir is the root under which each profile keeps its user data
	// directory and cookies snapshot.
	ProfilesDir string
	// ArtifactsDir receives diagnostic screenshots.
	ArtifactsDir string
	// BaseURL is the cafe origin all flows navigate against.
	BaseURL string
	// Headless toggles headless Chrome. Manual-intervention login waits need
	// a headed browser, so workers that serve init_session run headed.
	Headless bool
	// NavTimeout bounds every navigation; defaults to 30s.
	NavTimeout time.Duration
	// SelectorTimeout bounds every selector wait; defaults to 10s.
	SelectorTimeout time.Duration
	Logger          *slog.Logger
}

type profileEntry struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	// tabCtx is the most recently acquired tab, nil between acquisitions.
	// Guarded by the pool mutex.
	tabCtx context.Context
}

// Pool implements core.AutomationPool. One browser per profile, created
// lazily and cached for the process lifetime; callers get a transient tab
// context per acquisition and must release it on every exit path.
type Pool struct {
	opts   PoolOptions
	logger *slog.Logger

	mu       sync.Mutex
	profiles map[string]*profileEntry
	closed   bool
}

// NewPool creates an empty profile pool. Browsers launch on first Acquire.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.ProfilesDir == "" {
		return nil, errors.New("profiles dir is required")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.SelectorTimeout <= 0 {
		opts.SelectorTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		opts:     opts,
		logger:   logger.With("component", "automation_pool"),
		profiles: make(map[string]*profileEntry),
	}, nil
}

// Acquire returns a client bound to the profile's browser plus a release func.
// Release disposes only the transient tab handle; the profile's browser and
// on-disk store stay alive until CloseProfile/CloseAll.
func (p *Pool) Acquire(ctx context.Context, profileID string) (core.AutomationClient, func(), error) {
	entry, err := p.getOrCreate(ctx, profileID)
	if err != nil {
		return nil, nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(entry.browserCtx)
	p.mu.Lock()
	entry.tabCtx = tabCtx
	p.mu.Unlock()

	release := func() {
		p.mu.Lock()
		// A later acquisition may have replaced the tracked tab already.
		if entry.tabCtx == tabCtx {
			entry.tabCtx = nil
		}
		p.mu.Unlock()
		tabCancel()
	}

	client := newClient(clientOptions{
		tabCtx:          tabCtx,
		profileID:       profileID,
		baseURL:         p.opts.BaseURL,
		navTimeout:      p.opts.NavTimeout,
		selectorTimeout: p.opts.SelectorTimeout,
		logger:          p.logger,
	})
	return client, release, nil
}

func (p *Pool) getOrCreate(ctx context.Context, profileID string) (*profileEntry, error) {
	if profileID == "" {
		return nil, errors.New("profile id is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("automation pool is closed")
	}
	if entry, ok := p.profiles[profileID]; ok {
		return entry, nil
	}

	entry, err := p.launchProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	p.profiles[profileID] = entry
	return entry, nil
}

func (p *Pool) launchProfile(ctx context.Context, profileID string) (*profileEntry, error) {
	userDataDir := filepath.Join(p.opts.ProfilesDir, profileID)
	if err := os.MkdirAll(userDataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserDataDir(userDataDir),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Startup probe bounded by the navigation timeout.
	probeCtx, probeCancel := context.WithTimeout(browserCtx, p.opts.NavTimeout)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser for profile %s: %w", profileID, err)
	}

	entry := &profileEntry{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      browserCancel,
	}

	if err := p.restoreCookies(probeCtx, profileID); err != nil {
		// A missing or stale snapshot means a fresh session, not a failure.
		p.logger.WarnContext(ctx, "restore profile storage state failed, starting fresh",
			"profile_id", profileID, "error", err)
	}

	p.logger.InfoContext(ctx, "profile browser launched",
		"profile_id", profileID, "user_data_dir", userDataDir, "headless", p.opts.Headless)
	return entry, nil
}

// cookieSnapshot is the serialized storage state written per profile.
type cookieSnapshot struct {
	SavedAt time.Time         `json:"saved_at"`
	Cookies []*network.Cookie `json:"cookies"`
}

func (p *Pool) snapshotPath(profileID string) string {
	return filepath.Join(p.opts.ProfilesDir, profileID, "storage_state.json")
}

func (p *Pool) restoreCookies(ctx context.Context, profileID string) error {
	raw, err := os.ReadFile(p.snapshotPath(profileID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read storage state: %w", err)
	}

	var snap cookieSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode storage state: %w", err)
	}

	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range snap.Cookies {
			setCookie := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.Expires > 0 {
				expires := cdpTimeSinceEpoch(c.Expires)
				setCookie = setCookie.WithExpires(&expires)
			}
			if err := setCookie.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// SaveProfile serializes the profile's current cookies to its storage state file.
func (p *Pool) SaveProfile(ctx context.Context, profileID string) error {
	entry, err := p.lookup(profileID)
	if err != nil {
		return err
	}

	saveCtx, cancel := context.WithTimeout(entry.browserCtx, p.opts.NavTimeout)
	defer cancel()

	var cookies []*network.Cookie
	err = chromedp.Run(saveCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var getErr error
		cookies, getErr = network.GetCookies().Do(ctx)
		return getErr
	}))
	if err != nil {
		return fmt.Errorf("read cookies for profile %s: %w", profileID, err)
	}

	raw, err := json.MarshalIndent(cookieSnapshot{SavedAt: time.Now().UTC(), Cookies: cookies}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage state: %w", err)
	}
	if err := os.WriteFile(p.snapshotPath(profileID), raw, 0o600); err != nil {
		return fmt.Errorf("write storage state: %w", err)
	}
	return nil
}

// Screenshot captures the profile's most recently acquired tab, where the
// flows navigate, to a timestamped artifact and returns the file path. With
// no tab held it falls back to the browser's root target.
func (p *Pool) Screenshot(ctx context.Context, profileID, label string) (string, error) {
	entry, err := p.lookup(profileID)
	if err != nil {
		return "", err
	}
	if p.opts.ArtifactsDir == "" {
		return "", errors.New("artifacts dir is not configured")
	}
	if err := os.MkdirAll(p.opts.ArtifactsDir, 0o700); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}

	shotCtx, cancel := context.WithTimeout(p.captureTarget(entry), p.opts.NavTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("capture screenshot for profile %s: %w", profileID, err)
	}

	// A uuid suffix keeps same-second captures for one profile distinct.
	name := fmt.Sprintf("%s_%s_%s_%s.png",
		profileID, label, time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	path := filepath.Join(p.opts.ArtifactsDir, name)
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// CloseProfile saves then disposes and evicts one profile.
func (p *Pool) CloseProfile(ctx context.Context, profileID string) error {
	if err := p.SaveProfile(ctx, profileID); err != nil {
		p.logger.WarnContext(ctx, "save profile before close failed", "profile_id", profileID, "error", err)
	}

	p.mu.Lock()
	entry, ok := p.profiles[profileID]
	delete(p.profiles, profileID)
	p.mu.Unlock()
	if !ok {
		return nil
	}

	entry.cancel()
	entry.allocCancel()
	p.logger.InfoContext(ctx, "profile browser closed", "profile_id", profileID)
	return nil
}

// CloseAll saves and disposes every cached profile and shuts the pool down.
func (p *Pool) CloseAll(ctx context.Context) error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.profiles))
	for id := range p.profiles {
		ids = append(ids, id)
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := p.CloseProfile(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("close profile %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// cdpTimeSinceEpoch converts the cookie expiry (seconds since epoch) to the
// CDP wire representation.
func cdpTimeSinceEpoch(sec float64) cdp.TimeSinceEpoch {
	return cdp.TimeSinceEpoch(time.Unix(int64(sec), 0))
}

// captureTarget picks the context a screenshot should run against: the
// profile's open tab when one is held, else the browser root.
func (p *Pool) captureTarget(entry *profileEntry) context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry.tabCtx != nil {
		return entry.tabCtx
	}
	return entry.browserCtx
}

func (p *Pool) lookup(profileID string) (*profileEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.profiles[profileID]
	if !ok {
		return nil, fmt.Errorf("profile %s is not open", profileID)
	}
	return entry, nil
}
