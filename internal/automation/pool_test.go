package automation

import (
	"context"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) (*Pool, *profileEntry) {
	t.Helper()
	p, err := NewPool(PoolOptions{
		ProfilesDir:  t.TempDir(),
		ArtifactsDir: t.TempDir(),
		BaseURL:      "https://cafe.example.com",
	})
	require.NoError(t, err)

	// chromedp contexts are lazy; no browser starts until a Run, so a
	// pre-seeded entry lets acquisition bookkeeping run without Chrome.
	browserCtx, cancel := chromedp.NewContext(context.Background())
	t.Cleanup(cancel)
	entry := &profileEntry{
		browserCtx:  browserCtx,
		cancel:      func() {},
		allocCancel: func() {},
	}
	p.profiles["prof-1"] = entry
	return p, entry
}

func TestAcquire_TracksScreenshotTab(t *testing.T) {
	p, entry := newTestPool(t)

	_, release, err := p.Acquire(context.Background(), "prof-1")
	require.NoError(t, err)

	// While the tab is held, captures target it, not the browser root.
	require.NotNil(t, entry.tabCtx)
	assert.Same(t, entry.tabCtx, p.captureTarget(entry))

	release()
	assert.Nil(t, entry.tabCtx)
	assert.Same(t, entry.browserCtx, p.captureTarget(entry))
}

func TestRelease_KeepsNewerTab(t *testing.T) {
	p, entry := newTestPool(t)

	_, releaseFirst, err := p.Acquire(context.Background(), "prof-1")
	require.NoError(t, err)
	firstTab := entry.tabCtx

	_, releaseSecond, err := p.Acquire(context.Background(), "prof-1")
	require.NoError(t, err)
	secondTab := entry.tabCtx
	require.NotSame(t, firstTab, secondTab)

	// Releasing the stale handle must not drop the newer tab.
	releaseFirst()
	assert.Same(t, secondTab, p.captureTarget(entry))

	releaseSecond()
	assert.Same(t, entry.browserCtx, p.captureTarget(entry))
}

func TestAcquire_RequiresProfileID(t *testing.T) {
	p, _ := newTestPool(t)

	_, _, err := p.Acquire(context.Background(), "")
	require.Error(t, err)
}
