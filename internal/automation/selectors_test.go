package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_EveryTargetHasCandidates(t *testing.T) {
	require.NotEmpty(t, registry)
	for target, candidates := range registry {
		assert.NotEmptyf(t, candidates, "target %q has no candidates", target)
		for i, query := range candidates {
			assert.NotEmptyf(t, strings.TrimSpace(query), "target %q candidate %d is blank", target, i)
		}
	}
}

func TestCandidates_ReturnsOrderedList(t *testing.T) {
	got := Candidates(TargetLoginIDField)
	require.NotEmpty(t, got)
	assert.Equal(t, `input#id`, got[0])

	assert.Empty(t, Candidates(Target("no_such_target")))
}

func TestFirstMatch_PriorityOrder(t *testing.T) {
	candidates := []string{"a", "b", "c"}

	var probed []string
	query, ok, err := firstMatch(candidates, func(q string) (bool, error) {
		probed = append(probed, q)
		return q == "b" || q == "c", nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	// Both b and c match; the earlier candidate wins and c is never probed.
	assert.Equal(t, "b", query)
	assert.Equal(t, []string{"a", "b"}, probed)
}

func TestFirstMatch_NoMatch(t *testing.T) {
	_, ok, err := firstMatch([]string{"a", "b"}, func(string) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFirstMatch_ProbeErrorStopsWalk(t *testing.T) {
	boom := errors.New("tab gone")
	var probes int
	_, _, err := firstMatch([]string{"a", "b", "c"}, func(string) (bool, error) {
		probes++
		return false, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, probes)
}

func TestCombinedQuery_JoinsAllCandidates(t *testing.T) {
	combined := combinedQuery(TargetLoginChallenge)
	for _, candidate := range registry[TargetLoginChallenge] {
		assert.Contains(t, combined, candidate)
	}
	assert.Equal(t, len(registry[TargetLoginChallenge])-1, strings.Count(combined, ", "))
}

func TestFindInFrame_SharesOneTimeBudget(t *testing.T) {
	const timeout = 400 * time.Millisecond
	const frameDelay = 250 * time.Millisecond

	var contentDeadline time.Time
	r := &resolver{
		tabCtx: context.Background(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		probe: func(ctx context.Context, query string, root *cdp.Node) (bool, error) {
			if root == nil {
				// Frame lookup, deliberately slow.
				time.Sleep(frameDelay)
				return true, nil
			}
			d, ok := ctx.Deadline()
			require.True(t, ok)
			contentDeadline = d
			return true, nil
		},
		frameNodes: func(ctx context.Context, query string) ([]*cdp.Node, error) {
			return []*cdp.Node{{NodeID: 1}}, nil
		},
	}

	start := time.Now()
	node, query, err := r.findInFrame(FrameEditor, TargetBodyEditor, timeout)
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, registry[TargetBodyEditor][0], query)

	// The content lookup runs inside what is left of the original window,
	// not a fresh full window stacked on top of the frame delay.
	assert.WithinDuration(t, start.Add(timeout), contentDeadline, 100*time.Millisecond)
	assert.True(t, contentDeadline.Before(start.Add(timeout+frameDelay)))
}

func TestFindInFrame_ExhaustedBudgetFailsContentLookup(t *testing.T) {
	const timeout = 150 * time.Millisecond

	var contentProbes int
	r := &resolver{
		tabCtx: context.Background(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		probe: func(ctx context.Context, query string, root *cdp.Node) (bool, error) {
			if root != nil {
				contentProbes++
				return true, nil
			}
			// Frame lookup eats the whole window.
			time.Sleep(timeout + 100*time.Millisecond)
			return true, nil
		},
		frameNodes: func(ctx context.Context, query string) ([]*cdp.Node, error) {
			return []*cdp.Node{{NodeID: 1}}, nil
		},
	}

	_, _, err := r.findInFrame(FrameEditor, TargetBodyEditor, timeout)
	require.ErrorIs(t, err, ErrTargetNotFound)
	assert.Contains(t, err.Error(), string(TargetBodyEditor))
	assert.Zero(t, contentProbes)
}

func TestArticleIDFromURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain path", "https://cafe.example.com/mycafe/articles/12345", "12345"},
		{"trailing slash", "https://cafe.example.com/mycafe/articles/12345/", "12345"},
		{"query string", "https://cafe.example.com/mycafe/articles/987?boardtype=L", "987"},
		{"fragment", "https://cafe.example.com/mycafe/articles/42#comment_3", "42"},
		{"no path segments", "https://cafe.example.com", ""},
		{"unparseable", "://notaurl", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, articleIDFromURL(tt.raw))
		})
	}
}
