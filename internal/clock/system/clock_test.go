package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websum/internal/websum"
)

var (
	_ websum.Clock = Clock{}
	_ websum.Clock = (*Manual)(nil)
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := New().Now()
	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before))
}

func TestManualAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	clk := NewManual(start)
	require.Equal(t, time.UTC, clk.Now().Location())
	require.True(t, clk.Now().Equal(start))

	clk.Advance(90 * time.Second)
	require.True(t, clk.Now().Equal(start.Add(90*time.Second)))
}
