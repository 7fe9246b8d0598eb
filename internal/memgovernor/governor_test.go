package memgovernor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsLimitBelowAvailable(t *testing.T) {
	g, err := New()
	require.NoError(t, err)
	avail, err := availableMemoryBytes()
	require.NoError(t, err)
	assert.Less(t, g.Limit(), avail)
	assert.Greater(t, g.Limit(), int64(0))
}

func TestThrottleIfNeededReturnsImmediatelyWhenUnderLimit(t *testing.T) {
	g := &Governor{rssLimit: 1 << 62} // effectively unreachable
	require.NoError(t, g.ThrottleIfNeeded(context.Background()))
}

func TestThrottleIfNeededHonorsCancellation(t *testing.T) {
	g := &Governor{rssLimit: 0} // always "over"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.ThrottleIfNeeded(ctx)
	require.Error(t, err)
}
