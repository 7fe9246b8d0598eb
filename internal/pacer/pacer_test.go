package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnthrottledPacerNeverBlocks(t *testing.T) {
	p := New(0, 1024)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.RequestTrafficAllocation(ctx, 10*1024*1024))
	assert.Equal(t, int64(10*1024*1024), p.TotalTraffic())
}

func TestPacerRejectsOversizedRequest(t *testing.T) {
	p := New(1024, 1024)
	defer p.Close()

	err := p.RequestTrafficAllocation(context.Background(), 2048)
	require.Error(t, err)
}

func TestPacerEventuallyAdmitsWithinBudget(t *testing.T) {
	p := New(1024*1024, 1024)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.RequestTrafficAllocation(ctx, 512*1024))
}
