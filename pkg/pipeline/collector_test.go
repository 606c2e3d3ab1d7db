package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/dbradf/evg-patch-history/pkg/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCollector(t *testing.T, n, batchSize int) (CollectorStats, *Sink, *fakeResolver) {
	t.Helper()

	resolver := newFakeResolver()
	q := NewQueue()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%03d", i)
		resolver.details[id] = detailWith(id, nil, patch.VariantTasks{Name: "linux", Tasks: []string{"t"}})
		require.NoError(t, q.Send(Item(id)))
	}
	require.NoError(t, q.Send(End()))

	cfg := DefaultConfig("mongo")
	cfg.BatchSize = batchSize
	sink := NewSink()
	fanout := NewFanOut(resolver, batchSize, testOptions()...)

	stats, err := NewCollector(q, fanout, sink, cfg, testOptions()...).Run(context.Background())
	require.NoError(t, err)
	return stats, sink, resolver
}

func TestCollector_RoundCount(t *testing.T) {
	tests := []struct {
		n, batchSize, wantRounds int
	}{
		{n: 0, batchSize: 50, wantRounds: 0},
		{n: 1, batchSize: 50, wantRounds: 1},
		{n: 49, batchSize: 50, wantRounds: 1},
		{n: 50, batchSize: 50, wantRounds: 1},
		{n: 51, batchSize: 50, wantRounds: 2},
		{n: 120, batchSize: 50, wantRounds: 3},
		{n: 7, batchSize: 1, wantRounds: 7},
		{n: 6, batchSize: 3, wantRounds: 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/b=%d", tt.n, tt.batchSize), func(t *testing.T) {
			stats, sink, resolver := runCollector(t, tt.n, tt.batchSize)

			assert.Equal(t, tt.wantRounds, stats.Rounds)
			assert.Equal(t, tt.n, stats.Resolved)
			assert.Equal(t, tt.n, stats.Records)
			assert.Equal(t, tt.n, sink.Len())
			assert.Len(t, resolver.Calls(), tt.n)
			assert.LessOrEqual(t, int(resolver.maxSeen.Load()), tt.batchSize)
		})
	}
}

func TestCollector_RecordsKeepArrivalOrder(t *testing.T) {
	_, sink, _ := runCollector(t, 23, 5)

	ids := recordIDs(sink.Records())
	require.Len(t, ids, 23)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("p%03d", i), id)
	}
}

func TestCollector_ClosedQueueFails(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Send(Item("a")))
	q.Close()

	resolver := newFakeResolver()
	resolver.details["a"] = detailWith("a", nil)

	cfg := DefaultConfig("mongo")
	_, err := NewCollector(q, NewFanOut(resolver, 0, testOptions()...), NewSink(), cfg, testOptions()...).Run(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestCollector_RejectsZeroBatchSize(t *testing.T) {
	cfg := DefaultConfig("mongo")
	cfg.BatchSize = 0

	_, err := NewCollector(NewQueue(), NewFanOut(newFakeResolver(), 0), NewSink(), cfg, testOptions()...).Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCollector_NoRoundAfterCancel(t *testing.T) {
	resolver := newFakeResolver()
	q := NewQueue()
	for i := 0; i < 9; i++ {
		id := fmt.Sprintf("p%d", i)
		resolver.details[id] = detailWith(id, nil)
		require.NoError(t, q.Send(Item(id)))
	}
	require.NoError(t, q.Send(End()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig("mongo")
	cfg.BatchSize = 3
	sink := NewSink()

	stats, err := NewCollector(q, NewFanOut(resolver, 0, testOptions()...), sink, cfg, testOptions()...).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stats.Rounds)
	assert.Empty(t, resolver.Calls())
	assert.Equal(t, 0, sink.Len())
}
