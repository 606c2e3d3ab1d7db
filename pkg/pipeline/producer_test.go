package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/dbradf/evg-patch-history/pkg/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainQueue(t *testing.T, q *Queue) []Message {
	t.Helper()
	var msgs []Message
	for q.Len() > 0 {
		msg, err := q.Receive(context.Background())
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestProducer_Cutoff(t *testing.T) {
	tests := []struct {
		name     string
		lookback time.Duration
		wantIDs  []string
		yielded  int32
	}{
		{name: "one day", lookback: 24 * time.Hour, wantIDs: []string{"a", "b"}, yielded: 3},
		{name: "one week", lookback: 7 * 24 * time.Hour, wantIDs: []string{"a", "b", "c"}, yielded: 4},
		{name: "one minute", lookback: time.Minute, wantIDs: nil, yielded: 1},
		{name: "everything", lookback: 365 * 24 * time.Hour, wantIDs: []string{"a", "b", "c", "d", "e"}, yielded: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{summaries: []patch.Summary{
				summary("a", time.Hour),
				summary("b", 2*time.Hour),
				summary("c", 3*24*time.Hour),
				summary("d", 10*24*time.Hour),
				summary("e", 11*24*time.Hour),
			}}
			q := NewQueue()
			cfg := DefaultConfig("mongo")
			cfg.Lookback = tt.lookback

			sent, err := NewProducer(source, q, cfg, testOptions()...).Run(context.Background(), "mongo")
			require.NoError(t, err)
			assert.Equal(t, len(tt.wantIDs), sent)

			msgs := drainQueue(t, q)
			require.NotEmpty(t, msgs)
			assert.True(t, msgs[len(msgs)-1].IsEnd(), "last message must be End")

			var ids []string
			for _, m := range msgs[:len(msgs)-1] {
				assert.False(t, m.IsEnd())
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)

			// The listing is not read past the first old patch
			assert.Equal(t, tt.yielded, source.yielded.Load())
		})
	}
}

func TestProducer_CutoffIsInclusive(t *testing.T) {
	source := &fakeSource{summaries: []patch.Summary{summary("edge", 24*time.Hour)}}
	q := NewQueue()
	cfg := DefaultConfig("mongo")
	cfg.Lookback = 24 * time.Hour

	sent, err := NewProducer(source, q, cfg, testOptions()...).Run(context.Background(), "mongo")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestProducer_SourceErrorClosesWithoutEnd(t *testing.T) {
	source := &fakeSource{
		summaries: []patch.Summary{summary("a", time.Hour), summary("b", time.Hour)},
		failAfter: 1,
		err:       errListing,
	}
	q := NewQueue()

	sent, err := NewProducer(source, q, DefaultConfig("mongo"), testOptions()...).Run(context.Background(), "mongo")
	require.ErrorIs(t, err, errListing)
	assert.Equal(t, 1, sent)

	msg, err := q.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", msg.ID)

	_, err = q.Receive(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}
