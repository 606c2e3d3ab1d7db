package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dbradf/evg-patch-history/pkg/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOut_PreservesInputOrder(t *testing.T) {
	resolver := newFakeResolver()
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%02d", i)
		resolver.details[ids[i]] = detailWith(ids[i], nil)
	}
	resolver.delay = time.Millisecond

	results := NewFanOut(resolver, 0, testOptions()...).Resolve(context.Background(), ids)

	require.Len(t, results, len(ids))
	for i, r := range results {
		assert.Equal(t, ids[i], r.ID)
		require.NoError(t, r.Err)
		assert.Equal(t, ids[i], r.Detail.ID)
	}
}

func TestFanOut_Limit(t *testing.T) {
	resolver := newFakeResolver()
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
		resolver.details[ids[i]] = detailWith(ids[i], nil)
	}
	resolver.delay = 5 * time.Millisecond

	NewFanOut(resolver, 3, testOptions()...).Resolve(context.Background(), ids)

	assert.LessOrEqual(t, resolver.maxSeen.Load(), int32(3))
	assert.Len(t, resolver.Calls(), len(ids))
}

func TestFanOut_FailureIsolation(t *testing.T) {
	resolver := newFakeResolver()
	resolver.details["a"] = detailWith("a", nil)
	resolver.details["c"] = detailWith("c", nil)
	failure := errors.New("lookup failed")
	resolver.failing["b"] = failure
	resolver.panics["d"] = true

	results := NewFanOut(resolver, 0, testOptions()...).Resolve(context.Background(), []string{"a", "b", "c", "d", "e"})

	require.Len(t, results, 5)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, failure)
	assert.Nil(t, results[1].Detail)
	assert.NoError(t, results[2].Err)
	assert.ErrorIs(t, results[3].Err, ErrResolverPanic)
	assert.Nil(t, results[3].Detail)
	assert.Error(t, results[4].Err)
}

func TestFanOut_NilDetail(t *testing.T) {
	resolver := ResolverFunc(func(ctx context.Context, id string) (*patch.Detail, error) {
		return nil, nil
	})

	results := NewFanOut(resolver, 0, testOptions()...).Resolve(context.Background(), []string{"a"})
	assert.ErrorIs(t, results[0].Err, ErrNoDetail)
}

func TestFanOut_IgnoresParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resolver := ResolverFunc(func(ctx context.Context, id string) (*patch.Detail, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return detailWith(id, nil), nil
	})

	results := NewFanOut(resolver, 0, testOptions()...).Resolve(ctx, []string{"a", "b"})
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestFanOut_EmptyBatch(t *testing.T) {
	results := NewFanOut(newFakeResolver(), 0, testOptions()...).Resolve(context.Background(), nil)
	assert.Empty(t, results)
}
