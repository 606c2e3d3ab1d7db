package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	before := time.Now()
	e := NewEntry([]byte(`{"id":"p1"}`), 24*time.Hour)

	assert.False(t, e.CachedAt.Before(before))
	assert.Equal(t, 24*time.Hour, e.Expires.Sub(e.CachedAt))
	assert.False(t, e.IsExpired())
}

func TestEntry_Expiry(t *testing.T) {
	cases := map[string]struct {
		offset  time.Duration
		expired bool
	}{
		"a day left":    {24 * time.Hour, false},
		"a minute left": {time.Minute, false},
		"a second ago":  {-time.Second, true},
		"last week":     {-7 * 24 * time.Hour, true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := &Entry{Expires: time.Now().Add(tc.offset)}

			assert.Equal(t, tc.expired, e.IsExpired())
			if tc.expired {
				assert.Zero(t, e.TTL())
				return
			}
			assert.Greater(t, e.TTL(), time.Duration(0))
			assert.LessOrEqual(t, e.TTL(), tc.offset)
		})
	}
}

func TestEntry_JSONKeepsPayloadBytes(t *testing.T) {
	payload := []byte(`{"variants":[{"name":"linux","tasks":["compile"]}]}`)
	in := NewEntry(payload, time.Hour)

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out Entry
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, payload, out.Data)
	assert.True(t, out.Expires.Equal(in.Expires))
}
