package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 5*time.Minute))
	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", string(v))

	now = now.Add(5*time.Minute + time.Second)
	_, found, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	type entry struct {
		Multiplier float64 `json:"multiplier"`
	}
	require.NoError(t, SetJSON(ctx, s, "vol:m1", entry{Multiplier: 0.75}, 0))

	var got entry
	found, err := GetJSON(ctx, s, "vol:m1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0.75, got.Multiplier)

	found, err = GetJSON(ctx, s, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
