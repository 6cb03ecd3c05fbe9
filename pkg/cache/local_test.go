package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCacheJSON(t *testing.T) {
	ctx := context.Background()
	lc, err := NewLocal(ctx, time.Minute)
	require.NoError(t, err)
	defer lc.Close()

	type entry struct {
		Vol float64 `json:"vol"`
	}

	var got entry
	hit, err := lc.GetJSON(ctx, "vol:implied:SPX", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, lc.SetJSON(ctx, "vol:implied:SPX", entry{Vol: 0.21}, 0))
	hit, err = lc.GetJSON(ctx, "vol:implied:SPX", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 0.21, got.Vol)

	require.NoError(t, lc.Delete(ctx, "vol:implied:SPX", "missing"))
	hit, err = lc.GetJSON(ctx, "vol:implied:SPX", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
