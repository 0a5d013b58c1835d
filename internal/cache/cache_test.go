package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketStructure/internal/model"
)

var testBars = []model.Bar{
	{Time: time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100, Timeframe: model.TF1m},
}

func TestKey(t *testing.T) {
	from := time.Unix(1709562600, 0)
	to := from.Add(5 * time.Hour)
	assert.Equal(t, "bars:SPY:5m:2024-03-04:1709562600-1709580600", Key("SPY", model.TF5m, "2024-03-04", from, to))
	assert.NotEqual(t, Key("SPY", model.TF5m, "2024-03-04", from, to), Key("SPY", model.TF5m, "2024-03-04", from.AddDate(0, 0, -7), to))
}

func TestMemory_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", testBars))
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testBars, got)

	now = now.Add(59 * time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory(time.Minute, nil)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", testBars))
	got, _, _ := m.Get(ctx, "k")
	got[0].Close = 999
	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, 1.5, again[0].Close)
}

func TestRedis_GetSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRedisWithClient(db, 30*time.Second)
	ctx := context.Background()

	data, err := json.Marshal(testBars)
	require.NoError(t, err)

	t.Run("set", func(t *testing.T) {
		mock.ExpectSet("k", string(data), 30*time.Second).SetVal("OK")
		require.NoError(t, r.Set(ctx, "k", testBars))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("k").SetVal(string(data))
		got, ok, err := r.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, got, 1)
		assert.True(t, testBars[0].Time.Equal(got[0].Time))
		assert.Equal(t, testBars[0].Close, got[0].Close)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("missing").RedisNil()
		got, ok, err := r.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error", func(t *testing.T) {
		mock.ExpectGet("boom").SetErr(errors.New("connection refused"))
		_, _, err := r.Get(ctx, "boom")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
