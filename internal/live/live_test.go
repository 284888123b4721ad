package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_MarkAndRead(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()
	c := NewCounter(client)

	require.NoError(t, c.Mark(ctx, "s-1", "CSE"))
	require.NoError(t, c.Mark(ctx, "s-1", "CSE"))
	require.NoError(t, c.Mark(ctx, "s-1", "ECE"))
	require.NoError(t, c.Mark(ctx, "s-1", ""))
	require.NoError(t, c.Mark(ctx, "s-2", "CSE"))

	counts, err := c.Read(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts.Present)
	assert.Equal(t, map[string]int64{"CSE": 2, "ECE": 1}, counts.ByGroup)

	assert.Equal(t, TTL, mr.TTL(Key("s-1")))

	mr.FastForward(TTL + time.Second)
	counts, err = c.Read(ctx, "s-1")
	require.NoError(t, err)
	assert.Zero(t, counts.Present, "counters expire")
	assert.Empty(t, counts.ByGroup)
}

func TestCounter_ReadError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectHGetAll(Key("s-1")).SetErr(errors.New("connection refused"))

	_, err := NewCounter(client).Read(context.Background(), "s-1")
	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounter_ReadIgnoresGarbage(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectHGetAll(Key("s-1")).SetVal(map[string]string{
		"present":   "3",
		"group:CSE": "3",
		"group:ECE": "not-a-number",
		"other":     "9",
	})

	counts, err := NewCounter(client).Read(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Present)
	assert.Equal(t, map[string]int64{"CSE": 3}, counts.ByGroup)
}
