package live

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qrattend/internal/queue"
)

func marked(t *testing.T, sessionID, group string) queue.Message {
	t.Helper()
	msg, err := queue.NewMessage(queue.TypeAttendanceMarked, queue.AttendanceMarked{
		RecordID:  "r-" + group,
		SessionID: sessionID,
		Group:     group,
		MarkedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return msg
}

func TestConsumer_Handle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	counter := NewCounter(client)
	c := NewConsumer(counter, 1, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, marked(t, "s-1", "CSE")))
	require.NoError(t, c.Handle(ctx, queue.Message{Type: "something.else"}))

	err := c.Handle(ctx, queue.Message{Type: queue.TypeAttendanceMarked, Body: json.RawMessage(`{"recordId":"r"}`)})
	assert.ErrorContains(t, err, "without session id")

	err = c.Handle(ctx, queue.Message{Type: queue.TypeAttendanceMarked, Body: json.RawMessage(`[`)})
	assert.Error(t, err)

	counts, err := counter.Read(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Present)
}

func TestConsumer_RunDrainsQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	counter := NewCounter(client)

	q := queue.NewInMemory(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, g := range []string{"CSE", "CSE", "ECE", "CSE"} {
		require.NoError(t, q.Publish(ctx, marked(t, "s-1", g)))
	}

	done := make(chan error, 1)
	go func() { done <- NewConsumer(counter, 3, zaptest.NewLogger(t)).Run(ctx, q) }()

	require.Eventually(t, func() bool {
		counts, err := counter.Read(context.Background(), "s-1")
		return err == nil && counts.Present == 4
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	counts, err := counter.Read(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"CSE": 3, "ECE": 1}, counts.ByGroup)
}
