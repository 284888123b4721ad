package live

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"qrattend/internal/metrics"
	"qrattend/internal/queue"
)

// Marker is what the consumer updates for every marked check-in.
type Marker interface {
	Mark(ctx context.Context, sessionID, group string) error
}

// Consumer applies queue events to the live counters.
type Consumer struct {
	counter Marker
	log     *zap.Logger
	workers int
}

// NewConsumer creates a consumer running up to workers handlers at once.
func NewConsumer(counter Marker, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{counter: counter, log: log, workers: workers}
}

// Run consumes until ctx is done or the queue closes, then waits for
// in-flight handlers.
func (c *Consumer) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	p := pool.New().WithMaxGoroutines(c.workers)
	for msg := range messages {
		p.Go(func() {
			result := "ok"
			if err := c.Handle(ctx, msg); err != nil {
				result = "error"
				c.log.Error("event handling failed", zap.String("type", msg.Type), zap.Error(err))
			}
			metrics.EventsConsumed.WithLabelValues(msg.Type, result).Inc()
		})
	}
	p.Wait()
	return nil
}

// Handle applies one message. Unknown types are ignored.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeAttendanceMarked {
		c.log.Debug("ignoring event", zap.String("type", msg.Type))
		return nil
	}
	var evt queue.AttendanceMarked
	if err := msg.Decode(&evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	if evt.SessionID == "" {
		return fmt.Errorf("%s without session id", msg.Type)
	}
	if err := c.counter.Mark(ctx, evt.SessionID, evt.Group); err != nil {
		return fmt.Errorf("mark session %s: %w", evt.SessionID, err)
	}
	c.log.Debug("live counter updated",
		zap.String("session_id", evt.SessionID),
		zap.String("record_id", evt.RecordID),
	)
	return nil
}
