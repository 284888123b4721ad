// Package live keeps per-session attendance counters in Redis for the
// teacher's live view.
package live

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL bounds how long a session's counters outlive its last check-in.
const TTL = 24 * time.Hour

const (
	fieldPresent = "present"
	groupPrefix  = "group:"
)

// Counts is the live tally of one session.
type Counts struct {
	SessionID string           `json:"sessionId"`
	Present   int64            `json:"present"`
	ByGroup   map[string]int64 `json:"byGroup"`
}

// Counter increments and reads the counters.
type Counter struct {
	client *redis.Client
}

// NewCounter creates a counter.
func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// Key is the Redis hash holding a session's counters.
func Key(sessionID string) string {
	return "live:session:" + sessionID
}

// Mark counts one check-in. Group may be empty.
func (c *Counter) Mark(ctx context.Context, sessionID, group string) error {
	key := Key(sessionID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldPresent, 1)
		if group != "" {
			pipe.HIncrBy(ctx, key, groupPrefix+group, 1)
		}
		pipe.Expire(ctx, key, TTL)
		return nil
	})
	return err
}

// Read returns the counters for a session. A session nobody checked into
// reads as zero.
func (c *Counter) Read(ctx context.Context, sessionID string) (Counts, error) {
	fields, err := c.client.HGetAll(ctx, Key(sessionID)).Result()
	if err != nil {
		return Counts{}, err
	}
	out := Counts{SessionID: sessionID, ByGroup: map[string]int64{}}
	for k, v := range fields {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case k == fieldPresent:
			out.Present = n
		case strings.HasPrefix(k, groupPrefix):
			out.ByGroup[strings.TrimPrefix(k, groupPrefix)] = n
		}
	}
	return out, nil
}
