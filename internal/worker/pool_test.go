package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brpopCounter counts BRPOP calls issued by a client.
type brpopCounter struct{ n atomic.Int64 }

func (h *brpopCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *brpopCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "brpop" {
			h.n.Add(1)
		}
		return next(ctx, cmd)
	}
}

func (h *brpopCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestPool_BacksOffWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       "redis.invalid:6379",
		MaxRetries: -1,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})
	t.Cleanup(func() { _ = rdb.Close() })
	counter := &brpopCounter{}
	rdb.AddHook(counter)

	p := NewPool(rdb, nil)
	p.errBackoff = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, 1)
	time.Sleep(450 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	calls := counter.n.Load()
	assert.GreaterOrEqual(t, calls, int64(1))
	assert.LessOrEqual(t, calls, int64(8), "failed dequeues must not spin")
}

func TestNewParkedJob(t *testing.T) {
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.FixedZone("ART", -3*3600))
	sessionID := uuid.New()
	payload, err := json.Marshal(ClosureReportPayload{SessionID: sessionID})
	require.NoError(t, err)

	p := newParkedJob(QueueClosureReport, Job{Type: JobClosureReport, Payload: payload}, "smtp down", MaxAttempts, now)
	require.NotNil(t, p.SessionID)
	assert.Equal(t, sessionID, *p.SessionID)
	assert.Equal(t, MaxAttempts, p.Attempts)
	assert.Equal(t, time.UTC, p.ParkedAt.Location())

	encoded, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"session_id":"`+sessionID.String()+`"`)

	t.Run("other job types carry no session", func(t *testing.T) {
		p := newParkedJob("jobs:other", Job{Type: "other", Payload: payload}, "x", 0, now)
		assert.Nil(t, p.SessionID)
	})

	t.Run("unreadable payload carries no session", func(t *testing.T) {
		quoted, err := json.Marshal("{not json")
		require.NoError(t, err)
		p := newParkedJob(QueueClosureReport, Job{Type: JobClosureReport, Payload: quoted}, "x", 0, now)
		assert.Nil(t, p.SessionID)
		_, err = json.Marshal(p)
		assert.NoError(t, err)
	})
}
