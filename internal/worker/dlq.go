package worker

// Jobs that fail for good are parked on dlq:{queue}, newest first, until an
// operator looks at them. The list keeps at most maxParked entries.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	parkedPrefix = "dlq:"
	maxParked    = 500
)

// ParkedJob is a job that will not be retried automatically.
type ParkedJob struct {
	Queue     string          `json:"queue"`
	Type      string          `json:"type"`
	SessionID *uuid.UUID      `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Cause     string          `json:"cause"`
	Attempts  int             `json:"attempts"`
	ParkedAt  time.Time       `json:"parked_at"`
}

func parkedKey(queue string) string { return parkedPrefix + queue }

// newParkedJob lifts the session id out of closure report payloads so a
// failed report can be traced to its shift without decoding the payload.
func newParkedJob(queue string, job Job, cause string, attempts int, now time.Time) ParkedJob {
	p := ParkedJob{
		Queue:    queue,
		Type:     job.Type,
		Payload:  job.Payload,
		Cause:    cause,
		Attempts: attempts,
		ParkedAt: now.UTC(),
	}
	if job.Type == JobClosureReport {
		var payload ClosureReportPayload
		if json.Unmarshal(job.Payload, &payload) == nil && payload.SessionID != uuid.Nil {
			id := payload.SessionID
			p.SessionID = &id
		}
	}
	return p
}

// park stores entry. The write ignores ctx cancellation so a job failing
// during shutdown is still recorded.
func park(ctx context.Context, rdb *redis.Client, entry ParkedJob) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("queue", entry.Queue).Msg("dlq: failed to encode parked job")
		return
	}
	key := parkedKey(entry.Queue)
	ctx = context.WithoutCancel(ctx)
	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, maxParked-1)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("dlq_key", key).Msg("dlq: failed to park job")
		return
	}

	ev := log.Warn().
		Str("queue", entry.Queue).
		Str("job_type", entry.Type).
		Str("cause", entry.Cause).
		Int("attempts", entry.Attempts)
	if entry.SessionID != nil {
		ev = ev.Str("session_id", entry.SessionID.String())
	}
	ev.Msg("dlq: job parked")
}

// ParkedCount returns how many jobs are parked for queue; reported by /health.
func ParkedCount(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, parkedKey(queue)).Result()
}

// RecentParked returns up to n parked jobs for queue, newest first.
func RecentParked(ctx context.Context, rdb *redis.Client, queue string, n int64) ([]ParkedJob, error) {
	if n <= 0 {
		return nil, nil
	}
	raws, err := rdb.LRange(ctx, parkedKey(queue), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ParkedJob, 0, len(raws))
	for _, raw := range raws {
		var p ParkedJob
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
