package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueClosureReport = "jobs:closure_report"

	JobClosureReport = "closure_report"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes one job payload. A returned error sends the job to the DLQ;
// handlers retry transient failures themselves before giving up.
type Handler interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// NotifyClosure queues the closure report mail for a freshly closed session.
func (d *Dispatcher) NotifyClosure(ctx context.Context, sessionID uuid.UUID) error {
	return d.enqueue(ctx, QueueClosureReport, JobClosureReport, ClosureReportPayload{SessionID: sessionID})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Pool consumes the job queues with a fixed number of goroutines.
type Pool struct {
	rdb      *redis.Client
	handlers map[string]Handler
	wg       sync.WaitGroup

	// errBackoff is the pause after a failed dequeue other than an empty poll.
	errBackoff time.Duration
}

func NewPool(rdb *redis.Client, handlers map[string]Handler) *Pool {
	return &Pool{rdb: rdb, handlers: handlers, errBackoff: time.Second}
}

// Start launches numWorkers goroutines. Each blocks on BRPOP, so idle workers
// cost nothing. They exit when ctx is cancelled; Wait blocks until they have.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context, id int) {
	queues := []string{QueueClosureReport}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := p.rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || ctx.Err() != nil {
					continue
				}
				log.Warn().Err(err).Int("worker", id).Dur("backoff", p.errBackoff).Msg("worker: dequeue failed")
				select {
				case <-ctx.Done():
				case <-time.After(p.errBackoff):
				}
				continue
			}
			if len(result) < 2 {
				continue
			}
			p.process(ctx, result[0], result[1])
		}
	}
}

func (p *Pool) process(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		// Kept as a JSON string since raw is not valid JSON.
		quoted, _ := json.Marshal(raw)
		park(ctx, p.rdb, newParkedJob(queue, Job{Type: "unknown", Payload: quoted}, "malformed job envelope", 0, time.Now()))
		return
	}
	h, ok := p.handlers[job.Type]
	if !ok {
		log.Error().Str("type", job.Type).Str("queue", queue).Msg("no handler for job type")
		park(ctx, p.rdb, newParkedJob(queue, job, "no handler registered", 0, time.Now()))
		return
	}
	log.Debug().Str("type", job.Type).Str("queue", queue).Msg("processing job")
	if err := h.Process(ctx, job.Payload); err != nil {
		if ctx.Err() != nil {
			// Shutting down: put the job back for the next process.
			_ = p.rdb.RPush(context.WithoutCancel(ctx), queue, raw).Err()
			return
		}
		park(ctx, p.rdb, newParkedJob(queue, job, err.Error(), MaxAttempts, time.Now()))
	}
}
