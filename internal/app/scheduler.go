package app

import (
	"context"
	"fmt"
	"log"
	"time"
)

// TransitionScheduler enqueues the timed phase advances of a game. It holds no
// state of its own: a job that fires for a task that is no longer current is
// dropped by the handler, which is the only way jobs are ever canceled.
type TransitionScheduler struct {
	queue JobQueue
}

func NewTransitionScheduler(queue JobQueue) *TransitionScheduler {
	return &TransitionScheduler{queue: queue}
}

// Schedule fires job after delay. Negative delays fire immediately.
func (s *TransitionScheduler) Schedule(ctx context.Context, job Job, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	if err := s.queue.Enqueue(ctx, job, delay); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Key(), err)
	}
	return nil
}

// Run consumes due jobs until ctx is canceled.
func (s *TransitionScheduler) Run(ctx context.Context, handle func(context.Context, Job)) error {
	log.Printf("transition scheduler started")
	defer log.Printf("transition scheduler stopped")
	return s.queue.Run(ctx, handle)
}
