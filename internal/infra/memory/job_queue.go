package memory

import (
	"context"
	"sync"
	"time"

	"quiz-game-service/internal/app"
)

// JobQueue is a timer-backed implementation of app.JobQueue. Jobs live only
// as long as the process.
type JobQueue struct {
	due chan app.Job

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func NewJobQueue() *JobQueue {
	return &JobQueue{
		due:    make(chan app.Job, 256),
		timers: make(map[*time.Timer]struct{}),
	}
}

func (q *JobQueue) Enqueue(_ context.Context, job app.Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		q.due <- job
	})
	q.timers[timer] = struct{}{}
	return nil
}

// Run handles each due job on its own goroutine until ctx is canceled, then
// waits for running handlers and stops the timers still pending.
func (q *JobQueue) Run(ctx context.Context, handle func(context.Context, app.Job)) error {
	var wg sync.WaitGroup
	defer q.stop()
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q.due:
			wg.Add(1)
			go func() {
				defer wg.Done()
				handle(ctx, job)
			}()
		}
	}
}

// Pending reports how many jobs have not fired yet.
func (q *JobQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

func (q *JobQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for timer := range q.timers {
		timer.Stop()
		delete(q.timers, timer)
	}
}
