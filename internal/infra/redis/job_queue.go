package redis

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-game-service/internal/app"
)

const jobsKey = "game:jobs"

// JobQueue is a Redis sorted set of jobs scored by the time they fire. Every
// instance polls it; ZREM decides which one runs a job.
type JobQueue struct {
	client   *redis.Client
	interval time.Duration
	batch    int64
	now      func() time.Time
}

func NewJobQueue(client *redis.Client, pollInterval time.Duration) *JobQueue {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &JobQueue{
		client:   client,
		interval: pollInterval,
		batch:    64,
		now:      time.Now,
	}
}

// Enqueue adds job to fire after delay. Enqueueing the same job again only
// moves its fire time.
func (q *JobQueue) Enqueue(ctx context.Context, job app.Job, delay time.Duration) error {
	member, err := json.Marshal(job)
	if err != nil {
		return err
	}
	due := q.now().Add(delay).UnixMilli()
	return q.client.ZAdd(ctx, jobsKey, redis.Z{Score: float64(due), Member: member}).Err()
}

func (q *JobQueue) Run(ctx context.Context, handle func(context.Context, app.Job)) error {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for _, job := range q.claimDue(ctx) {
			wg.Add(1)
			go func(job app.Job) {
				defer wg.Done()
				handle(ctx, job)
			}(job)
		}
	}
}

func (q *JobQueue) claimDue(ctx context.Context) []app.Job {
	members, err := q.client.ZRangeByScore(ctx, jobsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: q.batch,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("poll jobs: %v", err)
		}
		return nil
	}

	jobs := make([]app.Job, 0, len(members))
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, jobsKey, member).Result()
		if err != nil || removed == 0 {
			continue
		}
		var job app.Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			log.Printf("drop malformed job %q: %v", member, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}
