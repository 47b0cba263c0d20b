package app

import (
	"context"
	"time"

	"quiz-game-service/internal/domain"
)

// GameRepository persists games. Save is a compare-and-set on Game.Version and
// returns domain.ErrGameConflict when another writer got there first; on
// success the stored and in-memory versions are both incremented.
type GameRepository interface {
	Create(ctx context.Context, game *domain.Game) error
	Load(ctx context.Context, gameID string) (*domain.Game, error)
	Save(ctx context.Context, game *domain.Game) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Locker is a distributed mutual-exclusion primitive. TryAcquire never blocks
// waiting for the holder; the holder's lease expires after ttl.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	Release(ctx context.Context, key, token string) error
}

// AnswerLog stores one answer per player for a question task. Submit returns
// domain.ErrAnswerAlreadySubmitted for a second answer and
// domain.ErrAnswerWindowClosed once the log is sealed. Seal is idempotent.
type AnswerLog interface {
	Submit(ctx context.Context, gameID, taskID string, answer domain.Answer) error
	Seal(ctx context.Context, gameID, taskID string) ([]domain.Answer, error)
	Snapshot(ctx context.Context, gameID, taskID string) ([]domain.Answer, error)
	Discard(ctx context.Context, gameID, taskID string) error
}

// Broadcaster delivers opaque messages on named channels.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, message []byte) error
	// Subscribe returns a channel of messages; the caller must invoke the
	// returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// JobKind names what a scheduled job does when it fires.
type JobKind string

const (
	JobActivateQuestion JobKind = "activate_question"
	JobCloseQuestion    JobKind = "close_question"
)

// Job is a delayed transition for one task of one game.
type Job struct {
	GameID string  `json:"gameId"`
	TaskID string  `json:"taskId"`
	Kind   JobKind `json:"kind"`
}

// Key identifies the job for de-duplication in queues.
func (j Job) Key() string {
	return j.GameID + ":" + j.TaskID + ":" + string(j.Kind)
}

// JobQueue delays jobs. Run blocks, invoking handle for each due job, until
// ctx is canceled. Delivery is at least once.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job, delay time.Duration) error
	Run(ctx context.Context, handle func(context.Context, Job)) error
}
