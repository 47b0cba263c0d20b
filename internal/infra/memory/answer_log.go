package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-game-service/internal/domain"
)

const defaultAnswerTTL = time.Hour

// AnswerLog is an in-memory implementation of app.AnswerLog.
type AnswerLog struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	tasks map[string]*taskAnswers
}

type taskAnswers struct {
	sealed  bool
	answers map[string]domain.Answer
	// expiresAt is set once the task is discarded.
	expiresAt time.Time
}

// NewAnswerLog keeps a discarded task's sealed marker for ttl.
func NewAnswerLog(ttl time.Duration) *AnswerLog {
	if ttl <= 0 {
		ttl = defaultAnswerTTL
	}
	return &AnswerLog{ttl: ttl, now: time.Now, tasks: make(map[string]*taskAnswers)}
}

func (l *AnswerLog) Submit(_ context.Context, gameID, taskID string, answer domain.Answer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	task := l.taskLocked(gameID, taskID)
	if task.sealed {
		return domain.ErrAnswerWindowClosed
	}
	if _, ok := task.answers[answer.PlayerID]; ok {
		return domain.ErrAnswerAlreadySubmitted
	}
	task.answers[answer.PlayerID] = answer
	return nil
}

func (l *AnswerLog) Seal(_ context.Context, gameID, taskID string) ([]domain.Answer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	task := l.taskLocked(gameID, taskID)
	task.sealed = true
	return task.list(), nil
}

func (l *AnswerLog) Snapshot(_ context.Context, gameID, taskID string) ([]domain.Answer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	task, ok := l.tasks[key(gameID, taskID)]
	if !ok {
		return nil, nil
	}
	return task.list(), nil
}

// Discard drops the answers but keeps the task sealed until the ttl passes so
// late submissions are still rejected. Expired markers are pruned here.
func (l *AnswerLog) Discard(_ context.Context, gameID, taskID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, task := range l.tasks {
		if !task.expiresAt.IsZero() && !task.expiresAt.After(now) {
			delete(l.tasks, k)
		}
	}
	l.tasks[key(gameID, taskID)] = &taskAnswers{
		sealed:    true,
		answers:   map[string]domain.Answer{},
		expiresAt: now.Add(l.ttl),
	}
	return nil
}

func (l *AnswerLog) taskLocked(gameID, taskID string) *taskAnswers {
	k := key(gameID, taskID)
	task, ok := l.tasks[k]
	if !ok {
		task = &taskAnswers{answers: make(map[string]domain.Answer)}
		l.tasks[k] = task
	}
	return task
}

func (t *taskAnswers) list() []domain.Answer {
	out := make([]domain.Answer, 0, len(t.answers))
	for _, a := range t.answers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}

func key(gameID, taskID string) string {
	return gameID + ":" + taskID
}
