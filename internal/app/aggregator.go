package app

import (
	"context"
	"fmt"

	"quiz-game-service/internal/domain"
)

// AnswerAggregator collects one answer per player for the current question
// task. A second answer from the same player is rejected and the first one
// stands. Submissions need no game lock; the answer log is keyed by task id so
// nothing submitted for one task can leak into another.
type AnswerAggregator struct {
	log AnswerLog
}

func NewAnswerAggregator(log AnswerLog) *AnswerAggregator {
	return &AnswerAggregator{log: log}
}

// Submit stores answer for the question task taskID.
func (a *AnswerAggregator) Submit(ctx context.Context, gameID, taskID string, answer domain.Answer) error {
	if err := answer.Validate(); err != nil {
		return err
	}
	if answer.PlayerID == "" {
		return fmt.Errorf("%w: missing player", domain.ErrInvalidAnswer)
	}
	return a.log.Submit(ctx, gameID, taskID, answer)
}

// Drain closes the task for submissions and returns every accepted answer.
// Draining twice returns the same set, so a retried transition grades the
// same answers.
func (a *AnswerAggregator) Drain(ctx context.Context, gameID, taskID string) ([]domain.Answer, error) {
	answers, err := a.log.Seal(ctx, gameID, taskID)
	if err != nil {
		return nil, fmt.Errorf("seal answers: %w", err)
	}
	return answers, nil
}

// Answers returns the submissions so far without closing the task.
func (a *AnswerAggregator) Answers(ctx context.Context, gameID, taskID string) ([]domain.Answer, error) {
	return a.log.Snapshot(ctx, gameID, taskID)
}

// Discard drops the stored answers once the graded task has been persisted.
func (a *AnswerAggregator) Discard(ctx context.Context, gameID, taskID string) error {
	return a.log.Discard(ctx, gameID, taskID)
}

// Tally counts the answers of current players. Answers left behind by a
// player who has since left are not counted.
func Tally(answers []domain.Answer, players []*domain.Participant) SubmissionTally {
	ids := make(map[string]struct{}, len(players))
	for _, p := range players {
		ids[p.ID] = struct{}{}
	}
	submitted := 0
	for _, a := range answers {
		if _, ok := ids[a.PlayerID]; ok {
			submitted++
		}
	}
	return SubmissionTally{Submitted: submitted, Players: len(players)}
}
