package app

import (
	"context"
	"errors"
	"testing"

	"quiz-game-service/internal/domain"
)

type stubAnswerLog struct {
	submitted []domain.Answer
}

func (l *stubAnswerLog) Submit(_ context.Context, _, _ string, answer domain.Answer) error {
	l.submitted = append(l.submitted, answer)
	return nil
}

func (l *stubAnswerLog) Seal(context.Context, string, string) ([]domain.Answer, error) {
	return l.submitted, nil
}

func (l *stubAnswerLog) Snapshot(context.Context, string, string) ([]domain.Answer, error) {
	return l.submitted, nil
}

func (l *stubAnswerLog) Discard(context.Context, string, string) error {
	l.submitted = nil
	return nil
}

func TestAggregatorValidatesBeforeStoring(t *testing.T) {
	log := &stubAnswerLog{}
	aggregator := NewAnswerAggregator(log)
	ctx := context.Background()

	if err := aggregator.Submit(ctx, "g1", "t1", domain.Answer{PlayerID: "a", Type: domain.QuestionTrueFalse}); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer, got %v", err)
	}
	yes := true
	if err := aggregator.Submit(ctx, "g1", "t1", domain.Answer{Type: domain.QuestionTrueFalse, TrueFalse: &yes}); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected missing player to be rejected, got %v", err)
	}
	if err := aggregator.Submit(ctx, "g1", "t1", domain.Answer{PlayerID: "a", Type: domain.QuestionTrueFalse, TrueFalse: &yes}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	answers, err := aggregator.Drain(ctx, "g1", "t1")
	if err != nil || len(answers) != 1 {
		t.Fatalf("expected one drained answer, got %d err=%v", len(answers), err)
	}
	if len(log.submitted) != 1 {
		t.Fatalf("expected invalid answers never to reach the log, got %d", len(log.submitted))
	}
}

func TestTallyCountsCurrentPlayersOnly(t *testing.T) {
	players := []*domain.Participant{{ID: "a", Role: domain.RolePlayer}, {ID: "b", Role: domain.RolePlayer}}
	yes := true
	answers := []domain.Answer{
		{PlayerID: "a", Type: domain.QuestionTrueFalse, TrueFalse: &yes},
		{PlayerID: "gone", Type: domain.QuestionTrueFalse, TrueFalse: &yes},
	}

	tally := Tally(answers, players)
	if tally.Submitted != 1 || tally.Players != 2 || tally.Complete() {
		t.Fatalf("expected 1/2 incomplete, got %+v", tally)
	}

	answers = append(answers, domain.Answer{PlayerID: "b", Type: domain.QuestionTrueFalse, TrueFalse: &yes})
	if !Tally(answers, players).Complete() {
		t.Fatalf("expected tally to complete once every player answered")
	}
	if Tally(nil, nil).Complete() {
		t.Fatalf("a game without players never completes a tally")
	}
}
