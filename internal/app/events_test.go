package app

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"quiz-game-service/internal/domain"
)

func TestHostAndPlayerViewsOfQuestion(t *testing.T) {
	clock := &testClock{now: t0}
	m := newMachine(clock)
	game := newLobbyGame(m, multiChoice())
	if _, err := m.BuildQuestionTask(game); err != nil {
		t.Fatalf("question: %v", err)
	}
	o := NewEventOrchestrator()
	answers := []domain.Answer{option("a", 0, t0.Add(6*time.Second)), option("b", 1, t0.Add(7*time.Second))}

	host := o.HostEvent(game, answers, t0)
	if host.Role != domain.RoleHost || host.Submissions == nil || host.Submissions.Submitted != 2 || host.Submissions.Players != 2 {
		t.Fatalf("expected host tally 2/2, got %+v", host.Submissions)
	}
	if host.Countdown == nil || !host.Countdown.ExpiresAt.Equal(t0.Add(5*time.Second)) {
		t.Fatalf("expected pending countdown to end when answers open, got %+v", host.Countdown)
	}
	if host.Player != nil {
		t.Fatalf("host view must not carry a player section")
	}

	player, err := o.PlayerEvent(game, "a", answers, t0)
	if err != nil {
		t.Fatalf("player event: %v", err)
	}
	if player.Submissions != nil {
		t.Fatalf("players must not see the tally")
	}
	if player.Player.Answer == nil || player.Player.Answer.PlayerID != "a" {
		t.Fatalf("expected own answer, got %+v", player.Player.Answer)
	}
	data, _ := json.Marshal(player)
	if strings.Contains(string(data), `"correct"`) {
		t.Fatalf("question view leaks the correct option: %s", data)
	}

	m.Activate(game)
	active := o.HostEvent(game, nil, t0.Add(5*time.Second))
	if !active.Countdown.ExpiresAt.Equal(t0.Add(25 * time.Second)) {
		t.Fatalf("expected active countdown to run the answer window, got %s", active.Countdown.ExpiresAt)
	}
}

func TestResultViews(t *testing.T) {
	clock := &testClock{now: t0}
	m := NewTaskStateMachineWithClock(0, clock.Now, 1)
	game := newLobbyGame(m, multiChoice())
	if _, err := m.BuildQuestionTask(game); err != nil {
		t.Fatalf("question: %v", err)
	}
	if _, err := m.BuildQuestionResultTask(game, []domain.Answer{option("b", 0, t0.Add(time.Second))}); err != nil {
		t.Fatalf("result: %v", err)
	}
	o := NewEventOrchestrator()

	host := o.HostEvent(game, nil, t0)
	if len(host.Results) != 2 || host.Submissions.Submitted != 1 {
		t.Fatalf("expected all results with one submission, got %d results %+v", len(host.Results), host.Submissions)
	}
	if len(host.Leaderboard) != 2 || host.Leaderboard[0].PlayerID != "b" {
		t.Fatalf("expected provisional standings, got %+v", host.Leaderboard)
	}

	player, _ := o.PlayerEvent(game, "a", nil, t0)
	if player.Results != nil || player.Player.Result == nil || player.Player.Result.PlayerID != "a" {
		t.Fatalf("expected only the player's own result, got %+v", player.Player.Result)
	}
	if player.Player.Rank != 2 {
		t.Fatalf("expected rank 2, got %d", player.Player.Rank)
	}

	if _, err := o.PlayerEvent(game, "host", nil, t0); !errors.Is(err, domain.ErrNotPlayer) {
		t.Fatalf("expected host to be rejected as player, got %v", err)
	}
}

func TestToQuestionTaskAnswerUsesServerTime(t *testing.T) {
	o := NewEventOrchestrator()
	clientTime := t0.Add(-time.Hour)
	index := 1
	answer, err := o.ToQuestionTaskAnswer("a", multiChoice(), domain.QuestionMetadata{}, AnswerInput{
		Type:        domain.QuestionMultiChoice,
		OptionIndex: &index,
		Created:     &clientTime,
	}, t0)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !answer.Created.Equal(t0) {
		t.Fatalf("expected server receive time, got %s", answer.Created)
	}
	if err := answer.Validate(); err != nil {
		t.Fatalf("expected a valid answer: %v", err)
	}
}

func TestToQuestionTaskAnswerRejectsMismatches(t *testing.T) {
	o := NewEventOrchestrator()
	yes := true
	outOfRange := 5
	value := 150.0
	long := strings.Repeat("x", 80)
	puzzle := domain.Question{Duration: 10, Body: domain.Puzzle{Values: []string{"a", "b", "c"}}}

	tests := []struct {
		name     string
		question domain.Question
		meta     domain.QuestionMetadata
		input    AnswerInput
	}{
		{"wrong type", multiChoice(), domain.QuestionMetadata{}, AnswerInput{Type: domain.QuestionTrueFalse, TrueFalse: &yes}},
		{"option out of range", multiChoice(), domain.QuestionMetadata{}, AnswerInput{Type: domain.QuestionMultiChoice, OptionIndex: &outOfRange}},
		{"range outside bounds", domain.Question{Duration: 10, Body: domain.Range{Min: 0, Max: 100}}, domain.QuestionMetadata{}, AnswerInput{Type: domain.QuestionRange, Value: &value}},
		{"text too long", domain.Question{Duration: 10, Body: domain.TypeAnswer{Options: []string{"go"}}}, domain.QuestionMetadata{}, AnswerInput{Type: domain.QuestionTypeAnswer, Text: &long}},
		{"puzzle not permutation", puzzle, domain.QuestionMetadata{RandomizedValues: []string{"c", "a", "b"}}, AnswerInput{Type: domain.QuestionPuzzle, Order: []string{"a", "a", "b"}}},
		{"missing value", domain.Question{Duration: 10, Body: domain.TrueFalse{}}, domain.QuestionMetadata{}, AnswerInput{Type: domain.QuestionTrueFalse}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.ToQuestionTaskAnswer("a", tt.question, tt.meta, tt.input, t0); !errors.Is(err, domain.ErrInvalidAnswer) {
				t.Fatalf("expected invalid answer, got %v", err)
			}
		})
	}
}

func TestTypeAnswerLengthCountsCharacters(t *testing.T) {
	o := NewEventOrchestrator()
	question := domain.Question{Duration: 10, Body: domain.TypeAnswer{Options: []string{"crème brûlée"}}}
	text := strings.Repeat("é", 60)

	answer, err := o.ToQuestionTaskAnswer("a", question, domain.QuestionMetadata{}, AnswerInput{Type: domain.QuestionTypeAnswer, Text: &text}, t0)
	if err != nil {
		t.Fatalf("expected 60 characters to fit, got %v", err)
	}
	if answer.Text == nil || *answer.Text != text {
		t.Fatalf("expected text to be kept, got %v", answer.Text)
	}
}

func TestPendingQuestionPastCountdownShowsOpen(t *testing.T) {
	clock := &testClock{now: t0}
	m := newMachine(clock)
	game := newLobbyGame(m, multiChoice())
	if _, err := m.BuildQuestionTask(game); err != nil {
		t.Fatalf("question: %v", err)
	}
	o := NewEventOrchestrator()

	// The activation job has not run yet, but answers are already open.
	late := o.HostEvent(game, nil, t0.Add(6*time.Second))
	if late.Status != domain.TaskActive {
		t.Fatalf("expected question to show as open, got %s", late.Status)
	}
	if !late.Countdown.InitiatedAt.Equal(t0.Add(5*time.Second)) || !late.Countdown.ExpiresAt.Equal(t0.Add(25*time.Second)) {
		t.Fatalf("expected the answer window countdown, got %+v", late.Countdown)
	}
	if game.CurrentTask.Status != domain.TaskPending {
		t.Fatalf("rendering must not mutate the task")
	}
}
