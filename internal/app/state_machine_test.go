package app

import (
	"errors"
	"testing"
	"time"

	"quiz-game-service/internal/domain"
)

var t0 = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newMachine(clock *testClock) *TaskStateMachine {
	return NewTaskStateMachineWithClock(5*time.Second, clock.Now, 42)
}

func newLobbyGame(m *TaskStateMachine, questions ...domain.Question) *domain.Game {
	game := &domain.Game{
		ID:          "g1",
		Mode:        domain.ModeClassic,
		Status:      domain.GameActive,
		Questions:   questions,
		CurrentTask: m.BuildLobbyTask(),
		Participants: []domain.Participant{
			{ID: "host", Role: domain.RoleHost},
			{ID: "a", Role: domain.RolePlayer, Player: &domain.PlayerState{Nickname: "Alice"}},
			{ID: "b", Role: domain.RolePlayer, Player: &domain.PlayerState{Nickname: "Bob"}},
		},
	}
	m.Activate(game)
	return game
}

func multiChoice() domain.Question {
	return domain.Question{
		Text:     "Capital of France?",
		Duration: 20,
		Points:   1000,
		Body: domain.MultiChoice{Options: []domain.MultiChoiceOption{
			{Value: "Paris", Correct: true},
			{Value: "Lyon"},
		}},
	}
}

func option(player string, index int, at time.Time) domain.Answer {
	return domain.Answer{PlayerID: player, Type: domain.QuestionMultiChoice, Created: at, OptionIndex: &index}
}

func TestQuestionTaskStartsPendingWithCountdown(t *testing.T) {
	clock := &testClock{now: t0}
	m := newMachine(clock)
	game := newLobbyGame(m, multiChoice())
	lobbyID := game.CurrentTask.ID

	task, err := m.BuildQuestionTask(game)
	if err != nil {
		t.Fatalf("build question: %v", err)
	}
	if task.Status != domain.TaskPending {
		t.Fatalf("expected pending question, got %s", task.Status)
	}
	qt := task.Payload.(domain.QuestionTask)
	if !qt.PresentedAt.Equal(t0.Add(5 * time.Second)) {
		t.Fatalf("expected answers to open after the countdown, got %s", qt.PresentedAt)
	}
	if qt.Metadata.Type != domain.QuestionMultiChoice {
		t.Fatalf("unexpected metadata %+v", qt.Metadata)
	}
	if game.NextQuestion != 1 || len(game.PreviousTasks) != 1 || game.PreviousTasks[0].ID != lobbyID {
		t.Fatalf("expected lobby moved to history, next=%d history=%d", game.NextQuestion, len(game.PreviousTasks))
	}

	if !m.Activate(game) || m.Activate(game) {
		t.Fatalf("expected activate to succeed exactly once")
	}
	if _, err := m.BuildQuestionTask(game); !errors.Is(err, domain.ErrIllegalTaskType) {
		t.Fatalf("expected illegal task type from question, got %v", err)
	}
}

func TestLeaderboardAndPodiumRequireQuestionResult(t *testing.T) {
	clock := &testClock{now: t0}
	m := newMachine(clock)
	game := newLobbyGame(m, multiChoice())

	for _, build := range []func() error{
		func() error { _, err := m.BuildLeaderboardTask(game, nil); return err },
		func() error { _, err := m.BuildPodiumTask(game, nil); return err },
	} {
		err := build()
		var illegal *domain.IllegalTaskTypeError
		if !errors.As(err, &illegal) {
			t.Fatalf("expected IllegalTaskTypeError, got %v", err)
		}
		if illegal.Found != domain.TaskLobby || len(illegal.Expected) != 1 || illegal.Expected[0] != domain.TaskQuestionResult {
			t.Fatalf("unexpected error detail %+v", illegal)
		}
	}
	if game.CurrentTask.Type() != domain.TaskLobby {
		t.Fatalf("failed build must not change the game, got %s", game.CurrentTask.Type())
	}
}

func TestFullRoundTrip(t *testing.T) {
	clock := &testClock{now: t0}
	m := newMachine(clock)
	game := newLobbyGame(m, multiChoice(), multiChoice())

	if _, err := m.BuildQuestionTask(game); err != nil {
		t.Fatalf("question 1: %v", err)
	}
	m.Activate(game)
	presented := t0.Add(5 * time.Second)
	answers := []domain.Answer{option("a", 0, presented.Add(2*time.Second)), option("b", 1, presented.Add(5*time.Second))}

	if _, err := m.BuildQuestionResultTask(game, answers); err != nil {
		t.Fatalf("result 1: %v", err)
	}
	lb, err := BuildLeaderboard(game)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if _, err := m.BuildLeaderboardTask(game, lb); err != nil {
		t.Fatalf("leaderboard task: %v", err)
	}
	if _, err := m.BuildQuestionTask(game); err != nil {
		t.Fatalf("question 2: %v", err)
	}
	if _, err := m.BuildQuestionResultTask(game, nil); err != nil {
		t.Fatalf("result 2: %v", err)
	}
	if game.HasMoreQuestions() {
		t.Fatalf("expected every question played")
	}
	lb, _ = BuildLeaderboard(game)
	if _, err := m.BuildPodiumTask(game, lb); err != nil {
		t.Fatalf("podium: %v", err)
	}
	if game.Status != domain.GameCompleted {
		t.Fatalf("expected completed game, got %s", game.Status)
	}

	types := []domain.TaskType{}
	for _, task := range game.PreviousTasks {
		types = append(types, task.Type())
	}
	want := []domain.TaskType{
		domain.TaskLobby, domain.TaskQuestion, domain.TaskQuestionResult, domain.TaskLeaderboard,
		domain.TaskQuestion, domain.TaskQuestionResult,
	}
	if len(types) != len(want) {
		t.Fatalf("unexpected history %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("unexpected history %v", types)
		}
	}
}

func TestQuitFromAnyTask(t *testing.T) {
	clock := &testClock{now: t0}
	m := newMachine(clock)
	game := newLobbyGame(m, multiChoice())
	if _, err := m.BuildQuestionTask(game); err != nil {
		t.Fatalf("question: %v", err)
	}

	if _, err := m.BuildQuitTask(game); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if game.Status != domain.GameCompleted || game.CurrentTask.Type() != domain.TaskQuit {
		t.Fatalf("expected quit task, got %s", game.CurrentTask.Type())
	}
	if _, err := m.BuildQuitTask(game); !errors.Is(err, domain.ErrIllegalTaskType) {
		t.Fatalf("expected second quit to be illegal, got %v", err)
	}
}

func TestNoMoreQuestions(t *testing.T) {
	clock := &testClock{now: t0}
	m := newMachine(clock)
	game := newLobbyGame(m)

	if _, err := m.BuildQuestionTask(game); !errors.Is(err, domain.ErrNoMoreQuestions) {
		t.Fatalf("expected no more questions, got %v", err)
	}
}

func TestPuzzleValuesAreShuffled(t *testing.T) {
	clock := &testClock{now: t0}
	m := newMachine(clock)
	values := []string{"one", "two", "three", "four"}
	game := newLobbyGame(m, domain.Question{Text: "Order", Duration: 30, Points: 1000, Body: domain.Puzzle{Values: values}})

	task, err := m.BuildQuestionTask(game)
	if err != nil {
		t.Fatalf("question: %v", err)
	}
	shuffled := task.Payload.(domain.QuestionTask).Metadata.RandomizedValues
	if equalStrings(shuffled, values) {
		t.Fatalf("expected values to be presented out of order, got %v", shuffled)
	}
	if !isPermutation(shuffled, values) {
		t.Fatalf("expected a permutation of %v, got %v", values, shuffled)
	}
}

func TestResultsRankedByScoreThenSpeed(t *testing.T) {
	clock := &testClock{now: t0}
	m := NewTaskStateMachineWithClock(0, clock.Now, 1)
	game := newLobbyGame(m, multiChoice())
	game.Participants = append(game.Participants,
		domain.Participant{ID: "c", Role: domain.RolePlayer, Player: &domain.PlayerState{Nickname: "Carol"}})
	if _, err := m.BuildQuestionTask(game); err != nil {
		t.Fatalf("question: %v", err)
	}

	// Bob and Carol answer wrong at the same instant; Alice does not answer.
	wrongAt := t0.Add(time.Second)
	task, err := m.BuildQuestionResultTask(game, []domain.Answer{option("c", 1, wrongAt), option("b", 1, wrongAt)})
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	results := task.Payload.(domain.QuestionResultTask).Results
	order := []string{results[0].Nickname, results[1].Nickname, results[2].Nickname}
	if order[0] != "Bob" || order[1] != "Carol" || order[2] != "Alice" {
		t.Fatalf("expected answered players before silent ones, then nickname, got %v", order)
	}
	for i, r := range results {
		if r.Position != i+1 {
			t.Fatalf("expected unique positions, got %d at %d", r.Position, i)
		}
	}
}
