package app

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-game-service/internal/domain"
	"quiz-game-service/internal/scoring"
)

// TaskStateMachine builds the next task of a game from its current one.
// Builders mutate the game in memory only; persisting is the caller's job.
type TaskStateMachine struct {
	countdown time.Duration
	now       func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewTaskStateMachine returns a machine that opens answers countdown after a
// question task is built.
func NewTaskStateMachine(countdown time.Duration) *TaskStateMachine {
	return NewTaskStateMachineWithClock(countdown, time.Now, time.Now().UnixNano())
}

// NewTaskStateMachineWithClock allows deterministic timestamps and shuffles in tests.
func NewTaskStateMachineWithClock(countdown time.Duration, now func() time.Time, seed int64) *TaskStateMachine {
	return &TaskStateMachine{
		countdown: countdown,
		now:       now,
		rnd:       rand.New(rand.NewSource(seed)),
	}
}

// BuildLobbyTask returns the first task of a new game.
func (m *TaskStateMachine) BuildLobbyTask() domain.Task {
	return m.newTask(domain.LobbyTask{})
}

// BuildQuestionTask presents the next unplayed question.
func (m *TaskStateMachine) BuildQuestionTask(game *domain.Game) (domain.Task, error) {
	if err := expectTask(game, domain.TaskLobby, domain.TaskLeaderboard); err != nil {
		return domain.Task{}, err
	}
	if !game.HasMoreQuestions() {
		return domain.Task{}, domain.ErrNoMoreQuestions
	}

	index := game.NextQuestion
	question := game.Questions[index]
	meta := domain.QuestionMetadata{Type: question.Type()}
	if puzzle, ok := question.Body.(domain.Puzzle); ok {
		meta.RandomizedValues = m.shuffle(puzzle.Values)
	}

	task := m.newTask(domain.QuestionTask{
		QuestionIndex: index,
		Metadata:      meta,
		PresentedAt:   m.now().Add(m.countdown),
	})
	m.commit(game, task)
	game.NextQuestion++
	return task, nil
}

// BuildQuestionResultTask grades every player against answers. Players
// without an answer score zero.
func (m *TaskStateMachine) BuildQuestionResultTask(game *domain.Game, answers []domain.Answer) (domain.Task, error) {
	if err := expectTask(game, domain.TaskQuestion); err != nil {
		return domain.Task{}, err
	}
	question, qt, ok := game.CurrentQuestion()
	if !ok {
		return domain.Task{}, domain.ErrInvalidQuestion
	}

	byPlayer := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		byPlayer[a.PlayerID] = a
	}

	players := game.Players()
	results := make([]domain.QuestionResultEntry, 0, len(players))
	for _, p := range players {
		entry := domain.QuestionResultEntry{
			PlayerID: p.ID,
			Nickname: p.Player.Nickname,
		}
		var answer *domain.Answer
		if a, ok := byPlayer[p.ID]; ok {
			answer = &a
			entry.Answer = answer
			entry.AnsweredAt = a.Created
		}
		outcome, err := scoring.CalculateScore(game.Mode, qt.PresentedAt, question, answer, qt.Metadata)
		if err != nil {
			return domain.Task{}, err
		}
		entry.Correct = outcome.Correct
		entry.Precision = outcome.Precision
		entry.LastScore = outcome.Score
		entry.TotalScore = p.Player.TotalScore + outcome.Score
		if outcome.Correct {
			entry.Streak = p.Player.CurrentStreak + 1
		}
		results = append(results, entry)
	}
	rankResults(results)

	task := m.newTask(domain.QuestionResultTask{
		QuestionIndex: qt.QuestionIndex,
		Results:       results,
	})
	m.commit(game, task)
	return task, nil
}

// BuildLeaderboardTask shows standings between questions.
func (m *TaskStateMachine) BuildLeaderboardTask(game *domain.Game, leaderboard []domain.LeaderboardEntry) (domain.Task, error) {
	result, err := currentResult(game)
	if err != nil {
		return domain.Task{}, err
	}
	task := m.newTask(domain.LeaderboardTask{
		QuestionIndex: result.QuestionIndex,
		Leaderboard:   leaderboard,
	})
	m.commit(game, task)
	return task, nil
}

// BuildPodiumTask shows final standings and completes the game.
func (m *TaskStateMachine) BuildPodiumTask(game *domain.Game, leaderboard []domain.LeaderboardEntry) (domain.Task, error) {
	if _, err := currentResult(game); err != nil {
		return domain.Task{}, err
	}
	task := m.newTask(domain.PodiumTask{Leaderboard: leaderboard})
	m.commit(game, task)
	game.Status = domain.GameCompleted
	return task, nil
}

// BuildQuitTask terminates the game from any phase but quit itself.
func (m *TaskStateMachine) BuildQuitTask(game *domain.Game) (domain.Task, error) {
	if err := expectTask(game,
		domain.TaskLobby, domain.TaskQuestion, domain.TaskQuestionResult,
		domain.TaskLeaderboard, domain.TaskPodium,
	); err != nil {
		return domain.Task{}, err
	}
	task := m.newTask(domain.QuitTask{})
	m.commit(game, task)
	game.Status = domain.GameCompleted
	return task, nil
}

// Activate promotes a pending current task. It reports false when the task
// was already active.
func (m *TaskStateMachine) Activate(game *domain.Game) bool {
	if game.CurrentTask.Status != domain.TaskPending {
		return false
	}
	game.CurrentTask.Status = domain.TaskActive
	return true
}

func (m *TaskStateMachine) newTask(payload domain.TaskPayload) domain.Task {
	return domain.Task{
		ID:      uuid.NewString(),
		Status:  domain.TaskPending,
		Created: m.now(),
		Payload: payload,
	}
}

func (m *TaskStateMachine) commit(game *domain.Game, task domain.Task) {
	game.PreviousTasks = append(game.PreviousTasks, game.CurrentTask)
	game.CurrentTask = task
}

// shuffle returns a permutation of values that differs from the stored order
// whenever two values differ.
func (m *TaskStateMachine) shuffle(values []string) []string {
	out := append([]string(nil), values...)
	m.mu.Lock()
	m.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	m.mu.Unlock()

	if !equalStrings(out, values) {
		return out
	}
	for i := 1; i < len(out); i++ {
		if out[i] != out[0] {
			out[0], out[i] = out[i], out[0]
			break
		}
	}
	return out
}

func expectTask(game *domain.Game, expected ...domain.TaskType) error {
	found := game.CurrentTask.Type()
	for _, t := range expected {
		if found == t {
			return nil
		}
	}
	return domain.NewIllegalTaskTypeError(found, expected...)
}

func currentResult(game *domain.Game) (domain.QuestionResultTask, error) {
	result, ok := game.CurrentTask.Payload.(domain.QuestionResultTask)
	if !ok {
		return domain.QuestionResultTask{}, domain.NewIllegalTaskTypeError(game.CurrentTask.Type(), domain.TaskQuestionResult)
	}
	return result, nil
}

// rankResults orders by total score, then who answered first, then nickname,
// and assigns unique positions.
func rankResults(results []domain.QuestionResultEntry) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.AnsweredAt.IsZero() != b.AnsweredAt.IsZero() {
			return !a.AnsweredAt.IsZero()
		}
		if !a.AnsweredAt.Equal(b.AnsweredAt) {
			return a.AnsweredAt.Before(b.AnsweredAt)
		}
		return a.Nickname < b.Nickname
	})
	for i := range results {
		results[i].Position = i + 1
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
