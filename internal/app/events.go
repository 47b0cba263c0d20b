package app

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"quiz-game-service/internal/domain"
)

// Event is the snapshot sent to one participant. Which sections are set
// depends on the task type and on whether the recipient is the host.
type Event struct {
	Type        domain.TaskType           `json:"type"`
	Role        domain.Role               `json:"role"`
	GameID      string                    `json:"gameId"`
	TaskID      string                    `json:"taskId"`
	Status      domain.TaskStatus         `json:"status"`
	ServerTime  time.Time                 `json:"serverTime"`
	Countdown   *Countdown                `json:"countdown,omitempty"`
	Question    *QuestionView             `json:"question,omitempty"`
	Submissions *SubmissionTally          `json:"submissions,omitempty"`
	Players     []PlayerSummary           `json:"players,omitempty"`
	Results     []ResultView              `json:"results,omitempty"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard,omitempty"`
	Player      *PlayerView               `json:"player,omitempty"`
}

// Countdown anchors a phase to server time so clients can render progress
// without trusting their own clock.
type Countdown struct {
	ServerTime  time.Time `json:"serverTime"`
	InitiatedAt time.Time `json:"initiatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// QuestionView is a question without its correct answer.
type QuestionView struct {
	Index    int                 `json:"index"`
	Total    int                 `json:"total"`
	Type     domain.QuestionType `json:"type"`
	Text     string              `json:"text"`
	Duration int                 `json:"duration"`
	Points   int                 `json:"points"`
	Options  []string            `json:"options,omitempty"`
	Min      *float64            `json:"min,omitempty"`
	Max      *float64            `json:"max,omitempty"`
	Step     *float64            `json:"step,omitempty"`
	ImageURL string              `json:"imageUrl,omitempty"`
	Values   []string            `json:"values,omitempty"`
}

// SubmissionTally counts answers without revealing them.
type SubmissionTally struct {
	Submitted int `json:"submitted"`
	Players   int `json:"players"`
}

// Complete reports whether every player has answered.
func (t SubmissionTally) Complete() bool {
	return t.Players > 0 && t.Submitted >= t.Players
}

// PlayerSummary lists a player in the host lobby.
type PlayerSummary struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
}

// ResultView is a graded outcome for one player.
type ResultView struct {
	PlayerID   string         `json:"playerId"`
	Nickname   string         `json:"nickname"`
	Correct    bool           `json:"correct"`
	Precision  *float64       `json:"precision,omitempty"`
	LastScore  int            `json:"lastScore"`
	TotalScore int            `json:"totalScore"`
	Position   int            `json:"position"`
	Streak     int            `json:"streak"`
	Answer     *domain.Answer `json:"answer,omitempty"`
}

// PlayerView is the recipient's own state.
type PlayerView struct {
	PlayerID string                   `json:"playerId"`
	Nickname string                   `json:"nickname"`
	Rank     int                      `json:"rank,omitempty"`
	Score    int                      `json:"score"`
	Streak   int                      `json:"streak"`
	Answer   *domain.Answer           `json:"answer,omitempty"`
	Result   *ResultView              `json:"result,omitempty"`
	Standing *domain.LeaderboardEntry `json:"standing,omitempty"`
}

// AnswerInput is an answer as received from a client. Any client timestamp is
// decoded only to be discarded.
type AnswerInput struct {
	Type        domain.QuestionType `json:"type"`
	OptionIndex *int                `json:"optionIndex,omitempty"`
	Value       *float64            `json:"value,omitempty"`
	TrueFalse   *bool               `json:"trueFalse,omitempty"`
	Text        *string             `json:"text,omitempty"`
	Pin         *domain.Point       `json:"pin,omitempty"`
	Order       []string            `json:"order,omitempty"`
	Created     *time.Time          `json:"created,omitempty"`
}

const maxTypeAnswerLength = 75

// EventOrchestrator renders host and player views of the same game state.
type EventOrchestrator struct{}

func NewEventOrchestrator() *EventOrchestrator {
	return &EventOrchestrator{}
}

// HostEvent renders the host view. answers are the current question's
// submissions and are only counted.
func (o *EventOrchestrator) HostEvent(game *domain.Game, answers []domain.Answer, now time.Time) Event {
	ev := o.base(game, domain.RoleHost, now)
	players := game.Players()

	switch task := game.CurrentTask.Payload.(type) {
	case domain.LobbyTask:
		ev.Players = make([]PlayerSummary, 0, len(players))
		for _, p := range players {
			ev.Players = append(ev.Players, PlayerSummary{PlayerID: p.ID, Nickname: p.Player.Nickname})
		}
	case domain.QuestionTask:
		ev.Question, ev.Countdown = questionView(game, task, now)
		tally := Tally(answers, players)
		ev.Submissions = &tally
	case domain.QuestionResultTask:
		submitted := 0
		ev.Results = make([]ResultView, 0, len(task.Results))
		for _, entry := range task.Results {
			if entry.Answer != nil {
				submitted++
			}
			ev.Results = append(ev.Results, resultView(entry))
		}
		ev.Submissions = &SubmissionTally{Submitted: submitted, Players: len(task.Results)}
		ev.Leaderboard = provisionalLeaderboard(game, task)
	case domain.LeaderboardTask:
		ev.Leaderboard = task.Leaderboard
	case domain.PodiumTask:
		ev.Leaderboard = task.Leaderboard
	case domain.QuitTask:
	}
	return ev
}

// PlayerEvent renders the view of playerID. Only that player's own answer is
// ever read from answers.
func (o *EventOrchestrator) PlayerEvent(game *domain.Game, playerID string, answers []domain.Answer, now time.Time) (Event, error) {
	participant, ok := game.Participant(playerID)
	if !ok || participant.Player == nil {
		return Event{}, domain.ErrNotPlayer
	}
	ev := o.base(game, domain.RolePlayer, now)
	view := &PlayerView{
		PlayerID: participant.ID,
		Nickname: participant.Player.Nickname,
		Rank:     participant.Player.Rank,
		Score:    participant.Player.TotalScore,
		Streak:   participant.Player.CurrentStreak,
	}
	ev.Player = view

	switch task := game.CurrentTask.Payload.(type) {
	case domain.LobbyTask:
	case domain.QuestionTask:
		ev.Question, ev.Countdown = questionView(game, task, now)
		for i := range answers {
			if answers[i].PlayerID == playerID {
				own := answers[i]
				view.Answer = &own
				break
			}
		}
	case domain.QuestionResultTask:
		for _, entry := range task.Results {
			if entry.PlayerID == playerID {
				result := resultView(entry)
				view.Result = &result
				view.Score = entry.TotalScore
				view.Streak = entry.Streak
				view.Rank = entry.Position
				break
			}
		}
	case domain.LeaderboardTask:
		view.Standing = standing(task.Leaderboard, playerID)
	case domain.PodiumTask:
		view.Standing = standing(task.Leaderboard, playerID)
	case domain.QuitTask:
	}
	return ev, nil
}

// ToQuestionTaskAnswer converts a client input for question into an Answer
// stamped with the server receive time now.
func (o *EventOrchestrator) ToQuestionTaskAnswer(playerID string, question domain.Question, meta domain.QuestionMetadata, input AnswerInput, now time.Time) (domain.Answer, error) {
	if input.Type != question.Type() {
		return domain.Answer{}, fmt.Errorf("%w: expected %s answer, got %q", domain.ErrInvalidAnswer, question.Type(), input.Type)
	}
	answer := domain.Answer{PlayerID: playerID, Type: input.Type, Created: now}

	switch body := question.Body.(type) {
	case domain.MultiChoice:
		if input.OptionIndex == nil || *input.OptionIndex < 0 || *input.OptionIndex >= len(body.Options) {
			return domain.Answer{}, fmt.Errorf("%w: option index out of range", domain.ErrInvalidAnswer)
		}
		v := *input.OptionIndex
		answer.OptionIndex = &v
	case domain.Range:
		if input.Value == nil || *input.Value < body.Min || *input.Value > body.Max {
			return domain.Answer{}, fmt.Errorf("%w: value outside range", domain.ErrInvalidAnswer)
		}
		v := *input.Value
		answer.Value = &v
	case domain.TrueFalse:
		if input.TrueFalse == nil {
			return domain.Answer{}, fmt.Errorf("%w: missing true/false value", domain.ErrInvalidAnswer)
		}
		v := *input.TrueFalse
		answer.TrueFalse = &v
	case domain.TypeAnswer:
		if input.Text == nil || utf8.RuneCountInString(*input.Text) > maxTypeAnswerLength {
			return domain.Answer{}, fmt.Errorf("%w: text missing or too long", domain.ErrInvalidAnswer)
		}
		v := *input.Text
		answer.Text = &v
	case domain.Pin:
		if input.Pin == nil || input.Pin.X < 0 || input.Pin.X > 1 || input.Pin.Y < 0 || input.Pin.Y > 1 {
			return domain.Answer{}, fmt.Errorf("%w: pin outside image", domain.ErrInvalidAnswer)
		}
		v := *input.Pin
		answer.Pin = &v
	case domain.Puzzle:
		values := body.Values
		if len(meta.RandomizedValues) > 0 {
			values = meta.RandomizedValues
		}
		if !isPermutation(input.Order, values) {
			return domain.Answer{}, fmt.Errorf("%w: order is not a permutation of the puzzle values", domain.ErrInvalidAnswer)
		}
		answer.Order = append([]string(nil), input.Order...)
	default:
		return domain.Answer{}, fmt.Errorf("%w: unsupported question %T", domain.ErrInvalidAnswer, body)
	}
	return answer, nil
}

func (o *EventOrchestrator) base(game *domain.Game, role domain.Role, now time.Time) Event {
	return Event{
		Type:       game.CurrentTask.Type(),
		Role:       role,
		GameID:     game.ID,
		TaskID:     game.CurrentTask.ID,
		Status:     taskStatus(game, now),
		ServerTime: now,
	}
}

func questionView(game *domain.Game, task domain.QuestionTask, now time.Time) (*QuestionView, *Countdown) {
	q := game.Questions[task.QuestionIndex]
	view := &QuestionView{
		Index:    task.QuestionIndex,
		Total:    len(game.Questions),
		Type:     q.Type(),
		Text:     q.Text,
		Duration: q.Duration,
		Points:   q.Points,
	}
	switch body := q.Body.(type) {
	case domain.MultiChoice:
		view.Options = make([]string, len(body.Options))
		for i, opt := range body.Options {
			view.Options[i] = opt.Value
		}
	case domain.Range:
		lo, hi, step := body.Min, body.Max, body.Step
		view.Min, view.Max, view.Step = &lo, &hi, &step
	case domain.Pin:
		view.ImageURL = body.ImageURL
	case domain.Puzzle:
		view.Values = task.Metadata.RandomizedValues
	case domain.TrueFalse, domain.TypeAnswer:
	}

	countdown := &Countdown{ServerTime: now}
	if taskStatus(game, now) == domain.TaskPending {
		countdown.InitiatedAt = game.CurrentTask.Created
		countdown.ExpiresAt = task.PresentedAt
	} else {
		countdown.InitiatedAt = task.PresentedAt
		countdown.ExpiresAt = task.PresentedAt.Add(q.Window())
	}
	return view, countdown
}

// taskStatus treats a pending question whose countdown has ended as active,
// so views agree with answer acceptance while the activation job is late.
func taskStatus(game *domain.Game, now time.Time) domain.TaskStatus {
	status := game.CurrentTask.Status
	if qt, ok := game.CurrentTask.Payload.(domain.QuestionTask); ok && status == domain.TaskPending && !now.Before(qt.PresentedAt) {
		return domain.TaskActive
	}
	return status
}

func resultView(entry domain.QuestionResultEntry) ResultView {
	return ResultView{
		PlayerID:   entry.PlayerID,
		Nickname:   entry.Nickname,
		Correct:    entry.Correct,
		Precision:  entry.Precision,
		LastScore:  entry.LastScore,
		TotalScore: entry.TotalScore,
		Position:   entry.Position,
		Streak:     entry.Streak,
		Answer:     entry.Answer,
	}
}

// provisionalLeaderboard previews the standings of a result before
// BuildLeaderboard commits them onto participants.
func provisionalLeaderboard(game *domain.Game, task domain.QuestionResultTask) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(task.Results))
	for _, entry := range task.Results {
		var previous *int
		if p, ok := game.Participant(entry.PlayerID); ok && p.Player != nil && p.Player.Rank > 0 {
			rank := p.Player.Rank
			previous = &rank
		}
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:         entry.PlayerID,
			Nickname:         entry.Nickname,
			Position:         entry.Position,
			PreviousPosition: previous,
			Score:            entry.TotalScore,
			Streak:           entry.Streak,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries
}

func standing(leaderboard []domain.LeaderboardEntry, playerID string) *domain.LeaderboardEntry {
	for i := range leaderboard {
		if leaderboard[i].PlayerID == playerID {
			entry := leaderboard[i]
			return &entry
		}
	}
	return nil
}

func isPermutation(order, values []string) bool {
	if len(order) != len(values) {
		return false
	}
	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	for _, v := range order {
		counts[v]--
		if counts[v] < 0 {
			return false
		}
	}
	return true
}
