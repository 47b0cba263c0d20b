package domain

import (
	"strings"
	"time"
)

// GameMode selects the scoring rules of a game.
type GameMode string

const (
	ModeClassic          GameMode = "classic"
	ModeZeroToOneHundred GameMode = "zero_to_one_hundred"
)

// GameStatus tracks whether a game still accepts actions.
type GameStatus string

const (
	GameActive    GameStatus = "active"
	GameCompleted GameStatus = "completed"
)

// Role discriminates participants.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// PlayerState holds the scored fields only players carry. Rank 0 means the
// player has never been ranked.
type PlayerState struct {
	Nickname      string `json:"nickname"`
	Rank          int    `json:"rank"`
	TotalScore    int    `json:"totalScore"`
	CurrentStreak int    `json:"currentStreak"`
}

// Participant is the host or a player. Player is nil for the host.
type Participant struct {
	ID      string       `json:"id"`
	Role    Role         `json:"role"`
	Created time.Time    `json:"created"`
	Updated time.Time    `json:"updated"`
	Player  *PlayerState `json:"player,omitempty"`
}

// IsHost reports whether the participant controls the game.
func (p Participant) IsHost() bool {
	return p.Role == RoleHost
}

// LeaderboardEntry is a player's standing after a graded question.
type LeaderboardEntry struct {
	PlayerID         string `json:"playerId"`
	Nickname         string `json:"nickname"`
	Position         int    `json:"position"`
	PreviousPosition *int   `json:"previousPosition,omitempty"`
	Score            int    `json:"score"`
	Streak           int    `json:"streak"`
}

// Quiz is the content a game is created from.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Mode      GameMode   `json:"mode"`
	Questions []Question `json:"questions"`
}

// Game is the durable state of one live session. CurrentTask is always set and
// PreviousTasks is only ever appended to.
type Game struct {
	ID            string        `json:"id"`
	QuizID        string        `json:"quizId"`
	Mode          GameMode      `json:"mode"`
	Status        GameStatus    `json:"status"`
	Questions     []Question    `json:"questions"`
	NextQuestion  int           `json:"nextQuestion"`
	CurrentTask   Task          `json:"currentTask"`
	PreviousTasks []Task        `json:"previousTasks"`
	Participants  []Participant `json:"participants"`
	Created       time.Time     `json:"created"`
	Updated       time.Time     `json:"updated"`
	Version       int64         `json:"version"`
}

// Participant returns the participant with id.
func (g *Game) Participant(id string) (*Participant, bool) {
	for i := range g.Participants {
		if g.Participants[i].ID == id {
			return &g.Participants[i], true
		}
	}
	return nil, false
}

// Host returns the host, if one has joined.
func (g *Game) Host() (*Participant, bool) {
	for i := range g.Participants {
		if g.Participants[i].IsHost() {
			return &g.Participants[i], true
		}
	}
	return nil, false
}

// Players returns pointers to every player in join order.
func (g *Game) Players() []*Participant {
	players := make([]*Participant, 0, len(g.Participants))
	for i := range g.Participants {
		if g.Participants[i].Role == RolePlayer {
			players = append(players, &g.Participants[i])
		}
	}
	return players
}

// NicknameTaken reports whether a player other than exceptID uses nickname.
func (g *Game) NicknameTaken(nickname, exceptID string) bool {
	for _, p := range g.Participants {
		if p.Player == nil || p.ID == exceptID {
			continue
		}
		if strings.EqualFold(p.Player.Nickname, nickname) {
			return true
		}
	}
	return false
}

// HasMoreQuestions reports whether a question is left to play.
func (g *Game) HasMoreQuestions() bool {
	return g.NextQuestion < len(g.Questions)
}

// CurrentQuestion returns the question presented by the current task.
func (g *Game) CurrentQuestion() (Question, QuestionTask, bool) {
	task, ok := g.CurrentTask.Payload.(QuestionTask)
	if !ok || task.QuestionIndex < 0 || task.QuestionIndex >= len(g.Questions) {
		return Question{}, QuestionTask{}, false
	}
	return g.Questions[task.QuestionIndex], task, true
}
