package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskType discriminates the phases of a game.
type TaskType string

const (
	TaskLobby          TaskType = "lobby"
	TaskQuestion       TaskType = "question"
	TaskQuestionResult TaskType = "question_result"
	TaskLeaderboard    TaskType = "leaderboard"
	TaskPodium         TaskType = "podium"
	TaskQuit           TaskType = "quit"
)

// TaskStatus is the only part of a task that advances after creation.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskActive  TaskStatus = "active"
)

// Task is one phase of a game. The payload never changes once built.
type Task struct {
	ID      string
	Status  TaskStatus
	Created time.Time
	Payload TaskPayload
}

// TaskPayload is implemented by exactly the variants declared in this file.
type TaskPayload interface {
	taskType() TaskType
}

// Type returns the discriminator of the payload.
func (t Task) Type() TaskType {
	if t.Payload == nil {
		return ""
	}
	return t.Payload.taskType()
}

type LobbyTask struct{}

// QuestionMetadata carries per-task presentation details derived from the question.
type QuestionMetadata struct {
	Type             QuestionType `json:"type"`
	RandomizedValues []string     `json:"randomizedValues,omitempty"`
}

// QuestionTask presents Questions[QuestionIndex]. Answers open at PresentedAt
// and the task id is the handle of its answer log.
type QuestionTask struct {
	QuestionIndex int              `json:"questionIndex"`
	Metadata      QuestionMetadata `json:"metadata"`
	PresentedAt   time.Time        `json:"presentedAt"`
}

// QuestionResultEntry is one player's graded outcome for a question.
type QuestionResultEntry struct {
	PlayerID   string    `json:"playerId"`
	Nickname   string    `json:"nickname"`
	Answer     *Answer   `json:"answer,omitempty"`
	Correct    bool      `json:"correct"`
	Precision  *float64  `json:"precision,omitempty"`
	LastScore  int       `json:"lastScore"`
	TotalScore int       `json:"totalScore"`
	Position   int       `json:"position"`
	Streak     int       `json:"streak"`
	AnsweredAt time.Time `json:"answeredAt"`
}

type QuestionResultTask struct {
	QuestionIndex int                   `json:"questionIndex"`
	Results       []QuestionResultEntry `json:"results"`
}

type LeaderboardTask struct {
	QuestionIndex int                `json:"questionIndex"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
}

type PodiumTask struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type QuitTask struct{}

func (LobbyTask) taskType() TaskType          { return TaskLobby }
func (QuestionTask) taskType() TaskType       { return TaskQuestion }
func (QuestionResultTask) taskType() TaskType { return TaskQuestionResult }
func (LeaderboardTask) taskType() TaskType    { return TaskLeaderboard }
func (PodiumTask) taskType() TaskType         { return TaskPodium }
func (QuitTask) taskType() TaskType           { return TaskQuit }

type taskJSON struct {
	ID      string          `json:"id"`
	Type    TaskType        `json:"type"`
	Status  TaskStatus      `json:"status"`
	Created time.Time       `json:"created"`
	Payload json.RawMessage `json:"payload"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taskJSON{
		ID:      t.ID,
		Type:    t.Type(),
		Status:  t.Status,
		Created: t.Created,
		Payload: payload,
	})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var raw taskJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var (
		payload TaskPayload
		err     error
	)
	switch raw.Type {
	case TaskLobby:
		payload, err = decodeTask[LobbyTask](raw.Payload)
	case TaskQuestion:
		payload, err = decodeTask[QuestionTask](raw.Payload)
	case TaskQuestionResult:
		payload, err = decodeTask[QuestionResultTask](raw.Payload)
	case TaskLeaderboard:
		payload, err = decodeTask[LeaderboardTask](raw.Payload)
	case TaskPodium:
		payload, err = decodeTask[PodiumTask](raw.Payload)
	case TaskQuit:
		payload, err = decodeTask[QuitTask](raw.Payload)
	default:
		return fmt.Errorf("unknown task type %q", raw.Type)
	}
	if err != nil {
		return err
	}
	*t = Task{ID: raw.ID, Status: raw.Status, Created: raw.Created, Payload: payload}
	return nil
}

func decodeTask[T TaskPayload](payload json.RawMessage) (TaskPayload, error) {
	var p T
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
	}
	return p, nil
}
