package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGameNotFound is returned when a game has not been created or has expired.
	ErrGameNotFound = errors.New("game not found")
	// ErrGameConflict is returned when a save races with another writer.
	ErrGameConflict = errors.New("game was modified concurrently")
	// ErrGameCompleted is returned for actions on a game that reached podium or quit.
	ErrGameCompleted = errors.New("game is completed")
	// ErrGameFull is returned when the participant limit is reached.
	ErrGameFull = errors.New("game is full")
	// ErrParticipantNotFound is returned when a participant tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in game")
	// ErrNicknameTaken is returned when another player already uses the nickname.
	ErrNicknameTaken = errors.New("nickname already taken")
	// ErrInvalidNickname is returned for empty or oversized nicknames.
	ErrInvalidNickname = errors.New("invalid nickname")
	// ErrNotHost is returned when a player attempts a host-only action.
	ErrNotHost = errors.New("participant is not the host")
	// ErrNotPlayer is returned when the host attempts to answer.
	ErrNotPlayer = errors.New("participant is not a player")
	// ErrNoPlayers is returned when starting a game without players.
	ErrNoPlayers = errors.New("game has no players")
	// ErrNoMoreQuestions is returned when every question has been played.
	ErrNoMoreQuestions = errors.New("no questions left to play")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotOpen is returned for answers outside an active question.
	ErrQuestionNotOpen = errors.New("question is not open for answers")
	// ErrAnswerAlreadySubmitted is returned when a player answers a question twice.
	ErrAnswerAlreadySubmitted = errors.New("answer already submitted")
	// ErrAnswerWindowClosed is returned when the answer log was sealed for grading.
	ErrAnswerWindowClosed = errors.New("answer window closed")
	// ErrInvalidAnswer is returned when an answer does not fit the question type.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrInvalidQuestion is returned when question content is malformed.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrTransitionInProgress is returned when the game lock could not be acquired in time.
	ErrTransitionInProgress = errors.New("a concurrent transition is in progress")
	// ErrIllegalTaskType matches any *IllegalTaskTypeError through errors.Is.
	ErrIllegalTaskType = errors.New("illegal task type")
)

// IllegalTaskTypeError reports a transition attempted from an incompatible task.
type IllegalTaskTypeError struct {
	Found    TaskType
	Expected []TaskType
}

// NewIllegalTaskTypeError builds the error for a found task and the accepted types.
func NewIllegalTaskTypeError(found TaskType, expected ...TaskType) *IllegalTaskTypeError {
	return &IllegalTaskTypeError{Found: found, Expected: expected}
}

func (e *IllegalTaskTypeError) Error() string {
	expected := make([]string, len(e.Expected))
	for i, t := range e.Expected {
		expected[i] = string(t)
	}
	return fmt.Sprintf("illegal task type: found %s, expected %s", e.Found, strings.Join(expected, " or "))
}

// Is makes errors.Is(err, ErrIllegalTaskType) hold for every instance.
func (e *IllegalTaskTypeError) Is(target error) bool {
	return target == ErrIllegalTaskType
}
