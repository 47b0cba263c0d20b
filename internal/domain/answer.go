package domain

import (
	"fmt"
	"time"
)

// Answer is a player's submission for one question task. Exactly one typed
// value is set and it must match Type. Created is assigned by the server.
type Answer struct {
	PlayerID    string       `json:"playerId"`
	Type        QuestionType `json:"type"`
	Created     time.Time    `json:"created"`
	OptionIndex *int         `json:"optionIndex,omitempty"`
	Value       *float64     `json:"value,omitempty"`
	TrueFalse   *bool        `json:"trueFalse,omitempty"`
	Text        *string      `json:"text,omitempty"`
	Pin         *Point       `json:"pin,omitempty"`
	Order       []string     `json:"order,omitempty"`
}

// Validate reports whether the typed value matches the discriminator.
func (a Answer) Validate() error {
	set := 0
	if a.OptionIndex != nil {
		set++
	}
	if a.Value != nil {
		set++
	}
	if a.TrueFalse != nil {
		set++
	}
	if a.Text != nil {
		set++
	}
	if a.Pin != nil {
		set++
	}
	if a.Order != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: expected exactly one value, got %d", ErrInvalidAnswer, set)
	}

	var ok bool
	switch a.Type {
	case QuestionMultiChoice:
		ok = a.OptionIndex != nil
	case QuestionRange:
		ok = a.Value != nil
	case QuestionTrueFalse:
		ok = a.TrueFalse != nil
	case QuestionTypeAnswer:
		ok = a.Text != nil
	case QuestionPin:
		ok = a.Pin != nil
	case QuestionPuzzle:
		ok = a.Order != nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAnswer, a.Type)
	}
	if !ok {
		return fmt.Errorf("%w: value does not match %s", ErrInvalidAnswer, a.Type)
	}
	return nil
}
