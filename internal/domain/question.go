package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// QuestionType discriminates the question variants.
type QuestionType string

const (
	QuestionMultiChoice QuestionType = "multi_choice"
	QuestionRange       QuestionType = "range"
	QuestionTrueFalse   QuestionType = "true_false"
	QuestionTypeAnswer  QuestionType = "type_answer"
	QuestionPin         QuestionType = "pin"
	QuestionPuzzle      QuestionType = "puzzle"
)

// Question is one quiz question. Common fields live here; the correct-answer
// shape lives in Body.
type Question struct {
	Text     string
	Duration int // seconds
	Points   int
	Body     QuestionBody
}

// QuestionBody is implemented by exactly the variants declared in this file.
type QuestionBody interface {
	questionType() QuestionType
}

// Type returns the discriminator of the question body.
func (q Question) Type() QuestionType {
	if q.Body == nil {
		return ""
	}
	return q.Body.questionType()
}

// Window returns the answer window length.
func (q Question) Window() time.Duration {
	return time.Duration(q.Duration) * time.Second
}

// MultiChoiceOption is one selectable option.
type MultiChoiceOption struct {
	Value   string `json:"value"`
	Correct bool   `json:"correct"`
}

// MultiChoice accepts any option flagged correct.
type MultiChoice struct {
	Options []MultiChoiceOption `json:"options"`
}

// RangeMargin controls how far from the correct value a classic range answer may land.
type RangeMargin string

const (
	RangeMarginNone    RangeMargin = "none"
	RangeMarginLow     RangeMargin = "low"
	RangeMarginMedium  RangeMargin = "medium"
	RangeMarginHigh    RangeMargin = "high"
	RangeMarginMaximum RangeMargin = "maximum"
)

// Range asks for a number within [Min, Max].
type Range struct {
	Min     float64     `json:"min"`
	Max     float64     `json:"max"`
	Step    float64     `json:"step"`
	Margin  RangeMargin `json:"margin"`
	Correct float64     `json:"correct"`
}

// Width is the span of the range.
func (r Range) Width() float64 {
	return r.Max - r.Min
}

// TrueFalse is a boolean question.
type TrueFalse struct {
	Correct bool `json:"correct"`
}

// TypeAnswer accepts any of Options as free text.
type TypeAnswer struct {
	Options []string `json:"options"`
}

// Point is a position in normalized image space, both axes in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// PinTolerance controls the accepted radius around the correct pin position.
type PinTolerance string

const (
	PinToleranceLow     PinTolerance = "low"
	PinToleranceMedium  PinTolerance = "medium"
	PinToleranceHigh    PinTolerance = "high"
	PinToleranceMaximum PinTolerance = "maximum"
)

// Pin asks the player to drop a pin on an image.
type Pin struct {
	ImageURL  string       `json:"imageUrl"`
	Position  Point        `json:"position"`
	Tolerance PinTolerance `json:"tolerance"`
}

// Puzzle asks the player to put Values back in their stored order.
type Puzzle struct {
	Values []string `json:"values"`
}

func (MultiChoice) questionType() QuestionType { return QuestionMultiChoice }
func (Range) questionType() QuestionType       { return QuestionRange }
func (TrueFalse) questionType() QuestionType   { return QuestionTrueFalse }
func (TypeAnswer) questionType() QuestionType  { return QuestionTypeAnswer }
func (Pin) questionType() QuestionType         { return QuestionPin }
func (Puzzle) questionType() QuestionType      { return QuestionPuzzle }

// Validate checks the question content before a game is created from it.
func (q Question) Validate() error {
	if q.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidQuestion)
	}
	if q.Points < 0 {
		return fmt.Errorf("%w: points must not be negative", ErrInvalidQuestion)
	}
	switch body := q.Body.(type) {
	case MultiChoice:
		if len(body.Options) < 2 {
			return fmt.Errorf("%w: multi choice needs at least two options", ErrInvalidQuestion)
		}
		for _, opt := range body.Options {
			if opt.Correct {
				return nil
			}
		}
		return fmt.Errorf("%w: multi choice needs a correct option", ErrInvalidQuestion)
	case Range:
		if body.Min >= body.Max {
			return fmt.Errorf("%w: range min must be below max", ErrInvalidQuestion)
		}
		if body.Correct < body.Min || body.Correct > body.Max {
			return fmt.Errorf("%w: range correct value outside range", ErrInvalidQuestion)
		}
		return nil
	case TrueFalse:
		return nil
	case TypeAnswer:
		if len(body.Options) == 0 {
			return fmt.Errorf("%w: type answer needs an accepted option", ErrInvalidQuestion)
		}
		return nil
	case Pin:
		if body.Position.X < 0 || body.Position.X > 1 || body.Position.Y < 0 || body.Position.Y > 1 {
			return fmt.Errorf("%w: pin position outside image", ErrInvalidQuestion)
		}
		return nil
	case Puzzle:
		if len(body.Values) < 2 {
			return fmt.Errorf("%w: puzzle needs at least two values", ErrInvalidQuestion)
		}
		return nil
	case nil:
		return fmt.Errorf("%w: missing body", ErrInvalidQuestion)
	default:
		return fmt.Errorf("%w: unknown body %T", ErrInvalidQuestion, body)
	}
}

type questionJSON struct {
	Type     QuestionType    `json:"type"`
	Text     string          `json:"text"`
	Duration int             `json:"duration"`
	Points   int             `json:"points"`
	Payload  json.RawMessage `json:"payload"`
}

func (q Question) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(q.Body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(questionJSON{
		Type:     q.Type(),
		Text:     q.Text,
		Duration: q.Duration,
		Points:   q.Points,
		Payload:  payload,
	})
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var raw questionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	body, err := decodeQuestionBody(raw.Type, raw.Payload)
	if err != nil {
		return err
	}
	*q = Question{Text: raw.Text, Duration: raw.Duration, Points: raw.Points, Body: body}
	return nil
}

func decodeQuestionBody(t QuestionType, payload json.RawMessage) (QuestionBody, error) {
	switch t {
	case QuestionMultiChoice:
		return decodeBody[MultiChoice](payload)
	case QuestionRange:
		return decodeBody[Range](payload)
	case QuestionTrueFalse:
		return decodeBody[TrueFalse](payload)
	case QuestionTypeAnswer:
		return decodeBody[TypeAnswer](payload)
	case QuestionPin:
		return decodeBody[Pin](payload)
	case QuestionPuzzle:
		return decodeBody[Puzzle](payload)
	default:
		return nil, fmt.Errorf("unknown question type %q", t)
	}
}

func decodeBody[T QuestionBody](payload json.RawMessage) (QuestionBody, error) {
	var body T
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, err
		}
	}
	return body, nil
}
