// Package scoring grades answers. Every function is pure; rules are selected
// by game mode and question type.
package scoring

import (
	"errors"
	"math"
	"strings"
	"time"

	"quiz-game-service/internal/domain"
)

// ErrUnsupportedQuestion is returned for a question type the game mode cannot grade.
var ErrUnsupportedQuestion = errors.New("question type not supported by game mode")

// Outcome is the graded result of a single answer. Precision is only set in
// zero-to-one-hundred mode.
type Outcome struct {
	Correct   bool
	Score     int
	Precision *float64
}

type correctFunc func(q domain.Question, a domain.Answer, meta domain.QuestionMetadata) bool

type scoreFunc func(presented time.Time, q domain.Question, a *domain.Answer, meta domain.QuestionMetadata, correct correctFunc) Outcome

type rule struct {
	correct correctFunc
	score   scoreFunc
}

type ruleKey struct {
	mode domain.GameMode
	typ  domain.QuestionType
}

var rules = map[ruleKey]rule{
	{domain.ModeClassic, domain.QuestionMultiChoice}: {multiChoiceCorrect, classicScore},
	{domain.ModeClassic, domain.QuestionRange}:       {rangeCorrect, classicScore},
	{domain.ModeClassic, domain.QuestionTrueFalse}:   {trueFalseCorrect, classicScore},
	{domain.ModeClassic, domain.QuestionTypeAnswer}:  {typeAnswerCorrect, classicScore},
	{domain.ModeClassic, domain.QuestionPin}:         {pinCorrect, classicScore},
	{domain.ModeClassic, domain.QuestionPuzzle}:      {puzzleCorrect, classicScore},

	{domain.ModeZeroToOneHundred, domain.QuestionRange}: {exactRangeCorrect, precisionScore},
}

func lookup(mode domain.GameMode, typ domain.QuestionType) (rule, error) {
	r, ok := rules[ruleKey{mode, typ}]
	if !ok {
		return rule{}, ErrUnsupportedQuestion
	}
	return r, nil
}

// Supports reports whether mode can grade questions of typ.
func Supports(mode domain.GameMode, typ domain.QuestionType) bool {
	_, err := lookup(mode, typ)
	return err == nil
}

// IsAnsweredInTime reports whether answered falls inside [presented, presented+duration].
// Duration is in seconds and must be finite and positive.
func IsAnsweredInTime(presented, answered time.Time, duration float64) bool {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return false
	}
	if presented.IsZero() || answered.IsZero() {
		return false
	}
	if answered.Before(presented) {
		return false
	}
	deadline := presented.Add(time.Duration(duration * float64(time.Second)))
	return !answered.After(deadline)
}

// IsCorrect grades correctness only, ignoring the answer window.
func IsCorrect(mode domain.GameMode, q domain.Question, a domain.Answer, meta domain.QuestionMetadata) (bool, error) {
	r, err := lookup(mode, q.Type())
	if err != nil {
		return false, err
	}
	if a.Type != q.Type() {
		return false, nil
	}
	return r.correct(q, a, meta), nil
}

// CalculateScore grades an answer presented at presented. A nil answer is an
// unanswered question.
func CalculateScore(mode domain.GameMode, presented time.Time, q domain.Question, a *domain.Answer, meta domain.QuestionMetadata) (Outcome, error) {
	r, err := lookup(mode, q.Type())
	if err != nil {
		return Outcome{}, err
	}
	if a != nil && a.Type != q.Type() {
		a = nil
	}
	return r.score(presented, q, a, meta, r.correct), nil
}

// ClassicPoints decays from points at zero elapsed time to half of points at
// the end of the answer window.
func ClassicPoints(presented, answered time.Time, duration float64, points int) int {
	if !IsAnsweredInTime(presented, answered, duration) {
		return 0
	}
	elapsed := answered.Sub(presented).Seconds()
	ratio := math.Min(math.Max(elapsed/duration, 0), 1)
	return int(math.Round(float64(points) * (1 - ratio/2)))
}

// Precision is 1 for an exact answer and falls linearly to 0 at a full range width away.
func Precision(correct, answer, width float64) float64 {
	if width <= 0 {
		if correct == answer {
			return 1
		}
		return 0
	}
	return math.Min(math.Max(1-math.Abs(correct-answer)/width, 0), 1)
}

func classicScore(presented time.Time, q domain.Question, a *domain.Answer, meta domain.QuestionMetadata, correct correctFunc) Outcome {
	if a == nil || !IsAnsweredInTime(presented, a.Created, float64(q.Duration)) {
		return Outcome{}
	}
	if !correct(q, *a, meta) {
		return Outcome{}
	}
	return Outcome{
		Correct: true,
		Score:   ClassicPoints(presented, a.Created, float64(q.Duration), q.Points),
	}
}

// precisionScore treats a missing or late answer as precision 0.
func precisionScore(presented time.Time, q domain.Question, a *domain.Answer, meta domain.QuestionMetadata, correct correctFunc) Outcome {
	zero := 0.0
	body, ok := q.Body.(domain.Range)
	if !ok || a == nil || a.Value == nil || !IsAnsweredInTime(presented, a.Created, float64(q.Duration)) {
		return Outcome{Precision: &zero}
	}
	precision := Precision(body.Correct, *a.Value, body.Width())
	return Outcome{
		Correct:   correct(q, *a, meta),
		Score:     int(math.Round(precision * float64(q.Points))),
		Precision: &precision,
	}
}

func multiChoiceCorrect(q domain.Question, a domain.Answer, _ domain.QuestionMetadata) bool {
	body, ok := q.Body.(domain.MultiChoice)
	if !ok || a.OptionIndex == nil {
		return false
	}
	idx := *a.OptionIndex
	return idx >= 0 && idx < len(body.Options) && body.Options[idx].Correct
}

var rangeMargins = map[domain.RangeMargin]float64{
	domain.RangeMarginNone:   0,
	domain.RangeMarginLow:    0.05,
	domain.RangeMarginMedium: 0.10,
	domain.RangeMarginHigh:   0.20,
}

const epsilon = 1e-9

func rangeCorrect(q domain.Question, a domain.Answer, _ domain.QuestionMetadata) bool {
	body, ok := q.Body.(domain.Range)
	if !ok || a.Value == nil {
		return false
	}
	value := *a.Value
	if value < body.Min-epsilon || value > body.Max+epsilon {
		return false
	}
	if body.Margin == domain.RangeMarginMaximum {
		return true
	}
	return math.Abs(value-body.Correct) <= rangeMargins[body.Margin]*body.Width()+epsilon
}

func exactRangeCorrect(q domain.Question, a domain.Answer, _ domain.QuestionMetadata) bool {
	body, ok := q.Body.(domain.Range)
	if !ok || a.Value == nil {
		return false
	}
	return math.Abs(*a.Value-body.Correct) <= epsilon
}

func trueFalseCorrect(q domain.Question, a domain.Answer, _ domain.QuestionMetadata) bool {
	body, ok := q.Body.(domain.TrueFalse)
	return ok && a.TrueFalse != nil && *a.TrueFalse == body.Correct
}

func typeAnswerCorrect(q domain.Question, a domain.Answer, _ domain.QuestionMetadata) bool {
	body, ok := q.Body.(domain.TypeAnswer)
	if !ok || a.Text == nil {
		return false
	}
	given := strings.TrimSpace(*a.Text)
	if given == "" {
		return false
	}
	for _, option := range body.Options {
		if strings.EqualFold(given, strings.TrimSpace(option)) {
			return true
		}
	}
	return false
}

var pinRadii = map[domain.PinTolerance]float64{
	domain.PinToleranceLow:    0.05,
	domain.PinToleranceMedium: 0.10,
	domain.PinToleranceHigh:   0.20,
}

func pinCorrect(q domain.Question, a domain.Answer, _ domain.QuestionMetadata) bool {
	body, ok := q.Body.(domain.Pin)
	if !ok || a.Pin == nil {
		return false
	}
	if body.Tolerance == domain.PinToleranceMaximum {
		return true
	}
	radius, ok := pinRadii[body.Tolerance]
	if !ok {
		radius = pinRadii[domain.PinToleranceLow]
	}
	return body.Position.Distance(*a.Pin) <= radius+epsilon
}

func puzzleCorrect(q domain.Question, a domain.Answer, _ domain.QuestionMetadata) bool {
	body, ok := q.Body.(domain.Puzzle)
	if !ok || len(a.Order) != len(body.Values) {
		return false
	}
	for i := range body.Values {
		if a.Order[i] != body.Values[i] {
			return false
		}
	}
	return true
}
