package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"quiz-game-service/internal/domain"
	"quiz-game-service/internal/scoring"
)

// Options tunes the game engine.
type Options struct {
	MaxParticipants   int
	QuestionCountdown time.Duration
	LockTTL           time.Duration
	LockTimeout       time.Duration
	PublishWorkers    int
	PublishBuffer     int
}

// DefaultOptions returns the values used when config leaves a field empty.
func DefaultOptions() Options {
	return Options{
		MaxParticipants:   200,
		QuestionCountdown: 5 * time.Second,
		LockTTL:           10 * time.Second,
		LockTimeout:       3 * time.Second,
		PublishWorkers:    4,
		PublishBuffer:     256,
	}
}

// Dependencies are the storage and messaging adapters of the engine.
type Dependencies struct {
	Games       GameRepository
	Quizzes     QuizRepository
	Locker      Locker
	Answers     AnswerLog
	Jobs        JobQueue
	Broadcaster Broadcaster
}

const (
	maxNicknameLength = 20
	closeRetryDelay   = time.Second
)

var errLockBusy = errors.New("game lock busy")

// GameService contains the live game use cases. Every state transition runs
// under the per-game lock; answer submissions do not.
type GameService struct {
	games        GameRepository
	quizzes      QuizRepository
	locker       Locker
	broadcaster  Broadcaster
	answers      *AnswerAggregator
	machine      *TaskStateMachine
	orchestrator *EventOrchestrator
	publisher    *EventPublisher
	scheduler    *TransitionScheduler
	opts         Options
	now          func() time.Time
}

func NewGameService(deps Dependencies, opts Options) *GameService {
	return NewGameServiceWithClock(deps, opts, time.Now)
}

// NewGameServiceWithClock is test-only for deterministic timestamps.
func NewGameServiceWithClock(deps Dependencies, opts Options, now func() time.Time) *GameService {
	defaults := DefaultOptions()
	if opts.MaxParticipants <= 0 {
		opts.MaxParticipants = defaults.MaxParticipants
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaults.LockTTL
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaults.LockTimeout
	}
	if opts.QuestionCountdown < 0 {
		opts.QuestionCountdown = 0
	}

	orchestrator := NewEventOrchestrator()
	publisher := NewEventPublisher(deps.Broadcaster, orchestrator, opts.PublishWorkers, opts.PublishBuffer)
	publisher.now = now
	return &GameService{
		games:        deps.Games,
		quizzes:      deps.Quizzes,
		locker:       deps.Locker,
		broadcaster:  deps.Broadcaster,
		answers:      NewAnswerAggregator(deps.Answers),
		machine:      NewTaskStateMachineWithClock(opts.QuestionCountdown, now, now().UnixNano()),
		orchestrator: orchestrator,
		publisher:    publisher,
		scheduler:    NewTransitionScheduler(deps.Jobs),
		opts:         opts,
		now:          now,
	}
}

// Run drives scheduled transitions until ctx is canceled.
func (s *GameService) Run(ctx context.Context) error {
	return s.scheduler.Run(ctx, s.handleJob)
}

// Close flushes pending events.
func (s *GameService) Close() {
	s.publisher.Close()
}

// CreateGame starts a new game in the lobby from quiz content.
func (s *GameService) CreateGame(ctx context.Context, quizID string) (*domain.Game, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	mode := quiz.Mode
	if mode == "" {
		mode = domain.ModeClassic
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz %s has no questions", domain.ErrInvalidQuestion, quizID)
	}
	for i, q := range quiz.Questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		if !scoring.Supports(mode, q.Type()) {
			return nil, fmt.Errorf("question %d: %w", i, scoring.ErrUnsupportedQuestion)
		}
	}

	now := s.now()
	game := &domain.Game{
		ID:            uuid.NewString(),
		QuizID:        quiz.ID,
		Mode:          mode,
		Status:        domain.GameActive,
		Questions:     append([]domain.Question(nil), quiz.Questions...),
		CurrentTask:   s.machine.BuildLobbyTask(),
		PreviousTasks: []domain.Task{},
		Participants:  []domain.Participant{},
		Created:       now,
		Updated:       now,
	}
	s.machine.Activate(game)
	if err := s.games.Create(ctx, game); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	log.Printf("game %s created from quiz %s (%s)", game.ID, quiz.ID, mode)
	return game, nil
}

// GetGame loads a game without locking it.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	return s.games.Load(ctx, gameID)
}

// Join registers or refreshes a participant. The first participant of an
// empty game becomes the host; a rejoin with the same id keeps its role and
// is allowed after the game completed.
func (s *GameService) Join(ctx context.Context, gameID, participantID, nickname string) (domain.Participant, error) {
	if participantID == "" {
		participantID = uuid.NewString()
	}
	nickname = strings.TrimSpace(nickname)

	var joined domain.Participant
	_, err := s.transition(ctx, gameID, func(game *domain.Game) (bool, error) {
		now := s.now()

		if existing, ok := game.Participant(participantID); ok {
			if existing.Player != nil && nickname != "" && nickname != existing.Player.Nickname {
				if err := validateNickname(game, nickname, participantID); err != nil {
					return false, err
				}
				existing.Player.Nickname = nickname
			}
			existing.Updated = now
			joined = *existing
			return true, nil
		}

		if game.Status == domain.GameCompleted {
			return false, domain.ErrGameCompleted
		}
		if len(game.Participants) >= s.opts.MaxParticipants {
			return false, domain.ErrGameFull
		}
		participant := domain.Participant{ID: participantID, Created: now, Updated: now}
		if len(game.Participants) == 0 {
			participant.Role = domain.RoleHost
		} else {
			if err := validateNickname(game, nickname, participantID); err != nil {
				return false, err
			}
			participant.Role = domain.RolePlayer
			participant.Player = &domain.PlayerState{Nickname: nickname}
		}
		game.Participants = append(game.Participants, participant)
		joined = participant
		return true, nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return joined, nil
}

// Leave removes a player. The host cannot leave; see DESIGN.md.
func (s *GameService) Leave(ctx context.Context, gameID, participantID string) error {
	_, err := s.transition(ctx, gameID, func(game *domain.Game) (bool, error) {
		participant, ok := game.Participant(participantID)
		if !ok {
			return false, domain.ErrParticipantNotFound
		}
		if participant.IsHost() {
			return false, domain.ErrNotPlayer
		}
		kept := game.Participants[:0]
		for _, p := range game.Participants {
			if p.ID != participantID {
				kept = append(kept, p)
			}
		}
		game.Participants = kept
		return true, nil
	})
	return err
}

// SubmitAnswer records a player's answer to the open question. The answer is
// timestamped on arrival; a client timestamp is never used.
func (s *GameService) SubmitAnswer(ctx context.Context, gameID, playerID string, input AnswerInput) (domain.Answer, error) {
	now := s.now()
	game, err := s.games.Load(ctx, gameID)
	if err != nil {
		return domain.Answer{}, err
	}
	participant, ok := game.Participant(playerID)
	if !ok {
		return domain.Answer{}, domain.ErrParticipantNotFound
	}
	if participant.Player == nil {
		return domain.Answer{}, domain.ErrNotPlayer
	}
	// The window alone decides acceptance; a late activation job must not
	// keep an open question closed.
	question, qt, ok := game.CurrentQuestion()
	if !ok || now.Before(qt.PresentedAt) {
		return domain.Answer{}, domain.ErrQuestionNotOpen
	}
	if now.After(qt.PresentedAt.Add(question.Window())) {
		return domain.Answer{}, domain.ErrAnswerWindowClosed
	}

	answer, err := s.orchestrator.ToQuestionTaskAnswer(playerID, question, qt.Metadata, input, now)
	if err != nil {
		return domain.Answer{}, err
	}
	taskID := game.CurrentTask.ID
	if err := s.answers.Submit(ctx, game.ID, taskID, answer); err != nil {
		return domain.Answer{}, err
	}

	if graded, err := s.refreshQuestion(ctx, game.ID, taskID); err != nil {
		log.Printf("refresh question %s in game %s: %v", taskID, game.ID, err)
		if graded {
			s.retryClose(ctx, game.ID, taskID)
		}
	}
	return answer, nil
}

// refreshQuestion republishes the question views after a submission, or
// grades the question once every player has answered; graded reports whether
// that early close was attempted. It reloads the game under the lock, so a
// view of taskID is never queued behind the transition that replaced it.
func (s *GameService) refreshQuestion(ctx context.Context, gameID, taskID string) (graded bool, err error) {
	_, err = s.transition(ctx, gameID, func(game *domain.Game) (bool, error) {
		if game.CurrentTask.ID != taskID {
			return false, nil
		}
		answers, err := s.answers.Answers(ctx, gameID, taskID)
		if err != nil {
			return false, err
		}
		if !Tally(answers, game.Players()).Complete() {
			s.publisher.Publish(game, answers)
			return false, nil
		}
		graded = true
		if err := s.grade(ctx, game); err != nil {
			return false, err
		}
		return true, nil
	})
	return graded, err
}

// Advance moves the game to its next phase. When expectedTaskID is set and no
// longer current, another transition won the race and Advance is a no-op.
func (s *GameService) Advance(ctx context.Context, gameID, participantID, expectedTaskID string) (*domain.Game, error) {
	return s.transition(ctx, gameID, func(game *domain.Game) (bool, error) {
		if err := requireHost(game, participantID); err != nil {
			return false, err
		}
		if expectedTaskID != "" && game.CurrentTask.ID != expectedTaskID {
			return false, nil
		}
		return s.advance(ctx, game)
	})
}

// Quit ends the game from any phase. Scheduled jobs are left to expire.
func (s *GameService) Quit(ctx context.Context, gameID, participantID string) (*domain.Game, error) {
	return s.transition(ctx, gameID, func(game *domain.Game) (bool, error) {
		if err := requireHost(game, participantID); err != nil {
			return false, err
		}
		if game.CurrentTask.Type() == domain.TaskQuit {
			return false, nil
		}
		if _, err := s.machine.BuildQuitTask(game); err != nil {
			return false, err
		}
		s.machine.Activate(game)
		return true, nil
	})
}

// Subscribe returns the private event stream of a participant.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(ctx context.Context, gameID, participantID string) (<-chan []byte, func(), error) {
	return s.broadcaster.Subscribe(ctx, ParticipantChannel(gameID, participantID))
}

// CurrentEvent renders the current view of a participant, used on connect.
func (s *GameService) CurrentEvent(ctx context.Context, gameID, participantID string) (Event, error) {
	game, err := s.games.Load(ctx, gameID)
	if err != nil {
		return Event{}, err
	}
	participant, ok := game.Participant(participantID)
	if !ok {
		return Event{}, domain.ErrParticipantNotFound
	}
	var answers []domain.Answer
	if game.CurrentTask.Type() == domain.TaskQuestion {
		if answers, err = s.answers.Answers(ctx, game.ID, game.CurrentTask.ID); err != nil {
			return Event{}, err
		}
	}
	if participant.IsHost() {
		return s.orchestrator.HostEvent(game, answers, s.now()), nil
	}
	return s.orchestrator.PlayerEvent(game, participantID, answers, s.now())
}

func (s *GameService) advance(ctx context.Context, game *domain.Game) (bool, error) {
	switch game.CurrentTask.Type() {
	case domain.TaskLobby:
		if len(game.Players()) == 0 {
			return false, domain.ErrNoPlayers
		}
		if _, err := s.machine.BuildQuestionTask(game); err != nil {
			return false, err
		}
		return true, nil
	case domain.TaskQuestion:
		if err := s.grade(ctx, game); err != nil {
			return false, err
		}
		return true, nil
	case domain.TaskQuestionResult:
		leaderboard, err := BuildLeaderboard(game)
		if err != nil {
			return false, err
		}
		if game.HasMoreQuestions() {
			_, err = s.machine.BuildLeaderboardTask(game, leaderboard)
		} else {
			_, err = s.machine.BuildPodiumTask(game, leaderboard)
		}
		if err != nil {
			return false, err
		}
		s.machine.Activate(game)
		return true, nil
	case domain.TaskLeaderboard:
		if _, err := s.machine.BuildQuestionTask(game); err != nil {
			return false, err
		}
		return true, nil
	case domain.TaskPodium, domain.TaskQuit:
		return false, domain.ErrGameCompleted
	default:
		return false, domain.NewIllegalTaskTypeError(game.CurrentTask.Type(), domain.TaskLobby)
	}
}

func (s *GameService) grade(ctx context.Context, game *domain.Game) error {
	if err := expectTask(game, domain.TaskQuestion); err != nil {
		return err
	}
	answers, err := s.answers.Drain(ctx, game.ID, game.CurrentTask.ID)
	if err != nil {
		return err
	}
	if _, err := s.machine.BuildQuestionResultTask(game, answers); err != nil {
		return err
	}
	s.machine.Activate(game)
	return nil
}

// closeQuestion grades taskID if it is still the current question. A lock
// timeout abandons the close; a failure after grading started reschedules it.
func (s *GameService) closeQuestion(ctx context.Context, gameID, taskID string) (*domain.Game, error) {
	graded := false
	game, err := s.transition(ctx, gameID, func(game *domain.Game) (bool, error) {
		if game.CurrentTask.ID != taskID || game.CurrentTask.Type() != domain.TaskQuestion {
			return false, nil
		}
		graded = true
		if err := s.grade(ctx, game); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil && graded {
		s.retryClose(ctx, gameID, taskID)
	}
	return game, err
}

// retryClose schedules another close_question after a failed grade. Grading
// seals the answer log before the save, so without a retry a question whose
// save failed would stay current with answers already closed.
func (s *GameService) retryClose(ctx context.Context, gameID, taskID string) {
	job := Job{GameID: gameID, TaskID: taskID, Kind: JobCloseQuestion}
	if err := s.scheduler.Schedule(ctx, job, closeRetryDelay); err != nil {
		log.Printf("reschedule %s: %v", job.Key(), err)
	}
}

func (s *GameService) handleJob(ctx context.Context, job Job) {
	var err error
	switch job.Kind {
	case JobActivateQuestion:
		_, err = s.transition(ctx, job.GameID, func(game *domain.Game) (bool, error) {
			if game.CurrentTask.ID != job.TaskID {
				log.Printf("job %s is stale, current task is %s", job.Key(), game.CurrentTask.ID)
				return false, nil
			}
			return s.machine.Activate(game), nil
		})
	case JobCloseQuestion:
		_, err = s.closeQuestion(ctx, job.GameID, job.TaskID)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if err != nil {
		log.Printf("job %s abandoned: %v", job.Key(), err)
	}
}

// transition runs fn under the game lock. fn reports whether it changed the
// game; only then is the game saved, follow-up jobs scheduled and events
// published. A failed save aborts the whole transition.
func (s *GameService) transition(ctx context.Context, gameID string, fn func(*domain.Game) (bool, error)) (*domain.Game, error) {
	release, err := s.lock(ctx, gameID)
	if err != nil {
		return nil, err
	}
	defer release()

	game, err := s.games.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	previous := game.CurrentTask

	changed, err := fn(game)
	if err != nil {
		return nil, err
	}
	if !changed {
		return game, nil
	}
	game.Updated = s.now()
	if err := s.games.Save(ctx, game); err != nil {
		return nil, fmt.Errorf("save game %s: %w", gameID, err)
	}

	s.afterCommit(ctx, game, previous)
	return game, nil
}

func (s *GameService) afterCommit(ctx context.Context, game *domain.Game, previous domain.Task) {
	current := game.CurrentTask
	if current.ID != previous.ID {
		log.Printf("game %s: %s -> %s", game.ID, previous.Type(), current.Type())
		if previous.Type() == domain.TaskQuestion {
			if err := s.answers.Discard(ctx, game.ID, previous.ID); err != nil {
				log.Printf("discard answers of task %s: %v", previous.ID, err)
			}
		}
		if question, qt, ok := game.CurrentQuestion(); ok {
			now := s.now()
			jobs := []struct {
				kind  JobKind
				delay time.Duration
			}{
				{JobActivateQuestion, qt.PresentedAt.Sub(now)},
				{JobCloseQuestion, qt.PresentedAt.Add(question.Window()).Sub(now)},
			}
			for _, j := range jobs {
				job := Job{GameID: game.ID, TaskID: current.ID, Kind: j.kind}
				if err := s.scheduler.Schedule(ctx, job, j.delay); err != nil {
					log.Printf("schedule %s: %v", job.Key(), err)
				}
			}
		}
	}
	var answers []domain.Answer
	if current.Type() == domain.TaskQuestion {
		var err error
		if answers, err = s.answers.Answers(ctx, game.ID, current.ID); err != nil {
			log.Printf("snapshot answers for game %s: %v", game.ID, err)
		}
	}
	s.publisher.Publish(game, answers)
}

// lock acquires the game lock, retrying with backoff until LockTimeout.
func (s *GameService) lock(ctx context.Context, gameID string) (func(), error) {
	key := "game:lock:" + gameID

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = s.opts.LockTimeout

	var token string
	err := backoff.Retry(func() error {
		t, acquired, err := s.locker.TryAcquire(ctx, key, s.opts.LockTTL)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !acquired {
			return errLockBusy
		}
		token = t
		return nil
	}, backoff.WithContext(policy, ctx))
	if errors.Is(err, errLockBusy) {
		return nil, domain.ErrTransitionInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("acquire game lock: %w", err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			log.Printf("release lock %s: %v", key, err)
		}
	}, nil
}

func requireHost(game *domain.Game, participantID string) error {
	participant, ok := game.Participant(participantID)
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if !participant.IsHost() {
		return domain.ErrNotHost
	}
	return nil
}

func validateNickname(game *domain.Game, nickname, participantID string) error {
	if nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLength {
		return domain.ErrInvalidNickname
	}
	if game.NicknameTaken(nickname, participantID) {
		return domain.ErrNicknameTaken
	}
	return nil
}
