package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-game-service/internal/app"
	"quiz-game-service/internal/config"
	"quiz-game-service/internal/domain"
	"quiz-game-service/internal/infra/memory"
	pgloader "quiz-game-service/internal/infra/postgres"
	redisstore "quiz-game-service/internal/infra/redis"
	transport "quiz-game-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	deps := buildDependencies(cfg, redisClient, pool)
	service := app.NewGameService(deps, cfg.GameOptions())

	runCtx, stopEngine := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := service.Run(runCtx); err != nil {
			log.Printf("scheduler stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transport.NewWSHandler(service).ServeWS)
	transport.NewGameHandler(service).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting game service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)

	stopEngine()
	<-engineDone
	service.Close()
	return err
}

// buildDependencies picks Redis adapters when Redis is configured so several
// instances can serve one game, and in-process adapters otherwise.
func buildDependencies(cfg config.Config, redisClient *redis.Client, pool *pgxpool.Pool) app.Dependencies {
	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	gameTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	if redisClient == nil {
		return app.Dependencies{
			Games:       memory.NewGameStore(),
			Quizzes:     memory.NewQuizRepository(loader, quizTTL),
			Locker:      memory.NewLocker(),
			Answers:     memory.NewAnswerLog(gameTTL),
			Jobs:        memory.NewJobQueue(),
			Broadcaster: memory.NewBroadcaster(),
		}
	}

	pollInterval := config.TTLDuration(cfg.Game.JobPollInterval, 100*time.Millisecond)
	return app.Dependencies{
		Games:       redisstore.NewGameStore(redisClient, gameTTL),
		Quizzes:     redisstore.NewQuizRepository(redisClient, loader, quizTTL),
		Locker:      redisstore.NewLocker(redisClient),
		Answers:     redisstore.NewAnswerLog(redisClient, gameTTL),
		Jobs:        redisstore.NewJobQueue(redisClient, pollInterval),
		Broadcaster: redisstore.NewBroadcaster(redisClient),
	}
}

// sampleQuizzes provides a minimal quiz for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	order := []string{"Mercury", "Venus", "Earth", "Mars"}
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm up",
			Mode:  domain.ModeClassic,
			Questions: []domain.Question{
				{
					Text:     "What is 2 + 2?",
					Duration: 20,
					Points:   1000,
					Body: domain.MultiChoice{Options: []domain.MultiChoiceOption{
						{Value: "3"},
						{Value: "4", Correct: true},
						{Value: "5"},
					}},
				},
				{
					Text:     "The Go gopher is blue",
					Duration: 10,
					Points:   1000,
					Body:     domain.TrueFalse{Correct: true},
				},
				{
					Text:     "Order the planets by distance from the sun",
					Duration: 30,
					Points:   2000,
					Body:     domain.Puzzle{Values: order},
				},
			},
		},
		"quiz-100": {
			ID:    "quiz-100",
			Title: "Guess the number",
			Mode:  domain.ModeZeroToOneHundred,
			Questions: []domain.Question{
				{
					Text:     "How many countries are in the UN?",
					Duration: 20,
					Points:   100,
					Body:     domain.Range{Min: 0, Max: 100, Step: 1, Correct: 93},
				},
			},
		},
	}
}
