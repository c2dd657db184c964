package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"learnpath-service/internal/app"
	"learnpath-service/internal/auth"
	"learnpath-service/internal/config"
	"learnpath-service/internal/domain"
	"learnpath-service/internal/infra/memory"
	"learnpath-service/internal/infra/postgres"
	rediscache "learnpath-service/internal/infra/redis"
	transport "learnpath-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backends holds the open connections behind the services.
type backends struct {
	db    *bun.DB
	pool  *pgxpool.Pool
	redis *redis.Client
}

func (b backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

// buildServices wires repositories to the use cases. Postgres and Redis are
// optional: without them everything lives in process memory.
func buildServices(ctx context.Context, cfg config.Config) (transport.Services, backends, error) {
	var (
		b          backends
		err        error
		curriculum app.CurriculumRepository = memory.NewCurriculumStore()
		attempts   app.AttemptRepository    = memory.NewAttemptStore()
		badgeRepo  app.BadgeRepository      = memory.NewBadgeStore()
		sections   app.SectionRepository    = memory.NewSectionStore()
		quizStore  app.QuizStore            = memory.NewQuizStore(sampleQuizzes())
	)

	if cfg.Postgres.URL != "" {
		b.db = postgres.Open(cfg.Postgres.URL)
		if err := runMigrations(ctx, b.db); err != nil {
			b.Close()
			return transport.Services{}, backends{}, err
		}
		b.pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return transport.Services{}, backends{}, err
		}
		curriculum = postgres.NewCurriculumStore(b.db)
		attempts = postgres.NewAttemptStore(b.db)
		badgeRepo = postgres.NewBadgeStore(b.db)
		sections = postgres.NewSectionStore(b.db)
		quizStore = postgres.NewQuizStore(b.pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	boardTTL := config.TTLDuration(cfg.Leaderboard.TTL, time.Minute)
	var (
		quizRepo app.QuizRepository   = memory.NewQuizRepository(quizStore, quizTTL)
		cache    app.LeaderboardCache = memory.NewLeaderboardCache(boardTTL)
	)
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return transport.Services{}, backends{}, fmt.Errorf("redis ping: %w", err)
		}
		quizRepo = rediscache.NewQuizRepository(b.redis, quizStore, quizTTL)
		cache = rediscache.NewLeaderboardCache(b.redis, boardTTL)
	}

	badgeCfg := app.BadgeConfig{
		LookbackDays:        cfg.Badges.LookbackDays,
		StreakCutoff:        cfg.Badges.StreakCutoff,
		ImprovementGroupMax: cfg.Badges.ImprovementGroupMax,
	}
	badges := app.NewBadgeService(badgeRepo, attempts, badgeCfg)
	if err := badges.SeedCatalog(ctx); err != nil {
		b.Close()
		return transport.Services{}, backends{}, fmt.Errorf("seed badge catalog: %w", err)
	}
	boards := app.NewLeaderboardService(sections, attempts, cache, app.NewHub())
	curriculumSvc := app.NewCurriculumService(curriculum)
	sectionSvc := app.NewSectionService(sections, curriculum, boards)
	curriculumSvc.OnRemove(sectionSvc)

	return transport.Services{
		Curriculum: curriculumSvc,
		Quizzes:    app.NewQuizService(attempts, quizRepo, quizStore, badges, boards),
		Badges:     badges,
		Sections:   sectionSvc,
		Boards:     boards,
	}, b, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.Logger())

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	signer, err := auth.NewSigner(cfg.Auth.Secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	if err != nil {
		return err
	}

	services, b, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	// WriteTimeout stays zero: websocket connections are long lived.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewServer(services, signer).Router(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		slog.Info("starting learnpath service", "port", finalPort, "postgres", b.db != nil, "redis", b.redis != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory store so a bare `start` has something to take.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:       "quiz-1",
			Title:    "Warm-up",
			Category: "math",
			Active:   true,
			Questions: []domain.Question{
				{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1, Points: 1},
				{ID: "q2", Text: "Spell the number after nine.", CorrectIndex: -1, CorrectText: "ten", Points: 1},
			},
		},
	}
}
