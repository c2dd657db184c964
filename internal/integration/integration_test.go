package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"learnpath-service/internal/app"
	"learnpath-service/internal/domain"
	"learnpath-service/internal/infra/postgres"
	pgmigrations "learnpath-service/internal/infra/postgres/migrations"
	infraredis "learnpath-service/internal/infra/redis"
)

type stack struct {
	db         *bun.DB
	curriculum *app.CurriculumService
	quizzes    *app.QuizService
	badges     *app.BadgeService
	sections   *app.SectionService
	boards     *app.LeaderboardService
}

func TestPostgresRedisStack(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	migrateDB(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	s := newStack(t, ctx, db, pool, redisClient)

	t.Run("reorder keeps siblings contiguous", func(t *testing.T) {
		testReorder(t, ctx, s)
	})
	t.Run("concurrent reorders", func(t *testing.T) {
		testConcurrentReorders(t, ctx, s)
	})
	t.Run("submit, badges and leaderboard", func(t *testing.T) {
		testSubmitFlow(t, ctx, s)
	})
	t.Run("concurrent submit scores once", func(t *testing.T) {
		testConcurrentSubmit(t, ctx, s)
	})
	t.Run("grant is idempotent", func(t *testing.T) {
		testGrantIdempotent(t, ctx, s)
	})
	t.Run("concurrent grants keep one active award", func(t *testing.T) {
		testConcurrentGrant(t, ctx, s)
	})
	t.Run("deleted nodes drop progress", func(t *testing.T) {
		testDeleteDropsProgress(t, ctx, s)
	})
}

func newStack(t *testing.T, ctx context.Context, db *bun.DB, pool *pgxpool.Pool, client *goredis.Client) *stack {
	t.Helper()
	curriculum := postgres.NewCurriculumStore(db)
	attempts := postgres.NewAttemptStore(db)
	sections := postgres.NewSectionStore(db)
	quizStore := postgres.NewQuizStore(pool)

	badges := app.NewBadgeService(postgres.NewBadgeStore(db), attempts, app.DefaultBadgeConfig())
	if err := badges.SeedCatalog(ctx); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	boards := app.NewLeaderboardService(sections, attempts, infraredis.NewLeaderboardCache(client, time.Minute), app.NewHub())
	quizRepo := infraredis.NewQuizRepository(client, quizStore, 5*time.Minute)
	curriculumSvc := app.NewCurriculumService(curriculum)
	sectionSvc := app.NewSectionService(sections, curriculum, boards)
	curriculumSvc.OnRemove(sectionSvc)

	return &stack{
		db:         db,
		curriculum: curriculumSvc,
		quizzes:    app.NewQuizService(attempts, quizRepo, quizStore, badges, boards),
		badges:     badges,
		sections:   sectionSvc,
		boards:     boards,
	}
}

func testReorder(t *testing.T, ctx context.Context, s *stack) {
	phase, err := s.curriculum.Append(ctx, domain.Node{Kind: domain.KindPhase, Title: "Reading"})
	if err != nil {
		t.Fatalf("append phase: %v", err)
	}
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		lesson, err := s.curriculum.Append(ctx, domain.Node{Kind: domain.KindLesson, ParentID: phase.ID, Title: fmt.Sprintf("L%d", i)})
		if err != nil {
			t.Fatalf("append lesson: %v", err)
		}
		ids = append(ids, lesson.ID)
	}

	if _, err := s.curriculum.Reorder(ctx, ids[3], 0); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if err := s.curriculum.Delete(ctx, ids[1]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.curriculum.Reorder(ctx, ids[0], 9); !errors.Is(err, domain.ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}

	lessons, err := s.curriculum.Children(ctx, domain.Scope{Kind: domain.KindLesson, ParentID: phase.ID})
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	want := []string{ids[3], ids[0], ids[2], ids[4]}
	if len(lessons) != len(want) {
		t.Fatalf("expected %d lessons, got %d", len(want), len(lessons))
	}
	for i, lesson := range lessons {
		if lesson.ID != want[i] || lesson.OrderIndex != i {
			t.Fatalf("position %d: got %s@%d, want %s", i, lesson.ID, lesson.OrderIndex, want[i])
		}
	}

	if err := s.curriculum.Delete(ctx, phase.ID); err != nil {
		t.Fatalf("delete phase: %v", err)
	}
	if _, err := s.curriculum.Get(ctx, ids[0]); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Fatalf("expected lessons removed with their phase, got %v", err)
	}
}

func testConcurrentReorders(t *testing.T, ctx context.Context, s *stack) {
	phase, err := s.curriculum.Append(ctx, domain.Node{Kind: domain.KindPhase, Title: "Concurrency"})
	if err != nil {
		t.Fatalf("append phase: %v", err)
	}
	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		lesson, err := s.curriculum.Append(ctx, domain.Node{Kind: domain.KindLesson, ParentID: phase.ID, Title: fmt.Sprintf("C%d", i)})
		if err != nil {
			t.Fatalf("append lesson: %v", err)
		}
		ids = append(ids, lesson.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 24)
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.curriculum.Reorder(ctx, ids[i%len(ids)], (i*7)%len(ids)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("reorder: %v", err)
	}

	lessons, err := s.curriculum.Children(ctx, domain.Scope{Kind: domain.KindLesson, ParentID: phase.ID})
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if !app.Contiguous(lessons) {
		t.Fatalf("siblings not contiguous after concurrent reorders: %+v", lessons)
	}
}

func testSubmitFlow(t *testing.T, ctx context.Context, s *stack) {
	quiz, err := s.quizzes.SaveQuiz(ctx, sampleQuiz("flow-quiz"))
	if err != nil {
		t.Fatalf("save quiz: %v", err)
	}
	section, err := s.sections.Create(ctx, "Grade 4", "teacher-1")
	if err != nil {
		t.Fatalf("create section: %v", err)
	}
	for _, id := range []string{"alice", "bob"} {
		if _, err := s.sections.Enroll(ctx, section.ID, id, strings.ToUpper(id[:1])+id[1:]); err != nil {
			t.Fatalf("enroll %s: %v", id, err)
		}
	}
	if _, err := s.sections.Enroll(ctx, section.ID, "alice", "Alice"); !errors.Is(err, domain.ErrAlreadyEnrolled) {
		t.Fatalf("expected duplicate enrollment error, got %v", err)
	}

	attempt, err := s.quizzes.Start(ctx, quiz.ID, "bob")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	out, err := s.quizzes.Submit(ctx, attempt.ID, "bob", allCorrect(quiz))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Result.Percentage != 100 {
		t.Fatalf("expected 100%%, got %.2f", out.Result.Percentage)
	}
	if !hasBadge(out.Badges, "perfect-score") {
		t.Fatalf("expected perfect-score badge, got %+v", out.Badges)
	}

	board, err := s.boards.Rank(ctx, section.ID, "")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(board.Entries) != 2 || board.Entries[0].StudentID != "bob" || board.Entries[0].Rank != 1 {
		t.Fatalf("expected bob leading, got %+v", board.Entries)
	}
	if board.Entries[1].Rank != 2 || board.Entries[1].TotalScore != 0 {
		t.Fatalf("expected alice second with no score, got %+v", board.Entries[1])
	}

	awards, err := s.badges.Awards(ctx, "bob")
	if err != nil {
		t.Fatalf("awards: %v", err)
	}
	if !hasBadge(awards, "perfect-score") {
		t.Fatalf("expected stored perfect-score award, got %+v", awards)
	}
}

func testConcurrentSubmit(t *testing.T, ctx context.Context, s *stack) {
	quiz, err := s.quizzes.SaveQuiz(ctx, sampleQuiz("race-quiz"))
	if err != nil {
		t.Fatalf("save quiz: %v", err)
	}
	attempt, err := s.quizzes.Start(ctx, quiz.ID, "carol")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.quizzes.Submit(ctx, attempt.ID, "carol", allCorrect(quiz))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrAttemptCompleted) {
				t.Errorf("unexpected submit error: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful submit, got %d", succeeded)
	}
}

func testGrantIdempotent(t *testing.T, ctx context.Context, s *stack) {
	if _, err := s.badges.Grant(ctx, "dave", "good-work", domain.Trigger{ClassID: "c1"}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := s.badges.Grant(ctx, "dave", "good-work", domain.Trigger{}); !errors.Is(err, domain.ErrAlreadyGranted) {
		t.Fatalf("expected already granted, got %v", err)
	}
	if err := s.badges.Revoke(ctx, "dave", "good-work"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := s.badges.Grant(ctx, "dave", "good-work", domain.Trigger{}); err != nil {
		t.Fatalf("regrant after revoke: %v", err)
	}

	count, err := s.db.NewSelect().TableExpr("badge_awards").
		Where("student_id = ?", "dave").Where("badge_id = ?", "good-work").Where("active").
		Count(ctx)
	if err != nil {
		t.Fatalf("count awards: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one active award, got %d", count)
	}
}

func testConcurrentGrant(t *testing.T, ctx context.Context, s *stack) {
	const workers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.badges.Grant(ctx, "erin", "excellence", domain.Trigger{})
			switch {
			case err == nil:
				mu.Lock()
				created++
				mu.Unlock()
			case errors.Is(err, domain.ErrAlreadyGranted):
			default:
				t.Errorf("grant: %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("expected exactly one grant to succeed, got %d", created)
	}

	count, err := s.db.NewSelect().TableExpr("badge_awards").
		Where("student_id = ?", "erin").Where("badge_id = ?", "excellence").Where("active").
		Count(ctx)
	if err != nil {
		t.Fatalf("count awards: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one active award, got %d", count)
	}
}

func testDeleteDropsProgress(t *testing.T, ctx context.Context, s *stack) {
	phase, err := s.curriculum.Append(ctx, domain.Node{Kind: domain.KindPhase, Title: "Shapes"})
	if err != nil {
		t.Fatalf("append phase: %v", err)
	}
	lesson, err := s.curriculum.Append(ctx, domain.Node{Kind: domain.KindLesson, ParentID: phase.ID, Title: "Circles"})
	if err != nil {
		t.Fatalf("append lesson: %v", err)
	}
	section, err := s.sections.Create(ctx, "Shapes club", "teacher-9")
	if err != nil {
		t.Fatalf("create section: %v", err)
	}
	if _, err := s.sections.Enroll(ctx, section.ID, "frank", "Frank"); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, created, err := s.sections.RecordProgress(ctx, "frank", lesson.ID); err != nil || !created {
		t.Fatalf("record progress: created=%v err=%v", created, err)
	}
	if _, created, err := s.sections.RecordProgress(ctx, "frank", lesson.ID); err != nil || created {
		t.Fatalf("repeat progress: created=%v err=%v", created, err)
	}

	board, err := s.boards.Rank(ctx, section.ID, "")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if board.Entries[0].CompletedLessons != 1 {
		t.Fatalf("expected one lesson, got %+v", board.Entries[0])
	}

	if err := s.curriculum.Delete(ctx, phase.ID); err != nil {
		t.Fatalf("delete phase: %v", err)
	}
	board, err = s.boards.Rank(ctx, section.ID, "")
	if err != nil {
		t.Fatalf("rank after delete: %v", err)
	}
	if board.Entries[0].CompletedLessons != 0 {
		t.Fatalf("expected progress on deleted lesson gone, got %+v", board.Entries[0])
	}
}

func migrateDB(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "learn", "POSTGRES_PASSWORD": "learnpass", "POSTGRES_DB": "learndb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://learn:learnpass@%s:%s/learndb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func sampleQuiz(id string) domain.Quiz {
	return domain.Quiz{
		ID:       id,
		Title:    "Arithmetic",
		Category: "math",
		Active:   true,
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1, Points: 2},
			{ID: "q2", Text: "Spell 3.", CorrectIndex: -1, CorrectText: "three", Points: 1},
		},
	}
}

func allCorrect(quiz domain.Quiz) domain.Submission {
	sub := domain.Submission{Answers: make(map[string]domain.Answer)}
	for _, q := range quiz.Questions {
		if len(q.Options) == 0 {
			sub.Answers[q.ID] = domain.Answer{Text: q.CorrectText}
			continue
		}
		index := q.CorrectIndex
		sub.Answers[q.ID] = domain.Answer{OptionIndex: &index}
	}
	return sub
}

func hasBadge(awards []domain.BadgeAward, badgeID string) bool {
	for _, award := range awards {
		if award.BadgeID == badgeID && award.Active {
			return true
		}
	}
	return false
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
