package integration

import (
	"context"
	"database/sql"
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
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"training-gate-service/internal/app"
	"training-gate-service/internal/domain"
	pgstore "training-gate-service/internal/infra/postgres"
	pgmigrations "training-gate-service/internal/infra/postgres/migrations"
	infraredis "training-gate-service/internal/infra/redis"
)

func TestTrainingFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateAndSeedProgram(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	catalog := pgstore.NewCatalog(pool)
	seedCatalog(t, ctx, catalog)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	stores := map[string]app.AccessStore{
		"postgres": pgstore.NewAccessStore(pool),
		"redis":    infraredis.NewAccessStore(redisClient),
	}
	for name, access := range stores {
		t.Run(name, func(t *testing.T) {
			service := app.NewTrainingService(app.Deps{
				Sessions: catalog,
				Tests:    infraredis.NewTestRepository(redisClient, catalog, 5*time.Minute),
				Programs: catalog,
				Access:   access,
				Results:  pgstore.NewResultStore(pool),
				Renderer: pgstore.NewCertificateLedger(pool, "/certificates"),
			})
			runFlow(t, ctx, service, "session-"+name)
		})
	}
}

func runFlow(t *testing.T, ctx context.Context, service *app.TrainingService, sessionID string) {
	coordinator := domain.Identity{UserID: "coord", Role: domain.RoleCoordinator}
	participant := domain.Identity{UserID: "p1", Role: domain.RoleParticipant}

	// Concurrent first reads must converge on one record per participant.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = service.MyAccess(ctx, participant, sessionID)
		}()
	}
	wg.Wait()

	for _, stage := range domain.Stages {
		if _, err := service.SetReleased(ctx, coordinator, sessionID, stage, true, nil); err != nil {
			t.Fatalf("release %s: %v", stage, err)
		}
	}
	n, err := service.ReleaseExisting(ctx, coordinator, sessionID, domain.StagePreTest)
	if err != nil || n != 0 {
		t.Fatalf("expected already released records untouched, got %d, %v", n, err)
	}

	presented, err := service.PresentTest(ctx, participant, sessionID, "post-1")
	if err != nil {
		t.Fatalf("present: %v", err)
	}
	answers := make([]int, len(presented.Questions))
	for i, q := range presented.Questions {
		answers[i] = q.OriginalIndex // question i's correct option is i
	}
	result, err := service.SubmitTest(ctx, participant, domain.Submission{
		TestID: "post-1", SessionID: sessionID, Answers: answers, QuestionIndices: presented.OriginalIndices(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 100 || !result.Passed {
		t.Fatalf("expected full marks, got %+v", result)
	}

	review, err := service.Review(ctx, participant, result.ID)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	for i, q := range review.Questions {
		if q.Text != presented.Questions[i].Text {
			t.Fatalf("review position %d differs from presentation", i)
		}
	}

	for _, stage := range []domain.Stage{domain.StageChecklist, domain.StageFeedback} {
		if err := service.CompleteStage(ctx, participant, sessionID, stage); err != nil {
			t.Fatalf("complete %s: %v", stage, err)
		}
	}
	first, err := service.IssueCertificate(ctx, participant, sessionID, "p1")
	if err != nil {
		t.Fatalf("certificate: %v", err)
	}
	again, err := service.IssueCertificate(ctx, participant, sessionID, "p1")
	if err != nil || again.ID != first.ID {
		t.Fatalf("expected re-issue to keep id %s, got %+v, %v", first.ID, again, err)
	}

	summary, err := service.SessionStatus(ctx, coordinator, sessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if summary.TotalParticipants != 3 || summary.Stages[domain.StageFeedback].CompletedCount != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "training", "POSTGRES_PASSWORD": "trainingpass", "POSTGRES_DB": "trainingdb"},
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
	dsn := fmt.Sprintf("postgres://training:trainingpass@%s:%s/trainingdb?sslmode=disable", host, port.Port())
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

// migrateAndSeedProgram applies the bun migrations and writes the program row through bun.
func migrateAndSeedProgram(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO programs (id, name, pass_threshold) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		"prog-1", "Forklift Safety", 80.0); err != nil {
		t.Fatalf("insert program: %v", err)
	}
}

func seedCatalog(t *testing.T, ctx context.Context, catalog *pgstore.Catalog) {
	t.Helper()
	for _, id := range []string{"session-postgres", "session-redis"} {
		err := catalog.SaveSession(ctx, domain.Session{
			ID:             id,
			ProgramID:      "prog-1",
			ParticipantIDs: []string{"p1", "p2", "p3"},
			TrainerAssignments: []domain.TrainerAssignment{
				{TrainerID: "t1", Role: domain.TrainerChief},
				{TrainerID: "t2", Role: domain.TrainerRegular},
			},
		})
		if err != nil {
			t.Fatalf("save session: %v", err)
		}
	}

	post := domain.Test{ID: "post-1", ProgramID: "prog-1", Type: domain.TestPost}
	for i := 0; i < 5; i++ {
		post.Questions = append(post.Questions, domain.Question{
			Text:               fmt.Sprintf("Inspection step %d", i),
			Options:            []string{"a", "b", "c", "d", "e"},
			CorrectOptionIndex: i,
		})
	}
	if err := catalog.SaveTest(ctx, post); err != nil {
		t.Fatalf("save test: %v", err)
	}
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
