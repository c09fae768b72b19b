package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dom/rally-league/internal/api"
	"github.com/dom/rally-league/internal/config"
	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/notify"
	"github.com/dom/rally-league/internal/repository"
	repoPostgres "github.com/dom/rally-league/internal/repository/postgres"
	"github.com/dom/rally-league/internal/service"
	"github.com/dom/rally-league/internal/websocket"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB starts a PostgreSQL container and migrates the schema
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_rally_league"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := repoPostgres.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}

	t.Cleanup(func() {
		testDB.Cleanup()
	})

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		tdb.Container.Terminate(context.Background())
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	tables := []string{
		"chat_messages",
		"party_members",
		"parties",
		"applications",
		"posts",
		"user_sessions",
		"users",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// Repositories returns repositories bound to the test database
func (tdb *TestDB) Repositories() *repository.Repositories {
	return repoPostgres.NewRepositories(tdb.DB)
}

// FindParty loads a live party by id.
func (tdb *TestDB) FindParty(id uuid.UUID) (*domain.Party, error) {
	var party domain.Party
	if err := tdb.DB.First(&party, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &party, nil
}

// FindPartyByApplication loads the live party created for an application.
func (tdb *TestDB) FindPartyByApplication(applicationID uuid.UUID) (*domain.Party, error) {
	var party domain.Party
	if err := tdb.DB.First(&party, "application_id = ?", applicationID).Error; err != nil {
		return nil, err
	}
	return &party, nil
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Port = "0"
	cfg.Environment = "test"
	cfg.JWTSecret = "test-jwt-secret-key-for-testing-only"
	cfg.JWTExpirationHours = 1
	cfg.DataDragonVersion = "14.1.1"
	cfg.RateLimitPerSecond = 0
	return cfg
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server   *httptest.Server
	DB       *TestDB
	Repos    *repository.Repositories
	Services *service.Services
	Hub      *websocket.Hub
	Stats    *FakeStatsLookup
	Events   *RecordingRelay
	Config   *config.Config
}

// NewTestServer creates a complete test server backed by a fresh database,
// a fake stats gateway and the in-process websocket hub.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	cfg := TestConfig()

	repos := testDB.Repositories()
	hub := websocket.NewHub(websocket.RepositoryMembership{Members: repos.PartyMember}, nil)
	go hub.Run()

	stats := NewFakeStatsLookup()
	events := &RecordingRelay{}
	services := service.NewServices(repos, cfg, service.Dependencies{
		Stats:    stats,
		Notifier: notify.NewNotifier(notify.Multi{hub, events}, nil),
		Channels: hub,
	})
	router := api.NewRouter(services, hub, cfg)

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		DB:       testDB,
		Repos:    repos,
		Services: services,
		Hub:      hub,
		Stats:    stats,
		Events:   events,
		Config:   cfg,
	}

	t.Cleanup(func() {
		server.Close()
		hub.Stop()
	})

	return ts
}

func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", ts.Server.URL, path)
}

// WebSocketURL returns the WebSocket URL with token
func (ts *TestServer) WebSocketURL(token string) string {
	wsURL := "ws" + ts.Server.URL[4:] // Replace "http" with "ws"
	return fmt.Sprintf("%s/api/v1/ws?token=%s", wsURL, token)
}
