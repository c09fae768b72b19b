package service_test

import (
	"testing"

	"github.com/dom/rally-league/internal/config"
	"github.com/dom/rally-league/internal/identity"
	"github.com/dom/rally-league/internal/notify"
	"github.com/dom/rally-league/internal/repository"
	"github.com/dom/rally-league/internal/service"
	"github.com/dom/rally-league/internal/testutil"
)

type testEnv struct {
	db       *testutil.TestDB
	repos    *repository.Repositories
	cfg      *config.Config
	stats    *testutil.FakeStatsLookup
	events   *testutil.RecordingRelay
	services *service.Services
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithIdentity(t, nil)
}

func newTestEnvWithIdentity(t *testing.T, provider identity.Provider) *testEnv {
	t.Helper()

	testDB := testutil.NewTestDB(t)
	env := &testEnv{
		db:     testDB,
		repos:  testDB.Repositories(),
		cfg:    testutil.TestConfig(),
		stats:  testutil.NewFakeStatsLookup(),
		events: &testutil.RecordingRelay{},
	}
	env.services = service.NewServices(env.repos, env.cfg, service.Dependencies{
		Stats:    env.stats,
		Identity: provider,
		Notifier: notify.NewNotifier(env.events, nil),
		Channels: env.events,
	})
	return env
}
