package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/riot"
	"github.com/dom/rally-league/internal/service"
	"github.com/dom/rally-league/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func strPtr(s string) *string { return &s }

func TestProfileService_GetProfile(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Profile
	ctx := context.Background()

	cached := testutil.DefaultStats()
	cached.Solo.Tier = domain.TierSilver
	refreshedAt := time.Now().Add(-time.Hour)
	user, _ := testutil.NewUserBuilder().WithRiotID("").WithStats(cached, refreshedAt).Build(t, env.db.DB)

	t.Run("refreshes live", func(t *testing.T) {
		profile, err := svc.GetProfile(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, profile.StatsStale)
		require.NotNil(t, profile.Stats)
		assert.Equal(t, domain.TierGold, profile.Stats.SoloTier())

		stored, err := env.repos.User.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TierGold, stored.Stats().SoloTier())
		assert.True(t, stored.StatsRefreshedAt.After(refreshedAt))
	})

	t.Run("falls back to the cached snapshot", func(t *testing.T) {
		env.stats.Failing(riot.ErrUpstreamUnavailable)
		defer func() { env.stats.LookupFunc = nil }()

		profile, err := svc.GetProfile(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, profile.StatsStale)
		require.NotNil(t, profile.Stats)
	})

	t.Run("no riot id", func(t *testing.T) {
		plain, _ := testutil.NewUserBuilder().Build(t, env.db.DB)
		profile, err := svc.GetProfile(ctx, plain.ID)
		require.NoError(t, err)
		assert.Nil(t, profile.Stats)
		assert.False(t, profile.StatsStale)
	})
}

func TestProfileService_UpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Profile
	ctx := context.Background()

	user, _ := testutil.NewUserBuilder().Build(t, env.db.DB)

	t.Run("display name", func(t *testing.T) {
		profile, err := svc.UpdateProfile(ctx, user.ID, service.UpdateProfileInput{DisplayName: strPtr("  Caps  ")})
		require.NoError(t, err)
		assert.Equal(t, "Caps", profile.User.DisplayName)
	})

	t.Run("blank display name", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, user.ID, service.UpdateProfileInput{DisplayName: strPtr(" ")})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("link riot id", func(t *testing.T) {
		profile, err := svc.UpdateProfile(ctx, user.ID, service.UpdateProfileInput{RiotID: strPtr("Caps#EUW")})
		require.NoError(t, err)
		require.NotNil(t, profile.User.RiotID)
		assert.Equal(t, "Caps#EUW", *profile.User.RiotID)
		assert.NotNil(t, profile.Stats)
	})

	t.Run("unknown riot account", func(t *testing.T) {
		env.stats.Failing(riot.ErrAccountNotFound)
		defer func() { env.stats.LookupFunc = nil }()

		_, err := svc.UpdateProfile(ctx, user.ID, service.UpdateProfileInput{RiotID: strPtr("Nobody#000")})
		assert.ErrorIs(t, err, domain.ErrValidation)

		stored, err := env.repos.User.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Caps#EUW", *stored.RiotID)
	})

	t.Run("unlink riot id", func(t *testing.T) {
		profile, err := svc.UpdateProfile(ctx, user.ID, service.UpdateProfileInput{RiotID: strPtr("")})
		require.NoError(t, err)
		assert.Nil(t, profile.User.RiotID)
		assert.Nil(t, profile.Stats)
	})

	t.Run("password", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, user.ID, service.UpdateProfileInput{Password: strPtr("newpassword1")})
		require.NoError(t, err)

		stored, err := env.repos.User.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpassword1")))
	})

	t.Run("unknown user", func(t *testing.T) {
		other, _ := testutil.NewUserBuilder().Build(t, env.db.DB)
		env.db.DB.Delete(other)
		_, err := svc.UpdateProfile(ctx, other.ID, service.UpdateProfileInput{})
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}

func TestProfileService_LookupSummoner(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Profile

	stats, err := svc.LookupSummoner(context.Background(), "Faker#KR1")
	require.NoError(t, err)
	assert.Equal(t, 312, stats.SummonerLevel)

	_, err = svc.LookupSummoner(context.Background(), "missing-tag")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
