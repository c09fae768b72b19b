package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/service"
	"github.com/dom/rally-league/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPostInput() service.CreatePostInput {
	return service.CreatePostInput{
		Title:       "Need a jungler for clash",
		Mode:        domain.GameModeRanked,
		RankTier:    domain.TierPlatinum,
		Lane:        domain.LaneJungle,
		Description: "Weekend games, chill vibes",
	}
}

func TestPostService_Create(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Post
	ctx := context.Background()

	owner, _ := testutil.NewUserBuilder().WithRiotID("").Build(t, env.db.DB)

	tests := []struct {
		name    string
		mutate  func(in *service.CreatePostInput)
		wantErr error
	}{
		{name: "valid"},
		{
			name:    "blank title",
			mutate:  func(in *service.CreatePostInput) { in.Title = "   " },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "title too long",
			mutate:  func(in *service.CreatePostInput) { in.Title = strings.Repeat("x", domain.MaxPostTitleLength+1) },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown mode",
			mutate:  func(in *service.CreatePostInput) { in.Mode = "urf" },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown tier",
			mutate:  func(in *service.CreatePostInput) { in.RankTier = "wood" },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown lane",
			mutate:  func(in *service.CreatePostInput) { in.Lane = "river" },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "description too long",
			mutate:  func(in *service.CreatePostInput) { in.Description = strings.Repeat("x", domain.MaxPostDescriptionLength+1) },
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validPostInput()
			if tt.mutate != nil {
				tt.mutate(&input)
			}

			post, err := svc.Create(ctx, owner.ID, input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, owner.ID, post.OwnerID)
			assert.Equal(t, input.Title, post.Title)
		})
	}
}

func TestPostService_DailyLimit(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Post
	ctx := context.Background()

	owner, _ := testutil.NewUserBuilder().WithRiotID("").Build(t, env.db.DB)

	// An old post does not count.
	testutil.NewPostBuilder().WithOwner(owner).WithCreatedAt(time.Now().Add(-25 * time.Hour)).Build(t, env.db.DB)

	var last *domain.Post
	for i := 0; i < env.cfg.PostsPerDay; i++ {
		post, err := svc.Create(ctx, owner.ID, validPostInput())
		require.NoError(t, err, "post %d", i+1)
		last = post
	}

	_, err := svc.Create(ctx, owner.ID, validPostInput())
	assert.ErrorIs(t, err, domain.ErrDailyPostLimit)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Deleting does not free a slot.
	require.NoError(t, svc.Delete(ctx, last.ID, owner.ID))
	_, err = svc.Create(ctx, owner.ID, validPostInput())
	assert.ErrorIs(t, err, domain.ErrDailyPostLimit)

	other, _ := testutil.NewUserBuilder().WithRiotID("").Build(t, env.db.DB)
	_, err = svc.Create(ctx, other.ID, validPostInput())
	assert.NoError(t, err)
}

func TestPostService_List(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Post
	ctx := context.Background()

	fresh, _ := testutil.NewUserBuilder().
		WithRiotID("").
		WithStats(testutil.DefaultStats(), time.Now()).
		Build(t, env.db.DB)
	stale, _ := testutil.NewUserBuilder().
		WithRiotID("").
		WithStats(testutil.DefaultStats(), time.Now().Add(-48*time.Hour)).
		Build(t, env.db.DB)
	unlinked, _ := testutil.NewUserBuilder().Build(t, env.db.DB)

	testutil.NewPostBuilder().WithOwner(fresh).WithLane(domain.LaneTop).Build(t, env.db.DB)
	testutil.NewPostBuilder().WithOwner(stale).WithLane(domain.LaneBot).Build(t, env.db.DB)
	testutil.NewPostBuilder().WithOwner(unlinked).WithLane(domain.LaneBot).Build(t, env.db.DB)

	env.stats.Failing(domain.NewError(domain.ErrUpstreamUnavailable, "down"))

	posts, err := svc.List(ctx, domain.PostFilter{})
	require.NoError(t, err)
	require.Len(t, posts, 3)

	byOwner := make(map[uuid.UUID]*domain.PostWithAuthor)
	for _, p := range posts {
		byOwner[p.OwnerID] = p
	}

	assert.NotNil(t, byOwner[fresh.ID].Author.Stats, "fresh snapshot is served")
	assert.Nil(t, byOwner[stale.ID].Author.Stats, "stale snapshot is not served when refresh fails")
	assert.Nil(t, byOwner[unlinked.ID].Author.Stats)
	assert.Equal(t, fresh.DisplayName, byOwner[fresh.ID].Author.DisplayName)

	assert.Equal(t, []string{*stale.RiotID}, env.stats.Calls())

	t.Run("filtered", func(t *testing.T) {
		posts, err := svc.List(ctx, domain.PostFilter{Lane: domain.LaneBot})
		require.NoError(t, err)
		assert.Len(t, posts, 2)
	})

	t.Run("invalid filter", func(t *testing.T) {
		_, err := svc.List(ctx, domain.PostFilter{RankTier: "wood"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("empty result is not nil", func(t *testing.T) {
		posts, err := svc.List(ctx, domain.PostFilter{Mode: domain.GameModeARAM})
		require.NoError(t, err)
		assert.NotNil(t, posts)
		assert.Empty(t, posts)
	})
}

func TestPostService_Delete(t *testing.T) {
	env := newTestEnv(t)
	svc := env.services.Post
	ctx := context.Background()

	post := testutil.NewPostBuilder().Build(t, env.db.DB)

	assert.ErrorIs(t, svc.Delete(ctx, post.ID, uuid.New()), domain.ErrNotPostOwner)
	assert.ErrorIs(t, svc.Delete(ctx, uuid.New(), post.OwnerID), domain.ErrPostNotFound)

	require.NoError(t, svc.Delete(ctx, post.ID, post.OwnerID))
	assert.ErrorIs(t, svc.Delete(ctx, post.ID, post.OwnerID), domain.ErrPostNotFound)

	_, err := svc.Get(ctx, post.ID)
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}
