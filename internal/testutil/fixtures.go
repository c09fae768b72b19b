package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/dom/rally-league/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	fakerMu sync.Mutex
	faker   = gofakeit.New(uint64(time.Now().UnixNano()))
)

// fake runs fn against the shared generator.
func fake[T any](fn func(f *gofakeit.Faker) T) T {
	fakerMu.Lock()
	defer fakerMu.Unlock()
	return fn(faker)
}

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	username    string
	displayName string
	password    string
	riotID      *string
	stats       *domain.RankedStats
	statsAt     time.Time
}

// NewUserBuilder returns a builder with a random username, a password and
// no linked Riot ID.
func NewUserBuilder() *UserBuilder {
	username := fmt.Sprintf("u_%s", uuid.New().String()[:8])
	return &UserBuilder{
		username:    username,
		displayName: fake(func(f *gofakeit.Faker) string { return f.Gamertag() }),
		password:    "testpassword123",
	}
}

func (b *UserBuilder) WithUsername(name string) *UserBuilder {
	b.username = name
	return b
}

func (b *UserBuilder) WithDisplayName(name string) *UserBuilder {
	b.displayName = name
	return b
}

func (b *UserBuilder) WithPassword(password string) *UserBuilder {
	b.password = password
	return b
}

// WithRiotID links a Riot ID. An empty id generates one.
func (b *UserBuilder) WithRiotID(id string) *UserBuilder {
	if id == "" {
		id = RandomRiotID()
	}
	b.riotID = &id
	return b
}

// WithStats stores a cached snapshot refreshed at the given time.
func (b *UserBuilder) WithStats(stats *domain.RankedStats, at time.Time) *UserBuilder {
	b.stats = stats
	b.statsAt = at
	return b
}

// Build creates the user in the database and returns the user with the raw password
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) (*domain.User, string) {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(b.password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     b.username,
		DisplayName:  b.displayName,
		PasswordHash: string(hashedPassword),
		RiotID:       b.riotID,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if b.stats != nil {
		user.SetStats(b.stats, b.statsAt)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user, b.password
}

// AuthResponse matches the API auth response
type AuthResponse struct {
	User struct {
		ID          string  `json:"id"`
		Username    string  `json:"username"`
		DisplayName string  `json:"displayName"`
		RiotID      *string `json:"riotId"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// BuildAndAuthenticate registers the user through the API and returns it
// with an access token.
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, string) {
	t.Helper()

	reqBody := map[string]string{
		"username":    b.username,
		"displayName": b.displayName,
		"password":    b.password,
	}
	if b.riotID != nil {
		reqBody["riotId"] = *b.riotID
	}
	body, _ := json.Marshal(reqBody)

	resp, err := http.Post(ts.APIURL("/auth/register"), "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("failed to register user: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	userID, _ := uuid.Parse(authResp.User.ID)
	user := &domain.User{
		ID:          userID,
		Username:    authResp.User.Username,
		DisplayName: authResp.User.DisplayName,
		RiotID:      authResp.User.RiotID,
	}

	return user, authResp.AccessToken
}

// RandomRiotID returns a well-formed name#tag.
func RandomRiotID() string {
	return fake(func(f *gofakeit.Faker) string {
		return fmt.Sprintf("%s#%s", strings.ReplaceAll(f.Gamertag(), "#", ""), f.Numerify("####"))
	})
}

// PostBuilder creates test posts
type PostBuilder struct {
	owner       *domain.User
	title       string
	mode        domain.GameMode
	tier        domain.Tier
	lane        domain.Lane
	description string
	createdAt   time.Time
}

func NewPostBuilder() *PostBuilder {
	return &PostBuilder{
		title:       fake(func(f *gofakeit.Faker) string { return f.Sentence(3) }),
		mode:        domain.GameModeRanked,
		tier:        domain.TierGold,
		lane:        domain.LaneMid,
		description: fake(func(f *gofakeit.Faker) string { return f.Sentence(10) }),
		createdAt:   time.Now(),
	}
}

func (b *PostBuilder) WithOwner(user *domain.User) *PostBuilder {
	b.owner = user
	return b
}

func (b *PostBuilder) WithTitle(title string) *PostBuilder {
	b.title = title
	return b
}

func (b *PostBuilder) WithMode(mode domain.GameMode) *PostBuilder {
	b.mode = mode
	return b
}

func (b *PostBuilder) WithTier(tier domain.Tier) *PostBuilder {
	b.tier = tier
	return b
}

func (b *PostBuilder) WithLane(lane domain.Lane) *PostBuilder {
	b.lane = lane
	return b
}

func (b *PostBuilder) WithCreatedAt(at time.Time) *PostBuilder {
	b.createdAt = at
	return b
}

// Build creates the post, and an owner with a Riot ID when none was given.
func (b *PostBuilder) Build(t *testing.T, db *gorm.DB) *domain.Post {
	t.Helper()

	if b.owner == nil {
		b.owner, _ = NewUserBuilder().WithRiotID("").Build(t, db)
	}

	post := &domain.Post{
		ID:          uuid.New(),
		OwnerID:     b.owner.ID,
		Title:       b.title,
		Mode:        b.mode,
		RankTier:    b.tier,
		Lane:        b.lane,
		Description: b.description,
		CreatedAt:   b.createdAt,
	}
	if err := db.Omit("Owner").Create(post).Error; err != nil {
		t.Fatalf("failed to create post: %v", err)
	}
	return post
}

// ApplicationBuilder creates pending applications
type ApplicationBuilder struct {
	post      *domain.Post
	applicant *domain.User
	lane      domain.Lane
	message   string
}

func NewApplicationBuilder(post *domain.Post) *ApplicationBuilder {
	return &ApplicationBuilder{
		post:    post,
		lane:    domain.LaneSupport,
		message: fake(func(f *gofakeit.Faker) string { return f.Sentence(6) }),
	}
}

func (b *ApplicationBuilder) WithApplicant(user *domain.User) *ApplicationBuilder {
	b.applicant = user
	return b
}

func (b *ApplicationBuilder) WithLane(lane domain.Lane) *ApplicationBuilder {
	b.lane = lane
	return b
}

func (b *ApplicationBuilder) Build(t *testing.T, db *gorm.DB) *domain.Application {
	t.Helper()

	if b.applicant == nil {
		b.applicant, _ = NewUserBuilder().WithRiotID("").Build(t, db)
	}

	app := &domain.Application{
		ID:          uuid.New(),
		PostID:      b.post.ID,
		ApplicantID: b.applicant.ID,
		Lane:        b.lane,
		Message:     b.message,
		Status:      domain.ApplicationStatusPending,
		CreatedAt:   time.Now(),
	}
	if err := db.Create(app).Error; err != nil {
		t.Fatalf("failed to create application: %v", err)
	}
	return app
}

// CreateAuthenticatedRequest creates an HTTP request with auth token
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// Do sends an authenticated request to the test server and returns the response.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()

	req := CreateAuthenticatedRequest(t, method, ts.APIURL(path), body, token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
