package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dom/rally-league/internal/config"
	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/identity"
	"github.com/dom/rally-league/internal/repository"
	"github.com/dom/rally-league/internal/riot"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minPasswordLength  = 6
	maxDisplayNameLen  = 32
	refreshTokenTTL    = 30 * 24 * time.Hour
	discordNameRetries = 5
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,32}$`)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = domain.NewError(domain.ErrConflict, "username already exists")
	ErrDiscordDisabled    = errors.New("discord login is not configured")
	ErrInvalidToken       = errors.New("invalid token")
)

type AuthService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	stats       riot.StatsLookup
	discord     identity.Provider
	cfg         *config.Config
	logger      *slog.Logger
}

func NewAuthService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, stats riot.StatsLookup, discord identity.Provider, cfg *config.Config, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		stats:       stats,
		discord:     discord,
		cfg:         cfg,
		logger:      logger,
	}
}

type RegisterInput struct {
	Username    string
	DisplayName string
	Password    string
	RiotID      string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

// Principal is the authenticated caller carried by an access token.
type Principal struct {
	UserID uuid.UUID
	Handle string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if input.DisplayName == "" {
		input.DisplayName = input.Username
	}

	if err := validateCredentials(input.Username, input.Password); err != nil {
		return nil, err
	}
	if err := validateDisplayName(input.DisplayName); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.GetByUsername(ctx, input.Username)
	if err == nil && existing != nil {
		return nil, ErrUsernameTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     input.Username,
		DisplayName:  input.DisplayName,
		PasswordHash: string(hashedPassword),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if input.RiotID != "" {
		if err := linkRiotID(ctx, s.stats, user, input.RiotID, s.logger); err != nil {
			return nil, err
		}
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	return s.generateTokens(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(input.Username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// OAuth-only accounts have no password.
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.generateTokens(ctx, user)
}

// DiscordAuthURL returns where to send the browser to start a Discord login.
func (s *AuthService) DiscordAuthURL(state string) (string, error) {
	if s.discord == nil {
		return "", ErrDiscordDisabled
	}
	return s.discord.AuthCodeURL(state), nil
}

// LoginWithDiscord exchanges an authorization code and signs the Discord
// account in, creating a local user on first login.
func (s *AuthService) LoginWithDiscord(ctx context.Context, code string) (*AuthResult, error) {
	if s.discord == nil {
		return nil, ErrDiscordDisabled
	}
	profile, err := s.discord.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, identity.ErrExchangeFailed) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	user, err := s.userRepo.GetByDiscordID(ctx, profile.ExternalID)
	if err == nil {
		return s.generateTokens(ctx, user)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user, err = s.createDiscordUser(ctx, profile)
	if err != nil {
		return nil, err
	}
	s.logger.Info("created user from discord login", "user_id", user.ID, "discord_id", profile.ExternalID)
	return s.generateTokens(ctx, user)
}

func (s *AuthService) createDiscordUser(ctx context.Context, profile *identity.Profile) (*domain.User, error) {
	displayName := profile.DisplayName
	if utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		displayName = string([]rune(displayName)[:maxDisplayNameLen])
	}
	discordID := profile.ExternalID

	base := sanitizeUsername(profile.Username)
	for attempt := 0; attempt < discordNameRetries; attempt++ {
		username := base
		if attempt > 0 {
			username = fmt.Sprintf("%s_%s", base, uuid.New().String()[:4])
		}
		now := time.Now()
		user := &domain.User{
			ID:          uuid.New(),
			Username:    username,
			DisplayName: displayName,
			DiscordID:   &discordID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := s.userRepo.Create(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// A concurrent callback may have created the same Discord user.
		if existing, lookupErr := s.userRepo.GetByDiscordID(ctx, discordID); lookupErr == nil {
			return existing, nil
		}
	}
	return nil, ErrUsernameTaken
}

// generateTokens opens a new session for user. The refresh token is
// "<session id>.<secret>"; only a bcrypt hash of the secret is stored.
func (s *AuthService) generateTokens(ctx context.Context, user *domain.User) (*AuthResult, error) {
	now := time.Now()
	if err := s.sessionRepo.DeleteExpired(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "prune expired sessions", "user_id", user.ID, "error", err)
	}

	secret := uuid.New().String()
	hashedRefresh, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	session := &domain.UserSession{
		ID:               uuid.New(),
		UserID:           user.ID,
		RefreshTokenHash: string(hashedRefresh),
		ExpiresAt:        now.Add(refreshTokenTTL),
		CreatedAt:        now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	accessToken, err := s.generateAccessToken(user, session.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: session.ID.String() + "." + secret,
	}, nil
}

func (s *AuthService) generateAccessToken(user *domain.User, sessionID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"sid":  sessionID.String(),
		"name": user.Username,
		"exp":  time.Now().Add(time.Duration(s.cfg.JWTExpirationHours) * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// Refresh trades a refresh token for a new token pair. The old session is
// consumed, so each refresh token works once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	rawID, secret, ok := strings.Cut(refreshToken, ".")
	if !ok {
		return nil, ErrInvalidCredentials
	}
	sessionID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !session.ExpiresAt.After(time.Now()) {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(session.RefreshTokenHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}

	deleted, err := s.sessionRepo.Delete(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		// A concurrent refresh already used this token.
		return nil, ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.generateTokens(ctx, user)
}

func (s *AuthService) ValidateToken(tokenString string) (*jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return &claims, nil
	}

	return nil, ErrInvalidToken
}

// Authenticate validates an access token and returns its principal. The
// token's session must still exist, so a logout revokes it immediately.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*Principal, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, ok := (*claims)["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed sub claim", ErrInvalidToken)
	}
	sid, ok := (*claims)["sid"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing sid claim", ErrInvalidToken)
	}
	sessionID, err := uuid.Parse(sid)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed sid claim", ErrInvalidToken)
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: session ended", ErrInvalidToken)
		}
		return nil, err
	}
	if session.UserID != userID || !session.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: session ended", ErrInvalidToken)
	}
	handle, _ := (*claims)["name"].(string)

	return &Principal{UserID: userID, Handle: handle}, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Logout ends every session of userID, which revokes its access tokens too.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.sessionRepo.DeleteByUserID(ctx, userID)
}

func validateCredentials(username, password string) error {
	if !usernamePattern.MatchString(username) {
		return domain.NewValidationError("username", "must be 3-32 letters, digits, '_' or '.'")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return domain.NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	return nil
}

func validateDisplayName(name string) error {
	if name == "" {
		return domain.NewValidationError("displayName", "is required")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLen {
		return domain.NewValidationError("displayName", "is too long")
	}
	return nil
}

func sanitizeUsername(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 128 && (r == '_' || r == '.' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 26 {
		out = out[:26]
	}
	if len(out) < 3 {
		out = "player" + out
	}
	return out
}

// linkRiotID validates riotID against the stats gateway and attaches it to
// user. An unknown account is a validation error. When the gateway is down
// the ID is linked without stats so a Riot outage never blocks signup.
func linkRiotID(ctx context.Context, lookup riot.StatsLookup, user *domain.User, riotID string, logger *slog.Logger) error {
	parsed, err := domain.ParseRiotID(riotID)
	if err != nil {
		return err
	}
	normalized := parsed.String()

	var stats *domain.RankedStats
	if lookup != nil {
		stats, err = lookup.Lookup(ctx, normalized)
		switch {
		case err == nil:
		case errors.Is(err, riot.ErrAccountNotFound):
			return domain.NewValidationError("riotId", "no Riot account exists with this ID")
		case errors.Is(err, domain.ErrUpstreamUnavailable):
			logger.Warn("linking riot id without stats", "riot_id", normalized, "error", err)
		default:
			return err
		}
	}

	user.RiotID = &normalized
	user.SetStats(stats, time.Now())
	return nil
}
