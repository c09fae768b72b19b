package service

import (
	"log/slog"

	"github.com/dom/rally-league/internal/config"
	"github.com/dom/rally-league/internal/identity"
	"github.com/dom/rally-league/internal/notify"
	"github.com/dom/rally-league/internal/repository"
	"github.com/dom/rally-league/internal/riot"
	"go.opentelemetry.io/otel"
)

const tracerName = "github.com/dom/rally-league/internal/service"

var tracer = otel.Tracer(tracerName)

// Dependencies are the collaborators that live outside the database.
// Identity may be nil when Discord login is not configured. Channels ends
// push subscriptions of users who leave a party; nil skips that.
type Dependencies struct {
	Stats    riot.StatsLookup
	Identity identity.Provider
	Notifier *notify.Notifier
	Channels notify.Evictor
	Logger   *slog.Logger
}

type Services struct {
	Auth        *AuthService
	Profile     *ProfileService
	Post        *PostService
	Application *ApplicationService
	Party       *PartyService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, deps Dependencies) *Services {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stats := NewStatsResolver(deps.Stats, repos.User, cfg.StatsCacheTTL, logger)

	return &Services{
		Auth:        NewAuthService(repos.User, repos.Session, deps.Stats, deps.Identity, cfg, logger),
		Profile:     NewProfileService(repos.User, deps.Stats, stats, logger),
		Post:        NewPostService(repos, stats, cfg, logger),
		Application: NewApplicationService(repos, deps.Notifier, logger),
		Party:       NewPartyService(repos, stats, deps.Notifier, deps.Channels, logger),
	}
}
