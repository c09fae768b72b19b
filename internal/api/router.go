package api

import (
	"net/http"

	"github.com/dom/rally-league/internal/api/handlers"
	"github.com/dom/rally-league/internal/api/middleware"
	"github.com/dom/rally-league/internal/config"
	"github.com/dom/rally-league/internal/metrics"
	"github.com/dom/rally-league/internal/service"
	"github.com/dom/rally-league/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

func NewRouter(services *service.Services, hub *websocket.Hub, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(metrics.InstrumentHandler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	limiter := middleware.NewKeyedRateLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	requireAuth := middleware.Auth(services.Auth)
	requireRiotID := middleware.RequireRiotID(services.Auth)

	authHandler := handlers.NewAuthHandler(services.Auth, cfg.IsProduction())
	profileHandler := handlers.NewProfileHandler(services.Profile)
	postHandler := handlers.NewPostHandler(services.Post)
	applicationHandler := handlers.NewApplicationHandler(services.Application)
	partyHandler := handlers.NewPartyHandler(services.Party)
	wsHandler := handlers.NewWebSocketHandler(hub, services.Auth, cfg.AllowedOrigins)

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth routes
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimit(limiter)).Post("/register", authHandler.Register)
			r.With(middleware.RateLimit(limiter)).Post("/login", authHandler.Login)
			r.With(middleware.RateLimit(limiter)).Post("/refresh", authHandler.Refresh)
			r.Get("/discord/login", authHandler.DiscordLogin)
			r.Get("/discord/callback", authHandler.DiscordCallback)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.Me)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RateLimit(limiter))

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)
				r.Put("/", profileHandler.UpdateProfile)
			})
			r.Get("/summoners/{riotId}", profileHandler.LookupSummoner)

			r.Route("/posts", func(r chi.Router) {
				r.With(requireRiotID).Get("/", postHandler.List)
				r.With(requireRiotID).Post("/", postHandler.Create)
				r.Delete("/{id}", postHandler.Delete)
			})

			r.Route("/applications", func(r chi.Router) {
				r.Get("/", applicationHandler.List)
				r.With(requireRiotID).Post("/", applicationHandler.Submit)
				r.Post("/{id}/accept", applicationHandler.Accept)
				r.Post("/{id}/reject", applicationHandler.Reject)
			})

			r.Route("/parties", func(r chi.Router) {
				r.Get("/", partyHandler.List)
				r.Get("/{id}/members", partyHandler.Members)
				r.Post("/{id}/leave", partyHandler.Leave)
				r.Post("/{id}/disband", partyHandler.Disband)
				r.Get("/{id}/messages", partyHandler.ListMessages)
				r.Post("/{id}/messages", partyHandler.SendMessage)
			})
		})

		// WebSocket endpoint
		r.Get("/ws", wsHandler.Handle)
	})

	return r
}
