package handlers

import (
	"net/http"
	"net/url"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/service"
	"github.com/go-chi/chi/v5"
)

type ProfileHandler struct {
	profileService *service.ProfileService
}

func NewProfileHandler(profileService *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

// ProfileResponse is the caller's own profile
type ProfileResponse struct {
	User       UserResponse        `json:"user"`
	Stats      *domain.RankedStats `json:"stats"`
	StatsStale bool                `json:"statsStale"`
}

// UpdateProfileRequest carries optional edits; omitted fields are unchanged
type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	RiotID      *string `json:"riotId"`
	Password    *string `json:"password"`
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	profile, err := h.profileService.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, r, "profile.GetProfile", err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		User:       newUserResponse(profile.User),
		Stats:      profile.Stats,
		StatsStale: profile.StatsStale,
	})
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.profileService.UpdateProfile(r.Context(), userID, service.UpdateProfileInput{
		DisplayName: req.DisplayName,
		RiotID:      req.RiotID,
		Password:    req.Password,
	})
	if err != nil {
		writeError(w, r, "profile.UpdateProfile", err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		User:  newUserResponse(profile.User),
		Stats: profile.Stats,
	})
}

// LookupSummoner returns live ranked stats for any Riot ID. The '#' in the
// path must be percent-encoded.
func (h *ProfileHandler) LookupSummoner(w http.ResponseWriter, r *http.Request) {
	riotID, err := url.PathUnescape(chi.URLParam(r, "riotId"))
	if err != nil {
		http.Error(w, "Invalid riotId", http.StatusBadRequest)
		return
	}

	stats, err := h.profileService.LookupSummoner(r.Context(), riotID)
	if err != nil {
		writeError(w, r, "profile.LookupSummoner", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
