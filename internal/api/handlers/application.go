package handlers

import (
	"net/http"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/service"
	"github.com/google/uuid"
)

type ApplicationHandler struct {
	applicationService *service.ApplicationService
}

func NewApplicationHandler(applicationService *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{applicationService: applicationService}
}

type SubmitApplicationRequest struct {
	PostID  string `json:"postId"`
	Lane    string `json:"lane"`
	Message string `json:"message"`
}

func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	overview, err := h.applicationService.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, "application.List", err)
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SubmitApplicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	postID, err := uuid.Parse(req.PostID)
	if err != nil {
		http.Error(w, "Invalid postId", http.StatusBadRequest)
		return
	}

	app, err := h.applicationService.Submit(r.Context(), userID, service.SubmitApplicationInput{
		PostID:  postID,
		Lane:    domain.Lane(req.Lane),
		Message: req.Message,
	})
	if err != nil {
		writeError(w, r, "application.Submit", err)
		return
	}

	writeJSON(w, http.StatusCreated, app)
}

func (h *ApplicationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, domain.DecisionAccept)
}

func (h *ApplicationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, domain.DecisionReject)
}

func (h *ApplicationHandler) resolve(w http.ResponseWriter, r *http.Request, decision domain.Decision) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	appID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	result, err := h.applicationService.Resolve(r.Context(), appID, userID, decision)
	if err != nil {
		writeError(w, r, "application.Resolve", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
