package handlers

import (
	"net/http"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/service"
)

type PostHandler struct {
	postService *service.PostService
}

func NewPostHandler(postService *service.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

type CreatePostRequest struct {
	Title       string `json:"title"`
	Mode        string `json:"mode"`
	RankTier    string `json:"rankTier"`
	Lane        string `json:"lane"`
	Description string `json:"description"`
}

func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.PostFilter{
		RankTier: domain.Tier(q.Get("rank")),
		Mode:     domain.GameMode(q.Get("mode")),
		Lane:     domain.Lane(q.Get("lane")),
	}

	posts, err := h.postService.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, "post.List", err)
		return
	}

	writeJSON(w, http.StatusOK, posts)
}

func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreatePostRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	post, err := h.postService.Create(r.Context(), userID, service.CreatePostInput{
		Title:       req.Title,
		Mode:        domain.GameMode(req.Mode),
		RankTier:    domain.Tier(req.RankTier),
		Lane:        domain.Lane(req.Lane),
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, "post.Create", err)
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	postID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.postService.Delete(r.Context(), postID, userID); err != nil {
		writeError(w, r, "post.Delete", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
