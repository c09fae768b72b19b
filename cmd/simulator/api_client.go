package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIClient handles HTTP communication with the backend
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL + "/api/v1",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Response types matching backend

type User struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	RiotID      *string `json:"riotId"`
}

type AuthResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Post struct {
	ID       string `json:"id"`
	OwnerID  string `json:"ownerId"`
	Title    string `json:"title"`
	Mode     string `json:"mode"`
	RankTier string `json:"rankTier"`
	Lane     string `json:"lane"`
}

type Application struct {
	ID     string `json:"id"`
	PostID string `json:"postId"`
	Status string `json:"status"`
}

type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ResolveResult struct {
	Application Application `json:"application"`
	Party       *Party      `json:"party"`
}

type RosterEntry struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	RiotID      *string `json:"riotId"`
	Role        string  `json:"role"`
	Lane        string  `json:"lane"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (c *APIClient) Register(ctx context.Context, username, password, riotID string) (*AuthResponse, error) {
	body := map[string]string{
		"username": username,
		"password": password,
		"riotId":   riotID,
	}
	var result AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, "", http.StatusCreated, &result); err != nil {
		return nil, fmt.Errorf("register %s: %w", username, err)
	}
	return &result, nil
}

func (c *APIClient) CreatePost(ctx context.Context, token string, post Post, description string) (*Post, error) {
	body := map[string]string{
		"title":       post.Title,
		"mode":        post.Mode,
		"rankTier":    post.RankTier,
		"lane":        post.Lane,
		"description": description,
	}
	var result Post
	if err := c.do(ctx, http.MethodPost, "/posts", body, token, http.StatusCreated, &result); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return &result, nil
}

func (c *APIClient) Apply(ctx context.Context, token, postID, lane, message string) (*Application, error) {
	body := map[string]string{
		"postId":  postID,
		"lane":    lane,
		"message": message,
	}
	var result Application
	if err := c.do(ctx, http.MethodPost, "/applications", body, token, http.StatusCreated, &result); err != nil {
		return nil, fmt.Errorf("apply to %s: %w", postID, err)
	}
	return &result, nil
}

func (c *APIClient) Accept(ctx context.Context, token, applicationID string) (*ResolveResult, error) {
	var result ResolveResult
	if err := c.do(ctx, http.MethodPost, "/applications/"+applicationID+"/accept", nil, token, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("accept %s: %w", applicationID, err)
	}
	return &result, nil
}

func (c *APIClient) Members(ctx context.Context, token, partyID string) ([]RosterEntry, error) {
	var result []RosterEntry
	if err := c.do(ctx, http.MethodGet, "/parties/"+partyID+"/members", nil, token, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return result, nil
}

func (c *APIClient) SendMessage(ctx context.Context, token, partyID, content string) (*ChatMessage, error) {
	var result ChatMessage
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, "/parties/"+partyID+"/messages", body, token, http.StatusCreated, &result); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &result, nil
}

func (c *APIClient) Messages(ctx context.Context, token, partyID string) ([]ChatMessage, error) {
	var result []ChatMessage
	if err := c.do(ctx, http.MethodGet, "/parties/"+partyID+"/messages", nil, token, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return result, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body interface{}, token string, wantStatus int, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(bodyBytes))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
