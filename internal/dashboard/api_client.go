package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"teamboard/internal/models"
)

// TaskAPI is the part of the board server the engine talks to.
type TaskAPI interface {
	ListTasks(ctx context.Context, page, limit int) (*models.TaskPage, error)
	CreateTask(ctx context.Context, in models.CreateTaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]models.User, error)
}

// TaskUpdate carries only the fields to change. An empty Description or
// DueDate clears the stored value.
type TaskUpdate struct {
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	Status      *models.TaskStatus   `json:"status,omitempty"`
	Priority    *models.TaskPriority `json:"priority,omitempty"`
	DueDate     *string              `json:"dueDate,omitempty"`
	AssignedTo  *string              `json:"assignedTo,omitempty"`
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// HTTPClient implements TaskAPI over the JSON HTTP surface.
type HTTPClient struct {
	base    string
	session *Session
	http    *http.Client
}

func NewHTTPClient(baseURL string, session *Session) *HTTPClient {
	return &HTTPClient{
		base:    strings.TrimRight(baseURL, "/"),
		session: session,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login exchanges credentials for a Session.
func Login(ctx context.Context, baseURL, email, password string) (*Session, error) {
	c := &HTTPClient{base: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 15 * time.Second}}
	var resp models.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return NewSession(resp.Token, resp.User), nil
}

func (c *HTTPClient) ListTasks(ctx context.Context, page, limit int) (*models.TaskPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out models.TaskPage
	if err := c.do(ctx, http.MethodGet, "/api/tasks?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateTask(ctx context.Context, in models.CreateTaskInput) (*models.Task, error) {
	var out models.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*models.Task, error) {
	var out models.Task
	if err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(id), upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) ListUsers(ctx context.Context) ([]models.User, error) {
	var out []models.User
	if err := c.do(ctx, http.MethodGet, "/api/tasks/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		token, err := c.session.Token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
