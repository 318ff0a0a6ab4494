package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamboard/internal/dashboard"
	"teamboard/internal/models"
)

type stubServer struct {
	url  string
	role models.Role

	mu      sync.Mutex
	puts    int
	created []models.CreateTaskInput
}

func (s *stubServer) setRole(role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
}

func (s *stubServer) currentRole() models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *stubServer) createdTasks() []models.CreateTaskInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CreateTaskInput(nil), s.created...)
}

func (s *stubServer) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func newStubServer(t *testing.T, role models.Role) *stubServer {
	t.Helper()
	s := &stubServer{role: role}
	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.AuthResponse{Token: "tok", User: models.User{ID: "m-1", Name: "Maria", Role: s.currentRole()}})
	})
	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.TaskPage{
			Tasks: []models.Task{
				{ID: "t-1", Title: "Draft plan", Status: models.StatusPending, Priority: models.PriorityMedium},
				{ID: "t-2", Title: "Ship", Status: models.StatusCompleted, Priority: models.PriorityHigh},
			},
			CurrentPage: 1, TotalPages: 1, TotalTasks: 2,
		})
	})
	mux.HandleFunc("PUT /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.puts++
		s.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server error"})
	})
	mux.HandleFunc("POST /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		var in models.CreateTaskInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.mu.Lock()
		s.created = append(s.created, in)
		s.mu.Unlock()
		writeJSON(w, http.StatusCreated, models.Task{ID: "t-3", Title: in.Title, Status: models.StatusPending, AssignedTo: models.UserRef{ID: in.AssignedTo, Name: "Alice"}})
	})
	mux.HandleFunc("DELETE /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "t-1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Task not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Task removed"})
	})
	mux.HandleFunc("GET /api/tasks/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []models.User{
			{ID: "m-1", Name: "Maria", Email: "maria@example.com", Role: models.RoleManager},
			{ID: "u-a", Name: "Alice", Email: "alice@example.com", Role: models.RoleUser},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	s.url = srv.URL
	return s
}

func run(s *stubServer, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", s.url, "--email", "maria@example.com", "--password", "secret"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMove_SameColumnSendsNothing(t *testing.T) {
	s := newStubServer(t, models.RoleManager)

	out, err := run(s, "move", "t-1", "Pending")
	require.NoError(t, err)
	assert.Contains(t, out, "already in Pending")
	assert.Zero(t, s.putCount())
}

func TestMove_FailedUpdateExitsWithError(t *testing.T) {
	s := newStubServer(t, models.RoleManager)

	out, err := run(s, "move", "t-1", "Completed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to update status")
	var apiErr *dashboard.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, 1, s.putCount())
	// the refetched board shows the task back in its column
	assert.Contains(t, out, "== Pending (1)")

	_, err = run(s, "move", "missing", "Completed")
	assert.Error(t, err)
}

func TestCreate_ResolvesAssigneeEmail(t *testing.T) {
	s := newStubServer(t, models.RoleManager)

	out, err := run(s, "create", "Plan sprint", "--assignee", "Alice@example.com", "--priority", "High", "--due", "2026-11-01")
	require.NoError(t, err)
	assert.Contains(t, out, "created t-3")

	created := s.createdTasks()
	require.Len(t, created, 1)
	in := created[0]
	assert.Equal(t, "Plan sprint", in.Title)
	assert.Equal(t, "u-a", in.AssignedTo)
	assert.Equal(t, models.PriorityHigh, in.Priority)
	require.NotNil(t, in.DueDate)
	assert.Equal(t, "2026-11-01", in.DueDate.Format("2006-01-02"))

	_, err = run(s, "create", "Plan sprint", "--assignee", "nobody@example.com")
	assert.Error(t, err)
	_, err = run(s, "create", "Plan sprint", "--due", "tomorrow")
	assert.Error(t, err)
	assert.Len(t, s.createdTasks(), 1)
}

func TestCreate_DefaultsAssigneeToSelf(t *testing.T) {
	s := newStubServer(t, models.RoleManager)

	_, err := run(s, "create", "Plan sprint")
	require.NoError(t, err)
	created := s.createdTasks()
	require.Len(t, created, 1)
	assert.Equal(t, "m-1", created[0].AssignedTo)
}

func TestDelete(t *testing.T) {
	s := newStubServer(t, models.RoleManager)

	out, err := run(s, "delete", "t-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Task removed")

	_, err = run(s, "delete", "t-404")
	var apiErr *dashboard.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestUsers(t *testing.T) {
	s := newStubServer(t, models.RoleManager)
	out, err := run(s, "users")
	require.NoError(t, err)
	assert.Contains(t, out, "u-a  Alice <alice@example.com> user")

	s.setRole(models.RoleUser)
	_, err = run(s, "users")
	assert.EqualError(t, err, "only managers can list users")
}
