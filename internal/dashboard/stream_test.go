package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamboard/internal/handlers"
	"teamboard/internal/models"
	"teamboard/internal/pdf"
	"teamboard/internal/realtime"
	"teamboard/internal/repositories"
	"teamboard/internal/routes"
	"teamboard/internal/services"
)

type board struct {
	url  string
	hub  *realtime.Hub
	auth services.AuthService

	// wsDown refuses websocket handshakes while set
	wsDown atomic.Bool
}

func startBoard(t *testing.T) *board {
	t.Helper()
	db, err := repositories.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(context.Background(), db))

	secret := []byte("dashboard-test-secret-0123456789")
	users := repositories.NewUserRepository(db)
	audit := repositories.NewAuditRepository(db)
	hub := realtime.NewHub()
	auth := services.NewAuthService(users, secret, time.Hour)
	tasks := services.NewTaskService(repositories.NewTaskRepository(db), users, audit, hub)
	reports := services.NewReportService(audit, pdf.NewDocumentGenerator(""))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	routes.SetupRoutes(r, secret,
		handlers.NewAuthHandler(auth),
		handlers.NewTaskHandler(tasks, reports),
		handlers.NewEventsHandler(hub),
	)
	b := &board{hub: hub, auth: auth}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/ws" && b.wsDown.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		r.ServeHTTP(w, req)
	}))
	b.url = srv.URL
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		tasks.Wait()
		_ = db.Close()
	})
	return b
}

func (b *board) login(t *testing.T, name string, role models.Role) *Session {
	t.Helper()
	email := name + "@example.com"
	_, err := b.auth.Register(context.Background(), models.RegisterRequest{Name: name, Email: email, Password: "password1", Role: role})
	require.NoError(t, err)
	s, err := Login(context.Background(), b.url, email, "password1")
	require.NoError(t, err)
	return s
}

func TestLogin_WrongPassword(t *testing.T) {
	b := startBoard(t)
	b.login(t, "erin", models.RoleUser)

	_, err := Login(context.Background(), b.url, "erin@example.com", "nope")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.Status)
}

func TestEndToEnd_LiveBoard(t *testing.T) {
	b := startBoard(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bossSession := b.login(t, "maria", models.RoleManager)
	aliceSession := b.login(t, "alice", models.RoleUser)
	bobSession := b.login(t, "bob", models.RoleUser)
	boss := NewHTTPClient(b.url, bossSession)

	aliceBoard := NewEngine(NewHTTPClient(b.url, aliceSession), aliceSession, WithNotifier(&notes{}))
	require.NoError(t, aliceBoard.Load(ctx, 1))
	assert.Empty(t, aliceBoard.Tasks())

	stream, err := NewStream(b.url, aliceBoard, &notes{})
	require.NoError(t, err)
	go func() { _ = stream.Run(ctx) }()
	require.Eventually(t, func() bool { return b.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	created, err := boss.CreateTask(ctx, models.CreateTaskInput{
		Title:      "Ship release",
		Priority:   models.PriorityHigh,
		AssignedTo: aliceSession.User().ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.AssignedTo.Name)

	require.Eventually(t, func() bool {
		tasks := aliceBoard.Tasks()
		return len(tasks) == 1 && tasks[0].ID == created.ID
	}, 2*time.Second, 10*time.Millisecond)

	bobBoard := NewEngine(NewHTTPClient(b.url, bobSession), bobSession)
	require.NoError(t, bobBoard.Load(ctx, 1))
	assert.Empty(t, bobBoard.Tasks())

	_, err = NewHTTPClient(b.url, aliceSession).CreateTask(ctx, models.CreateTaskInput{Title: "nope"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.Status)

	require.True(t, aliceBoard.Drop(ctx, DragResult{
		TaskID:      created.ID,
		Source:      Position{Status: models.StatusPending},
		Destination: &Position{Status: models.StatusCompleted},
	}))
	aliceBoard.Wait()
	page, err := boss.ListTasks(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, models.StatusCompleted, page.Tasks[0].Status)

	require.NoError(t, boss.DeleteTask(ctx, created.ID))
	require.Eventually(t, func() bool { return len(aliceBoard.Tasks()) == 0 }, 2*time.Second, 10*time.Millisecond)

	err = boss.DeleteTask(ctx, created.ID)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Status)

	bossSession.Close()
	_, err = boss.ListTasks(ctx, 1, 10)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestStream_ReconnectResyncsMissedChanges(t *testing.T) {
	b := startBoard(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bossSession := b.login(t, "maria", models.RoleManager)
	aliceSession := b.login(t, "alice", models.RoleUser)
	boss := NewHTTPClient(b.url, bossSession)
	created, err := boss.CreateTask(ctx, models.CreateTaskInput{Title: "Write docs", AssignedTo: aliceSession.User().ID})
	require.NoError(t, err)

	aliceBoard := NewEngine(NewHTTPClient(b.url, aliceSession), aliceSession, WithNotifier(&notes{}))
	require.NoError(t, aliceBoard.Load(ctx, 1))
	require.Len(t, aliceBoard.Tasks(), 1)

	streamNotes := &notes{}
	stream, err := NewStream(b.url, aliceBoard, streamNotes)
	require.NoError(t, err)
	stream.RetryDelay = 20 * time.Millisecond
	go func() { _ = stream.Run(ctx) }()
	require.Eventually(t, func() bool { return b.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// drop every connection server side and keep the client out
	b.wsDown.Store(true)
	b.hub.Close()
	require.Eventually(t, func() bool {
		return len(streamNotes.errors()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	inProgress := models.StatusInProgress
	_, err = boss.UpdateTask(ctx, created.ID, TaskUpdate{Status: &inProgress})
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, models.StatusPending, aliceBoard.Tasks()[0].Status, "no live update while disconnected")

	b.wsDown.Store(false)
	require.Eventually(t, func() bool {
		tasks := aliceBoard.Tasks()
		return len(tasks) == 1 && tasks[0].Status == models.StatusInProgress
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, b.hub.Count())
}

func TestNewStream_URL(t *testing.T) {
	s, err := NewStream("https://board.example.com/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "wss://board.example.com/ws", s.url)

	_, err = NewStream("ftp://board.example.com", nil, nil)
	assert.Error(t, err)
}
