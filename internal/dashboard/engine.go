package dashboard

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"teamboard/internal/models"
)

type State int

const (
	Loading State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "loading"
}

// Notifier shows non-blocking messages to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string, err error)
}

// LogNotifier writes notifications to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Success(msg string) { log.Printf("[board][ok] %s", msg) }

func (LogNotifier) Error(msg string, err error) { log.Printf("[board][err] %s: %v", msg, err) }

// Position is a slot in a status column.
type Position struct {
	Status models.TaskStatus
	Index  int
}

// DragResult describes a finished drag. Destination is nil when the task was
// dropped outside every column.
type DragResult struct {
	TaskID      string
	Source      Position
	Destination *Position
}

// Engine keeps one client's view of the board: the current page of tasks,
// patched by broadcast events and optimistic drops. The server stays the
// source of truth; a full page fetch is the repair path.
type Engine struct {
	api    TaskAPI
	self   models.User
	limit  int
	notify Notifier

	mu          sync.Mutex
	state       State
	loaded      bool
	tasks       []models.Task
	currentPage int
	totalPages  int
	totalTasks  int
	err         error
	latest      uint64

	pending sync.WaitGroup
}

type Option func(*Engine)

func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notify = n }
}

func NewEngine(api TaskAPI, session *Session, opts ...Option) *Engine {
	e := &Engine{
		api:         api,
		self:        session.User(),
		limit:       10,
		notify:      LogNotifier{},
		state:       Loading,
		currentPage: 1,
		totalPages:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load fetches page and replaces the collection with it. A response that
// arrives after a newer Load was started is discarded. On failure the
// collection is kept and the error is exposed through Err.
func (e *Engine) Load(ctx context.Context, page int) error {
	e.mu.Lock()
	e.latest++
	token := e.latest
	e.state = Loading
	e.mu.Unlock()

	result, err := e.api.ListTasks(ctx, page, e.limit)

	e.mu.Lock()
	if token != e.latest {
		e.mu.Unlock()
		log.Printf("[board][load] discarding stale page=%d", page)
		return nil
	}
	if err != nil {
		e.err = err
		if e.loaded {
			e.state = Ready
		}
		e.mu.Unlock()
		e.notify.Error("Failed to load tasks", err)
		return err
	}
	e.tasks = append([]models.Task(nil), result.Tasks...)
	e.currentPage = result.CurrentPage
	e.totalPages = result.TotalPages
	e.totalTasks = result.TotalTasks
	e.state = Ready
	e.loaded = true
	e.err = nil
	e.mu.Unlock()
	return nil
}

// Apply merges one broadcast event into the collection.
func (e *Engine) Apply(evt models.TaskEvent) {
	e.mu.Lock()
	accepted := e.applyLocked(evt)
	e.mu.Unlock()

	if accepted && evt.Kind == models.EventTaskCreated {
		e.notify.Success("New Task: " + evt.Task.Title)
	}
}

// applyLocked reports whether a created event was taken into the collection.
func (e *Engine) applyLocked(evt models.TaskEvent) bool {
	switch evt.Kind {
	case models.EventTaskCreated:
		if evt.Task == nil {
			return false
		}
		if e.self.Role != models.RoleManager && evt.Task.AssignedTo.ID != e.self.ID {
			return false
		}
		if i := e.indexOf(evt.Task.ID); i >= 0 {
			e.tasks[i] = *evt.Task
			return true
		}
		e.tasks = append([]models.Task{*evt.Task}, e.tasks...)
		return true
	case models.EventTaskUpdated:
		if evt.Task == nil {
			return false
		}
		if i := e.indexOf(evt.Task.ID); i >= 0 {
			e.tasks[i] = *evt.Task
		}
	case models.EventTaskDeleted:
		if i := e.indexOf(evt.TaskID); i >= 0 {
			e.tasks = append(e.tasks[:i:i], e.tasks[i+1:]...)
		}
	}
	return false
}

// Drop applies a drag result: the status changes locally at once and the
// server is updated in the background. If the update fails the page on
// screen is fetched again, unless a newer load has started since the drop.
// It reports whether a request was issued.
func (e *Engine) Drop(ctx context.Context, r DragResult) bool {
	if r.Destination == nil {
		return false
	}
	if r.Destination.Status == r.Source.Status && r.Destination.Index == r.Source.Index {
		return false
	}
	status := r.Destination.Status

	e.mu.Lock()
	i := e.indexOf(r.TaskID)
	if i < 0 {
		e.mu.Unlock()
		return false
	}
	e.tasks[i].Status = status
	token := e.latest
	e.mu.Unlock()

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		if _, err := e.api.UpdateTask(ctx, r.TaskID, TaskUpdate{Status: &status}); err != nil {
			e.notify.Error("Failed to update status", err)
			e.mu.Lock()
			superseded := e.latest != token
			page := e.currentPage
			e.mu.Unlock()
			if superseded {
				// the newer load carries server state for the page the user is on
				return
			}
			_ = e.Load(ctx, page)
			return
		}
		e.notify.Success("Moved to " + string(status))
	}()
	return true
}

// Move drags a task to the end of another column, the way a drop onto that
// column would. Moving a task to its own column is a no-op.
func (e *Engine) Move(ctx context.Context, taskID string, status models.TaskStatus) (bool, error) {
	e.mu.Lock()
	i := e.indexOf(taskID)
	if i < 0 {
		e.mu.Unlock()
		return false, fmt.Errorf("task %s is not on the current page", taskID)
	}
	from := e.tasks[i].Status
	src := Position{Status: from, Index: columnIndex(e.tasks, from, taskID)}
	dst := Position{Status: status, Index: len(filterTasks(e.tasks, status, ""))}
	if status == from {
		dst.Index = src.Index
	}
	e.mu.Unlock()

	return e.Drop(ctx, DragResult{TaskID: taskID, Source: src, Destination: &dst}), nil
}

// Create sends a new task to the server. The board picks it up from the
// broadcast like every other client.
func (e *Engine) Create(ctx context.Context, in models.CreateTaskInput) (*models.Task, error) {
	if in.AssignedTo == "" {
		in.AssignedTo = e.self.ID
	}
	created, err := e.api.CreateTask(ctx, in)
	if err != nil {
		e.notify.Error("Failed to create task", err)
		return nil, err
	}
	return created, nil
}

func (e *Engine) Delete(ctx context.Context, taskID string) error {
	if err := e.api.DeleteTask(ctx, taskID); err != nil {
		e.notify.Error("Failed to delete", err)
		return err
	}
	return nil
}

// Users lists the possible assignees. Only managers may ask; for everyone
// else the list is empty.
func (e *Engine) Users(ctx context.Context) ([]models.User, error) {
	if e.self.Role != models.RoleManager {
		return nil, nil
	}
	return e.api.ListUsers(ctx)
}

// Wait blocks until background updates started by Drop have finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// Visible returns the tasks of one column whose title contains search,
// ignoring case. The collection is not modified.
func (e *Engine) Visible(status models.TaskStatus, search string) []models.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return filterTasks(e.tasks, status, search)
}

// Columns returns Visible for every status.
func (e *Engine) Columns(search string) map[models.TaskStatus][]models.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	cols := make(map[models.TaskStatus][]models.Task, len(models.Statuses))
	for _, s := range models.Statuses {
		cols[s] = filterTasks(e.tasks, s, search)
	}
	return cols
}

func (e *Engine) Tasks() []models.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Task(nil), e.tasks...)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err is the last load error, cleared by the next successful load.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Page returns the current page number and the total page and task counts.
func (e *Engine) Page() (current, totalPages, totalTasks int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentPage, e.totalPages, e.totalTasks
}

func (e *Engine) indexOf(id string) int {
	for i := range e.tasks {
		if e.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func columnIndex(tasks []models.Task, status models.TaskStatus, id string) int {
	n := 0
	for _, t := range tasks {
		if t.Status != status {
			continue
		}
		if t.ID == id {
			return n
		}
		n++
	}
	return -1
}

func filterTasks(tasks []models.Task, status models.TaskStatus, search string) []models.Task {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := []models.Task{}
	for _, t := range tasks {
		if t.Status != status {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.Title), needle) {
			continue
		}
		out = append(out, t)
	}
	return out
}
