// internal/services/task_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"teamboard/internal/authz"
	"teamboard/internal/models"
	"teamboard/internal/realtime"
	"teamboard/internal/repositories"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	auditTimeout = 5 * time.Second
)

// TaskService is the synchronous half of the board protocol: policy, store,
// audit and broadcast for every task operation.
type TaskService interface {
	ListTasks(ctx context.Context, actor models.Actor, page, limit int, sort models.TaskSort) (*models.TaskPage, error)
	CreateTask(ctx context.Context, actor models.Actor, in models.CreateTaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, actor models.Actor, id string, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, actor models.Actor, id string) error
	ListUsers(ctx context.Context, actor models.Actor) ([]models.User, error)
	ListAuditLog(ctx context.Context, actor models.Actor) ([]models.AuditLogEntry, error)

	// Wait blocks until in-flight audit writes have finished.
	Wait()
}

type taskService struct {
	tasks repositories.TaskRepository
	users repositories.UserRepository
	audit repositories.AuditRepository
	pub   realtime.Publisher
	now   func() time.Time

	pending sync.WaitGroup
}

type TaskServiceOption func(*taskService)

// WithClock replaces the time source used for createdAt/updatedAt and audit timestamps.
func WithClock(now func() time.Time) TaskServiceOption {
	return func(s *taskService) { s.now = now }
}

// NewTaskService creates a new instance of TaskService.
func NewTaskService(
	tasks repositories.TaskRepository,
	users repositories.UserRepository,
	audit repositories.AuditRepository,
	pub realtime.Publisher,
	opts ...TaskServiceOption,
) TaskService {
	s := &taskService{
		tasks: tasks,
		users: users,
		audit: audit,
		pub:   pub,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizePage applies the listing defaults: page and limit below 1 fall back
// to 1 and 10, limit is capped at MaxLimit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// TotalPages is ceil(total/limit) but never less than 1.
func TotalPages(total, limit int) int {
	if limit < 1 {
		limit = DefaultLimit
	}
	pages := (total + limit - 1) / limit
	if pages < 1 {
		return 1
	}
	return pages
}

func (s *taskService) ListTasks(ctx context.Context, actor models.Actor, page, limit int, sort models.TaskSort) (*models.TaskPage, error) {
	decision, err := authz.Decide(actor, authz.OpList, nil)
	if err != nil {
		return nil, err
	}
	page, limit = NormalizePage(page, limit)

	tasks, total, err := s.tasks.List(ctx, decision.Filter, sort, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return &models.TaskPage{
		Tasks:       tasks,
		CurrentPage: page,
		TotalPages:  TotalPages(total, limit),
		TotalTasks:  total,
	}, nil
}

func (s *taskService) CreateTask(ctx context.Context, actor models.Actor, in models.CreateTaskInput) (*models.Task, error) {
	if _, err := authz.Decide(actor, authz.OpCreate, nil); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid("title is required")
	}
	if in.Status == "" {
		in.Status = models.StatusPending
	}
	if !in.Status.Valid() {
		return nil, invalid("unknown status %q", in.Status)
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, invalid("unknown priority %q", in.Priority)
	}
	if strings.TrimSpace(in.AssignedTo) == "" {
		in.AssignedTo = actor.ID
	}
	if err := s.checkAssignee(ctx, in.AssignedTo); err != nil {
		return nil, err
	}

	now := s.now()
	task := &models.Task{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		AssignedTo:  models.UserRef{ID: in.AssignedTo},
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	created := s.enriched(ctx, task)

	s.record(ctx, actor.ID, models.ActionCreatedTask, "Created task: "+created.Title)
	s.pub.Publish(models.TaskCreated(created))
	return created, nil
}

func (s *taskService) UpdateTask(ctx context.Context, actor models.Actor, id string, patch models.TaskPatch) (*models.Task, error) {
	current, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find task %s: %w", id, err)
	}

	decision, err := authz.Decide(actor, authz.OpUpdate, current)
	if err != nil {
		return nil, err
	}
	patch = decision.Mutable.Restrict(patch)
	if err := s.validatePatch(ctx, &patch); err != nil {
		return nil, err
	}

	updated := *current
	patch.Apply(&updated)
	updated.UpdatedAt = s.now()

	if err := s.tasks.Update(ctx, &updated); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// deleted between the read and the write
			return nil, err
		}
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	result := s.enriched(ctx, &updated)

	details := "Updated details of task: " + result.Title
	if decision.AuditAction == models.ActionUpdatedStatus {
		details = fmt.Sprintf("Updated status of %s to %s", result.Title, result.Status)
	}
	s.record(ctx, actor.ID, decision.AuditAction, details)
	s.pub.Publish(models.TaskUpdated(result))
	return result, nil
}

func (s *taskService) DeleteTask(ctx context.Context, actor models.Actor, id string) error {
	if _, err := authz.Decide(actor, authz.OpDelete, nil); err != nil {
		return err
	}
	current, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		return fmt.Errorf("find task %s: %w", id, err)
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	s.record(ctx, actor.ID, models.ActionDeletedTask, "Deleted task: "+current.Title)
	s.pub.Publish(models.TaskDeleted(id))
	return nil
}

func (s *taskService) ListUsers(ctx context.Context, actor models.Actor) ([]models.User, error) {
	if _, err := authz.Decide(actor, authz.OpListUsers, nil); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *taskService) ListAuditLog(ctx context.Context, actor models.Actor) ([]models.AuditLogEntry, error) {
	if _, err := authz.Decide(actor, authz.OpListAuditLog, nil); err != nil {
		return nil, err
	}
	entries, err := s.audit.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return entries, nil
}

func (s *taskService) Wait() {
	s.pending.Wait()
}

func (s *taskService) validatePatch(ctx context.Context, p *models.TaskPatch) error {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return invalid("title cannot be empty")
		}
		p.Title = &t
	}
	if p.Status != nil && !p.Status.Valid() {
		return invalid("unknown status %q", *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return invalid("unknown priority %q", *p.Priority)
	}
	if p.AssignedTo != nil {
		if strings.TrimSpace(*p.AssignedTo) == "" {
			return invalid("assignedTo cannot be empty")
		}
		return s.checkAssignee(ctx, *p.AssignedTo)
	}
	return nil
}

func (s *taskService) checkAssignee(ctx context.Context, userID string) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return invalid("assignedTo %q is not an existing user", userID)
		}
		return fmt.Errorf("find assignee %s: %w", userID, err)
	}
	return nil
}

// enriched re-reads the task so the assignee carries name and email. If the
// read fails the stored snapshot is returned as is.
func (s *taskService) enriched(ctx context.Context, t *models.Task) *models.Task {
	full, err := s.tasks.FindByID(ctx, t.ID)
	if err != nil {
		log.Printf("[task][enrich][warn] id=%s: %v", t.ID, err)
		return t
	}
	return full
}

// record appends an audit entry in the background. Failures are logged and
// never reach the caller.
func (s *taskService) record(ctx context.Context, actorID, action, details string) {
	entry := &models.AuditLogEntry{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		Timestamp: s.now(),
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		defer cancel()
		if err := s.audit.Append(ctx, entry); err != nil {
			log.Printf("[audit][append][err] actor=%s action=%q: %v", actorID, action, err)
		}
	}()
}
