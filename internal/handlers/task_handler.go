package handlers

import (
	"bytes"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"teamboard/internal/models"
	"teamboard/internal/repositories"
	"teamboard/internal/services"
)

type TaskHandler struct {
	service services.TaskService
	reports services.ReportService
}

func NewTaskHandler(service services.TaskService, reports services.ReportService) *TaskHandler {
	return &TaskHandler{service: service, reports: reports}
}

type createTaskRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Status      models.TaskStatus   `json:"status"`
	Priority    models.TaskPriority `json:"priority"`
	DueDate     string              `json:"dueDate"`
	AssignedTo  string              `json:"assignedTo"`
}

// updateTaskRequest keeps omitted and empty apart: nil leaves the field as is,
// "" clears description and dueDate.
type updateTaskRequest struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	Status      *models.TaskStatus   `json:"status"`
	Priority    *models.TaskPriority `json:"priority"`
	DueDate     *string              `json:"dueDate"`
	AssignedTo  *string              `json:"assignedTo"`
}

func (r updateTaskRequest) patch() (models.TaskPatch, error) {
	p := models.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		Priority:    r.Priority,
		AssignedTo:  r.AssignedTo,
	}
	if r.DueDate != nil {
		if strings.TrimSpace(*r.DueDate) == "" {
			p.ClearDueDate = true
		} else {
			d, err := parseDate(*r.DueDate)
			if err != nil {
				return p, err
			}
			p.DueDate = &d
		}
	}
	return p, nil
}

// List godoc
// @Summary      List tasks
// @Description  Managers see every task, users only the ones assigned to them.
// @Tags         Tasks
// @Produce      json
// @Param        page   query  int     false  "page (default 1)"
// @Param        limit  query  int     false  "page size (default 10, max 100)"
// @Param        sort   query  string  false  "createdAt|updatedAt|dueDate|priority|status|title (priority and status sort by rank)"
// @Param        order  query  string  false  "asc|desc"
// @Success      200  {object}  models.TaskPage
// @Failure      400  {object}  map[string]string
// @Security     BearerAuth
// @Router       /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	page := queryInt(c, "page", services.DefaultPage)
	limit := queryInt(c, "limit", services.DefaultLimit)

	var sort models.TaskSort
	if field := strings.TrimSpace(c.Query("sort")); field != "" {
		if !repositories.SortFieldAllowed(field) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sort field"})
			return
		}
		sort.Field = field
		sort.Asc = strings.EqualFold(c.Query("order"), "asc")
	}

	result, err := h.service.ListTasks(c.Request.Context(), actor, page, limit, sort)
	if err != nil {
		respondError(c, "task", "list", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Create godoc
// @Summary      Create a task
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        task  body      createTaskRequest  true  "task"
// @Success      201   {object}  models.Task
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Security     BearerAuth
// @Router       /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[task][create][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := models.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssignedTo:  req.AssignedTo,
	}
	if strings.TrimSpace(req.DueDate) != "" {
		d, err := parseDate(req.DueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dueDate"})
			return
		}
		in.DueDate = &d
	}

	task, err := h.service.CreateTask(c.Request.Context(), actor, in)
	if err != nil {
		respondError(c, "task", "create", err)
		return
	}
	log.Printf("[task][create][ok] id=%s assignee=%s by=%s", task.ID, task.AssignedTo.ID, actor.ID)
	c.JSON(http.StatusCreated, task)
}

// Update godoc
// @Summary      Update a task
// @Description  Users may only change the status of tasks assigned to them; other fields are ignored.
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "task id"
// @Param        task  body      updateTaskRequest  true  "fields to change"
// @Success      200   {object}  models.Task
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Security     BearerAuth
// @Router       /tasks/{id} [put]
func (h *TaskHandler) Update(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id := c.Param("id")
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[task][update][bind][err] id=%s: %v", id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	patch, err := req.patch()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dueDate"})
		return
	}

	task, err := h.service.UpdateTask(c.Request.Context(), actor, id, patch)
	if err != nil {
		respondError(c, "task", "update", err)
		return
	}
	log.Printf("[task][update][ok] id=%s by=%s status=%q", task.ID, actor.ID, task.Status)
	c.JSON(http.StatusOK, task)
}

// Delete godoc
// @Summary      Delete a task
// @Tags         Tasks
// @Produce      json
// @Param        id  path  string  true  "task id"
// @Success      200  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /tasks/{id} [delete]
func (h *TaskHandler) Delete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.service.DeleteTask(c.Request.Context(), actor, id); err != nil {
		respondError(c, "task", "delete", err)
		return
	}
	log.Printf("[task][delete][ok] id=%s by=%s", id, actor.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Task removed"})
}

// @Summary   List users
// @Tags      Tasks
// @Produce   json
// @Success   200  {array}  models.User
// @Security  BearerAuth
// @Router    /tasks/users [get]
func (h *TaskHandler) Users(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	users, err := h.service.ListUsers(c.Request.Context(), actor)
	if err != nil {
		respondError(c, "task", "users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// @Summary   Audit log, newest first
// @Tags      Tasks
// @Produce   json
// @Success   200  {array}  models.AuditLogEntry
// @Security  BearerAuth
// @Router    /tasks/logs [get]
func (h *TaskHandler) Logs(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	entries, err := h.service.ListAuditLog(c.Request.Context(), actor)
	if err != nil {
		respondError(c, "task", "logs", err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// @Summary   Audit log as PDF
// @Tags      Tasks
// @Produce   application/pdf
// @Success   200  {file}  file
// @Security  BearerAuth
// @Router    /tasks/logs/report.pdf [get]
func (h *TaskHandler) LogsReport(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	// rendered into memory first so a failure can still produce a JSON error
	var buf bytes.Buffer
	if err := h.reports.AuditReport(c.Request.Context(), actor, &buf); err != nil {
		respondError(c, "task", "report", err)
		return
	}
	filename := "audit-log-" + time.Now().UTC().Format("20060102") + ".pdf"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
