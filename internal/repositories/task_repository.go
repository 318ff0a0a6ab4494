package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"teamboard/internal/models"
)

type TaskRepository interface {
	// List returns one window of the filtered tasks plus the total match count.
	List(ctx context.Context, filter models.TaskFilter, sort models.TaskSort, skip, limit int) ([]models.Task, int, error)
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id string) error
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskSelect = `
	SELECT t.id, t.title, t.description, t.status, t.priority, t.due_date,
	       t.assigned_to, COALESCE(u.name, ''), COALESCE(u.email, ''),
	       t.created_by, t.created_at, t.updated_at
	FROM tasks t
	LEFT JOIN users u ON u.id = t.assigned_to`

// sortColumns maps sort fields to SQL. Priority and status sort by rank,
// not by their text.
var sortColumns = map[string]string{
	"createdAt": "t.created_at",
	"updatedAt": "t.updated_at",
	"dueDate":   "t.due_date",
	"priority":  "CASE t.priority WHEN 'Low' THEN 1 WHEN 'Medium' THEN 2 WHEN 'High' THEN 3 ELSE 0 END",
	"status":    "CASE t.status WHEN 'Pending' THEN 1 WHEN 'In Progress' THEN 2 WHEN 'Completed' THEN 3 ELSE 0 END",
	"title":     "t.title",
}

// SortFieldAllowed reports whether field can be used in TaskSort.
func SortFieldAllowed(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

func scanTask(s rowScanner) (*models.Task, error) {
	t := &models.Task{}
	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueDate,
		&t.AssignedTo.ID, &t.AssignedTo.Name, &t.AssignedTo.Email,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func buildTaskWhere(filter models.TaskFilter) (string, []any) {
	conditions := []string{}
	args := []any{}
	argID := 1

	if filter.AssignedTo != nil {
		conditions = append(conditions, fmt.Sprintf("t.assigned_to = $%d", argID))
		args = append(args, *filter.AssignedTo)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func orderBy(sort models.TaskSort) string {
	col, ok := sortColumns[sort.Field]
	if !ok {
		col = sortColumns["createdAt"]
		sort.Asc = false
	}
	dir := "DESC"
	if sort.Asc {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, t.id %s", col, dir, dir)
}

func (r *taskRepository) List(ctx context.Context, filter models.TaskFilter, sort models.TaskSort, skip, limit int) ([]models.Task, int, error) {
	where, args := buildTaskWhere(filter)

	query := taskSelect + where + orderBy(sort) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, skip)...)
	if err != nil {
		return nil, 0, err
	}

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, err
	}
	rows.Close()

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks t"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			id, title, description, status, priority, due_date,
			assigned_to, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.Title, task.Description, task.Status, task.Priority, task.DueDate,
		task.AssignedTo.ID, task.CreatedBy, task.CreatedAt, task.UpdatedAt,
	)
	return err
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, taskSelect+" WHERE t.id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// Update writes every mutable column. created_by and created_at are never touched.
func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks SET
			title=$1, description=$2, status=$3, priority=$4,
			due_date=$5, assigned_to=$6, updated_at=$7
		WHERE id=$8`
	res, err := r.db.ExecContext(ctx, query,
		task.Title, task.Description, task.Status, task.Priority,
		task.DueDate, task.AssignedTo.ID, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}
