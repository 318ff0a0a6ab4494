package authz

import (
	"fmt"

	"teamboard/internal/models"
)

type Operation string

const (
	OpList         Operation = "list"
	OpCreate       Operation = "create"
	OpUpdate       Operation = "update"
	OpDelete       Operation = "delete"
	OpListUsers    Operation = "listUsers"
	OpListAuditLog Operation = "listAuditLog"
)

// Field is a mutable task attribute.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldStatus      Field = "status"
	FieldPriority    Field = "priority"
	FieldDueDate     Field = "dueDate"
	FieldAssignedTo  Field = "assignedTo"
)

// FieldSet is the set of fields an actor may change in an update.
type FieldSet map[Field]struct{}

func NewFieldSet(fields ...Field) FieldSet {
	fs := make(FieldSet, len(fields))
	for _, f := range fields {
		fs[f] = struct{}{}
	}
	return fs
}

func (fs FieldSet) Has(f Field) bool {
	_, ok := fs[f]
	return ok
}

// Restrict drops every field of p that is not in the set.
func (fs FieldSet) Restrict(p models.TaskPatch) models.TaskPatch {
	out := models.TaskPatch{}
	if fs.Has(FieldTitle) {
		out.Title = p.Title
	}
	if fs.Has(FieldDescription) {
		out.Description = p.Description
	}
	if fs.Has(FieldStatus) {
		out.Status = p.Status
	}
	if fs.Has(FieldPriority) {
		out.Priority = p.Priority
	}
	if fs.Has(FieldDueDate) {
		out.DueDate = p.DueDate
		out.ClearDueDate = p.ClearDueDate
	}
	if fs.Has(FieldAssignedTo) {
		out.AssignedTo = p.AssignedTo
	}
	return out
}

var (
	managerFields  = NewFieldSet(FieldTitle, FieldDescription, FieldStatus, FieldPriority, FieldDueDate, FieldAssignedTo)
	assigneeFields = NewFieldSet(FieldStatus)
)

// Decision is the outcome of a policy check.
type Decision struct {
	// Filter scopes list queries.
	Filter models.TaskFilter
	// Mutable is the field set an update may touch.
	Mutable FieldSet
	// AuditAction is the audit entry recorded for an update.
	AuditAction string
}

// Decide evaluates the access policy for actor performing op. task is the
// current stored task and is only consulted for OpUpdate.
func Decide(actor models.Actor, op Operation, task *models.Task) (Decision, error) {
	switch op {
	case OpList:
		if IsManager(actor.Role) {
			return Decision{}, nil
		}
		id := actor.ID
		return Decision{Filter: models.TaskFilter{AssignedTo: &id}}, nil

	case OpCreate, OpDelete, OpListUsers, OpListAuditLog:
		if err := CanManage(actor); err != nil {
			return Decision{}, err
		}
		return Decision{}, nil

	case OpUpdate:
		if task == nil {
			return Decision{}, fmt.Errorf("authz: update decision needs the current task")
		}
		if IsManager(actor.Role) {
			return Decision{Mutable: managerFields, AuditAction: models.ActionUpdatedTask}, nil
		}
		if task.AssignedTo.ID != actor.ID {
			return Decision{}, ErrNotOwner
		}
		return Decision{Mutable: assigneeFields, AuditAction: models.ActionUpdatedStatus}, nil
	}
	return Decision{}, fmt.Errorf("authz: unknown operation %q", op)
}
