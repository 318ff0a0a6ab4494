package models

import "time"

const (
	ActionCreatedTask   = "Created Task"
	ActionUpdatedStatus = "Updated Status"
	ActionUpdatedTask   = "Updated Task"
	ActionDeletedTask   = "Deleted Task"
)

// AuditLogEntry is an append-only record of a task mutation.
type AuditLogEntry struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actorId"`
	Actor     *UserRef  `json:"actor,omitempty"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}
