package models

// EventKind names a task lifecycle event on the broadcast channel.
type EventKind string

const (
	EventTaskCreated EventKind = "taskCreated"
	EventTaskUpdated EventKind = "taskUpdated"
	EventTaskDeleted EventKind = "taskDeleted"
)

// TaskEvent is what the server pushes to every connected client.
// Task is set for created/updated, TaskID for deleted.
type TaskEvent struct {
	Kind   EventKind `json:"event"`
	Task   *Task     `json:"task,omitempty"`
	TaskID string    `json:"taskId,omitempty"`
}

func TaskCreated(t *Task) TaskEvent {
	return TaskEvent{Kind: EventTaskCreated, Task: t, TaskID: t.ID}
}

func TaskUpdated(t *Task) TaskEvent {
	return TaskEvent{Kind: EventTaskUpdated, Task: t, TaskID: t.ID}
}

func TaskDeleted(id string) TaskEvent {
	return TaskEvent{Kind: EventTaskDeleted, TaskID: id}
}
