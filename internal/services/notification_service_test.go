package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"teamboard/internal/models"
	"teamboard/internal/realtime"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*gomail.Message
	err  error
}

func (s *fakeSender) DialAndSend(m ...*gomail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m...)
	return s.err
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestAssignmentNotifier_EmailsAssigneeOnCreate(t *testing.T) {
	sender := &fakeSender{}
	n := NewAssignmentNotifier(sender, "board@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	hub := realtime.NewHub()
	hub.Subscribe(n)
	task := &models.Task{
		ID:         "t-1",
		Title:      "Review PR",
		Status:     models.StatusPending,
		Priority:   models.PriorityHigh,
		AssignedTo: models.UserRef{ID: "u-a", Name: "Alice", Email: "alice@example.com"},
	}
	hub.Publish(models.TaskUpdated(task))
	hub.Publish(models.TaskDeleted("t-1"))
	hub.Publish(models.TaskCreated(task))

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)
	sender.mu.Lock()
	msg := sender.sent[0]
	sender.mu.Unlock()
	assert.Equal(t, []string{"alice@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"New task assigned: Review PR"}, msg.GetHeader("Subject"))
}

func TestAssignmentNotifier_SendFailureIsLoggedOnly(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	n := NewAssignmentNotifier(sender, "board@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	task := &models.Task{ID: "t-1", Title: "x", AssignedTo: models.UserRef{ID: "u-a", Email: "a@example.com"}}
	require.NoError(t, n.Deliver(models.TaskCreated(task)))
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, n.Close())
	assert.NoError(t, n.Deliver(models.TaskCreated(task)))
}

func TestAssignmentNotifier_FullQueue(t *testing.T) {
	n := NewAssignmentNotifier(&fakeSender{}, "board@example.com")
	task := &models.Task{ID: "t-1", Title: "x", AssignedTo: models.UserRef{ID: "u-a", Email: "a@example.com"}}
	for i := 0; i < notifyQueueSize; i++ {
		require.NoError(t, n.Deliver(models.TaskCreated(task)))
	}
	assert.ErrorIs(t, n.Deliver(models.TaskCreated(task)), realtime.ErrQueueFull)
}
