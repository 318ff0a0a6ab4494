package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"teamboard/internal/models"
	"teamboard/internal/realtime"
)

const notifyQueueSize = 64

// MailSender is the part of *gomail.Dialer the notifier needs.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// AssignmentNotifier is a hub subscriber that emails the assignee of every
// newly created task. Sending happens on Run's goroutine, Deliver only queues.
type AssignmentNotifier struct {
	id     string
	sender MailSender
	from   string
	queue  chan models.TaskEvent

	closeOnce sync.Once
	done      chan struct{}
}

func NewAssignmentNotifier(sender MailSender, from string) *AssignmentNotifier {
	return &AssignmentNotifier{
		id:     "mail-" + uuid.NewString(),
		sender: sender,
		from:   from,
		queue:  make(chan models.TaskEvent, notifyQueueSize),
		done:   make(chan struct{}),
	}
}

// NewSMTPSender builds the gomail dialer used in production.
func NewSMTPSender(host string, port int, user, password string) MailSender {
	return gomail.NewDialer(host, port, user, password)
}

func (n *AssignmentNotifier) ID() string { return n.id }

func (n *AssignmentNotifier) Deliver(evt models.TaskEvent) error {
	if evt.Kind != models.EventTaskCreated || evt.Task == nil || evt.Task.AssignedTo.Email == "" {
		return nil
	}
	select {
	case <-n.done:
		return nil
	case n.queue <- evt:
		return nil
	default:
		return realtime.ErrQueueFull
	}
}

// Run sends queued notifications until ctx is cancelled or Close is called.
func (n *AssignmentNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case evt := <-n.queue:
			if err := n.send(evt.Task); err != nil {
				log.Printf("[notify][send][err] task=%s to=%s: %v", evt.Task.ID, evt.Task.AssignedTo.Email, err)
			}
		}
	}
}

func (n *AssignmentNotifier) Close() error {
	n.closeOnce.Do(func() { close(n.done) })
	return nil
}

func (n *AssignmentNotifier) send(t *models.Task) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", t.AssignedTo.Email)
	m.SetHeader("Subject", "New task assigned: "+t.Title)

	due := "none"
	if t.DueDate != nil {
		due = t.DueDate.Format("2006-01-02")
	}
	body := fmt.Sprintf(`
		<h3>%s, a task was assigned to you</h3>
		<p><strong>%s</strong></p>
		<p>%s</p>
		<p>Priority: %s<br>Status: %s<br>Due: %s</p>
	`, html.EscapeString(t.AssignedTo.Name), html.EscapeString(t.Title),
		html.EscapeString(t.Description), t.Priority, t.Status, due)
	m.SetBody("text/html", body)

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send assignment email: %w", err)
	}
	return nil
}
