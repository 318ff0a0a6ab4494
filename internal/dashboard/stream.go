package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"teamboard/internal/models"
)

// Stream feeds task events from the server's websocket into an Engine.
type Stream struct {
	url    string
	engine *Engine
	notify Notifier
	dialer *websocket.Dialer

	// RetryDelay is the pause between reconnect attempts.
	RetryDelay time.Duration
}

// NewStream builds a stream for the server at baseURL (http or https).
func NewStream(baseURL string, engine *Engine, notify Notifier) (*Stream, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	if notify == nil {
		notify = LogNotifier{}
	}
	return &Stream{
		url:        u.String(),
		engine:     engine,
		notify:     notify,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		RetryDelay: 2 * time.Second,
	}, nil
}

// Run reads events until ctx is cancelled, reconnecting after transport
// failures. Events missed while disconnected are recovered by reloading the
// current page after each reconnect.
func (s *Stream) Run(ctx context.Context) error {
	reconnect := false
	for {
		err := s.consume(ctx, reconnect)
		if ctx.Err() != nil {
			return nil
		}
		s.notify.Error("Live updates disconnected", err)
		reconnect = true

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.RetryDelay):
		}
	}
}

func (s *Stream) consume(ctx context.Context, resync bool) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()
	log.Printf("[stream][connect] url=%s", s.url)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if resync {
		page, _, _ := s.engine.Page()
		_ = s.engine.Load(ctx, page)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var evt models.TaskEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Printf("[stream][decode][err] %v", err)
			continue
		}
		s.engine.Apply(evt)
	}
}
