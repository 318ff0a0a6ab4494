package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamboard/internal/models"
)

type recorder struct {
	id   string
	fail error

	mu     sync.Mutex
	events []models.TaskEvent
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Deliver(evt models.TaskEvent) error {
	if r.fail != nil {
		return r.fail
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) got() []models.TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TaskEvent(nil), r.events...)
}

func TestHub_PublishReachesEverySubscriber(t *testing.T) {
	hub := NewHub()
	a := &recorder{id: "a"}
	b := &recorder{id: "b"}
	broken := &recorder{id: "broken", fail: ErrQueueFull}
	hub.Subscribe(a)
	hub.Subscribe(broken)
	hub.Subscribe(b)
	require.Equal(t, 3, hub.Count())

	task := &models.Task{ID: "t-1", Title: "Ship it"}
	hub.Publish(models.TaskCreated(task))
	hub.Publish(models.TaskDeleted("t-1"))

	for _, r := range []*recorder{a, b} {
		events := r.got()
		require.Len(t, events, 2)
		assert.Equal(t, models.EventTaskCreated, events[0].Kind)
		assert.Equal(t, "t-1", events[0].Task.ID)
		assert.Equal(t, models.EventTaskDeleted, events[1].Kind)
		assert.Equal(t, "t-1", events[1].TaskID)
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	a := &recorder{id: "a"}
	hub.Subscribe(a)
	hub.Unsubscribe(a)
	hub.Unsubscribe(a)

	hub.Publish(models.TaskDeleted("t-1"))
	assert.Empty(t, a.got())
	assert.Equal(t, 0, hub.Count())
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	assert.NotPanics(t, func() {
		NewHub().Publish(models.TaskDeleted("t-1"))
	})
}

func TestRedisRelay_ForwardFeedsLocalHub(t *testing.T) {
	hub := NewHub()
	a := &recorder{id: "a"}
	hub.Subscribe(a)
	relay := NewRedisRelay(nil, "", hub)
	assert.Equal(t, DefaultRelayChannel, relay.channel)

	remote, err := json.Marshal(relayMessage{
		Origin: "other-instance",
		Event:  models.TaskUpdated(&models.Task{ID: "t-9", Status: models.StatusCompleted}),
	})
	require.NoError(t, err)
	own, err := json.Marshal(relayMessage{Origin: relay.origin, Event: models.TaskDeleted("t-9")})
	require.NoError(t, err)

	relay.forward(string(remote))
	relay.forward(string(own))
	relay.forward("{not json")

	events := a.got()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTaskUpdated, events[0].Kind)
	assert.Equal(t, models.StatusCompleted, events[0].Task.Status)
}

func TestRedisRelay_LocalDeliveryWithoutRedis(t *testing.T) {
	hub := NewHub()
	a := &recorder{id: "a"}
	hub.Subscribe(a)
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer rdb.Close()
	relay := NewRedisRelay(rdb, "", hub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	relay.Publish(models.TaskDeleted("t-1"))
	events := a.got()
	require.Len(t, events, 1)
	assert.Equal(t, "t-1", events[0].TaskID)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

func TestClient_WebsocketReceivesBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r, hub)
		if err != nil {
			return
		}
		c.Serve()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(models.TaskDeleted("t-42"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt models.TaskEvent
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, models.EventTaskDeleted, evt.Kind)
	assert.Equal(t, "t-42", evt.TaskID)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
