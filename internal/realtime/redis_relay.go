package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"teamboard/internal/models"
)

const DefaultRelayChannel = "teamboard:task-events"

const (
	relayInitialDelay = time.Second
	relayMaxDelay     = 30 * time.Second
)

// relayMessage is the Redis payload. Origin names the publishing instance so
// it can skip its own echo.
type relayMessage struct {
	Origin string           `json:"origin"`
	Event  models.TaskEvent `json:"event"`
}

// RedisRelay lets several server instances share one broadcast channel.
// Publish reaches the local hub directly and other instances through Redis,
// so local subscribers keep getting events while Redis is unavailable.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   *Hub
	origin  string
	timeout time.Duration
}

func NewRedisRelay(rdb *redis.Client, channel string, local *Hub) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		local:   local,
		origin:  uuid.NewString(),
		timeout: 2 * time.Second,
	}
}

// Publish is fire-and-forget: it returns immediately and only logs Redis failures.
func (r *RedisRelay) Publish(evt models.TaskEvent) {
	r.local.Publish(evt)

	data, err := json.Marshal(relayMessage{Origin: r.origin, Event: evt})
	if err != nil {
		log.Printf("[relay][publish][err] marshal %s: %v", evt.Kind, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
			log.Printf("[relay][publish][err] event=%s task=%s: %v", evt.Kind, evt.TaskID, err)
		}
	}()
}

// Run subscribes to the relay channel until ctx is cancelled. A lost or
// failed subscription is retried with exponential backoff.
func (r *RedisRelay) Run(ctx context.Context) {
	delay := relayInitialDelay
	for {
		subscribed, err := r.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			delay = relayInitialDelay
		}
		log.Printf("[relay][run][err] channel=%s retry in %s: %v", r.channel, delay, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > relayMaxDelay {
			delay = relayMaxDelay
		}
	}
}

// subscribe forwards messages until the subscription ends. It reports whether
// the subscription was established at all.
func (r *RedisRelay) subscribe(ctx context.Context) (bool, error) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return false, err
	}
	log.Printf("[relay][run] subscribed channel=%s", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, redis.ErrClosed
			}
			r.forward(msg.Payload)
		}
	}
}

func (r *RedisRelay) forward(payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		log.Printf("[relay][forward][err] bad payload: %v", err)
		return
	}
	if msg.Origin == r.origin {
		return
	}
	r.local.Publish(msg.Event)
}
