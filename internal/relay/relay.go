// Package relay publishes session events to a Redis channel so that other
// processes (spectator frontends, bots, loggers) can follow a game.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/gempireio/conquest/internal/engine"
)

const queueSize = 1024

// Message is the JSON payload published for every event.
type Message struct {
	Session uuid.UUID    `json:"session"`
	Event   engine.Event `json:"event"`
}

// Encode renders m as published on the channel.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a published payload.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode relay message: %w", err)
	}
	return m, nil
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher queues events and publishes them from its own goroutine, so
// Enqueue is safe to call while the simulation lock is held.
type Publisher struct {
	client  publisher
	closer  func() error
	channel string
	session uuid.UUID
	queue   chan engine.Event
	dropped atomic.Int64
	sent    atomic.Int64
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, channel string, session uuid.UUID) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	p := newPublisher(client, channel, session)
	p.closer = client.Close
	slog.Info("event relay connected", "addr", addr, "channel", channel)
	return p, nil
}

func newPublisher(client publisher, channel string, session uuid.UUID) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
		session: session,
		queue:   make(chan engine.Event, queueSize),
	}
}

// Enqueue schedules e for publishing. It never blocks; when the queue is
// full the event is dropped and counted.
func (p *Publisher) Enqueue(e engine.Event) {
	select {
	case p.queue <- e:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("event relay queue full, dropping events", "dropped", n)
		}
	}
}

// Run publishes queued events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-p.queue:
			p.publish(ctx, e)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, e engine.Event) {
	data, err := Message{Session: p.session, Event: e}.Encode()
	if err != nil {
		slog.Error("encode relay message", "error", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		slog.Warn("relay publish failed", "channel", p.channel, "error", err)
		return
	}
	p.sent.Add(1)
}

// Stats returns how many events were published and dropped.
func (p *Publisher) Stats() (sent, dropped int64) {
	return p.sent.Load(), p.dropped.Load()
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
