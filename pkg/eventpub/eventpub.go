// Package eventpub fans committed hub events out over Redis Pub/Sub for
// host-runtime subscribers (SPEC_FULL §C, an enrichment of C6). It is
// never on the commit-critical path: Store.Merge succeeds or fails
// entirely independent of whether a publish goes through.
package eventpub

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edirooss/crdtstore/pkg/eventsink"
	"github.com/edirooss/crdtstore/pkg/kv"
	"github.com/edirooss/crdtstore/pkg/wire"
)

// Options configures a Publisher.
type Options struct {
	Addr string
	DB   int
	// Channel is the Redis Pub/Sub channel hub events are published on.
	// Default "hubstore:events".
	Channel string
}

func (o *Options) setDefaults() {
	if o.Channel == "" {
		o.Channel = "hubstore:events"
	}
}

// Publisher wraps a Redis client for best-effort event fan-out, mirroring
// the connection conventions of the teacher's redis.Client.
type Publisher struct {
	rdb     *redis.Client
	log     *zap.Logger
	channel string
}

// New dials Redis and pings it once, logging but not failing on an
// unreachable server — a Publisher that can't connect yet is still usable
// once Redis comes up, since every Publish call carries its own error.
func New(log *zap.Logger, opts Options) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	opts.setDefaults()
	log = log.Named("eventpub")

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis connection failed", zap.Error(err), zap.String("addr", opts.Addr))
	} else {
		log.Info("redis connection established", zap.String("addr", opts.Addr))
	}

	return &Publisher{rdb: rdb, log: log, channel: opts.Channel}
}

// Close closes the underlying Redis client.
func (p *Publisher) Close() error { return p.rdb.Close() }

// Publish sends event on the configured channel. A publish failure is
// logged and returned to the caller, never panicked on — callers that
// don't care can ignore the error entirely, since nothing downstream of
// Merge depends on it.
func (p *Publisher) Publish(ctx context.Context, event *wire.HubEvent) error {
	if err := p.rdb.Publish(ctx, p.channel, wire.EncodeEvent(event)).Err(); err != nil {
		p.log.Warn("publish failed", zap.Error(err), zap.Uint64("event_id", event.ID))
		return err
	}
	return nil
}

// ReplayMissed re-publishes every event after afterID, up to limit, using
// the event sink's durable log as the source of truth. A caller running
// this periodically (or after a reconnect) recovers from publishes lost to
// a Redis outage without the core ever needing to know one happened.
func (p *Publisher) ReplayMissed(ctx context.Context, sink *eventsink.Sink, eng kv.Engine, afterID uint64, limit int) (uint64, error) {
	events, err := sink.Since(ctx, eng, afterID, limit)
	if err != nil {
		return afterID, err
	}
	last := afterID
	for _, event := range events {
		if err := p.Publish(ctx, event); err != nil {
			return last, err
		}
		last = event.ID
	}
	return last, nil
}
