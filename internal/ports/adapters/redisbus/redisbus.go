// Package redisbus publishes progress events on a Redis channel and keeps the
// latest event per session under a key.
package redisbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forPelevin/hlshorts/internal/progress"
)

const (
	statusTTL = 24 * time.Hour
	// notifyTimeout bounds one Notify so a wedged server cannot stall a run.
	notifyTimeout = 2 * time.Second
)

type client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type Observer struct {
	rdb     client
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

var _ progress.Observer = (*Observer)(nil)

// New connects to addr. The returned close function releases the client.
func New(addr, channel string, logger *slog.Logger) (*Observer, func() error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  notifyTimeout,
		ReadTimeout:  notifyTimeout,
		WriteTimeout: notifyTimeout,
		MaxRetries:   1,
	})
	return newObserver(rdb, channel, logger), rdb.Close
}

func newObserver(c client, channel string, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Observer{rdb: c, channel: channel, timeout: notifyTimeout, logger: logger}
}

// StatusKey is where the latest event of a session is stored.
func StatusKey(channel, session string) string {
	return channel + ":status:" + session
}

// Notify never fails the run; delivery errors are logged.
func (o *Observer) Notify(ctx context.Context, ev progress.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		o.logger.Warn("redis progress: marshal", slog.String("error", err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := o.rdb.Publish(ctx, o.channel, b).Err(); err != nil {
		o.logger.Warn("redis progress: publish", slog.String("error", err.Error()))
		return
	}
	if ev.Session == "" {
		return
	}
	if err := o.rdb.Set(ctx, StatusKey(o.channel, ev.Session), b, statusTTL).Err(); err != nil {
		o.logger.Warn("redis progress: store status", slog.String("error", err.Error()))
	}
}
