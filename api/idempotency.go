package api

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// StoredResponse is what a replayed create request returns.
type StoredResponse struct {
	Status int                    `json:"status"`
	Body   sonic.NoCopyRawMessage `json:"body"`
}

// RedisReplayStore keeps stored responses in Redis so every instance
// answers a retried request the same way.
type RedisReplayStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReplayStore creates a replay store using the provided Redis
// client and TTL.
func NewRedisReplayStore(client *redis.Client, ttl time.Duration) *RedisReplayStore {
	return &RedisReplayStore{client: client, ttl: ttl}
}

func (r *RedisReplayStore) key(key string) string {
	return "idempotency:" + key
}

func (r *RedisReplayStore) Load(ctx context.Context, key string) (StoredResponse, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, err
	}
	var resp StoredResponse
	if err := sonic.Unmarshal(data, &resp); err != nil {
		// Drop records we cannot read so the next attempt starts clean.
		_ = r.client.Del(ctx, r.key(key)).Err()
		return StoredResponse{}, false, err
	}
	return resp, true, nil
}

func (r *RedisReplayStore) Save(ctx context.Context, key string, resp StoredResponse) (bool, error) {
	data, err := sonic.Marshal(resp)
	if err != nil {
		return false, err
	}
	return r.client.SetNX(ctx, r.key(key), data, r.ttl).Result()
}

// replayer serves and records responses for requests carrying an
// Idempotency-Key header. Replay store failures are logged and the request
// proceeds as if no key had been sent.
type replayer struct {
	store  ReplayStore
	logger *log.Logger
}

func (r *replayer) scopedKey(c echo.Context) string {
	if r == nil || r.store == nil {
		return ""
	}
	key := c.Request().Header.Get(HeaderIdempotencyKey)
	if key == "" {
		return ""
	}
	return c.Path() + ":" + key
}

// serve writes a stored response when one exists. handled reports whether
// the request has been answered.
func (r *replayer) serve(c echo.Context) (handled bool, err error) {
	key := r.scopedKey(c)
	if key == "" {
		return false, nil
	}
	resp, ok, loadErr := r.store.Load(c.Request().Context(), key)
	if loadErr != nil {
		r.warn(c, "idempotency lookup failed", loadErr)
		return false, nil
	}
	if !ok {
		return false, nil
	}
	c.Response().Header().Set(HeaderIdempotentReplayed, "true")
	return true, c.JSONBlob(resp.Status, resp.Body)
}

// respond encodes v the same way the echo serializer does, records it under the request's key and writes it.
func (r *replayer) respond(c echo.Context, status int, v any) error {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return err
	}
	if key := r.scopedKey(c); key != "" {
		if _, saveErr := r.store.Save(c.Request().Context(), key, StoredResponse{Status: status, Body: data}); saveErr != nil {
			r.warn(c, "idempotency save failed", saveErr)
		}
	}
	return c.JSONBlob(status, data)
}

func (r *replayer) warn(c echo.Context, msg string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.WithFields(log.Fields{
		"request_id": requestID(c),
		"error":      err.Error(),
	}).Warn(msg)
}
