package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
)

const (
	redisKeyPrefix = "mbxmove:session:"
	// Optimistic transactions are retried this many times before giving up.
	redisMaxRetries = 100
)

// RedisStore keeps each session as a JSON value under its own key.
// Concurrent updates use WATCH/MULTI and retry on conflict.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to the Redis server at redisURL.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis store: redis_url is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis store: parsing URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis store: ping: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, sess *models.MigrationSession) error {
	c := sess.Clone()
	c.RecomputeStats()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, redisKey(sess.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis SETNX %s: %w", sess.ID, err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.MigrationSession, error) {
	data, err := s.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", id, err)
	}
	return decodeSession(data)
}

func (s *RedisStore) Update(ctx context.Context, id string, fn MutateFunc) (*models.MigrationSession, error) {
	key := redisKey(id)
	var result *models.MigrationSession

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		sess, err := decodeSession(data)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		sess.RecomputeStats()
		out, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		if err == nil {
			result = sess
		}
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return result.Clone(), nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("redis update %s: too many concurrent writers", id)
}

func (s *RedisStore) List(ctx context.Context) ([]*models.MigrationSession, error) {
	var result []*models.MigrationSession
	iter := s.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("redis GET %s: %w", iter.Val(), err)
		}
		sess, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis SCAN: %w", err)
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func decodeSession(data []byte) (*models.MigrationSession, error) {
	var sess models.MigrationSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if sess.Outcomes == nil {
		sess.Outcomes = []models.MigrationOutcome{}
	}
	if sess.Logs == nil {
		sess.Logs = []models.LogEntry{}
	}
	return &sess, nil
}
