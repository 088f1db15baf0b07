package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store on an existing Redis client.
// Results live under <prefix>:result:<dump>:<connection>; each dump keeps a set of its
// connection ids under <prefix>:dump:<dump>.
func NewRedisStore(client redis.UniversalClient, prefix string) ResultStore {
	return &redisStore{client: client, prefix: prefix}
}

// DialRedis connects to Redis and verifies the connection
func DialRedis(ctx context.Context, addr, password string, db int, prefix string) (ResultStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisStore(client, prefix), nil
}

func (s *redisStore) resultKey(dumpID, connectionID string) string {
	return fmt.Sprintf("%s:result:%s:%s", s.prefix, dumpID, connectionID)
}

func (s *redisStore) indexKey(dumpID string) string {
	return fmt.Sprintf("%s:dump:%s", s.prefix, dumpID)
}

func (s *redisStore) Put(ctx context.Context, r *Result, ttl time.Duration) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.resultKey(r.DumpID, r.ConnectionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	index := s.indexKey(r.DumpID)
	if err := s.client.SAdd(ctx, index, r.ConnectionID).Err(); err != nil {
		return fmt.Errorf("failed to index result: %w", err)
	}
	if ttl > 0 {
		if err := s.client.Expire(ctx, index, ttl).Err(); err != nil {
			return fmt.Errorf("failed to set index ttl: %w", err)
		}
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, dumpID, connectionID string) (*Result, error) {
	data, err := s.client.Get(ctx, s.resultKey(dumpID, connectionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	return decode(data)
}

func (s *redisStore) members(ctx context.Context, dumpID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(dumpID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *redisStore) List(ctx context.Context, dumpID string) ([]*Result, error) {
	ids, err := s.members(ctx, dumpID)
	if err != nil {
		return nil, err
	}

	var out []*Result
	for _, id := range ids {
		r, err := s.Get(ctx, dumpID, id)
		if errors.Is(err, ErrNotFound) {
			// expired before its index
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, dumpID string) error {
	ids, err := s.members(ctx, dumpID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.resultKey(dumpID, id))
	}
	keys = append(keys, s.indexKey(dumpID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete results: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
