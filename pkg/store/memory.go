package store

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const keySep = "\x00"

type memoryStore struct {
	c *cache.Cache
}

// NewMemoryStore creates an in-process store; entries expire after their TTL
func NewMemoryStore(cleanupInterval time.Duration) ResultStore {
	return &memoryStore{c: cache.New(cache.NoExpiration, cleanupInterval)}
}

func memoryKey(dumpID, connectionID string) string {
	return dumpID + keySep + connectionID
}

func (s *memoryStore) Put(_ context.Context, r *Result, ttl time.Duration) error {
	// Stored encoded so callers cannot mutate what was saved
	data, err := encode(r)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s.c.Set(memoryKey(r.DumpID, r.ConnectionID), data, ttl)
	return nil
}

func (s *memoryStore) Get(_ context.Context, dumpID, connectionID string) (*Result, error) {
	v, ok := s.c.Get(memoryKey(dumpID, connectionID))
	if !ok {
		return nil, ErrNotFound
	}
	return decode(v.([]byte))
}

func (s *memoryStore) List(_ context.Context, dumpID string) ([]*Result, error) {
	prefix := dumpID + keySep
	var out []*Result
	for k, item := range s.c.Items() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		r, err := decode(item.Object.([]byte))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	sortResults(out)
	return out, nil
}

func (s *memoryStore) Delete(_ context.Context, dumpID string) error {
	prefix := dumpID + keySep
	for k := range s.c.Items() {
		if strings.HasPrefix(k, prefix) {
			s.c.Delete(k)
		}
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.c.Flush()
	return nil
}
