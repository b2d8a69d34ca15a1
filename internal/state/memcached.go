package state

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

const keyPrefix = "netatmo:"

// MemcachedStore implements Store against a memcached host state store.
// Entries are written without expiration; retention is the host's concern.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(k string) string {
	return keyPrefix + k
}

// Read implements Store.Read. Returns false, nil when the key is absent.
func (s *MemcachedStore) Read(ctx context.Context, key string) (models.PublishedState, bool, error) {
	if ctx.Err() != nil {
		return models.PublishedState{}, false, ctx.Err()
	}
	item, err := s.client.Get(s.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.PublishedState{}, false, nil
		}
		return models.PublishedState{}, false, err
	}
	var st models.PublishedState
	if err := json.Unmarshal(item.Value, &st); err != nil {
		return models.PublishedState{}, false, err
	}
	return st, true, nil
}

// Write implements Store.Write.
func (s *MemcachedStore) Write(ctx context.Context, key string, st models.PublishedState) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{
		Key:   s.key(key),
		Value: raw,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
