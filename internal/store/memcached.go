package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/JorgeF123/weather-dashboard/internal/models"
)

const savedPlacesKey = "saved:places"

// MemcachedStore implements Store on memcached. The whole list lives under a
// single key so Add and Remove are read-modify-write; with a single service
// instance that is safe, and the serialize mutex keeps it safe in-process.
type MemcachedStore struct {
	client *memcache.Client
	mu     chan struct{} // serializes read-modify-write cycles
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
	sem := make(chan struct{}, 1)
	sem <- struct{}{}
	return &MemcachedStore{client: client, mu: sem}, nil
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

// Add appends a place to the persisted list.
func (s *MemcachedStore) Add(ctx context.Context, place models.SavedPlace) error {
	return s.update(ctx, func(places []models.SavedPlace) ([]models.SavedPlace, error) {
		return append(places, place), nil
	})
}

// List returns the persisted places. A missing key means an empty list, not
// an error.
func (s *MemcachedStore) List(ctx context.Context) ([]models.SavedPlace, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return s.load()
}

// Remove deletes the place with the given ID.
func (s *MemcachedStore) Remove(ctx context.Context, id string) error {
	return s.update(ctx, func(places []models.SavedPlace) ([]models.SavedPlace, error) {
		for i, p := range places {
			if p.ID == id {
				return append(places[:i], places[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
}

func (s *MemcachedStore) update(ctx context.Context, fn func([]models.SavedPlace) ([]models.SavedPlace, error)) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.mu:
	}
	defer func() { s.mu <- struct{}{} }()

	places, err := s.load()
	if err != nil {
		return err
	}
	places, err = fn(places)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(places)
	if err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{Key: savedPlacesKey, Value: raw})
}

func (s *MemcachedStore) load() ([]models.SavedPlace, error) {
	item, err := s.client.Get(savedPlacesKey)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, nil
		}
		return nil, err
	}
	var places []models.SavedPlace
	if err := json.Unmarshal(item.Value, &places); err != nil {
		return nil, err
	}
	return places, nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
