package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

// Store is the ephemeral state cache boundary: best-effort key-value storage
// with per-key expiry. Losing an entry is always acceptable; callers must
// not rely on a Set being readable later.
type Store interface {
	Set(key string, value []byte, ttl time.Duration) bool
	Get(key string) ([]byte, bool)
}

// RistrettoStore implements Store on an in-process ristretto cache
type RistrettoStore struct {
	cache *ristretto.Cache
}

// NewRistretto creates a new in-process cache store
func NewRistretto() (*RistrettoStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     32 << 20, // 32 MiB
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create ristretto cache")
	}

	return &RistrettoStore{cache: cache}, nil
}

func (s *RistrettoStore) Set(key string, value []byte, ttl time.Duration) bool {
	return s.cache.SetWithTTL(key, value, int64(len(value)), ttl)
}

func (s *RistrettoStore) Get(key string) ([]byte, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}

	blob, ok := v.([]byte)
	if !ok {
		return nil, false
	}
	return blob, true
}

// Wait blocks until buffered writes have been applied. Mainly for tests.
func (s *RistrettoStore) Wait() {
	s.cache.Wait()
}
