package receiver

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the sorted set holding the seen counters.
const DefaultRedisKey = "rampfire:receiver:counters"

// Observation is the store state just before a counter was recorded.
type Observation struct {
	Duplicate bool  // counter was already present; nothing was recorded
	Seen      int64 // number of distinct counters before this one
	Max       int   // highest counter before this one; meaningful when Seen > 0
}

// Store records counters atomically with respect to concurrent Observe calls.
type Store interface {
	Observe(ctx context.Context, counter int) (Observation, error)
	Reset(ctx context.Context) error
}

// MemoryStore keeps the seen set in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[int]struct{}
	max  int
}

// NewMemoryStore returns an empty process-local store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[int]struct{})}
}

func (s *MemoryStore) Observe(_ context.Context, counter int) (Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs := Observation{Seen: int64(len(s.seen)), Max: s.max}
	if _, ok := s.seen[counter]; ok {
		obs.Duplicate = true
		return obs, nil
	}

	if len(s.seen) == 0 || counter > s.max {
		s.max = counter
	}
	s.seen[counter] = struct{}{}
	return obs, nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	s.seen = make(map[int]struct{})
	s.max = 0
	s.mu.Unlock()
	return nil
}

// RedisStore keeps the seen set in a Redis sorted set scored by counter, so
// several receivers can share one sequence.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore uses key, or DefaultRedisKey when key is empty.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Observe reads the size and maximum of the set and adds the counter in one
// MULTI/EXEC transaction.
func (s *RedisStore) Observe(ctx context.Context, counter int) (Observation, error) {
	var (
		card  *redis.IntCmd
		top   *redis.ZSliceCmd
		added *redis.IntCmd
	)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.ZCard(ctx, s.key)
		top = pipe.ZRevRangeWithScores(ctx, s.key, 0, 0)
		added = pipe.ZAddNX(ctx, s.key, counterMember(counter))
		return nil
	})
	if err != nil {
		return Observation{}, err
	}

	obs := Observation{Seen: card.Val(), Duplicate: added.Val() == 0}
	if z := top.Val(); len(z) > 0 {
		obs.Max = int(z[0].Score)
	}
	return obs, nil
}

func (s *RedisStore) Reset(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func counterMember(counter int) redis.Z {
	return redis.Z{Score: float64(counter), Member: strconv.Itoa(counter)}
}
