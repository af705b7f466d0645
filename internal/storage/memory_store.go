package storage

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// memoryStore is a single-process Store used by tests and brokerless local
// runs. One mutex guards everything, which trivially satisfies the same
// atomicity contract the Redis scripts provide.
type memoryStore struct {
	mu      sync.Mutex
	scalars map[string]string
	expiry  map[string]time.Time
	sets    map[string]map[string]struct{}
	lists   map[string][]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{
		scalars: make(map[string]string),
		expiry:  make(map[string]time.Time),
		sets:    make(map[string]map[string]struct{}),
		lists:   make(map[string][]string),
	}
}

func (s *memoryStore) expired(key string) bool {
	deadline, ok := s.expiry[key]
	return ok && time.Now().After(deadline)
}

func (s *memoryStore) get(key string) (string, bool) {
	if s.expired(key) {
		delete(s.scalars, key)
		delete(s.expiry, key)
		return "", false
	}
	value, ok := s.scalars[key]
	return value, ok
}

func (s *memoryStore) getInt64(key string) int64 {
	value, ok := s.get(key)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func (s *memoryStore) setTTL(key string, ttl time.Duration) {
	if ttl > 0 {
		s.expiry[key] = time.Now().Add(ttl)
	} else {
		delete(s.expiry, key)
	}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.get(key)
	return value, ok, nil
}

func (s *memoryStore) GetInt64(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getInt64(key), nil
}

func (s *memoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalars[key] = value
	s.setTTL(key, ttl)
	return nil
}

func (s *memoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.scalars[key] = value
	s.setTTL(key, ttl)
	return true, nil
}

func (s *memoryStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value := s.getInt64(key) + delta
	s.scalars[key] = strconv.FormatInt(value, 10)
	return value, nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.scalars, key)
		delete(s.expiry, key)
		delete(s.sets, key)
		delete(s.lists, key)
	}
	return nil
}

func (s *memoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTTL(key, ttl)
	return nil
}

func (s *memoryStore) DecrIfAtLeast(_ context.Context, key string, amount int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.getInt64(key)
	if balance < amount {
		return balance, false, nil
	}
	balance -= amount
	s.scalars[key] = strconv.FormatInt(balance, 10)
	return balance, true, nil
}

func (s *memoryStore) Exchange(_ context.Context, debitKey string, debitAmount int64, creditKey string, creditAmount int64) (int64, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debitBalance := s.getInt64(debitKey)
	if debitBalance < debitAmount {
		creditBalance := int64(0)
		if creditKey != "" {
			creditBalance = s.getInt64(creditKey)
		}
		return debitBalance, creditBalance, false, nil
	}

	debitBalance -= debitAmount
	s.scalars[debitKey] = strconv.FormatInt(debitBalance, 10)

	// The credit leg reads after the debit leg is written so a same-key
	// exchange nets the two instead of overwriting the debit.
	creditBalance := int64(0)
	if creditKey != "" {
		creditBalance = s.getInt64(creditKey) + creditAmount
		s.scalars[creditKey] = strconv.FormatInt(creditBalance, 10)
	}
	return debitBalance, creditBalance, true, nil
}

func (s *memoryStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.get(key)
	if !ok || current != value {
		return false, nil
	}
	delete(s.scalars, key)
	delete(s.expiry, key)
	return true, nil
}

func (s *memoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (s *memoryStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

func (s *memoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *memoryStore) LPushTrim(_ context.Context, key, value string, maxLen int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([]string{value}, s.lists[key]...)
	if int64(len(list)) > maxLen {
		list = list[:maxLen]
	}
	s.lists[key] = list
	return nil
}

func (s *memoryStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	size := int64(len(list))
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= size {
		stop = size - 1
	}
	if start > stop || size == 0 {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (s *memoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.scalars {
		if s.expired(key) {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStore) Ping(_ context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }
