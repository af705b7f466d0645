// Package storage defines the key/value contract the ledger and auction
// repositories are written against, together with its Redis and in-memory
// implementations. The interface deliberately exposes atomic primitives
// (check-and-decrement, two-key exchange, compare-and-delete) instead of a
// raw scripting hook so that every implementation has to provide the same
// linearizability guarantees.
package storage

import (
	"context"
	"time"
)

// Store is the durable backing contract. All methods surface driver
// failures wrapped as tradeerrors.ErrStorageUnavailable.
type Store interface {
	// Scalar operations.
	Get(ctx context.Context, key string) (string, bool, error)
	GetInt64(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// DecrIfAtLeast atomically decrements key by amount only when its
	// current value is >= amount. Returns the new value and whether the
	// decrement applied. Missing keys read as 0.
	DecrIfAtLeast(ctx context.Context, key string, amount int64) (int64, bool, error)

	// Exchange atomically debits debitKey by debitAmount (only when its
	// value is >= debitAmount) and credits creditKey by creditAmount as a
	// single indivisible unit. An empty creditKey performs a bare
	// conditional debit. Returns both resulting values and whether the
	// exchange applied; when it does not apply nothing is mutated.
	Exchange(ctx context.Context, debitKey string, debitAmount int64, creditKey string, creditAmount int64) (debitBalance, creditBalance int64, ok bool, err error)

	// CompareAndDelete removes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Set membership, used to index active auction ids.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// LPushTrim pushes value to the front of the list at key and trims the
	// list to at most maxLen entries, dropping the oldest.
	LPushTrim(ctx context.Context, key, value string, maxLen int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Keys returns all keys matching a glob pattern. Used only by the
	// ranking scan; not a hot path.
	Keys(ctx context.Context, pattern string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
