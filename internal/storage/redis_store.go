package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"economy-api/internal/tradeerrors"
)

// Lua scripts backing the conditional primitives. Scripts run atomically on
// the server, which is what gives per-account mutations their
// linearizability.
const (
	decrIfAtLeastScript = `
		local balance = tonumber(redis.call("GET", KEYS[1]) or "0")
		local amount = tonumber(ARGV[1])
		if balance < amount then
			return {balance, 0}
		end
		balance = redis.call("INCRBY", KEYS[1], -amount)
		return {balance, 1}
	`

	exchangeScript = `
		local debitBalance = tonumber(redis.call("GET", KEYS[1]) or "0")
		local debitAmount = tonumber(ARGV[1])
		local creditAmount = tonumber(ARGV[2])
		if debitBalance < debitAmount then
			local creditBalance = tonumber(redis.call("GET", KEYS[2]) or "0")
			return {debitBalance, creditBalance, 0}
		end
		debitBalance = redis.call("INCRBY", KEYS[1], -debitAmount)
		local creditBalance = redis.call("INCRBY", KEYS[2], creditAmount)
		return {debitBalance, creditBalance, 1}
	`

	compareAndDeleteScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`
)

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg *RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, storageErr("ping", err)
	}

	return &redisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client, mainly for tests that
// point at a shared instance.
func NewRedisStoreFromClient(client *redis.Client) Store {
	return &redisStore{client: client}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", tradeerrors.ErrStorageUnavailable, op, err)
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("get", err)
	}
	return value, true, nil
}

func (s *redisStore) GetInt64(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("get", err)
	}
	return value, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return storageErr("set", err)
	}
	return nil
}

func (s *redisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	set, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, storageErr("setnx", err)
	}
	return set, nil
}

func (s *redisStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	value, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, storageErr("incrby", err)
	}
	return value, nil
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return storageErr("del", err)
	}
	return nil
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return storageErr("expire", err)
	}
	return nil
}

func (s *redisStore) DecrIfAtLeast(ctx context.Context, key string, amount int64) (int64, bool, error) {
	result, err := s.client.Eval(ctx, decrIfAtLeastScript, []string{key}, amount).Result()
	if err != nil {
		return 0, false, storageErr("decr_if_at_least", err)
	}
	balance, applied, err := decodePair(result)
	if err != nil {
		return 0, false, storageErr("decr_if_at_least", err)
	}
	return balance, applied, nil
}

func (s *redisStore) Exchange(ctx context.Context, debitKey string, debitAmount int64, creditKey string, creditAmount int64) (int64, int64, bool, error) {
	if creditKey == "" {
		balance, ok, err := s.DecrIfAtLeast(ctx, debitKey, debitAmount)
		return balance, 0, ok, err
	}

	result, err := s.client.Eval(ctx, exchangeScript, []string{debitKey, creditKey}, debitAmount, creditAmount).Result()
	if err != nil {
		return 0, 0, false, storageErr("exchange", err)
	}
	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return 0, 0, false, storageErr("exchange", fmt.Errorf("unexpected script reply %v", result))
	}
	debitBalance, _ := values[0].(int64)
	creditBalance, _ := values[1].(int64)
	applied, _ := values[2].(int64)
	return debitBalance, creditBalance, applied == 1, nil
}

func (s *redisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	result, err := s.client.Eval(ctx, compareAndDeleteScript, []string{key}, value).Result()
	if err != nil {
		return false, storageErr("compare_and_delete", err)
	}
	deleted, _ := result.(int64)
	return deleted == 1, nil
}

func (s *redisStore) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, key, args...).Err(); err != nil {
		return storageErr("sadd", err)
	}
	return nil
}

func (s *redisStore) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SRem(ctx, key, args...).Err(); err != nil {
		return storageErr("srem", err)
	}
	return nil
}

func (s *redisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, storageErr("smembers", err)
	}
	return members, nil
}

func (s *redisStore) LPushTrim(ctx context.Context, key, value string, maxLen int64) error {
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return storageErr("lpush_trim", err)
	}
	return nil
}

func (s *redisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	values, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, storageErr("lrange", err)
	}
	return values, nil
}

func (s *redisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, storageErr("scan", err)
	}
	return keys, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func decodePair(result interface{}) (int64, bool, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return 0, false, fmt.Errorf("unexpected script reply %v", result)
	}
	balance, _ := values[0].(int64)
	applied, _ := values[1].(int64)
	return balance, applied == 1, nil
}
