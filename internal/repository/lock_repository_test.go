package repository

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"economy-api/internal/storage"
)

func newTestLockManager(store storage.Store) TradeLockManager {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewTradeLockManager(store, log)
}

func TestLockRelease(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	manager := newTestLockManager(store)

	lock, err := manager.LockAuction(ctx, "a1")
	require.NoError(t, err)

	locked, err := manager.IsLocked(ctx, "auction:a1")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, lock.Release(ctx))

	locked, err = manager.IsLocked(ctx, "auction:a1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockSerializesHolders(t *testing.T) {
	ctx := context.Background()
	manager := newTestLockManager(storage.NewMemoryStore())

	lock, err := manager.LockAccount(ctx, "alice")
	require.NoError(t, err)

	// A second acquirer queues until the first holder releases.
	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		second, err := manager.LockAccount(ctx, "alice")
		assert.NoError(t, err)
		close(acquired)
		if second != nil {
			second.Release(ctx)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the lock is held")
	case <-time.After(75 * time.Millisecond):
	}

	require.NoError(t, lock.Release(ctx))
	wg.Wait()
}

func TestLockAccountAndAuctionKeysIndependent(t *testing.T) {
	ctx := context.Background()
	manager := newTestLockManager(storage.NewMemoryStore())

	accountLock, err := manager.LockAccount(ctx, "x")
	require.NoError(t, err)
	defer accountLock.Release(ctx)

	// Same id, different scope: must not contend.
	auctionLock, err := manager.LockAuction(ctx, "x")
	require.NoError(t, err)
	defer auctionLock.Release(ctx)
}

func TestLockReleaseWarnsWhenStolen(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	log, hook := test.NewNullLogger()
	manager := NewTradeLockManager(store, log)

	lock, err := manager.LockAuction(ctx, "a1")
	require.NoError(t, err)

	// Simulate the TTL firing and another holder taking the key.
	require.NoError(t, store.Set(ctx, lock.Key, "other-token", 0))

	require.NoError(t, lock.Release(ctx))

	require.NotEmpty(t, hook.Entries)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "Lock expired before release", entry.Message)
	assert.Equal(t, lock.Key, entry.Data["lock_key"])

	// The foreign holder's token must survive the failed release.
	value, found, err := store.Get(ctx, lock.Key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "other-token", value)
}
