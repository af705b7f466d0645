package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"economy-api/internal/models"
	"economy-api/internal/storage"
	"economy-api/internal/tradeerrors"
)

const (
	auctionKeyPrefix     = "auction:"
	activeAuctionsKey    = "active_auctions"
	auctionHistoryPrefix = "auction_history:"

	// Auction records outlive their end time so late lookups still resolve,
	// then expire on their own.
	minAuctionTTL = time.Minute
)

// AuctionRepository persists auction records, the active-auction index and
// per-account sell/buy history.
type AuctionRepository interface {
	// Save writes the auction and keeps the active index in sync with its
	// status. Active auctions carry a TTL of twice their remaining
	// duration; terminal ones keep the configured retention.
	Save(ctx context.Context, auction *models.Auction) error
	Get(ctx context.Context, auctionID string) (*models.Auction, error)
	ActiveAuctions(ctx context.Context) ([]*models.Auction, error)

	AppendHistory(ctx context.Context, accountID string, role models.HistoryRole, record *models.AuctionHistoryRecord) error
	History(ctx context.Context, accountID string, role models.HistoryRole, limit int) ([]*models.AuctionHistoryRecord, error)
}

type auctionRepository struct {
	store     storage.Store
	retention time.Duration

	// Read cache of active auctions, consulted only by the ActiveAuctions
	// scan. The store stays authoritative; every Save refreshes or evicts
	// the entry, and single-record reads always hit the store.
	mu    sync.RWMutex
	cache map[string]*models.Auction
}

// NewAuctionRepository builds a repository over the given store. retention
// controls how long completed and cancelled auctions stay readable.
func NewAuctionRepository(store storage.Store, retention time.Duration) AuctionRepository {
	return &auctionRepository{
		store:     store,
		retention: retention,
		cache:     make(map[string]*models.Auction),
	}
}

func auctionKey(auctionID string) string {
	return auctionKeyPrefix + auctionID
}

func auctionHistoryKey(role models.HistoryRole, accountID string) string {
	return fmt.Sprintf("%s%s:%s", auctionHistoryPrefix, role, accountID)
}

func (r *auctionRepository) Save(ctx context.Context, auction *models.Auction) error {
	payload, err := json.Marshal(auction)
	if err != nil {
		return fmt.Errorf("failed to marshal auction %s: %w", auction.AuctionID, err)
	}

	ttl := r.retention
	if auction.Status == models.AuctionActive {
		ttl = 2 * time.Until(auction.EndTime)
		if ttl < minAuctionTTL {
			ttl = minAuctionTTL
		}
	}

	if err := r.store.Set(ctx, auctionKey(auction.AuctionID), string(payload), ttl); err != nil {
		return err
	}

	if auction.Status == models.AuctionActive {
		if err := r.store.SAdd(ctx, activeAuctionsKey, auction.AuctionID); err != nil {
			return err
		}
		r.cachePut(auction)
		return nil
	}

	if err := r.store.SRem(ctx, activeAuctionsKey, auction.AuctionID); err != nil {
		return err
	}
	r.cacheEvict(auction.AuctionID)
	return nil
}

// Get always reads through to the store. The lock manager serializes
// writers across processes, so a lock holder must never act on this
// process's cached copy.
func (r *auctionRepository) Get(ctx context.Context, auctionID string) (*models.Auction, error) {
	raw, found, err := r.store.Get(ctx, auctionKey(auctionID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, tradeerrors.ErrAuctionNotFound
	}

	var auction models.Auction
	if err := json.Unmarshal([]byte(raw), &auction); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auction %s: %w", auctionID, err)
	}
	if auction.Status == models.AuctionActive {
		r.cachePut(&auction)
	}
	return &auction, nil
}

func (r *auctionRepository) ActiveAuctions(ctx context.Context) ([]*models.Auction, error) {
	ids, err := r.store.SMembers(ctx, activeAuctionsKey)
	if err != nil {
		return nil, err
	}

	auctions := make([]*models.Auction, 0, len(ids))
	for _, id := range ids {
		// The cache only serves this unlocked listing scan; locked
		// mutation paths go through Get.
		if auction := r.cacheGet(id); auction != nil {
			auctions = append(auctions, auction)
			continue
		}
		auction, err := r.Get(ctx, id)
		if err != nil {
			if err == tradeerrors.ErrAuctionNotFound {
				// The record expired underneath the index; drop the
				// stale member.
				_ = r.store.SRem(ctx, activeAuctionsKey, id)
				r.cacheEvict(id)
				continue
			}
			return nil, err
		}
		auctions = append(auctions, auction)
	}
	return auctions, nil
}

func (r *auctionRepository) AppendHistory(ctx context.Context, accountID string, role models.HistoryRole, record *models.AuctionHistoryRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal auction history record: %w", err)
	}
	return r.store.LPushTrim(ctx, auctionHistoryKey(role, accountID), string(payload), models.HistoryLimit)
}

func (r *auctionRepository) History(ctx context.Context, accountID string, role models.HistoryRole, limit int) ([]*models.AuctionHistoryRecord, error) {
	if limit <= 0 || limit > models.HistoryLimit {
		limit = models.HistoryLimit
	}
	raw, err := r.store.LRange(ctx, auctionHistoryKey(role, accountID), 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}

	records := make([]*models.AuctionHistoryRecord, 0, len(raw))
	for _, entry := range raw {
		var record models.AuctionHistoryRecord
		if err := json.Unmarshal([]byte(entry), &record); err != nil {
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

func (r *auctionRepository) cacheGet(auctionID string) *models.Auction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if auction, ok := r.cache[auctionID]; ok {
		copied := *auction
		return &copied
	}
	return nil
}

func (r *auctionRepository) cachePut(auction *models.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *auction
	r.cache[auction.AuctionID] = &copied
}

func (r *auctionRepository) cacheEvict(auctionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, auctionID)
}
