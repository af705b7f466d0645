package external

import (
	"context"
	"fmt"

	"economy-api/internal/storage"
)

const inventoryKeyPrefix = "inventory:"

// InventoryService returns auctioned items to their owner. Item custody
// stays with the caller while a listing runs; the engine touches inventory
// only when a cancellation hands the item back to the seller.
type InventoryService interface {
	Deposit(ctx context.Context, accountID, itemID string, quantity int64) error
	Quantity(ctx context.Context, accountID, itemID string) (int64, error)
}

type inventoryService struct {
	store storage.Store
}

// NewInventoryService builds a store-backed inventory.
func NewInventoryService(store storage.Store) InventoryService {
	return &inventoryService{store: store}
}

func inventoryKey(accountID, itemID string) string {
	return fmt.Sprintf("%s%s:%s", inventoryKeyPrefix, accountID, itemID)
}

func (s *inventoryService) Deposit(ctx context.Context, accountID, itemID string, quantity int64) error {
	_, err := s.store.IncrBy(ctx, inventoryKey(accountID, itemID), quantity)
	return err
}

func (s *inventoryService) Quantity(ctx context.Context, accountID, itemID string) (int64, error) {
	return s.store.GetInt64(ctx, inventoryKey(accountID, itemID))
}
