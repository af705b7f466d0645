package engine

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"economy-api/internal/external"
	"economy-api/internal/models"
	"economy-api/internal/monitoring"
	"economy-api/internal/repository"
	"economy-api/internal/service"
	"economy-api/internal/storage"
	"economy-api/internal/tradeerrors"
)

// flakyStore lets a test fail auction saves while every other primitive
// keeps working.
type flakyStore struct {
	storage.Store

	mu      sync.Mutex
	failSet bool
}

func (s *flakyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return tradeerrors.ErrStorageUnavailable
	}
	return s.Store.Set(ctx, key, value, ttl)
}

func (s *flakyStore) setFailing(fail bool) {
	s.mu.Lock()
	s.failSet = fail
	s.mu.Unlock()
}

type engineFixture struct {
	engine    AuctionEngine
	ledger    service.CoinLedger
	inventory external.InventoryService
	store     *flakyStore
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := &flakyStore{Store: storage.NewMemoryStore()}
	accounts := repository.NewAccountRepository(store)
	auctions := repository.NewAuctionRepository(store, time.Hour)
	locks := repository.NewTradeLockManager(store, log)
	inventory := external.NewInventoryService(store)
	ledger := service.NewCoinLedger(accounts, monitoring.NoopMetrics{}, external.NoopEventPublisher{}, log)

	e := NewAuctionEngine(
		auctions, ledger, locks, inventory,
		external.NoopEventPublisher{}, monitoring.NoopMetrics{}, log,
		Config{
			FeeRate:         0.05,
			DefaultDuration: time.Hour,
			MaxDuration:     24 * time.Hour,
			SweepInterval:   time.Hour,
		},
	)
	t.Cleanup(e.Stop)

	return &engineFixture{engine: e, ledger: ledger, inventory: inventory, store: store}
}

func (f *engineFixture) seedCoins(t *testing.T, ctx context.Context, accountID string, amount int64) {
	t.Helper()
	_, err := f.ledger.Credit(ctx, accountID, amount, "test grant")
	require.NoError(t, err)
}

func TestCreateAuction(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	// No inventory seeding: item custody stays with the caller, so
	// creation needs no prior deposit and moves nothing.
	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionActive, auction.Status)
	assert.Equal(t, int64(100), auction.CurrentBid)

	quantity, err := f.inventory.Quantity(ctx, "seller", "sword")
	require.NoError(t, err)
	assert.Equal(t, int64(0), quantity, "creation must not touch inventory")

	sellerBalance, _ := f.ledger.GetBalance(ctx, "seller")
	assert.Equal(t, int64(0), sellerBalance, "creation must not touch coins")

	active, err := f.engine.GetActiveAuctions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, auction.AuctionID, active[0].AuctionID)
}

func TestCreateAuctionValidation(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	_, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 0, 100, time.Hour)
	assert.ErrorIs(t, err, tradeerrors.ErrInvalidAuction)

	_, err = f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 0, time.Hour)
	assert.ErrorIs(t, err, tradeerrors.ErrInvalidAuction)

	_, err = f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, 48*time.Hour)
	assert.ErrorIs(t, err, tradeerrors.ErrInvalidAuction, "duration past the maximum")
}

// The canonical bidding walk-through: a 100-coin listing, alice takes it to
// 150, bob's 151 misses the 10% increment (165) and his 165 refunds alice.
func TestBiddingScenario(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "alice", 1000)
	f.seedCoins(t, ctx, "bob", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)

	auction, err = f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 150)
	require.NoError(t, err)
	assert.Equal(t, int64(150), auction.CurrentBid)
	assert.Equal(t, "alice", auction.CurrentBidder)

	aliceBalance, _ := f.ledger.GetBalance(ctx, "alice")
	assert.Equal(t, int64(850), aliceBalance, "alice's bid is held in escrow")

	// 151 beats the current bid but not the minimum increment.
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "bob", 151)
	assert.ErrorIs(t, err, tradeerrors.ErrBidBelowMinimum)
	bobBalance, _ := f.ledger.GetBalance(ctx, "bob")
	assert.Equal(t, int64(1000), bobBalance, "rejected bid must not move coins")

	auction, err = f.engine.PlaceBid(ctx, auction.AuctionID, "bob", 165)
	require.NoError(t, err)
	assert.Equal(t, int64(165), auction.CurrentBid)
	assert.Equal(t, "bob", auction.CurrentBidder)
	require.Len(t, auction.Bids, 2)

	aliceBalance, _ = f.ledger.GetBalance(ctx, "alice")
	bobBalance, _ = f.ledger.GetBalance(ctx, "bob")
	assert.Equal(t, int64(1000), aliceBalance, "outbid alice gets her escrow back")
	assert.Equal(t, int64(835), bobBalance)
}

// A bidder may outbid themselves; the raise must net against their own
// refunded escrow instead of minting coins.
func TestBidderRaisesOwnBid(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "alice", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)

	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 150)
	require.NoError(t, err)

	raised, err := f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 165)
	require.NoError(t, err)
	assert.Equal(t, int64(165), raised.CurrentBid)
	assert.Equal(t, "alice", raised.CurrentBidder)

	// Exactly the top bid is escrowed: 1000 - 165, not 1000 and not
	// 1000 - 150 - 165.
	aliceBalance, _ := f.ledger.GetBalance(ctx, "alice")
	assert.Equal(t, int64(835), aliceBalance)
}

func TestPlaceBidValidationOrder(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "alice", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)

	_, err = f.engine.PlaceBid(ctx, "auction-missing", "alice", 150)
	assert.ErrorIs(t, err, tradeerrors.ErrAuctionNotFound)

	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "seller", 150)
	assert.ErrorIs(t, err, tradeerrors.ErrSelfBid)

	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 100)
	assert.ErrorIs(t, err, tradeerrors.ErrBidTooLow)

	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 105)
	assert.ErrorIs(t, err, tradeerrors.ErrBidBelowMinimum)

	// Valid amount, empty pockets.
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "pauper", 150)
	assert.ErrorIs(t, err, tradeerrors.ErrInsufficientFunds)
}

func TestPlaceBidSaveFailureUnwindsEscrow(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "alice", 1000)
	f.seedCoins(t, ctx, "bob", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 150)
	require.NoError(t, err)

	f.store.setFailing(true)
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "bob", 165)
	assert.ErrorIs(t, err, tradeerrors.ErrStorageUnavailable)
	f.store.setFailing(false)

	// The unrecorded bid left no trace: bob is whole, alice's escrow is
	// back where it was.
	bobBalance, _ := f.ledger.GetBalance(ctx, "bob")
	aliceBalance, _ := f.ledger.GetBalance(ctx, "alice")
	assert.Equal(t, int64(1000), bobBalance)
	assert.Equal(t, int64(850), aliceBalance)

	current, err := f.engine.GetAuction(ctx, auction.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, "alice", current.CurrentBidder)
	assert.Equal(t, int64(150), current.CurrentBid)

	// The retry lands normally.
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "bob", 165)
	require.NoError(t, err)
}

func TestCompleteAuctionSettlement(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "bob", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "bob", 165)
	require.NoError(t, err)

	completed, err := f.engine.CompleteAuction(ctx, auction.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionCompleted, completed.Status)
	assert.False(t, completed.CompletedAt.IsZero())

	// Seller gets the final bid minus the 5% fee: 165 - floor(8.25) = 157.
	sellerBalance, _ := f.ledger.GetBalance(ctx, "seller")
	assert.Equal(t, int64(157), sellerBalance)

	// Conservation: bob paid 165, seller got 157, the 8-coin fee left play.
	bobBalance, _ := f.ledger.GetBalance(ctx, "bob")
	assert.Equal(t, int64(835), bobBalance)
	assert.Equal(t, int64(1000-8), bobBalance+sellerBalance)

	// History written for both sides.
	sellHistory, err := f.engine.GetHistory(ctx, "seller", models.HistoryRoleSell, 0)
	require.NoError(t, err)
	require.Len(t, sellHistory, 1)
	assert.Equal(t, int64(165), sellHistory[0].FinalBid)

	buyHistory, err := f.engine.GetHistory(ctx, "bob", models.HistoryRoleBuy, 0)
	require.NoError(t, err)
	require.Len(t, buyHistory, 1)
}

func TestCompleteAuctionIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "bob", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "bob", 165)
	require.NoError(t, err)

	_, err = f.engine.CompleteAuction(ctx, auction.AuctionID)
	require.NoError(t, err)
	again, err := f.engine.CompleteAuction(ctx, auction.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionCompleted, again.Status)

	// Settlement and history happened exactly once.
	sellerBalance, _ := f.ledger.GetBalance(ctx, "seller")
	assert.Equal(t, int64(157), sellerBalance)

	sellHistory, err := f.engine.GetHistory(ctx, "seller", models.HistoryRoleSell, 0)
	require.NoError(t, err)
	assert.Len(t, sellHistory, 1)
}

func TestCompleteAuctionSaveFailureCreditsNothing(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "bob", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "bob", 165)
	require.NoError(t, err)

	f.store.setFailing(true)
	_, err = f.engine.CompleteAuction(ctx, auction.AuctionID)
	assert.ErrorIs(t, err, tradeerrors.ErrStorageUnavailable)
	f.store.setFailing(false)

	// Nothing settled: auction still active, seller unpaid, so the retry
	// cannot double-credit.
	sellerBalance, _ := f.ledger.GetBalance(ctx, "seller")
	assert.Equal(t, int64(0), sellerBalance)

	current, err := f.engine.GetAuction(ctx, auction.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionActive, current.Status)

	_, err = f.engine.CompleteAuction(ctx, auction.AuctionID)
	require.NoError(t, err)
	sellerBalance, _ = f.ledger.GetBalance(ctx, "seller")
	assert.Equal(t, int64(157), sellerBalance, "exactly one settlement")
}

func TestCompleteAuctionWithoutBids(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)

	completed, err := f.engine.CompleteAuction(ctx, auction.AuctionID)
	require.NoError(t, err)
	assert.Empty(t, completed.CurrentBidder)
	assert.Equal(t, models.AuctionCompleted, completed.Status)

	sellerBalance, _ := f.ledger.GetBalance(ctx, "seller")
	assert.Equal(t, int64(0), sellerBalance, "no proceeds without a winner")
}

func TestCancelAuction(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "alice", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 150)
	require.NoError(t, err)

	_, err = f.engine.CancelAuction(ctx, auction.AuctionID, "alice")
	assert.ErrorIs(t, err, tradeerrors.ErrNotSeller)

	cancelled, err := f.engine.CancelAuction(ctx, auction.AuctionID, "seller")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionCancelled, cancelled.Status)
	assert.False(t, cancelled.CancelledAt.IsZero())

	// Bidder refunded, item handed back to the seller.
	aliceBalance, _ := f.ledger.GetBalance(ctx, "alice")
	assert.Equal(t, int64(1000), aliceBalance)
	quantity, err := f.inventory.Quantity(ctx, "seller", "sword")
	require.NoError(t, err)
	assert.Equal(t, int64(1), quantity)

	_, err = f.engine.CancelAuction(ctx, auction.AuctionID, "seller")
	assert.ErrorIs(t, err, tradeerrors.ErrAlreadyClosed)

	// Bids on a cancelled auction bounce.
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 200)
	assert.ErrorIs(t, err, tradeerrors.ErrAuctionClosed)
}

func TestCancelAuctionSaveFailureRefundsNothing(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "alice", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 150)
	require.NoError(t, err)

	f.store.setFailing(true)
	_, err = f.engine.CancelAuction(ctx, auction.AuctionID, "seller")
	assert.ErrorIs(t, err, tradeerrors.ErrStorageUnavailable)
	f.store.setFailing(false)

	// Escrow untouched and the auction still active, so the retry refunds
	// exactly once.
	aliceBalance, _ := f.ledger.GetBalance(ctx, "alice")
	assert.Equal(t, int64(850), aliceBalance)

	current, err := f.engine.GetAuction(ctx, auction.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionActive, current.Status)

	_, err = f.engine.CancelAuction(ctx, auction.AuctionID, "seller")
	require.NoError(t, err)
	aliceBalance, _ = f.ledger.GetBalance(ctx, "alice")
	assert.Equal(t, int64(1000), aliceBalance)
}

func TestExpiredBidSettlesAuction(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "alice", 1000)
	f.seedCoins(t, ctx, "bob", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, 30*time.Millisecond)
	require.NoError(t, err)

	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 150)
	require.NoError(t, err)

	// Disarm the timer so the late bid hits the lazy-expiration path.
	f.engine.Stop()
	time.Sleep(50 * time.Millisecond)

	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "bob", 300)
	assert.ErrorIs(t, err, tradeerrors.ErrAuctionExpired)

	settled, err := f.engine.GetAuction(ctx, auction.AuctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionCompleted, settled.Status)
	assert.Equal(t, "alice", settled.CurrentBidder)

	bobBalance, _ := f.ledger.GetBalance(ctx, "bob")
	assert.Equal(t, int64(1000), bobBalance, "late bid must not move coins")
}

func TestExpirationTimerCompletesAuction(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "alice", 1000)

	auction, err := f.engine.CreateAuction(ctx, "seller", "sword", "Iron Sword", 1, 100, 20*time.Millisecond)
	require.NoError(t, err)
	_, err = f.engine.PlaceBid(ctx, auction.AuctionID, "alice", 150)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := f.engine.GetAuction(ctx, auction.AuctionID)
		return err == nil && current.Status == models.AuctionCompleted
	}, time.Second, 10*time.Millisecond)

	sellerBalance, _ := f.ledger.GetBalance(ctx, "seller")
	assert.Equal(t, int64(150-7), sellerBalance, "fee is floor(150*0.05)=7")
}

func TestGetUserAuctions(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seedCoins(t, ctx, "alice", 1000)

	selling, err := f.engine.CreateAuction(ctx, "alice", "sword", "Iron Sword", 1, 100, time.Hour)
	require.NoError(t, err)
	bidding, err := f.engine.CreateAuction(ctx, "bob", "shield", "Oak Shield", 1, 50, time.Hour)
	require.NoError(t, err)
	_, err = f.engine.PlaceBid(ctx, bidding.AuctionID, "alice", 60)
	require.NoError(t, err)

	userAuctions, err := f.engine.GetUserAuctions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, userAuctions.Selling, 1)
	require.Len(t, userAuctions.Bidding, 1)
	assert.Equal(t, selling.AuctionID, userAuctions.Selling[0].AuctionID)
	assert.Equal(t, bidding.AuctionID, userAuctions.Bidding[0].AuctionID)
}

func TestCalculateFee(t *testing.T) {
	f := newEngineFixture(t)

	tests := []struct {
		amount int64
		want   int64
	}{
		{1234, 61}, // floor(61.7)
		{165, 8},   // floor(8.25)
		{100, 5},
		{19, 0},
		{20, 1},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.engine.CalculateFee(tt.amount), "amount %d", tt.amount)
	}
}
