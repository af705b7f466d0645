package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"economy-api/internal/external"
	"economy-api/internal/models"
	"economy-api/internal/monitoring"
	"economy-api/internal/repository"
	"economy-api/internal/service"
	"economy-api/internal/tradeerrors"
)

// Config tunes the auction engine.
type Config struct {
	FeeRate         float64
	DefaultDuration time.Duration
	MaxDuration     time.Duration
	SweepInterval   time.Duration
}

// AuctionEngine runs the full listing lifecycle: creation, bidding with
// escrow, settlement and cancellation. Coins held in escrow always belong
// to exactly one party; every state change happens under the per-auction
// lock.
type AuctionEngine interface {
	CreateAuction(ctx context.Context, sellerID, itemID, itemName string, quantity int, startBid int64, duration time.Duration) (*models.Auction, error)
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount int64) (*models.Auction, error)
	// CompleteAuction settles a listing. Idempotent: completing an already
	// terminal auction returns its record unchanged.
	CompleteAuction(ctx context.Context, auctionID string) (*models.Auction, error)
	CancelAuction(ctx context.Context, auctionID, requesterID string) (*models.Auction, error)

	GetAuction(ctx context.Context, auctionID string) (*models.Auction, error)
	GetActiveAuctions(ctx context.Context) ([]*models.Auction, error)
	GetUserAuctions(ctx context.Context, accountID string) (*models.UserAuctions, error)
	GetHistory(ctx context.Context, accountID string, role models.HistoryRole, limit int) ([]*models.AuctionHistoryRecord, error)

	// CalculateFee returns the house cut on a final bid:
	// floor(amount * fee rate).
	CalculateFee(amount int64) int64

	// Start arms the periodic sweep for overdue auctions; Stop disarms it
	// together with every pending expiration timer.
	Start()
	Stop()
}

type auctionEngine struct {
	auctions  repository.AuctionRepository
	ledger    service.CoinLedger
	locks     repository.TradeLockManager
	inventory external.InventoryService
	publisher external.EventPublisher
	metrics   monitoring.MetricsService
	logger    *logrus.Logger

	config    Config
	feeRate   decimal.Decimal
	scheduler *ExpirationScheduler
	sweeper   *cron.Cron
}

// NewAuctionEngine wires the engine. Call Start to arm the sweep.
func NewAuctionEngine(
	auctions repository.AuctionRepository,
	ledger service.CoinLedger,
	locks repository.TradeLockManager,
	inventory external.InventoryService,
	publisher external.EventPublisher,
	metrics monitoring.MetricsService,
	logger *logrus.Logger,
	config Config,
) AuctionEngine {
	if config.FeeRate == 0 {
		config.FeeRate = models.DefaultFeeRate
	}
	if config.DefaultDuration == 0 {
		config.DefaultDuration = 24 * time.Hour
	}
	if config.MaxDuration == 0 {
		config.MaxDuration = 7 * 24 * time.Hour
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = time.Minute
	}

	e := &auctionEngine{
		auctions:  auctions,
		ledger:    ledger,
		locks:     locks,
		inventory: inventory,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		config:    config,
		feeRate:   decimal.NewFromFloat(config.FeeRate),
		sweeper:   cron.New(),
	}
	e.scheduler = NewExpirationScheduler(e.expireAuction)
	return e
}

func (e *auctionEngine) Start() {
	schedule := "@every " + e.config.SweepInterval.String()
	if _, err := e.sweeper.AddFunc(schedule, e.sweepExpired); err != nil {
		e.logger.WithError(err).Error("Failed to schedule auction sweep")
		return
	}
	e.sweeper.Start()
}

func (e *auctionEngine) Stop() {
	e.sweeper.Stop()
	e.scheduler.Stop()
}

func (e *auctionEngine) CreateAuction(ctx context.Context, sellerID, itemID, itemName string, quantity int, startBid int64, duration time.Duration) (*models.Auction, error) {
	start := time.Now()
	if duration == 0 {
		duration = e.config.DefaultDuration
	}
	if duration < 0 || duration > e.config.MaxDuration {
		e.metrics.RecordAuctionOperation("create", "invalid", time.Since(start))
		return nil, tradeerrors.ErrInvalidAuction
	}

	auction := models.NewAuction(sellerID, itemID, itemName, quantity, startBid, duration, e.config.FeeRate)
	if err := auction.Validate(); err != nil {
		e.metrics.RecordAuctionOperation("create", "invalid", time.Since(start))
		return nil, tradeerrors.ErrInvalidAuction
	}

	// No coins or items move at creation; item custody stays with the
	// caller until the listing resolves.
	if err := e.auctions.Save(ctx, auction); err != nil {
		e.metrics.RecordAuctionOperation("create", "error", time.Since(start))
		return nil, err
	}

	e.scheduler.Schedule(auction.AuctionID, auction.EndTime)
	e.metrics.IncrementActiveAuctions()
	e.metrics.RecordAuctionOperation("create", "success", time.Since(start))
	e.publishAuctionEvent(ctx, "created", auction, 0)

	e.logger.WithFields(logrus.Fields{
		"auction_id": auction.AuctionID,
		"seller_id":  sellerID,
		"item_id":    itemID,
		"start_bid":  startBid,
		"end_time":   auction.EndTime,
	}).Info("Auction created")
	return auction, nil
}

func (e *auctionEngine) PlaceBid(ctx context.Context, auctionID, bidderID string, amount int64) (*models.Auction, error) {
	start := time.Now()

	lock, err := e.locks.LockAuction(ctx, auctionID)
	if err != nil {
		e.metrics.RecordAuctionOperation("bid", "contention", time.Since(start))
		return nil, err
	}
	defer lock.Release(ctx)

	auction, err := e.auctions.Get(ctx, auctionID)
	if err != nil {
		e.metrics.RecordAuctionOperation("bid", "not_found", time.Since(start))
		return nil, err
	}

	if bidderID == auction.SellerID {
		e.metrics.RecordAuctionOperation("bid", "invalid", time.Since(start))
		return nil, tradeerrors.ErrSelfBid
	}
	if !auction.IsActive() {
		e.metrics.RecordAuctionOperation("bid", "closed", time.Since(start))
		return nil, tradeerrors.ErrAuctionClosed
	}
	if auction.IsExpired(time.Now()) {
		// Settle while the lock is held; the bid arrived too late.
		if _, err := e.completeLocked(ctx, auction); err != nil {
			e.logger.WithError(err).WithField("auction_id", auctionID).
				Error("Failed to settle expired auction on bid")
		}
		e.metrics.RecordAuctionOperation("bid", "expired", time.Since(start))
		return nil, tradeerrors.ErrAuctionExpired
	}
	if amount <= auction.CurrentBid {
		e.metrics.RecordAuctionOperation("bid", "too_low", time.Since(start))
		return nil, tradeerrors.ErrBidTooLow
	}
	if amount < auction.MinimumBid() {
		e.metrics.RecordAuctionOperation("bid", "below_minimum", time.Since(start))
		return nil, tradeerrors.ErrBidBelowMinimum
	}

	// One atomic exchange: the new bidder's coins move into escrow and the
	// outbid bidder's escrow is refunded in the same step.
	previousBidder := auction.CurrentBidder
	refund := int64(0)
	if auction.HasBidder() {
		refund = auction.CurrentBid
	}
	err = e.ledger.Exchange(ctx, bidderID, amount, previousBidder, refund,
		"auction bid escrow", "auction bid refund")
	if err != nil {
		if errors.Is(err, tradeerrors.ErrInsufficientFunds) {
			e.metrics.RecordAuctionOperation("bid", "insufficient", time.Since(start))
		} else {
			e.metrics.RecordAuctionOperation("bid", "error", time.Since(start))
		}
		return nil, err
	}

	auction.AppendBid(bidderID, amount)
	if err := e.auctions.Save(ctx, auction); err != nil {
		// The bid was never recorded; put the escrow back where it was.
		e.unwindEscrow(ctx, auctionID, bidderID, amount, previousBidder, refund)
		e.metrics.RecordAuctionOperation("bid", "error", time.Since(start))
		return nil, err
	}

	e.metrics.RecordAuctionOperation("bid", "success", time.Since(start))
	e.metrics.RecordBidAmount(amount)
	e.publishAuctionEvent(ctx, "bid", auction, amount)

	e.logger.WithFields(logrus.Fields{
		"auction_id":      auctionID,
		"bidder_id":       bidderID,
		"amount":          amount,
		"previous_bidder": previousBidder,
	}).Info("Bid accepted")
	return auction, nil
}

// unwindEscrow reverses a bid's escrow exchange after the bid itself
// failed to persist. The previous bidder's refund is taken back and the
// new bidder is made whole.
func (e *auctionEngine) unwindEscrow(ctx context.Context, auctionID, bidderID string, amount int64, previousBidder string, refund int64) {
	var err error
	if previousBidder == "" {
		_, err = e.ledger.Credit(ctx, bidderID, amount, "auction bid unwind")
	} else {
		err = e.ledger.Exchange(ctx, previousBidder, refund, bidderID, amount,
			"auction bid escrow", "auction bid unwind")
	}
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"auction_id":      auctionID,
			"bidder_id":       bidderID,
			"amount":          amount,
			"previous_bidder": previousBidder,
		}).Error("Failed to unwind bid escrow")
	}
}

func (e *auctionEngine) CompleteAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	lock, err := e.locks.LockAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	auction, err := e.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return e.completeLocked(ctx, auction)
}

// completeLocked settles an auction. Caller holds the per-auction lock.
func (e *auctionEngine) completeLocked(ctx context.Context, auction *models.Auction) (*models.Auction, error) {
	start := time.Now()
	if !auction.IsActive() {
		// Already settled; repeat completion is a no-op.
		return auction, nil
	}

	auction.Status = models.AuctionCompleted
	auction.CompletedAt = time.Now().UTC()

	// Persist the terminal status before any coins move. A failed save
	// leaves the auction active and nothing credited, so a retry settles
	// cleanly; the reverse order would pay the seller twice.
	if err := e.auctions.Save(ctx, auction); err != nil {
		e.metrics.RecordAuctionOperation("complete", "error", time.Since(start))
		return nil, err
	}

	if auction.HasBidder() {
		fee := e.CalculateFee(auction.CurrentBid)
		proceeds := auction.CurrentBid - fee

		// The winner's escrow already left their account at bid time; the
		// fee is simply never credited anywhere.
		if proceeds > 0 {
			if _, err := e.ledger.Credit(ctx, auction.SellerID, proceeds, "auction proceeds"); err != nil {
				e.logger.WithError(err).WithFields(logrus.Fields{
					"auction_id": auction.AuctionID,
					"seller_id":  auction.SellerID,
					"proceeds":   proceeds,
				}).Error("Failed to credit seller proceeds")
				e.metrics.RecordAuctionOperation("complete", "error", time.Since(start))
				return nil, err
			}
		}
		e.metrics.RecordFeeCollected(fee)
	}

	record := models.NewAuctionHistoryRecord(auction)
	e.appendHistory(ctx, auction.SellerID, models.HistoryRoleSell, record)
	if auction.HasBidder() {
		e.appendHistory(ctx, auction.CurrentBidder, models.HistoryRoleBuy, record)
	}

	e.scheduler.Cancel(auction.AuctionID)
	e.metrics.DecrementActiveAuctions()
	e.metrics.RecordAuctionOperation("complete", "success", time.Since(start))
	e.publishAuctionEvent(ctx, "completed", auction, auction.CurrentBid)

	e.logger.WithFields(logrus.Fields{
		"auction_id": auction.AuctionID,
		"winner_id":  auction.CurrentBidder,
		"final_bid":  auction.CurrentBid,
	}).Info("Auction completed")
	return auction, nil
}

func (e *auctionEngine) CancelAuction(ctx context.Context, auctionID, requesterID string) (*models.Auction, error) {
	start := time.Now()

	lock, err := e.locks.LockAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	auction, err := e.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if requesterID != auction.SellerID {
		e.metrics.RecordAuctionOperation("cancel", "forbidden", time.Since(start))
		return nil, tradeerrors.ErrNotSeller
	}
	if !auction.IsActive() {
		e.metrics.RecordAuctionOperation("cancel", "closed", time.Since(start))
		return nil, tradeerrors.ErrAlreadyClosed
	}

	auction.Status = models.AuctionCancelled
	auction.CancelledAt = time.Now().UTC()

	// Terminal status first, refund second: a failed save leaves the
	// auction active with the escrow intact, so a retry refunds exactly
	// once.
	if err := e.auctions.Save(ctx, auction); err != nil {
		e.metrics.RecordAuctionOperation("cancel", "error", time.Since(start))
		return nil, err
	}

	if auction.HasBidder() {
		if _, err := e.ledger.Credit(ctx, auction.CurrentBidder, auction.CurrentBid, "auction cancelled refund"); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"auction_id": auctionID,
				"bidder_id":  auction.CurrentBidder,
				"amount":     auction.CurrentBid,
			}).Error("Failed to refund escrow on cancellation")
			e.metrics.RecordAuctionOperation("cancel", "error", time.Since(start))
			return nil, err
		}
	}

	if err := e.inventory.Deposit(ctx, auction.SellerID, auction.ItemID, int64(auction.Quantity)); err != nil {
		e.logger.WithError(err).WithField("auction_id", auctionID).
			Error("Failed to return item on cancellation")
	}

	e.scheduler.Cancel(auctionID)
	e.metrics.DecrementActiveAuctions()
	e.metrics.RecordAuctionOperation("cancel", "success", time.Since(start))
	e.publishAuctionEvent(ctx, "cancelled", auction, 0)

	e.logger.WithFields(logrus.Fields{
		"auction_id":      auctionID,
		"refunded_bidder": auction.CurrentBidder,
		"refunded_amount": auction.CurrentBid,
	}).Info("Auction cancelled")
	return auction, nil
}

func (e *auctionEngine) GetAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	auction, err := e.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	// Expiration safety net for reads that beat the timer.
	if auction.IsActive() && auction.IsExpired(time.Now()) {
		return e.CompleteAuction(ctx, auctionID)
	}
	return auction, nil
}

func (e *auctionEngine) GetActiveAuctions(ctx context.Context) ([]*models.Auction, error) {
	auctions, err := e.auctions.ActiveAuctions(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	live := make([]*models.Auction, 0, len(auctions))
	for _, auction := range auctions {
		if auction.IsExpired(now) {
			if _, err := e.CompleteAuction(ctx, auction.AuctionID); err != nil {
				e.logger.WithError(err).WithField("auction_id", auction.AuctionID).
					Error("Failed to settle expired auction on listing")
			}
			continue
		}
		live = append(live, auction)
	}
	return live, nil
}

func (e *auctionEngine) GetUserAuctions(ctx context.Context, accountID string) (*models.UserAuctions, error) {
	auctions, err := e.GetActiveAuctions(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.UserAuctions{
		Selling: make([]*models.Auction, 0),
		Bidding: make([]*models.Auction, 0),
	}
	for _, auction := range auctions {
		if auction.SellerID == accountID {
			result.Selling = append(result.Selling, auction)
		}
		if auction.CurrentBidder == accountID {
			result.Bidding = append(result.Bidding, auction)
		}
	}
	return result, nil
}

func (e *auctionEngine) GetHistory(ctx context.Context, accountID string, role models.HistoryRole, limit int) ([]*models.AuctionHistoryRecord, error) {
	return e.auctions.History(ctx, accountID, role, limit)
}

func (e *auctionEngine) CalculateFee(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(e.feeRate).Floor().IntPart()
}

// expireAuction is the scheduler callback.
func (e *auctionEngine) expireAuction(auctionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := e.CompleteAuction(ctx, auctionID); err != nil {
		e.logger.WithError(err).WithField("auction_id", auctionID).
			Error("Failed to settle expired auction")
	}
}

// sweepExpired is the periodic safety net behind the per-auction timers;
// it catches auctions whose timer was lost to a restart.
func (e *auctionEngine) sweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	auctions, err := e.auctions.ActiveAuctions(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Auction sweep failed to list active auctions")
		return
	}

	now := time.Now()
	for _, auction := range auctions {
		if !auction.IsExpired(now) {
			// Re-arm timers dropped by a restart.
			if !e.scheduler.Pending(auction.AuctionID) {
				e.scheduler.Schedule(auction.AuctionID, auction.EndTime)
			}
			continue
		}
		if _, err := e.CompleteAuction(ctx, auction.AuctionID); err != nil {
			e.logger.WithError(err).WithField("auction_id", auction.AuctionID).
				Error("Auction sweep failed to settle expired auction")
		}
	}
}

func (e *auctionEngine) appendHistory(ctx context.Context, accountID string, role models.HistoryRole, record *models.AuctionHistoryRecord) {
	if err := e.auctions.AppendHistory(ctx, accountID, role, record); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"auction_id": record.AuctionID,
			"account_id": accountID,
			"role":       role,
		}).Warn("Failed to record auction history")
	}
}

func (e *auctionEngine) publishAuctionEvent(ctx context.Context, eventType string, auction *models.Auction, amount int64) {
	event := &external.AuctionEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		AuctionID: auction.AuctionID,
		SellerID:  auction.SellerID,
		BidderID:  auction.CurrentBidder,
		ItemID:    auction.ItemID,
		Amount:    amount,
		Timestamp: time.Now(),
	}
	if err := e.publisher.PublishAuctionEvent(ctx, event); err != nil {
		e.logger.WithError(err).WithField("auction_id", auction.AuctionID).
			Warn("Failed to publish auction event")
	}
}
