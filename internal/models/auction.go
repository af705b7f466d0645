package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of a listing. Transitions are
// active -> completed and active -> cancelled; both are terminal.
type AuctionStatus string

const (
	AuctionActive    AuctionStatus = "active"
	AuctionCompleted AuctionStatus = "completed"
	AuctionCancelled AuctionStatus = "cancelled"
)

// MinIncrementRate is the default multiplier a new bid must clear relative
// to the current bid, rounded up.
var MinIncrementRate = decimal.NewFromFloat(1.10)

// SetMinIncrementRate overrides the bid increment multiplier. Call once at
// startup, before any auction accepts bids.
func SetMinIncrementRate(rate float64) {
	MinIncrementRate = decimal.NewFromFloat(rate)
}

// DefaultFeeRate is the house cut taken from the final bid on settlement.
const DefaultFeeRate = 0.05

// Bid is a single accepted bid. Bids are append-only and chronological;
// amounts are strictly increasing within one auction.
type Bid struct {
	BidderID  string    `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Auction is one listing. CurrentBidder, when set, always holds exactly
// CurrentBid in escrow (debited and not yet refunded).
type Auction struct {
	AuctionID     string        `json:"auction_id"`
	SellerID      string        `json:"seller_id"`
	ItemID        string        `json:"item_id"`
	ItemName      string        `json:"item_name"`
	Quantity      int           `json:"quantity"`
	StartBid      int64         `json:"start_bid"`
	CurrentBid    int64         `json:"current_bid"`
	CurrentBidder string        `json:"current_bidder,omitempty"`
	Bids          []Bid         `json:"bids"`
	Status        AuctionStatus `json:"status"`
	FeeRate       float64       `json:"fee_rate"`
	CreatedAt     time.Time     `json:"created_at"`
	EndTime       time.Time     `json:"end_time"`
	CompletedAt   time.Time     `json:"completed_at,omitempty"`
	CancelledAt   time.Time     `json:"cancelled_at,omitempty"`
}

// NewAuction creates an active listing. StartBid seeds CurrentBid; no coins
// or items move at creation.
func NewAuction(sellerID, itemID, itemName string, quantity int, startBid int64, duration time.Duration, feeRate float64) *Auction {
	now := time.Now().UTC()
	return &Auction{
		AuctionID:  fmt.Sprintf("auction-%s", uuid.New().String()),
		SellerID:   sellerID,
		ItemID:     itemID,
		ItemName:   itemName,
		Quantity:   quantity,
		StartBid:   startBid,
		CurrentBid: startBid,
		Bids:       make([]Bid, 0),
		Status:     AuctionActive,
		FeeRate:    feeRate,
		CreatedAt:  now,
		EndTime:    now.Add(duration),
	}
}

// Validate checks listing parameters at creation time.
func (a *Auction) Validate() error {
	if a.SellerID == "" {
		return fmt.Errorf("seller id is required")
	}
	if a.ItemID == "" {
		return fmt.Errorf("item id is required")
	}
	if a.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", a.Quantity)
	}
	if a.StartBid <= 0 {
		return fmt.Errorf("start bid must be positive, got %d", a.StartBid)
	}
	if !a.EndTime.After(a.CreatedAt) {
		return fmt.Errorf("end time must be after creation time")
	}
	return nil
}

// IsActive reports whether the listing still accepts bids.
func (a *Auction) IsActive() bool {
	return a.Status == AuctionActive
}

// IsExpired reports whether the listing's end time has passed.
func (a *Auction) IsExpired(now time.Time) bool {
	return now.After(a.EndTime)
}

// HasBidder reports whether someone currently holds the top bid.
func (a *Auction) HasBidder() bool {
	return a.CurrentBidder != ""
}

// MinimumBid returns the smallest acceptable next bid:
// ceil(CurrentBid * MinIncrementRate).
func (a *Auction) MinimumBid() int64 {
	return decimal.NewFromInt(a.CurrentBid).Mul(MinIncrementRate).Ceil().IntPart()
}

// AppendBid records an accepted bid and advances the top of the book.
func (a *Auction) AppendBid(bidderID string, amount int64) {
	a.CurrentBid = amount
	a.CurrentBidder = bidderID
	a.Bids = append(a.Bids, Bid{
		BidderID:  bidderID,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	})
}

// AuctionHistoryRecord is the denormalized snapshot written once when an
// auction completes. It is never mutated afterwards.
type AuctionHistoryRecord struct {
	AuctionID   string    `json:"auction_id"`
	SellerID    string    `json:"seller_id"`
	ItemID      string    `json:"item_id"`
	ItemName    string    `json:"item_name"`
	Quantity    int       `json:"quantity"`
	StartBid    int64     `json:"start_bid"`
	FinalBid    int64     `json:"final_bid"`
	WinnerID    string    `json:"winner_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewAuctionHistoryRecord snapshots a completed auction.
func NewAuctionHistoryRecord(a *Auction) *AuctionHistoryRecord {
	return &AuctionHistoryRecord{
		AuctionID:   a.AuctionID,
		SellerID:    a.SellerID,
		ItemID:      a.ItemID,
		ItemName:    a.ItemName,
		Quantity:    a.Quantity,
		StartBid:    a.StartBid,
		FinalBid:    a.CurrentBid,
		WinnerID:    a.CurrentBidder,
		CompletedAt: a.CompletedAt,
	}
}

// UserAuctions groups a user's active listings and active top bids.
type UserAuctions struct {
	Selling []*Auction `json:"selling"`
	Bidding []*Auction `json:"bidding"`
}

// HistoryRole selects which side of past auctions to read.
type HistoryRole string

const (
	HistoryRoleSell HistoryRole = "sell"
	HistoryRoleBuy  HistoryRole = "buy"
)
