package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuction(t *testing.T) {
	auction := NewAuction("seller-1", "item-1", "Iron Sword", 1, 100, time.Hour, DefaultFeeRate)

	assert.Contains(t, auction.AuctionID, "auction-")
	assert.Equal(t, "seller-1", auction.SellerID)
	assert.Equal(t, int64(100), auction.StartBid)
	assert.Equal(t, int64(100), auction.CurrentBid)
	assert.Empty(t, auction.CurrentBidder)
	assert.Equal(t, AuctionActive, auction.Status)
	assert.Empty(t, auction.Bids)
	assert.WithinDuration(t, auction.CreatedAt.Add(time.Hour), auction.EndTime, time.Second)
	require.NoError(t, auction.Validate())
}

func TestAuctionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Auction)
		wantErr bool
	}{
		{"valid", func(*Auction) {}, false},
		{"missing seller", func(a *Auction) { a.SellerID = "" }, true},
		{"missing item", func(a *Auction) { a.ItemID = "" }, true},
		{"zero quantity", func(a *Auction) { a.Quantity = 0 }, true},
		{"zero start bid", func(a *Auction) { a.StartBid = 0 }, true},
		{"negative start bid", func(a *Auction) { a.StartBid = -5 }, true},
		{"end before creation", func(a *Auction) { a.EndTime = a.CreatedAt.Add(-time.Minute) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auction := NewAuction("seller-1", "item-1", "Iron Sword", 1, 100, time.Hour, DefaultFeeRate)
			tt.mutate(auction)
			err := auction.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMinimumBid(t *testing.T) {
	tests := []struct {
		currentBid int64
		want       int64
	}{
		{100, 110},
		{150, 165},
		{151, 167}, // ceil(166.1)
		{1, 2},     // ceil(1.1)
		{0, 0},
	}

	for _, tt := range tests {
		auction := &Auction{CurrentBid: tt.currentBid}
		assert.Equal(t, tt.want, auction.MinimumBid(), "current bid %d", tt.currentBid)
	}
}

func TestAppendBid(t *testing.T) {
	auction := NewAuction("seller-1", "item-1", "Iron Sword", 1, 100, time.Hour, DefaultFeeRate)

	auction.AppendBid("alice", 150)
	auction.AppendBid("bob", 165)

	assert.Equal(t, int64(165), auction.CurrentBid)
	assert.Equal(t, "bob", auction.CurrentBidder)
	require.Len(t, auction.Bids, 2)
	assert.Equal(t, "alice", auction.Bids[0].BidderID)
	assert.Equal(t, int64(150), auction.Bids[0].Amount)
	assert.True(t, auction.Bids[1].Amount > auction.Bids[0].Amount)
}

func TestIsExpired(t *testing.T) {
	auction := NewAuction("seller-1", "item-1", "Iron Sword", 1, 100, time.Hour, DefaultFeeRate)

	assert.False(t, auction.IsExpired(time.Now()))
	assert.True(t, auction.IsExpired(auction.EndTime.Add(time.Second)))
}

func TestNewAuctionHistoryRecord(t *testing.T) {
	auction := NewAuction("seller-1", "item-1", "Iron Sword", 2, 100, time.Hour, DefaultFeeRate)
	auction.AppendBid("alice", 150)
	auction.Status = AuctionCompleted
	auction.CompletedAt = time.Now().UTC()

	record := NewAuctionHistoryRecord(auction)
	assert.Equal(t, auction.AuctionID, record.AuctionID)
	assert.Equal(t, int64(100), record.StartBid)
	assert.Equal(t, int64(150), record.FinalBid)
	assert.Equal(t, "alice", record.WinnerID)
	assert.Equal(t, 2, record.Quantity)
}

func TestTransactionValidate(t *testing.T) {
	tx := NewTransaction("alice", DirectionCredit, 50, "quest reward")
	require.NoError(t, tx.Validate())
	assert.False(t, tx.Timestamp.IsZero())

	tx.Amount = 0
	assert.Error(t, tx.Validate())

	tx = NewTransaction("alice", TransactionDirection("sideways"), 50, "")
	assert.Error(t, tx.Validate())
}
