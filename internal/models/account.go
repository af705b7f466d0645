package models

import (
	"fmt"
	"time"
)

// TransactionDirection tags which way a ledger entry moved coins.
type TransactionDirection string

const (
	DirectionCredit TransactionDirection = "credit"
	DirectionDebit  TransactionDirection = "debit"
)

// HistoryLimit is the per-account retention cap for transaction history.
// Older entries are silently dropped, so any aggregate derived from history
// is an approximation bounded by this window.
const HistoryLimit = 100

// Transaction is one leg of a balance mutation. Entries are append-only;
// they are never edited and are removed only by a full account reset.
type Transaction struct {
	AccountID string               `json:"account_id"`
	Direction TransactionDirection `json:"direction"`
	Amount    int64                `json:"amount"`
	Reason    string               `json:"reason"`
	Timestamp time.Time            `json:"timestamp"`
}

// NewTransaction builds a history entry for a single balance leg.
func NewTransaction(accountID string, direction TransactionDirection, amount int64, reason string) *Transaction {
	return &Transaction{
		AccountID: accountID,
		Direction: direction,
		Amount:    amount,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks the entry before it is persisted.
func (t *Transaction) Validate() error {
	if t.AccountID == "" {
		return fmt.Errorf("transaction account id is required")
	}
	if t.Amount <= 0 {
		return fmt.Errorf("transaction amount must be positive, got %d", t.Amount)
	}
	if t.Direction != DirectionCredit && t.Direction != DirectionDebit {
		return fmt.Errorf("invalid transaction direction: %s", t.Direction)
	}
	return nil
}

// CoinStats summarizes an account's recent activity. Totals are folded from
// the bounded history, not from a lifetime log.
type CoinStats struct {
	CurrentBalance   int64 `json:"current_balance"`
	TotalEarned      int64 `json:"total_earned"`
	TotalSpent       int64 `json:"total_spent"`
	TransactionCount int   `json:"transaction_count"`
}

// RankingEntry is one row of the balance leaderboard.
type RankingEntry struct {
	Rank      int    `json:"rank"`
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

// TransferResult carries both post-transfer balances back to the caller.
type TransferResult struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        int64  `json:"amount"`
	FromBalance   int64  `json:"from_balance"`
	ToBalance     int64  `json:"to_balance"`
}
