package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"economy-api/internal/external"
	"economy-api/internal/models"
	"economy-api/internal/monitoring"
	"economy-api/internal/repository"
	"economy-api/internal/tradeerrors"
)

// CoinLedger is the authoritative record of every account's coin balance.
// All mutations are atomic: a failed operation leaves every balance
// untouched.
type CoinLedger interface {
	// GetBalance returns the balance of an account. Unknown accounts read
	// as zero.
	GetBalance(ctx context.Context, accountID string) (int64, error)
	Credit(ctx context.Context, accountID string, amount int64, reason string) (int64, error)
	Debit(ctx context.Context, accountID string, amount int64, reason string) (int64, error)
	// Transfer moves amount between two distinct accounts all-or-nothing.
	Transfer(ctx context.Context, fromID, toID string, amount int64, reason string) (*models.TransferResult, error)
	// Exchange debits one account and credits another with independent
	// amounts as a single atomic unit. creditID may be empty for a bare
	// debit and creditAmount may be zero. The auction engine uses this to
	// swap escrow between bidders without a window where both or neither
	// hold the coins.
	Exchange(ctx context.Context, debitID string, debitAmount int64, creditID string, creditAmount int64, debitReason, creditReason string) error

	GetHistory(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error)
	GetStats(ctx context.Context, accountID string) (*models.CoinStats, error)
	GetRanking(ctx context.Context, limit int) ([]*models.RankingEntry, error)

	// Initialize seeds a starting balance once per account; repeat calls
	// leave the current balance alone.
	Initialize(ctx context.Context, accountID string, amount int64) (int64, bool, error)
	Reset(ctx context.Context, accountID string) error
}

type coinService struct {
	accounts  repository.AccountRepository
	metrics   monitoring.MetricsService
	publisher external.EventPublisher
	logger    *logrus.Logger
}

// NewCoinLedger builds the ledger service.
func NewCoinLedger(
	accounts repository.AccountRepository,
	metrics monitoring.MetricsService,
	publisher external.EventPublisher,
	logger *logrus.Logger,
) CoinLedger {
	return &coinService{
		accounts:  accounts,
		metrics:   metrics,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *coinService) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return s.accounts.GetBalance(ctx, accountID)
}

func (s *coinService) Credit(ctx context.Context, accountID string, amount int64, reason string) (int64, error) {
	start := time.Now()
	if amount <= 0 {
		s.metrics.RecordLedgerOperation("credit", "invalid", time.Since(start))
		return 0, tradeerrors.ErrInvalidAmount
	}

	balance, err := s.accounts.Credit(ctx, accountID, amount)
	if err != nil {
		s.metrics.RecordLedgerOperation("credit", "error", time.Since(start))
		return 0, err
	}

	s.recordTransaction(ctx, accountID, models.DirectionCredit, amount, reason)
	s.publishCoinEvent(ctx, "credit", accountID, amount, balance, reason)
	s.metrics.RecordLedgerOperation("credit", "success", time.Since(start))
	s.metrics.RecordCoinVolume("credit", amount)
	return balance, nil
}

func (s *coinService) Debit(ctx context.Context, accountID string, amount int64, reason string) (int64, error) {
	start := time.Now()
	if amount <= 0 {
		s.metrics.RecordLedgerOperation("debit", "invalid", time.Since(start))
		return 0, tradeerrors.ErrInvalidAmount
	}

	balance, ok, err := s.accounts.DebitIfSufficient(ctx, accountID, amount)
	if err != nil {
		s.metrics.RecordLedgerOperation("debit", "error", time.Since(start))
		return 0, err
	}
	if !ok {
		s.metrics.RecordLedgerOperation("debit", "insufficient", time.Since(start))
		return balance, tradeerrors.ErrInsufficientFunds
	}

	s.recordTransaction(ctx, accountID, models.DirectionDebit, amount, reason)
	s.publishCoinEvent(ctx, "debit", accountID, amount, balance, reason)
	s.metrics.RecordLedgerOperation("debit", "success", time.Since(start))
	s.metrics.RecordCoinVolume("debit", amount)
	return balance, nil
}

func (s *coinService) Transfer(ctx context.Context, fromID, toID string, amount int64, reason string) (*models.TransferResult, error) {
	start := time.Now()
	if amount <= 0 {
		s.metrics.RecordLedgerOperation("transfer", "invalid", time.Since(start))
		return nil, tradeerrors.ErrInvalidAmount
	}
	if fromID == toID {
		s.metrics.RecordLedgerOperation("transfer", "invalid", time.Since(start))
		return nil, tradeerrors.ErrSelfTransfer
	}

	fromBalance, toBalance, ok, err := s.accounts.Exchange(ctx, fromID, amount, toID, amount)
	if err != nil {
		s.metrics.RecordLedgerOperation("transfer", "error", time.Since(start))
		return nil, err
	}
	if !ok {
		s.metrics.RecordLedgerOperation("transfer", "insufficient", time.Since(start))
		return nil, tradeerrors.ErrInsufficientFunds
	}

	s.recordTransaction(ctx, fromID, models.DirectionDebit, amount, reason)
	s.recordTransaction(ctx, toID, models.DirectionCredit, amount, reason)
	s.publishCoinEvent(ctx, "transfer", fromID, amount, fromBalance, reason)
	s.metrics.RecordLedgerOperation("transfer", "success", time.Since(start))
	s.metrics.RecordCoinVolume("transfer", amount)

	return &models.TransferResult{
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
		FromBalance:   fromBalance,
		ToBalance:     toBalance,
	}, nil
}

func (s *coinService) Exchange(ctx context.Context, debitID string, debitAmount int64, creditID string, creditAmount int64, debitReason, creditReason string) error {
	start := time.Now()
	if debitAmount <= 0 || creditAmount < 0 {
		s.metrics.RecordLedgerOperation("exchange", "invalid", time.Since(start))
		return tradeerrors.ErrInvalidAmount
	}

	debitBalance, creditBalance, ok, err := s.accounts.Exchange(ctx, debitID, debitAmount, creditID, creditAmount)
	if err != nil {
		s.metrics.RecordLedgerOperation("exchange", "error", time.Since(start))
		return err
	}
	if !ok {
		s.metrics.RecordLedgerOperation("exchange", "insufficient", time.Since(start))
		return tradeerrors.ErrInsufficientFunds
	}

	s.recordTransaction(ctx, debitID, models.DirectionDebit, debitAmount, debitReason)
	s.publishCoinEvent(ctx, "debit", debitID, debitAmount, debitBalance, debitReason)
	if creditID != "" && creditAmount > 0 {
		s.recordTransaction(ctx, creditID, models.DirectionCredit, creditAmount, creditReason)
		s.publishCoinEvent(ctx, "credit", creditID, creditAmount, creditBalance, creditReason)
	}
	s.metrics.RecordLedgerOperation("exchange", "success", time.Since(start))
	return nil
}

func (s *coinService) GetHistory(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	return s.accounts.Transactions(ctx, accountID, limit)
}

func (s *coinService) GetStats(ctx context.Context, accountID string) (*models.CoinStats, error) {
	balance, err := s.accounts.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}

	transactions, err := s.accounts.Transactions(ctx, accountID, models.HistoryLimit)
	if err != nil {
		return nil, err
	}

	stats := &models.CoinStats{CurrentBalance: balance}
	for _, tx := range transactions {
		stats.TransactionCount++
		switch tx.Direction {
		case models.DirectionCredit:
			stats.TotalEarned += tx.Amount
		case models.DirectionDebit:
			stats.TotalSpent += tx.Amount
		}
	}
	return stats, nil
}

func (s *coinService) GetRanking(ctx context.Context, limit int) ([]*models.RankingEntry, error) {
	ids, err := s.accounts.AccountIDs(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.RankingEntry, 0, len(ids))
	for _, id := range ids {
		balance, err := s.accounts.GetBalance(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &models.RankingEntry{AccountID: id, Balance: balance})
	}

	// Ties keep a deterministic order by account id.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Balance != entries[j].Balance {
			return entries[i].Balance > entries[j].Balance
		}
		return entries[i].AccountID < entries[j].AccountID
	})

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	for i, entry := range entries {
		entry.Rank = i + 1
	}
	return entries, nil
}

func (s *coinService) Initialize(ctx context.Context, accountID string, amount int64) (int64, bool, error) {
	if amount < 0 {
		return 0, false, tradeerrors.ErrInvalidAmount
	}

	balance, created, err := s.accounts.InitializeIfAbsent(ctx, accountID, amount)
	if err != nil {
		return 0, false, err
	}
	if created {
		s.logger.WithFields(logrus.Fields{
			"account_id": accountID,
			"balance":    balance,
		}).Info("Account initialized")
	}
	return balance, created, nil
}

func (s *coinService) Reset(ctx context.Context, accountID string) error {
	if err := s.accounts.Reset(ctx, accountID); err != nil {
		return err
	}
	s.logger.WithField("account_id", accountID).Info("Account reset")
	return nil
}

// recordTransaction appends a history entry. History is diagnostic, never
// authoritative: failures are logged and swallowed so a full history list
// cannot block a balance change that already happened.
func (s *coinService) recordTransaction(ctx context.Context, accountID string, direction models.TransactionDirection, amount int64, reason string) {
	tx := models.NewTransaction(accountID, direction, amount, reason)
	if err := s.accounts.AppendTransaction(ctx, tx); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"account_id": accountID,
			"direction":  direction,
			"amount":     amount,
		}).Warn("Failed to record transaction history")
	}
}

func (s *coinService) publishCoinEvent(ctx context.Context, eventType, accountID string, amount, balance int64, reason string) {
	event := &external.CoinEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		AccountID: accountID,
		Amount:    amount,
		Balance:   balance,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	if err := s.publisher.PublishCoinEvent(ctx, event); err != nil {
		s.logger.WithError(err).WithField("account_id", accountID).Warn("Failed to publish coin event")
	}
}
