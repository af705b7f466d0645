package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"economy-api/internal/models"
	"economy-api/internal/storage"
)

const (
	coinKeyPrefix     = "coins:"
	coinHistoryPrefix = "coin_history:"
)

// AccountRepository persists balances and per-account transaction history.
// Balances live as plain integers so the store's atomic primitives apply to
// them directly.
type AccountRepository interface {
	GetBalance(ctx context.Context, accountID string) (int64, error)
	Credit(ctx context.Context, accountID string, amount int64) (int64, error)
	// DebitIfSufficient decrements only when the balance covers amount.
	// Returns the resulting balance and whether the debit applied.
	DebitIfSufficient(ctx context.Context, accountID string, amount int64) (int64, bool, error)
	// Exchange debits one account and credits another as one atomic unit;
	// creditID may be empty for a bare conditional debit.
	Exchange(ctx context.Context, debitID string, debitAmount int64, creditID string, creditAmount int64) (debitBalance, creditBalance int64, ok bool, err error)
	// InitializeIfAbsent seeds a balance only when no record exists yet.
	InitializeIfAbsent(ctx context.Context, accountID string, amount int64) (balance int64, created bool, err error)
	Reset(ctx context.Context, accountID string) error

	AppendTransaction(ctx context.Context, tx *models.Transaction) error
	Transactions(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error)
	AccountIDs(ctx context.Context) ([]string, error)
}

type accountRepository struct {
	store storage.Store
}

// NewAccountRepository builds a repository over the given store.
func NewAccountRepository(store storage.Store) AccountRepository {
	return &accountRepository{store: store}
}

func coinKey(accountID string) string {
	return coinKeyPrefix + accountID
}

func coinHistoryKey(accountID string) string {
	return coinHistoryPrefix + accountID
}

func (r *accountRepository) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return r.store.GetInt64(ctx, coinKey(accountID))
}

func (r *accountRepository) Credit(ctx context.Context, accountID string, amount int64) (int64, error) {
	return r.store.IncrBy(ctx, coinKey(accountID), amount)
}

func (r *accountRepository) DebitIfSufficient(ctx context.Context, accountID string, amount int64) (int64, bool, error) {
	return r.store.DecrIfAtLeast(ctx, coinKey(accountID), amount)
}

func (r *accountRepository) Exchange(ctx context.Context, debitID string, debitAmount int64, creditID string, creditAmount int64) (int64, int64, bool, error) {
	creditKey := ""
	if creditID != "" {
		creditKey = coinKey(creditID)
	}
	return r.store.Exchange(ctx, coinKey(debitID), debitAmount, creditKey, creditAmount)
}

func (r *accountRepository) InitializeIfAbsent(ctx context.Context, accountID string, amount int64) (int64, bool, error) {
	created, err := r.store.SetNX(ctx, coinKey(accountID), fmt.Sprintf("%d", amount), 0)
	if err != nil {
		return 0, false, err
	}
	if created {
		return amount, true, nil
	}
	balance, err := r.store.GetInt64(ctx, coinKey(accountID))
	return balance, false, err
}

func (r *accountRepository) Reset(ctx context.Context, accountID string) error {
	return r.store.Del(ctx, coinKey(accountID), coinHistoryKey(accountID))
}

func (r *accountRepository) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}
	return r.store.LPushTrim(ctx, coinHistoryKey(tx.AccountID), string(payload), models.HistoryLimit)
}

func (r *accountRepository) Transactions(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > models.HistoryLimit {
		limit = models.HistoryLimit
	}
	raw, err := r.store.LRange(ctx, coinHistoryKey(accountID), 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}

	transactions := make([]*models.Transaction, 0, len(raw))
	for _, entry := range raw {
		var tx models.Transaction
		if err := json.Unmarshal([]byte(entry), &tx); err != nil {
			// A single corrupt entry should not hide the rest of the history.
			continue
		}
		transactions = append(transactions, &tx)
	}
	return transactions, nil
}

func (r *accountRepository) AccountIDs(ctx context.Context) ([]string, error) {
	keys, err := r.store.Keys(ctx, coinKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, coinKeyPrefix))
	}
	return ids, nil
}
