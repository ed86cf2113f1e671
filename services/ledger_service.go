// services/ledger_service.go
package services

import (
	"context"
	"fmt"
	"sort"

	"referral-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService is the append-only credit ledger. It never validates business rules.
type LedgerService struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewLedgerService(db *gorm.DB, log *zap.Logger) *LedgerService {
	return &LedgerService{DB: db, Log: log.Named("ledger")}
}

// AppendParams describes one signed credit movement
type AppendParams struct {
	AccountID   string
	Amount      decimal.Decimal
	SourceType  models.LedgerSourceType
	ReferenceID string
	Description string
}

// LockAccounts creates any missing account rows and row-locks them in ascending id order,
// so two transactions touching the same pair of accounts cannot deadlock each other.
func (s *LedgerService) LockAccounts(ctx context.Context, tx *gorm.DB, accountIDs ...string) error {
	ids := uniqueSorted(accountIDs)
	if len(ids) == 0 {
		return nil
	}

	accounts := make([]models.Account, len(ids))
	for i, id := range ids {
		accounts[i] = models.Account{ID: id}
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&accounts).Error; err != nil {
		return fmt.Errorf("ensure accounts: %w", err)
	}

	var locked []models.Account
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&locked).Error; err != nil {
		return fmt.Errorf("lock accounts: %w", err)
	}
	return nil
}

// Append writes the next entry of an account's running-balance chain.
// With a nil tx it runs in its own transaction; otherwise it joins the caller's unit of work.
func (s *LedgerService) Append(ctx context.Context, tx *gorm.DB, p AppendParams) (*models.LedgerEntry, error) {
	if tx == nil {
		var entry *models.LedgerEntry
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			entry, err = s.Append(ctx, tx, p)
			return err
		})
		if err != nil {
			return nil, persistenceErr("append ledger entry", err)
		}
		return entry, nil
	}

	if err := s.LockAccounts(ctx, tx, p.AccountID); err != nil {
		return nil, err
	}

	latest, err := s.latest(ctx, tx, p.AccountID)
	if err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:           uuid.NewString(),
		AccountID:    p.AccountID,
		Sequence:     latest.Sequence + 1,
		Amount:       p.Amount,
		BalanceAfter: latest.BalanceAfter.Add(p.Amount),
		SourceType:   p.SourceType,
		ReferenceID:  p.ReferenceID,
		Description:  p.Description,
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	s.Log.Debug("ledger entry appended",
		zap.String("account_id", entry.AccountID),
		zap.Int64("sequence", entry.Sequence),
		zap.String("amount", entry.Amount.String()),
		zap.String("balance_after", entry.BalanceAfter.String()),
		zap.String("source_type", string(entry.SourceType)),
	)
	return entry, nil
}

// latest returns the newest entry of an account, or a zero entry when there is none
func (s *LedgerService) latest(ctx context.Context, db *gorm.DB, accountID string) (models.LedgerEntry, error) {
	var entry models.LedgerEntry
	res := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("sequence DESC").
		Limit(1).
		Find(&entry)
	if res.Error != nil {
		return models.LedgerEntry{}, fmt.Errorf("read latest entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.LedgerEntry{BalanceAfter: decimal.Zero}, nil
	}
	return entry, nil
}

// Balance is the balance_after of the account's most recent entry, or 0
func (s *LedgerService) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	latest, err := s.latest(ctx, s.DB, accountID)
	if err != nil {
		return decimal.Zero, persistenceErr("read balance", err)
	}
	return latest.BalanceAfter, nil
}

// AccountExists reports whether an account row exists; LockAccounts creates one on first use
func (s *LedgerService) AccountExists(ctx context.Context, accountID string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Account{}).Where("id = ?", accountID).Count(&count).Error; err != nil {
		return false, persistenceErr("lookup account", err)
	}
	return count > 0, nil
}

// Entries returns one page of an account's history, newest first
func (s *LedgerService) Entries(ctx context.Context, accountID string, page, size int) ([]models.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	if err := s.DB.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("account_id = ?", accountID).
		Count(&total).Error; err != nil {
		return nil, 0, persistenceErr("count ledger entries", err)
	}

	var entries []models.LedgerEntry
	if err := s.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("sequence DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&entries).Error; err != nil {
		return nil, 0, persistenceErr("list ledger entries", err)
	}
	return entries, total, nil
}

// VerifyChain walks an account's entries in order and checks the running balance and sequence
func (s *LedgerService) VerifyChain(ctx context.Context, accountID string) error {
	var entries []models.LedgerEntry
	if err := s.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("sequence ASC").
		Find(&entries).Error; err != nil {
		return persistenceErr("load ledger chain", err)
	}

	prev := decimal.Zero
	for i, e := range entries {
		if e.Sequence != int64(i+1) {
			return fmt.Errorf("%w: account %s expected sequence %d, found %d", ErrChainBroken, accountID, i+1, e.Sequence)
		}
		if want := prev.Add(e.Amount); !e.BalanceAfter.Equal(want) {
			return fmt.Errorf("%w: account %s sequence %d balance_after %s, want %s",
				ErrChainBroken, accountID, e.Sequence, e.BalanceAfter, want)
		}
		prev = e.BalanceAfter
	}
	return nil
}

// HasEntry reports whether the account already holds an entry for (source, reference)
func (s *LedgerService) HasEntry(ctx context.Context, tx *gorm.DB, accountID string, source models.LedgerSourceType, referenceID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("account_id = ? AND source_type = ? AND reference_id = ?", accountID, source, referenceID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup ledger entry: %w", err)
	}
	return count > 0, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
