// Package gormstore implements the payment.Store contract on MySQL via GORM.
// Wallet locks are SELECT ... FOR UPDATE row locks; the transaction boundary
// is a database transaction, so debit, credit and the ledger append commit
// or roll back together.
package gormstore

import (
	"context"
	"errors"

	"marketplace_wallet/internal/domain"
	"marketplace_wallet/internal/payment"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a *gorm.DB. Inside Transact the embedded handle is the
// transaction, so the same methods work in both scopes.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ payment.Store = (*Store)(nil)

func (s *Store) GetOrCreateWallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	wallet = domain.Wallet{UserID: userID, Balance: decimal.Zero, Status: domain.WalletStatusActive}
	err = s.db.WithContext(ctx).Create(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if isDuplicate(err) {
		// Lost the first-access race; the unique owner index kept a single
		// wallet. Read the winner's row.
		if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			return nil, err
		}
		return &wallet, nil
	}
	return nil, err
}

func (s *Store) WalletByUserID(ctx context.Context, userID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *Store) LockWallet(ctx context.Context, walletID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&wallet, walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *Store) Credit(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	return s.adjustBalance(ctx, walletID, gorm.Expr("balance + ?", amount))
}

func (s *Store) Debit(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	return s.adjustBalance(ctx, walletID, gorm.Expr("balance - ?", amount))
}

func (s *Store) adjustBalance(ctx context.Context, walletID uint, expr any) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("id = ?", walletID).
		Update("balance", expr)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

func (s *Store) TransactionByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (s *Store) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	err := s.db.WithContext(ctx).Create(txn).Error
	if isDuplicate(err) {
		return domain.ErrDuplicateKey
	}
	return err
}

func (s *Store) Transact(ctx context.Context, fn func(tx payment.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// isDuplicate reports whether err is a unique-constraint violation, either
// translated by GORM or raw from the MySQL driver (error 1062).
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
