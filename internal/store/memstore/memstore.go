// Package memstore is an in-memory payment.Store used by tests.
// Exclusive wallet locks are one-slot channels so a
// waiter can give up on context cancellation; the transaction boundary is an
// undo journal replayed on failure. The ledger is a keyed map whose
// compare-and-insert plays the role of the unique index on the idempotency
// key.
package memstore

import (
	"context"
	"sync"
	"time"

	"marketplace_wallet/internal/domain"
	"marketplace_wallet/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu      sync.Mutex
	nextID  uint
	wallets map[uint]*domain.Wallet
	byUser  map[uint]uint
	locks   map[uint]chan struct{}
	ledger  map[string]*domain.Transaction
}

func New() *Store {
	return &Store{
		wallets: make(map[uint]*domain.Wallet),
		byUser:  make(map[uint]uint),
		locks:   make(map[uint]chan struct{}),
		ledger:  make(map[string]*domain.Transaction),
	}
}

var _ payment.Store = (*Store)(nil)

func (s *Store) GetOrCreateWallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byUser[userID]; ok {
		return copyWallet(s.wallets[id]), nil
	}
	s.nextID++
	wallet := &domain.Wallet{
		ID:      s.nextID,
		UserID:  userID,
		Balance: decimal.Zero,
		Status:  domain.WalletStatusActive,
	}
	s.wallets[wallet.ID] = wallet
	s.byUser[userID] = wallet.ID
	return copyWallet(wallet), nil
}

func (s *Store) WalletByUserID(ctx context.Context, userID uint) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUser[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return copyWallet(s.wallets[id]), nil
}

// LockWallet outside Transact has no scope to hold the lock for, so it
// acquires, snapshots and releases. The engine only locks inside Transact.
func (s *Store) LockWallet(ctx context.Context, walletID uint) (*domain.Wallet, error) {
	ch, err := s.lockChan(walletID)
	if err != nil {
		return nil, err
	}
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-ch }()
	return s.snapshot(walletID)
}

func (s *Store) Credit(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	return s.adjust(walletID, amount, nil)
}

func (s *Store) Debit(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	return s.adjust(walletID, amount.Neg(), nil)
}

func (s *Store) TransactionByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.ledger[key]
	if !ok {
		return nil, nil
	}
	cp := *txn
	return &cp, nil
}

func (s *Store) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(txn, nil)
}

func (s *Store) Transact(ctx context.Context, fn func(tx payment.Store) error) error {
	tx := &txStore{s: s}
	err := fn(tx)
	if err != nil {
		tx.rollback()
	}
	tx.releaseLocks()
	return err
}

// LedgerLen reports the number of audit records; test helper.
func (s *Store) LedgerLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}

func (s *Store) lockChan(walletID uint) (chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[walletID]; !ok {
		return nil, domain.ErrWalletNotFound
	}
	ch, ok := s.locks[walletID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[walletID] = ch
	}
	return ch, nil
}

func (s *Store) snapshot(walletID uint) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[walletID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return copyWallet(wallet), nil
}

// adjust applies a signed balance delta. When journal is non-nil an undo
// entry restoring the prior balance is appended to it.
func (s *Store) adjust(walletID uint, delta decimal.Decimal, journal *[]func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[walletID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	if journal != nil {
		prev := wallet.Balance
		*journal = append(*journal, func() { wallet.Balance = prev })
	}
	wallet.Balance = wallet.Balance.Add(delta)
	return nil
}

func (s *Store) appendLocked(txn *domain.Transaction, journal *[]func()) error {
	if _, exists := s.ledger[txn.IdempotencyKey]; exists {
		return domain.ErrDuplicateKey
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	cp := *txn
	s.ledger[txn.IdempotencyKey] = &cp
	if journal != nil {
		key := txn.IdempotencyKey
		*journal = append(*journal, func() { delete(s.ledger, key) })
	}
	return nil
}

// txStore scopes locks and an undo journal to one Transact call.
type txStore struct {
	s       *Store
	held    []uint
	journal []func()
}

var _ payment.Store = (*txStore)(nil)

func (tx *txStore) GetOrCreateWallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	return tx.s.GetOrCreateWallet(ctx, userID)
}

func (tx *txStore) WalletByUserID(ctx context.Context, userID uint) (*domain.Wallet, error) {
	return tx.s.WalletByUserID(ctx, userID)
}

func (tx *txStore) LockWallet(ctx context.Context, walletID uint) (*domain.Wallet, error) {
	for _, held := range tx.held {
		if held == walletID {
			return tx.s.snapshot(walletID)
		}
	}
	ch, err := tx.s.lockChan(walletID)
	if err != nil {
		return nil, err
	}
	select {
	case ch <- struct{}{}:
		tx.held = append(tx.held, walletID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return tx.s.snapshot(walletID)
}

func (tx *txStore) Credit(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	return tx.s.adjust(walletID, amount, &tx.journal)
}

func (tx *txStore) Debit(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	return tx.s.adjust(walletID, amount.Neg(), &tx.journal)
}

func (tx *txStore) TransactionByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	return tx.s.TransactionByKey(ctx, key)
}

func (tx *txStore) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	return tx.s.appendLocked(txn, &tx.journal)
}

// Nested Transact joins the enclosing unit of work.
func (tx *txStore) Transact(ctx context.Context, fn func(inner payment.Store) error) error {
	return fn(tx)
}

func (tx *txStore) rollback() {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	for i := len(tx.journal) - 1; i >= 0; i-- {
		tx.journal[i]()
	}
	tx.journal = nil
}

func (tx *txStore) releaseLocks() {
	tx.s.mu.Lock()
	locks := make([]chan struct{}, 0, len(tx.held))
	for i := len(tx.held) - 1; i >= 0; i-- {
		locks = append(locks, tx.s.locks[tx.held[i]])
	}
	tx.s.mu.Unlock()
	for _, ch := range locks {
		<-ch
	}
	tx.held = nil
}

func copyWallet(w *domain.Wallet) *domain.Wallet {
	cp := *w
	return &cp
}
