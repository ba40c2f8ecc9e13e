package payment

import (
	"context"
	"errors"
	"time"

	"marketplace_wallet/internal/domain"

	"github.com/shopspring/decimal"
)

// Store is the persistence surface the engine runs against. Transact runs fn
// inside one atomic unit: every write made through the Store handed to fn
// commits together or not at all, and row locks taken inside are held until
// fn returns. The MySQL implementation lives in internal/store/gormstore;
// internal/store/memstore provides the same contract in memory.
type Store interface {
	// GetOrCreateWallet returns the user's wallet, creating it with zero
	// balance on first access. Concurrent first accesses yield one wallet:
	// the unique owner constraint makes losers read the winner's row.
	GetOrCreateWallet(ctx context.Context, userID uint) (*domain.Wallet, error)

	// WalletByUserID returns the user's wallet or domain.ErrWalletNotFound.
	WalletByUserID(ctx context.Context, userID uint) (*domain.Wallet, error)

	// LockWallet acquires the wallet's exclusive lock and returns the fresh
	// row. The lock is held until the enclosing Transact returns.
	LockWallet(ctx context.Context, walletID uint) (*domain.Wallet, error)

	// Credit and Debit mutate a balance. The caller must hold the wallet's
	// lock.
	Credit(ctx context.Context, walletID uint, amount decimal.Decimal) error
	Debit(ctx context.Context, walletID uint, amount decimal.Decimal) error

	// TransactionByKey returns the ledger record for an idempotency key, or
	// (nil, nil) when the key has never been used.
	TransactionByKey(ctx context.Context, key string) (*domain.Transaction, error)

	// AppendTransaction persists an immutable ledger record. It fails with
	// domain.ErrDuplicateKey if the idempotency key already exists.
	AppendTransaction(ctx context.Context, txn *domain.Transaction) error

	Transact(ctx context.Context, fn func(tx Store) error) error
}

// DefaultLockWait bounds how long a transfer may block on wallet locks
// before it gives up with domain.ErrTransferTimeout.
const DefaultLockWait = 5 * time.Second

// Engine orchestrates funds movement between wallets:
// validate -> deduplicate -> lock -> mutate -> record.
type Engine struct {
	store    Store
	lockWait time.Duration
}

// NewEngine returns an Engine over store. lockWait <= 0 selects
// DefaultLockWait.
func NewEngine(store Store, lockWait time.Duration) *Engine {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	return &Engine{store: store, lockWait: lockWait}
}

// Transfer moves amount from the sender's wallet to the receiver's wallet,
// exactly once per idempotency key. A retried request with a known key
// returns the stored Transaction without touching any balance. The sender
// must already own a wallet; the receiver's wallet is created lazily at
// zero balance.
//
// Both wallet locks are taken in ascending wallet-id order regardless of
// who sends and who receives, so any two transfers that share a wallet
// serialize instead of deadlocking. The sender balance is re-read under the
// lock before the debit. Debit, credit and the ledger append commit as one
// unit; every failure path leaves both balances untouched.
func (e *Engine) Transfer(ctx context.Context, senderUserID, receiverUserID uint, amount decimal.Decimal, idempotencyKey string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if senderUserID == receiverUserID {
		return nil, domain.ErrSelfTransfer
	}

	// A known key means the transfer already happened; hand back its record.
	if existing, err := e.store.TransactionByKey(ctx, idempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	sender, err := e.store.WalletByUserID(ctx, senderUserID)
	if err != nil {
		return nil, err
	}
	receiver, err := e.store.GetOrCreateWallet(ctx, receiverUserID)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	defer cancel()

	var txn *domain.Transaction
	err = e.store.Transact(lockCtx, func(tx Store) error {
		first, second := sender.ID, receiver.ID
		if second < first {
			first, second = second, first
		}
		var lockedSender *domain.Wallet
		for _, id := range []uint{first, second} {
			row, lockErr := tx.LockWallet(lockCtx, id)
			if lockErr != nil {
				return lockErr
			}
			if id == sender.ID {
				lockedSender = row
			}
		}
		// The balance seen before locking may be stale.
		if lockedSender.Balance.LessThan(amount) {
			return domain.ErrInsufficientBalance
		}
		if err := tx.Debit(lockCtx, sender.ID, amount); err != nil {
			return err
		}
		if err := tx.Credit(lockCtx, receiver.ID, amount); err != nil {
			return err
		}
		txn = &domain.Transaction{
			IdempotencyKey:   idempotencyKey,
			SenderWalletID:   sender.ID,
			ReceiverWalletID: receiver.ID,
			Amount:           amount,
			Status:           domain.TxnStatusSuccess,
		}
		return tx.AppendTransaction(lockCtx, txn)
	})
	if errors.Is(err, domain.ErrDuplicateKey) {
		// A concurrent retry with the same key won the append after our
		// lookup. Our writes rolled back; return the winner's record.
		winner, lookupErr := e.store.TransactionByKey(ctx, idempotencyKey)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if winner != nil {
			return winner, nil
		}
		return nil, err
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, domain.ErrTransferTimeout
		}
		return nil, err
	}
	return txn, nil
}

// AddMoney credits amount to the user's wallet and returns the updated
// wallet. The single wallet is still locked so concurrent deposits
// serialize, but no cross-wallet ordering is involved. Topups write no
// ledger entry.
func (e *Engine) AddMoney(ctx context.Context, userID uint, amount decimal.Decimal) (*domain.Wallet, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	wallet, err := e.store.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	defer cancel()

	err = e.store.Transact(lockCtx, func(tx Store) error {
		row, lockErr := tx.LockWallet(lockCtx, wallet.ID)
		if lockErr != nil {
			return lockErr
		}
		if err := tx.Credit(lockCtx, wallet.ID, amount); err != nil {
			return err
		}
		wallet = row
		wallet.Balance = row.Balance.Add(amount)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, domain.ErrTransferTimeout
		}
		return nil, err
	}
	return wallet, nil
}

// Wallet returns the user's wallet, creating it on first access.
func (e *Engine) Wallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	return e.store.GetOrCreateWallet(ctx, userID)
}

// Balance returns the user's current balance.
func (e *Engine) Balance(ctx context.Context, userID uint) (decimal.Decimal, error) {
	wallet, err := e.store.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}
