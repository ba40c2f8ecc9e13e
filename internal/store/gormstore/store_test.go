package gormstore

import (
	"context"
	"testing"

	"marketplace_wallet/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	return New(gdb), mock
}

func walletRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "balance", "status"})
}

func TestLockWalletIssuesForUpdate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .* FROM `wallets` .*FOR UPDATE").
		WillReturnRows(walletRows().AddRow(3, 7, "120.50", "active"))

	wallet, err := store.LockWallet(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), wallet.ID)
	assert.True(t, wallet.Balance.Equal(decimal.RequireFromString("120.50")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockWalletNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .* FROM `wallets`").
		WillReturnRows(walletRows())

	_, err := store.LockWallet(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletByUserIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .* FROM `wallets`").
		WillReturnRows(walletRows())

	_, err := store.WalletByUserID(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionByKeyMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	txn, err := store.TransactionByKey(context.Background(), "unused-key")
	require.NoError(t, err)
	assert.Nil(t, txn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTransactionDuplicateKey(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `transactions`").
		WillReturnError(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry 'k1' for key 'idx_transactions_idempotency_key'"})
	mock.ExpectRollback()

	err := store.AppendTransaction(context.Background(), &domain.Transaction{
		IdempotencyKey:   "k1",
		SenderWalletID:   1,
		ReceiverWalletID: 2,
		Amount:           decimal.RequireFromString("30.00"),
		Status:           domain.TxnStatusSuccess,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateWalletLosesCreationRace(t *testing.T) {
	store, mock := newMockStore(t)

	// No wallet yet, the insert hits the unique owner index, so the loser
	// reads the winner's row.
	mock.ExpectQuery("SELECT .* FROM `wallets`").
		WillReturnRows(walletRows())
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `wallets`").
		WillReturnError(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry '7' for key 'idx_wallets_user_id'"})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT .* FROM `wallets`").
		WillReturnRows(walletRows().AddRow(5, 7, "0.00", "active"))

	wallet, err := store.GetOrCreateWallet(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint(5), wallet.ID)
	assert.Equal(t, uint(7), wallet.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitUnknownWallet(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `wallets` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.Debit(context.Background(), 99, decimal.RequireFromString("1.00"))
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
