package db

import (
	"marketplace_wallet/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema. The unique indexes on
// wallets.user_id and transactions.idempotency_key are correctness
// invariants (one wallet per user, one ledger row per idempotency key),
// not an optimization.
func Migrate(dsn string) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err)
	}
	if err := gdb.AutoMigrate(&domain.User{}, &domain.Wallet{}, &domain.Transaction{}); err != nil {
		logrus.Fatalf("migration failed: %v", err)
	}
	logrus.Info("Migration completed.")
}
