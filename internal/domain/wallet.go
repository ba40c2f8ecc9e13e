package domain

import "github.com/shopspring/decimal"

// Wallet statuses
const (
	WalletStatusActive = "active"
)

// Wallet holds a user's balance. One wallet per user, enforced by the
// unique index on UserID. Balance is an exact decimal and never negative;
// it is mutated only under the wallet's exclusive lock.
type Wallet struct {
	ID      uint            `gorm:"primaryKey" json:"id"`
	UserID  uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	Status  string          `gorm:"size:16;not null;default:active" json:"status"`
}
