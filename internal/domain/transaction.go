package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction statuses
const (
	TxnStatusSuccess = "SUCCESS"
)

// Transaction is the audit record of one completed transfer. Rows are
// append-only: created exactly once per idempotency key (unique index) and
// never updated or deleted. Wallets are referenced by id only.
type Transaction struct {
	ID               string          `gorm:"type:char(36);primaryKey" json:"id"`
	IdempotencyKey   string          `gorm:"size:64;uniqueIndex;not null" json:"idempotency_key"`
	SenderWalletID   uint            `gorm:"index;not null" json:"sender_wallet_id"`
	ReceiverWalletID uint            `gorm:"index;not null" json:"receiver_wallet_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status           string          `gorm:"size:16;not null" json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// BeforeCreate assigns a UUID so transaction ids are stable references
// across systems rather than auto-increment rows.
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
