package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus marks a ledger row as a completed transfer or a
// recorded attempt that moved no funds.
type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "SUCCESS"
	TransactionFailed  TransactionStatus = "FAILED"
)

// Transaction is one append-only ledger row. Once written, its fields are
// immutable.
type Transaction struct {
	ID         int64             `json:"id" db:"id"`
	FromCardID uuid.UUID         `json:"from_card_id" db:"from_card"`
	ToCardID   uuid.UUID         `json:"to_card_id" db:"to_card"`
	Amount     decimal.Decimal   `json:"amount" db:"amount"`
	SentAt     time.Time         `json:"sent_at" db:"sent_date"`
	Status     TransactionStatus `json:"status" db:"status"`

	// Visible is reserved; it is never false for SUCCESS rows.
	Visible bool `json:"-" db:"visible"`
}

// TransferView is the ledger projection returned to clients, carrying the
// raw numbers of both cards instead of their ids.
type TransferView struct {
	ID             int64             `json:"id"`
	FromCardNumber string            `json:"from_card_number"`
	ToCardNumber   string            `json:"to_card_number"`
	Amount         decimal.Decimal   `json:"amount"`
	Status         TransactionStatus `json:"status"`
	SentAt         time.Time         `json:"sent_at"`
}
