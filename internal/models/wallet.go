package models

import "time"

// WalletTransaction is an append-only ledger entry. Amounts are positive
// whole currency units; direction is carried by Type. A completed row is
// immutable.
type WalletTransaction struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"userId" db:"user_id"`
	Amount      int64     `json:"amount" db:"amount"`
	Type        string    `json:"type" db:"type"` // credit or debit
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status" db:"status"` // pending, completed, failed
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

const (
	TxCredit = "credit"
	TxDebit  = "debit"

	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
)
