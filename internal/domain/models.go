package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role classifies an account for authorization checks.
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

// Transaction statuses. Completed rows are immutable.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Payment request statuses. A request leaves pending exactly once.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// Transaction types recorded in the ledger.
const (
	TypeTransfer       = "transfer"
	TypeRequestPayment = "request_payment"
	TypeAdminTransfer  = "admin_transfer"
)

// Fund chain entry source types.
const (
	SourceTreasuryWithdrawal = "treasury_withdrawal"
	SourceAdminTransfer      = "admin_transfer"
)

// Account holds a user's balance and identity attributes. The balance of a
// non-treasury account never goes negative; the treasury account is an
// unlimited source and is exempt.
type Account struct {
	ID         string          `json:"id"`
	Balance    decimal.Decimal `json:"balance"`
	Role       Role            `json:"role"`
	IsTreasury bool            `json:"is_treasury"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Transaction is one append-only ledger row. TotalAmount = Amount + Fee is
// what the sender was debited; the recipient was credited Amount.
type Transaction struct {
	ID          int64           `json:"id"`
	SenderID    string          `json:"sender_id"`
	RecipientID string          `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	Type        string          `json:"transaction_type"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PaymentRequest is a bilateral request for funds. SenderID is the requester
// (who will receive money), RecipientID the payer (who must approve).
type PaymentRequest struct {
	ID          int64           `json:"id"`
	SenderID    string          `json:"sender_id"`
	RecipientID string          `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TreasuryWithdrawal is a minting event: it credits an admin's balance and
// seeds a new root in the fund chain forest.
type TreasuryWithdrawal struct {
	ID        int64           `json:"id"`
	AdminID   string          `json:"admin_id"`
	Amount    decimal.Decimal `json:"amount"`
	ChainID   string          `json:"chain_id"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

// FundChainEntry is one node of the provenance forest. ParentChainID is empty
// for roots (treasury withdrawals) and for unrooted admin transfers, which are
// recorded with IsVerified=false and flagged for audit.
type FundChainEntry struct {
	ID                int64           `json:"id"`
	ChainID           string          `json:"chain_id"`
	ParentChainID     string          `json:"parent_chain_id,omitempty"`
	SourceType        string          `json:"source_type"`
	Amount            decimal.Decimal `json:"amount"`
	DestinationUserID string          `json:"destination_user_id"`
	IsVerified        bool            `json:"is_verified"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TransferResult is returned to the caller after a committed transfer.
type TransferResult struct {
	TransactionID    int64           `json:"transaction_id"`
	NewSenderBalance decimal.Decimal `json:"new_sender_balance"`
}

// WithdrawResult is returned after a committed treasury withdrawal.
type WithdrawResult struct {
	ChainID         string          `json:"chain_id"`
	NewAdminBalance decimal.Decimal `json:"new_admin_balance"`
}

// AdminTransferResult is returned after a committed admin transfer.
type AdminTransferResult struct {
	TransactionID int64  `json:"transaction_id"`
	ChainID       string `json:"chain_id"`
}
