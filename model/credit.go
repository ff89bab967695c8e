package model

import (
	"time"

	"gorm.io/gorm"
)

// Transaction statuses. Transitions are one-directional: PENDING -> SUCCESS
// or PENDING -> FAILED.
const (
	TransactionPending = "PENDING"
	TransactionSuccess = "SUCCESS"
	TransactionFailed  = "FAILED"
)

// Credit ticket statuses. Expiry is derived from timestamps at read time, not
// stored as a status.
const (
	TicketValid    = "VALID"
	TicketRedeemed = "REDEEMED"
)

// Receiver is the storage provider a ledger pays out to, keyed by wallet
// address.
type Receiver struct {
	ID            uint   `gorm:"primaryKey"`
	WalletAddress string `gorm:"size:128;uniqueIndex"`
	CreatedAt     time.Time
}

// Contract is a deployed FilPass instance owned by one user.
type Contract struct {
	ID                  uint   `gorm:"primaryKey"`
	UserID              uint   `gorm:"index"`
	Address             string `gorm:"size:128;uniqueIndex"`
	DeployedFromAddress string `gorm:"size:128"`
	CreatedAt           time.Time
}

// UserCredit is one entitlement ledger per (user, receiver, contract) triple.
// All amounts are attoFIL decimal strings. Invariant:
// TotalWithdrawals + TotalRefunds <= TotalHeight.
type UserCredit struct {
	ID         uint `gorm:"primaryKey"`
	UserID     uint `gorm:"index:idx_user_receiver,priority:1"`
	ReceiverID uint `gorm:"index:idx_user_receiver,priority:2"`
	ContractID uint

	// Amount is the lifetime deposited total; TotalHeight is the cumulative
	// entitlement ceiling. They advance together on confirmed deposits.
	Amount           string `gorm:"type:text;default:'0'"`
	TotalHeight      string `gorm:"type:text;default:'0'"`
	TotalWithdrawals string `gorm:"type:text;default:'0'"`
	TotalRefunds     string `gorm:"type:text;default:'0'"`

	WithdrawStartsAt  *time.Time
	WithdrawExpiresAt *time.Time
	RefundStartsAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Receiver Receiver `gorm:"foreignKey:ReceiverID"`
	Contract Contract `gorm:"foreignKey:ContractID"`
}

// CreditTransaction is an append-only deposit event, one row per on-chain
// transaction hash.
type CreditTransaction struct {
	ID                   uint   `gorm:"primaryKey"`
	UserCreditID         uint   `gorm:"index"`
	From                 string `gorm:"size:128"`
	ReceiverID           uint
	TransactionHash      string `gorm:"size:128;uniqueIndex"`
	Status               string `gorm:"size:20;index;default:'PENDING'"`
	Amount               string `gorm:"type:text"`
	AdditionalTicketDays int
	Confirmations        uint64
	BlockNumber          string `gorm:"size:32"`
	FailReason           string `gorm:"type:text"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	UserCredit UserCredit `gorm:"foreignKey:UserCreditID"`
}

// WithdrawTransaction records an oracle redemption submitted to the contract.
type WithdrawTransaction struct {
	ID              uint   `gorm:"primaryKey"`
	UserCreditID    uint   `gorm:"index"`
	CreditTicketID  uint   `gorm:"index"`
	TransactionHash string `gorm:"size:128;uniqueIndex"`
	Status          string `gorm:"size:20;index;default:'PENDING'"`
	Amount          string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RefundTransaction records a funder reclaim of remaining entitlement.
type RefundTransaction struct {
	ID              uint    `gorm:"primaryKey"`
	UserCreditID    uint    `gorm:"index"`
	TransactionHash *string `gorm:"size:128;uniqueIndex"`
	Status          string  `gorm:"size:20;index;default:'PENDING'"`
	Amount          string  `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TicketGroup is a batch of tickets split from one ledger at one point in
// time. ExpiresAt copies the ledger's withdraw expiry at creation.
type TicketGroup struct {
	ID           uint `gorm:"primaryKey"`
	UserCreditID uint `gorm:"index"`
	ExpiresAt    time.Time
	Expired      bool
	CreatedAt    time.Time

	UserCredit UserCredit `gorm:"foreignKey:UserCreditID"`
}

// CreditTicket is one signed claim unit. Height is the cumulative ledger
// boundary the ticket represents; Amount is the guaranteed increment over the
// previous ticket.
type CreditTicket struct {
	ID            uint   `gorm:"primaryKey"`
	TicketGroupID uint   `gorm:"index"`
	PublicID      string `gorm:"size:64;uniqueIndex"`
	Height        string `gorm:"type:text"`
	Amount        string `gorm:"type:text"`
	Token         string `gorm:"type:text"`
	Status        string `gorm:"size:20;index;default:'VALID'"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	TicketGroup TicketGroup `gorm:"foreignKey:TicketGroupID"`
}

// AutoMigrate creates the credit ledger tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Receiver{},
		&Contract{},
		&UserCredit{},
		&CreditTransaction{},
		&WithdrawTransaction{},
		&RefundTransaction{},
		&TicketGroup{},
		&CreditTicket{},
		&CurrencyUnit{},
		&TransferRequest{},
		&Transfer{},
		&TransferRequestHistory{},
		&PaymentTransaction{},
	)
}
