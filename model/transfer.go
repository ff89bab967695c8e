package model

import "time"

// Transfer request statuses touched by the reconciliation job. The wider
// approval state machine lives outside this service.
const (
	RequestApproved = "APPROVED"
	RequestPaid     = "PAID"
)

// FilecoinCurrencyName is the currency unit the verification job converts
// paid amounts into.
const FilecoinCurrencyName = "FIL"

// CurrencyUnit names a unit and its scale relative to the base token.
type CurrencyUnit struct {
	ID    uint   `gorm:"primaryKey"`
	Name  string `gorm:"size:32;uniqueIndex"`
	Scale int
}

// TransferRequest is the parent disbursement request. Only the fields the
// reconciliation job reads and flips live here.
type TransferRequest struct {
	ID            uint   `gorm:"primaryKey"`
	PublicID      string `gorm:"size:64;uniqueIndex"`
	Status        string `gorm:"size:20;index"`
	WalletAddress string `gorm:"size:128"`
	IsActive      bool   `gorm:"default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transfer is one payment attempt for a request, matched to chain messages by
// TransferRef.
type Transfer struct {
	ID                   uint   `gorm:"primaryKey"`
	TransferRequestID    uint   `gorm:"index"`
	TransferRef          string `gorm:"size:64;uniqueIndex"`
	Status               string `gorm:"size:20;index;default:'PENDING'"`
	TxHash               *string
	Amount               string `gorm:"type:text"`
	AmountCurrencyUnitID *uint
	IsActive             bool `gorm:"default:true"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	TransferRequest TransferRequest `gorm:"foreignKey:TransferRequestID"`
}

// TransferRequestHistory is an append-only change record written whenever a
// request's status flips.
type TransferRequestHistory struct {
	ID                uint `gorm:"primaryKey"`
	TransferRequestID uint `gorm:"index"`
	OldValue          string
	NewValue          string
	UserRoleID        uint
	CreatedAt         time.Time
}

// PaymentTransaction is an unprocessed on-chain payment reference queued for
// the verification job. Attempts counts failed verification runs so poisoned
// rows eventually leave the batch.
type PaymentTransaction struct {
	ID          uint   `gorm:"primaryKey"`
	Transaction string `gorm:"size:128;index"`
	IsActive    bool   `gorm:"default:true"`
	IsProcessed bool   `gorm:"index;default:false"`
	Attempts    int    `gorm:"default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
