package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceUser is the cash balance of one owner (distiller / operator).
type BalanceUser struct {
	ID        int             `gorm:"primary_key" json:"id"`
	OwnerId   int             `gorm:"uniqueIndex;not null" json:"owner_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	Version   int             `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BalanceHistory is the immutable audit row written for every debit and credit.
type BalanceHistory struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	OwnerId       int                 `gorm:"index;not null" json:"owner_id"`
	Kind          BalanceMovementKind `gorm:"size:10;not null" json:"kind"`
	Amount        decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"amount"`
	Before        decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"before"`
	After         decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"after"`
	Reason        string              `gorm:"size:255" json:"reason"`
	Reference     string              `gorm:"size:100;uniqueIndex;not null" json:"reference"`
	ReferenceType string              `gorm:"size:50;index:idx_balance_history_ref" json:"reference_type"`
	ReferenceId   int                 `gorm:"index:idx_balance_history_ref" json:"reference_id"`
	UserId        int                 `gorm:"index" json:"user_id"`
	CorrelationId string              `gorm:"size:64" json:"correlation_id"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// BalanceMovement describes why money moves; ReferenceType/ReferenceId point at the business document.
type BalanceMovement struct {
	OwnerId       int             `validate:"required,min=1"`
	Amount        decimal.Decimal `validate:"-"`
	Reason        string          `validate:"max=255"`
	ReferenceType string          `validate:"max=50"`
	ReferenceId   int             `validate:"min=0"`
}

// Debit applies a debit in memory and returns the audit row for it (Reference left empty).
func (b *BalanceUser) Debit(m BalanceMovement) (*BalanceHistory, error) {
	if m.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, newQtyError(ErrInvalidAmount, "balance", b.OwnerId, b.Balance, m.Amount)
	}
	if b.Balance.LessThan(m.Amount) {
		return nil, newQtyError(ErrInsufficientBalance, "balance", b.OwnerId, b.Balance, m.Amount)
	}
	before := b.Balance
	b.Balance = b.Balance.Sub(m.Amount)
	return b.history(BalanceMovementDebit, m, before), nil
}

// Credit applies a credit in memory and returns the audit row for it (Reference left empty).
func (b *BalanceUser) Credit(m BalanceMovement) (*BalanceHistory, error) {
	if m.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, newQtyError(ErrInvalidAmount, "balance", b.OwnerId, b.Balance, m.Amount)
	}
	before := b.Balance
	b.Balance = b.Balance.Add(m.Amount)
	return b.history(BalanceMovementCredit, m, before), nil
}

func (b *BalanceUser) history(kind BalanceMovementKind, m BalanceMovement, before decimal.Decimal) *BalanceHistory {
	return &BalanceHistory{
		OwnerId:       b.OwnerId,
		Kind:          kind,
		Amount:        m.Amount,
		Before:        before,
		After:         b.Balance,
		Reason:        m.Reason,
		ReferenceType: m.ReferenceType,
		ReferenceId:   m.ReferenceId,
	}
}
