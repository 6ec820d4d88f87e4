package models

import (
	"time"

	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/shopspring/decimal"
)

// SalesReception is the destination-side record closing an expedition or a transport.
// At most one exists per (SourceType, SourceId).
type SalesReception struct {
	ID               int                      `gorm:"primary_key" json:"id"`
	SourceType       SalesReceptionSourceType `gorm:"uniqueIndex:uniq_sales_reception_source;size:20;not null" json:"source_type"`
	SourceId         int                      `gorm:"uniqueIndex:uniq_sales_reception_source;not null" json:"source_id"`
	SellerId         int                      `gorm:"index;not null" json:"seller_id"`
	Status           SalesReceptionStatus     `gorm:"size:20;index;not null;default:pending" json:"status"`
	QuantityExpected decimal.Decimal          `gorm:"type:decimal(20,4);default:0" json:"quantity_expected"`
	QuantityReceived decimal.Decimal          `gorm:"type:decimal(20,4);default:0" json:"quantity_received"`
	ReceptionSite    string                   `gorm:"size:255" json:"reception_site"`
	ProductType      string                   `gorm:"size:100" json:"product_type"`
	ReceivedAt       *time.Time               `json:"received_at"`
	Forced           bool                     `gorm:"default:false" json:"forced"`
	CreatedAt        time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSalesReception struct {
	SourceType    SalesReceptionSourceType `validate:"required,oneof=expedition transport"`
	SourceId      int                      `validate:"required,min=1"`
	SellerId      int                      `validate:"required,min=1"`
	Quantity      decimal.Decimal          `validate:"-"`
	ReceptionSite string                   `validate:"max=255"`
	ProductType   string                   `validate:"max=100"`
}

func (input NewSalesReception) Validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput("sales_reception", err.Error())
	}
	if input.Quantity.LessThanOrEqual(decimal.Zero) {
		return newQtyError(ErrInvalidAmount, "sales_reception", 0, decimal.Zero, input.Quantity)
	}
	return nil
}

// ToSalesReception builds the pending record; the received quantity starts at the expected one.
func (input NewSalesReception) ToSalesReception() *SalesReception {
	return &SalesReception{
		SourceType:       input.SourceType,
		SourceId:         input.SourceId,
		SellerId:         input.SellerId,
		Status:           SalesReceptionStatusPending,
		QuantityExpected: input.Quantity,
		QuantityReceived: input.Quantity,
		ReceptionSite:    input.ReceptionSite,
		ProductType:      input.ProductType,
	}
}

// Confirm moves pending -> received.
func (r *SalesReception) Confirm(receivedQty decimal.Decimal, at time.Time) error {
	if r.Status != SalesReceptionStatusPending {
		return NewInvalidState("sales_reception", r.ID, string(r.Status), "confirm")
	}
	return r.receive(receivedQty, at)
}

// ForceConfirm is the manual override: pending or cancelled -> received.
func (r *SalesReception) ForceConfirm(receivedQty decimal.Decimal, at time.Time) error {
	if r.Status == SalesReceptionStatusReceived {
		return NewInvalidState("sales_reception", r.ID, string(r.Status), "force confirm")
	}
	if err := r.receive(receivedQty, at); err != nil {
		return err
	}
	r.Forced = true
	return nil
}

// Cancel moves pending -> cancelled.
func (r *SalesReception) Cancel() error {
	if r.Status != SalesReceptionStatusPending {
		return NewInvalidState("sales_reception", r.ID, string(r.Status), "cancel")
	}
	r.Status = SalesReceptionStatusCancelled
	return nil
}

func (r *SalesReception) receive(receivedQty decimal.Decimal, at time.Time) error {
	if receivedQty.IsNegative() {
		return newQtyError(ErrInvalidAmount, "sales_reception", r.ID, r.QuantityExpected, receivedQty)
	}
	if receivedQty.GreaterThan(r.QuantityExpected) {
		return newQtyError(ErrQuantityExceeded, "sales_reception", r.ID, r.QuantityExpected, receivedQty)
	}
	r.QuantityReceived = receivedQty
	r.ReceivedAt = &at
	r.Status = SalesReceptionStatusReceived
	return nil
}
