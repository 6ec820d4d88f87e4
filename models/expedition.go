package models

import (
	"time"

	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/shopspring/decimal"
)

// Expedition is a raw material shipment from a collection site to a distiller.
type Expedition struct {
	ID                int              `gorm:"primary_key" json:"id"`
	OwnerId           int              `gorm:"index;not null" json:"owner_id"`
	DistillerId       int              `gorm:"index:idx_expedition_stock_key;not null" json:"distiller_id"`
	OriginDeliveryRef string           `gorm:"size:100;index" json:"origin_delivery_ref"`
	MaterialType      string           `gorm:"index:idx_expedition_stock_key;size:100;not null" json:"material_type"`
	SentQty           decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"sent_qty"`
	ReceivedQty       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"received_qty"`
	Humidity          decimal.Decimal  `gorm:"type:decimal(10,4);default:0" json:"humidity"`
	Desiccation       decimal.Decimal  `gorm:"type:decimal(10,4);default:0" json:"desiccation"`
	Status            ExpeditionStatus `gorm:"size:20;index;not null;default:pending" json:"status"`
	SentDate          time.Time        `json:"sent_date"`
	ReceivedDate      *time.Time       `json:"received_date"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpedition struct {
	OwnerId           int             `validate:"required,min=1"`
	DistillerId       int             `validate:"required,min=1"`
	OriginDeliveryRef string          `validate:"max=100"`
	MaterialType      string          `validate:"required,max=100"`
	SentQty           decimal.Decimal `validate:"-"`
	Humidity          decimal.Decimal `validate:"-"`
	Desiccation       decimal.Decimal `validate:"-"`
	SentDate          time.Time       `validate:"required"`
}

func (input NewExpedition) Validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput("expedition", err.Error())
	}
	if input.SentQty.LessThanOrEqual(decimal.Zero) {
		return NewInvalidInput("expedition", "sent quantity must be positive")
	}
	if input.Humidity.IsNegative() || input.Desiccation.IsNegative() {
		return NewInvalidInput("expedition", "quality metrics cannot be negative")
	}
	return nil
}

func (input NewExpedition) ToExpedition() *Expedition {
	return &Expedition{
		OwnerId:           input.OwnerId,
		DistillerId:       input.DistillerId,
		OriginDeliveryRef: input.OriginDeliveryRef,
		MaterialType:      input.MaterialType,
		SentQty:           input.SentQty,
		ReceivedQty:       decimal.Zero,
		Humidity:          input.Humidity,
		Desiccation:       input.Desiccation,
		Status:            ExpeditionStatusPending,
		SentDate:          input.SentDate,
	}
}

// MarkReceived moves pending -> received.
func (e *Expedition) MarkReceived(receivedQty decimal.Decimal, date time.Time) error {
	if e.Status != ExpeditionStatusPending {
		return NewInvalidState("expedition", e.ID, string(e.Status), "mark received")
	}
	if receivedQty.LessThanOrEqual(decimal.Zero) {
		return newQtyError(ErrInvalidAmount, "expedition", e.ID, e.SentQty, receivedQty)
	}
	if receivedQty.GreaterThan(e.SentQty) {
		return newQtyError(ErrQuantityExceeded, "expedition", e.ID, e.SentQty, receivedQty)
	}
	e.ReceivedQty = receivedQty
	e.ReceivedDate = &date
	e.Status = ExpeditionStatusReceived
	return nil
}

// RevertReception moves received -> pending and forgets the received quantity.
func (e *Expedition) RevertReception() error {
	if e.Status != ExpeditionStatusReceived {
		return NewInvalidState("expedition", e.ID, string(e.Status), "cancel reception")
	}
	e.ReceivedQty = decimal.Zero
	e.ReceivedDate = nil
	e.Status = ExpeditionStatusPending
	return nil
}

// Contribution is what this expedition adds to the distiller's raw material stock.
func (e *Expedition) Contribution() RawMaterialContribution {
	return RawMaterialContribution{
		Quantity:     e.ReceivedQty,
		Humidity:     e.Humidity,
		Desiccation:  e.Desiccation,
		ReferenceDoc: e.OriginDeliveryRef,
	}
}

// NewDistillationSlot opens the pending distillation for a received expedition.
func (e *Expedition) NewDistillationSlot() *Distillation {
	return &Distillation{
		ExpeditionId:     e.ID,
		OwnerId:          e.OwnerId,
		DistillerId:      e.DistillerId,
		Status:           DistillationStatusPending,
		MaterialType:     e.MaterialType,
		QuantityReceived: e.ReceivedQty,
		Humidity:         e.Humidity,
		Desiccation:      e.Desiccation,
	}
}
