package models

import (
	"time"

	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/shopspring/decimal"
)

// Transport moves (part of) a produced lot from the distiller to a seller.
type Transport struct {
	ID                int             `gorm:"primary_key" json:"id"`
	DistillationId    int             `gorm:"uniqueIndex;not null" json:"distillation_id"`
	LotId             int             `gorm:"index;not null" json:"lot_id"`
	CarrierId         int             `gorm:"index;not null" json:"carrier_id"`
	SellerId          int             `gorm:"index;not null" json:"seller_id"`
	Status            TransportStatus `gorm:"size:20;index;not null;default:in_transit" json:"status"`
	QuantityToDeliver decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_to_deliver"`
	OriginSite        string          `gorm:"size:255" json:"origin_site"`
	DestinationSite   string          `gorm:"size:255;not null" json:"destination_site"`
	DepartureDate     time.Time       `json:"departure_date"`
	DeliveryDate      *time.Time      `json:"delivery_date"`
	Notes             string          `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewTransport selects its source either by distillation or by lot.
type NewTransport struct {
	DistillationId  int             `validate:"required_without=LotId"`
	LotId           int             `validate:"required_without=DistillationId"`
	CarrierId       int             `validate:"required,min=1"`
	SellerId        int             `validate:"required,min=1"`
	OriginSite      string          `validate:"max=255"`
	DestinationSite string          `validate:"required,max=255"`
	Quantity        decimal.Decimal `validate:"-"`
	DepartureDate   time.Time       `validate:"required"`
}

func (input NewTransport) Validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput("transport", err.Error())
	}
	if input.Quantity.LessThanOrEqual(decimal.Zero) {
		return newQtyError(ErrInvalidAmount, "transport", 0, decimal.Zero, input.Quantity)
	}
	return nil
}

// MarkDelivered moves in_transit -> delivered.
func (t *Transport) MarkDelivered(notes string, date time.Time) error {
	if t.Status != TransportStatusInTransit {
		return NewInvalidState("transport", t.ID, string(t.Status), "mark delivered")
	}
	t.Status = TransportStatusDelivered
	t.DeliveryDate = &date
	if notes != "" {
		t.Notes = notes
	}
	return nil
}
