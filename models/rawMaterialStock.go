package models

import (
	"time"

	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/shopspring/decimal"
)

// RawMaterialStock aggregates received raw material per (distiller, material type).
// It is an aggregation key, not a transaction log: every received expedition adds to the same row.
type RawMaterialStock struct {
	ID              int                    `gorm:"primary_key" json:"id"`
	DistillerId     int                    `gorm:"uniqueIndex:uniq_raw_stock_key;not null" json:"distiller_id"`
	MaterialType    string                 `gorm:"uniqueIndex:uniq_raw_stock_key;size:100;not null" json:"material_type"`
	QuantityInitial decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"quantity_initial"`
	QuantityUsed    decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"quantity_used"`
	HumidityAvg     decimal.Decimal        `gorm:"type:decimal(10,4);default:0" json:"humidity_avg"`
	DesiccationAvg  decimal.Decimal        `gorm:"type:decimal(10,4);default:0" json:"desiccation_avg"`
	Status          RawMaterialStockStatus `gorm:"size:20;not null;default:available" json:"status"`
	ReferenceDoc    string                 `gorm:"size:255" json:"reference_doc"`
	Version         int                    `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

// RawMaterialContribution is what one received expedition brings to the aggregate.
type RawMaterialContribution struct {
	Quantity     decimal.Decimal
	Humidity     decimal.Decimal
	Desiccation  decimal.Decimal
	ReferenceDoc string
}

func NewRawMaterialStock(distillerId int, materialType string) *RawMaterialStock {
	return &RawMaterialStock{
		DistillerId:     distillerId,
		MaterialType:    materialType,
		QuantityInitial: decimal.Zero,
		QuantityUsed:    decimal.Zero,
		HumidityAvg:     decimal.Zero,
		DesiccationAvg:  decimal.Zero,
		Status:          RawMaterialStockStatusAvailable,
	}
}

func (s *RawMaterialStock) Remaining() decimal.Decimal {
	return s.QuantityInitial.Sub(s.QuantityUsed)
}

// WeightedAverage returns (oldQty*oldAvg + addQty*addVal)/(oldQty+addQty).
// A non-positive base takes the added value as is.
func WeightedAverage(oldQty decimal.Decimal, oldAvg decimal.Decimal, addQty decimal.Decimal, addVal decimal.Decimal) decimal.Decimal {
	if oldQty.LessThanOrEqual(decimal.Zero) {
		return addVal
	}
	total := oldQty.Add(addQty)
	if total.LessThanOrEqual(decimal.Zero) {
		return oldAvg
	}
	return oldQty.Mul(oldAvg).Add(addQty.Mul(addVal)).Div(total).Round(4)
}

// Add folds a contribution into the aggregate and recomputes the quality averages.
func (s *RawMaterialStock) Add(c RawMaterialContribution) error {
	if c.Quantity.IsNegative() {
		return newQtyError(ErrInvalidAmount, "raw_material_stock", s.ID, s.QuantityInitial, c.Quantity)
	}
	s.HumidityAvg = WeightedAverage(s.QuantityInitial, s.HumidityAvg, c.Quantity, c.Humidity)
	s.DesiccationAvg = WeightedAverage(s.QuantityInitial, s.DesiccationAvg, c.Quantity, c.Desiccation)
	s.QuantityInitial = s.QuantityInitial.Add(c.Quantity)
	if c.ReferenceDoc != "" {
		s.ReferenceDoc = c.ReferenceDoc
	}
	// a running distillation keeps the row in_distillation
	if s.Status != RawMaterialStockStatusInDistillation || s.Remaining().LessThanOrEqual(decimal.Zero) {
		s.refreshStatus(false)
	}
	return nil
}

// Subtract removes a previously added contribution, clamping at zero.
// The averages are un-weighted while a positive base remains; otherwise they are kept.
// Used quantity is clamped down to the new initial so used <= initial keeps holding.
func (s *RawMaterialStock) Subtract(c RawMaterialContribution) {
	removed := decimal.Min(c.Quantity, s.QuantityInitial)
	if removed.LessThanOrEqual(decimal.Zero) {
		return
	}
	left := s.QuantityInitial.Sub(removed)
	if left.GreaterThan(decimal.Zero) {
		s.HumidityAvg = unweight(s.QuantityInitial, s.HumidityAvg, removed, c.Humidity, left)
		s.DesiccationAvg = unweight(s.QuantityInitial, s.DesiccationAvg, removed, c.Desiccation, left)
	}
	s.QuantityInitial = left
	if s.QuantityUsed.GreaterThan(s.QuantityInitial) {
		s.QuantityUsed = s.QuantityInitial
	}
	s.refreshStatus(false)
}

func unweight(qty decimal.Decimal, avg decimal.Decimal, removed decimal.Decimal, value decimal.Decimal, left decimal.Decimal) decimal.Decimal {
	return utils.ClampZero(qty.Mul(avg).Sub(removed.Mul(value)).Div(left).Round(4))
}

// ReserveForDistillation marks qty as used by a distillation.
func (s *RawMaterialStock) ReserveForDistillation(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return newQtyError(ErrInvalidAmount, "raw_material_stock", s.ID, s.Remaining(), qty)
	}
	if qty.GreaterThan(s.Remaining()) {
		return newQtyError(ErrInsufficientStock, "raw_material_stock", s.ID, s.Remaining(), qty)
	}
	s.QuantityUsed = s.QuantityUsed.Add(qty)
	s.refreshStatus(true)
	return nil
}

// Release gives qty back to the remaining quantity.
func (s *RawMaterialStock) Release(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) || qty.GreaterThan(s.QuantityUsed) {
		return newQtyError(ErrInvalidAmount, "raw_material_stock", s.ID, s.QuantityUsed, qty)
	}
	s.QuantityUsed = s.QuantityUsed.Sub(qty)
	s.refreshStatus(false)
	return nil
}

// refreshStatus: depleted when nothing remains, otherwise in_distillation right after a
// reservation and available after any other change.
func (s *RawMaterialStock) refreshStatus(reserved bool) {
	switch {
	case s.Remaining().LessThanOrEqual(decimal.Zero):
		s.Status = RawMaterialStockStatusDepleted
	case reserved:
		s.Status = RawMaterialStockStatusInDistillation
	default:
		s.Status = RawMaterialStockStatusAvailable
	}
}

// CheckInvariants reports a broken row; used by reconciliation.
func (s *RawMaterialStock) CheckInvariants() error {
	if s.QuantityUsed.IsNegative() || s.QuantityInitial.IsNegative() {
		return newError(ErrInvalidAmount, "raw_material_stock", s.ID, "negative quantity")
	}
	if s.QuantityUsed.GreaterThan(s.QuantityInitial) {
		return newQtyError(ErrQuantityExceeded, "raw_material_stock", s.ID, s.QuantityInitial, s.QuantityUsed)
	}
	return nil
}

// Rebuild recomputes initial and the quality averages from every contribution, keeping used
// (clamped to the new initial).
func (s *RawMaterialStock) Rebuild(contribs []RawMaterialContribution) error {
	used := s.QuantityUsed
	reserved := s.Status == RawMaterialStockStatusInDistillation
	s.QuantityInitial = decimal.Zero
	s.QuantityUsed = decimal.Zero
	s.HumidityAvg = decimal.Zero
	s.DesiccationAvg = decimal.Zero
	for _, c := range contribs {
		if err := s.Add(c); err != nil {
			return err
		}
	}
	s.QuantityUsed = decimal.Min(used, s.QuantityInitial)
	s.refreshStatus(reserved)
	return nil
}
