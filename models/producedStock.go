package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProducedStock is one lot of distilled product.
// QuantityInitial == QuantityAvailable + QuantityReserved + QuantityWithdrawn at all times.
type ProducedStock struct {
	ID                int                 `gorm:"primary_key" json:"id"`
	DistillationId    int                 `gorm:"uniqueIndex;not null" json:"distillation_id"`
	OwnerId           int                 `gorm:"index:idx_produced_stock_fifo;not null" json:"owner_id"`
	ProductType       string              `gorm:"index:idx_produced_stock_fifo;size:100;not null" json:"product_type"`
	LotReference      string              `gorm:"size:100;not null" json:"lot_reference"`
	SiteOfProduction  string              `gorm:"size:255" json:"site_of_production"`
	QuantityInitial   decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"quantity_initial"`
	QuantityAvailable decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"quantity_available"`
	QuantityReserved  decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"quantity_reserved"`
	QuantityWithdrawn decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"quantity_withdrawn"`
	EntryDate         time.Time           `gorm:"index:idx_produced_stock_fifo;not null" json:"entry_date"`
	ProductionDate    time.Time           `gorm:"not null" json:"production_date"`
	Status            ProducedStockStatus `gorm:"size:20;not null;default:available" json:"status"`
	Version           int                 `gorm:"not null;default:0" json:"version"`
	CreatedAt         time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewLotFromDistillation builds the lot a finished distillation produces.
func NewLotFromDistillation(d *Distillation, site string, entryDate time.Time) *ProducedStock {
	lot := &ProducedStock{
		DistillationId:    d.ID,
		OwnerId:           d.OwnerId,
		ProductType:       d.OutputMaterial,
		LotReference:      d.OutputReference,
		SiteOfProduction:  site,
		QuantityInitial:   d.OutputQty,
		QuantityAvailable: d.OutputQty,
		QuantityReserved:  decimal.Zero,
		QuantityWithdrawn: decimal.Zero,
		EntryDate:         entryDate,
		ProductionDate:    entryDate,
		Status:            ProducedStockStatusAvailable,
	}
	if d.EndDate != nil {
		lot.ProductionDate = *d.EndDate
	}
	lot.refreshStatus()
	return lot
}

// Reserve moves qty from available to reserved.
func (l *ProducedStock) Reserve(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return newQtyError(ErrInvalidAmount, "produced_stock", l.ID, l.QuantityAvailable, qty)
	}
	if qty.GreaterThan(l.QuantityAvailable) {
		return newQtyError(ErrQuantityExceeded, "produced_stock", l.ID, l.QuantityAvailable, qty)
	}
	l.QuantityAvailable = l.QuantityAvailable.Sub(qty)
	l.QuantityReserved = l.QuantityReserved.Add(qty)
	l.refreshStatus()
	return nil
}

// Release moves qty back from reserved to available.
func (l *ProducedStock) Release(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) || qty.GreaterThan(l.QuantityReserved) {
		return newQtyError(ErrInvalidAmount, "produced_stock", l.ID, l.QuantityReserved, qty)
	}
	l.QuantityReserved = l.QuantityReserved.Sub(qty)
	l.QuantityAvailable = l.QuantityAvailable.Add(qty)
	l.refreshStatus()
	return nil
}

// Withdraw moves reserved qty out of the lot for good.
func (l *ProducedStock) Withdraw(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) || qty.GreaterThan(l.QuantityReserved) {
		return newQtyError(ErrInvalidAmount, "produced_stock", l.ID, l.QuantityReserved, qty)
	}
	l.QuantityReserved = l.QuantityReserved.Sub(qty)
	l.QuantityWithdrawn = l.QuantityWithdrawn.Add(qty)
	l.refreshStatus()
	return nil
}

// refreshStatus: a lot with nothing left to reserve is depleted.
func (l *ProducedStock) refreshStatus() {
	if l.QuantityAvailable.LessThanOrEqual(decimal.Zero) {
		l.Status = ProducedStockStatusDepleted
		return
	}
	l.Status = ProducedStockStatusAvailable
}

func (l *ProducedStock) CheckInvariants() error {
	sum := l.QuantityAvailable.Add(l.QuantityReserved).Add(l.QuantityWithdrawn)
	if !sum.Equal(l.QuantityInitial) {
		return newQtyError(ErrQuantityExceeded, "produced_stock", l.ID, l.QuantityInitial, sum)
	}
	if l.QuantityAvailable.IsNegative() || l.QuantityReserved.IsNegative() || l.QuantityWithdrawn.IsNegative() {
		return newError(ErrInvalidAmount, "produced_stock", l.ID, "negative quantity")
	}
	return nil
}

// LotAllocation is one slice of a FIFO plan.
type LotAllocation struct {
	LotId    int             `json:"lot_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// PlanFIFO draws qty from lots in the given order (callers pass them oldest entry first).
func PlanFIFO(lots []*ProducedStock, qty decimal.Decimal) ([]LotAllocation, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, newQtyError(ErrInvalidAmount, "produced_stock", 0, decimal.Zero, qty)
	}
	var allocations []LotAllocation
	left := qty
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.QuantityAvailable)
		if left.LessThanOrEqual(decimal.Zero) || lot.QuantityAvailable.LessThanOrEqual(decimal.Zero) {
			continue
		}
		take := decimal.Min(left, lot.QuantityAvailable)
		allocations = append(allocations, LotAllocation{LotId: lot.ID, Quantity: take})
		left = left.Sub(take)
	}
	if left.GreaterThan(decimal.Zero) {
		return nil, newQtyError(ErrInsufficientStock, "produced_stock", 0, total, qty)
	}
	return allocations, nil
}
