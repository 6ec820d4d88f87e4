package models

import (
	"time"

	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/shopspring/decimal"
)

// Distillation is the process slot opened for one received expedition.
type Distillation struct {
	ID               int                `gorm:"primary_key" json:"id"`
	ExpeditionId     int                `gorm:"uniqueIndex;not null" json:"expedition_id"`
	OwnerId          int                `gorm:"index;not null" json:"owner_id"`
	DistillerId      int                `gorm:"index;not null" json:"distiller_id"`
	Status           DistillationStatus `gorm:"size:20;index;not null;default:pending" json:"status"`
	MaterialType     string             `gorm:"size:100;not null" json:"material_type"`
	QuantityReceived decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"quantity_received"`
	Humidity         decimal.Decimal    `gorm:"type:decimal(10,4);default:0" json:"humidity"`
	Desiccation      decimal.Decimal    `gorm:"type:decimal(10,4);default:0" json:"desiccation"`

	// start
	EquipmentId          int             `gorm:"default:null" json:"equipment_id"`
	FurnaceId            int             `gorm:"default:null" json:"furnace_id"`
	StartDate            *time.Time      `json:"start_date"`
	TargetWeight         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"target_weight"`
	PlannedDurationHours decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"planned_duration_hours"`
	FuelQty              decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fuel_qty"`
	FuelPrice            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fuel_price"`
	WoodQty              decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"wood_qty"`
	WoodPrice            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"wood_price"`
	WorkerCount          int             `gorm:"default:0" json:"worker_count"`
	HoursPerWorker       decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"hours_per_worker"`
	RatePerHour          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate_per_hour"`
	TotalCost            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_cost"`
	ReservedQty          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reserved_qty"`

	// completion
	OutputReference string          `gorm:"size:100" json:"output_reference"`
	OutputMaterial  string          `gorm:"size:100" json:"output_material"`
	OutputQty       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"output_qty"`
	ProcessedQty    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"processed_qty"`
	EndDate         *time.Time      `json:"end_date"`
	Yield           decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"yield"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type StartDistillationParams struct {
	EquipmentId          int             `validate:"required,min=1"`
	FurnaceId            int             `validate:"min=0"`
	StartDate            time.Time       `validate:"required"`
	TargetWeight         decimal.Decimal `validate:"-"`
	PlannedDurationHours decimal.Decimal `validate:"-"`
	FuelQty              decimal.Decimal `validate:"-"`
	FuelPrice            decimal.Decimal `validate:"-"`
	WoodQty              decimal.Decimal `validate:"-"`
	WoodPrice            decimal.Decimal `validate:"-"`
	WorkerCount          int             `validate:"min=0"`
	HoursPerWorker       decimal.Decimal `validate:"-"`
	RatePerHour          decimal.Decimal `validate:"-"`
	// ProcessedQty is the raw quantity put in the still; zero means everything received.
	ProcessedQty decimal.Decimal `validate:"-"`
}

type FinishDistillationParams struct {
	OutputReference  string          `validate:"required,max=100"`
	OutputMaterial   string          `validate:"required,max=100"`
	OutputQty        decimal.Decimal `validate:"-"`
	ProcessedQty     decimal.Decimal `validate:"-"`
	EndDate          time.Time       `validate:"required"`
	SiteOfProduction string          `validate:"max=255"`
}

// TotalCost = wood + fuel + labour.
func (p StartDistillationParams) TotalCost() decimal.Decimal {
	wood := p.WoodQty.Mul(p.WoodPrice)
	fuel := p.FuelQty.Mul(p.FuelPrice)
	labour := decimal.NewFromInt(int64(p.WorkerCount)).Mul(p.HoursPerWorker).Mul(p.RatePerHour)
	return wood.Add(fuel).Add(labour)
}

func (p StartDistillationParams) validateAmounts() error {
	for name, v := range map[string]decimal.Decimal{
		"target_weight":          p.TargetWeight,
		"planned_duration_hours": p.PlannedDurationHours,
		"fuel_qty":               p.FuelQty,
		"fuel_price":             p.FuelPrice,
		"wood_qty":               p.WoodQty,
		"wood_price":             p.WoodPrice,
		"hours_per_worker":       p.HoursPerWorker,
		"rate_per_hour":          p.RatePerHour,
		"processed_qty":          p.ProcessedQty,
	} {
		if v.IsNegative() {
			return NewInvalidInput("distillation", name+" cannot be negative")
		}
	}
	return nil
}

// Validate checks tags and decimal bounds of the start parameters.
func (p StartDistillationParams) Validate() error {
	if err := utils.ValidateStruct(p); err != nil {
		return NewInvalidInput("distillation", err.Error())
	}
	return p.validateAmounts()
}

func (p FinishDistillationParams) Validate() error {
	if err := utils.ValidateStruct(p); err != nil {
		return NewInvalidInput("distillation", err.Error())
	}
	if p.OutputQty.IsNegative() || p.ProcessedQty.IsNegative() {
		return NewInvalidInput("distillation", "quantities cannot be negative")
	}
	return nil
}

// Start moves pending -> in_progress and stores the start fields.
func (d *Distillation) Start(p StartDistillationParams, reservedQty decimal.Decimal) error {
	if d.Status != DistillationStatusPending {
		return NewInvalidState("distillation", d.ID, string(d.Status), "start")
	}
	start := p.StartDate
	d.EquipmentId = p.EquipmentId
	d.FurnaceId = p.FurnaceId
	d.StartDate = &start
	d.TargetWeight = p.TargetWeight
	d.PlannedDurationHours = p.PlannedDurationHours
	d.FuelQty = p.FuelQty
	d.FuelPrice = p.FuelPrice
	d.WoodQty = p.WoodQty
	d.WoodPrice = p.WoodPrice
	d.WorkerCount = p.WorkerCount
	d.HoursPerWorker = p.HoursPerWorker
	d.RatePerHour = p.RatePerHour
	d.TotalCost = p.TotalCost()
	d.ReservedQty = reservedQty
	d.Status = DistillationStatusInProgress
	return nil
}

// Finish moves in_progress -> done and computes the yield.
func (d *Distillation) Finish(p FinishDistillationParams) error {
	if d.Status != DistillationStatusInProgress {
		return NewInvalidState("distillation", d.ID, string(d.Status), "finish")
	}
	end := p.EndDate
	d.OutputReference = p.OutputReference
	d.OutputMaterial = p.OutputMaterial
	d.OutputQty = p.OutputQty
	d.ProcessedQty = p.ProcessedQty
	d.EndDate = &end
	d.Yield = utils.Percentage(p.OutputQty, p.ProcessedQty)
	d.Status = DistillationStatusDone
	return nil
}

// ResetToPending undoes a start: clears the start fields and returns to pending.
func (d *Distillation) ResetToPending() error {
	if d.Status != DistillationStatusInProgress {
		return NewInvalidState("distillation", d.ID, string(d.Status), "cancel")
	}
	d.EquipmentId = 0
	d.FurnaceId = 0
	d.StartDate = nil
	d.TargetWeight = decimal.Zero
	d.PlannedDurationHours = decimal.Zero
	d.FuelQty = decimal.Zero
	d.FuelPrice = decimal.Zero
	d.WoodQty = decimal.Zero
	d.WoodPrice = decimal.Zero
	d.WorkerCount = 0
	d.HoursPerWorker = decimal.Zero
	d.RatePerHour = decimal.Zero
	d.TotalCost = decimal.Zero
	d.ReservedQty = decimal.Zero
	d.Status = DistillationStatusPending
	return nil
}
