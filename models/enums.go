package models

type BalanceMovementKind string

const (
	BalanceMovementDebit  BalanceMovementKind = "debit"
	BalanceMovementCredit BalanceMovementKind = "credit"
)

type RawMaterialStockStatus string

const (
	RawMaterialStockStatusAvailable      RawMaterialStockStatus = "available"
	RawMaterialStockStatusInDistillation RawMaterialStockStatus = "in_distillation"
	RawMaterialStockStatusDepleted       RawMaterialStockStatus = "depleted"
)

type DistillationStatus string

const (
	DistillationStatusPending    DistillationStatus = "pending"
	DistillationStatusInProgress DistillationStatus = "in_progress"
	DistillationStatusDone       DistillationStatus = "done"
)

type ProducedStockStatus string

const (
	ProducedStockStatusAvailable ProducedStockStatus = "available"
	ProducedStockStatusDepleted  ProducedStockStatus = "depleted"
)

type ExpeditionStatus string

const (
	ExpeditionStatusPending  ExpeditionStatus = "pending"
	ExpeditionStatusReceived ExpeditionStatus = "received"
)

type TransportStatus string

const (
	TransportStatusInTransit TransportStatus = "in_transit"
	TransportStatusDelivered TransportStatus = "delivered"
)

type SalesReceptionStatus string

const (
	SalesReceptionStatusPending   SalesReceptionStatus = "pending"
	SalesReceptionStatusReceived  SalesReceptionStatus = "received"
	SalesReceptionStatusCancelled SalesReceptionStatus = "cancelled"
)

type SalesReceptionSourceType string

const (
	SalesReceptionSourceExpedition SalesReceptionSourceType = "expedition"
	SalesReceptionSourceTransport  SalesReceptionSourceType = "transport"
)

// reference types stored on balance audit rows
const (
	BalanceReferenceDistillation       = "distillation"
	BalanceReferenceDistillationCancel = "distillation_cancel"
	BalanceReferenceManual             = "manual"
)
