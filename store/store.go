package store

import (
	"context"

	"github.com/mmdatafocus/distillery_backend/models"
)

// Store is the persistence port used by the workflows.
// forUpdate asks the adapter to hold a row lock until the surrounding transaction ends.
// Getters return models.ErrNotFound (wrapped) when the row is missing.
type Store interface {
	// Transaction runs fn atomically; fn receives a Store bound to the transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	FirstOrCreateBalanceUser(ctx context.Context, ownerId int, forUpdate bool) (*models.BalanceUser, error)
	SaveBalanceUser(ctx context.Context, balance *models.BalanceUser) error
	CreateBalanceHistory(ctx context.Context, history *models.BalanceHistory) error
	BalanceHistoryReferenceExists(ctx context.Context, reference string) (bool, error)
	ListBalanceHistories(ctx context.Context, ownerId int) ([]*models.BalanceHistory, error)

	// FirstOrCreateRawMaterialStock always locks the row.
	FirstOrCreateRawMaterialStock(ctx context.Context, distillerId int, materialType string) (*models.RawMaterialStock, error)
	GetRawMaterialStock(ctx context.Context, distillerId int, materialType string, forUpdate bool) (*models.RawMaterialStock, error)
	SaveRawMaterialStock(ctx context.Context, stock *models.RawMaterialStock) error
	// ListRawMaterialStocks lists every row when distillerId is 0.
	ListRawMaterialStocks(ctx context.Context, distillerId int) ([]*models.RawMaterialStock, error)

	CreateExpedition(ctx context.Context, expedition *models.Expedition) error
	GetExpedition(ctx context.Context, id int, forUpdate bool) (*models.Expedition, error)
	SaveExpedition(ctx context.Context, expedition *models.Expedition) error
	// ListReceivedExpeditions filters on distiller and material type when they are set.
	ListReceivedExpeditions(ctx context.Context, distillerId int, materialType string) ([]*models.Expedition, error)

	CreateDistillation(ctx context.Context, distillation *models.Distillation) error
	GetDistillation(ctx context.Context, id int, forUpdate bool) (*models.Distillation, error)
	GetDistillationByExpedition(ctx context.Context, expeditionId int, forUpdate bool) (*models.Distillation, error)
	SaveDistillation(ctx context.Context, distillation *models.Distillation) error
	DeleteDistillation(ctx context.Context, id int) error
	ListDistillations(ctx context.Context, ownerId int, status models.DistillationStatus) ([]*models.Distillation, error)

	CreateProducedStock(ctx context.Context, lot *models.ProducedStock) error
	GetProducedStock(ctx context.Context, id int, forUpdate bool) (*models.ProducedStock, error)
	GetProducedStockByDistillation(ctx context.Context, distillationId int, forUpdate bool) (*models.ProducedStock, error)
	SaveProducedStock(ctx context.Context, lot *models.ProducedStock) error
	// ListProducedStocks returns lots oldest entry first (entry date, then id).
	ListProducedStocks(ctx context.Context, filter LotFilter, forUpdate bool) ([]*models.ProducedStock, error)

	CreateTransport(ctx context.Context, transport *models.Transport) error
	GetTransport(ctx context.Context, id int, forUpdate bool) (*models.Transport, error)
	GetTransportByDistillation(ctx context.Context, distillationId int, forUpdate bool) (*models.Transport, error)
	SaveTransport(ctx context.Context, transport *models.Transport) error

	CreateSalesReception(ctx context.Context, reception *models.SalesReception) error
	GetSalesReception(ctx context.Context, id int, forUpdate bool) (*models.SalesReception, error)
	GetSalesReceptionBySource(ctx context.Context, sourceType models.SalesReceptionSourceType, sourceId int, forUpdate bool) (*models.SalesReception, error)
	SaveSalesReception(ctx context.Context, reception *models.SalesReception) error
}

// LotFilter narrows ListProducedStocks; zero values match everything.
type LotFilter struct {
	OwnerId       int
	ProductType   string
	AvailableOnly bool
}
