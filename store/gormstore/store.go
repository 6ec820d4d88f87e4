package gormstore

import (
	"context"
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the MySQL adapter of store.Store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) query(ctx context.Context, forUpdate bool) *gorm.DB {
	q := s.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// translate maps driver errors onto the model sentinels.
func translate(err error, entity string, id int) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.NewNotFound(entity, id)
	case isDuplicateKeyErr(err):
		return fmt.Errorf("%w: %s: %v", models.ErrDuplicateKey, entity, err)
	}
	return err
}

// saveVersioned writes every column of a versioned row if nobody else bumped the version meanwhile.
func saveVersioned(db *gorm.DB, entity string, id int, version *int, value interface{}) error {
	old := *version
	*version = old + 1
	result := db.Model(value).Where("version = ?", old).Select("*").Omit("created_at").Updates(value)
	if result.Error != nil {
		*version = old
		return translate(result.Error, entity, id)
	}
	if result.RowsAffected == 0 {
		*version = old
		return models.NewConcurrentUpdate(entity, id)
	}
	return nil
}

// balance

func (s *Store) FirstOrCreateBalanceUser(ctx context.Context, ownerId int, forUpdate bool) (*models.BalanceUser, error) {
	var balance models.BalanceUser
	err := s.query(ctx, forUpdate).Where("owner_id = ?", ownerId).First(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	balance = models.BalanceUser{OwnerId: ownerId}
	err = s.db.WithContext(ctx).Create(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !isDuplicateKeyErr(err) {
		return nil, err
	}
	// created concurrently by another transaction
	balance = models.BalanceUser{}
	if err := s.query(ctx, forUpdate).Where("owner_id = ?", ownerId).First(&balance).Error; err != nil {
		return nil, translate(err, "balance", ownerId)
	}
	return &balance, nil
}

func (s *Store) SaveBalanceUser(ctx context.Context, balance *models.BalanceUser) error {
	return saveVersioned(s.db.WithContext(ctx), "balance", balance.OwnerId, &balance.Version, balance)
}

func (s *Store) CreateBalanceHistory(ctx context.Context, history *models.BalanceHistory) error {
	return translate(s.db.WithContext(ctx).Create(history).Error, "balance_history", history.OwnerId)
}

func (s *Store) BalanceHistoryReferenceExists(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.BalanceHistory{}).Where("reference = ?", reference).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListBalanceHistories(ctx context.Context, ownerId int) ([]*models.BalanceHistory, error) {
	var histories []*models.BalanceHistory
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerId).Order("created_at DESC, id DESC").Find(&histories).Error
	return histories, err
}

// raw material stock

func (s *Store) FirstOrCreateRawMaterialStock(ctx context.Context, distillerId int, materialType string) (*models.RawMaterialStock, error) {
	stock, err := s.GetRawMaterialStock(ctx, distillerId, materialType, true)
	if err == nil {
		return stock, nil
	}
	if !models.IsNotFound(err) {
		return nil, err
	}
	stock = models.NewRawMaterialStock(distillerId, materialType)
	err = s.db.WithContext(ctx).Create(stock).Error
	if err == nil {
		return stock, nil
	}
	if !isDuplicateKeyErr(err) {
		return nil, err
	}
	return s.GetRawMaterialStock(ctx, distillerId, materialType, true)
}

func (s *Store) GetRawMaterialStock(ctx context.Context, distillerId int, materialType string, forUpdate bool) (*models.RawMaterialStock, error) {
	var stock models.RawMaterialStock
	err := s.query(ctx, forUpdate).
		Where("distiller_id = ? AND material_type = ?", distillerId, materialType).
		First(&stock).Error
	if err != nil {
		return nil, translate(err, "raw_material_stock", distillerId)
	}
	return &stock, nil
}

func (s *Store) SaveRawMaterialStock(ctx context.Context, stock *models.RawMaterialStock) error {
	return saveVersioned(s.db.WithContext(ctx), "raw_material_stock", stock.ID, &stock.Version, stock)
}

func (s *Store) ListRawMaterialStocks(ctx context.Context, distillerId int) ([]*models.RawMaterialStock, error) {
	var stocks []*models.RawMaterialStock
	q := s.db.WithContext(ctx)
	if distillerId > 0 {
		q = q.Where("distiller_id = ?", distillerId)
	}
	err := q.Order("distiller_id, material_type").Find(&stocks).Error
	return stocks, err
}

// expedition

func (s *Store) CreateExpedition(ctx context.Context, expedition *models.Expedition) error {
	return translate(s.db.WithContext(ctx).Create(expedition).Error, "expedition", expedition.ID)
}

func (s *Store) GetExpedition(ctx context.Context, id int, forUpdate bool) (*models.Expedition, error) {
	var expedition models.Expedition
	if err := s.query(ctx, forUpdate).First(&expedition, id).Error; err != nil {
		return nil, translate(err, "expedition", id)
	}
	return &expedition, nil
}

func (s *Store) SaveExpedition(ctx context.Context, expedition *models.Expedition) error {
	return translate(s.db.WithContext(ctx).Save(expedition).Error, "expedition", expedition.ID)
}

func (s *Store) ListReceivedExpeditions(ctx context.Context, distillerId int, materialType string) ([]*models.Expedition, error) {
	var expeditions []*models.Expedition
	q := s.db.WithContext(ctx).Where("status = ?", models.ExpeditionStatusReceived)
	if distillerId > 0 {
		q = q.Where("distiller_id = ?", distillerId)
	}
	if materialType != "" {
		q = q.Where("material_type = ?", materialType)
	}
	err := q.Order("received_date, id").Find(&expeditions).Error
	return expeditions, err
}

// distillation

func (s *Store) CreateDistillation(ctx context.Context, distillation *models.Distillation) error {
	return translate(s.db.WithContext(ctx).Create(distillation).Error, "distillation", distillation.ExpeditionId)
}

func (s *Store) GetDistillation(ctx context.Context, id int, forUpdate bool) (*models.Distillation, error) {
	var distillation models.Distillation
	if err := s.query(ctx, forUpdate).First(&distillation, id).Error; err != nil {
		return nil, translate(err, "distillation", id)
	}
	return &distillation, nil
}

func (s *Store) GetDistillationByExpedition(ctx context.Context, expeditionId int, forUpdate bool) (*models.Distillation, error) {
	var distillation models.Distillation
	if err := s.query(ctx, forUpdate).Where("expedition_id = ?", expeditionId).First(&distillation).Error; err != nil {
		return nil, translate(err, "distillation", 0)
	}
	return &distillation, nil
}

func (s *Store) SaveDistillation(ctx context.Context, distillation *models.Distillation) error {
	return translate(s.db.WithContext(ctx).Save(distillation).Error, "distillation", distillation.ID)
}

func (s *Store) DeleteDistillation(ctx context.Context, id int) error {
	result := s.db.WithContext(ctx).Delete(&models.Distillation{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.NewNotFound("distillation", id)
	}
	return nil
}

func (s *Store) ListDistillations(ctx context.Context, ownerId int, status models.DistillationStatus) ([]*models.Distillation, error) {
	var distillations []*models.Distillation
	q := s.db.WithContext(ctx)
	if ownerId > 0 {
		q = q.Where("owner_id = ?", ownerId)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("id").Find(&distillations).Error
	return distillations, err
}

// produced stock

func (s *Store) CreateProducedStock(ctx context.Context, lot *models.ProducedStock) error {
	return translate(s.db.WithContext(ctx).Create(lot).Error, "produced_stock", lot.DistillationId)
}

func (s *Store) GetProducedStock(ctx context.Context, id int, forUpdate bool) (*models.ProducedStock, error) {
	var lot models.ProducedStock
	if err := s.query(ctx, forUpdate).First(&lot, id).Error; err != nil {
		return nil, translate(err, "produced_stock", id)
	}
	return &lot, nil
}

func (s *Store) GetProducedStockByDistillation(ctx context.Context, distillationId int, forUpdate bool) (*models.ProducedStock, error) {
	var lot models.ProducedStock
	if err := s.query(ctx, forUpdate).Where("distillation_id = ?", distillationId).First(&lot).Error; err != nil {
		return nil, translate(err, "produced_stock", 0)
	}
	return &lot, nil
}

func (s *Store) SaveProducedStock(ctx context.Context, lot *models.ProducedStock) error {
	return saveVersioned(s.db.WithContext(ctx), "produced_stock", lot.ID, &lot.Version, lot)
}

func (s *Store) ListProducedStocks(ctx context.Context, filter store.LotFilter, forUpdate bool) ([]*models.ProducedStock, error) {
	var lots []*models.ProducedStock
	q := s.query(ctx, forUpdate)
	if filter.OwnerId > 0 {
		q = q.Where("owner_id = ?", filter.OwnerId)
	}
	if filter.ProductType != "" {
		q = q.Where("product_type = ?", filter.ProductType)
	}
	if filter.AvailableOnly {
		q = q.Where("quantity_available > 0")
	}
	err := q.Order("entry_date, id").Find(&lots).Error
	return lots, err
}

// transport

func (s *Store) CreateTransport(ctx context.Context, transport *models.Transport) error {
	err := s.db.WithContext(ctx).Create(transport).Error
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("%w: distillation #%d", models.ErrDuplicateTransport, transport.DistillationId)
	}
	return translate(err, "transport", transport.ID)
}

func (s *Store) GetTransport(ctx context.Context, id int, forUpdate bool) (*models.Transport, error) {
	var transport models.Transport
	if err := s.query(ctx, forUpdate).First(&transport, id).Error; err != nil {
		return nil, translate(err, "transport", id)
	}
	return &transport, nil
}

func (s *Store) GetTransportByDistillation(ctx context.Context, distillationId int, forUpdate bool) (*models.Transport, error) {
	var transport models.Transport
	if err := s.query(ctx, forUpdate).Where("distillation_id = ?", distillationId).First(&transport).Error; err != nil {
		return nil, translate(err, "transport", 0)
	}
	return &transport, nil
}

func (s *Store) SaveTransport(ctx context.Context, transport *models.Transport) error {
	return translate(s.db.WithContext(ctx).Save(transport).Error, "transport", transport.ID)
}

// sales reception

func (s *Store) CreateSalesReception(ctx context.Context, reception *models.SalesReception) error {
	err := s.db.WithContext(ctx).Create(reception).Error
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %s #%d", models.ErrDuplicateReception, reception.SourceType, reception.SourceId)
	}
	return translate(err, "sales_reception", reception.ID)
}

func (s *Store) GetSalesReception(ctx context.Context, id int, forUpdate bool) (*models.SalesReception, error) {
	var reception models.SalesReception
	if err := s.query(ctx, forUpdate).First(&reception, id).Error; err != nil {
		return nil, translate(err, "sales_reception", id)
	}
	return &reception, nil
}

func (s *Store) GetSalesReceptionBySource(ctx context.Context, sourceType models.SalesReceptionSourceType, sourceId int, forUpdate bool) (*models.SalesReception, error) {
	var reception models.SalesReception
	err := s.query(ctx, forUpdate).
		Where("source_type = ? AND source_id = ?", sourceType, sourceId).
		First(&reception).Error
	if err != nil {
		return nil, translate(err, "sales_reception", 0)
	}
	return &reception, nil
}

func (s *Store) SaveSalesReception(ctx context.Context, reception *models.SalesReception) error {
	return translate(s.db.WithContext(ctx).Save(reception).Error, "sales_reception", reception.ID)
}
