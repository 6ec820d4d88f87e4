package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
)

// Store keeps everything in maps behind one mutex. A transaction holds the mutex for its whole
// duration and restores a snapshot when fn fails. Rows are copied in and out.
type Store struct {
	mu   *sync.Mutex
	data *tables
	inTx bool
}

var _ store.Store = (*Store)(nil)

type tables struct {
	lastId        int
	balances      map[int]*models.BalanceUser
	histories     map[int]*models.BalanceHistory
	rawStocks     map[int]*models.RawMaterialStock
	expeditions   map[int]*models.Expedition
	distillations map[int]*models.Distillation
	lots          map[int]*models.ProducedStock
	transports    map[int]*models.Transport
	receptions    map[int]*models.SalesReception
}

func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		data: &tables{
			balances:      map[int]*models.BalanceUser{},
			histories:     map[int]*models.BalanceHistory{},
			rawStocks:     map[int]*models.RawMaterialStock{},
			expeditions:   map[int]*models.Expedition{},
			distillations: map[int]*models.Distillation{},
			lots:          map[int]*models.ProducedStock{},
			transports:    map[int]*models.Transport{},
			receptions:    map[int]*models.SalesReception{},
		},
	}
}

func cloneMap[T any](m map[int]*T) map[int]*T {
	out := make(map[int]*T, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

func (t *tables) clone() *tables {
	return &tables{
		lastId:        t.lastId,
		balances:      cloneMap(t.balances),
		histories:     cloneMap(t.histories),
		rawStocks:     cloneMap(t.rawStocks),
		expeditions:   cloneMap(t.expeditions),
		distillations: cloneMap(t.distillations),
		lots:          cloneMap(t.lots),
		transports:    cloneMap(t.transports),
		receptions:    cloneMap(t.receptions),
	}
}

func (t *tables) nextId() int {
	t.lastId++
	return t.lastId
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lock()
	defer unlock()

	snapshot := s.data.clone()
	if err := fn(&Store{mu: s.mu, data: s.data, inTx: true}); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

// lock is a no-op inside a transaction, which already holds the mutex.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func duplicate(entity string, key any) error {
	return fmt.Errorf("%w: %s %v", models.ErrDuplicateKey, entity, key)
}

func copyOf[T any](v *T) *T {
	c := *v
	return &c
}

func findOne[T any](m map[int]*T, match func(*T) bool) *T {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if match(m[id]) {
			return m[id]
		}
	}
	return nil
}

func findAll[T any](m map[int]*T, match func(*T) bool) []*T {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []*T
	for _, id := range ids {
		if match(m[id]) {
			out = append(out, copyOf(m[id]))
		}
	}
	return out
}

// balance

func (s *Store) FirstOrCreateBalanceUser(ctx context.Context, ownerId int, forUpdate bool) (*models.BalanceUser, error) {
	defer s.lock()()
	if b := findOne(s.data.balances, func(b *models.BalanceUser) bool { return b.OwnerId == ownerId }); b != nil {
		return copyOf(b), nil
	}
	now := time.Now()
	b := &models.BalanceUser{ID: s.data.nextId(), OwnerId: ownerId, CreatedAt: now, UpdatedAt: now}
	s.data.balances[b.ID] = b
	return copyOf(b), nil
}

func (s *Store) SaveBalanceUser(ctx context.Context, balance *models.BalanceUser) error {
	defer s.lock()()
	current, ok := s.data.balances[balance.ID]
	if !ok {
		return models.NewNotFound("balance", balance.OwnerId)
	}
	if current.Version != balance.Version {
		return models.NewConcurrentUpdate("balance", balance.OwnerId)
	}
	balance.Version++
	balance.UpdatedAt = time.Now()
	s.data.balances[balance.ID] = copyOf(balance)
	return nil
}

func (s *Store) CreateBalanceHistory(ctx context.Context, history *models.BalanceHistory) error {
	defer s.lock()()
	if findOne(s.data.histories, func(h *models.BalanceHistory) bool { return h.Reference == history.Reference }) != nil {
		return duplicate("balance_history", history.Reference)
	}
	history.ID = s.data.nextId()
	history.CreatedAt = time.Now()
	s.data.histories[history.ID] = copyOf(history)
	return nil
}

func (s *Store) BalanceHistoryReferenceExists(ctx context.Context, reference string) (bool, error) {
	defer s.lock()()
	return findOne(s.data.histories, func(h *models.BalanceHistory) bool { return h.Reference == reference }) != nil, nil
}

func (s *Store) ListBalanceHistories(ctx context.Context, ownerId int) ([]*models.BalanceHistory, error) {
	defer s.lock()()
	histories := findAll(s.data.histories, func(h *models.BalanceHistory) bool { return h.OwnerId == ownerId })
	// newest first; ids grow monotonically
	sort.Slice(histories, func(i, j int) bool { return histories[i].ID > histories[j].ID })
	return histories, nil
}

// raw material stock

func (s *Store) FirstOrCreateRawMaterialStock(ctx context.Context, distillerId int, materialType string) (*models.RawMaterialStock, error) {
	defer s.lock()()
	if stock := s.findRawStock(distillerId, materialType); stock != nil {
		return copyOf(stock), nil
	}
	stock := models.NewRawMaterialStock(distillerId, materialType)
	stock.ID = s.data.nextId()
	stock.CreatedAt = time.Now()
	stock.UpdatedAt = stock.CreatedAt
	s.data.rawStocks[stock.ID] = stock
	return copyOf(stock), nil
}

func (s *Store) findRawStock(distillerId int, materialType string) *models.RawMaterialStock {
	return findOne(s.data.rawStocks, func(r *models.RawMaterialStock) bool {
		return r.DistillerId == distillerId && r.MaterialType == materialType
	})
}

func (s *Store) GetRawMaterialStock(ctx context.Context, distillerId int, materialType string, forUpdate bool) (*models.RawMaterialStock, error) {
	defer s.lock()()
	stock := s.findRawStock(distillerId, materialType)
	if stock == nil {
		return nil, models.NewNotFound("raw_material_stock", distillerId)
	}
	return copyOf(stock), nil
}

func (s *Store) SaveRawMaterialStock(ctx context.Context, stock *models.RawMaterialStock) error {
	defer s.lock()()
	current, ok := s.data.rawStocks[stock.ID]
	if !ok {
		return models.NewNotFound("raw_material_stock", stock.ID)
	}
	if current.Version != stock.Version {
		return models.NewConcurrentUpdate("raw_material_stock", stock.ID)
	}
	stock.Version++
	stock.UpdatedAt = time.Now()
	s.data.rawStocks[stock.ID] = copyOf(stock)
	return nil
}

func (s *Store) ListRawMaterialStocks(ctx context.Context, distillerId int) ([]*models.RawMaterialStock, error) {
	defer s.lock()()
	return findAll(s.data.rawStocks, func(r *models.RawMaterialStock) bool {
		return distillerId == 0 || r.DistillerId == distillerId
	}), nil
}

// expedition

func (s *Store) CreateExpedition(ctx context.Context, expedition *models.Expedition) error {
	defer s.lock()()
	expedition.ID = s.data.nextId()
	expedition.CreatedAt = time.Now()
	expedition.UpdatedAt = expedition.CreatedAt
	s.data.expeditions[expedition.ID] = copyOf(expedition)
	return nil
}

func (s *Store) GetExpedition(ctx context.Context, id int, forUpdate bool) (*models.Expedition, error) {
	defer s.lock()()
	expedition, ok := s.data.expeditions[id]
	if !ok {
		return nil, models.NewNotFound("expedition", id)
	}
	return copyOf(expedition), nil
}

func (s *Store) SaveExpedition(ctx context.Context, expedition *models.Expedition) error {
	defer s.lock()()
	if _, ok := s.data.expeditions[expedition.ID]; !ok {
		return models.NewNotFound("expedition", expedition.ID)
	}
	expedition.UpdatedAt = time.Now()
	s.data.expeditions[expedition.ID] = copyOf(expedition)
	return nil
}

func (s *Store) ListReceivedExpeditions(ctx context.Context, distillerId int, materialType string) ([]*models.Expedition, error) {
	defer s.lock()()
	return findAll(s.data.expeditions, func(e *models.Expedition) bool {
		return e.Status == models.ExpeditionStatusReceived &&
			(distillerId == 0 || e.DistillerId == distillerId) &&
			(materialType == "" || e.MaterialType == materialType)
	}), nil
}

// distillation

func (s *Store) CreateDistillation(ctx context.Context, distillation *models.Distillation) error {
	defer s.lock()()
	exists := findOne(s.data.distillations, func(d *models.Distillation) bool {
		return d.ExpeditionId == distillation.ExpeditionId
	})
	if exists != nil {
		return duplicate("distillation", distillation.ExpeditionId)
	}
	distillation.ID = s.data.nextId()
	distillation.CreatedAt = time.Now()
	distillation.UpdatedAt = distillation.CreatedAt
	s.data.distillations[distillation.ID] = copyOf(distillation)
	return nil
}

func (s *Store) GetDistillation(ctx context.Context, id int, forUpdate bool) (*models.Distillation, error) {
	defer s.lock()()
	distillation, ok := s.data.distillations[id]
	if !ok {
		return nil, models.NewNotFound("distillation", id)
	}
	return copyOf(distillation), nil
}

func (s *Store) GetDistillationByExpedition(ctx context.Context, expeditionId int, forUpdate bool) (*models.Distillation, error) {
	defer s.lock()()
	distillation := findOne(s.data.distillations, func(d *models.Distillation) bool { return d.ExpeditionId == expeditionId })
	if distillation == nil {
		return nil, models.NewNotFound("distillation", 0)
	}
	return copyOf(distillation), nil
}

func (s *Store) SaveDistillation(ctx context.Context, distillation *models.Distillation) error {
	defer s.lock()()
	if _, ok := s.data.distillations[distillation.ID]; !ok {
		return models.NewNotFound("distillation", distillation.ID)
	}
	distillation.UpdatedAt = time.Now()
	s.data.distillations[distillation.ID] = copyOf(distillation)
	return nil
}

func (s *Store) DeleteDistillation(ctx context.Context, id int) error {
	defer s.lock()()
	if _, ok := s.data.distillations[id]; !ok {
		return models.NewNotFound("distillation", id)
	}
	delete(s.data.distillations, id)
	return nil
}

func (s *Store) ListDistillations(ctx context.Context, ownerId int, status models.DistillationStatus) ([]*models.Distillation, error) {
	defer s.lock()()
	return findAll(s.data.distillations, func(d *models.Distillation) bool {
		return (ownerId == 0 || d.OwnerId == ownerId) && (status == "" || d.Status == status)
	}), nil
}

// produced stock

func (s *Store) CreateProducedStock(ctx context.Context, lot *models.ProducedStock) error {
	defer s.lock()()
	exists := findOne(s.data.lots, func(l *models.ProducedStock) bool { return l.DistillationId == lot.DistillationId })
	if exists != nil {
		return duplicate("produced_stock", lot.DistillationId)
	}
	lot.ID = s.data.nextId()
	lot.CreatedAt = time.Now()
	lot.UpdatedAt = lot.CreatedAt
	s.data.lots[lot.ID] = copyOf(lot)
	return nil
}

func (s *Store) GetProducedStock(ctx context.Context, id int, forUpdate bool) (*models.ProducedStock, error) {
	defer s.lock()()
	lot, ok := s.data.lots[id]
	if !ok {
		return nil, models.NewNotFound("produced_stock", id)
	}
	return copyOf(lot), nil
}

func (s *Store) GetProducedStockByDistillation(ctx context.Context, distillationId int, forUpdate bool) (*models.ProducedStock, error) {
	defer s.lock()()
	lot := findOne(s.data.lots, func(l *models.ProducedStock) bool { return l.DistillationId == distillationId })
	if lot == nil {
		return nil, models.NewNotFound("produced_stock", 0)
	}
	return copyOf(lot), nil
}

func (s *Store) SaveProducedStock(ctx context.Context, lot *models.ProducedStock) error {
	defer s.lock()()
	current, ok := s.data.lots[lot.ID]
	if !ok {
		return models.NewNotFound("produced_stock", lot.ID)
	}
	if current.Version != lot.Version {
		return models.NewConcurrentUpdate("produced_stock", lot.ID)
	}
	lot.Version++
	lot.UpdatedAt = time.Now()
	s.data.lots[lot.ID] = copyOf(lot)
	return nil
}

func (s *Store) ListProducedStocks(ctx context.Context, filter store.LotFilter, forUpdate bool) ([]*models.ProducedStock, error) {
	defer s.lock()()
	lots := findAll(s.data.lots, func(l *models.ProducedStock) bool {
		return (filter.OwnerId == 0 || l.OwnerId == filter.OwnerId) &&
			(filter.ProductType == "" || l.ProductType == filter.ProductType) &&
			(!filter.AvailableOnly || l.QuantityAvailable.IsPositive())
	})
	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].EntryDate.Equal(lots[j].EntryDate) {
			return lots[i].EntryDate.Before(lots[j].EntryDate)
		}
		return lots[i].ID < lots[j].ID
	})
	return lots, nil
}

// transport

func (s *Store) CreateTransport(ctx context.Context, transport *models.Transport) error {
	defer s.lock()()
	exists := findOne(s.data.transports, func(t *models.Transport) bool { return t.DistillationId == transport.DistillationId })
	if exists != nil {
		return fmt.Errorf("%w: distillation #%d", models.ErrDuplicateTransport, transport.DistillationId)
	}
	transport.ID = s.data.nextId()
	transport.CreatedAt = time.Now()
	transport.UpdatedAt = transport.CreatedAt
	s.data.transports[transport.ID] = copyOf(transport)
	return nil
}

func (s *Store) GetTransport(ctx context.Context, id int, forUpdate bool) (*models.Transport, error) {
	defer s.lock()()
	transport, ok := s.data.transports[id]
	if !ok {
		return nil, models.NewNotFound("transport", id)
	}
	return copyOf(transport), nil
}

func (s *Store) GetTransportByDistillation(ctx context.Context, distillationId int, forUpdate bool) (*models.Transport, error) {
	defer s.lock()()
	transport := findOne(s.data.transports, func(t *models.Transport) bool { return t.DistillationId == distillationId })
	if transport == nil {
		return nil, models.NewNotFound("transport", 0)
	}
	return copyOf(transport), nil
}

func (s *Store) SaveTransport(ctx context.Context, transport *models.Transport) error {
	defer s.lock()()
	if _, ok := s.data.transports[transport.ID]; !ok {
		return models.NewNotFound("transport", transport.ID)
	}
	transport.UpdatedAt = time.Now()
	s.data.transports[transport.ID] = copyOf(transport)
	return nil
}

// sales reception

func (s *Store) CreateSalesReception(ctx context.Context, reception *models.SalesReception) error {
	defer s.lock()()
	exists := findOne(s.data.receptions, func(r *models.SalesReception) bool {
		return r.SourceType == reception.SourceType && r.SourceId == reception.SourceId
	})
	if exists != nil {
		return fmt.Errorf("%w: %s #%d", models.ErrDuplicateReception, reception.SourceType, reception.SourceId)
	}
	reception.ID = s.data.nextId()
	reception.CreatedAt = time.Now()
	reception.UpdatedAt = reception.CreatedAt
	s.data.receptions[reception.ID] = copyOf(reception)
	return nil
}

func (s *Store) GetSalesReception(ctx context.Context, id int, forUpdate bool) (*models.SalesReception, error) {
	defer s.lock()()
	reception, ok := s.data.receptions[id]
	if !ok {
		return nil, models.NewNotFound("sales_reception", id)
	}
	return copyOf(reception), nil
}

func (s *Store) GetSalesReceptionBySource(ctx context.Context, sourceType models.SalesReceptionSourceType, sourceId int, forUpdate bool) (*models.SalesReception, error) {
	defer s.lock()()
	reception := findOne(s.data.receptions, func(r *models.SalesReception) bool {
		return r.SourceType == sourceType && r.SourceId == sourceId
	})
	if reception == nil {
		return nil, models.NewNotFound("sales_reception", 0)
	}
	return copyOf(reception), nil
}

func (s *Store) SaveSalesReception(ctx context.Context, reception *models.SalesReception) error {
	defer s.lock()()
	if _, ok := s.data.receptions[reception.ID]; !ok {
		return models.NewNotFound("sales_reception", reception.ID)
	}
	reception.UpdatedAt = time.Now()
	s.data.receptions[reception.ID] = copyOf(reception)
	return nil
}
