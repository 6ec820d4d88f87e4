package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
	"github.com/mmdatafocus/distillery_backend/store/memory"
)

var errBoom = errors.New("boom")

// brokenRawStockStore fails every raw material aggregation.
type brokenRawStockStore struct {
	store.Store
}

func (b brokenRawStockStore) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return b.Store.Transaction(ctx, func(tx store.Store) error {
		return fn(brokenRawStockStore{tx})
	})
}

func (b brokenRawStockStore) FirstOrCreateRawMaterialStock(ctx context.Context, distillerId int, materialType string) (*models.RawMaterialStock, error) {
	return nil, errBoom
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	obtained []string
}

func (f *fakeLocker) Obtain(ctx context.Context, key string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[key] {
		return nil, errors.New("already held: " + key)
	}
	f.held[key] = true
	f.obtained = append(f.obtained, key)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

func TestMarkReceived_AggregationFailureRollsBack(t *testing.T) {
	base := memory.New()
	svc := newTestService(t, brokenRawStockStore{base})
	ctx := context.Background()

	e, err := svc.CreateExpedition(ctx, models.NewExpedition{
		OwnerId: testOwner, DistillerId: testDistiller, MaterialType: testMaterial,
		SentQty: dec("100"), Humidity: dec("12"), SentDate: testNow,
	})
	if err != nil {
		t.Fatalf("CreateExpedition: %v", err)
	}
	_, _, err = svc.MarkExpeditionReceived(ctx, e.ID, dec("100"), testNow)
	if !errors.Is(err, models.ErrAggregationFailure) || !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped aggregation failure, got %v", err)
	}

	e, _ = base.GetExpedition(ctx, e.ID, false)
	if e.Status != models.ExpeditionStatusPending || !e.ReceivedQty.IsZero() {
		t.Fatalf("expected expedition rolled back to pending, got %s/%s", e.Status, e.ReceivedQty)
	}
	if _, err := base.GetDistillationByExpedition(ctx, e.ID, false); !models.IsNotFound(err) {
		t.Fatalf("expected no distillation after rollback, got %v", err)
	}
}

func TestMarkReceived_Validation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	e, _ := receiveExpedition(t, svc, "100", "12")

	if _, _, err := svc.MarkExpeditionReceived(ctx, e.ID, dec("100"), testNow); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState receiving twice, got %v", err)
	}

	other, _ := svc.CreateExpedition(ctx, models.NewExpedition{
		OwnerId: testOwner, DistillerId: testDistiller, MaterialType: testMaterial,
		SentQty: dec("50"), Humidity: dec("10"), SentDate: testNow,
	})
	if _, _, err := svc.MarkExpeditionReceived(ctx, other.ID, dec("51"), testNow); !errors.Is(err, models.ErrQuantityExceeded) {
		t.Fatalf("expected ErrQuantityExceeded, got %v", err)
	}
	stock, _ := svc.GetRawMaterialStock(ctx, testDistiller, testMaterial)
	if !stock.QuantityInitial.Equal(dec("100")) {
		t.Fatalf("failed reception changed raw stock to %s", stock.QuantityInitial)
	}

	if _, _, err := svc.MarkExpeditionReceived(ctx, 999, dec("1"), testNow); !models.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelExpeditionReception(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	receiveExpedition(t, svc, "100", "12")
	second, d := receiveExpedition(t, svc, "100", "14")

	stock, _ := svc.GetRawMaterialStock(ctx, testDistiller, testMaterial)
	if !stock.HumidityAvg.Equal(dec("13")) {
		t.Fatalf("expected humidity 13, got %s", stock.HumidityAvg)
	}

	e, err := svc.CancelExpeditionReception(ctx, second.ID)
	if err != nil {
		t.Fatalf("CancelExpeditionReception: %v", err)
	}
	if e.Status != models.ExpeditionStatusPending {
		t.Fatalf("expected pending, got %s", e.Status)
	}
	stock, _ = svc.GetRawMaterialStock(ctx, testDistiller, testMaterial)
	if !stock.QuantityInitial.Equal(dec("100")) || !stock.HumidityAvg.Equal(dec("12")) {
		t.Fatalf("expected 100 @ 12 after cancel, got %s @ %s", stock.QuantityInitial, stock.HumidityAvg)
	}
	if _, err := svc.GetDistillation(ctx, d.ID); !models.IsNotFound(err) {
		t.Fatalf("expected pending distillation removed, got %v", err)
	}
	if _, err := svc.CancelExpeditionReception(ctx, second.ID); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState cancelling a pending expedition, got %v", err)
	}

	// received again: a fresh distillation slot is opened
	_, d, err = svc.MarkExpeditionReceived(ctx, second.ID, dec("100"), testNow)
	if err != nil {
		t.Fatalf("MarkExpeditionReceived again: %v", err)
	}
	fund(t, svc, "10000")
	if _, err := svc.StartDistillation(ctx, d.ID, costing5000("0")); err != nil {
		t.Fatalf("StartDistillation: %v", err)
	}
	if _, err := svc.CancelExpeditionReception(ctx, second.ID); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState once distillation started, got %v", err)
	}
}

func TestStartDistillation_ReservesReceivedQuantityByDefault(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	_, d := receiveExpedition(t, svc, "100", "12")
	fund(t, svc, "10000")

	d, err := svc.StartDistillation(ctx, d.ID, costing5000("0"))
	if err != nil {
		t.Fatalf("StartDistillation: %v", err)
	}
	if !d.ReservedQty.Equal(dec("100")) || !d.TotalCost.Equal(dec("5000")) {
		t.Fatalf("expected reserved 100 cost 5000, got %s/%s", d.ReservedQty, d.TotalCost)
	}
	stock, _ := svc.GetRawMaterialStock(ctx, testDistiller, testMaterial)
	if stock.Status != models.RawMaterialStockStatusDepleted {
		t.Fatalf("expected depleted raw stock, got %s", stock.Status)
	}

	// processing less than reserved gives the rest back
	d, _, err = svc.FinishDistillation(ctx, d.ID, models.FinishDistillationParams{
		OutputReference: "L", OutputMaterial: "HE", OutputQty: dec("18"), ProcessedQty: dec("60"), EndDate: testNow,
	})
	if err != nil {
		t.Fatalf("FinishDistillation: %v", err)
	}
	stock, _ = svc.GetRawMaterialStock(ctx, testDistiller, testMaterial)
	if !stock.QuantityUsed.Equal(dec("60")) || stock.Status != models.RawMaterialStockStatusAvailable {
		t.Fatalf("expected used 60 and available, got %s/%s", stock.QuantityUsed, stock.Status)
	}
	if !d.ReservedQty.Equal(dec("60")) {
		t.Fatalf("expected reserved trimmed to 60, got %s", d.ReservedQty)
	}
}

func TestStartDistillation_WithoutReservation(t *testing.T) {
	svc := newTestService(t, nil, WithRawStockReservation(false))
	ctx := context.Background()
	_, d := receiveExpedition(t, svc, "100", "12")
	fund(t, svc, "5000")

	if _, err := svc.StartDistillation(ctx, d.ID, costing5000("60")); err != nil {
		t.Fatalf("StartDistillation: %v", err)
	}
	stock, _ := svc.GetRawMaterialStock(ctx, testDistiller, testMaterial)
	if !stock.QuantityUsed.IsZero() {
		t.Fatalf("expected raw stock untouched, got used %s", stock.QuantityUsed)
	}
	balance, _ := svc.GetBalance(ctx, testOwner)
	if !balance.Balance.IsZero() {
		t.Fatalf("expected balance 0, got %s", balance.Balance)
	}
}

func TestFinishDistillation_ProcessedAboveReservedFails(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	_, d := receiveExpedition(t, svc, "100", "12")
	fund(t, svc, "10000")
	_, _ = svc.StartDistillation(ctx, d.ID, costing5000("60"))

	_, _, err := svc.FinishDistillation(ctx, d.ID, models.FinishDistillationParams{
		OutputReference: "L", OutputMaterial: "HE", OutputQty: dec("18"), ProcessedQty: dec("61"), EndDate: testNow,
	})
	if !errors.Is(err, models.ErrQuantityExceeded) {
		t.Fatalf("expected ErrQuantityExceeded, got %v", err)
	}
	d, _ = svc.GetDistillation(ctx, d.ID)
	if d.Status != models.DistillationStatusInProgress {
		t.Fatalf("expected still in_progress, got %s", d.Status)
	}
	if lots, _ := svc.ListLots(ctx, testOwner, ""); len(lots) != 0 {
		t.Fatalf("expected no lot, got %d", len(lots))
	}
}

func TestCancelDistillation_ReleasesAndRefunds(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	_, d := receiveExpedition(t, svc, "100", "12")
	fund(t, svc, "6000")
	_, _ = svc.StartDistillation(ctx, d.ID, costing5000("60"))

	d, err := svc.CancelDistillation(ctx, d.ID)
	if err != nil {
		t.Fatalf("CancelDistillation: %v", err)
	}
	if d.Status != models.DistillationStatusPending || !d.TotalCost.IsZero() || !d.ReservedQty.IsZero() {
		t.Fatalf("expected reset pending distillation, got %+v", d)
	}
	balance, _ := svc.GetBalance(ctx, testOwner)
	if !balance.Balance.Equal(dec("6000")) {
		t.Fatalf("expected balance refunded to 6000, got %s", balance.Balance)
	}
	stock, _ := svc.GetRawMaterialStock(ctx, testDistiller, testMaterial)
	if !stock.QuantityUsed.IsZero() {
		t.Fatalf("expected raw reservation released, got %s", stock.QuantityUsed)
	}
	histories, _ := svc.ListBalanceHistory(ctx, testOwner)
	if len(histories) != 3 || histories[0].ReferenceType != models.BalanceReferenceDistillationCancel {
		t.Fatalf("expected funding, debit and refund rows newest first, got %d rows", len(histories))
	}
	if _, err := svc.CancelDistillation(ctx, d.ID); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState cancelling a pending distillation, got %v", err)
	}
}

func TestBalance_DebitRulesAndAudit(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Debit(ctx, models.BalanceMovement{OwnerId: testOwner, Amount: dec("0")}); !errors.Is(err, models.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Debit(ctx, models.BalanceMovement{OwnerId: testOwner, Amount: dec("1")}); !errors.Is(err, models.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance on a fresh balance, got %v", err)
	}
	if _, err := svc.Credit(ctx, models.BalanceMovement{OwnerId: 0, Amount: dec("1")}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without owner, got %v", err)
	}

	fund(t, svc, "100")
	h, err := svc.Debit(ctx, models.BalanceMovement{OwnerId: testOwner, Amount: dec("40"), Reason: "fuel"})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if !h.Before.Equal(dec("100")) || !h.After.Equal(dec("60")) || h.Reference == "" || h.CorrelationId == "" {
		t.Fatalf("unexpected audit row: %+v", h)
	}

	histories, _ := svc.ListBalanceHistory(ctx, testOwner)
	if len(histories) != 2 || histories[0].Reference == histories[1].Reference {
		t.Fatalf("expected two rows with distinct references, got %+v", histories)
	}
}

func TestCreateTransport_Failures(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	d, lot := finishedLot(t, svc)
	input := models.NewTransport{
		DistillationId: d.ID, CarrierId: 5, SellerId: 6, DestinationSite: "Tamatave",
		Quantity: dec("19"), DepartureDate: testNow,
	}

	if _, _, err := svc.CreateTransport(ctx, input); !errors.Is(err, models.ErrQuantityExceeded) {
		t.Fatalf("expected ErrQuantityExceeded, got %v", err)
	}
	lot, _ = svc.GetLot(ctx, lot.ID)
	if !lot.QuantityAvailable.Equal(dec("18")) {
		t.Fatalf("failed transport changed lot to %s", lot.QuantityAvailable)
	}

	missing := input
	missing.DistillationId = 999
	missing.Quantity = dec("1")
	if _, _, err := svc.CreateTransport(ctx, missing); !models.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	input.Quantity = dec("5")
	if _, _, err := svc.CreateTransport(ctx, input); err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	byLot := models.NewTransport{LotId: lot.ID, CarrierId: 5, SellerId: 6, DestinationSite: "Tamatave", Quantity: dec("1"), DepartureDate: testNow}
	if _, _, err := svc.CreateTransport(ctx, byLot); !errors.Is(err, models.ErrDuplicateTransport) {
		t.Fatalf("expected ErrDuplicateTransport, got %v", err)
	}

	_, pending := receiveExpedition(t, svc, "50", "10")
	notDone := input
	notDone.DistillationId = pending.ID
	notDone.Quantity = dec("1")
	if _, _, err := svc.CreateTransport(ctx, notDone); !errors.Is(err, models.ErrNotTerminal) {
		t.Fatalf("expected ErrNotTerminal, got %v", err)
	}
}

func TestSalesReception_Workflow(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	e, _ := receiveExpedition(t, svc, "100", "12")

	input := models.NewSalesReception{SourceType: models.SalesReceptionSourceExpedition, SourceId: e.ID, SellerId: 6, Quantity: dec("100")}
	r, err := svc.OpenSalesReception(ctx, input)
	if err != nil {
		t.Fatalf("OpenSalesReception: %v", err)
	}
	if _, err := svc.OpenSalesReception(ctx, input); !errors.Is(err, models.ErrDuplicateReception) {
		t.Fatalf("expected ErrDuplicateReception, got %v", err)
	}
	missing := input
	missing.SourceId = 999
	if _, err := svc.OpenSalesReception(ctx, missing); !models.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound for a missing source, got %v", err)
	}

	if _, err := svc.ConfirmSalesReception(ctx, r.ID, dec("101")); !errors.Is(err, models.ErrQuantityExceeded) {
		t.Fatalf("expected ErrQuantityExceeded, got %v", err)
	}
	if _, err := svc.CancelSalesReception(ctx, r.ID); err != nil {
		t.Fatalf("CancelSalesReception: %v", err)
	}
	if _, err := svc.ConfirmSalesReception(ctx, r.ID, dec("90")); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState confirming a cancelled reception, got %v", err)
	}
	r, err = svc.ForceConfirmSalesReception(ctx, r.ID, dec("90"))
	if err != nil {
		t.Fatalf("ForceConfirmSalesReception: %v", err)
	}
	if r.Status != models.SalesReceptionStatusReceived || !r.Forced {
		t.Fatalf("expected forced received reception, got %+v", r)
	}

	bySource, err := svc.GetSalesReceptionBySource(ctx, models.SalesReceptionSourceExpedition, e.ID)
	if err != nil || bySource.ID != r.ID {
		t.Fatalf("GetSalesReceptionBySource: %v %+v", err, bySource)
	}
}

func TestReserveFIFO_OldestLotFirst(t *testing.T) {
	clock := testNow
	svc := newTestService(t, nil, WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	fund(t, svc, "100000")

	var lotIds []int
	for i := 0; i < 2; i++ {
		_, d := receiveExpedition(t, svc, "100", "12")
		if _, err := svc.StartDistillation(ctx, d.ID, costing5000("60")); err != nil {
			t.Fatalf("StartDistillation: %v", err)
		}
		_, lot, err := svc.FinishDistillation(ctx, d.ID, models.FinishDistillationParams{
			OutputReference: "L", OutputMaterial: "HE", OutputQty: dec("18"), ProcessedQty: dec("60"), EndDate: clock,
		})
		if err != nil {
			t.Fatalf("FinishDistillation: %v", err)
		}
		lotIds = append(lotIds, lot.ID)
		clock = clock.Add(24 * time.Hour)
	}

	plan, err := svc.AllocateFIFO(ctx, testOwner, "HE", dec("20"))
	if err != nil || len(plan) != 2 {
		t.Fatalf("AllocateFIFO: %v %+v", err, plan)
	}
	older, _ := svc.GetLot(ctx, lotIds[0])
	if !older.QuantityReserved.IsZero() {
		t.Fatalf("AllocateFIFO must not reserve, got %s", older.QuantityReserved)
	}

	allocations, err := svc.ReserveFIFO(ctx, testOwner, "HE", dec("20"))
	if err != nil {
		t.Fatalf("ReserveFIFO: %v", err)
	}
	if allocations[0].LotId != lotIds[0] || !allocations[0].Quantity.Equal(dec("18")) || !allocations[1].Quantity.Equal(dec("2")) {
		t.Fatalf("unexpected allocations: %+v", allocations)
	}
	older, _ = svc.GetLot(ctx, lotIds[0])
	if older.Status != models.ProducedStockStatusDepleted {
		t.Fatalf("expected older lot depleted, got %s", older.Status)
	}

	if _, err := svc.ReserveFIFO(ctx, testOwner, "HE", dec("17")); !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	newer, _ := svc.GetLot(ctx, lotIds[1])
	if !newer.QuantityAvailable.Equal(dec("16")) {
		t.Fatalf("failed FIFO reservation changed newer lot to %s", newer.QuantityAvailable)
	}
}

func TestReserveLot_ConcurrentReservationsNeverOversell(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	_, lot := finishedLot(t, svc)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ReserveLot(ctx, lot.ID, dec("1")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 18 {
		t.Fatalf("expected 18 successful reservations, got %d", succeeded)
	}
	lot, _ = svc.GetLot(ctx, lot.ID)
	if err := lot.CheckInvariants(); err != nil {
		t.Fatalf("lot not conserved: %v", err)
	}
}

func TestKeyLocker_TakesAndReleasesStockKeys(t *testing.T) {
	locker := &fakeLocker{}
	svc := newTestService(t, nil, WithKeyLocker(locker))
	ctx := context.Background()
	_, d := receiveExpedition(t, svc, "100", "12")
	fund(t, svc, "10000")
	if _, err := svc.StartDistillation(ctx, d.ID, costing5000("60")); err != nil {
		t.Fatalf("StartDistillation: %v", err)
	}

	if len(locker.held) != 0 {
		t.Fatalf("locks still held: %v", locker.held)
	}
	keys := append([]string(nil), locker.obtained...)
	sort.Strings(keys)
	want := map[string]bool{"stockLock:raw:2:FG": false, "balanceLock:1": false}
	for _, k := range keys {
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Fatalf("expected lock %s to be taken, got %v", k, keys)
		}
	}
}

func TestReconcileStocks_CleanAfterFullFlow(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	d, _ := finishedLot(t, svc)
	if _, _, err := svc.CreateTransport(ctx, models.NewTransport{
		DistillationId: d.ID, CarrierId: 5, SellerId: 6, DestinationSite: "Tamatave", Quantity: dec("10"), DepartureDate: testNow,
	}); err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}

	issues, err := svc.ReconcileStocks(ctx)
	if err != nil {
		t.Fatalf("ReconcileStocks: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}

	stock, _ := svc.RebuildRawMaterialStock(ctx, testDistiller, testMaterial)
	if !stock.QuantityInitial.Equal(dec("100")) || !stock.QuantityUsed.Equal(dec("60")) {
		t.Fatalf("rebuild changed the stock: %s/%s", stock.QuantityInitial, stock.QuantityUsed)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []config.StockEventMessage
	fail   bool
}

func (p *recordingPublisher) Publish(ctx context.Context, msg config.StockEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	if p.fail {
		return errBoom
	}
	return nil
}

func TestEvents_PublishedAfterCommitOnly(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := newTestService(t, nil, WithEventPublisher(publisher))
	ctx := context.Background()
	_, d := receiveExpedition(t, svc, "100", "12")

	if _, err := svc.StartDistillation(ctx, d.ID, costing5000("60")); !errors.Is(err, models.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != EventExpeditionReceived {
		t.Fatalf("expected only the reception event, got %+v", publisher.events)
	}
	if publisher.events[0].OwnerId != testOwner || publisher.events[0].CorrelationId == "" {
		t.Fatalf("unexpected event envelope: %+v", publisher.events[0])
	}

	// a failing publisher does not fail the operation
	publisher.fail = true
	fund(t, svc, "10000")
	if _, err := svc.StartDistillation(ctx, d.ID, costing5000("60")); err != nil {
		t.Fatalf("StartDistillation: %v", err)
	}
	last := publisher.events[len(publisher.events)-1]
	if last.EventType != EventDistillationStarted || last.ReferenceId != d.ID || len(last.Payload) == 0 {
		t.Fatalf("unexpected last event: %+v", last)
	}
}
