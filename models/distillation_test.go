package models

import (
	"errors"
	"testing"
	"time"
)

func TestStartDistillationParams_TotalCost(t *testing.T) {
	p := StartDistillationParams{
		WoodQty: dec("10"), WoodPrice: dec("300"),
		FuelQty: dec("20"), FuelPrice: dec("50"),
		WorkerCount: 2, HoursPerWorker: dec("10"), RatePerHour: dec("50"),
	}
	if got := p.TotalCost(); !got.Equal(dec("5000")) {
		t.Fatalf("expected total cost 5000, got %s", got)
	}
}

func TestDistillation_Lifecycle(t *testing.T) {
	d := &Distillation{ID: 3, Status: DistillationStatusPending, QuantityReceived: dec("100")}

	if err := d.Finish(FinishDistillationParams{OutputReference: "L1", OutputMaterial: "HE", EndDate: time.Now()}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState finishing a pending distillation, got %v", err)
	}

	start := StartDistillationParams{EquipmentId: 1, StartDate: time.Now(), WoodQty: dec("1"), WoodPrice: dec("100")}
	if err := d.Start(start, dec("60")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d.Status != DistillationStatusInProgress || !d.TotalCost.Equal(dec("100")) || !d.ReservedQty.Equal(dec("60")) {
		t.Fatalf("unexpected started distillation: %+v", d)
	}
	if err := d.Start(start, dec("60")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState starting twice, got %v", err)
	}

	err := d.Finish(FinishDistillationParams{
		OutputReference: "L1",
		OutputMaterial:  "HE",
		OutputQty:       dec("18"),
		ProcessedQty:    dec("60"),
		EndDate:         time.Now(),
	})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if d.Status != DistillationStatusDone || !d.Yield.Equal(dec("30")) {
		t.Fatalf("expected done with yield 30.00, got %s/%s", d.Status, d.Yield)
	}
	if err := d.ResetToPending(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState cancelling a done distillation, got %v", err)
	}
}

func TestDistillation_YieldZeroWithoutProcessedQty(t *testing.T) {
	d := &Distillation{Status: DistillationStatusInProgress}
	err := d.Finish(FinishDistillationParams{OutputReference: "L", OutputMaterial: "HE", OutputQty: dec("5"), EndDate: time.Now()})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !d.Yield.IsZero() {
		t.Fatalf("expected yield 0, got %s", d.Yield)
	}
}

func TestStartDistillationParams_Validate(t *testing.T) {
	p := StartDistillationParams{EquipmentId: 1, StartDate: time.Now(), FuelPrice: dec("-1")}
	if err := p.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative price, got %v", err)
	}
	p = StartDistillationParams{StartDate: time.Now()}
	if err := p.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without equipment, got %v", err)
	}
}

func TestBalanceUser_DebitCredit(t *testing.T) {
	b := &BalanceUser{OwnerId: 1, Balance: dec("3000")}

	if _, err := b.Debit(BalanceMovement{OwnerId: 1, Amount: dec("5000")}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if !b.Balance.Equal(dec("3000")) {
		t.Fatalf("failed debit changed balance to %s", b.Balance)
	}
	if _, err := b.Debit(BalanceMovement{OwnerId: 1, Amount: dec("0")}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	h, err := b.Debit(BalanceMovement{OwnerId: 1, Amount: dec("1000"), Reason: "fuel"})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if !h.Before.Equal(dec("3000")) || !h.After.Equal(dec("2000")) || h.Kind != BalanceMovementDebit {
		t.Fatalf("unexpected history row: %+v", h)
	}

	h, err = b.Credit(BalanceMovement{OwnerId: 1, Amount: dec("500")})
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if !b.Balance.Equal(dec("2500")) || !h.After.Equal(dec("2500")) {
		t.Fatalf("expected balance 2500, got %s", b.Balance)
	}
}

func TestSalesReception_Transitions(t *testing.T) {
	r := NewSalesReception{SourceType: SalesReceptionSourceTransport, SourceId: 1, SellerId: 2, Quantity: dec("10")}.ToSalesReception()

	if err := r.Confirm(dec("11"), time.Now()); !errors.Is(err, ErrQuantityExceeded) {
		t.Fatalf("expected ErrQuantityExceeded, got %v", err)
	}
	if err := r.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := r.Confirm(dec("10"), time.Now()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState confirming a cancelled reception, got %v", err)
	}
	if err := r.ForceConfirm(dec("9"), time.Now()); err != nil {
		t.Fatalf("ForceConfirm: %v", err)
	}
	if r.Status != SalesReceptionStatusReceived || !r.Forced || !r.QuantityReceived.Equal(dec("9")) {
		t.Fatalf("unexpected forced reception: %+v", r)
	}
	if err := r.ForceConfirm(dec("9"), time.Now()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState forcing a received reception, got %v", err)
	}
}

func TestExpedition_MarkReceived(t *testing.T) {
	e := NewExpedition{OwnerId: 1, DistillerId: 2, MaterialType: "FG", SentQty: dec("100"), SentDate: time.Now()}.ToExpedition()

	if err := e.MarkReceived(dec("101"), time.Now()); !errors.Is(err, ErrQuantityExceeded) {
		t.Fatalf("expected ErrQuantityExceeded, got %v", err)
	}
	if e.Status != ExpeditionStatusPending {
		t.Fatalf("failed reception changed status to %s", e.Status)
	}
	if err := e.MarkReceived(dec("100"), time.Now()); err != nil {
		t.Fatalf("MarkReceived: %v", err)
	}
	if err := e.MarkReceived(dec("100"), time.Now()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState receiving twice, got %v", err)
	}
}
