package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestOperationError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newQtyError(ErrInsufficientStock, "produced_stock", 4, dec("8"), dec("10")))

	if !errors.Is(err, ErrInsufficientStock) || !IsQuantityError(err) {
		t.Fatalf("expected an insufficient stock quantity error, got %v", err)
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.EntityId != 4 || !opErr.Current.Equal(dec("8")) {
		t.Fatalf("expected OperationError details, got %+v", opErr)
	}
	if got := opErr.Error(); got != "insufficient stock: produced_stock #4 (current 8, requested 10)" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		err       error
		notFound  bool
		quantity  bool
		retryable bool
	}{
		{NewNotFound("distillation", 1), true, false, false},
		{NewConcurrentUpdate("balance", 1), false, false, true},
		{NewInvalidState("transport", 1, "delivered", "deliver"), false, false, false},
		{newQtyError(ErrInvalidAmount, "balance", 1, dec("0"), dec("-1")), false, true, false},
		{NewAggregationFailure(3, NewNotFound("raw_material_stock", 0)), true, false, false},
	}
	for _, tc := range cases {
		if IsNotFound(tc.err) != tc.notFound || IsQuantityError(tc.err) != tc.quantity || IsRetryable(tc.err) != tc.retryable {
			t.Fatalf("wrong classification for %v", tc.err)
		}
	}
}
