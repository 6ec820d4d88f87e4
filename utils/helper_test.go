package utils

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestGenerateUniqueReference(t *testing.T) {
	re := regexp.MustCompile(`^BAL-\d+_\d{6}$`)
	ref := GenerateUniqueReference("BAL")
	if !re.MatchString(ref) {
		t.Fatalf("unexpected reference format %q", ref)
	}
	if GenerateUniqueReference("BAL") == ref {
		t.Fatalf("expected distinct references")
	}
}

func TestPercentage(t *testing.T) {
	if got := Percentage(decimal.NewFromInt(18), decimal.NewFromInt(60)); !got.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected 30, got %s", got)
	}
	if got := Percentage(decimal.NewFromInt(5), decimal.Zero); !got.IsZero() {
		t.Fatalf("expected 0 for a zero whole, got %s", got)
	}
}

func TestEnsureCorrelationId(t *testing.T) {
	ctx, id := EnsureCorrelationId(context.Background())
	if id == "" {
		t.Fatalf("expected a generated id")
	}
	if _, again := EnsureCorrelationId(ctx); again != id {
		t.Fatalf("expected the existing id %s to be kept, got %s", id, again)
	}
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		OwnerId int    `validate:"required,min=1"`
		Reason  string `validate:"max=3"`
	}
	err := ValidateStruct(input{Reason: "toolong"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "OwnerId: is required") || !strings.Contains(err.Error(), "Reason: must be at most 3") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err := ValidateStruct(input{OwnerId: 1}); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
}
