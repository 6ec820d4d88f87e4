package utils

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// GenerateUniqueReference returns "<prefix>-<unix nano>_<random>".
// Callers must still check the reference against existing keys; uniqueness is likely, not guaranteed.
func GenerateUniqueReference(prefix string) string {
	timestamp := time.Now().UnixNano()
	random := rand.Intn(1000000)
	if prefix == "" {
		return fmt.Sprintf("%d_%06d", timestamp, random)
	}
	return fmt.Sprintf("%s-%d_%06d", prefix, timestamp, random)
}

// Percentage returns part/whole*100 rounded to 2 decimals, zero when whole <= 0.
func Percentage(part decimal.Decimal, whole decimal.Decimal) decimal.Decimal {
	if whole.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
