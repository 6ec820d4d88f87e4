package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrQuantityExceeded    = errors.New("quantity exceeded")
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateTransport  = errors.New("transport already exists for distillation")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAggregationFailure  = errors.New("raw material aggregation failed")

	ErrNotTerminal        = errors.New("distillation is not done")
	ErrDuplicateReception = errors.New("sales reception already exists for source")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrConcurrentUpdate   = errors.New("record was modified concurrently")
	ErrInvalidInput       = errors.New("invalid input")
)

// OperationError carries enough context for a caller to render a message:
// which entity failed, and the current vs requested quantity when relevant.
type OperationError struct {
	Kind      error
	Entity    string
	EntityId  int
	Current   *decimal.Decimal
	Requested *decimal.Decimal
	Message   string
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Entity != "" {
		fmt.Fprintf(&b, ": %s", e.Entity)
		if e.EntityId > 0 {
			fmt.Fprintf(&b, " #%d", e.EntityId)
		}
	}
	if e.Current != nil && e.Requested != nil {
		fmt.Fprintf(&b, " (current %s, requested %s)", e.Current.String(), e.Requested.String())
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Kind
}

func newError(kind error, entity string, id int, message string) *OperationError {
	return &OperationError{Kind: kind, Entity: entity, EntityId: id, Message: message}
}

func newQtyError(kind error, entity string, id int, current decimal.Decimal, requested decimal.Decimal) *OperationError {
	return &OperationError{Kind: kind, Entity: entity, EntityId: id, Current: &current, Requested: &requested}
}

// NewNotFound is used by stores and workflows when a referenced row is missing.
func NewNotFound(entity string, id int) error {
	return newError(ErrNotFound, entity, id, "")
}

// NewInvalidState reports a transition attempted from the wrong status.
func NewInvalidState(entity string, id int, current string, action string) error {
	return newError(ErrInvalidState, entity, id, fmt.Sprintf("cannot %s from status %q", action, current))
}

func NewInvalidInput(entity string, message string) error {
	return newError(ErrInvalidInput, entity, 0, message)
}

func NewConcurrentUpdate(entity string, id int) error {
	return newError(ErrConcurrentUpdate, entity, id, "")
}

// NewAggregationFailure wraps the cause so both errors.Is(err, ErrAggregationFailure)
// and errors.Is(err, cause) hold.
func NewAggregationFailure(expeditionId int, cause error) error {
	return fmt.Errorf("%w: expedition #%d: %w", ErrAggregationFailure, expeditionId, cause)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQuantityError returns true for failures caused by the requested quantity or amount.
func IsQuantityError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrQuantityExceeded) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsRetryable returns true when the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}
