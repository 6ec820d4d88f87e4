package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const maxReferenceAttempts = 5

func (s *Service) Debit(ctx context.Context, m models.BalanceMovement) (history *models.BalanceHistory, err error) {
	ctx, span := s.startSpan(ctx, "balance.Debit", attribute.Int("owner_id", m.OwnerId))
	defer func() { endSpan(span, err) }()

	err = s.inTransaction(ctx, []string{utils.BalanceLockKey(m.OwnerId)}, func(tx store.Store) error {
		h, err := s.debit(ctx, tx, m)
		history = h
		return err
	})
	if err != nil {
		config.LogError(s.logger, "balanceWorkflow.go", "Debit", "debit", m, err)
		return nil, err
	}
	return history, nil
}

func (s *Service) Credit(ctx context.Context, m models.BalanceMovement) (history *models.BalanceHistory, err error) {
	ctx, span := s.startSpan(ctx, "balance.Credit", attribute.Int("owner_id", m.OwnerId))
	defer func() { endSpan(span, err) }()

	err = s.inTransaction(ctx, []string{utils.BalanceLockKey(m.OwnerId)}, func(tx store.Store) error {
		h, err := s.credit(ctx, tx, m)
		history = h
		return err
	})
	if err != nil {
		config.LogError(s.logger, "balanceWorkflow.go", "Credit", "credit", m, err)
		return nil, err
	}
	return history, nil
}

// GetBalance returns the owner's balance, creating the zero row on first access.
func (s *Service) GetBalance(ctx context.Context, ownerId int) (*models.BalanceUser, error) {
	var balance *models.BalanceUser
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		b, err := tx.FirstOrCreateBalanceUser(ctx, ownerId, false)
		balance = b
		return err
	})
	if err != nil {
		config.LogError(s.logger, "balanceWorkflow.go", "GetBalance", "FirstOrCreateBalanceUser", ownerId, err)
		return nil, err
	}
	return balance, nil
}

// ListBalanceHistory returns the audit rows of an owner, newest first.
func (s *Service) ListBalanceHistory(ctx context.Context, ownerId int) ([]*models.BalanceHistory, error) {
	histories, err := s.store.ListBalanceHistories(ctx, ownerId)
	if err != nil {
		config.LogError(s.logger, "balanceWorkflow.go", "ListBalanceHistory", "ListBalanceHistories", ownerId, err)
		return nil, err
	}
	return histories, nil
}

func (s *Service) debit(ctx context.Context, tx store.Store, m models.BalanceMovement) (*models.BalanceHistory, error) {
	if err := utils.ValidateStruct(m); err != nil {
		return nil, models.NewInvalidInput("balance", err.Error())
	}
	balance, err := tx.FirstOrCreateBalanceUser(ctx, m.OwnerId, true)
	if err != nil {
		return nil, err
	}
	history, err := balance.Debit(m)
	if err != nil {
		return nil, err
	}
	return s.applyMovement(ctx, tx, balance, history)
}

func (s *Service) credit(ctx context.Context, tx store.Store, m models.BalanceMovement) (*models.BalanceHistory, error) {
	if err := utils.ValidateStruct(m); err != nil {
		return nil, models.NewInvalidInput("balance", err.Error())
	}
	balance, err := tx.FirstOrCreateBalanceUser(ctx, m.OwnerId, true)
	if err != nil {
		return nil, err
	}
	history, err := balance.Credit(m)
	if err != nil {
		return nil, err
	}
	return s.applyMovement(ctx, tx, balance, history)
}

func (s *Service) applyMovement(ctx context.Context, tx store.Store, balance *models.BalanceUser, history *models.BalanceHistory) (*models.BalanceHistory, error) {
	if err := tx.SaveBalanceUser(ctx, balance); err != nil {
		return nil, err
	}
	reference, err := s.newBalanceReference(ctx, tx)
	if err != nil {
		return nil, err
	}
	history.Reference = reference
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		history.UserId = userId
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		history.CorrelationId = correlationId
	}
	if err := tx.CreateBalanceHistory(ctx, history); err != nil {
		return nil, err
	}
	fields := logrus.Fields{
		"owner_id":  balance.OwnerId,
		"kind":      history.Kind,
		"amount":    history.Amount.String(),
		"after":     history.After.String(),
		"reference": history.Reference,
	}
	if userName, ok := utils.GetUserNameFromContext(ctx); ok {
		fields["user_name"] = userName
	}
	config.LogInfo(s.logger, "balanceWorkflow.go", "applyMovement", "balance moved", fields)
	return history, nil
}

// newBalanceReference draws timestamp_random references until one is unused.
func (s *Service) newBalanceReference(ctx context.Context, tx store.Store) (string, error) {
	for i := 0; i < maxReferenceAttempts; i++ {
		reference := utils.GenerateUniqueReference("BAL")
		exists, err := tx.BalanceHistoryReferenceExists(ctx, reference)
		if err != nil {
			return "", err
		}
		if !exists {
			return reference, nil
		}
	}
	return "", fmt.Errorf("%w: balance reference", models.ErrDuplicateKey)
}

// isDuplicate reports whether err came from a unique constraint.
func isDuplicate(err error) bool {
	return errors.Is(err, models.ErrDuplicateKey)
}
