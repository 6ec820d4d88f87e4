package workflow

import (
	"context"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/models"
	"github.com/mmdatafocus/distillery_backend/store"
	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// AddFromExpedition folds a received expedition into its (distiller, material type) row.
// It runs inside the caller's transaction; the row stays locked until that transaction ends.
func (s *Service) AddFromExpedition(ctx context.Context, tx store.Store, expedition *models.Expedition) (*models.RawMaterialStock, error) {
	if expedition.Status != models.ExpeditionStatusReceived {
		return nil, models.NewInvalidState("expedition", expedition.ID, string(expedition.Status), "aggregate")
	}
	stock, err := tx.FirstOrCreateRawMaterialStock(ctx, expedition.DistillerId, expedition.MaterialType)
	if err != nil {
		return nil, err
	}
	if err := stock.Add(expedition.Contribution()); err != nil {
		return nil, err
	}
	if err := tx.SaveRawMaterialStock(ctx, stock); err != nil {
		return nil, err
	}
	return stock, nil
}

// SubtractContribution removes what a received expedition added, clamped at zero.
func (s *Service) SubtractContribution(ctx context.Context, tx store.Store, expedition *models.Expedition) (*models.RawMaterialStock, error) {
	stock, err := tx.GetRawMaterialStock(ctx, expedition.DistillerId, expedition.MaterialType, true)
	if err != nil {
		return nil, err
	}
	stock.Subtract(expedition.Contribution())
	if err := tx.SaveRawMaterialStock(ctx, stock); err != nil {
		return nil, err
	}
	return stock, nil
}

func (s *Service) ReserveRawMaterial(ctx context.Context, distillerId int, materialType string, qty decimal.Decimal) (stock *models.RawMaterialStock, err error) {
	ctx, span := s.startSpan(ctx, "rawMaterial.Reserve",
		attribute.Int("distiller_id", distillerId), attribute.String("material_type", materialType))
	defer func() { endSpan(span, err) }()

	err = s.inTransaction(ctx, []string{utils.RawStockLockKey(distillerId, materialType)}, func(tx store.Store) error {
		st, err := s.reserveRawMaterial(ctx, tx, distillerId, materialType, qty)
		stock = st
		return err
	})
	if err != nil {
		config.LogError(s.logger, "rawMaterialWorkflow.go", "ReserveRawMaterial", "reserve", qty.String(), err)
		return nil, err
	}
	return stock, nil
}

func (s *Service) ReleaseRawMaterial(ctx context.Context, distillerId int, materialType string, qty decimal.Decimal) (stock *models.RawMaterialStock, err error) {
	ctx, span := s.startSpan(ctx, "rawMaterial.Release",
		attribute.Int("distiller_id", distillerId), attribute.String("material_type", materialType))
	defer func() { endSpan(span, err) }()

	err = s.inTransaction(ctx, []string{utils.RawStockLockKey(distillerId, materialType)}, func(tx store.Store) error {
		st, err := s.releaseRawMaterial(ctx, tx, distillerId, materialType, qty)
		stock = st
		return err
	})
	if err != nil {
		config.LogError(s.logger, "rawMaterialWorkflow.go", "ReleaseRawMaterial", "release", qty.String(), err)
		return nil, err
	}
	return stock, nil
}

func (s *Service) GetRawMaterialStock(ctx context.Context, distillerId int, materialType string) (*models.RawMaterialStock, error) {
	return s.store.GetRawMaterialStock(ctx, distillerId, materialType, false)
}

func (s *Service) ListRawMaterialStocks(ctx context.Context, distillerId int) ([]*models.RawMaterialStock, error) {
	return s.store.ListRawMaterialStocks(ctx, distillerId)
}

// RebuildRawMaterialStock recomputes initial quantity and quality averages from every received
// expedition of the key. Used quantity is kept.
func (s *Service) RebuildRawMaterialStock(ctx context.Context, distillerId int, materialType string) (stock *models.RawMaterialStock, err error) {
	ctx, span := s.startSpan(ctx, "rawMaterial.Rebuild",
		attribute.Int("distiller_id", distillerId), attribute.String("material_type", materialType))
	defer func() { endSpan(span, err) }()

	err = s.inTransaction(ctx, []string{utils.RawStockLockKey(distillerId, materialType)}, func(tx store.Store) error {
		st, err := tx.FirstOrCreateRawMaterialStock(ctx, distillerId, materialType)
		if err != nil {
			return err
		}
		expeditions, err := tx.ListReceivedExpeditions(ctx, distillerId, materialType)
		if err != nil {
			return err
		}
		contributions := make([]models.RawMaterialContribution, 0, len(expeditions))
		for _, e := range expeditions {
			contributions = append(contributions, e.Contribution())
		}
		if err := st.Rebuild(contributions); err != nil {
			return err
		}
		if err := tx.SaveRawMaterialStock(ctx, st); err != nil {
			return err
		}
		stock = st
		return nil
	})
	if err != nil {
		config.LogError(s.logger, "rawMaterialWorkflow.go", "RebuildRawMaterialStock", "rebuild", materialType, err)
		return nil, err
	}
	return stock, nil
}

func (s *Service) reserveRawMaterial(ctx context.Context, tx store.Store, distillerId int, materialType string, qty decimal.Decimal) (*models.RawMaterialStock, error) {
	stock, err := tx.GetRawMaterialStock(ctx, distillerId, materialType, true)
	if err != nil {
		if models.IsNotFound(err) {
			// nothing was ever received for this key
			remaining := decimal.Zero
			return nil, &models.OperationError{Kind: models.ErrInsufficientStock, Entity: "raw_material_stock", Current: &remaining, Requested: &qty}
		}
		return nil, err
	}
	if err := stock.ReserveForDistillation(qty); err != nil {
		return nil, err
	}
	if err := tx.SaveRawMaterialStock(ctx, stock); err != nil {
		return nil, err
	}
	return stock, nil
}

func (s *Service) releaseRawMaterial(ctx context.Context, tx store.Store, distillerId int, materialType string, qty decimal.Decimal) (*models.RawMaterialStock, error) {
	stock, err := tx.GetRawMaterialStock(ctx, distillerId, materialType, true)
	if err != nil {
		return nil, err
	}
	if err := stock.Release(qty); err != nil {
		return nil, err
	}
	if err := tx.SaveRawMaterialStock(ctx, stock); err != nil {
		return nil, err
	}
	return stock, nil
}
