package workflow

import (
	"testing"

	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestApplyMovement_InAndOut(t *testing.T) {
	env := newTestEnv(t)
	env.receive(t, 10, 1, "50")
	requireDecimal(t, "50", env.stock(t, 10, 1))

	var m *models.StockMovement
	env.run(t, func(tx *gorm.DB) (err error) {
		m, err = ApplyMovement(tx, models.NewStockMovement{
			BusinessId: env.biz, ProductId: 10, WarehouseId: 1,
			Kind: models.MovementKindOut, Quantity: dec("20"),
		})
		return err
	})
	requireDecimal(t, "30", env.stock(t, 10, 1))
	requireDecimal(t, "-20", m.QtyDelta)
	requireDecimal(t, "50", m.QuantityBefore)
	requireDecimal(t, "30", m.QuantityAfter)
	require.Equal(t, FormatSerial("MOV", m.MovementDate.Year(), 2, 4), m.MovementNumber)
	require.EqualValues(t, 2, env.count(t, &models.LedgerEventRecord{}, "event_type = ?", models.EventStockMoved))
}

func TestApplyMovement_InsufficientStockLeavesNothingBehind(t *testing.T) {
	env := newTestEnv(t)
	env.receive(t, 10, 1, "50")

	err := env.tx(func(tx *gorm.DB) error {
		_, err := ApplyMovement(tx, models.NewStockMovement{
			BusinessId: env.biz, ProductId: 10, WarehouseId: 1,
			Kind: models.MovementKindOut, Quantity: dec("70"),
		})
		return err
	})
	var insufficient *models.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	requireDecimal(t, "50", insufficient.Available)
	requireDecimal(t, "70", insufficient.Requested)
	require.Equal(t, models.ErrorKindValidation, models.ClassifyError(err))

	requireDecimal(t, "50", env.stock(t, 10, 1))
	require.EqualValues(t, 1, env.count(t, &models.StockMovement{}, "product_id = ?", 10))
}

func TestApplyMovement_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]models.NewStockMovement{
		"zero quantity":     {BusinessId: env.biz, ProductId: 1, WarehouseId: 1, Kind: models.MovementKindIn},
		"negative quantity": {BusinessId: env.biz, ProductId: 1, WarehouseId: 1, Kind: models.MovementKindIn, Quantity: dec("-1")},
		"unknown kind":      {BusinessId: env.biz, ProductId: 1, WarehouseId: 1, Kind: "teleport", Quantity: dec("1")},
		"missing product":   {BusinessId: env.biz, WarehouseId: 1, Kind: models.MovementKindIn, Quantity: dec("1")},
		"negative target":   {BusinessId: env.biz, ProductId: 1, WarehouseId: 1, Kind: models.MovementKindAdjustment, Quantity: dec("-3")},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			err := env.tx(func(tx *gorm.DB) error {
				_, err := ApplyMovement(tx, input)
				return err
			})
			require.Error(t, err)
			require.Equal(t, models.ErrorKindValidation, models.ClassifyError(err))
		})
	}
}

func TestApplyMovement_Transfer(t *testing.T) {
	env := newTestEnv(t)
	env.receive(t, 10, 1, "40")

	var m *models.StockMovement
	env.run(t, func(tx *gorm.DB) (err error) {
		m, err = ApplyMovement(tx, models.NewStockMovement{
			BusinessId: env.biz, ProductId: 10, WarehouseId: 1, DestinationWarehouseId: 2,
			Kind: models.MovementKindTransfer, Quantity: dec("15"),
		})
		return err
	})
	requireDecimal(t, "25", env.stock(t, 10, 1))
	requireDecimal(t, "15", env.stock(t, 10, 2))
	requireDecimal(t, "0", m.DestinationQuantityBefore.Decimal)
	requireDecimal(t, "15", m.DestinationQuantityAfter.Decimal)

	err := env.tx(func(tx *gorm.DB) error {
		_, err := ApplyMovement(tx, models.NewStockMovement{
			BusinessId: env.biz, ProductId: 10, WarehouseId: 2, DestinationWarehouseId: 2,
			Kind: models.MovementKindTransfer, Quantity: dec("1"),
		})
		return err
	})
	var invalid *models.InvalidTransferError
	require.ErrorAs(t, err, &invalid)

	err = env.tx(func(tx *gorm.DB) error {
		_, err := ApplyMovement(tx, models.NewStockMovement{
			BusinessId: env.biz, ProductId: 10, WarehouseId: 2, DestinationWarehouseId: 1,
			Kind: models.MovementKindTransfer, Quantity: dec("16"),
		})
		return err
	})
	var insufficient *models.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	requireDecimal(t, "25", env.stock(t, 10, 1))
	requireDecimal(t, "15", env.stock(t, 10, 2))
}

func TestApplyMovement_AdjustmentSetsCountedQuantity(t *testing.T) {
	env := newTestEnv(t)
	env.receive(t, 10, 1, "12")

	var m *models.StockMovement
	env.run(t, func(tx *gorm.DB) (err error) {
		m, err = ApplyMovement(tx, models.NewStockMovement{
			BusinessId: env.biz, ProductId: 10, WarehouseId: 1,
			Kind: models.MovementKindAdjustment, Quantity: dec("9"),
		})
		return err
	})
	requireDecimal(t, "9", env.stock(t, 10, 1))
	requireDecimal(t, "-3", m.QtyDelta)
	requireDecimal(t, "3", m.Quantity)
}

func TestApplyMovement_DuplicateReference(t *testing.T) {
	env := newTestEnv(t)
	input := models.NewStockMovement{
		BusinessId: env.biz, ProductId: 10, WarehouseId: 1,
		Kind: models.MovementKindIn, Quantity: dec("5"),
		ReferenceType: "purchase", ReferenceId: 7, ReferenceLineId: 3,
	}
	var first *models.StockMovement
	env.run(t, func(tx *gorm.DB) (err error) {
		first, err = ApplyMovement(tx, input)
		return err
	})

	err := env.tx(func(tx *gorm.DB) error {
		_, err := ApplyMovement(tx, input)
		return err
	})
	var dup *models.DuplicateMovementError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, first.ID, dup.MovementId)
	require.Equal(t, models.ErrorKindConflict, models.ClassifyError(err))
	requireDecimal(t, "5", env.stock(t, 10, 1))

	// a new revision of the same line is a different reference
	input.ReferenceRevision = 1
	env.run(t, func(tx *gorm.DB) error {
		_, err := ApplyMovement(tx, input)
		return err
	})
	requireDecimal(t, "10", env.stock(t, 10, 1))
}

func TestReverseMovement(t *testing.T) {
	env := newTestEnv(t)
	input := models.NewStockMovement{
		BusinessId: env.biz, ProductId: 10, WarehouseId: 1,
		Kind: models.MovementKindIn, Quantity: dec("8"),
		ReferenceType: "purchase", ReferenceId: 1, ReferenceLineId: 1,
	}
	var original *models.StockMovement
	env.run(t, func(tx *gorm.DB) (err error) {
		original, err = ApplyMovement(tx, input)
		return err
	})

	var rev *models.StockMovement
	env.run(t, func(tx *gorm.DB) (err error) {
		rev, err = ReverseMovement(tx, env.biz, original.ID, ReversalReasonStockCorrection)
		return err
	})
	require.NotNil(t, rev)
	require.True(t, rev.IsReversal)
	require.Equal(t, original.ID, *rev.ReversesMovementId)
	requireDecimal(t, "-8", rev.QtyDelta)
	requireDecimal(t, "0", env.stock(t, 10, 1))

	var stored models.StockMovement
	require.NoError(t, env.db.First(&stored, original.ID).Error)
	require.Equal(t, rev.ID, *stored.ReversedByMovementId)
	require.Nil(t, stored.ActiveReferenceKey)
	requireDecimal(t, "8", stored.Quantity)

	// already reversed: no-op
	env.run(t, func(tx *gorm.DB) error {
		again, err := ReverseMovement(tx, env.biz, original.ID, "again")
		require.Nil(t, again)
		return err
	})
	requireDecimal(t, "0", env.stock(t, 10, 1))

	err := env.tx(func(tx *gorm.DB) error {
		_, err := ReverseMovement(tx, env.biz, rev.ID, "nope")
		return err
	})
	require.ErrorIs(t, err, models.ErrCannotReverseReversal)

	err = env.tx(func(tx *gorm.DB) error {
		_, err := ReverseMovement(tx, env.biz, 9999, "missing")
		return err
	})
	require.ErrorIs(t, err, utils.ErrorRecordNotFound)

	// the released reference can be applied again
	env.run(t, func(tx *gorm.DB) error {
		_, err := ApplyMovement(tx, input)
		return err
	})
	requireDecimal(t, "8", env.stock(t, 10, 1))
}

func TestReverseMovement_ConsumedStockBlocksReversal(t *testing.T) {
	env := newTestEnv(t)
	var in *models.StockMovement
	env.run(t, func(tx *gorm.DB) (err error) {
		in, err = ApplyMovement(tx, models.NewStockMovement{
			BusinessId: env.biz, ProductId: 10, WarehouseId: 1,
			Kind: models.MovementKindIn, Quantity: dec("10"),
		})
		return err
	})
	env.run(t, func(tx *gorm.DB) error {
		_, err := ApplyMovement(tx, models.NewStockMovement{
			BusinessId: env.biz, ProductId: 10, WarehouseId: 1,
			Kind: models.MovementKindOut, Quantity: dec("7"),
		})
		return err
	})

	err := env.tx(func(tx *gorm.DB) error {
		_, err := ReverseMovement(tx, env.biz, in.ID, ReversalReasonStockCorrection)
		return err
	})
	var insufficient *models.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	requireDecimal(t, "3", env.stock(t, 10, 1))
}

func TestReplayAndRebuildStock(t *testing.T) {
	env := newTestEnv(t)
	env.receive(t, 10, 1, "30")
	env.receive(t, 11, 1, "4")
	env.run(t, func(tx *gorm.DB) error {
		_, err := ApplyMovement(tx, models.NewStockMovement{
			BusinessId: env.biz, ProductId: 10, WarehouseId: 1, DestinationWarehouseId: 2,
			Kind: models.MovementKindTransfer, Quantity: dec("12"),
		})
		return err
	})

	env.run(t, func(tx *gorm.DB) error {
		qty, err := ReplayStock(tx, env.biz, 10, 1)
		requireDecimal(t, "18", qty)
		return err
	})
	env.run(t, func(tx *gorm.DB) error {
		qty, err := ReplayStock(tx, env.biz, 10, 2)
		requireDecimal(t, "12", qty)
		return err
	})

	env.run(t, func(tx *gorm.DB) error {
		mismatches, err := VerifyStock(tx, env.biz)
		require.Empty(t, mismatches)
		return err
	})

	// corrupt the projection, then rebuild
	require.NoError(t, env.db.Model(&models.Stock{}).
		Where("business_id = ? AND product_id = ? AND warehouse_id = ?", env.biz, 10, 1).
		Update("quantity", dec("99")).Error)

	env.run(t, func(tx *gorm.DB) error {
		mismatches, err := RebuildStock(tx, env.biz, 0, 0, true)
		require.Len(t, mismatches, 1)
		requireDecimal(t, "99", mismatches[0].Cached)
		requireDecimal(t, "18", mismatches[0].Replayed)
		return err
	})
	requireDecimal(t, "99", env.stock(t, 10, 1))

	env.run(t, func(tx *gorm.DB) error {
		_, err := RebuildStock(tx, env.biz, 10, 1, false)
		return err
	})
	requireDecimal(t, "18", env.stock(t, 10, 1))
}

type fakeCatalog struct {
	products   map[int]bool
	warehouses map[int]bool
}

func (c fakeCatalog) ProductExists(_ *gorm.DB, _ string, id int) (bool, error) {
	return c.products[id], nil
}

func (c fakeCatalog) WarehouseExists(_ *gorm.DB, _ string, id int) (bool, error) {
	return c.warehouses[id], nil
}

func TestApplyMovement_CatalogLookup(t *testing.T) {
	env := newTestEnv(t)
	SetCatalogLookup(fakeCatalog{products: map[int]bool{10: true}, warehouses: map[int]bool{1: true}})
	t.Cleanup(func() { SetCatalogLookup(nil) })

	env.receive(t, 10, 1, "1")

	for _, input := range []models.NewStockMovement{
		{BusinessId: env.biz, ProductId: 11, WarehouseId: 1, Kind: models.MovementKindIn, Quantity: dec("1")},
		{BusinessId: env.biz, ProductId: 10, WarehouseId: 2, Kind: models.MovementKindIn, Quantity: dec("1")},
	} {
		err := env.tx(func(tx *gorm.DB) error {
			_, err := ApplyMovement(tx, input)
			return err
		})
		require.ErrorIs(t, err, utils.ErrorRecordNotFound)
	}
}
