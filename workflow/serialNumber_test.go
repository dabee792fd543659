package workflow

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmdatafocus/erp_core/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestFormatSerial(t *testing.T) {
	require.Equal(t, "SALE2024-0001", FormatSerial("SALE", 2024, 1, 4))
	require.Equal(t, "PUR2025-0042", FormatSerial("PUR", 2025, 42, 4))
	require.Equal(t, "TRX2025-12345", FormatSerial("TRX", 2025, 12345, 4))
	require.Equal(t, "MOV2025-000007", FormatSerial("MOV", 2025, 7, 6))
}

func TestNextNumber_IncrementsPerScope(t *testing.T) {
	env := newTestEnv(t)
	next := func(docType models.DocumentType, year int) string {
		var n string
		env.run(t, func(tx *gorm.DB) (err error) {
			n, err = NextNumber(tx, env.biz, docType, year)
			return err
		})
		return n
	}

	require.Equal(t, "SALE2024-0001", next(models.DocumentTypeSale, 2024))
	require.Equal(t, "SALE2024-0002", next(models.DocumentTypeSale, 2024))
	require.Equal(t, "PUR2024-0001", next(models.DocumentTypePurchase, 2024))
	require.Equal(t, "SALE2025-0001", next(models.DocumentTypeSale, 2025))
	require.Equal(t, "SALE2024-0003", next(models.DocumentTypeSale, 2024))
}

func TestNextNumber_SkipsNumbersIssuedOutOfBand(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, func(tx *gorm.DB) error {
		return tx.Create(&models.Document{
			BusinessId:   env.biz,
			DocumentType: models.DocumentTypeSale,
			Number:       "SALE2024-0007",
			DocumentDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Status:       models.DocumentStatusDraft,
			WarehouseId:  1,
		}).Error
	})

	var n string
	env.run(t, func(tx *gorm.DB) (err error) {
		n, err = NextNumber(tx, env.biz, models.DocumentTypeSale, 2024)
		return err
	})
	require.Equal(t, "SALE2024-0008", n)
}

func TestNextNumber_RollbackReleasesNumber(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("boom")
	err := env.tx(func(tx *gorm.DB) error {
		if _, err := NextNumber(tx, env.biz, models.DocumentTypePurchase, 2024); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n string
	env.run(t, func(tx *gorm.DB) (err error) {
		n, err = NextNumber(tx, env.biz, models.DocumentTypePurchase, 2024)
		return err
	})
	require.Equal(t, "PUR2024-0001", n)
}

func TestNextNumber_RejectsUnknownTypeAndYear(t *testing.T) {
	env := newTestEnv(t)
	err := env.tx(func(tx *gorm.DB) error {
		_, err := NextNumber(tx, env.biz, models.DocumentType("invoice"), 2024)
		return err
	})
	var numbering *models.NumberingError
	require.ErrorAs(t, err, &numbering)
	require.Equal(t, models.ErrorKindInfrastructure, models.ClassifyError(err))

	err = env.tx(func(tx *gorm.DB) error {
		_, err := NextNumber(tx, env.biz, models.DocumentTypeSale, 0)
		return err
	})
	require.ErrorAs(t, err, &numbering)
}

func TestNextNumber_ManySequentialCallsAreGapless(t *testing.T) {
	env := newTestEnv(t)
	seen := make(map[string]bool)
	for i := 1; i <= 25; i++ {
		var n string
		env.run(t, func(tx *gorm.DB) (err error) {
			n, err = NextNumber(tx, env.biz, models.DocumentTypeTransaction, 2030)
			return err
		})
		require.Equal(t, fmt.Sprintf("TRX2030-%04d", i), n)
		require.False(t, seen[n])
		seen[n] = true
	}
}
