package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// testEnv is one in-memory database with a bootstrapped business.
type testEnv struct {
	db    *gorm.DB
	ctx   context.Context
	biz   string
	chart models.ChartOfAccounts
}

// newTestEnv opens a private SQLite database on a single connection, so row locks degrade to
// serialized access, and installs it as the global DB.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("DB_MAX_OPEN_CONNS", "1")
	t.Setenv("DB_MAX_IDLE_CONNS", "1")

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := config.OpenDatabase(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	require.NoError(t, err)
	require.NoError(t, models.MigrateTable(db))

	prev := config.GetDB()
	config.UseDB(db)
	t.Cleanup(func() {
		config.UseDB(prev)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	env := &testEnv{db: db, biz: "biz-" + uuid.NewString()[:8]}
	env.ctx = utils.SetUserInContext(utils.SetBusinessIdInContext(context.Background(), env.biz), 1, "Tester")
	env.run(t, func(tx *gorm.DB) error {
		env.chart, err = BootstrapChartOfAccounts(tx, env.biz)
		return err
	})
	return env
}

// run executes fn in one transaction and fails the test on error.
func (e *testEnv) run(t *testing.T, fn func(tx *gorm.DB) error) {
	t.Helper()
	require.NoError(t, e.tx(fn))
}

func (e *testEnv) tx(fn func(tx *gorm.DB) error) error {
	return e.db.WithContext(e.ctx).Transaction(fn)
}

func (e *testEnv) account(t *testing.T, code string) *models.Account {
	t.Helper()
	var a models.Account
	require.NoError(t, e.db.WithContext(e.ctx).Where("business_id = ? AND code = ?", e.biz, code).First(&a).Error)
	return &a
}

func (e *testEnv) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	return e.account(t, code).Balance
}

func (e *testEnv) stock(t *testing.T, productId, warehouseId int) decimal.Decimal {
	t.Helper()
	qty, err := models.GetStockQuantity(e.db.WithContext(e.ctx), e.biz, productId, warehouseId)
	require.NoError(t, err)
	return qty
}

func (e *testEnv) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.WithContext(e.ctx).Model(model).Where("business_id = ?", e.biz).Where(query, args...).Count(&n).Error)
	return n
}

func (e *testEnv) receive(t *testing.T, productId, warehouseId int, qty string) {
	t.Helper()
	e.run(t, func(tx *gorm.DB) error {
		_, err := ApplyMovement(tx, models.NewStockMovement{
			BusinessId:  e.biz,
			ProductId:   productId,
			WarehouseId: warehouseId,
			Kind:        models.MovementKindIn,
			Quantity:    dec(qty),
		})
		return err
	})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func thisYear() int {
	return time.Now().UTC().Year()
}
