package workflow

import (
	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BootstrapChartOfAccounts creates the system accounts a business needs before anything can be posted.
// Accounts that already exist are left alone, so it is safe to run repeatedly.
func BootstrapChartOfAccounts(tx *gorm.DB, businessId string) (models.ChartOfAccounts, error) {
	if businessId == "" {
		return nil, models.ErrBusinessIdRequired
	}
	userId, _ := utils.GetUserIdFromContext(tx.Statement.Context)
	for _, def := range models.DefaultChartOfAccounts {
		account := models.Account{
			BusinessId:        businessId,
			Code:              def.Code,
			Name:              def.Name,
			Kind:              def.Kind,
			Classification:    def.Classification,
			Balance:           decimal.Zero,
			IsActive:          utils.NewTrue(),
			IsSystem:          utils.NewTrue(),
			SystemDefaultCode: def.Code,
			CreatedBy:         userId,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error; err != nil {
			config.LogError(config.GetLogger(), "chartOfAccounts.go", "BootstrapChartOfAccounts", "create system account", def.Code, err)
			return nil, err
		}
	}
	return models.LoadChartOfAccounts(tx, businessId)
}
