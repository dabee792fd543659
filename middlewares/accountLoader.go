package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/erp_core/models"
	"gorm.io/gorm"
)

type accountReader struct {
	db *gorm.DB
}

func (r *accountReader) getAccounts(ctx context.Context, ids []int) []*dataloader.Result[*models.Account] {
	biz, err := businessOf(ctx)
	if err != nil {
		return handleError[*models.Account](len(ids), err)
	}
	var results []models.Account
	err = r.db.WithContext(ctx).Where("business_id = ? AND id IN ?", biz, ids).Find(&results).Error
	if err != nil {
		return handleError[*models.Account](len(ids), err)
	}
	return generateLoaderResults(results, ids,
		func(a *models.Account) int { return a.ID },
		func(int) *models.Account { return nil })
}

// GetAccount returns one account of the caller's business, or nil when there is none.
func GetAccount(ctx context.Context, id int) (*models.Account, error) {
	return For(ctx).AccountLoader.Load(ctx, id)()
}
