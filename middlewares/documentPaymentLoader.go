package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/erp_core/models"
	"gorm.io/gorm"
)

type documentPaymentReader struct {
	db *gorm.DB
}

func (r *documentPaymentReader) getPayments(ctx context.Context, documentIds []int) []*dataloader.Result[[]*models.DocumentPayment] {
	biz, err := businessOf(ctx)
	if err != nil {
		return handleError[[]*models.DocumentPayment](len(documentIds), err)
	}
	var results []models.DocumentPayment
	err = r.db.WithContext(ctx).
		Where("business_id = ? AND document_id IN ?", biz, documentIds).
		Order("id").
		Find(&results).Error
	if err != nil {
		return handleError[[]*models.DocumentPayment](len(documentIds), err)
	}
	return generateLoaderArrayResults(results, documentIds, func(p *models.DocumentPayment) int { return p.DocumentId })
}

// GetDocumentPayments returns a document's payments, reversed ones included, oldest first.
func GetDocumentPayments(ctx context.Context, documentId int) ([]*models.DocumentPayment, error) {
	return For(ctx).DocumentPaymentLoader.Load(ctx, documentId)()
}
