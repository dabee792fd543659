package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"gorm.io/gorm"
)

type loaderCtxKey string

const (
	loadersKey = loaderCtxKey("dataloaders")
	loaderWait = time.Millisecond
)

// Loaders batch the per-row lookups GraphQL list resolvers make. One set lives for one request.
type Loaders struct {
	AccountLoader         *dataloader.Loader[int, *models.Account]
	StockLoader           *dataloader.Loader[StockKey, *models.Stock]
	DocumentPaymentLoader *dataloader.Loader[int, []*models.DocumentPayment]
}

func NewLoaders(conn *gorm.DB) *Loaders {
	accountReader := &accountReader{db: conn}
	stockReader := &stockReader{db: conn}
	paymentReader := &documentPaymentReader{db: conn}

	return &Loaders{
		AccountLoader:         dataloader.NewBatchedLoader(accountReader.getAccounts, dataloader.WithWait[int, *models.Account](loaderWait)),
		StockLoader:           dataloader.NewBatchedLoader(stockReader.getStocks, dataloader.WithWait[StockKey, *models.Stock](loaderWait)),
		DocumentPaymentLoader: dataloader.NewBatchedLoader(paymentReader.getPayments, dataloader.WithWait[int, []*models.DocumentPayment](loaderWait)),
	}
}

// LoaderMiddleware puts a fresh set of loaders in the request context.
func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithLoaders(c.Request.Context(), NewLoaders(config.GetDB()))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func WithLoaders(ctx context.Context, loaders *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, loaders)
}

// For returns the request's loaders. Callers outside LoaderMiddleware get an unshared set.
func For(ctx context.Context) *Loaders {
	if loaders, ok := ctx.Value(loadersKey).(*Loaders); ok {
		return loaders
	}
	return NewLoaders(config.GetDB())
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// generateLoaderResults orders rows by the requested keys. A key with no row yields missing(key).
func generateLoaderResults[K comparable, T any](results []T, keys []K, keyOf func(*T) K, missing func(K) *T) []*dataloader.Result[*T] {
	resultMap := make(map[K]*T, len(results))
	for i := range results {
		resultMap[keyOf(&results[i])] = &results[i]
	}
	loaderResults := make([]*dataloader.Result[*T], 0, len(keys))
	for _, key := range keys {
		data, ok := resultMap[key]
		if !ok {
			data = missing(key)
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: data})
	}
	return loaderResults
}

// generateLoaderArrayResults groups rows under the key each one references.
func generateLoaderArrayResults[T any](results []T, keys []int, referenceOf func(*T) int) []*dataloader.Result[[]*T] {
	resultMap := make(map[int][]*T)
	for i := range results {
		ref := referenceOf(&results[i])
		resultMap[ref] = append(resultMap[ref], &results[i])
	}
	loaderResults := make([]*dataloader.Result[[]*T], 0, len(keys))
	for _, key := range keys {
		loaderResults = append(loaderResults, &dataloader.Result[[]*T]{Data: resultMap[key]})
	}
	return loaderResults
}

func businessOf(ctx context.Context) (string, error) {
	biz, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return "", models.ErrBusinessIdRequired
	}
	return biz, nil
}
