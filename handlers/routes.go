package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the ledger, stock and document endpoints. The group is expected to run
// behind middlewares.AuthMiddleware so that the business and actor are in the request context.
func RegisterRoutes(r gin.IRouter) {
	accounts := r.Group("/accounts")
	accounts.POST("", createAccount)
	accounts.POST("/bootstrap", bootstrapAccounts)
	accounts.GET("/:id", getAccount)
	accounts.POST("/:id/deactivate", deactivateAccount)
	accounts.POST("/:id/opening-balance", setOpeningBalance)
	accounts.POST("/:id/adjust", adjustAccountBalance)
	accounts.POST("/:id/reconcile", reconcileAccount)

	transactions := r.Group("/transactions")
	transactions.GET("", listTransactions)
	transactions.POST("", postTransaction)
	transactions.GET("/:id", getTransaction)
	transactions.POST("/:id/reverse", reverseTransaction)

	stock := r.Group("/stock")
	stock.GET("/movements", listMovements)
	stock.POST("/movements", applyMovement)
	stock.POST("/movements/:id/reverse", reverseMovement)
	stock.GET("/:product/:warehouse", getStock)

	r.POST("/numbers/next", nextNumber)

	documents := r.Group("/documents")
	documents.GET("", listDocuments)
	documents.POST("", createDocument)
	documents.GET("/:id", getDocument)
	documents.PUT("/:id", editDocument)
	documents.DELETE("/:id", deleteDocument)
	documents.POST("/:id/confirm", confirmDocument)
	documents.POST("/:id/cancel", cancelDocument)
	documents.POST("/:id/payments", recordPayment)

	entries := r.Group("/cash-entries")
	entries.GET("", listCashEntries)
	entries.POST("", createCashEntry)
	entries.GET("/:id", getCashEntry)
	entries.POST("/:id/settle", settleCashEntry)
	entries.POST("/:id/cancel", cancelCashEntry)

	outbox := r.Group("/outbox")
	outbox.POST("/requeue", requeueDeadEvents)
}
