package graph

import (
	"context"
	"errors"

	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/middlewares"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/mmdatafocus/erp_core/workflow"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("db is nil")

type Resolver struct {
	Tracer trace.Tracer
}

// documentLine is a line resolved under its document, which supplies the warehouse for stock lookups.
type documentLine struct {
	models.DocumentLine
	warehouseId int
}

func (r *Resolver) fieldResolvers() map[string]map[string]fieldResolver {
	return map[string]map[string]fieldResolver{
		"Query": {
			"document":       r.document,
			"documents":      r.documents,
			"stock":          r.stock,
			"stockMovements": r.stockMovements,
			"account":        r.account,
			"accounts":       r.accounts,
			"transaction":    r.transaction,
			"transactions":   r.transactions,
			"cashEntry":      r.cashEntry,
			"cashEntries":    r.cashEntries,
		},
		"Mutation": {
			"createDocument":     r.mutation("CreateDocument", r.createDocument),
			"editDocument":       r.mutation("EditDocument", r.editDocument),
			"confirmDocument":    r.mutation("ConfirmDocument", r.confirmDocument),
			"cancelDocument":     r.mutation("CancelDocument", r.cancelDocument),
			"deleteDocument":     r.mutation("DeleteDocument", r.deleteDocument),
			"recordPayment":      r.mutation("RecordPayment", r.recordPayment),
			"reverseTransaction": r.mutation("ReverseTransaction", r.reverseTransaction),
			"createCashEntry":    r.mutation("CreateCashEntry", r.createCashEntry),
			"settleCashEntry":    r.mutation("SettleCashEntry", r.settleCashEntry),
			"cancelCashEntry":    r.mutation("CancelCashEntry", r.cancelCashEntry),
		},
		"Document": {
			"lines":    documentLines,
			"payments": documentPayments,
		},
		"DocumentLine": {
			"stock": func(ctx context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
				line := obj.(documentLine)
				return middlewares.GetStock(ctx, line.ProductId, line.warehouseId)
			},
		},
		"DocumentPayment": {
			"account": func(ctx context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
				return middlewares.GetAccount(ctx, obj.(models.DocumentPayment).AccountId)
			},
		},
		"TransactionLine": {
			"account": func(ctx context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
				return middlewares.GetAccount(ctx, obj.(models.TransactionLine).AccountId)
			},
		},
		"StockMovement": {
			"stock": func(ctx context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
				m := obj.(models.StockMovement)
				return middlewares.GetStock(ctx, m.ProductId, m.WarehouseId)
			},
		},
		"CashEntry": {
			"account": func(ctx context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
				return middlewares.GetAccount(ctx, obj.(models.CashEntry).AccountId)
			},
			"settlementAccount": func(ctx context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
				entry := obj.(models.CashEntry)
				if entry.SettlementAccountId == nil {
					return nil, nil
				}
				return middlewares.GetAccount(ctx, *entry.SettlementAccountId)
			},
		},
	}
}

// mutation traces a mutation and records its failure on the span.
func (r *Resolver) mutation(name string, fn fieldResolver) fieldResolver {
	return func(ctx context.Context, obj interface{}, args map[string]interface{}) (interface{}, error) {
		if r.Tracer == nil {
			return fn(ctx, obj, args)
		}
		ctx, span := r.Tracer.Start(ctx, "graph."+name)
		defer span.End()
		res, err := fn(ctx, obj, args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(models.ClassifyError(err)))
		}
		return res, err
	}
}

// read runs fn against the global DB scoped to the caller's business.
func read(ctx context.Context, fn func(tx *gorm.DB, businessId string) error) error {
	biz, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return models.ErrBusinessIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return errDBUnavailable
	}
	return fn(db.WithContext(ctx), biz)
}

func (r *Resolver) document(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	var doc *models.Document
	err := read(ctx, func(tx *gorm.DB, biz string) (err error) {
		doc, err = models.GetDocument(tx, biz, intArg(args, "id"))
		return err
	})
	return doc, err
}

func (r *Resolver) documents(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	filter := models.DocumentFilter{
		DocumentType:     models.DocumentType(stringArg(args, "documentType")),
		Status:           models.DocumentStatus(stringArg(args, "status")),
		OriginDocumentId: intArg(args, "originDocumentId"),
	}
	limit, after := pageArgs(args)
	var conn *models.Connection[models.Document]
	err := read(ctx, func(tx *gorm.DB, biz string) (err error) {
		conn, err = models.ListDocuments(tx, biz, filter, limit, after)
		return err
	})
	return conn, err
}

func (r *Resolver) stock(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	return middlewares.GetStock(ctx, intArg(args, "productId"), intArg(args, "warehouseId"))
}

func (r *Resolver) stockMovements(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	filter := models.MovementFilter{ProductId: intArg(args, "productId"), WarehouseId: intArg(args, "warehouseId")}
	limit, after := pageArgs(args)
	var conn *models.Connection[models.StockMovement]
	err := read(ctx, func(tx *gorm.DB, biz string) (err error) {
		conn, err = models.ListStockMovements(tx, biz, filter, limit, after)
		return err
	})
	return conn, err
}

func (r *Resolver) account(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	var account *models.Account
	err := read(ctx, func(tx *gorm.DB, biz string) (err error) {
		account, err = utils.FetchModelTx[models.Account](tx, biz, intArg(args, "id"))
		return err
	})
	return account, err
}

func (r *Resolver) accounts(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	var accounts []models.Account
	err := read(ctx, func(tx *gorm.DB, biz string) error {
		q := tx.Where("business_id = ?", biz)
		if class := stringArg(args, "classification"); class != "" {
			q = q.Where("classification = ?", class)
		}
		return q.Order("code").Find(&accounts).Error
	})
	return accounts, err
}

func (r *Resolver) transaction(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	var trx *models.Transaction
	err := read(ctx, func(tx *gorm.DB, biz string) (err error) {
		trx, err = models.GetTransaction(tx, biz, intArg(args, "id"))
		return err
	})
	return trx, err
}

func (r *Resolver) transactions(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	filter := models.TransactionFilter{
		AccountId:     intArg(args, "accountId"),
		ReferenceType: stringArg(args, "referenceType"),
		ReferenceId:   intArg(args, "referenceId"),
	}
	limit, after := pageArgs(args)
	var conn *models.Connection[models.Transaction]
	err := read(ctx, func(tx *gorm.DB, biz string) (err error) {
		conn, err = models.ListTransactions(tx, biz, filter, limit, after)
		return err
	})
	return conn, err
}

func (r *Resolver) cashEntry(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	var entry *models.CashEntry
	err := read(ctx, func(tx *gorm.DB, biz string) (err error) {
		entry, err = models.GetCashEntry(tx, biz, intArg(args, "id"))
		return err
	})
	return entry, err
}

func (r *Resolver) cashEntries(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	filter := models.CashEntryFilter{
		Kind:   models.CashEntryKind(stringArg(args, "kind")),
		Status: models.CashEntryStatus(stringArg(args, "status")),
	}
	limit, after := pageArgs(args)
	var conn *models.Connection[models.CashEntry]
	err := read(ctx, func(tx *gorm.DB, biz string) (err error) {
		conn, err = models.ListCashEntries(tx, biz, filter, limit, after)
		return err
	})
	return conn, err
}

func documentLines(_ context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
	doc := obj.(models.Document)
	lines := make([]documentLine, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		lines = append(lines, documentLine{DocumentLine: l, warehouseId: doc.WarehouseId})
	}
	return lines, nil
}

func documentPayments(ctx context.Context, obj interface{}, _ map[string]interface{}) (interface{}, error) {
	return middlewares.GetDocumentPayments(ctx, obj.(models.Document).ID)
}

func (r *Resolver) createDocument(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	var input models.NewDocument
	if err := decodeInput("NewDocument", args["input"], &input); err != nil {
		return nil, err
	}
	return workflow.CreateDocument(ctx, &input)
}

func (r *Resolver) editDocument(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	var input models.NewDocument
	if err := decodeInput("NewDocument", args["input"], &input); err != nil {
		return nil, err
	}
	return workflow.EditDocument(ctx, intArg(args, "id"), &input)
}

func (r *Resolver) confirmDocument(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	return workflow.ConfirmDocument(ctx, intArg(args, "id"))
}

func (r *Resolver) cancelDocument(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	return workflow.CancelDocument(ctx, intArg(args, "id"), stringArg(args, "reason"))
}

func (r *Resolver) deleteDocument(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	if err := workflow.DeleteDocument(ctx, intArg(args, "id")); err != nil {
		return nil, err
	}
	return true, nil
}

func (r *Resolver) recordPayment(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	var input models.NewPayment
	if err := decodeInput("NewPayment", args["input"], &input); err != nil {
		return nil, err
	}
	return workflow.RecordPayment(ctx, intArg(args, "documentId"), input)
}

func (r *Resolver) reverseTransaction(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	reason := stringArg(args, "reason")
	if reason == "" {
		reason = workflow.ReversalReasonManual
	}
	biz, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		return nil, models.ErrBusinessIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, errDBUnavailable
	}
	var reversal *models.Transaction
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reversalId, err := workflow.ReverseTransaction(tx, biz, intArg(args, "id"), reason)
		if err != nil {
			return err
		}
		reversal, err = models.GetTransaction(tx, biz, reversalId)
		return err
	})
	return reversal, err
}

func (r *Resolver) createCashEntry(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	var input models.NewCashEntry
	if err := decodeInput("NewCashEntry", args["input"], &input); err != nil {
		return nil, err
	}
	return workflow.CreateCashEntry(ctx, input)
}

func (r *Resolver) settleCashEntry(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	var input models.CashEntrySettlement
	if err := decodeInput("CashEntrySettlement", args["input"], &input); err != nil {
		return nil, err
	}
	return workflow.SettleCashEntry(ctx, intArg(args, "id"), input)
}

func (r *Resolver) cancelCashEntry(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	return workflow.CancelCashEntry(ctx, intArg(args, "id"), stringArg(args, "reason"))
}
