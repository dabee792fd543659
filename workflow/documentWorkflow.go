package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/mmdatafocus/erp_core/workflow")

// documentOperation runs fn as one DB transaction for the business in ctx.
// When documentId is set, the MySQL advisory lock for that document is held until the transaction has committed.
func documentOperation(ctx context.Context, name string, documentId int, fn func(tx *gorm.DB, businessId string) error) error {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if businessId == "" {
		return models.ErrBusinessIdRequired
	}
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("business_id", businessId),
		attribute.Int("document_id", documentId),
	))
	defer span.End()

	db := config.GetDB()
	if db == nil {
		return errors.New("db is nil")
	}
	run := func(session *gorm.DB) error {
		return session.Transaction(func(tx *gorm.DB) error {
			return fn(tx, businessId)
		})
	}
	var err error
	if documentId > 0 {
		err = withDocumentLock(db.WithContext(ctx), businessId, documentId, run)
	} else {
		err = run(db.WithContext(ctx))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if models.ClassifyError(err) == models.ErrorKindInfrastructure {
			config.LogError(config.GetLogger(), "documentWorkflow.go", name, "document operation", documentId, err)
		}
	}
	return err
}

// CreateDocument stores a draft. Drafts have no stock or ledger effect and no number yet.
func CreateDocument(ctx context.Context, input *models.NewDocument) (*models.Document, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	var doc *models.Document
	err := documentOperation(ctx, "CreateDocument", 0, func(tx *gorm.DB, businessId string) error {
		userId, _ := utils.GetUserIdFromContext(ctx)
		doc = &models.Document{
			BusinessId:       businessId,
			DocumentType:     input.DocumentType,
			DocumentDate:     input.DocumentDate,
			Status:           models.DocumentStatusDraft,
			WarehouseId:      input.WarehouseId,
			PartyId:          input.PartyId,
			PartyName:        input.PartyName,
			PaymentMethod:    input.PaymentMethod,
			PaymentStatus:    models.PaymentStatusUnpaid,
			PaidAmount:       decimal.Zero,
			DiscountAmount:   input.DiscountAmount,
			TaxAmount:        input.TaxAmount,
			OriginDocumentId: input.OriginDocumentId,
			Notes:            input.Notes,
			Lines:            input.BuildLines(businessId),
			CreatedBy:        userId,
		}
		if doc.PaymentMethod == "" {
			doc.PaymentMethod = models.PaymentMethodCredit
		}
		if doc.DocumentType.IsReturn() {
			origin, err := models.GetDocument(tx, businessId, *doc.OriginDocumentId)
			if err != nil {
				return err
			}
			if err := checkReturnOrigin(doc, origin); err != nil {
				return err
			}
			// a return settles the same way its origin did
			doc.PaymentMethod = origin.PaymentMethod
		}
		doc.Recalculate()
		if doc.Total.IsNegative() {
			return &models.ValidationError{Field: "discount_amount", Message: "document total must not be negative"}
		}
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		return models.CreateDocumentHistory(tx, models.HistoryActionCreate, doc, "", nil, doc, "Created draft")
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ConfirmDocument posts a draft: numbers it, moves stock per line, posts its transaction and,
// for returns, refreshes the origin's return status. Any failure rolls everything back.
func ConfirmDocument(ctx context.Context, documentId int) (*models.Document, error) {
	var doc *models.Document
	err := documentOperation(ctx, "ConfirmDocument", documentId, func(tx *gorm.DB, businessId string) error {
		var err error
		doc, err = lockDocument(tx, businessId, documentId)
		if err != nil {
			return err
		}
		if !models.CanTransition(doc.Status, models.DocumentStatusConfirmed) {
			return models.TransitionError(doc.Status, models.DocumentStatusConfirmed)
		}
		if len(doc.Lines) == 0 {
			return &models.ValidationError{Field: "lines", Message: "document has no lines"}
		}
		fromStatus := doc.Status

		var origin *models.Document
		if doc.DocumentType.IsReturn() {
			if origin, err = validateReturn(tx, doc); err != nil {
				return err
			}
		}
		if doc.Number == "" {
			if doc.Number, err = NextNumber(tx, businessId, doc.DocumentType, doc.DocumentDate.Year()); err != nil {
				return err
			}
		}

		for _, line := range linesByProduct(doc.Lines) {
			if _, err := ApplyMovement(tx, documentMovement(doc, line.ID, line.ProductId, doc.DocumentType.MovementKind(), line.Quantity)); err != nil {
				return err
			}
		}

		doc.Recalculate()
		trx, err := postDocumentTransaction(tx, doc, origin)
		if err != nil {
			return err
		}
		if trx != nil {
			doc.TransactionId = &trx.ID
		}
		if doc.PaymentMethod == models.PaymentMethodCash {
			doc.PaidAmount = doc.Total
		}
		doc.RefreshPaymentStatus()
		doc.Status = models.DocumentStatusConfirmed
		if err := saveDocumentHeader(tx, doc); err != nil {
			return err
		}

		if origin != nil {
			if err := refreshOriginStatus(tx, origin); err != nil {
				return err
			}
		}
		if err := models.CreateDocumentHistory(tx, models.HistoryActionConfirm, doc, fromStatus, nil, nil, "Confirmed "+doc.Number); err != nil {
			return err
		}
		return enqueueDocumentEvent(tx, models.EventDocumentConfirmed, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// lockDocument loads the document FOR UPDATE with its lines in id order.
func lockDocument(tx *gorm.DB, businessId string, id int) (*models.Document, error) {
	doc, err := utils.LockModel[models.Document](tx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Where("business_id = ? AND document_id = ?", businessId, doc.ID).Order("id ASC").Find(&doc.Lines).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

// linesByProduct orders lines by product then line id, the order stock rows are locked in.
func linesByProduct(lines []models.DocumentLine) []models.DocumentLine {
	sorted := append([]models.DocumentLine(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ProductId != sorted[j].ProductId {
			return sorted[i].ProductId < sorted[j].ProductId
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func saveDocumentHeader(tx *gorm.DB, doc *models.Document) error {
	return tx.Model(&models.Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]interface{}{
			"number":          doc.Number,
			"status":          doc.Status,
			"transaction_id":  doc.TransactionId,
			"paid_amount":     doc.PaidAmount,
			"payment_status":  doc.PaymentStatus,
			"subtotal":        doc.Subtotal,
			"discount_amount": doc.DiscountAmount,
			"tax_amount":      doc.TaxAmount,
			"total":           doc.Total,
			"revision":        doc.Revision,
		}).Error
}

func documentMovement(doc *models.Document, lineId, productId int, kind models.MovementKind, quantity decimal.Decimal) models.NewStockMovement {
	return models.NewStockMovement{
		BusinessId:        doc.BusinessId,
		ProductId:         productId,
		WarehouseId:       doc.WarehouseId,
		Kind:              kind,
		Quantity:          quantity,
		ReferenceType:     string(doc.DocumentType),
		ReferenceId:       doc.ID,
		ReferenceLineId:   lineId,
		ReferenceRevision: doc.Revision,
		MovementDate:      doc.DocumentDate,
		Description:       doc.Number,
	}
}

// documentLegs returns the debit and credit account codes for a document's posting.
func documentLegs(doc *models.Document, origin *models.Document) (debit, credit string, trxType models.TransactionType, err error) {
	settlement := func(method models.PaymentMethod, credit string) string {
		if method == models.PaymentMethodCash {
			return models.AccountCodeCash
		}
		return credit
	}
	switch doc.DocumentType {
	case models.DocumentTypeSale:
		return settlement(doc.PaymentMethod, models.AccountCodeReceivable), models.AccountCodeSalesRevenue, models.TransactionTypeIncome, nil
	case models.DocumentTypePurchase:
		return models.AccountCodePurchasesExpense, settlement(doc.PaymentMethod, models.AccountCodePayable), models.TransactionTypeExpense, nil
	case models.DocumentTypeSaleReturn:
		return models.AccountCodeSalesRevenue, settlement(origin.PaymentMethod, models.AccountCodeReceivable), models.TransactionTypeJournal, nil
	case models.DocumentTypePurchaseReturn:
		return settlement(origin.PaymentMethod, models.AccountCodePayable), models.AccountCodePurchasesExpense, models.TransactionTypeJournal, nil
	}
	return "", "", "", &models.ValidationError{Field: "document_type", Message: "not a trade document"}
}

// postDocumentTransaction posts the document total. A zero total posts nothing.
func postDocumentTransaction(tx *gorm.DB, doc *models.Document, origin *models.Document) (*models.Transaction, error) {
	if !doc.Total.IsPositive() {
		return nil, nil
	}
	debitCode, creditCode, trxType, err := documentLegs(doc, origin)
	if err != nil {
		return nil, err
	}
	chart, err := models.LoadChartOfAccounts(tx, doc.BusinessId)
	if err != nil {
		return nil, err
	}
	debitId, err := chart.Require(debitCode)
	if err != nil {
		return nil, err
	}
	creditId, err := chart.Require(creditCode)
	if err != nil {
		return nil, err
	}
	return PostTransaction(tx, models.NewTransaction{
		BusinessId:       doc.BusinessId,
		TransactionDate:  doc.DocumentDate,
		Type:             trxType,
		AccountId:        &debitId,
		CounterAccountId: &creditId,
		ReferenceType:    string(doc.DocumentType),
		ReferenceId:      doc.ID,
		ReferenceNumber:  doc.Number,
		Description:      fmt.Sprintf("%s %s", doc.DocumentType, doc.Number),
		Lines: []models.NewTransactionLine{
			{AccountId: debitId, Debit: doc.Total},
			{AccountId: creditId, Credit: doc.Total},
		},
		RequireNonNegativeCash: true,
	})
}

func enqueueDocumentEvent(tx *gorm.DB, eventType string, doc *models.Document) error {
	return models.EnqueueLedgerEvent(tx, doc.BusinessId, eventType, string(doc.DocumentType), doc.ID, map[string]interface{}{
		"number":         doc.Number,
		"status":         doc.Status,
		"total":          doc.Total,
		"paid_amount":    doc.PaidAmount,
		"revision":       doc.Revision,
		"transaction_id": doc.TransactionId,
	})
}

// checkReturnOrigin checks the origin document can take a return of this type.
func checkReturnOrigin(doc, origin *models.Document) error {
	if origin.DocumentType != doc.DocumentType.OriginType() {
		return fmt.Errorf("%w: %s cannot return a %s", models.ErrInvalidReturn, doc.DocumentType, origin.DocumentType)
	}
	if !origin.Status.IsPosted() {
		return fmt.Errorf("%w: origin %d is %s", models.ErrInvalidReturn, origin.ID, origin.Status)
	}
	return nil
}

// validateReturn locks the origin and checks every returned line against what is still returnable.
func validateReturn(tx *gorm.DB, doc *models.Document) (*models.Document, error) {
	if doc.OriginDocumentId == nil {
		return nil, fmt.Errorf("%w: origin document is required", models.ErrInvalidReturn)
	}
	origin, err := lockDocument(tx, doc.BusinessId, *doc.OriginDocumentId)
	if err != nil {
		return nil, err
	}
	if err := checkReturnOrigin(doc, origin); err != nil {
		return nil, err
	}
	if origin.WarehouseId != doc.WarehouseId {
		return nil, fmt.Errorf("%w: return warehouse differs from origin", models.ErrInvalidReturn)
	}

	returned, err := returnedQuantities(tx, doc.BusinessId, origin.ID, doc.ID)
	if err != nil {
		return nil, err
	}
	originLines := make(map[int]models.DocumentLine, len(origin.Lines))
	for _, l := range origin.Lines {
		originLines[l.ID] = l
	}
	requested := make(map[int]decimal.Decimal)
	for _, l := range doc.Lines {
		if l.OriginLineId == nil {
			return nil, fmt.Errorf("%w: line %d has no origin line", models.ErrInvalidReturn, l.ID)
		}
		ol, ok := originLines[*l.OriginLineId]
		if !ok {
			return nil, fmt.Errorf("%w: line %d is not on the origin document", models.ErrInvalidReturn, *l.OriginLineId)
		}
		if ol.ProductId != l.ProductId {
			return nil, fmt.Errorf("%w: product %d does not match origin line %d", models.ErrInvalidReturn, l.ProductId, ol.ID)
		}
		requested[ol.ID] = requested[ol.ID].Add(l.Quantity)
	}
	for id, qty := range requested {
		remaining := originLines[id].Quantity.Sub(returned[id])
		if qty.GreaterThan(remaining) {
			return nil, fmt.Errorf("%w: origin line %d has %s left to return, requested %s",
				models.ErrInvalidReturn, id, remaining.String(), qty.String())
		}
	}
	return origin, nil
}

// returnedQuantities sums confirmed return quantities per origin line, leaving out excludeId.
func returnedQuantities(tx *gorm.DB, businessId string, originId, excludeId int) (map[int]decimal.Decimal, error) {
	var rows []struct {
		OriginLineId int
		Quantity     decimal.Decimal
	}
	posted := []models.DocumentStatus{models.DocumentStatusConfirmed, models.DocumentStatusReturnedPartial, models.DocumentStatusReturnedFull}
	if err := tx.Table("document_lines").
		Select("document_lines.origin_line_id AS origin_line_id, document_lines.quantity AS quantity").
		Joins("JOIN documents ON documents.id = document_lines.document_id").
		Where("documents.business_id = ? AND documents.origin_document_id = ?", businessId, originId).
		Where("documents.status IN ? AND documents.id <> ? AND documents.deleted_at IS NULL", posted, excludeId).
		Where("document_lines.origin_line_id IS NOT NULL").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.OriginLineId] = out[r.OriginLineId].Add(r.Quantity)
	}
	return out, nil
}

// refreshOriginStatus derives the origin's status from its confirmed returns.
func refreshOriginStatus(tx *gorm.DB, origin *models.Document) error {
	if !origin.Status.IsPosted() {
		return nil
	}
	returned, err := returnedQuantities(tx, origin.BusinessId, origin.ID, 0)
	if err != nil {
		return err
	}
	status := originReturnStatus(origin.Lines, returned)
	if status == origin.Status {
		return nil
	}
	fromStatus := origin.Status
	if err := tx.Model(&models.Document{}).Where("id = ?", origin.ID).Update("status", status).Error; err != nil {
		return err
	}
	origin.Status = status
	return models.CreateDocumentHistory(tx, models.HistoryActionReturn, origin, fromStatus, nil, returned,
		fmt.Sprintf("Return status %s -> %s", fromStatus, status))
}

func originReturnStatus(lines []models.DocumentLine, returned map[int]decimal.Decimal) models.DocumentStatus {
	some, all := false, len(lines) > 0
	for _, l := range lines {
		r := returned[l.ID]
		if r.IsPositive() {
			some = true
		}
		if r.LessThan(l.Quantity) {
			all = false
		}
	}
	switch {
	case all:
		return models.DocumentStatusReturnedFull
	case some:
		return models.DocumentStatusReturnedPartial
	}
	return models.DocumentStatusConfirmed
}

// sortedProductIds returns the union of both maps' keys in ascending order.
func sortedProductIds(a, b map[int]decimal.Decimal) []int {
	ids := make([]int, 0, len(a)+len(b))
	for id := range a {
		ids = append(ids, id)
	}
	for id := range b {
		if _, ok := a[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
