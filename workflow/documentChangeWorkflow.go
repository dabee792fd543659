package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EditDocument replaces a document's lines and header amounts.
//
// A draft simply gets the new lines. A confirmed document keeps its history: only the per-product
// quantity deltas are applied as new movements under the next revision, and a changed total is
// reversed and reposted as an offsetting pair.
func EditDocument(ctx context.Context, documentId int, input *models.NewDocument) (*models.Document, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	var doc *models.Document
	err := documentOperation(ctx, "EditDocument", documentId, func(tx *gorm.DB, businessId string) error {
		var err error
		doc, err = lockDocument(tx, businessId, documentId)
		if err != nil {
			return err
		}
		if input.DocumentType != doc.DocumentType {
			return &models.ValidationError{Field: "document_type", Message: "cannot change document type"}
		}
		switch doc.Status {
		case models.DocumentStatusDraft:
			return editDraft(tx, doc, input)
		case models.DocumentStatusConfirmed:
			if config.StrictDocumentImmutability() {
				return fmt.Errorf("%w: confirmed documents are immutable, cancel and recreate instead", models.ErrInvalidStatusTransition)
			}
			return editConfirmed(tx, doc, input)
		}
		return fmt.Errorf("%w: %s documents cannot be edited", models.ErrInvalidStatusTransition, doc.Status)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func editDraft(tx *gorm.DB, doc *models.Document, input *models.NewDocument) error {
	before := *doc
	applyHeader(doc, input)
	if err := replaceLines(tx, doc, input); err != nil {
		return err
	}
	if doc.DocumentType.IsReturn() {
		origin, err := models.GetDocument(tx, doc.BusinessId, *doc.OriginDocumentId)
		if err != nil {
			return err
		}
		if err := checkReturnOrigin(doc, origin); err != nil {
			return err
		}
		doc.PaymentMethod = origin.PaymentMethod
	}
	if err := saveEditedHeader(tx, doc); err != nil {
		return err
	}
	return models.CreateDocumentHistory(tx, models.HistoryActionUpdate, doc, doc.Status, before, doc, "Edited draft")
}

func editConfirmed(tx *gorm.DB, doc *models.Document, input *models.NewDocument) error {
	if input.WarehouseId != doc.WarehouseId {
		return &models.ValidationError{Field: "warehouse_id", Message: "cannot change warehouse after confirmation"}
	}
	if input.PaymentMethod != "" && input.PaymentMethod != doc.PaymentMethod {
		return &models.ValidationError{Field: "payment_method", Message: "cannot change payment method after confirmation"}
	}
	before := *doc
	oldTotal := doc.Total
	oldQty := models.QuantitiesByProduct(doc.Lines)
	oldLineIds := lineIdsByProduct(doc.Lines)

	applyHeader(doc, input)
	doc.PaymentMethod = before.PaymentMethod
	doc.Revision++
	if err := replaceLines(tx, doc, input); err != nil {
		return err
	}
	if doc.Total.LessThan(doc.PaidAmount) && doc.PaymentMethod == models.PaymentMethodCredit {
		return &models.ValidationError{Field: "lines", Message: fmt.Sprintf("new total %s is below the paid amount %s",
			doc.Total.StringFixed(4), doc.PaidAmount.StringFixed(4))}
	}

	var origin *models.Document
	if doc.DocumentType.IsReturn() {
		var err error
		if origin, err = validateReturn(tx, doc); err != nil {
			return err
		}
	}

	newQty := models.QuantitiesByProduct(doc.Lines)
	newLineIds := lineIdsByProduct(doc.Lines)
	kind := doc.DocumentType.MovementKind()
	for _, productId := range sortedProductIds(oldQty, newQty) {
		delta := newQty[productId].Sub(oldQty[productId])
		if delta.IsZero() {
			continue
		}
		lineId, ok := newLineIds[productId]
		if !ok {
			lineId = oldLineIds[productId]
		}
		k := kind
		if delta.IsNegative() {
			k = kind.Inverse()
		}
		if _, err := ApplyMovement(tx, documentMovement(doc, lineId, productId, k, delta.Abs())); err != nil {
			return err
		}
	}

	if !doc.Total.Equal(oldTotal) {
		if doc.TransactionId != nil {
			if _, err := ReverseTransaction(tx, doc.BusinessId, *doc.TransactionId, ReversalReasonDocumentEdit); err != nil {
				return err
			}
			doc.TransactionId = nil
		}
		trx, err := postDocumentTransaction(tx, doc, origin)
		if err != nil {
			return err
		}
		if trx != nil {
			doc.TransactionId = &trx.ID
		}
	}
	if doc.PaymentMethod == models.PaymentMethodCash {
		doc.PaidAmount = doc.Total
	}
	doc.RefreshPaymentStatus()
	if err := saveEditedHeader(tx, doc); err != nil {
		return err
	}
	if origin != nil {
		if err := refreshOriginStatus(tx, origin); err != nil {
			return err
		}
	}
	if err := models.CreateDocumentHistory(tx, models.HistoryActionUpdate, doc, doc.Status, before, doc,
		fmt.Sprintf("Edited %s (revision %d)", doc.Number, doc.Revision)); err != nil {
		return err
	}
	return enqueueDocumentEvent(tx, models.EventDocumentEdited, doc)
}

func applyHeader(doc *models.Document, input *models.NewDocument) {
	doc.DocumentDate = input.DocumentDate
	doc.WarehouseId = input.WarehouseId
	doc.PartyId = input.PartyId
	doc.PartyName = input.PartyName
	if input.PaymentMethod != "" {
		doc.PaymentMethod = input.PaymentMethod
	}
	doc.DiscountAmount = input.DiscountAmount
	doc.TaxAmount = input.TaxAmount
	doc.OriginDocumentId = input.OriginDocumentId
	doc.Notes = input.Notes
}

// replaceLines updates matched lines in place, inserts new ones and deletes the rest, then recalculates
// totals. Line ids survive an edit, so draft returns keep pointing at their origin lines.
func replaceLines(tx *gorm.DB, doc *models.Document, input *models.NewDocument) error {
	existing := make(map[int]*models.DocumentLine, len(doc.Lines))
	for i := range doc.Lines {
		existing[doc.Lines[i].ID] = &doc.Lines[i]
	}
	matched := make(map[int]bool, len(doc.Lines))
	lines := make([]models.DocumentLine, 0, len(input.Lines))

	match := func(l models.NewDocumentLine) (*models.DocumentLine, error) {
		if l.Id != nil {
			cur, ok := existing[*l.Id]
			if !ok || matched[*l.Id] {
				return nil, &models.ValidationError{Field: "lines", Message: fmt.Sprintf("line %d is not on this document", *l.Id)}
			}
			return cur, nil
		}
		for i := range doc.Lines {
			cur := &doc.Lines[i]
			if !matched[cur.ID] && cur.ProductId == l.ProductId && !claimedById(input, cur.ID) {
				return cur, nil
			}
		}
		return nil, nil
	}

	for _, l := range input.Lines {
		row := l.Row(doc.BusinessId)
		row.DocumentId = doc.ID
		cur, err := match(l)
		if err != nil {
			return err
		}
		if cur == nil {
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			lines = append(lines, row)
			continue
		}
		matched[cur.ID] = true
		row.ID = cur.ID
		if err := tx.Model(&models.DocumentLine{}).
			Where("business_id = ? AND id = ?", doc.BusinessId, cur.ID).
			Updates(map[string]interface{}{
				"product_id":      row.ProductId,
				"description":     row.Description,
				"quantity":        row.Quantity,
				"unit_price":      row.UnitPrice,
				"discount_amount": row.DiscountAmount,
				"total":           row.Total,
				"origin_line_id":  row.OriginLineId,
			}).Error; err != nil {
			return err
		}
		lines = append(lines, row)
	}

	var removed []int
	for _, l := range doc.Lines {
		if !matched[l.ID] {
			removed = append(removed, l.ID)
		}
	}
	if len(removed) > 0 {
		if err := tx.Where("business_id = ? AND document_id = ? AND id IN ?", doc.BusinessId, doc.ID, removed).
			Delete(&models.DocumentLine{}).Error; err != nil {
			return err
		}
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	doc.Lines = lines
	doc.Recalculate()
	if doc.Total.IsNegative() {
		return &models.ValidationError{Field: "discount_amount", Message: "document total must not be negative"}
	}
	return nil
}

func claimedById(input *models.NewDocument, lineId int) bool {
	for _, l := range input.Lines {
		if l.Id != nil && *l.Id == lineId {
			return true
		}
	}
	return false
}

func saveEditedHeader(tx *gorm.DB, doc *models.Document) error {
	if err := saveDocumentHeader(tx, doc); err != nil {
		return err
	}
	return tx.Model(&models.Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]interface{}{
			"document_date":      doc.DocumentDate,
			"warehouse_id":       doc.WarehouseId,
			"party_id":           doc.PartyId,
			"party_name":         doc.PartyName,
			"payment_method":     doc.PaymentMethod,
			"origin_document_id": doc.OriginDocumentId,
			"notes":              doc.Notes,
		}).Error
}

// lineIdsByProduct maps each product to its first line.
func lineIdsByProduct(lines []models.DocumentLine) map[int]int {
	out := make(map[int]int, len(lines))
	for _, l := range lines {
		if _, ok := out[l.ProductId]; !ok {
			out[l.ProductId] = l.ID
		}
	}
	return out
}

// CancelDocument undoes a confirmed document with offsetting movements and transactions,
// payments included. Cancelling a draft only changes its status.
func CancelDocument(ctx context.Context, documentId int, reason string) (*models.Document, error) {
	var doc *models.Document
	err := documentOperation(ctx, "CancelDocument", documentId, func(tx *gorm.DB, businessId string) error {
		var err error
		doc, err = lockDocument(tx, businessId, documentId)
		if err != nil {
			return err
		}
		return cancelLocked(tx, doc, reason)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func cancelLocked(tx *gorm.DB, doc *models.Document, reason string) error {
	if !models.CanTransition(doc.Status, models.DocumentStatusCancelled) {
		return models.TransitionError(doc.Status, models.DocumentStatusCancelled)
	}
	if reason == "" {
		reason = ReversalReasonDocumentCancel
	}
	fromStatus := doc.Status
	posted := doc.Status.IsPosted()

	var origin *models.Document
	if posted {
		if doc.DocumentType.IsReturn() && doc.OriginDocumentId != nil {
			var err error
			if origin, err = lockDocument(tx, doc.BusinessId, *doc.OriginDocumentId); err != nil {
				return err
			}
		}
		if _, err := ReverseDocumentMovements(tx, doc.BusinessId, string(doc.DocumentType), doc.ID, reason); err != nil {
			return err
		}
		if err := ReverseDocumentTransactions(tx, doc.BusinessId, string(doc.DocumentType), doc.ID, reason); err != nil {
			return err
		}
		if err := ReverseDocumentTransactions(tx, doc.BusinessId, models.ReferenceTypePayment, doc.ID, ReversalReasonPaymentCancel); err != nil {
			return err
		}
		if err := tx.Model(&models.DocumentPayment{}).
			Where("business_id = ? AND document_id = ? AND is_reversed = ?", doc.BusinessId, doc.ID, false).
			Update("is_reversed", true).Error; err != nil {
			return err
		}
		doc.PaidAmount = decimal.Zero
		doc.RefreshPaymentStatus()
	}

	doc.Status = models.DocumentStatusCancelled
	if err := saveDocumentHeader(tx, doc); err != nil {
		return err
	}
	if origin != nil {
		if err := refreshOriginStatus(tx, origin); err != nil {
			return err
		}
	}
	if err := models.CreateDocumentHistory(tx, models.HistoryActionCancel, doc, fromStatus, nil, nil, reason); err != nil {
		return err
	}
	if !posted {
		return nil
	}
	return enqueueDocumentEvent(tx, models.EventDocumentCancelled, doc)
}

// DeleteDocument hard-deletes a draft. A confirmed document is cancelled first and then soft-deleted,
// so its movements and transactions keep pointing at a row.
func DeleteDocument(ctx context.Context, documentId int) error {
	return documentOperation(ctx, "DeleteDocument", documentId, func(tx *gorm.DB, businessId string) error {
		doc, err := lockDocument(tx, businessId, documentId)
		if err != nil {
			return err
		}
		switch doc.Status {
		case models.DocumentStatusDraft:
			if err := models.CreateDocumentHistory(tx, models.HistoryActionDelete, doc, doc.Status, doc, nil, "Deleted draft"); err != nil {
				return err
			}
			if err := tx.Where("business_id = ? AND document_id = ?", businessId, doc.ID).Delete(&models.DocumentLine{}).Error; err != nil {
				return err
			}
			return tx.Unscoped().Where("business_id = ?", businessId).Delete(&models.Document{}, doc.ID).Error
		case models.DocumentStatusConfirmed:
			if err := cancelLocked(tx, doc, ReversalReasonDocumentDelete); err != nil {
				return err
			}
		case models.DocumentStatusCancelled:
		default:
			return fmt.Errorf("%w: %s documents cannot be deleted", models.ErrInvalidStatusTransition, doc.Status)
		}
		if err := models.CreateDocumentHistory(tx, models.HistoryActionDelete, doc, doc.Status, nil, nil, "Deleted"); err != nil {
			return err
		}
		return tx.Where("business_id = ?", businessId).Delete(&models.Document{}, doc.ID).Error
	})
}
