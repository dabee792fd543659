package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"gorm.io/gorm"
)

// RecordPayment settles part or all of a confirmed credit sale or purchase through a cash, bank or wallet account.
func RecordPayment(ctx context.Context, documentId int, input models.NewPayment) (*models.DocumentPayment, error) {
	if err := utils.ValidateStruct(&input); err != nil {
		return nil, err
	}
	amount := input.Amount.Round(ledgerPrecision)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment must be greater than zero", models.ErrInvalidAmount)
	}

	var payment *models.DocumentPayment
	err := documentOperation(ctx, "RecordPayment", documentId, func(tx *gorm.DB, businessId string) error {
		doc, err := lockDocument(tx, businessId, documentId)
		if err != nil {
			return err
		}
		if doc.DocumentType != models.DocumentTypeSale && doc.DocumentType != models.DocumentTypePurchase {
			return &models.ValidationError{Field: "document_type", Message: "payments apply to sales and purchases only"}
		}
		if !doc.Status.IsPosted() {
			return &models.ValidationError{Field: "status", Message: "document is " + string(doc.Status)}
		}
		if doc.PaymentMethod != models.PaymentMethodCredit {
			return &models.ValidationError{Field: "payment_method", Message: "cash documents are settled on confirmation"}
		}
		outstanding := doc.Total.Sub(doc.PaidAmount)
		if amount.GreaterThan(outstanding) {
			return &models.ValidationError{Field: "amount", Message: fmt.Sprintf("exceeds outstanding %s", outstanding.StringFixed(4))}
		}

		chart, err := models.LoadChartOfAccounts(tx, businessId)
		if err != nil {
			return err
		}
		moneyId := input.AccountId
		if moneyId == 0 {
			if moneyId, err = chart.Require(models.AccountCodeCash); err != nil {
				return err
			}
		}
		money, err := utils.FetchModelTx[models.Account](tx, businessId, moneyId)
		if err != nil {
			return err
		}
		if !money.Kind.IsMoney() {
			return &models.ValidationError{Field: "account_id", Message: "payment account must be cash, bank or wallet"}
		}

		var lines []models.NewTransactionLine
		if doc.DocumentType == models.DocumentTypeSale {
			receivableId, err := chart.Require(models.AccountCodeReceivable)
			if err != nil {
				return err
			}
			lines = []models.NewTransactionLine{
				{AccountId: money.ID, Debit: amount},
				{AccountId: receivableId, Credit: amount},
			}
		} else {
			payableId, err := chart.Require(models.AccountCodePayable)
			if err != nil {
				return err
			}
			lines = []models.NewTransactionLine{
				{AccountId: payableId, Debit: amount},
				{AccountId: money.ID, Credit: amount},
			}
		}

		date := postingDate(input.PaymentDate)
		trx, err := PostTransaction(tx, models.NewTransaction{
			BusinessId:             businessId,
			TransactionDate:        date,
			Type:                   models.TransactionTypeTransfer,
			AccountId:              &money.ID,
			ReferenceType:          models.ReferenceTypePayment,
			ReferenceId:            doc.ID,
			ReferenceNumber:        doc.Number,
			Description:            "Payment for " + doc.Number,
			Lines:                  lines,
			RequireNonNegativeCash: true,
		})
		if err != nil {
			return err
		}

		userId, _ := utils.GetUserIdFromContext(ctx)
		payment = &models.DocumentPayment{
			BusinessId:    businessId,
			DocumentId:    doc.ID,
			AccountId:     money.ID,
			TransactionId: trx.ID,
			Amount:        amount,
			PaymentDate:   date,
			CreatedBy:     userId,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		fromStatus := doc.Status
		doc.PaidAmount = doc.PaidAmount.Add(amount)
		doc.RefreshPaymentStatus()
		if err := saveDocumentHeader(tx, doc); err != nil {
			return err
		}
		if err := models.CreateDocumentHistory(tx, models.HistoryActionPayment, doc, fromStatus, nil, payment,
			fmt.Sprintf("Payment %s on %s", amount.StringFixed(4), doc.Number)); err != nil {
			return err
		}
		return models.EnqueueLedgerEvent(tx, businessId, models.EventDocumentPaid, string(doc.DocumentType), doc.ID, map[string]interface{}{
			"number":         doc.Number,
			"payment_id":     payment.ID,
			"amount":         amount,
			"paid_amount":    doc.PaidAmount,
			"payment_status": doc.PaymentStatus,
			"transaction_id": trx.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}
