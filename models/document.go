package models

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Document is a sale, purchase, sale return or purchase return.
// Only posted statuses (confirmed, returned_*) have stock and ledger effects.
type Document struct {
	ID               int             `gorm:"primary_key" json:"id"`
	BusinessId       string          `gorm:"size:64;not null;index" json:"business_id"`
	DocumentType     DocumentType    `gorm:"size:20;not null;index" json:"document_type"`
	Number           string          `gorm:"size:50;index" json:"number"`
	DocumentDate     time.Time       `gorm:"not null;index" json:"document_date"`
	Status           DocumentStatus  `gorm:"size:20;not null;default:'draft';index" json:"status"`
	WarehouseId      int             `gorm:"not null;index" json:"warehouse_id"`
	PartyId          int             `gorm:"index" json:"party_id"`
	PartyName        string          `gorm:"size:100" json:"party_name"`
	PaymentMethod    PaymentMethod   `gorm:"size:10;not null;default:'credit'" json:"payment_method"`
	PaymentStatus    PaymentStatus   `gorm:"size:20;not null;default:'unpaid'" json:"payment_status"`
	PaidAmount       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"paid_amount"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"subtotal"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount_amount"`
	TaxAmount        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax_amount"`
	Total            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	OriginDocumentId *int            `gorm:"index" json:"origin_document_id"`
	TransactionId    *int            `gorm:"index" json:"transaction_id"`
	Revision         int             `gorm:"not null;default:0" json:"revision"`
	Notes            string          `gorm:"type:text" json:"notes"`
	Lines            []DocumentLine  `gorm:"foreignKey:DocumentId" json:"lines"`
	CreatedBy        int             `json:"created_by"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

type DocumentLine struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"size:64;not null;index" json:"business_id"`
	DocumentId     int             `gorm:"index;not null" json:"document_id"`
	ProductId      int             `gorm:"index;not null" json:"product_id"`
	Description    string          `gorm:"size:255" json:"description"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_price"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount_amount"`
	Total          decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	OriginLineId   *int            `gorm:"index" json:"origin_line_id"`
}

// DocumentPayment is a settlement of a credit document, posted as its own transaction.
type DocumentPayment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;not null;index" json:"business_id"`
	DocumentId    int             `gorm:"index;not null" json:"document_id"`
	AccountId     int             `gorm:"index;not null" json:"account_id"`
	TransactionId int             `gorm:"index;not null" json:"transaction_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentDate   time.Time       `gorm:"not null" json:"payment_date"`
	IsReversed    bool            `gorm:"not null;default:false" json:"is_reversed"`
	CreatedBy     int             `json:"created_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewDocument struct {
	DocumentType     DocumentType      `json:"document_type" validate:"required,oneof=sale purchase sale_return purchase_return"`
	DocumentDate     time.Time         `json:"document_date" validate:"required"`
	WarehouseId      int               `json:"warehouse_id" validate:"required,gt=0"`
	PartyId          int               `json:"party_id" validate:"gte=0"`
	PartyName        string            `json:"party_name" validate:"max=100"`
	PaymentMethod    PaymentMethod     `json:"payment_method" validate:"omitempty,oneof=cash credit"`
	DiscountAmount   decimal.Decimal   `json:"discount_amount"`
	TaxAmount        decimal.Decimal   `json:"tax_amount"`
	OriginDocumentId *int              `json:"origin_document_id"`
	Notes            string            `json:"notes"`
	Lines            []NewDocumentLine `json:"lines" validate:"required,min=1,dive"`
}

type NewDocumentLine struct {
	// Id names the existing line an edit updates. Without it an edit reuses a line of the same product.
	Id             *int            `json:"id"`
	ProductId      int             `json:"product_id" validate:"required,gt=0"`
	Description    string          `json:"description" validate:"max=255"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	OriginLineId   *int            `json:"origin_line_id"`
}

type NewPayment struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"payment_date"`
	// AccountId defaults to the cash account.
	AccountId int `json:"account_id" validate:"gte=0"`
}

// ValidStatusTransitions lists the transitions callers may request.
// Return statuses of an origin document are derived from its confirmed returns instead.
var ValidStatusTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentStatusDraft:           {DocumentStatusConfirmed, DocumentStatusCancelled},
	DocumentStatusConfirmed:       {DocumentStatusCancelled, DocumentStatusReturnedPartial, DocumentStatusReturnedFull},
	DocumentStatusReturnedPartial: {DocumentStatusReturnedFull},
}

func CanTransition(from, to DocumentStatus) bool {
	for _, s := range ValidStatusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func TransitionError(from, to DocumentStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}

// Validate checks struct tags and the amounts the tags cannot express.
func (input *NewDocument) Validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.DiscountAmount.IsNegative() {
		return &ValidationError{Field: "discount_amount", Message: "must not be negative"}
	}
	if input.TaxAmount.IsNegative() {
		return &ValidationError{Field: "tax_amount", Message: "must not be negative"}
	}
	if input.DocumentType.IsReturn() && (input.OriginDocumentId == nil || *input.OriginDocumentId <= 0) {
		return &ValidationError{Field: "origin_document_id", Message: "required for returns"}
	}
	for i, l := range input.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if !l.Quantity.IsPositive() {
			return &ValidationError{Field: field + ".quantity", Message: "must be greater than zero"}
		}
		if l.UnitPrice.IsNegative() {
			return &ValidationError{Field: field + ".unit_price", Message: "must not be negative"}
		}
		if l.DiscountAmount.IsNegative() || l.DiscountAmount.GreaterThan(l.Quantity.Mul(l.UnitPrice)) {
			return &ValidationError{Field: field + ".discount_amount", Message: "must be between zero and the line amount"}
		}
		if input.DocumentType.IsReturn() && (l.OriginLineId == nil || *l.OriginLineId <= 0) {
			return &ValidationError{Field: field + ".origin_line_id", Message: "required for returns"}
		}
	}
	return nil
}

// BuildLines maps input lines to rows with computed totals.
func (input *NewDocument) BuildLines(businessId string) []DocumentLine {
	lines := make([]DocumentLine, 0, len(input.Lines))
	for _, l := range input.Lines {
		lines = append(lines, l.Row(businessId))
	}
	return lines
}

// Row builds an unsaved line row with its total computed.
func (l NewDocumentLine) Row(businessId string) DocumentLine {
	return DocumentLine{
		BusinessId:     businessId,
		ProductId:      l.ProductId,
		Description:    l.Description,
		Quantity:       l.Quantity,
		UnitPrice:      l.UnitPrice,
		DiscountAmount: l.DiscountAmount,
		Total:          l.Quantity.Mul(l.UnitPrice).Sub(l.DiscountAmount).Round(4),
		OriginLineId:   l.OriginLineId,
	}
}

// Recalculate refreshes subtotal and total from the lines: total = subtotal - discount + tax.
func (d *Document) Recalculate() {
	subtotal := decimal.Zero
	for _, l := range d.Lines {
		subtotal = subtotal.Add(l.Total)
	}
	d.Subtotal = subtotal
	d.Total = subtotal.Sub(d.DiscountAmount).Add(d.TaxAmount).Round(4)
}

// RefreshPaymentStatus derives payment status from paid amount against total.
func (d *Document) RefreshPaymentStatus() {
	switch {
	case d.PaidAmount.IsZero():
		d.PaymentStatus = PaymentStatusUnpaid
	case d.PaidAmount.GreaterThanOrEqual(d.Total):
		d.PaymentStatus = PaymentStatusPaid
	default:
		d.PaymentStatus = PaymentStatusPartiallyPaid
	}
}

// QuantitiesByProduct sums line quantities per product.
func QuantitiesByProduct(lines []DocumentLine) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal)
	for _, l := range lines {
		out[l.ProductId] = out[l.ProductId].Add(l.Quantity)
	}
	return out
}

func GetDocument(tx *gorm.DB, businessId string, id int) (*Document, error) {
	return utils.FetchModelTx[Document](tx, businessId, id, "Lines")
}

func (d Document) GetCursorTime() time.Time { return d.DocumentDate }
func (d Document) GetId() int               { return d.ID }

type DocumentFilter struct {
	DocumentType     DocumentType   `form:"document_type"`
	Status           DocumentStatus `form:"status"`
	OriginDocumentId int            `form:"origin_document_id"`
}

// ListDocuments pages a business's documents newest first by document date. Deleted drafts are excluded.
func ListDocuments(tx *gorm.DB, businessId string, filter DocumentFilter, limit int, after *string) (*Connection[Document], error) {
	dbCtx := tx.Model(&Document{}).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("business_id = ?", businessId)
	if filter.DocumentType != "" {
		dbCtx = dbCtx.Where("document_type = ?", filter.DocumentType)
	}
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.OriginDocumentId > 0 {
		dbCtx = dbCtx.Where("origin_document_id = ?", filter.OriginDocumentId)
	}
	return FetchPageCompositeCursor[Document](dbCtx, limit, after, "document_date")
}
