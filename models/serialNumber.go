package models

import "time"

// SerialNumber is the counter row for one (business, document type, year) numbering scope.
type SerialNumber struct {
	ID           int          `gorm:"primary_key" json:"id"`
	BusinessId   string       `gorm:"size:64;not null;uniqueIndex:uniq_serial_scope,priority:1" json:"business_id"`
	DocumentType DocumentType `gorm:"size:30;not null;uniqueIndex:uniq_serial_scope,priority:2" json:"document_type"`
	Year         int          `gorm:"not null;uniqueIndex:uniq_serial_scope,priority:3" json:"year"`
	Prefix       string       `gorm:"size:10;not null" json:"prefix"`
	LastNumber   int          `gorm:"not null;default:0" json:"last_number"`
	Padding      int          `gorm:"not null;default:4" json:"padding"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// NumberedTable locates the column holding issued numbers of a document type.
type NumberedTable struct {
	Table  string
	Column string
}

var documentNumberPrefixes = map[DocumentType]string{
	DocumentTypeSale:           "SALE",
	DocumentTypePurchase:       "PUR",
	DocumentTypeSaleReturn:     "SRET",
	DocumentTypePurchaseReturn: "PRET",
	DocumentTypeStockMovement:  "MOV",
	DocumentTypeTransaction:    "TRX",
	DocumentTypeExpense:        "EXP",
	DocumentTypeIncome:         "INC",
}

var numberedTables = map[DocumentType]NumberedTable{
	DocumentTypeSale:           {Table: "documents", Column: "number"},
	DocumentTypePurchase:       {Table: "documents", Column: "number"},
	DocumentTypeSaleReturn:     {Table: "documents", Column: "number"},
	DocumentTypePurchaseReturn: {Table: "documents", Column: "number"},
	DocumentTypeStockMovement:  {Table: "stock_movements", Column: "movement_number"},
	DocumentTypeTransaction:    {Table: "transactions", Column: "transaction_number"},
	DocumentTypeExpense:        {Table: "cash_entries", Column: "number"},
	DocumentTypeIncome:         {Table: "cash_entries", Column: "number"},
}

func DocumentNumberPrefix(t DocumentType) (string, bool) {
	p, ok := documentNumberPrefixes[t]
	return p, ok
}

func NumberedTableFor(t DocumentType) (NumberedTable, bool) {
	nt, ok := numberedTables[t]
	return nt, ok
}
