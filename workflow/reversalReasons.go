package workflow

// Standardized reasons for reversals.
// These are human-readable strings stored in reversal_reason on transactions and stock movements.
const (
	ReversalReasonDocumentCancel  = "Document cancel"
	ReversalReasonDocumentEdit    = "Document edit"
	ReversalReasonDocumentDelete  = "Document delete"
	ReversalReasonPaymentCancel   = "Payment reversed with document"
	ReversalReasonManual          = "Manual reversal"
	ReversalReasonOpeningBalance  = "Opening balance reset"
	ReversalReasonStockCorrection = "Stock correction"
	ReversalReasonCashEntryCancel = "Cash entry cancel"
)
