package service

import "errors"

// Validation-class errors are detected before any write and abort the
// request with no transaction opened. Action-class errors occur
// mid-transaction and roll back the whole mutation sequence.
var (
	// ErrInvalidInvoiceKind is returned when the caller supplies a kind
	// outside {ar, ap}.
	ErrInvalidInvoiceKind = errors.New("invalid invoice kind")

	// ErrInvalidInput is returned when a field fails sanitisation or type
	// coercion (money, integer or date parsing).
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidInvoice is returned when the invoice does not exist under
	// the stated kind.
	ErrInvalidInvoice = errors.New("invalid invoice")

	// ErrInvalidItemID is returned when the item does not exist or does
	// not belong to the stated invoice.
	ErrInvalidItemID = errors.New("invalid item id")

	// ErrInvalidTimeGroup is returned when a time group does not belong
	// to the invoice counterparty or is claimed by another item.
	ErrInvalidTimeGroup = errors.New("invalid time group")

	// ErrLocked is returned when a mutation targets a locked invoice, or
	// deletion targets an invoice protected by the delete lock.
	ErrLocked = errors.New("invoice is locked")

	// ErrDuplicateInvoiceCode is returned when the invoice code is
	// already used by another invoice of the same kind.
	ErrDuplicateInvoiceCode = errors.New("duplicate invoice code")

	// ErrAccessDenied is returned when the caller lacks the required
	// capability.
	ErrAccessDenied = errors.New("access denied")

	// ErrPrepFailed is returned when the data derivation step fails
	// unexpectedly.
	ErrPrepFailed = errors.New("unexpected prep error")

	// ErrActionFailed is returned when a storage write fails
	// unexpectedly.
	ErrActionFailed = errors.New("unexpected action error")
)

// Code maps an error to its stable machine-readable kind for callers of
// the remote operation surface. Unrecognised errors report as action
// failures rather than being swallowed.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInvoiceKind):
		return "INVALID_INVOICE_TYPE"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrInvalidInvoice):
		return "INVALID_INVOICE"
	case errors.Is(err, ErrInvalidItemID):
		return "INVALID_ITEMID"
	case errors.Is(err, ErrInvalidTimeGroup):
		return "INVALID_TIMEGROUPID"
	case errors.Is(err, ErrLocked):
		return "LOCKED"
	case errors.Is(err, ErrDuplicateInvoiceCode):
		return "DUPLICATE_CODE_INVOICE"
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrPrepFailed):
		return "UNEXPECTED_PREP_ERROR"
	default:
		return "UNEXPECTED_ACTION_ERROR"
	}
}
