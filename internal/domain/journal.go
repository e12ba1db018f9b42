package domain

import "time"

// JournalAction is the kind of change a journal entry records.
type JournalAction string

const (
	JournalCreated JournalAction = "created"
	JournalUpdated JournalAction = "updated"
	JournalDeleted JournalAction = "deleted"
	JournalLocked  JournalAction = "locked"
	JournalUnlock  JournalAction = "unlocked"
)

// JournalEntry is one audit-trail row tied to an invoice. Journal entries
// are removed together with their invoice when it is deleted.
type JournalEntry struct {
	ID          int64
	InvoiceID   int64
	InvoiceKind InvoiceKind
	Action      JournalAction
	Detail      string
	CreatedAt   time.Time
}
