package service

import "github.com/andy/tallybook/internal/domain"

// Caller carries the identity and capability set of the requesting user.
// It replaces ambient session state: every operation receives the caller
// explicitly and checks the capability it needs up front.
type Caller struct {
	name string
	caps map[string]bool
}

// NewCaller builds a caller with the given capabilities.
func NewCaller(name string, caps ...string) *Caller {
	c := &Caller{name: name, caps: make(map[string]bool, len(caps))}
	for _, capability := range caps {
		c.caps[capability] = true
	}
	return c
}

// Name returns the caller identity used in audit entries.
func (c *Caller) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Can reports whether the caller holds the capability.
func (c *Caller) Can(capability string) bool {
	if c == nil {
		return false
	}
	return c.caps[capability]
}

// ViewCap is the capability required to read invoices of a kind,
// e.g. accounts_ar_view.
func ViewCap(kind domain.InvoiceKind) string {
	return "accounts_" + string(kind) + "_view"
}

// WriteCap is the capability required to mutate invoices of a kind,
// e.g. accounts_ar_write.
func WriteCap(kind domain.InvoiceKind) string {
	return "accounts_" + string(kind) + "_write"
}
