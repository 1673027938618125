package models

import (
	"github.com/ashendes/paygate/internal/apierr"
	"github.com/shopspring/decimal"
)

// AmountKind selects which side of an Amount a delta is booked against
type AmountKind int

const (
	AmountCharged AmountKind = iota
	AmountCancelled
)

func (k AmountKind) String() string {
	if k == AmountCharged {
		return "charged"
	}
	return "cancelled"
}

// Amount tracks the money state of one authorization, charge or payment.
// Remaining is always derived and never negative.
type Amount struct {
	total     decimal.Decimal
	charged   decimal.Decimal
	cancelled decimal.Decimal
}

// NewAmount returns an Amount with nothing charged or cancelled yet
func NewAmount(total decimal.Decimal) Amount {
	return Amount{total: total}
}

func (a *Amount) Total() decimal.Decimal     { return a.total }
func (a *Amount) Charged() decimal.Decimal   { return a.charged }
func (a *Amount) Cancelled() decimal.Decimal { return a.cancelled }

// Remaining returns total - charged - cancelled, floored at zero.
func (a *Amount) Remaining() decimal.Decimal {
	r := a.total.Sub(a.charged).Sub(a.cancelled)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Check validates a delta against the local view without booking it.
// The gateway stays the final authority and may still reject it.
func (a *Amount) Check(kind AmountKind, delta decimal.Decimal) error {
	if delta.IsNegative() {
		return apierr.Usage("amount", "%s delta %s must not be negative", kind, delta)
	}
	if delta.GreaterThan(a.Remaining()) {
		return apierr.Usage("amount", "%s delta %s exceeds remaining %s", kind, delta, a.Remaining())
	}
	return nil
}

// Apply books delta against the charged or cancelled side after Check passes.
func (a *Amount) Apply(kind AmountKind, delta decimal.Decimal) error {
	if err := a.Check(kind, delta); err != nil {
		return err
	}
	switch kind {
	case AmountCharged:
		a.charged = a.charged.Add(delta)
	case AmountCancelled:
		a.cancelled = a.cancelled.Add(delta)
	}
	return nil
}

// Setters below are reserved for response handling; they trust the gateway.

func (a *Amount) SetTotal(v decimal.Decimal)     { a.total = v }
func (a *Amount) SetCharged(v decimal.Decimal)   { a.charged = v }
func (a *Amount) SetCancelled(v decimal.Decimal) { a.cancelled = v }

// Book adds delta to one side without the local pre-check.
func (a *Amount) Book(kind AmountKind, delta decimal.Decimal) {
	switch kind {
	case AmountCharged:
		a.charged = a.charged.Add(delta)
	case AmountCancelled:
		a.cancelled = a.cancelled.Add(delta)
	}
}

func (a *Amount) reset(total decimal.Decimal) {
	a.total = total
	a.charged = decimal.Zero
	a.cancelled = decimal.Zero
}
