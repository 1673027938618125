package models

import (
	"github.com/shopspring/decimal"
)

// Charge is a capture of funds, either against the authorization or direct.
type Charge struct {
	Transaction

	// requested is what the caller asked for; null charges the full authorization.
	requested     decimal.NullDecimal
	amount        Amount
	cancellations []*Cancellation

	ReturnURL   string
	RedirectURL string
	Card3ds     *bool
}

// NewCharge prepares an unpersisted charge. A null amount captures whatever
// the authorization still holds.
func NewCharge(amount decimal.NullDecimal, currency, returnURL string) *Charge {
	c := &Charge{requested: amount, ReturnURL: returnURL}
	if amount.Valid {
		c.amount = NewAmount(amount.Decimal)
	}
	c.Currency = currency
	return c
}

func (c *Charge) ResourcePath() string { return "charges" }
func (c *Charge) Parent() Resource     { return c.paymentParent() }

func (c *Charge) Amount() *Amount { return &c.amount }

// TotalAmount is the captured amount before any refunds
func (c *Charge) TotalAmount() decimal.Decimal { return c.amount.Total() }

// Remaining is the captured amount not refunded yet.
func (c *Charge) Remaining() decimal.Decimal { return c.amount.Remaining() }

func (c *Charge) Cancellations() []*Cancellation { return c.cancellations }

func (c *Charge) GetCancellation(id string) (*Cancellation, bool) {
	return findCancellation(c.cancellations, id)
}

// RecordCancellation attaches a freshly created refund and books its amount.
func (c *Charge) RecordCancellation(cancel *Cancellation) {
	c.cancellations = append(c.cancellations, cancel)
	if cancel.amount.Valid {
		c.amount.Book(AmountCancelled, cancel.amount.Decimal)
	}
}

func (c *Charge) Payload() interface{} {
	return c.payload(c.requested, c.ReturnURL, c.Card3ds)
}

func (c *Charge) HandleResponse(body []byte) error {
	resp, err := decodeTransaction(body)
	if err != nil {
		return err
	}
	c.apply(resp)
	if resp.Amount.Valid {
		c.amount.SetTotal(resp.Amount.Decimal)
		c.requested = resp.Amount
	}
	setIfPresent(&c.ReturnURL, resp.ReturnURL)
	setIfPresent(&c.RedirectURL, resp.RedirectURL)
	if resp.Card3ds != nil {
		c.Card3ds = resp.Card3ds
	}
	return nil
}
