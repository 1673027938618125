package models

import (
	"github.com/shopspring/decimal"
)

// Authorization is a hold of funds. A payment carries at most one.
type Authorization struct {
	Transaction

	amount        Amount
	cancellations []*Cancellation

	ReturnURL   string
	RedirectURL string
	Card3ds     *bool
}

// NewAuthorization prepares an unpersisted authorization
func NewAuthorization(amount decimal.Decimal, currency, returnURL string) *Authorization {
	a := &Authorization{amount: NewAmount(amount), ReturnURL: returnURL}
	a.Currency = currency
	return a
}

func (a *Authorization) ResourcePath() string { return "authorize" }
func (a *Authorization) Parent() Resource     { return a.paymentParent() }

// Amount exposes the authorization's money state
func (a *Authorization) Amount() *Amount { return &a.amount }

// Remaining is the amount still held and neither charged nor cancelled.
func (a *Authorization) Remaining() decimal.Decimal { return a.amount.Remaining() }

// Cancellations returns the reversals recorded against this authorization
func (a *Authorization) Cancellations() []*Cancellation { return a.cancellations }

// GetCancellation looks a reversal up by id
func (a *Authorization) GetCancellation(id string) (*Cancellation, bool) {
	return findCancellation(a.cancellations, id)
}

// RecordCancellation attaches a freshly created reversal and books its amount.
func (a *Authorization) RecordCancellation(c *Cancellation) {
	a.cancellations = append(a.cancellations, c)
	if c.amount.Valid {
		a.amount.Book(AmountCancelled, c.amount.Decimal)
	}
}

func (a *Authorization) Payload() interface{} {
	return a.payload(NullAmount(a.amount.Total()), a.ReturnURL, a.Card3ds)
}

func (a *Authorization) HandleResponse(body []byte) error {
	resp, err := decodeTransaction(body)
	if err != nil {
		return err
	}
	a.apply(resp)
	if resp.Amount.Valid {
		a.amount.SetTotal(resp.Amount.Decimal)
	}
	setIfPresent(&a.ReturnURL, resp.ReturnURL)
	setIfPresent(&a.RedirectURL, resp.RedirectURL)
	if resp.Card3ds != nil {
		a.Card3ds = resp.Card3ds
	}
	return nil
}

func findCancellation(list []*Cancellation, id string) (*Cancellation, bool) {
	if id == "" {
		return nil, false
	}
	for _, c := range list {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}
