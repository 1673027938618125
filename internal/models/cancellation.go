package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CancelTarget tags which transaction a cancellation belongs to
type CancelTarget int

const (
	TargetNone CancelTarget = iota
	TargetAuthorization
	TargetCharge
)

func (t CancelTarget) String() string {
	switch t {
	case TargetAuthorization:
		return "authorization"
	case TargetCharge:
		return "charge"
	default:
		return "none"
	}
}

// Reason codes accepted on charge cancellations
const (
	ReasonCodeCancel = "CANCEL"
	ReasonCodeReturn = "RETURN"
	ReasonCodeCredit = "CREDIT"
)

// Cancellation is a reversal of an authorization or a refund of a charge.
// A null amount asks the gateway to cancel everything that remains.
type Cancellation struct {
	Transaction

	amount   decimal.NullDecimal
	target   CancelTarget
	targetID string

	ReasonCode string
	AmountNet  decimal.NullDecimal
	AmountVat  decimal.NullDecimal
}

// NewCancellation returns an unbound cancellation; bind it with
// ForAuthorization or ForCharge before sending.
func NewCancellation(amount decimal.NullDecimal) *Cancellation {
	return &Cancellation{amount: amount}
}

// CancellationFor builds a reversal bound to auth
func CancellationFor(auth *Authorization, amount decimal.NullDecimal) *Cancellation {
	c := NewCancellation(amount)
	c.ForAuthorization(auth)
	return c
}

// RefundFor builds a refund bound to charge
func RefundFor(charge *Charge, amount decimal.NullDecimal) *Cancellation {
	c := NewCancellation(amount)
	c.ForCharge(charge)
	return c
}

// ForAuthorization binds the cancellation to auth.
func (c *Cancellation) ForAuthorization(auth *Authorization) *Cancellation {
	c.target = TargetAuthorization
	c.targetID = auth.ID()
	c.paymentID = auth.PaymentID()
	return c
}

// ForCharge binds the cancellation to charge.
func (c *Cancellation) ForCharge(charge *Charge) *Cancellation {
	c.target = TargetCharge
	c.targetID = charge.ID()
	c.paymentID = charge.PaymentID()
	return c
}

// Amount is the cancelled amount; null until resolved by the gateway when
// the request asked for a full cancel.
func (c *Cancellation) Amount() decimal.NullDecimal { return c.amount }

// ResolveAmount fills a null amount with what the gateway applied. It is a
// no-op once the amount is known.
func (c *Cancellation) ResolveAmount(applied decimal.Decimal) {
	if !c.amount.Valid {
		c.amount = NullAmount(applied)
	}
}

// Target reports the kind and id of the cancelled transaction.
func (c *Cancellation) Target() (CancelTarget, string) { return c.target, c.targetID }

func (c *Cancellation) ResourcePath() string { return "cancels" }

func (c *Cancellation) Parent() Resource {
	switch c.target {
	case TargetAuthorization:
		return NewRef("authorize", c.targetID, c.paymentParent())
	case TargetCharge:
		return NewRef("charges", c.targetID, c.paymentParent())
	default:
		return c.paymentParent()
	}
}

type cancellationPayload struct {
	Amount           *json.Number `json:"amount,omitempty"`
	ReasonCode       string       `json:"reasonCode,omitempty"`
	PaymentReference string       `json:"paymentReference,omitempty"`
	AmountNet        *json.Number `json:"amountNet,omitempty"`
	AmountVat        *json.Number `json:"amountVat,omitempty"`
}

func (c *Cancellation) Payload() interface{} {
	return cancellationPayload{
		Amount:           jsonAmount(c.amount),
		ReasonCode:       c.ReasonCode,
		PaymentReference: c.PaymentReference,
		AmountNet:        jsonAmount(c.AmountNet),
		AmountVat:        jsonAmount(c.AmountVat),
	}
}

func (c *Cancellation) HandleResponse(body []byte) error {
	resp, err := decodeTransaction(body)
	if err != nil {
		return err
	}
	c.apply(resp)
	if resp.Amount.Valid {
		c.amount = resp.Amount
	}
	setIfPresent(&c.ReasonCode, resp.ReasonCode)
	if resp.AmountNet.Valid {
		c.AmountNet = resp.AmountNet
	}
	if resp.AmountVat.Valid {
		c.AmountVat = resp.AmountVat
	}
	return nil
}
