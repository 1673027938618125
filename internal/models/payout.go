package models

import "github.com/shopspring/decimal"

// Payout credits money to the payment type's holder.
type Payout struct {
	Transaction

	amount    Amount
	ReturnURL string
}

func NewPayout(amount decimal.Decimal, currency, returnURL string) *Payout {
	p := &Payout{amount: NewAmount(amount), ReturnURL: returnURL}
	p.Currency = currency
	return p
}

func (p *Payout) ResourcePath() string { return "payouts" }
func (p *Payout) Parent() Resource     { return p.paymentParent() }
func (p *Payout) Amount() *Amount      { return &p.amount }

func (p *Payout) Payload() interface{} {
	return p.payload(NullAmount(p.amount.Total()), p.ReturnURL, nil)
}

func (p *Payout) HandleResponse(body []byte) error {
	resp, err := decodeTransaction(body)
	if err != nil {
		return err
	}
	p.apply(resp)
	if resp.Amount.Valid {
		p.amount.SetTotal(resp.Amount.Decimal)
	}
	return nil
}
