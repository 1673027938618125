package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// TagBasket is the id tag of basket resources
const TagBasket = "bsk"

// BasketItem is one line of a basket. AmountGross defaults to
// AmountPerUnit times Quantity when left zero.
type BasketItem struct {
	BasketItemReferenceID string          `json:"basketItemReferenceId"`
	Quantity              int             `json:"quantity"`
	Title                 string          `json:"title"`
	Unit                  string          `json:"unit,omitempty"`
	Vat                   int             `json:"vat,omitempty"`
	AmountPerUnit         decimal.Decimal `json:"amountPerUnit"`
	AmountGross           decimal.Decimal `json:"amountGross"`
	AmountVat             decimal.Decimal `json:"amountVat"`
	AmountDiscount        decimal.Decimal `json:"amountDiscount"`
}

// Basket lists the goods behind a payment. Invoice-based types use it for
// the invoice lines.
type Basket struct {
	Meta

	AmountTotalGross    decimal.Decimal `json:"amountTotalGross"`
	AmountTotalVat      decimal.Decimal `json:"amountTotalVat"`
	AmountTotalDiscount decimal.Decimal `json:"amountTotalDiscount"`
	CurrencyCode        string          `json:"currencyCode"`
	OrderID             string          `json:"orderId"`
	Note                string          `json:"note,omitempty"`
	BasketItems         []BasketItem    `json:"basketItems"`
}

func NewBasket(orderID, currency string) *Basket {
	return &Basket{OrderID: orderID, CurrencyCode: currency}
}

// AddItem appends item and keeps the basket totals in step.
func (b *Basket) AddItem(item BasketItem) {
	if item.AmountGross.IsZero() {
		item.AmountGross = item.AmountPerUnit.Mul(decimal.NewFromInt(int64(item.Quantity)))
	}
	b.BasketItems = append(b.BasketItems, item)
	b.AmountTotalGross = b.AmountTotalGross.Add(item.AmountGross)
	b.AmountTotalVat = b.AmountTotalVat.Add(item.AmountVat)
	b.AmountTotalDiscount = b.AmountTotalDiscount.Add(item.AmountDiscount)
}

func (b *Basket) ResourcePath() string { return "baskets" }
func (b *Basket) Parent() Resource     { return nil }

func (b *Basket) Payload() interface{} {
	return b
}

func (b *Basket) HandleResponse(body []byte) error {
	var resp struct {
		ID string `json:"id"`
		Basket
	}
	resp.Basket = *b
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse basket response: %w", err)
	}
	meta := b.Meta
	*b = resp.Basket
	b.Meta = meta
	if resp.ID != "" {
		b.SetID(resp.ID)
	}
	return nil
}
