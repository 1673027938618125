package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Transaction carries the fields shared by every transaction type. The owning
// payment is referenced by id only; ownership runs from Payment downwards.
type Transaction struct {
	Meta

	paymentID string

	Currency         string
	OrderID          string
	InvoiceID        string
	PaymentReference string
	Date             string
	ShortID          string
	UniqueID         string
	TypeID           string
	CustomerID       string
	BasketID         string
}

// PaymentID returns the id of the owning payment, empty before the first response.
func (t *Transaction) PaymentID() string { return t.paymentID }

// SetPaymentID records the owning payment.
func (t *Transaction) SetPaymentID(id string) { t.paymentID = id }

func (t *Transaction) paymentParent() Resource {
	return PaymentRef(t.paymentID)
}

type resourceIDs struct {
	PaymentID  string `json:"paymentId,omitempty"`
	TypeID     string `json:"typeId,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
	BasketID   string `json:"basketId,omitempty"`
}

type processing struct {
	UniqueID string `json:"uniqueId"`
	ShortID  string `json:"shortId"`
}

// transactionResponse is the superset of fields the gateway returns for any
// transaction type.
type transactionResponse struct {
	ID               string              `json:"id"`
	Amount           decimal.NullDecimal `json:"amount"`
	Currency         string              `json:"currency"`
	ReturnURL        string              `json:"returnUrl"`
	RedirectURL      string              `json:"redirectUrl"`
	OrderID          string              `json:"orderId"`
	InvoiceID        string              `json:"invoiceId"`
	PaymentReference string              `json:"paymentReference"`
	Date             string              `json:"date"`
	Card3ds          *bool               `json:"card3ds"`
	ReasonCode       string              `json:"reasonCode"`
	AmountNet        decimal.NullDecimal `json:"amountNet"`
	AmountVat        decimal.NullDecimal `json:"amountVat"`
	Resources        resourceIDs         `json:"resources"`
	Processing       processing          `json:"processing"`
}

func decodeTransaction(body []byte) (*transactionResponse, error) {
	var resp transactionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse transaction response: %w", err)
	}
	return &resp, nil
}

// apply copies the common fields; empty values never overwrite local ones.
func (t *Transaction) apply(r *transactionResponse) {
	if r.ID != "" {
		t.SetID(r.ID)
	}
	setIfPresent(&t.paymentID, r.Resources.PaymentID)
	setIfPresent(&t.TypeID, r.Resources.TypeID)
	setIfPresent(&t.CustomerID, r.Resources.CustomerID)
	setIfPresent(&t.BasketID, r.Resources.BasketID)
	setIfPresent(&t.Currency, r.Currency)
	setIfPresent(&t.OrderID, r.OrderID)
	setIfPresent(&t.InvoiceID, r.InvoiceID)
	setIfPresent(&t.PaymentReference, r.PaymentReference)
	setIfPresent(&t.Date, r.Date)
	setIfPresent(&t.ShortID, r.Processing.ShortID)
	setIfPresent(&t.UniqueID, r.Processing.UniqueID)
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// transactionPayload is the request body for authorize, charge and payout.
type transactionPayload struct {
	Amount           *json.Number `json:"amount,omitempty"`
	Currency         string       `json:"currency,omitempty"`
	ReturnURL        string       `json:"returnUrl,omitempty"`
	OrderID          string       `json:"orderId,omitempty"`
	InvoiceID        string       `json:"invoiceId,omitempty"`
	PaymentReference string       `json:"paymentReference,omitempty"`
	Card3ds          *bool        `json:"card3ds,omitempty"`
	Resources        *resourceIDs `json:"resources,omitempty"`
}

func (t *Transaction) payload(amount decimal.NullDecimal, returnURL string, card3ds *bool) transactionPayload {
	p := transactionPayload{
		Amount:           jsonAmount(amount),
		Currency:         t.Currency,
		ReturnURL:        returnURL,
		OrderID:          t.OrderID,
		InvoiceID:        t.InvoiceID,
		PaymentReference: t.PaymentReference,
		Card3ds:          card3ds,
	}
	if t.TypeID != "" || t.CustomerID != "" || t.BasketID != "" {
		p.Resources = &resourceIDs{TypeID: t.TypeID, CustomerID: t.CustomerID, BasketID: t.BasketID}
	}
	return p
}
