package merchant

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem represents an item in an order
type OrderItem struct {
	ItemID   string          `json:"item_id" binding:"required"`
	Quantity int             `json:"quantity" binding:"required,gt=0"`
	Price    decimal.Decimal `json:"price"`
}

// Order is a checkout and the gateway payment backing it
type Order struct {
	ID          string          `json:"id"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	PaymentID   string          `json:"payment_id,omitempty"`
	TypeID      string          `json:"type_id,omitempty"`
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Order statuses
const (
	OrderStatusPending            = "pending"
	OrderStatusAuthorized         = "authorized"
	OrderStatusCharged            = "charged"
	OrderStatusShipped            = "shipped"
	OrderStatusPartiallyCancelled = "partially_cancelled"
	OrderStatusCancelled          = "cancelled"
	OrderStatusFailed             = "failed"
)

// Card is the payment method a checkout pays with
type Card struct {
	Number     string `json:"number"`
	ExpiryDate string `json:"expiry_date"`
}

// CheckoutRequest places an order and authorizes its total
type CheckoutRequest struct {
	Items     []OrderItem `json:"items" binding:"required,dive"`
	Currency  string      `json:"currency"`
	Card      Card        `json:"card"`
	ReturnURL string      `json:"return_url"`
}

// CheckoutResponse is returned by checkout
type CheckoutResponse struct {
	OrderID   string          `json:"order_id"`
	PaymentID string          `json:"payment_id,omitempty"`
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Total     decimal.Decimal `json:"total"`
}

// AmountRequest carries an optional amount; omitted means everything left
type AmountRequest struct {
	Amount     decimal.NullDecimal `json:"amount"`
	ReasonCode string              `json:"reason_code"`
	InvoiceID  string              `json:"invoice_id"`
}

// CancellationView summarises one booked cancellation
type CancellationView struct {
	ID     string              `json:"id"`
	Target string              `json:"target"`
	On     string              `json:"target_id"`
	Amount decimal.NullDecimal `json:"amount"`
}

// CancelResponse lists what a cancel request booked, even when it failed midway
type CancelResponse struct {
	OrderID       string             `json:"order_id"`
	PaymentID     string             `json:"payment_id"`
	Status        string             `json:"status"`
	Message       string             `json:"message,omitempty"`
	Cancellations []CancellationView `json:"cancellations"`
	Cancelled     decimal.Decimal    `json:"cancelled"`
}

// PaymentView is the merchant's read model of a gateway payment
type PaymentView struct {
	ID            string             `json:"id"`
	State         string             `json:"state"`
	Currency      string             `json:"currency"`
	Authorized    decimal.Decimal    `json:"authorized"`
	Remaining     decimal.Decimal    `json:"remaining"`
	Charged       decimal.Decimal    `json:"charged"`
	Refundable    decimal.Decimal    `json:"refundable"`
	Charges       []string           `json:"charges"`
	Cancellations []CancellationView `json:"cancellations"`
}
