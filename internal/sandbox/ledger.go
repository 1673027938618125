// Package sandbox is an in-memory payment gateway speaking the same API as
// the real one. It books money the way the gateway does and answers with the
// gateway's error codes.
package sandbox

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rejection is a refused request. Symbol wins over Code when both are set.
type Rejection struct {
	Status  int
	Symbol  apierr.Symbol
	Code    string
	Message string
}

func (r *Rejection) Error() string { return r.Message }

func reject(status int, sym apierr.Symbol, format string, args ...interface{}) *Rejection {
	return &Rejection{Status: status, Symbol: sym, Message: fmt.Sprintf(format, args...)}
}

// Codes the sandbox uses for conditions without a symbolic name
const (
	CodeInvalidRequest  = "SBX.100.000.001"
	CodeAmountTooHigh   = "SBX.340.100.018"
	CodeNotFound        = "SBX.310.100.001"
	CodeUnavailable     = "SBX.500.000.001"
	CodeInvalidKey      = "SBX.710.000.001"
	CodeUnknownCustomer = "SBX.410.100.001"
)

func newID(tag string) string {
	return fmt.Sprintf("s-%s-%s", tag, strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
}

// TxnRequest is the body of authorize, charge, payout, cancel and shipment requests.
type TxnRequest struct {
	Amount           decimal.NullDecimal `json:"amount"`
	Currency         string              `json:"currency"`
	ReturnURL        string              `json:"returnUrl"`
	OrderID          string              `json:"orderId"`
	InvoiceID        string              `json:"invoiceId"`
	PaymentReference string              `json:"paymentReference"`
	Card3ds          *bool               `json:"card3ds"`
	ReasonCode       string              `json:"reasonCode"`
	AmountNet        decimal.NullDecimal `json:"amountNet"`
	AmountVat        decimal.NullDecimal `json:"amountVat"`
	Resources        struct {
		TypeID     string `json:"typeId"`
		CustomerID string `json:"customerId"`
		BasketID   string `json:"basketId"`
	} `json:"resources"`
}

type txn struct {
	id          string
	kind        string
	amount      decimal.Decimal
	charged     decimal.Decimal
	cancelled   decimal.Decimal
	chargedBack bool
	parentID    string
	date        time.Time
	shortID     string
	uniqueID    string
	req         TxnRequest
	cancels     []*txn
}

func (t *txn) remaining() decimal.Decimal {
	r := t.amount.Sub(t.charged).Sub(t.cancelled)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

type paymentRecord struct {
	id         string
	orderID    string
	currency   string
	typeID     string
	customerID string
	invoiceID  string
	basketID   string
	auth       *txn
	charges    []*txn
	entries    []*txn
}

func (p *paymentRecord) charge(id string) *txn {
	for _, c := range p.charges {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (p *paymentRecord) chargedRemaining() decimal.Decimal {
	sum := decimal.Zero
	for _, c := range p.charges {
		sum = sum.Add(c.remaining())
	}
	return sum
}

func (p *paymentRecord) find(kind, id string) *txn {
	for _, e := range p.entries {
		if e.kind == kind && e.id == id {
			return e
		}
	}
	return nil
}

// PaymentType is a stored payment method instance
type PaymentType struct {
	ID     string
	Kind   models.PaymentKind
	Fields map[string]interface{}
}

// Ledger holds all sandbox state. It is safe for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	payments  map[string]*paymentRecord
	byOrderID map[string]string
	types     map[string]*PaymentType
	customers map[string]map[string]interface{}
	baskets   map[string]*Basket
	now       func() time.Time
}

// NewLedger returns an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		payments:  make(map[string]*paymentRecord),
		byOrderID: make(map[string]string),
		types:     make(map[string]*PaymentType),
		customers: make(map[string]map[string]interface{}),
		baskets:   make(map[string]*Basket),
		now:       time.Now,
	}
}

func (l *Ledger) newTxn(kind, tag string, amount decimal.Decimal, req TxnRequest) *txn {
	short := strings.ReplaceAll(uuid.New().String(), "-", "")
	return &txn{
		id:       newID(tag),
		kind:     kind,
		amount:   amount,
		date:     l.now(),
		shortID:  fmt.Sprintf("%s.%s.%s", short[:4], short[4:8], short[8:12]),
		uniqueID: strings.ToUpper(short),
		req:      req,
	}
}

// CreateType stores a payment type of kind
func (l *Ledger) CreateType(kind models.PaymentKind, fields map[string]interface{}) (*PaymentType, *Rejection) {
	if !kind.Valid() {
		return nil, &Rejection{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: "Invalid payment type!"}
	}
	if fields == nil {
		fields = make(map[string]interface{})
	}
	delete(fields, "id")
	if number, ok := fields["number"].(string); ok && len(number) > 10 {
		fields["number"] = number[:6] + strings.Repeat("*", len(number)-10) + number[len(number)-4:]
	}
	pt := &PaymentType{ID: newID(kind.Tag()), Kind: kind, Fields: fields}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.types[pt.ID] = pt
	return pt, nil
}

// Type returns a stored payment type
func (l *Ledger) Type(id string) (*PaymentType, *Rejection) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pt, ok := l.types[id]
	if !ok {
		return nil, &Rejection{Status: http.StatusNotFound, Code: CodeNotFound, Message: "payment type not found"}
	}
	return pt, nil
}

func kindOf(typeID string) (models.PaymentKind, *Rejection) {
	kind, err := models.KindFromID(typeID)
	if err != nil {
		return "", &Rejection{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: "Invalid payment type!"}
	}
	return kind, nil
}

func (l *Ledger) newPayment(req TxnRequest) *paymentRecord {
	p := &paymentRecord{
		id:         newID(models.TagPayment),
		orderID:    req.OrderID,
		currency:   req.Currency,
		typeID:     req.Resources.TypeID,
		customerID: req.Resources.CustomerID,
		invoiceID:  req.InvoiceID,
		basketID:   req.Resources.BasketID,
	}
	l.payments[p.id] = p
	if p.orderID != "" {
		l.byOrderID[p.orderID] = p.id
	}
	return p
}

func (l *Ledger) payment(idOrOrderID string) (*paymentRecord, *Rejection) {
	if p, ok := l.payments[idOrOrderID]; ok {
		return p, nil
	}
	if id, ok := l.byOrderID[idOrOrderID]; ok {
		return l.payments[id], nil
	}
	return nil, reject(http.StatusNotFound, apierr.PaymentNotFound, "Payment %s not found", idOrOrderID)
}

func requireAmount(amount decimal.NullDecimal) *Rejection {
	if !amount.Valid || !amount.Decimal.IsPositive() {
		return &Rejection{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: "amount must be positive"}
	}
	return nil
}

// Authorize creates an authorization. An empty paymentID creates the payment.
func (l *Ledger) Authorize(paymentID string, req TxnRequest) (string, *txn, *Rejection) {
	if rej := requireAmount(req.Amount); rej != nil {
		return "", nil, rej
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var p *paymentRecord
	if paymentID != "" {
		var rej *Rejection
		if p, rej = l.payment(paymentID); rej != nil {
			return "", nil, rej
		}
		if req.Resources.TypeID == "" {
			req.Resources.TypeID = p.typeID
		}
	}
	kind, rej := kindOf(req.Resources.TypeID)
	if rej != nil {
		return "", nil, rej
	}
	if !kind.Supports(models.CanAuthorize) {
		return "", nil, reject(http.StatusBadRequest, apierr.TransactionAuthorizeNotAllowed, "Payment type %s does not support authorization", kind)
	}
	if p != nil && p.auth != nil {
		return "", nil, reject(http.StatusBadRequest, apierr.TransactionAuthorizeNotAllowed, "Payment %s is already authorized", p.id)
	}
	if rej := l.requireBasket(kind, req.Resources.BasketID); rej != nil {
		return "", nil, rej
	}
	if p == nil {
		p = l.newPayment(req)
	}

	t := l.newTxn(models.TxAuthorize, models.TagAuthorization, req.Amount.Decimal, req)
	p.auth = t
	p.entries = append(p.entries, t)
	return p.id, t, nil
}

// Charge captures an authorization when paymentID is set, or charges
// directly on the type and creates the payment otherwise.
func (l *Ledger) Charge(paymentID string, req TxnRequest) (string, *txn, *Rejection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if paymentID == "" {
		if rej := requireAmount(req.Amount); rej != nil {
			return "", nil, rej
		}
		kind, rej := kindOf(req.Resources.TypeID)
		if rej != nil {
			return "", nil, rej
		}
		if !kind.Supports(models.CanDirectCharge) {
			return "", nil, reject(http.StatusBadRequest, apierr.TransactionChargeNotAllowed, "Payment type %s does not support direct charge", kind)
		}
		if rej := l.requireBasket(kind, req.Resources.BasketID); rej != nil {
			return "", nil, rej
		}
		p := l.newPayment(req)
		t := l.newTxn(models.TxCharge, models.TagCharge, req.Amount.Decimal, req)
		p.charges = append(p.charges, t)
		p.entries = append(p.entries, t)
		return p.id, t, nil
	}

	p, rej := l.payment(paymentID)
	if rej != nil {
		return "", nil, rej
	}
	if p.auth == nil {
		return "", nil, reject(http.StatusBadRequest, apierr.TransactionChargeNotAllowed, "Payment %s has no authorization to charge", p.id)
	}
	amount := p.auth.remaining()
	if req.Amount.Valid {
		if !req.Amount.Decimal.IsPositive() {
			return "", nil, &Rejection{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: "amount must be positive"}
		}
		amount = req.Amount.Decimal
	}
	if !amount.IsPositive() || amount.GreaterThan(p.auth.remaining()) {
		return "", nil, reject(http.StatusBadRequest, apierr.ChargedAmountHigherThanExpected,
			"Charged amount %s is higher than the authorized remaining %s", amount, p.auth.remaining())
	}
	if req.Currency == "" {
		req.Currency = p.currency
	}
	t := l.newTxn(models.TxCharge, models.TagCharge, amount, req)
	p.auth.charged = p.auth.charged.Add(amount)
	p.charges = append(p.charges, t)
	p.entries = append(p.entries, t)
	return p.id, t, nil
}

// Payout credits money to the type holder and creates the payment.
func (l *Ledger) Payout(req TxnRequest) (string, *txn, *Rejection) {
	if rej := requireAmount(req.Amount); rej != nil {
		return "", nil, rej
	}
	kind, rej := kindOf(req.Resources.TypeID)
	if rej != nil {
		return "", nil, rej
	}
	if !kind.Supports(models.CanPayout) {
		return "", nil, &Rejection{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: fmt.Sprintf("Payment type %s does not support payout", kind)}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.newPayment(req)
	t := l.newTxn(models.TxPayout, models.TagPayout, req.Amount.Decimal, req)
	p.entries = append(p.entries, t)
	return p.id, t, nil
}

// CancelAuthorization reverses part or all of what the authorization holds.
func (l *Ledger) CancelAuthorization(paymentID, authID string, req TxnRequest) (*txn, *Rejection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, rej := l.payment(paymentID)
	if rej != nil {
		return nil, rej
	}
	auth := p.auth
	if auth == nil || auth.id != authID {
		return nil, &Rejection{Status: http.StatusNotFound, Code: CodeNotFound, Message: "authorization not found"}
	}

	remaining := auth.remaining()
	if remaining.IsZero() {
		if auth.charged.Equal(auth.amount) {
			return nil, reject(http.StatusBadRequest, apierr.AlreadyCharged, "Authorization %s is already fully charged", auth.id)
		}
		return nil, reject(http.StatusBadRequest, apierr.AlreadyCancelled, "Authorization %s is already cancelled", auth.id)
	}
	amount, rej := cancelAmount(req.Amount, remaining)
	if rej != nil {
		return nil, rej
	}

	t := l.newTxn(models.TxCancelAuthorize, models.TagCancellation, amount, req)
	t.parentID = auth.id
	auth.cancelled = auth.cancelled.Add(amount)
	auth.cancels = append(auth.cancels, t)
	p.entries = append(p.entries, t)
	return t, nil
}

// CancelCharge refunds part or all of a charge.
func (l *Ledger) CancelCharge(paymentID, chargeID string, req TxnRequest) (*txn, *Rejection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, rej := l.payment(paymentID)
	if rej != nil {
		return nil, rej
	}
	charge := p.charge(chargeID)
	if charge == nil {
		return nil, &Rejection{Status: http.StatusNotFound, Code: CodeNotFound, Message: "charge not found"}
	}
	if charge.chargedBack {
		return nil, reject(http.StatusBadRequest, apierr.AlreadyChargedBack, "Charge %s was charged back", charge.id)
	}
	remaining := charge.remaining()
	if remaining.IsZero() {
		return nil, reject(http.StatusBadRequest, apierr.AlreadyCancelled, "Charge %s is already cancelled", charge.id)
	}
	amount, rej := cancelAmount(req.Amount, remaining)
	if rej != nil {
		return nil, rej
	}
	if req.ReasonCode == "" {
		req.ReasonCode = models.ReasonCodeCancel
	}

	t := l.newTxn(models.TxCancelCharge, models.TagCancellation, amount, req)
	t.parentID = charge.id
	charge.cancelled = charge.cancelled.Add(amount)
	charge.cancels = append(charge.cancels, t)
	p.entries = append(p.entries, t)
	return t, nil
}

func cancelAmount(requested decimal.NullDecimal, remaining decimal.Decimal) (decimal.Decimal, *Rejection) {
	if !requested.Valid {
		return remaining, nil
	}
	if !requested.Decimal.IsPositive() {
		return decimal.Zero, &Rejection{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: "amount must be positive"}
	}
	if requested.Decimal.GreaterThan(remaining) {
		return decimal.Zero, &Rejection{Status: http.StatusBadRequest, Code: CodeAmountTooHigh,
			Message: fmt.Sprintf("Cancel amount %s exceeds the remaining %s", requested.Decimal, remaining)}
	}
	return requested.Decimal, nil
}

// ChargeBack marks a charge as reversed by the card holder's bank.
func (l *Ledger) ChargeBack(paymentID, chargeID string) *Rejection {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, rej := l.payment(paymentID)
	if rej != nil {
		return rej
	}
	charge := p.charge(chargeID)
	if charge == nil {
		return &Rejection{Status: http.StatusNotFound, Code: CodeNotFound, Message: "charge not found"}
	}
	charge.chargedBack = true
	return nil
}

// Ship records a shipment on the payment.
func (l *Ledger) Ship(paymentID string, req TxnRequest) (*txn, *Rejection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, rej := l.payment(paymentID)
	if rej != nil {
		return nil, rej
	}
	if req.InvoiceID == "" {
		req.InvoiceID = p.invoiceID
	}
	if kind, err := models.KindFromID(p.typeID); err == nil && kind.Supports(models.ShipmentNeedsInvoiceID) && req.InvoiceID == "" {
		return nil, reject(http.StatusBadRequest, apierr.InvoiceIDRequired, "Shipment for %s requires an invoice id", kind)
	}
	t := l.newTxn(models.TxShipment, models.TagShipment, decimal.Zero, req)
	p.entries = append(p.entries, t)
	return t, nil
}

// CreateCustomer stores a customer; customerId values are unique.
func (l *Ledger) CreateCustomer(fields map[string]interface{}) (map[string]interface{}, *Rejection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ext, _ := fields["customerId"].(string); ext != "" {
		for _, c := range l.customers {
			if c["customerId"] == ext {
				return nil, reject(http.StatusConflict, apierr.CustomerIDAlreadyExists, "Customer id %s already exists", ext)
			}
		}
	}
	id := newID(models.TagCustomer)
	fields["id"] = id
	l.customers[id] = fields
	return copyMap(fields), nil
}

func (l *Ledger) customer(idOrCustomerID string) (map[string]interface{}, *Rejection) {
	if c, ok := l.customers[idOrCustomerID]; ok {
		return c, nil
	}
	for _, c := range l.customers {
		if c["customerId"] == idOrCustomerID {
			return c, nil
		}
	}
	return nil, &Rejection{Status: http.StatusNotFound, Code: CodeUnknownCustomer, Message: "customer not found"}
}

// Customer returns a customer by gateway id or customerId
func (l *Ledger) Customer(idOrCustomerID string) (map[string]interface{}, *Rejection) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, rej := l.customer(idOrCustomerID)
	if rej != nil {
		return nil, rej
	}
	return copyMap(c), nil
}

// UpdateCustomer overwrites the given fields
func (l *Ledger) UpdateCustomer(id string, fields map[string]interface{}) (map[string]interface{}, *Rejection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, rej := l.customer(id)
	if rej != nil {
		return nil, rej
	}
	for k, v := range fields {
		if k != "id" {
			c[k] = v
		}
	}
	return copyMap(c), nil
}

// DeleteCustomer removes a customer
func (l *Ledger) DeleteCustomer(id string) (string, *Rejection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, rej := l.customer(id)
	if rej != nil {
		return "", rej
	}
	gatewayID, _ := c["id"].(string)
	delete(l.customers, gatewayID)
	return gatewayID, nil
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
