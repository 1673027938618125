package models

import (
	"encoding/json"
	"fmt"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/shopspring/decimal"
)

// PaymentState is derived from the aggregate's remaining amounts
type PaymentState int

const (
	StatePending PaymentState = iota
	StateCompleted
	StateCancelled
)

func (s PaymentState) String() string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Transaction types as listed in a payment response
const (
	TxAuthorize       = "authorize"
	TxCharge          = "charge"
	TxCancelAuthorize = "cancel-authorize"
	TxCancelCharge    = "cancel-charge"
	TxShipment        = "shipment"
	TxPayout          = "payout"
)

// Id tags used in transaction urls
const (
	TagPayment       = "pay"
	TagAuthorization = "aut"
	TagCharge        = "chg"
	TagCancellation  = "cnl"
	TagShipment      = "shp"
	TagPayout        = "out"
	TagCustomer      = "cst"
)

// Payment is the aggregate root: at most one authorization, charges in
// creation order, an optional payout and shipments. Children reference the
// payment by id only.
type Payment struct {
	Meta

	amount        Amount
	authorization *Authorization
	charges       []*Charge
	payout        *Payout
	shipments     []*Shipment

	Currency      string
	OrderID       string
	TypeID        string
	CustomerID    string
	BasketID      string
	ReportedState string
}

// NewPayment prepares an unpersisted payment for the given payment type id
func NewPayment(typeID string) *Payment {
	return &Payment{TypeID: typeID}
}

func (p *Payment) ResourcePath() string { return "payments" }
func (p *Payment) Parent() Resource     { return nil }

// SetID assigns the payment id and propagates it to every child.
func (p *Payment) SetID(id string) {
	p.Meta.SetID(id)
	if p.authorization != nil {
		p.authorization.SetPaymentID(id)
		for _, c := range p.authorization.cancellations {
			c.SetPaymentID(id)
		}
	}
	for _, ch := range p.charges {
		ch.SetPaymentID(id)
		for _, c := range ch.cancellations {
			c.SetPaymentID(id)
		}
	}
	if p.payout != nil {
		p.payout.SetPaymentID(id)
	}
	for _, s := range p.shipments {
		s.SetPaymentID(id)
	}
}

// Amount is the aggregate amount as last reported by the gateway
func (p *Payment) Amount() *Amount { return &p.amount }

func (p *Payment) Authorization() *Authorization { return p.authorization }

// SetAuthorization attaches the payment's single authorization.
func (p *Payment) SetAuthorization(a *Authorization) error {
	if p.authorization != nil && p.authorization != a {
		return apierr.Usage("set authorization", "payment %s already has an authorization", p.ID())
	}
	a.SetPaymentID(p.ID())
	if a.TypeID == "" {
		a.TypeID = p.TypeID
	}
	if a.CustomerID == "" {
		a.CustomerID = p.CustomerID
	}
	p.authorization = a
	return nil
}

func (p *Payment) Charges() []*Charge { return p.charges }

// AddCharge appends a charge; the order of charges is creation order.
func (p *Payment) AddCharge(c *Charge) {
	c.SetPaymentID(p.ID())
	if c.TypeID == "" {
		c.TypeID = p.TypeID
	}
	if c.CustomerID == "" {
		c.CustomerID = p.CustomerID
	}
	p.charges = append(p.charges, c)
}

// GetChargeByID returns the charge with the given id.
func (p *Payment) GetChargeByID(id string) (*Charge, bool) {
	if id == "" {
		return nil, false
	}
	for _, c := range p.charges {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// GetChargeByIndex returns the i-th charge in creation order.
func (p *Payment) GetChargeByIndex(i int) (*Charge, bool) {
	if i < 0 || i >= len(p.charges) {
		return nil, false
	}
	return p.charges[i], true
}

// GetCancellation searches the authorization's reversals first and then each
// charge's refunds.
func (p *Payment) GetCancellation(id string) (*Cancellation, bool) {
	if p.authorization != nil {
		if c, ok := p.authorization.GetCancellation(id); ok {
			return c, true
		}
	}
	for _, ch := range p.charges {
		if c, ok := ch.GetCancellation(id); ok {
			return c, true
		}
	}
	return nil, false
}

// Cancellations lists every reversal and refund, authorization first.
func (p *Payment) Cancellations() []*Cancellation {
	var all []*Cancellation
	if p.authorization != nil {
		all = append(all, p.authorization.cancellations...)
	}
	for _, ch := range p.charges {
		all = append(all, ch.cancellations...)
	}
	return all
}

func (p *Payment) Payout() *Payout { return p.payout }

func (p *Payment) SetPayout(po *Payout) {
	po.SetPaymentID(p.ID())
	if po.TypeID == "" {
		po.TypeID = p.TypeID
	}
	p.payout = po
}

func (p *Payment) Shipments() []*Shipment { return p.shipments }

func (p *Payment) AddShipment(s *Shipment) {
	s.SetPaymentID(p.ID())
	p.shipments = append(p.shipments, s)
}

func (p *Payment) GetShipmentByID(id string) (*Shipment, bool) {
	for _, s := range p.shipments {
		if id != "" && s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// AuthorizedRemaining is what the authorization still holds, zero without one.
func (p *Payment) AuthorizedRemaining() decimal.Decimal {
	if p.authorization == nil {
		return decimal.Zero
	}
	return p.authorization.Remaining()
}

// ChargedRemaining is the captured amount not refunded yet.
func (p *Payment) ChargedRemaining() decimal.Decimal {
	sum := decimal.Zero
	for _, c := range p.charges {
		sum = sum.Add(c.Remaining())
	}
	return sum
}

// ChargesWithinAuthorization reports whether the charged totals fit into the
// authorized total.
func (p *Payment) ChargesWithinAuthorization() bool {
	if p.authorization == nil {
		return true
	}
	sum := decimal.Zero
	for _, c := range p.charges {
		sum = sum.Add(c.TotalAmount())
	}
	return sum.LessThanOrEqual(p.authorization.Amount().Total())
}

func (p *Payment) hasTransactions() bool {
	return p.authorization != nil || len(p.charges) > 0
}

// IsPending is true while funds are still held or nothing was booked yet.
func (p *Payment) IsPending() bool {
	return !p.hasTransactions() || p.AuthorizedRemaining().IsPositive()
}

// IsCompleted is true when nothing is held anymore and captured money remains.
func (p *Payment) IsCompleted() bool {
	return p.hasTransactions() && p.AuthorizedRemaining().IsZero() && p.ChargedRemaining().IsPositive()
}

// IsCancelled is true when every held and captured amount was cancelled.
func (p *Payment) IsCancelled() bool {
	return p.hasTransactions() && p.AuthorizedRemaining().IsZero() && p.ChargedRemaining().IsZero()
}

func (p *Payment) State() PaymentState {
	switch {
	case p.IsPending():
		return StatePending
	case p.IsCompleted():
		return StateCompleted
	default:
		return StateCancelled
	}
}

type paymentResponse struct {
	ID    string `json:"id"`
	State struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"state"`
	Amount struct {
		Total    decimal.NullDecimal `json:"total"`
		Charged  decimal.NullDecimal `json:"charged"`
		Canceled decimal.NullDecimal `json:"canceled"`
	} `json:"amount"`
	Currency     string             `json:"currency"`
	OrderID      string             `json:"orderId"`
	Resources    resourceIDs        `json:"resources"`
	Transactions []transactionEntry `json:"transactions"`
}

type transactionEntry struct {
	Date   string              `json:"date"`
	Type   string              `json:"type"`
	Status string              `json:"status"`
	URL    string              `json:"url"`
	Amount decimal.NullDecimal `json:"amount"`
}

func (e transactionEntry) succeeded() bool {
	return e.Status == "" || e.Status == "success"
}

func (e transactionEntry) amount() decimal.Decimal {
	if !e.Amount.Valid || !e.succeeded() {
		return decimal.Zero
	}
	return e.Amount.Decimal
}

// HandleResponse applies a payment GET. When the response lists transactions
// the aggregate is rebuilt from them; known objects are reused by id. Nothing
// is changed unless every transaction entry resolves.
func (p *Payment) HandleResponse(body []byte) error {
	var resp paymentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse payment response: %w", err)
	}

	var resolved []resolvedEntry
	if resp.Transactions != nil {
		var err error
		if resolved, err = resolveEntries(resp.Transactions); err != nil {
			return err
		}
	}

	setIfPresent(&p.Currency, resp.Currency)
	setIfPresent(&p.OrderID, resp.OrderID)
	setIfPresent(&p.TypeID, resp.Resources.TypeID)
	setIfPresent(&p.CustomerID, resp.Resources.CustomerID)
	setIfPresent(&p.BasketID, resp.Resources.BasketID)
	setIfPresent(&p.ReportedState, resp.State.Name)
	p.amount.SetTotal(resp.Amount.Total.Decimal)
	p.amount.SetCharged(resp.Amount.Charged.Decimal)
	p.amount.SetCancelled(resp.Amount.Canceled.Decimal)

	if resp.Transactions != nil {
		p.rebuild(resolved)
	}
	id := p.ID()
	if resp.ID != "" {
		id = resp.ID
	}
	p.SetID(id)
	return nil
}

// resolvedEntry is a transaction entry with its ids parsed from the url.
// parentID is the charge id of a cancel-charge entry.
type resolvedEntry struct {
	transactionEntry
	id       string
	parentID string
}

// resolveEntries parses every entry's ids and checks that cancellations
// follow their target. It does not touch the aggregate.
func resolveEntries(entries []transactionEntry) ([]resolvedEntry, error) {
	resolved := make([]resolvedEntry, 0, len(entries))
	seenAuth := false
	seenCharges := make(map[string]bool)

	for _, e := range entries {
		if e.Status == "error" {
			continue
		}
		r := resolvedEntry{transactionEntry: e}
		var err error
		switch e.Type {
		case TxAuthorize:
			if r.id, err = ResourceIDFromURL(e.URL, TagAuthorization); err != nil {
				return nil, fmt.Errorf("authorize entry %q: %w", e.URL, err)
			}
			seenAuth = true

		case TxCharge:
			if r.id, err = ResourceIDFromURL(e.URL, TagCharge); err != nil {
				return nil, fmt.Errorf("charge entry %q: %w", e.URL, err)
			}
			seenCharges[r.id] = true

		case TxCancelAuthorize:
			if !seenAuth {
				return nil, fmt.Errorf("cancel-authorize entry %q without authorization", e.URL)
			}
			if r.id, err = ResourceIDFromURL(e.URL, TagCancellation); err != nil {
				return nil, fmt.Errorf("cancel entry %q: %w", e.URL, err)
			}

		case TxCancelCharge:
			if r.parentID, err = ResourceIDFromURL(e.URL, TagCharge); err != nil {
				return nil, fmt.Errorf("cancel entry %q: %w", e.URL, err)
			}
			if !seenCharges[r.parentID] {
				return nil, fmt.Errorf("cancel-charge entry %q references unknown charge %s", e.URL, r.parentID)
			}
			if r.id, err = ResourceIDFromURL(e.URL, TagCancellation); err != nil {
				return nil, fmt.Errorf("cancel entry %q: %w", e.URL, err)
			}

		case TxShipment:
			if r.id, err = ResourceIDFromURL(e.URL, TagShipment); err != nil {
				return nil, fmt.Errorf("shipment entry %q: %w", e.URL, err)
			}

		case TxPayout:
			if r.id, err = ResourceIDFromURL(e.URL, TagPayout); err != nil {
				return nil, fmt.Errorf("payout entry %q: %w", e.URL, err)
			}

		default:
			continue
		}
		resolved = append(resolved, r)
	}
	return resolved, nil
}

func (p *Payment) rebuild(entries []resolvedEntry) {
	knownCharges := make(map[string]*Charge, len(p.charges))
	for _, c := range p.charges {
		knownCharges[c.ID()] = c
	}
	knownCancels := make(map[string]*Cancellation)
	for _, c := range p.Cancellations() {
		knownCancels[c.ID()] = c
	}
	knownShipments := make(map[string]*Shipment, len(p.shipments))
	for _, s := range p.shipments {
		knownShipments[s.ID()] = s
	}

	var auth *Authorization
	var charges []*Charge
	var shipments []*Shipment
	payout := p.payout

	chargeByID := func(id string) *Charge {
		for _, c := range charges {
			if c.ID() == id {
				return c
			}
		}
		return nil
	}

	cancellation := func(id string) *Cancellation {
		if c, ok := knownCancels[id]; ok {
			return c
		}
		c := &Cancellation{}
		c.SetID(id)
		return c
	}

	for _, e := range entries {
		switch e.Type {
		case TxAuthorize:
			if p.authorization != nil && p.authorization.ID() == e.id {
				auth = p.authorization
			} else {
				auth = &Authorization{}
				auth.SetID(e.id)
			}
			auth.cancellations = nil
			auth.amount.reset(e.amount())
			setIfPresent(&auth.Date, e.Date)

		case TxCharge:
			ch, ok := knownCharges[e.id]
			if !ok {
				ch = &Charge{}
				ch.SetID(e.id)
			}
			ch.cancellations = nil
			ch.amount.reset(e.amount())
			ch.requested = NullAmount(e.amount())
			setIfPresent(&ch.Date, e.Date)
			charges = append(charges, ch)
			if auth != nil {
				auth.amount.Book(AmountCharged, e.amount())
			}

		case TxCancelAuthorize:
			c := cancellation(e.id)
			c.target, c.targetID = TargetAuthorization, auth.ID()
			c.amount = NullAmount(e.amount())
			setIfPresent(&c.Date, e.Date)
			auth.cancellations = append(auth.cancellations, c)
			auth.amount.Book(AmountCancelled, e.amount())

		case TxCancelCharge:
			ch := chargeByID(e.parentID)
			c := cancellation(e.id)
			c.target, c.targetID = TargetCharge, ch.ID()
			c.amount = NullAmount(e.amount())
			setIfPresent(&c.Date, e.Date)
			ch.cancellations = append(ch.cancellations, c)
			ch.amount.Book(AmountCancelled, e.amount())

		case TxShipment:
			s, ok := knownShipments[e.id]
			if !ok {
				s = &Shipment{}
				s.SetID(e.id)
			}
			setIfPresent(&s.Date, e.Date)
			shipments = append(shipments, s)

		case TxPayout:
			if payout == nil || payout.ID() != e.id {
				payout = &Payout{}
				payout.SetID(e.id)
			}
			payout.amount.reset(e.amount())
		}
	}

	p.authorization = auth
	p.charges = charges
	p.shipments = shipments
	p.payout = payout
}
