// Package payment creates the transactions that move money forward:
// authorizations, charges, payouts and shipments.
package payment

import (
	"context"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Resources is what the service needs from the resource layer.
type Resources interface {
	Create(ctx context.Context, r models.Resource) error
	FetchPayment(ctx context.Context, id string) (*models.Payment, error)
}

// Options are optional transaction fields.
type Options struct {
	CustomerID       string
	OrderID          string
	InvoiceID        string
	PaymentReference string
	Card3ds          *bool
	// Basket is created on the gateway first when it has no id yet.
	Basket *models.Basket
}

func (o Options) applyTo(t *models.Transaction) {
	t.CustomerID = o.CustomerID
	t.OrderID = o.OrderID
	t.InvoiceID = o.InvoiceID
	t.PaymentReference = o.PaymentReference
}

// attachBasket creates opts.Basket if needed and links it to t.
func (s *Service) attachBasket(ctx context.Context, t *models.Transaction, opts Options) error {
	b := opts.Basket
	if b == nil {
		return nil
	}
	if b.ID() == "" {
		if b.OrderID == "" {
			b.OrderID = opts.OrderID
		}
		if b.CurrencyCode == "" {
			b.CurrencyCode = t.Currency
		}
		if err := s.resources.Create(ctx, b); err != nil {
			return err
		}
		s.logger.WithFields(log.Fields{
			"basket_id": b.ID(),
			"order_id":  b.OrderID,
			"items":     len(b.BasketItems),
		}).Info("Basket created")
	}
	t.BasketID = b.ID()
	return nil
}

// Service issues authorize, charge, payout and ship requests.
type Service struct {
	resources Resources
	logger    log.FieldLogger
}

// NewService builds a payment service. A nil logger uses the logrus standard logger.
func NewService(resources Resources, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{resources: resources, logger: logger}
}

func requireCapability(op, typeID string, c models.Capability) error {
	kind, err := models.KindFromID(typeID)
	if err != nil {
		return err
	}
	if !kind.Supports(c) {
		return apierr.Usage(op, "payment type %s does not support %s", kind, op)
	}
	return nil
}

func requirePositive(op string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apierr.Usage(op, "amount must be positive, got %s", amount)
	}
	return nil
}

// Authorize holds amount on the payment type typeID and returns the new payment.
func (s *Service) Authorize(ctx context.Context, amount decimal.Decimal, currency, typeID, returnURL string, opts Options) (*models.Payment, error) {
	p := models.NewPayment(typeID)
	p.CustomerID = opts.CustomerID
	p.OrderID = opts.OrderID
	p.Currency = currency
	if _, err := s.AuthorizeWithPayment(ctx, p, amount, currency, returnURL, opts); err != nil {
		return nil, err
	}
	return p, nil
}

// AuthorizeWithPayment creates the single authorization of payment.
func (s *Service) AuthorizeWithPayment(ctx context.Context, p *models.Payment, amount decimal.Decimal, currency, returnURL string, opts Options) (*models.Authorization, error) {
	if err := requirePositive("authorize", amount); err != nil {
		return nil, err
	}
	if err := requireCapability("authorize", p.TypeID, models.CanAuthorize); err != nil {
		return nil, err
	}
	if p.Authorization() != nil {
		return nil, apierr.Usage("authorize", "payment %s is already authorized", p.ID())
	}

	auth := models.NewAuthorization(amount, currency, returnURL)
	opts.applyTo(&auth.Transaction)
	auth.Card3ds = opts.Card3ds
	auth.TypeID = p.TypeID
	if auth.CustomerID == "" {
		auth.CustomerID = p.CustomerID
	}
	auth.SetPaymentID(p.ID())
	if err := s.attachBasket(ctx, &auth.Transaction, opts); err != nil {
		return nil, err
	}

	if err := s.resources.Create(ctx, auth); err != nil {
		return nil, err
	}

	paymentID := auth.PaymentID()
	if err := p.SetAuthorization(auth); err != nil {
		return nil, err
	}
	if auth.BasketID != "" {
		p.BasketID = auth.BasketID
	}
	s.adopt(p, paymentID)

	s.logger.WithFields(log.Fields{
		"payment_id":       p.ID(),
		"authorization_id": auth.ID(),
		"amount":           auth.Amount().Total().String(),
	}).Info("Authorization created")
	return auth, nil
}

// Charge captures amount directly on typeID without an authorization.
func (s *Service) Charge(ctx context.Context, amount decimal.Decimal, currency, typeID, returnURL string, opts Options) (*models.Payment, error) {
	if err := requirePositive("charge", amount); err != nil {
		return nil, err
	}
	if err := requireCapability("charge", typeID, models.CanDirectCharge); err != nil {
		return nil, err
	}

	p := models.NewPayment(typeID)
	p.CustomerID = opts.CustomerID
	p.OrderID = opts.OrderID
	p.Currency = currency

	charge := models.NewCharge(models.NullAmount(amount), currency, returnURL)
	opts.applyTo(&charge.Transaction)
	charge.Card3ds = opts.Card3ds
	charge.TypeID = typeID
	if err := s.attachBasket(ctx, &charge.Transaction, opts); err != nil {
		return nil, err
	}

	if err := s.resources.Create(ctx, charge); err != nil {
		return nil, err
	}

	paymentID := charge.PaymentID()
	p.AddCharge(charge)
	p.BasketID = charge.BasketID
	s.adopt(p, paymentID)

	s.logger.WithFields(log.Fields{
		"payment_id": p.ID(),
		"charge_id":  charge.ID(),
	}).Info("Direct charge created")
	return p, nil
}

// ChargeAuthorization loads the payment and captures amount of its authorization.
func (s *Service) ChargeAuthorization(ctx context.Context, paymentID string, amount decimal.NullDecimal) (*models.Charge, error) {
	p, err := s.resources.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.ChargePayment(ctx, p, amount, "")
}

// ChargePayment captures amount of the payment's authorization; a null
// amount captures whatever it still holds.
func (s *Service) ChargePayment(ctx context.Context, p *models.Payment, amount decimal.NullDecimal, currency string) (*models.Charge, error) {
	if p.ID() == "" {
		return nil, apierr.Usage("charge payment", "payment has no id")
	}
	if amount.Valid {
		if err := requirePositive("charge payment", amount.Decimal); err != nil {
			return nil, err
		}
	}

	auth := p.Authorization()
	held := decimal.Zero
	if auth != nil {
		held = auth.Remaining()
		if amount.Valid {
			if err := auth.Amount().Check(models.AmountCharged, amount.Decimal); err != nil {
				return nil, err
			}
		}
	}

	if currency == "" {
		currency = p.Currency
	}
	if currency == "" && auth != nil {
		currency = auth.Currency
	}

	charge := models.NewCharge(amount, currency, "")
	charge.SetPaymentID(p.ID())
	if err := s.resources.Create(ctx, charge); err != nil {
		return nil, err
	}
	if charge.TotalAmount().IsZero() && !amount.Valid {
		charge.Amount().SetTotal(held)
	}

	p.AddCharge(charge)
	if auth != nil {
		if err := auth.Amount().Apply(models.AmountCharged, charge.TotalAmount()); err != nil {
			s.logger.WithError(err).WithField("payment_id", p.ID()).Warn("Gateway charged beyond the local authorization view")
			auth.Amount().Book(models.AmountCharged, charge.TotalAmount())
		}
	}

	s.logger.WithFields(log.Fields{
		"payment_id": p.ID(),
		"charge_id":  charge.ID(),
		"amount":     charge.TotalAmount().String(),
	}).Info("Authorization charged")
	return charge, nil
}

// Payout credits amount to the holder of typeID.
func (s *Service) Payout(ctx context.Context, amount decimal.Decimal, currency, typeID, returnURL string, opts Options) (*models.Payment, error) {
	if err := requirePositive("payout", amount); err != nil {
		return nil, err
	}
	if err := requireCapability("payout", typeID, models.CanPayout); err != nil {
		return nil, err
	}

	p := models.NewPayment(typeID)
	p.CustomerID = opts.CustomerID
	p.OrderID = opts.OrderID
	p.Currency = currency

	payout := models.NewPayout(amount, currency, returnURL)
	opts.applyTo(&payout.Transaction)
	payout.TypeID = typeID

	if err := s.resources.Create(ctx, payout); err != nil {
		return nil, err
	}

	paymentID := payout.PaymentID()
	p.SetPayout(payout)
	s.adopt(p, paymentID)
	return p, nil
}

// Ship reports the payment's goods as shipped. Invoice-based payment types
// need invoiceID; the gateway rejects the shipment otherwise.
func (s *Service) Ship(ctx context.Context, p *models.Payment, invoiceID, orderID string) (*models.Shipment, error) {
	if p.ID() == "" {
		return nil, apierr.Usage("ship", "payment has no id")
	}
	shipment := models.NewShipment(invoiceID, orderID)
	shipment.SetPaymentID(p.ID())
	if err := s.resources.Create(ctx, shipment); err != nil {
		return nil, err
	}
	p.AddShipment(shipment)
	return shipment, nil
}

// adopt stamps the payment id the gateway reported for a new transaction.
func (s *Service) adopt(p *models.Payment, paymentID string) {
	if paymentID != "" && paymentID != p.ID() {
		p.SetID(paymentID)
	}
}
