// Package gateway wires configuration, transport and services into the
// Client applications use to talk to the payment gateway.
package gateway

import (
	"context"
	"fmt"

	"github.com/ashendes/paygate/internal/cancel"
	"github.com/ashendes/paygate/internal/config"
	"github.com/ashendes/paygate/internal/models"
	"github.com/ashendes/paygate/internal/patterns"
	"github.com/ashendes/paygate/internal/payment"
	"github.com/ashendes/paygate/internal/resource"
	"github.com/ashendes/paygate/internal/transport"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Client is the single entry point into the gateway API.
type Client struct {
	cfg     *config.Config
	adapter *transport.RestyAdapter

	Resources *resource.Service
	Payments  *payment.Service
	Cancels   *cancel.Service
}

// New builds a Client backed by the resty transport.
func New(cfg *config.Config, service string, logger log.FieldLogger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}
	adapter := transport.NewRestyAdapter(transport.AdapterConfig{
		PrivateKey:   cfg.PrivateKey,
		Locale:       cfg.Locale,
		Timeout:      cfg.Timeout,
		Circuit:      cfg.CircuitSettings(),
		BulkheadSize: cfg.Bulkhead.Size,
		BulkheadWait: cfg.Bulkhead.Wait,
		Service:      service,
	})
	c := NewWithTransport(cfg, adapter, logger)
	c.adapter = adapter
	return c, nil
}

// NewWithTransport builds a Client over any Transport.
func NewWithTransport(cfg *config.Config, t transport.Transport, logger log.FieldLogger) *Client {
	if logger == nil {
		logger = log.StandardLogger()
	}
	httpSvc := transport.NewHTTPService(t, cfg.CodeTable(), cfg.Debug, logger)
	resources := resource.NewService(httpSvc, cfg.APIURL, cfg.APIVersion, logger)
	return &Client{
		cfg:       cfg,
		Resources: resources,
		Payments:  payment.NewService(resources, logger),
		Cancels:   cancel.NewService(resources, logger),
	}
}

// Circuit returns the breaker guarding the gateway, nil for custom transports.
func (c *Client) Circuit() *patterns.CircuitBreakerWrapper {
	if c.adapter == nil {
		return nil
	}
	return c.adapter.Circuit()
}

func (c *Client) FetchPayment(ctx context.Context, id string) (*models.Payment, error) {
	return c.Resources.FetchPayment(ctx, id)
}

func (c *Client) FetchPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return c.Resources.FetchPaymentByOrderID(ctx, orderID)
}

func (c *Client) FetchKeypair(ctx context.Context) (*models.Keypair, error) {
	return c.Resources.FetchKeypair(ctx)
}

func (c *Client) CreatePaymentType(ctx context.Context, t *models.PaymentType) error {
	return c.Resources.CreatePaymentType(ctx, t)
}

func (c *Client) CreateOrUpdateCustomer(ctx context.Context, cst *models.Customer) error {
	return c.Resources.CreateOrUpdateCustomer(ctx, cst)
}

func (c *Client) CreateBasket(ctx context.Context, b *models.Basket) error {
	return c.Resources.CreateBasket(ctx, b)
}

func (c *Client) FetchBasket(ctx context.Context, id string) (*models.Basket, error) {
	return c.Resources.FetchBasket(ctx, id)
}

func (c *Client) Authorize(ctx context.Context, amount decimal.Decimal, currency, typeID, returnURL string, opts payment.Options) (*models.Payment, error) {
	return c.Payments.Authorize(ctx, amount, currency, typeID, returnURL, opts)
}

func (c *Client) Charge(ctx context.Context, amount decimal.Decimal, currency, typeID, returnURL string, opts payment.Options) (*models.Payment, error) {
	return c.Payments.Charge(ctx, amount, currency, typeID, returnURL, opts)
}

func (c *Client) ChargePayment(ctx context.Context, p *models.Payment, amount decimal.NullDecimal) (*models.Charge, error) {
	return c.Payments.ChargePayment(ctx, p, amount, "")
}

func (c *Client) Ship(ctx context.Context, p *models.Payment, invoiceID, orderID string) (*models.Shipment, error) {
	return c.Payments.Ship(ctx, p, invoiceID, orderID)
}

// CancelPayment cancels amount of the payment, all of it when amount is null.
// On error the returned slice holds the cancellations created before it.
func (c *Client) CancelPayment(ctx context.Context, p *models.Payment, amount decimal.NullDecimal, opts cancel.Options) ([]*models.Cancellation, error) {
	return c.Cancels.CancelPayment(ctx, p, amount, opts)
}

func (c *Client) CancelPaymentByID(ctx context.Context, paymentID string, amount decimal.NullDecimal, opts cancel.Options) ([]*models.Cancellation, error) {
	return c.Cancels.CancelPaymentByID(ctx, paymentID, amount, opts)
}
