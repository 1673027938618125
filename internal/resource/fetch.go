package resource

import (
	"context"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/models"
)

// FetchPayment loads a payment and its transactions by id
func (s *Service) FetchPayment(ctx context.Context, id string) (*models.Payment, error) {
	if id == "" {
		return nil, apierr.Usage("fetch payment", "payment id is empty")
	}
	p := &models.Payment{}
	p.SetID(id)
	if err := s.Fetch(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FetchPaymentByOrderID loads a payment through the merchant's order id.
// The gateway resolves payments/<orderId> to the payment.
func (s *Service) FetchPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	if orderID == "" {
		return nil, apierr.Usage("fetch payment", "order id is empty")
	}
	p := &models.Payment{OrderID: orderID}
	p.SetID(orderID)
	if err := s.Fetch(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FetchAuthorization refreshes the payment's authorization.
func (s *Service) FetchAuthorization(ctx context.Context, payment *models.Payment) (*models.Authorization, error) {
	if err := s.GetResource(ctx, payment); err != nil {
		return nil, err
	}
	auth := payment.Authorization()
	if auth == nil {
		return nil, apierr.Usage("fetch authorization", "payment %s has no authorization", payment.ID())
	}
	if err := s.Fetch(ctx, auth); err != nil {
		return nil, err
	}
	return auth, nil
}

// FetchChargeByID refreshes one charge of the payment.
func (s *Service) FetchChargeByID(ctx context.Context, payment *models.Payment, chargeID string) (*models.Charge, error) {
	if err := s.GetResource(ctx, payment); err != nil {
		return nil, err
	}
	charge, ok := payment.GetChargeByID(chargeID)
	if !ok {
		return nil, apierr.Usage("fetch charge", "charge %q not found on payment %s", chargeID, payment.ID())
	}
	if err := s.Fetch(ctx, charge); err != nil {
		return nil, err
	}
	return charge, nil
}

// FetchCancellation refreshes a reversal or refund of the payment.
func (s *Service) FetchCancellation(ctx context.Context, payment *models.Payment, cancellationID string) (*models.Cancellation, error) {
	if err := s.GetResource(ctx, payment); err != nil {
		return nil, err
	}
	c, ok := payment.GetCancellation(cancellationID)
	if !ok {
		return nil, apierr.Usage("fetch cancellation", "cancellation %q not found on payment %s", cancellationID, payment.ID())
	}
	if err := s.Fetch(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// FetchKeypair loads the merchant keypair.
func (s *Service) FetchKeypair(ctx context.Context) (*models.Keypair, error) {
	k := &models.Keypair{}
	if err := s.Fetch(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// CreatePaymentType registers a payment method instance.
func (s *Service) CreatePaymentType(ctx context.Context, t *models.PaymentType) error {
	if !t.Kind.Valid() {
		return apierr.Usage("create payment type", "Invalid payment type!")
	}
	return s.Create(ctx, t)
}

// FetchPaymentType loads a payment type; the kind is taken from the id tag.
func (s *Service) FetchPaymentType(ctx context.Context, id string) (*models.PaymentType, error) {
	kind, err := models.KindFromID(id)
	if err != nil {
		return nil, err
	}
	t := models.NewPaymentType(kind, nil)
	t.SetID(id)
	if err := s.Fetch(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateCustomer creates c remotely.
func (s *Service) CreateCustomer(ctx context.Context, c *models.Customer) error {
	return s.Create(ctx, c)
}

// FetchCustomer loads a customer by gateway id or by the merchant's customerId.
func (s *Service) FetchCustomer(ctx context.Context, id string) (*models.Customer, error) {
	if id == "" {
		return nil, apierr.Usage("fetch customer", "customer id is empty")
	}
	c := &models.Customer{}
	if _, err := models.ResourceIDFromURL(id, models.TagCustomer); err != nil {
		c.CustomerID = id
	}
	c.SetID(id)
	if err := s.Fetch(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCustomer sends the local state of c.
func (s *Service) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	return s.Update(ctx, c)
}

// DeleteCustomer deletes c remotely.
func (s *Service) DeleteCustomer(ctx context.Context, c *models.Customer) error {
	return s.Delete(ctx, c)
}

// CreateOrUpdateCustomer creates c. When the customerId is taken the existing
// customer is fetched, merged under c (local values win) and updated.
func (s *Service) CreateOrUpdateCustomer(ctx context.Context, c *models.Customer) error {
	err := s.Create(ctx, c)
	if err == nil || !apierr.HasSymbol(err, apierr.CustomerIDAlreadyExists) {
		return err
	}
	if c.CustomerID == "" {
		return err
	}

	s.logger.WithField("customer_id", c.CustomerID).Info("Customer exists, merging and updating")

	fetched, fetchErr := s.FetchCustomer(ctx, c.CustomerID)
	if fetchErr != nil {
		return fetchErr
	}
	c.MergeFrom(fetched)
	return s.Update(ctx, c)
}

// CreateBasket creates b remotely.
func (s *Service) CreateBasket(ctx context.Context, b *models.Basket) error {
	return s.Create(ctx, b)
}

// FetchBasket loads a basket by id.
func (s *Service) FetchBasket(ctx context.Context, id string) (*models.Basket, error) {
	if id == "" {
		return nil, apierr.Usage("fetch basket", "basket id is empty")
	}
	b := &models.Basket{}
	b.SetID(id)
	if err := s.Fetch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBasket replaces the remote basket with the local state of b.
func (s *Service) UpdateBasket(ctx context.Context, b *models.Basket) error {
	return s.Update(ctx, b)
}
