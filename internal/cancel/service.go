// Package cancel distributes cancellations over a payment's authorization
// and charges.
package cancel

import (
	"context"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/metrics"
	"github.com/ashendes/paygate/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Allocation phases, also used as metric and log labels
const (
	PhaseAuthorization = "authorization"
	PhaseCharges       = "charges"
)

// Remote codes meaning the target already is where a cancel would put it.
var (
	authorizationTolerated = []apierr.Symbol{
		apierr.AlreadyCancelled,
		apierr.AlreadyCharged,
		apierr.TransactionCancelNotAllowed,
	}
	chargeTolerated = []apierr.Symbol{
		apierr.AlreadyCancelled,
		apierr.AlreadyCharged,
		apierr.AlreadyChargedBack,
	}
)

// Resources is what the allocator needs from the resource layer.
type Resources interface {
	Create(ctx context.Context, r models.Resource) error
	FetchPayment(ctx context.Context, id string) (*models.Payment, error)
}

// Options carries the optional metadata of a refund.
type Options struct {
	ReasonCode       string
	PaymentReference string
	AmountNet        decimal.NullDecimal
	AmountVat        decimal.NullDecimal
}

// Service issues cancellations. It holds no per-payment state.
type Service struct {
	resources Resources
	logger    log.FieldLogger
}

// NewService builds a cancel service. A nil logger uses the logrus standard logger.
func NewService(resources Resources, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{resources: resources, logger: logger}
}

func checkAmount(op string, amount decimal.NullDecimal) error {
	if amount.Valid && amount.Decimal.IsNegative() {
		return apierr.Usage(op, "amount must not be negative, got %s", amount.Decimal)
	}
	return nil
}

// CancelAuthorization reverses amount of auth, or everything it still holds
// when amount is null. The amount must fit the local remaining amount.
func (s *Service) CancelAuthorization(ctx context.Context, auth *models.Authorization, amount decimal.NullDecimal) (*models.Cancellation, error) {
	if err := checkAmount("cancel authorization", amount); err != nil {
		return nil, err
	}
	if amount.Valid {
		if err := auth.Amount().Check(models.AmountCancelled, amount.Decimal); err != nil {
			return nil, err
		}
	}
	return s.reverse(ctx, auth, amount)
}

// CancelAuthorizationByPayment loads the payment and reverses its authorization.
func (s *Service) CancelAuthorizationByPayment(ctx context.Context, paymentID string, amount decimal.NullDecimal) (*models.Cancellation, error) {
	payment, err := s.resources.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.CancelPaymentAuthorization(ctx, payment, amount)
}

// CancelPaymentAuthorization reverses min(amount, remaining) of the payment's
// authorization. A resulting zero amount returns nil without calling the gateway.
func (s *Service) CancelPaymentAuthorization(ctx context.Context, payment *models.Payment, amount decimal.NullDecimal) (*models.Cancellation, error) {
	if err := checkAmount("cancel authorization", amount); err != nil {
		return nil, err
	}
	auth := payment.Authorization()
	if auth == nil {
		return nil, apierr.Usage("cancel authorization", "payment %s has no authorization", payment.ID())
	}

	request := decimal.NullDecimal{}
	if amount.Valid {
		request = models.NullAmount(decimal.Min(amount.Decimal, auth.Remaining()))
		if !request.Decimal.IsPositive() {
			s.logger.WithFields(log.Fields{
				"payment_id": payment.ID(),
				"target_id":  auth.ID(),
			}).Debug("Authorization has nothing left to cancel")
			return nil, nil
		}
	}
	return s.reverse(ctx, auth, request)
}

// CancelCharge refunds amount of charge, or its whole remaining amount when
// amount is null. reasonCode defaults to CANCEL.
func (s *Service) CancelCharge(ctx context.Context, charge *models.Charge, amount decimal.NullDecimal, opts Options) (*models.Cancellation, error) {
	if err := checkAmount("cancel charge", amount); err != nil {
		return nil, err
	}
	if amount.Valid {
		if err := charge.Amount().Check(models.AmountCancelled, amount.Decimal); err != nil {
			return nil, err
		}
	}
	return s.refund(ctx, charge, amount, opts)
}

// CancelChargeByID loads the payment and refunds one of its charges.
func (s *Service) CancelChargeByID(ctx context.Context, paymentID, chargeID string, amount decimal.NullDecimal, opts Options) (*models.Cancellation, error) {
	payment, err := s.resources.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	charge, ok := payment.GetChargeByID(chargeID)
	if !ok {
		return nil, apierr.Usage("cancel charge", "charge %q not found on payment %s", chargeID, paymentID)
	}
	return s.CancelCharge(ctx, charge, amount, opts)
}

// CancelPaymentByID loads the payment and runs CancelPayment on it.
func (s *Service) CancelPaymentByID(ctx context.Context, paymentID string, amount decimal.NullDecimal, opts Options) ([]*models.Cancellation, error) {
	payment, err := s.resources.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.CancelPayment(ctx, payment, amount, opts)
}

// CancelPayment cancels amount of the payment, or all of it when amount is
// null: the authorization first, then each charge in creation order.
//
// Tolerated gateway rejections count as nothing cancelled for that target.
// Any other error stops the allocation; the cancellations created before it
// are returned together with the error.
func (s *Service) CancelPayment(ctx context.Context, payment *models.Payment, amount decimal.NullDecimal, opts Options) ([]*models.Cancellation, error) {
	if err := checkAmount("cancel payment", amount); err != nil {
		return nil, err
	}

	whole := !amount.Valid
	left := amount.Decimal
	var out []*models.Cancellation

	if payment.Authorization() != nil && (whole || left.IsPositive()) {
		c, err := s.CancelPaymentAuthorization(ctx, payment, amount)
		switch {
		case err != nil && s.tolerated(err, PhaseAuthorization, payment, payment.Authorization().ID(), authorizationTolerated):
			// nothing reversed; charges still get their turn
		case err != nil:
			return out, err
		case c != nil:
			out = append(out, c)
			if !whole {
				left = left.Sub(c.Amount().Decimal)
			}
		}
	}

	if !whole && !left.IsPositive() {
		return out, nil
	}

	refunds, err := s.cancelCharges(ctx, payment, whole, left, opts)
	out = append(out, refunds...)
	return out, err
}

// CancelPaymentCharges runs only the charge phase of CancelPayment.
func (s *Service) CancelPaymentCharges(ctx context.Context, payment *models.Payment, amount decimal.NullDecimal, opts Options) ([]*models.Cancellation, error) {
	if err := checkAmount("cancel charges", amount); err != nil {
		return nil, err
	}
	if amount.Valid && !amount.Decimal.IsPositive() {
		return nil, nil
	}
	return s.cancelCharges(ctx, payment, !amount.Valid, amount.Decimal, opts)
}

func (s *Service) cancelCharges(ctx context.Context, payment *models.Payment, whole bool, left decimal.Decimal, opts Options) ([]*models.Cancellation, error) {
	var out []*models.Cancellation
	for _, charge := range payment.Charges() {
		request := decimal.NullDecimal{}
		if !whole && left.LessThanOrEqual(charge.TotalAmount()) {
			request = models.NullAmount(left)
		}

		c, err := s.refund(ctx, charge, request, opts)
		if err != nil {
			if s.tolerated(err, PhaseCharges, payment, charge.ID(), chargeTolerated) {
				continue
			}
			return out, err
		}

		out = append(out, c)
		if whole {
			continue
		}
		left = left.Sub(c.Amount().Decimal)
		if !left.IsPositive() {
			break
		}
	}
	return out, nil
}

func (s *Service) tolerated(err error, phase string, payment *models.Payment, targetID string, codes []apierr.Symbol) bool {
	if !apierr.HasSymbol(err, codes...) {
		return false
	}
	apiErr, _ := apierr.AsAPIError(err)
	metrics.ToleratedErrorsTotal.WithLabelValues(phase, string(apiErr.Symbol)).Inc()
	s.logger.WithFields(log.Fields{
		"phase":      phase,
		"code":       apiErr.Code,
		"symbol":     apiErr.Symbol,
		"payment_id": payment.ID(),
		"target_id":  targetID,
	}).Info("Cancellation not needed, nothing to do")
	return true
}

// reverse creates one cancellation on auth and books it.
func (s *Service) reverse(ctx context.Context, auth *models.Authorization, amount decimal.NullDecimal) (*models.Cancellation, error) {
	remaining := auth.Remaining()
	c := models.CancellationFor(auth, amount)
	if err := s.resources.Create(ctx, c); err != nil {
		metrics.CancellationsTotal.WithLabelValues(models.TargetAuthorization.String(), outcome(err)).Inc()
		return nil, err
	}
	c.ResolveAmount(remaining)
	auth.RecordCancellation(c)
	observe(models.TargetAuthorization, c)
	return c, nil
}

// refund creates one cancellation on charge and books it.
func (s *Service) refund(ctx context.Context, charge *models.Charge, amount decimal.NullDecimal, opts Options) (*models.Cancellation, error) {
	remaining := charge.Remaining()
	c := models.RefundFor(charge, amount)
	c.ReasonCode = opts.ReasonCode
	if c.ReasonCode == "" {
		c.ReasonCode = models.ReasonCodeCancel
	}
	c.PaymentReference = opts.PaymentReference
	c.AmountNet = opts.AmountNet
	c.AmountVat = opts.AmountVat

	if err := s.resources.Create(ctx, c); err != nil {
		metrics.CancellationsTotal.WithLabelValues(models.TargetCharge.String(), outcome(err)).Inc()
		return nil, err
	}
	c.ResolveAmount(remaining)
	charge.RecordCancellation(c)
	observe(models.TargetCharge, c)
	return c, nil
}

func observe(target models.CancelTarget, c *models.Cancellation) {
	metrics.CancellationsTotal.WithLabelValues(target.String(), "success").Inc()
	metrics.CancelledAmount.Observe(c.Amount().Decimal.InexactFloat64())
}

func outcome(err error) string {
	if _, ok := apierr.AsAPIError(err); ok {
		return "rejected"
	}
	return "failed"
}
