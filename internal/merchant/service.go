// Package merchant is a shop backend that takes orders and settles them
// through the payment gateway client.
package merchant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/cancel"
	"github.com/ashendes/paygate/internal/metrics"
	"github.com/ashendes/paygate/internal/models"
	"github.com/ashendes/paygate/internal/patterns"
	"github.com/ashendes/paygate/internal/payment"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ServiceName labels the merchant's metrics
const ServiceName = "merchant-service"

// Gateway is the part of the gateway client the shop uses
type Gateway interface {
	CreatePaymentType(ctx context.Context, t *models.PaymentType) error
	Authorize(ctx context.Context, amount decimal.Decimal, currency, typeID, returnURL string, opts payment.Options) (*models.Payment, error)
	FetchPayment(ctx context.Context, id string) (*models.Payment, error)
	ChargePayment(ctx context.Context, p *models.Payment, amount decimal.NullDecimal) (*models.Charge, error)
	Ship(ctx context.Context, p *models.Payment, invoiceID, orderID string) (*models.Shipment, error)
	CancelPayment(ctx context.Context, p *models.Payment, amount decimal.NullDecimal, opts cancel.Options) ([]*models.Cancellation, error)
	Circuit() *patterns.CircuitBreakerWrapper
}

// Service manages orders
type Service struct {
	orders   map[string]*Order
	mutex    sync.RWMutex
	gateway  Gateway
	currency string
	timeout  time.Duration
	logger   log.FieldLogger
}

// NewService builds a shop over gw. Orders without a currency use currency;
// every gateway round trip is bounded by timeout.
func NewService(gw Gateway, currency string, timeout time.Duration, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if currency == "" {
		currency = "EUR"
	}
	return &Service{
		orders:   make(map[string]*Order),
		gateway:  gw,
		currency: currency,
		timeout:  timeout,
		logger:   logger.WithField("service", ServiceName),
	}
}

// Router returns the shop's gin engine
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.PrometheusMiddleware(ServiceName))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.POST("/order/checkout", s.checkout)
	router.GET("/order/circuit-status", s.circuitStatus)
	router.GET("/order/:orderId", s.getOrder)
	router.POST("/order/:orderId/charge", s.charge)
	router.POST("/order/:orderId/cancel", s.cancelOrder)
	router.POST("/order/:orderId/ship", s.ship)
	router.GET("/order/:orderId/payment", s.getPayment)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// statusFor maps gateway client errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case apierr.IsUsage(err):
		return http.StatusBadRequest
	case patterns.IsRejection(err), errors.Is(err, patterns.ErrBulkheadFull):
		return http.StatusServiceUnavailable
	case apierr.IsTransport(err):
		return http.StatusBadGateway
	}
	if apiErr, ok := apierr.AsAPIError(err); ok && apiErr.StatusCode >= http.StatusInternalServerError {
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

func (s *Service) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return patterns.WithTimeout(c.Request.Context(), s.timeout)
}

func (s *Service) checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.MerchantOrdersTotal.WithLabelValues("validation_failed").Inc()
		c.JSON(http.StatusBadRequest, CheckoutResponse{
			Status:  OrderStatusFailed,
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	// FAIL FAST: validate before anything reaches the gateway
	card, err := validateCheckout(&req)
	if err != nil {
		metrics.MerchantOrdersTotal.WithLabelValues("validation_failed").Inc()
		c.JSON(http.StatusBadRequest, CheckoutResponse{
			Status:  OrderStatusFailed,
			Message: "Validation failed: " + err.Error(),
		})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}
	order := &Order{
		ID:        uuid.New().String(),
		Items:     req.Items,
		Currency:  currency,
		Status:    OrderStatusPending,
		Timestamp: time.Now(),
	}
	order.TotalAmount = orderTotal(req.Items)

	s.mutex.Lock()
	s.orders[order.ID] = order
	s.mutex.Unlock()

	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"items":    len(order.Items),
		"total":    order.TotalAmount.String(),
	})
	logger.Info("Processing new order")

	ctx, cancelCtx := s.requestContext(c)
	defer cancelCtx()

	paymentID, err := s.pay(ctx, order, card, req.ReturnURL)
	if err != nil {
		s.setStatus(order, OrderStatusFailed, "")
		metrics.MerchantOrdersTotal.WithLabelValues("failed").Inc()
		logger.WithError(err).Error("Payment authorization failed")
		c.JSON(statusFor(err), CheckoutResponse{
			OrderID: order.ID,
			Status:  OrderStatusFailed,
			Message: fmt.Sprintf("Payment failed: %v", err),
			Total:   order.TotalAmount,
		})
		return
	}

	s.setStatus(order, OrderStatusAuthorized, paymentID)
	metrics.MerchantOrdersTotal.WithLabelValues("authorized").Inc()
	logger.WithField("payment_id", paymentID).Info("Order authorized")

	c.JSON(http.StatusOK, CheckoutResponse{
		OrderID:   order.ID,
		PaymentID: paymentID,
		Status:    OrderStatusAuthorized,
		Message:   "Order authorized successfully",
		Total:     order.TotalAmount,
	})
}

// basketFor lists the order lines for the gateway.
func basketFor(order *Order) *models.Basket {
	b := models.NewBasket(order.ID, order.Currency)
	for _, item := range order.Items {
		b.AddItem(models.BasketItem{
			BasketItemReferenceID: item.ItemID,
			Title:                 item.ItemID,
			Quantity:              item.Quantity,
			AmountPerUnit:         item.Price,
		})
	}
	return b
}

func (s *Service) pay(ctx context.Context, order *Order, card *models.PaymentType, returnURL string) (string, error) {
	if err := s.gateway.CreatePaymentType(ctx, card); err != nil {
		return "", fmt.Errorf("create card: %w", err)
	}
	p, err := s.gateway.Authorize(ctx, order.TotalAmount, order.Currency, card.ID(), returnURL, payment.Options{
		OrderID: order.ID,
		Basket:  basketFor(order),
	})
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	s.mutex.Lock()
	order.TypeID = card.ID()
	s.mutex.Unlock()
	return p.ID(), nil
}

func (s *Service) setStatus(order *Order, status, paymentID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	order.Status = status
	if paymentID != "" {
		order.PaymentID = paymentID
	}
}

func (s *Service) lookup(c *gin.Context) (*Order, bool) {
	orderID := c.Param("orderId")

	s.mutex.RLock()
	order, exists := s.orders[orderID]
	s.mutex.RUnlock()

	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "Order not found",
			"order_id": orderID,
		})
		return nil, false
	}
	if order.PaymentID == "" {
		c.JSON(http.StatusConflict, gin.H{
			"error":    "Order has no payment",
			"order_id": orderID,
		})
		return nil, false
	}
	return order, true
}

// snapshot copies an order under the lock for rendering
func (s *Service) snapshot(order *Order) Order {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return *order
}

func (s *Service) getOrder(c *gin.Context) {
	orderID := c.Param("orderId")

	s.mutex.RLock()
	order, exists := s.orders[orderID]
	s.mutex.RUnlock()

	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "Order not found",
			"order_id": orderID,
		})
		return
	}

	c.JSON(http.StatusOK, s.snapshot(order))
}

func (s *Service) bindAmount(c *gin.Context) (AmountRequest, bool) {
	var req AmountRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return req, false
	}
	return req, true
}

func (s *Service) fail(c *gin.Context, order *Order, op string, err error) {
	s.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"payment_id": order.PaymentID,
	}).WithError(err).Errorf("%s failed", op)
	c.JSON(statusFor(err), gin.H{
		"error":    fmt.Sprintf("%s failed: %v", op, err),
		"order_id": order.ID,
	})
}

func (s *Service) charge(c *gin.Context) {
	order, ok := s.lookup(c)
	if !ok {
		return
	}
	req, ok := s.bindAmount(c)
	if !ok {
		return
	}

	ctx, cancelCtx := s.requestContext(c)
	defer cancelCtx()

	p, err := s.gateway.FetchPayment(ctx, order.PaymentID)
	if err != nil {
		s.fail(c, order, "Charge", err)
		return
	}
	charge, err := s.gateway.ChargePayment(ctx, p, req.Amount)
	if err != nil {
		s.fail(c, order, "Charge", err)
		return
	}

	s.setStatus(order, OrderStatusCharged, "")
	metrics.MerchantOrdersTotal.WithLabelValues("charged").Inc()
	s.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"charge_id": charge.ID(),
		"amount":    charge.TotalAmount().String(),
	}).Info("Order charged")

	c.JSON(http.StatusOK, gin.H{
		"order_id":  order.ID,
		"charge_id": charge.ID(),
		"amount":    charge.TotalAmount(),
		"status":    OrderStatusCharged,
	})
}

// cancelOrder cancels the requested amount, or everything left. When the gateway
// fails midway the response still lists what was booked before the failure.
func (s *Service) cancelOrder(c *gin.Context) {
	order, ok := s.lookup(c)
	if !ok {
		return
	}
	req, ok := s.bindAmount(c)
	if !ok {
		return
	}

	ctx, cancelCtx := s.requestContext(c)
	defer cancelCtx()

	p, err := s.gateway.FetchPayment(ctx, order.PaymentID)
	if err != nil {
		s.fail(c, order, "Cancel", err)
		return
	}
	cancellations, err := s.gateway.CancelPayment(ctx, p, req.Amount, cancel.Options{ReasonCode: req.ReasonCode})

	resp := CancelResponse{
		OrderID:       order.ID,
		PaymentID:     order.PaymentID,
		Cancellations: viewCancellations(cancellations),
		Cancelled:     sumCancelled(cancellations),
	}

	if err != nil {
		s.logger.WithFields(log.Fields{
			"order_id":  order.ID,
			"cancelled": resp.Cancelled.String(),
			"booked":    len(cancellations),
		}).WithError(err).Error("Cancel aborted")
		resp.Status = s.snapshot(order).Status
		if len(cancellations) > 0 {
			resp.Status = OrderStatusPartiallyCancelled
			s.setStatus(order, resp.Status, "")
		}
		resp.Message = fmt.Sprintf("Cancel failed: %v", err)
		metrics.MerchantOrdersTotal.WithLabelValues("cancel_failed").Inc()
		c.JSON(statusFor(err), resp)
		return
	}

	resp.Status = OrderStatusCancelled
	if req.Amount.Valid {
		resp.Status = OrderStatusPartiallyCancelled
	}
	s.setStatus(order, resp.Status, "")
	metrics.MerchantOrdersTotal.WithLabelValues(resp.Status).Inc()
	s.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"cancelled": resp.Cancelled.String(),
	}).Info("Order cancelled")

	c.JSON(http.StatusOK, resp)
}

func (s *Service) ship(c *gin.Context) {
	order, ok := s.lookup(c)
	if !ok {
		return
	}
	req, ok := s.bindAmount(c)
	if !ok {
		return
	}

	ctx, cancelCtx := s.requestContext(c)
	defer cancelCtx()

	p, err := s.gateway.FetchPayment(ctx, order.PaymentID)
	if err != nil {
		s.fail(c, order, "Ship", err)
		return
	}
	shipment, err := s.gateway.Ship(ctx, p, req.InvoiceID, order.ID)
	if err != nil {
		s.fail(c, order, "Ship", err)
		return
	}

	s.setStatus(order, OrderStatusShipped, "")
	metrics.MerchantOrdersTotal.WithLabelValues("shipped").Inc()
	c.JSON(http.StatusOK, gin.H{
		"order_id":    order.ID,
		"shipment_id": shipment.ID(),
		"status":      OrderStatusShipped,
	})
}

func (s *Service) getPayment(c *gin.Context) {
	order, ok := s.lookup(c)
	if !ok {
		return
	}

	ctx, cancelCtx := s.requestContext(c)
	defer cancelCtx()

	p, err := s.gateway.FetchPayment(ctx, order.PaymentID)
	if err != nil {
		s.fail(c, order, "Fetch payment", err)
		return
	}
	c.JSON(http.StatusOK, viewPayment(p))
}

// circuitStatus returns the state of the gateway circuit breaker
func (s *Service) circuitStatus(c *gin.Context) {
	circuit := s.gateway.Circuit()
	if circuit == nil {
		c.JSON(http.StatusOK, gin.H{"gateway_circuit": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"gateway_circuit": gin.H{
			"name":  circuit.GetName(),
			"state": circuit.GetState(),
			"value": circuit.GetStateValue(),
		},
	})
}

// validateCheckout performs fail-fast validation and builds the card
func validateCheckout(req *CheckoutRequest) (*models.PaymentType, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}
	for i, item := range req.Items {
		if item.ItemID == "" {
			return nil, fmt.Errorf("item %d: item_id is required", i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: quantity must be greater than 0", i)
		}
		if !item.Price.IsPositive() {
			return nil, fmt.Errorf("item %d: price must be greater than 0", i)
		}
	}
	if req.Card.Number == "" {
		return nil, fmt.Errorf("card number is required")
	}
	return models.NewCard(req.Card.Number, req.Card.ExpiryDate)
}

func orderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func viewCancellations(list []*models.Cancellation) []CancellationView {
	views := make([]CancellationView, 0, len(list))
	for _, c := range list {
		target, targetID := c.Target()
		views = append(views, CancellationView{
			ID:     c.ID(),
			Target: target.String(),
			On:     targetID,
			Amount: c.Amount(),
		})
	}
	return views
}

func sumCancelled(list []*models.Cancellation) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range list {
		if amount := c.Amount(); amount.Valid {
			sum = sum.Add(amount.Decimal)
		}
	}
	return sum
}

func viewPayment(p *models.Payment) PaymentView {
	view := PaymentView{
		ID:            p.ID(),
		State:         p.State().String(),
		Currency:      p.Currency,
		Remaining:     p.AuthorizedRemaining(),
		Refundable:    p.ChargedRemaining(),
		Charged:       decimal.Zero,
		Authorized:    decimal.Zero,
		Charges:       []string{},
		Cancellations: viewCancellations(p.Cancellations()),
	}
	if auth := p.Authorization(); auth != nil {
		view.Authorized = auth.Amount().Total()
	}
	for _, ch := range p.Charges() {
		view.Charged = view.Charged.Add(ch.TotalAmount())
		view.Charges = append(view.Charges, ch.ID())
	}
	return view
}
