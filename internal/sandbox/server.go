package sandbox

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/metrics"
	"github.com/ashendes/paygate/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ServiceName labels the sandbox's metrics
const ServiceName = "sandbox-gateway"

// Options configure a sandbox Server
type Options struct {
	// PrivateKey, when set, is the only key accepted. Otherwise any
	// non-empty private key is.
	PrivateKey string
	PublicKey  string
	Codes      *apierr.CodeTable
	Logger     log.FieldLogger
}

// Server exposes a Ledger over the gateway's REST API
type Server struct {
	ledger *Ledger
	chaos  *Chaos
	codes  *apierr.CodeTable
	opts   Options
	logger log.FieldLogger
}

// NewServer builds a server over an empty ledger
func NewServer(opts Options) *Server {
	if opts.Codes == nil {
		opts.Codes = apierr.NewCodeTable(nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.PublicKey == "" {
		opts.PublicKey = "s-pub-sandbox"
	}
	return &Server{
		ledger: NewLedger(),
		chaos:  NewChaos(ServiceName),
		codes:  opts.Codes,
		opts:   opts,
		logger: opts.Logger.WithField("service", ServiceName),
	}
}

func (s *Server) Ledger() *Ledger { return s.ledger }
func (s *Server) Chaos() *Chaos   { return s.chaos }

// Router returns a gin engine serving the gateway API under /v1 together with
// health, chaos and metrics endpoints.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.PrometheusMiddleware(ServiceName))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/gateway/status", s.status)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/chaos/gateway/enable", s.chaos.enable)
	router.POST("/chaos/gateway/disable", s.chaos.disable)
	router.POST("/chaos/gateway/slow", s.chaos.enableSlow)
	router.POST("/chaos/gateway/slow/disable", s.chaos.disableSlow)
	router.POST("/admin/payments/:paymentId/charges/:chargeId/chargeback", s.chargeBack)

	v1 := router.Group("/v1", s.authenticate, s.chaos.Middleware())

	v1.GET("/keypair", s.keypair)
	v1.POST("/types/:kind", s.createType)
	v1.GET("/types/:typeId", s.getType)

	v1.POST("/customers", s.createCustomer)
	v1.GET("/customers/:customerId", s.getCustomer)
	v1.PUT("/customers/:customerId", s.updateCustomer)
	v1.DELETE("/customers/:customerId", s.deleteCustomer)

	v1.POST("/baskets", s.createBasket)
	v1.GET("/baskets/:basketId", s.getBasket)
	v1.PUT("/baskets/:basketId", s.updateBasket)

	v1.POST("/payments/authorize", s.authorize)
	v1.POST("/payments/charges", s.charge)
	v1.POST("/payments/payouts", s.payout)

	v1.GET("/payments/:paymentId", s.getPayment)
	v1.POST("/payments/:paymentId/authorize", s.authorize)
	v1.GET("/payments/:paymentId/authorize", s.getAuthorization)
	v1.GET("/payments/:paymentId/authorize/:authId", s.getAuthorization)
	v1.POST("/payments/:paymentId/authorize/:authId/cancels", s.cancelAuthorization)
	v1.GET("/payments/:paymentId/authorize/:authId/cancels/:cancelId", s.getTransaction(models.TxCancelAuthorize, "cancelId"))
	v1.POST("/payments/:paymentId/charges", s.charge)
	v1.GET("/payments/:paymentId/charges/:chargeId", s.getTransaction(models.TxCharge, "chargeId"))
	v1.POST("/payments/:paymentId/charges/:chargeId/cancels", s.cancelCharge)
	v1.GET("/payments/:paymentId/charges/:chargeId/cancels/:cancelId", s.getTransaction(models.TxCancelCharge, "cancelId"))
	v1.POST("/payments/:paymentId/shipments", s.ship)
	v1.GET("/payments/:paymentId/shipments/:shipmentId", s.getTransaction(models.TxShipment, "shipmentId"))
	v1.GET("/payments/:paymentId/payouts/:payoutId", s.getTransaction(models.TxPayout, "payoutId"))

	return router
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":         ServiceName,
		"status":          "healthy",
		"chaos_enabled":   s.chaos.Enabled(),
		"chaos_slow_mode": s.chaos.SlowMode(),
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

func (s *Server) authenticate(c *gin.Context) {
	key, _, ok := c.Request.BasicAuth()
	if !ok || key == "" || (s.opts.PrivateKey != "" && key != s.opts.PrivateKey) {
		s.fail(c, &Rejection{Status: http.StatusUnauthorized, Code: CodeInvalidKey, Message: "Invalid private key"})
		c.Abort()
		return
	}
	c.Next()
}

func errorBody(code, message string) gin.H {
	return gin.H{"errors": []gin.H{{
		"code":            code,
		"merchantMessage": message,
		"customerMessage": message,
	}}}
}

func (s *Server) fail(c *gin.Context, rej *Rejection) {
	code := rej.Code
	if rej.Symbol != "" {
		code = s.codes.Code(rej.Symbol)
	}
	s.logger.WithFields(log.Fields{
		"path":   c.Request.URL.Path,
		"status": rej.Status,
		"code":   code,
	}).Info(rej.Message)
	c.JSON(rej.Status, errorBody(code, rej.Message))
}

func (s *Server) bind(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, &Rejection{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: "Invalid request: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) keypair(c *gin.Context) {
	kinds := models.Kinds()
	available := make([]string, 0, len(kinds))
	for _, k := range kinds {
		available = append(available, string(k))
	}
	c.JSON(http.StatusOK, gin.H{
		"publicKey":             s.opts.PublicKey,
		"availablePaymentTypes": available,
	})
}

func (s *Server) createType(c *gin.Context) {
	fields := make(map[string]interface{})
	if !s.bind(c, &fields) {
		return
	}
	pt, rej := s.ledger.CreateType(models.PaymentKind(c.Param("kind")), fields)
	if rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, typeBody(pt))
}

func (s *Server) getType(c *gin.Context) {
	pt, rej := s.ledger.Type(c.Param("typeId"))
	if rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, typeBody(pt))
}

func typeBody(pt *PaymentType) gin.H {
	body := gin.H{}
	for k, v := range pt.Fields {
		body[k] = v
	}
	body["id"] = pt.ID
	return body
}

func (s *Server) createCustomer(c *gin.Context) {
	fields := make(map[string]interface{})
	if !s.bind(c, &fields) {
		return
	}
	delete(fields, "id")
	customer, rej := s.ledger.CreateCustomer(fields)
	if rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (s *Server) getCustomer(c *gin.Context) {
	customer, rej := s.ledger.Customer(c.Param("customerId"))
	if rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (s *Server) updateCustomer(c *gin.Context) {
	fields := make(map[string]interface{})
	if !s.bind(c, &fields) {
		return
	}
	customer, rej := s.ledger.UpdateCustomer(c.Param("customerId"), fields)
	if rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (s *Server) deleteCustomer(c *gin.Context) {
	id, rej := s.ledger.DeleteCustomer(c.Param("customerId"))
	if rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

type bookFunc func(paymentID string, req TxnRequest) (string, *txn, *Rejection)

func (s *Server) book(c *gin.Context, kind string, fn bookFunc) {
	var req TxnRequest
	if !s.bind(c, &req) {
		return
	}
	paymentID, t, rej := fn(c.Param("paymentId"), req)
	if rej != nil {
		metrics.SandboxTransactionsTotal.WithLabelValues(kind, "error").Inc()
		s.fail(c, rej)
		return
	}
	metrics.SandboxTransactionsTotal.WithLabelValues(kind, "success").Inc()
	s.logger.WithFields(log.Fields{
		"payment_id": paymentID,
		"txn_id":     t.id,
		"type":       kind,
		"amount":     t.amount.String(),
	}).Info("Transaction booked")
	c.JSON(http.StatusOK, s.renderTxn(paymentID, t))
}

func (s *Server) authorize(c *gin.Context) {
	s.book(c, models.TxAuthorize, s.ledger.Authorize)
}

func (s *Server) charge(c *gin.Context) {
	s.book(c, models.TxCharge, s.ledger.Charge)
}

func (s *Server) payout(c *gin.Context) {
	s.book(c, models.TxPayout, func(_ string, req TxnRequest) (string, *txn, *Rejection) {
		return s.ledger.Payout(req)
	})
}

func (s *Server) cancelAuthorization(c *gin.Context) {
	s.book(c, models.TxCancelAuthorize, func(paymentID string, req TxnRequest) (string, *txn, *Rejection) {
		t, rej := s.ledger.CancelAuthorization(paymentID, c.Param("authId"), req)
		return paymentID, t, rej
	})
}

func (s *Server) cancelCharge(c *gin.Context) {
	s.book(c, models.TxCancelCharge, func(paymentID string, req TxnRequest) (string, *txn, *Rejection) {
		t, rej := s.ledger.CancelCharge(paymentID, c.Param("chargeId"), req)
		return paymentID, t, rej
	})
}

func (s *Server) ship(c *gin.Context) {
	s.book(c, models.TxShipment, func(paymentID string, req TxnRequest) (string, *txn, *Rejection) {
		t, rej := s.ledger.Ship(paymentID, req)
		return paymentID, t, rej
	})
}

func (s *Server) chargeBack(c *gin.Context) {
	if rej := s.ledger.ChargeBack(c.Param("paymentId"), c.Param("chargeId")); rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Charge marked as charged back"})
}

func (s *Server) getPayment(c *gin.Context) {
	body, rej := s.ledger.paymentBody(c.Param("paymentId"), s.baseURL(c))
	if rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getAuthorization(c *gin.Context) {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()
	p, rej := s.ledger.payment(c.Param("paymentId"))
	if rej != nil {
		s.fail(c, rej)
		return
	}
	if p.auth == nil || (c.Param("authId") != "" && c.Param("authId") != p.auth.id) {
		s.fail(c, &Rejection{Status: http.StatusNotFound, Code: CodeNotFound, Message: "authorization not found"})
		return
	}
	c.JSON(http.StatusOK, s.renderTxn(p.id, p.auth))
}

func (s *Server) getTransaction(kind, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.ledger.mu.RLock()
		defer s.ledger.mu.RUnlock()
		p, rej := s.ledger.payment(c.Param("paymentId"))
		if rej != nil {
			s.fail(c, rej)
			return
		}
		t := p.find(kind, c.Param(param))
		if t == nil {
			s.fail(c, &Rejection{Status: http.StatusNotFound, Code: CodeNotFound, Message: fmt.Sprintf("%s not found", kind)})
			return
		}
		c.JSON(http.StatusOK, s.renderTxn(p.id, t))
	}
}

func (s *Server) baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/v1", scheme, c.Request.Host)
}

func fixed(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(4))
}

type processingBody struct {
	UniqueID string `json:"uniqueId"`
	ShortID  string `json:"shortId"`
}

type resourcesBody struct {
	PaymentID  string `json:"paymentId,omitempty"`
	TypeID     string `json:"typeId,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
	BasketID   string `json:"basketId,omitempty"`
}

type txnBody struct {
	ID               string         `json:"id"`
	Amount           *json.Number   `json:"amount,omitempty"`
	Currency         string         `json:"currency,omitempty"`
	ReturnURL        string         `json:"returnUrl,omitempty"`
	OrderID          string         `json:"orderId,omitempty"`
	InvoiceID        string         `json:"invoiceId,omitempty"`
	PaymentReference string         `json:"paymentReference,omitempty"`
	Card3ds          *bool          `json:"card3ds,omitempty"`
	ReasonCode       string         `json:"reasonCode,omitempty"`
	AmountNet        *json.Number   `json:"amountNet,omitempty"`
	AmountVat        *json.Number   `json:"amountVat,omitempty"`
	Date             string         `json:"date"`
	Resources        resourcesBody  `json:"resources"`
	Processing       processingBody `json:"processing"`
}

func nullFixed(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := fixed(d.Decimal)
	return &n
}

func (s *Server) renderTxn(paymentID string, t *txn) txnBody {
	body := txnBody{
		ID:               t.id,
		Currency:         t.req.Currency,
		ReturnURL:        t.req.ReturnURL,
		OrderID:          t.req.OrderID,
		InvoiceID:        t.req.InvoiceID,
		PaymentReference: t.req.PaymentReference,
		Card3ds:          t.req.Card3ds,
		ReasonCode:       t.req.ReasonCode,
		AmountNet:        nullFixed(t.req.AmountNet),
		AmountVat:        nullFixed(t.req.AmountVat),
		Date:             t.date.Format(dateLayout),
		Resources: resourcesBody{
			PaymentID:  paymentID,
			TypeID:     t.req.Resources.TypeID,
			CustomerID: t.req.Resources.CustomerID,
			BasketID:   t.req.Resources.BasketID,
		},
		Processing: processingBody{UniqueID: t.uniqueID, ShortID: t.shortID},
	}
	if t.kind != models.TxShipment {
		body.Amount = nullFixed(models.NullAmount(t.amount))
	}
	return body
}

const dateLayout = "2006-01-02 15:04:05"

type entryBody struct {
	Date   string      `json:"date"`
	Type   string      `json:"type"`
	Status string      `json:"status"`
	URL    string      `json:"url"`
	Amount json.Number `json:"amount"`
}

// paymentBody renders the payment with its transaction list
func (l *Ledger) paymentBody(id, base string) (gin.H, *Rejection) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, rej := l.payment(id)
	if rej != nil {
		return nil, rej
	}

	total, charged, cancelled, remaining := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	if p.auth != nil {
		total = p.auth.amount
		cancelled = cancelled.Add(p.auth.cancelled)
		remaining = p.auth.remaining()
	}
	for _, ch := range p.charges {
		if p.auth == nil {
			total = total.Add(ch.amount)
		}
		charged = charged.Add(ch.amount)
		cancelled = cancelled.Add(ch.cancelled)
	}

	paymentURL := strings.Join([]string{base, "payments", p.id}, "/")
	entries := make([]entryBody, 0, len(p.entries))
	for _, t := range p.entries {
		var path string
		switch t.kind {
		case models.TxAuthorize:
			path = "authorize/" + t.id
		case models.TxCharge:
			path = "charges/" + t.id
		case models.TxCancelAuthorize:
			path = "authorize/" + t.parentID + "/cancels/" + t.id
		case models.TxCancelCharge:
			path = "charges/" + t.parentID + "/cancels/" + t.id
		case models.TxShipment:
			path = "shipments/" + t.id
		case models.TxPayout:
			path = "payouts/" + t.id
		}
		entries = append(entries, entryBody{
			Date:   t.date.Format(dateLayout),
			Type:   t.kind,
			Status: "success",
			URL:    paymentURL + "/" + path,
			Amount: fixed(t.amount),
		})
	}

	state := models.StatePending
	switch {
	case p.auth == nil && len(p.charges) == 0:
	case remaining.IsPositive():
	case p.chargedRemaining().IsPositive():
		state = models.StateCompleted
	default:
		state = models.StateCancelled
	}

	return gin.H{
		"id":    p.id,
		"state": gin.H{"id": int(state), "name": state.String()},
		"amount": gin.H{
			"total":     fixed(total),
			"charged":   fixed(charged),
			"canceled":  fixed(cancelled),
			"remaining": fixed(remaining),
		},
		"currency": p.currency,
		"orderId":  p.orderID,
		"resources": resourcesBody{
			PaymentID:  p.id,
			TypeID:     p.typeID,
			CustomerID: p.customerID,
			BasketID:   p.basketID,
		},
		"transactions": entries,
	}, nil
}
