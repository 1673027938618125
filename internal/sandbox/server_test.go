package sandbox

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	t      *testing.T
	server *Server
	router *gin.Engine
}

func newHarness(t *testing.T) *harness {
	s := NewServer(Options{PrivateKey: "s-priv-test"})
	return &harness{t: t, server: s, router: s.Router()}
}

func (h *harness) do(method, path string, body interface{}) (int, map[string]interface{}) {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.SetBasicAuth("s-priv-test", "")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	out := make(map[string]interface{})
	if w.Body.Len() > 0 {
		dec := json.NewDecoder(bytes.NewReader(w.Body.Bytes()))
		dec.UseNumber()
		require.NoError(h.t, dec.Decode(&out), w.Body.String())
	}
	return w.Code, out
}

func (h *harness) card() string {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "/v1/types/card", map[string]string{
		"number":     "4711100000000000",
		"expiryDate": "03/2030",
	})
	require.Equal(h.t, http.StatusOK, status)
	return body["id"].(string)
}

func (h *harness) authorize(typeID, amount string) (paymentID, authID string) {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "/v1/payments/authorize", map[string]interface{}{
		"amount":    json.Number(amount),
		"currency":  "EUR",
		"orderId":   "order-1",
		"resources": map[string]string{"typeId": typeID},
	})
	require.Equal(h.t, http.StatusOK, status, body)
	return resources(body)["paymentId"].(string), body["id"].(string)
}

func resources(body map[string]interface{}) map[string]interface{} {
	return body["resources"].(map[string]interface{})
}

func errorCode(body map[string]interface{}) string {
	errs := body["errors"].([]interface{})
	return errs[0].(map[string]interface{})["code"].(string)
}

var codes = apierr.NewCodeTable(nil)

func TestRejectsMissingOrWrongKey(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/keypair", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/keypair", nil)
	req.SetBasicAuth("s-priv-other", "")
	w = httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKeypairListsPaymentTypes(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(http.MethodGet, "/v1/keypair", nil)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "s-pub-sandbox", body["publicKey"])
	assert.Contains(t, body["availablePaymentTypes"], "card")
	assert.Contains(t, body["availablePaymentTypes"], "sepa-direct-debit")
}

func TestCreateTypeMasksCardNumber(t *testing.T) {
	h := newHarness(t)
	id := h.card()
	assert.Regexp(t, `^s-crd-[a-z0-9]+$`, id)

	status, body := h.do(http.MethodGet, "/v1/types/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "471110******0000", body["number"])

	status, _ = h.do(http.MethodPost, "/v1/types/bitcoin", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuthorizeChargeCancelBooksAmounts(t *testing.T) {
	h := newHarness(t)
	paymentID, authID := h.authorize(h.card(), "100")

	status, charge := h.do(http.MethodPost, "/v1/payments/"+paymentID+"/charges", map[string]interface{}{"amount": 60})
	require.Equal(t, http.StatusOK, status, charge)
	assert.Equal(t, json.Number("60.0000"), charge["amount"])
	chargeID := charge["id"].(string)

	status, reversal := h.do(http.MethodPost, "/v1/payments/"+paymentID+"/authorize/"+authID+"/cancels", nil)
	require.Equal(t, http.StatusOK, status, reversal)
	assert.Equal(t, json.Number("40.0000"), reversal["amount"])

	status, refund := h.do(http.MethodPost, "/v1/payments/"+paymentID+"/charges/"+chargeID+"/cancels",
		map[string]interface{}{"amount": 25})
	require.Equal(t, http.StatusOK, status, refund)
	assert.Equal(t, "CANCEL", refund["reasonCode"])

	status, payment := h.do(http.MethodGet, "/v1/payments/"+paymentID, nil)
	require.Equal(t, http.StatusOK, status)
	amount := payment["amount"].(map[string]interface{})
	assert.Equal(t, json.Number("100.0000"), amount["total"])
	assert.Equal(t, json.Number("60.0000"), amount["charged"])
	assert.Equal(t, json.Number("65.0000"), amount["canceled"])
	assert.Equal(t, json.Number("0.0000"), amount["remaining"])
	assert.Equal(t, "completed", payment["state"].(map[string]interface{})["name"])

	txns := payment["transactions"].([]interface{})
	require.Len(t, txns, 4)
	last := txns[3].(map[string]interface{})
	assert.Equal(t, "cancel-charge", last["type"])
	assert.Contains(t, last["url"], "/charges/"+chargeID+"/cancels/")
}

func TestPaymentLookupByOrderID(t *testing.T) {
	h := newHarness(t)
	paymentID, _ := h.authorize(h.card(), "10")

	status, payment := h.do(http.MethodGet, "/v1/payments/order-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, paymentID, payment["id"])

	status, body := h.do(http.MethodGet, "/v1/payments/s-pay-unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, codes.Code(apierr.PaymentNotFound), errorCode(body))
}

func TestCancelRejectionCodes(t *testing.T) {
	h := newHarness(t)
	paymentID, authID := h.authorize(h.card(), "50")
	cancelAuth := "/v1/payments/" + paymentID + "/authorize/" + authID + "/cancels"

	status, body := h.do(http.MethodPost, cancelAuth, map[string]interface{}{"amount": 80})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeAmountTooHigh, errorCode(body))

	status, _ = h.do(http.MethodPost, cancelAuth, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = h.do(http.MethodPost, cancelAuth, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codes.Code(apierr.AlreadyCancelled), errorCode(body))

	status, payment := h.do(http.MethodGet, "/v1/payments/"+paymentID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", payment["state"].(map[string]interface{})["name"])
}

func TestFullyChargedAuthorizationReportsAlreadyCharged(t *testing.T) {
	h := newHarness(t)
	paymentID, authID := h.authorize(h.card(), "30")

	status, _ := h.do(http.MethodPost, "/v1/payments/"+paymentID+"/charges", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := h.do(http.MethodPost, "/v1/payments/"+paymentID+"/authorize/"+authID+"/cancels", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codes.Code(apierr.AlreadyCharged), errorCode(body))

	status, body = h.do(http.MethodPost, "/v1/payments/"+paymentID+"/charges", map[string]interface{}{"amount": 1})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codes.Code(apierr.ChargedAmountHigherThanExpected), errorCode(body))
}

func TestChargedBackChargeCannotBeRefunded(t *testing.T) {
	h := newHarness(t)
	paymentID, _ := h.authorize(h.card(), "20")
	_, charge := h.do(http.MethodPost, "/v1/payments/"+paymentID+"/charges", nil)
	chargeID := charge["id"].(string)

	status, _ := h.do(http.MethodPost, "/admin/payments/"+paymentID+"/charges/"+chargeID+"/chargeback", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := h.do(http.MethodPost, "/v1/payments/"+paymentID+"/charges/"+chargeID+"/cancels", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codes.Code(apierr.AlreadyChargedBack), errorCode(body))
}

func TestCapabilityRejections(t *testing.T) {
	h := newHarness(t)
	_, sdd := h.do(http.MethodPost, "/v1/types/sepa-direct-debit", map[string]string{"iban": "DE89370400440532013000"})
	_, invoice := h.do(http.MethodPost, "/v1/types/invoice-guaranteed", map[string]string{})

	status, body := h.do(http.MethodPost, "/v1/payments/authorize", map[string]interface{}{
		"amount": 10, "currency": "EUR", "resources": map[string]string{"typeId": sdd["id"].(string)},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codes.Code(apierr.TransactionAuthorizeNotAllowed), errorCode(body))

	status, charge := h.do(http.MethodPost, "/v1/payments/charges", map[string]interface{}{
		"amount": 10, "currency": "EUR", "resources": map[string]string{"typeId": invoice["id"].(string)},
	})
	require.Equal(t, http.StatusOK, status)
	paymentID := resources(charge)["paymentId"].(string)

	status, body = h.do(http.MethodPost, "/v1/payments/"+paymentID+"/shipments", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codes.Code(apierr.InvoiceIDRequired), errorCode(body))

	status, shipment := h.do(http.MethodPost, "/v1/payments/"+paymentID+"/shipments", map[string]string{"invoiceId": "inv-1"})
	require.Equal(t, http.StatusOK, status)
	assert.Regexp(t, `^s-shp-`, shipment["id"])
	assert.Nil(t, shipment["amount"])
}

func TestBasketValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		item map[string]interface{}
	}{
		{"zero quantity", map[string]interface{}{"basketItemReferenceId": "a", "title": "A", "quantity": 0, "amountPerUnit": "1"}},
		{"missing title", map[string]interface{}{"basketItemReferenceId": "a", "quantity": 1, "amountPerUnit": "1"}},
		{"missing reference", map[string]interface{}{"title": "A", "quantity": 1, "amountPerUnit": "1"}},
		{"negative unit amount", map[string]interface{}{"basketItemReferenceId": "a", "title": "A", "quantity": 1, "amountPerUnit": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := h.do(http.MethodPost, "/v1/baskets", map[string]interface{}{
				"orderId": "o-1", "currencyCode": "EUR", "basketItems": []interface{}{tt.item},
			})
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, codes.Code(apierr.BasketItemInvalid), errorCode(body))
		})
	}

	status, body := h.do(http.MethodPost, "/v1/baskets", map[string]interface{}{"orderId": "o-1", "basketItems": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codes.Code(apierr.BasketItemInvalid), errorCode(body))

	status, body = h.do(http.MethodPost, "/v1/baskets", map[string]interface{}{
		"orderId": "o-1", "amountTotalGross": "99",
		"basketItems": []interface{}{map[string]interface{}{"basketItemReferenceId": "a", "title": "A", "quantity": 2, "amountPerUnit": "5"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidRequest, errorCode(body))
}

func TestBasketLifecycleAndInvoiceFactoring(t *testing.T) {
	h := newHarness(t)
	_, ivf := h.do(http.MethodPost, "/v1/types/invoice-factoring", map[string]string{})
	typeID := ivf["id"].(string)

	status, body := h.do(http.MethodPost, "/v1/payments/charges", map[string]interface{}{
		"amount": 10, "currency": "EUR", "resources": map[string]string{"typeId": typeID},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidRequest, errorCode(body))

	status, body = h.do(http.MethodPost, "/v1/payments/charges", map[string]interface{}{
		"amount": 10, "currency": "EUR", "resources": map[string]string{"typeId": typeID, "basketId": "s-bsk-missing"},
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CodeNotFound, errorCode(body))

	status, basket := h.do(http.MethodPost, "/v1/baskets", map[string]interface{}{
		"orderId": "o-1", "currencyCode": "EUR",
		"basketItems": []interface{}{map[string]interface{}{"basketItemReferenceId": "a", "title": "A", "quantity": 2, "amountPerUnit": "5"}},
	})
	require.Equal(t, http.StatusOK, status, basket)
	basketID := basket["id"].(string)
	assert.Regexp(t, `^s-bsk-`, basketID)
	assert.Equal(t, "10", basket["amountTotalGross"])

	status, updated := h.do(http.MethodPut, "/v1/baskets/"+basketID, map[string]interface{}{
		"orderId": "o-1", "currencyCode": "EUR",
		"basketItems": []interface{}{map[string]interface{}{"basketItemReferenceId": "a", "title": "A", "quantity": 1, "amountPerUnit": "10"}},
	})
	require.Equal(t, http.StatusOK, status, updated)
	assert.Equal(t, basketID, updated["id"])

	status, charge := h.do(http.MethodPost, "/v1/payments/charges", map[string]interface{}{
		"amount": 10, "currency": "EUR", "resources": map[string]string{"typeId": typeID, "basketId": basketID},
	})
	require.Equal(t, http.StatusOK, status, charge)
	assert.Equal(t, basketID, resources(charge)["basketId"])

	status, payment := h.do(http.MethodGet, "/v1/payments/"+resources(charge)["paymentId"].(string), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, basketID, resources(payment)["basketId"])

	status, _ = h.do(http.MethodGet, "/v1/baskets/s-bsk-missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDuplicateCustomerID(t *testing.T) {
	h := newHarness(t)
	status, created := h.do(http.MethodPost, "/v1/customers", map[string]string{"customerId": "c-1", "lastname": "Doe"})
	require.Equal(t, http.StatusOK, status)

	status, body := h.do(http.MethodPost, "/v1/customers", map[string]string{"customerId": "c-1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, codes.Code(apierr.CustomerIDAlreadyExists), errorCode(body))

	status, fetched := h.do(http.MethodGet, "/v1/customers/c-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, created["id"], fetched["id"])

	status, updated := h.do(http.MethodPut, "/v1/customers/"+created["id"].(string), map[string]string{"firstname": "Jane"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Jane", updated["firstname"])
	assert.Equal(t, "Doe", updated["lastname"])

	status, _ = h.do(http.MethodDelete, "/v1/customers/c-1", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = h.do(http.MethodGet, "/v1/customers/c-1", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestChaosFailsGatewayRequests(t *testing.T) {
	h := newHarness(t)
	h.server.Chaos().SetFailureRate(1)

	status, _ := h.do(http.MethodPost, "/chaos/gateway/enable", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := h.do(http.MethodGet, "/v1/keypair", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, CodeUnavailable, errorCode(body))

	status, gw := h.do(http.MethodGet, "/gateway/status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, gw["chaos_enabled"])

	status, _ = h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)

	h.do(http.MethodPost, "/chaos/gateway/disable", nil)
	status, _ = h.do(http.MethodGet, "/v1/keypair", nil)
	assert.Equal(t, http.StatusOK, status)
}
