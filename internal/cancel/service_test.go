package cancel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/models"
	"github.com/ashendes/paygate/internal/resource"
	"github.com/ashendes/paygate/internal/transport"
	"github.com/ashendes/paygate/internal/transport/transporttest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "http://gw.test/v1/payments/s-pay-1"

func newCancelService(fake *transporttest.Fake) *Service {
	httpSvc := transport.NewHTTPService(fake, apierr.NewCodeTable(nil), false, nil)
	return NewService(resource.NewService(httpSvc, "http://gw.test", "v1", nil), nil)
}

// buildPayment returns a payment as fetched from the gateway: an optional
// authorization of auth and one charge per entry in charges.
func buildPayment(t *testing.T, auth string, charges ...string) *models.Payment {
	t.Helper()
	var entries []string
	if auth != "" {
		entries = append(entries, fmt.Sprintf(`{"type":"authorize","status":"success","url":"https://gw/v1/payments/s-pay-1/authorize/s-aut-1","amount":"%s"}`, auth))
	}
	for i, c := range charges {
		entries = append(entries, fmt.Sprintf(`{"type":"charge","status":"success","url":"https://gw/v1/payments/s-pay-1/charges/s-chg-%d","amount":"%s"}`, i+1, c))
	}
	p := &models.Payment{}
	require.NoError(t, p.HandleResponse([]byte(fmt.Sprintf(`{"id":"s-pay-1","transactions":[%s]}`, strings.Join(entries, ",")))))
	return p
}

func cancelled(id, amount string) string {
	return fmt.Sprintf(`{"id":%q,"amount":%q,"resources":{"paymentId":"s-pay-1"}}`, id, amount)
}

func code(sym apierr.Symbol) string {
	return apierr.DefaultWireCodes()[sym]
}

func amt(v string) decimal.NullDecimal {
	return models.NullAmount(decimal.RequireFromString(v))
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type sentBody struct {
	Amount     *decimal.Decimal `json:"amount"`
	ReasonCode string           `json:"reasonCode"`
}

func sent(t *testing.T, call transporttest.Call) sentBody {
	t.Helper()
	var b sentBody
	require.NoError(t, json.Unmarshal(call.Payload, &b))
	return b
}

func TestCancelPaymentWholeAuthorization(t *testing.T) {
	fake := transporttest.New().OK(cancelled("s-cnl-1", "100.0000"))
	svc := newCancelService(fake)
	p := buildPayment(t, "100")

	out, err := svc.CancelPayment(context.Background(), p, decimal.NullDecimal{}, Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Amount().Decimal.Equal(dec("100")))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, base+"/authorize/s-aut-1/cancels", calls[0].URL)
	assert.Nil(t, sent(t, calls[0]).Amount, "a whole cancel lets the gateway pick the amount")

	auth := p.Authorization()
	assert.True(t, auth.Remaining().IsZero())
	assert.Len(t, auth.Cancellations(), 1)
	assert.True(t, p.IsCancelled())

	got, ok := p.GetCancellation("s-cnl-1")
	require.True(t, ok)
	assert.Same(t, out[0], got)
}

func TestCancelPaymentWholeResolvesMissingAmount(t *testing.T) {
	fake := transporttest.New().OK(`{"id":"s-cnl-1"}`)
	p := buildPayment(t, "75")

	out, err := newCancelService(fake).CancelPayment(context.Background(), p, decimal.NullDecimal{}, Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Amount().Decimal.Equal(dec("75")))
	assert.True(t, p.Authorization().Remaining().IsZero())
}

func TestCancelPaymentPartialCappedAtRemaining(t *testing.T) {
	fake := transporttest.New().OK(cancelled("s-cnl-1", "100"))
	p := buildPayment(t, "100")

	out, err := newCancelService(fake).CancelPayment(context.Background(), p, amt("150"), Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	body := sent(t, calls[0])
	require.NotNil(t, body.Amount)
	assert.True(t, body.Amount.Equal(dec("100")))
	assert.True(t, out[0].Amount().Decimal.Equal(dec("100")))
}

func TestCancelPaymentAuthorizationThenCharges(t *testing.T) {
	fake := transporttest.New().
		OK(cancelled("s-cnl-1", "50")).
		OK(cancelled("s-cnl-2", "30"))
	// authorization of 150 with 100 captured leaves 50 held
	p := buildPayment(t, "150", "100")
	require.True(t, p.Authorization().Remaining().Equal(dec("50")))

	out, err := newCancelService(fake).CancelPayment(context.Background(), p, amt("80"), Options{})
	require.NoError(t, err)
	require.Len(t, out, 2)

	kind, target := out[0].Target()
	assert.Equal(t, models.TargetAuthorization, kind)
	assert.Equal(t, "s-aut-1", target)
	assert.True(t, out[0].Amount().Decimal.Equal(dec("50")))

	kind, target = out[1].Target()
	assert.Equal(t, models.TargetCharge, kind)
	assert.Equal(t, "s-chg-1", target)
	assert.True(t, out[1].Amount().Decimal.Equal(dec("30")))

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, base+"/authorize/s-aut-1/cancels", calls[0].URL)
	assert.Equal(t, base+"/charges/s-chg-1/cancels", calls[1].URL)
	refund := sent(t, calls[1])
	assert.True(t, refund.Amount.Equal(dec("30")))
	assert.Equal(t, models.ReasonCodeCancel, refund.ReasonCode)

	charge, _ := p.GetChargeByID("s-chg-1")
	assert.True(t, charge.Remaining().Equal(dec("70")))
}

func TestCancelPaymentToleratesAlreadyCancelledAuthorization(t *testing.T) {
	fake := transporttest.New().
		OK(cancelled("s-cnl-1", "50")).
		Error(http.StatusConflict, code(apierr.AlreadyCancelled), "already cancelled").
		OK(cancelled("s-cnl-2", "50"))
	svc := newCancelService(fake)

	first, err := svc.CancelPayment(context.Background(), buildPayment(t, "150", "100"), amt("50"), Options{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// a second process still holds the old view of the payment
	stale := buildPayment(t, "150", "100")
	second, err := svc.CancelPayment(context.Background(), stale, amt("50"), Options{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	kind, _ := second[0].Target()
	assert.Equal(t, models.TargetCharge, kind)
	assert.Len(t, fake.Calls(), 3)
	assert.Empty(t, stale.Authorization().Cancellations(), "rejected cancellations are not attached")
}

func TestCancelPaymentToleratesChargePhaseCodes(t *testing.T) {
	for _, sym := range []apierr.Symbol{apierr.AlreadyCancelled, apierr.AlreadyCharged, apierr.AlreadyChargedBack} {
		t.Run(string(sym), func(t *testing.T) {
			fake := transporttest.New().
				Error(http.StatusConflict, code(sym), "nothing to do").
				OK(cancelled("s-cnl-2", "20"))
			p := buildPayment(t, "", "10", "20")

			out, err := newCancelService(fake).CancelPayment(context.Background(), p, decimal.NullDecimal{}, Options{})
			require.NoError(t, err)
			require.Len(t, out, 1)
			_, target := out[0].Target()
			assert.Equal(t, "s-chg-2", target)
		})
	}
}

func TestCancelPaymentTransactionCancelNotAllowedOnlyInAuthorizationPhase(t *testing.T) {
	fake := transporttest.New().
		Error(http.StatusConflict, code(apierr.TransactionCancelNotAllowed), "not allowed")
	p := buildPayment(t, "", "10")

	out, err := newCancelService(fake).CancelPayment(context.Background(), p, decimal.NullDecimal{}, Options{})
	require.Error(t, err)
	assert.Empty(t, out)
	assert.True(t, apierr.HasSymbol(err, apierr.TransactionCancelNotAllowed))
}

func TestCancelPaymentWholeVisitsEveryCharge(t *testing.T) {
	fake := transporttest.New().
		Error(http.StatusConflict, code(apierr.AlreadyCharged), "fully captured").
		OK(cancelled("s-cnl-1", "100")).
		Error(http.StatusConflict, code(apierr.AlreadyCancelled), "refunded elsewhere").
		OK(cancelled("s-cnl-3", "100"))
	p := buildPayment(t, "300", "100", "100", "100")

	out, err := newCancelService(fake).CancelPayment(context.Background(), p, decimal.NullDecimal{}, Options{ReasonCode: models.ReasonCodeReturn})
	require.NoError(t, err)
	require.Len(t, out, 2)

	calls := fake.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, base+"/authorize/s-aut-1/cancels", calls[0].URL)
	for i, call := range calls[1:] {
		assert.Equal(t, fmt.Sprintf("%s/charges/s-chg-%d/cancels", base, i+1), call.URL)
		body := sent(t, call)
		assert.Nil(t, body.Amount)
		assert.Equal(t, models.ReasonCodeReturn, body.ReasonCode)
	}
}

func TestCancelPaymentPropagatesOtherErrorsWithPartialResult(t *testing.T) {
	fake := transporttest.New().
		Error(http.StatusConflict, code(apierr.AlreadyCharged), "fully captured").
		OK(cancelled("s-cnl-1", "100")).
		Error(http.StatusBadRequest, code(apierr.BasketItemInvalid), "basket item invalid")
	p := buildPayment(t, "300", "100", "100", "100")

	out, err := newCancelService(fake).CancelPayment(context.Background(), p, decimal.NullDecimal{}, Options{})
	require.Error(t, err)
	assert.True(t, apierr.HasSymbol(err, apierr.BasketItemInvalid))
	assert.Equal(t, "basket item invalid", err.Error())

	require.Len(t, out, 1, "the first refund stays reported")
	_, target := out[0].Target()
	assert.Equal(t, "s-chg-1", target)
	assert.Len(t, fake.Calls(), 3, "the third charge is never attempted")

	first, _ := p.GetChargeByID("s-chg-1")
	assert.True(t, first.Remaining().IsZero())
	second, _ := p.GetChargeByID("s-chg-2")
	assert.Empty(t, second.Cancellations())
}

func TestCancelPaymentAuthorizationErrorAborts(t *testing.T) {
	fake := transporttest.New().Error(http.StatusNotFound, code(apierr.PaymentNotFound), "payment not found")
	p := buildPayment(t, "100", "50")

	out, err := newCancelService(fake).CancelPayment(context.Background(), p, decimal.NullDecimal{}, Options{})
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Len(t, fake.Calls(), 1)
}

func TestCancelPaymentTransportErrorIsNeverTolerated(t *testing.T) {
	fake := transporttest.New().
		OK(cancelled("s-cnl-1", "10")).
		Fail(errors.New("connection reset"))
	p := buildPayment(t, "", "10", "10")

	out, err := newCancelService(fake).CancelPayment(context.Background(), p, decimal.NullDecimal{}, Options{})
	require.Error(t, err)
	assert.True(t, apierr.IsTransport(err))
	assert.Len(t, out, 1)
}

func TestCancelPaymentChargeGetsNullWhenAmountExceedsTotal(t *testing.T) {
	fake := transporttest.New().
		OK(cancelled("s-cnl-1", "30")).
		OK(cancelled("s-cnl-2", "20"))
	p := buildPayment(t, "", "30", "100", "100")

	out, err := newCancelService(fake).CancelPayment(context.Background(), p, amt("50"), Options{})
	require.NoError(t, err)
	require.Len(t, out, 2)

	calls := fake.Calls()
	require.Len(t, calls, 2, "allocation stops once the amount is used up")
	assert.Nil(t, sent(t, calls[0]).Amount)
	assert.True(t, sent(t, calls[1]).Amount.Equal(dec("20")))
}

func TestZeroAmountShortCircuits(t *testing.T) {
	fake := transporttest.New()
	svc := newCancelService(fake)
	p := buildPayment(t, "100", "40")

	c, err := svc.CancelPaymentAuthorization(context.Background(), p, amt("0.0"))
	require.NoError(t, err)
	assert.Nil(t, c)

	out, err := svc.CancelPayment(context.Background(), p, amt("0"), Options{})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = svc.CancelPaymentCharges(context.Background(), p, amt("0"), Options{})
	require.NoError(t, err)
	assert.Empty(t, out)

	assert.Empty(t, fake.Calls())
}

func TestExhaustedAuthorizationSkipsToCharges(t *testing.T) {
	fake := transporttest.New().OK(cancelled("s-cnl-1", "10"))
	p := buildPayment(t, "100", "100")

	out, err := newCancelService(fake).CancelPayment(context.Background(), p, amt("10"), Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, base+"/charges/s-chg-1/cancels", calls[0].URL)
}

func TestNegativeAmountIsUsageError(t *testing.T) {
	fake := transporttest.New()
	svc := newCancelService(fake)
	p := buildPayment(t, "100", "10")
	ctx := context.Background()

	_, err := svc.CancelPayment(ctx, p, amt("-1"), Options{})
	assert.True(t, apierr.IsUsage(err))
	_, err = svc.CancelPaymentAuthorization(ctx, p, amt("-1"))
	assert.True(t, apierr.IsUsage(err))
	_, err = svc.CancelAuthorization(ctx, p.Authorization(), amt("-1"))
	assert.True(t, apierr.IsUsage(err))
	charge, _ := p.GetChargeByIndex(0)
	_, err = svc.CancelCharge(ctx, charge, amt("-1"), Options{})
	assert.True(t, apierr.IsUsage(err))
	assert.Empty(t, fake.Calls())
}

func TestSingleTargetHelpersCheckRemaining(t *testing.T) {
	fake := transporttest.New().OK(cancelled("s-cnl-1", "5"))
	svc := newCancelService(fake)
	p := buildPayment(t, "100", "30")
	ctx := context.Background()

	_, err := svc.CancelAuthorization(ctx, p.Authorization(), amt("71"))
	assert.True(t, apierr.IsUsage(err), "only 70 is still held")

	charge, _ := p.GetChargeByIndex(0)
	_, err = svc.CancelCharge(ctx, charge, amt("31"), Options{})
	assert.True(t, apierr.IsUsage(err))
	assert.Empty(t, fake.Calls())

	c, err := svc.CancelCharge(ctx, charge, amt("5"), Options{PaymentReference: "ref-1"})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", c.PaymentReference)
	assert.True(t, charge.Remaining().Equal(dec("25")))
}

func TestCancelPaymentAuthorizationWithoutAuthorization(t *testing.T) {
	_, err := newCancelService(transporttest.New()).CancelPaymentAuthorization(context.Background(), buildPayment(t, "", "10"), decimal.NullDecimal{})
	assert.True(t, apierr.IsUsage(err))
}

func TestCancelByIDFetchesPaymentFirst(t *testing.T) {
	paymentBody := `{"id":"s-pay-1","transactions":[
		{"type":"authorize","status":"success","url":"https://gw/v1/payments/s-pay-1/authorize/s-aut-1","amount":"20"},
		{"type":"charge","status":"success","url":"https://gw/v1/payments/s-pay-1/charges/s-chg-1","amount":"20"}]}`
	fake := transporttest.New().
		OK(paymentBody).
		OK(cancelled("s-cnl-1", "20")).
		OK(paymentBody).
		OK(cancelled("s-cnl-2", "5"))
	svc := newCancelService(fake)

	c, err := svc.CancelChargeByID(context.Background(), "s-pay-1", "s-chg-1", decimal.NullDecimal{}, Options{})
	require.NoError(t, err)
	assert.True(t, c.Amount().Decimal.Equal(dec("20")))

	out, err := svc.CancelPaymentByID(context.Background(), "s-pay-1", amt("5"), Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)

	calls := fake.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, base, calls[0].URL)
	assert.Equal(t, base+"/charges/s-chg-1/cancels", calls[3].URL, "the authorization is fully captured")
}
