// Package transport performs the HTTP exchange with the payment gateway.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/patterns"
	"github.com/go-resty/resty/v2"
)

// SDKVersion is sent with every request in the SDK-VERSION header
const SDKVersion = "1.2.0"

// UserAgent identifies the client to the gateway
const UserAgent = "PaygateGo"

// Transport sends one request and returns the raw body and status code.
// Implementations report only failures that happened before a response arrived.
type Transport interface {
	Send(ctx context.Context, url string, payload []byte, method string) ([]byte, int, error)
}

// AdapterConfig configures the resty-backed Transport
type AdapterConfig struct {
	PrivateKey   string
	Locale       string
	Timeout      time.Duration
	Circuit      patterns.CircuitSettings
	BulkheadSize int
	BulkheadWait time.Duration
	Service      string
}

// RestyAdapter is the production Transport: one resty client guarded by a
// circuit breaker and a bulkhead.
type RestyAdapter struct {
	client   *resty.Client
	circuit  *patterns.CircuitBreakerWrapper
	bulkhead *patterns.Bulkhead
}

var errServerStatus = errors.New("gateway answered with a server error")

// NewRestyAdapter builds the adapter from cfg
func NewRestyAdapter(cfg AdapterConfig) *RestyAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = patterns.DefaultTimeout
	}
	if cfg.Circuit == (patterns.CircuitSettings{}) {
		cfg.Circuit = patterns.DefaultCircuitSettings()
	}
	if cfg.BulkheadSize <= 0 {
		cfg.BulkheadSize = 10
	}
	if cfg.BulkheadWait <= 0 {
		cfg.BulkheadWait = time.Second
	}
	if cfg.Service == "" {
		cfg.Service = "paygate-client"
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0). // failures surface to the caller; no hidden retries
		SetBasicAuth(cfg.PrivateKey, "").
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", UserAgent).
		SetHeader("SDK-VERSION", SDKVersion)
	if cfg.Locale != "" {
		client.SetHeader("Accept-Language", cfg.Locale)
	}

	return &RestyAdapter{
		client:   client,
		circuit:  patterns.NewCircuitBreaker("Gateway", cfg.Service, cfg.Circuit),
		bulkhead: patterns.NewBulkhead(cfg.BulkheadSize, cfg.BulkheadWait, "gateway", cfg.Service),
	}
}

// Circuit exposes the breaker for status endpoints
func (a *RestyAdapter) Circuit() *patterns.CircuitBreakerWrapper {
	return a.circuit
}

// Send implements Transport
func (a *RestyAdapter) Send(ctx context.Context, url string, payload []byte, method string) ([]byte, int, error) {
	var resp *resty.Response

	err := a.bulkhead.Execute(ctx, func() error {
		result, cbErr := a.circuit.Execute(func() (interface{}, error) {
			req := a.client.R().SetContext(ctx)
			if payload != nil && (method == http.MethodPost || method == http.MethodPut) {
				req.SetBody(payload)
			}

			r, httpErr := req.Execute(method, url)
			if httpErr != nil {
				return nil, fmt.Errorf("HTTP error: %w", httpErr)
			}
			// 5xx counts against the circuit but still carries a body to classify
			if r.StatusCode() >= http.StatusInternalServerError {
				return r, errServerStatus
			}
			return r, nil
		})

		if r, ok := result.(*resty.Response); ok {
			resp = r
		}
		if cbErr != nil && !errors.Is(cbErr, errServerStatus) {
			return patterns.FormatError(a.circuit.GetName(), cbErr)
		}
		return nil
	})
	if err != nil {
		return nil, 0, &apierr.TransportError{Method: method, URL: url, Err: err}
	}

	return resp.Body(), resp.StatusCode(), nil
}
