package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashendes/paygate/internal/apierr"
	log "github.com/sirupsen/logrus"
)

// HTTPService serialises payloads, logs the exchange and turns gateway
// responses into values or typed errors.
type HTTPService struct {
	transport Transport
	codes     *apierr.CodeTable
	debug     bool
	logger    log.FieldLogger
}

// NewHTTPService wires a Transport with the wire-code table. A nil logger
// falls back to the standard logrus logger.
func NewHTTPService(t Transport, codes *apierr.CodeTable, debug bool, logger log.FieldLogger) *HTTPService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if codes == nil {
		codes = apierr.NewCodeTable(nil)
	}
	return &HTTPService{transport: t, codes: codes, debug: debug, logger: logger}
}

type errorEntry struct {
	Code            string `json:"code"`
	MerchantMessage string `json:"merchantMessage"`
	CustomerMessage string `json:"customerMessage"`
}

type errorResponse struct {
	Errors []errorEntry `json:"errors"`
}

// Send performs one request. payload is marshalled for POST and PUT only.
func (s *HTTPService) Send(ctx context.Context, url string, payload interface{}, method string) ([]byte, error) {
	var body []byte
	if payload != nil && (method == http.MethodPost || method == http.MethodPut) {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", method, err)
		}
		body = encoded
	}

	if s.debug {
		s.logger.Debugf("Http %s-Request: %s", method, url)
		if body != nil {
			s.logger.WithField("payload", string(body)).Debug("Request")
		}
	}

	resp, status, err := s.transport.Send(ctx, url, body, method)
	if err != nil {
		var te *apierr.TransportError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, &apierr.TransportError{Method: method, URL: url, Err: err}
	}

	if s.debug {
		s.logger.WithFields(log.Fields{
			"status": status,
			"body":   string(resp),
		}).Debug("Response")
	}

	return resp, s.classify(method, url, resp, status)
}

func (s *HTTPService) classify(method, url string, body []byte, status int) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &apierr.TransportError{Method: method, URL: url, Err: errors.New(apierr.NullResponseMessage)}
	}
	if !json.Valid(trimmed) {
		return &apierr.TransportError{Method: method, URL: url, Err: fmt.Errorf("malformed response body (status %d)", status)}
	}

	var parsed errorResponse
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &parsed); err != nil {
			return &apierr.TransportError{Method: method, URL: url, Err: fmt.Errorf("malformed response body (status %d): %w", status, err)}
		}
	}

	if status < http.StatusBadRequest && len(parsed.Errors) == 0 {
		return nil
	}

	apiErr := &apierr.APIError{
		MerchantMessage: apierr.DefaultAPIMessage,
		CustomerMessage: apierr.DefaultAPIMessage,
		StatusCode:      status,
	}
	if len(parsed.Errors) > 0 {
		first := parsed.Errors[0]
		apiErr.Code = first.Code
		apiErr.Symbol = s.codes.Symbol(first.Code)
		if first.MerchantMessage != "" {
			apiErr.MerchantMessage = first.MerchantMessage
		}
		if first.CustomerMessage != "" {
			apiErr.CustomerMessage = first.CustomerMessage
		}
	}
	return apiErr
}
