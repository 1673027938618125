package transport

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method  string
	path    string
	body    string
	headers http.Header
}

func recordingServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.path = r.URL.Path
		got.body = string(b)
		got.headers = r.Header.Clone()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestRestyAdapterHeaders(t *testing.T) {
	srv, got := recordingServer(t, http.StatusOK, `{"id":"s-pay-1"}`)
	a := NewRestyAdapter(AdapterConfig{PrivateKey: "s-priv-123", Locale: "de_DE", Service: "test-headers"})

	body, status, err := a.Send(context.Background(), srv.URL+"/v1/payments", []byte(`{"amount":1}`), http.MethodPost)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"id":"s-pay-1"}`, string(body))

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/v1/payments", got.path)
	assert.JSONEq(t, `{"amount":1}`, got.body)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("s-priv-123:")), got.headers.Get("Authorization"))
	assert.Equal(t, UserAgent, got.headers.Get("User-Agent"))
	assert.Equal(t, SDKVersion, got.headers.Get("SDK-VERSION"))
	assert.Equal(t, "de_DE", got.headers.Get("Accept-Language"))
	assert.Equal(t, "application/json", got.headers.Get("Content-Type"))
}

func TestRestyAdapterSkipsPayloadOnGet(t *testing.T) {
	srv, got := recordingServer(t, http.StatusOK, `{}`)
	a := NewRestyAdapter(AdapterConfig{Service: "test-get"})

	_, _, err := a.Send(context.Background(), srv.URL+"/v1/payments/s-pay-1", []byte(`{"ignored":true}`), http.MethodGet)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Empty(t, got.body)
}

func TestRestyAdapterPassesServerErrorsThrough(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusServiceUnavailable, `{"errors":[{"code":"X"}]}`)
	a := NewRestyAdapter(AdapterConfig{Service: "test-5xx"})

	body, status, err := a.Send(context.Background(), srv.URL, nil, http.MethodGet)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), `"X"`)
}

func TestRestyAdapterNetworkFailure(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	a := NewRestyAdapter(AdapterConfig{Service: "test-down", Timeout: time.Second})
	_, _, err := a.Send(context.Background(), url, nil, http.MethodGet)
	require.Error(t, err)
	assert.True(t, apierr.IsTransport(err))
}
