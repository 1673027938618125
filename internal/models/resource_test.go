package models

import (
	"testing"
	"time"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaFetchState(t *testing.T) {
	var m Meta
	assert.Equal(t, Unpersisted, m.FetchState())
	assert.False(t, m.NeedsFetch())

	m.MarkFetched(time.Now())
	assert.Equal(t, Unpersisted, m.FetchState(), "no id means nothing was fetched")

	m.SetID("s-cst-1")
	assert.Equal(t, Persisted, m.FetchState())
	assert.True(t, m.NeedsFetch())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.MarkFetched(at)
	assert.Equal(t, Fetched, m.FetchState())
	assert.Equal(t, at, m.FetchedAt())
	assert.False(t, m.NeedsFetch())

	m.SetID("s-cst-2")
	assert.Equal(t, Fetched, m.FetchState(), "re-identifying keeps the fetch stamp")

	m.SetID("")
	assert.Equal(t, Unpersisted, m.FetchState())
	assert.True(t, m.FetchedAt().IsZero())
}

func TestResourceIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		tag  string
		want string
	}{
		{"https://myurl.test/s-test-1234", "test", "s-test-1234"},
		{"https://myurl.test/p-foo-99988776655", "foo", "p-foo-99988776655"},
		{"https://myurl.test/s-test-1234/s-bar-123456787", "bar", "s-bar-123456787"},
		{"https://api/v1/payments/s-pay-1/charges/s-chg-2/cancels/s-cnl-3", "chg", "s-chg-2"},
		{"https://api/v1/payments/s-pay-1/charges/s-chg-2/cancels/s-cnl-3/", "cnl", "s-cnl-3"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ResourceIDFromURL(tt.url, tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	failing := []struct {
		url string
		tag string
	}{
		{"https://myurl.test/s-test-1234", "aut"},
		{"https://myurl.test/authorizep-aut-99988776655", "foo"},
		{"https://myurl.test/s-test-1234/z-bar-123456787", "bar"},
	}
	for _, tt := range failing {
		t.Run("fails "+tt.url, func(t *testing.T) {
			_, err := ResourceIDFromURL(tt.url, tt.tag)
			require.Error(t, err)
			assert.True(t, apierr.IsUsage(err))
			assert.Contains(t, err.Error(), "Id not found!")
		})
	}
}

func TestCancellationParent(t *testing.T) {
	auth := NewAuthorization(dec("10"), "EUR", "")
	auth.SetID("s-aut-1")
	auth.SetPaymentID("s-pay-1")

	c := CancellationFor(auth, NullAmount(dec("5")))
	parent := c.Parent()
	require.NotNil(t, parent)
	assert.Equal(t, "authorize", parent.ResourcePath())
	assert.Equal(t, "s-aut-1", parent.ID())
	assert.Equal(t, "payments", parent.Parent().ResourcePath())
	assert.Equal(t, "s-pay-1", parent.Parent().ID())

	kind, id := c.Target()
	assert.Equal(t, TargetAuthorization, kind)
	assert.Equal(t, "s-aut-1", id)
}
