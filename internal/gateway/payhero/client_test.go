package payhero

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Franc-dev/donate-artist/internal/config"
	gatewaydomain "github.com/Franc-dev/donate-artist/internal/gateway/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.PayHeroConfig{
		APIURL:    srv.URL,
		AuthToken: "Basic dGVzdDp0ZXN0",
		ChannelID: 3054,
		Timeout:   2 * time.Second,
	})
}

func TestInitiatePushSendsChannelAndProvider(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Basic dGVzdDp0ZXN0", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"status":"QUEUED","reference":"TX-1","CheckoutRequestID":"ws_CO_1"}`))
	})

	res, err := c.InitiatePush(context.Background(), gatewaydomain.PushRequest{
		Amount:            100,
		PhoneNumber:       "254712345678",
		ExternalReference: "1790000000000000001",
		CallbackURL:       "http://localhost/api/payments/callback",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "TX-1", res.TransactionID)
	assert.Equal(t, "QUEUED", res.Message)

	assert.Equal(t, float64(3054), got["channel_id"])
	assert.Equal(t, "m-pesa", got["provider"])
	assert.Equal(t, "1790000000000000001", got["external_reference"])
}

func TestInitiatePushRejectionIsNotTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error_message":"Invalid phone number"}`))
	})

	res, err := c.InitiatePush(context.Background(), gatewaydomain.PushRequest{
		Amount: 50, PhoneNumber: "254700000000", ExternalReference: "ref",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid phone number", res.Message)
}

func TestNon2xxIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.InitiatePush(context.Background(), gatewaydomain.PushRequest{
		Amount: 50, PhoneNumber: "254700000000", ExternalReference: "ref",
	})
	assert.True(t, gatewaydomain.IsTransport(err))

	_, err = c.QueryByReference(context.Background(), "ref")
	assert.True(t, gatewaydomain.IsTransport(err))
}

func TestUndecodableBodyIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err := c.QueryByReference(context.Background(), "ref")
	assert.True(t, gatewaydomain.IsTransport(err))
}

func TestQueryByReferenceNormalizesShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		success bool
		status  string
	}{
		{name: "wrapped", body: `{"success":true,"data":{"status":"completed","message":"ok"}}`, success: true, status: "completed"},
		{name: "flat", body: `{"success":true,"status":"SUCCESS","reference":"r"}`, success: true, status: "SUCCESS"},
		{name: "not found", body: `{"success":false,"message":"Transaction cancelled by user"}`, success: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction-status", r.URL.Path)
				assert.Equal(t, "ref-1", r.URL.Query().Get("reference"))
				_, _ = w.Write([]byte(tt.body))
			})
			res, err := c.QueryByReference(context.Background(), "ref-1")
			require.NoError(t, err)
			assert.Equal(t, tt.success, res.Success)
			if tt.status == "" {
				assert.Nil(t, res.Data)
				assert.Equal(t, "Transaction cancelled by user", res.Message)
				return
			}
			require.NotNil(t, res.Data)
			assert.Equal(t, tt.status, res.Data.Status)
		})
	}
}

func TestAuthorizationHeader(t *testing.T) {
	assert.Equal(t, "", authorizationHeader(" "))
	assert.Equal(t, "Basic abc", authorizationHeader("Basic abc"))
	assert.Equal(t, "Basic dXNlcjpwYXNz", authorizationHeader("user:pass"))
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient(config.PayHeroConfig{})
	_, err := c.InitiatePush(context.Background(), gatewaydomain.PushRequest{Amount: 10, PhoneNumber: "254700000000", ExternalReference: "r"})
	assert.ErrorIs(t, err, gatewaydomain.ErrNotConfigured)
}
