package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"craftshop-backend/internal/patterns"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{KeyID: "rzp_test_key", KeySecret: "topsecret", BaseURL: baseURL, Timeout: time.Second},
		patterns.NewBreaker("razorpay-"+t.Name(), BreakerSettings()))
	require.NoError(t, err)
	return c
}

func TestCreateIntent_PostsOrder(t *testing.T) {
	var got createOrderReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "topsecret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "order_abc", "amount": got.Amount, "currency": got.Currency, "receipt": got.Receipt, "status": "created",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	in, err := c.CreateIntent(context.Background(), 64800, "INR", "receipt_1")
	require.NoError(t, err)
	assert.Equal(t, Intent{ID: "order_abc", Amount: 64800, Currency: "INR", Receipt: "receipt_1"}, in)
	assert.Equal(t, int64(64800), got.Amount)
}

func TestCreateIntent_GatewayErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"code":"SERVER_ERROR","description":"down"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.CreateIntent(context.Background(), 100, "INR", "r")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "down")
}

func TestCreateIntent_TransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.CreateIntent(context.Background(), 100, "INR", "r")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateIntent_Mock(t *testing.T) {
	c, err := NewClient(Config{KeySecret: "s", Mock: true}, nil)
	require.NoError(t, err)
	in, err := c.CreateIntent(context.Background(), 500, "INR", "receipt_x")
	require.NoError(t, err)
	assert.Contains(t, in.ID, "order_mock_")
	assert.Equal(t, int64(500), in.Amount)
}

func TestCreateIntent_ClientErrorsKeepBreakerClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum amount allowed"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for i := 0; i < 6; i++ {
		_, err := c.CreateIntent(context.Background(), 1<<40, "INR", "r")
		require.ErrorIs(t, err, ErrUnavailable)
		assert.NotContains(t, err.Error(), "circuit open")
	}
	assert.Equal(t, "closed", c.breaker.State())
}

func TestCreateIntent_ServerErrorsOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for i := 0; i < 3; i++ {
		_, _ = c.CreateIntent(context.Background(), 100, "INR", "r")
	}
	assert.Equal(t, "open", c.breaker.State())
	_, err := c.CreateIntent(context.Background(), 100, "INR", "r")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "circuit open")
}

func TestFetchIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/v1/orders/order_abc" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "order_abc", "amount": 64800, "amount_paid": 64800, "currency": "INR", "receipt": "receipt_1",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	in, err := c.FetchIntent(context.Background(), "order_abc")
	require.NoError(t, err)
	assert.Equal(t, int64(64800), in.Amount)

	_, err = c.FetchIntent(context.Background(), "order_missing")
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestFetchIntent_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchIntent(context.Background(), "order_abc")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrIntentNotFound)
}

func TestFetchIntent_MockRemembersMinted(t *testing.T) {
	c, err := NewClient(Config{KeySecret: "s", Mock: true}, nil)
	require.NoError(t, err)
	in, err := c.CreateIntent(context.Background(), 34900, "INR", "r")
	require.NoError(t, err)

	got, err := c.FetchIntent(context.Background(), in.ID)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = c.FetchIntent(context.Background(), "order_mock_unknown")
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{KeyID: "k"}, nil)
	assert.Error(t, err)
	_, err = NewClient(Config{KeySecret: "s"}, nil)
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	c, err := NewClient(Config{KeySecret: "topsecret", Mock: true}, nil)
	require.NoError(t, err)

	m := hmac.New(sha256.New, []byte("topsecret"))
	m.Write([]byte("order_1|pay_1"))
	sig := hex.EncodeToString(m.Sum(nil))

	assert.Equal(t, sig, c.Sign("order_1", "pay_1"))
	assert.True(t, c.VerifySignature("order_1", "pay_1", sig))
	assert.False(t, c.VerifySignature("order_1", "pay_2", sig))
	assert.False(t, c.VerifySignature("order_1", "pay_1", ""))

	other, err := NewClient(Config{KeySecret: "wrong", Mock: true}, nil)
	require.NoError(t, err)
	assert.False(t, c.VerifySignature("order_1", "pay_1", other.Sign("order_1", "pay_1")))
}

func TestVerifySignature_RejectsEverySingleBitFlip(t *testing.T) {
	c, err := NewClient(Config{KeySecret: "topsecret", Mock: true}, nil)
	require.NoError(t, err)
	sig := []byte(c.Sign("order_1", "pay_1"))
	for i := range sig {
		for bit := 0; bit < 8; bit++ {
			mut := append([]byte(nil), sig...)
			mut[i] ^= 1 << bit
			require.False(t, c.VerifySignature("order_1", "pay_1", string(mut)), "byte %d bit %d", i, bit)
		}
	}
}
