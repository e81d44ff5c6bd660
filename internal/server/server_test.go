package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"craftshop-backend/internal/config"
	"craftshop-backend/internal/domain"
	"craftshop-backend/internal/infrastructure/razorpay"
	"craftshop-backend/internal/infrastructure/repo"
	"craftshop-backend/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv    *Server
	auth   *usecase.AuthService
	gw     *razorpay.Client
	orders *usecase.OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	products := repo.NewMemoryProductRepo()
	require.NoError(t, products.PutProduct(context.Background(), &domain.Product{
		ID: "P1", Name: "Clay Vase", Price: decimal.NewFromInt(299), CreatedAt: time.Now(),
	}))
	gw, err := razorpay.NewClient(razorpay.Config{KeySecret: "secret", Mock: true}, nil)
	require.NoError(t, err)
	auth := &usecase.AuthService{JWTSecret: "jwt", AdminEmail: "owner@shop.in", AdminPassword: "pw"}
	catalog := &usecase.CatalogService{Repo: products}
	fee := decimal.NewFromInt(50)
	orders := &usecase.OrderService{
		Orders:      repo.NewMemoryOrderRepo(),
		Products:    products,
		Gateway:     gw,
		Notify:      usecase.NewDispatcher(nil, time.Second),
		DeliveryFee: fee,
	}
	srv := New(config.Config{Env: "dev"}, Deps{
		Auth:    auth,
		Catalog: catalog,
		Cart:    &usecase.CartService{Catalog: catalog, DeliveryFee: fee},
		Orders:  orders,
		KeyID:   "rzp_test",
	})
	return &testEnv{srv: srv, auth: auth, gw: gw, orders: orders}
}

func (e *testEnv) token(t *testing.T, c domain.Caller) string {
	t.Helper()
	tok, err := e.auth.Issue(c, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

type envelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

var orderData = map[string]any{
	"items": []map[string]any{{"productId": "P1", "quantity": 2}},
	"shippingAddress": map[string]string{
		"firstName": "Asha", "phone": "+919800000000", "street": "12 Loom Lane",
		"city": "Jaipur", "state": "RJ", "zipcode": "302001",
	},
}

type orderResp struct {
	Success bool         `json:"success"`
	Order   domain.Order `json:"order"`
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestOrderRoutesRequireToken(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/order/user", nil)
	req.Header.Set("X-Request-Id", "req-1")
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	env := decodeErr(t, w)
	assert.Equal(t, "Unauthorized", env.Error.Code)
	assert.Equal(t, "req-1", env.Error.RequestID)
}

func TestTokenHeaderAccepted(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/order/user", nil)
	req.Header.Set("token", e.token(t, domain.Caller{UserID: "u1"}))
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPlaceCODFlow(t *testing.T) {
	e := newTestEnv(t)
	user := e.token(t, domain.Caller{UserID: "u1"})
	admin := e.token(t, domain.Caller{UserID: "admin", Role: domain.RoleAdmin})

	w := e.do(t, http.MethodPost, "/api/order/place", user, orderData)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var placed orderResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &placed))
	assert.True(t, decimal.NewFromInt(648).Equal(placed.Order.Amount))
	assert.Equal(t, domain.PaymentPending, placed.Order.PaymentStatus)

	id := placed.Order.ID
	w = e.do(t, http.MethodPut, "/api/order/status/"+id, user, map[string]string{"orderStatus": "Shipped"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPut, "/api/order/status/"+id, admin, map[string]string{"orderStatus": "Shipped"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodPut, "/api/order/cancel/"+id, user, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "InvalidTransition", decodeErr(t, w).Error.Code)

	other := e.token(t, domain.Caller{UserID: "u2"})
	w = e.do(t, http.MethodGet, "/api/order/user/"+id, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/order/all?page=1&pageSize=5", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Equal(t, 1, all.Total)
}

func TestRazorpayFlow(t *testing.T) {
	e := newTestEnv(t)
	user := e.token(t, domain.Caller{UserID: "u1"})

	w := e.do(t, http.MethodPost, "/api/order/create-razorpay-order", user, map[string]any{"amount": 0.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidAmount", decodeErr(t, w).Error.Code)

	w = e.do(t, http.MethodPost, "/api/order/create-razorpay-order", user, map[string]any{"amount": 648})
	require.Equal(t, http.StatusOK, w.Code)
	var intent struct {
		OrderID string `json:"orderId"`
		Amount  int64  `json:"amount"`
		KeyID   string `json:"keyId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
	assert.EqualValues(t, 64800, intent.Amount)
	assert.Equal(t, "rzp_test", intent.KeyID)

	bad := map[string]any{
		"razorpay_order_id":   intent.OrderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "00",
		"orderData":           orderData,
	}
	w = e.do(t, http.MethodPost, "/api/order/verify-razorpay-payment", user, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidSignature", decodeErr(t, w).Error.Code)

	good := map[string]any{
		"razorpay_order_id":   intent.OrderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  e.gw.Sign(intent.OrderID, "pay_1"),
		"orderData":           orderData,
	}
	w = e.do(t, http.MethodPost, "/api/order/verify-razorpay-payment", user, good)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var placed orderResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &placed))
	assert.Equal(t, domain.PaymentPaid, placed.Order.PaymentStatus)
	assert.Equal(t, "pay_1", placed.Order.GatewayPaymentID)

	w = e.do(t, http.MethodGet, "/api/order/user", user, nil)
	var mine struct {
		Orders []domain.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	assert.Len(t, mine.Orders, 1)
}

func TestRazorpayFlow_UnderpaidIntentRejected(t *testing.T) {
	e := newTestEnv(t)
	user := e.token(t, domain.Caller{UserID: "u1"})

	w := e.do(t, http.MethodPost, "/api/order/create-razorpay-order", user, map[string]any{"amount": 1})
	require.Equal(t, http.StatusOK, w.Code)
	var intent struct {
		OrderID string `json:"orderId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))

	w = e.do(t, http.MethodPost, "/api/order/verify-razorpay-payment", user, map[string]any{
		"razorpay_order_id":   intent.OrderID,
		"razorpay_payment_id": "pay_cheap",
		"razorpay_signature":  e.gw.Sign(intent.OrderID, "pay_cheap"),
		"orderData":           orderData,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "BadRequest", decodeErr(t, w).Error.Code)

	w = e.do(t, http.MethodGet, "/api/order/user", user, nil)
	var mine struct {
		Orders []domain.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	assert.Empty(t, mine.Orders)
}

func TestAllOrders_PagingIsClamped(t *testing.T) {
	e := newTestEnv(t)
	user := e.token(t, domain.Caller{UserID: "u1"})
	admin := e.token(t, domain.Caller{UserID: "admin", Role: domain.RoleAdmin})
	w := e.do(t, http.MethodPost, "/api/order/place", user, orderData)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	type page struct {
		Orders   []domain.Order `json:"orders"`
		Total    int            `json:"total"`
		Page     int            `json:"page"`
		PageSize int            `json:"pageSize"`
	}
	cases := map[string]struct {
		query    string
		page     int
		pageSize int
		orders   int
	}{
		"huge page size": {"page=3&pageSize=4611686018427387904", 3, 100, 0},
		"huge page":      {"page=9223372036854775807&pageSize=2", 9223372036854775807, 2, 0},
		"garbage":        {"page=x&pageSize=-4", 1, 20, 1},
		"defaults":       {"", 1, 20, 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := e.do(t, http.MethodGet, "/api/order/all?"+tc.query, admin, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var got page
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, 1, got.Total)
			assert.Equal(t, tc.page, got.Page)
			assert.Equal(t, tc.pageSize, got.PageSize)
			assert.Len(t, got.Orders, tc.orders)
		})
	}
}

func TestProductAdminAndQuote(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/user/admin", "", map[string]string{"email": "owner@shop.in", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	add := map[string]any{
		"name": "Woven Basket", "description": "Jute", "price": "149.50",
		"category": "Home", "images": []string{"https://cdn.example/b.jpg"},
	}
	user := e.token(t, domain.Caller{UserID: "u1"})
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/product/add", user, add).Code)
	w = e.do(t, http.MethodPost, "/api/product/add", login.Token, add)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/cart/quote", "", map[string]any{"items": map[string]int{"P1": 2, "gone": 1}})
	require.Equal(t, http.StatusOK, w.Code)
	var q usecase.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	assert.True(t, decimal.NewFromInt(648).Equal(q.Total))
	assert.Equal(t, []string{"gone"}, q.Pruned)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/product/missing", "", nil).Code)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{usecase.ErrInvalidAmount, http.StatusBadRequest},
		{usecase.ErrBadRequest("x"), http.StatusBadRequest},
		{usecase.ErrInvalidSignature, http.StatusBadRequest},
		{usecase.ErrUnauthorized, http.StatusUnauthorized},
		{usecase.ErrForbidden, http.StatusForbidden},
		{usecase.ErrNotFound("order"), http.StatusNotFound},
		{usecase.ErrInvalidTransition, http.StatusConflict},
		{usecase.ErrConflict("x"), http.StatusConflict},
		{usecase.ErrGatewayUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusOf(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}
