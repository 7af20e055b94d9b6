package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/example/freshcart/pkg/checkout"
	"github.com/example/freshcart/pkg/config"
	"github.com/example/freshcart/pkg/models"
	"github.com/example/freshcart/pkg/repository"
	"github.com/example/freshcart/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryIdempotency mirrors the Redis key semantics in process.
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]string)}
}

func (m *memoryIdempotency) ClaimIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.keys[key]
	if !ok {
		m.keys[key] = ""
		return "", true, nil
	}
	if v == "" {
		return "", false, repository.ErrCheckoutInFlight
	}
	return v, false, nil
}

func (m *memoryIdempotency) CompleteIdempotencyKey(ctx context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

func (m *memoryIdempotency) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type testEnv struct {
	store *repository.MemoryStore
	idem  *memoryIdempotency
	gw    *Gateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repository.NewMemoryStore()
	require.NoError(t, store.PutProduct(&models.Product{
		ID: "p-onion", Name: "Onion", Unit: "kg", PricePerUnit: 40, StockQuantity: 3,
	}))
	require.NoError(t, store.PutProduct(&models.Product{
		ID: "p-milk", Name: "Milk", Unit: "pkts", StockModel: models.StockVariantCount,
		Variants: []models.Variant{{ID: "v-half", Unit: "500ml", Price: 28, Stock: 5}},
	}))

	logger := zap.NewNop()
	orch := checkout.NewOrchestrator(store, logger, checkout.WithDefaultCutCharge(10))
	svc := service.NewCheckoutService(orch, store, nil, nil, nil, service.Options{}, logger)
	idem := newMemoryIdempotency()
	return &testEnv{store: store, idem: idem, gw: NewGateway(&config.Config{}, logger, svc, idem)}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.gw.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func checkoutBody(items ...models.CartLine) checkoutRequest {
	return checkoutRequest{
		CustomerID:    "u-1",
		Items:         items,
		Delivery:      models.DeliveryInfo{Name: "Asha", Phone: "98000", Address: "12 Lake Road", Area: "North"},
		TotalAmount:   80,
		AgreedToTerms: true,
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec, body := newTestEnv(t).do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestCheckoutCreatesOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 2}), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "ORDER-0001", body["orderId"])
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, false, body["idempotent"])

	rec, body = env.do(t, http.MethodGet, "/api/v1/orders/ORDER-0001", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ORDER-0001", body["id"])
	assert.Equal(t, "COD", body["paymentMode"])
}

func TestCheckoutErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       any
		headers    map[string]string
		prepare    func(env *testEnv)
		wantStatus int
		wantCode   string
		retryable  bool
	}{
		{
			name:       "malformed json",
			body:       "not an object",
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "empty cart",
			body:       checkoutBody(),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_CART",
		},
		{
			name:       "unknown product",
			body:       checkoutBody(models.CartLine{ProductID: "p-gone", Quantity: 1}),
			wantStatus: http.StatusNotFound,
			wantCode:   "PRODUCT_NOT_FOUND",
		},
		{
			name:       "unknown variant",
			body:       checkoutBody(models.CartLine{ProductID: "p-milk", VariantID: "v-two", Quantity: 1}),
			wantStatus: http.StatusNotFound,
			wantCode:   "VARIANT_UNAVAILABLE",
		},
		{
			name:       "insufficient stock",
			body:       checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 2}, models.CartLine{ProductID: "p-onion", Quantity: 2, IsCut: true}),
			wantStatus: http.StatusConflict,
			wantCode:   "INSUFFICIENT_STOCK",
		},
		{
			name:       "store failure",
			body:       checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1}),
			prepare:    func(env *testEnv) { env.store.FailNextCommit(errors.New("no primary")) },
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "ABORTED",
			retryable:  true,
		},
		{
			name:       "conflict",
			body:       checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1}),
			prepare:    func(env *testEnv) { env.store.FailNextCommit(checkout.ErrCounterConflict) },
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
			retryable:  true,
		},
		{
			name: "manual order without admin role",
			body: func() checkoutRequest {
				b := checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1})
				b.IsManual = true
				return b
			}(),
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			if tt.prepare != nil {
				tt.prepare(env)
			}
			rec, body := env.do(t, http.MethodPost, "/api/v1/checkout", tt.body, tt.headers)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, body["code"])
			if tt.retryable {
				assert.Equal(t, true, body["retryable"])
			}
			assert.Empty(t, env.store.Orders())
		})
	}
}

func TestCheckoutInsufficientStockReportsAvailable(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, body := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 5}), nil)
	assert.Equal(t, "Onion", body["item"])
	assert.Equal(t, 3.0, body["available"])
	assert.Equal(t, 5.0, body["requested"])
}

func TestManualOrderByAdmin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	b := checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1})
	b.IsManual = true
	b.AgreedToTerms = false
	rec, body := env.do(t, http.MethodPost, "/api/v1/checkout", b, map[string]string{roleHeader: "admin"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "CONFIRMED", body["status"])
}

func TestManualOrderRequiresAdminRole(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	b := checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1})
	b.IsManual = true
	for _, headers := range []map[string]string{nil, {roleHeader: "customer"}} {
		rec, body := env.do(t, http.MethodPost, "/api/v1/checkout", b, headers)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "FORBIDDEN", body["code"])
	}
	assert.Empty(t, env.store.Orders())
}

func TestCheckoutIdempotencyKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	headers := map[string]string{idempotencyHeader: "cart-123"}
	b := checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1})

	rec, body := env.do(t, http.MethodPost, "/api/v1/checkout", b, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := body["orderId"]

	rec, body = env.do(t, http.MethodPost, "/api/v1/checkout", b, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, body["orderId"])
	assert.Equal(t, true, body["idempotent"])
	assert.Len(t, env.store.Orders(), 1)

	onion, _ := env.store.Product("p-onion")
	assert.Equal(t, 2.0, onion.StockQuantity)
}

func TestCheckoutIdempotencyKeyReleasedOnFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	headers := map[string]string{idempotencyHeader: "cart-9"}

	env.store.FailNextCommit(checkout.ErrCounterConflict)
	rec, _ := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1}), headers)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1}), headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ORDER-0001", body["orderId"])
}

func TestCheckoutIdempotencyKeyInFlight(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, _, err := env.idem.ClaimIdempotencyKey(context.Background(), idempotencyScope("u-1", "cart-7"))
	require.NoError(t, err)

	rec, body := env.do(t, http.MethodPost, "/api/v1/checkout",
		checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1}),
		map[string]string{idempotencyHeader: "cart-7"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IN_PROGRESS", body["code"])
	assert.Empty(t, env.store.Orders())
}

func TestCheckoutUnknownCommitKeepsIdempotencyClaim(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	headers := map[string]string{idempotencyHeader: "cart-11"}
	env.store.FailNextCommit(fmt.Errorf("%w: commit timed out", checkout.ErrCommitUnknown))

	rec, body := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1}), headers)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, "COMMIT_UNKNOWN", body["code"])
	assert.Equal(t, false, body["retryable"])

	rec, body = env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1}), headers)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IN_PROGRESS", body["code"])
	assert.Empty(t, env.store.Orders())
}

func TestIdempotencyScopeIsUnambiguous(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, idempotencyScope("a:b", "c"), idempotencyScope("a", "b:c"))
	assert.Equal(t, idempotencyScope("u-1", "k"), idempotencyScope("u-1", "k"))
}

func TestCheckoutIdempotencyKeyNotSharedAcrossCustomers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	first := checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1})
	first.CustomerID = "a:b"
	rec, _ := env.do(t, http.MethodPost, "/api/v1/checkout", first, map[string]string{idempotencyHeader: "c"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	second := checkoutBody(models.CartLine{ProductID: "p-onion", Quantity: 1})
	second.CustomerID = "a"
	rec, body := env.do(t, http.MethodPost, "/api/v1/checkout", second, map[string]string{idempotencyHeader: "b:c"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "ORDER-0002", body["orderId"])
	assert.Equal(t, false, body["idempotent"])
}

func TestGetOrderRejectsMalformedID(t *testing.T) {
	t.Parallel()

	rec, body := newTestEnv(t).do(t, http.MethodGet, "/api/v1/orders/not-an-order", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ORDER_ID", body["code"])
}

func TestGetOrderNotFound(t *testing.T) {
	t.Parallel()

	rec, body := newTestEnv(t).do(t, http.MethodGet, "/api/v1/orders/ORDER-0404", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}
