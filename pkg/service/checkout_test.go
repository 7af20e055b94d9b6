package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/example/freshcart/pkg/checkout"
	"github.com/example/freshcart/pkg/ledger"
	"github.com/example/freshcart/pkg/models"
	"github.com/example/freshcart/pkg/notify"
	"github.com/example/freshcart/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(msg *notify.OrderPlaced) {
	m.Called(msg)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderPlaced(ctx context.Context, order *models.Order) error {
	return m.Called(ctx, order).Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) CacheOrder(ctx context.Context, order *models.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockCache) GetCachedOrder(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

type fixture struct {
	store      *repository.MemoryStore
	dispatcher *MockDispatcher
	publisher  *MockPublisher
	cache      *MockCache
	logs       *observer.ObservedLogs
	svc        *CheckoutService
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	require.NoError(t, store.PutProduct(&models.Product{
		ID: "p-onion", Name: "Onion", Unit: "kg", PricePerUnit: 40, StockQuantity: 10,
	}))

	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	f := &fixture{
		store:      store,
		dispatcher: new(MockDispatcher),
		publisher:  new(MockPublisher),
		cache:      new(MockCache),
		logs:       logs,
	}
	f.svc = NewCheckoutService(checkout.NewOrchestrator(store, logger), store, f.dispatcher, f.publisher, f.cache, opts, logger)
	return f
}

func validRequest() checkout.Request {
	return checkout.Request{
		CustomerID:    "u-1",
		Lines:         []models.CartLine{{ProductID: "p-onion", Quantity: 2}},
		Delivery:      models.DeliveryInfo{Name: "Asha", Phone: "98000", Address: "12 Lake Road", Area: "North"},
		TotalAmount:   80,
		AgreedToTerms: true,
	}
}

func TestPlaceOrderRunsSideEffectsAfterCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{})
	f.dispatcher.On("Dispatch", &notify.OrderPlaced{OrderID: "ORDER-0001", Total: 80, CustomerName: "Asha"}).Return()
	f.publisher.On("PublishOrderPlaced", mock.Anything, mock.MatchedBy(func(o *models.Order) bool { return o.ID == "ORDER-0001" })).Return(nil)
	f.cache.On("CacheOrder", mock.Anything, mock.Anything).Return(nil)

	order, err := f.svc.PlaceOrder(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "ORDER-0001", order.ID)

	f.dispatcher.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
	f.cache.AssertExpectations(t)
	assert.Equal(t, 1, f.logs.FilterMessage("Order committed").Len())
}

func TestPlaceOrderSideEffectFailuresDoNotFailOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{})
	f.dispatcher.On("Dispatch", mock.Anything).Return()
	f.publisher.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.cache.On("CacheOrder", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	order, err := f.svc.PlaceOrder(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, order)

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to publish order event").Len())
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to cache order").Len())
}

func TestPlaceOrderCommitFailureSkipsSideEffects(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{})
	req := validRequest()
	req.Lines[0].Quantity = 11

	_, err := f.svc.PlaceOrder(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything)
	f.publisher.AssertNotCalled(t, "PublishOrderPlaced", mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.logs.FilterMessage("Checkout rejected").Len())
}

func TestPlaceOrderAbortedIsLogged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{})
	f.store.FailNextCommit(errors.New("primary stepped down"))

	_, err := f.svc.PlaceOrder(context.Background(), validRequest())
	assert.ErrorIs(t, err, checkout.ErrTransactionAborted)
	assert.Equal(t, 1, f.logs.FilterMessage("Checkout transaction aborted").Len())
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything)
}

func TestPlaceOrderUnknownCommitIsLogged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{})
	f.store.FailNextCommit(fmt.Errorf("%w: commit timed out", checkout.ErrCommitUnknown))

	_, err := f.svc.PlaceOrder(context.Background(), validRequest())
	assert.ErrorIs(t, err, checkout.ErrCommitUnknown)
	assert.False(t, checkout.IsRetryable(err))
	assert.Equal(t, 1, f.logs.FilterMessage("Checkout commit outcome unknown").Len())
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	svc := newFixture(t, Options{MinOrderValue: 50}).svc

	tests := []struct {
		name    string
		mutate  func(r *checkout.Request)
		wantErr string
	}{
		{"valid", func(r *checkout.Request) {}, ""},
		{"missing phone and area", func(r *checkout.Request) { r.Delivery.Phone = ""; r.Delivery.Area = " " }, "missing delivery phone, area"},
		{"terms not accepted", func(r *checkout.Request) { r.AgreedToTerms = false }, "terms must be accepted"},
		{"manual order skips terms", func(r *checkout.Request) { r.AgreedToTerms = false; r.IsManual = true }, ""},
		{"below minimum", func(r *checkout.Request) { r.TotalAmount = 49 }, "minimum order value is 50"},
		{"bad delivery date", func(r *checkout.Request) { r.Delivery.DeliveryDate = "14/03/2026" }, "not YYYY-MM-DD"},
		{"empty cart", func(r *checkout.Request) { r.Lines = nil }, "cart is empty"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := validRequest()
			req.Lines = append([]models.CartLine(nil), req.Lines...)
			tt.mutate(&req)
			err := svc.Validate(req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, checkout.ErrInvalidCart)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetOrderReadsThroughCache(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{})
	f.dispatcher.On("Dispatch", mock.Anything).Return()
	f.publisher.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(nil)
	f.cache.On("CacheOrder", mock.Anything, mock.Anything).Return(nil)
	placed, err := f.svc.PlaceOrder(context.Background(), validRequest())
	require.NoError(t, err)

	f.cache.On("GetCachedOrder", mock.Anything, placed.ID).Return(nil, nil).Once()
	got, err := f.svc.GetOrder(context.Background(), placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, got.ID)

	cached := &models.Order{ID: placed.ID, Status: models.StatusConfirmed}
	f.cache.On("GetCachedOrder", mock.Anything, placed.ID).Return(cached, nil).Once()
	got, err = f.svc.GetOrder(context.Background(), placed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)

	f.cache.On("GetCachedOrder", mock.Anything, "ORDER-0404").Return(nil, nil).Once()
	_, err = f.svc.GetOrder(context.Background(), "ORDER-0404")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
