package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/freshcart/pkg/checkout"
	"github.com/example/freshcart/pkg/ledger"
	"github.com/example/freshcart/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	require.NoError(t, s.PutProduct(&models.Product{ID: "p-1", Name: "Onion", Unit: "kg", StockQuantity: 5}))
	return s
}

func TestMemoryStoreCommitsBufferedWrites(t *testing.T) {
	t.Parallel()

	s := seededMemoryStore(t)
	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx checkout.Tx) error {
		c, err := tx.GetCounter(ctx)
		require.NoError(t, err)
		assert.Nil(t, c)

		products, err := tx.GetProducts(ctx, []string{"p-1", "p-missing"})
		require.NoError(t, err)
		require.Len(t, products, 1)

		p := products["p-1"]
		p.StockQuantity = 4
		require.NoError(t, tx.PutProduct(ctx, p))
		require.NoError(t, tx.PutCounter(ctx, &models.Counter{ID: models.OrderCounterID, LastID: 1}))
		require.NoError(t, tx.InsertOrder(ctx, &models.Order{ID: "ORDER-0001"}))

		// Nothing is visible before commit.
		visible, _ := s.Product("p-1")
		assert.Equal(t, 5.0, visible.StockQuantity)
		assert.Nil(t, s.Counter())
		return nil
	})
	require.NoError(t, err)

	p, _ := s.Product("p-1")
	assert.Equal(t, 4.0, p.StockQuantity)
	assert.Equal(t, int64(2), p.Version)
	assert.Equal(t, int64(1), s.Counter().LastID)
	assert.Len(t, s.Orders(), 1)
}

func TestMemoryStoreDiscardsOnError(t *testing.T) {
	t.Parallel()

	s := seededMemoryStore(t)
	boom := errors.New("boom")
	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx checkout.Tx) error {
		require.NoError(t, tx.PutCounter(ctx, &models.Counter{ID: models.OrderCounterID, LastID: 1}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, s.Counter())
}

func TestMemoryStoreDetectsCounterCreatedConcurrently(t *testing.T) {
	t.Parallel()

	s := seededMemoryStore(t)
	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx checkout.Tx) error {
		_, err := tx.GetCounter(ctx)
		require.NoError(t, err)
		s.SetCounter(4)
		return tx.PutCounter(ctx, &models.Counter{ID: models.OrderCounterID, LastID: 1})
	})
	assert.ErrorIs(t, err, checkout.ErrCounterConflict)
	assert.Equal(t, int64(4), s.Counter().LastID)
}

func TestMemoryStoreRejectsDuplicateOrder(t *testing.T) {
	t.Parallel()

	s := seededMemoryStore(t)
	insert := func() error {
		return s.RunInTransaction(context.Background(), func(ctx context.Context, tx checkout.Tx) error {
			return tx.InsertOrder(ctx, &models.Order{ID: "ORDER-0001"})
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), checkout.ErrDuplicateOrder)
}

func TestMemoryStoreHonoursCancellation(t *testing.T) {
	t.Parallel()

	s := seededMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	err := s.RunInTransaction(ctx, func(ctx context.Context, tx checkout.Tx) error {
		cancel()
		return tx.PutCounter(ctx, &models.Counter{ID: models.OrderCounterID, LastID: 1})
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, s.Counter())
}

func TestMemoryStorePutProductValidates(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	err := s.PutProduct(&models.Product{
		ID: "p-bad", Unit: "kg", StockModel: models.StockMasterWeight,
		Variants: []models.Variant{{ID: "v", Unit: "one tray"}},
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidProduct)
	_, ok := s.Product("p-bad")
	assert.False(t, ok)
}

func TestMemoryStoreDirectories(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	s.PutUser(models.User{ID: "a-1", Role: models.RoleAdmin})
	s.PutUser(models.User{ID: "c-1", Role: models.RoleCustomer})
	admins, err := s.ListAdmins(context.Background())
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "a-1", admins[0].ID)

	_, err = s.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	s.PutSubscription(models.Subscription{ID: "s-1", IsActive: true, StartDate: time.Now()})
	s.PutSubscription(models.Subscription{ID: "s-2", IsActive: false})
	subs, err := s.ListActiveSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, s.InsertNotifications(context.Background(), []models.Notification{{ID: "n-1"}}))
	assert.Len(t, s.Notifications(), 1)
}
