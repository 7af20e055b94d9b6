package checkout

import (
	"context"

	"github.com/example/freshcart/pkg/models"
)

// Store runs a function inside an optimistic transaction. Writes issued
// through the Tx become visible only if RunInTransaction returns nil. If
// anything read through the Tx was changed by another committed transaction
// the store fails the attempt with ErrCounterConflict. Stores never retry.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the read and write surface of one transaction attempt.
type Tx interface {
	// GetCounter returns nil, nil when the counter was never written.
	GetCounter(ctx context.Context) (*models.Counter, error)
	// GetProducts reads all ids in one call. Absent ids are missing from
	// the result map.
	GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error)
	PutCounter(ctx context.Context, c *models.Counter) error
	PutProduct(ctx context.Context, p *models.Product) error
	// InsertOrder fails with ErrDuplicateOrder if the id already exists.
	InsertOrder(ctx context.Context, o *models.Order) error
}
