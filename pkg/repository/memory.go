package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/freshcart/pkg/checkout"
	"github.com/example/freshcart/pkg/ledger"
	"github.com/example/freshcart/pkg/models"
)

const absent int64 = -1

// MemoryStore is an in-process implementation of every store the service
// needs. Transactions buffer their writes and validate the versions of
// everything they read when they commit.
type MemoryStore struct {
	mu            sync.Mutex
	counter       *models.Counter
	products      map[string]*models.Product
	orders        map[string]*models.Order
	notifications []models.Notification
	users         map[string]models.User
	subscriptions map[string]models.Subscription
	productReads  map[string]int
	commitErr     error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:      make(map[string]*models.Product),
		orders:        make(map[string]*models.Order),
		users:         make(map[string]models.User),
		subscriptions: make(map[string]models.Subscription),
		productReads:  make(map[string]int),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// RunInTransaction implements checkout.Store.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	tx := &memoryTx{
		store:           s,
		counterVersion:  absent,
		productVersions: make(map[string]int64),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitErr != nil {
		err := s.commitErr
		s.commitErr = nil
		return err
	}

	if tx.counterRead && s.counterVersionLocked() != tx.counterVersion {
		return fmt.Errorf("%w: counter changed since read", checkout.ErrCounterConflict)
	}
	for id, v := range tx.productVersions {
		if s.productVersionLocked(id) != v {
			return fmt.Errorf("%w: product %s changed since read", checkout.ErrCounterConflict, id)
		}
	}
	for _, p := range tx.products {
		if _, read := tx.productVersions[p.ID]; !read && s.productVersionLocked(p.ID) != p.Version {
			return fmt.Errorf("%w: product %s changed since read", checkout.ErrCounterConflict, p.ID)
		}
	}
	for _, o := range tx.orders {
		if _, exists := s.orders[o.ID]; exists {
			return fmt.Errorf("%w: %s", checkout.ErrDuplicateOrder, o.ID)
		}
	}

	if tx.counter != nil {
		c := *tx.counter
		c.Version = s.counterVersionLocked() + 1
		if c.Version == 0 {
			c.Version = 1
		}
		s.counter = &c
	}
	for _, p := range tx.products {
		cp := p.Clone()
		cp.Version = s.productVersionLocked(p.ID) + 1
		if cp.Version == 0 {
			cp.Version = 1
		}
		s.products[cp.ID] = cp
	}
	for _, o := range tx.orders {
		s.orders[o.ID] = o.Clone()
	}
	return nil
}

func (s *MemoryStore) counterVersionLocked() int64 {
	if s.counter == nil {
		return absent
	}
	return s.counter.Version
}

func (s *MemoryStore) productVersionLocked(id string) int64 {
	p, ok := s.products[id]
	if !ok {
		return absent
	}
	return p.Version
}

type memoryTx struct {
	store           *MemoryStore
	counterRead     bool
	counterVersion  int64
	productVersions map[string]int64
	counter         *models.Counter
	products        []*models.Product
	orders          []*models.Order
}

func (tx *memoryTx) GetCounter(ctx context.Context) (*models.Counter, error) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tx.counterRead = true
	if s.counter == nil {
		tx.counterVersion = absent
		return nil, nil
	}
	c := *s.counter
	tx.counterVersion = c.Version
	return &c, nil
}

func (tx *memoryTx) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*models.Product, len(ids))
	for _, id := range ids {
		s.productReads[id]++
		p, ok := s.products[id]
		if !ok {
			tx.productVersions[id] = absent
			continue
		}
		tx.productVersions[id] = p.Version
		out[id] = p.Clone()
	}
	return out, nil
}

func (tx *memoryTx) PutCounter(ctx context.Context, c *models.Counter) error {
	cp := *c
	tx.counter = &cp
	return nil
}

func (tx *memoryTx) PutProduct(ctx context.Context, p *models.Product) error {
	tx.products = append(tx.products, p.Clone())
	return nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, o *models.Order) error {
	for _, pending := range tx.orders {
		if pending.ID == o.ID {
			return fmt.Errorf("%w: %s", checkout.ErrDuplicateOrder, o.ID)
		}
	}
	tx.orders = append(tx.orders, o.Clone())
	return nil
}

// FailNextCommit makes the next commit return err without applying writes.
func (s *MemoryStore) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// PutProduct stores a catalog document outside any transaction.
func (s *MemoryStore) PutProduct(p *models.Product) error {
	if err := ledger.ValidateProduct(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := p.Clone()
	cp.Version = s.productVersionLocked(p.ID) + 1
	if cp.Version == 0 {
		cp.Version = 1
	}
	s.products[cp.ID] = cp
	return nil
}

func (s *MemoryStore) Product(id string) (*models.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// ProductReads counts how often a product was read inside transactions.
func (s *MemoryStore) ProductReads(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productReads[id]
}

// SetCounter seeds the order counter.
func (s *MemoryStore) SetCounter(lastID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.counterVersionLocked() + 1
	if version == 0 {
		version = 1
	}
	s.counter = &models.Counter{ID: models.OrderCounterID, LastID: lastID, Version: version}
}

func (s *MemoryStore) Counter() *models.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counter == nil {
		return nil
	}
	c := *s.counter
	return &c
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o.Clone(), nil
}

// Orders returns every stored order sorted by id.
func (s *MemoryStore) Orders() []*models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (s *MemoryStore) ListAdmins(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var admins []models.User
	for _, u := range s.users {
		if u.Role == models.RoleAdmin {
			admins = append(admins, u)
		}
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].ID < admins[j].ID })
	return admins, nil
}

func (s *MemoryStore) InsertNotifications(ctx context.Context, notifications []models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notifications...)
	return nil
}

func (s *MemoryStore) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

func (s *MemoryStore) PutSubscription(sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID] = sub
}

func (s *MemoryStore) ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Subscription
	for _, sub := range s.subscriptions {
		if sub.IsActive {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) HasSubscriptionOrder(ctx context.Context, subscriptionID, deliveryDate string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.SubscriptionID == subscriptionID && o.DeliveryDate == deliveryDate {
			return true, nil
		}
	}
	return false, nil
}
