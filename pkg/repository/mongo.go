package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/freshcart/pkg/checkout"
	"github.com/example/freshcart/pkg/config"
	"github.com/example/freshcart/pkg/ledger"
	"github.com/example/freshcart/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	productsCollection      = "products"
	countersCollection      = "orderCounters"
	ordersCollection        = "orders"
	notificationsCollection = "notifications"
	subscriptionsCollection = "subscriptions"

	writeConflictCode = 112

	transientTransactionLabel = "TransientTransactionError"
	unknownCommitResultLabel  = "UnknownTransactionCommitResult"

	maxCommitAttempts = 3
)

// MongoRepository stores the catalog, the order counter and orders in
// MongoDB. Checkout transactions need a replica set.
type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.MongoDBConfig
}

func NewMongoRepository(cfg *config.MongoDBConfig) (*MongoRepository, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the secondary indexes lookups rely on.
func (m *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.database.Collection(ordersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "subscriptionId", Value: 1}, {Key: "deliveryDate", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create order indexes: %w", err)
	}
	_, err = m.database.Collection(notificationsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create notification indexes: %w", err)
	}
	return nil
}

// RunInTransaction implements checkout.Store. The transaction is driven by
// hand instead of through WithTransaction so the driver does not retry on
// its own; a lost race is reported as checkout.ErrCounterConflict.
func (m *MongoRepository) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	sess, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sess.StartTransaction(opts); err != nil {
			return fmt.Errorf("start transaction: %w", err)
		}

		tx := &mongoTx{repo: m, productVersions: make(map[string]int64)}
		if err := fn(sc, tx); err != nil {
			_ = sess.AbortTransaction(context.Background())
			return classifyMongoError(err)
		}
		if err := commitWithRetry(sc, sess.CommitTransaction); err != nil {
			return classifyMongoError(err)
		}
		return nil
	})
}

// commitWithRetry re-sends commitTransaction while the server reports that
// the outcome is unknown. The transaction body is not run again. If the
// outcome is still unknown after the last attempt the error matches
// checkout.ErrCommitUnknown.
func commitWithRetry(ctx context.Context, commit func(context.Context) error) error {
	var err error
	for i := 0; i < maxCommitAttempts; i++ {
		err = commit(ctx)
		if err == nil || !hasErrorLabel(err, unknownCommitResultLabel) {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %w", checkout.ErrCommitUnknown, err)
}

func hasErrorLabel(err error, label string) bool {
	var serr mongo.ServerError
	return errors.As(err, &serr) && serr.HasErrorLabel(label)
}

// classifyMongoError turns write conflicts into checkout.ErrCounterConflict
// and an unresolved commit into checkout.ErrCommitUnknown. Duplicate order
// keys and stock errors pass through.
func classifyMongoError(err error) error {
	if errors.Is(err, checkout.ErrCounterConflict) || errors.Is(err, checkout.ErrDuplicateOrder) ||
		errors.Is(err, checkout.ErrCommitUnknown) {
		return err
	}
	var se *ledger.StockError
	if errors.As(err, &se) {
		return err
	}
	var serr mongo.ServerError
	if errors.As(err, &serr) {
		switch {
		case serr.HasErrorLabel(unknownCommitResultLabel):
			return fmt.Errorf("%w: %w", checkout.ErrCommitUnknown, err)
		case serr.HasErrorCode(writeConflictCode) || serr.HasErrorLabel(transientTransactionLabel):
			return fmt.Errorf("%w: %w", checkout.ErrCounterConflict, err)
		}
	}
	return err
}

type mongoTx struct {
	repo            *MongoRepository
	counterRead     bool
	counterExists   bool
	counterVersion  int64
	productVersions map[string]int64
}

func (tx *mongoTx) collection(name string) *mongo.Collection {
	return tx.repo.database.Collection(name)
}

func (tx *mongoTx) GetCounter(ctx context.Context) (*models.Counter, error) {
	var c models.Counter
	err := tx.collection(countersCollection).FindOne(ctx, bson.M{"_id": models.OrderCounterID}).Decode(&c)
	tx.counterRead = true
	if errors.Is(err, mongo.ErrNoDocuments) {
		tx.counterExists = false
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tx.counterExists = true
	tx.counterVersion = c.Version
	return &c, nil
}

func (tx *mongoTx) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	cursor, err := tx.collection(productsCollection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []*models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	out := make(map[string]*models.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
		tx.productVersions[p.ID] = p.Version
	}
	return out, nil
}

func (tx *mongoTx) PutCounter(ctx context.Context, c *models.Counter) error {
	coll := tx.collection(countersCollection)
	if tx.counterRead && !tx.counterExists {
		doc := models.Counter{ID: models.OrderCounterID, LastID: c.LastID, Version: 1}
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: counter created concurrently", checkout.ErrCounterConflict)
			}
			return err
		}
		return nil
	}

	expected := c.Version
	if tx.counterRead {
		expected = tx.counterVersion
	}
	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": models.OrderCounterID, "version": expected},
		bson.M{"$set": bson.M{"lastId": c.LastID, "version": expected + 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: counter changed since read", checkout.ErrCounterConflict)
	}
	return nil
}

func (tx *mongoTx) PutProduct(ctx context.Context, p *models.Product) error {
	expected, ok := tx.productVersions[p.ID]
	if !ok {
		expected = p.Version
	}
	res, err := tx.collection(productsCollection).UpdateOne(ctx,
		bson.M{"_id": p.ID, "version": expected},
		bson.M{"$set": bson.M{
			"stockQuantity": p.StockQuantity,
			"variants":      p.Variants,
			"version":       expected + 1,
			"updatedAt":     time.Now().UTC(),
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: product %s changed since read", checkout.ErrCounterConflict, p.ID)
	}
	return nil
}

func (tx *mongoTx) InsertOrder(ctx context.Context, o *models.Order) error {
	if _, err := tx.collection(ordersCollection).InsertOne(ctx, o); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", checkout.ErrDuplicateOrder, o.ID)
		}
		return err
	}
	return nil
}

// UpsertProduct writes a catalog document after validating it, bumping its
// version so in-flight checkouts that read the old one conflict.
func (m *MongoRepository) UpsertProduct(ctx context.Context, p *models.Product) error {
	if err := ledger.ValidateProduct(p); err != nil {
		return err
	}
	doc := p.Clone()
	doc.UpdatedAt = time.Now().UTC()
	_, err := m.database.Collection(productsCollection).UpdateOne(ctx,
		bson.M{"_id": p.ID},
		bson.M{
			"$set": bson.M{
				"name":          doc.Name,
				"unit":          doc.Unit,
				"pricePerUnit":  doc.PricePerUnit,
				"cutCharge":     doc.CutCharge,
				"stockModel":    doc.StockModel,
				"stockQuantity": doc.StockQuantity,
				"variants":      doc.Variants,
				"updatedAt":     doc.UpdatedAt,
			},
			"$inc": bson.M{"version": 1},
		},
		options.Update().SetUpsert(true))
	return err
}

func (m *MongoRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := m.database.Collection(ordersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (m *MongoRepository) InsertNotifications(ctx context.Context, notifications []models.Notification) error {
	docs := make([]interface{}, 0, len(notifications))
	for _, n := range notifications {
		docs = append(docs, n)
	}
	_, err := m.database.Collection(notificationsCollection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

func (m *MongoRepository) ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	cursor, err := m.database.Collection(subscriptionsCollection).Find(ctx, bson.M{"isActive": true},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var subs []models.Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (m *MongoRepository) HasSubscriptionOrder(ctx context.Context, subscriptionID, deliveryDate string) (bool, error) {
	n, err := m.database.Collection(ordersCollection).CountDocuments(ctx,
		bson.M{"subscriptionId": subscriptionID, "deliveryDate": deliveryDate},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
