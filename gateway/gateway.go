package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/example/freshcart/pkg/checkout"
	"github.com/example/freshcart/pkg/config"
	"github.com/example/freshcart/pkg/models"
	"github.com/example/freshcart/pkg/sequence"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	idempotencyHeader = "Idempotency-Key"
	roleHeader        = "X-User-Role"
)

type CheckoutService interface {
	PlaceOrder(ctx context.Context, req checkout.Request) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string) (orderID string, claimed bool, err error)
	CompleteIdempotencyKey(ctx context.Context, key, orderID string) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

type Gateway struct {
	config   *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	checkout CheckoutService
	idem     IdempotencyStore
	server   *http.Server
}

// NewGateway builds the HTTP edge. idem may be nil, in which case the
// Idempotency-Key header is ignored.
func NewGateway(cfg *config.Config, logger *zap.Logger, svc CheckoutService, idem IdempotencyStore) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	g := &Gateway{
		config:   cfg,
		logger:   logger,
		router:   router,
		checkout: svc,
		idem:     idem,
	}
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := g.router.Group("/api/v1")
	{
		v1.POST("/checkout", g.placeOrder)
		v1.GET("/orders/:id", g.getOrder)
	}
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	addr := fmt.Sprintf("%s:%d", g.config.Gateway.Host, g.config.Gateway.Port)
	g.server = &http.Server{
		Addr:              addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.logger.Info("Gateway starting", zap.String("address", addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

type checkoutRequest struct {
	CustomerID    string              `json:"customerId"`
	Items         []models.CartLine   `json:"items"`
	Delivery      models.DeliveryInfo `json:"delivery"`
	TotalAmount   float64             `json:"totalAmount"`
	AgreedToTerms bool                `json:"agreedToTerms"`
	IsManual      bool                `json:"isManual"`
}

type checkoutResponse struct {
	OrderID     string             `json:"orderId"`
	Status      models.OrderStatus `json:"status,omitempty"`
	TotalAmount float64            `json:"totalAmount,omitempty"`
	CreatedAt   *time.Time         `json:"createdAt,omitempty"`
	Idempotent  bool               `json:"idempotent"`
}

func (g *Gateway) placeOrder(c *gin.Context) {
	var body checkoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
		return
	}
	// The role header is not authenticated here. The auth layer in front of
	// the gateway must set it and strip any client-supplied value.
	if body.IsManual && c.GetHeader(roleHeader) != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "manual orders require an admin", "code": "FORBIDDEN"})
		return
	}

	ctx := c.Request.Context()
	key := c.GetHeader(idempotencyHeader)
	claimed := false
	if key != "" && g.idem != nil {
		key = idempotencyScope(body.CustomerID, key)
		orderID, ok, err := g.idem.ClaimIdempotencyKey(ctx, key)
		if err != nil {
			g.writeError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusOK, checkoutResponse{OrderID: orderID, Idempotent: true})
			return
		}
		claimed = true
	}

	order, err := g.checkout.PlaceOrder(ctx, checkout.Request{
		CustomerID:    body.CustomerID,
		Lines:         body.Items,
		Delivery:      body.Delivery,
		TotalAmount:   body.TotalAmount,
		AgreedToTerms: body.AgreedToTerms,
		OrderType:     models.OrderTypeOneTime,
		IsManual:      body.IsManual,
	})
	if err != nil {
		// An unknown commit may have produced the order, so the claim stays
		// pending until it expires and a resubmission cannot create a second one.
		if claimed && !errors.Is(err, checkout.ErrCommitUnknown) {
			if rerr := g.idem.ReleaseIdempotencyKey(context.WithoutCancel(ctx), key); rerr != nil {
				g.logger.Warn("Failed to release idempotency key", zap.Error(rerr))
			}
		}
		g.writeError(c, err)
		return
	}
	if claimed {
		if cerr := g.idem.CompleteIdempotencyKey(context.WithoutCancel(ctx), key, order.ID); cerr != nil {
			g.logger.Warn("Failed to record idempotency key", zap.String("order_id", order.ID), zap.Error(cerr))
		}
	}

	c.JSON(http.StatusCreated, checkoutResponse{
		OrderID:     order.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		CreatedAt:   &order.CreatedAt,
	})
}

// idempotencyScope ties a client key to its customer. The length prefix
// keeps the pair unambiguous whatever characters either part contains.
func idempotencyScope(customerID, key string) string {
	return strconv.Itoa(len(customerID)) + ":" + customerID + ":" + key
}

func (g *Gateway) getOrder(c *gin.Context) {
	id := c.Param("id")
	if _, err := sequence.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_ORDER_ID"})
		return
	}
	order, err := g.checkout.GetOrder(c.Request.Context(), id)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
