package gateway

import (
	"errors"
	"net/http"

	"github.com/example/freshcart/pkg/checkout"
	"github.com/example/freshcart/pkg/ledger"
	"github.com/example/freshcart/pkg/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps engine errors onto HTTP responses. Conflicts and aborted
// transactions are marked retryable because nothing was committed. An
// unknown commit outcome is not.
func (g *Gateway) writeError(c *gin.Context, err error) {
	var se *ledger.StockError
	switch {
	case errors.Is(err, checkout.ErrInvalidCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_CART"})

	case errors.As(err, &se):
		body := gin.H{"error": err.Error(), "item": se.Item(), "productId": se.ProductID}
		if se.VariantID != "" {
			body["variantId"] = se.VariantID
		}
		switch {
		case errors.Is(se, ledger.ErrInsufficientStock):
			body["code"] = "INSUFFICIENT_STOCK"
			body["requested"] = se.Requested
			body["available"] = se.Available
			c.JSON(http.StatusConflict, body)
		case errors.Is(se, ledger.ErrVariantUnavailable):
			body["code"] = "VARIANT_UNAVAILABLE"
			c.JSON(http.StatusNotFound, body)
		default:
			body["code"] = "PRODUCT_NOT_FOUND"
			c.JSON(http.StatusNotFound, body)
		}

	case errors.Is(err, checkout.ErrCommitUnknown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "order status unknown, check your orders before trying again", "code": "COMMIT_UNKNOWN", "retryable": false})

	case errors.Is(err, checkout.ErrCounterConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "another checkout completed first, please retry", "code": "CONFLICT", "retryable": true})

	case errors.Is(err, repository.ErrCheckoutInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "IN_PROGRESS", "retryable": true})

	case errors.Is(err, checkout.ErrTransactionAborted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "checkout could not be completed, please retry", "code": "ABORTED", "retryable": true})

	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "NOT_FOUND"})

	default:
		g.logger.Error("Unhandled request error", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "INTERNAL"})
	}
}
