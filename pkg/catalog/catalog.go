// Package catalog loads product documents into the order store.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/example/freshcart/pkg/ledger"
	"github.com/example/freshcart/pkg/models"
	"go.uber.org/zap"
)

// Writer persists one catalog document. Implementations validate the
// product and bump its version.
type Writer interface {
	UpsertProduct(ctx context.Context, p *models.Product) error
}

type Report struct {
	Imported int
	Rejected []string
}

// Import reads a JSON array of products and upserts each one. Products the
// write guard rejects are skipped and listed in the report. Any other write
// error stops the import.
func Import(ctx context.Context, w Writer, r io.Reader, logger *zap.Logger) (*Report, error) {
	var products []*models.Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	report := &Report{}
	for _, p := range products {
		if p == nil {
			continue
		}
		err := w.UpsertProduct(ctx, p)
		switch {
		case err == nil:
			report.Imported++
		case errors.Is(err, ledger.ErrInvalidProduct):
			logger.Warn("Rejected catalog product", zap.String("product_id", p.ID), zap.Error(err))
			report.Rejected = append(report.Rejected, p.ID)
		default:
			return report, fmt.Errorf("failed to write product %s: %w", p.ID, err)
		}
	}

	logger.Info("Catalog imported",
		zap.Int("imported", report.Imported),
		zap.Int("rejected", len(report.Rejected)))
	return report, nil
}
