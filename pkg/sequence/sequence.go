// Package sequence mints human readable order ids from the order counter.
package sequence

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/freshcart/pkg/models"
)

const Prefix = "ORDER-"

// Next returns the counter value after the snapshot and the id formatted
// from it. A nil snapshot means no order was ever placed.
func Next(snapshot *models.Counter) (int64, string) {
	var last int64
	if snapshot != nil {
		last = snapshot.LastID
	}
	next := last + 1
	return next, Format(next)
}

// Format renders n as ORDER-0001. Values past 9999 keep all their digits.
func Format(n int64) string {
	return fmt.Sprintf("%s%04d", Prefix, n)
}

// Parse extracts the counter value from a formatted id.
func Parse(id string) (int64, error) {
	digits, ok := strings.CutPrefix(id, Prefix)
	if !ok {
		return 0, fmt.Errorf("order id %q: missing %s prefix", id, Prefix)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("order id %q: invalid sequence number", id)
	}
	return n, nil
}
