package repository

import "errors"

// ErrNotFound is returned by point lookups outside a transaction.
var ErrNotFound = errors.New("not found")
