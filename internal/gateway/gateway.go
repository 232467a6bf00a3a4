// Package gateway defines the row-source contract: something that
// supplies raw source records per entity type, already paginated. The
// conversion engine is indifferent to format and transport.
package gateway

import "context"

// Record represents a single raw source record as key-value pairs.
type Record = map[string]any

// ReadRequest asks a row source for one page of records.
type ReadRequest struct {
	Entity string
	Offset int
	Limit  int
}

// RowSource supplies raw records for one entity type per call.
type RowSource interface {
	Read(ctx context.Context, req *ReadRequest) (Iterator[Record], error)
}

// Iterator provides streaming access to records.
type Iterator[T any] interface {
	// Next advances to the next record. Returns false when done or on error.
	Next() bool

	// Value returns the current record. Only valid after Next() returns true.
	Value() T

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases resources. Must be called when done.
	Close() error
}

// SliceIterator adapts an in-memory slice to the Iterator contract.
// Stub row sources and tests use it.
type SliceIterator[T any] struct {
	items []T
	pos   int
}

// NewSliceIterator wraps a slice.
func NewSliceIterator[T any](items []T) *SliceIterator[T] {
	return &SliceIterator[T]{items: items}
}

func (it *SliceIterator[T]) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator[T]) Value() T { return it.items[it.pos-1] }

func (it *SliceIterator[T]) Err() error { return nil }

func (it *SliceIterator[T]) Close() error { return nil }
