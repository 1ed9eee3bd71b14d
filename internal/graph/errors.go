package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for the store and traversal contracts. Callers match
// with errors.Is; wrapped forms carry the offending identifiers.
var (
	// ErrNotFound reports an unknown node id.
	ErrNotFound = errors.New("not found")

	// ErrDanglingReference reports an edge upsert whose source or target
	// does not exist. The edge is not created, not even partially.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrInvalidArgument reports caller misuse such as a non-positive
	// traversal depth. Rejected immediately, never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoPath reports that no path exists between two nodes within the
	// requested depth bound.
	ErrNoPath = errors.New("no path")

	// ErrStoreUnavailable reports an infrastructure failure talking to
	// the graph store. Traversals abort rather than return partial data.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// NotFoundError wraps ErrNotFound with the missing node id.
func NotFoundError(id string) error {
	return fmt.Errorf("node %q: %w", id, ErrNotFound)
}

// DanglingReferenceError wraps ErrDanglingReference with edge detail.
func DanglingReferenceError(edgeID, missingID string) error {
	return fmt.Errorf("edge %q references missing node %q: %w", edgeID, missingID, ErrDanglingReference)
}

// StoreError wraps an underlying store failure as ErrStoreUnavailable.
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrStoreUnavailable)
}
