package graph

import (
	"errors"
	"fmt"

	"pyimports/internal/tree"
)

var (
	// ErrUnknownItem matches every *UnknownItemError.
	ErrUnknownItem = errors.New("unknown item")
	// ErrNotAPackage is returned by package-only queries given a module.
	ErrNotAPackage = errors.New("item is not a package")
)

// UnknownItemError reports a handle that does not belong to the graph's tree.
type UnknownItemError struct {
	Handle tree.Handle
}

func (e *UnknownItemError) Error() string {
	return fmt.Sprintf("unknown item %s", e.Handle)
}

func (e *UnknownItemError) Is(target error) bool {
	return target == ErrUnknownItem
}
