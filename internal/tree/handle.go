package tree

import (
	"cmp"
	"fmt"
	"sync/atomic"
)

// generations hands out a distinct stamp to every tree so handles from one
// tree are rejected by another. Zero is reserved for the invalid handle.
var generations atomic.Uint32

func nextGeneration() uint32 {
	for {
		if g := generations.Add(1); g != 0 {
			return g
		}
	}
}

// Handle identifies one item of a Tree. Handles are small values that can be
// copied, compared and used as map keys. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the invalid zero handle.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

// Index returns the arena position of the item. Items are stored in
// deterministic tree order, so indexes double as a stable tie-break.
func (h Handle) Index() int {
	return int(h.index)
}

// Less orders handles by arena index.
func (h Handle) Less(other Handle) bool {
	return h.index < other.index
}

// Compare orders handles by arena index, for use with slices.SortFunc.
func Compare(a, b Handle) int {
	return cmp.Compare(a.index, b.index)
}

func (h Handle) String() string {
	if h.IsZero() {
		return "Handle(nil)"
	}
	return fmt.Sprintf("Handle(%d@%d)", h.index, h.gen)
}
