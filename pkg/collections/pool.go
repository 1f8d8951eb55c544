// Package collections provides the bitset and slice pool used by the halo
// exchanger: a Bitset tracks which of a bounded request set's slots are
// outstanding, and a SlicePool reuses the float64 strip buffers each
// exchange copies halo rows and columns into and out of.
package collections

import (
	"sync"
)

// ============================================================================
// Generic Slice Pools - Reduce memory allocation overhead
// ============================================================================

// SlicePool is a generic pool for slices of any type.
type SlicePool[T any] struct {
	pool       sync.Pool
	initialCap int
}

// NewSlicePool creates a new slice pool with the given initial capacity.
func NewSlicePool[T any](initialCap int) *SlicePool[T] {
	if initialCap <= 0 {
		initialCap = 256
	}
	return &SlicePool[T]{
		initialCap: initialCap,
		pool: sync.Pool{
			New: func() interface{} {
				s := make([]T, 0, initialCap)
				return &s
			},
		},
	}
}

// Get gets a slice from the pool.
func (p *SlicePool[T]) Get() *[]T {
	return p.pool.Get().(*[]T)
}

// Put returns a slice to the pool after clearing it.
func (p *SlicePool[T]) Put(s *[]T) {
	*s = (*s)[:0]
	p.pool.Put(s)
}

// ============================================================================
// Pre-defined Slice Pool for Strip Buffers
// ============================================================================

// Float64SlicePool is a pool for []float64 strip buffers, sized for a
// border width's worth of doubles on a typical mesh side.
var Float64SlicePool = NewSlicePool[float64](256)

// GetFloat64Slice gets a slice from the pool.
func GetFloat64Slice() *[]float64 {
	return Float64SlicePool.Get()
}

// PutFloat64Slice returns a slice to the pool after clearing it.
func PutFloat64Slice(s *[]float64) {
	Float64SlicePool.Put(s)
}
