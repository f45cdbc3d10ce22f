package tensor

import (
	"fmt"
	"sync/atomic"
)

// Shape is the logical layout of a tensor, outermost dimension first.
type Shape []int64

// NewShape builds a Shape from its dimensions.
func NewShape(dims ...int64) Shape {
	return Shape(dims)
}

// Size returns the number of elements described by the shape.
func (s Shape) Size() int64 {
	if len(s) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Matches reports whether s satisfies pattern, where a pattern dimension
// below zero accepts any size.
func (s Shape) Matches(pattern Shape) bool {
	if len(s) != len(pattern) {
		return false
	}
	for i := range s {
		if pattern[i] >= 0 && s[i] != pattern[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	return fmt.Sprint([]int64(s))
}

// Tensor is a float32 buffer with a shape. Every tensor must be released
// by its owner; Release is safe to call more than once.
type Tensor struct {
	shape    Shape
	data     []float32
	tracker  *Tracker
	released atomic.Bool
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() Shape {
	return append(Shape(nil), t.shape...)
}

// Data returns the backing buffer. It is nil once the tensor is released.
func (t *Tensor) Data() []float32 {
	if t.released.Load() {
		return nil
	}
	return t.data
}

// Released reports whether Release has been called.
func (t *Tensor) Released() bool {
	return t.released.Load()
}

// Release drops the buffer and records the release with the tracker.
func (t *Tensor) Release() {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}
	t.data = nil
	if t.tracker != nil {
		t.tracker.released.Add(1)
	}
}
