package tensor

import (
	"fmt"
	"sync/atomic"
)

// Tracker allocates tensors and counts how many were created and released,
// so callers can prove that repeated work does not leak buffers.
// A nil *Tracker allocates without counting.
type Tracker struct {
	created  atomic.Int64
	released atomic.Int64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Zeros allocates a zero-filled tensor of the given shape.
func (tr *Tracker) Zeros(shape Shape) (*Tensor, error) {
	n := shape.Size()
	if n <= 0 {
		return nil, fmt.Errorf("invalid tensor shape %s", shape)
	}
	return tr.wrap(shape, make([]float32, n)), nil
}

// FromData wraps data as a tensor of the given shape. The tensor takes
// ownership of data.
func (tr *Tracker) FromData(shape Shape, data []float32) (*Tensor, error) {
	if n := shape.Size(); n <= 0 || int64(len(data)) != n {
		return nil, fmt.Errorf("data length %d does not fit shape %s", len(data), shape)
	}
	return tr.wrap(shape, data), nil
}

func (tr *Tracker) wrap(shape Shape, data []float32) *Tensor {
	t := &Tensor{
		shape:   append(Shape(nil), shape...),
		data:    data,
		tracker: tr,
	}
	if tr != nil {
		tr.created.Add(1)
	}
	return t
}

// Created returns how many tensors the tracker has handed out.
func (tr *Tracker) Created() int64 {
	if tr == nil {
		return 0
	}
	return tr.created.Load()
}

// ReleasedCount returns how many of those tensors have been released.
func (tr *Tracker) ReleasedCount() int64 {
	if tr == nil {
		return 0
	}
	return tr.released.Load()
}

// Live returns the number of tensors created but not yet released.
func (tr *Tracker) Live() int64 {
	return tr.Created() - tr.ReleasedCount()
}
