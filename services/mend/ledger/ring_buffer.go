// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

// ringBuffer is a fixed-size circular buffer.
//
// # Description
//
// O(1) push with bounded memory. When full, the oldest item is
// overwritten. The ledger keeps one per component key.
//
// # Thread Safety
//
// NOT safe for concurrent use; the owning Ledger synchronizes.
type ringBuffer[T any] struct {
	data  []T
	head  int  // Next write position
	tail  int  // First element position
	count int  // Current number of elements
	cap   int  // Maximum capacity
	full  bool // Whether buffer has wrapped
}

// newRingBuffer creates a ring buffer with the given capacity.
func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity <= 0 {
		capacity = 100 // Default
	}
	return &ringBuffer[T]{
		data: make([]T, capacity),
		cap:  capacity,
	}
}

// push adds an item, overwriting the oldest when full.
func (r *ringBuffer[T]) push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % r.cap

	if r.full {
		r.tail = (r.tail + 1) % r.cap
	} else {
		r.count++
		if r.count == r.cap {
			r.full = true
		}
	}
}

// slice returns all items from oldest to newest as a copy.
func (r *ringBuffer[T]) slice() []T {
	if r.count == 0 {
		return nil
	}

	result := make([]T, r.count)

	if r.full {
		n := copy(result, r.data[r.tail:])
		copy(result[n:], r.data[:r.head])
	} else {
		copy(result, r.data[r.tail:r.tail+r.count])
	}

	return result
}

// len returns the current number of elements.
func (r *ringBuffer[T]) len() int {
	return r.count
}
