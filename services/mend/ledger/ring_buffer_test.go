// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import "testing"

func TestRingBufferPushAndSlice(t *testing.T) {
	rb := newRingBuffer[int](4)

	if got := rb.len(); got != 0 {
		t.Fatalf("empty len = %d", got)
	}

	for i := 1; i <= 3; i++ {
		rb.push(i)
	}
	got := rb.slice()
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("slice = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slice[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRingBufferWrapsAround(t *testing.T) {
	rb := newRingBuffer[int](3)
	for i := 1; i <= 7; i++ {
		rb.push(i)
	}

	got := rb.slice()
	want := []int{5, 6, 7}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slice[%d] = %d, want %d (oldest first)", i, got[i], want[i])
		}
	}
}

func TestRingBufferDefaultCapacity(t *testing.T) {
	rb := newRingBuffer[int](0)
	for i := 0; i < 150; i++ {
		rb.push(i)
	}
	if got := rb.len(); got != 100 {
		t.Errorf("len = %d, want default capacity 100", got)
	}
}

func TestRingBufferSliceIsACopy(t *testing.T) {
	rb := newRingBuffer[int](3)
	rb.push(1)

	s := rb.slice()
	s[0] = 99
	if rb.slice()[0] != 1 {
		t.Error("mutating the returned slice changed buffer contents")
	}
}
