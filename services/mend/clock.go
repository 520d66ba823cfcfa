// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mend

import "time"

// nowFunc is swapped in tests to pin timestamps.
var nowFunc = time.Now

// Now returns the subsystem's notion of current time.
func Now() time.Time { return nowFunc() }

// SetNowFunc overrides the clock. Tests only; returns a restore func.
func SetNowFunc(fn func() time.Time) func() {
	prev := nowFunc
	nowFunc = fn
	return func() { nowFunc = prev }
}
