// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ledger implements the append-only, bounded-window store of
// per-component resource usage samples. One ring buffer per component
// key; the oldest sample is evicted when the window is full, so memory
// per key is fixed.
package ledger

import "fmt"

// ComponentType is the granularity of a resource accounting key.
type ComponentType string

const (
	ComponentFile     ComponentType = "file"
	ComponentFunction ComponentType = "function"
	ComponentClass    ComponentType = "class"
	ComponentMethod   ComponentType = "method"
)

// Key scopes usage samples and thresholds to one component.
type Key struct {
	// Type is the component granularity.
	Type ComponentType `json:"type"`

	// Name identifies the component (file path, function name, ...).
	Name string `json:"name"`
}

// FileKey is shorthand for the most common key shape.
func FileKey(path string) Key {
	return Key{Type: ComponentFile, Name: path}
}

// String renders the key as "type:name" for logs and metrics labels.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Type, k.Name)
}
