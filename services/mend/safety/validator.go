// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package safety validates fix targets and fix content before anything
// touches the filesystem.
//
// Thread Safety:
//
//	Everything here is stateless after construction and safe to call
//	concurrently without synchronization.
package safety

import (
	"path/filepath"
	"strings"
)

// DefaultDenyPatterns flags generated content that tries to escape the
// target file or smuggle shell execution into source text.
func DefaultDenyPatterns() []string {
	return []string{
		"rm -rf",
		"mkfs",
		"dd if=",
		"> /dev/",
		"chmod 777",
		"os.system(",
		"subprocess.",
		"eval(",
		"exec(",
		"__import__(",
		"curl ",
		"wget ",
		"../",
	}
}

// DefaultDenyPaths are path components that must never be fix targets.
func DefaultDenyPaths() []string {
	return []string{
		".git",
		".env",
		"secrets",
		"credentials",
	}
}

// ValidatePath reports whether path resolves inside root.
//
// # Description
//
// Relative paths are joined to root; absolute paths must already be
// under root. The cleaned result is checked for escape: ".." traversal
// that leaves root, or an absolute path to somewhere else, fails.
//
// # Inputs
//
//   - root: Absolute project root.
//   - path: Candidate fix target, absolute or root-relative.
//
// # Outputs
//
//   - bool: True only when the resolved path is root or beneath it.
func ValidatePath(root, path string) bool {
	if root == "" || path == "" {
		return false
	}

	root = filepath.Clean(root)

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}

// ValidateContent reports whether content is free of the default deny
// patterns. Pure convenience wrapper over a default Validator.
func ValidateContent(content string) bool {
	return defaultValidator.ValidateContent(content) == nil
}

// defaultValidator backs the package-level functions.
var defaultValidator = NewValidator(Config{})

// Config tunes a Validator. Zero values take the package defaults.
type Config struct {
	// DenyPatterns are substrings that reject fix content outright.
	DenyPatterns []string

	// DenyPaths are path components that reject a fix target.
	DenyPaths []string

	// MaxContentBytes rejects oversized fix content. 0 means 1 MiB.
	MaxContentBytes int
}

// Violation describes why a fix was rejected.
type Violation struct {
	// Code is a machine-readable reason ("denied_path", "denied_pattern",
	// "path_escape", "content_too_large").
	Code string

	// Detail names the offending pattern or path.
	Detail string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	return "security violation: " + v.Code + ": " + v.Detail
}

// Validator applies path and content checks with a fixed configuration.
type Validator struct {
	denyPatterns []string
	denyPaths    []string
	maxContent   int
}

// NewValidator creates a validator. Empty config fields fall back to
// DefaultDenyPatterns, DefaultDenyPaths and a 1 MiB content cap.
func NewValidator(config Config) *Validator {
	patterns := config.DenyPatterns
	if patterns == nil {
		patterns = DefaultDenyPatterns()
	}
	paths := config.DenyPaths
	if paths == nil {
		paths = DefaultDenyPaths()
	}
	maxContent := config.MaxContentBytes
	if maxContent <= 0 {
		maxContent = 1 << 20
	}
	return &Validator{
		denyPatterns: patterns,
		denyPaths:    paths,
		maxContent:   maxContent,
	}
}

// ValidateTarget checks that path is a legal fix target under root.
//
// # Outputs
//
//   - *Violation: Nil when the target is acceptable.
func (v *Validator) ValidateTarget(root, path string) *Violation {
	if !ValidatePath(root, path) {
		return &Violation{Code: "path_escape", Detail: path}
	}

	cleaned := filepath.ToSlash(filepath.Clean(path))
	for _, denied := range v.denyPaths {
		if containsComponent(cleaned, denied) {
			return &Violation{Code: "denied_path", Detail: denied}
		}
	}
	return nil
}

// ValidateContent checks generated fix content against the deny list
// and the size cap.
//
// # Outputs
//
//   - *Violation: Nil when the content is acceptable.
func (v *Validator) ValidateContent(content string) *Violation {
	if len(content) > v.maxContent {
		return &Violation{Code: "content_too_large", Detail: "exceeds size cap"}
	}
	for _, pattern := range v.denyPatterns {
		if strings.Contains(content, pattern) {
			return &Violation{Code: "denied_pattern", Detail: pattern}
		}
	}
	return nil
}

// containsComponent checks if a slash path contains the component as an
// exact path element, prefix or suffix.
func containsComponent(path, component string) bool {
	if component == "" {
		return false
	}
	return path == component ||
		strings.Contains(path, "/"+component+"/") ||
		strings.HasSuffix(path, "/"+component) ||
		strings.HasPrefix(path, component+"/")
}
