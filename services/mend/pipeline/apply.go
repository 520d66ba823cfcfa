// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// appliedFix retains what is needed to undo one application.
type appliedFix struct {
	target string
	prior  []byte
	mode   os.FileMode
}

// resolveTarget turns the error's file path into an absolute path under
// the project root. Rejection here is a security outcome; the validator
// re-checks with its own deny rules later.
func (p *Pipeline) resolveTarget(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	if p.config.ProjectRoot == "" {
		return "", fmt.Errorf("project root not configured")
	}
	return filepath.Join(p.config.ProjectRoot, path), nil
}

// apply writes the fix content to the target, keeping the prior content
// for rollback.
//
// # Description
//
// The write goes through a temp file in the target's directory followed
// by a rename, so a failure at any point leaves the original file
// intact; a partially written target is never observable. When a backup
// directory is configured, the prior content is also copied there as
// "<name>.bak" before the write.
func (p *Pipeline) apply(target, content string) (*appliedFix, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat fix target: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("fix target is a directory: %s", target)
	}

	prior, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read fix target: %w", err)
	}

	if p.config.BackupDir != "" {
		if err := p.writeBackup(target, prior, info.Mode()); err != nil {
			// Backups are belt-and-suspenders next to the in-memory
			// rollback copy; a failed backup does not block the fix.
			slog.Warn("backup write failed", "target", target, "error", err)
		}
	}

	if err := atomicWrite(target, []byte(content), info.Mode()); err != nil {
		return nil, fmt.Errorf("write fix target: %w", err)
	}

	return &appliedFix{target: target, prior: prior, mode: info.Mode()}, nil
}

// rollback restores the prior content. After it returns, the file is
// byte-identical to its content before the run.
func (p *Pipeline) rollback(applied *appliedFix, logger *slog.Logger) {
	if err := atomicWrite(applied.target, applied.prior, applied.mode); err != nil {
		// The original content is still held in memory and in the
		// optional backup; surface loudly so an operator can restore.
		logger.Error("rollback failed", "target", applied.target, "error", err)
	}
}

// writeBackup copies the prior content into the backup directory.
func (p *Pipeline) writeBackup(target string, prior []byte, mode os.FileMode) error {
	if err := os.MkdirAll(p.config.BackupDir, 0o750); err != nil {
		return err
	}
	backupPath := filepath.Join(p.config.BackupDir, filepath.Base(target)+".bak")
	return os.WriteFile(backupPath, prior, mode)
}

// atomicWrite writes content via a temp file and rename so readers never
// observe a partial write.
func atomicWrite(target string, content []byte, mode os.FileMode) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// readFileString reads a file as a string, for generator context.
func readFileString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
