// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// mendctl is the command-line client for a running mendd daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "mendctl",
	Short: "Control a running mendd daemon",
	Long: `mendctl talks to the mendd HTTP API.

Examples:
  mendctl errors list
  mendctl errors add --file src/parser.py --line 42 --type SyntaxError --message "unexpected indent"
  mendctl errors process 6f1c...
  mendctl thresholds
  mendctl usage`,
}

func main() {
	defaultServer := os.Getenv("MEND_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8844"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"base URL of the mendd daemon")

	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(thresholdsCmd)
	rootCmd.AddCommand(usageCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
