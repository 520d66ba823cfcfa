// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidewater-ai/mend/services/mend"
)

var (
	addFile     string
	addLine     int
	addType     string
	addMessage  string
	addSeverity string
	addFunction string

	listStatus string
	listType   string

	fixContentPath string
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Inspect and drive tracked errors",
}

var errorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if listStatus != "" {
			query.Set("status", listStatus)
		}
		if listType != "" {
			query.Set("error_type", listType)
		}
		path := "/v1/errors"
		if encoded := query.Encode(); encoded != "" {
			path += "?" + encoded
		}

		var resp struct {
			Errors []mend.Error `json:"errors"`
		}
		if err := apiCall("GET", path, nil, &resp); err != nil {
			return err
		}

		if len(resp.Errors) == 0 {
			fmt.Println("no errors tracked")
			return nil
		}
		for _, rec := range resp.Errors {
			fmt.Printf("%s  %-11s  %s:%d  %s  attempts=%d/%d\n",
				rec.ID, rec.Status, rec.FilePath, rec.LineNumber,
				rec.ErrorType, rec.FixAttempts, rec.MaxAttempts)
		}
		return nil
	},
}

var errorsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one error record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec mend.Error
		if err := apiCall("GET", "/v1/errors/"+args[0], nil, &rec); err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var errorsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Report a defect to the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := mend.Report{
			FilePath:     addFile,
			LineNumber:   addLine,
			ErrorType:    addType,
			Message:      addMessage,
			Severity:     mend.Severity(addSeverity),
			FunctionName: addFunction,
		}
		var rec mend.Error
		if err := apiCall("POST", "/v1/errors", report, &rec); err != nil {
			return err
		}
		fmt.Println("admitted", rec.ID)
		return nil
	},
}

var errorsProcessCmd = &cobra.Command{
	Use:   "process <id>",
	Short: "Dispatch a fix attempt for an error",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiCall("POST", "/v1/errors/"+args[0]+"/process", nil, nil); err != nil {
			return err
		}
		fmt.Println("processing", args[0])
		return nil
	},
}

var errorsFixCmd = &cobra.Command{
	Use:   "fix <id>",
	Short: "Apply a manually supplied fix from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(fixContentPath)
		if err != nil {
			return fmt.Errorf("read fix content: %w", err)
		}
		body := map[string]string{"content": string(content)}
		if err := apiCall("POST", "/v1/errors/"+args[0]+"/fix", body, nil); err != nil {
			return err
		}
		fmt.Println("fix submitted for", args[0])
		return nil
	},
}

var errorsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel an in-flight fix attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiCall("POST", "/v1/errors/"+args[0]+"/cancel", nil, nil); err != nil {
			return err
		}
		fmt.Println("cancelling", args[0])
		return nil
	},
}

func init() {
	errorsAddCmd.Flags().StringVar(&addFile, "file", "", "file path of the defect (required)")
	errorsAddCmd.Flags().IntVar(&addLine, "line", 0, "line number of the defect")
	errorsAddCmd.Flags().StringVar(&addType, "type", "", "error type tag (required)")
	errorsAddCmd.Flags().StringVar(&addMessage, "message", "", "defect description (required)")
	errorsAddCmd.Flags().StringVar(&addSeverity, "severity", "", "low|medium|high|critical")
	errorsAddCmd.Flags().StringVar(&addFunction, "function", "", "function containing the defect")
	errorsAddCmd.MarkFlagRequired("file")
	errorsAddCmd.MarkFlagRequired("type")
	errorsAddCmd.MarkFlagRequired("message")

	errorsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	errorsListCmd.Flags().StringVar(&listType, "type", "", "filter by error type")

	errorsFixCmd.Flags().StringVar(&fixContentPath, "content", "", "path to a file holding the fix content (required)")
	errorsFixCmd.MarkFlagRequired("content")

	errorsCmd.AddCommand(errorsListCmd, errorsGetCmd, errorsAddCmd,
		errorsProcessCmd, errorsFixCmd, errorsCancelCmd)
}
