// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const fixSystemPrompt = "You are a code repair assistant. You receive a " +
	"defect report for one file and respond with the corrected content of " +
	"that file only. No commentary, no markdown fences, no other files."

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIGenerator creates a generator from environment configuration.
//
// # Description
//
// Reads OPENAI_API_KEY (falling back to the conventional container
// secret path) and OPENAI_MODEL. An optional OPENAI_BASE_URL points the
// client at a local OpenAI-compatible server instead of the hosted API.
//
// # Outputs
//
//   - *OpenAIGenerator: Ready-to-use generator.
//   - error: Non-nil when no API key can be found.
func NewOpenAIGenerator(logger *slog.Logger) (*OpenAIGenerator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		raw, err := os.ReadFile(secretPath)
		if err != nil {
			logger.Error("OPENAI_API_KEY not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(raw))
		logger.Info("read OpenAI API key from container secret")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		logger.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	config := openai.DefaultConfig(apiKey)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		config.BaseURL = base
	}

	logger.Info("initializing fix generator", "model", model)
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}, nil
}

// GenerateFix implements Generator.
func (g *OpenAIGenerator) GenerateFix(ctx context.Context, req Request) (string, error) {
	g.logger.Debug("requesting fix content",
		"file", req.FilePath,
		"line", req.LineNumber,
		"error_type", req.ErrorType,
	)

	prompt := buildPrompt(req)
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fixSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("fix generation call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("fix generator returned no choices")
	}

	content := stripFences(resp.Choices[0].Message.Content)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("fix generator returned empty content")
	}
	return content, nil
}

// buildPrompt renders the defect report for the model.
func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nLine: %d\nError type: %s\nMessage: %s\n",
		req.FilePath, req.LineNumber, req.ErrorType, req.Message)
	if req.FileContent != "" {
		fmt.Fprintf(&b, "\nCurrent file content:\n%s\n", req.FileContent)
	}
	b.WriteString("\nRespond with the full corrected file content.")
	return b.String()
}

// stripFences removes a single wrapping markdown code fence if present.
// Models add them despite instructions often enough to handle here.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return s
	}
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		return strings.Join(lines[1:len(lines)-1], "\n")
	}
	return s
}

var _ Generator = (*OpenAIGenerator)(nil)
