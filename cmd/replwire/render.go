// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/replwire/replwire/lib/aggregate"
	"github.com/replwire/replwire/lib/execution"
	"github.com/replwire/replwire/lib/wire"
)

var (
	stderrStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorKindStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	tracebackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	artifactStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func styleStderr(text string) string {
	return stderrStyle.Render(text)
}

// renderResult prints the return value, writes display artifacts, and
// renders any execution error. A failing fragment surfaces as a
// non-nil error so the process exits non-zero.
func renderResult(result aggregate.Result, artifactDir string) error {
	if err := writeArtifacts(result.Display, artifactDir); err != nil {
		return err
	}

	if value, ok := result.ReturnValue["text/plain"]; ok {
		fmt.Fprintln(os.Stdout, string(value))
	}

	switch result.Outcome {
	case execution.OutcomeOK:
		return nil
	case execution.OutcomeAborted:
		return fmt.Errorf("execution aborted")
	}

	if result.Error != nil {
		fmt.Fprintln(os.Stderr, errorKindStyle.Render(
			fmt.Sprintf("%s: %s", result.Error.Kind, result.Error.Message)))
		for _, line := range result.Error.Traceback {
			fmt.Fprintln(os.Stderr, tracebackStyle.Render("  "+line))
		}
		return fmt.Errorf("execution failed: %s", result.Error.Kind)
	}
	return fmt.Errorf("execution failed")
}

// writeArtifacts saves each display payload to its own file, named by
// arrival order and MIME type. Skipped entirely with no directory
// configured.
func writeArtifacts(artifacts []aggregate.Artifact, dir string) error {
	if dir == "" || len(artifacts) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	for i, artifact := range artifacts {
		for mime, payload := range artifact.Data {
			name := fmt.Sprintf("artifact-%d%s", i+1, extensionFor(mime))
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, payload, 0o644); err != nil {
				return fmt.Errorf("writing artifact %s: %w", path, err)
			}
			fmt.Fprintln(os.Stderr, artifactStyle.Render(
				fmt.Sprintf("wrote %s (%s, %d bytes, blake3 %.16s)",
					path, mime, len(payload), wire.Digest(payload))))
		}
	}
	return nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	case "text/html":
		return ".html"
	case "text/plain":
		return ".txt"
	case "application/json":
		return ".json"
	default:
		if _, subtype, found := strings.Cut(mime, "/"); found && subtype != "" {
			return "." + subtype
		}
		return ".bin"
	}
}
