// Package diagnostics runs startup checks over external tools, the
// workspace, and configured backends.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
	"github.com/dp-pcs/ttv-pipeline/internal/domain"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// Run executes all startup checks and returns a combined report. An
// unavailable backend is a warning, not a failure: jobs targeting other
// backends still run.
func (c *Checker) Run(ctx context.Context, workspace string, registry *backend.Registry) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg"),
		c.checkWorkspace(workspace),
	}
	items = append(items, c.checkBackends(ctx, registry)...)

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install it and ensure the binary is available on PATH; segment assembly needs it.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkWorkspace validates workspace existence and write access.
func (c *Checker) checkWorkspace(workspace string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "workspace",
		Name: "Workspace",
	}

	if strings.TrimSpace(workspace) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Workspace directory is empty."
		item.Hint = "Set a workspace directory where segment clips can be written."
		return item
	}

	if err := c.mkdirAll(workspace, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create workspace: %s", workspace)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(workspace, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Workspace is not writable: %s", workspace)
		item.Hint = "Choose a writable directory for segment clips."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", workspace)
	return item
}

// checkBackends probes every registered backend's availability.
func (c *Checker) checkBackends(ctx context.Context, registry *backend.Registry) []domain.DiagnosticItem {
	if registry == nil {
		return nil
	}

	names := registry.Names()
	items := make([]domain.DiagnosticItem, 0, len(names))
	for _, name := range names {
		item := domain.DiagnosticItem{
			ID:   "backend_" + name,
			Name: name,
		}

		gen, err := registry.Resolve(name)
		if err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = err.Error()
			items = append(items, item)
			continue
		}

		if gen.IsAvailable(ctx) {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Backend %s is available", name)
		} else {
			item.Status = domain.DiagnosticStatusWarn
			item.Message = fmt.Sprintf("Backend %s is registered but not available", name)
			item.Hint = "Check its API key or local model paths; jobs targeting it will fail."
		}
		items = append(items, item)
	}
	return items
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
