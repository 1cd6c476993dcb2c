// Package report renders run results as Markdown, HTML, JSON or CSV.
package report

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"agilemeter.shikanime.studio/internal/maturity/core"
)

// Format is an output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
)

// ErrUnsupportedFormat is returned for an unknown output extension.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// FormatFor picks the format from the extension of path.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q (use .md, .html, .json or .csv)", ErrUnsupportedFormat, filepath.Ext(path))
}

// Write renders an organization or repository result.
func Write(w io.Writer, f Format, res *core.Result) error {
	switch f {
	case FormatMarkdown:
		return writeMarkdown(w, summaryTemplate, newSummary(res))
	case FormatHTML:
		return writeHTML(w, "Agile maturity report", summaryTemplate, newSummary(res))
	case FormatJSON:
		return writeJSON(w, newSummaryDocument(res))
	case FormatCSV:
		return writeSummaryCSV(w, res)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// WriteUser renders a single contributor report.
func WriteUser(w io.Writer, f Format, d *core.UserDetail) error {
	switch f {
	case FormatMarkdown:
		return writeMarkdown(w, userTemplate, newUserView(d))
	case FormatHTML:
		return writeHTML(w, "Agile practices of "+string(d.Login), userTemplate, newUserView(d))
	case FormatJSON:
		return writeJSON(w, newUserDocument(d))
	case FormatCSV:
		return writeUserCSV(w, d)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// WriteFile renders res to path in the format given by its extension.
func WriteFile(path string, res *core.Result) error {
	return writeFile(path, func(w io.Writer, f Format) error { return Write(w, f, res) })
}

// WriteUserFile renders d to path in the format given by its extension.
func WriteUserFile(path string, d *core.UserDetail) error {
	return writeFile(path, func(w io.Writer, f Format) error { return WriteUser(w, f, d) })
}

// writeFile renders into a temporary file renamed over path once complete.
func writeFile(path string, render func(io.Writer, Format) error) (err error) {
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := render(tmp, f); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to render %s report: %w", f, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	slog.Info("Report written", "path", path, "format", f)
	return nil
}
