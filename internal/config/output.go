package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// OutputFormatter handles output formatting for CLI commands
type OutputFormatter struct {
	format         types.OutputFormat
	quiet          bool
	verbose        bool
	includeTraceID bool
	colorOutput    bool
	writer         io.Writer
	errorWriter    io.Writer
	warnings       []types.CLIWarning
}

// OutputOptions configures the output formatter
type OutputOptions struct {
	Format         types.OutputFormat
	Quiet          bool
	Verbose        bool
	IncludeTraceID bool
	ColorOutput    bool
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(opts OutputOptions) *OutputFormatter {
	return &OutputFormatter{
		format:         opts.Format,
		quiet:          opts.Quiet,
		verbose:        opts.Verbose,
		includeTraceID: opts.IncludeTraceID,
		colorOutput:    opts.ColorOutput,
		writer:         os.Stdout,
		errorWriter:    os.Stderr,
		warnings:       []types.CLIWarning{},
	}
}

// SetWriters overrides the output destinations, used by tests
func (f *OutputFormatter) SetWriters(out, errOut io.Writer) {
	f.writer = out
	f.errorWriter = errOut
}

// AddWarning adds a warning to be included in output
func (f *OutputFormatter) AddWarning(code, message, severity string) {
	f.warnings = append(f.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes a successful result
func (f *OutputFormatter) WriteSuccess(command string, data interface{}) error {
	traceID := ""
	if f.verbose || f.includeTraceID {
		traceID = uuid.New().String()
	}

	output := types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       traceID,
		Command:       command,
		Data:          data,
		Warnings:      f.warnings,
		Errors:        []types.CLIError{},
	}

	// In verbose mode, log trace ID to stderr
	if f.verbose && traceID != "" {
		f.Verbose("Trace ID: %s", traceID)
	}

	switch f.format {
	case types.OutputFormatJSON:
		return f.writeJSON(output)
	case types.OutputFormatTable:
		return f.writeTable(data)
	default:
		return fmt.Errorf("unsupported output format: %s", f.format)
	}
}

// WriteError writes an error result
func (f *OutputFormatter) WriteError(command string, cliErr types.CLIError) error {
	traceID := uuid.New().String()

	output := types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       traceID,
		Command:       command,
		Data:          nil,
		Warnings:      f.warnings,
		Errors:        []types.CLIError{cliErr},
	}

	// Always output errors as JSON for structured parsing
	if err := f.writeJSON(output); err != nil {
		return err
	}

	// In verbose mode, also log to stderr
	if f.verbose {
		f.Verbose("Error occurred - Trace ID: %s", traceID)
	}

	return nil
}

// writeJSON writes data as JSON
func (f *OutputFormatter) writeJSON(data interface{}) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// writeTable writes data in table format
func (f *OutputFormatter) writeTable(data interface{}) error {
	// Display warnings if any (to stderr)
	if len(f.warnings) > 0 && !f.quiet {
		for _, warning := range f.warnings {
			if _, err := fmt.Fprintf(f.errorWriter, "Warning [%s]: %s\n", warning.Code, warning.Message); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(f.errorWriter); err != nil {
			return err
		}
	}

	if renderer, ok := data.(types.TableRenderer); ok {
		return f.renderTable(renderer)
	}

	switch v := data.(type) {
	case []*types.FileInfo:
		return f.writeFileTable(v)
	case *types.FileInfo:
		return f.writeFileTable([]*types.FileInfo{v})
	case map[string]interface{}:
		// Generic key-value output for status/info commands
		return f.writeKeyValueTable(v)
	default:
		// Fallback to JSON for unknown types
		return f.writeJSON(types.CLIOutput{
			SchemaVersion: utils.SchemaVersion,
			TraceID:       "",
			Command:       "unknown",
			Data:          data,
			Warnings:      f.warnings,
			Errors:        []types.CLIError{},
		})
	}
}

func (f *OutputFormatter) renderTable(renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !f.quiet {
			if _, err := fmt.Fprintln(f.writer, renderer.EmptyMessage()); err != nil {
				return err
			}
		}
		return nil
	}

	table := tablewriter.NewWriter(f.writer)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
	return nil
}

// writeFileTable writes listing entries as a table
func (f *OutputFormatter) writeFileTable(files []*types.FileInfo) error {
	if len(files) == 0 {
		if !f.quiet {
			if _, err := fmt.Fprintln(f.writer, "No files found."); err != nil {
				return err
			}
		}
		return nil
	}

	table := tablewriter.NewWriter(f.writer)

	// Configure table appearance
	table.SetHeader([]string{"Name", "Type", "Size", "Modified", "Permissions"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	for _, file := range files {
		size := formatFileSize(file.Length, file.IsDir())
		modTime := formatTime(file.LastModified)

		table.Append([]string{
			truncateString(file.Name, 50),
			file.Type,
			size,
			modTime,
			file.Permissions,
		})
	}

	table.Render()
	return nil
}

// writeKeyValueTable writes a generic key-value table
func (f *OutputFormatter) writeKeyValueTable(data map[string]interface{}) error {
	table := tablewriter.NewWriter(f.writer)
	table.SetHeader([]string{"Key", "Value"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for key, value := range data {
		valueStr := fmt.Sprintf("%v", value)
		table.Append([]string{key, valueStr})
	}

	table.Render()
	return nil
}

// Log writes a message to stderr unless quiet mode is enabled
func (f *OutputFormatter) Log(format string, args ...interface{}) {
	if !f.quiet {
		if _, err := fmt.Fprintf(f.errorWriter, format+"\n", args...); err != nil {
			return
		}
	}
}

// Verbose writes a message to stderr only in verbose mode
func (f *OutputFormatter) Verbose(format string, args ...interface{}) {
	if f.verbose {
		if _, err := fmt.Fprintf(f.errorWriter, "[VERBOSE] "+format+"\n", args...); err != nil {
			return
		}
	}
}

// Helper functions

// formatFileSize formats file size for display
func formatFileSize(bytes int64, isDir bool) string {
	if isDir || bytes == 0 {
		return "-"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatTime formats a listing timestamp for display
func formatTime(timestamp string) string {
	if timestamp == "" {
		return "-"
	}

	t, err := time.Parse(utils.APITimeFormat, timestamp)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, timestamp); err != nil {
			return timestamp
		}
	}

	// Show relative time for recent files
	now := time.Now()
	diff := now.Sub(t)

	if diff < 24*time.Hour {
		return t.Format("15:04 Today")
	} else if diff < 48*time.Hour {
		return t.Format("15:04 Yesterday")
	} else if diff < 7*24*time.Hour {
		return t.Format("Mon 15:04")
	}

	return t.Format("2006-01-02")
}

// truncateString truncates a string to maxLen with ellipsis
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
