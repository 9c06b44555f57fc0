package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	// fatih/color disables these automatically when output is not a TTY
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	valueColor   = color.New(color.FgHiBlack)
	dimColor     = color.New(color.FgHiBlack)
)

// printer writes formatted command output. out receives results, errOut
// receives errors.
type printer struct {
	out    io.Writer
	errOut io.Writer
}

// Section prints a section header
func (p *printer) Section(title string) {
	_, _ = fmt.Fprintln(p.out)
	_, _ = headerColor.Fprintf(p.out, "▸ %s\n", title)
	_, _ = fmt.Fprintln(p.out)
}

// Subsection prints a subsection header
func (p *printer) Subsection(title string) {
	_, _ = infoColor.Fprintf(p.out, "  %s\n", title)
}

// Success prints a success message with a checkmark
func (p *printer) Success(msg string) {
	_, _ = successColor.Fprintf(p.out, "✓ %s\n", msg)
}

// Warning prints a warning message with a warning symbol
func (p *printer) Warning(msg string) {
	_, _ = warningColor.Fprintf(p.out, "⚠ %s\n", msg)
}

// Error prints an error message
func (p *printer) Error(msg string) {
	_, _ = errorColor.Fprintf(p.errOut, "✗ %s\n", msg)
}

// Info prints an informational message
func (p *printer) Info(msg string) {
	_, _ = fmt.Fprintln(p.out, msg)
}

// LabelValue prints a label-value pair
func (p *printer) LabelValue(label, value string) {
	_, _ = labelColor.Fprintf(p.out, "  %s: ", label)
	_, _ = valueColor.Fprintln(p.out, value)
}

// List prints items with bullet points
func (p *printer) List(items []string, indent int) {
	indentStr := strings.Repeat("  ", indent)
	for _, item := range items {
		_, _ = infoColor.Fprintf(p.out, "%s• %s\n", indentStr, item)
	}
}

// EmptyState prints a message when there's no data to show
func (p *printer) EmptyState(msg string) {
	_, _ = dimColor.Fprintf(p.out, "  %s\n", msg)
}

// JSON writes v as indented JSON
func (p *printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// countOf formats a count with the right noun form
func countOf(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}
