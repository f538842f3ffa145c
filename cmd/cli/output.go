package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/toolsascode/bfm/info/internal/api/http/dto"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// printer renders command results in one output format
type printer struct {
	out    io.Writer
	format string
}

func newPrinter(out io.Writer, format string) (printer, error) {
	switch f := strings.ToLower(format); f {
	case formatTable, formatJSON, formatYAML:
		return printer{out: out, format: f}, nil
	default:
		return printer{}, fmt.Errorf("unknown output format %q (use table, json or yaml)", format)
	}
}

func (p printer) encode(v interface{}) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
}

// Info prints a migration listing
func (p printer) Info(resp dto.InfoResponse) error {
	if p.format != formatTable {
		return p.encode(resp)
	}

	current := "<< none >>"
	if resp.Current != nil {
		current = resp.Current.Version
	}
	fmt.Fprintf(p.out, "Target: %s\nCurrent: %s\n\n", resp.Target, current)

	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tDESCRIPTION\tTYPE\tINSTALLED ON\tSTATE")
	for _, m := range resp.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Version, m.Description, m.Type, m.InstalledOn, m.State)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(p.out, "\n%d migration(s)", resp.Total)
	if summary := formatSummary(resp.Summary); summary != "" {
		fmt.Fprintf(p.out, " (%s)", summary)
	}
	fmt.Fprintln(p.out)
	return nil
}

// Validation prints the outcome of a validation
func (p printer) Validation(resp dto.ValidateResponse) error {
	if p.format != formatTable {
		return p.encode(resp)
	}
	if resp.Valid {
		fmt.Fprintln(p.out, "Validation successful")
		return nil
	}
	fmt.Fprintf(p.out, "Validation failed: %s\n", resp.Message)
	return nil
}

// formatSummary renders state counts as "CODE=n" pairs in code order
func formatSummary(summary map[string]int) string {
	codes := make([]string, 0, len(summary))
	for code, n := range summary {
		if n > 0 {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%s=%d", code, summary[code]))
	}
	return strings.Join(parts, ", ")
}
