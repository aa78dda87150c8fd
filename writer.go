package main

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// A ResultWriter renders rows of results.
type ResultWriter interface {
	SetHeader(headers []string)
	Append(record []string)
	Render()
}

// A CSVWriter is a ResultWriter that outputs rows in CSV format.
type CSVWriter struct {
	*csv.Writer
}

// NewCSVWriter creates a CSVWriter that writes to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{Writer: csv.NewWriter(w)}
}

// SetHeader writes the header row.
func (c *CSVWriter) SetHeader(headers []string) {
	c.Writer.Write(headers)
}

// Append writes one row.
func (c *CSVWriter) Append(record []string) {
	c.Writer.Write(record)
}

// Render flushes buffered rows.
func (c *CSVWriter) Render() {
	c.Writer.Flush()
}

// NewTableWriter creates a ResultWriter that writes an ASCII table.
func NewTableWriter(w io.Writer) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoFormatHeaders(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

func newResultWriter(format string, w io.Writer) (ResultWriter, error) {
	switch format {
	case "", "table":
		return NewTableWriter(w), nil
	case "csv":
		return NewCSVWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want table or csv)", format)
	}
}
