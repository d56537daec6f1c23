package leads

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportCSV writes every field of every result, columns in display order.
func ExportCSV(w io.Writer, results []Result) error {
	fields := AllFields(results)
	cw := csv.NewWriter(w)
	if err := cw.Write(fields); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(fields))
	for _, r := range results {
		for i, f := range fields {
			row[i] = Stringify(r[f])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportInfo describes a JSON export.
type ExportInfo struct {
	Timestamp       string `json:"timestamp"`
	TotalResults    int    `json:"total_results"`
	ExportedResults int    `json:"exported_results"`
}

type jsonExport struct {
	ExportInfo ExportInfo `json:"export_info"`
	Results    []Result   `json:"results"`
}

// ExportJSON writes results with export metadata, indented.
func ExportJSON(w io.Writer, results []Result, total int, now time.Time) error {
	if results == nil {
		results = []Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	err := enc.Encode(jsonExport{
		ExportInfo: ExportInfo{
			Timestamp:       now.Format(time.RFC3339),
			TotalResults:    total,
			ExportedResults: len(results),
		},
		Results: results,
	})
	if err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	return nil
}
