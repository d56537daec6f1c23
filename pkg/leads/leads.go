// Package leads renders lead search results as markdown and exports them
// to CSV or JSON.
package leads

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Result is one lead record as returned by the chat API.
type Result = map[string]any

const (
	// TableFields caps the columns shown in a rendered table.
	TableFields = 6
	// TableRows caps the rows shown in a rendered table.
	TableRows = 20

	defaultPriority = 10
	maxCellLen      = 50
	maxLinkText     = 30
)

var fieldPriority = map[string]int{
	"company_name":    1,
	"name":            1,
	"title":           2,
	"company":         2,
	"industry":        3,
	"location":        4,
	"city":            4,
	"state":           4,
	"country":         4,
	"company_size":    5,
	"revenue":         5,
	"website":         6,
	"company_website": 6,
	"linkedin_url":    7,
	"email":           8,
	"phone":           9,
}

// Priority returns the display rank of a field; lower sorts first.
func Priority(field string) int {
	if p, ok := fieldPriority[strings.ToLower(field)]; ok {
		return p
	}
	return defaultPriority
}

func sortFields(fields []string) {
	slices.SortStableFunc(fields, func(a, b string) int {
		if d := Priority(a) - Priority(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
}

// DisplayFields picks up to limit columns from the first result, ordered by
// priority then name.
func DisplayFields(results []Result, limit int) []string {
	if len(results) == 0 {
		return nil
	}
	fields := make([]string, 0, len(results[0]))
	for f := range results[0] {
		fields = append(fields, f)
	}
	sortFields(fields)
	if limit > 0 && len(fields) > limit {
		fields = fields[:limit]
	}
	return fields
}

// AllFields is the union of fields across results in display order.
func AllFields(results []Result) []string {
	seen := make(map[string]struct{})
	var fields []string
	for _, r := range results {
		for f := range r {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				fields = append(fields, f)
			}
		}
	}
	sortFields(fields)
	return fields
}

// RenderTable writes a markdown table of results. total is the number of
// matches the search reported, which may exceed len(results).
func RenderTable(w io.Writer, results []Result, total int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## 📊 Search Results (%d found)\n\n", total)

	if len(results) == 0 {
		b.WriteString("No results to display.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	fields := DisplayFields(results, TableFields)
	headers := make([]string, len(fields))
	seps := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = Header(f)
		seps[i] = " --- "
	}
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("|" + strings.Join(seps, "|") + "|\n")

	for _, r := range results[:min(len(results), TableRows)] {
		cells := make([]string, len(fields))
		for i, f := range fields {
			cells[i] = cell(f, r[f], hasField(r, f))
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	if total > len(results) {
		fmt.Fprintf(&b, "\n*Showing %d of %d results*\n", len(results), total)
	}
	if len(results) > TableRows {
		fmt.Fprintf(&b, "\n*Table shows first %d results of %d returned*\n", TableRows, len(results))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Header turns a field name into a column title: company_name -> Company Name.
func Header(field string) string {
	words := strings.Fields(strings.ReplaceAll(field, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func hasField(r Result, f string) bool {
	_, ok := r[f]
	return ok
}

func cell(field string, v any, present bool) string {
	if !present || v == nil {
		return "N/A"
	}
	s := Stringify(v)

	switch {
	case (field == "company_website" || field == "website" || field == "linkedin_url") && s != "":
		return link(field, s)
	case field == "email" && strings.Contains(s, "@"):
		return fmt.Sprintf("[%s](mailto:%s)", s, s)
	}

	if utf8.RuneCountInString(s) > maxCellLen {
		s = truncate(s, maxCellLen-3) + "..."
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func link(field, s string) string {
	url := s
	if !strings.HasPrefix(url, "http") {
		switch {
		case field != "linkedin_url", strings.HasPrefix(url, "linkedin.com"), strings.HasPrefix(url, "www.linkedin.com"):
			url = "https://" + url
		case strings.HasPrefix(url, "/"):
			url = "https://linkedin.com" + url
		default:
			url = "https://linkedin.com/in/" + url
		}
	}

	bare := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	text := bare
	if utf8.RuneCountInString(text) > maxLinkText {
		text = truncate(text, maxLinkText) + "..."
	}
	return fmt.Sprintf("[%s](%s)", text, url)
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Stringify renders a decoded JSON value for a table cell or CSV field.
// Lists and objects are re-encoded as JSON; nil is empty.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// Filename returns lead_search_results_YYYYMMDD_HHMMSS.<ext>.
func Filename(ext string, now time.Time) string {
	return fmt.Sprintf("lead_search_results_%s.%s", now.Format("20060102_150405"), ext)
}

// Format is an export file format.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// Export writes results in format.
func Export(w io.Writer, format Format, results []Result, total int, now time.Time) error {
	switch format {
	case CSV:
		return ExportCSV(w, results)
	case JSON:
		return ExportJSON(w, results, total, now)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Save exports results to a timestamped file in dir and returns its path.
func Save(dir string, format Format, results []Result, total int, now time.Time) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("no search results to export")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(dir, Filename(string(format), now))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	if err := Export(f, format, results, total, now); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	return path, nil
}
