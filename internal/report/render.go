// Package report renders the registry as a Markdown test-case table, CSV or
// a JSON summary, and publishes rendered reports to artifact storage.
package report

import (
	"caseledger/pkg/domain"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Format names a report rendering.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// Formats lists every supported format in publish order.
func Formats() []Format {
	return []Format{FormatMarkdown, FormatCSV, FormatJSON}
}

// ParseFormat resolves a format name; "md" is accepted for markdown.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatMarkdown, FormatCSV, FormatJSON:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown report format %q", raw)
}

// Extension returns the file extension used for stored reports.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatCSV:
		return ".csv"
	default:
		return ".json"
	}
}

// ContentType returns the MIME type of the rendering.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/json"
	}
}

// Data is the input of every renderer: one consistent set of records and
// the summary computed over it.
type Data struct {
	Records []domain.TestCase
	Summary domain.Summary
}

// NewData summarizes records at the given instant.
func NewData(records []domain.TestCase, at time.Time) Data {
	return Data{Records: records, Summary: domain.Summarize(records, at)}
}

// Columns are the test-case table headers, in order.
var Columns = []string{
	"Test Case ID",
	"Title",
	"Description",
	"Preconditions",
	"Steps",
	"Test Data",
	"Expected Result",
	"Actual Result",
	"Status",
	"Comments",
	"Tested By",
	"Date Executed",
}

// Render writes data to w in format f.
func Render(w io.Writer, f Format, data Data) error {
	switch f {
	case FormatMarkdown:
		return renderMarkdown(w, data)
	case FormatCSV:
		return renderCSV(w, data)
	case FormatJSON:
		return renderJSON(w, data)
	}
	return fmt.Errorf("unknown report format %q", f)
}

func row(tc domain.TestCase, stepSep string) []string {
	executed := ""
	if tc.DateExecuted != nil {
		executed = tc.DateExecuted.UTC().Format(time.RFC3339)
	}
	steps := make([]string, len(tc.Steps))
	for i, s := range tc.Steps {
		steps[i] = strconv.Itoa(i+1) + ". " + s
	}
	return []string{
		tc.ID,
		tc.Title,
		tc.Description,
		tc.Preconditions,
		strings.Join(steps, stepSep),
		tc.TestData.String(),
		tc.ExpectedResult,
		deref(tc.ActualResult),
		string(tc.Status),
		tc.Comments,
		deref(tc.TestedBy),
		executed,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var markdownEscaper = strings.NewReplacer("|", `\|`, "\r\n", "<br>", "\n", "<br>")

func renderMarkdown(w io.Writer, data Data) error {
	var b strings.Builder
	b.WriteString("# Test cases\n\n")
	b.WriteString("| " + strings.Join(Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(Columns)) + "\n")
	for _, tc := range data.Records {
		cells := row(tc, "\n")
		for i, c := range cells {
			cells[i] = markdownEscaper.Replace(c)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	s := data.Summary
	b.WriteString("\n## Summary\n\n")
	b.WriteString("| Status | Count |\n| --- | --- |\n")
	for _, st := range domain.Statuses() {
		fmt.Fprintf(&b, "| %s | %d |\n", st, s.Counts[st])
	}
	fmt.Fprintf(&b, "\nTotal: %d. Executed: %d. Coverage: %s. Pass rate: %s.\n",
		s.Total, s.Executed, Percent(s.Coverage), Percent(s.PassRate))
	if !s.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "\nGenerated at %s.\n", s.GeneratedAt.UTC().Format(time.RFC3339))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderCSV(w io.Writer, data Data) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, tc := range data.Records {
		if err := cw.Write(row(tc, "\n")); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonReport struct {
	Summary   domain.Summary    `json:"summary"`
	TestCases []domain.TestCase `json:"testCases"`
}

func renderJSON(w io.Writer, data Data) error {
	records := data.Records
	if records == nil {
		records = []domain.TestCase{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{Summary: data.Summary, TestCases: records})
}

// Percent formats a ratio in [0,1] as a percentage with one decimal.
func Percent(ratio float64) string {
	return strconv.FormatFloat(ratio*100, 'f', 1, 64) + "%"
}
