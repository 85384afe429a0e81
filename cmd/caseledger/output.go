package main

import (
	"caseledger/internal/catalog"
	"caseledger/internal/report"
	"caseledger/pkg/domain"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.Bold)
	faintColor   = color.New(color.Faint)

	statusColors = map[domain.Status]*color.Color{
		domain.StatusPass:    color.New(color.FgGreen),
		domain.StatusFail:    color.New(color.FgRed),
		domain.StatusBlocked: color.New(color.FgYellow),
		domain.StatusNotRun:  color.New(color.Faint),
	}
)

func colorStatus(s domain.Status) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(s)
	}
	return string(s)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printWarnings(res domain.Result) {
	for _, v := range res.Warnings() {
		_, _ = warningColor.Fprintf(a.stderr, "warning: %s: %s\n", v.Rule, v.Message)
	}
}

func (a *app) printRecord(tc domain.TestCase, res domain.Result) error {
	a.printWarnings(res)
	if a.json {
		return a.writeJSON(map[string]any{"testCase": tc})
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", headerColor.Sprint(tc.ID), tc.Title)
	fmt.Fprintf(&b, "  status:        %s\n", colorStatus(tc.Status))
	if tc.Description != "" {
		fmt.Fprintf(&b, "  description:   %s\n", tc.Description)
	}
	if tc.Preconditions != "" {
		fmt.Fprintf(&b, "  preconditions: %s\n", tc.Preconditions)
	}
	for i, step := range tc.Steps {
		fmt.Fprintf(&b, "  step %d:        %s\n", i+1, step)
	}
	if !tc.TestData.IsZero() {
		fmt.Fprintf(&b, "  test data:     %s\n", tc.TestData.String())
	}
	fmt.Fprintf(&b, "  expected:      %s\n", tc.ExpectedResult)
	fmt.Fprintf(&b, "  actual:        %s\n", orDash(tc.ActualResult))
	fmt.Fprintf(&b, "  tested by:     %s\n", orDash(tc.TestedBy))
	fmt.Fprintf(&b, "  executed:      %s\n", formatTime(tc.DateExecuted))
	if tc.Comments != "" {
		fmt.Fprintf(&b, "  comments:      %s\n", tc.Comments)
	}
	_, err := fmt.Fprint(a.stdout, b.String())
	return err
}

func (a *app) printList(records []domain.TestCase) error {
	if a.json {
		return a.writeJSON(map[string]any{"testCases": records, "count": len(records)})
	}
	if len(records) == 0 {
		_, err := faintColor.Fprintln(a.stdout, "no test cases")
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tTESTED BY\tEXECUTED")
	for _, tc := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", tc.ID, tc.Status, tc.Title, orDash(tc.TestedBy), formatTime(tc.DateExecuted))
	}
	return tw.Flush()
}

func (a *app) printArchived(entries []domain.ArchivedRecord) error {
	if a.json {
		if entries == nil {
			entries = []domain.ArchivedRecord{}
		}
		return a.writeJSON(map[string]any{"archived": entries})
	}
	if len(entries) == 0 {
		_, err := faintColor.Fprintln(a.stdout, "archive is empty")
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tARCHIVED\tREASON")
	for _, e := range entries {
		reason := e.Reason
		if reason == "" {
			reason = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Record.ID, e.Record.Status, e.Record.Title, formatTime(&e.ArchivedAt), reason)
	}
	return tw.Flush()
}

func (a *app) printRevisions(revs []domain.Revision) error {
	if a.json {
		if revs == nil {
			revs = []domain.Revision{}
		}
		return a.writeJSON(map[string]any{"revisions": revs})
	}
	if len(revs) == 0 {
		_, err := faintColor.Fprintln(a.stdout, "no earlier versions")
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEQ\tSUPERSEDED\tSTATUS\tTITLE")
	for _, r := range revs {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Sequence, formatTime(&r.SupersededAt), r.Record.Status, r.Record.Title)
	}
	return tw.Flush()
}

func (a *app) printSummary(s domain.Summary) error {
	if a.json {
		return a.writeJSON(map[string]any{"summary": s})
	}
	var b strings.Builder
	for _, st := range domain.Statuses() {
		fmt.Fprintf(&b, "%-8s %d\n", string(st)+":", s.Counts[st])
	}
	fmt.Fprintf(&b, "total:   %d\n", s.Total)
	fmt.Fprintf(&b, "coverage: %s  pass rate: %s\n", report.Percent(s.Coverage), report.Percent(s.PassRate))
	_, err := fmt.Fprint(a.stdout, b.String())
	return err
}

func (a *app) printImport(rep catalog.Report) error {
	for _, v := range rep.Warnings {
		_, _ = warningColor.Fprintf(a.stderr, "warning: %s: %s\n", v.Rule, v.Message)
	}
	if a.json {
		failures := func(fs []catalog.Failure) []map[string]string {
			out := make([]map[string]string, 0, len(fs))
			for _, f := range fs {
				out = append(out, map[string]string{"source": f.Source, "id": f.ID, "error": f.Err.Error()})
			}
			return out
		}
		created := rep.Created
		if created == nil {
			created = []string{}
		}
		return a.writeJSON(map[string]any{
			"created":    created,
			"duplicates": failures(rep.Duplicates),
			"rejected":   failures(rep.Rejected),
		})
	}
	for _, f := range rep.Duplicates {
		_, _ = faintColor.Fprintf(a.stdout, "skipped %s (%s): already registered\n", f.ID, f.Source)
	}
	for _, f := range rep.Rejected {
		_, _ = errorColor.Fprintf(a.stdout, "rejected %s (%s): %v\n", f.ID, f.Source, f.Err)
	}
	_, err := fmt.Fprintf(a.stdout, "imported %d, skipped %d, rejected %d\n", len(rep.Created), len(rep.Duplicates), len(rep.Rejected))
	return err
}

func (a *app) printJob(job report.Job) error {
	if a.json {
		return a.writeJSON(map[string]any{"job": job})
	}
	_, _ = fmt.Fprintf(a.stdout, "report %s %s (%d test cases)\n", job.ID, job.Status, job.Summary.Total)
	for _, art := range job.Artifacts {
		loc := art.Key
		if art.URL != "" {
			loc = art.URL
		}
		_, _ = fmt.Fprintf(a.stdout, "  %-8s %s\n", art.Format, loc)
	}
	return nil
}
