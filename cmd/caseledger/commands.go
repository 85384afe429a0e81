package main

import (
	"caseledger/internal/blob"
	"caseledger/internal/catalog"
	"caseledger/internal/report"
	"caseledger/pkg/domain"
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("caseledger "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parseFlags reports malformed flags as usage errors.
func parseFlags(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return usageError{msg: err.Error()}
}

// parseWithID accepts the record id before or after the flags.
func parseWithID(fs *flag.FlagSet, args []string) (string, error) {
	var id string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		id, args = args[0], args[1:]
	}
	if err := parseFlags(fs, args); err != nil {
		return "", err
	}
	if id == "" {
		id = fs.Arg(0)
	}
	if strings.TrimSpace(id) == "" {
		return "", usagef("a test case id is required")
	}
	return id, nil
}

func parseTestData(text string, pairs []string) (domain.TestData, error) {
	data := domain.TestData{Text: text}
	if len(pairs) == 0 {
		return data, nil
	}
	if text != "" {
		return domain.TestData{}, usagef("-data and -data-text are mutually exclusive")
	}
	data.Values = make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return domain.TestData{}, usagef("-data %q: want key=value", p)
		}
		data.Values[strings.TrimSpace(k)] = v
	}
	return data, nil
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "create")
	var (
		tc       domain.TestCase
		steps    multiFlag
		data     multiFlag
		dataText string
	)
	fs.StringVar(&tc.ID, "id", "", "test case id (generated when empty)")
	fs.StringVar(&tc.Title, "title", "", "title")
	fs.StringVar(&tc.Description, "description", "", "description")
	fs.StringVar(&tc.Preconditions, "preconditions", "", "preconditions")
	fs.Var(&steps, "step", "step, repeat in order")
	fs.Var(&data, "data", "test data key=value, repeatable")
	fs.StringVar(&dataText, "data-text", "", "free-text test data")
	fs.StringVar(&tc.ExpectedResult, "expected", "", "expected result")
	fs.StringVar(&tc.Comments, "comments", "", "comments")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(tc.Title) == "" {
		return usagef("-title is required")
	}
	var err error
	if tc.TestData, err = parseTestData(dataText, data); err != nil {
		return err
	}
	tc.Steps = steps

	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	created, res, err := svc.CreateTestCase(ctx, tc)
	if err != nil {
		return err
	}
	return a.printRecord(created, res)
}

func runGet(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "get")
	id, err := parseWithID(fs, args)
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	tc, err := svc.GetTestCase(ctx, id)
	if err != nil {
		return err
	}
	return a.printRecord(tc, domain.Result{})
}

func runUpdate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "update")
	var (
		title, description, preconditions, expected, comments, dataText string
		steps, data                                                       multiFlag
		clearSteps, reset                                                 bool
	)
	fs.StringVar(&title, "title", "", "new title")
	fs.StringVar(&description, "description", "", "new description")
	fs.StringVar(&preconditions, "preconditions", "", "new preconditions")
	fs.Var(&steps, "step", "replacement step, repeat in order")
	fs.BoolVar(&clearSteps, "clear-steps", false, "remove every step")
	fs.Var(&data, "data", "replacement test data key=value, repeatable")
	fs.StringVar(&dataText, "data-text", "", "replacement free-text test data")
	fs.StringVar(&expected, "expected", "", "new expected result")
	fs.StringVar(&comments, "comments", "", "new comments")
	fs.BoolVar(&reset, "reset", false, "return the test case to NotRun and clear its execution")
	id, err := parseWithID(fs, args)
	if err != nil {
		return err
	}

	var patch domain.Patch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			patch.Title = &title
		case "description":
			patch.Description = &description
		case "preconditions":
			patch.Preconditions = &preconditions
		case "expected":
			patch.ExpectedResult = &expected
		case "comments":
			patch.Comments = &comments
		}
	})
	switch {
	case clearSteps && len(steps) > 0:
		return usagef("-step and -clear-steps are mutually exclusive")
	case clearSteps:
		empty := []string{}
		patch.Steps = &empty
	case len(steps) > 0:
		s := []string(steps)
		patch.Steps = &s
	}
	if len(data) > 0 || dataText != "" {
		td, err := parseTestData(dataText, data)
		if err != nil {
			return err
		}
		patch.TestData = &td
	}
	patch.ResetExecution = reset
	if patch.IsEmpty() {
		return usagef("nothing to update")
	}

	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	updated, res, err := svc.UpdateTestCase(ctx, id, patch)
	if err != nil {
		return err
	}
	return a.printRecord(updated, res)
}

// filterFlags registers the shared list/summary/report filter flags.
type filterFlags struct {
	statuses multiFlag
	title    string
	sortBy   string
	desc     bool
}

func (f *filterFlags) register(fs *flag.FlagSet, withSort bool) {
	fs.Var(&f.statuses, "status", "only this status, repeatable or comma separated")
	fs.StringVar(&f.title, "title", "", "only titles containing this text")
	if withSort {
		fs.StringVar(&f.sortBy, "sort", "", "sort by id, title, status or dateExecuted")
		fs.BoolVar(&f.desc, "desc", false, "reverse the order")
	}
}

func (f *filterFlags) filter() (domain.Filter, error) {
	out := domain.Filter{TitleContains: f.title, Descending: f.desc}
	for _, raw := range f.statuses {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, err := domain.ParseStatus(part)
			if err != nil {
				return domain.Filter{}, usagef("%v", err)
			}
			out.Statuses = append(out.Statuses, st)
		}
	}
	key, err := domain.ParseSortKey(f.sortBy)
	if err != nil {
		return domain.Filter{}, usagef("%v", err)
	}
	out.SortBy = key
	return out, nil
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "list")
	var ff filterFlags
	ff.register(fs, true)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	filter, err := ff.filter()
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	seq, err := svc.ListTestCases(ctx, filter)
	if err != nil {
		return err
	}
	records := []domain.TestCase{}
	for tc := range seq {
		records = append(records, tc)
	}
	return a.printList(records)
}

func runRecord(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "record")
	var status, actual, testedBy string
	fs.StringVar(&status, "status", "", "Pass, Fail or Blocked")
	fs.StringVar(&actual, "actual", "", "observed result")
	fs.StringVar(&testedBy, "by", "", "who ran the test")
	id, err := parseWithID(fs, args)
	if err != nil {
		return err
	}
	if status == "" || testedBy == "" {
		return usagef("-status and -by are required")
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return usagef("%v", err)
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	updated, res, err := svc.RecordExecution(ctx, id, st, actual, testedBy)
	if err != nil {
		return err
	}
	return a.printRecord(updated, res)
}

func runArchive(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "archive")
	var reason string
	fs.StringVar(&reason, "reason", "", "why the test case is retired")
	id, err := parseWithID(fs, args)
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	archived, _, err := svc.ArchiveTestCase(ctx, id, reason)
	if err != nil {
		return err
	}
	if a.json {
		return a.writeJSON(map[string]any{"archived": archived})
	}
	_, err = fmt.Fprintf(a.stdout, "archived %s at %s\n", archived.Record.ID, formatTime(&archived.ArchivedAt))
	return err
}

func runArchived(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "archived")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	entries, err := svc.ListArchived(ctx)
	if err != nil {
		return err
	}
	return a.printArchived(entries)
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "history")
	id, err := parseWithID(fs, args)
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	revs, err := svc.Revisions(ctx, id)
	if err != nil {
		return err
	}
	return a.printRevisions(revs)
}

func runSummary(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "summary")
	var ff filterFlags
	ff.register(fs, false)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	filter, err := ff.filter()
	if err != nil {
		return err
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	summary, err := svc.Summary(ctx, filter)
	if err != nil {
		return err
	}
	return a.printSummary(summary)
}

func runImport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "import")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usagef("a catalog file or directory is required")
	}
	var sources []catalog.Source
	for _, path := range fs.Args() {
		loaded, err := catalog.Load(path)
		if err != nil {
			return err
		}
		sources = append(sources, loaded...)
	}
	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	rep, err := catalog.Import(ctx, svc, sources)
	if err != nil {
		return err
	}
	if perr := a.printImport(rep); perr != nil {
		return perr
	}
	return rep.Err()
}

func runReport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "report")
	var (
		ff          filterFlags
		formats     multiFlag
		publish     bool
		requestedBy string
	)
	ff.register(fs, true)
	fs.Var(&formats, "format", "markdown, csv or json; repeatable when publishing")
	fs.BoolVar(&publish, "publish", false, "store every requested format in artifact storage")
	fs.StringVar(&requestedBy, "by", "", "requester recorded on published reports")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	filter, err := ff.filter()
	if err != nil {
		return err
	}
	var parsed []report.Format
	for _, raw := range formats {
		for _, part := range strings.Split(raw, ",") {
			f, err := report.ParseFormat(part)
			if err != nil {
				return usagef("%v", err)
			}
			parsed = append(parsed, f)
		}
	}

	svc, err := a.service(ctx)
	if err != nil {
		return err
	}
	if !publish {
		if len(parsed) > 1 {
			return usagef("only one -format can be written to stdout; use -publish for several")
		}
		f := report.FormatMarkdown
		if len(parsed) == 1 {
			f = parsed[0]
		}
		seq, err := svc.ListTestCases(ctx, filter)
		if err != nil {
			return err
		}
		var records []domain.TestCase
		for tc := range seq {
			records = append(records, tc)
		}
		return report.Render(a.stdout, f, report.NewData(records, time.Now().UTC()))
	}

	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return fmt.Errorf("open artifact storage: %w", err)
	}
	pub := report.NewPublisher(svc, store, report.WithLogger(a.logger))
	job, err := pub.Publish(ctx, report.Request{Filter: filter, Formats: parsed, RequestedBy: requestedBy})
	if err != nil {
		return err
	}
	return a.printJob(job)
}
