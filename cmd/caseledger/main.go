// Command caseledger manages a test-case registry: it creates, executes,
// archives and summarizes test cases, imports catalogs, publishes reports and
// serves the registry over HTTP.
package main

import (
	"caseledger/internal/config"
	"caseledger/internal/core"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
)

var exitFunc = os.Exit

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"create":   {"create a test case", runCreate},
	"get":      {"show one test case", runGet},
	"update":   {"change fields of a test case", runUpdate},
	"list":     {"list active test cases", runList},
	"record":   {"record an execution outcome", runRecord},
	"archive":  {"move a test case to the archive", runArchive},
	"archived": {"list archived test cases", runArchived},
	"history":  {"show the superseded versions of a test case", runHistory},
	"summary":  {"aggregate status counts", runSummary},
	"import":   {"import a YAML or JSON catalog file or directory", runImport},
	"report":   {"render or publish a test-case report", runReport},
	"serve":    {"serve the registry over HTTP", runServe},
}

// usageError marks bad invocations; cli exits with 2 for them.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// app carries the per-invocation configuration and registry.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
	json   bool

	svc *core.Service
}

// service opens the registry lazily so commands that fail flag parsing never
// touch storage.
func (a *app) service(ctx context.Context, opts ...core.Option) (*core.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	store, err := core.OpenStore(ctx, a.cfg.Storage, nil)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	opts = append([]core.Option{core.WithLogger(a.logger)}, opts...)
	a.svc = core.NewService(store, opts...)
	return a.svc, nil
}

func (a *app) close() error {
	if a.svc == nil {
		return nil
	}
	return a.svc.Close()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("caseledger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath string
		jsonOut    bool
		noColor    bool
	)
	fs.StringVar(&configPath, "config", "", "path to YAML config (default $"+config.EnvConfigPath+")")
	fs.BoolVar(&jsonOut, "json", false, "write JSON instead of text")
	fs.BoolVar(&noColor, "no-color", false, "disable colored output")
	fs.Usage = func() { printUsage(fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		printUsage(fs)
		return 2
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", name)
		printUsage(fs)
		return 2
	}
	if noColor {
		color.NoColor = true
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	a := &app{
		cfg:    cfg,
		logger: cfg.Log.NewLogger(stderr),
		stdout: stdout,
		stderr: stderr,
		json:   jsonOut,
	}
	err = cmd.run(ctx, a, fs.Args()[1:])
	if cerr := a.close(); cerr != nil && err == nil {
		err = fmt.Errorf("close storage: %w", cerr)
	}
	if err == nil {
		return 0
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	var ue usageError
	if errors.As(err, &ue) {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 2
	}
	_, _ = errorColor.Fprintf(stderr, "%s: %v\n", name, err)
	return 1
}

func printUsage(fs *flag.FlagSet) {
	out := fs.Output()
	_, _ = fmt.Fprintln(out, "usage: caseledger [flags] <command> [args]")
	_, _ = fmt.Fprintln(out, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(out, "  %-9s %s\n", name, commands[name].summary)
	}
	_, _ = fmt.Fprintln(out, "\nflags:")
	fs.PrintDefaults()
}
