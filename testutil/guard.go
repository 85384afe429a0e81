// Package testutil provides test helpers that enforce the import layering of
// the module: the domain package stays free of infrastructure, and storage
// adapters are only reached through their owning facade packages.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Rule forbids packages under From from importing any path under Forbid.
// Packages under one of Except are exempt.
type Rule struct {
	Name   string
	From   string
	Forbid []string
	Except []string
}

// Violation is one forbidden import edge.
type Violation struct {
	Rule    string
	Package string
	Import  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s imports %s", v.Rule, v.Package, v.Import)
}

// ImportGraph maps a package path to its direct imports.
type ImportGraph map[string][]string

// HasPathPrefix reports whether path is prefix or lies below it.
func HasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if HasPathPrefix(path, p) {
			return true
		}
	}
	return false
}

// Check returns the violations of rules in g, sorted and de-duplicated.
func (g ImportGraph) Check(rules ...Rule) []Violation {
	seen := make(map[Violation]struct{})
	for pkg, imports := range g {
		for _, r := range rules {
			if !HasPathPrefix(pkg, r.From) || underAny(pkg, r.Except) {
				continue
			}
			for _, imp := range imports {
				if underAny(imp, r.Forbid) {
					seen[Violation{Rule: r.Name, Package: pkg, Import: imp}] = struct{}{}
				}
			}
		}
	}
	out := make([]Violation, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// LoadImportGraph loads pattern, test variants included, and records each
// package's direct imports. Test variants share their package path.
func LoadImportGraph(t testing.TB, pattern string) ImportGraph {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		t.Fatalf("load packages %s: %v", pattern, err)
	}
	g := make(ImportGraph)
	for _, pkg := range pkgs {
		for imp := range pkg.Imports {
			g[pkg.PkgPath] = append(g[pkg.PkgPath], imp)
		}
	}
	return g
}

type fatalLogger interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

func report(t fatalLogger, viols []Violation) {
	t.Helper()
	if len(viols) == 0 {
		return
	}
	for _, v := range viols {
		t.Errorf("%s", v)
	}
	t.Fatalf("found %d forbidden imports", len(viols))
}

// AssertLayering fails t when any package matched by pattern breaks rules.
func AssertLayering(t testing.TB, pattern string, rules ...Rule) {
	t.Helper()
	report(t, LoadImportGraph(t, pattern).Check(rules...))
}

// DirectImports parses the non-test Go files in dir and returns their import
// paths keyed by file name. It does not evaluate build tags.
func DirectImports(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	out := make(map[string][]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			out[name] = append(out[name], strings.Trim(imp.Path.Value, `"`))
		}
	}
	return out, nil
}

// AssertNoDirectImports fails t when a non-test file in dir imports a path
// under one of forbidden. It needs no build and suits fast package-local checks.
func AssertNoDirectImports(t testing.TB, dir string, forbidden ...string) {
	t.Helper()
	files, err := DirectImports(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	var viols []Violation
	for name, imports := range files {
		for _, imp := range imports {
			if underAny(imp, forbidden) {
				viols = append(viols, Violation{Rule: "direct import", Package: name, Import: imp})
			}
		}
	}
	sort.Slice(viols, func(i, j int) bool { return viols[i].String() < viols[j].String() })
	report(t, viols)
}
