// Package catalog reads test-case catalogs written in JSON or YAML and
// imports them into the registry.
package catalog

import (
	"caseledger/pkg/domain"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// Extensions lists the file suffixes LoadDir picks up.
var Extensions = []string{".json", ".yaml", ".yml"}

// Document is the object form of a catalog. A catalog may also be a bare
// list of test cases.
type Document struct {
	TestCases []domain.TestCase `json:"testCases"`
}

// Source is one parsed catalog file.
type Source struct {
	Path      string
	TestCases []domain.TestCase
}

// ParseJSONOrYAML is used like json.Unmarshal; YAML input is converted to
// JSON first so the json struct tags and custom unmarshalers apply.
func ParseJSONOrYAML(data []byte, target any) error {
	if err := json.Unmarshal(data, target); err == nil {
		return nil
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	normalized, err := normalizeYAML(raw)
	if err != nil {
		return err
	}
	jsonData, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, target)
}

func normalizeYAML(data any) (any, error) {
	switch data := data.(type) {
	case []any:
		out := make([]any, 0, len(data))
		for _, v := range data {
			v1, err := normalizeYAML(v)
			if err != nil {
				return nil, err
			}
			out = append(out, v1)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(data))
		for k, v := range data {
			v1, err := normalizeYAML(v)
			if err != nil {
				return nil, err
			}
			out[k] = v1
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(data))
		for k, v := range data {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("YAML map key %v has type %T; only string keys are allowed", k, k)
			}
			v1, err := normalizeYAML(v)
			if err != nil {
				return nil, err
			}
			out[key] = v1
		}
		return out, nil
	default:
		return data, nil
	}
}

// Parse decodes a catalog in either the list or the document form. An empty
// input yields no test cases.
func Parse(data []byte) ([]domain.TestCase, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	var list []domain.TestCase
	listErr := ParseJSONOrYAML(data, &list)
	if listErr == nil {
		return list, nil
	}
	var doc Document
	if err := ParseJSONOrYAML(data, &doc); err != nil {
		return nil, errors.Join(listErr, err)
	}
	if doc.TestCases == nil {
		return nil, errors.New("catalog has no testCases list")
	}
	return doc.TestCases, nil
}

// LoadFile reads and parses one catalog file.
func LoadFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("read catalog: %w", err)
	}
	cases, err := Parse(data)
	if err != nil {
		return Source{}, fmt.Errorf("parse catalog %q: %w", filepath.Base(path), err)
	}
	return Source{Path: path, TestCases: cases}, nil
}

// LoadDir parses every catalog file directly under dir in name order.
func LoadDir(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !hasCatalogExt(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	sources := make([]Source, 0, len(names))
	for _, name := range names {
		src, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Load parses path, which may be a file or a directory of catalogs.
func Load(path string) ([]Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	src, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return []Source{src}, nil
}

func hasCatalogExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
