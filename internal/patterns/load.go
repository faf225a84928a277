package patterns

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileTable struct {
	Version  string        `yaml:"version"`
	Features []fileFeature `yaml:"features"`
	Groups   map[string][]string `yaml:"groups"`
}

type fileFeature struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Target  string `yaml:"target"`
}

var knownCategories = map[Category]struct{}{
	SQLiHigh: {}, SQLiLow: {}, CodeInjection: {}, XSS: {}, Traversal: {},
	SSRF: {}, TLSProbe: {}, Webshell: {}, UploadExec: {}, Static: {},
}

// Load builds a table from the built-in defaults extended with the entries in
// a YAML file. Extra feature patterns are appended after the built-in columns
// so existing model bundles keep their column positions; extra group patterns
// join the named category. Any invalid entry fails the whole load; a partial
// pattern table is worse than a startup error.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}

	var file fileTable
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}

	version := DefaultVersion
	if file.Version != "" {
		version = DefaultVersion + "+" + file.Version
	}

	t, err := build(version)
	if err != nil {
		return nil, err
	}

	b := &tableBuilder{t: t}
	for i, f := range file.Features {
		if f.Name == "" || f.Pattern == "" {
			b.errs = append(b.errs, fmt.Sprintf("features[%d]: name and pattern are required", i))
			continue
		}
		target := TargetURL
		switch f.Target {
		case "", "url":
		case "agent":
			target = TargetAgent
		default:
			b.errs = append(b.errs, fmt.Sprintf("features[%d]: target must be url|agent", i))
			continue
		}
		b.feature(f.Name, target, f.Pattern)
	}

	for name, exprs := range file.Groups {
		cat := Category(name)
		if _, ok := knownCategories[cat]; !ok {
			b.errs = append(b.errs, fmt.Sprintf("groups.%s: unknown category", name))
			continue
		}
		b.group(cat, exprs...)
	}

	return b.build()
}
