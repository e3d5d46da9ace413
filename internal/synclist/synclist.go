// Package synclist appends file-sync rules for locally built canister
// artifacts to the repository sync configuration.
package synclist

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/nnsdao/cisync/internal/fsutil"
	"github.com/nnsdao/cisync/internal/layout"
	"gopkg.in/yaml.v3"
)

// Options tune a generator run
type Options struct {
	File         string   // sync file, relative to the project root
	ArtifactsDir string   // build output scanned for artifacts
	Extensions   []string // artifact extensions, with leading dot
	DestPrefix   string   // replaces the artifacts dir in dest paths
	Verify       bool     // parse the result as YAML before writing
	DryRun       bool
}

// Result describes a generator run
type Result struct {
	Files   []string
	Rules   []Rule
	Content string // the full rewritten sync file
	Written bool
}

// Generator appends sync rules to the sync file
type Generator struct {
	fs     billy.Filesystem
	logger *slog.Logger
	opts   Options
}

// NewGenerator creates a generator rooted at fsys
func NewGenerator(fsys billy.Filesystem, logger *slog.Logger, opts Options) *Generator {
	return &Generator{
		fs:     fsys,
		logger: logger,
		opts:   opts,
	}
}

// Run reads the sync file, appends one rule per discovered artifact and
// writes the file back. Existing content is kept verbatim and rules are
// never deduplicated, so running twice appends every rule twice. Any
// artifact path without the canisters marker aborts the run before the
// file is touched.
func (g *Generator) Run() (*Result, error) {
	data, err := util.ReadFile(g.fs, g.opts.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync file: %w", err)
	}

	files, err := layout.DiscoverArtifacts(g.fs, g.opts.ArtifactsDir, g.opts.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to discover artifacts: %w", err)
	}

	g.logger.Info("discovered artifacts", "dir", g.opts.ArtifactsDir, "count", len(files))
	g.logger.Debug("sync files", "files", files)

	var b strings.Builder
	b.Write(data)

	rules := make([]Rule, 0, len(files))
	for _, file := range files {
		rule, err := NewRule(file, g.opts.DestPrefix)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
		b.WriteString(rule.Render())
	}

	res := &Result{
		Files:   files,
		Rules:   rules,
		Content: b.String(),
	}

	if g.opts.Verify {
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(res.Content), &doc); err != nil {
			return nil, fmt.Errorf("rewritten sync file is not valid YAML: %w", err)
		}
	}

	g.logger.Debug("sync file content", "content", res.Content)

	if g.opts.DryRun {
		for _, r := range rules {
			g.logger.Info("[dry-run] would append rule", "source", r.Source, "dest", r.Dest)
		}
		return res, nil
	}

	if err := fsutil.WriteFileAtomic(g.fs, g.opts.File, []byte(res.Content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write sync file: %w", err)
	}
	res.Written = true

	g.logger.Info("sync file updated", "file", g.opts.File, "rules", len(rules))
	return res, nil
}
