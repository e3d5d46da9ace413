// Package candid fetches the Candid interface of every deployed canister
// in the registry and stores it next to the canister sources.
package candid

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/nnsdao/cisync/internal/fsutil"
	"github.com/nnsdao/cisync/internal/layout"
	"github.com/nnsdao/cisync/internal/registry"
	"golang.org/x/sync/errgroup"
)

// Options tune a synchronizer run
type Options struct {
	Network       string        // registry key holding the production id
	OutputDir     string        // relative to the project root
	LayoutPattern string        // root-level glob marking a supported project
	Concurrency   int           // max in-flight queries, 0 for unbounded
	Timeout       time.Duration // per query, 0 for the transport default
	DryRun        bool
}

// Synchronizer orchestrates the candid sync
type Synchronizer struct {
	fs      billy.Filesystem
	querier Querier
	logger  *slog.Logger
	opts    Options

	// fsMu serializes filesystem access; billy implementations such as
	// memfs are not safe for concurrent use. Queries still run in parallel.
	fsMu sync.Mutex
}

// NewSynchronizer creates a new synchronizer rooted at fsys
func NewSynchronizer(fsys billy.Filesystem, querier Querier, logger *slog.Logger, opts Options) *Synchronizer {
	return &Synchronizer{
		fs:      fsys,
		querier: querier,
		logger:  logger,
		opts:    opts,
	}
}

// Run synchronizes every registry entry concurrently and returns once all
// of them are done. Writes to the filesystem happen one at a time. One entry failing never affects the others. The
// returned error is a *SyncError when at least one fetch failed; the
// report is returned in every case except a failed layout probe.
func (s *Synchronizer) Run(ctx context.Context, reg *registry.Registry) (*Report, error) {
	s.logger.Info("starting candid sync",
		"canisters", len(reg.Entries),
		"network", s.opts.Network,
		"dry_run", s.opts.DryRun)

	supported, err := layout.IsSupportedProject(s.fs, s.opts.LayoutPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to detect project layout: %w", err)
	}
	if !supported {
		s.logger.Info("no file matches layout pattern, interfaces will not be written",
			"pattern", s.opts.LayoutPattern)
	}

	report := &Report{}

	// No derived context: a failed entry must not cancel the rest.
	var g errgroup.Group
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}

	for _, entry := range reg.Entries {
		g.Go(func() error {
			report.add(s.syncEntry(ctx, entry, supported))
			return nil
		})
	}
	_ = g.Wait()

	report.sort()

	s.logger.Info("candid sync finished",
		"written", report.Count(StatusWritten),
		"skipped", report.Count(StatusSkippedNoID)+report.Count(StatusSkippedLayout),
		"write_failed", report.Count(StatusWriteFailed),
		"fetch_failed", report.Count(StatusFetchFailed))

	return report, report.Err()
}

// syncEntry fetches and stores the interface of a single canister
func (s *Synchronizer) syncEntry(ctx context.Context, entry registry.Entry, supported bool) Result {
	res := Result{Name: entry.Name}

	id, ok := entry.ProductionID(s.opts.Network)
	if !ok {
		if entry.Raw != "" {
			s.logger.Debug("registry value is not keyed by network, skipping",
				"canister", entry.Name, "value", entry.Raw)
		} else {
			s.logger.Debug("no production id, skipping", "canister", entry.Name, "network", s.opts.Network)
		}
		res.Status = StatusSkippedNoID
		return res
	}
	res.CanisterID = id

	target := layout.CandidPath(s.opts.OutputDir, entry.Name)

	if s.opts.DryRun {
		s.logger.Info("[dry-run] would fetch candid interface", "canister", entry.Name, "id", id, "dest", target)
		res.Status = StatusDryRun
		return res
	}

	callCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	text, err := s.querier.CandidInterface(callCtx, id)
	if err != nil {
		s.logger.Error("failed to fetch candid interface", "canister", entry.Name, "id", id, "error", err)
		res.Status = StatusFetchFailed
		res.Err = err
		return res
	}

	if !supported {
		res.Status = StatusSkippedLayout
		return res
	}

	// A missing directory means the entry is deployed from somewhere else
	// (e.g. a second id for the same canister); log it and move on.
	s.fsMu.Lock()
	err = fsutil.WriteFileAtomic(s.fs, target, []byte(text), 0644)
	s.fsMu.Unlock()
	if err != nil {
		s.logger.Error("failed to write candid interface", "canister", entry.Name, "dest", target, "error", err)
		res.Status = StatusWriteFailed
		res.Err = err
		return res
	}

	s.logger.Info("wrote candid interface", "canister", entry.Name, "dest", target, "bytes", len(text))
	res.Path = target
	res.Status = StatusWritten
	return res
}
