// Package review orchestrates the pipeline from branch diff to
// deduplicated findings: parse, render context, pack chunks, fan the
// chunks out to an analyzer and merge what comes back.
package review

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/synth/copilot-review-agent/internal/chunk"
	"github.com/synth/copilot-review-agent/internal/dedup"
	"github.com/synth/copilot-review-agent/internal/diff"
	"github.com/synth/copilot-review-agent/internal/excerpt"
	"github.com/synth/copilot-review-agent/internal/redact"
	"github.com/synth/copilot-review-agent/internal/retry"
	"github.com/synth/copilot-review-agent/pkg/models"
)

// DefaultWorkers is the analyzer fan-out used when Options.Workers is
// unset.
const DefaultWorkers = 4

// Options configures one review run.
type Options struct {
	BaseRef             string
	HeadRef             string
	ExcludePatterns     []string
	Instructions        string
	MarginLines         int
	TokenBudget         int
	MaxFilesPerChunk    int
	CharsPerToken       int
	SimilarityThreshold float64
	RedactSecrets       bool
	Workers             int
	RatePerSecond       float64
	Retry               retry.Config
}

// Result carries everything a run produced. ChunkErrs holds per-chunk
// analysis failures; they never abort the run.
type Result struct {
	Files     []models.FileChange
	Chunks    []models.ReviewChunk
	Findings  []models.Finding
	ChunkErrs []error
}

// Service wires the parsing, windowing, chunking and analysis stages.
type Service struct {
	source   Source
	analyzer Analyzer
	parser   *diff.Parser
}

// NewService returns a review service reading from source and sending
// chunks to analyzer.
func NewService(source Source, analyzer Analyzer) *Service {
	return &Service{
		source:   source,
		analyzer: analyzer,
		parser:   diff.NewParser(),
	}
}

// Plan runs the local stages only: it parses the branch diff, renders
// annotated context and packs chunks without invoking the analyzer.
func (s *Service) Plan(ctx context.Context, opts Options) (*Result, error) {
	diffText, err := s.source.Diff(ctx, opts.BaseRef, opts.HeadRef)
	if err != nil {
		return nil, err
	}

	files := s.parser.Parse(diffText, opts.ExcludePatterns)
	log.Info().
		Int("files", len(files)).
		Str("base", opts.BaseRef).
		Str("head", opts.HeadRef).
		Msg("parsed branch diff")

	inputs := make([]chunk.Input, 0, len(files))
	for i := range files {
		f := &files[i]
		if f.IsBinary || len(f.Hunks) == 0 {
			continue
		}
		if !f.IsDeleted {
			text, err := s.source.FileText(ctx, opts.HeadRef, f.Path)
			if err != nil {
				log.Debug().Err(err).Str("file", f.Path).Msg("file content unavailable, using raw hunks")
			} else {
				f.FullText = text
			}
		}

		rendered := excerpt.BuildContext(*f, f.FullText, opts.MarginLines)
		if rendered == "" {
			continue
		}
		if opts.RedactSecrets {
			rendered = redact.Secrets(rendered)
		}
		inputs = append(inputs, chunk.Input{Change: *f, Context: rendered})
	}

	chunker := chunk.New(opts.TokenBudget, opts.MaxFilesPerChunk, opts.CharsPerToken)
	chunks := chunker.Chunk(inputs)
	log.Info().Int("chunks", len(chunks)).Msg("packed review chunks")

	return &Result{Files: files, Chunks: chunks}, nil
}

// Run executes the full pipeline. Findings come back in chunk order
// with duplicates removed. Chunks that fail after retries are recorded
// in ChunkErrs, and findings gathered before a cancellation are kept.
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	res, err := s.Plan(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(res.Chunks) == 0 {
		log.Info().Msg("nothing to review")
		return res, nil
	}

	findingsByChunk := make([][]models.Finding, len(res.Chunks))
	errs := make([]error, len(res.Chunks))

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(res.Chunks) {
		workers = len(res.Chunks)
	}

	taskCh := make(chan int, len(res.Chunks))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskCh {
				findingsByChunk[idx], errs[idx] = s.analyzeChunk(ctx, res.Chunks[idx], opts, limiter)
			}
		}()
	}
	for idx := range res.Chunks {
		taskCh <- idx
	}
	close(taskCh)
	wg.Wait()

	var all []models.Finding
	for idx := range res.Chunks {
		if errs[idx] != nil {
			log.Warn().Err(errs[idx]).Int("chunk", idx).Msg("chunk analysis failed")
			res.ChunkErrs = append(res.ChunkErrs, errs[idx])
			continue
		}
		all = append(all, findingsByChunk[idx]...)
	}

	res.Findings = dedup.New(opts.SimilarityThreshold).Dedupe(all)
	log.Info().
		Int("raw", len(all)).
		Int("findings", len(res.Findings)).
		Int("failed_chunks", len(res.ChunkErrs)).
		Msg("review complete")
	return res, nil
}

func (s *Service) analyzeChunk(ctx context.Context, c models.ReviewChunk, opts Options, limiter *rate.Limiter) ([]models.Finding, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("chunk %d: %w", c.Index, err)
	}

	var findings []models.Finding
	err := retry.Do(ctx, opts.Retry, func() error {
		var aerr error
		findings, aerr = s.analyzer.Analyze(ctx, c, opts.Instructions)
		return aerr
	})
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", c.Index, err)
	}
	return findings, nil
}
