package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/synth/copilot-review-agent/internal/analyze"
	"github.com/synth/copilot-review-agent/internal/config"
	"github.com/synth/copilot-review-agent/internal/gitsource"
	"github.com/synth/copilot-review-agent/internal/output"
	"github.com/synth/copilot-review-agent/internal/retry"
	"github.com/synth/copilot-review-agent/internal/review"
	"github.com/synth/copilot-review-agent/pkg/models"
)

// ReviewCommand returns the review command
func ReviewCommand() *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Review the changes between two git refs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "repo",
				Usage: "Path inside the repository to review",
				Value: ".",
			},
			&cli.StringFlag{
				Name:    "base",
				Aliases: []string{"b"},
				Usage:   "Base ref to diff against (defaults to review.base_ref)",
			},
			&cli.StringFlag{
				Name:  "head",
				Usage: "Head ref to review (defaults to review.head_ref)",
			},
			&cli.StringSliceFlag{
				Name:    "exclude",
				Aliases: []string{"e"},
				Usage:   "Glob pattern of paths to skip (repeatable)",
			},
			&cli.StringFlag{
				Name:    "instructions",
				Aliases: []string{"i"},
				Usage:   "Extra instructions passed to the analyzer",
			},
			&cli.BoolFlag{
				Name:  "plan",
				Usage: "Print the chunk plan without invoking the analyzer",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Run the review without saving the results",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text or json",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:  "fail-on",
				Usage: "Exit non-zero when findings at or above this severity exist (info, warning, critical)",
				Value: "none",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose output for this command",
			},
		},
		Action: runReview,
	}
}

func runReview(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	format := c.String("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q", format)
	}
	failOn, err := parseFailOn(c.String("fail-on"))
	if err != nil {
		return err
	}

	ui := output.New()
	ui.Verbose = c.Bool("verbose")
	ui.DryRun = c.Bool("dry-run")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	source, err := gitsource.Open(ctx, c.String("repo"))
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	ui.VerboseLog("Repository root: %s", source.Root())

	opts := reviewOptions(cfg, c)

	if c.Bool("plan") {
		svc := review.NewService(source, nil)
		res, err := svc.Plan(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to plan review: %w", err)
		}
		return renderPlan(ui, res, format)
	}

	if len(cfg.Analyzer.Command) == 0 {
		return fmt.Errorf("no analyzer command configured: set [analyzer] command in the config file")
	}
	analyzer, err := analyze.New(cfg.Analyzer.Command, time.Duration(cfg.Analyzer.TimeoutSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	ui.Info("Reviewing %s..%s", opts.BaseRef, opts.HeadRef)

	svc := review.NewService(source, analyzer)
	res, err := svc.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("review failed: %w", err)
	}

	for _, chunkErr := range res.ChunkErrs {
		ui.Warning("%v", chunkErr)
	}
	if len(res.Chunks) > 0 && len(res.ChunkErrs) == len(res.Chunks) {
		return fmt.Errorf("all %d chunks failed to analyze", len(res.Chunks))
	}

	run := &models.ReviewRun{
		RepoPath:     source.Root(),
		BaseRef:      opts.BaseRef,
		HeadRef:      opts.HeadRef,
		FileCount:    len(res.Files),
		ChunkCount:   len(res.Chunks),
		FindingCount: len(res.Findings),
	}

	if !c.Bool("dry-run") && len(res.Chunks) > 0 {
		st, err := openStore(c, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.CreateRun(ctx, run, res.Findings); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
	}

	if err := renderResult(ui, run, res, format); err != nil {
		return err
	}

	if !c.Bool("dry-run") && run.ID != "" {
		ui.Success("Saved run %s", run.ID)
	}
	ui.DryRunMsg("results were not saved")

	if failOn != "" {
		if n := countAtOrAbove(res.Findings, failOn); n > 0 {
			return cli.Exit(fmt.Sprintf("%d findings at or above %s severity", n, failOn), 2)
		}
	}

	return nil
}

// reviewOptions maps config onto pipeline options, with command flags
// taking precedence.
func reviewOptions(cfg *config.Config, c *cli.Context) review.Options {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Analyzer.MaxRetries

	opts := review.Options{
		BaseRef:             cfg.Review.BaseRef,
		HeadRef:             cfg.Review.HeadRef,
		ExcludePatterns:     cfg.Review.Exclude,
		Instructions:        cfg.Review.Instructions,
		MarginLines:         cfg.Review.ContextMarginLines,
		TokenBudget:         cfg.Review.TokenBudget,
		MaxFilesPerChunk:    cfg.Review.MaxFilesPerChunk,
		CharsPerToken:       cfg.Review.CharsPerToken,
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		RedactSecrets:       cfg.Review.RedactSecrets,
		Workers:             cfg.Analyzer.Workers,
		RatePerSecond:       cfg.Analyzer.RatePerSecond,
		Retry:               retryCfg,
	}

	if v := c.String("base"); v != "" {
		opts.BaseRef = v
	}
	if v := c.String("head"); v != "" {
		opts.HeadRef = v
	}
	if v := c.StringSlice("exclude"); len(v) > 0 {
		opts.ExcludePatterns = append(opts.ExcludePatterns, v...)
	}
	if v := c.String("instructions"); v != "" {
		opts.Instructions = v
	}

	return opts
}

func parseFailOn(value string) (models.FindingSeverity, error) {
	if value == "" || value == "none" {
		return "", nil
	}
	severity := models.FindingSeverity(value)
	if !severity.Valid() {
		return "", fmt.Errorf("unknown fail-on severity %q", value)
	}
	return severity, nil
}

func countAtOrAbove(findings []models.Finding, threshold models.FindingSeverity) int {
	n := 0
	for _, f := range findings {
		if f.Severity.Rank() >= threshold.Rank() {
			n++
		}
	}
	return n
}

// renderPlan prints the chunk plan produced without analysis.
func renderPlan(ui *output.UI, res *review.Result, format string) error {
	if format == "json" {
		type planFile struct {
			Path   string `json:"path"`
			Tokens int    `json:"tokens"`
		}
		type planChunk struct {
			Index  int        `json:"index"`
			Tokens int        `json:"tokens"`
			Files  []planFile `json:"files"`
		}
		plan := make([]planChunk, 0, len(res.Chunks))
		for _, ch := range res.Chunks {
			pc := planChunk{Index: ch.Index, Tokens: ch.Tokens}
			for _, f := range ch.Files {
				pc.Files = append(pc.Files, planFile{Path: f.Path, Tokens: f.Tokens})
			}
			plan = append(plan, pc)
		}
		return printJSON(ui, map[string]interface{}{
			"files":  len(res.Files),
			"chunks": plan,
		})
	}

	if len(res.Chunks) == 0 {
		ui.Info("No changes to review")
		return nil
	}

	ui.Info("%d files changed, %d chunks planned", len(res.Files), len(res.Chunks))
	table := ui.Table([]string{"CHUNK", "TOKENS", "FILES"})
	for _, ch := range res.Chunks {
		paths := make([]string, 0, len(ch.Files))
		for _, f := range ch.Files {
			paths = append(paths, f.Path)
		}
		table.Append([]string{
			fmt.Sprintf("%d", ch.Index),
			fmt.Sprintf("%d", ch.Tokens),
			strings.Join(paths, ", "),
		})
	}
	return table.Render()
}

// renderResult prints findings from a completed run.
func renderResult(ui *output.UI, run *models.ReviewRun, res *review.Result, format string) error {
	if format == "json" {
		chunkErrs := make([]string, 0, len(res.ChunkErrs))
		for _, err := range res.ChunkErrs {
			chunkErrs = append(chunkErrs, err.Error())
		}
		return printJSON(ui, map[string]interface{}{
			"run":          run,
			"findings":     res.Findings,
			"chunk_errors": chunkErrs,
		})
	}

	if len(res.Findings) == 0 {
		ui.Success("No findings in %d files", len(res.Files))
		return nil
	}

	if err := renderFindingsTable(ui, res.Findings); err != nil {
		return err
	}
	ui.Info("%s", severitySummary(res.Findings))
	return nil
}

func printJSON(ui *output.UI, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, string(data))
	return nil
}

func severitySummary(findings []models.Finding) string {
	counts := map[models.FindingSeverity]int{}
	for _, f := range findings {
		counts[f.Severity]++
	}

	parts := make([]string, 0, 3)
	if n := counts[models.SeverityCritical]; n > 0 {
		parts = append(parts, output.Red(fmt.Sprintf("%d critical", n)))
	}
	if n := counts[models.SeverityWarning]; n > 0 {
		parts = append(parts, output.Yellow(fmt.Sprintf("%d warning", n)))
	}
	if n := counts[models.SeverityInfo]; n > 0 {
		parts = append(parts, output.Cyan(fmt.Sprintf("%d info", n)))
	}
	return fmt.Sprintf("%d findings: %s", len(findings), strings.Join(parts, ", "))
}
