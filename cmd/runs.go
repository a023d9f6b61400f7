package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/synth/copilot-review-agent/internal/output"
	"github.com/synth/copilot-review-agent/internal/store"
	"github.com/synth/copilot-review-agent/pkg/models"
)

// RunsCommand returns the runs command
func RunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect stored review runs",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent review runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of runs to show",
						Value:   20,
					},
				},
				Action: runRunsList,
			},
			{
				Name:      "show",
				Usage:     "Show one run and its findings",
				ArgsUsage: "RUN_ID (or \"latest\")",
				Action:    runRunsShow,
			},
		},
	}
}

func runRunsList(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	st, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(c.Context, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	ui := output.New()
	if len(runs) == 0 {
		ui.Info("No runs recorded yet")
		return nil
	}

	table := ui.Table([]string{"ID", "CREATED", "RANGE", "FILES", "CHUNKS", "FINDINGS"})
	for _, run := range runs {
		table.Append([]string{
			run.ID,
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%s..%s", run.BaseRef, run.HeadRef),
			fmt.Sprintf("%d", run.FileCount),
			fmt.Sprintf("%d", run.ChunkCount),
			fmt.Sprintf("%d", run.FindingCount),
		})
	}
	return table.Render()
}

func runRunsShow(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: run ID")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	st, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var run *models.ReviewRun
	if id := c.Args().Get(0); id == "latest" {
		run, err = st.LatestRun(c.Context)
	} else {
		run, err = st.GetRun(c.Context, id)
	}
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	ui := output.New()
	ui.Info("Run %s", output.Cyan(run.ID))
	ui.Info("Reviewed %s..%s in %s", run.BaseRef, run.HeadRef, run.RepoPath)
	ui.Info("%d files, %d chunks, %d findings at %s",
		run.FileCount, run.ChunkCount, run.FindingCount,
		run.CreatedAt.Local().Format("2006-01-02 15:04"))

	findings, err := st.ListFindings(c.Context, store.FindingFilter{RunID: run.ID})
	if err != nil {
		return fmt.Errorf("failed to list findings: %w", err)
	}
	if len(findings) == 0 {
		ui.Success("No findings for this run")
		return nil
	}

	plain := make([]models.Finding, len(findings))
	for i, f := range findings {
		plain[i] = *f
	}
	return renderFindingsTable(ui, plain)
}
