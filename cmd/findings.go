package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/synth/copilot-review-agent/internal/output"
	"github.com/synth/copilot-review-agent/internal/store"
	"github.com/synth/copilot-review-agent/pkg/models"
)

// FindingsCommand returns the findings command
func FindingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "findings",
		Usage: "Inspect and update stored findings",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List stored findings",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Only findings from this run ID (defaults to the latest run)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "List findings across all runs",
					},
					&cli.StringFlag{
						Name:  "severity",
						Usage: "Only findings with this severity (info, warning, critical)",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only findings with this status (open, in-progress, fixed, skipped)",
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "Only findings in this file path",
					},
				},
				Action: runFindingsList,
			},
			{
				Name:      "update",
				Usage:     "Update the status of a finding",
				ArgsUsage: "FINDING_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "status",
						Usage:    "New status (open, in-progress, fixed, skipped)",
						Required: true,
					},
				},
				Action: runFindingsUpdate,
			},
		},
	}
}

func runFindingsList(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	filter := store.FindingFilter{
		RunID: c.String("run"),
		File:  c.String("file"),
	}
	if v := c.String("severity"); v != "" {
		severity := models.FindingSeverity(v)
		if !severity.Valid() {
			return fmt.Errorf("unknown severity %q", v)
		}
		filter.Severity = severity
	}
	if v := c.String("status"); v != "" {
		status := models.FindingStatus(v)
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", v)
		}
		filter.Status = status
	}

	st, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ui := output.New()
	if filter.RunID == "" && !c.Bool("all") {
		run, err := st.LatestRun(c.Context)
		if errors.Is(err, store.ErrNotFound) {
			ui.Info("No runs recorded yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to resolve latest run: %w", err)
		}
		filter.RunID = run.ID
	}

	findings, err := st.ListFindings(c.Context, filter)
	if err != nil {
		return fmt.Errorf("failed to list findings: %w", err)
	}

	if len(findings) == 0 {
		ui.Info("No findings matched")
		return nil
	}

	plain := make([]models.Finding, len(findings))
	for i, f := range findings {
		plain[i] = *f
	}
	return renderFindingsTable(ui, plain)
}

func runFindingsUpdate(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: finding ID")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	status := models.FindingStatus(c.String("status"))
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", c.String("status"))
	}

	st, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	finding, err := st.UpdateFindingStatus(c.Context, c.Args().Get(0), status)
	if err != nil {
		return fmt.Errorf("failed to update finding: %w", err)
	}

	ui := output.New()
	ui.Success("Finding %s is now %s", finding.ID, output.StatusColor(finding.Status))
	return nil
}

// renderFindingsTable prints findings in a fixed column layout shared by
// the review, runs and findings commands.
func renderFindingsTable(ui *output.UI, findings []models.Finding) error {
	table := ui.Table([]string{"ID", "SEVERITY", "LOCATION", "STATUS", "TITLE"})
	for _, f := range findings {
		table.Append([]string{
			f.ID,
			output.SeverityColor(f.Severity),
			fmt.Sprintf("%s:%s", f.File, lineRange(f)),
			output.StatusColor(f.Status),
			f.Title,
		})
	}
	return table.Render()
}

func lineRange(f models.Finding) string {
	if f.EndLine > f.StartLine {
		return fmt.Sprintf("%d-%d", f.StartLine, f.EndLine)
	}
	return fmt.Sprintf("%d", f.StartLine)
}
