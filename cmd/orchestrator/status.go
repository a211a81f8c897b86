package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/config"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/paths"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/state"
)

func newStatusCmd() *cobra.Command {
	var historyStep string
	var historyLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a human-readable summary of today's journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if historyStep != "" {
				return printHistory(cfg, historyStep, historyLimit)
			}
			return printStatus(cfg)
		},
	}

	cmd.Flags().StringVar(&historyStep, "history", "", "Print audit history for a single step instead of today's summary")
	cmd.Flags().MarkHidden("history")
	cmd.Flags().IntVar(&historyLimit, "history-limit", 20, "Maximum number of history rows to print")

	return cmd
}

func readJournal(cfg *config.Config) (*state.Journal, error) {
	data, err := os.ReadFile(cfg.Paths.CurrentJournalFile())
	if err != nil {
		return nil, err
	}
	var j state.Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func printStatus(cfg *config.Config) error {
	j, err := readJournal(cfg)
	if err != nil {
		return err
	}

	styled := term.IsTerminal(int(os.Stdout.Fd()))
	palette := catppuccin.Mocha

	names := make([]string, 0, len(j.Steps))
	for name := range j.Steps {
		names = append(names, name)
	}
	sort.Strings(names)

	day, err := time.Parse("2006-01-02", j.Date)
	if err != nil {
		day = time.Now()
	}

	fmt.Printf("day %s (schema v%d, config %s)\n", j.Date, j.SchemaVersion, shortFingerprint(j.ConfigFingerprint))
	for _, name := range names {
		rec := j.Steps[name]
		label := stateLabel(string(rec.State), styled, palette)

		age := "-"
		if rec.LastFinishedAt != nil {
			age = humanize.Time(*rec.LastFinishedAt)
		}
		exit := "-"
		if rec.LastExitCode != nil {
			exit = fmt.Sprintf("%d", *rec.LastExitCode)
		}

		fmt.Printf("  %-24s %-10s attempts=%d exit=%s finished=%s\n", name, label, rec.AttemptsToday, exit, age)
		if rec.LastErrorMessage != "" {
			fmt.Printf("    error: %s\n", rec.LastErrorMessage)
		}
		if rec.AttemptsToday > 0 {
			logPath := cfg.Paths.StepLogFile(day, name, rec.AttemptsToday)
			fmt.Printf("    log: %s\n", paths.FileURI(logPath))
		}
	}
	return nil
}

func stateLabel(s string, styled bool, palette catppuccin.Flavor) string {
	if !styled {
		return s
	}
	var hex string
	switch s {
	case "done":
		hex = palette.Green().Hex
	case "failed":
		hex = palette.Red().Hex
	case "running":
		hex = palette.Yellow().Hex
	case "skipped":
		hex = palette.Overlay1().Hex
	default:
		hex = palette.Text().Hex
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render(s)
}

func shortFingerprint(fp string) string {
	if len(fp) <= 10 {
		return fp
	}
	return fp[:10]
}

func printHistory(cfg *config.Config, step string, limit int) error {
	audit, err := state.OpenAuditLog(cfg.Paths.AuditDBFile())
	if err != nil {
		return err
	}
	defer audit.Close()

	events, err := audit.History(step, limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Printf("no recorded history for step %q\n", step)
		return nil
	}
	for _, e := range events {
		fmt.Printf("%s  %-8s %-8s %s\n", e.RecordedAt.Format(time.RFC3339), e.Day, e.State, e.Message)
	}
	return nil
}
