package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/database"
	"github.com/nao1215/lightscan/internal/model"
)

// Score trend directions.
const (
	trendImproved  = "improved"
	trendRegressed = "regressed"
	trendUnchanged = "unchanged"
)

// NewHistoryCmd creates the history command.
// This command lists and compares runs stored in the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show and compare stored runs",
		Long: `History lists the runs stored for a URL, newest first.

With --compare it shows how every audit score changed between the latest run
and the one before it, or the run given with --with-run.

Examples:
  # List runs for a page
  lightscan history https://example.com

  # Compare the latest two runs
  lightscan history --compare https://example.com

  # Compare the latest run with a specific earlier run
  lightscan history --compare --with-run 0b6f3c1e-... https://example.com

  # List every audited URL
  lightscan history --list-urls`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-urls", "L", false,
		"List every URL with stored runs")
	cmd.Flags().BoolP("compare", "C", false,
		"Compare the latest run with an earlier one")
	cmd.Flags().String("with-run", "",
		"Run ID to compare the latest run with (default: the previous run)")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory holding the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	listURLs, err := flags.GetBool("list-urls")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if !listURLs && len(args) == 0 {
		return errors.New("a URL is required (use --list-urls to see audited URLs)")
	}

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	compare, err := flags.GetBool("compare")
	if err != nil {
		return err
	}
	withRun, err := flags.GetString("with-run")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case listURLs:
		return listAuditedURLs(ctx, out, db)
	case compare:
		return compareRuns(ctx, out, db, args[0], withRun, jsonOutput)
	default:
		return listRunHistory(ctx, out, db, args[0], jsonOutput)
	}
}

// listAuditedURLs lists all URLs that have runs in the database.
func listAuditedURLs(ctx context.Context, out io.Writer, db *database.RunDB) error {
	urls, err := db.ListAuditedURLs(ctx)
	if err != nil {
		return err
	}

	if len(urls) == 0 {
		fmt.Fprintln(out, "No runs found in the database.")
		fmt.Fprintln(out, "\nUse 'lightscan run <url>' to audit a page.")
		return nil
	}

	fmt.Fprintf(out, "Audited URLs (%d):\n\n", len(urls))
	for _, u := range urls {
		fmt.Fprintf(out, "  • %s\n", u)
	}
	fmt.Fprintln(out, "\nUse 'lightscan history <url>' to see the runs for a URL.")
	return nil
}

// listRunHistory lists all runs for url.
func listRunHistory(ctx context.Context, out io.Writer, db *database.RunDB, url string, jsonOutput bool) error {
	runs, err := db.GetRunHistoryWithMetadata(ctx, url)
	if err != nil {
		return err
	}

	if jsonOutput {
		if runs == nil {
			runs = []database.RunMetadata{}
		}
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs found for %s\n", url)
		fmt.Fprintln(out, "\nUse 'lightscan run' to audit this page.")
		return nil
	}

	fmt.Fprintf(out, "Runs for %s (%d):\n\n", url, len(runs))
	fmt.Fprintf(out, "  %-36s  %-20s  %-7s  %s\n", "Run ID", "Date", "Overall", "Ratings")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 84))
	for _, meta := range runs {
		fmt.Fprintf(out, "  %-36s  %-20s  %-7s  %s\n",
			meta.RunID,
			meta.FetchedAt.Format("2006-01-02 15:04:05"),
			formatScore(meta.Overall),
			formatRatings(meta),
		)
	}
	fmt.Fprintln(out, "\nUse 'lightscan history --compare <url>' to compare the latest two runs.")
	return nil
}

// formatRatings summarizes rating counts, e.g. "P:3 A:1 F:1 E:0".
func formatRatings(meta database.RunMetadata) string {
	return fmt.Sprintf("P:%d A:%d F:%d E:%d", meta.PassCount, meta.AverageCount, meta.FailCount, meta.ErrorCount)
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return strconv.FormatFloat(*score, 'f', 0, 64)
}

// Comparison is the difference between two runs of the same URL.
type Comparison struct {
	URL      string       `json:"url"`
	Previous RunInfo      `json:"previous"`
	Current  RunInfo      `json:"current"`
	Overall  ScoreChange  `json:"overall"`
	Audits   []AuditDelta `json:"audits"`
}

// RunInfo identifies a compared run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ScoreChange is a score before and after. Nil scores mean the audit
// errored or did not run.
type ScoreChange struct {
	Previous *float64 `json:"previous"`
	Current  *float64 `json:"current"`
	Delta    *float64 `json:"delta,omitempty"`
	Trend    string   `json:"trend"`
}

// AuditDelta is the score change of one audit.
type AuditDelta struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	ScoreChange
}

// compareRuns compares the latest run of url with an earlier one.
func compareRuns(ctx context.Context, out io.Writer, db *database.RunDB, url, withRun string, jsonOutput bool) error {
	runs, err := db.GetRunHistoryWithMetadata(ctx, url)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return fmt.Errorf("no runs found for %s", url)
	}
	if len(runs) < 2 && withRun == "" {
		return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
	}

	current, err := db.GetRunByID(ctx, runs[0].RunID)
	if err != nil {
		return err
	}

	previousID := withRun
	if previousID == "" {
		previousID = runs[1].RunID
	}
	previous, err := db.GetRunByID(ctx, previousID)
	if err != nil {
		return err
	}
	if previous == nil {
		return fmt.Errorf("run %s not found", previousID)
	}
	if previous.RequestedURL != current.RequestedURL && previous.FinalURL != current.FinalURL {
		return fmt.Errorf("run %s belongs to %s, not %s", previousID, previous.RequestedURL, url)
	}

	c := compare(url, previous, current)
	if jsonOutput {
		return writeJSON(out, c)
	}
	writeComparisonText(out, c)
	return nil
}

// compare builds the comparison of two runs. Audits follow the current
// run's order; audits only in the previous run come last.
func compare(url string, previous, current *model.RunResult) *Comparison {
	c := &Comparison{
		URL:      url,
		Previous: RunInfo{RunID: previous.ID, FetchedAt: previous.FetchedAt},
		Current:  RunInfo{RunID: current.ID, FetchedAt: current.FetchedAt},
		Overall:  newScoreChange(previous.Scores.Overall, current.Scores.Overall),
	}

	seen := make(map[string]bool)
	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true

		var prevScore, curScore *float64
		title := id
		if r, ok := previous.Audits[id]; ok {
			prevScore, title = r.Score, r.Title
		}
		if r, ok := current.Audits[id]; ok {
			curScore, title = r.Score, r.Title
		}
		c.Audits = append(c.Audits, AuditDelta{ID: id, Title: title, ScoreChange: newScoreChange(prevScore, curScore)})
	}
	for _, id := range current.AuditOrder {
		add(id)
	}
	for _, id := range previous.AuditOrder {
		add(id)
	}
	return c
}

func newScoreChange(previous, current *float64) ScoreChange {
	sc := ScoreChange{Previous: previous, Current: current, Trend: trendUnchanged}
	if previous == nil || current == nil {
		return sc
	}
	delta := *current - *previous
	sc.Delta = &delta
	switch {
	case delta > 0:
		sc.Trend = trendImproved
	case delta < 0:
		sc.Trend = trendRegressed
	}
	return sc
}

// writeComparisonText writes the comparison for the terminal.
func writeComparisonText(out io.Writer, c *Comparison) {
	fmt.Fprintf(out, "Comparing runs for %s\n\n", c.URL)
	fmt.Fprintf(out, "  Previous: %s (%s)\n", c.Previous.RunID, c.Previous.FetchedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Current:  %s (%s)\n\n", c.Current.RunID, c.Current.FetchedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Overall: %s -> %s (%s)\n\n", formatScore(c.Overall.Previous), formatScore(c.Overall.Current), c.Overall.Trend)

	fmt.Fprintf(out, "  %-45s  %8s  %8s  %s\n", "Audit", "Previous", "Current", "Trend")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 76))
	for _, a := range c.Audits {
		fmt.Fprintf(out, "  %-45s  %8s  %8s  %s\n",
			truncate(a.Title, 45), formatScore(a.Previous), formatScore(a.Current), a.Trend)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
