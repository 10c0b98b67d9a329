package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/poiesic/gpthistory"
	"github.com/poiesic/gpthistory/core"
	"github.com/poiesic/gpthistory/search"
	"github.com/urfave/cli/v2"
)

const maxDisplayText = 160

var (
	scoreColor = color.New(color.FgGreen).SprintFunc()
	chatColor  = color.New(color.FgCyan).SprintFunc()
	warnColor  = color.New(color.FgYellow).SprintFunc()
)

func indexCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one export file argument")
	}

	h, cfg, err := open(c)
	if err != nil {
		return err
	}
	defer h.Close()

	fmt.Fprintf(c.App.ErrWriter, "Index: %s\n", cfg.IndexPath)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)

	result, err := h.Index(c.Context, c.Args().First())
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "%d conversations, %d new, %d rows added\n",
		result.Conversations, result.NewConversations, result.Rows)
	if len(result.FailedBatches) > 0 {
		fmt.Fprintln(c.App.Writer, warnColor(fmt.Sprintf("%d embedding batches failed", len(result.FailedBatches))))
	}
	if len(result.DroppedConversations) > 0 {
		fmt.Fprintln(c.App.Writer, warnColor(fmt.Sprintf("%d conversations withheld for the next run", len(result.DroppedConversations))))
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a search query is required")
	}

	h, _, err := open(c)
	if err != nil {
		return err
	}
	defer h.Close()

	var monitor search.SearchMonitor
	stats := &statsMonitor{}
	if c.Bool("stats") {
		monitor = stats
	}

	results, err := h.SearchWithMonitor(c.Context, query, c.Int("top-n"), monitor)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if stats.scored {
		printStats(c, stats.stats)
	}

	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No results found above threshold")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(c.App.Writer, "%s  %s  %s\n",
			scoreColor(fmt.Sprintf("%.3f", r.Score)), chatColor(r.ChatID), displayText(r.Text))
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	h, cfg, err := open(c)
	if err != nil {
		return err
	}
	defer h.Close()

	fmt.Fprintf(c.App.ErrWriter, "Index: %s\n", cfg.IndexPath)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	result, err := h.Reembed(c.Context, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	if result.Kept > 0 {
		fmt.Fprintln(c.App.Writer, warnColor(fmt.Sprintf("%d rows kept their previous embedding", result.Kept)))
	}
	return nil
}

func importCommand(c *cli.Context) error {
	path := csvPath(c)

	h, _, err := open(c)
	if err != nil {
		return err
	}
	defer h.Close()

	n, err := h.ImportCSV(c.Context, path, c.Bool("replace"))
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Imported %d rows from %s\n", n, path)
	return nil
}

func exportCommand(c *cli.Context) error {
	path := csvPath(c)

	h, _, err := open(c)
	if err != nil {
		return err
	}
	defer h.Close()

	n, err := h.ExportCSV(c.Context, path)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Exported %d rows to %s\n", n, path)
	return nil
}

func csvPath(c *cli.Context) string {
	if c.NArg() > 0 {
		return c.Args().First()
	}
	return gpthistory.DefaultCSVPath()
}

// displayText flattens text onto one line and shortens it for terminal output.
func displayText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxDisplayText {
		return text
	}
	return string(runes[:maxDisplayText]) + "..."
}

func printStats(c *cli.Context, stats search.ScoreStats) {
	fmt.Fprintf(c.App.Writer, "rows=%d min=%.3f max=%.3f mean=%.3f", stats.Count, stats.Min, stats.Max, stats.Mean)
	for _, tc := range stats.AtOrAbove {
		fmt.Fprintf(c.App.Writer, " >=%g:%d", tc.Threshold, tc.Count)
	}
	fmt.Fprintln(c.App.Writer)
}

// statsMonitor keeps the score distribution of a search.
type statsMonitor struct {
	stats  search.ScoreStats
	scored bool
}

func (m *statsMonitor) Start(string) {}
func (m *statsMonitor) AfterScoring(stats search.ScoreStats) {
	m.stats = stats
	m.scored = true
}
func (m *statsMonitor) BelowThreshold([]core.RankedResult) {}
func (m *statsMonitor) Finish([]core.RankedResult)         {}
func (m *statsMonitor) Failed(error)                       {}
