package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/infra/storage/sqldb"
)

var statusSince time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted delivery statistics per source",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().DurationVar(&statusSince, "since", 24*time.Hour, "window to summarize")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if !cfg.Database.Enabled() {
		slog.Error("status requires database.url to be configured")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := sqldb.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	since := time.Now().Add(-statusSince).UnixMilli()
	summary, err := sqldb.NewDeliveryRepo(db).SummaryBySource(ctx, since)
	if err != nil {
		slog.Error("Failed to query deliveries", "error", err)
		os.Exit(1)
	}
	signals, err := sqldb.NewSignalRepo(db).RecentSignals(ctx, 10)
	if err != nil {
		slog.Warn("Failed to query escalations", "error", err)
	}

	printSummary(os.Stdout, summary)
	if len(signals) > 0 {
		_, _ = fmt.Fprintln(os.Stdout)
		printSignals(os.Stdout, signals)
	}
}

func printSummary(out io.Writer, summary []domain.SourceSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SOURCE\tCOUNT\tSHARE\tAVG LATENCY\tAVG SCORE\tSLA VIOLATIONS")

	var total int64
	for _, s := range summary {
		total += s.Count
	}
	for _, s := range summary {
		share := 0.0
		if total > 0 {
			share = float64(s.Count) / float64(total) * 100
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.0fms\t%.3f\t%d\n",
			s.Source, s.Count, share, s.AvgLatencyMs, s.AvgScore, s.Violations)
	}
	_ = w.Flush()
}

func printSignals(out io.Writer, signals []domain.EscalationSignal) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "RAISED\tKIND\tTIER\tVALUE\tTHRESHOLD")
	for _, s := range signals {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%.3f\n",
			s.RaisedAt.Format(time.RFC3339), s.Kind, s.ServiceTier, s.Value, s.Threshold)
	}
	_ = w.Flush()
}
