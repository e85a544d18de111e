package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/zerofail/internal/control"
	"github.com/vietddude/zerofail/internal/core/domain"
)

var (
	genTopic   string
	genClass   string
	genTier    string
	genBudget  time.Duration
	genJSON    bool
	genVerbose bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Run one request through the pipeline and print the result",
	Long:  `Run one request through the pipeline. The prompt is read from the arguments, or from stdin when none are given.`,
	Run:   runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genTopic, "topic", "", "topic used for relevance scoring")
	generateCmd.Flags().StringVar(&genClass, "class", "prose", "content class (prose, code, other)")
	generateCmd.Flags().StringVar(&genTier, "tier", "standard", "service tier (standard, premium, enterprise)")
	generateCmd.Flags().DurationVar(&genBudget, "budget", 0, "request deadline budget (default from config)")
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "print the full result as JSON")
	generateCmd.Flags().BoolVarP(&genVerbose, "verbose", "v", false, "print the attempt trail")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) {
	prompt := strings.Join(args, " ")
	if prompt == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			slog.Error("Failed to read prompt", "error", err)
			os.Exit(1)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		slog.Error("No prompt provided")
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()

	app, err := control.New(ctx, *cfg)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	req := domain.NewGenerationRequest(
		prompt,
		genTopic,
		domain.ParseContentClass(genClass),
		domain.ParseServiceTier(genTier),
		genBudget,
	)

	result, err := app.Generate(ctx, req)
	if err != nil {
		slog.Error("Generation failed", "error", err)
		os.Exit(1)
	}

	if genJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}
	printResult(os.Stdout, result, genVerbose)
}

func printResult(w io.Writer, r domain.PipelineResult, verbose bool) {
	_, _ = fmt.Fprintln(w, r.Content.Text)
	_, _ = fmt.Fprintln(w)

	status := "ok"
	if r.Degraded != "" {
		status = "degraded: " + string(r.Degraded)
	}
	_, _ = fmt.Fprintf(w, "source=%s provider=%s score=%.3f elapsed=%s %s\n",
		r.Source, r.Provider, r.FinalScore.Overall, r.Elapsed.Round(time.Millisecond), status)

	if !verbose {
		return
	}
	for _, a := range r.Attempts {
		line := fmt.Sprintf("  tier=%d provider=%s attempt=%d state=%s duration=%s",
			a.TierIndex, a.Provider, a.Attempt, a.State, a.Duration.Round(time.Millisecond))
		if a.BackoffBefore > 0 {
			line += fmt.Sprintf(" backoff=%s", a.BackoffBefore.Round(time.Millisecond))
		}
		if a.Score != nil {
			line += fmt.Sprintf(" score=%.3f", a.Score.Overall)
		}
		if a.Error != "" {
			line += " error=" + a.Error
		}
		_, _ = fmt.Fprintln(w, line)
	}
}
