package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/topic-leads/internal/model"
	"github.com/sells-group/topic-leads/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one aggregation pass and print ranked candidates as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyRunFlags(cmd); err != nil {
			return err
		}

		env, err := initPipeline(ctx, cfg, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, pipeline.RunOptions{})
		if err != nil {
			return eris.Wrap(err, "run")
		}
		env.LogUsage()

		zap.L().Info("run complete",
			zap.String("run_id", result.RunID),
			zap.String("outcome", string(result.Outcome)),
			zap.Int("candidates", len(result.Candidates)),
		)

		full, _ := cmd.Flags().GetBool("full")
		return writeRunResult(os.Stdout, result, full)
	},
}

// applyRunFlags copies command-line overrides into the loaded config.
func applyRunFlags(cmd *cobra.Command) error {
	if minTier, _ := cmd.Flags().GetString("min-tier"); minTier != "" {
		tier, err := model.ParseTier(minTier)
		if err != nil {
			return eris.Wrap(err, "--min-tier")
		}
		cfg.Pipeline.MinTier = string(tier)
	}
	if cmd.Flags().Changed("max-total") {
		cfg.Pipeline.MaxTotalCandidates, _ = cmd.Flags().GetInt("max-total")
	}
	if classifier, _ := cmd.Flags().GetString("classifier"); classifier != "" {
		cfg.Classifier.Provider = classifier
	}
	return nil
}

// writeRunResult prints the candidates, or the whole result when full is set.
func writeRunResult(w io.Writer, result *model.RunResult, full bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if full {
		return enc.Encode(result)
	}
	return enc.Encode(result.Candidates)
}

func init() {
	runCmd.Flags().String("min-tier", "", "lowest source tier to fetch (high, medium, low); default from config")
	runCmd.Flags().Int("max-total", 0, "maximum number of ranked candidates; default from config")
	runCmd.Flags().String("classifier", "", "relevance classifier (anthropic, gemini, keywords); default from config")
	runCmd.Flags().Bool("full", false, "print the full run result including summary and per-source reports")
	rootCmd.AddCommand(runCmd)
}
