package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"dreamlog/backend/internal/app"
	"dreamlog/backend/internal/config"
	"dreamlog/backend/internal/dream"
	"dreamlog/backend/internal/logging"
)

type analyzeOptions struct {
	mood     int
	backends string
	seed     string
	asJSON   bool
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "dreamctl",
		Short:         "Interpret dreams from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")

	newLogger := func() (*zap.Logger, error) {
		return logging.New(logLevel, false)
	}
	root.AddCommand(
		newAnalyzeCmd(getenv, newLogger),
		newUnpackCmd(),
		newSymbolsCmd(getenv),
	)
	return root
}

func newAnalyzeCmd(getenv func(string) string, newLogger func() (*zap.Logger, error)) *cobra.Command {
	opts := analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Analyse a dream description; reads stdin when no text is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if opts.mood < dream.MinMood || opts.mood > dream.MaxMood {
				return fmt.Errorf("--mood must be between %d and %d", dream.MinMood, dream.MaxMood)
			}
			cfg, err := config.FromEnv(overrideEnv(getenv, opts))
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			engine, _, err := app.BuildEngine(cmd.Context(), cfg.Dream, logger)
			if err != nil {
				return err
			}
			result, report := engine.AnalyzeWithReport(cmd.Context(), dream.DreamInput{Content: content, MoodLevel: opts.mood})
			return printAnalysis(cmd.OutOrStdout(), result, report, opts.asJSON)
		},
	}
	cmd.Flags().IntVar(&opts.mood, "mood", 3, "mood rating from 1 (worst) to 5 (best)")
	cmd.Flags().StringVar(&opts.backends, "backends", "", "comma-separated sentiment chain, overrides DREAM_BACKENDS")
	cmd.Flags().StringVar(&opts.seed, "seed", "", "seed for reproducible radar jitter, overrides DREAM_RANDOM_SEED")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of text")
	return cmd
}

func overrideEnv(getenv func(string) string, opts analyzeOptions) func(string) string {
	return func(key string) string {
		switch {
		case key == "DREAM_BACKENDS" && opts.backends != "":
			return opts.backends
		case key == "DREAM_RANDOM_SEED" && opts.seed != "":
			return opts.seed
		}
		return getenv(key)
	}
}

func readContent(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	raw, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func printAnalysis(out io.Writer, result *dream.AnalysisResult, report dream.Report, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetEscapeHTML(false)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]any{
			"analysis": result,
			"packed":   result.Packed(),
			"backend":  report.Backend,
			"degraded": report.Degraded,
		})
	}
	radar := result.Radar
	_, err := fmt.Fprintf(out, "%s\n\nkeywords: %s\nradar: joy=%d anxiety=%d stress=%d clarity=%d mystic=%d\nbackend: %s\n",
		result.Narrative, strings.Join(result.Keywords, ", "),
		radar.Joy, radar.Anxiety, radar.Stress, radar.Clarity, radar.Mystic,
		backendLabel(report))
	return err
}

func backendLabel(report dream.Report) string {
	if report.Degraded {
		return report.Backend + " (fallback)"
	}
	return report.Backend
}

func newUnpackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpack <packed>",
		Short: "Split a stored analysis string into narrative and radar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			narrative, radar, err := dream.Parse(args[0])
			if errors.Is(err, dream.ErrNoRadar) {
				_, werr := fmt.Fprintln(cmd.OutOrStdout(), narrative)
				return werr
			}
			if err != nil {
				return err
			}
			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			defer encoder.Close()
			return encoder.Encode(map[string]any{
				"narrative": narrative,
				"radar": map[string]int{
					"joy":     radar.Joy,
					"anxiety": radar.Anxiety,
					"stress":  radar.Stress,
					"clarity": radar.Clarity,
					"mystic":  radar.Mystic,
				},
				"in_range": radar.InRange(),
			})
		},
	}
}

func newSymbolsCmd(getenv func(string) string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "List the symbol dictionary in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dict, err := dream.LoadDictionary(getenv("DREAM_SYMBOLS_PATH"))
			if err != nil {
				return err
			}
			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetEscapeHTML(false)
				return encoder.Encode(dict.Entries())
			}
			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			defer encoder.Close()
			return encoder.Encode(map[string]any{
				"count":   dict.Len(),
				"symbols": dict.Entries(),
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")
	return cmd
}
