package main

import (
	"fmt"
	"os"
	"path/filepath"

	"clariond/internal/config"
	"clariond/internal/engine"
	"clariond/internal/logging"
	"clariond/internal/store"
	"clariond/internal/telemetry"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger     *zap.Logger
	cfgPath    string
	verbose    bool
	cfg        *config.Config
	clarEngine *engine.Engine
)

var rootCmd = &cobra.Command{
	Use:   "clariond",
	Short: "clariond - adaptive clarification engine",
	Long: `clariond decides, per utterance, whether a conversational assistant
should answer directly or first ask a clarifying question, and learns which
question templates work from outcome feedback.

It never generates answers and never performs retrieval; it only decides
"clarify vs. proceed", selects a question template, and learns.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		var corrected []string
		cfg, corrected, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		for _, c := range corrected {
			logger.Warn("Config corrected", zap.String("field", c))
		}

		if err := logging.Initialize(cfg.StatePath, logging.Options{
			Debug: cfg.Logging.Debug,
			Level: cfg.Logging.Level,
		}); err != nil {
			logger.Warn("File logging unavailable", zap.Error(err))
		}

		clarEngine = engine.New(cfg, openStore(cfg), telemetry.NewZapEmitter(logger))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if clarEngine != nil {
			if err := clarEngine.Close(); err != nil {
				logger.Warn("Store close failed", zap.Error(err))
			}
		}
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// openStore opens the SQLite pattern backend under the state path, degrading
// to in-memory-only operation when the database cannot be opened.
func openStore(cfg *config.Config) *store.PatternStore {
	dbPath := filepath.Join(cfg.StatePath, "patterns.db")
	backend, err := store.NewSQLiteBackend(dbPath)
	if err != nil {
		logger.Warn("Pattern database unavailable, running in-memory only", zap.Error(err))
		return store.NewPatternStore(nil)
	}
	return store.NewPatternStore(backend)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "clariond.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resetBreakerCmd)
	rootCmd.AddCommand(clearLearningCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
