package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xbot/internal/config"
	"xbot/internal/decision"
	"xbot/internal/growth"
	"xbot/internal/llm"
	"xbot/internal/logging"
	"xbot/internal/optimizer"
	"xbot/internal/outcome"
	"xbot/internal/patterns"
	"xbot/internal/predictor"
	"xbot/internal/social"
	"xbot/internal/state"
	"xbot/internal/store"
	"xbot/internal/supervisor"
	"xbot/internal/types"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// dataStore is the union of persistence surfaces the commands wire up.
// Satisfied by both *store.SQLiteStore and *store.PostgresStore.
type dataStore interface {
	patterns.Backend
	outcome.JobStore
	outcome.OutcomeLog
	optimizer.AuditLog
	growth.CycleAudit
	AccuracyAggregates(ctx context.Context) (total, correct int, err error)
	PendingMeasurements(ctx context.Context) (int, error)
	Close() error
}

var rootCmd = &cobra.Command{
	Use:   "xbot",
	Short: "xBOT - autonomous content decision and learning loop",
	Long: `xBOT decides what social media content is worth posting, improves what
is almost worth posting, and learns from measured outcomes.

Each candidate runs through: predict -> decide -> (improve) -> post ->
measure at 24h and 7d -> reconcile against the prediction. Every reconciled
outcome sharpens the pattern store and the running prediction accuracy.`,
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
		if err := logging.Initialize("."); err != nil {
			logger.Warn("category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd starts the full background loop.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the learning loop until interrupted",
	Long: `Starts the measurement worker, the follower tracker, and the supervisor,
then blocks until SIGINT/SIGTERM. Pending measurements enqueued by earlier
runs are picked up from the database.`,
	RunE: runLoop,
}

// predictCmd scores a single candidate.
var predictCmd = &cobra.Command{
	Use:   "predict [text]",
	Short: "Predict the performance of a content candidate",
	Args:  cobra.ExactArgs(1),
	RunE:  runPredict,
}

// decideCmd scores a candidate and applies the decision rules.
var decideCmd = &cobra.Command{
	Use:   "decide [text]",
	Short: "Predict and decide for a content candidate",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecide,
}

// cycleCmd runs one full cycle, posting if the decision says so.
var cycleCmd = &cobra.Command{
	Use:   "cycle [text]",
	Short: "Run one full cycle: predict, decide, improve, post, schedule",
	Long: `Runs a candidate through the complete loop. If the decision is Post the
content is published through the configured social endpoint and its outcome
measurements are scheduled. Requires social.base_url to be configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runCycle,
}

// healthCmd reports the persisted state of the loop.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report prediction accuracy and pending measurements",
	RunE:  runHealth,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "xbot.yaml", "path to config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the YAML config and applies its logging section to the
// categorized file logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Configure(logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
	}); err != nil {
		logger.Warn("category logging unavailable", zap.Error(err))
	}
	return cfg, nil
}

// openStore picks the backend per config.
func openStore(cfg *config.Config) (dataStore, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return store.NewPostgresStore(cfg.Storage.PostgresDSN)
	case "", "sqlite":
		return store.NewSQLiteStore(cfg.Storage.DatabasePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newLLMClient picks the generation collaborator per config.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return llm.NewGeminiClient(cfg.LLM.APIKey, cfg.LLM.Model)
	case "", "openai":
		return llm.NewOpenAIClientWithConfig(llm.OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: config.Duration(cfg.LLM.Timeout, 2*time.Minute),
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// restoreState rebuilds the running accuracy from persisted outcomes.
func restoreState(ctx context.Context, db dataStore) *state.SystemState {
	total, correct, err := db.AccuracyAggregates(ctx)
	if err != nil {
		logger.Warn("accuracy restore failed, starting cold", zap.Error(err))
		return state.New()
	}
	return state.Restore(total, correct, 0)
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Social.BaseURL == "" {
		return fmt.Errorf("social.base_url required to run the loop")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	st := restoreState(ctx, db)
	patternStore := patterns.NewStore(ctx, db)

	socialClient := social.NewHTTPClient(cfg.Social.BaseURL, cfg.Social.APIKey,
		config.Duration(cfg.Social.Timeout, 30*time.Second))

	reconciler := outcome.NewReconciler(st, patternStore, db, cfg.Thresholds.AccuracyTolerance)
	worker := outcome.NewWorker(db, socialClient, reconciler, st,
		config.Duration(cfg.Loop.LearningInterval, 2*time.Hour))
	tracker := growth.NewFollowerTracker(socialClient, st,
		config.Duration(cfg.Loop.FollowerPollInterval, 30*time.Minute))

	sup := supervisor.New(map[string]supervisor.Loop{
		"measurement": worker,
		"follower":    tracker,
	}, st, cfg.Thresholds.AccuracyFloor,
		config.Duration(cfg.Loop.SupervisorInterval, 15*time.Minute))

	worker.Start(ctx)
	tracker.Start(ctx)
	sup.Run(ctx)

	total, correct, _, accuracy := st.Snapshot()
	logger.Info("loop running",
		zap.Int("reconciled_outcomes", total),
		zap.Int("accurate", correct),
		zap.Float64("accuracy", accuracy))

	<-ctx.Done()
	logger.Info("shutting down")
	sup.Stop()
	return nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	st := restoreState(ctx, db)
	pred := predictor.New(patterns.NewStore(ctx, db), st, cfg.Loop.GoodHours)

	p := pred.Predict(types.ContentCandidate{Text: args[0]})
	return printJSON(p)
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	st := restoreState(ctx, db)
	pred := predictor.New(patterns.NewStore(ctx, db), st, cfg.Loop.GoodHours)
	engine := decision.NewEngine(decision.Thresholds{
		PostFollowers:  cfg.Thresholds.PostFollowers,
		PostConfidence: cfg.Thresholds.PostConfidence,
	})

	p := pred.Predict(types.ContentCandidate{Text: args[0]})
	d := engine.Decide(p)
	return printJSON(struct {
		Prediction types.Prediction `json:"prediction"`
		Decision   types.Decision   `json:"decision"`
	}{p, d})
}

func runCycle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Social.BaseURL == "" {
		return fmt.Errorf("social.base_url required to post")
	}
	ctx := cmd.Context()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	st := restoreState(ctx, db)
	patternStore := patterns.NewStore(ctx, db)
	pred := predictor.New(patternStore, st, cfg.Loop.GoodHours)
	engine := decision.NewEngine(decision.Thresholds{
		PostFollowers:  cfg.Thresholds.PostFollowers,
		PostConfidence: cfg.Thresholds.PostConfidence,
	})

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		return err
	}
	opt := optimizer.New(llmClient, pred, db, config.Duration(cfg.LLM.Timeout, 2*time.Minute))

	socialClient := social.NewHTTPClient(cfg.Social.BaseURL, cfg.Social.APIKey,
		config.Duration(cfg.Social.Timeout, 30*time.Second))
	scheduler := outcome.NewScheduler(db, socialClient,
		config.Duration(cfg.Loop.ShortHorizon, 24*time.Hour),
		config.Duration(cfg.Loop.LongHorizon, 168*time.Hour))

	cycle := growth.NewEngine(pred, engine, opt, socialClient, scheduler, db)
	result, err := cycle.RunCycle(ctx, types.ContentCandidate{Text: args[0]})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	total, correct, err := db.AccuracyAggregates(ctx)
	if err != nil {
		return err
	}
	pending, err := db.PendingMeasurements(ctx)
	if err != nil {
		return err
	}

	accuracy := 0.0
	if total > 0 {
		accuracy = float64(correct) / float64(total)
	}
	return printJSON(struct {
		ReconciledOutcomes  int     `json:"reconciled_outcomes"`
		AccuratePredictions int     `json:"accurate_predictions"`
		Accuracy            float64 `json:"accuracy"`
		PendingMeasurements int     `json:"pending_measurements"`
	}{total, correct, accuracy, pending})
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
