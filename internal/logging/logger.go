// Package logging provides categorized file-based logging for xBOT.
// Logs are written to .xbot/logs/ with separate files per category.
// The logging section of the loaded configuration is applied through
// Configure; until debug mode is enabled there, every call is a no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	// Core system categories
	CategoryBoot Category = "boot" // Boot/initialization
	CategoryAPI  Category = "api"  // LLM and social API calls

	// Growth loop categories
	CategoryPredictor Category = "predictor" // Content prediction/scoring
	CategoryDecision  Category = "decision"  // Post/improve/delay/reject decisions
	CategoryOptimizer Category = "optimizer" // Content optimization passes
	CategoryScheduler Category = "scheduler" // Outcome measurement scheduling
	CategoryLearning  Category = "learning"  // Outcome reconciliation, pattern updates
	CategoryGrowth    Category = "growth"    // Full cycle orchestration

	// Infrastructure categories
	CategorySupervisor Category = "supervisor" // Health checks and loop restarts
	CategoryStore      Category = "store"      // Persistence operations
)

// Options selects what gets logged. The zero value is production mode:
// no files are created and every logging call is a no-op.
type Options struct {
	DebugMode  bool            // write per-category log files
	Categories map[string]bool // nil enables all; unlisted categories default to enabled
	Level      string          // debug/info/warn/error; empty means info
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    Options
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets the workspace the log files live under. Call once at
// startup, before Configure. Logging stays silent until Configure enables
// debug mode.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".xbot", "logs")
	return nil
}

// Configure applies the logging section of the loaded configuration.
// In debug mode the logs directory is created and a boot banner written;
// otherwise logging remains a silent no-op.
func Configure(opts Options) error {
	configMu.Lock()
	config = opts
	switch opts.Level {
	case "debug":
		logLevel = LevelDebug
	case "info", "":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	configMu.Unlock()

	if !opts.DebugMode {
		return nil
	}

	if logsDir == "" {
		return fmt.Errorf("logging not initialized")
	}
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== xBOT Logging System Initialized ===")
	bootLogger.Info("Workspace: %s", workspace)
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", opts.Level)

	return nil
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}

	if config.Categories == nil {
		return true // All enabled by default in debug mode
	}

	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Create log file with date prefix for easy rotation
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] "+format, args...)
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] "+format, args...)
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] "+format, args...)
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] "+format, args...)
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// Predictor logs to the predictor category
func Predictor(format string, args ...interface{}) {
	Get(CategoryPredictor).Info(format, args...)
}

// PredictorDebug logs debug to the predictor category
func PredictorDebug(format string, args ...interface{}) {
	Get(CategoryPredictor).Debug(format, args...)
}

// Decision logs to the decision category
func Decision(format string, args ...interface{}) {
	Get(CategoryDecision).Info(format, args...)
}

// DecisionDebug logs debug to the decision category
func DecisionDebug(format string, args ...interface{}) {
	Get(CategoryDecision).Debug(format, args...)
}

// Optimizer logs to the optimizer category
func Optimizer(format string, args ...interface{}) {
	Get(CategoryOptimizer).Info(format, args...)
}

// OptimizerDebug logs debug to the optimizer category
func OptimizerDebug(format string, args ...interface{}) {
	Get(CategoryOptimizer).Debug(format, args...)
}

// Scheduler logs to the scheduler category
func Scheduler(format string, args ...interface{}) {
	Get(CategoryScheduler).Info(format, args...)
}

// SchedulerDebug logs debug to the scheduler category
func SchedulerDebug(format string, args ...interface{}) {
	Get(CategoryScheduler).Debug(format, args...)
}

// Learning logs to the learning category
func Learning(format string, args ...interface{}) {
	Get(CategoryLearning).Info(format, args...)
}

// LearningDebug logs debug to the learning category
func LearningDebug(format string, args ...interface{}) {
	Get(CategoryLearning).Debug(format, args...)
}

// Growth logs to the growth category
func Growth(format string, args ...interface{}) {
	Get(CategoryGrowth).Info(format, args...)
}

// GrowthDebug logs debug to the growth category
func GrowthDebug(format string, args ...interface{}) {
	Get(CategoryGrowth).Debug(format, args...)
}

// Supervisor logs to the supervisor category
func Supervisor(format string, args ...interface{}) {
	Get(CategorySupervisor).Info(format, args...)
}

// SupervisorDebug logs debug to the supervisor category
func SupervisorDebug(format string, args ...interface{}) {
	Get(CategorySupervisor).Debug(format, args...)
}

// SupervisorWarn logs warning to the supervisor category
func SupervisorWarn(format string, args ...interface{}) {
	Get(CategorySupervisor).Warn(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreWarn logs warning to the store category
func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warn(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
