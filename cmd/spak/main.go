package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/spak/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string

	sourceKind    string
	packagePath   string
	rootDir       string
	mode          string
	cacheCapacity int
	legacyScan    bool
	dbPath        string
	jobs          int
	logLevel      string
	logFormat     string
	noProgress    bool
)

var rootCmd = &cobra.Command{
	Use:   "spak",
	Short: "Read-only asset package tool",
	Long: `spak reads assets from SPAK packages or loose asset directories.

It can list and fetch assets through the same cached manager a game would use,
extract packages back to directories, record package indices in SQLite and
watch a directory for hot reloads.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("source") {
			cfg.Source = sourceKind
		}
		if cmd.Flags().Changed("package") {
			cfg.Package = packagePath
		}
		if cmd.Flags().Changed("root") {
			cfg.Root = rootDir
		}
		if cmd.Flags().Changed("mode") {
			cfg.Mode = mode
		}
		if cmd.Flags().Changed("cache") {
			cfg.CacheCapacity = cacheCapacity
		}
		if cmd.Flags().Changed("legacy-scan") {
			cfg.LegacyScan = legacyScan
		}
		if cmd.Flags().Changed("database") {
			cfg.Database = dbPath
		}
		if cmd.Flags().Changed("jobs") {
			cfg.Jobs = jobs
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		var level slog.Level
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: level,
			})
		}

		logger := slog.New(handler)
		slog.SetDefault(logger)

		slog.Debug("Configuration",
			"source", cfg.Source,
			"package", cfg.Package,
			"root", cfg.Root,
			"mode", cfg.Mode,
			"cache_capacity", cfg.CacheCapacity,
			"database", cfg.Database,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is spak.yaml in $HOME or pwd)")
	rootCmd.PersistentFlags().StringVarP(&sourceKind, "source", "s", "", "asset source (package, filesystem, hotreload)")
	rootCmd.PersistentFlags().StringVarP(&packagePath, "package", "p", "", "package file path")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "asset root directory")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "error mode (strict, lenient)")
	rootCmd.PersistentFlags().IntVar(&cacheCapacity, "cache", 0, "asset cache capacity")
	rootCmd.PersistentFlags().BoolVar(&legacyScan, "legacy-scan", false, "scan for the index in packages without a trailer")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "", "catalog database file path")
	rootCmd.PersistentFlags().IntVarP(&jobs, "jobs", "j", 0, "parallel extraction workers")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
