package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/refcount/internal/logger"
	"github.com/joshuapare/refcount/registry"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool
	debug   bool
	logDir  string
)

var rootCmd = &cobra.Command{
	Use:   "refctl",
	Short: "Exercise and inspect the reference counted object registry",
	Long: `refctl drives the object registry used by the telephony server.
It can stress the registry from many goroutines, build a sample
device/line/channel topology and list it, and replay audit logs to
find objects that were never released.

Registry options are read from the REFCOUNT_* environment variables.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		return logger.Init(logger.Options{
			Enabled: verbose || debug || logDir != "",
			LogDir:  logDir,
			Level:   level,
		})
	},
	SilenceUsage: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Log every reference transition")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Write logs to dated files in this directory")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "err", err)
		printError("%v\n", err)
		os.Exit(1)
	}
}

// newRegistry builds a running registry from the environment, with
// overrides applied on top.
func newRegistry(override func(*registry.Options)) (*registry.Registry, error) {
	opts, err := registry.OptionsFromEnv()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger.L
	if override != nil {
		override(&opts)
	}
	r := registry.New(opts)
	if err := r.Init(); err != nil {
		return nil, err
	}
	return r, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	// Add commas
	var result strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}
