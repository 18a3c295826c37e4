package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"framecast/internal/config"
	xlog "framecast/internal/log"
)

var (
	configPath string
	logLevel   string
	logFile    string

	cfg     config.Config
	logSink io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "framecast",
	Short: "framecast - turn image sequences into animated GIF, WebP and APNG",
	Long: "framecast converts an ordered sequence of still frames into animated GIF, WebP or APNG files. " +
		"FFmpeg and webpmux are used when installed; built-in encoders cover everything else.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		cfg = loaded
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logSink != nil {
			return logSink.Close()
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configureLogging points the global logger at --log-file when given, else
// at fallback with the configured level, or at error level when quiet.
func configureLogging(fallback io.Writer, quiet bool) error {
	level := cfg.LogLevel
	out := fallback
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logSink = f
		out = f
	} else if quiet {
		level = "error"
	}
	xlog.Configure(xlog.Config{Level: level, Output: out})
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append logs to this file")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
}
