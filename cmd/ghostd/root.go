package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ghostd/internal/config"
)

// app carries state shared by all subcommands once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg config.Config
	log zerolog.Logger
	out io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}
	root := &cobra.Command{
		Use:           "ghostd",
		Short:         "Inline completion coordinator daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (.toml|.yaml|.json); defaults to $GHOSTD_CONFIG or ~/.config/ghostd/config.toml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults GHOSTD_LOG_LEVEL or config)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: auto|console|json (auto: console on a terminal)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		a.out = cmd.OutOrStdout()
		return a.init()
	}
	root.AddCommand(newServeCmd(a), newDevicesCmd(a), newModelsCmd(a), newCompleteCmd(a))
	return root
}

// init loads configuration and builds the logger.
func (a *app) init() error {
	cfg := config.Default()
	if p := config.ResolvePath(a.configPath); p != "" {
		c, err := config.Load(p)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	if v := os.Getenv("GHOSTD_LOG_LEVEL"); v != "" && a.logLevel == "" {
		a.logLevel = v
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	log, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

func newLogger(w io.Writer, lc config.LogConfig) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	console := lc.Format == "console"
	if lc.Format == "" || lc.Format == "auto" {
		f, ok := w.(*os.File)
		console = ok && isatty.IsTerminal(f.Fd())
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// splitCSV splits a comma-separated flag value, dropping empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
