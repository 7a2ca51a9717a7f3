package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yuanying/epubreader/internal/config"
	"github.com/yuanying/epubreader/internal/engine"
)

type cliOptions struct {
	Path   string
	Config *config.Config
	Logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epubreader",
		Short: "Read, search and locate positions in EPUB books",
		Long: `epubreader renders EPUB 2 and EPUB 3 books as reflowable text.

It prints book metadata and the table of contents, searches the full
text, converts between reading percentages and EPUB CFI locators, and
includes an interactive terminal reader.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (YAML, TOML or JSON)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (default from config)")
	flags.String("log-format", "", "Log format: console or json (default from config)")
	flags.BoolP("verbose", "v", false, "Enable debug logging (overrides --log-level)")
	flags.Float64("font-size", 0, "Font size in pixels (default from config)")
	flags.String("theme", "", "Theme: light, dark or sepia (default from config)")

	cmd.AddCommand(
		newInfoCmd(),
		newTOCCmd(),
		newSearchCmd(),
		newLocateCmd(),
		newReadCmd(),
	)
	return cmd
}

// readCLIOptions merges the configuration with the command line flags.
func readCLIOptions(cmd *cobra.Command, args []string) (cliOptions, error) {
	var opts cliOptions
	if len(args) > 0 {
		opts.Path = args[0]
	}

	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return opts, err
	}

	level := cfg.Log.Level
	if s, _ := flags.GetString("log-level"); s != "" {
		l, err := zapcore.ParseLevel(s)
		if err != nil || l > zapcore.ErrorLevel {
			return opts, fmt.Errorf("invalid --log-level %q (must be debug, info, warn, or error)", s)
		}
		level = l
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = zapcore.DebugLevel
	}

	format := "json"
	if cfg.Log.Development {
		format = "console"
	}
	if s, _ := flags.GetString("log-format"); s != "" {
		format = strings.ToLower(s)
		if format != "console" && format != "json" {
			return opts, fmt.Errorf("invalid --log-format %q (must be console or json)", s)
		}
	}

	if size, _ := flags.GetFloat64("font-size"); size != 0 {
		if size < 0 {
			return opts, fmt.Errorf("invalid --font-size %v (must be positive)", size)
		}
		cfg.Theme.FontSize = size
	}
	if theme, _ := flags.GetString("theme"); theme != "" {
		cfg.Theme.Theme = strings.ToLower(theme)
	}
	cfg.Theme = cfg.Theme.Normalize()

	opts.Config = cfg
	opts.Logger = buildLogger(cmd.ErrOrStderr(), level, format)
	return opts, nil
}

// buildLogger writes level-filtered records to w.
func buildLogger(w io.Writer, level zapcore.Level, format string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if strings.EqualFold(format, "console") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

// openBook loads the book named by opts into a headless engine.
func openBook(ctx context.Context, opts cliOptions) (*engine.Engine, engine.BookInfo, error) {
	data, err := os.ReadFile(opts.Path)
	if err != nil {
		return nil, engine.BookInfo{}, err
	}
	eopts := opts.Config.Engine
	eopts.Logger = opts.Logger
	e := engine.New(nil, opts.Config.Theme, eopts)
	info, err := e.LoadBook(ctx, data)
	if err != nil {
		e.Destroy()
		return nil, engine.BookInfo{}, fmt.Errorf("load %s: %w", opts.Path, err)
	}
	return e, info, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
