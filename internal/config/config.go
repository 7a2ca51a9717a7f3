// Package config reads reader settings from defaults, an optional config
// file and EPUBREADER_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/yuanying/epubreader/internal/engine"
	"github.com/yuanying/epubreader/internal/render"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores: theme.font_size is EPUBREADER_THEME_FONT_SIZE.
const EnvPrefix = "EPUBREADER"

type (
	Config struct {
		Theme  render.ThemeConfig
		Engine engine.Options
		Log
	}

	Log struct {
		Level zapcore.Level
		// Development switches to the human readable console encoder.
		Development bool
	}
)

func setDefaults(v *viper.Viper) {
	theme := render.DefaultTheme()
	v.SetDefault("theme.name", theme.Theme)
	v.SetDefault("theme.font_size", theme.FontSize)
	v.SetDefault("theme.font_family", theme.FontFamily)
	v.SetDefault("theme.line_height", theme.LineHeight)
	v.SetDefault("theme.letter_spacing", theme.LetterSpacing)
	v.SetDefault("theme.text_align", theme.TextAlign)
	v.SetDefault("theme.margin_horizontal", theme.MarginHorizontal)
	v.SetDefault("theme.margin_vertical", theme.MarginVertical)
	v.SetDefault("theme.max_width", theme.MaxWidth)
	v.SetDefault("theme.brightness", theme.Brightness)
	v.SetDefault("theme.contrast", theme.Contrast)

	opts := engine.DefaultOptions()
	v.SetDefault("viewport.width", opts.Viewport.Width)
	v.SetDefault("viewport.height", opts.Viewport.Height)
	v.SetDefault("reading.words_per_minute", opts.WordsPerMinute)
	v.SetDefault("reading.progress_interval", opts.ProgressInterval.String())
	v.SetDefault("search.snippet_length", opts.SnippetLength)
	v.SetDefault("search.max_results", opts.MaxResults)
	v.SetDefault("images.max_width", 1200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load builds the configuration. path may be empty; a missing explicit file
// is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	level, err := zapcore.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	interval := v.GetDuration("reading.progress_interval")
	if interval < 0 {
		return nil, fmt.Errorf("reading.progress_interval must not be negative, got %s", interval)
	}
	// An explicit 0 turns throttling off.
	if interval == 0 {
		interval = -1
	}

	return &Config{
		Theme: render.ThemeConfig{
			Theme:            v.GetString("theme.name"),
			FontSize:         v.GetFloat64("theme.font_size"),
			FontFamily:       v.GetString("theme.font_family"),
			LineHeight:       v.GetFloat64("theme.line_height"),
			LetterSpacing:    v.GetFloat64("theme.letter_spacing"),
			TextAlign:        v.GetString("theme.text_align"),
			MarginHorizontal: v.GetFloat64("theme.margin_horizontal"),
			MarginVertical:   v.GetFloat64("theme.margin_vertical"),
			MaxWidth:         v.GetFloat64("theme.max_width"),
			Brightness:       v.GetFloat64("theme.brightness"),
			Contrast:         v.GetFloat64("theme.contrast"),
		}.Normalize(),
		Engine: engine.Options{
			Viewport: render.Viewport{
				Width:  v.GetFloat64("viewport.width"),
				Height: v.GetFloat64("viewport.height"),
			},
			WordsPerMinute:   v.GetInt("reading.words_per_minute"),
			ProgressInterval: interval,
			SnippetLength:    v.GetInt("search.snippet_length"),
			MaxResults:       v.GetInt("search.max_results"),
			MaxImageWidth:    v.GetInt("images.max_width"),
		},
		Log: Log{
			Level:       level,
			Development: v.GetBool("log.development"),
		},
	}, nil
}
