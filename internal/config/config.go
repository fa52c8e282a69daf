package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrConfig marks fatal configuration errors: unknown strategy or check
// names, missing thresholds, invalid version pins. The orchestrator
// aborts before touching any record when it sees one.
var ErrConfig = eris.New("invalid configuration")

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Reference  ReferenceConfig  `yaml:"reference" mapstructure:"reference"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Resolution ResolutionConfig `yaml:"resolution" mapstructure:"resolution"`
	Cleaning   CleaningConfig   `yaml:"cleaning" mapstructure:"cleaning"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AnthropicConfig holds Anthropic API settings for the suggestion service.
type AnthropicConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxConcurrent int64   `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RPS           float64 `yaml:"rps" mapstructure:"rps"`
}

// ReferenceConfig pins the reference table for a run. Exactly one source
// (file or Postgres URL) supplies the table; FetchURL optionally names a
// published table file to download first (http, https or ftp scheme).
type ReferenceConfig struct {
	Version     string `yaml:"version" mapstructure:"version"`
	File        string `yaml:"file" mapstructure:"file"`
	PostgresURL string `yaml:"postgres_url" mapstructure:"postgres_url"`
	FetchURL    string `yaml:"fetch_url" mapstructure:"fetch_url"`
}

// PipelineConfig configures orchestration.
type PipelineConfig struct {
	Workers       int  `yaml:"workers" mapstructure:"workers"`
	StrictQuality bool `yaml:"strict_quality" mapstructure:"strict_quality"`
}

// StrategyConfig enables one mapping strategy and sets its threshold.
// Thresholds are boundary-inclusive: a candidate scoring exactly the
// threshold resolves.
type StrategyConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	TopK      int     `yaml:"top_k" mapstructure:"top_k"`
}

// ResolutionConfig configures the mapping resolver. Strategy precedence
// is fixed (direct, then fuzzy, then suggested); configuration can only
// enable or disable individual strategies.
type ResolutionConfig struct {
	SourceColumn string         `yaml:"source_column" mapstructure:"source_column"`
	TargetColumn string         `yaml:"target_column" mapstructure:"target_column"`
	Direct       StrategyConfig `yaml:"direct" mapstructure:"direct"`
	Fuzzy        StrategyConfig `yaml:"fuzzy" mapstructure:"fuzzy"`
	Suggested    StrategyConfig `yaml:"suggested" mapstructure:"suggested"`
}

// RuleConfig names one cleaning rule with its parameters.
type RuleConfig struct {
	Name    string         `yaml:"name" mapstructure:"name"`
	Enabled *bool          `yaml:"enabled,omitempty" mapstructure:"enabled"`
	Params  map[string]any `yaml:"params,omitempty" mapstructure:"params"`
}

// On reports whether the rule is enabled (default true).
func (r RuleConfig) On() bool {
	return r.Enabled == nil || *r.Enabled
}

// CleaningConfig configures the pre-resolution cleaning stage.
type CleaningConfig struct {
	Enabled bool         `yaml:"enabled" mapstructure:"enabled"`
	Rules   []RuleConfig `yaml:"rules" mapstructure:"rules"`
}

// CheckConfig names one quality check with severity and parameters.
type CheckConfig struct {
	Name           string         `yaml:"name" mapstructure:"name"`
	Enabled        *bool          `yaml:"enabled,omitempty" mapstructure:"enabled"`
	Severity       string         `yaml:"severity" mapstructure:"severity"`
	SeverityWeight float64        `yaml:"severity_weight,omitempty" mapstructure:"severity_weight"`
	Params         map[string]any `yaml:"params,omitempty" mapstructure:"params"`
}

// On reports whether the check is enabled (default true).
func (c CheckConfig) On() bool {
	return c.Enabled == nil || *c.Enabled
}

// QualityConfig configures the quality assessor.
type QualityConfig struct {
	Checks []CheckConfig `yaml:"checks" mapstructure:"checks"`
}

// ReportConfig configures the markdown harmonization report.
type ReportConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	File    string `yaml:"file" mapstructure:"file"`
}

// ServerConfig configures the review web form.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HARMONIZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.strict_quality", false)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_concurrent", 4)
	v.SetDefault("anthropic.timeout_secs", 30)
	v.SetDefault("anthropic.rps", 2.0)
	v.SetDefault("resolution.source_column", "icd10_code")
	v.SetDefault("resolution.target_column", "gbd_cause")
	v.SetDefault("resolution.direct.enabled", true)
	v.SetDefault("resolution.fuzzy.enabled", true)
	v.SetDefault("resolution.fuzzy.threshold", 0.85)
	v.SetDefault("resolution.fuzzy.top_k", 5)
	v.SetDefault("resolution.suggested.enabled", false)
	v.SetDefault("resolution.suggested.threshold", 0.80)
	v.SetDefault("resolution.suggested.top_k", 3)
	v.SetDefault("cleaning.enabled", true)
	v.SetDefault("report.enabled", true)
	v.SetDefault("report.file", "harmonization_report.md")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for fatal errors before any record
// is processed. All violations are reported at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Reference.Version == "" {
		errs = append(errs, "reference.version must pin a table version")
	}
	if c.Reference.File == "" && c.Reference.PostgresURL == "" && c.Reference.FetchURL == "" {
		errs = append(errs, "reference requires a file, postgres_url or fetch_url source")
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, "pipeline.workers must be >= 1")
	}
	if c.Resolution.SourceColumn == "" {
		errs = append(errs, "resolution.source_column is required")
	}
	if c.Resolution.TargetColumn == "" {
		errs = append(errs, "resolution.target_column is required")
	}
	if !c.Resolution.Direct.Enabled && !c.Resolution.Fuzzy.Enabled && !c.Resolution.Suggested.Enabled {
		errs = append(errs, "resolution: at least one strategy must be enabled")
	}
	if c.Resolution.Fuzzy.Enabled {
		if err := validThreshold("resolution.fuzzy.threshold", c.Resolution.Fuzzy.Threshold); err != "" {
			errs = append(errs, err)
		}
	}
	if c.Resolution.Suggested.Enabled {
		if err := validThreshold("resolution.suggested.threshold", c.Resolution.Suggested.Threshold); err != "" {
			errs = append(errs, err)
		}
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required when the suggested strategy is enabled")
		}
	}
	for _, chk := range c.Quality.Checks {
		if chk.Name == "" {
			errs = append(errs, "quality.checks: every check needs a name")
		}
		if chk.SeverityWeight < 0 {
			errs = append(errs, "quality.checks."+chk.Name+": severity_weight must be >= 0")
		}
	}

	if len(errs) > 0 {
		return eris.Wrap(ErrConfig, strings.Join(errs, "; "))
	}
	return nil
}

func validThreshold(name string, v float64) string {
	if v <= 0 || v > 1 {
		return name + " must be in (0, 1]"
	}
	return ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Default returns a configuration with every default filled in, plus a
// starter cleaning chain and check suite. Used by `harmonize init` to
// scaffold a config file worth editing.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Anthropic: AnthropicConfig{
			Model:         "claude-haiku-4-5-20251001",
			MaxConcurrent: 4,
			TimeoutSecs:   30,
			RPS:           2.0,
		},
		Reference: ReferenceConfig{
			Version: "gbd-2024-v1",
			File:    "reference.csv",
		},
		Pipeline: PipelineConfig{Workers: 8},
		Resolution: ResolutionConfig{
			SourceColumn: "icd10_code",
			TargetColumn: "gbd_cause",
			Direct:       StrategyConfig{Enabled: true},
			Fuzzy:        StrategyConfig{Enabled: true, Threshold: 0.85, TopK: 5},
			Suggested:    StrategyConfig{Enabled: false, Threshold: 0.80, TopK: 3},
		},
		Cleaning: CleaningConfig{
			Enabled: true,
			Rules: []RuleConfig{
				{Name: "trim_whitespace"},
				{Name: "normalize_sex", Params: map[string]any{"column": "sex"}},
				{Name: "drop_empty", Params: map[string]any{"column": "icd10_code"}},
			},
		},
		Quality: QualityConfig{
			Checks: []CheckConfig{
				{Name: "unmapped_rate", Severity: "error", Params: map[string]any{"max_rate": 0.05}},
				{Name: "completeness", Severity: "warning", Params: map[string]any{"columns": []any{"icd10_code"}}},
				{Name: "duplicates", Severity: "warning", Params: map[string]any{"columns": []any{"icd10_code", "sex", "age"}}},
			},
		},
		Report: ReportConfig{Enabled: true, File: "harmonization_report.md"},
		Server: ServerConfig{Port: 8080},
	}
}

// WriteDefault writes the default configuration as YAML. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return eris.Errorf("config: %s already exists", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return eris.Wrap(err, "config: marshal defaults")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "config: write %s", path)
	}
	return nil
}
