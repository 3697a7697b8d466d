package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/bnema/gcal-analyzer/internal/analysis"
	"github.com/bnema/gcal-analyzer/internal/logger"
	"github.com/bnema/gcal-analyzer/internal/security"
)

const (
	AppName   = "gcal-analyzer"
	envPrefix = "GCAL_ANALYZER"

	FlowDevice  = "device"
	FlowBrowser = "browser"
)

type Config struct {
	Rules  RulesConfig  `mapstructure:"rules"`
	Window WindowConfig `mapstructure:"window"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Output OutputConfig `mapstructure:"output"`
}

type RulesConfig struct {
	RecurrenceThreshold int    `mapstructure:"recurrence_threshold"`
	InternalDomain      string `mapstructure:"internal_domain"`
	SkipTitlesFile      string `mapstructure:"skip_titles_file"`
	IncludeTitlesFile   string `mapstructure:"include_titles_file"`
	KeepBlankTitles     bool   `mapstructure:"keep_blank_titles"`
}

type WindowConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

type AuthConfig struct {
	Flow          string `mapstructure:"flow"`
	ClientSecrets string `mapstructure:"client_secrets"`
	RedirectPort  int    `mapstructure:"redirect_port"`
}

type OutputConfig struct {
	Format        string `mapstructure:"format"`
	MaxTitleWidth int    `mapstructure:"max_title_width"`
}

var defaultConfig = Config{
	Rules: RulesConfig{
		RecurrenceThreshold: 5,
		InternalDomain:      "",
		SkipTitlesFile:      "skip_titles.txt",
		IncludeTitlesFile:   "include_titles.txt",
		KeepBlankTitles:     false,
	},
	Window: WindowConfig{
		Start: "2024-04-01T00:00:00Z",
		End:   "2024-06-30T23:59:59Z",
	},
	Auth: AuthConfig{
		Flow:          FlowDevice,
		ClientSecrets: "credentials.json",
		RedirectPort:  8080,
	},
	Output: OutputConfig{
		Format:        "text",
		MaxTitleWidth: 60,
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Load reads config.toml from configPath (or the default config directory),
// creating it with defaults on first run. GCAL_ANALYZER_* environment
// variables override file values, e.g. GCAL_ANALYZER_RULES_INTERNAL_DOMAIN.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigName("config")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configDir, err := getDefaultConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		configPath = configDir
	}

	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := createDefaultConfig(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		if err := v.ReadInConfig(); err != nil {
			logger.Warn("failed to read generated config, using defaults", "path", configPath, "error", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Rules.RecurrenceThreshold < 0 {
		return security.NewConfigError("rules.recurrence_threshold",
			fmt.Sprint(c.Rules.RecurrenceThreshold), "must not be negative")
	}

	if _, err := c.AnalysisWindow(); err != nil {
		return security.NewConfigError("window", c.Window.Start+".."+c.Window.End, "invalid window").WithCause(err)
	}

	switch c.Auth.Flow {
	case FlowDevice, FlowBrowser:
	default:
		return security.NewConfigError("auth.flow", c.Auth.Flow, "must be device or browser")
	}

	if c.Auth.RedirectPort <= 0 || c.Auth.RedirectPort > 65535 {
		return security.NewConfigError("auth.redirect_port", fmt.Sprint(c.Auth.RedirectPort), "must be a TCP port")
	}

	if c.Output.MaxTitleWidth < 0 {
		return security.NewConfigError("output.max_title_width", fmt.Sprint(c.Output.MaxTitleWidth), "must not be negative")
	}

	return nil
}

// RuleOptions maps the rules section onto the classifier options.
func (c *Config) RuleOptions() analysis.RuleOptions {
	return analysis.RuleOptions{
		RecurrenceThreshold: c.Rules.RecurrenceThreshold,
		InternalDomain:      c.Rules.InternalDomain,
		SkipTitlesFile:      c.Rules.SkipTitlesFile,
		IncludeTitlesFile:   c.Rules.IncludeTitlesFile,
		KeepBlankTitles:     c.Rules.KeepBlankTitles,
	}
}

// AnalysisWindow parses the configured window bounds.
func (c *Config) AnalysisWindow() (analysis.Window, error) {
	start, err := analysis.ParseBound(c.Window.Start)
	if err != nil {
		return analysis.Window{}, fmt.Errorf("window.start: %w", err)
	}
	end, err := analysis.ParseBound(c.Window.End)
	if err != nil {
		return analysis.Window{}, fmt.Errorf("window.end: %w", err)
	}
	w := analysis.Window{Start: start, End: end}
	return w, w.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rules.recurrence_threshold", defaultConfig.Rules.RecurrenceThreshold)
	v.SetDefault("rules.internal_domain", defaultConfig.Rules.InternalDomain)
	v.SetDefault("rules.skip_titles_file", defaultConfig.Rules.SkipTitlesFile)
	v.SetDefault("rules.include_titles_file", defaultConfig.Rules.IncludeTitlesFile)
	v.SetDefault("rules.keep_blank_titles", defaultConfig.Rules.KeepBlankTitles)

	v.SetDefault("window.start", defaultConfig.Window.Start)
	v.SetDefault("window.end", defaultConfig.Window.End)

	v.SetDefault("auth.flow", defaultConfig.Auth.Flow)
	v.SetDefault("auth.client_secrets", defaultConfig.Auth.ClientSecrets)
	v.SetDefault("auth.redirect_port", defaultConfig.Auth.RedirectPort)

	v.SetDefault("output.format", defaultConfig.Output.Format)
	v.SetDefault("output.max_title_width", defaultConfig.Output.MaxTitleWidth)
}

func createDefaultConfig(configPath string) error {
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.toml")
	if _, err := os.Stat(configFile); err == nil {
		return nil
	}

	configContent := `# gcal-analyzer configuration

[rules]
recurrence_threshold = 5           # titles seen more often than this are skipped
internal_domain = ""               # e.g. "example.com"; empty disables the internal-meeting rule
skip_titles_file = "skip_titles.txt"
include_titles_file = "include_titles.txt"
keep_blank_titles = false          # treat blank lines in title files as empty titles

[window]
start = "2024-04-01T00:00:00Z"     # RFC 3339 or YYYY-MM-DD, inclusive
end = "2024-06-30T23:59:59Z"       # exclusive

[auth]
flow = "device"                    # device or browser
client_secrets = "credentials.json"
redirect_port = 8080               # loopback port for the browser flow

[output]
format = "text"                    # text, table, json or yaml
max_title_width = 60
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func getDefaultConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, AppName), nil
}

func GetDefaultConfigDir() (string, error) {
	return getDefaultConfigDir()
}
