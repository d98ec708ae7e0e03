// Package config loads probe configuration from CLI arguments, .env files
// and environment variables, with CLI taking the highest priority.
package config

import (
	"crypto/subtle"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/anomalyscope/anomalyscope-go/internal/provider"
)

// CLIOptions holds command-line argument overrides
type CLIOptions struct {
	Prompt      string  // -prompt: probe prompt text
	Runs        int     // -runs: samples per provider
	Temperature float64 // -temperature: sampling temperature
	Threshold   float64 // -threshold: divergence tolerance in (0,1]
	Providers   string  // -providers: comma list of providers to compare
	ReportsDir  string  // -reports-dir: directory for anomaly reports
	ShowHelp    bool    // -help: show usage
	ShowVersion bool    // -version: show version
}

// ParseCLI parses command-line arguments and returns CLIOptions
func ParseCLI() *CLIOptions {
	opts := &CLIOptions{}

	flag.StringVar(&opts.Prompt, "prompt", "", "Prompt to probe providers with (overrides config)")
	flag.IntVar(&opts.Runs, "runs", 0, "Number of samples per provider (overrides config)")
	flag.Float64Var(&opts.Temperature, "temperature", -1, "Sampling temperature (overrides config)")
	flag.Float64Var(&opts.Threshold, "threshold", 0, "Divergence tolerance in (0,1] (overrides config)")
	flag.StringVar(&opts.Providers, "providers", "", "Comma list of providers: openai, anthropic, ollama, lmstudio")
	flag.StringVar(&opts.ReportsDir, "reports-dir", "", "Directory for anomaly reports (overrides config)")
	flag.BoolVar(&opts.ShowHelp, "help", false, "Show usage information")
	flag.BoolVar(&opts.ShowVersion, "version", false, "Show version information")

	// Custom usage message
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "AnomalyScope Probe - Cross-provider LLM drift detection\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nExamples:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  %s -providers openai,anthropic\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "  %s -prompt \"Summarize HTTP/3 in one sentence.\" -runs 5\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "  %s -providers ollama,lmstudio -temperature 1.1 -threshold 0.8\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment variables can be set in .env file or exported directly.\n")
		_, _ = fmt.Fprintf(os.Stderr, "CLI arguments override environment variables.\n")
	}

	flag.Parse()

	return opts
}

// PrintUsage prints the command-line usage information
func PrintUsage() {
	flag.Usage()
}

// Config holds all application configuration
type Config struct {
	// Probe parameters
	Prompt      string
	Runs        int
	Temperature float64
	Threshold   float64
	Providers   []string // selection order; the first two are compared

	// OpenAI Settings (used when "openai" is selected)
	OpenAIAPIKey string
	OpenAIModel  string

	// Anthropic/Claude Settings (used when "anthropic" is selected)
	AnthropicAPIKey string
	ClaudeModel     string

	// Ollama Settings (used when "ollama" is selected)
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3.3:latest"

	// LM Studio Settings (used when "lmstudio" is selected)
	LMStudioBaseURL string // e.g., "http://localhost:1234"
	LMStudioModel   string // e.g., "local-model" or specific model name

	// Telegram (optional side-channel notifier)
	TelegramBotToken       string
	TelegramArchiveChannel int64
	TelegramAlertsChannel  int64 // Optional

	// Reports
	ReportsDir string

	// Application
	LogLevel       string
	EnableDatabase bool
	DatabasePath   string

	// Proxy
	HTTPProxy  string
	HTTPSProxy string

	// AI Settings
	AITimeoutSeconds int
	AIMaxTokens      int
}

// Load loads configuration from .env file and environment variables
// Priority: .env file > OS environment variables
// For CLI overrides, use LoadWithCLI instead
func Load() (*Config, error) {
	return LoadWithCLI(nil)
}

// LoadWithCLI loads configuration with CLI argument overrides
// Priority: CLI args > .env file > OS environment variables
func LoadWithCLI(cli *CLIOptions) (*Config, error) {
	// Set up viper first to read OS environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Load .env file to override OS environment variables
	// godotenv.Load() sets OS env vars from .env, which viper will then read
	_ = godotenv.Load()

	// Set defaults
	setDefaults()

	config := &Config{
		// Probe parameters
		Prompt:      viper.GetString("PROBE_PROMPT"),
		Runs:        viper.GetInt("PROBE_RUNS"),
		Temperature: viper.GetFloat64("PROBE_TEMPERATURE"),
		Threshold:   viper.GetFloat64("PROBE_THRESHOLD"),
		Providers:   splitProviders(viper.GetString("PROBE_PROVIDERS")),

		// Provider settings
		OpenAIAPIKey:    viper.GetString("OPENAI_API_KEY"),
		OpenAIModel:     viper.GetString("OPENAI_MODEL"),
		AnthropicAPIKey: viper.GetString("ANTHROPIC_API_KEY"),
		ClaudeModel:     viper.GetString("CLAUDE_MODEL"),
		OllamaBaseURL:   viper.GetString("OLLAMA_BASE_URL"),
		OllamaModel:     viper.GetString("OLLAMA_MODEL"),
		LMStudioBaseURL: viper.GetString("LMSTUDIO_BASE_URL"),
		LMStudioModel:   viper.GetString("LMSTUDIO_MODEL"),

		// Telegram settings
		TelegramBotToken:       viper.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramArchiveChannel: viper.GetInt64("TELEGRAM_CHANNEL_ARCHIVE_ID"),
		TelegramAlertsChannel:  viper.GetInt64("TELEGRAM_CHANNEL_ALERTS_ID"),

		// Reports
		ReportsDir: viper.GetString("REPORTS_DIR"),

		// Application settings
		LogLevel:         viper.GetString("LOG_LEVEL"),
		EnableDatabase:   viper.GetBool("ENABLE_DATABASE"),
		DatabasePath:     viper.GetString("DATABASE_PATH"),
		HTTPProxy:        viper.GetString("HTTP_PROXY"),
		HTTPSProxy:       viper.GetString("HTTPS_PROXY"),
		AITimeoutSeconds: viper.GetInt("AI_TIMEOUT_SECONDS"),
		AIMaxTokens:      viper.GetInt("AI_MAX_TOKENS"),
	}

	// Apply CLI overrides (highest priority)
	if cli != nil {
		if cli.Prompt != "" {
			config.Prompt = cli.Prompt
		}
		if cli.Runs > 0 {
			config.Runs = cli.Runs
		}
		if cli.Temperature >= 0 {
			config.Temperature = cli.Temperature
		}
		if cli.Threshold > 0 {
			config.Threshold = cli.Threshold
		}
		if cli.Providers != "" {
			config.Providers = splitProviders(cli.Providers)
		}
		if cli.ReportsDir != "" {
			config.ReportsDir = cli.ReportsDir
		}
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// splitProviders parses a comma-separated provider list, trimming whitespace,
// lowercasing, and dropping duplicates while preserving first-appearance order.
func splitProviders(s string) []string {
	seen := make(map[string]bool)
	var providers []string
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		providers = append(providers, name)
	}
	return providers
}

// setDefaults sets default configuration values
func setDefaults() {
	// Probe defaults
	viper.SetDefault("PROBE_PROMPT", "Explain the purpose of AnomalyScope in one concise sentence.")
	viper.SetDefault("PROBE_RUNS", 3)
	viper.SetDefault("PROBE_TEMPERATURE", 0.9)
	viper.SetDefault("PROBE_THRESHOLD", 0.85)
	viper.SetDefault("PROBE_PROVIDERS", "openai,anthropic")

	// Provider defaults
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("CLAUDE_MODEL", "claude-sonnet-4-5-20250929")
	viper.SetDefault("OLLAMA_BASE_URL", "http://localhost:11434")
	viper.SetDefault("OLLAMA_MODEL", "llama3.3:latest")
	viper.SetDefault("LMSTUDIO_BASE_URL", "http://localhost:1234")
	viper.SetDefault("LMSTUDIO_MODEL", "local-model")

	// Application defaults
	viper.SetDefault("REPORTS_DIR", "./reports")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("ENABLE_DATABASE", true)
	viper.SetDefault("DATABASE_PATH", "./data/anomalies.db")
	viper.SetDefault("AI_TIMEOUT_SECONDS", 120)
	viper.SetDefault("AI_MAX_TOKENS", 1024)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate probe parameters
	if strings.TrimSpace(c.Prompt) == "" {
		return fmt.Errorf("PROBE_PROMPT cannot be empty")
	}
	if c.Runs < 1 || c.Runs > 25 {
		return fmt.Errorf("PROBE_RUNS must be between 1 and 25")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("PROBE_TEMPERATURE must be between 0 and 2")
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("PROBE_THRESHOLD must be in (0, 1]")
	}

	// Validate provider selection and provider-specific settings
	if err := c.validateProviders(); err != nil {
		return err
	}

	// Validate Telegram settings (notifier is optional)
	if err := c.validateTelegram(); err != nil {
		return err
	}

	// Validate reports directory
	if c.ReportsDir == "" {
		return fmt.Errorf("REPORTS_DIR cannot be empty")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	// Validate AI settings
	if c.AITimeoutSeconds < 10 || c.AITimeoutSeconds > 600 {
		return fmt.Errorf("AI_TIMEOUT_SECONDS must be between 10 and 600")
	}
	if c.AIMaxTokens < 64 || c.AIMaxTokens > 16000 {
		return fmt.Errorf("AI_MAX_TOKENS must be between 64 and 16000")
	}

	return nil
}

// HasTelegram returns true if the Telegram notifier is configured
func (c *Config) HasTelegram() bool {
	return c.TelegramBotToken != ""
}

// HasAlertsChannel returns true if alerts channel is configured
func (c *Config) HasAlertsChannel() bool {
	return c.TelegramAlertsChannel != 0
}

// GetProxyURL returns the appropriate proxy URL for HTTP/HTTPS requests
func (c *Config) GetProxyURL(isHTTPS bool) string {
	if isHTTPS && c.HTTPSProxy != "" {
		return c.HTTPSProxy
	}
	if c.HTTPProxy != "" {
		return c.HTTPProxy
	}
	return ""
}

// constantTimePrefixMatch checks if s starts with prefix using constant-time comparison.
// This prevents timing attacks that could leak information about the string content.
// Returns false if s is shorter than prefix.
func constantTimePrefixMatch(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	// Compare only the prefix portion using constant-time comparison
	return subtle.ConstantTimeCompare([]byte(s[:len(prefix)]), []byte(prefix)) == 1
}

// validateProviders validates the provider selection and the settings of
// every selected provider. Unselected providers need no credentials.
func (c *Config) validateProviders() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("PROBE_PROVIDERS cannot be empty")
	}

	for _, name := range c.Providers {
		if !provider.IsValidType(name) {
			return fmt.Errorf("unsupported provider: %s (valid: %v)", name, provider.ValidTypes())
		}

		switch provider.Type(name) {
		case provider.TypeOpenAI:
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required when provider 'openai' is selected")
			}
			if !constantTimePrefixMatch(c.OpenAIAPIKey, "sk-") {
				return fmt.Errorf("OPENAI_API_KEY must start with 'sk-'")
			}
			if c.OpenAIModel == "" {
				return fmt.Errorf("OPENAI_MODEL is required when provider 'openai' is selected")
			}

		case provider.TypeAnthropic:
			if c.AnthropicAPIKey == "" {
				return fmt.Errorf("ANTHROPIC_API_KEY is required when provider 'anthropic' is selected")
			}
			if !constantTimePrefixMatch(c.AnthropicAPIKey, "sk-ant-") {
				return fmt.Errorf("ANTHROPIC_API_KEY must start with 'sk-ant-'")
			}
			if c.ClaudeModel == "" {
				return fmt.Errorf("CLAUDE_MODEL is required when provider 'anthropic' is selected")
			}

		case provider.TypeOllama:
			if c.OllamaModel == "" {
				return fmt.Errorf("OLLAMA_MODEL is required when provider 'ollama' is selected")
			}
			if !strings.HasPrefix(c.OllamaBaseURL, "http://") && !strings.HasPrefix(c.OllamaBaseURL, "https://") {
				return fmt.Errorf("OLLAMA_BASE_URL must start with 'http://' or 'https://'")
			}

		case provider.TypeLMStudio:
			if !strings.HasPrefix(c.LMStudioBaseURL, "http://") && !strings.HasPrefix(c.LMStudioBaseURL, "https://") {
				return fmt.Errorf("LMSTUDIO_BASE_URL must start with 'http://' or 'https://'")
			}
			// Model is optional for LM Studio (defaults to "local-model")
		}
	}

	return nil
}

// validateTelegram validates the optional Telegram notifier settings.
func (c *Config) validateTelegram() error {
	if !c.HasTelegram() {
		return nil
	}

	if !telegramTokenValid(c.TelegramBotToken) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN has invalid format (expected: 'number:token')")
	}
	if c.TelegramArchiveChannel == 0 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if c.TelegramArchiveChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID must be a supergroup/channel ID (starts with -100)")
	}
	if c.TelegramAlertsChannel != 0 && c.TelegramAlertsChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ALERTS_ID must be a supergroup/channel ID (starts with -100)")
	}

	return nil
}

// telegramTokenValid checks the "number:token" bot token shape.
func telegramTokenValid(token string) bool {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}
	for _, r := range parts[0] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
