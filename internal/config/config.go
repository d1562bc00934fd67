package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the optional YAML file layered under the environment.
const EnvConfigPath = "VOICERELAY_CONFIG"

// Config stores runtime configuration for the desktop app and relayd.
type Config struct {
	Environment string           `yaml:"environment"`
	Log         LogConfig        `yaml:"log"`
	UI          UIConfig         `yaml:"ui"`
	Deepgram    DeepgramConfig   `yaml:"deepgram"`
	Audio       AudioConfig      `yaml:"audio"`
	Session     SessionConfig    `yaml:"session"`
	Rules       RulesConfig      `yaml:"rules"`
	Server      ServerConfig     `yaml:"server"`
	Translator  TranslatorConfig `yaml:"translator"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// UIConfig holds the page defaults.
type UIConfig struct {
	Endpoint       string `yaml:"endpoint"`
	InputLanguage  string `yaml:"input_language"`
	OutputLanguage string `yaml:"output_language"`
}

type DeepgramConfig struct {
	APIKey      string `yaml:"api_key"`
	APIBaseURL  string `yaml:"api_base_url"`
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
	SmartFormat bool   `yaml:"smart_format"`
	Punctuate   bool   `yaml:"punctuate"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
}

type SessionConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`
	StreamingGrace time.Duration `yaml:"streaming_grace"`
	StreamTimeout  time.Duration `yaml:"stream_timeout"`
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
}

// ServerConfig controls relayd.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type TranslatorConfig struct {
	Backend        string        `yaml:"backend"`
	GoogleEndpoint string        `yaml:"google_endpoint"`
	Timeout        time.Duration `yaml:"timeout"`
	OpenAI         OpenAIConfig  `yaml:"openai"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Environment: "development",
		Log:         LogConfig{Level: "info"},
		UI: UIConfig{
			Endpoint:       "http://127.0.0.1:5000",
			InputLanguage:  "en-US",
			OutputLanguage: "en",
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
		},
		Session: SessionConfig{
			ChunkSize:      4096,
			StreamingGrace: time.Second,
			StreamTimeout:  10 * time.Second,
		},
		Rules: RulesConfig{IterationLimit: 30},
		Server: ServerConfig{
			Addr:           ":5000",
			AllowedOrigins: []string{"*"},
			ShutdownGrace:  5 * time.Second,
		},
		Translator: TranslatorConfig{
			Backend:        "google",
			GoogleEndpoint: "https://translate.googleapis.com/translate_a/single",
			Timeout:        10 * time.Second,
			OpenAI:         OpenAIConfig{Model: "gpt-4o-mini"},
		},
	}
}

// Load resolves configuration: defaults, then the YAML file named by
// VOICERELAY_CONFIG (if set), then environment variables.
func Load() (Config, error) {
	return LoadFile(strings.TrimSpace(os.Getenv(EnvConfigPath)))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	if cfg.Rules.Path == "" {
		cfg.Rules.Path = defaultRulesPath()
	}
	normalize(&cfg)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Environment = envOrDefault("VOICERELAY_ENVIRONMENT", cfg.Environment)
	cfg.Log.Level = envOrDefault("VOICERELAY_LOG_LEVEL", cfg.Log.Level)

	cfg.UI.Endpoint = envOrDefault("VOICERELAY_ENDPOINT", cfg.UI.Endpoint)
	cfg.UI.InputLanguage = envOrDefault("VOICERELAY_INPUT_LANG", cfg.UI.InputLanguage)
	cfg.UI.OutputLanguage = envOrDefault("VOICERELAY_OUTPUT_LANG", cfg.UI.OutputLanguage)

	cfg.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", cfg.Deepgram.Model)
	cfg.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", cfg.Deepgram.Language)
	cfg.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Deepgram.SmartFormat)
	cfg.Deepgram.Punctuate = envOrDefaultBool("DEEPGRAM_PUNCTUATE", cfg.Deepgram.Punctuate)

	cfg.Audio.RecorderCommand = envOrDefault("VOICERELAY_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("VOICERELAY_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = firstNonEmpty(
		os.Getenv("VOICERELAY_AUDIO_INPUT_DEVICE"),
		os.Getenv("DEEPGRAM_PULSE_SOURCE"),
		cfg.Audio.InputDevice,
	)
	cfg.Audio.SampleRate = envOrDefaultInt("VOICERELAY_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("VOICERELAY_CHANNELS", cfg.Audio.Channels)

	cfg.Session.ChunkSize = envOrDefaultInt("VOICERELAY_AUDIO_CHUNK_SIZE", cfg.Session.ChunkSize)
	cfg.Session.StreamingGrace = envOrDefaultMillis("VOICERELAY_STREAMING_GRACE_MS", cfg.Session.StreamingGrace)
	cfg.Session.StreamTimeout = envOrDefaultMillis("VOICERELAY_STREAM_TIMEOUT_MS", cfg.Session.StreamTimeout)

	cfg.Rules.Path = envOrDefault("VOICERELAY_RULES_FILE", cfg.Rules.Path)
	cfg.Rules.IterationLimit = envOrDefaultInt("VOICERELAY_RULE_ITERATION_LIMIT", cfg.Rules.IterationLimit)

	cfg.Server.Addr = envOrDefault("VOICERELAY_ADDR", cfg.Server.Addr)
	if origins := strings.TrimSpace(os.Getenv("VOICERELAY_CORS_ORIGINS")); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	cfg.Server.ShutdownGrace = envOrDefaultMillis("VOICERELAY_SHUTDOWN_GRACE_MS", cfg.Server.ShutdownGrace)

	cfg.Translator.Backend = strings.ToLower(envOrDefault("VOICERELAY_TRANSLATOR", cfg.Translator.Backend))
	cfg.Translator.GoogleEndpoint = envOrDefault("VOICERELAY_GOOGLE_TRANSLATE_ENDPOINT", cfg.Translator.GoogleEndpoint)
	cfg.Translator.Timeout = envOrDefaultMillis("VOICERELAY_TRANSLATE_TIMEOUT_MS", cfg.Translator.Timeout)
	cfg.Translator.OpenAI.APIKey = envOrDefault("OPENAI_API_KEY", cfg.Translator.OpenAI.APIKey)
	cfg.Translator.OpenAI.BaseURL = envOrDefault("OPENAI_BASE_URL", cfg.Translator.OpenAI.BaseURL)
	cfg.Translator.OpenAI.Model = envOrDefault("OPENAI_MODEL", cfg.Translator.OpenAI.Model)
}

// normalize replaces out-of-range values with defaults.
func normalize(cfg *Config) {
	def := Default()
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = def.Audio.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = def.Audio.Channels
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = def.Rules.IterationLimit
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = def.Session.ChunkSize
	}
	if cfg.Session.StreamingGrace < 0 {
		cfg.Session.StreamingGrace = def.Session.StreamingGrace
	}
	if cfg.Session.StreamTimeout <= 0 {
		cfg.Session.StreamTimeout = def.Session.StreamTimeout
	}
	if cfg.Translator.Timeout <= 0 {
		cfg.Translator.Timeout = def.Translator.Timeout
	}
	if cfg.Server.ShutdownGrace <= 0 {
		cfg.Server.ShutdownGrace = def.Server.ShutdownGrace
	}
	if strings.TrimSpace(cfg.UI.InputLanguage) == "" {
		cfg.UI.InputLanguage = def.UI.InputLanguage
	}
	if strings.TrimSpace(cfg.UI.OutputLanguage) == "" {
		cfg.UI.OutputLanguage = def.UI.OutputLanguage
	}
}

func validate(cfg Config) error {
	switch cfg.Translator.Backend {
	case "google", "openai", "none":
	default:
		return fmt.Errorf("unsupported translator backend %q (want google, openai or none)", cfg.Translator.Backend)
	}

	endpoint, err := url.Parse(cfg.UI.Endpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return fmt.Errorf("invalid processing endpoint %q", cfg.UI.Endpoint)
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a config log level to slog.
func ParseLevel(level string) (slog.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return slog.LevelInfo, nil
	}
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
	return parsed, nil
}

// SlogLevel is the configured level, or info when it cannot be parsed.
func (c LogConfig) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.Level)
	return level
}

func defaultRulesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voicerelay", "substitutions.rules")
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envOrDefaultMillis reads a non-negative millisecond count.
func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
