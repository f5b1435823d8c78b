package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"ghostd/internal/common/fsutil"
)

// Config holds runtime parameters for the coordinator and the daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	DebounceMS          int     `json:"debounce_ms" yaml:"debounce_ms" toml:"debounce_ms"`
	MaxWaitMS           int     `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	RequestTimeoutMS    int     `json:"request_timeout_ms" yaml:"request_timeout_ms" toml:"request_timeout_ms"`
	PrefixChars         int     `json:"prefix_chars" yaml:"prefix_chars" toml:"prefix_chars"`
	SuffixChars         int     `json:"suffix_chars" yaml:"suffix_chars" toml:"suffix_chars"`
	MaxCompletionTokens int     `json:"max_completion_tokens" yaml:"max_completion_tokens" toml:"max_completion_tokens"`
	FIMMaxTokens        int     `json:"fim_max_tokens" yaml:"fim_max_tokens" toml:"fim_max_tokens"`
	Temperature         float32 `json:"temperature" yaml:"temperature" toml:"temperature"`

	Provider string         `json:"provider" yaml:"provider" toml:"provider"`
	OpenAI   RemoteConfig   `json:"openai" yaml:"openai" toml:"openai"`
	Gemini   RemoteConfig   `json:"gemini" yaml:"gemini" toml:"gemini"`
	Local    LocalConfig    `json:"local" yaml:"local" toml:"local"`
	Retry    RetryConfig    `json:"retry" yaml:"retry" toml:"retry"`
	Cache    CacheConfig    `json:"cache" yaml:"cache" toml:"cache"`
	Watchdog WatchdogConfig `json:"watchdog" yaml:"watchdog" toml:"watchdog"`
	HTTP     HTTPConfig     `json:"http" yaml:"http" toml:"http"`
	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
}

// RemoteConfig configures one HTTP completion provider.
type RemoteConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	Model   string `json:"model" yaml:"model" toml:"model"`
	// Opaque credential handle, e.g. "env:OPENAI_API_KEY".
	Credential string `json:"credential" yaml:"credential" toml:"credential"`
}

// LocalConfig configures local inference.
type LocalConfig struct {
	// Pin a specific device id; empty means automatic ranking.
	Device  string `json:"device" yaml:"device" toml:"device"`
	CPUOnly bool   `json:"cpu_only" yaml:"cpu_only" toml:"cpu_only"`
	// Explicit model file; overrides GPUModel/CPUModel resolution.
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Hugging Face references used when no explicit path is set.
	GPUModel  string `json:"gpu_model" yaml:"gpu_model" toml:"gpu_model"`
	CPUModel  string `json:"cpu_model" yaml:"cpu_model" toml:"cpu_model"`
	CtxSize   int    `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	Threads   int    `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers int    `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
}

// RetryConfig shapes retries of transient remote failures.
type RetryConfig struct {
	MaxRetries    int `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	BaseBackoffMS int `json:"base_backoff_ms" yaml:"base_backoff_ms" toml:"base_backoff_ms"`
	MaxBackoffMS  int `json:"max_backoff_ms" yaml:"max_backoff_ms" toml:"max_backoff_ms"`
	// Disabled turns retries off entirely (MaxRetries=0 means "use default").
	Disabled bool `json:"disabled" yaml:"disabled" toml:"disabled"`
}

// CacheConfig sizes the suggestion cache.
type CacheConfig struct {
	TTLSeconds int  `json:"ttl_seconds" yaml:"ttl_seconds" toml:"ttl_seconds"`
	Capacity   int  `json:"capacity" yaml:"capacity" toml:"capacity"`
	Disabled   bool `json:"disabled" yaml:"disabled" toml:"disabled"`
}

// WatchdogConfig tunes worker supervision.
type WatchdogConfig struct {
	CrashLoopThreshold int `json:"crash_loop_threshold" yaml:"crash_loop_threshold" toml:"crash_loop_threshold"`
	CrashLoopWindowMS  int `json:"crash_loop_window_ms" yaml:"crash_loop_window_ms" toml:"crash_loop_window_ms"`
	HeartbeatMS        int `json:"heartbeat_ms" yaml:"heartbeat_ms" toml:"heartbeat_ms"`
}

// HTTPConfig configures the daemon bridge.
type HTTPConfig struct {
	Addr         string   `json:"addr" yaml:"addr" toml:"addr"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
}

// Load reads a configuration file based on its extension and applies defaults.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as TOML, the format the editor keeps its settings in.
func Save(path string, cfg Config) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return fsutil.WriteFileAtomic(path, b, 0o644)
}

// ResolvePath picks the config file to load: the explicit flag value, then
// $GHOSTD_CONFIG, then $XDG_CONFIG_HOME/ghostd/config.toml (or
// ~/.config/ghostd/config.toml) when it exists. Empty means "use defaults".
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("GHOSTD_CONFIG"); v != "" {
		return v
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	p := filepath.Join(dir, "ghostd", "config.toml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}
