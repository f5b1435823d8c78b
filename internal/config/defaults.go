package config

import (
	"fmt"
	"time"

	"ghostd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultDebounceMS          = 50
	DefaultRequestTimeoutMS    = 2000
	DefaultPrefixChars         = 2000
	DefaultSuffixChars         = 1000
	DefaultMaxCompletionTokens = 128
	DefaultFIMMaxTokens        = 50
	DefaultTemperature         = 0.2
	DefaultMaxRetries          = 2
	DefaultBaseBackoffMS       = 100
	DefaultMaxBackoffMS        = 1000
	DefaultCacheTTLSeconds     = 300
	DefaultCacheCapacity       = 256
	DefaultCrashLoopThreshold  = 3
	DefaultCrashLoopWindowMS   = 30000
	DefaultHeartbeatMS         = 2000
	DefaultAddr                = "127.0.0.1:7878"
	DefaultModelsDir           = "~/.local/share/ghostd/models"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-3.5-turbo-instruct"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-1.5-flash"
	DefaultGPUModel      = "mradermacher/Luau-Qwen3-4B-FIM-v0.1-i1-GGUF:Q4_K_M"
	DefaultCPUModel      = "OleFranz/Qwen3-0.6B-Text-FIM-GGUF"
)

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	setInt(&c.DebounceMS, DefaultDebounceMS)
	setInt(&c.RequestTimeoutMS, DefaultRequestTimeoutMS)
	setInt(&c.PrefixChars, DefaultPrefixChars)
	setInt(&c.SuffixChars, DefaultSuffixChars)
	setInt(&c.MaxCompletionTokens, DefaultMaxCompletionTokens)
	setInt(&c.FIMMaxTokens, DefaultFIMMaxTokens)
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Provider == "" {
		c.Provider = string(types.ProviderLocal)
	}
	setStr(&c.OpenAI.BaseURL, DefaultOpenAIBaseURL)
	setStr(&c.OpenAI.Model, DefaultOpenAIModel)
	setStr(&c.OpenAI.Credential, "env:OPENAI_API_KEY")
	setStr(&c.Gemini.BaseURL, DefaultGeminiBaseURL)
	setStr(&c.Gemini.Model, DefaultGeminiModel)
	setStr(&c.Gemini.Credential, "env:GEMINI_API_KEY")
	setStr(&c.Local.ModelsDir, DefaultModelsDir)
	setStr(&c.Local.GPUModel, DefaultGPUModel)
	setStr(&c.Local.CPUModel, DefaultCPUModel)
	setInt(&c.Local.CtxSize, 2048)
	setInt(&c.Retry.MaxRetries, DefaultMaxRetries)
	setInt(&c.Retry.BaseBackoffMS, DefaultBaseBackoffMS)
	setInt(&c.Retry.MaxBackoffMS, DefaultMaxBackoffMS)
	setInt(&c.Cache.TTLSeconds, DefaultCacheTTLSeconds)
	setInt(&c.Cache.Capacity, DefaultCacheCapacity)
	setInt(&c.Watchdog.CrashLoopThreshold, DefaultCrashLoopThreshold)
	setInt(&c.Watchdog.CrashLoopWindowMS, DefaultCrashLoopWindowMS)
	setInt(&c.Watchdog.HeartbeatMS, DefaultHeartbeatMS)
	setStr(&c.HTTP.Addr, DefaultAddr)
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}
	setStr(&c.Log.Level, "info")
	setStr(&c.Log.Format, "auto")
}

// Validate rejects configurations the coordinator cannot run with.
func (c Config) Validate() error {
	switch types.ProviderKind(c.Provider) {
	case types.ProviderLocal, types.ProviderOpenAI, types.ProviderGemini:
	default:
		return fmt.Errorf("unknown provider %q (want local|openai|gemini)", c.Provider)
	}
	if c.DebounceMS < 0 || c.MaxWaitMS < 0 || c.RequestTimeoutMS < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.MaxWaitMS > 0 && c.MaxWaitMS < c.DebounceMS {
		return fmt.Errorf("max_wait_ms (%d) must be at least debounce_ms (%d)", c.MaxWaitMS, c.DebounceMS)
	}
	if c.Local.CPUOnly && c.Local.Device != "" {
		return fmt.Errorf("local.device and local.cpu_only are mutually exclusive")
	}
	return nil
}

// ProviderConfig projects the file configuration onto a set_provider argument.
func (c Config) ProviderConfig() types.ProviderConfig {
	pc := types.ProviderConfig{Provider: types.ProviderKind(c.Provider)}
	switch pc.Provider {
	case types.ProviderOpenAI:
		pc.BaseURL, pc.Model, pc.Credential = c.OpenAI.BaseURL, c.OpenAI.Model, c.OpenAI.Credential
	case types.ProviderGemini:
		pc.BaseURL, pc.Model, pc.Credential = c.Gemini.BaseURL, c.Gemini.Model, c.Gemini.Credential
	default:
		pc.Device, pc.CPUOnly = c.Local.Device, c.Local.CPUOnly
	}
	return pc
}

func (c Config) Debounce() time.Duration       { return ms(c.DebounceMS) }
func (c Config) MaxWait() time.Duration        { return ms(c.MaxWaitMS) }
func (c Config) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }
func (c Config) BaseBackoff() time.Duration    { return ms(c.Retry.BaseBackoffMS) }
func (c Config) MaxBackoff() time.Duration     { return ms(c.Retry.MaxBackoffMS) }
func (c Config) CacheTTL() time.Duration       { return time.Duration(c.Cache.TTLSeconds) * time.Second }
func (c Config) CrashLoopWindow() time.Duration {
	return ms(c.Watchdog.CrashLoopWindowMS)
}
func (c Config) Heartbeat() time.Duration { return ms(c.Watchdog.HeartbeatMS) }

// Retries returns the effective retry budget for transient failures.
func (c Config) Retries() int {
	if c.Retry.Disabled {
		return 0
	}
	return c.Retry.MaxRetries
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func setInt(p *int, def int) {
	if *p <= 0 {
		*p = def
	}
}

func setStr(p *string, def string) {
	if *p == "" {
		*p = def
	}
}
