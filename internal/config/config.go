// Package config provides configuration loading and management for vdip.
package config

import "time"

// Config is the root configuration.
type Config struct {
	LLM      LLMConfig      `json:"llm"      mapstructure:"llm"`
	Sandbox  SandboxConfig  `json:"sandbox"  mapstructure:"sandbox"`
	Verify   VerifyConfig   `json:"verify"   mapstructure:"verify"`
	Budgets  Budgets        `json:"budgets"  mapstructure:"budgets"`
	Registry RegistryConfig `json:"registry" mapstructure:"registry"`
	Server   ServerConfig   `json:"server"   mapstructure:"server"`
}

// LLMConfig describes the completion service used by the translation engine.
type LLMConfig struct {
	Model     string `json:"model"                mapstructure:"model"`
	BaseURL   string `json:"base_url,omitempty"   mapstructure:"base_url"`
	APIKeyEnv string `json:"api_key_env,omitempty" mapstructure:"api_key_env"`
	TimeoutMS int    `json:"timeout_ms,omitempty" mapstructure:"timeout_ms"`
}

// SandboxConfig controls the emulated-network pool.
type SandboxConfig struct {
	PoolSize         int    `json:"pool_size"                    mapstructure:"pool_size"`
	AcquireTimeoutMS int    `json:"acquire_timeout_ms,omitempty" mapstructure:"acquire_timeout_ms"`
	TopologyDir      string `json:"topology_dir"                 mapstructure:"topology_dir"`
}

// VerifyConfig supplies the numeric tolerance policy for probes. Thresholds
// live here rather than in code: the source material leaves them unstated.
type VerifyConfig struct {
	Trials           int     `json:"trials,omitempty"             mapstructure:"trials"`
	ProbeTimeoutMS   int     `json:"probe_timeout_ms,omitempty"   mapstructure:"probe_timeout_ms"`
	LossThresholdPct float64 `json:"loss_threshold_pct,omitempty" mapstructure:"loss_threshold_pct"`
	LatencyBoundMS   int     `json:"latency_bound_ms,omitempty"   mapstructure:"latency_bound_ms"`
}

// Budgets defines per-session limits.
type Budgets struct {
	MaxAttempts   int `json:"max_attempts"             mapstructure:"max_attempts"`
	SchemaRetries int `json:"schema_retries,omitempty" mapstructure:"schema_retries"`
}

// RegistryConfig locates the intent registry database.
type RegistryConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" mapstructure:"addr"`
}

// Default returns the configuration used when a field is absent.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Model:     "llama-3.3-70b-versatile",
			APIKeyEnv: "VDIP_LLM_API_KEY",
			TimeoutMS: 60_000,
		},
		Sandbox: SandboxConfig{
			PoolSize:         4,
			AcquireTimeoutMS: 5_000,
			TopologyDir:      "topologies",
		},
		Verify: VerifyConfig{
			Trials:           3,
			ProbeTimeoutMS:   2_000,
			LossThresholdPct: 1.0,
			LatencyBoundMS:   50,
		},
		Budgets: Budgets{
			MaxAttempts:   3,
			SchemaRetries: 2,
		},
		Registry: RegistryConfig{Path: ".vdip/vdip.db"},
		Server:   ServerConfig{Addr: ":8080"},
	}
}

// Timeout returns the completion timeout as a duration.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// AcquireTimeout returns the bounded pool wait as a duration.
func (c SandboxConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMS) * time.Millisecond
}

// ProbeTimeout returns the per-probe timeout as a duration.
func (c VerifyConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

// LatencyBound returns the default latency bound as a duration.
func (c VerifyConfig) LatencyBound() time.Duration {
	return time.Duration(c.LatencyBoundMS) * time.Millisecond
}
