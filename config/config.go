// Package config loads the orchestration core's YAML configuration using
// gopkg.in/yaml.v3, with defaults applied for every omitted key.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MLClassifierConfig configures the outbound ML classifier client.
type MLClassifierConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Timeout int    `yaml:"timeout"` // milliseconds
}

// GitHubConfig configures the outbound GitHub service client.
type GitHubConfig struct {
	ServiceURL string `yaml:"serviceUrl"`
	Timeout    int    `yaml:"timeout"` // seconds
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
}

// PerformanceConfig configures the model performance tracker.
type PerformanceConfig struct {
	MinSamples int `yaml:"minSamples"`
}

// ABTestConfig configures the A/B testing engine.
type ABTestConfig struct {
	DefaultTrafficPercent int `yaml:"defaultTrafficPercent"`
}

// ModelRegistryConfig configures the model registry cache.
type ModelRegistryConfig struct {
	RefreshTTL int `yaml:"refreshTtl"` // seconds
}

// OrchestrationConfig configures strategy execution limits.
type OrchestrationConfig struct {
	MaxParallelSubagents   int                 `yaml:"maxParallelSubagents"`
	IterativeMaxIterations int                 `yaml:"iterativeMaxIterations"`
	IterativeTimeout       int                 `yaml:"iterativeTimeout"` // seconds
	Performance            PerformanceConfig   `yaml:"performance"`
	ABTest                 ABTestConfig        `yaml:"abTest"`
	ModelRegistry          ModelRegistryConfig `yaml:"modelRegistry"`
}

// LLMConfig configures the adaptive rate limiter placed in front of the LLM
// provider client.
type LLMConfig struct {
	InitialTPM float64 `yaml:"initialTpm"`
	MaxTPM     float64 `yaml:"maxTpm"`
}

// Config is the root configuration document.
type Config struct {
	MLClassifier  MLClassifierConfig  `yaml:"mlClassifier"`
	GitHub        GitHubConfig        `yaml:"github"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	LLM           LLMConfig           `yaml:"llm"`
}

// Default returns a Config with every documented default applied.
func Default() Config {
	return Config{
		MLClassifier: MLClassifierConfig{Timeout: 100},
		GitHub:       GitHubConfig{Timeout: 5},
		LLM:          LLMConfig{InitialTPM: 60000, MaxTPM: 180000},
		Orchestration: OrchestrationConfig{
			MaxParallelSubagents:   3,
			IterativeMaxIterations: 3,
			IterativeTimeout:       60,
			Performance:            PerformanceConfig{MinSamples: 30},
			ModelRegistry:          ModelRegistryConfig{RefreshTTL: 300},
		},
	}
}

// Load reads and parses a YAML config file at path, applying defaults for
// any key the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyZeroDefaults()
	return cfg, nil
}

// applyZeroDefaults restores any default that a partial YAML document left
// at its zero value, since yaml.Unmarshal overwrites Default()'s values
// with zero for keys present with an explicit empty/zero value.
func (c *Config) applyZeroDefaults() {
	d := Default()
	if c.MLClassifier.Timeout == 0 {
		c.MLClassifier.Timeout = d.MLClassifier.Timeout
	}
	if c.GitHub.Timeout == 0 {
		c.GitHub.Timeout = d.GitHub.Timeout
	}
	if c.Orchestration.MaxParallelSubagents == 0 {
		c.Orchestration.MaxParallelSubagents = d.Orchestration.MaxParallelSubagents
	}
	if c.Orchestration.IterativeMaxIterations == 0 {
		c.Orchestration.IterativeMaxIterations = d.Orchestration.IterativeMaxIterations
	}
	if c.Orchestration.IterativeTimeout == 0 {
		c.Orchestration.IterativeTimeout = d.Orchestration.IterativeTimeout
	}
	if c.Orchestration.Performance.MinSamples == 0 {
		c.Orchestration.Performance.MinSamples = d.Orchestration.Performance.MinSamples
	}
	if c.Orchestration.ModelRegistry.RefreshTTL == 0 {
		c.Orchestration.ModelRegistry.RefreshTTL = d.Orchestration.ModelRegistry.RefreshTTL
	}
	if c.LLM.InitialTPM == 0 {
		c.LLM.InitialTPM = d.LLM.InitialTPM
	}
	if c.LLM.MaxTPM == 0 {
		c.LLM.MaxTPM = d.LLM.MaxTPM
	}
}

// MLClassifierTimeout returns the configured timeout as a time.Duration.
func (c Config) MLClassifierTimeout() time.Duration {
	return time.Duration(c.MLClassifier.Timeout) * time.Millisecond
}

// GitHubTimeout returns the configured timeout as a time.Duration.
func (c Config) GitHubTimeout() time.Duration {
	return time.Duration(c.GitHub.Timeout) * time.Second
}

// IterativeTimeout returns the configured wall-clock budget as a
// time.Duration.
func (c Config) IterativeTimeout() time.Duration {
	return time.Duration(c.Orchestration.IterativeTimeout) * time.Second
}

// ModelRegistryRefreshTTL returns the configured TTL as a time.Duration.
func (c Config) ModelRegistryRefreshTTL() time.Duration {
	return time.Duration(c.Orchestration.ModelRegistry.RefreshTTL) * time.Second
}
