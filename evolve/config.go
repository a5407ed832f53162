package evolve

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// Config is a full simulation/evolution run.
type Config struct {
	Simulation SimulationConfig
	Selection  SelectionConfig
	Movement   MutationConfig
	State      MutationConfig
	Target     MutationConfig
	Batch      BatchConfig
}

// SimulationConfig holds the world parameters.
type SimulationConfig struct {
	Population        int     `ini:"population"`
	GenerationSeconds float64 `ini:"generation_seconds"`
	StepDT            float64 `ini:"step_dt"`
	Arena             float64 `ini:"arena"` // half-width of the square arena
	ForcedTarget      bool    `ini:"forced_target"`
	Seed              uint64  `ini:"seed"` // 0 seeds from the clock
}

// BatchConfig selects batched movement inference.
type BatchConfig struct {
	Enabled   bool   `ini:"enabled"`
	Backend   string `ini:"backend"` // "host", "gpu" or "auto"
	Adapter   string `ini:"adapter"` // adapter name substring for gpu
	GroupSize int    `ini:"group_size"`
	MinBatch  int    `ini:"min_batch"` // smaller populations stay on Forward
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Population:        50,
			GenerationSeconds: 30,
			StepDT:            1.0 / 60.0,
			Arena:             40,
			ForcedTarget:      true,
		},
		Selection: SelectionConfig{SurvivalFraction: DefaultSurvivalFraction},
		Movement:  DefaultMovementMutation,
		State:     DefaultStateMutation,
		Target:    DefaultTargetMutation,
		Batch:     BatchConfig{Backend: "auto", MinBatch: 64},
	}
}

// LoadConfig loads a run configuration from an INI file. Missing sections
// and keys keep their defaults.
func LoadConfig(filePath string) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}

	config := DefaultConfig()
	sections := []struct {
		name string
		dst  any
	}{
		{"simulation", &config.Simulation},
		{"selection", &config.Selection},
		{"movement", &config.Movement},
		{"state", &config.State},
		{"target", &config.Target},
		{"batch", &config.Batch},
	}
	for _, s := range sections {
		if !cfg.HasSection(s.name) {
			continue
		}
		if err := cfg.Section(s.name).MapTo(s.dst); err != nil {
			return nil, fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}
	config.Batch.Backend = strings.ToLower(cleanIniString(config.Batch.Backend))
	config.Batch.Adapter = cleanIniString(config.Batch.Adapter)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config '%s': %w", filePath, err)
	}
	return config, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Simulation.Population < 1 {
		return fmt.Errorf("population must be >= 1, got %d", c.Simulation.Population)
	}
	if c.Simulation.StepDT <= 0 || c.Simulation.GenerationSeconds <= 0 {
		return fmt.Errorf("step_dt and generation_seconds must be positive")
	}
	if c.Simulation.Arena <= 0 {
		return fmt.Errorf("arena must be positive, got %v", c.Simulation.Arena)
	}
	if err := c.Selection.Validate(); err != nil {
		return fmt.Errorf("[selection]: %w", err)
	}
	for name, m := range map[string]MutationConfig{"movement": c.Movement, "state": c.State, "target": c.Target} {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("[%s]: %w", name, err)
		}
	}
	switch c.Batch.Backend {
	case "host", "gpu", "auto":
	default:
		return fmt.Errorf("[batch]: unknown backend %q", c.Batch.Backend)
	}
	if c.Batch.GroupSize < 0 || c.Batch.MinBatch < 0 {
		return fmt.Errorf("[batch]: group_size and min_batch must be >= 0")
	}
	return nil
}

// cleanIniString removes surrounding quotes and whitespace.
func cleanIniString(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
