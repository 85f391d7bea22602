package program

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RunConfig is the YAML run configuration loaded by cmd/episim.
// The epidemiological model itself lives in the program file; this only
// covers run-level knobs.
type RunConfig struct {
	Seed      int64  `yaml:"seed"`
	Days      int    `yaml:"days"`
	StartDate string `yaml:"start_date"`
	RunNumber int    `yaml:"run_number"`

	Program    string `yaml:"program"`
	LibraryDir string `yaml:"library_dir"`

	Households    string `yaml:"households"`
	GroupQuarters string `yaml:"group_quarters"`

	OutputDir string `yaml:"output_dir"`

	// MaxLoops bounds instant-transition recursion; 0 means population size.
	MaxLoops int `yaml:"max_loops"`

	EnableHealthRecords bool `yaml:"enable_health_records"`
	EnableSQLiteIndex   bool `yaml:"enable_sqlite_index"`

	// EnableLocalWorkplaceAssignment reassigns unresolved workplace labels
	// to a random local workplace instead of leaving a null link.
	EnableLocalWorkplaceAssignment bool `yaml:"enable_local_workplace_assignment"`

	// FrequencyReferenceSize is the reference group size used by
	// frequency-dependent transmission.
	FrequencyReferenceSize int `yaml:"frequency_reference_size"`

	// MonitorAddr enables the read-only websocket monitor when non-empty.
	MonitorAddr string `yaml:"monitor_addr"`
}

func LoadConfig(path string) (RunConfig, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("run config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("run config: %w", err)
	}
	return cfg, nil
}

func defaults() RunConfig {
	return RunConfig{
		Seed:                   1,
		Days:                   100,
		StartDate:              "2020-01-01",
		RunNumber:              1,
		OutputDir:              "OUT",
		FrequencyReferenceSize: 10,
	}
}

func (c *RunConfig) Normalize() {
	if c.Days <= 0 {
		c.Days = 100
	}
	if c.RunNumber <= 0 {
		c.RunNumber = 1
	}
	if c.OutputDir == "" {
		c.OutputDir = "OUT"
	}
	if c.FrequencyReferenceSize <= 0 {
		c.FrequencyReferenceSize = 10
	}
	if c.StartDate == "" {
		c.StartDate = "2020-01-01"
	}
}

func (c *RunConfig) Validate() error {
	if c.Program == "" {
		return fmt.Errorf("program path is required")
	}
	if c.MaxLoops < 0 {
		return fmt.Errorf("max_loops must be >= 0")
	}
	return nil
}
