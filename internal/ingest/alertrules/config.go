package alertrules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// BatteryLowThreshold is the level a fresh reading must drop below to
	// raise battery_low at all.
	BatteryLowThreshold int
	// BatteryCriticalThreshold escalates the alert to critical severity.
	BatteryCriticalThreshold int
}

func DefaultConfig() Config {
	return Config{
		BatteryLowThreshold:      20,
		BatteryCriticalThreshold: 10,
	}
}

type yamlRulesSpec struct {
	Battery struct {
		LowThreshold      *int `yaml:"low_threshold"`
		CriticalThreshold *int `yaml:"critical_threshold"`
	} `yaml:"battery"`
}

// LoadConfig reads threshold overrides from a YAML file. An empty path
// returns the defaults; fields omitted from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read alert rules config: %w", err)
	}
	var spec yamlRulesSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return cfg, fmt.Errorf("parse alert rules config: %w", err)
	}

	if spec.Battery.LowThreshold != nil {
		cfg.BatteryLowThreshold = *spec.Battery.LowThreshold
	}
	if spec.Battery.CriticalThreshold != nil {
		cfg.BatteryCriticalThreshold = *spec.Battery.CriticalThreshold
	}
	return cfg, nil
}
