package pgo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultThresholds are conservative chi-squared cutoffs used when the
// config omits them: odometry is trusted (checked loosely), loop closures
// are screened hard.
var DefaultThresholds = ThresholdConfig{
	Odometry:    10.0,
	LoopClosure: 10.0,
}

// LoadConfig loads the service configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ValidateConfig checks required fields and fills defaulted ones.
func ValidateConfig(config *Config) error {
	if config.Thresholds == nil {
		defaults := DefaultThresholds
		config.Thresholds = &defaults
	}
	if config.Thresholds.Odometry < 0 {
		return fmt.Errorf("thresholds.odometry must be non-negative")
	}
	if config.Thresholds.LoopClosure < 0 {
		return fmt.Errorf("thresholds.loopClosure must be non-negative")
	}

	if len(config.Robots) == 0 {
		return fmt.Errorf("at least one robot must be defined")
	}
	seen := make(map[rune]bool, len(config.Robots))
	for i := range config.Robots {
		rc := &config.Robots[i]
		if rc.ID == "" {
			return fmt.Errorf("robots[%d].id is required", i)
		}
		tag, err := rc.RobotTag()
		if err != nil {
			return fmt.Errorf("robots[%d]: %w", i, err)
		}
		if seen[tag] {
			return fmt.Errorf("robots[%d].id %q duplicates an earlier robot", i, rc.ID)
		}
		seen[tag] = true
		if config.MQTT.Broker != "" && rc.Topic == "" {
			return fmt.Errorf("robots[%d].topic is required for %s when mqtt.broker is set", i, rc.ID)
		}
	}

	return nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
