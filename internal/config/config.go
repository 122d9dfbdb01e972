package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	BackendAuto   = "auto"
	BackendHost   = "host"
	BackendOpenCL = "opencl"
)

// DefaultDeviceMemory is reported as device capacity when the runtime has no
// memory query (5.5 GB).
const DefaultDeviceMemory int64 = 5_500_000_000

type LoggerConfig struct {
	Verbosity string `yaml:"verbosity"`
}

type DeviceConfig struct {
	Backend     string `yaml:"backend"`
	ID          int    `yaml:"id"`
	MemoryBytes int64  `yaml:"memoryBytes"`
	StreamDepth int    `yaml:"streamDepth"`
	Workers     int    `yaml:"workers"`
	KernelDir   string `yaml:"kernelDir"`
}

type MetricsConfig struct {
	ListenAddress string `yaml:"listenAddress"`
}

type Config struct {
	Logger  LoggerConfig  `yaml:"logger"`
	Device  DeviceConfig  `yaml:"device"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{Verbosity: "info"},
		Device: DeviceConfig{
			Backend:     BackendAuto,
			MemoryBytes: DefaultDeviceMemory,
			StreamDepth: 256,
		},
		Metrics: MetricsConfig{ListenAddress: ":9100"},
	}
}

// LoadConfig reads a YAML file on top of Default and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch c.Device.Backend {
	case BackendAuto, BackendHost, BackendOpenCL:
	default:
		return fmt.Errorf("unknown device backend %q", c.Device.Backend)
	}
	if c.Device.ID < 0 {
		return fmt.Errorf("device id must not be negative, got %d", c.Device.ID)
	}
	if c.Device.MemoryBytes <= 0 {
		return fmt.Errorf("device memoryBytes must be positive, got %d", c.Device.MemoryBytes)
	}
	if c.Device.StreamDepth < 1 {
		return fmt.Errorf("device streamDepth must be at least 1, got %d", c.Device.StreamDepth)
	}
	if c.Device.Workers < 0 {
		return fmt.Errorf("device workers must not be negative, got %d", c.Device.Workers)
	}
	return nil
}
