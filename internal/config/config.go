// Package config loads the daemon's SandboxConfig: a YAML file merged with
// environment variable overrides, the same two-stage approach the teacher
// daemon uses for its own configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide SandboxConfig. It is loaded once at startup
// and treated as immutable afterward.
type Config struct {
	// Ambient / controller-facing fields.
	Listen         string `yaml:"listen"`
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// Worker image and placement.
	WorkerImage string `yaml:"worker_image"`
	WorkerPort  int    `yaml:"worker_port"`

	// Resource limits applied to every session container.
	MemoryLimit string  `yaml:"memory_limit"` // human size, e.g. "512m"
	CPULimit    float64 `yaml:"cpu_limit"`    // fractional CPUs

	// Networking and container bookkeeping.
	NetworkName     string `yaml:"network_name"`
	ContainerPrefix string `yaml:"container_prefix"`

	// Health check and execution timing.
	HealthCheckTimeout  int     `yaml:"health_check_timeout"`  // seconds
	HealthCheckInterval float64 `yaml:"health_check_interval"` // seconds
	ExecutionTimeout    int     `yaml:"execution_timeout"`     // seconds

	// Optional host mount exposed to every session container.
	DataMountPath string `yaml:"data_mount_path"`
}

// MemoryLimitBytes parses MemoryLimit via go-units, the same library the
// teacher's docker client uses to interpret human-readable size strings.
func (c *Config) MemoryLimitBytes() (int64, error) {
	if c.MemoryLimit == "" {
		return 0, nil
	}
	return units.RAMInBytes(c.MemoryLimit)
}

// NanoCPUs converts CPULimit into the nano-CPU units the Docker Engine API
// expects, mirroring the teacher's container resource configuration.
func (c *Config) NanoCPUs() int64 {
	return int64(c.CPULimit * 1e9)
}

// Load reads the YAML file at path (if non-empty and present), applies
// defaults first, then overlays SANDBOX_* environment variables — the
// same defaults-then-file-then-env precedence as the teacher's config
// loader.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen:              "127.0.0.1:8080",
		LogLevel:            "info",
		MetricsEnabled:      true,
		WorkerImage:         "codesandbox/worker:latest",
		WorkerPort:          9000,
		MemoryLimit:         "2g",
		CPULimit:            1.0,
		NetworkName:         "codesandbox-network",
		ContainerPrefix:     "codesandbox-worker",
		HealthCheckTimeout:  30,
		HealthCheckInterval: 1.0,
		ExecutionTimeout:    300,
		DataMountPath:       "/data",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if _, err := cfg.MemoryLimitBytes(); err != nil {
		return nil, fmt.Errorf("invalid memory_limit %q: %w", cfg.MemoryLimit, err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SANDBOX_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("SANDBOX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SANDBOX_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MetricsEnabled = b
		}
	}
	if v := os.Getenv("SANDBOX_WORKER_IMAGE"); v != "" {
		cfg.WorkerImage = v
	}
	if v := os.Getenv("SANDBOX_WORKER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPort = n
		}
	}
	if v := os.Getenv("SANDBOX_MEMORY_LIMIT"); v != "" {
		cfg.MemoryLimit = v
	}
	if v := os.Getenv("SANDBOX_CPU_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CPULimit = f
		}
	}
	if v := os.Getenv("SANDBOX_NETWORK_NAME"); v != "" {
		cfg.NetworkName = v
	}
	if v := os.Getenv("SANDBOX_CONTAINER_PREFIX"); v != "" {
		cfg.ContainerPrefix = v
	}
	if v := os.Getenv("SANDBOX_HEALTH_CHECK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthCheckTimeout = n
		}
	}
	if v := os.Getenv("SANDBOX_HEALTH_CHECK_INTERVAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.HealthCheckInterval = f
		}
	}
	if v := os.Getenv("SANDBOX_EXECUTION_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExecutionTimeout = n
		}
	}
	if v := os.Getenv("SANDBOX_DATA_MOUNT_PATH"); v != "" {
		cfg.DataMountPath = v
	}
}
