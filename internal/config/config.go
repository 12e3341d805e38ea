package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendMinIO = "minio"
	BackendS3    = "s3"
)

// Config represents the application configuration
type Config struct {
	Source   StorageConfig `yaml:"source"`
	Target   StorageConfig `yaml:"target"`
	Task     Task          `yaml:"task"`
	LogLevel string        `yaml:"log_level"`
}

// StorageConfig describes how to reach one object store
type StorageConfig struct {
	Backend   string `yaml:"backend"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Region    string `yaml:"region"`
	PathStyle bool   `yaml:"path_style"`
}

// Task represents extraction-specific configuration
type Task struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Key            string `yaml:"key"`
	Prefix         string `yaml:"prefix"`
	TargetBucket   string `yaml:"target_bucket"`
	TargetRegion   string `yaml:"target_region"`
	TargetPrefix   string `yaml:"target_prefix"`
	ExtraRootDir   string `yaml:"extra_root_dir"`
	MaxTryTime     int    `yaml:"max_try_time"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms"`
	Concurrency    int    `yaml:"concurrency"`
	DryRun         bool   `yaml:"dry_run"`
	Report         string `yaml:"report"`
	ShowProgress   bool   `yaml:"show_progress"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// Default returns the configuration used when neither file nor flags set a value
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Source:   StorageConfig{Backend: BackendMinIO},
		Target:   StorageConfig{Backend: BackendMinIO},
		Task: Task{
			MaxTryTime:     3,
			RetryBackoffMs: 500,
			Concurrency:    2,
			Report:         "./report.db",
			ShowProgress:   true,
			MetricsAddr:    ":8080",
		},
	}
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if flags != nil {
		if err := loadFromFlags(cfg, flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// RegisterFlags declares every flag understood by loadFromFlags
func RegisterFlags(flags *pflag.FlagSet) {
	for _, side := range []string{"src", "dst"} {
		flags.String(side+"-backend", "", "Storage backend (minio or s3)")
		flags.String(side+"-endpoint", "", "Storage endpoint")
		flags.String(side+"-access-key", "", "Access key")
		flags.String(side+"-secret-key", "", "Secret key")
		flags.Bool(side+"-secure", false, "Use HTTPS")
		flags.String(side+"-region", "", "Default region")
		flags.Bool(side+"-path-style", false, "Force path-style bucket addressing")
	}

	flags.String("bucket", "", "Source bucket")
	flags.String("region", "", "Source bucket region")
	flags.String("key", "", "Key of a single archive to extract")
	flags.String("prefix", "", "Extract every archive under this prefix")
	flags.String("target-bucket", "", "Destination bucket (defaults to the source bucket)")
	flags.String("target-region", "", "Destination region (defaults to the source region)")
	flags.String("target-prefix", "", "Key prefix for extracted objects")
	flags.String("extra-root-dir", "", "Append the archive's dirname and/or basename to the target prefix")
	flags.Int("max-try-time", 3, "Maximum attempts per archive")
	flags.Int("retry-backoff-ms", 500, "Backoff before the second attempt, doubled after each failure")
	flags.Int("concurrency", 2, "Archives extracted concurrently")
	flags.Bool("dry-run", false, "Read archives without writing objects")
	flags.String("report", "./report.db", "Run report database path (empty disables it)")
	flags.Bool("show-progress", true, "Show real-time progress")
	flags.String("metrics-addr", ":8080", "Address of the metrics server (empty disables it)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	storageFlags := func(side string, sc *StorageConfig) {
		if flags.Changed(side + "-backend") {
			sc.Backend, _ = flags.GetString(side + "-backend")
		}
		if flags.Changed(side + "-endpoint") {
			sc.Endpoint, _ = flags.GetString(side + "-endpoint")
		}
		if flags.Changed(side + "-access-key") {
			sc.AccessKey, _ = flags.GetString(side + "-access-key")
		}
		if flags.Changed(side + "-secret-key") {
			sc.SecretKey, _ = flags.GetString(side + "-secret-key")
		}
		if flags.Changed(side + "-secure") {
			sc.Secure, _ = flags.GetBool(side + "-secure")
		}
		if flags.Changed(side + "-region") {
			sc.Region, _ = flags.GetString(side + "-region")
		}
		if flags.Changed(side + "-path-style") {
			sc.PathStyle, _ = flags.GetBool(side + "-path-style")
		}
	}
	storageFlags("src", &cfg.Source)
	storageFlags("dst", &cfg.Target)

	if flags.Changed("bucket") {
		cfg.Task.Bucket, _ = flags.GetString("bucket")
	}
	if flags.Changed("region") {
		cfg.Task.Region, _ = flags.GetString("region")
	}
	if flags.Changed("key") {
		cfg.Task.Key, _ = flags.GetString("key")
	}
	if flags.Changed("prefix") {
		cfg.Task.Prefix, _ = flags.GetString("prefix")
	}
	if flags.Changed("target-bucket") {
		cfg.Task.TargetBucket, _ = flags.GetString("target-bucket")
	}
	if flags.Changed("target-region") {
		cfg.Task.TargetRegion, _ = flags.GetString("target-region")
	}
	if flags.Changed("target-prefix") {
		cfg.Task.TargetPrefix, _ = flags.GetString("target-prefix")
	}
	if flags.Changed("extra-root-dir") {
		cfg.Task.ExtraRootDir, _ = flags.GetString("extra-root-dir")
	}
	if flags.Changed("max-try-time") {
		cfg.Task.MaxTryTime, _ = flags.GetInt("max-try-time")
	}
	if flags.Changed("retry-backoff-ms") {
		cfg.Task.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}
	if flags.Changed("concurrency") {
		cfg.Task.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("dry-run") {
		cfg.Task.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("report") {
		cfg.Task.Report, _ = flags.GetString("report")
	}
	if flags.Changed("show-progress") {
		cfg.Task.ShowProgress, _ = flags.GetBool("show-progress")
	}
	if flags.Changed("metrics-addr") {
		cfg.Task.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Source.Backend == "" {
		c.Source.Backend = BackendMinIO
	}
	if c.Target.Backend == "" {
		c.Target.Backend = BackendMinIO
	}
	if c.Task.TargetBucket == "" {
		c.Task.TargetBucket = c.Task.Bucket
	}
	if c.Task.TargetRegion == "" {
		c.Task.TargetRegion = c.Task.Region
	}
}

func (c *Config) validate() error {
	if err := validateStorage("source", c.Source); err != nil {
		return err
	}
	if !c.Task.DryRun {
		if err := validateStorage("target", c.Target); err != nil {
			return err
		}
	}

	if c.Task.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Task.Key == "" && c.Task.Prefix == "" {
		return fmt.Errorf("either key or prefix is required")
	}
	if c.Task.Key != "" && c.Task.Prefix != "" {
		return fmt.Errorf("key and prefix are mutually exclusive")
	}
	if c.Task.TargetBucket == "" {
		return fmt.Errorf("target bucket is required")
	}

	if c.Task.MaxTryTime < 1 {
		return fmt.Errorf("max try time must be at least 1")
	}
	if c.Task.RetryBackoffMs < 0 {
		return fmt.Errorf("retry backoff must not be negative")
	}
	if c.Task.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	return nil
}

func validateStorage(name string, sc StorageConfig) error {
	switch sc.Backend {
	case BackendMinIO:
		if sc.Endpoint == "" {
			return fmt.Errorf("%s endpoint is required", name)
		}
		if sc.AccessKey == "" {
			return fmt.Errorf("%s access key is required", name)
		}
		if sc.SecretKey == "" {
			return fmt.Errorf("%s secret key is required", name)
		}
	case BackendS3:
		if (sc.AccessKey == "") != (sc.SecretKey == "") {
			return fmt.Errorf("%s access key and secret key must be set together", name)
		}
	default:
		return fmt.Errorf("%s backend %q is not supported", name, sc.Backend)
	}
	return nil
}
