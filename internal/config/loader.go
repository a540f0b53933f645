package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service, the weight fetcher and
// the pipeline runtime. It is built once at startup and passed down.
type Config struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	// console or json; empty picks console on a terminal.
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	ModelName        string `json:"model_name" yaml:"model_name" toml:"model_name"`
	Device           string `json:"device" yaml:"device" toml:"device"`
	CPUOffload       bool   `json:"cpu_offload" yaml:"cpu_offload" toml:"cpu_offload"`
	CPUOffloadBlocks int    `json:"cpu_offload_blocks" yaml:"cpu_offload_blocks" toml:"cpu_offload_blocks"`
	PinMemory        bool   `json:"pin_memory" yaml:"pin_memory" toml:"pin_memory"`
	CacheDir         string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`

	// Runtime worker: either a command to spawn or the URL of a running worker.
	WorkerCmd          []string `json:"worker_cmd" yaml:"worker_cmd" toml:"worker_cmd"`
	WorkerURL          string   `json:"worker_url" yaml:"worker_url" toml:"worker_url"`
	WorkerReadySeconds int      `json:"worker_ready_seconds" yaml:"worker_ready_seconds" toml:"worker_ready_seconds"`
	AssembleSeconds    int      `json:"assemble_seconds" yaml:"assemble_seconds" toml:"assemble_seconds"`

	MaxBodyBytes     int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	MaxQueueDepth    int   `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	QueueWaitSeconds int   `json:"queue_wait_seconds" yaml:"queue_wait_seconds" toml:"queue_wait_seconds"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`

	Fetch FetchConfig `json:"fetch" yaml:"fetch" toml:"fetch"`
}

// FetchConfig configures the weight fetcher and its transports.
type FetchConfig struct {
	// hub-cli, hub-http or s3
	Transport   string `json:"transport" yaml:"transport" toml:"transport"`
	MinFreeGB   int    `json:"min_free_gb" yaml:"min_free_gb" toml:"min_free_gb"`
	HubCLI      string `json:"hub_cli" yaml:"hub_cli" toml:"hub_cli"`
	HubEndpoint string `json:"hub_endpoint" yaml:"hub_endpoint" toml:"hub_endpoint"`
	HubToken    string `json:"hub_token" yaml:"hub_token" toml:"hub_token"`
	Parallel    int    `json:"parallel" yaml:"parallel" toml:"parallel"`
	S3Bucket    string `json:"s3_bucket" yaml:"s3_bucket" toml:"s3_bucket"`
	S3Prefix    string `json:"s3_prefix" yaml:"s3_prefix" toml:"s3_prefix"`
	S3Region    string `json:"s3_region" yaml:"s3_region" toml:"s3_region"`
	S3Endpoint  string `json:"s3_endpoint" yaml:"s3_endpoint" toml:"s3_endpoint"`
}

// Load reads a configuration file based on its extension on top of Default().
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
