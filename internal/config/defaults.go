package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"qwenedit/internal/common/fsutil"
	"qwenedit/internal/registry"
	"qwenedit/pkg/types"
)

const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"

	TransportHubCLI  = "hub-cli"
	TransportHubHTTP = "hub-http"
	TransportS3      = "s3"
)

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		Addr:               ":8000",
		LogLevel:           "info",
		ModelName:          registry.DefaultModelID,
		Device:             DeviceAuto,
		CPUOffload:         true,
		CPUOffloadBlocks:   30,
		PinMemory:          true,
		CacheDir:           "./qwen-models-cache",
		WorkerReadySeconds: 120,
		AssembleSeconds:    1800,
		MaxBodyBytes:       64 << 20,
		MaxQueueDepth:      8,
		QueueWaitSeconds:   600,
		Fetch: FetchConfig{
			Transport:   TransportHubHTTP,
			MinFreeGB:   35,
			HubCLI:      "huggingface-cli",
			HubEndpoint: "https://huggingface.co",
			Parallel:    4,
		},
	}
}

// ApplyEnv overrides fields from environment variables. getenv is usually
// os.Getenv; tests pass a map lookup.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		b, err := parseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	integer := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}

	str("QWENEDIT_ADDR", &c.Addr)
	str("QWENEDIT_LOG_LEVEL", &c.LogLevel)
	str("QWENEDIT_LOG_FORMAT", &c.LogFormat)
	str("MODEL_NAME", &c.ModelName)
	str("DEVICE", &c.Device)
	boolean("CPU_OFFLOAD", &c.CPUOffload)
	integer("CPU_OFFLOAD_BLOCKS", &c.CPUOffloadBlocks)
	boolean("PIN_MEMORY", &c.PinMemory)
	str("HF_HOME", &c.CacheDir)
	str("QWENEDIT_CACHE_DIR", &c.CacheDir)
	if v := strings.TrimSpace(getenv("QWENEDIT_WORKER_CMD")); v != "" {
		c.WorkerCmd = strings.Fields(v)
	}
	str("QWENEDIT_WORKER_URL", &c.WorkerURL)
	str("QWENEDIT_FETCH_TRANSPORT", &c.Fetch.Transport)
	integer("QWENEDIT_MIN_FREE_GB", &c.Fetch.MinFreeGB)
	str("HF_ENDPOINT", &c.Fetch.HubEndpoint)
	str("HF_TOKEN", &c.Fetch.HubToken)
	str("QWENEDIT_S3_BUCKET", &c.Fetch.S3Bucket)
	str("QWENEDIT_S3_PREFIX", &c.Fetch.S3Prefix)
	str("AWS_REGION", &c.Fetch.S3Region)
	str("QWENEDIT_S3_ENDPOINT", &c.Fetch.S3Endpoint)
	return errors.Join(errs...)
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", v)
}

// Validate checks the configuration and normalizes it in place: device is
// lower-cased, the cache dir is made absolute, and the offload block count
// is zeroed when offload is disabled.
func (c *Config) Validate() error {
	var errs []error
	c.Device = strings.ToLower(strings.TrimSpace(c.Device))
	switch c.Device {
	case DeviceAuto, DeviceCPU, DeviceCUDA:
	default:
		errs = append(errs, fmt.Errorf("device must be one of auto|cpu|cuda, got %q", c.Device))
	}
	if c.CPUOffloadBlocks < 0 {
		errs = append(errs, fmt.Errorf("cpu_offload_blocks must be >= 0, got %d", c.CPUOffloadBlocks))
	}
	if !c.CPUOffload {
		c.CPUOffloadBlocks = 0
	}
	if p, err := registry.Lookup(c.ModelName); err != nil {
		errs = append(errs, err)
	} else {
		c.ModelName = p.ModelID
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		errs = append(errs, errors.New("cache_dir is required"))
	} else if abs, err := fsutil.AbsDir(c.CacheDir); err != nil {
		errs = append(errs, err)
	} else {
		c.CacheDir = abs
	}
	if len(c.WorkerCmd) > 0 && c.WorkerURL != "" {
		errs = append(errs, errors.New("worker_cmd and worker_url are mutually exclusive"))
	}
	switch c.Fetch.Transport {
	case TransportHubCLI, TransportHubHTTP:
	case TransportS3:
		if c.Fetch.S3Bucket == "" {
			errs = append(errs, errors.New("fetch.s3_bucket is required for the s3 transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("fetch.transport must be one of hub-cli|hub-http|s3, got %q", c.Fetch.Transport))
	}
	if c.Fetch.MinFreeGB < 0 {
		errs = append(errs, errors.New("fetch.min_free_gb must be >= 0"))
	}
	if c.MaxQueueDepth < 0 || c.QueueWaitSeconds < 0 {
		errs = append(errs, errors.New("queue settings must be >= 0"))
	}
	return errors.Join(errs...)
}

// Offload returns the normalized offload policy.
func (c Config) Offload() types.OffloadPolicy {
	return types.OffloadPolicy{
		Enabled:    c.CPUOffload,
		BlockCount: c.CPUOffloadBlocks,
		PinMemory:  c.PinMemory,
	}.Normalized()
}

// Pairing returns the registry pairing for the configured model.
func (c Config) Pairing() (registry.Pairing, error) {
	return registry.Lookup(c.ModelName)
}
