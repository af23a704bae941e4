package application

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-chat-go/internal/network/compressor"
	"github.com/lk2023060901/danmu-chat-go/internal/network/serializer"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
	zviper "github.com/lk2023060901/danmu-chat-go/pkg/util/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. CHAT_STREAM_ADDRESS.
	EnvPrefix = "CHAT"
	// EnvConfigPath names the environment variable holding the config file path.
	EnvConfigPath = "CHAT_CONFIG_FILE_PATH"
	// DefaultConfigPath is used when neither the environment nor the command line name a file.
	DefaultConfigPath = "./configs/chatserver.yaml"
)

// StreamConfig configures the newline-delimited text listener.
type StreamConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Address       string        `mapstructure:"address"`
	MaxLineLength int           `mapstructure:"max-line-length"`
	SendQueueSize int           `mapstructure:"send-queue-size"`
	WriteTimeout  time.Duration `mapstructure:"write-timeout"`
}

// ObjectConfig configures the length-prefixed object listener.
type ObjectConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Address           string        `mapstructure:"address"`
	MaxFrameSize      int           `mapstructure:"max-frame-size"`
	Serializer        string        `mapstructure:"serializer"`
	Compression       string        `mapstructure:"compression"`
	CompressThreshold int           `mapstructure:"compress-threshold"`
	SendQueueSize     int           `mapstructure:"send-queue-size"`
	WriteTimeout      time.Duration `mapstructure:"write-timeout"`
}

// DatagramConfig configures the UDP listener.
type DatagramConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Address       string        `mapstructure:"address"`
	MaxPacketSize int           `mapstructure:"max-packet-size"`
	Workers       int           `mapstructure:"workers"`
	PeerRate      float64       `mapstructure:"peer-rate"`
	PeerBurst     int           `mapstructure:"peer-burst"`
	PreAlloc      bool          `mapstructure:"pre-alloc"`
	WorkerExpiry  time.Duration `mapstructure:"worker-expiry"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// ListenRetryConfig controls how binding a listener is retried at startup.
type ListenRetryConfig struct {
	Attempts uint          `mapstructure:"attempts"`
	Sleep    time.Duration `mapstructure:"sleep"`
	MaxSleep time.Duration `mapstructure:"max-sleep"`
}

// Config is the complete server configuration.
type Config struct {
	Stream      StreamConfig      `mapstructure:"stream"`
	Object      ObjectConfig      `mapstructure:"object"`
	Datagram    DatagramConfig    `mapstructure:"datagram"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	ListenRetry ListenRetryConfig `mapstructure:"listen-retry"`
	Log         log.Config        `mapstructure:"log"`
}

// defaults lists every known key. Environment overrides only apply to keys
// that have a default, so new keys must be added here.
func defaults() map[string]any {
	return map[string]any{
		"stream.enabled":         true,
		"stream.address":         ":4567",
		"stream.max-line-length": 64 * 1024,
		"stream.send-queue-size": 256,
		"stream.write-timeout":   time.Duration(0),

		"object.enabled":            true,
		"object.address":            ":4568",
		"object.max-frame-size":     1 << 20,
		"object.serializer":         serializer.NameSonic,
		"object.compression":        compressor.NameNone,
		"object.compress-threshold": 1024,
		"object.send-queue-size":    256,
		"object.write-timeout":      time.Duration(0),

		"datagram.enabled":         true,
		"datagram.address":         ":4567",
		"datagram.max-packet-size": 64 * 1024,
		"datagram.workers":         0,
		"datagram.peer-rate":       0.0,
		"datagram.peer-burst":      20,
		"datagram.pre-alloc":       false,
		"datagram.worker-expiry":   time.Duration(0),

		"metrics.enabled": false,
		"metrics.address": ":9102",
		"metrics.path":    "/metrics",

		"listen-retry.attempts":  3,
		"listen-retry.sleep":     200 * time.Millisecond,
		"listen-retry.max-sleep": 2 * time.Second,

		"log.level":                 "info",
		"log.format":                log.FormatText,
		"log.stdout":                true,
		"log.disable-error-verbose": true,
		"log.file.rootpath":         "",
		"log.file.filename":         "",
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	cfg, err := load(zviper.New(""))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfig reads path on top of the built-in defaults and applies CHAT_*
// environment overrides. A missing file is only an error when explicit is set.
func LoadConfig(path string, explicit bool) (*Config, error) {
	v := zviper.New(EnvPrefix)
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			if err := v.LoadFile(path); err != nil {
				return nil, errors.Wrapf(err, "failed to load config file %q", path)
			}
		}
	}
	cfg, err := load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(v *zviper.Config) (*Config, error) {
	v.SetDefaults(defaults())
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return cfg, nil
}

// ResolveConfigPath picks the config file using the following priority:
//  1. Default: ./configs/chatserver.yaml
//  2. Env: CHAT_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//
// explicit reports whether the path came from the environment or the command line.
func ResolveConfigPath(args []string) (path string, explicit bool, err error) {
	path = DefaultConfigPath
	if envPath := strings.TrimSpace(os.Getenv(EnvConfigPath)); envPath != "" {
		path, explicit = envPath, true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return "", false, errors.New("missing value after --config")
			}
			path, explicit = args[i+1], true
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, "--config="); ok && val != "" {
			path, explicit = val, true
		}
	}
	return path, explicit, nil
}

// Validate rejects configurations that cannot start a server.
func (c *Config) Validate() error {
	if !c.Stream.Enabled && !c.Object.Enabled && !c.Datagram.Enabled {
		return merr.WrapErrParameterInvalidMsg("at least one of stream, object and datagram must be enabled")
	}
	if c.Stream.Enabled {
		if err := checkListener("stream", c.Stream.Address, c.Stream.SendQueueSize); err != nil {
			return err
		}
	}
	if c.Object.Enabled {
		if err := checkListener("object", c.Object.Address, c.Object.SendQueueSize); err != nil {
			return err
		}
		serializers := []string{"", serializer.NameSonic, serializer.NameJSONIter}
		if !lo.Contains(serializers, strings.ToLower(c.Object.Serializer)) {
			return merr.WrapErrParameterInvalid("sonic|jsoniter", c.Object.Serializer, "object.serializer")
		}
		compressors := []string{"", compressor.NameNone, compressor.NameZstd}
		if !lo.Contains(compressors, strings.ToLower(c.Object.Compression)) {
			return merr.WrapErrParameterInvalid("none|zstd", c.Object.Compression, "object.compression")
		}
	}
	if c.Datagram.Enabled && c.Datagram.Address == "" {
		return merr.WrapErrParameterInvalidMsg("datagram.address must not be empty")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return merr.WrapErrParameterInvalidMsg("metrics.address must not be empty")
	}
	return nil
}

func checkListener(section, address string, queueSize int) error {
	if address == "" {
		return merr.WrapErrParameterInvalidMsg("%s.address must not be empty", section)
	}
	if queueSize <= 0 {
		return merr.WrapErrParameterInvalidMsg("%s.send-queue-size must be positive, got %d", section, queueSize)
	}
	return nil
}
