// Package config loads the storage core's configuration from config.yaml,
// DATAMESH_*-prefixed environment variables, and CLI flags, in that
// precedence order, into a single immutable value object.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErasureConfig captures the Reed-Solomon shape bound at encode time.
type ErasureConfig struct {
	DataShards   int `mapstructure:"data_shards"`
	ParityShards int `mapstructure:"parity_shards"`
}

// TotalShards returns k+m.
func (e ErasureConfig) TotalShards() int { return e.DataShards + e.ParityShards }

// QuorumConfig captures the small-network/large-network adaptive quorum thresholds.
type QuorumConfig struct {
	// SmallNetworkThreshold is the peer count P at or below which Q=1 is used.
	SmallNetworkThreshold int `mapstructure:"small_network_threshold"`
	// LargeNetworkFraction is the fraction of connected peers required once P
	// exceeds SmallNetworkThreshold (Q = ceil(fraction * P), clamped to [1, P]).
	LargeNetworkFraction float64 `mapstructure:"large_network_fraction"`
}

// RetryConfig captures the per-shard retry budget.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	BackoffFactor   float64       `mapstructure:"backoff_factor"`
}

// TimeoutConfig captures the per-operation deadlines.
type TimeoutConfig struct {
	PutPerShard time.Duration `mapstructure:"put_per_shard"`
	GetPerShard time.Duration `mapstructure:"get_per_shard"`
}

// Config is the immutable configuration record captured once at orchestrator
// construction and passed by value to every component that needs it — no
// process-wide mutable singletons (spec.md §9 "Configuration as value objects").
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	// ListenAddrs are libp2p multiaddresses the node's host listens on.
	ListenAddrs []string `mapstructure:"listen_addrs"`
	// BootstrapPeers are full peer multiaddresses ending in /p2p/<peer-id>,
	// dialed at startup.
	BootstrapPeers []string `mapstructure:"bootstrap_peers"`
	// ProtocolPrefix namespaces the DHT and the explicit-replication stream protocol.
	ProtocolPrefix string `mapstructure:"protocol_prefix"`

	Erasure ErasureConfig `mapstructure:"erasure"`
	Quorum  QuorumConfig  `mapstructure:"quorum"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Timeout TimeoutConfig `mapstructure:"timeout"`

	// RepairThreshold is the health score (0-100) below which a maintenance
	// sweep flags a file for repair.
	RepairThreshold int `mapstructure:"repair_threshold"`

	// CatalogPath is the embedded relational database file path.
	CatalogPath string `mapstructure:"catalog_path"`
	// IdentityKeyPath is the long-term libp2p transport keypair file.
	IdentityKeyPath string `mapstructure:"identity_key_path"`
	// EncryptionKeyPath is the long-term NaCl box keypair file files are
	// encrypted to — distinct from IdentityKeyPath, which authenticates the
	// libp2p transport, not file content.
	EncryptionKeyPath string `mapstructure:"encryption_key_path"`
	// PeerCachePath is the bbolt file backing the connected-peer RTT/liveness cache.
	PeerCachePath string `mapstructure:"peer_cache_path"`

	// MetricsAddr, if non-empty, is the address the Prometheus /metrics
	// handler listens on.
	MetricsAddr string `mapstructure:"metrics_addr"`
	// AdminRPCAddr, if non-empty, is the address the admin gRPC surface listens on.
	AdminRPCAddr string `mapstructure:"admin_rpc_addr"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_addrs", []string{"/ip4/0.0.0.0/tcp/4001"})
	v.SetDefault("bootstrap_peers", []string{})
	v.SetDefault("protocol_prefix", "/datamesh/1.0.0")

	v.SetDefault("erasure.data_shards", 4)
	v.SetDefault("erasure.parity_shards", 2)

	v.SetDefault("quorum.small_network_threshold", 5)
	v.SetDefault("quorum.large_network_fraction", 0.25)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", 500*time.Millisecond)
	v.SetDefault("retry.backoff_factor", 2.0)

	v.SetDefault("timeout.put_per_shard", 30*time.Second)
	v.SetDefault("timeout.get_per_shard", 15*time.Second)

	v.SetDefault("repair_threshold", 75)

	v.SetDefault("catalog_path", "./datamesh/catalog.db")
	v.SetDefault("identity_key_path", "./datamesh/identity.key")
	v.SetDefault("encryption_key_path", "./datamesh/encryption.key")
	v.SetDefault("peer_cache_path", "./datamesh/peers.bolt")

	v.SetDefault("metrics_addr", "")
	v.SetDefault("admin_rpc_addr", "")
}

// Load reads configuration from configPath (if non-empty), falling back to
// ./config.yaml, then DATAMESH_*-prefixed environment variables, then flags
// already bound onto fs (if non-nil). Cobra's PersistentFlags satisfy pflag.FlagSet.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("DATAMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		// Flags are named with hyphens ("catalog-path"); bind each under the
		// underscored key its Config field reads ("catalog_path").
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if bindErr == nil {
				bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("binding flags: %w", bindErr)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.Erasure.DataShards <= 0 || cfg.Erasure.ParityShards < 0 {
		return nil, fmt.Errorf("invalid erasure configuration: k=%d m=%d", cfg.Erasure.DataShards, cfg.Erasure.ParityShards)
	}

	if err := ensureParentDirs(cfg.CatalogPath, cfg.IdentityKeyPath, cfg.EncryptionKeyPath, cfg.PeerCachePath); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ensureParentDirs creates the parent directory of each path that doesn't
// already exist, so a fresh checkout's default "./datamesh/..." paths don't
// make the catalog, identity, encryption, and peer-cache constructors fail
// with "no such file or directory" on first run.
func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		dir := filepath.Dir(p)
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating directory %q: %w", dir, err)
		}
	}
	return nil
}
