// Package config loads and validates STaRS node configuration, in the
// register of ollama-distributed/internal/config: a viper-backed loader
// filling a nested, yaml-tagged Config struct with one section per
// subsystem.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete configuration for one STaRS node, covering every
// key spec.md §6 names plus the ambient sections (logging, admin API) this
// lineage always carries.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Network   NetworkConfig   `yaml:"network"`
	Tree      TreeConfig      `yaml:"tree"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Summary   SummaryConfig   `yaml:"summary"`
	FSP       FSPConfig       `yaml:"fsp"`
	MMP       MMPConfig       `yaml:"mmp"`
	Logging   LoggingConfig   `yaml:"logging"`
	API       APIConfig       `yaml:"api"`
	Exec      ExecConfig      `yaml:"exec"`
}

// TreeConfig declares this node's fixed position in the aggregation tree
// (spec.md §6 "Overlay"), for the static adapter pkg/overlay/static
// builds cmd/stars-node around. Building and repairing the tree itself —
// peer discovery, father election, child attachment on failure — remains
// explicitly out of scope (spec.md Non-goals); this is only the shape an
// operator declares up front for a fixed deployment.
type TreeConfig struct {
	// Father is this node's parent address.Address, 0 (address.Null)
	// meaning this node is the tree root.
	Father uint64 `yaml:"father"`
	// Children lists this node's child addresses. LeafChildren marks
	// which of them are themselves leaf workers with no further
	// children (Dispatch Descent's forWorker=true rule, spec.md §4.4).
	Children     []uint64 `yaml:"children"`
	LeafChildren []uint64 `yaml:"leaf_children"`
}

// ExecConfig tunes pkg/executor/simulated, the default concrete Executor
// cmd/stars-node runs against: actually executing a task is explicitly
// out of scope for the scheduling core (spec.md Non-goals), so this
// exists purely to make the binary runnable without a real sandbox.
type ExecConfig struct {
	// SecondsPerUnit converts a Description.Length into a simulated
	// run duration: duration = Length * SecondsPerUnit / Power.
	SecondsPerUnit float64 `yaml:"seconds_per_unit"`
}

// NetworkConfig covers the libp2p transport bus's local listen addresses
// and this overlay's static peer table: spec.md §6 asks only for "a
// reliable, in-order unicast to a pair (nodeAddress, port)", so
// pkg/transport/libp2pbus resolves each peer's STaRS address.Address to a
// dialable multiaddr through Peers, in the register of the teacher's
// NodeConfig.BootstrapPeers/Listen fields.
type NetworkConfig struct {
	// Listen is this node's own libp2p listen multiaddrs.
	Listen []string `yaml:"listen"`
	// PrivateKeySeed deterministically derives this node's libp2p
	// identity keypair when non-empty, so a restarted node keeps the
	// same peer.ID; left empty, a fresh identity is generated (dev/test
	// convenience — production deployments should always pin one).
	PrivateKeySeed string `yaml:"private_key_seed"`
	// Peers maps every other node's address.Address (as a raw uint64)
	// to its dialable multiaddr, including the trailing /p2p/<peerID>
	// component.
	Peers map[uint64]string `yaml:"peers"`
}

// NodeConfig identifies this node, its local policy and its static
// resource ceiling (spec.md §3's worker-side resource triple).
type NodeConfig struct {
	ID     uint64 `yaml:"id"`
	Policy string `yaml:"policy"` // "ibp" | "mmp" | "dp" | "fsp"

	Memory int64   `yaml:"memory"`
	Disk   int64   `yaml:"disk"`
	Power  float64 `yaml:"power"`
}

// DispatchConfig covers the Aggregating Dispatcher's (C3) bandwidth cap and
// the Submission Supervisor's (C5) retry/timeout knobs, spec.md §6.
type DispatchConfig struct {
	// UpdateBandwidth is bytes/s, the cap on dispatcher upward traffic.
	UpdateBandwidth float64 `yaml:"update_bandwidth"`
	// Heartbeat is the monitor period and failure-detection basis
	// shared by both the worker and the submitter (spec.md §4.6).
	Heartbeat time.Duration `yaml:"heartbeat"`
	// SubmitRetries is the max retries per bag.
	SubmitRetries int `yaml:"submit_retries"`
	// RequestTimeout is the per-bag search deadline.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// DedupCacheSize and DedupCacheWindow bound the deadline
	// dispatcher's duplicate-request LRU (spec.md §4.4).
	DedupCacheSize   int           `yaml:"dedup_cache_size"`
	DedupCacheWindow time.Duration `yaml:"dedup_cache_window"`
	// MaxTasksPerRequest bounds how many ready tasks sendRequest collects
	// into one fresh TaskBag (spec.md §4.5 step 2, "up to N ready tasks").
	MaxTasksPerRequest int `yaml:"max_tasks_per_request"`
}

// SchedulerConfig covers the Local Scheduler's (C2) reschedule horizon.
type SchedulerConfig struct {
	// RescheduleTimeout is the local-scheduler re-evaluation horizon,
	// jittered +/-10% per spec.md §4.2.
	RescheduleTimeout time.Duration `yaml:"reschedule_timeout"`
}

// SummaryConfig covers the per-variant size budgets from spec.md §6.
type SummaryConfig struct {
	AvailClusters int `yaml:"avail_clusters"`
	DPPieces      int `yaml:"dp_pieces"`
	FSPPieces     int `yaml:"fsp_pieces"`
}

// FSPConfig covers the Fair-Slowness policy's tuning knobs.
type FSPConfig struct {
	Beta              float64 `yaml:"beta"`
	ReductionQuality  int     `yaml:"reduction_quality"`
	Discard           bool    `yaml:"discard"`
	DiscardRatio      float64 `yaml:"discard_ratio"`
	Preemptive        bool    `yaml:"preemptive"`
}

// MMPConfig covers the Queue-Balancing dispatcher's tie-break weight.
type MMPConfig struct {
	Beta float64 `yaml:"beta"`
}

// LoggingConfig configures the zerolog sink, in the teacher's
// pkg/logging register.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" | "json"
}

// APIConfig configures the read-only admin/status HTTP surface
// (SPEC_FULL.md Part C).
type APIConfig struct {
	Listen         string `yaml:"listen"`
	EnableCORS     bool   `yaml:"enable_cors"`
	EnableWebsocket bool  `yaml:"enable_websocket"`
}

// Default returns the configuration a fresh node starts from, mirroring
// the literal values used by spec.md §8's end-to-end scenarios where it
// matters (heartbeat=300s appears in S5, for instance, but the package
// default follows the teacher's more conservative production defaults;
// tests override per-scenario).
func Default() *Config {
	return &Config{
		Node:    NodeConfig{Policy: "mmp", Memory: 4096, Disk: 102400, Power: 1.0},
		Network: NetworkConfig{Listen: []string{"/ip4/0.0.0.0/tcp/0"}, Peers: map[uint64]string{}},
		Tree:    TreeConfig{},
		Dispatch: DispatchConfig{
			UpdateBandwidth:    1_000_000,
			Heartbeat:          30 * time.Second,
			SubmitRetries:      3,
			RequestTimeout:     30 * time.Second,
			DedupCacheSize:     4096,
			DedupCacheWindow:   5 * time.Minute,
			MaxTasksPerRequest: 32,
		},
		Scheduler: SchedulerConfig{
			RescheduleTimeout: 600 * time.Second,
		},
		Summary: SummaryConfig{
			AvailClusters: 16,
			DPPieces:      8,
			FSPPieces:     8,
		},
		FSP: FSPConfig{
			Beta:             0.5,
			ReductionQuality: 4,
			Discard:          false,
			DiscardRatio:     2.0,
			Preemptive:       false,
		},
		MMP: MMPConfig{Beta: 0.5},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		API: APIConfig{
			Listen:          ":7080",
			EnableCORS:      true,
			EnableWebsocket: true,
		},
		Exec: ExecConfig{SecondsPerUnit: 1.0},
	}
}

// Load reads a YAML configuration file at path (if non-empty) layered over
// Default(), following viper's merge-over-defaults idiom used by
// ollama-distributed/internal/config.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("node", cfg.Node)
	v.SetDefault("network", cfg.Network)
	v.SetDefault("tree", cfg.Tree)
	v.SetDefault("dispatch", cfg.Dispatch)
	v.SetDefault("scheduler", cfg.Scheduler)
	v.SetDefault("summary", cfg.Summary)
	v.SetDefault("fsp", cfg.FSP)
	v.SetDefault("mmp", cfg.MMP)
	v.SetDefault("logging", cfg.Logging)
	v.SetDefault("api", cfg.API)
	v.SetDefault("exec", cfg.Exec)
}
