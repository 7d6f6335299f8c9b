package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as "30s" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// D returns the wrapped time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// CaptureConfig controls the live capture source.
type CaptureConfig struct {
	Interface   string `yaml:"interface"`
	Promiscuous bool   `yaml:"promiscuous" default:"false"`
	SnapLen     int32  `yaml:"snap_len" default:"65535"`
	// QueueSize bounds the frame queue between capture and the classifier.
	// When full, the oldest unclassified frame is dropped.
	QueueSize int `yaml:"queue_size" default:"4096"`
}

// ProbeConfig holds the NATS transport settings shared by nl-probe and
// nl-engine.
type ProbeConfig struct {
	NATSURL string `yaml:"nats_url" default:"nats://127.0.0.1:4222"`
	Subject string `yaml:"subject" default:"netlens.frames.raw"`
}

// TrackerConfig controls connection lifecycle timing.
type TrackerConfig struct {
	IdleTimeout   Duration `yaml:"idle_timeout"`
	ClosingGrace  Duration `yaml:"closing_grace"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// TierDef defines one statistics retention tier.
type TierDef struct {
	Name     string   `yaml:"name"`
	Interval Duration `yaml:"interval"`
	Capacity int      `yaml:"capacity"`
}

// StatsConfig controls the statistics aggregator.
type StatsConfig struct {
	Tiers []TierDef `yaml:"tiers"`
	// TopK is the size of the top-talkers and service-usage rankings.
	TopK int `yaml:"top_k" default:"10"`
	// TrackedTalkers bounds the candidate set behind the top-K ranking.
	TrackedTalkers int `yaml:"tracked_talkers" default:"1024"`
}

// TopologyConfig holds the layout constants. These are tunable policy values,
// not protocol facts; the defaults were picked against representative
// captures.
type TopologyConfig struct {
	TickInterval  Duration `yaml:"tick_interval"`
	RestLength    float64  `yaml:"rest_length" default:"80"`
	Spring        float64  `yaml:"spring" default:"0.05"`
	Repulsion     float64  `yaml:"repulsion" default:"1200"`
	Centering     float64  `yaml:"centering" default:"0.005"`
	Damping       float64  `yaml:"damping" default:"0.85"`
	MaxStep       float64  `yaml:"max_step" default:"25"`
	SpawnRadius   float64  `yaml:"spawn_radius" default:"60"`
	DecayHalfLife Duration `yaml:"decay_half_life"`
	Retention     Duration `yaml:"retention"`
	ActivityFloor float64  `yaml:"activity_floor" default:"0.05"`
}

// AnalysisConfig groups the pipeline-wide knobs.
type AnalysisConfig struct {
	// LocalRanges are CIDR blocks treated as "local" when deriving
	// connection direction and topology node locality.
	LocalRanges []string `yaml:"local_ranges"`
	// HistorySize bounds the most-recent-first packet record ring.
	HistorySize int `yaml:"history_size" default:"2048"`

	Tracker  TrackerConfig  `yaml:"tracker"`
	Stats    StatsConfig    `yaml:"stats"`
	Topology TopologyConfig `yaml:"topology"`
}

// APIConfig controls the snapshot HTTP server.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr" default:"127.0.0.1:8472"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Probe    ProbeConfig    `yaml:"probe"`
	Analysis AnalysisConfig `yaml:"analysis"`
	API      APIConfig      `yaml:"api"`
}

// Default returns a fully populated configuration without reading a file.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Only reachable with a broken struct tag.
		panic(err)
	}
	cfg.applyFallbacks()
	return cfg
}

// LoadConfig reads the configuration from a YAML file, fills in defaults and
// validates it.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFallbacks fills the fields the defaults library cannot express
// (durations and slices).
func (c *Config) applyFallbacks() {
	t := &c.Analysis.Tracker
	if t.IdleTimeout == 0 {
		t.IdleTimeout = Duration(90 * time.Second)
	}
	if t.ClosingGrace == 0 {
		t.ClosingGrace = Duration(5 * time.Second)
	}
	if t.SweepInterval == 0 {
		t.SweepInterval = Duration(2 * time.Second)
	}

	if len(c.Analysis.Stats.Tiers) == 0 {
		c.Analysis.Stats.Tiers = []TierDef{
			{Name: "second", Interval: Duration(time.Second), Capacity: 300},
			{Name: "minute", Interval: Duration(time.Minute), Capacity: 1440},
		}
	}

	topo := &c.Analysis.Topology
	if topo.TickInterval == 0 {
		topo.TickInterval = Duration(50 * time.Millisecond)
	}
	if topo.DecayHalfLife == 0 {
		topo.DecayHalfLife = Duration(60 * time.Second)
	}
	if topo.Retention == 0 {
		topo.Retention = Duration(5 * time.Minute)
	}

	if len(c.Analysis.LocalRanges) == 0 {
		c.Analysis.LocalRanges = []string{
			"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
			"127.0.0.0/8", "fe80::/10", "fc00::/7", "::1/128",
		}
	}
}

// Validate rejects structurally unusable configurations. This is the only
// point where the pipeline surfaces configuration failures; no per-packet
// condition is ever fatal.
func (c *Config) Validate() error {
	if c.Capture.QueueSize <= 0 {
		return fmt.Errorf("capture queue_size must be positive, got %d", c.Capture.QueueSize)
	}
	if c.Analysis.HistorySize <= 0 {
		return fmt.Errorf("analysis history_size must be positive, got %d", c.Analysis.HistorySize)
	}
	for _, tier := range c.Analysis.Stats.Tiers {
		if tier.Capacity <= 0 {
			return fmt.Errorf("stats tier %q capacity must be positive, got %d", tier.Name, tier.Capacity)
		}
		if tier.Interval <= 0 {
			return fmt.Errorf("stats tier %q interval must be positive", tier.Name)
		}
	}
	if c.Analysis.Stats.TopK <= 0 {
		return fmt.Errorf("stats top_k must be positive, got %d", c.Analysis.Stats.TopK)
	}
	if c.Analysis.Tracker.IdleTimeout <= 0 {
		return fmt.Errorf("tracker idle_timeout must be positive")
	}
	if c.Analysis.Topology.Damping <= 0 || c.Analysis.Topology.Damping >= 1 {
		return fmt.Errorf("topology damping must be in (0, 1), got %v", c.Analysis.Topology.Damping)
	}
	if _, err := c.Analysis.LocalNetworks(); err != nil {
		return err
	}
	return nil
}

// LocalNetworks parses the configured local CIDR ranges.
func (a *AnalysisConfig) LocalNetworks() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(a.LocalRanges))
	for _, cidr := range a.LocalRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid local range %q: %w", cidr, err)
		}
		nets = append(nets, network)
	}
	return nets, nil
}
