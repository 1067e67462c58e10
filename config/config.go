// Package config loads the daemon configuration from YAML. A path may name a
// single file or a directory whose *.yaml files are merged in lexical order,
// so site overrides can sit next to the shipped defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath overrides DefaultPath when set.
const EnvPath = "CELLINFO_CONFIG_PATH"

// DefaultPath is the config location used when neither a flag nor EnvPath is given.
const DefaultPath = "data/config"

// Source kinds.
const (
	SourceReplay    = "replay"
	SourceWebSocket = "websocket"
)

// Config represents the complete daemon configuration.
type Config struct {
	Poll     PollConfig     `yaml:"poll"`
	Source   SourceConfig   `yaml:"source"`
	History  HistoryConfig  `yaml:"history"`
	Prefs    PrefsConfig    `yaml:"prefs"`
	Display  DisplayConfig  `yaml:"display"`
	Recorder RecorderConfig `yaml:"recorder"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`

	// LoadedFrom is the file or directory the config was read from.
	LoadedFrom string `yaml:"-"`
}

// PollConfig controls the measurement loop.
type PollConfig struct {
	IntervalMS    int `yaml:"interval_ms"`
	LogQueueDepth int `yaml:"log_queue_depth"`
}

// Interval returns the poll period.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

// SourceConfig selects where measurements come from.
type SourceConfig struct {
	Kind               string            `yaml:"kind"`
	ReplayPath         string            `yaml:"replay_path"`
	ReplayLoop         bool              `yaml:"replay_loop"`
	URL                string            `yaml:"url"`
	Headers            map[string]string `yaml:"headers"`
	ReconnectSeconds   int               `yaml:"reconnect_seconds"`
	ReadTimeoutSeconds int               `yaml:"read_timeout_seconds"`
	MaxAgeSeconds      int               `yaml:"max_age_seconds"`
}

// HistoryConfig contains cell history store settings.
type HistoryConfig struct {
	Path                    string `yaml:"path"`
	CacheSizeMB             int    `yaml:"cache_size_mb"`
	BloomFilterBits         int    `yaml:"bloom_filter_bits"`
	WriteQueueDepth         int    `yaml:"write_queue_depth"`
	RetentionDays           int    `yaml:"retention_days"`
	PurgeIntervalHours      int    `yaml:"purge_interval_hours"`
	CheckpointDir           string `yaml:"checkpoint_dir"`
	CheckpointIntervalHours int    `yaml:"checkpoint_interval_hours"`
}

// PrefsConfig locates the field preference files.
type PrefsConfig struct {
	Dir   string `yaml:"dir"`
	Watch *bool  `yaml:"watch"`
}

// WatchEnabled reports whether preference files are reloaded on change.
func (p PrefsConfig) WatchEnabled() bool {
	return p.Watch == nil || *p.Watch
}

// DisplayConfig controls the console renderer.
type DisplayConfig struct {
	Enabled      *bool `yaml:"enabled"`
	Compact      bool  `yaml:"compact"`
	ShowLocation bool  `yaml:"show_location"`
	RecentCells  int   `yaml:"recent_cells"`
}

// IsEnabled reports whether the console view is drawn.
func (d DisplayConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// RecorderConfig contains SQLite sighting recorder settings.
type RecorderConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	PerTechLimit int    `yaml:"per_technology_limit"`
}

// MQTTConfig contains MQTT publication settings.
type MQTTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Broker         string `yaml:"broker"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TopicPrefix    string `yaml:"topic_prefix"`
	QoS            int    `yaml:"qos"`
	RetainNewCells bool   `yaml:"retain_new_cells"`
	Sightings      bool   `yaml:"sightings"`
	QueueDepth     int    `yaml:"queue_depth"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig contains log file settings.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	// StatsIntervalSeconds controls how often counters are written to the log file; 0 disables.
	StatsIntervalSeconds *int `yaml:"stats_interval_seconds"`
}

// ResolvePath picks the config path from an explicit value, the environment, or the default.
func ResolvePath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads configuration from a YAML file or a directory of YAML files.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		files, err = yamlFiles(path)
		if err != nil {
			return nil, err
		}
	}

	merged := map[string]any{}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", file, err)
		}
		mergeMaps(merged, doc)
	}

	// Round-trip the merged tree so field decoding stays in one place.
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("config: merge: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.LoadedFrom = path
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied, used when no file exists.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.normalize()
	return cfg
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("config: read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("config: no yaml files in %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// mergeMaps folds src into dst. Nested maps merge key by key; any other
// value in src replaces the one in dst.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				mergeMaps(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

func (c *Config) normalize() error {
	var errs []error

	if c.Poll.IntervalMS < 0 {
		errs = append(errs, errors.New("poll.interval_ms must be >= 0"))
	}
	if c.Poll.IntervalMS == 0 {
		c.Poll.IntervalMS = 1000
	}
	if c.Poll.LogQueueDepth <= 0 {
		c.Poll.LogQueueDepth = 8
	}

	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if c.Source.Kind == "" {
		c.Source.Kind = SourceReplay
	}
	switch c.Source.Kind {
	case SourceReplay:
		if c.Source.ReplayPath == "" {
			c.Source.ReplayPath = "data/replay/capture.jsonl"
		}
	case SourceWebSocket:
		if strings.TrimSpace(c.Source.URL) == "" {
			errs = append(errs, errors.New("source.url is required for websocket source"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind %q is not one of %s, %s", c.Source.Kind, SourceReplay, SourceWebSocket))
	}
	if c.Source.ReconnectSeconds <= 0 {
		c.Source.ReconnectSeconds = 5
	}
	if c.Source.ReadTimeoutSeconds <= 0 {
		c.Source.ReadTimeoutSeconds = 30
	}
	if c.Source.MaxAgeSeconds <= 0 {
		c.Source.MaxAgeSeconds = 10
	}

	if c.History.Path == "" {
		c.History.Path = "data/history"
	}
	if c.History.RetentionDays < 0 {
		errs = append(errs, errors.New("history.retention_days must be >= 0"))
	}
	if c.History.PurgeIntervalHours <= 0 {
		c.History.PurgeIntervalHours = 24
	}
	if c.History.CheckpointDir == "" {
		c.History.CheckpointDir = filepath.Join(c.History.Path, "checkpoint")
	}
	if c.History.CheckpointIntervalHours < 0 {
		errs = append(errs, errors.New("history.checkpoint_interval_hours must be >= 0"))
	}

	if c.Prefs.Dir == "" {
		c.Prefs.Dir = "data/prefs"
	}
	if c.Display.RecentCells <= 0 {
		c.Display.RecentCells = 10
	}

	if c.Recorder.Path == "" {
		c.Recorder.Path = "data/records/sightings.db"
	}
	if c.Recorder.PerTechLimit <= 0 {
		c.Recorder.PerTechLimit = 1000
	}

	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.MQTT.Port <= 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1, or 2", c.MQTT.QoS))
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "cellinfo"
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9108"
	}

	if c.Logging.Dir == "" {
		c.Logging.Dir = "data/logs"
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
	if c.Logging.StatsIntervalSeconds == nil {
		v := 300
		c.Logging.StatsIntervalSeconds = &v
	} else if *c.Logging.StatsIntervalSeconds < 0 {
		errs = append(errs, errors.New("logging.stats_interval_seconds must be >= 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Print displays the configuration summary.
func (c *Config) Print() {
	fmt.Printf("Config: %s\n", c.LoadedFrom)
	switch c.Source.Kind {
	case SourceWebSocket:
		fmt.Printf("Source: websocket %s (max age %ds)\n", c.Source.URL, c.Source.MaxAgeSeconds)
	default:
		fmt.Printf("Source: replay %s (loop=%t)\n", c.Source.ReplayPath, c.Source.ReplayLoop)
	}
	fmt.Printf("Poll: every %s\n", c.Poll.Interval())
	retention := "forever"
	if c.History.RetentionDays > 0 {
		retention = fmt.Sprintf("%d days", c.History.RetentionDays)
	}
	fmt.Printf("History: %s (retention %s)\n", c.History.Path, retention)
	if c.Recorder.Enabled {
		fmt.Printf("Recorder: %s (limit %d per technology)\n", c.Recorder.Path, c.Recorder.PerTechLimit)
	}
	if c.MQTT.Enabled {
		fmt.Printf("MQTT: %s:%d (topic prefix %s)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.TopicPrefix)
	}
	if c.Metrics.Enabled {
		fmt.Printf("Metrics: %s\n", c.Metrics.Listen)
	}
}
