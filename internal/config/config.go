// Package config loads the counter bridge's YAML configuration file
// and optionally watches it for changes. A watched change is logged,
// not applied: nothing in this process restarts live components on
// an edit, since the log connection, provider, and flush timer are
// all established once at Start and are not safely swappable without
// a process restart. Operators who need a config change applied
// should restart the process; Watch exists so that is visible in the
// logs rather than silent.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	clusterkafka "github.com/injest-ai/countero/internal/kafka"
)

// BridgeConfig is the full set of recognized configuration options
// for the counter bridge process.
type BridgeConfig struct {
	// Kafka is the cluster the event log is backed by.
	Kafka clusterkafka.ClusterConfig `yaml:"kafka"`

	// StreamKey names the log topic events are read from.
	StreamKey string `yaml:"streamKey"`
	// ConsumerGroup names the consumer group this process joins.
	ConsumerGroup string `yaml:"consumerGroup"`
	// ConsumerID labels this process in its log lines; cmd/counter-bridge
	// generates a UUID if it is empty. It is not passed to the Kafka
	// client, so it does not identify the process to the consumer group.
	ConsumerID string `yaml:"consumerId"`

	// MaxWaitMs is the flush window in milliseconds.
	MaxWaitMs int `yaml:"maxWaitMs"`
	// MaxMessages is the flush size threshold.
	MaxMessages int `yaml:"maxMessages"`

	// Filter is an optional CEL boolean expression used as an event
	// admission predicate; empty means no filtering.
	Filter string `yaml:"filter,omitempty"`

	// LogLevel is decoded from the file but not applied: cmd/counter-bridge
	// builds its logger before loading the file, from the -log-level flag
	// or COUNTER_BRIDGE_LOG_LEVEL.
	LogLevel string `yaml:"logLevel,omitempty"`

	// HealthAddr is the bind address for the health/readiness/metrics
	// HTTP server.
	HealthAddr string `yaml:"healthAddr,omitempty"`

	// CloudEventsWebhook, if set, is a URL that observability events
	// are forwarded to as CloudEvents JSON. Empty disables forwarding.
	CloudEventsWebhook string `yaml:"cloudEventsWebhook,omitempty"`
}

// MaxWait returns MaxWaitMs as a time.Duration, defaulting to 500ms.
func (c BridgeConfig) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

// Defaults fills in the spec's documented defaults for any unset
// field.
func (c BridgeConfig) Defaults() BridgeConfig {
	if c.StreamKey == "" {
		c.StreamKey = "counter-bridge:events"
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "counter-bridge-group"
	}
	if c.MaxWaitMs <= 0 {
		c.MaxWaitMs = 500
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 1000
	}
	if c.HealthAddr == "" {
		c.HealthAddr = ":8080"
	}
	return c
}

// Validate checks the configuration for required fields.
func (c BridgeConfig) Validate() error {
	var errs []error
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, fmt.Errorf("kafka.brokers is required"))
	}
	if c.StreamKey == "" {
		errs = append(errs, fmt.Errorf("streamKey is required"))
	}
	if err := c.Kafka.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Loader loads BridgeConfig from a single YAML file and can watch it
// for changes.
type Loader struct {
	mu     sync.RWMutex
	path   string
	logger *slog.Logger
	cfg    BridgeConfig
}

// NewLoader creates a loader for the given file path.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{path: path, logger: logger}
}

// Load reads and parses the configuration file, applying defaults.
func (l *Loader) Load() (BridgeConfig, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return BridgeConfig{}, fmt.Errorf("read config %s: %w", l.path, err)
	}

	var cfg BridgeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return BridgeConfig{}, fmt.Errorf("parse config %s: %w", l.path, err)
	}
	cfg = cfg.Defaults()

	if err := cfg.Validate(); err != nil {
		return BridgeConfig{}, fmt.Errorf("invalid config: %w", err)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	return cfg, nil
}

// Current returns the most recently loaded configuration.
func (l *Loader) Current() BridgeConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch watches the configuration file's directory for changes and
// logs (but does not apply) any edit to the file itself. Blocks until
// done is closed.
func (l *Loader) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %s: %w", dir, err)
	}

	l.logger.Info("watching config file for changes (restart required to apply)", "path", l.path)

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				l.logger.Warn("config file changed on disk; restart the process to apply it", "path", l.path, "op", event.Op)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("config watcher error", "error", err)
		}
	}
}
