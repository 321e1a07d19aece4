package config

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gossipd/internal/clock"
	"gossipd/internal/gossip"
	"gossipd/internal/member"
)

// Config holds the node configuration.
type Config struct {
	// Listen is this node's address. It doubles as the node's identity, so
	// it must be an IPv4 literal with a port.
	Listen string
	// Introducer is the well-known member new nodes join through. Ignored
	// when etcd discovery is configured.
	Introducer string

	TFail           int
	TRemove         int
	TickInterval    time.Duration
	JoinTimeout     int
	MaxJoinAttempts int
	QueueSize       int

	// HTTPAddr serves /healthz, /info, /membership and /metrics. Empty
	// disables the HTTP server.
	HTTPAddr string

	EtcdEndpoints []string
	EtcdPrefix    string

	LogLevel       string
	LogDevelopment bool
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Listen:          "127.0.0.1:7946",
		Introducer:      "127.0.0.1:7946",
		TFail:           5,
		TRemove:         20,
		TickInterval:    100 * time.Millisecond,
		JoinTimeout:     40,
		MaxJoinAttempts: 3,
		QueueSize:       1024,
		HTTPAddr:        "127.0.0.1:8080",
		EtcdPrefix:      "/gossipd",
		LogLevel:        "info",
	}
}

// Load parses command-line flags. Each flag defaults to the matching
// GOSSIPD_* environment variable, then to Default.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Default()
	env := envSource{getenv: getenv}

	fs := flag.NewFlagSet("gossipd", flag.ContinueOnError)
	fs.StringVar(&cfg.Listen, "listen", env.str("GOSSIPD_LISTEN", cfg.Listen), "address of this node (ip:port)")
	fs.StringVar(&cfg.Introducer, "introducer", env.str("GOSSIPD_INTRODUCER", cfg.Introducer), "address of the introducer (ip:port)")
	fs.IntVar(&cfg.TFail, "tfail", env.integer("GOSSIPD_TFAIL", cfg.TFail), "ticks between gossip rounds")
	fs.IntVar(&cfg.TRemove, "tremove", env.integer("GOSSIPD_TREMOVE", cfg.TRemove), "ticks of silence before a peer is evicted")
	fs.DurationVar(&cfg.TickInterval, "tick", env.duration("GOSSIPD_TICK", cfg.TickInterval), "wall-clock duration of one tick")
	fs.IntVar(&cfg.JoinTimeout, "join-timeout", env.integer("GOSSIPD_JOIN_TIMEOUT", cfg.JoinTimeout), "ticks to wait for a join reply before retrying")
	fs.IntVar(&cfg.MaxJoinAttempts, "join-attempts", env.integer("GOSSIPD_JOIN_ATTEMPTS", cfg.MaxJoinAttempts), "join requests to send before giving up (0 waits forever)")
	fs.IntVar(&cfg.QueueSize, "queue-size", env.integer("GOSSIPD_QUEUE_SIZE", cfg.QueueSize), "inbound message queue capacity")
	fs.StringVar(&cfg.HTTPAddr, "http", env.str("GOSSIPD_HTTP", cfg.HTTPAddr), "HTTP debug and metrics address (empty disables)")
	etcd := fs.String("etcd", env.str("GOSSIPD_ETCD", ""), "comma-separated etcd endpoints for introducer discovery")
	fs.StringVar(&cfg.EtcdPrefix, "etcd-prefix", env.str("GOSSIPD_ETCD_PREFIX", cfg.EtcdPrefix), "etcd key prefix")
	fs.StringVar(&cfg.LogLevel, "log-level", env.str("GOSSIPD_LOG_LEVEL", cfg.LogLevel), "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.LogDevelopment, "log-dev", env.boolean("GOSSIPD_LOG_DEV", cfg.LogDevelopment), "human-readable console logs")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}

	cfg.EtcdEndpoints = ParseList(*etcd)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseList parses a comma-separated list, trimming spaces and dropping
// empty items.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		items = append(items, part)
	}
	return items
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.TFail < 1 {
		errs = append(errs, fmt.Errorf("tfail must be at least 1, got %d", c.TFail))
	}
	if c.TRemove <= c.TFail {
		errs = append(errs, fmt.Errorf("tremove (%d) must be greater than tfail (%d)", c.TRemove, c.TFail))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	if c.JoinTimeout < 1 {
		errs = append(errs, fmt.Errorf("join timeout must be at least 1 tick, got %d", c.JoinTimeout))
	}
	if c.MaxJoinAttempts < 0 {
		errs = append(errs, fmt.Errorf("join attempts cannot be negative, got %d", c.MaxJoinAttempts))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize))
	}
	if _, err := member.ParseKey(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	if len(c.EtcdEndpoints) == 0 {
		if _, err := member.ParseKey(c.Introducer); err != nil {
			errs = append(errs, fmt.Errorf("introducer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// EngineConfig converts the configuration into protocol parameters for the
// given introducer. Listen must be valid.
func (c *Config) EngineConfig(introducer member.Key) gossip.Config {
	return gossip.Config{
		Self:            member.MustParseKey(c.Listen),
		Introducer:      introducer,
		TFail:           clock.Tick(c.TFail),
		TRemove:         clock.Tick(c.TRemove),
		JoinTimeout:     clock.Tick(c.JoinTimeout),
		MaxJoinAttempts: c.MaxJoinAttempts,
	}
}

type envSource struct {
	getenv func(string) string
	errs   []error
}

func (e *envSource) lookup(key string) string {
	if e.getenv == nil {
		return ""
	}
	return strings.TrimSpace(e.getenv(key))
}

func (e *envSource) str(key, def string) string {
	if v := e.lookup(key); v != "" {
		return v
	}
	return def
}

func (e *envSource) integer(key string, def int) int {
	v := e.lookup(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (e *envSource) duration(key string, def time.Duration) time.Duration {
	v := e.lookup(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *envSource) boolean(key string, def bool) bool {
	v := e.lookup(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}
