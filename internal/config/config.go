package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/sv2wire/internal/buffer"
	"github.com/danmuck/sv2wire/internal/protocol/frame"
	"github.com/danmuck/sv2wire/internal/protocol/session"
)

const (
	ModeServer = "server"
	ModeClient = "client"
	ModeBoth   = "both"
)

var ErrInvalidConfig = errors.New("config: invalid")

// PoolConfig sizes the shared buffer pool.
type PoolConfig struct {
	Slots    int
	SlotSize int
	// History keeps this many recent slot toggles for /pool; zero disables it.
	History int
}

// Config is the resolved pingpong runtime configuration.
type Config struct {
	Mode       string
	ListenAddr string
	// DialAddr defaults to ListenAddr.
	DialAddr     string
	AdminAddr    string
	Pings        int
	PingInterval time.Duration
	Pool         PoolConfig
	Session      session.Config
}

func DefaultConfig() Config {
	return Config{
		Mode:         ModeBoth,
		ListenAddr:   "127.0.0.1:34254",
		AdminAddr:    "",
		Pings:        10,
		PingInterval: 250 * time.Millisecond,
		Pool: PoolConfig{
			Slots:    buffer.MaxSlots,
			SlotSize: buffer.DefaultSlotSize,
		},
		Session: session.DefaultConfig(),
	}
}

// fileConfig is the config.toml key mapping.
type fileConfig struct {
	Mode               string `toml:"mode"`
	ListenAddr         string `toml:"listen_addr"`
	DialAddr           string `toml:"dial_addr"`
	AdminAddr          string `toml:"admin_addr"`
	Pings              int    `toml:"pings"`
	PingInterval       string `toml:"ping_interval"`
	Encrypted          bool   `toml:"encrypted"`
	ConnectTimeout     string `toml:"connect_timeout"`
	HandshakeTimeout   string `toml:"handshake_timeout"`
	ReadTimeout        string `toml:"read_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	MaxPayload         int    `toml:"max_payload"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	PoolSlots          int    `toml:"pool_slots"`
	PoolSlotSize       int    `toml:"pool_slot_size"`
	PoolHistory        int    `toml:"pool_history"`
}

// Load overlays the keys present in path onto DefaultConfig and validates
// the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("mode") {
		cfg.Mode = strings.ToLower(strings.TrimSpace(raw.Mode))
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("dial_addr") {
		cfg.DialAddr = strings.TrimSpace(raw.DialAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("pings") {
		cfg.Pings = raw.Pings
	}
	if meta.IsDefined("encrypted") {
		cfg.Session.Encrypted = raw.Encrypted
	}
	if meta.IsDefined("max_payload") {
		cfg.Session.Limits = frame.Limits{MaxPayload: raw.MaxPayload}
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("pool_slots") {
		cfg.Pool.Slots = raw.PoolSlots
	}
	if meta.IsDefined("pool_slot_size") {
		cfg.Pool.SlotSize = raw.PoolSlotSize
	}
	if meta.IsDefined("pool_history") {
		cfg.Pool.History = raw.PoolHistory
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"ping_interval", raw.PingInterval, &cfg.PingInterval},
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeServer, ModeClient, ModeBoth:
	default:
		return fmt.Errorf("%w: mode %q (expected server, client or both)", ErrInvalidConfig, c.Mode)
	}
	if c.Mode != ModeClient {
		if err := checkAddr("listen_addr", c.ListenAddr); err != nil {
			return err
		}
	}
	if c.Mode != ModeServer {
		if err := checkAddr("dial_addr", c.DialTarget()); err != nil {
			return err
		}
		if c.Pings <= 0 {
			return fmt.Errorf("%w: pings must be positive, got %d", ErrInvalidConfig, c.Pings)
		}
	}
	if c.AdminAddr != "" {
		if err := checkAddr("admin_addr", c.AdminAddr); err != nil {
			return err
		}
	}
	if c.Pool.Slots < 1 || c.Pool.Slots > buffer.MaxSlots {
		return fmt.Errorf("%w: pool_slots must be 1..%d, got %d", ErrInvalidConfig, buffer.MaxSlots, c.Pool.Slots)
	}
	if c.Pool.SlotSize < frame.HeaderLen {
		return fmt.Errorf("%w: pool_slot_size must be at least %d, got %d", ErrInvalidConfig, frame.HeaderLen, c.Pool.SlotSize)
	}
	if c.Pool.History < 0 {
		return fmt.Errorf("%w: pool_history must not be negative", ErrInvalidConfig)
	}
	if mp := c.Session.Limits.MaxPayload; mp < 0 || mp > frame.MaxPayloadLen {
		return fmt.Errorf("%w: max_payload must be 0..%d, got %d", ErrInvalidConfig, frame.MaxPayloadLen, mp)
	}
	if c.PingInterval < 0 || c.Session.ReadTimeout < 0 || c.Session.WriteTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DialTarget is the address the client connects to.
func (c Config) DialTarget() string {
	if c.DialAddr != "" {
		return c.DialAddr
	}
	return c.ListenAddr
}

func checkAddr(key, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, key)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return nil
}

// NewPool builds the buffer pool described by c.Pool. The returned History
// is nil unless pool_history is set.
func (c Config) NewPool(observers ...buffer.Observer) (*buffer.Pool, *buffer.History) {
	var hist *buffer.History
	obs := buffer.Observers(observers)
	if c.Pool.History > 0 {
		hist = buffer.NewHistory(c.Pool.History)
		obs = append(obs, hist)
	}
	var opts []buffer.Option
	if len(obs) > 0 {
		opts = append(opts, buffer.WithObserver(obs))
	}
	return buffer.New(c.Pool.Slots, c.Pool.SlotSize, opts...), hist
}
