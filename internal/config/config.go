package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalidConfig = errors.New("config: invalid")

// ClientConfig is the resolved helpctl configuration.
type ClientConfig struct {
	Host string
	Port int
	User string
	// Timeout is the heartbeat timeout; requests wait twice as long.
	Timeout   time.Duration
	KeepAlive bool
	// AdminAddr enables the admin HTTP server when set.
	AdminAddr string
	LogLevel  string
	LogFile   string
}

type fileConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	User      string `toml:"user"`
	Timeout   string `toml:"timeout"`
	TimeoutMS int64  `toml:"timeout_ms"`
	KeepAlive bool   `toml:"keep_alive"`
	AdminAddr string `toml:"admin_addr"`
	Log       struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"log"`
}

func Default() ClientConfig {
	return ClientConfig{
		Host:      "localhost",
		Port:      3000,
		Timeout:   2 * time.Second,
		KeepAlive: true,
	}
}

// Load overlays the keys present in the TOML file at path onto Default.
func Load(path string) (ClientConfig, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return ClientConfig{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("user") {
		cfg.User = strings.TrimSpace(raw.User)
	}
	if meta.IsDefined("timeout") {
		d, err := ParseTimeout(raw.Timeout)
		if err != nil {
			return ClientConfig{}, err
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("timeout_ms") {
		cfg.Timeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("keep_alive") {
		cfg.KeepAlive = raw.KeepAlive
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "file") {
		cfg.LogFile = strings.TrimSpace(raw.Log.File)
	}

	if err := Validate(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// ParseTimeout accepts a Go duration ("1500ms") or a bare number of seconds ("2").
func ParseTimeout(raw string) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, fmt.Errorf("%w: empty timeout", ErrInvalidConfig)
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse timeout %q: %w", ErrInvalidConfig, raw, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate checks the fields a session needs. User is checked by the
// client itself since it usually comes from the command line.
func Validate(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if cfg.AdminAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.AdminAddr); err != nil {
			return fmt.Errorf("%w: admin_addr: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Address joins Host and Port.
func (c ClientConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
