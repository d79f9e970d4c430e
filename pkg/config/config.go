// Package config assembles the server configuration from defaults, an
// optional YAML file, a .env file, the environment and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tecu23/blitz-server/pkg/chess"
)

// Bus drivers
const (
	BusLocal = "local"
	BusRedis = "redis"
	BusNATS  = "nats"
)

// Config holds every tunable of the server.
type Config struct {
	Debug          bool     `yaml:"debug"`
	Port           string   `yaml:"port"`
	FrontendOrigin string   `yaml:"frontendOrigin"`
	APIKeys        []string `yaml:"apiKeys"`
	InstanceID     string   `yaml:"instanceId"`

	TokenSecret   string        `yaml:"tokenSecret"`
	GuestTokenTTL time.Duration `yaml:"guestTokenTTL"`
	// EphemeralSecret is set when no secret was configured and one was
	// generated for this process.
	EphemeralSecret bool `yaml:"-"`

	GracePeriod     time.Duration `yaml:"gracePeriod"`
	DisconnectGrace time.Duration `yaml:"disconnectGrace"`
	PairInterval    time.Duration `yaml:"pairInterval"`
	DeadlineBuffer  time.Duration `yaml:"deadlineBuffer"`
	RematchWindow   time.Duration `yaml:"rematchWindow"`
	PersistTimeout  time.Duration `yaml:"persistTimeout"`
	SweepInterval   time.Duration `yaml:"sweepInterval"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`

	TimeControls []string `yaml:"timeControls"`
	// Variant is "standard" or "chess960". Chess960 setups only keep the
	// castling rights of a king on the e-file with a rook on the a- or
	// h-file.
	Variant       string `yaml:"variant"`
	DefaultRating int    `yaml:"defaultRating"`
	DefaultRD     int    `yaml:"defaultRD"`
	MaxChatLength int    `yaml:"maxChatLength"`

	BusDriver   string `yaml:"busDriver"`
	RedisURL    string `yaml:"redisURL"`
	NATSURL     string `yaml:"natsURL"`
	DatabaseURL string `yaml:"databaseURL"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Port:            "8080",
		GuestTokenTTL:   24 * time.Hour,
		GracePeriod:     15 * time.Second,
		DisconnectGrace: 5 * time.Second,
		PairInterval:    250 * time.Millisecond,
		DeadlineBuffer:  100 * time.Millisecond,
		RematchWindow:   60 * time.Second,
		PersistTimeout:  5 * time.Second,
		SweepInterval:   30 * time.Second,
		IdleTimeout:     2 * time.Minute,
		TimeControls:    []string{"1+0", "2+1", "3+0", "3+2", "5+0"},
		Variant:         string(chess.VariantStandard),
		DefaultRating:   1500,
		DefaultRD:       350,
		MaxChatLength:   500,
		BusDriver:       BusLocal,
	}
}

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration from args (without the program name) and
// the environment exposed by lookup.
func Load(args []string, lookup LookupFunc) (*Config, error) {
	fs := flag.NewFlagSet("blitz-server", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	port := fs.String("port", "", "server port")
	file := fs.String("config", "", "path to a YAML config file")
	envFile := fs.String("env", ".env", "path to a .env file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	dotenv, err := godotenv.Read(*envFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", *envFile, err)
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	cfg := Default()

	path := *file
	if path == "" {
		path, _ = env("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug":
			cfg.Debug = *debug
		case "port":
			cfg.Port = *port
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(env LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitList(v)
		}
	}

	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	if v, ok := env("DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DEBUG: %w", err))
		}
		c.Debug = b
	}
	if v, ok := env("LOG_LEVEL"); ok && strings.EqualFold(strings.TrimSpace(v), "debug") {
		c.Debug = true
	}

	str("PORT", &c.Port)
	str("FRONTEND_PATH", &c.FrontendOrigin)
	list("API_KEYS", &c.APIKeys)
	str("INSTANCE_ID", &c.InstanceID)
	str("TOKEN_SECRET", &c.TokenSecret)
	dur("GUEST_TOKEN_TTL", &c.GuestTokenTTL)

	dur("GRACE_PERIOD", &c.GracePeriod)
	dur("DISCONNECT_GRACE", &c.DisconnectGrace)
	dur("PAIR_INTERVAL", &c.PairInterval)
	dur("DEADLINE_BUFFER", &c.DeadlineBuffer)
	dur("REMATCH_WINDOW", &c.RematchWindow)
	dur("PERSIST_TIMEOUT", &c.PersistTimeout)
	dur("SWEEP_INTERVAL", &c.SweepInterval)
	dur("IDLE_TIMEOUT", &c.IdleTimeout)

	list("TIME_CONTROLS", &c.TimeControls)
	str("VARIANT", &c.Variant)
	num("DEFAULT_RATING", &c.DefaultRating)
	num("DEFAULT_RD", &c.DefaultRD)
	num("MAX_CHAT_LENGTH", &c.MaxChatLength)

	str("BUS_DRIVER", &c.BusDriver)
	str("REDIS_URL", &c.RedisURL)
	str("NATS_URL", &c.NATSURL)
	str("DATABASE_URL", &c.DatabaseURL)

	return errors.Join(errs...)
}

// Validate checks the configuration and fills derived values.
func (c *Config) Validate() error {
	var errs []error

	if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Port))
	}

	for name, d := range map[string]time.Duration{
		"grace period":     c.GracePeriod,
		"disconnect grace": c.DisconnectGrace,
		"pair interval":    c.PairInterval,
		"rematch window":   c.RematchWindow,
		"persist timeout":  c.PersistTimeout,
		"sweep interval":   c.SweepInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.DeadlineBuffer < 0 {
		errs = append(errs, errors.New("deadline buffer must not be negative"))
	}
	if c.PairInterval >= time.Second {
		errs = append(errs, errors.New("pair interval must be sub-second"))
	}

	if len(c.TimeControls) == 0 {
		errs = append(errs, errors.New("at least one time control is required"))
	}
	for _, tc := range c.TimeControls {
		if _, err := chess.ParseTimeControl(tc); err != nil {
			errs = append(errs, err)
		}
	}

	switch chess.Variant(c.Variant) {
	case chess.VariantStandard, chess.VariantChess960:
	default:
		errs = append(errs, fmt.Errorf("unknown variant %q", c.Variant))
	}

	switch c.BusDriver {
	case BusLocal:
	case BusRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis bus"))
		}
	case BusNATS:
		if c.NATSURL == "" {
			errs = append(errs, errors.New("NATS_URL is required for the nats bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bus driver %q", c.BusDriver))
	}

	if c.DefaultRating <= 0 || c.DefaultRD <= 0 || c.MaxChatLength <= 0 {
		errs = append(errs, errors.New("default rating, rating deviation and chat length must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	if c.TokenSecret == "" {
		c.TokenSecret = uuid.NewString()
		c.EphemeralSecret = true
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
