package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Logging struct {
	Env       string `yaml:"env"`     // dev|prod
	Service   string `yaml:"service"` // pairpad
	Version   string `yaml:"version"`
	Backend   string `yaml:"backend"` // std|zap
	AddSource bool   `yaml:"addSource"`
	Debug     bool   `yaml:"debug"`
}

// Duration parses yaml values like "5m" or "1h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Rooms struct {
	MaxRooms      int      `yaml:"maxRooms"`
	IdleTimeout   Duration `yaml:"idleTimeout"`
	SweepInterval Duration `yaml:"sweepInterval"`
}

type RateLimit struct {
	MaxRequests int      `yaml:"maxRequests"`
	Window      Duration `yaml:"window"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Database  Database  `yaml:"database"`
	Logging   Logging   `yaml:"logging"`
	Rooms     Rooms     `yaml:"rooms"`
	RateLimit RateLimit `yaml:"rateLimit"`
	CORSAllow []string  `yaml:"corsAllow"`
}

// Load reads the config file pointed at by CONFIG_PATH. A missing file is
// not an error: the env-overridable defaults are enough to run locally.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTP.Addr = ":" + port
	}
	if dbPath := os.Getenv("PAIRPAD_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Logging.Env = env
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTP:     HTTP{Addr: ":8080"},
		Database: Database{Path: "./data/pairpad.db"},
		Logging: Logging{
			Env:     "dev",
			Service: "pairpad",
			Version: "v0.1.0",
			Backend: "std",
		},
		Rooms: Rooms{
			MaxRooms:      100,
			IdleTimeout:   Duration(time.Hour),
			SweepInterval: Duration(5 * time.Minute),
		},
		RateLimit: RateLimit{
			MaxRequests: 10,
			Window:      Duration(time.Minute),
		},
		CORSAllow: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Rooms.MaxRooms <= 0 {
		return errors.New("rooms.maxRooms must be positive")
	}
	if c.Rooms.IdleTimeout <= 0 {
		return errors.New("rooms.idleTimeout must be positive")
	}
	if c.Rooms.SweepInterval <= 0 {
		return errors.New("rooms.sweepInterval must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rateLimit.maxRequests and rateLimit.window must be positive")
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "pairpad"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}
