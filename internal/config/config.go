package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Remote      RemoteConfig      `yaml:"remote"`
	Exercises   ExercisesConfig   `yaml:"exercises"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tailscale   TailscaleConfig   `yaml:"tailscale"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// WebDir serves a built kiosk UI when set.
	WebDir string `yaml:"web_dir"`
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TrackingConfig struct {
	VisibilityThreshold float64       `yaml:"visibility_threshold"`
	LowFPSThreshold     float64       `yaml:"low_fps_threshold"`
	LowFPSTimeout       time.Duration `yaml:"low_fps_timeout"`

	// DetectorCommand runs a landmark worker fed by camera frames. Without
	// it (and without a replay file) landmarks are pushed by the browser.
	DetectorCommand string   `yaml:"detector_command"`
	DetectorArgs    []string `yaml:"detector_args"`
	CameraInput     string   `yaml:"camera_input"`
	CameraFormat    string   `yaml:"camera_format"`
	CameraFPS       int      `yaml:"camera_fps"`
	ReplayFile      string   `yaml:"replay_file"`
	ReplayLoop      bool     `yaml:"replay_loop"`

	// RecordFile appends pushed landmark results as a replayable JSONL file.
	RecordFile   string  `yaml:"record_file"`
	MaxFrameRate float64 `yaml:"max_frame_rate"`
	DevMode      bool    `yaml:"dev_mode"`
	CanvasWidth  int     `yaml:"canvas_width"`
	CanvasHeight int     `yaml:"canvas_height"`
}

type RemoteConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	ReleaseDelay time.Duration `yaml:"release_delay"`
}

type ExercisesConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// PersistenceConfig points result saves at a remote results server. An
// empty URL stores results in the local database.
type PersistenceConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.PathEscape(d.User), url.PathEscape(d.Password), d.Host, d.Port, d.Name, sslmode)
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Driver: DriverSQLite, Path: "data/romkiosk.db"},
		Tracking: TrackingConfig{
			VisibilityThreshold: 0.65,
			LowFPSThreshold:     12,
			LowFPSTimeout:       4 * time.Second,
			CameraInput:         "/dev/video0",
			CameraFormat:        "v4l2",
			CameraFPS:           30,
			ReplayLoop:          true,
			MaxFrameRate:        60,
			CanvasWidth:         1280,
			CanvasHeight:        720,
		},
		Remote: RemoteConfig{
			Debounce:     300 * time.Millisecond,
			ReleaseDelay: 100 * time.Millisecond,
		},
		Exercises: ExercisesConfig{Path: "exercises.yaml"},
		Logging:   LoggingConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3},
		Tailscale: TailscaleConfig{Hostname: "romkiosk", StateDir: "tsnet-state"},
	}
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. Env vars use the prefix ROMKIOSK_ and
// underscore-separated paths:
//
//	ROMKIOSK_SERVER_HOST, ROMKIOSK_SERVER_PORT,
//	ROMKIOSK_DB_DRIVER, ROMKIOSK_DB_PATH, ROMKIOSK_DB_HOST, ROMKIOSK_DB_PORT,
//	ROMKIOSK_DB_NAME, ROMKIOSK_DB_USER, ROMKIOSK_DB_PASSWORD, ROMKIOSK_DB_SSLMODE,
//	ROMKIOSK_AUTH_API_KEY, ROMKIOSK_TRACKING_DETECTOR_COMMAND,
//	ROMKIOSK_TRACKING_CAMERA_INPUT, ROMKIOSK_TRACKING_REPLAY_FILE,
//	ROMKIOSK_TRACKING_DEV_MODE,
//	ROMKIOSK_EXERCISES_PATH, ROMKIOSK_PERSISTENCE_URL, ROMKIOSK_PERSISTENCE_API_KEY,
//	ROMKIOSK_LOG_LEVEL, ROMKIOSK_LOG_FILE,
//	ROMKIOSK_TAILSCALE_ENABLED, ROMKIOSK_TAILSCALE_HOSTNAME
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("ROMKIOSK_SERVER_HOST", &cfg.Server.Host)
	setInt("ROMKIOSK_SERVER_PORT", &cfg.Server.Port)
	setString("ROMKIOSK_DB_DRIVER", &cfg.Database.Driver)
	setString("ROMKIOSK_DB_PATH", &cfg.Database.Path)
	setString("ROMKIOSK_DB_HOST", &cfg.Database.Host)
	setInt("ROMKIOSK_DB_PORT", &cfg.Database.Port)
	setString("ROMKIOSK_DB_NAME", &cfg.Database.Name)
	setString("ROMKIOSK_DB_USER", &cfg.Database.User)
	setString("ROMKIOSK_DB_PASSWORD", &cfg.Database.Password)
	setString("ROMKIOSK_DB_SSLMODE", &cfg.Database.SSLMode)
	setString("ROMKIOSK_AUTH_API_KEY", &cfg.Auth.APIKey)
	setString("ROMKIOSK_TRACKING_DETECTOR_COMMAND", &cfg.Tracking.DetectorCommand)
	setString("ROMKIOSK_TRACKING_CAMERA_INPUT", &cfg.Tracking.CameraInput)
	setString("ROMKIOSK_TRACKING_REPLAY_FILE", &cfg.Tracking.ReplayFile)
	setBool("ROMKIOSK_TRACKING_DEV_MODE", &cfg.Tracking.DevMode)
	setString("ROMKIOSK_EXERCISES_PATH", &cfg.Exercises.Path)
	setString("ROMKIOSK_PERSISTENCE_URL", &cfg.Persistence.URL)
	setString("ROMKIOSK_PERSISTENCE_API_KEY", &cfg.Persistence.APIKey)
	setString("ROMKIOSK_LOG_LEVEL", &cfg.Logging.Level)
	setString("ROMKIOSK_LOG_FILE", &cfg.Logging.File)
	setBool("ROMKIOSK_TAILSCALE_ENABLED", &cfg.Tailscale.Enabled)
	setString("ROMKIOSK_TAILSCALE_HOSTNAME", &cfg.Tailscale.Hostname)
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	t := c.Tracking
	if t.VisibilityThreshold < 0 || t.VisibilityThreshold > 1 {
		return fmt.Errorf("tracking.visibility_threshold must be within [0, 1]")
	}
	if t.LowFPSThreshold <= 0 {
		return fmt.Errorf("tracking.low_fps_threshold must be positive")
	}
	if t.LowFPSTimeout <= 0 {
		return fmt.Errorf("tracking.low_fps_timeout must be positive")
	}
	if t.MaxFrameRate <= 0 {
		return fmt.Errorf("tracking.max_frame_rate must be positive")
	}
	if t.CanvasWidth <= 0 || t.CanvasHeight <= 0 {
		return fmt.Errorf("tracking canvas size must be positive")
	}
	if t.DetectorCommand != "" && t.ReplayFile != "" {
		return fmt.Errorf("tracking.detector_command and tracking.replay_file are mutually exclusive")
	}
	if t.DetectorCommand != "" && t.CameraInput == "" {
		return fmt.Errorf("tracking.camera_input is required with a detector command")
	}

	if c.Remote.Debounce < 0 || c.Remote.ReleaseDelay < 0 {
		return fmt.Errorf("remote delays must not be negative")
	}
	if c.Exercises.Path == "" {
		return fmt.Errorf("exercises.path is required")
	}

	if c.Persistence.URL != "" {
		u, err := url.Parse(c.Persistence.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("persistence.url must be an http(s) URL")
		}
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return nil
}
