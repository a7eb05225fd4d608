package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// RoomTTL is the fixed lifetime of a room; it is set at creation and
	// never extended by activity.
	RoomTTL time.Duration `mapstructure:"room_ttl" yaml:"room_ttl"`

	// CreateRoomPerMinute throttles room creation per client IP.
	CreateRoomPerMinute int `mapstructure:"create_room_per_minute" yaml:"create_room_per_minute"`

	// AllowedOrigins restricts CORS on the REST surface. Empty means any
	// origin is allowed (development mode).
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                ":8080",
		ReadHeaderTimeout:   5 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		DatabasePath:        "pointdeck.db",
		LogLevel:            "info",
		RoomTTL:             24 * time.Hour,
		CreateRoomPerMinute: 10,
	}
}
