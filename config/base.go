package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config is implemented by any application configuration that embeds or
// exposes the base sections.
type Config interface {
	GetBaseConfig() BaseConfig
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`                                                     // Whether requests are rate limited per client IP
	RequestsPerSecond float64 `yaml:"requestsPerSecond" validate:"required_if=Enabled true,gte=0"` // Sustained rate allowed per client
	Burst             int     `yaml:"burst" validate:"gte=0"`                                      // Extra requests allowed on top of the rate
}

type ServerConfig struct {
	Port      int             `yaml:"port" validate:"min=1,max=65535"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// Addr returns the listen address for the configured port.
func (sc ServerConfig) Addr() string {
	return ":" + strconv.Itoa(sc.Port)
}

type DatabaseConfig struct {
	URL      string `yaml:"url"` // Full connection string, takes precedence over the other fields
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslMode"`
}

// ConnectionURL returns the postgres connection string. When URL is set it is
// returned as is, otherwise it is assembled from the individual fields.
func (dc DatabaseConfig) ConnectionURL() string {
	if dc.URL != "" {
		return dc.URL
	}

	sslMode := dc.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dc.User, dc.Password),
		Host:     net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port)),
		Path:     "/" + dc.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}

	return u.String()
}

type QueueConfig struct {
	Enabled       bool   `yaml:"enabled"`                                    // Whether the queue is enabled
	ConnectionUrl string `yaml:"url" validate:"required_if=Enabled true"`    // NATS server connection URL
	Name          string `yaml:"name" validate:"required_if=Enabled true"`   // Name of the JetStream stream
	TopicPrefix   string `yaml:"prefix" validate:"required_if=Enabled true"` // Prefix for topics in the stream
	MaxAge        string `yaml:"maxAge"`                                     // Maximum age of messages in the stream
}

// MaxAgeDuration parses MaxAge. An empty value means no limit.
func (qc QueueConfig) MaxAgeDuration() (time.Duration, error) {
	if qc.MaxAge == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(qc.MaxAge)
	if err != nil {
		return 0, fmt.Errorf("invalid queue maxAge %q: %w", qc.MaxAge, err)
	}

	return d, nil
}

type SentinelOption struct {
	Enabled   bool   `yaml:"enabled"`   // Whether Sentinel is enabled
	MasterSet string `yaml:"masterSet"` // MasterSet is the name of the master set for sentinel mode
	Password  string `yaml:"password"`  // Password for the sentinel
}

type CacheConfig struct {
	Enabled        bool           `yaml:"enabled"`                                  // Whether Cache is enabled
	Host           string         `yaml:"host" validate:"required_if=Enabled true"` // Host of the cache server
	Port           string         `yaml:"port" validate:"required_if=Enabled true"` // Port of the cache server
	Password       string         `yaml:"password"`                                 // Password for the cache server
	SentinelConfig SentinelOption `yaml:"sentinel"`                                 // Only used when SentinelConfig.Enabled is true
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"` // debug, info, warn or error
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`            // json or text
}

type BaseConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

func (bc BaseConfig) GetBaseConfig() BaseConfig {
	return bc
}
