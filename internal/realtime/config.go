package realtime

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds realtime transport settings
type Config struct {
	// SnapshotInterval is how often every client receives a full presence
	// snapshot. Zero disables periodic snapshots.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	SendBuffer       int           `yaml:"send_buffer"`
	InboundBuffer    int           `yaml:"inbound_buffer"`
	WriteWait        time.Duration `yaml:"write_wait"`
	PongWait         time.Duration `yaml:"pong_wait"`
	MaxMessageSize   int64         `yaml:"max_message_size"`
	// AllowedOrigins lists browser origins allowed to connect. Empty means
	// same-origin only; "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns default realtime configuration
func DefaultConfig() Config {
	return Config{
		SnapshotInterval: 5 * time.Second,
		SendBuffer:       256,
		InboundBuffer:    256,
		WriteWait:        10 * time.Second,
		PongWait:         60 * time.Second,
		MaxMessageSize:   8 * 1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SnapshotInterval < 0 {
		c.SnapshotInterval = 0
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = d.InboundBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}

// pingPeriod must be shorter than PongWait
func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

func (c Config) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(c.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
