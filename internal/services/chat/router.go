// Package chat routes chat messages to nearby players.
package chat

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/mcoot/dragonrealm/internal/dependencies/clock"
	"github.com/mcoot/dragonrealm/internal/model"
)

// Tier is how prominently a recipient sees a message
type Tier string

const (
	TierNear Tier = "near"
	TierFar  Tier = "far"
)

// Delivery is one recipient of a routed message
type Delivery struct {
	ConnectionID model.ConnectionID
	Tier         Tier
}

// Config holds proximity and flood-control settings
type Config struct {
	NearRadius       float64       `yaml:"near_radius"`
	FarRadius        float64       `yaml:"far_radius"`
	Cooldown         time.Duration `yaml:"cooldown"`
	MaxMessageLength int           `yaml:"max_message_length"`
}

// DefaultConfig returns the standard chat ranges
func DefaultConfig() Config {
	return Config{
		NearRadius:       150,
		FarRadius:        300,
		Cooldown:         time.Second,
		MaxMessageLength: 500,
	}
}

// Validate checks the ranges are ordered
func (c Config) Validate() error {
	if c.NearRadius < 0 || c.FarRadius < c.NearRadius {
		return fmt.Errorf("chat ranges must satisfy 0 <= near (%v) <= far (%v)", c.NearRadius, c.FarRadius)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("chat max message length must be positive")
	}
	return nil
}

// Router decides who hears a message. It keeps one token bucket per sender.
type Router struct {
	cfg   Config
	clock clock.Clock

	mu       sync.Mutex
	limiters map[model.ConnectionID]*rate.Limiter
}

// NewRouter creates a chat router
func NewRouter(cfg Config, clock clock.Clock) *Router {
	return &Router{
		cfg:      cfg,
		clock:    clock,
		limiters: make(map[model.ConnectionID]*rate.Limiter),
	}
}

// Route returns a delivery for every recipient within the far radius
func (r *Router) Route(sender model.Position, recipients []model.PresenceEntry) []Delivery {
	var deliveries []Delivery
	for _, recipient := range recipients {
		d := sender.DistanceTo(recipient.Position)
		switch {
		case d <= r.cfg.NearRadius:
			deliveries = append(deliveries, Delivery{ConnectionID: recipient.ConnectionID, Tier: TierNear})
		case d <= r.cfg.FarRadius:
			deliveries = append(deliveries, Delivery{ConnectionID: recipient.ConnectionID, Tier: TierFar})
		}
	}
	return deliveries
}

// Allow reports whether the sender is outside its cooldown, and if so
// starts a new one
func (r *Router) Allow(sender model.ConnectionID) bool {
	if r.cfg.Cooldown <= 0 {
		return true
	}

	r.mu.Lock()
	limiter, ok := r.limiters[sender]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(r.cfg.Cooldown), 1)
		r.limiters[sender] = limiter
	}
	r.mu.Unlock()

	return limiter.AllowN(r.clock.Now(), 1)
}

// Forget drops a sender's cooldown state
func (r *Router) Forget(sender model.ConnectionID) {
	r.mu.Lock()
	delete(r.limiters, sender)
	r.mu.Unlock()
}

// Prepare validates raw message text and returns the formatted message
func (r *Router) Prepare(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", model.Malformed("message", "must not be empty")
	}
	if !utf8.ValidString(text) {
		return "", model.Malformed("message", "must be valid UTF-8")
	}
	if utf8.RuneCountInString(text) > r.cfg.MaxMessageLength {
		return "", model.OutOfRange("message", fmt.Sprintf("must be at most %d characters", r.cfg.MaxMessageLength))
	}
	return Format(text), nil
}

var shorthand = strings.NewReplacer(
	":dragon:", "🐉",
	":fire:", "🔥",
	":)", "🐲",
	"<3", "❤️",
)

var urlPattern = regexp.MustCompile(`https?://[^\s<]+[^<.,:;"')\]\s]`)

// Format substitutes shorthand with symbols, escapes HTML and turns URLs
// into links. It is pure and never affects routing.
func Format(text string) string {
	text = shorthand.Replace(text)
	text = html.EscapeString(text)
	return urlPattern.ReplaceAllStringFunc(text, func(url string) string {
		return `<a href="` + url + `" target="_blank" rel="noopener noreferrer">` + url + `</a>`
	})
}
