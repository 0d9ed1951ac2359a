// Package config loads and hot-reloads the monitor configuration. Files are
// YAML on disk but decoded through the strict JSON decoder so unknown fields
// are rejected in both formats.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
)

type Config struct {
	Poll       PollConfig       `json:"poll"`
	HTTP       HTTPConfig       `json:"http,omitempty"`
	TikHub     TikHubConfig     `json:"tikhub,omitempty"`
	Accounts   []AccountConfig  `json:"accounts,omitempty"`
	Feeds      []FeedConfig     `json:"feeds,omitempty"`
	Pages      []PageConfig     `json:"pages,omitempty"`
	Classifier ClassifierConfig `json:"classifier,omitempty"`
	Telegram   TelegramConfig   `json:"telegram"`
	LLM        LLMConfig        `json:"llm,omitempty"`
	Database   DatabaseConfig   `json:"database,omitempty"`
	Audit      AuditConfig      `json:"audit,omitempty"`
	Metrics    MetricsConfig    `json:"metrics,omitempty"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
}

// PollConfig controls scheduling. Night hours are local to Timezone and may
// wrap midnight (start 21, end 3).
type PollConfig struct {
	Timezone       string `json:"timezone,omitempty"`
	NightStartHour int    `json:"night_start_hour,omitempty"`
	NightEndHour   int    `json:"night_end_hour,omitempty"`
	RetentionDays  int    `json:"retention_days,omitempty"`
}

type HTTPConfig struct {
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type TikHubConfig struct {
	APIKey        string `json:"api_key,omitempty"`
	BaseURL       string `json:"base_url,omitempty"`
	RatePerMinute int    `json:"rate_per_minute,omitempty"`
}

// AccountConfig is one monitored Twitter account.
type AccountConfig struct {
	Username      string `json:"username"`
	Name          string `json:"name,omitempty"`
	Tier          string `json:"tier,omitempty"`
	Vendor        string `json:"vendor,omitempty"`
	Founder       bool   `json:"founder,omitempty"`
	AttentionOnly bool   `json:"attention_only,omitempty"`
}

// Entity converts the account into its scheduler representation. Unknown tier
// strings coerce to tier A.
func (a AccountConfig) Entity() domain.Entity {
	vendor := a.Vendor
	if vendor == "" && a.Name != "" {
		vendor = a.Name
	}
	return domain.NewEntity(a.Username, a.Tier, vendor, a.Founder, a.AttentionOnly)
}

type FeedConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// PageConfig is one watched web page. Selector narrows extraction to a CSS
// selector; empty means heuristic link scanning.
type PageConfig struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Selector string `json:"selector,omitempty"`
}

type ClassifierConfig struct {
	AcquisitionKeywords []string `json:"acquisition_keywords,omitempty"`
	LaunchKeywords      []string `json:"launch_keywords,omitempty"`
	UpdateKeywords      []string `json:"update_keywords,omitempty"`
	NoiseKeywords       []string `json:"noise_keywords,omitempty"`
	AttentionAllow      []string `json:"attention_allow,omitempty"`
	AttentionDeny       []string `json:"attention_deny,omitempty"`
}

type TelegramConfig struct {
	Token         string  `json:"token"`
	ChatID        int64   `json:"chat_id"`
	RatePerSecond float64 `json:"rate_per_second,omitempty"`
}

type LLMConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type DatabaseConfig struct {
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type AuditConfig struct {
	Path string `json:"path,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Listen  string `json:"listen,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

// Validate checks structural constraints that would make the runtime
// misbehave. It is also used as the hot-reload gate, so a bad edit never
// displaces a working config.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Poll.Timezone != "" {
		if _, err := time.LoadLocation(c.Poll.Timezone); err != nil {
			return fmt.Errorf("poll.timezone: %w", err)
		}
	}
	if h := c.Poll.NightStartHour; h < 0 || h > 23 {
		return fmt.Errorf("poll.night_start_hour: %d out of range", h)
	}
	if h := c.Poll.NightEndHour; h < 0 || h > 23 {
		return fmt.Errorf("poll.night_end_hour: %d out of range", h)
	}
	if c.Poll.RetentionDays < 0 {
		return errors.New("poll.retention_days must be >= 0")
	}
	if _, err := ParseDurationField("http.timeout", c.HTTP.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("database.busy_timeout", c.Database.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("llm.timeout", c.LLM.Timeout); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Accounts))
	for i, a := range c.Accounts {
		u := strings.ToLower(strings.TrimSpace(a.Username))
		if u == "" {
			return fmt.Errorf("accounts[%d]: username is required", i)
		}
		if _, dup := seen[u]; dup {
			return fmt.Errorf("accounts[%d]: duplicate username %q", i, a.Username)
		}
		seen[u] = struct{}{}
	}
	for i, f := range c.Feeds {
		if strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("feeds[%d]: url is required", i)
		}
	}
	for i, p := range c.Pages {
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("pages[%d]: url is required", i)
		}
	}
	if strings.TrimSpace(c.Telegram.Token) != "" && c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required when a token is set")
	}
	if c.LLM.Enabled && strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm.api_key is required when llm is enabled")
	}
	return nil
}

// Entities returns the scheduler entity list in config order.
func (c *Config) Entities() []domain.Entity {
	out := make([]domain.Entity, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		out = append(out, a.Entity())
	}
	return out
}
