package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultChatDuration = 60 * time.Minute
	defaultBufferWindow = 20 * time.Second
)

// flexInt decodes a JSON number or a numeric string; operators edit the
// parameter by hand, so both forms occur.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	var n json.Number = json.Number(s)
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("paramstore: %q is not an integer", s)
	}
	*f = flexInt(v)
	return nil
}

// Config is the bridge configuration stored as a JSON SSM parameter.
type Config struct {
	InstanceID               string          `json:"instance_id"`
	ContactFlowID            string          `json:"contact_flow_id"`
	ChatDurationMinutes      flexInt         `json:"chat_duration_minutes"`
	IgnoreReactions          string          `json:"ignore_reactions"`
	IgnoreStickers           string          `json:"ignore_stickers"`
	BufferInSeconds          flexInt         `json:"buffer_in_seconds"`
	MetaAPIVersion           string          `json:"META_API_VERSION"`
	OriginationPhoneNumberID string          `json:"ORIGINATION_PHONE_NUMBER_ID"`
	Message                  json.RawMessage `json:"message,omitempty"`
}

// Validate reports the configuration error that must stop an invocation
// before any partial processing.
func (c *Config) Validate() error {
	if c.InstanceID == "" || c.ContactFlowID == "" {
		return errors.New("paramstore: instance_id and contact_flow_id must be set")
	}
	return nil
}

// ChatDuration returns the configured session duration, defaulting to
// one hour.
func (c *Config) ChatDuration() time.Duration {
	if c.ChatDurationMinutes > 0 {
		return time.Duration(c.ChatDurationMinutes) * time.Minute
	}
	return defaultChatDuration
}

// BufferWindow returns the aggregation buffer window.
func (c *Config) BufferWindow() time.Duration {
	if c.BufferInSeconds > 0 {
		return time.Duration(c.BufferInSeconds) * time.Second
	}
	return defaultBufferWindow
}

func (c *Config) ReactionsIgnored() bool { return c.IgnoreReactions == "yes" }
func (c *Config) StickersIgnored() bool  { return c.IgnoreStickers == "yes" }

// APIVersion returns the Meta Graph API version to stamp on outbound
// channel calls.
func (c *Config) APIVersion() string {
	if c.MetaAPIVersion == "" {
		return "v23.0"
	}
	return c.MetaAPIVersion
}

// LoadConfig fetches and parses the JSON configuration parameter.
func LoadConfig(ctx context.Context, g Getter, name string) (*Config, error) {
	raw, err := g.GetParameter(ctx, name)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("paramstore: parameter %q is not valid JSON: %w", name, err)
	}
	return &cfg, nil
}
