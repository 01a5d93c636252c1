package config

import (
	"fmt"
	"time"
)

const (
	AuthModeOAuthUser      = "oauth_user"
	AuthModeServiceAccount = "service_account"
)

type Config struct {
	Env                       string
	HTTPAddr                  string
	DefaultLanguage           string
	DefaultDocumentTitle      string
	GoogleCredentialsJSON     string
	GoogleAuthMode            string
	GoogleTokenFile           string
	SpeechEndpoint            string
	SpeechModel               string
	HandshakeTimeoutSec       int
	SessionIdleTimeoutSec     int
	MaxSessionDurationMin     int
	RecognizerDrainTimeoutSec int
	AppendDrainTimeoutSec     int
	ValidateAppendTarget      bool
	WSMaxMessageBytes         int64
	WSAllowedOrigins          []string
	DatabaseURL               string
	SessionWebhookURL         string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.GoogleAuthMode {
	case AuthModeOAuthUser:
		if c.GoogleTokenFile == "" {
			return fmt.Errorf("GOOGLE_TOKEN_FILE is required when GOOGLE_AUTH_MODE=%s", AuthModeOAuthUser)
		}
	case AuthModeServiceAccount:
	default:
		return fmt.Errorf("GOOGLE_AUTH_MODE must be %q or %q, got %q", AuthModeOAuthUser, AuthModeServiceAccount, c.GoogleAuthMode)
	}
	for _, p := range c.positiveFieldChecks() {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.SessionIdleTimeoutSec < 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT_SEC must not be negative, got %d", c.SessionIdleTimeoutSec)
	}
	if c.WSMaxMessageBytes <= 0 {
		return fmt.Errorf("WS_MAX_MESSAGE_BYTES must be positive, got %d", c.WSMaxMessageBytes)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "DEFAULT_LANGUAGE", value: c.DefaultLanguage},
		{name: "DEFAULT_DOCUMENT_TITLE", value: c.DefaultDocumentTitle},
		{name: "GOOGLE_CREDENTIALS_JSON", value: c.GoogleCredentialsJSON},
		{name: "GOOGLE_AUTH_MODE", value: c.GoogleAuthMode},
		{name: "SPEECH_MODEL", value: c.SpeechModel},
	}
}

type positiveEnvField struct {
	name  string
	value int
}

func (c *Config) positiveFieldChecks() []positiveEnvField {
	return []positiveEnvField{
		{name: "HANDSHAKE_TIMEOUT_SEC", value: c.HandshakeTimeoutSec},
		{name: "MAX_SESSION_DURATION_MIN", value: c.MaxSessionDurationMin},
		{name: "RECOGNIZER_DRAIN_TIMEOUT_SEC", value: c.RecognizerDrainTimeoutSec},
		{name: "APPEND_DRAIN_TIMEOUT_SEC", value: c.AppendDrainTimeoutSec},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSec) * time.Second
}

// SessionIdleTimeout is zero when idle detection is disabled.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutSec) * time.Second
}

func (c *Config) MaxSessionDuration() time.Duration {
	return time.Duration(c.MaxSessionDurationMin) * time.Minute
}

func (c *Config) RecognizerDrainTimeout() time.Duration {
	return time.Duration(c.RecognizerDrainTimeoutSec) * time.Second
}

func (c *Config) AppendDrainTimeout() time.Duration {
	return time.Duration(c.AppendDrainTimeoutSec) * time.Second
}
