package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/voicememo/internal/config"
)

type envConfig struct {
	Env                       string   `env:"ENV" envDefault:"production"`
	HTTPAddr                  string   `env:"HTTP_ADDR" envDefault:":8000"`
	DefaultLanguage           string   `env:"DEFAULT_LANGUAGE" envDefault:"ko-KR"`
	DefaultDocumentTitle      string   `env:"DEFAULT_DOCUMENT_TITLE" envDefault:"새 음성 메모"`
	GoogleCredentialsJSON     string   `env:"GOOGLE_CREDENTIALS_JSON,required"`
	GoogleAuthMode            string   `env:"GOOGLE_AUTH_MODE" envDefault:"oauth_user"`
	GoogleTokenFile           string   `env:"GOOGLE_TOKEN_FILE" envDefault:"token.json"`
	SpeechEndpoint            string   `env:"SPEECH_ENDPOINT"`
	SpeechModel               string   `env:"SPEECH_MODEL" envDefault:"default"`
	HandshakeTimeoutSec       int      `env:"HANDSHAKE_TIMEOUT_SEC" envDefault:"10"`
	SessionIdleTimeoutSec     int      `env:"SESSION_IDLE_TIMEOUT_SEC" envDefault:"60"`
	MaxSessionDurationMin     int      `env:"MAX_SESSION_DURATION_MIN" envDefault:"5"`
	RecognizerDrainTimeoutSec int      `env:"RECOGNIZER_DRAIN_TIMEOUT_SEC" envDefault:"5"`
	AppendDrainTimeoutSec     int      `env:"APPEND_DRAIN_TIMEOUT_SEC" envDefault:"10"`
	ValidateAppendTarget      bool     `env:"VALIDATE_APPEND_TARGET" envDefault:"true"`
	WSMaxMessageBytes         int64    `env:"WS_MAX_MESSAGE_BYTES" envDefault:"1048576"`
	WSAllowedOrigins          []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
	DatabaseURL               string   `env:"DATABASE_URL"`
	SessionWebhookURL         string   `env:"SESSION_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                       raw.Env,
		HTTPAddr:                  raw.HTTPAddr,
		DefaultLanguage:           raw.DefaultLanguage,
		DefaultDocumentTitle:      raw.DefaultDocumentTitle,
		GoogleCredentialsJSON:     raw.GoogleCredentialsJSON,
		GoogleAuthMode:            raw.GoogleAuthMode,
		GoogleTokenFile:           raw.GoogleTokenFile,
		SpeechEndpoint:            raw.SpeechEndpoint,
		SpeechModel:               raw.SpeechModel,
		HandshakeTimeoutSec:       raw.HandshakeTimeoutSec,
		SessionIdleTimeoutSec:     raw.SessionIdleTimeoutSec,
		MaxSessionDurationMin:     raw.MaxSessionDurationMin,
		RecognizerDrainTimeoutSec: raw.RecognizerDrainTimeoutSec,
		AppendDrainTimeoutSec:     raw.AppendDrainTimeoutSec,
		ValidateAppendTarget:      raw.ValidateAppendTarget,
		WSMaxMessageBytes:         raw.WSMaxMessageBytes,
		WSAllowedOrigins:          raw.WSAllowedOrigins,
		DatabaseURL:               raw.DatabaseURL,
		SessionWebhookURL:         raw.SessionWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
