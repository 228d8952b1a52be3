package core

import (
	"fmt"
	"strings"
)

type HTTPConfig struct {
	Addr string `koanf:"addr" mapstructure:"addr"`
}

// ChannelConfig holds the messaging-channel webhook settings: the HMAC app
// secret for signature verification, the handshake verify token, and the
// send-API credentials used by the delivery executor.
type ChannelConfig struct {
	AppSecret     string `koanf:"app_secret" mapstructure:"app_secret"`
	VerifyToken   string `koanf:"verify_token" mapstructure:"verify_token"`
	AccessToken   string `koanf:"access_token" mapstructure:"access_token"`
	PhoneNumberID string `koanf:"phone_number_id" mapstructure:"phone_number_id"`
	APIBase       string `koanf:"api_base" mapstructure:"api_base"`
}

type PaymentsConfig struct {
	SigningSecret string `koanf:"signing_secret" mapstructure:"signing_secret"`
}

type DispatchConfig struct {
	HandlerTimeoutSeconds int `koanf:"handler_timeout_seconds" mapstructure:"handler_timeout_seconds"`
	QueueSize             int `koanf:"queue_size" mapstructure:"queue_size"`
	Workers               int `koanf:"workers" mapstructure:"workers"`
}

type DeliveryConfig struct {
	BatchSize             int `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts           int `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSeconds int `koanf:"initial_backoff_seconds" mapstructure:"initial_backoff_seconds"`
	MaxBackoffSeconds     int `koanf:"max_backoff_seconds" mapstructure:"max_backoff_seconds"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
	Channel     ChannelConfig  `koanf:"channel" mapstructure:"channel"`
	Payments    PaymentsConfig `koanf:"payments" mapstructure:"payments"`
	Dispatch    DispatchConfig `koanf:"dispatch" mapstructure:"dispatch"`
	Delivery    DeliveryConfig `koanf:"delivery" mapstructure:"delivery"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "concierge",
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Channel: ChannelConfig{
			APIBase: "https://graph.facebook.com/v19.0",
		},
		Dispatch: DispatchConfig{
			HandlerTimeoutSeconds: 30,
			QueueSize:             256,
			Workers:               4,
		},
		Delivery: DeliveryConfig{
			BatchSize:             50,
			MaxAttempts:           5,
			InitialBackoffSeconds: 2,
			MaxBackoffSeconds:     300,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Dispatch.HandlerTimeoutSeconds < 0 {
		return fmt.Errorf("core: dispatch.handler_timeout_seconds must not be negative")
	}
	if c.Dispatch.QueueSize < 0 || c.Dispatch.Workers < 0 {
		return fmt.Errorf("core: dispatch queue_size and workers must not be negative")
	}
	if c.Delivery.MaxAttempts < 0 || c.Delivery.BatchSize < 0 {
		return fmt.Errorf("core: delivery max_attempts and batch_size must not be negative")
	}
	return nil
}
