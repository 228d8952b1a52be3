package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

// ConfigProvider loads a Config on top of supplied defaults.
type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

// RawConfigLoader yields untyped configuration values (file, env, flags).
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

// OptionsResolver merges default, loaded, and runtime configuration layers.
type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticRawConfigLoader wraps a literal value map as a RawConfigLoader.
func StaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded < runtime with deterministic
// precedence.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.HTTP.Addr) != "" {
		layer["http"] = map[string]any{"addr": cfg.HTTP.Addr}
	}
	channel := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Channel.AppSecret) != "" {
		channel["app_secret"] = cfg.Channel.AppSecret
	}
	if includeZero || strings.TrimSpace(cfg.Channel.VerifyToken) != "" {
		channel["verify_token"] = cfg.Channel.VerifyToken
	}
	if includeZero || strings.TrimSpace(cfg.Channel.AccessToken) != "" {
		channel["access_token"] = cfg.Channel.AccessToken
	}
	if includeZero || strings.TrimSpace(cfg.Channel.PhoneNumberID) != "" {
		channel["phone_number_id"] = cfg.Channel.PhoneNumberID
	}
	if includeZero || strings.TrimSpace(cfg.Channel.APIBase) != "" {
		channel["api_base"] = cfg.Channel.APIBase
	}
	if len(channel) > 0 {
		layer["channel"] = channel
	}
	if includeZero || strings.TrimSpace(cfg.Payments.SigningSecret) != "" {
		layer["payments"] = map[string]any{"signing_secret": cfg.Payments.SigningSecret}
	}
	if includeZero || cfg.Dispatch != (DispatchConfig{}) {
		layer["dispatch"] = map[string]any{
			"handler_timeout_seconds": cfg.Dispatch.HandlerTimeoutSeconds,
			"queue_size":              cfg.Dispatch.QueueSize,
			"workers":                 cfg.Dispatch.Workers,
		}
	}
	if includeZero || cfg.Delivery != (DeliveryConfig{}) {
		layer["delivery"] = map[string]any{
			"batch_size":              cfg.Delivery.BatchSize,
			"max_attempts":            cfg.Delivery.MaxAttempts,
			"initial_backoff_seconds": cfg.Delivery.InitialBackoffSeconds,
			"max_backoff_seconds":     cfg.Delivery.MaxBackoffSeconds,
		}
	}
	return layer
}
