// Package config resolves the runtime configuration of the auth service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/MishC/NotatApp/adapters/store"
	"github.com/MishC/NotatApp/adapters/throttle"
	"github.com/MishC/NotatApp/adapters/tokenizer"
	"github.com/MishC/NotatApp/service"
)

const envPrefix = "NOTATAPP_"

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Notifier providers
const (
	ProviderLog = "log"
	ProviderSES = "ses"
	ProviderSNS = "sns"
)

// Duration decodes "15m"-style strings from both YAML and TOML
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

type HTTPConfig struct {
	Addr            string   `yaml:"addr" toml:"addr"`
	InsecureCookies bool     `yaml:"insecure_cookies" toml:"insecure_cookies"`
	TrustedProxies  []string `yaml:"trusted_proxies" toml:"trusted_proxies"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type StorageConfig struct {
	Driver   string `yaml:"driver" toml:"driver"`
	DSN      string `yaml:"dsn" toml:"dsn"`
	MaxConns int    `yaml:"max_conns" toml:"max_conns"`
}

// RedisConfig enables the shared challenge, session and throttle stores and the event stream
type RedisConfig struct {
	URL         string `yaml:"url" toml:"url"`
	EventsTopic string `yaml:"events_topic" toml:"events_topic"`
}

type JWTConfig struct {
	SigningKey string   `yaml:"signing_key" toml:"signing_key"`
	Issuer     string   `yaml:"issuer" toml:"issuer"`
	Audience   string   `yaml:"audience" toml:"audience"`
	AccessTTL  Duration `yaml:"access_ttl" toml:"access_ttl"`
}

type SessionConfig struct {
	TTL             Duration `yaml:"ttl" toml:"ttl"`
	RotateOnRefresh bool     `yaml:"rotate_on_refresh" toml:"rotate_on_refresh"`
}

type ThrottleConfig struct {
	Limit  int      `yaml:"limit" toml:"limit"`
	Window Duration `yaml:"window" toml:"window"`
	Scope  string   `yaml:"scope" toml:"scope"`
}

type LockoutConfig struct {
	Threshold  int      `yaml:"threshold" toml:"threshold"`
	Duration   Duration `yaml:"duration" toml:"duration"`
	BcryptCost int      `yaml:"bcrypt_cost" toml:"bcrypt_cost"`
}

type SecondFactorConfig struct {
	Enforce    bool     `yaml:"enforce" toml:"enforce"`
	FixedCode  string   `yaml:"fixed_code" toml:"fixed_code"`
	ExposeCode bool     `yaml:"expose_code" toml:"expose_code"`
	TTL        Duration `yaml:"ttl" toml:"ttl"`
}

type NotifierConfig struct {
	Email       string  `yaml:"email" toml:"email"`
	SMS         string  `yaml:"sms" toml:"sms"`
	FromAddress string  `yaml:"from_address" toml:"from_address"`
	SMSRate     float64 `yaml:"sms_rate" toml:"sms_rate"`
	AWSRegion   string  `yaml:"aws_region" toml:"aws_region"`
}

// Config is the resolved runtime configuration
type Config struct {
	HTTP         HTTPConfig         `yaml:"http" toml:"http"`
	Log          LogConfig          `yaml:"log" toml:"log"`
	Storage      StorageConfig      `yaml:"storage" toml:"storage"`
	Redis        RedisConfig        `yaml:"redis" toml:"redis"`
	JWT          JWTConfig          `yaml:"jwt" toml:"jwt"`
	Session      SessionConfig      `yaml:"session" toml:"session"`
	Throttle     ThrottleConfig     `yaml:"throttle" toml:"throttle"`
	Lockout      LockoutConfig      `yaml:"lockout" toml:"lockout"`
	SecondFactor SecondFactorConfig `yaml:"second_factor" toml:"second_factor"`
	Notifier     NotifierConfig     `yaml:"notifier" toml:"notifier"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Storage: StorageConfig{Driver: DriverMemory, MaxConns: 10},
		JWT: JWTConfig{
			Issuer:    "notatapp",
			Audience:  "notatapp-clients",
			AccessTTL: Duration(service.DefaultAccessTTL),
		},
		Session: SessionConfig{TTL: Duration(service.DefaultSessionTTL)},
		Throttle: ThrottleConfig{
			Limit:  throttle.DefaultLimit,
			Window: Duration(throttle.DefaultWindow),
			Scope:  string(service.ThrottleClient),
		},
		Lockout: LockoutConfig{
			Threshold:  store.DefaultLockoutThreshold,
			Duration:   Duration(store.DefaultLockoutDuration),
			BcryptCost: 12,
		},
		SecondFactor: SecondFactorConfig{
			Enforce:   true,
			FixedCode: service.DefaultFixedDevCode,
			TTL:       Duration(service.DefaultChallengeTTL),
		},
		Notifier: NotifierConfig{
			Email:   ProviderLog,
			SMS:     ProviderLog,
			SMSRate: 1,
		},
	}
}

// Load resolves configuration in priority order: defaults -> file -> env.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, cfg)
	case ".toml":
		err = toml.Unmarshal(raw, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(envPrefix + key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err == nil {
				*dst = d
			}
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(envPrefix + key); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*dst = f
			}
		}
	}

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	boolean("HTTP_INSECURE_COOKIES", &cfg.HTTP.InsecureCookies)
	if v, ok := lookup(envPrefix + "HTTP_TRUSTED_PROXIES"); ok {
		cfg.HTTP.TrustedProxies = splitCSV(v)
	}
	duration("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("STORAGE_DSN", &cfg.Storage.DSN)
	integer("STORAGE_MAX_CONNS", &cfg.Storage.MaxConns)

	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_EVENTS_TOPIC", &cfg.Redis.EventsTopic)

	str("JWT_SIGNING_KEY", &cfg.JWT.SigningKey)
	str("JWT_ISSUER", &cfg.JWT.Issuer)
	str("JWT_AUDIENCE", &cfg.JWT.Audience)
	duration("JWT_ACCESS_TTL", &cfg.JWT.AccessTTL)

	duration("SESSION_TTL", &cfg.Session.TTL)
	boolean("SESSION_ROTATE_ON_REFRESH", &cfg.Session.RotateOnRefresh)

	integer("THROTTLE_LIMIT", &cfg.Throttle.Limit)
	duration("THROTTLE_WINDOW", &cfg.Throttle.Window)
	str("THROTTLE_SCOPE", &cfg.Throttle.Scope)

	integer("LOCKOUT_THRESHOLD", &cfg.Lockout.Threshold)
	duration("LOCKOUT_DURATION", &cfg.Lockout.Duration)
	integer("BCRYPT_COST", &cfg.Lockout.BcryptCost)

	boolean("SECOND_FACTOR_ENFORCE", &cfg.SecondFactor.Enforce)
	str("SECOND_FACTOR_FIXED_CODE", &cfg.SecondFactor.FixedCode)
	boolean("SECOND_FACTOR_EXPOSE_CODE", &cfg.SecondFactor.ExposeCode)
	duration("SECOND_FACTOR_TTL", &cfg.SecondFactor.TTL)

	str("NOTIFIER_EMAIL", &cfg.Notifier.Email)
	str("NOTIFIER_SMS", &cfg.Notifier.SMS)
	str("NOTIFIER_FROM_ADDRESS", &cfg.Notifier.FromAddress)
	float("NOTIFIER_SMS_RATE", &cfg.Notifier.SMSRate)
	str("NOTIFIER_AWS_REGION", &cfg.Notifier.AWSRegion)
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations the service cannot start with
func (c Config) Validate() error {
	var errs []error

	if len(c.JWT.SigningKey) < 32 {
		errs = append(errs, errors.New("jwt.signing_key must be at least 32 bytes"))
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Notifier.Email != ProviderLog && c.Notifier.Email != ProviderSES {
		errs = append(errs, fmt.Errorf("unknown email notifier %q", c.Notifier.Email))
	}
	if c.Notifier.SMS != ProviderLog && c.Notifier.SMS != ProviderSNS {
		errs = append(errs, fmt.Errorf("unknown sms notifier %q", c.Notifier.SMS))
	}
	if c.Throttle.Limit <= 0 || c.Throttle.Window <= 0 {
		errs = append(errs, errors.New("throttle limit and window must be positive"))
	}
	if err := c.ServiceConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// UsesLogNotifier reports whether any channel is delivered to the log only
func (c Config) UsesLogNotifier() bool {
	return c.Notifier.Email == ProviderLog || c.Notifier.SMS == ProviderLog
}

// LogCodes reports whether log notifiers may write one-time codes.
// Codes stay out of the log while the second factor is enforced, unless they
// are exposed to clients anyway.
func (c Config) LogCodes() bool {
	return !c.SecondFactor.Enforce || c.SecondFactor.ExposeCode
}

// ServiceConfig maps the file layout onto the auth flow config
func (c Config) ServiceConfig() service.Config {
	return service.Config{
		AccessTTL:           c.JWT.AccessTTL.Std(),
		SessionTTL:          c.Session.TTL.Std(),
		ChallengeTTL:        c.SecondFactor.TTL.Std(),
		EnforceSecondFactor: c.SecondFactor.Enforce,
		FixedDevCode:        c.SecondFactor.FixedCode,
		ExposeCode:          c.SecondFactor.ExposeCode,
		RotateOnRefresh:     c.Session.RotateOnRefresh,
		ThrottleScope:       service.ThrottleScope(c.Throttle.Scope),
	}
}

func (c Config) TokenizerConfig() tokenizer.Config {
	return tokenizer.Config{
		SigningKey: []byte(c.JWT.SigningKey),
		Issuer:     c.JWT.Issuer,
		Audience:   c.JWT.Audience,
		AccessTTL:  c.JWT.AccessTTL.Std(),
	}
}

func (c Config) LockoutPolicy() store.LockoutPolicy {
	return store.LockoutPolicy{Threshold: c.Lockout.Threshold, Duration: c.Lockout.Duration.Std()}
}

func (c Config) ThrottleConfig() throttle.Config {
	return throttle.Config{Limit: c.Throttle.Limit, Window: c.Throttle.Window.Std()}
}
