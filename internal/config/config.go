package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// local | dev | test | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns int `yaml:"max_open_conns"`
			MaxIdleConns int `yaml:"max_idle_conns"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Session struct {
		// Pepper para el HMAC de los tokens. Obligatorio en prod.
		Pepper     string `yaml:"pepper"`
		TTL        string `yaml:"ttl"`
		TokenBytes int    `yaml:"token_bytes"`
		// Domain de la cookie; vacío = host-only.
		CookieDomain string `yaml:"cookie_domain"`
		// Cookie compartida legacy ("sid"); vacío la desactiva.
		LegacyCookieName string `yaml:"legacy_cookie_name"`
		// Intervalo del janitor de sesiones expiradas; "0" lo desactiva.
		PurgeInterval string `yaml:"purge_interval"`
	} `yaml:"session"`

	Billing struct {
		WebhookSecret    string `yaml:"webhook_secret"`
		WebhookTolerance string `yaml:"webhook_tolerance"`
		PastDueGrace     string `yaml:"past_due_grace"`
		OneTimeAccess    string `yaml:"one_time_access"`
		// SecretKey de la plataforma; las llamadas a cuentas conectadas van
		// con el header Stripe-Account. Vacío desactiva checkout/portal/precios.
		SecretKey string `yaml:"secret_key"`
		// URLs de retorno; vacías se arman con el host del request.
		CheckoutSuccessURL string `yaml:"checkout_success_url"`
		CheckoutCancelURL  string `yaml:"checkout_cancel_url"`
		PortalReturnURL    string `yaml:"portal_return_url"`
	} `yaml:"billing"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Login   struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
	} `yaml:"rate"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`
}

// Load lee el YAML (si path no está vacío), aplica defaults y pisa con ENV.
// Un path inexistente no es error: se arranca solo con ENV.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 10
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "5m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "appbase"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "720h" // 30d
	}
	if c.Session.TokenBytes == 0 {
		c.Session.TokenBytes = 32
	}
	if c.Session.PurgeInterval == "" {
		c.Session.PurgeInterval = "1h"
	}
	if c.Billing.WebhookTolerance == "" {
		c.Billing.WebhookTolerance = "5m"
	}
	if c.Billing.PastDueGrace == "" {
		c.Billing.PastDueGrace = "168h" // 7d
	}
	if c.Billing.OneTimeAccess == "" {
		c.Billing.OneTimeAccess = "720h" // 30d
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

// applyEnvOverrides: ENV pisa lo que venga del YAML.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(strings.TrimSpace(v))
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvStr("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_PEPPER"); ok {
		c.Session.Pepper = v
	}
	if v, ok := getEnvStr("SESSION_TTL"); ok {
		c.Session.TTL = v
	} else if h, ok := getEnvInt("SESSION_TTL_HOURS"); ok {
		// alias heredado, en horas
		c.Session.TTL = (time.Duration(h) * time.Hour).String()
	}
	if v, ok := getEnvInt("SESSION_TOKEN_BYTES"); ok {
		c.Session.TokenBytes = v
	}
	if v, ok := getEnvStr("SESSION_COOKIE_DOMAIN"); ok {
		c.Session.CookieDomain = v
	}
	if v, ok := getEnvStr("SESSION_LEGACY_COOKIE_NAME"); ok {
		c.Session.LegacyCookieName = v
	}
	if v, ok := getEnvStr("SESSION_PURGE_INTERVAL"); ok {
		c.Session.PurgeInterval = v
	}

	// BILLING
	if v, ok := getEnvStr("STRIPE_WEBHOOK_SECRET"); ok {
		c.Billing.WebhookSecret = v
	}
	if v, ok := getEnvStr("STRIPE_WEBHOOK_TOLERANCE"); ok {
		c.Billing.WebhookTolerance = v
	}
	if v, ok := getEnvStr("BILLING_PAST_DUE_GRACE"); ok {
		c.Billing.PastDueGrace = v
	}
	if v, ok := getEnvStr("BILLING_ONE_TIME_ACCESS"); ok {
		c.Billing.OneTimeAccess = v
	}
	if v, ok := getEnvStr("STRIPE_SECRET_KEY"); ok {
		c.Billing.SecretKey = v
	}
	if v, ok := getEnvStr("BILLING_CHECKOUT_SUCCESS_URL"); ok {
		c.Billing.CheckoutSuccessURL = v
	}
	if v, ok := getEnvStr("BILLING_CHECKOUT_CANCEL_URL"); ok {
		c.Billing.CheckoutCancelURL = v
	}
	if v, ok := getEnvStr("BILLING_PORTAL_RETURN_URL"); ok {
		c.Billing.PortalReturnURL = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvStr("RATE_LOGIN_WINDOW"); ok {
		c.Rate.Login.Window = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// FLAGS
	if v, ok := getEnvBool("FLAGS_MIGRATE"); ok {
		c.Flags.Migrate = v
	}
}

// Validate revisa duraciones y secretos obligatorios en prod.
func (c *Config) Validate() error {
	durations := map[string]string{
		"cache.memory.default_ttl":  c.Cache.Memory.DefaultTTL,
		"session.ttl":               c.Session.TTL,
		"session.purge_interval":    c.Session.PurgeInterval,
		"billing.webhook_tolerance": c.Billing.WebhookTolerance,
		"billing.past_due_grace":    c.Billing.PastDueGrace,
		"billing.one_time_access":   c.Billing.OneTimeAccess,
		"rate.login.window":         c.Rate.Login.Window,
	}
	for name, v := range durations {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config: %s inválido (%q): %w", name, v, err)
		}
	}
	if c.SessionTTL() <= 0 {
		return errors.New("config: session.ttl debe ser > 0")
	}
	if c.Session.TokenBytes < 16 {
		return fmt.Errorf("config: session.token_bytes=%d, mínimo 16", c.Session.TokenBytes)
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("config: storage.dsn requerido para driver postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("config: storage.driver desconocido %q", c.Storage.Driver)
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("config: cache.redis.addr requerido para cache redis")
		}
	default:
		return fmt.Errorf("config: cache.kind desconocido %q", c.Cache.Kind)
	}
	if c.IsProd() {
		if c.Session.Pepper == "" {
			return errors.New("config: SESSION_PEPPER es obligatorio en prod")
		}
		if c.Billing.WebhookSecret == "" {
			return errors.New("config: STRIPE_WEBHOOK_SECRET es obligatorio en prod")
		}
	}
	return nil
}

func (c *Config) IsProd() bool { return c.App.Env == "prod" || c.App.Env == "production" }

// Las duraciones ya fueron validadas en Load; un valor roto devuelve 0.
func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c *Config) CacheDefaultTTL() time.Duration  { return mustDur(c.Cache.Memory.DefaultTTL) }
func (c *Config) SessionTTL() time.Duration       { return mustDur(c.Session.TTL) }
func (c *Config) PurgeInterval() time.Duration    { return mustDur(c.Session.PurgeInterval) }
func (c *Config) WebhookTolerance() time.Duration { return mustDur(c.Billing.WebhookTolerance) }
func (c *Config) PastDueGrace() time.Duration     { return mustDur(c.Billing.PastDueGrace) }
func (c *Config) OneTimeAccess() time.Duration    { return mustDur(c.Billing.OneTimeAccess) }
func (c *Config) RateLoginWindow() time.Duration  { return mustDur(c.Rate.Login.Window) }
