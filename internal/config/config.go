package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// Base pública usada para armar links de reset / redirects OAuth.
		PublicBaseURL string `yaml:"public_base_url"`
		MetricsAddr   string `yaml:"metrics_addr"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory (memory solo para dev/tests)
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis | off
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
		// TTL del cache de existencia por email.
		ExistsTTL string `yaml:"exists_ttl"`
	} `yaml:"cache"`

	Session struct {
		// Nombre de la cookie de sesión emitida por el proveedor.
		CookieName string `yaml:"cookie_name"`
		// Prefijo del área protegida y path del entry point público.
		ProtectedPrefix string `yaml:"protected_prefix"`
		EntryPath       string `yaml:"entry_path"`
	} `yaml:"session"`

	Provider struct {
		// stytch | local
		Kind   string `yaml:"kind"`
		Stytch struct {
			ProjectID string `yaml:"project_id"`
			Secret    string `yaml:"secret"`
			BaseURL   string `yaml:"base_url"` // default https://test.stytch.com
		} `yaml:"stytch"`
		Local struct {
			JWTSecret  string        `yaml:"jwt_secret"`
			SessionTTL time.Duration `yaml:"session_ttl"`
			OTPTTL     time.Duration `yaml:"otp_ttl"`
			SMTP       struct {
				Host     string `yaml:"host"`
				Port     int    `yaml:"port"`
				From     string `yaml:"from"`
				Username string `yaml:"username"`
				Password string `yaml:"password"`
			} `yaml:"smtp"`
		} `yaml:"local"`
	} `yaml:"provider"`

	Webhook struct {
		// Secret compartido estilo svix ("whsec_..." en base64).
		Secret string `yaml:"secret"`
	} `yaml:"webhook"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Check   struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"check"`
		Webhook struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"webhook"`
	} `yaml:"rate"`

	Security struct {
		Password struct {
			MinLength     int  `yaml:"min_length"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"password"`
	} `yaml:"security"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default retorna una config con defaults aplicados, sin leer YAML.
// Útil para tests y para el CLI.
func Default() *Config {
	var c Config
	c.applyDefaults()
	c.applyEnvOverrides()
	return &c
}

func (c *Config) applyDefaults() {
	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = "http://localhost:8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Cache.ExistsTTL == "" {
		c.Cache.ExistsTTL = "30s"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "idp_session"
	}
	if c.Session.ProtectedPrefix == "" {
		c.Session.ProtectedPrefix = "/dashboard"
	}
	if c.Session.EntryPath == "" {
		c.Session.EntryPath = "/"
	}
	if c.Provider.Kind == "" {
		c.Provider.Kind = "stytch"
	}
	if c.Provider.Stytch.BaseURL == "" {
		c.Provider.Stytch.BaseURL = "https://test.stytch.com"
	}
	if c.Provider.Local.SessionTTL == 0 {
		c.Provider.Local.SessionTTL = time.Hour
	}
	if c.Provider.Local.OTPTTL == 0 {
		c.Provider.Local.OTPTTL = 5 * time.Minute
	}
	if c.Rate.Check.Limit == 0 {
		c.Rate.Check.Limit = 30
	}
	if c.Rate.Check.Window == "" {
		c.Rate.Check.Window = "1m"
	}
	if c.Rate.Webhook.Limit == 0 {
		c.Rate.Webhook.Limit = 120
	}
	if c.Rate.Webhook.Window == "" {
		c.Rate.Webhook.Window = "1m"
	}
	if c.Security.Password.MinLength == 0 {
		c.Security.Password.MinLength = 8
		c.Security.Password.RequireLower = true
		c.Security.Password.RequireDigit = true
	}
}

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	v, ok := getEnvStr(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func getEnvBool(key string) (bool, bool) {
	v, ok := getEnvStr(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

// applyEnvOverrides pisa valores del YAML con variables de entorno.
// Solo se exponen las llaves que tiene sentido rotar sin redeploy (secrets, DSN).
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("PUBLIC_BASE_URL"); ok {
		c.Server.PublicBaseURL = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("PROVIDER_KIND"); ok {
		c.Provider.Kind = v
	}
	if v, ok := getEnvStr("STYTCH_PROJECT_ID"); ok {
		c.Provider.Stytch.ProjectID = v
	}
	if v, ok := getEnvStr("STYTCH_SECRET"); ok {
		c.Provider.Stytch.Secret = v
	}
	if v, ok := getEnvStr("STYTCH_BASE_URL"); ok {
		c.Provider.Stytch.BaseURL = v
	}
	if v, ok := getEnvStr("WEBHOOK_SECRET"); ok {
		c.Webhook.Secret = v
	}
	if v, ok := getEnvStr("LOCAL_JWT_SECRET"); ok {
		c.Provider.Local.JWTSecret = v
	}
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn requerido con driver postgres")
		}
	case "memory":
		// ok: sin DSN
	default:
		return fmt.Errorf("config: storage.driver desconocido %q", c.Storage.Driver)
	}
	switch c.Provider.Kind {
	case "stytch":
		if c.Provider.Stytch.ProjectID == "" || c.Provider.Stytch.Secret == "" {
			return fmt.Errorf("config: provider.stytch.project_id y secret requeridos")
		}
	case "local":
		if c.Provider.Local.JWTSecret == "" {
			return fmt.Errorf("config: provider.local.jwt_secret requerido")
		}
	default:
		return fmt.Errorf("config: provider.kind desconocido %q", c.Provider.Kind)
	}
	return nil
}

// ExistsTTLDuration parsea Cache.ExistsTTL; fallback 30s.
func (c *Config) ExistsTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.Cache.ExistsTTL)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// MemoryTTLDuration parsea Cache.Memory.DefaultTTL; fallback 2m.
func (c *Config) MemoryTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.Cache.Memory.DefaultTTL)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}
